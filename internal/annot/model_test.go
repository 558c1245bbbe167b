package annot

import (
	"image/color"
	"testing"

	"github.com/fogleman/gg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Meet/internal/protocol"
)

func pts(xy ...float64) []protocol.Point {
	out := make([]protocol.Point, 0, len(xy)/2)
	for i := 0; i+1 < len(xy); i += 2 {
		out = append(out, protocol.Point{X: xy[i], Y: xy[i+1]})
	}
	return out
}

func TestModelBeginUpdateEnd(t *testing.T) {
	m := NewModel()
	require.True(t, m.Apply(protocol.AnnotationHeader{Op: "begin", ID: "s1", Sender: "alice", Tool: "oval", Points: pts(0.1, 0.1)}))
	require.True(t, m.Apply(protocol.AnnotationHeader{Op: "update", ID: "s1", Points: pts(0.5, 0.5, 2, -1)}))
	require.True(t, m.Apply(protocol.AnnotationHeader{Op: "end", ID: "s1"}))

	strokes := m.Strokes()
	require.Len(t, strokes, 1)
	s := strokes[0]
	assert.Equal(t, Ellipse, s.Tool)
	assert.Equal(t, "alice", s.Owner)
	assert.Equal(t, DefaultColor, s.Color)
	assert.Equal(t, float64(DefaultWidth), s.Width)
	assert.True(t, s.Finished)
	assert.Equal(t, pts(0.1, 0.1, 0.5, 0.5, 1, 0), s.Points)
}

func TestModelIgnoresUnknownStroke(t *testing.T) {
	m := NewModel()
	assert.False(t, m.Apply(protocol.AnnotationHeader{Op: "update", ID: "nope", Points: pts(0, 0)}))
	assert.False(t, m.Apply(protocol.AnnotationHeader{Op: "end", ID: "nope"}))
	assert.False(t, m.Apply(protocol.AnnotationHeader{Op: "begin"}))
	assert.False(t, m.Apply(protocol.AnnotationHeader{Op: "wiggle", ID: "x"}))
	assert.Zero(t, m.Len())
}

func TestModelUndoAndClear(t *testing.T) {
	m := NewModel()
	m.Apply(protocol.AnnotationHeader{Op: "begin", ID: "a1", Sender: "alice"})
	m.Apply(protocol.AnnotationHeader{Op: "begin", ID: "b1", Sender: "bob"})
	m.Apply(protocol.AnnotationHeader{Op: "begin", ID: "a2", Sender: "alice"})

	require.True(t, m.Apply(protocol.AnnotationHeader{Op: "undo", Sender: "alice"}))
	ids := func() []string {
		var out []string
		for _, s := range m.Strokes() {
			out = append(out, s.ID)
		}
		return out
	}
	assert.Equal(t, []string{"a1", "b1"}, ids())

	assert.False(t, m.Apply(protocol.AnnotationHeader{Op: "undo", Sender: "carol"}))

	// Re-beginning an id moves it to the top.
	m.Apply(protocol.AnnotationHeader{Op: "begin", ID: "a1", Sender: "alice"})
	assert.Equal(t, []string{"b1", "a1"}, ids())

	require.True(t, m.Apply(protocol.AnnotationHeader{Op: "clear"}))
	assert.Zero(t, m.Len())
}

func TestWidthAndColor(t *testing.T) {
	assert.Equal(t, 1.0, clampWidth(0.2))
	assert.Equal(t, 30.0, clampWidth(99))
	assert.Equal(t, color.RGBA{R: 0x12, G: 0x34, B: 0x56, A: 0xFF}, ParseColor("#123456"))
	assert.Equal(t, color.RGBA{R: 0x12, G: 0x34, B: 0x56, A: 0x80}, ParseColor("#80123456"))
	assert.Equal(t, DefaultColor, ParseColor("blue"))
}

func TestPaintDrawsRectangle(t *testing.T) {
	m := NewModel()
	m.Apply(protocol.AnnotationHeader{Op: "begin", ID: "r", Tool: "rect", Color: "#00FF00", Width: 4, Points: pts(0.25, 0.25, 0.75, 0.75)})

	dc := gg.NewContext(100, 100)
	m.Paint(dc)

	r, g, _, a := dc.Image().At(25, 50).RGBA()
	assert.NotZero(t, a)
	assert.Greater(t, g, r)
	_, _, _, a = dc.Image().At(50, 50).RGBA()
	assert.Zero(t, a)
}
