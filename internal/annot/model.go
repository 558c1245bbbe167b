// Package annot keeps the annotation strokes drawn over a user's stream and paints them.
package annot

import (
	"image/color"
	"strconv"
	"strings"
	"sync"

	"github.com/dkeye/Meet/internal/protocol"
)

type Tool int

const (
	Pen Tool = iota
	Rect
	Ellipse
	Arrow
	Text
)

const (
	DefaultWidth = 3
	MinWidth     = 1
	MaxWidth     = 30
)

var DefaultColor = color.RGBA{R: 0xFF, A: 0xFF}

// ToolFromString maps tool names; anything unknown draws as a pen.
func ToolFromString(s string) Tool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "rect", "rectangle":
		return Rect
	case "ellipse", "oval":
		return Ellipse
	case "arrow":
		return Arrow
	case "text":
		return Text
	}
	return Pen
}

type Stroke struct {
	ID       string
	Owner    string
	Tool     Tool
	Color    color.RGBA
	Width    float64
	Points   []protocol.Point
	Text     string
	Finished bool
}

// Model holds strokes in insertion order. Safe for concurrent use.
type Model struct {
	mu      sync.RWMutex
	strokes map[string]*Stroke
	order   []string
}

func NewModel() *Model {
	return &Model{strokes: make(map[string]*Stroke)}
}

// Apply mutates the model with one annotation event and reports whether anything changed.
func (m *Model) Apply(ev protocol.AnnotationHeader) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch ev.Op {
	case "clear":
		m.strokes = make(map[string]*Stroke)
		m.order = nil
		return true
	case "undo":
		return m.undoLastBy(ev.Sender)
	}

	if ev.ID == "" {
		return false
	}
	switch ev.Op {
	case "begin":
		s := &Stroke{
			ID:     ev.ID,
			Owner:  ev.Sender,
			Tool:   ToolFromString(ev.Tool),
			Color:  ParseColor(ev.Color),
			Width:  clampWidth(ev.Width),
			Points: clampPoints(ev.Points),
			Text:   ev.Text,
		}
		m.strokes[ev.ID] = s
		m.removeFromOrder(ev.ID)
		m.order = append(m.order, ev.ID)
		return true
	case "update":
		s, ok := m.strokes[ev.ID]
		if !ok {
			return false
		}
		s.Points = append(s.Points, clampPoints(ev.Points)...)
		return true
	case "end":
		s, ok := m.strokes[ev.ID]
		if !ok {
			return false
		}
		s.Finished = true
		return true
	}
	return false
}

func (m *Model) undoLastBy(owner string) bool {
	for i := len(m.order) - 1; i >= 0; i-- {
		id := m.order[i]
		if s, ok := m.strokes[id]; ok && s.Owner == owner {
			delete(m.strokes, id)
			m.order = append(m.order[:i], m.order[i+1:]...)
			return true
		}
	}
	return false
}

func (m *Model) removeFromOrder(id string) {
	for i, v := range m.order {
		if v == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			return
		}
	}
}

// Strokes returns copies of the strokes in paint order.
func (m *Model) Strokes() []Stroke {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Stroke, 0, len(m.order))
	for _, id := range m.order {
		if s, ok := m.strokes[id]; ok {
			cp := *s
			cp.Points = append([]protocol.Point(nil), s.Points...)
			out = append(out, cp)
		}
	}
	return out
}

func (m *Model) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.order)
}

func clampWidth(w float64) float64 {
	if w == 0 {
		return DefaultWidth
	}
	return min(max(w, MinWidth), MaxWidth)
}

func clampPoints(pts []protocol.Point) []protocol.Point {
	out := make([]protocol.Point, 0, len(pts))
	for _, p := range pts {
		out = append(out, protocol.Point{X: min(max(p.X, 0), 1), Y: min(max(p.Y, 0), 1)})
	}
	return out
}

// ParseColor reads #RRGGBB or #AARRGGBB; anything else yields DefaultColor.
func ParseColor(s string) color.RGBA {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	switch len(s) {
	case 6:
		v, err := strconv.ParseUint(s, 16, 32)
		if err != nil {
			return DefaultColor
		}
		return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xFF}
	case 8:
		v, err := strconv.ParseUint(s, 16, 32)
		if err != nil {
			return DefaultColor
		}
		return color.RGBA{A: uint8(v >> 24), R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v)}
	}
	return DefaultColor
}
