package annot

import (
	"math"
	"sync"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/dkeye/Meet/internal/protocol"
)

// Paint replays every stroke onto dc, scaling normalized points to the context size.
func (m *Model) Paint(dc *gg.Context) {
	w, h := float64(dc.Width()), float64(dc.Height())
	for _, s := range m.Strokes() {
		paintStroke(dc, s, w, h)
	}
}

func denorm(p protocol.Point, w, h float64) (float64, float64) {
	return p.X * w, p.Y * h
}

func paintStroke(dc *gg.Context, s Stroke, w, h float64) {
	dc.Push()
	defer dc.Pop()

	dc.SetColor(s.Color)
	dc.SetLineWidth(s.Width)
	dc.SetLineCap(gg.LineCapRound)
	dc.SetLineJoin(gg.LineJoinRound)

	n := len(s.Points)
	switch s.Tool {
	case Rect, Ellipse:
		if n < 2 {
			return
		}
		x0, y0 := denorm(s.Points[0], w, h)
		x1, y1 := denorm(s.Points[n-1], w, h)
		x, y := math.Min(x0, x1), math.Min(y0, y1)
		rw, rh := math.Abs(x1-x0), math.Abs(y1-y0)
		if s.Tool == Rect {
			dc.DrawRectangle(x, y, rw, rh)
		} else {
			dc.DrawEllipse(x+rw/2, y+rh/2, rw/2, rh/2)
		}
		dc.Stroke()
	case Arrow:
		if n < 2 {
			return
		}
		ax, ay := denorm(s.Points[0], w, h)
		bx, by := denorm(s.Points[n-1], w, h)
		drawArrow(dc, ax, ay, bx, by, s.Width)
	case Pen:
		if n < 2 {
			return
		}
		dc.MoveTo(denorm(s.Points[0], w, h))
		for _, p := range s.Points[1:] {
			dc.LineTo(denorm(p, w, h))
		}
		dc.Stroke()
	case Text:
		if n == 0 || s.Text == "" {
			return
		}
		x, y := denorm(s.Points[0], w, h)
		if f := textFont(); f != nil {
			dc.SetFontFace(truetype.NewFace(f, &truetype.Options{Size: math.Max(12, h*0.035)}))
		}
		dc.DrawString(s.Text, x, y)
	}
}

// drawArrow draws the shaft and a filled head of length max(8, 3w) and half-width max(6, 2w).
func drawArrow(dc *gg.Context, ax, ay, bx, by, width float64) {
	dc.DrawLine(ax, ay, bx, by)
	dc.Stroke()

	dx, dy := bx-ax, by-ay
	if math.Hypot(dx, dy) < 1 {
		return
	}
	length := math.Max(8, width*3)
	half := math.Max(6, width*2)
	angle := math.Atan2(dy, dx)
	sin, cos := math.Sin(angle), math.Cos(angle)

	dc.MoveTo(bx, by)
	dc.LineTo(bx-length*cos+half*sin, by-length*sin-half*cos)
	dc.LineTo(bx-length*cos-half*sin, by-length*sin+half*cos)
	dc.ClosePath()
	dc.Fill()
}

var (
	fontOnce sync.Once
	regular  *truetype.Font
)

// textFont falls back to gg's built-in face when the embedded font cannot be parsed.
func textFont() *truetype.Font {
	fontOnce.Do(func() {
		regular, _ = truetype.Parse(goregular.TTF)
	})
	return regular
}
