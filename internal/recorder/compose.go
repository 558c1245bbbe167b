package recorder

import (
	"bytes"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"

	"github.com/dkeye/Meet/internal/annot"
	"github.com/dkeye/Meet/internal/media"
)

const (
	insetMargin  = 10
	insetMinW    = 120
	insetWidthPc = 22
	insetMaxHPc  = 30
	insetBorder  = 2
)

var insetBacking = color.NRGBA{A: 160}

// Compositor renders the per-user output frame.
type Compositor struct {
	Width, Height int
	Quality       int
}

// Compose places screen (full frame) and camera (inset, or full frame when alone) on
// black, then paints strokes from model. It returns nil when there is nothing to show.
func (c Compositor) Compose(camera, screen image.Image, model *annot.Model) image.Image {
	if camera == nil && screen == nil {
		return nil
	}
	dc := gg.NewContext(c.Width, c.Height)
	dc.SetColor(color.Black)
	dc.Clear()

	switch {
	case screen != nil:
		drawFit(dc, screen, image.Rect(0, 0, c.Width, c.Height))
		if camera != nil {
			c.drawInset(dc, camera)
		}
	default:
		drawFit(dc, camera, image.Rect(0, 0, c.Width, c.Height))
	}

	if model != nil {
		model.Paint(dc)
	}
	return dc.Image()
}

// InsetRect is where the camera goes when a screen is shown.
func (c Compositor) InsetRect(camW, camH int) image.Rectangle {
	camW, camH = max(camW, 1), max(camH, 1)
	sw := max(insetMinW, c.Width*insetWidthPc/100)
	sh := sw * camH / camW
	if limit := c.Height * insetMaxHPc / 100; sh > limit {
		sh = limit
		sw = sh * camW / camH
	}
	x := c.Width - insetMargin - sw
	y := c.Height - insetMargin - sh
	return image.Rect(x, y, x+sw, y+sh)
}

func (c Compositor) drawInset(dc *gg.Context, camera image.Image) {
	b := camera.Bounds()
	rc := c.InsetRect(b.Dx(), b.Dy())
	x, y := float64(rc.Min.X), float64(rc.Min.Y)
	w, h := float64(rc.Dx()), float64(rc.Dy())

	dc.SetColor(insetBacking)
	dc.DrawRectangle(x-insetBorder, y-insetBorder, w+2*insetBorder, h+2*insetBorder)
	dc.Fill()

	dc.SetColor(color.White)
	dc.SetLineWidth(insetBorder)
	dc.DrawRectangle(x, y, w, h)
	dc.Stroke()

	drawFit(dc, camera, rc)
}

// drawFit scales img to fit rect keeping its aspect ratio and centers it.
func drawFit(dc *gg.Context, img image.Image, rect image.Rectangle) {
	b := img.Bounds()
	if b.Empty() || rect.Empty() {
		return
	}
	fw, fh := fitSize(b.Dx(), b.Dy(), rect.Dx(), rect.Dy())
	if fw == 0 || fh == 0 {
		return
	}
	scaled := img
	if fw != b.Dx() || fh != b.Dy() {
		scaled = imaging.Resize(img, fw, fh, imaging.Linear)
	}
	dc.DrawImage(scaled, rect.Min.X+(rect.Dx()-fw)/2, rect.Min.Y+(rect.Dy()-fh)/2)
}

func fitSize(w, h, maxW, maxH int) (int, int) {
	if w*maxH > h*maxW {
		return maxW, h * maxW / w
	}
	return w * maxH / h, maxH
}

func (c Compositor) EncodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(c.Quality)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeImage reads any format imaging understands, honoring EXIF orientation. The size is
// checked from the image header before any pixels are decoded.
func DecodeImage(data []byte) (image.Image, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if err := media.CheckFrameSize(cfg.Width, cfg.Height); err != nil {
		return nil, err
	}
	return imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
}
