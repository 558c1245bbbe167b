package media

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"io"
	"sync"

	"github.com/klauspost/compress/zlib"
)

// DeltaMagic opens every delta blob: "DS01".
const DeltaMagic uint32 = 0x44533031

// Frame size limits for anything decoded from the wire.
const (
	MaxFrameDim    = 8192
	MaxFramePixels = 4096 * 4096
)

var (
	ErrBadDelta  = errors.New("media: bad delta frame")
	ErrFrameSize = errors.New("media: frame size out of range")
)

// CheckFrameSize rejects sizes that are empty or over MaxFrameDim / MaxFramePixels.
func CheckFrameSize(w, h int) error {
	if w <= 0 || h <= 0 || w > MaxFrameDim || h > MaxFrameDim || w*h > MaxFramePixels {
		return fmt.Errorf("%w: %dx%d", ErrFrameSize, w, h)
	}
	return nil
}

// Rect is one changed region with its RGBA pixels, row by row, 4 bytes per pixel.
type Rect struct {
	X, Y, W, H uint16
	Pix        []byte
}

// EncodeDelta builds a delta blob. Each rectangle is compressed on its own.
func EncodeDelta(rects []Rect) ([]byte, error) {
	if len(rects) > 0xFFFF {
		return nil, fmt.Errorf("%w: %d rects", ErrBadDelta, len(rects))
	}
	var out bytes.Buffer
	var hdr [8]byte
	binary.BigEndian.PutUint32(hdr[0:4], DeltaMagic)
	binary.BigEndian.PutUint16(hdr[4:6], uint16(len(rects)))
	out.Write(hdr[:6])

	for _, r := range rects {
		if len(r.Pix) != int(r.W)*int(r.H)*4 {
			return nil, fmt.Errorf("%w: rect %dx%d has %d bytes", ErrBadDelta, r.W, r.H, len(r.Pix))
		}
		var comp bytes.Buffer
		zw := zlib.NewWriter(&comp)
		if _, err := zw.Write(r.Pix); err != nil {
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}
		var rh [12]byte
		binary.BigEndian.PutUint16(rh[0:2], r.X)
		binary.BigEndian.PutUint16(rh[2:4], r.Y)
		binary.BigEndian.PutUint16(rh[4:6], r.W)
		binary.BigEndian.PutUint16(rh[6:8], r.H)
		binary.BigEndian.PutUint32(rh[8:12], uint32(comp.Len()))
		out.Write(rh[:])
		out.Write(comp.Bytes())
	}
	return out.Bytes(), nil
}

// DeltaDecoder keeps one back buffer per sender. Safe for concurrent use.
type DeltaDecoder struct {
	mu   sync.Mutex
	back map[string]*image.RGBA
}

func NewDeltaDecoder() *DeltaDecoder {
	return &DeltaDecoder{back: make(map[string]*image.RGBA)}
}

// Apply paints blob onto sender's back buffer and returns a copy of the result.
// The buffer is recreated when the frame size changes. Rectangles larger than the frame are
// rejected; placement is clipped to the frame.
func (d *DeltaDecoder) Apply(sender string, blob []byte, w, h int) (*image.RGBA, error) {
	if err := CheckFrameSize(w, h); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadDelta, err)
	}
	if len(blob) < 6 || binary.BigEndian.Uint32(blob[0:4]) != DeltaMagic {
		return nil, fmt.Errorf("%w: magic", ErrBadDelta)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	img := d.back[sender]
	if img == nil || img.Rect.Dx() != w || img.Rect.Dy() != h {
		img = image.NewRGBA(image.Rect(0, 0, w, h))
		d.back[sender] = img
	}

	count := int(binary.BigEndian.Uint16(blob[4:6]))
	rest := blob[6:]
	for i := 0; i < count; i++ {
		if len(rest) < 12 {
			return nil, fmt.Errorf("%w: rect %d header", ErrBadDelta, i)
		}
		x := int(binary.BigEndian.Uint16(rest[0:2]))
		y := int(binary.BigEndian.Uint16(rest[2:4]))
		rw := int(binary.BigEndian.Uint16(rest[4:6]))
		rh := int(binary.BigEndian.Uint16(rest[6:8]))
		clen := int(binary.BigEndian.Uint32(rest[8:12]))
		rest = rest[12:]
		if rw > w || rh > h {
			return nil, fmt.Errorf("%w: rect %d is %dx%d in a %dx%d frame", ErrBadDelta, i, rw, rh, w, h)
		}
		if len(rest) < clen {
			return nil, fmt.Errorf("%w: rect %d data", ErrBadDelta, i)
		}
		pix, err := inflate(rest[:clen], rw*rh*4)
		rest = rest[clen:]
		if err != nil {
			return nil, fmt.Errorf("%w: rect %d: %v", ErrBadDelta, i, err)
		}
		paintRows(img, x, y, rw, rh, pix)
	}

	out := image.NewRGBA(img.Rect)
	copy(out.Pix, img.Pix)
	return out, nil
}

// Forget drops sender's back buffer.
func (d *DeltaDecoder) Forget(sender string) {
	d.mu.Lock()
	delete(d.back, sender)
	d.mu.Unlock()
}

func inflate(comp []byte, want int) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(comp))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	pix := make([]byte, want)
	if _, err := io.ReadFull(zr, pix); err != nil {
		return nil, err
	}
	return pix, nil
}

func paintRows(img *image.RGBA, x, y, w, h int, pix []byte) {
	bw, bh := img.Rect.Dx(), img.Rect.Dy()
	if x >= bw || y >= bh {
		return
	}
	cols := min(w, bw-x)
	for row := 0; row < h && y+row < bh; row++ {
		src := pix[row*w*4 : row*w*4+cols*4]
		off := img.PixOffset(x, y+row)
		copy(img.Pix[off:off+cols*4], src)
	}
}
