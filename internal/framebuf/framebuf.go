// Package framebuf provides the owned pixel buffers that flow between the
// shared-memory reader, the color converter and the writer.
package framebuf

import (
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/e7canasta/orion-care-sensor/modules/shm-bridge/internal/pixel"
)

// ErrShortData is returned when source bytes do not cover the buffer.
var ErrShortData = errors.New("framebuf: source shorter than buffer")

// Buffer is a contiguous, row-major, interleaved image.
// len(Pix) always equals Spec.Size().
type Buffer struct {
	Spec pixel.Spec
	Pix  []byte
}

// New allocates a zeroed buffer for spec.
func New(spec pixel.Spec) *Buffer {
	return &Buffer{Spec: spec, Pix: make([]byte, spec.Size())}
}

// Empty reports whether the buffer holds no pixels.
func (b *Buffer) Empty() bool {
	return b == nil || len(b.Pix) == 0
}

// Reset reshapes the buffer to spec. Storage is reallocated only when the
// byte size changes, so repeated frames of one geometry reuse memory.
// It reports whether a reallocation happened.
func (b *Buffer) Reset(spec pixel.Spec) bool {
	size := spec.Size()
	b.Spec = spec
	if len(b.Pix) == size {
		return false
	}
	b.Pix = make([]byte, size)
	return true
}

// CopyFrom fills the buffer from the leading bytes of src.
func (b *Buffer) CopyFrom(src []byte) error {
	if len(src) < len(b.Pix) {
		return fmt.Errorf("%w: have %d, need %d", ErrShortData, len(src), len(b.Pix))
	}
	copy(b.Pix, src)
	return nil
}

// Clone returns a deep copy that does not share storage with b.
func (b *Buffer) Clone() *Buffer {
	if b == nil {
		return nil
	}
	pix := make([]byte, len(b.Pix))
	copy(pix, b.Pix)
	return &Buffer{Spec: b.Spec, Pix: pix}
}

// Image exposes the buffer through the standard image interfaces.
//
// RGBA and 16-bit gray buffers are wrapped without copying. Three-channel
// buffers are expanded into a new RGBA image with opaque alpha.
func (b *Buffer) Image() (image.Image, error) {
	if b.Empty() {
		return nil, errors.New("framebuf: empty buffer")
	}

	s := b.Spec
	rect := image.Rect(0, 0, s.Width, s.Height)

	switch {
	case s.Sample == pixel.UInt8 && s.Channels == 4:
		return &image.RGBA{Pix: b.Pix, Stride: s.Width * 4, Rect: rect}, nil

	case s.Sample == pixel.UInt8 && s.Channels == 3:
		img := image.NewRGBA(rect)
		for i, j := 0, 0; i+2 < len(b.Pix); i, j = i+3, j+4 {
			img.Pix[j] = b.Pix[i]
			img.Pix[j+1] = b.Pix[i+1]
			img.Pix[j+2] = b.Pix[i+2]
			img.Pix[j+3] = 0xff
		}
		return img, nil

	case s.Sample == pixel.UInt8 && s.Channels == 1:
		return &image.Gray{Pix: b.Pix, Stride: s.Width, Rect: rect}, nil

	case s.Sample == pixel.UInt16 && s.Channels == 1:
		// image.Gray16 is big-endian, which is what writers announce
		return &image.Gray16{Pix: b.Pix, Stride: s.Width * 2, Rect: rect}, nil
	}

	return nil, fmt.Errorf("framebuf: no image mapping for %s", s)
}

// FromImage copies an image into a new buffer. RGBA images produce 8-bit
// four-channel buffers; Gray16 images produce 16-bit single-channel buffers.
// Any other image is converted to RGBA.
func FromImage(img image.Image) *Buffer {
	r := img.Bounds()
	w, h := r.Dx(), r.Dy()

	if g, ok := img.(*image.Gray16); ok {
		b := New(pixel.Spec{Width: w, Height: h, Channels: 1, Sample: pixel.UInt16})
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				v := g.Gray16At(r.Min.X+x, r.Min.Y+y).Y
				binary.BigEndian.PutUint16(b.Pix[(y*w+x)*2:], v)
			}
		}
		return b
	}

	b := New(pixel.Spec{Width: w, Height: h, Channels: 4, Sample: pixel.UInt8})
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			cr, cg, cb, ca := img.At(r.Min.X+x, r.Min.Y+y).RGBA()
			o := (y*w + x) * 4
			b.Pix[o] = uint8(cr >> 8)
			b.Pix[o+1] = uint8(cg >> 8)
			b.Pix[o+2] = uint8(cb >> 8)
			b.Pix[o+3] = uint8(ca >> 8)
		}
	}
	return b
}

// I420Size returns the byte length of a planar 4:2:0 frame, or 0 when a
// dimension is not positive or the size overflows int.
func I420Size(width, height int) int {
	if width <= 0 || height <= 0 || width > math.MaxInt/height {
		return 0
	}
	luma := width * height
	// chroma planes add at most half the luma size
	if luma > math.MaxInt/3*2 {
		return 0
	}
	return luma + 2*((width/2)*(height/2))
}
