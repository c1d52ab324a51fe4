// Package colorconv converts planar YUV 4:2:0 (I420) frames to packed 8-bit
// RGB, splitting each frame into horizontal bands that run in parallel.
package colorconv

import (
	"errors"
	"fmt"
)

// DefaultBands is the number of row bands a frame is split into.
const DefaultBands = 16

// BT.601 fixed-point coefficients, scaled by 32768.
const (
	coefY  = 38142
	coefRV = 52298
	coefGU = -12846
	coefGV = -36641
	coefBU = 66094
	scale  = 32768
)

var (
	// ErrOddGeometry is returned for zero, negative or odd dimensions.
	ErrOddGeometry = errors.New("colorconv: width and height must be even and >= 2")

	// ErrShortBuffer is returned when the source or destination is too small.
	ErrShortBuffer = errors.New("colorconv: buffer too small")
)

// Executor runs a batch of tasks and returns once all of them have finished.
// *workerpool.Pool satisfies it.
type Executor interface {
	Run(tasks []func()) error
}

// Inline runs tasks sequentially on the calling goroutine.
type Inline struct{}

// Run implements Executor.
func (Inline) Run(tasks []func()) error {
	for _, fn := range tasks {
		fn()
	}
	return nil
}

// Band is a half-open row range [Y0, Y1).
type Band struct {
	Y0, Y1 int
}

// Bands splits height rows into n equal bands. The last band also takes the
// height%n remainder rows. Empty bands are omitted, so the result covers
// [0, height) exactly once with no overlap.
func Bands(height, n int) []Band {
	if height <= 0 {
		return nil
	}
	if n <= 0 {
		n = 1
	}

	step := height / n
	out := make([]Band, 0, n)
	for i := 0; i < n; i++ {
		y0 := step * i
		y1 := step * (i + 1)
		if i == n-1 {
			y1 = height
		}
		if y1 > y0 {
			out = append(out, Band{Y0: y0, Y1: y1})
		}
	}
	return out
}

// Validate checks geometry and buffer sizes for a conversion.
func Validate(dst, src []byte, width, height int) error {
	if width < 2 || height < 2 || width%2 != 0 || height%2 != 0 {
		return fmt.Errorf("%w: %dx%d", ErrOddGeometry, width, height)
	}
	if need := width * height * 3 / 2; len(src) < need {
		return fmt.Errorf("%w: source has %d bytes, need %d", ErrShortBuffer, len(src), need)
	}
	if need := width * height * 3; len(dst) < need {
		return fmt.Errorf("%w: destination has %d bytes, need %d", ErrShortBuffer, len(dst), need)
	}
	return nil
}

// Converter turns I420 frames into packed RGB on an Executor.
type Converter struct {
	exec  Executor
	bands int
}

// New returns a converter that splits frames into bands row bands.
// A nil exec runs bands on the calling goroutine.
func New(exec Executor, bands int) (*Converter, error) {
	if bands <= 0 {
		return nil, fmt.Errorf("colorconv: bands must be > 0, got %d", bands)
	}
	if exec == nil {
		exec = Inline{}
	}
	return &Converter{exec: exec, bands: bands}, nil
}

// Bands returns the configured band count.
func (c *Converter) Bands() int {
	return c.bands
}

// Convert writes width*height*3 bytes of RGB into dst from the I420 frame in
// src. It blocks until every band has been converted.
func (c *Converter) Convert(dst, src []byte, width, height int) error {
	if err := Validate(dst, src, width, height); err != nil {
		return err
	}

	bands := Bands(height, c.bands)
	tasks := make([]func(), len(bands))
	for i, b := range bands {
		b := b
		tasks[i] = func() { convertRows(dst, src, width, height, b.Y0, b.Y1) }
	}
	return c.exec.Run(tasks)
}

// ConvertRows converts rows [y0, y1) of an I420 frame. Rows outside the
// range are left untouched.
func ConvertRows(dst, src []byte, width, height, y0, y1 int) error {
	if err := Validate(dst, src, width, height); err != nil {
		return err
	}
	if y0 < 0 || y1 > height || y0 > y1 {
		return fmt.Errorf("colorconv: row range [%d, %d) outside [0, %d)", y0, y1, height)
	}
	convertRows(dst, src, width, height, y0, y1)
	return nil
}

func convertRows(dst, src []byte, width, height, y0, y1 int) {
	lumaSize := width * height
	yPlane := src[:lumaSize]
	uPlane := src[lumaSize : lumaSize+lumaSize/4]
	vPlane := src[lumaSize*5/4 : lumaSize*5/4+lumaSize/4]
	chromaStride := width / 2

	for y := y0; y < y1; y++ {
		row := y * width
		chromaRow := (y / 2) * chromaStride

		for x := 0; x < width; x += 2 {
			u := int(uPlane[chromaRow+x/2]) - 128
			v := int(vPlane[chromaRow+x/2]) - 128

			rPart := coefRV * v
			gPart := coefGU*u + coefGV*v
			bPart := coefBU * u

			for col := x; col < x+2; col++ {
				yVal := int(yPlane[row+col]) * coefY
				o := (row + col) * 3
				dst[o] = clamp((yVal + rPart) / scale)
				dst[o+1] = clamp((yVal + gPart) / scale)
				dst[o+2] = clamp((yVal + bPart) / scale)
			}
		}
	}
}

func clamp(v int) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}
