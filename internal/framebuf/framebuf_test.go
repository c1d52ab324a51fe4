package framebuf

import (
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/e7canasta/orion-care-sensor/modules/shm-bridge/internal/pixel"
)

var rgb4x2 = pixel.Spec{Width: 4, Height: 2, Channels: 3, Sample: pixel.UInt8}

func TestNew_SizeMatchesSpec(t *testing.T) {
	b := New(rgb4x2)
	assert.Len(t, b.Pix, 24)
	assert.False(t, b.Empty())

	gray := New(pixel.Spec{Width: 3, Height: 3, Channels: 1, Sample: pixel.UInt16})
	assert.Len(t, gray.Pix, 18)
}

func TestReset_ReallocatesOnlyOnSizeChange(t *testing.T) {
	b := New(rgb4x2)
	b.Pix[0] = 7

	assert.False(t, b.Reset(rgb4x2), "same geometry keeps storage")
	assert.Equal(t, byte(7), b.Pix[0])

	bigger := pixel.Spec{Width: 8, Height: 2, Channels: 3, Sample: pixel.UInt8}
	assert.True(t, b.Reset(bigger))
	assert.Len(t, b.Pix, 48)
	assert.Equal(t, bigger, b.Spec)
}

func TestCopyFrom(t *testing.T) {
	b := New(rgb4x2)

	err := b.CopyFrom(make([]byte, 10))
	require.ErrorIs(t, err, ErrShortData)

	src := make([]byte, 32)
	for i := range src {
		src[i] = byte(i)
	}
	require.NoError(t, b.CopyFrom(src))
	assert.Equal(t, src[:24], b.Pix)
}

func TestClone_DoesNotShareStorage(t *testing.T) {
	b := New(rgb4x2)
	c := b.Clone()
	c.Pix[0] = 0xff

	assert.Equal(t, byte(0), b.Pix[0])
	assert.Equal(t, b.Spec, c.Spec)

	var nilBuf *Buffer
	assert.Nil(t, nilBuf.Clone())
	assert.True(t, nilBuf.Empty())
}

func TestImage_RGBExpandsToOpaqueRGBA(t *testing.T) {
	b := New(rgb4x2)
	b.Pix[0], b.Pix[1], b.Pix[2] = 10, 20, 30

	img, err := b.Image()
	require.NoError(t, err)

	rgba, ok := img.(*image.RGBA)
	require.True(t, ok)
	assert.Equal(t, color.RGBA{R: 10, G: 20, B: 30, A: 255}, rgba.RGBAAt(0, 0))
	assert.Equal(t, image.Rect(0, 0, 4, 2), rgba.Bounds())
}

func TestImage_Gray16IsBigEndian(t *testing.T) {
	b := New(pixel.Spec{Width: 1, Height: 1, Channels: 1, Sample: pixel.UInt16})
	b.Pix[0], b.Pix[1] = 0x12, 0x34

	img, err := b.Image()
	require.NoError(t, err)
	assert.Equal(t, uint16(0x1234), img.(*image.Gray16).Gray16At(0, 0).Y)
}

func TestImage_Errors(t *testing.T) {
	_, err := (&Buffer{}).Image()
	assert.Error(t, err)

	_, err = New(pixel.Spec{Width: 2, Height: 2, Channels: 2, Sample: pixel.UInt8}).Image()
	assert.Error(t, err)
}

func TestFromImage(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 2, 2))
	src.SetRGBA(1, 1, color.RGBA{R: 1, G: 2, B: 3, A: 255})

	b := FromImage(src)
	assert.Equal(t, pixel.Spec{Width: 2, Height: 2, Channels: 4, Sample: pixel.UInt8}, b.Spec)
	assert.Equal(t, []byte{1, 2, 3, 255}, b.Pix[12:16])

	g := image.NewGray16(image.Rect(0, 0, 2, 1))
	g.SetGray16(1, 0, color.Gray16{Y: 0xabcd})
	gb := FromImage(g)
	assert.Equal(t, pixel.UInt16, gb.Spec.Sample)
	assert.Equal(t, []byte{0xab, 0xcd}, gb.Pix[2:4])
}

func TestI420Size(t *testing.T) {
	assert.Equal(t, 6, I420Size(2, 2))
	assert.Equal(t, 640*480*3/2, I420Size(640, 480))
	assert.Zero(t, I420Size(0, 480))
	assert.Zero(t, I420Size(math.MaxInt/2, 3), "overflow")
	assert.Zero(t, I420Size(math.MaxInt/4, 3), "chroma planes overflow")
}

func TestReset_OverflowingSpecIsEmpty(t *testing.T) {
	b := New(rgb4x2)
	huge := pixel.Spec{Width: math.MaxInt32, Height: math.MaxInt32, Channels: 3, Sample: pixel.UInt8}

	assert.NotPanics(t, func() { b.Reset(huge) })
	assert.True(t, b.Empty())
}
