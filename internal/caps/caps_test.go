package caps

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/e7canasta/orion-care-sensor/modules/shm-bridge/internal/pixel"
)

func TestParse_Families(t *testing.T) {
	testCases := []struct {
		name       string
		capability string
		want       pixel.Descriptor
	}{
		{
			name:       "rgb_24",
			capability: "video/x-raw-rgb, bpp=(int)24, width=(int)640, height=(int)480, red_mask=(int)16711680, blue_mask=(int)255",
			want: pixel.Descriptor{
				Width: 640, Height: 480, Channels: 3, BitsPerPixel: 24,
				RedMask: 16711680, BlueMask: 255,
			},
		},
		{
			name:       "rgb_32",
			capability: "video/x-raw-rgb, bpp=(int)32, endianness=(int)4321, depth=(int)32, red_mask=(int)-16777216, green_mask=(int)16711680, blue_mask=(int)65280, width=(int)1920, height=(int)1080, framerate=(fraction)60/1",
			want: pixel.Descriptor{
				Width: 1920, Height: 1080, Channels: 4, BitsPerPixel: 32,
				RedMask: -16777216, BlueMask: 65280,
			},
		},
		{
			name:       "yuv_i420",
			capability: "video/x-raw-yuv, format=(fourcc)I420, width=(int)4, height=(int)2, framerate=(fraction)30/1",
			want: pixel.Descriptor{
				Width: 4, Height: 2, Channels: 3, BitsPerPixel: 12,
				IsYUV: true, Is420Planar: true,
			},
		},
		{
			name:       "yuv_packed_24",
			capability: "video/x-raw-yuv, format=(fourcc)v308, bpp=(int)24, width=(int)8, height=(int)8",
			want: pixel.Descriptor{
				Width: 8, Height: 8, Channels: 3, BitsPerPixel: 24, IsYUV: true,
			},
		},
		{
			name:       "order_independent",
			capability: "video/x-raw-yuv, height=(int)2, framerate=(fraction)30/1, width=(int)4, format=(fourcc)I420",
			want: pixel.Descriptor{
				Width: 4, Height: 2, Channels: 3, BitsPerPixel: 12,
				IsYUV: true, Is420Planar: true,
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Parse(tc.capability)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
			assert.True(t, got.Usable())
		})
	}
}

func TestParse_LastOccurrenceWins(t *testing.T) {
	got, err := Parse("video/x-raw-rgb, bpp=(int)24, width=(int)10, height=(int)10, width=(int)20")
	require.NoError(t, err)
	assert.Equal(t, uint32(20), got.Width)
}

func TestParse_IntegerForms(t *testing.T) {
	testCases := []struct {
		name  string
		value string
		want  uint32
	}{
		{"decimal", "640", 640},
		{"hex", "0x280", 640},
		{"octal", "01200", 640},
		{"plus_sign", "+640", 640},
		{"negative_is_unusable", "-640", 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, _ := Parse("video/x-raw-rgb, bpp=(int)24, height=(int)2, width=(int)" + tc.value)
			assert.Equal(t, tc.want, got.Width)
		})
	}
}

func TestParse_YUVWithRedMask(t *testing.T) {
	got, err := Parse("video/x-raw-yuv, format=(fourcc)I420, red_mask=(int)255, width=(int)4, height=(int)4")
	require.NoError(t, err)

	assert.True(t, got.IsYUV, "family prefix decides the color model")
	assert.True(t, got.Is420Planar)
	assert.True(t, got.MaskConflict)
	assert.Equal(t, int64(255), got.RedMask)
}

func TestParse_NonPlanarYUVIsNotPacked(t *testing.T) {
	got, err := Parse("video/x-raw-yuv, format=(fourcc)YUY2, width=(int)4, height=(int)4")
	require.NoError(t, err)

	assert.True(t, got.Usable())
	assert.False(t, got.Is420Planar)
	assert.False(t, got.Packed(), "12 bpp over 3 channels cannot be copied as packed")
}

func TestParse_Errors(t *testing.T) {
	testCases := []struct {
		name       string
		capability string
		wantErr    error
	}{
		{"empty", "", ErrUnsupportedFormat},
		{"modern_family", "video/x-raw, format=(string)RGB, width=(int)640, height=(int)480", ErrUnsupportedFormat},
		{"audio", "audio/x-raw-int, rate=(int)44100", ErrUnsupportedFormat},
		{"gray_reader_side", "video/x-raw-gray, bpp=(int)16, width=(int)4, height=(int)4", ErrUnsupportedFormat},
		{"zero_width", "video/x-raw-rgb, bpp=(int)24, width=(int)0, height=(int)480", ErrIncompleteGeometry},
		{"missing_height", "video/x-raw-rgb, bpp=(int)24, width=(int)640", ErrIncompleteGeometry},
		{"missing_bpp", "video/x-raw-rgb, width=(int)640, height=(int)480", ErrIncompleteGeometry},
		{"rgb_16", "video/x-raw-rgb, bpp=(int)16, width=(int)640, height=(int)480", ErrUnsupportedChannelLayout},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Parse(tc.capability)
			require.ErrorIs(t, err, tc.wantErr)
			assert.False(t, got.Usable())
		})
	}
}

func TestParser_UpdateShortCircuits(t *testing.T) {
	p := NewParser()
	s := "video/x-raw-rgb, bpp=(int)24, width=(int)2, height=(int)2"

	changed, err := p.Update(s)
	require.NoError(t, err)
	assert.True(t, changed)
	first := p.Descriptor()

	changed, err = p.Update(s)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, first, p.Descriptor())
	assert.Equal(t, s, p.Last())
}

func TestParser_UnsupportedThenValid(t *testing.T) {
	p := NewParser()

	_, err := p.Update("video/x-raw, format=(string)NV12, width=(int)4, height=(int)4")
	require.ErrorIs(t, err, ErrUnsupportedFormat)
	assert.False(t, p.Descriptor().Usable())

	// the same bad string keeps reporting its error without re-parsing
	changed, err := p.Update("video/x-raw, format=(string)NV12, width=(int)4, height=(int)4")
	assert.False(t, changed)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = p.Update("video/x-raw-rgb, bpp=(int)24, width=(int)4, height=(int)4")
	require.NoError(t, err)
	assert.True(t, p.Descriptor().Usable())
}

func TestParser_ChangeClearsPreviousState(t *testing.T) {
	p := NewParser()

	_, err := p.Update("video/x-raw-yuv, format=(fourcc)I420, width=(int)4, height=(int)4")
	require.NoError(t, err)
	require.True(t, p.Descriptor().Is420Planar)

	_, err = p.Update("video/x-raw-rgb, bpp=(int)24, width=(int)4")
	require.ErrorIs(t, err, ErrIncompleteGeometry)

	d := p.Descriptor()
	assert.False(t, d.Usable())
	assert.False(t, d.Is420Planar)
	assert.False(t, d.IsYUV)
	assert.Zero(t, d.Height)
}

func TestParser_PatternCompilationFailure(t *testing.T) {
	bad := DefaultPatterns
	bad.Width = `width=\(int\)(`

	p := newParserWithPatterns(bad)

	assert.NotPanics(t, func() {
		changed, err := p.Update("video/x-raw-rgb, bpp=(int)24, width=(int)4, height=(int)4")
		assert.True(t, changed)
		assert.ErrorIs(t, err, ErrPatternCompilation)
	})
	assert.False(t, p.Descriptor().Usable())
}

func TestEncoding(t *testing.T) {
	t.Run("rgba", func(t *testing.T) {
		s, bpp, err := Encoding(pixel.Spec{Width: 640, Height: 480, Channels: 4, Sample: pixel.UInt8})
		require.NoError(t, err)
		assert.Equal(t, 4, bpp)
		assert.Equal(t,
			"video/x-raw-rgb,bpp=32,endianness=4321,depth=32,red_mask=-16777216,green_mask=16711680,blue_mask=65280,width=640,height=480,framerate=60/1",
			s)
	})

	t.Run("gray16", func(t *testing.T) {
		s, bpp, err := Encoding(pixel.Spec{Width: 32, Height: 16, Channels: 1, Sample: pixel.UInt16})
		require.NoError(t, err)
		assert.Equal(t, 2, bpp)
		assert.Equal(t, "video/x-raw-gray,bpp=16,endianness=4321,depth=16,width=32,height=16,framerate=60/1", s)
	})

	t.Run("unsupported", func(t *testing.T) {
		for _, spec := range []pixel.Spec{
			{Width: 4, Height: 4, Channels: 3, Sample: pixel.UInt8},
			{Width: 4, Height: 4, Channels: 1, Sample: pixel.UInt8},
			{Width: 4, Height: 4, Channels: 4, Sample: pixel.UInt16},
		} {
			_, _, err := Encoding(spec)
			assert.ErrorIs(t, err, ErrUnsupportedFormat, spec.String())
		}
	})

	t.Run("empty_geometry", func(t *testing.T) {
		_, _, err := Encoding(pixel.Spec{Channels: 4, Sample: pixel.UInt8})
		assert.ErrorIs(t, err, ErrIncompleteGeometry)
	})
}

// The writer's encoding, once serialized with type tokens by the transport,
// must parse back to the same geometry on the reader side.
func TestEncoding_RoundTripThroughParser(t *testing.T) {
	s, _, err := Encoding(pixel.Spec{Width: 320, Height: 240, Channels: 4, Sample: pixel.UInt8})
	require.NoError(t, err)

	typed := addTypeTokens(s)
	d, err := Parse(typed)
	require.NoError(t, err)
	assert.Equal(t, uint32(320), d.Width)
	assert.Equal(t, uint32(240), d.Height)
	assert.Equal(t, uint8(4), d.Channels)
	assert.True(t, d.Packed())
}

// addTypeTokens mimics how the transport prints negotiated caps.
func addTypeTokens(s string) string {
	fields := strings.Split(s, ",")
	for i, f := range fields[1:] {
		k, v, ok := strings.Cut(f, "=")
		if !ok {
			continue
		}
		typ := "(int)"
		if strings.Contains(v, "/") {
			typ = "(fraction)"
		}
		fields[i+1] = " " + k + "=" + typ + v
	}
	return strings.Join(fields, ",")
}
