// Package pixel holds the pixel-layout vocabulary shared by the capability
// parser, the frame buffers and the converters.
package pixel

import (
	"fmt"
	"math"
)

// SampleType is the storage type of a single channel sample.
type SampleType uint8

const (
	// UInt8 is one byte per channel sample
	UInt8 SampleType = iota
	// UInt16 is two bytes per channel sample
	UInt16
)

// String returns a human-readable name for the sample type
func (s SampleType) String() string {
	switch s {
	case UInt8:
		return "uint8"
	case UInt16:
		return "uint16"
	default:
		return "unknown"
	}
}

// Size returns the number of bytes used by one sample.
func (s SampleType) Size() int {
	switch s {
	case UInt16:
		return 2
	default:
		return 1
	}
}

// Spec is the storage geometry of a frame buffer.
type Spec struct {
	Width    int
	Height   int
	Channels int
	Sample   SampleType
}

// Size returns the byte length of a buffer holding this spec, or 0 when a
// dimension is not positive or the product overflows int.
func (s Spec) Size() int {
	if s.Width <= 0 || s.Height <= 0 || s.Channels <= 0 {
		return 0
	}
	n := s.Width
	for _, f := range [...]int{s.Height, s.Channels, s.Sample.Size()} {
		if n > math.MaxInt/f {
			return 0
		}
		n *= f
	}
	return n
}

// SameGeometry reports whether two specs share the (width, height, channels) triple.
// Sample type is not compared.
func (s Spec) SameGeometry(o Spec) bool {
	return s.Width == o.Width && s.Height == o.Height && s.Channels == o.Channels
}

// String returns "WxHxC/sample".
func (s Spec) String() string {
	return fmt.Sprintf("%dx%dx%d/%s", s.Width, s.Height, s.Channels, s.Sample)
}

// Descriptor describes the pixel layout announced by a capability string.
type Descriptor struct {
	Width        uint32
	Height       uint32
	Channels     uint8
	Sample       SampleType
	IsYUV        bool
	Is420Planar  bool
	BitsPerPixel uint32

	// RedMask and BlueMask are kept for diagnostics only.
	RedMask  int64
	BlueMask int64

	// MaskConflict is set when a YUV-family string also carries an RGB
	// channel mask. The family prefix still decides IsYUV.
	MaskConflict bool
}

// Usable reports whether a frame with this layout can be copied or converted.
func (d Descriptor) Usable() bool {
	return d.Width != 0 && d.Height != 0 && d.BitsPerPixel != 0 && d.Channels != 0
}

// Packed reports whether all channels of a pixel are stored contiguously at
// one byte per channel, so a frame can be copied without conversion.
func (d Descriptor) Packed() bool {
	return !d.Is420Planar && d.Channels != 0 && d.BitsPerPixel == uint32(d.Channels)*8
}

// Spec returns the decoded (output) buffer spec for this layout. Decoded
// frames are always 8-bit.
func (d Descriptor) Spec() Spec {
	return Spec{
		Width:    int(d.Width),
		Height:   int(d.Height),
		Channels: int(d.Channels),
		Sample:   UInt8,
	}
}

// String summarises the descriptor for logs.
func (d Descriptor) String() string {
	layout := "packed"
	if d.Is420Planar {
		layout = "planar-420"
	}
	return fmt.Sprintf("%dx%d ch=%d bpp=%d yuv=%v %s",
		d.Width, d.Height, d.Channels, d.BitsPerPixel, d.IsYUV, layout)
}
