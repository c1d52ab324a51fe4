// Package caps turns capability strings announced on a shared-memory path
// into pixel descriptors, and builds the capability strings a writer
// announces for its own frames.
//
// Only the legacy raw-video families are recognized:
//
//	video/x-raw-rgb, bpp=(int)24, width=(int)640, height=(int)480, ...
//	video/x-raw-yuv, format=(fourcc)I420, width=(int)640, height=(int)480, ...
//
// Any other family (including modern "video/x-raw, format=..." strings) is
// reported as ErrUnsupportedFormat.
package caps

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/e7canasta/orion-care-sensor/modules/shm-bridge/internal/pixel"
)

// Capability families.
const (
	FamilyRGB  = "video/x-raw-rgb"
	FamilyYUV  = "video/x-raw-yuv"
	FamilyGray = "video/x-raw-gray"

	// PlanarTag marks a YUV string as planar 4:2:0.
	PlanarTag = "I420"
)

var (
	// ErrUnsupportedFormat is returned when the string belongs to no known family.
	ErrUnsupportedFormat = errors.New("unsupported capability family")

	// ErrIncompleteGeometry is returned when width, height or bpp is missing or zero.
	ErrIncompleteGeometry = errors.New("incomplete geometry")

	// ErrUnsupportedChannelLayout is returned when the bit depth maps to no channel layout.
	ErrUnsupportedChannelLayout = errors.New("unsupported channel layout")

	// ErrPatternCompilation is returned when the pattern table cannot be built.
	ErrPatternCompilation = errors.New("capability pattern table failed to compile")
)

// Parse derives a descriptor from a single capability string.
//
// The returned descriptor is filled as far as parsing got; callers should
// rely on Descriptor.Usable rather than on the descriptor being zero.
func Parse(capability string) (pixel.Descriptor, error) {
	t, err := sharedTable()
	if err != nil {
		return pixel.Descriptor{}, fmt.Errorf("%w: %v", ErrPatternCompilation, err)
	}
	return t.parse(capability)
}

func (t *patternTable) parse(s string) (pixel.Descriptor, error) {
	var d pixel.Descriptor

	isRGB := t.rgb.MatchString(s)
	isYUV := t.yuv.MatchString(s)
	if !isRGB && !isYUV {
		return d, fmt.Errorf("%w: %q", ErrUnsupportedFormat, family(s))
	}

	bpp, _ := lastInt(t.bpp, s)
	width, _ := lastInt(t.width, s)
	height, _ := lastInt(t.height, s)
	d.Width = toUint32(width)
	d.Height = toUint32(height)

	red, hasRed := lastInt(t.red, s)
	blue, _ := lastInt(t.blue, s)
	d.RedMask = red
	d.BlueMask = blue

	if isYUV {
		// the family prefix decides; a stray red_mask is only flagged
		d.IsYUV = true
		d.MaskConflict = hasRed
	}

	switch {
	case bpp == 24:
		d.Channels = 3
		d.BitsPerPixel = 24
	case bpp == 32 && isRGB:
		d.Channels = 4
		d.BitsPerPixel = 32
	case isYUV:
		d.Channels = 3
		d.BitsPerPixel = 12
		if fourcc, ok := lastString(t.format, s); ok && fourcc == PlanarTag {
			d.Is420Planar = true
		}
	}

	if d.Width == 0 || d.Height == 0 {
		return d, fmt.Errorf("%w: width=%d height=%d", ErrIncompleteGeometry, d.Width, d.Height)
	}
	if bpp == 0 && !isYUV {
		return d, fmt.Errorf("%w: bpp missing", ErrIncompleteGeometry)
	}
	if d.Channels == 0 || d.BitsPerPixel == 0 {
		return d, fmt.Errorf("%w: bpp=%d", ErrUnsupportedChannelLayout, bpp)
	}
	return d, nil
}

// family returns the leading media type of s, for error messages.
func family(s string) string {
	if i := strings.IndexAny(s, ", "); i >= 0 {
		return s[:i]
	}
	return s
}

func toUint32(v int64) uint32 {
	if v <= 0 || v > math.MaxUint32 {
		return 0
	}
	return uint32(v)
}
