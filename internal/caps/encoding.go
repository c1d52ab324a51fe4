package caps

import (
	"fmt"

	"github.com/e7canasta/orion-care-sensor/modules/shm-bridge/internal/pixel"
)

// Frame rate announced by writers. Timestamps, not this value, drive playback.
const announcedFramerate = "60/1"

const (
	rgba32Prefix = FamilyRGB + ",bpp=32,endianness=4321,depth=32,red_mask=-16777216,green_mask=16711680,blue_mask=65280,"
	gray16Prefix = FamilyGray + ",bpp=16,endianness=4321,depth=16,"
)

// Encoding returns the capability string a writer announces for frames of
// the given spec, and the number of bytes per pixel it will push.
//
// Only 8-bit RGBA and 16-bit single-channel frames can be published.
func Encoding(spec pixel.Spec) (string, int, error) {
	var prefix string
	var bytesPerPixel int

	switch {
	case spec.Sample == pixel.UInt8 && spec.Channels == 4:
		prefix = rgba32Prefix
		bytesPerPixel = 4
	case spec.Sample == pixel.UInt16 && spec.Channels == 1:
		prefix = gray16Prefix
		bytesPerPixel = 2
	default:
		return "", 0, fmt.Errorf("%w: cannot publish %s", ErrUnsupportedFormat, spec)
	}

	if spec.Width <= 0 || spec.Height <= 0 {
		return "", 0, fmt.Errorf("%w: %dx%d", ErrIncompleteGeometry, spec.Width, spec.Height)
	}

	s := fmt.Sprintf("%swidth=%d,height=%d,framerate=%s", prefix, spec.Width, spec.Height, announcedFramerate)
	return s, bytesPerPixel, nil
}
