// Package format selects hardware capture formats. Selection fails closed:
// it never substitutes a different resolution or silently falls back to the
// default color space.
package format

import (
	"errors"
	"fmt"

	"github.com/smazurov/cinecam/internal/device"
)

// Negotiation failures.
var (
	ErrNoMatchingFormat      = errors.New("no format matches the requested resolution and frame rate")
	ErrColorSpaceUnsupported = errors.New("selected format does not support the requested color space")
)

// Request describes the capture configuration the caller wants.
type Request struct {
	Width      int
	Height     int
	FrameRate  float64
	ColorSpace device.ColorSpace
}

func (r Request) String() string {
	return fmt.Sprintf("%dx%d@%g %s", r.Width, r.Height, r.FrameRate, r.ColorSpace)
}

// Negotiate picks the device format whose pixel dimensions exactly match the
// request and whose frame-rate ranges include the requested rate. Ties are
// broken by preferring a format that also supports the requested color
// space. The chosen format is then verified against the color space: a
// request for a space the format does not advertise is an error, not a
// fallback.
func Negotiate(dev device.Device, req Request) (device.Format, error) {
	var match device.Format
	found := false

	for _, f := range dev.Formats {
		if f.Width != req.Width || f.Height != req.Height {
			continue
		}
		if !f.SupportsRate(req.FrameRate) {
			continue
		}
		if !found {
			match = f
			found = true
			continue
		}
		// Tie-break: prefer the format that carries the color space.
		if !match.SupportsColorSpace(req.ColorSpace) && f.SupportsColorSpace(req.ColorSpace) {
			match = f
		}
	}

	if !found {
		return device.Format{}, fmt.Errorf("%w: %s on %s", ErrNoMatchingFormat, req, dev.ID)
	}
	if req.ColorSpace != "" && !match.SupportsColorSpace(req.ColorSpace) {
		return device.Format{}, fmt.Errorf("%w: %s on %s", ErrColorSpaceUnsupported, req, dev.ID)
	}
	return match, nil
}
