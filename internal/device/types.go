package device

import "time"

// Position identifies where a camera sits on the rig.
type Position string

// Camera positions.
const (
	PositionUltraWide Position = "ultrawide"
	PositionWide      Position = "wide"
	PositionTelephoto Position = "telephoto"
	PositionFront     Position = "front"
)

// ColorSpace identifies a device-level color space.
type ColorSpace string

// Supported color spaces. Rec709 is the default; Log is the flat
// grading-oriented space that pairs with a LUT preview transform.
const (
	ColorSpaceRec709 ColorSpace = "rec709"
	ColorSpaceLog    ColorSpace = "log"
	ColorSpaceHDR    ColorSpace = "hdr"
)

// FrameRateRange is an inclusive range of supported frame rates.
type FrameRateRange struct {
	Min float64
	Max float64
}

// Contains reports whether fps falls inside the range.
func (r FrameRateRange) Contains(fps float64) bool {
	return fps >= r.Min && fps <= r.Max
}

// Format is an immutable description of one hardware capture configuration.
// Formats are selected, never mutated.
type Format struct {
	Width       int
	Height      int
	FrameRates  []FrameRateRange
	ColorSpaces []ColorSpace
	HDR         bool
}

// SupportsRate reports whether any advertised range contains fps.
func (f Format) SupportsRate(fps float64) bool {
	for _, r := range f.FrameRates {
		if r.Contains(fps) {
			return true
		}
	}
	return false
}

// SupportsColorSpace reports whether the format advertises cs.
func (f Format) SupportsColorSpace(cs ColorSpace) bool {
	for _, c := range f.ColorSpaces {
		if c == cs {
			return true
		}
	}
	return false
}

// MaxFrameRate returns the highest advertised frame rate.
func (f Format) MaxFrameRate() float64 {
	var max float64
	for _, r := range f.FrameRates {
		if r.Max > max {
			max = r.Max
		}
	}
	return max
}

// Device identifies one physical or logical camera and its capabilities.
// Owned by the Catalog; the session controller references the active one.
type Device struct {
	ID         string
	Name       string
	Position   Position
	NativeZoom float64 // zoom factor this lens represents at 1x digital zoom
	MinZoom    float64
	MaxZoom    float64
	Formats    []Format
}

// ExposureLimits are the device's exposure control bounds.
type ExposureLimits struct {
	MinISO     float64
	MaxISO     float64
	MinShutter time.Duration
	MaxShutter time.Duration
}

// ClampISO constrains iso to the device range.
func (l ExposureLimits) ClampISO(iso float64) float64 {
	if iso < l.MinISO {
		return l.MinISO
	}
	if iso > l.MaxISO {
		return l.MaxISO
	}
	return iso
}

// ClampShutter constrains d to the device range.
func (l ExposureLimits) ClampShutter(d time.Duration) time.Duration {
	if d < l.MinShutter {
		return l.MinShutter
	}
	if d > l.MaxShutter {
		return l.MaxShutter
	}
	return d
}

// Reading is a snapshot of device-driven exposure values.
type Reading struct {
	ISO           float64
	Shutter       time.Duration
	WhiteBalanceK float64
	Tint          float64
}

// StreamConfig is the negotiated configuration applied to a device before
// streaming starts.
type StreamConfig struct {
	Format     Format
	ColorSpace ColorSpace
	FrameRate  float64
}
