// Package orientation maps device and interface orientation readings to the
// rotation applied to video connections. The resolver is frozen for the
// duration of a recording so a mid-take rotation never changes the file's
// transform.
package orientation

import "sync"

// Orientation is a physical orientation reading.
type Orientation int

// Orientation readings. FaceUp, FaceDown and Unknown carry no usable
// rotation; the interface reading is the fallback for those.
const (
	Unknown Orientation = iota
	Portrait
	PortraitUpsideDown
	LandscapeLeft
	LandscapeRight
	FaceUp
	FaceDown
)

// String returns the reading name.
func (o Orientation) String() string {
	switch o {
	case Portrait:
		return "portrait"
	case PortraitUpsideDown:
		return "portraitUpsideDown"
	case LandscapeLeft:
		return "landscapeLeft"
	case LandscapeRight:
		return "landscapeRight"
	case FaceUp:
		return "faceUp"
	case FaceDown:
		return "faceDown"
	default:
		return "unknown"
	}
}

// Parse maps a reading name back to its Orientation. The second return is
// false for names that are not readings.
func Parse(s string) (Orientation, bool) {
	switch s {
	case "portrait":
		return Portrait, true
	case "portraitUpsideDown":
		return PortraitUpsideDown, true
	case "landscapeLeft":
		return LandscapeLeft, true
	case "landscapeRight":
		return LandscapeRight, true
	case "faceUp":
		return FaceUp, true
	case "faceDown":
		return FaceDown, true
	case "unknown":
		return Unknown, true
	default:
		return Unknown, false
	}
}

// Rotation is the fixed rotation applied to a video connection, in degrees
// clockwise.
type Rotation int

// The four rotation values.
const (
	Rotate0   Rotation = 0
	Rotate90  Rotation = 90
	Rotate180 Rotation = 180
	Rotate270 Rotation = 270
)

// Resolver tracks the latest orientation readings and resolves them to a
// rotation. Safe for concurrent use.
type Resolver struct {
	mu             sync.Mutex
	deviceReading  Orientation
	ifaceReading   Orientation
	frozen         bool
	frozenRotation Rotation
}

// NewResolver creates a resolver defaulting to landscape.
func NewResolver() *Resolver {
	return &Resolver{deviceReading: Unknown, ifaceReading: LandscapeRight}
}

// SetDeviceOrientation records a device (accelerometer) reading.
func (r *Resolver) SetDeviceOrientation(o Orientation) {
	r.mu.Lock()
	r.deviceReading = o
	r.mu.Unlock()
}

// SetInterfaceOrientation records an interface reading.
func (r *Resolver) SetInterfaceOrientation(o Orientation) {
	r.mu.Lock()
	r.ifaceReading = o
	r.mu.Unlock()
}

// Rotation resolves the current rotation. While frozen it returns the value
// captured at freeze time. The device reading wins unless it is flat or
// unknown, in which case the interface reading decides.
func (r *Resolver) Rotation() Rotation {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return r.frozenRotation
	}
	return r.resolveLocked()
}

// Freeze captures and pins the current rotation for the duration of a
// recording. Returns the pinned value.
func (r *Resolver) Freeze() Rotation {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozenRotation = r.resolveLocked()
	r.frozen = true
	return r.frozenRotation
}

// Unfreeze resumes live resolution.
func (r *Resolver) Unfreeze() {
	r.mu.Lock()
	r.frozen = false
	r.mu.Unlock()
}

// Frozen reports whether the resolver is pinned.
func (r *Resolver) Frozen() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frozen
}

func (r *Resolver) resolveLocked() Rotation {
	reading := r.deviceReading
	if !usable(reading) {
		reading = r.ifaceReading
	}
	switch reading {
	case Portrait:
		return Rotate90
	case PortraitUpsideDown:
		return Rotate270
	case LandscapeLeft:
		return Rotate180
	default:
		return Rotate0
	}
}

func usable(o Orientation) bool {
	switch o {
	case Portrait, PortraitUpsideDown, LandscapeLeft, LandscapeRight:
		return true
	default:
		return false
	}
}
