package device

import (
	"errors"
	"time"
)

// Driver errors shared by all backends.
var (
	ErrNotStreaming     = errors.New("device is not streaming")
	ErrAlreadyStreaming = errors.New("device is already streaming")
	ErrConfigLocked     = errors.New("device configuration is locked by another owner")
	ErrDeviceClosed     = errors.New("device is closed")
)

// Driver is the hardware abstraction for one open camera.
//
// Configuration mutations (Configure, SetExposure, SetWhiteBalance,
// SetExposureBias) require the configuration lock; callers bracket them with
// LockConfiguration/UnlockConfiguration. Zoom is exempt: drivers apply zoom
// changes on the streaming path without a lock so ramps stay smooth.
//
// Frame delivery never blocks on slow consumers: drivers drop frames when
// the channel returned by StartStreaming is full.
type Driver interface {
	// Device returns the static descriptor this driver was opened for.
	Device() Device

	// Close releases the device. The frame channel is closed first.
	Close() error

	// Configure applies a negotiated stream configuration. Streaming must
	// be stopped and the configuration lock held.
	Configure(cfg StreamConfig) error

	// StartStreaming begins frame delivery and returns the frame channel.
	StartStreaming() (<-chan *Frame, error)

	// StopStreaming halts frame delivery and closes the frame channel.
	StopStreaming() error

	// LockConfiguration acquires exclusive configuration access.
	LockConfiguration() error
	UnlockConfiguration()

	// SetZoom applies a digital zoom factor immediately.
	SetZoom(factor float64) error

	// RampZoom ramps toward target at rate (factors per second) without
	// interrupting streaming.
	RampZoom(target, rate float64) error

	// Zoom returns the current digital zoom factor.
	Zoom() float64

	// SetExposure drives the exposure hardware. A zero ISO lets the device
	// float ISO automatically; a zero shutter does the same for shutter
	// duration. (0, 0) is full auto exposure.
	SetExposure(iso float64, shutter time.Duration) error

	// SetWhiteBalance fixes white balance; (0, 0) returns it to auto.
	SetWhiteBalance(kelvin, tint float64) error

	// SetExposureBias applies an EV bias to auto exposure.
	SetExposureBias(ev float64) error

	// ExposureLimits returns the control bounds for this device.
	ExposureLimits() ExposureLimits

	// CurrentExposure returns the latest device-driven exposure values.
	CurrentExposure() Reading

	// ObserveExposure registers fn for device-driven exposure updates and
	// returns a cancel func. fn is called from the driver's own goroutine
	// and must not block.
	ObserveExposure(fn func(Reading)) (cancel func())
}

// OpenFunc opens a driver for a catalog device. The session controller uses
// it to substitute devices without knowing the backend.
type OpenFunc func(dev Device) (Driver, error)
