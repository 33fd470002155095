// Package exposure owns the exposure state machine. All reads and writes of
// ISO, shutter duration, white balance and exposure bias against the active
// device go through the Controller, which brackets every device mutation
// with the device configuration lock.
package exposure

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/smazurov/cinecam/internal/device"
	"github.com/smazurov/cinecam/internal/events"
)

// Mode is an exposure mode. Exactly one mode is active at any time.
type Mode string

// Exposure modes.
const (
	ModeAuto            Mode = "auto"
	ModeManual          Mode = "manual"
	ModeShutterPriority Mode = "shutterPriority"
	ModeLocked          Mode = "locked"
)

// DefaultSettleDelay is how long the controller waits after a lens switch
// before reapplying an exposure lock, giving auto exposure time to settle on
// the new sensor.
const DefaultSettleDelay = 500 * time.Millisecond

// Relay tolerances for device-originated value changes. Tight while the
// device drives the value, loose while the user does, so noisy sensor
// feedback never fights a user-set value.
const (
	autoRelayTolerance   = 1.0
	manualRelayTolerance = 10.0
)

// ShutterFor180 returns the 180-degree-equivalent shutter duration for a
// frame rate: half the frame interval.
func ShutterFor180(frameRate float64) time.Duration {
	return time.Duration(float64(time.Second) / (2 * frameRate))
}

// State is a read-only snapshot of the exposure machine.
type State struct {
	Mode          Mode
	ISO           float64
	Shutter       time.Duration
	WhiteBalanceK float64
	Tint          float64
	Bias          float64
	ISOOverride   bool
}

// Option configures a Controller.
type Option func(*Controller)

// WithSettleDelay overrides the lock settle delay. Tests use a short delay.
func WithSettleDelay(d time.Duration) Option {
	return func(c *Controller) { c.settleDelay = d }
}

// Controller is the exposure state machine.
type Controller struct {
	bus         *events.Bus
	logger      *slog.Logger
	settleDelay time.Duration

	mu           sync.Mutex
	mode         Mode
	modeBeforeSP Mode // restored when shutter priority is toggled off
	isoOverride  bool // user pinned ISO without leaving shutter priority
	userISO      float64
	userShutter  time.Duration
	wbKelvin     float64
	tint         float64
	bias         float64

	lockDuringRecording bool
	recording           bool
	modeBeforeLock      Mode

	drv           device.Driver // nil while detached
	frameRate     float64
	cancelObserve func()
	attachGen     int // invalidates pending settle timers across detach

	lastRelayedISO float64
	lastRelayedWB  float64
}

// NewController creates a controller in auto mode.
func NewController(bus *events.Bus, logger *slog.Logger, opts ...Option) *Controller {
	c := &Controller{
		bus:         bus,
		logger:      logger,
		settleDelay: DefaultSettleDelay,
		mode:        ModeAuto,
		userISO:     400,
		userShutter: time.Second / 48,
		wbKelvin:    0,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetLockDuringRecording enables locking exposure for the duration of every
// recording.
func (c *Controller) SetLockDuringRecording(enabled bool) {
	c.mu.Lock()
	c.lockDuringRecording = enabled
	c.mu.Unlock()
}

// Attach binds the controller to the active device, registers the exposure
// observer and reapplies the current mode. frameRate must be the rate the
// session actually negotiated on this device, not a cached value: shutter
// priority and locked modes recompute their 180-degree duration from it.
//
// If a recording is active and lock-during-recording is enabled, the lock is
// reapplied after a settle delay rather than immediately.
func (c *Controller) Attach(drv device.Driver, frameRate float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancelObserve != nil {
		c.cancelObserve()
		c.cancelObserve = nil
	}

	c.drv = drv
	c.frameRate = frameRate
	c.attachGen++
	gen := c.attachGen
	c.cancelObserve = drv.ObserveExposure(c.relayReading)

	reapplyLockLater := false
	if c.mode == ModeLocked && c.recording && c.lockDuringRecording {
		// Let the new sensor's auto exposure settle, then capture and
		// freeze whatever it landed on.
		c.mode = ModeAuto
		reapplyLockLater = true
	}

	if c.mode == ModeLocked && !reapplyLockLater && frameRate > 0 {
		// A standing lock follows the lens: the frozen ISO carries over,
		// the 180-degree shutter is recomputed from the rate this device
		// actually negotiated.
		if err := c.withConfigLock(func() error {
			r := c.drv.CurrentExposure()
			return c.drv.SetExposure(r.ISO, ShutterFor180(frameRate))
		}); err != nil {
			return err
		}
	} else if err := c.applyLocked(); err != nil {
		return err
	}

	if reapplyLockLater {
		time.AfterFunc(c.settleDelay, func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if c.attachGen != gen || c.drv == nil {
				return
			}
			c.mode = ModeLocked
			if err := c.applyLocked(); err != nil {
				c.logger.Warn("Failed to reapply exposure lock after settle", "error", err)
			}
			c.publishLocked()
		})
	}

	c.publishLocked()
	return nil
}

// Detach unregisters the device observer and releases the device reference.
// Called by the session controller before any other teardown so the
// controller never observes a dangling device.
func (c *Controller) Detach() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancelObserve != nil {
		c.cancelObserve()
		c.cancelObserve = nil
	}
	c.drv = nil
	c.attachGen++
}

// Attached reports whether a device is currently bound. Test hook.
func (c *Controller) Attached() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.drv != nil
}

// Mode returns the active exposure mode.
func (c *Controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// Snapshot returns the current exposure state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() State {
	s := State{
		Mode:          c.mode,
		ISO:           c.userISO,
		Shutter:       c.userShutter,
		WhiteBalanceK: c.wbKelvin,
		Tint:          c.tint,
		Bias:          c.bias,
		ISOOverride:   c.isoOverride,
	}
	if c.drv != nil {
		r := c.drv.CurrentExposure()
		s.ISO = r.ISO
		s.Shutter = r.Shutter
		if c.wbKelvin == 0 {
			s.WhiteBalanceK = r.WhiteBalanceK
			s.Tint = r.Tint
		}
	}
	return s
}

// SetMode switches to an explicit mode.
func (c *Controller) SetMode(mode Mode) error {
	switch mode {
	case ModeAuto, ModeManual, ModeShutterPriority, ModeLocked:
	default:
		return fmt.Errorf("unknown exposure mode %q", mode)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode == mode {
		return nil
	}
	if mode == ModeShutterPriority {
		c.modeBeforeSP = c.mode
		c.isoOverride = false
	}
	c.mode = mode
	if err := c.applyLocked(); err != nil {
		return err
	}
	c.publishLocked()
	return nil
}

// ToggleShutterPriority enters shutter priority, or leaves it by returning
// ISO control to whatever mode was active immediately before it was enabled.
func (c *Controller) ToggleShutterPriority() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.mode == ModeShutterPriority {
		c.mode = c.modeBeforeSP
		if c.mode == "" {
			c.mode = ModeAuto
		}
		c.isoOverride = false
	} else {
		c.modeBeforeSP = c.mode
		c.mode = ModeShutterPriority
		c.isoOverride = false
	}
	if err := c.applyLocked(); err != nil {
		return err
	}
	c.publishLocked()
	return nil
}

// ToggleLock freezes or releases ISO and shutter. Entering from shutter
// priority fixes the current auto-driven ISO, not a default.
func (c *Controller) ToggleLock() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.mode == ModeLocked {
		c.mode = ModeAuto
	} else {
		c.mode = ModeLocked
	}
	if err := c.applyLocked(); err != nil {
		return err
	}
	c.publishLocked()
	return nil
}

// SetISO applies an exact ISO. In shutter priority this pins ISO as an
// override without leaving the mode; in any other mode it switches to
// manual.
func (c *Controller) SetISO(iso float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.drv != nil {
		iso = c.drv.ExposureLimits().ClampISO(iso)
	}
	c.userISO = iso
	if c.mode == ModeShutterPriority {
		c.isoOverride = true
	} else {
		c.mode = ModeManual
	}
	if err := c.applyLocked(); err != nil {
		return err
	}
	c.publishLocked()
	return nil
}

// SetShutterDuration applies an exact shutter duration and switches to
// manual.
func (c *Controller) SetShutterDuration(d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.drv != nil {
		d = c.drv.ExposureLimits().ClampShutter(d)
	}
	c.userShutter = d
	c.mode = ModeManual
	if err := c.applyLocked(); err != nil {
		return err
	}
	c.publishLocked()
	return nil
}

// SetShutterAngle applies a shutter expressed as an angle of the current
// frame interval (180 = half the interval).
func (c *Controller) SetShutterAngle(degrees float64) error {
	c.mu.Lock()
	fps := c.frameRate
	c.mu.Unlock()
	if fps <= 0 {
		return fmt.Errorf("no active frame rate to derive shutter angle from")
	}
	if degrees <= 0 || degrees > 360 {
		return fmt.Errorf("shutter angle %.1f outside (0, 360]", degrees)
	}
	return c.SetShutterDuration(time.Duration(float64(time.Second) * degrees / 360 / fps))
}

// SetWhiteBalance fixes the white balance temperature and tint. Zero kelvin
// returns white balance to auto.
func (c *Controller) SetWhiteBalance(kelvin, tint float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.wbKelvin = kelvin
	c.tint = tint
	if c.drv != nil {
		if err := c.withConfigLock(func() error {
			return c.drv.SetWhiteBalance(kelvin, tint)
		}); err != nil {
			return err
		}
	}
	c.publishLocked()
	return nil
}

// SetBias applies an EV bias to auto exposure.
func (c *Controller) SetBias(ev float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.bias = ev
	if c.drv != nil {
		if err := c.withConfigLock(func() error {
			return c.drv.SetExposureBias(ev)
		}); err != nil {
			return err
		}
	}
	c.publishLocked()
	return nil
}

// SetFrameRate tells the controller the session's frame rate changed. In
// shutter priority the 180-degree duration is recomputed and reapplied
// without the user re-toggling the mode.
func (c *Controller) SetFrameRate(fps float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.frameRate = fps
	if c.mode != ModeShutterPriority {
		return nil
	}
	if err := c.applyLocked(); err != nil {
		return err
	}
	c.publishLocked()
	return nil
}

// HandleRecordingStarted locks exposure for the take when lock-during-
// recording is enabled.
func (c *Controller) HandleRecordingStarted() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.recording = true
	if !c.lockDuringRecording || c.mode == ModeLocked || c.mode == ModeManual {
		return
	}
	c.modeBeforeLock = c.mode
	c.mode = ModeLocked
	if err := c.applyLocked(); err != nil {
		c.logger.Warn("Failed to lock exposure at recording start", "error", err)
	}
	c.publishLocked()
}

// HandleRecordingStopped releases a recording lock.
func (c *Controller) HandleRecordingStopped() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.recording = false
	if !c.lockDuringRecording || c.modeBeforeLock == "" {
		return
	}
	if c.mode == ModeLocked {
		c.mode = c.modeBeforeLock
		if err := c.applyLocked(); err != nil {
			c.logger.Warn("Failed to restore exposure mode after recording", "error", err)
		}
		c.publishLocked()
	}
	c.modeBeforeLock = ""
}

// applyLocked drives the device to the current mode. Caller holds c.mu.
// No-op while detached; the mode is applied on the next Attach.
func (c *Controller) applyLocked() error {
	if c.drv == nil {
		return nil
	}
	return c.withConfigLock(func() error {
		switch c.mode {
		case ModeAuto:
			return c.drv.SetExposure(0, 0)
		case ModeManual:
			return c.drv.SetExposure(c.userISO, c.userShutter)
		case ModeShutterPriority:
			iso := 0.0
			if c.isoOverride {
				iso = c.userISO
			}
			if c.frameRate <= 0 {
				return fmt.Errorf("shutter priority requires a frame rate")
			}
			return c.drv.SetExposure(iso, ShutterFor180(c.frameRate))
		case ModeLocked:
			r := c.drv.CurrentExposure()
			return c.drv.SetExposure(r.ISO, r.Shutter)
		}
		return nil
	})
}

// withConfigLock brackets a device mutation with the configuration lock.
// Caller holds c.mu and has checked c.drv.
func (c *Controller) withConfigLock(fn func() error) error {
	if err := c.drv.LockConfiguration(); err != nil {
		return fmt.Errorf("acquire device configuration: %w", err)
	}
	defer c.drv.UnlockConfiguration()
	return fn()
}

// relayReading forwards device-driven exposure updates outward, suppressing
// changes within the relay tolerance so sensor jitter does not churn the
// UI. Runs on the driver's observer goroutine.
func (c *Controller) relayReading(r device.Reading) {
	c.mu.Lock()
	tolerance := manualRelayTolerance
	if c.mode == ModeAuto {
		tolerance = autoRelayTolerance
	}
	isoDelta := r.ISO - c.lastRelayedISO
	wbDelta := r.WhiteBalanceK - c.lastRelayedWB
	if isoDelta < 0 {
		isoDelta = -isoDelta
	}
	if wbDelta < 0 {
		wbDelta = -wbDelta
	}
	if isoDelta <= tolerance && wbDelta <= tolerance {
		c.mu.Unlock()
		return
	}
	c.lastRelayedISO = r.ISO
	c.lastRelayedWB = r.WhiteBalanceK
	ev := events.ExposureChangedEvent{
		Mode:           string(c.mode),
		ISO:            r.ISO,
		ShutterSeconds: r.Shutter.Seconds(),
		WhiteBalanceK:  r.WhiteBalanceK,
		Tint:           r.Tint,
		Bias:           c.bias,
	}
	c.mu.Unlock()

	c.bus.Publish(ev)
}

// publishLocked emits the current state outward. Caller holds c.mu.
// Publishing under the lock only enqueues into the dispatcher, and it keeps
// subscribers seeing state changes in the order they happened.
func (c *Controller) publishLocked() {
	s := c.snapshotLocked()
	c.bus.Publish(events.ExposureChangedEvent{
		Mode:           string(s.Mode),
		ISO:            s.ISO,
		ShutterSeconds: s.Shutter.Seconds(),
		WhiteBalanceK:  s.WhiteBalanceK,
		Tint:           s.Tint,
		Bias:           s.Bias,
	})
}
