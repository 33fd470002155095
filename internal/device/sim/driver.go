// Package sim implements a synthetic camera backend. It generates test
// pattern frames at the configured rate and models enough exposure behavior
// (auto ISO drift, white balance wander, zoom ramps) to exercise the whole
// session stack without hardware. Used by `cinecam record --sim` and by the
// session and exposure tests.
package sim

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/smazurov/cinecam/internal/device"
)

// Option configures a Driver.
type Option func(*Driver)

// WithErrorHook installs a hook consulted before every named operation.
// Returning a non-nil error fails that operation; used to script hardware
// failures in tests.
func WithErrorHook(hook func(op string) error) Option {
	return func(d *Driver) { d.errHook = hook }
}

// WithClock substitutes the frame pacing interval, decoupling tests from the
// configured frame rate.
func WithClock(interval time.Duration) Option {
	return func(d *Driver) { d.fixedInterval = interval }
}

// Driver is a synthetic implementation of device.Driver.
type Driver struct {
	dev     device.Device
	errHook func(op string) error

	fixedInterval time.Duration

	mu        sync.Mutex
	closed    bool
	streaming bool
	cfg       device.StreamConfig
	zoom      float64
	bias      float64
	iso       float64
	shutter   time.Duration
	wbKelvin  float64
	tint      float64
	autoISO   bool
	autoShut  bool
	autoWB    bool

	configLock chan struct{}

	observers    map[int]func(device.Reading)
	nextObserver int

	frames     chan *device.Frame
	stopStream chan struct{}
	streamWG   sync.WaitGroup
	pool       *device.BufferPool

	rampMu     sync.Mutex
	rampCancel chan struct{}

	dropped uint64
}

// Open opens a simulated driver for dev.
func Open(dev device.Device, opts ...Option) (*Driver, error) {
	if len(dev.Formats) == 0 {
		return nil, fmt.Errorf("sim: device %s has no formats", dev.ID)
	}
	d := &Driver{
		dev:        dev,
		zoom:       1.0,
		iso:        100,
		shutter:    time.Second / 60,
		wbKelvin:   5600,
		autoISO:    true,
		autoShut:   true,
		autoWB:     true,
		configLock: make(chan struct{}, 1),
		observers:  make(map[int]func(device.Reading)),
		cfg: device.StreamConfig{
			Format:     dev.Formats[0],
			ColorSpace: device.ColorSpaceRec709,
			FrameRate:  dev.Formats[0].MaxFrameRate(),
		},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Opener returns a device.OpenFunc that opens simulated drivers.
func Opener(opts ...Option) device.OpenFunc {
	return func(dev device.Device) (device.Driver, error) {
		return Open(dev, opts...)
	}
}

func (d *Driver) fail(op string) error {
	if d.errHook == nil {
		return nil
	}
	return d.errHook(op)
}

// Device implements device.Driver.
func (d *Driver) Device() device.Device { return d.dev }

// Close implements device.Driver.
func (d *Driver) Close() error {
	_ = d.StopStreaming()
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// Configure implements device.Driver. Streaming must be stopped.
func (d *Driver) Configure(cfg device.StreamConfig) error {
	if err := d.fail("configure"); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return device.ErrDeviceClosed
	}
	if d.streaming {
		return device.ErrAlreadyStreaming
	}
	if !cfg.Format.SupportsRate(cfg.FrameRate) {
		return fmt.Errorf("sim: format %dx%d does not support %.3g fps",
			cfg.Format.Width, cfg.Format.Height, cfg.FrameRate)
	}
	d.cfg = cfg
	d.pool = device.NewBufferPool(device.FrameBytes(cfg.Format.Width, cfg.Format.Height))
	return nil
}

// StartStreaming implements device.Driver.
func (d *Driver) StartStreaming() (<-chan *device.Frame, error) {
	if err := d.fail("start"); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, device.ErrDeviceClosed
	}
	if d.streaming {
		return nil, device.ErrAlreadyStreaming
	}
	if d.pool == nil {
		d.pool = device.NewBufferPool(device.FrameBytes(d.cfg.Format.Width, d.cfg.Format.Height))
	}

	d.frames = make(chan *device.Frame, 4)
	d.stopStream = make(chan struct{})
	d.streaming = true

	d.streamWG.Add(1)
	go d.streamLoop(d.frames, d.stopStream)

	return d.frames, nil
}

// StopStreaming implements device.Driver.
func (d *Driver) StopStreaming() error {
	d.mu.Lock()
	if !d.streaming {
		d.mu.Unlock()
		return nil
	}
	stop := d.stopStream
	d.streaming = false
	d.mu.Unlock()

	close(stop)
	d.streamWG.Wait()
	return nil
}

// LockConfiguration implements device.Driver.
func (d *Driver) LockConfiguration() error {
	if err := d.fail("lock"); err != nil {
		return err
	}
	select {
	case d.configLock <- struct{}{}:
		return nil
	default:
		return device.ErrConfigLocked
	}
}

// UnlockConfiguration implements device.Driver.
func (d *Driver) UnlockConfiguration() {
	select {
	case <-d.configLock:
	default:
	}
}

// SetZoom implements device.Driver.
func (d *Driver) SetZoom(factor float64) error {
	if err := d.fail("zoom"); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if factor < d.dev.MinZoom || factor > d.dev.MaxZoom {
		return fmt.Errorf("sim: zoom %.2f outside [%.2f, %.2f]", factor, d.dev.MinZoom, d.dev.MaxZoom)
	}
	d.zoom = factor
	return nil
}

// RampZoom implements device.Driver. The ramp runs on its own goroutine;
// a new ramp cancels the previous one.
func (d *Driver) RampZoom(target, rate float64) error {
	if err := d.fail("zoom"); err != nil {
		return err
	}
	if rate <= 0 {
		return fmt.Errorf("sim: ramp rate must be positive")
	}
	target = math.Max(d.dev.MinZoom, math.Min(d.dev.MaxZoom, target))

	d.rampMu.Lock()
	if d.rampCancel != nil {
		close(d.rampCancel)
	}
	cancel := make(chan struct{})
	d.rampCancel = cancel
	d.rampMu.Unlock()

	go d.ramp(target, rate, cancel)
	return nil
}

func (d *Driver) ramp(target, rate float64, cancel chan struct{}) {
	const step = 10 * time.Millisecond
	ticker := time.NewTicker(step)
	defer ticker.Stop()

	for {
		select {
		case <-cancel:
			return
		case <-ticker.C:
			d.mu.Lock()
			delta := rate * step.Seconds()
			switch {
			case math.Abs(target-d.zoom) <= delta:
				d.zoom = target
				d.mu.Unlock()
				return
			case target > d.zoom:
				d.zoom += delta
			default:
				d.zoom -= delta
			}
			d.mu.Unlock()
		}
	}
}

// Zoom implements device.Driver.
func (d *Driver) Zoom() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.zoom
}

// SetExposure implements device.Driver.
func (d *Driver) SetExposure(iso float64, shutter time.Duration) error {
	if err := d.fail("exposure"); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	limits := d.limitsLocked()
	d.autoISO = iso == 0
	d.autoShut = shutter == 0
	if iso != 0 {
		d.iso = limits.ClampISO(iso)
	}
	if shutter != 0 {
		d.shutter = limits.ClampShutter(shutter)
	}
	return nil
}

// SetWhiteBalance implements device.Driver.
func (d *Driver) SetWhiteBalance(kelvin, tint float64) error {
	if err := d.fail("whitebalance"); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.autoWB = kelvin == 0 && tint == 0
	if kelvin != 0 {
		d.wbKelvin = kelvin
	}
	d.tint = tint
	return nil
}

// SetExposureBias implements device.Driver.
func (d *Driver) SetExposureBias(ev float64) error {
	if err := d.fail("bias"); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.bias = ev
	return nil
}

// ExposureLimits implements device.Driver.
func (d *Driver) ExposureLimits() device.ExposureLimits {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.limitsLocked()
}

func (d *Driver) limitsLocked() device.ExposureLimits {
	return device.ExposureLimits{
		MinISO:     50,
		MaxISO:     12800,
		MinShutter: time.Second / 8000,
		MaxShutter: time.Second,
	}
}

// CurrentExposure implements device.Driver.
func (d *Driver) CurrentExposure() device.Reading {
	d.mu.Lock()
	defer d.mu.Unlock()
	return device.Reading{ISO: d.iso, Shutter: d.shutter, WhiteBalanceK: d.wbKelvin, Tint: d.tint}
}

// ObserveExposure implements device.Driver.
func (d *Driver) ObserveExposure(fn func(device.Reading)) func() {
	d.mu.Lock()
	id := d.nextObserver
	d.nextObserver++
	d.observers[id] = fn
	d.mu.Unlock()

	return func() {
		d.mu.Lock()
		delete(d.observers, id)
		d.mu.Unlock()
	}
}

// Dropped returns the number of frames dropped because the consumer was
// slow. Test hook.
func (d *Driver) Dropped() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dropped
}

// streamLoop paces frame generation and auto exposure simulation.
func (d *Driver) streamLoop(frames chan *device.Frame, stop chan struct{}) {
	defer d.streamWG.Done()
	defer close(frames)

	d.mu.Lock()
	interval := d.fixedInterval
	if interval == 0 {
		interval = time.Duration(float64(time.Second) / d.cfg.FrameRate)
	}
	d.mu.Unlock()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	start := time.Now()
	seq := 0
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			d.simulateExposure(seq)
			frame := d.makeFrame(seq, time.Since(start))
			select {
			case frames <- frame:
			default:
				// Consumer is behind: drop, never block the sensor.
				frame.Release()
				d.mu.Lock()
				d.dropped++
				d.mu.Unlock()
			}
			seq++
		}
	}
}

// simulateExposure drifts auto-driven values and notifies observers.
func (d *Driver) simulateExposure(seq int) {
	d.mu.Lock()
	if d.autoISO {
		// Slow sinusoidal drift with a little jitter, like a sensor
		// hunting around a scene.
		d.iso = 400 + 200*math.Sin(float64(seq)/48) + float64(seq%3)
	}
	if d.autoShut {
		d.shutter = time.Duration(float64(time.Second) / (2 * d.cfg.FrameRate))
	}
	if d.autoWB {
		d.wbKelvin = 5600 + 150*math.Sin(float64(seq)/90) + float64(seq%2)
	}
	reading := device.Reading{ISO: d.iso, Shutter: d.shutter, WhiteBalanceK: d.wbKelvin, Tint: d.tint}
	observers := make([]func(device.Reading), 0, len(d.observers))
	for _, fn := range d.observers {
		observers = append(observers, fn)
	}
	d.mu.Unlock()

	for _, fn := range observers {
		fn(reading)
	}
}

// makeFrame renders a moving gradient test pattern. Brightness tracks ISO so
// exposure changes are visible in the preview.
func (d *Driver) makeFrame(seq int, pts time.Duration) *device.Frame {
	d.mu.Lock()
	w, h := d.cfg.Format.Width, d.cfg.Format.Height
	brightness := byte(math.Min(255, d.iso/16))
	pool := d.pool
	d.mu.Unlock()

	buf := pool.Get()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := (y*w + x) * 4
			buf[i] = byte((x + seq) % 256)
			buf[i+1] = byte((y + seq) % 256)
			buf[i+2] = brightness
			buf[i+3] = 0xFF
		}
	}
	return device.NewFrame(buf, w, h, pts, pool)
}
