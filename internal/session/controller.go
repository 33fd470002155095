// Package session orchestrates the capture session: device lifecycle,
// format negotiation, lens switching, frame delivery and the interplay
// between exposure, orientation and recording.
//
// All control operations are serialized through a single run loop. Requests
// queue FIFO; interruptions preempt the queue and are handled before the
// next request is taken.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/smazurov/cinecam/internal/device"
	"github.com/smazurov/cinecam/internal/encoder"
	"github.com/smazurov/cinecam/internal/events"
	"github.com/smazurov/cinecam/internal/exposure"
	"github.com/smazurov/cinecam/internal/format"
	"github.com/smazurov/cinecam/internal/metrics"
	"github.com/smazurov/cinecam/internal/orientation"
	"github.com/smazurov/cinecam/internal/preview"
	"github.com/smazurov/cinecam/internal/recording"
)

// Config is the capture configuration the session tries to run.
type Config struct {
	Width      int
	Height     int
	FrameRate  float64
	ColorSpace device.ColorSpace
}

func (c Config) request() format.Request {
	return format.Request{Width: c.Width, Height: c.Height, FrameRate: c.FrameRate, ColorSpace: c.ColorSpace}
}

// RecordOptions selects the encode settings for one take.
type RecordOptions struct {
	Profile      encoder.Profile
	BitrateMbps  int
	AudioEnabled bool
}

// request is one serialized control operation.
type request struct {
	name  string
	fn    func() error
	reply chan error
}

// interrupt is a priority signal that preempts queued requests.
type interrupt struct {
	kind   string // "begin", "end", "runtime"
	reason string
}

// Controller runs the capture session.
type Controller struct {
	catalog  *device.Catalog
	open     device.OpenFunc
	bus      *events.Bus
	exposure *exposure.Controller
	orient   *orientation.Resolver
	pipeline *recording.Pipeline
	preview  preview.Sink
	metrics  *metrics.Metrics
	logger   *slog.Logger

	requests   chan request
	interrupts chan interrupt
	done       chan struct{}
	loopWG     sync.WaitGroup

	// Run-loop-owned state. Touched only from run().
	running     bool
	interrupted bool
	wantRunning bool
	failed      bool
	cfg         Config
	drv         device.Driver
	streamCfg   device.StreamConfig
	zoomFactor  float64

	stopDelivery chan struct{}
	deliveryWG   sync.WaitGroup

	// Observable state for status queries, guarded by stateMu.
	stateMu     sync.Mutex
	statusLens  string
	statusZoom  float64
	statusState string
	statusCfg   Config
}

// NewController wires the session against its collaborators. Call Run to
// start the control loop.
func NewController(
	catalog *device.Catalog,
	open device.OpenFunc,
	bus *events.Bus,
	exp *exposure.Controller,
	orient *orientation.Resolver,
	pipeline *recording.Pipeline,
	previewSink preview.Sink,
	m *metrics.Metrics,
	logger *slog.Logger,
	cfg Config,
) *Controller {
	return &Controller{
		catalog:     catalog,
		open:        open,
		bus:         bus,
		exposure:    exp,
		orient:      orient,
		pipeline:    pipeline,
		preview:     previewSink,
		metrics:     m,
		logger:      logger,
		cfg:         cfg,
		zoomFactor:  1.0,
		requests:    make(chan request, 16),
		interrupts:  make(chan interrupt, 2),
		done:        make(chan struct{}),
		statusState: "stopped",
	}
}

// Run starts the control loop. It returns immediately; Shutdown stops the
// loop.
func (c *Controller) Run() {
	c.loopWG.Add(1)
	go c.run()
}

// Shutdown stops the session and the control loop.
func (c *Controller) Shutdown(ctx context.Context) error {
	err := c.do("shutdown", func() error {
		c.stopLocked("shutdown")
		return nil
	})
	close(c.done)
	c.loopWG.Wait()
	return err
}

func (c *Controller) run() {
	defer c.loopWG.Done()
	for {
		// Interruptions preempt everything queued.
		select {
		case it := <-c.interrupts:
			c.handleInterrupt(it)
			continue
		default:
		}
		select {
		case it := <-c.interrupts:
			c.handleInterrupt(it)
		case req := <-c.requests:
			req.reply <- req.fn()
		case <-c.done:
			return
		}
	}
}

// do enqueues fn and waits for the loop to execute it.
func (c *Controller) do(name string, fn func() error) error {
	req := request{name: name, fn: fn, reply: make(chan error, 1)}
	select {
	case c.requests <- req:
	case <-c.done:
		return newError(KindNotRunning, "session control loop stopped", nil)
	}
	select {
	case err := <-req.reply:
		return err
	case <-c.done:
		return newError(KindNotRunning, "session control loop stopped", nil)
	}
}

// Start brings the session up on the default camera with the configured
// format. Starting a running session is a no-op.
func (c *Controller) Start() error {
	return c.do("start", func() error {
		if c.running {
			return nil
		}
		c.wantRunning = true
		c.failed = false
		dev, err := c.catalog.Default()
		if err != nil {
			return c.fail(KindDeviceUnavailable, "no capture devices", err)
		}
		return c.startOn(dev)
	})
}

// Stop tears the session down.
func (c *Controller) Stop() error {
	return c.do("stop", func() error {
		c.wantRunning = false
		c.stopLocked("requested")
		return nil
	})
}

// Running reports whether frames are being delivered.
func (c *Controller) Running() bool {
	running := false
	_ = c.do("running", func() error {
		running = c.running
		return nil
	})
	return running
}

// SetConfig applies a new capture format as a reconfiguration transaction.
func (c *Controller) SetConfig(cfg Config) error {
	return c.do("setConfig", func() error {
		if c.pipeline.Active() {
			return newError(KindConfigurationFailed, "configuration is locked while recording", nil)
		}
		if c.running {
			// Validate before touching the stream so a bad request
			// rejects cleanly instead of killing the session.
			if _, err := format.Negotiate(c.drv.Device(), cfg.request()); err != nil {
				return newError(KindConfigurationFailed, "format negotiation", err)
			}
		}
		prev := c.cfg
		c.cfg = cfg
		if !c.running {
			return nil
		}
		if err := c.reconfigure(c.drv.Device()); err != nil {
			// A fallback rescue streams the new format on the default
			// camera; the target stays as requested. Only a dead session
			// rolls back.
			if !c.running {
				c.cfg = prev
			}
			return err
		}
		if err := c.exposure.SetFrameRate(c.streamCfg.FrameRate); err != nil {
			c.logger.Warn("Failed to update exposure frame rate", "error", err)
		}
		return nil
	})
}

// SetColorSpace switches the capture color space. Fails closed when the
// active format cannot carry the requested space.
func (c *Controller) SetColorSpace(cs device.ColorSpace) error {
	return c.do("setColorSpace", func() error {
		if c.pipeline.Active() {
			return newError(KindConfigurationFailed, "configuration is locked while recording", nil)
		}
		if c.running {
			req := c.cfg.request()
			req.ColorSpace = cs
			if _, err := format.Negotiate(c.drv.Device(), req); err != nil {
				return newError(KindConfigurationFailed, "color space negotiation", err)
			}
		}
		prev := c.cfg.ColorSpace
		c.cfg.ColorSpace = cs
		if !c.running {
			return nil
		}
		if err := c.reconfigure(c.drv.Device()); err != nil {
			if !c.running {
				c.cfg.ColorSpace = prev
			}
			return err
		}
		return nil
	})
}

// Config returns the session's target configuration.
func (c *Controller) Config() Config {
	var cfg Config
	_ = c.do("config", func() error {
		cfg = c.cfg
		return nil
	})
	return cfg
}

// HandleInterruption suspends the session with the given reason. Delivery
// stops, an in-flight recording is finalized, and the session stays
// suspended until HandleInterruptionEnded.
func (c *Controller) HandleInterruption(reason string) {
	select {
	case c.interrupts <- interrupt{kind: "begin", reason: reason}:
	default:
	}
}

// HandleInterruptionEnded resumes a suspended session.
func (c *Controller) HandleInterruptionEnded() {
	select {
	case c.interrupts <- interrupt{kind: "end"}:
	default:
	}
}

// SetActive is the explicit foreground signal. After a runtime failure the
// session does not restart on its own; only this signal brings it back.
func (c *Controller) SetActive(active bool) error {
	return c.do("setActive", func() error {
		if !active {
			c.stopLocked("background")
			return nil
		}
		c.wantRunning = true
		c.failed = false
		if c.running {
			return nil
		}
		dev, err := c.catalog.Default()
		if err != nil {
			return c.fail(KindDeviceUnavailable, "no capture devices", err)
		}
		return c.startOn(dev)
	})
}

// handleInterrupt processes a priority signal on the run loop.
func (c *Controller) handleInterrupt(it interrupt) {
	switch it.kind {
	case "begin":
		if !c.running {
			return
		}
		c.logger.Warn("Session interrupted", "reason", it.reason)
		c.suspend()
		c.publishState("interrupted", it.reason)
		c.bus.Publish(events.ErrorEvent{Kind: string(KindSessionInterrupted), Message: it.reason})
	case "end":
		if c.running || !c.interrupted || !c.wantRunning {
			c.interrupted = false
			return
		}
		c.interrupted = false
		dev, err := c.catalog.Default()
		if err != nil {
			_ = c.fail(KindDeviceUnavailable, "no capture devices", err)
			return
		}
		if err := c.startOn(dev); err != nil {
			c.logger.Error("Failed to resume after interruption", "error", err)
		}
	case "runtime":
		if !c.running {
			return
		}
		c.logger.Error("Capture stopped unexpectedly", "reason", it.reason)
		c.suspend()
		c.interrupted = false
		// No automatic restart: the next explicit active signal decides.
		c.wantRunning = false
		c.publishState("failed", it.reason)
		c.bus.Publish(events.ErrorEvent{Kind: string(KindDeviceUnavailable), Message: it.reason})
	}
}

// suspend stops delivery and releases the device, finalizing any recording.
// Exposure observers detach before any device teardown.
func (c *Controller) suspend() {
	c.exposure.Detach()
	if c.pipeline.Active() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if _, err := c.pipeline.Stop(ctx); err != nil {
			c.logger.Error("Recording finalization during suspend failed", "error", err)
		}
		cancel()
		c.orient.Unfreeze()
		c.exposure.HandleRecordingStopped()
	}
	c.stopDeliveryLoop()
	if c.drv != nil {
		if err := c.drv.StopStreaming(); err != nil {
			c.logger.Warn("Failed to stop streaming", "error", err)
		}
		c.drv.Close()
		c.drv = nil
	}
	c.running = false
	c.interrupted = true
	c.metrics.SessionRunning.Set(0)
}

// stopLocked is suspend plus a clean state announcement.
func (c *Controller) stopLocked(reason string) {
	if !c.running {
		c.interrupted = false
		return
	}
	c.suspend()
	c.interrupted = false
	c.publishState("stopped", reason)
	c.logger.Info("Session stopped", "reason", reason)
}

// startOn runs the full bring-up transaction on dev. On negotiation or
// configuration failure it falls back to the default camera exactly once;
// a second failure is terminal until the next explicit start.
func (c *Controller) startOn(dev device.Device) error {
	err := c.configureAndStream(dev)
	if err == nil {
		c.afterStart(dev)
		return nil
	}

	fallback, derr := c.catalog.Default()
	if derr == nil && fallback.ID != dev.ID {
		c.logger.Warn("Falling back to default camera", "failed_device", dev.ID, "error", err)
		c.metrics.Reconfigurations.WithLabelValues("fallback").Inc()
		if ferr := c.configureAndStream(fallback); ferr == nil {
			c.afterStart(fallback)
			return nil
		}
	}

	c.metrics.Reconfigurations.WithLabelValues("failed").Inc()
	return c.fail(KindConfigurationFailed, fmt.Sprintf("cannot configure %s", dev.ID), err)
}

// configureAndStream opens, negotiates, configures and starts streaming on
// dev, then attaches exposure and the delivery loop. Any error leaves the
// session fully torn down.
func (c *Controller) configureAndStream(dev device.Device) error {
	c.exposure.Detach()
	c.stopDeliveryLoop()
	if c.drv != nil {
		_ = c.drv.StopStreaming()
		if c.drv.Device().ID != dev.ID {
			c.drv.Close()
			c.drv = nil
		}
	}

	if c.drv == nil {
		drv, err := c.open(dev)
		if err != nil {
			return newError(KindDeviceUnavailable, fmt.Sprintf("open %s", dev.ID), err)
		}
		c.drv = drv
	}

	f, err := format.Negotiate(dev, c.cfg.request())
	if err != nil {
		c.teardownDriver()
		return newError(KindConfigurationFailed, "format negotiation", err)
	}

	cfg := device.StreamConfig{Format: f, ColorSpace: c.cfg.ColorSpace, FrameRate: c.cfg.FrameRate}
	if err := c.drv.Configure(cfg); err != nil {
		c.teardownDriver()
		return newError(KindConfigurationFailed, "device configure", err)
	}

	frames, err := c.drv.StartStreaming()
	if err != nil {
		c.teardownDriver()
		return newError(KindDeviceUnavailable, "start streaming", err)
	}
	c.streamCfg = cfg

	if err := c.exposure.Attach(c.drv, cfg.FrameRate); err != nil {
		c.logger.Warn("Failed to restore exposure state", "error", err)
	}

	c.stopDelivery = make(chan struct{})
	c.deliveryWG.Add(1)
	go c.deliver(frames, c.stopDelivery)
	return nil
}

func (c *Controller) teardownDriver() {
	if c.drv != nil {
		c.drv.Close()
		c.drv = nil
	}
}

// afterStart records the new running state and announces it.
func (c *Controller) afterStart(dev device.Device) {
	c.running = true
	c.interrupted = false
	c.failed = false
	c.metrics.SessionRunning.Set(1)
	c.setStatus(string(dev.Position), c.zoomFactor, "running")
	c.publishState("running", "")
	c.bus.Publish(events.LensChangedEvent{
		Lens:       string(dev.Position),
		DeviceID:   dev.ID,
		NativeZoom: dev.NativeZoom,
	})
	c.logger.Info("Session running", "device", dev.ID,
		"format", fmt.Sprintf("%dx%d@%g", c.streamCfg.Format.Width, c.streamCfg.Format.Height, c.streamCfg.FrameRate),
		"color_space", c.streamCfg.ColorSpace)
}

// reconfigure re-runs the configuration transaction on dev with the current
// target config, with the single-fallback rule.
func (c *Controller) reconfigure(dev device.Device) error {
	err := c.configureAndStream(dev)
	if err == nil {
		c.metrics.Reconfigurations.WithLabelValues("ok").Inc()
		c.afterStart(dev)
		return nil
	}

	fallback, derr := c.catalog.Default()
	if derr == nil && fallback.ID != dev.ID {
		c.logger.Warn("Reconfiguration failed, falling back to default camera", "device", dev.ID, "error", err)
		c.metrics.Reconfigurations.WithLabelValues("fallback").Inc()
		if ferr := c.configureAndStream(fallback); ferr == nil {
			c.afterStart(fallback)
			return err
		}
	}

	c.metrics.Reconfigurations.WithLabelValues("failed").Inc()
	ret := c.fail(KindConfigurationFailed, fmt.Sprintf("reconfigure %s", dev.ID), err)
	return ret
}

// fail marks the session terminally failed until the next explicit start.
func (c *Controller) fail(kind ErrorKind, msg string, cause error) error {
	c.suspend()
	c.interrupted = false
	c.failed = true
	c.wantRunning = false
	err := newError(kind, msg, cause)
	c.publishState("failed", err.Error())
	c.bus.Publish(events.ErrorEvent{Kind: string(kind), Message: err.Error()})
	c.logger.Error("Session failed", "kind", kind, "error", cause)
	return err
}

func (c *Controller) stopDeliveryLoop() {
	if c.stopDelivery != nil {
		close(c.stopDelivery)
		c.deliveryWG.Wait()
		c.stopDelivery = nil
	}
}

// deliver fans frames out to preview and recording. Runs until the stop
// signal or until the device stops producing.
func (c *Controller) deliver(frames <-chan *device.Frame, stop chan struct{}) {
	defer c.deliveryWG.Done()
	for {
		select {
		case <-stop:
			// Drain anything the producer already queued.
			for {
				select {
				case f, ok := <-frames:
					if ok {
						f.Release()
						continue
					}
				default:
				}
				return
			}
		case f, ok := <-frames:
			if !ok {
				// The device stopped on its own. Report as a runtime
				// failure; the loop decides what happens next.
				select {
				case c.interrupts <- interrupt{kind: "runtime", reason: "capture stream ended"}:
				default:
				}
				return
			}
			c.metrics.FramesDelivered.Inc()
			c.preview.FrameAvailable(f)
			c.pipeline.HandleFrame(f)
			f.Release()
		}
	}
}

func (c *Controller) publishState(status, reason string) {
	c.setStatusState(status)
	c.bus.Publish(events.SessionStateEvent{Running: status == "running", Status: status, Reason: reason})
}

func (c *Controller) setStatus(lens string, zoom float64, state string) {
	c.stateMu.Lock()
	c.statusLens = lens
	c.statusZoom = zoom
	c.statusState = state
	c.statusCfg = c.cfg
	c.stateMu.Unlock()
}

func (c *Controller) setStatusState(state string) {
	c.stateMu.Lock()
	c.statusState = state
	c.stateMu.Unlock()
}

// Status is a lock-free snapshot for the HTTP status endpoint.
type Status struct {
	State      string  `json:"state"`
	Lens       string  `json:"lens"`
	Zoom       float64 `json:"zoom"`
	Recording  bool    `json:"recording"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	FrameRate  float64 `json:"frameRate"`
	ColorSpace string  `json:"colorSpace"`
}

// StatusSnapshot returns the observable session state without entering the
// run loop, so it stays responsive during long transactions.
func (c *Controller) StatusSnapshot() Status {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return Status{
		State:      c.statusState,
		Lens:       c.statusLens,
		Zoom:       c.statusZoom,
		Recording:  c.pipeline.Active(),
		Width:      c.statusCfg.Width,
		Height:     c.statusCfg.Height,
		FrameRate:  c.statusCfg.FrameRate,
		ColorSpace: string(c.statusCfg.ColorSpace),
	}
}
