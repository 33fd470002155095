package exposure

import (
	"log/slog"
	"testing"
	"time"

	"github.com/smazurov/cinecam/internal/device"
	"github.com/smazurov/cinecam/internal/device/sim"
	"github.com/smazurov/cinecam/internal/events"
)

func testController(t *testing.T, opts ...Option) (*Controller, *sim.Driver) {
	t.Helper()
	dev := device.Device{
		ID:       "sim-wide",
		Position: device.PositionWide,
		MinZoom:  1, MaxZoom: 4, NativeZoom: 1,
		Formats: []device.Format{{
			Width: 64, Height: 48,
			FrameRates:  []device.FrameRateRange{{Min: 1, Max: 60}},
			ColorSpaces: []device.ColorSpace{device.ColorSpaceRec709},
		}},
	}
	drv, err := sim.Open(dev)
	if err != nil {
		t.Fatalf("sim.Open: %v", err)
	}
	t.Cleanup(func() { drv.Close() })

	c := NewController(events.New(), slog.Default(), opts...)
	return c, drv
}

func TestDefaultModeIsAuto(t *testing.T) {
	c, _ := testController(t)
	if c.Mode() != ModeAuto {
		t.Errorf("Mode() = %v, want auto", c.Mode())
	}
}

func TestShutterFor180(t *testing.T) {
	tests := []struct {
		fps  float64
		want time.Duration
	}{
		{24, time.Second / 48},
		{30, time.Second / 60},
		{60, time.Second / 120},
	}
	for _, tt := range tests {
		if got := ShutterFor180(tt.fps); got != tt.want {
			t.Errorf("ShutterFor180(%g) = %v, want %v", tt.fps, got, tt.want)
		}
	}
}

func TestShutterPriorityApplies180Degrees(t *testing.T) {
	c, drv := testController(t)
	if err := c.Attach(drv, 24); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if err := c.SetMode(ModeShutterPriority); err != nil {
		t.Fatalf("SetMode: %v", err)
	}
	if got := drv.CurrentExposure().Shutter; got != time.Second/48 {
		t.Errorf("shutter = %v, want 1/48s", got)
	}
}

func TestShutterPriorityRecomputesOnFrameRateChange(t *testing.T) {
	c, drv := testController(t)
	if err := c.Attach(drv, 24); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if err := c.SetMode(ModeShutterPriority); err != nil {
		t.Fatalf("SetMode: %v", err)
	}
	if err := c.SetFrameRate(60); err != nil {
		t.Fatalf("SetFrameRate: %v", err)
	}
	if got := drv.CurrentExposure().Shutter; got != time.Second/120 {
		t.Errorf("shutter after rate change = %v, want 1/120s", got)
	}
}

func TestISOInShutterPriorityIsAnOverride(t *testing.T) {
	c, drv := testController(t)
	if err := c.Attach(drv, 30); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if err := c.SetMode(ModeShutterPriority); err != nil {
		t.Fatalf("SetMode: %v", err)
	}
	if err := c.SetISO(800); err != nil {
		t.Fatalf("SetISO: %v", err)
	}
	if c.Mode() != ModeShutterPriority {
		t.Errorf("Mode() = %v, pinning ISO must not leave shutter priority", c.Mode())
	}
	if !c.Snapshot().ISOOverride {
		t.Error("ISOOverride not set")
	}
	r := drv.CurrentExposure()
	if r.ISO != 800 {
		t.Errorf("ISO = %g, want 800", r.ISO)
	}
	if r.Shutter != time.Second/60 {
		t.Errorf("shutter = %v, want 1/60s (still 180 degrees)", r.Shutter)
	}
}

func TestSetISOOutsideShutterPrioritySwitchesToManual(t *testing.T) {
	c, drv := testController(t)
	if err := c.Attach(drv, 30); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if err := c.SetISO(1600); err != nil {
		t.Fatalf("SetISO: %v", err)
	}
	if c.Mode() != ModeManual {
		t.Errorf("Mode() = %v, want manual", c.Mode())
	}
}

func TestToggleShutterPriorityRestoresPreviousMode(t *testing.T) {
	c, drv := testController(t)
	if err := c.Attach(drv, 30); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if err := c.SetISO(400); err != nil {
		t.Fatalf("SetISO: %v", err)
	}
	if err := c.ToggleShutterPriority(); err != nil {
		t.Fatalf("toggle on: %v", err)
	}
	if c.Mode() != ModeShutterPriority {
		t.Fatalf("Mode() = %v, want shutterPriority", c.Mode())
	}
	if err := c.ToggleShutterPriority(); err != nil {
		t.Fatalf("toggle off: %v", err)
	}
	if c.Mode() != ModeManual {
		t.Errorf("Mode() after toggle off = %v, want the mode active before", c.Mode())
	}
}

func TestToggleLockFreezesCurrentValues(t *testing.T) {
	c, drv := testController(t)
	if err := c.Attach(drv, 30); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	before := drv.CurrentExposure()
	if err := c.ToggleLock(); err != nil {
		t.Fatalf("ToggleLock: %v", err)
	}
	if c.Mode() != ModeLocked {
		t.Fatalf("Mode() = %v, want locked", c.Mode())
	}
	after := drv.CurrentExposure()
	if after.ISO != before.ISO || after.Shutter != before.Shutter {
		t.Errorf("lock changed values: %+v -> %+v", before, after)
	}
	if err := c.ToggleLock(); err != nil {
		t.Fatalf("ToggleLock release: %v", err)
	}
	if c.Mode() != ModeAuto {
		t.Errorf("Mode() after release = %v, want auto", c.Mode())
	}
}

func TestShutterAngle(t *testing.T) {
	c, drv := testController(t)
	if err := c.Attach(drv, 24); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if err := c.SetShutterAngle(180); err != nil {
		t.Fatalf("SetShutterAngle: %v", err)
	}
	if got := drv.CurrentExposure().Shutter; got != time.Second/48 {
		t.Errorf("shutter = %v, want 1/48s", got)
	}
	if err := c.SetShutterAngle(400); err == nil {
		t.Error("angle above 360 accepted")
	}
}

func TestRecordingLockRoundTrip(t *testing.T) {
	c, drv := testController(t)
	c.SetLockDuringRecording(true)
	if err := c.Attach(drv, 30); err != nil {
		t.Fatalf("Attach: %v", err)
	}

	c.HandleRecordingStarted()
	if c.Mode() != ModeLocked {
		t.Fatalf("Mode() during recording = %v, want locked", c.Mode())
	}
	c.HandleRecordingStopped()
	if c.Mode() != ModeAuto {
		t.Errorf("Mode() after recording = %v, want auto restored", c.Mode())
	}
}

func TestRecordingLockSkipsManual(t *testing.T) {
	c, drv := testController(t)
	c.SetLockDuringRecording(true)
	if err := c.Attach(drv, 30); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if err := c.SetISO(800); err != nil {
		t.Fatalf("SetISO: %v", err)
	}
	c.HandleRecordingStarted()
	if c.Mode() != ModeManual {
		t.Errorf("Mode() = %v, manual exposure must survive recording start", c.Mode())
	}
	c.HandleRecordingStopped()
}

func TestReattachReappliesLockAfterSettle(t *testing.T) {
	c, drv := testController(t, WithSettleDelay(20*time.Millisecond))
	c.SetLockDuringRecording(true)
	if err := c.Attach(drv, 30); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	c.HandleRecordingStarted()
	if c.Mode() != ModeLocked {
		t.Fatalf("Mode() = %v, want locked", c.Mode())
	}

	// Mid-recording lens switch: a fresh device is attached.
	c.Detach()
	drv2, err := sim.Open(drv.Device())
	if err != nil {
		t.Fatalf("sim.Open: %v", err)
	}
	defer drv2.Close()
	if err := c.Attach(drv2, 30); err != nil {
		t.Fatalf("Attach replacement: %v", err)
	}

	// Immediately after attach the sensor runs auto so it can settle.
	if c.Mode() != ModeAuto {
		t.Fatalf("Mode() right after attach = %v, want auto during settle", c.Mode())
	}

	deadline := time.Now().Add(time.Second)
	for c.Mode() != ModeLocked {
		if time.Now().After(deadline) {
			t.Fatal("lock never reapplied after settle delay")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestLockedModeRecomputes180OnReattach(t *testing.T) {
	c, drv := testController(t)
	if err := c.Attach(drv, 24); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if err := c.SetMode(ModeLocked); err != nil {
		t.Fatalf("SetMode: %v", err)
	}

	// Lens switch to a format negotiated at a different rate.
	c.Detach()
	drv2, err := sim.Open(drv.Device())
	if err != nil {
		t.Fatalf("sim.Open: %v", err)
	}
	defer drv2.Close()
	if err := c.Attach(drv2, 60); err != nil {
		t.Fatalf("Attach replacement: %v", err)
	}

	if c.Mode() != ModeLocked {
		t.Fatalf("Mode() = %v, want locked across the switch", c.Mode())
	}
	if got := drv2.CurrentExposure().Shutter; got != time.Second/120 {
		t.Errorf("shutter after reattach = %v, want 1/120s", got)
	}
}

func TestDetachCancelsObserver(t *testing.T) {
	c, drv := testController(t)
	if err := c.Attach(drv, 30); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if !c.Attached() {
		t.Fatal("Attached() = false after Attach")
	}
	c.Detach()
	if c.Attached() {
		t.Error("Attached() = true after Detach")
	}
}

func TestStateEventsArriveInOrder(t *testing.T) {
	c, _ := testController(t)
	bus := events.New()
	c.bus = bus

	ch := make(chan any, 64)
	defer events.SubscribeToChannel[events.ExposureChangedEvent](bus, ch)()

	for ev := 1; ev <= 8; ev++ {
		if err := c.SetBias(float64(ev)); err != nil {
			t.Fatalf("SetBias: %v", err)
		}
	}

	var got []float64
	deadline := time.After(time.Second)
	for len(got) < 8 {
		select {
		case e := <-ch:
			got = append(got, e.(events.ExposureChangedEvent).Bias)
		case <-deadline:
			t.Fatalf("received %d events, want 8", len(got))
		}
	}
	for i := 1; i < len(got); i++ {
		if got[i] < got[i-1] {
			t.Fatalf("state events out of order: %v", got)
		}
	}
}

func TestRelayToleranceByMode(t *testing.T) {
	c, _ := testController(t)
	bus := events.New()
	c.bus = bus

	ch := make(chan any, 16)
	unsub := events.SubscribeToChannel[events.ExposureChangedEvent](bus, ch)
	defer unsub()

	recv := func() bool {
		select {
		case <-ch:
			return true
		case <-time.After(200 * time.Millisecond):
			return false
		}
	}

	// Auto mode: a 2-unit change exceeds the tight tolerance.
	c.relayReading(device.Reading{ISO: 2, WhiteBalanceK: 0})
	if !recv() {
		t.Error("auto mode: small change not relayed")
	}

	// Manual mode: a 5-unit change sits inside the loose tolerance.
	c.mu.Lock()
	c.mode = ModeManual
	c.mu.Unlock()
	c.relayReading(device.Reading{ISO: 7, WhiteBalanceK: 0})
	if recv() {
		t.Error("manual mode: jitter inside tolerance was relayed")
	}

	// A 100-unit change is relayed in any mode.
	c.relayReading(device.Reading{ISO: 107, WhiteBalanceK: 0})
	if !recv() {
		t.Error("manual mode: large change not relayed")
	}
}
