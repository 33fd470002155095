// Package recording owns the record pipeline: it takes live frames from the
// session, optionally grades them through a LUT, feeds the encoder and hands
// the finished file to the clip library.
//
// Backpressure policy is drop, never queue: a frame the encoder cannot
// accept right now is counted and discarded, and audio continues
// independently. The rendered file keeps correct timing through the frames
// that did make it.
package recording

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/smazurov/cinecam/internal/device"
	"github.com/smazurov/cinecam/internal/encoder"
	"github.com/smazurov/cinecam/internal/events"
	"github.com/smazurov/cinecam/internal/library"
	"github.com/smazurov/cinecam/internal/lut"
	"github.com/smazurov/cinecam/internal/metrics"
)

// State is the pipeline lifecycle state.
type State int

// Pipeline states. Transitions run strictly forward:
// Idle -> Preparing -> Writing -> Finalizing -> Idle.
const (
	StateIdle State = iota
	StatePreparing
	StateWriting
	StateFinalizing
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StatePreparing:
		return "preparing"
	case StateWriting:
		return "writing"
	case StateFinalizing:
		return "finalizing"
	default:
		return "idle"
	}
}

// SinkFactory creates the encoder sink for one recording. Tests substitute
// a fake.
type SinkFactory func(p encoder.Params) (encoder.Sink, error)

// Result summarizes one finished recording.
type Result struct {
	Clip            library.Clip
	Frames          uint64
	Dropped         uint64
	RenderFailures  uint64
	DurationSeconds float64
}

// Pipeline is the recording state machine. All entry points are safe for
// concurrent use; HandleFrame and HandleAudio are called from the session's
// delivery goroutines.
type Pipeline struct {
	store   *library.Store
	bus     *events.Bus
	metrics *metrics.Metrics
	logger  *slog.Logger
	newSink SinkFactory

	mu        sync.Mutex
	state     State
	sessionID string
	params    encoder.Params
	sink      encoder.Sink
	grade       *lut.LUT
	lutName     string
	activeGrade *lut.LUT
	pool      *device.BufferPool
	startedAt time.Time

	frames         uint64
	dropped        uint64
	renderFailures uint64
	poster         *image.RGBA
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithSinkFactory overrides how encoder sinks are created.
func WithSinkFactory(f SinkFactory) Option {
	return func(p *Pipeline) { p.newSink = f }
}

// NewPipeline creates an idle pipeline writing into store.
func NewPipeline(store *library.Store, bus *events.Bus, m *metrics.Metrics, logger *slog.Logger, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:   store,
		bus:     bus,
		metrics: m,
		logger:  logger,
		newSink: func(params encoder.Params) (encoder.Sink, error) {
			return encoder.NewFFmpegSink(params, logger)
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SetLUT installs the grading LUT used by subsequent recordings. A nil LUT
// records ungraded. The LUT in effect is snapshotted at Start; changing it
// mid-take affects the next take.
func (p *Pipeline) SetLUT(l *lut.LUT, name string) {
	p.mu.Lock()
	p.grade = l
	p.lutName = name
	p.mu.Unlock()
}

// State returns the current pipeline state.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Active reports whether a recording is in flight in any phase.
func (p *Pipeline) Active() bool {
	return p.State() != StateIdle
}

// Start begins a recording with the given encode parameters. Calling Start
// while a recording is in flight is a no-op, not an error.
func (p *Pipeline) Start(params encoder.Params) error {
	p.mu.Lock()
	if p.state != StateIdle {
		p.mu.Unlock()
		return nil
	}
	p.state = StatePreparing
	p.sessionID = uuid.NewString()
	p.startedAt = time.Now()
	p.frames = 0
	p.dropped = 0
	p.renderFailures = 0
	p.poster = nil

	params.OutputPath = p.store.NewClipPath(p.startedAt)
	p.params = params
	sessionID := p.sessionID
	p.mu.Unlock()

	sink, err := p.newSink(params)
	if err != nil {
		p.mu.Lock()
		p.state = StateIdle
		p.mu.Unlock()
		p.bus.Publish(events.ErrorEvent{Kind: "recordingFailed", Message: err.Error()})
		return fmt.Errorf("start recording: %w", err)
	}

	p.mu.Lock()
	p.sink = sink
	p.pool = device.NewBufferPool(device.FrameBytes(params.Width, params.Height))
	p.activeGrade = p.grade
	p.state = StateWriting
	p.mu.Unlock()

	p.metrics.Recording.Set(1)
	p.logger.Info("Recording started", "session", sessionID, "path", params.OutputPath, "profile", params.Profile)
	p.bus.Publish(events.RecordingStartedEvent{
		SessionID: sessionID,
		Path:      params.OutputPath,
		StartedAt: p.startedAt.UTC().Format(time.RFC3339),
	})
	return nil
}

// HandleFrame feeds one live frame through the pipeline. Outside of Writing
// the frame is ignored. The pipeline does not retain the frame.
func (p *Pipeline) HandleFrame(frame *device.Frame) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StateWriting {
		return
	}
	if !p.sink.Ready() {
		p.dropped++
		p.metrics.FramesDropped.Inc()
		return
	}

	out := frame
	if !p.activeGrade.Identity() {
		buf := p.pool.Get()
		if err := p.activeGrade.Apply(frame.Data(), buf); err != nil {
			// A frame that cannot be graded is dropped; the take
			// continues.
			p.pool.Put(buf)
			p.renderFailures++
			p.metrics.RenderFailures.Inc()
			return
		}
		out = device.NewFrame(buf, frame.Width(), frame.Height(), frame.PTS(), p.pool)
		defer out.Release()
	}

	if err := p.sink.WriteVideo(out); err != nil {
		p.dropped++
		p.metrics.FramesDropped.Inc()
		p.logger.Warn("Encoder rejected frame", "error", err)
		return
	}
	if p.poster == nil {
		p.poster = copyPoster(out)
	}
	p.frames++
	p.metrics.FramesEncoded.Inc()
}

// HandleAudio feeds captured audio samples. Audio flows independently of the
// video drop policy.
func (p *Pipeline) HandleAudio(samples []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StateWriting || !p.params.AudioEnabled {
		return
	}
	if err := p.sink.WriteAudio(samples); err != nil {
		p.logger.Warn("Encoder rejected audio", "error", err)
	}
}

// Stop finalizes the recording and registers the clip. Calling Stop while
// idle is a no-op. Even when finalization reports an error, a file that
// exists on disk is still handed to the library; a truncated take beats a
// silently discarded one.
func (p *Pipeline) Stop(ctx context.Context) (Result, error) {
	p.mu.Lock()
	if p.state != StateWriting {
		p.mu.Unlock()
		return Result{}, nil
	}
	p.state = StateFinalizing
	sink := p.sink
	sessionID := p.sessionID
	params := p.params
	poster := p.poster
	frames := p.frames
	dropped := p.dropped
	renderFailures := p.renderFailures
	duration := time.Since(p.startedAt).Seconds()
	startedAt := p.startedAt
	lutName := p.lutName
	p.mu.Unlock()

	p.bus.Publish(events.RecordingStoppedEvent{SessionID: sessionID})
	p.bus.Publish(events.RecordingProcessingEvent{SessionID: sessionID, State: StateFinalizing.String()})

	finalizeErr := sink.Finalize(ctx)
	if finalizeErr != nil {
		p.logger.Error("Encoder finalization failed", "session", sessionID, "error", finalizeErr)
	}

	result := Result{
		Frames:          frames,
		Dropped:         dropped,
		RenderFailures:  renderFailures,
		DurationSeconds: duration,
	}

	var ingestErr error
	if _, statErr := os.Stat(params.OutputPath); statErr == nil {
		result.Clip, ingestErr = p.store.Ingest(params.OutputPath, poster, library.Meta{
			SessionID:       sessionID,
			RecordedAt:      startedAt,
			Width:           params.Width,
			Height:          params.Height,
			FrameRate:       params.FrameRate,
			Profile:         string(params.Profile),
			ColorSpace:      params.ColorPrimaries,
			Rotation:        params.Rotation,
			LUT:             lutName,
			Frames:          frames,
			Dropped:         dropped,
			RenderFailures:  renderFailures,
			DurationSeconds: duration,
		})
		if ingestErr != nil {
			p.logger.Warn("Clip registered with errors", "session", sessionID, "error", ingestErr)
		}
	} else if finalizeErr == nil {
		finalizeErr = fmt.Errorf("recording produced no file: %w", statErr)
	}

	p.mu.Lock()
	p.state = StateIdle
	p.sink = nil
	p.poster = nil
	p.mu.Unlock()

	p.metrics.Recording.Set(0)
	if finalizeErr != nil {
		p.bus.Publish(events.ErrorEvent{Kind: "recordingFailed", Message: finalizeErr.Error()})
	}
	p.bus.Publish(events.RecordingFinishedEvent{
		SessionID:       sessionID,
		Path:            result.Clip.Path,
		ThumbnailPath:   result.Clip.ThumbnailPath,
		Frames:          frames,
		Dropped:         dropped,
		RenderFailures:  renderFailures,
		DurationSeconds: duration,
	})
	p.logger.Info("Recording finished", "session", sessionID,
		"frames", frames, "dropped", dropped, "render_failures", renderFailures,
		"duration_s", fmt.Sprintf("%.1f", duration))

	return result, finalizeErr
}

// Counters returns the live frame counters for the in-flight recording.
func (p *Pipeline) Counters() (frames, dropped, renderFailures uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.frames, p.dropped, p.renderFailures
}

// SessionID returns the in-flight recording identifier, empty while idle.
func (p *Pipeline) SessionID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateIdle {
		return ""
	}
	return p.sessionID
}

// StartedAt returns the in-flight recording start time.
func (p *Pipeline) StartedAt() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.startedAt
}

// copyPoster snapshots a frame into an owned image for the thumbnail.
func copyPoster(frame *device.Frame) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, frame.Width(), frame.Height()))
	copy(img.Pix, frame.Data())
	return img
}
