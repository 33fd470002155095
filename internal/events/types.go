package events

// Event type constants for kelindar/event.
const (
	TypeDeviceInitialized uint32 = iota + 1
	TypeSessionState
	TypeLensChanged
	TypeZoomChanged
	TypeExposureChanged
	TypeRecordingStarted
	TypeRecordingStopped
	TypeRecordingProcessing
	TypeRecordingFinished
	TypeError
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// DeviceInitializedEvent is published once per device when the catalog is
// built at startup.
type DeviceInitializedEvent struct {
	DeviceID string `json:"device_id" example:"sim-wide" doc:"Device identifier"`
	Name     string `json:"name" example:"Simulated Wide" doc:"Human-readable device name"`
	Position string `json:"position" example:"wide" doc:"Rig position"`
}

// Type returns the event type identifier for DeviceInitializedEvent.
func (e DeviceInitializedEvent) Type() uint32 { return TypeDeviceInitialized }

// SessionStateEvent reports capture session state transitions.
type SessionStateEvent struct {
	Running bool   `json:"running" doc:"Whether the session is delivering frames"`
	Status  string `json:"status" example:"running" doc:"running, stopped, interrupted, failed or unauthorized"`
	Reason  string `json:"reason,omitempty" doc:"Why the session left the running state"`
}

// Type returns the event type identifier for SessionStateEvent.
func (e SessionStateEvent) Type() uint32 { return TypeSessionState }

// LensChangedEvent is published when a lens switch settles.
type LensChangedEvent struct {
	Lens       string  `json:"lens" example:"telephoto" doc:"Lens name"`
	DeviceID   string  `json:"device_id" doc:"Backing device identifier"`
	NativeZoom float64 `json:"native_zoom" example:"3" doc:"Native zoom factor of the lens"`
}

// Type returns the event type identifier for LensChangedEvent.
func (e LensChangedEvent) Type() uint32 { return TypeLensChanged }

// ZoomChangedEvent reports the effective zoom factor after a zoom request.
type ZoomChangedEvent struct {
	Factor float64 `json:"factor" example:"1.8" doc:"Effective zoom factor"`
}

// Type returns the event type identifier for ZoomChangedEvent.
func (e ZoomChangedEvent) Type() uint32 { return TypeZoomChanged }

// ExposureChangedEvent reports exposure state the UI should display. For
// auto-driven values this is rate-limited by the exposure controller's
// relay tolerance.
type ExposureChangedEvent struct {
	Mode           string  `json:"mode" example:"shutterPriority" doc:"Active exposure mode"`
	ISO            float64 `json:"iso" example:"400" doc:"Current ISO"`
	ShutterSeconds float64 `json:"shutter_seconds" example:"0.02083" doc:"Current shutter duration in seconds"`
	WhiteBalanceK  float64 `json:"white_balance_k" example:"5600" doc:"White balance temperature in Kelvin"`
	Tint           float64 `json:"tint" doc:"White balance tint"`
	Bias           float64 `json:"bias" doc:"Exposure bias in EV"`
}

// Type returns the event type identifier for ExposureChangedEvent.
func (e ExposureChangedEvent) Type() uint32 { return TypeExposureChanged }

// RecordingStartedEvent is published when the pipeline enters Writing.
type RecordingStartedEvent struct {
	SessionID string `json:"session_id" doc:"Recording session identifier"`
	Path      string `json:"path" doc:"Output file being written"`
	StartedAt string `json:"started_at" example:"2025-01-27T10:30:00Z" doc:"Session start timestamp"`
}

// Type returns the event type identifier for RecordingStartedEvent.
func (e RecordingStartedEvent) Type() uint32 { return TypeRecordingStarted }

// RecordingStoppedEvent is published when writing stops, before finalization
// completes.
type RecordingStoppedEvent struct {
	SessionID string `json:"session_id" doc:"Recording session identifier"`
}

// Type returns the event type identifier for RecordingStoppedEvent.
func (e RecordingStoppedEvent) Type() uint32 { return TypeRecordingStopped }

// RecordingProcessingEvent reports finalization progress.
type RecordingProcessingEvent struct {
	SessionID string `json:"session_id" doc:"Recording session identifier"`
	State     string `json:"state" example:"finalizing" doc:"Pipeline state"`
}

// Type returns the event type identifier for RecordingProcessingEvent.
func (e RecordingProcessingEvent) Type() uint32 { return TypeRecordingProcessing }

// RecordingFinishedEvent is published after the finished file has been
// handed to the library.
type RecordingFinishedEvent struct {
	SessionID       string  `json:"session_id" doc:"Recording session identifier"`
	Path            string  `json:"path" doc:"Final file location"`
	ThumbnailPath   string  `json:"thumbnail_path,omitempty" doc:"Thumbnail location, when one was generated"`
	Frames          uint64  `json:"frames" doc:"Video frames encoded"`
	Dropped         uint64  `json:"dropped" doc:"Frames dropped by backpressure policy"`
	RenderFailures  uint64  `json:"render_failures" doc:"Frames dropped because the grading transform failed"`
	DurationSeconds float64 `json:"duration_seconds" doc:"Recorded duration"`
}

// Type returns the event type identifier for RecordingFinishedEvent.
func (e RecordingFinishedEvent) Type() uint32 { return TypeRecordingFinished }

// ErrorEvent is the single user-visible error channel. Every failure path
// either recovers locally or reaches this event exactly once.
type ErrorEvent struct {
	Kind    string `json:"kind" example:"configurationFailed" doc:"Error taxonomy kind"`
	Message string `json:"message" doc:"Human-readable description"`
}

// Type returns the event type identifier for ErrorEvent.
func (e ErrorEvent) Type() uint32 { return TypeError }
