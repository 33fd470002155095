package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/smazurov/cinecam/internal/events"
)

// registerSSERoutes registers the native Huma SSE endpoint.
func (s *Server) registerSSERoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Server-Sent Events Stream",
		Description: "Real-time stream of session, lens, exposure and recording events",
		Tags:        []string{"events"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"device-initialized":   events.DeviceInitializedEvent{},
		"session-state":        events.SessionStateEvent{},
		"lens-changed":         events.LensChangedEvent{},
		"zoom-changed":         events.ZoomChangedEvent{},
		"exposure-changed":     events.ExposureChangedEvent{},
		"recording-started":    events.RecordingStartedEvent{},
		"recording-stopped":    events.RecordingStoppedEvent{},
		"recording-processing": events.RecordingProcessingEvent{},
		"recording-finished":   events.RecordingFinishedEvent{},
		"error":                events.ErrorEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		eventCh := make(chan any, 10)

		unsubscribers := []func(){
			events.SubscribeToChannel[events.DeviceInitializedEvent](s.opts.Bus, eventCh),
			events.SubscribeToChannel[events.SessionStateEvent](s.opts.Bus, eventCh),
			events.SubscribeToChannel[events.LensChangedEvent](s.opts.Bus, eventCh),
			events.SubscribeToChannel[events.ZoomChangedEvent](s.opts.Bus, eventCh),
			events.SubscribeToChannel[events.ExposureChangedEvent](s.opts.Bus, eventCh),
			events.SubscribeToChannel[events.RecordingStartedEvent](s.opts.Bus, eventCh),
			events.SubscribeToChannel[events.RecordingStoppedEvent](s.opts.Bus, eventCh),
			events.SubscribeToChannel[events.RecordingProcessingEvent](s.opts.Bus, eventCh),
			events.SubscribeToChannel[events.RecordingFinishedEvent](s.opts.Bus, eventCh),
			events.SubscribeToChannel[events.ErrorEvent](s.opts.Bus, eventCh),
		}
		defer func() {
			for _, unsub := range unsubscribers {
				unsub()
			}
		}()

		// Late joiners get the current session state immediately.
		status := s.opts.Session.StatusSnapshot()
		if err := send.Data(events.SessionStateEvent{
			Running: status.State == "running",
			Status:  status.State,
		}); err != nil {
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case event := <-eventCh:
				if err := send.Data(event); err != nil {
					return
				}
			}
		}
	})
}
