// Package events is the single typed event channel between the capture core
// and its observers (SSE clients, the companion channel, metrics). It
// replaces per-component callback plumbing: the core publishes tagged event
// structs, consumers subscribe by handler type.
package events

import (
	"github.com/kelindar/event"
)

// Bus wraps a kelindar/event dispatcher for event broadcasting.
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates a new event bus.
func New() *Bus {
	return &Bus{dispatcher: event.NewDispatcher()}
}

// Publish publishes an event to all subscribers.
// Usage: bus.Publish(ZoomChangedEvent{...})
func (b *Bus) Publish(ev Event) {
	// kelindar/event is generic over the concrete type, so dispatch via a
	// type switch.
	switch e := ev.(type) {
	case DeviceInitializedEvent:
		event.Publish(b.dispatcher, e)
	case SessionStateEvent:
		event.Publish(b.dispatcher, e)
	case LensChangedEvent:
		event.Publish(b.dispatcher, e)
	case ZoomChangedEvent:
		event.Publish(b.dispatcher, e)
	case ExposureChangedEvent:
		event.Publish(b.dispatcher, e)
	case RecordingStartedEvent:
		event.Publish(b.dispatcher, e)
	case RecordingStoppedEvent:
		event.Publish(b.dispatcher, e)
	case RecordingProcessingEvent:
		event.Publish(b.dispatcher, e)
	case RecordingFinishedEvent:
		event.Publish(b.dispatcher, e)
	case ErrorEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe subscribes a typed handler and returns an unsubscribe function.
// The handler's parameter type selects which events it receives.
// Usage: unsub := bus.Subscribe(func(e ZoomChangedEvent) { ... })
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(DeviceInitializedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(SessionStateEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(LensChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ZoomChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ExposureChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(RecordingStartedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(RecordingStoppedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(RecordingProcessingEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(RecordingFinishedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ErrorEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		return func() {}
	}
}

// SubscribeToChannel bridges typed subscriptions onto a channel, for the SSE
// select loop. Events are dropped, not queued, when the channel is full.
func SubscribeToChannel[T Event](bus *Bus, ch chan<- any) func() {
	return event.Subscribe(bus.dispatcher, func(e T) {
		select {
		case ch <- e:
		default:
		}
	})
}
