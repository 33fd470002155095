// Package preview distributes capture frames to on-screen consumers. The
// store keeps only the most recent frame: a slow consumer observes fewer
// frames, never a growing queue and never backpressure on the capture path.
package preview

import (
	"image"
	"sync"

	"github.com/smazurov/cinecam/internal/device"
)

// Sink receives frames as they arrive. FrameAvailable must not block.
type Sink interface {
	FrameAvailable(frame *device.Frame)
}

// LatestStore is a single-slot frame inbox.
type LatestStore struct {
	mu     sync.Mutex
	frame  *device.Frame
	seq    uint64
	closed bool
}

// NewLatestStore creates an empty store.
func NewLatestStore() *LatestStore {
	return &LatestStore{}
}

// FrameAvailable implements Sink. The new frame replaces the held one; the
// displaced frame's reference is released.
func (s *LatestStore) FrameAvailable(frame *device.Frame) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	frame.Retain()
	old := s.frame
	s.frame = frame
	s.seq++
	s.mu.Unlock()

	if old != nil {
		old.Release()
	}
}

// Latest returns the newest frame and its sequence number, retaining it for
// the caller. Returns nil before the first frame arrives. The caller must
// Release the frame.
func (s *LatestStore) Latest() (*device.Frame, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frame == nil {
		return nil, 0
	}
	s.frame.Retain()
	return s.frame, s.seq
}

// Image wraps the newest frame as an image.RGBA sharing the frame's buffer.
// The caller must Release the returned frame when done with the image.
func (s *LatestStore) Image() (*image.RGBA, *device.Frame) {
	frame, _ := s.Latest()
	if frame == nil {
		return nil, nil
	}
	img := &image.RGBA{
		Pix:    frame.Data(),
		Stride: frame.Width() * 4,
		Rect:   image.Rect(0, 0, frame.Width(), frame.Height()),
	}
	return img, frame
}

// Close releases the held frame. Subsequent FrameAvailable calls are
// ignored.
func (s *LatestStore) Close() {
	s.mu.Lock()
	old := s.frame
	s.frame = nil
	s.closed = true
	s.mu.Unlock()

	if old != nil {
		old.Release()
	}
}
