package preview

import (
	"testing"
	"time"

	"github.com/smazurov/cinecam/internal/device"
)

func makeFrame(pool *device.BufferPool, marker byte) *device.Frame {
	buf := pool.Get()
	buf[0] = marker
	return device.NewFrame(buf, 2, 2, time.Millisecond, pool)
}

func TestLatestOverwrites(t *testing.T) {
	pool := device.NewBufferPool(device.FrameBytes(2, 2))
	s := NewLatestStore()
	defer s.Close()

	for i := byte(1); i <= 3; i++ {
		f := makeFrame(pool, i)
		s.FrameAvailable(f)
		f.Release()
	}

	got, seq := s.Latest()
	if got == nil {
		t.Fatal("Latest() = nil after frames arrived")
	}
	defer got.Release()
	if got.Data()[0] != 3 {
		t.Errorf("Latest holds frame %d, want the newest (3)", got.Data()[0])
	}
	if seq != 3 {
		t.Errorf("seq = %d, want 3", seq)
	}
}

func TestLatestEmptyStore(t *testing.T) {
	s := NewLatestStore()
	defer s.Close()
	if f, _ := s.Latest(); f != nil {
		t.Error("Latest() on empty store should be nil")
	}
}

func TestDisplacedFrameIsReleased(t *testing.T) {
	pool := device.NewBufferPool(device.FrameBytes(2, 2))
	s := NewLatestStore()

	first := makeFrame(pool, 1)
	s.FrameAvailable(first)
	if got := first.Refs(); got != 2 {
		t.Fatalf("refs after store = %d, want 2", got)
	}
	first.Release()

	second := makeFrame(pool, 2)
	s.FrameAvailable(second)
	second.Release()

	// The store released its reference to the displaced first frame.
	if got := first.Refs(); got != 0 {
		t.Errorf("displaced frame refs = %d, want 0", got)
	}

	s.Close()
	if got := second.Refs(); got != 0 {
		t.Errorf("refs after Close = %d, want 0", got)
	}
}

func TestImageSharesFrameBuffer(t *testing.T) {
	pool := device.NewBufferPool(device.FrameBytes(2, 2))
	s := NewLatestStore()
	defer s.Close()

	f := makeFrame(pool, 9)
	s.FrameAvailable(f)
	f.Release()

	img, frame := s.Image()
	if img == nil {
		t.Fatal("Image() = nil")
	}
	defer frame.Release()
	if img.Rect.Dx() != 2 || img.Rect.Dy() != 2 {
		t.Errorf("bounds = %v, want 2x2", img.Rect)
	}
	if img.Pix[0] != 9 {
		t.Error("image does not share the frame buffer")
	}
}

func TestFrameAvailableAfterCloseIsIgnored(t *testing.T) {
	pool := device.NewBufferPool(device.FrameBytes(2, 2))
	s := NewLatestStore()
	s.Close()

	f := makeFrame(pool, 1)
	s.FrameAvailable(f)
	if got := f.Refs(); got != 1 {
		t.Errorf("refs = %d, closed store must not retain", got)
	}
	f.Release()
}
