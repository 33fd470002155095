package device

import (
	"sync"
	"sync/atomic"
	"time"
)

// Frame is a single captured image buffer with its presentation timestamp.
//
// Ownership is reference counted: the producer creates a frame with one
// reference, each additional consumer calls Retain before handing the frame
// across a goroutine boundary and Release when done. When the count reaches
// zero the backing buffer returns to its pool. Consumers must treat Data as
// read-only; a consumer that needs to modify pixels renders into a fresh
// buffer first.
type Frame struct {
	data   []byte
	width  int
	height int
	pts    time.Duration
	refs   atomic.Int32
	pool   *BufferPool
}

// NewFrame wraps data in a frame with a single reference. pool may be nil
// for buffers that are not pooled.
func NewFrame(data []byte, width, height int, pts time.Duration, pool *BufferPool) *Frame {
	f := &Frame{data: data, width: width, height: height, pts: pts, pool: pool}
	f.refs.Store(1)
	return f
}

// Retain adds a reference and returns the frame for chaining.
func (f *Frame) Retain() *Frame {
	f.refs.Add(1)
	return f
}

// Release drops a reference. The buffer is recycled when the last reference
// is dropped; using the frame afterwards is a bug.
func (f *Frame) Release() {
	if f.refs.Add(-1) != 0 {
		return
	}
	if f.pool != nil {
		f.pool.Put(f.data)
	}
	f.data = nil
}

// Refs returns the current reference count. Intended for tests.
func (f *Frame) Refs() int32 { return f.refs.Load() }

// Data returns the packed RGBA pixel data. Read-only.
func (f *Frame) Data() []byte { return f.data }

// Width returns the frame width in pixels.
func (f *Frame) Width() int { return f.width }

// Height returns the frame height in pixels.
func (f *Frame) Height() int { return f.height }

// PTS returns the presentation timestamp relative to stream start.
func (f *Frame) PTS() time.Duration { return f.pts }

// BufferPool recycles fixed-size frame buffers to keep the capture path
// allocation-free at steady state.
type BufferPool struct {
	size int
	pool sync.Pool
}

// NewBufferPool creates a pool of size-byte buffers.
func NewBufferPool(size int) *BufferPool {
	return &BufferPool{
		size: size,
		pool: sync.Pool{
			New: func() any { return make([]byte, size) },
		},
	}
}

// Get returns a buffer of the pool's size.
func (p *BufferPool) Get() []byte {
	return p.pool.Get().([]byte)
}

// Put returns a buffer to the pool. Buffers of the wrong size are dropped.
func (p *BufferPool) Put(buf []byte) {
	if len(buf) != p.size {
		return
	}
	p.pool.Put(buf) //nolint:staticcheck
}

// Size returns the buffer size in bytes.
func (p *BufferPool) Size() int { return p.size }

// FrameBytes returns the RGBA buffer size for the given dimensions.
func FrameBytes(width, height int) int { return width * height * 4 }
