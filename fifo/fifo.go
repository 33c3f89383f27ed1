// Package fifo provides a bounded lock-free single-producer/single-consumer
// queue of float32 values.
//
// It is the bridge between the control path and the audio path: the control
// side pushes parameter changes, the audio side drains them once per block.
// Neither side ever blocks, allocates, or takes a lock. When the queue is
// full the producer's value is dropped rather than stalling either side.
package fifo

import "sync/atomic"

// FIFO is a fixed-capacity single-producer/single-consumer ring buffer.
// Exactly one goroutine may call Push and exactly one may call Pop/Drain.
type FIFO struct {
	buf  []float32
	mask uint32
	head atomic.Uint32 // next slot to read, owned by the consumer
	tail atomic.Uint32 // next slot to write, owned by the producer
}

// New creates a FIFO holding at least capacity values. Capacity is rounded
// up to a power of two so index wrapping stays a mask operation.
func New(capacity int) *FIFO {
	if capacity < 1 {
		capacity = 1
	}
	size := uint32(1)
	for size < uint32(capacity) {
		size <<= 1
	}
	return &FIFO{
		buf:  make([]float32, size),
		mask: size - 1,
	}
}

// Push enqueues v. It returns false, dropping v, when the queue is full.
func (f *FIFO) Push(v float32) bool {
	tail := f.tail.Load()
	if tail-f.head.Load() > f.mask {
		return false
	}
	f.buf[tail&f.mask] = v
	f.tail.Store(tail + 1)
	return true
}

// Pop dequeues the oldest value. The second return is false when empty.
func (f *FIFO) Pop() (float32, bool) {
	head := f.head.Load()
	if head == f.tail.Load() {
		return 0, false
	}
	v := f.buf[head&f.mask]
	f.head.Store(head + 1)
	return v, true
}

// Drain pops every pending value in enqueue order, calling fn for each,
// and returns the number of values applied.
func (f *FIFO) Drain(fn func(float32)) int {
	n := 0
	for {
		v, ok := f.Pop()
		if !ok {
			return n
		}
		fn(v)
		n++
	}
}

// Len reports how many values are currently queued.
func (f *FIFO) Len() int {
	return int(f.tail.Load() - f.head.Load())
}

// Cap reports the queue capacity.
func (f *FIFO) Cap() int {
	return len(f.buf)
}
