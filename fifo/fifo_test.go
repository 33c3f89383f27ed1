package fifo

import "testing"

func TestPushPopOrder(t *testing.T) {
	f := New(8)

	for i := 0; i < 5; i++ {
		if !f.Push(float32(i)) {
			t.Fatalf("push %d failed on non-full queue", i)
		}
	}
	if got := f.Len(); got != 5 {
		t.Fatalf("want len 5, got %d", got)
	}

	for i := 0; i < 5; i++ {
		v, ok := f.Pop()
		if !ok {
			t.Fatalf("pop %d failed on non-empty queue", i)
		}
		if v != float32(i) {
			t.Fatalf("want %d, got %v", i, v)
		}
	}
	if _, ok := f.Pop(); ok {
		t.Fatal("pop succeeded on empty queue")
	}
}

func TestCapacityRoundsUp(t *testing.T) {
	cases := []struct{ request, want int }{
		{1, 1},
		{3, 4},
		{128, 128},
		{129, 256},
	}
	for _, c := range cases {
		if got := New(c.request).Cap(); got != c.want {
			t.Errorf("New(%d): want cap %d, got %d", c.request, c.want, got)
		}
	}
}

func TestDropUnderPressure(t *testing.T) {
	f := New(128)

	pushed := 0
	for i := 0; i < 200; i++ {
		if f.Push(float32(i)) {
			pushed++
		}
	}
	if pushed != 128 {
		t.Fatalf("want 128 accepted pushes, got %d", pushed)
	}

	// Overflow drops the producer's value, never the queued ones: the
	// consumer still sees the first 128 values in order.
	applied := 0
	f.Drain(func(v float32) {
		if v != float32(applied) {
			t.Fatalf("want value %d at position %d, got %v", applied, applied, v)
		}
		applied++
	})
	if applied != 128 {
		t.Fatalf("want 128 drained values, got %d", applied)
	}
}

func TestDrainEmpty(t *testing.T) {
	f := New(16)
	if n := f.Drain(func(float32) {}); n != 0 {
		t.Fatalf("want 0 drained from empty queue, got %d", n)
	}
}

// TestConcurrentProducerConsumer drives one producer and one consumer at
// full speed and checks the consumer only ever observes values in order.
// The consumer keeps draining until the producer is done, then empties the
// queue once more, so the test terminates regardless of scheduling.
func TestConcurrentProducerConsumer(t *testing.T) {
	f := New(128)

	const total = 100000
	producerDone := make(chan struct{})
	go func() {
		defer close(producerDone)
		for i := 0; i < total; i++ {
			f.Push(float32(i))
		}
	}()

	last := float32(-1)
	applied := 0
	drain := func() {
		f.Drain(func(v float32) {
			if v <= last {
				t.Errorf("out of order: %v after %v", v, last)
			}
			last = v
			applied++
		})
	}

	for {
		select {
		case <-producerDone:
			drain()
			if applied == 0 || applied > total {
				t.Fatalf("consumer applied %d of %d pushed values", applied, total)
			}
			return
		default:
			drain()
		}
	}
}
