package jackrack

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/shaban/jackrack/plugins"
)

// Shared fakes for the rack tests: an in-memory plugin ABI and a recording
// port client, so every aux-port code path runs without an audio server.

type paramCall struct {
	index int
	value float32
}

type fakeEffect struct {
	mu      sync.Mutex
	numIn   int
	numOut  int
	params  []paramCall
	ops     []plugins.Opcode
	closed  bool
	created int
}

func (e *fakeEffect) NumInputs() int  { return e.numIn }
func (e *fakeEffect) NumOutputs() int { return e.numOut }

func (e *fakeEffect) SetParameter(index int, value float32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.params = append(e.params, paramCall{index: index, value: value})
}

func (e *fakeEffect) Dispatch(op plugins.Opcode, value, opt float32) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ops = append(e.ops, op)
	if op == plugins.OpClose {
		e.closed = true
	}
	return nil
}

func (e *fakeEffect) paramCalls() []paramCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]paramCall, len(e.params))
	copy(out, e.params)
	return out
}

type fakeFactory struct {
	mu      sync.Mutex
	effects []*fakeEffect
	failAt  int // 1-based instantiation index that fails; 0 = never
	closed  bool
}

func (f *fakeFactory) Instantiate() (plugins.Effect, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAt > 0 && len(f.effects)+1 == f.failAt {
		return nil, errors.New("native instantiation refused")
	}
	e := &fakeEffect{numIn: 2, numOut: 2, created: len(f.effects)}
	f.effects = append(f.effects, e)
	return e, nil
}

func (f *fakeFactory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

type fakeLibrary struct {
	mu        sync.Mutex
	failOpen  bool
	failAt    int
	factories []*fakeFactory
}

func (l *fakeLibrary) Open(desc *plugins.Descriptor) (plugins.EffectFactory, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failOpen {
		return nil, errors.New("entry point not found")
	}
	f := &fakeFactory{failAt: l.failAt}
	l.factories = append(l.factories, f)
	return f, nil
}

type fakePortClient struct {
	mu           sync.Mutex
	nextHandle   int
	registered   []string
	unregistered []int
	failRegister bool
	failUnreg    bool
}

func (c *fakePortClient) RegisterPort(name string, isInput bool) (PortHandle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failRegister {
		return nil, errors.New("port limit reached")
	}
	c.nextHandle++
	c.registered = append(c.registered, name)
	return c.nextHandle, nil
}

func (c *fakePortClient) UnregisterPort(h PortHandle) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failUnreg {
		return errors.New("unregister refused")
	}
	c.unregistered = append(c.unregistered, h.(int))
	return nil
}

func testDescriptor(id uint32, name string) *plugins.Descriptor {
	return &plugins.Descriptor{
		ID:                    id,
		Name:                  name,
		ObjectFile:            fmt.Sprintf("/usr/lib/plugins/%s.so", name),
		Channels:              2,
		AudioInputPortIndices: []int{0, 1},
		ControlPorts: []plugins.ControlPort{
			{Index: 4, Name: "gain", Lower: 0, Upper: 2, Default: 1},
			{Index: 5, Name: "freq", Lower: 0, Upper: 0.5, Default: 0.25, SampleRateScaled: true},
		},
		StatusPortCount: 1,
	}
}

func auxDescriptor(id uint32, name string) *plugins.Descriptor {
	d := testDescriptor(id, name)
	d.AuxChannels = 2
	d.AuxAreInput = false
	return d
}

func newTestRack(t *testing.T, ports PortClient) *Rack {
	t.Helper()
	r, err := New(Config{Channels: 2, SampleRate: 48000, BufferSize: 256, Ports: ports})
	if err != nil {
		t.Fatalf("creating rack: %v", err)
	}
	return r
}

func mustNewPlugin(t *testing.T, r *Rack, desc *plugins.Descriptor) *Plugin {
	t.Helper()
	p, err := NewPlugin(desc, &fakeLibrary{}, r)
	if err != nil {
		t.Fatalf("creating plugin %q: %v", desc.Name, err)
	}
	return p
}

// chainForward collects the chain head to tail.
func chainForward(r *Rack) []*Plugin {
	var out []*Plugin
	for p := r.Head(); p != nil; p = p.Next() {
		out = append(out, p)
	}
	return out
}

// checkChainConsistent verifies both traversal directions yield want
// exactly, and that the chain ends are properly terminated.
func checkChainConsistent(t *testing.T, r *Rack, want ...*Plugin) {
	t.Helper()

	forward := chainForward(r)
	if len(forward) != len(want) {
		t.Fatalf("want %d nodes head to tail, got %d", len(want), len(forward))
	}
	for i, p := range forward {
		if p != want[i] {
			t.Fatalf("forward traversal: wrong node at position %d", i)
		}
	}

	var backward []*Plugin
	for p := r.Tail(); p != nil; p = p.Prev() {
		backward = append(backward, p)
	}
	if len(backward) != len(want) {
		t.Fatalf("want %d nodes tail to head, got %d", len(want), len(backward))
	}
	for i, p := range backward {
		if p != want[len(want)-1-i] {
			t.Fatalf("backward traversal: wrong node at position %d", i)
		}
	}

	if head := r.Head(); head != nil && head.Prev() != nil {
		t.Fatal("head has a predecessor")
	}
	if tail := r.Tail(); tail != nil && tail.Next() != nil {
		t.Fatal("tail has a successor")
	}
}
