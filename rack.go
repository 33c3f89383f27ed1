// Package jackrack hosts a chain of binary audio-effect plugins and routes
// a multichannel signal through them in real time.
//
// The package splits work across two execution contexts. The control path
// builds and edits the rack: it may block, allocate and fail. The audio
// path walks the chain once per block: it never blocks, allocates or takes
// a lock. Chain links, enable flags and wet/dry values are published with
// single-word atomics; parameter changes travel through per-port
// single-producer/single-consumer queues (see the fifo package).
package jackrack

import (
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// PortHandle is an opaque audio-server port reference. Its concrete type
// belongs to the PortClient that issued it.
type PortHandle any

// PortClient is the capability to register routing ports with an external
// audio-server graph. A Rack either holds one or it does not; every
// aux-port code path is guarded by its presence.
type PortClient interface {
	RegisterPort(name string, isInput bool) (PortHandle, error)
	UnregisterPort(h PortHandle) error
}

// Config carries the immutable parameters of a Rack.
type Config struct {
	// Channels is the number of rack audio channels.
	Channels int
	// SampleRate in frames per second.
	SampleRate int
	// BufferSize is the audio block length in frames.
	BufferSize int
	// Ports is the optional audio-server client. Nil disables all
	// auxiliary-port handling.
	Ports PortClient
	// Logger defaults to a no-op logger.
	Logger *zap.Logger
}

// Rack is the processing context: it owns the plugin chain and the
// configuration every node is built against.
type Rack struct {
	channels   int
	sampleRate int
	bufferSize int
	ports      PortClient
	logger     *zap.Logger

	// head and tail are the only long-lived entry points into the chain.
	head atomic.Pointer[Plugin]
	tail atomic.Pointer[Plugin]

	// generation counts completed audio blocks. The control path compares
	// it across a removal to prove no in-flight traversal still holds a
	// reference to an unlinked node.
	generation atomic.Uint64
	active     atomic.Bool
}

// New creates an empty rack for the given configuration.
func New(cfg Config) (*Rack, error) {
	if cfg.Channels < 1 {
		return nil, errors.New("jackrack: channel count must be at least 1")
	}
	if cfg.SampleRate < 1 {
		return nil, errors.New("jackrack: sample rate must be positive")
	}
	if cfg.BufferSize < 1 {
		return nil, errors.New("jackrack: buffer size must be positive")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Rack{
		channels:   cfg.Channels,
		sampleRate: cfg.SampleRate,
		bufferSize: cfg.BufferSize,
		ports:      cfg.Ports,
		logger:     logger,
	}, nil
}

// Channels returns the rack channel count.
func (r *Rack) Channels() int { return r.channels }

// SampleRate returns the rack sample rate.
func (r *Rack) SampleRate() int { return r.sampleRate }

// BufferSize returns the audio block length in frames.
func (r *Rack) BufferSize() int { return r.bufferSize }

// Head returns the first chain node, or nil for an empty chain.
func (r *Rack) Head() *Plugin { return r.head.Load() }

// Tail returns the last chain node, or nil for an empty chain.
func (r *Rack) Tail() *Plugin { return r.tail.Load() }

// Activate marks the audio path as running. While active, node destruction
// waits for a block boundary before touching unlinked nodes.
func (r *Rack) Activate() { r.active.Store(true) }

// Deactivate marks the audio path as stopped.
func (r *Rack) Deactivate() { r.active.Store(false) }

// Active reports whether the audio path is running.
func (r *Rack) Active() bool { return r.active.Load() }

// AwaitQuiescent blocks until at least one audio block has completed since
// the call, proving that no traversal started before it can still hold a
// reference to a node unlinked before it. Returns immediately when the
// audio path is not running.
func (r *Rack) AwaitQuiescent() {
	if !r.active.Load() {
		return
	}
	start := r.generation.Load()
	for r.generation.Load() == start && r.active.Load() {
		time.Sleep(100 * time.Microsecond)
	}
}

// Generation returns the number of completed audio blocks.
func (r *Rack) Generation() uint64 { return r.generation.Load() }

// typeInstanceFor counts linked nodes sharing desc's id, for deterministic
// aux-port naming of a node about to be created.
func (r *Rack) typeInstanceFor(id uint32) int {
	n := 1
	for p := r.head.Load(); p != nil; p = p.next.Load() {
		if p.desc.ID == id {
			n++
		}
	}
	return n
}
