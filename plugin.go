package jackrack

import (
	"math"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shaban/jackrack/fifo"
	"github.com/shaban/jackrack/plugins"
)

// controlQueueDepth is the capacity of every parameter update queue.
const controlQueueDepth = 128

// Plugin is one chain node: a slot of the rack holding enough native
// instances ("copies") of one plugin class to cover every rack channel.
//
// A Plugin is built and edited by the control path. The audio path only
// reads it: chain links, the enable flags and the wet/dry values are
// single-word atomics, parameter changes arrive through the holders'
// queues. While linked, a Plugin is owned by its Rack; once unlinked it is
// owned solely by whoever removed it.
type Plugin struct {
	id           uuid.UUID
	desc         *plugins.Descriptor
	rack         *Rack
	copies       int
	typeInstance int

	holders []*Holder
	factory plugins.EffectFactory

	enabled       atomic.Bool
	wetDryEnabled atomic.Bool

	// wetDryValues mirror what the audio path last drained from
	// wetDryQueues, one per rack channel, initialized fully wet.
	wetDryValues []atomicFloat32
	wetDryQueues []*fifo.FIFO

	outputBuffers [][]float32
	inputBuffers  [][]float32

	prev atomic.Pointer[Plugin]
	next atomic.Pointer[Plugin]
}

// NewPlugin resolves desc's entry point through lib, instantiates one
// native instance per needed copy and builds the node's holders, output
// buffers and wet/dry queues. The returned node is not yet linked into any
// chain.
func NewPlugin(desc *plugins.Descriptor, lib plugins.Library, r *Rack) (*Plugin, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}

	factory, err := lib.Open(desc)
	if err != nil {
		return nil, &PluginLoadError{Desc: desc, Err: err}
	}

	copies := desc.Copies(r.channels)
	effects := make([]plugins.Effect, copies)
	for i := range effects {
		eff, err := factory.Instantiate()
		if err != nil {
			for j := 0; j < i; j++ {
				_ = effects[j].Dispatch(plugins.OpClose, 0, 0)
			}
			_ = factory.Close()
			return nil, &InstantiationError{Desc: desc, Copy: i, Err: err}
		}
		_ = eff.Dispatch(plugins.OpSetSampleRate, float32(r.sampleRate), 0)
		effects[i] = eff
	}

	p := &Plugin{
		id:           uuid.New(),
		desc:         desc,
		rack:         r,
		copies:       copies,
		typeInstance: r.typeInstanceFor(desc.ID),
		factory:      factory,
	}

	p.outputBuffers = make([][]float32, r.channels)
	p.wetDryValues = make([]atomicFloat32, r.channels)
	p.wetDryQueues = make([]*fifo.FIFO, r.channels)
	for ch := 0; ch < r.channels; ch++ {
		p.outputBuffers[ch] = make([]float32, r.bufferSize)
		p.wetDryQueues[ch] = fifo.New(controlQueueDepth)
		p.wetDryValues[ch].Store(1.0)
	}

	p.holders = make([]*Holder, copies)
	for i := 0; i < copies; i++ {
		p.holders[i] = newHolder(p, i, effects[i])
	}

	return p, nil
}

// Destroy releases every holder, the node's buffers and queues and finally
// the native module handle. The caller must prove the audio path no longer
// holds a reference to the node, normally via Rack.AwaitQuiescent.
func (p *Plugin) Destroy() {
	for _, h := range p.holders {
		h.destroy(p)
	}
	p.holders = nil
	p.outputBuffers = nil
	p.inputBuffers = nil
	p.wetDryQueues = nil

	if err := p.factory.Close(); err != nil {
		p.rack.logger.Warn("closing plugin module",
			zap.String("object", p.desc.ObjectFile),
			zap.Error(err))
	}
}

// ID returns the node's rack-unique identity.
func (p *Plugin) ID() uuid.UUID { return p.id }

// Descriptor returns the node's immutable plugin class description.
func (p *Plugin) Descriptor() *plugins.Descriptor { return p.desc }

// Copies returns how many native instances the node runs.
func (p *Plugin) Copies() int { return p.copies }

// Holder returns the runtime state of copy i.
func (p *Plugin) Holder(i int) *Holder { return p.holders[i] }

// Next returns the chain successor, nil at the tail.
func (p *Plugin) Next() *Plugin { return p.next.Load() }

// Prev returns the chain predecessor, nil at the head.
func (p *Plugin) Prev() *Plugin { return p.prev.Load() }

// Enabled reports whether the node processes audio or is bypassed.
func (p *Plugin) Enabled() bool { return p.enabled.Load() }

// SetEnabled flips the node between processing and bypass.
func (p *Plugin) SetEnabled(enabled bool) { p.enabled.Store(enabled) }

// WetDryEnabled reports whether wet/dry blending is applied.
func (p *Plugin) WetDryEnabled() bool { return p.wetDryEnabled.Load() }

// SetWetDryEnabled switches wet/dry blending on or off.
func (p *Plugin) SetWetDryEnabled(enabled bool) { p.wetDryEnabled.Store(enabled) }

// WetDry returns the current wet/dry mix for a rack channel, 1 = fully wet.
func (p *Plugin) WetDry(channel int) float32 { return p.wetDryValues[channel].Load() }

// SetWetDry queues a wet/dry mix change for a rack channel. The value is
// clamped to [0, 1] and applied by the audio path at the next block; under
// sustained rapid updates excess values are dropped.
func (p *Plugin) SetWetDry(channel int, value float32) {
	if value < 0 {
		value = 0
	} else if value > 1 {
		value = 1
	}
	p.wetDryQueues[channel].Push(value)
}

// atomicFloat32 stores a float32 behind a single-word atomic so readers
// never observe a half-written value.
type atomicFloat32 struct {
	bits atomic.Uint32
}

func (a *atomicFloat32) Load() float32 {
	return math.Float32frombits(a.bits.Load())
}

func (a *atomicFloat32) Store(v float32) {
	a.bits.Store(math.Float32bits(v))
}
