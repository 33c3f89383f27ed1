package jackrack

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/shaban/jackrack/fifo"
	"github.com/shaban/jackrack/plugins"
)

// Holder is the runtime state of one plugin copy: the native instance, the
// control-parameter mirror and queues, the status mirror and the copy's
// auxiliary port handles.
//
// controlValues mirrors the value last pushed into the instance. After
// creation it is written only by the audio path while draining the queues,
// so mirror and instance never drift for longer than one block.
type Holder struct {
	effect plugins.Effect

	controlQueues []*fifo.FIFO
	controlValues []float32
	statusValues  []float32

	// auxPorts is non-nil iff the descriptor declares aux channels and the
	// rack has an audio-server client. Aux-port identities travel between
	// same-class nodes on chain edits, so these handles may outlive the
	// node they were registered for.
	auxPorts []PortHandle
}

// newHolder builds the runtime state for copy i of p, seeds every control
// port with its descriptor default, pushes each default into the native
// instance once, and registers the copy's auxiliary ports when the rack has
// an audio-server client. Port registration failure is fatal: the rack
// cannot offer the routing surface it promised.
func newHolder(p *Plugin, copy int, effect plugins.Effect) *Holder {
	desc := p.desc
	h := &Holder{effect: effect}

	if n := len(desc.ControlPorts); n > 0 {
		h.controlQueues = make([]*fifo.FIFO, n)
		h.controlValues = make([]float32, n)
		for i := 0; i < n; i++ {
			h.controlQueues[i] = fifo.New(controlQueueDepth)
			v := desc.DefaultControlValue(i, p.rack.sampleRate)
			h.controlValues[i] = v
			effect.SetParameter(instanceParamIndex(effect, desc.ControlPorts[i].Index), v)
		}
	}

	if desc.StatusPortCount > 0 {
		h.statusValues = make([]float32, desc.StatusPortCount)
	}

	if p.rack.ports != nil && desc.AuxChannels > 0 {
		h.registerAuxPorts(p, copy)
	}

	return h
}

// registerAuxPorts registers one audio-server port per auxiliary channel,
// named deterministically from the plugin name, the node's type-instance
// index, the 1-based copy index, the direction and the channel number.
func (h *Holder) registerAuxPorts(p *Plugin, copy int) {
	desc := p.desc
	name := portBaseName(desc.Name)

	dir := 'o'
	if desc.AuxAreInput {
		dir = 'i'
	}

	h.auxPorts = make([]PortHandle, desc.AuxChannels)
	for i := 0; i < desc.AuxChannels; i++ {
		portName := fmt.Sprintf("%s_%d-%d_%c%d", name, p.typeInstance, copy+1, dir, i+1)

		handle, err := p.rack.ports.RegisterPort(portName, desc.AuxAreInput)
		if err != nil {
			p.rack.logger.Fatal("could not register audio-server port",
				zap.String("plugin", desc.Name),
				zap.Error(&PortRegistrationError{PortName: portName, Err: err}))
		}
		h.auxPorts[i] = handle
	}
}

// destroy releases the holder's queues and mirrors, unregisters its aux
// ports and closes the native instance. Unregistration failures are logged
// and otherwise ignored.
func (h *Holder) destroy(p *Plugin) {
	if h.auxPorts != nil {
		for _, port := range h.auxPorts {
			if err := p.rack.ports.UnregisterPort(port); err != nil {
				p.rack.logger.Warn("could not unregister audio-server port",
					zap.String("plugin", p.desc.Name),
					zap.Error(&PortUnregistrationError{Err: err}))
			}
		}
		h.auxPorts = nil
	}

	h.controlQueues = nil
	h.controlValues = nil
	h.statusValues = nil

	_ = h.effect.Dispatch(plugins.OpClose, 0, 0)
}

// Effect returns the holder's native instance.
func (h *Holder) Effect() plugins.Effect { return h.effect }

// ControlValue returns the mirror of control port i.
func (h *Holder) ControlValue(i int) float32 { return h.controlValues[i] }

// StatusValue returns the mirror of status port i.
func (h *Holder) StatusValue(i int) float32 { return h.statusValues[i] }

// AuxPort returns the handle of auxiliary channel i, nil when the holder
// has no registered ports.
func (h *Holder) AuxPort(i int) PortHandle {
	if h.auxPorts == nil {
		return nil
	}
	return h.auxPorts[i]
}

// PushControl queues a value for control port i, clamped to the port's
// declared range. The push never blocks; when the queue is full the value
// is dropped and callers must tolerate the loss.
func (h *Holder) PushControl(p *Plugin, i int, value float32) bool {
	return h.controlQueues[i].Push(p.desc.ClampControlValue(i, p.rack.sampleRate, value))
}

// applyControlUpdates drains every control queue in enqueue order into the
// mirror and the native instance. Audio path only; a plain Pop loop keeps
// the hot path free of allocation.
func (h *Holder) applyControlUpdates(desc *plugins.Descriptor) {
	for i, q := range h.controlQueues {
		idx := instanceParamIndex(h.effect, desc.ControlPorts[i].Index)
		for {
			v, ok := q.Pop()
			if !ok {
				break
			}
			h.controlValues[i] = v
			h.effect.SetParameter(idx, v)
		}
	}
}

// setControlDirect writes a control value straight into the mirror and the
// native instance, bypassing the queues. Only valid while the audio path is
// not running (node construction and state restore).
func (h *Holder) setControlDirect(p *Plugin, i int, v float32) {
	v = p.desc.ClampControlValue(i, p.rack.sampleRate, v)
	h.controlValues[i] = v
	h.effect.SetParameter(instanceParamIndex(h.effect, p.desc.ControlPorts[i].Index), v)
}

// instanceParamIndex maps a descriptor port index to the native instance's
// parameter numbering, which starts after its audio inputs and outputs.
func instanceParamIndex(e plugins.Effect, portIndex int) int {
	return portIndex - (e.NumInputs() + e.NumOutputs())
}

// portBaseName makes a plugin name safe for audio-server port names:
// truncated to seven characters, lowercased, spaces replaced.
func portBaseName(name string) string {
	if len(name) > 7 {
		name = name[:7]
	}
	name = strings.ToLower(name)
	return strings.ReplaceAll(name, " ", "_")
}
