// Package midimap routes incoming MIDI control-change messages into rack
// parameter updates.
//
// A binding ties one (MIDI channel, controller) pair to one control port of
// one plugin copy. Incoming 0..127 controller values are scaled into the
// port's declared range and pushed through the dispatcher, which keeps the
// holders' queues single-producer. Unbound messages are ignored.
package midimap

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"go.uber.org/zap"

	"github.com/shaban/jackrack"
)

// Target identifies one control port of one plugin copy.
type Target struct {
	Node    uuid.UUID
	Copy    int
	Control int
}

type bindingKey struct {
	channel    uint8
	controller uint8
}

// Map dispatches MIDI control changes onto rack parameters.
type Map struct {
	dispatcher *jackrack.Dispatcher
	logger     *zap.Logger

	mu       sync.RWMutex
	bindings map[bindingKey]Target
}

// New creates an empty MIDI map feeding the given dispatcher. A nil logger
// defaults to no-op.
func New(dispatcher *jackrack.Dispatcher, logger *zap.Logger) *Map {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Map{
		dispatcher: dispatcher,
		logger:     logger,
		bindings:   make(map[bindingKey]Target),
	}
}

// Bind maps controller cc on MIDI channel ch to a rack parameter. The
// target's control port range is captured lazily on every message, so a
// binding may be created before or after the node exists.
func (m *Map) Bind(ch, cc uint8, target Target) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bindings[bindingKey{channel: ch, controller: cc}] = target
}

// Unbind removes the binding for controller cc on MIDI channel ch.
func (m *Map) Unbind(ch, cc uint8) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.bindings, bindingKey{channel: ch, controller: cc})
}

// Bindings returns a copy of the current binding table.
func (m *Map) Bindings() map[uint8]map[uint8]Target {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[uint8]map[uint8]Target)
	for key, target := range m.bindings {
		if out[key.channel] == nil {
			out[key.channel] = make(map[uint8]Target)
		}
		out[key.channel][key.controller] = target
	}
	return out
}

// HandleMessage processes one incoming MIDI message. Only control-change
// messages with a live binding have any effect.
func (m *Map) HandleMessage(msg midi.Message) {
	var ch, cc, val uint8
	if !msg.GetControlChange(&ch, &cc, &val) {
		return
	}

	m.mu.RLock()
	target, ok := m.bindings[bindingKey{channel: ch, controller: cc}]
	m.mu.RUnlock()
	if !ok {
		return
	}

	desc, ok := m.dispatcher.Describe(target.Node)
	if !ok {
		m.logger.Debug("midi binding points at unlinked plugin",
			zap.String("node", target.Node.String()))
		return
	}
	if target.Control < 0 || target.Control >= len(desc.ControlPorts) {
		m.logger.Warn("midi binding points at invalid control port",
			zap.String("plugin", desc.Name),
			zap.Int("control", target.Control))
		return
	}

	lower, upper := desc.ControlPorts[target.Control].Bounds(m.dispatcher.SampleRate())
	scaled := lower + (upper-lower)*float32(val)/127

	if err := m.dispatcher.SetParameter(target.Node, target.Copy, target.Control, scaled); err != nil {
		m.logger.Warn("midi parameter update rejected",
			zap.String("plugin", desc.Name),
			zap.Error(err))
	}
}

// ListenTo starts receiving from a MIDI input port. The returned stop
// function detaches the listener.
func (m *Map) ListenTo(in drivers.In) (func(), error) {
	stop, err := midi.ListenTo(in, func(msg midi.Message, _ int32) {
		m.HandleMessage(msg)
	})
	if err != nil {
		return nil, fmt.Errorf("midimap: listening on %q: %w", in.String(), err)
	}
	return stop, nil
}
