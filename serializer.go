package jackrack

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/shaban/jackrack/plugins"
)

// RackState represents the complete serializable state of a rack
type RackState struct {
	Version    string        `json:"version"`
	Channels   int           `json:"channels"`
	SampleRate int           `json:"sampleRate"`
	BufferSize int           `json:"bufferSize"`
	Plugins    []PluginState `json:"plugins"`
}

// PluginState represents the serializable state of one chain node
type PluginState struct {
	Descriptor    uint32      `json:"descriptor"`
	Enabled       bool        `json:"enabled"`
	WetDryEnabled bool        `json:"wetDryEnabled"`
	WetDry        []float32   `json:"wetDry"`
	Controls      [][]float32 `json:"controls"` // per copy, per control port
}

// DescriptorResolver maps a stored plugin class id back to its descriptor
// when a rack is restored.
type DescriptorResolver func(id uint32) (*plugins.Descriptor, error)

// Serializer handles rack state persistence and restoration.
//
// Both directions are control-path operations: they must not run
// concurrently with other rack edits, and restoring requires a deactivated
// rack because it writes the holders' mirrors directly.
type Serializer struct {
	dispatcher *Dispatcher
	resolve    DescriptorResolver
	version    string
}

// NewSerializer creates a serializer over the dispatcher's rack
func NewSerializer(dispatcher *Dispatcher, resolve DescriptorResolver) *Serializer {
	return &Serializer{
		dispatcher: dispatcher,
		resolve:    resolve,
		version:    "1.0.0", // Rack state format version
	}
}

// GetState captures the chain order, flags and parameter values
func (s *Serializer) GetState() RackState {
	r := s.dispatcher.rack

	state := RackState{
		Version:    s.version,
		Channels:   r.channels,
		SampleRate: r.sampleRate,
		BufferSize: r.bufferSize,
	}

	for p := r.Head(); p != nil; p = p.Next() {
		ps := PluginState{
			Descriptor:    p.desc.ID,
			Enabled:       p.Enabled(),
			WetDryEnabled: p.WetDryEnabled(),
			WetDry:        make([]float32, r.channels),
			Controls:      make([][]float32, p.copies),
		}
		for ch := 0; ch < r.channels; ch++ {
			ps.WetDry[ch] = p.WetDry(ch)
		}
		for copy := 0; copy < p.copies; copy++ {
			controls := make([]float32, len(p.desc.ControlPorts))
			copyControls := p.holders[copy].controlValues
			for i := range controls {
				controls[i] = copyControls[i]
			}
			ps.Controls[copy] = controls
		}
		state.Plugins = append(state.Plugins, ps)
	}

	return state
}

// SetState rebuilds the chain from the given state. Existing nodes are
// removed first; every stored node is recreated through the normal
// create-and-append path, then its flags and values are reapplied.
func (s *Serializer) SetState(state RackState) error {
	if state.Version != s.version {
		return fmt.Errorf("incompatible rack state version: got %s, expected %s",
			state.Version, s.version)
	}

	r := s.dispatcher.rack
	if r.Active() {
		return fmt.Errorf("cannot restore rack state while the audio path is active")
	}
	if state.Channels != r.channels {
		return fmt.Errorf("rack state has %d channels, rack has %d", state.Channels, r.channels)
	}

	for p := r.Head(); p != nil; {
		id := p.ID()
		p = p.Next()
		if err := s.dispatcher.RemovePlugin(id); err != nil {
			return fmt.Errorf("failed to clear chain during restore: %w", err)
		}
	}

	for i, ps := range state.Plugins {
		desc, err := s.resolve(ps.Descriptor)
		if err != nil {
			return fmt.Errorf("failed to resolve descriptor %d at position %d: %w", ps.Descriptor, i, err)
		}

		p, err := s.dispatcher.AddPlugin(desc)
		if err != nil {
			return fmt.Errorf("failed to recreate plugin %q at position %d: %w", desc.Name, i, err)
		}

		p.SetEnabled(ps.Enabled)
		p.SetWetDryEnabled(ps.WetDryEnabled)
		for ch := 0; ch < r.channels && ch < len(ps.WetDry); ch++ {
			p.wetDryValues[ch].Store(ps.WetDry[ch])
		}
		for copy := 0; copy < p.copies && copy < len(ps.Controls); copy++ {
			for ctl := 0; ctl < len(p.desc.ControlPorts) && ctl < len(ps.Controls[copy]); ctl++ {
				p.holders[copy].setControlDirect(p, ctl, ps.Controls[copy][ctl])
			}
		}
	}

	return nil
}

// SaveToWriter saves the rack state to a writer (JSON format)
func (s *Serializer) SaveToWriter(writer io.Writer) error {
	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(s.GetState())
}

// LoadFromReader restores the rack state from a reader (JSON format)
func (s *Serializer) LoadFromReader(reader io.Reader) error {
	var state RackState
	if err := json.NewDecoder(reader).Decode(&state); err != nil {
		return fmt.Errorf("failed to decode rack state: %w", err)
	}
	return s.SetState(state)
}
