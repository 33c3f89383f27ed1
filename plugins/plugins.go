// Package plugins models binary effect plugins for the rack host.
//
// Model:
//   - A Descriptor is the immutable metadata of one plugin class: identity,
//     channel layout, parameter tables and ranges. Many rack nodes may share
//     one Descriptor.
//   - An Effect is one live native instance behind the plugin ABI. The host
//     only ever touches it through SetParameter, Dispatch and the port
//     counts; everything else stays inside the binary.
//   - A Library opens a plugin binary and hands out an EffectFactory for a
//     Descriptor. Loading and symbol resolution are fallible; instantiation
//     is fallible per copy.
package plugins

import "fmt"

// ControlPort describes one controllable parameter of a plugin.
type ControlPort struct {
	// Index is the port index in the descriptor's port table. The native
	// instance derives its own parameter index from it (see Effect).
	Index int
	Name  string
	Lower float32
	Upper float32
	// Default is the design-time default. When SampleRateScaled is set the
	// effective default and bounds are multiplied by the host sample rate.
	Default          float32
	SampleRateScaled bool
}

// Bounds returns the port's effective value range at the given sample rate.
func (p ControlPort) Bounds(sampleRate int) (lower, upper float32) {
	if p.SampleRateScaled {
		return p.Lower * float32(sampleRate), p.Upper * float32(sampleRate)
	}
	return p.Lower, p.Upper
}

// Descriptor is the immutable description of a plugin class.
type Descriptor struct {
	// ID is the stable plugin class identity. Nodes with equal IDs are
	// interchangeable for external port routing purposes.
	ID   uint32
	Name string

	// ObjectFile and Index locate the plugin inside its binary.
	ObjectFile string
	Index      int

	// Channels is the number of main audio channels one instance covers.
	Channels int

	// AuxChannels is the number of extra routing channels each copy exposes
	// to the audio-server graph; AuxAreInput gives their direction.
	AuxChannels int
	AuxAreInput bool

	AudioInputPortIndices []int

	ControlPorts    []ControlPort
	StatusPortCount int
}

// Copies returns how many parallel instances are needed to cover
// rackChannels rack channels.
func (d *Descriptor) Copies(rackChannels int) int {
	if d.Channels <= 0 {
		return 1
	}
	copies := rackChannels / d.Channels
	if rackChannels%d.Channels != 0 {
		copies++
	}
	if copies < 1 {
		copies = 1
	}
	return copies
}

// DefaultControlValue computes the effective default for control port i at
// the given sample rate.
func (d *Descriptor) DefaultControlValue(i int, sampleRate int) float32 {
	port := d.ControlPorts[i]
	if port.SampleRateScaled {
		return port.Default * float32(sampleRate)
	}
	return port.Default
}

// ClampControlValue limits v to control port i's effective range at the
// given sample rate.
func (d *Descriptor) ClampControlValue(i int, sampleRate int, v float32) float32 {
	lower, upper := d.ControlPorts[i].Bounds(sampleRate)
	if v < lower {
		return lower
	}
	if v > upper {
		return upper
	}
	return v
}

// Opcode selects a Dispatch operation on a native instance.
type Opcode int

const (
	// OpSetSampleRate propagates the host sample rate; value carries it.
	OpSetSampleRate Opcode = iota
	// OpSetBlockSize propagates the host block size; value carries it.
	OpSetBlockSize
	// OpOpen activates the instance.
	OpOpen
	// OpClose releases the instance's native resources.
	OpClose
)

// Effect is the capability surface of one loaded native instance.
//
// Parameter indices are instance-relative: the native side numbers its
// parameters after its audio inputs and outputs, so a descriptor port index
// p maps to instance parameter p - (NumInputs() + NumOutputs()).
type Effect interface {
	NumInputs() int
	NumOutputs() int
	SetParameter(index int, value float32)
	Dispatch(op Opcode, value float32, opt float32) error
}

// EffectFactory instantiates native instances of one plugin class. It owns
// the underlying module handle; Close releases it once every instance made
// from it has been closed.
type EffectFactory interface {
	Instantiate() (Effect, error)
	Close() error
}

// Library loads plugin binaries and resolves their entry points.
type Library interface {
	// Open resolves the entry point for desc inside its object file. It
	// fails when the file cannot be opened or the declared index is not
	// found there.
	Open(desc *Descriptor) (EffectFactory, error)
}

// Validate reports descriptor inconsistencies that would make a node
// unconstructible.
func (d *Descriptor) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("plugins: descriptor %d has no name", d.ID)
	}
	if d.Channels < 1 {
		return fmt.Errorf("plugins: descriptor %q declares %d channels", d.Name, d.Channels)
	}
	if d.AuxChannels < 0 {
		return fmt.Errorf("plugins: descriptor %q declares negative aux channels", d.Name)
	}
	for i, p := range d.ControlPorts {
		if p.Upper < p.Lower {
			return fmt.Errorf("plugins: descriptor %q control port %d has inverted range", d.Name, i)
		}
	}
	return nil
}
