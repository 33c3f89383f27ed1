package jackrack

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/shaban/jackrack/plugins"
)

func testResolver() DescriptorResolver {
	return func(id uint32) (*plugins.Descriptor, error) {
		switch id {
		case 1:
			return testDescriptor(1, "comp"), nil
		case 2:
			return testDescriptor(2, "eq"), nil
		case 7:
			return auxDescriptor(7, "vocoder"), nil
		default:
			return nil, fmt.Errorf("unknown plugin class %d", id)
		}
	}
}

func TestSerializerRoundTrip(t *testing.T) {
	d, r := newTestDispatcher(t)
	s := NewSerializer(d, testResolver())

	a, _ := d.AddPlugin(testDescriptor(1, "comp"))
	b, _ := d.AddPlugin(testDescriptor(2, "eq"))

	_ = d.SetPluginEnabled(a.ID(), true)
	_ = d.SetWetDryEnabled(a.ID(), true)
	_ = d.SetWetDry(a.ID(), 0, 0.3)
	_ = d.SetParameter(a.ID(), 0, 0, 1.75)
	_ = d.SetParameter(b.ID(), 0, 1, 0.1)
	r.RunBlock(blockBuffers(2, 256, 0)) // drain queues into the mirrors

	var buf bytes.Buffer
	if err := s.SaveToWriter(&buf); err != nil {
		t.Fatalf("save: %v", err)
	}

	if err := s.LoadFromReader(&buf); err != nil {
		t.Fatalf("load: %v", err)
	}

	chain := chainForward(r)
	if len(chain) != 2 {
		t.Fatalf("want 2 restored nodes, got %d", len(chain))
	}
	ra, rb := chain[0], chain[1]

	if ra.Descriptor().ID != 1 || rb.Descriptor().ID != 2 {
		t.Fatal("chain order not preserved across the round trip")
	}
	if ra == a || rb == b {
		t.Fatal("restore reused old nodes instead of recreating them")
	}
	if !ra.Enabled() || ra.Enabled() == rb.Enabled() {
		t.Fatal("enable flags not restored")
	}
	if !ra.WetDryEnabled() {
		t.Fatal("wet/dry flag not restored")
	}
	if got := ra.WetDry(0); got != 0.3 {
		t.Errorf("wet/dry channel 0: want 0.3, got %v", got)
	}
	if got := ra.WetDry(1); got != 1.0 {
		t.Errorf("wet/dry channel 1: want untouched default 1.0, got %v", got)
	}
	if got := ra.Holder(0).ControlValue(0); got != 1.75 {
		t.Errorf("restored control: want 1.75, got %v", got)
	}
	if got := rb.Holder(0).ControlValue(1); got != 0.1 {
		t.Errorf("restored control: want 0.1, got %v", got)
	}
}

func TestSerializerKeepsRateScaledControls(t *testing.T) {
	d, r := newTestDispatcher(t)
	s := NewSerializer(d, testResolver())

	// Port 1 of the stock descriptor is rate scaled: its seeded default is
	// 0.25 * 48000. Restore must reproduce it, not clamp it back to the
	// design-time range.
	p, err := d.AddPlugin(testDescriptor(1, "comp"))
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if got := p.Holder(0).ControlValue(1); got != 0.25*48000 {
		t.Fatalf("seeded default: want %v, got %v", 0.25*48000.0, got)
	}

	var buf bytes.Buffer
	if err := s.SaveToWriter(&buf); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.LoadFromReader(&buf); err != nil {
		t.Fatalf("load: %v", err)
	}

	restored := chainForward(r)
	if len(restored) != 1 {
		t.Fatalf("want 1 restored node, got %d", len(restored))
	}
	if got := restored[0].Holder(0).ControlValue(1); got != 0.25*48000 {
		t.Fatalf("round trip changed rate-scaled control: want %v, got %v", 0.25*48000.0, got)
	}
}

func TestSerializerVersionMismatch(t *testing.T) {
	d, _ := newTestDispatcher(t)
	s := NewSerializer(d, testResolver())

	err := s.SetState(RackState{Version: "0.9.0", Channels: 2})
	if err == nil {
		t.Fatal("incompatible version accepted")
	}
}

func TestSerializerRefusesActiveRack(t *testing.T) {
	d, r := newTestDispatcher(t)
	s := NewSerializer(d, testResolver())

	r.Activate()
	defer r.Deactivate()

	state := s.GetState()
	if err := s.SetState(state); err == nil {
		t.Fatal("restore accepted while the audio path is active")
	}
}

func TestSerializerChannelMismatch(t *testing.T) {
	d, _ := newTestDispatcher(t)
	s := NewSerializer(d, testResolver())

	state := s.GetState()
	state.Channels = 8
	if err := s.SetState(state); err == nil {
		t.Fatal("channel-count mismatch accepted")
	}
}

func TestSerializerUnknownDescriptor(t *testing.T) {
	d, r := newTestDispatcher(t)
	s := NewSerializer(d, testResolver())

	state := s.GetState()
	state.Plugins = []PluginState{{Descriptor: 999}}
	if err := s.SetState(state); err == nil {
		t.Fatal("unresolvable plugin class accepted")
	}
	checkChainConsistent(t, r)
}

func TestSerializerClearsExistingChain(t *testing.T) {
	d, r := newTestDispatcher(t)
	s := NewSerializer(d, testResolver())

	stale, _ := d.AddPlugin(testDescriptor(1, "comp"))
	_ = stale

	if err := s.SetState(RackState{Version: "1.0.0", Channels: 2}); err != nil {
		t.Fatalf("restoring an empty state: %v", err)
	}
	checkChainConsistent(t, r)
}
