// Package jackclient adapts a JACK client to the rack's audio-server
// capability. It only covers what the rack needs: opening a named client
// and registering/unregistering audio ports for the auxiliary channels.
package jackclient

import (
	"fmt"

	"github.com/xthexder/go-jack"

	"github.com/shaban/jackrack"
)

// Client wraps a connected JACK client. It satisfies jackrack.PortClient.
type Client struct {
	client *jack.Client

	ins     []*jack.Port
	outs    []*jack.Port
	scratch [][]float32
	rack    *jackrack.Rack
}

// Open connects to the JACK server under the given client name without
// auto-starting a server.
func Open(name string) (*Client, error) {
	client, status := jack.ClientOpen(name, jack.NoStartServer)
	if client == nil || status != 0 {
		return nil, fmt.Errorf("jackclient: opening client %q failed (status %d)", name, status)
	}
	return &Client{client: client}, nil
}

// SampleRate returns the JACK graph sample rate, for building a rack
// Config that matches the server.
func (c *Client) SampleRate() int {
	return int(c.client.GetSampleRate())
}

// BufferSize returns the JACK graph buffer size in frames.
func (c *Client) BufferSize() int {
	return int(c.client.GetBufferSize())
}

// RegisterPort registers one audio port with the JACK graph.
func (c *Client) RegisterPort(name string, isInput bool) (jackrack.PortHandle, error) {
	flags := uint64(jack.PortIsOutput)
	if isInput {
		flags = jack.PortIsInput
	}
	port := c.client.PortRegister(name, jack.DEFAULT_AUDIO_TYPE, flags, 0)
	if port == nil {
		return nil, fmt.Errorf("jackclient: port registration for %q refused", name)
	}
	return port, nil
}

// UnregisterPort removes a previously registered port from the graph.
func (c *Client) UnregisterPort(h jackrack.PortHandle) error {
	port, ok := h.(*jack.Port)
	if !ok {
		return fmt.Errorf("jackclient: foreign port handle %T", h)
	}
	if code := c.client.PortUnregister(port); code != 0 {
		return fmt.Errorf("jackclient: port unregistration failed (code %d)", code)
	}
	return nil
}

// BindRack registers one main input and output port per rack channel,
// installs a process callback that runs the chain once per JACK cycle, and
// activates both the client and the rack. The rack's buffer size must match
// the server's.
func (c *Client) BindRack(r *jackrack.Rack) error {
	if r.BufferSize() != c.BufferSize() {
		return fmt.Errorf("jackclient: rack buffer size %d does not match server buffer size %d",
			r.BufferSize(), c.BufferSize())
	}

	channels := r.Channels()
	c.ins = make([]*jack.Port, channels)
	c.outs = make([]*jack.Port, channels)
	c.scratch = make([][]float32, channels)
	for ch := 0; ch < channels; ch++ {
		in := c.client.PortRegister(fmt.Sprintf("in_%d", ch+1), jack.DEFAULT_AUDIO_TYPE, jack.PortIsInput, 0)
		out := c.client.PortRegister(fmt.Sprintf("out_%d", ch+1), jack.DEFAULT_AUDIO_TYPE, jack.PortIsOutput, 0)
		if in == nil || out == nil {
			return fmt.Errorf("jackclient: registering main ports for channel %d refused", ch)
		}
		c.ins[ch] = in
		c.outs[ch] = out
		c.scratch[ch] = make([]float32, r.BufferSize())
	}
	c.rack = r

	if code := c.client.SetProcessCallback(c.process); code != 0 {
		return fmt.Errorf("jackclient: installing process callback failed (code %d)", code)
	}
	if code := c.client.Activate(); code != 0 {
		return fmt.Errorf("jackclient: activating client failed (code %d)", code)
	}
	r.Activate()
	return nil
}

// process runs inside the JACK realtime thread once per cycle.
func (c *Client) process(nframes uint32) int {
	frames := int(nframes)
	if frames > c.rack.BufferSize() {
		frames = c.rack.BufferSize()
	}

	for ch, port := range c.ins {
		samples := port.GetBuffer(nframes)
		dst := c.scratch[ch]
		for i := 0; i < frames; i++ {
			dst[i] = float32(samples[i])
		}
	}

	out := c.rack.RunBlock(c.scratch)

	for ch, port := range c.outs {
		samples := port.GetBuffer(nframes)
		src := out[ch]
		for i := 0; i < frames; i++ {
			samples[i] = jack.AudioSample(src[i])
		}
	}
	return 0
}

// Close disconnects from the JACK server.
func (c *Client) Close() error {
	if code := c.client.Close(); code != 0 {
		return fmt.Errorf("jackclient: closing client failed (code %d)", code)
	}
	return nil
}
