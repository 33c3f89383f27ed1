package jackrack

// The audio-path block walk. RunBlock is the only chain reader: it never
// mutates links, never blocks, never allocates and never takes a lock.
// Everything it reads is either immutable, a single-word atomic, or fed to
// it through the holders' SPSC queues.

// RunBlock walks the chain head to tail for one audio block: it drains
// every node's pending parameter and wet/dry updates, routes each enabled
// node's ports in chain order, applies wet/dry blending, and finally bumps
// the block generation the control path uses as its grace marker.
//
// in holds one buffer per rack channel. The return value is the buffer set
// the last enabled node produced, or in itself when every node is
// bypassed.
func (r *Rack) RunBlock(in [][]float32) [][]float32 {
	buffers := in
	for p := r.head.Load(); p != nil; p = p.next.Load() {
		p.applyUpdates()

		if !p.enabled.Load() {
			// Bypassed: downstream nodes read the upstream buffers.
			continue
		}

		p.ConnectInputPorts(buffers)
		p.ConnectOutputPorts()

		if p.wetDryEnabled.Load() && buffers != nil {
			p.blendWetDry(buffers)
		}

		buffers = p.outputBuffers
	}

	r.generation.Add(1)
	return buffers
}

// applyUpdates drains the node's control and wet/dry queues. Updates are
// applied in enqueue order; dropped excess never reaches here.
func (p *Plugin) applyUpdates() {
	for _, h := range p.holders {
		h.applyControlUpdates(p.desc)
	}
	for ch, q := range p.wetDryQueues {
		for {
			v, ok := q.Pop()
			if !ok {
				break
			}
			p.wetDryValues[ch].Store(v)
		}
	}
}

// blendWetDry mixes the dry upstream signal into the node's output buffers
// per channel: out = wet*out + (1-wet)*dry.
func (p *Plugin) blendWetDry(dry [][]float32) {
	for ch := 0; ch < len(p.outputBuffers) && ch < len(dry); ch++ {
		wet := p.wetDryValues[ch].Load()
		out := p.outputBuffers[ch]
		in := dry[ch]
		n := len(out)
		if len(in) < n {
			n = len(in)
		}
		for i := 0; i < n; i++ {
			out[i] = wet*out[i] + (1-wet)*in[i]
		}
	}
}
