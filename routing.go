package jackrack

// Per-block port routing. Both operations run on the audio path, once per
// block, strictly in chain order before the native instances process: each
// node's inputs are mapped onto the previous node's just-produced output
// buffers and its outputs onto its own buffers, establishing zero-copy
// pass-through. The recorded buffer mapping is the contract; the
// single-sample parameter feed below mirrors what the native side currently
// accepts.
// TODO: replace the per-sample parameter feed with a block-transfer opcode
// on the plugin ABI.

// ConnectInputPorts maps the upstream per-channel buffers onto the node's
// audio-input ports, one channel per copy in turn, and records the mapping.
func (p *Plugin) ConnectInputPorts(inputs [][]float32) {
	if p == nil || inputs == nil {
		return
	}

	rackChannel := 0
	for copy := 0; copy < p.copies; copy++ {
		effect := p.holders[copy].effect
		for channel := 0; channel < p.desc.Channels && rackChannel < len(inputs); channel++ {
			if channel < len(p.desc.AudioInputPortIndices) && len(inputs[rackChannel]) > 0 {
				idx := instanceParamIndex(effect, p.desc.AudioInputPortIndices[channel])
				effect.SetParameter(idx, inputs[rackChannel][0])
			}
			rackChannel++
		}
	}

	p.inputBuffers = inputs
}

// ConnectOutputPorts maps the node's own per-channel output buffers onto
// its audio-output ports.
func (p *Plugin) ConnectOutputPorts() {
	if p == nil {
		return
	}

	rackChannel := 0
	for copy := 0; copy < p.copies; copy++ {
		effect := p.holders[copy].effect
		for channel := 0; channel < p.desc.Channels && rackChannel < len(p.outputBuffers); channel++ {
			if channel < len(p.desc.AudioInputPortIndices) && len(p.outputBuffers[rackChannel]) > 0 {
				idx := instanceParamIndex(effect, p.desc.AudioInputPortIndices[channel])
				effect.SetParameter(idx, p.outputBuffers[rackChannel][0])
			}
			rackChannel++
		}
	}
}

// InputBuffers returns the upstream buffers recorded by the last
// ConnectInputPorts call.
func (p *Plugin) InputBuffers() [][]float32 { return p.inputBuffers }

// OutputBuffers returns the node's own per-channel output buffers.
func (p *Plugin) OutputBuffers() [][]float32 { return p.outputBuffers }
