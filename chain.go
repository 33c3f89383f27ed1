package jackrack

// Chain topology edits. All of these run on the control path only (the
// dispatcher serializes them) while the audio path may be traversing the
// chain concurrently. Every edit is a bounded sequence of atomic pointer
// writes ordered so a forward traversal stays valid at each intermediate
// step; the audio path never observes a torn chain. Unlinked nodes keep
// their outgoing links so an in-flight traversal standing on one still
// finds its way to the tail.

// Append links p at the tail of the chain. The new tail is published with
// a single pointer write, so a concurrent traversal either sees the old
// chain or the extended one.
func (r *Rack) Append(p *Plugin) {
	old := r.tail.Load()
	p.prev.Store(old)
	p.next.Store(nil)

	if old != nil {
		old.next.Store(p)
	} else {
		r.head.Store(p)
	}
	r.tail.Store(p)
}

// Remove unlinks p and returns it. The caller owns the removed node and is
// responsible for destroying it once the audio path has provably moved on
// (Rack.AwaitQuiescent). When the rack has an audio-server client and p's
// class declares aux channels, p's aux-port identities are handed down to
// every remaining same-class node after it, preserving the operator's
// external connections.
func (r *Rack) Remove(p *Plugin) *Plugin {
	prev := p.prev.Load()
	next := p.next.Load()

	if prev != nil {
		prev.next.Store(next)
	} else {
		r.head.Store(next)
	}
	if next != nil {
		next.prev.Store(prev)
	} else {
		r.tail.Store(prev)
	}

	if r.ports != nil && p.desc.AuxChannels > 0 {
		for other := p.next.Load(); other != nil; other = other.next.Load() {
			if other.desc.ID == p.desc.ID {
				swapAuxPorts(p, other)
			}
		}
	}

	return p
}

// Move swaps p with its predecessor (up) or successor (down). Moving the
// head up or the tail down is a no-op; callers are not expected to issue
// such moves. After relinking, aux-port identities are exchanged with the
// swapped neighbor when it is of the same plugin class.
func (r *Rack) Move(p *Plugin, up bool) {
	// The nodes surrounding p: { pp, before, p, after, nn }.
	before := p.prev.Load()
	after := p.next.Load()
	var pp, nn *Plugin
	if before != nil {
		pp = before.prev.Load()
	}
	if after != nil {
		nn = after.next.Load()
	}

	if up {
		if before == nil {
			return
		}

		// Forward links first, in an order that never forms a cycle: a
		// concurrent reader may skip one node for a single pass but always
		// reaches the tail. Backward links follow; only the control path
		// walks those.
		before.next.Store(after)
		p.next.Store(before)
		if pp != nil {
			pp.next.Store(p)
		} else {
			r.head.Store(p)
		}

		p.prev.Store(pp)
		before.prev.Store(p)
		if after != nil {
			after.prev.Store(before)
		} else {
			r.tail.Store(before)
		}
	} else {
		if after == nil {
			return
		}

		p.next.Store(nn)
		after.next.Store(p)
		if before != nil {
			before.next.Store(after)
		} else {
			r.head.Store(after)
		}

		after.prev.Store(before)
		p.prev.Store(after)
		if nn != nil {
			nn.prev.Store(p)
		} else {
			r.tail.Store(p)
		}
	}

	if r.ports != nil && p.desc.AuxChannels > 0 {
		var other *Plugin
		if up {
			other = p.next.Load()
		} else {
			other = p.prev.Load()
		}
		if other != nil && other.desc.ID == p.desc.ID {
			swapAuxPorts(p, other)
		}
	}
}

// Replace splices replacement into exactly the position p occupied and
// returns the displaced p for destruction. replacement must not be linked
// elsewhere. The same aux-port hand-down as Remove applies.
func (r *Rack) Replace(p, replacement *Plugin) *Plugin {
	prev := p.prev.Load()
	next := p.next.Load()

	replacement.prev.Store(prev)
	replacement.next.Store(next)

	if prev != nil {
		prev.next.Store(replacement)
	} else {
		r.head.Store(replacement)
	}
	if next != nil {
		next.prev.Store(replacement)
	} else {
		r.tail.Store(replacement)
	}

	if r.ports != nil && p.desc.AuxChannels > 0 {
		for other := p.next.Load(); other != nil; other = other.next.Load() {
			if other.desc.ID == p.desc.ID {
				swapAuxPorts(p, other)
			}
		}
	}

	return p
}

// swapAuxPorts exchanges the registered aux-port handles of two same-class
// nodes pairwise per copy. Both derive copies from the same descriptor and
// rack channel count, so the holder arrays line up.
func swapAuxPorts(a, b *Plugin) {
	for copy := 0; copy < a.copies; copy++ {
		a.holders[copy].auxPorts, b.holders[copy].auxPorts =
			b.holders[copy].auxPorts, a.holders[copy].auxPorts
	}
}
