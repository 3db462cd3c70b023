package radixtree

// descendPolicy decides what descend() does when it reaches a record that
// is not NODE. It generalizes the teacher's pair of near-duplicate walks
// (pkg/iptrie.go's insertV4, which always creates, vs. containsV4, which
// always stops) into the single parameterized walk spec.md §9 calls for:
// "implementers may also model it as two distinct descent routines
// sharing a helper", but a closure is the more idiomatic Go shape and
// matches how the teacher already passes behavior as a func value
// (pkg/logs.TokenProvider-style small interfaces, ipmatcher's atomic
// swap callback). materialize returns the record to install in place of
// the non-NODE one found, or ok=false to mean "stop" (the halt policy).
type descendPolicy func(old Record) (next Record, ok bool)

// halt never creates a node: it always stops descent, used by every
// read-only operation (Contains, LookupHost) per spec.md §4.C's note
// that only materialize may mutate the tree along the path.
func halt(Record) (Record, bool) { return Record{}, false }

// materialize creates and installs a new child node whenever descent
// finds a non-NODE record. If the old record was DATA(k), the new node's
// both sides start as DATA(k) too, so the subtree continues to represent
// the same prefix assignment the old leaf did (spec.md §4.C); if EMPTY,
// the new node starts fully empty.
func (t *Tree) materialize(old Record) (Record, bool) {
	h := t.pool.alloc()
	if old.tag == recData {
		child := t.pool.get(h)
		child.Left = old
		child.Right = old
	}
	return nodeRecord(h), true
}

// descend walks network's bits from the root, following NODE records and
// invoking policy whenever it finds one that isn't NODE, for every
// decision strictly above lastBit. It returns the final node reached and
// the bit position of the final (mask-length-th) decision, which the
// caller reads or writes directly without descending into it — per
// spec.md §4.C's postcondition, "the caller distinguishes which side the
// target bit selects at final_current_bit". If a non-NODE record
// terminates the walk early (an existing, shorter prefix already covers
// this address), descend returns that position instead, at whatever bit
// it stopped on.
func (t *Tree) descend(network Network, policy descendPolicy) (h nodeHandle, bitPos int) {
	h = t.root
	lastBit := network.lastBit()

	for bit := network.Family.maxDepth0(); bit > lastBit; bit-- {
		n := t.pool.get(h)
		side := network.bit(bit)
		rec := n.record(side)

		if rec.IsNode() {
			h = rec.child
			continue
		}

		next, ok := policy(rec)
		if !ok {
			return h, bit
		}
		n.setRecord(side, next)
		if next.IsNode() {
			h = next.child
			continue
		}
		// policy installed a non-NODE record (shouldn't happen for the
		// policies this package defines, but keep the walk well-defined):
		// stop here, this is as far as a NODE-following walk can go.
		return h, bit
	}

	return h, lastBit
}
