package radixtree

// walk performs a depth-first, pre-order traversal of every node
// reachable from the root, visiting each exactly once. Per spec.md §4.E
// and §9, aliasing (AliasIPv4Subtree) makes the structure a DAG rather
// than a pure tree — the same node can be reached from more than one
// parent — so a visited set keyed by node identity is essential:
// without it, shared subtrees would be numbered and encoded more than
// once. visit is called before descending into children (callback
// BEFORE descent), left before right, matching spec.md's node-numbering
// order requirement exactly.
//
// Recursion depth is bounded by the address family's bit width (32 or
// 128), so plain call-stack recursion is safe (spec.md §9).
func (t *Tree) walk(visit func(h nodeHandle, n *Node)) {
	visited := make(map[nodeHandle]bool)
	t.walkFrom(t.root, visited, visit)
}

func (t *Tree) walkFrom(h nodeHandle, visited map[nodeHandle]bool, visit func(nodeHandle, *Node)) {
	if visited[h] {
		return
	}
	visited[h] = true

	n := t.pool.get(h)
	visit(h, n)

	if n.Left.IsNode() {
		t.walkFrom(n.Left.child, visited, visit)
	}
	if n.Right.IsNode() {
		t.walkFrom(n.Right.child, visited, visit)
	}
}

// WalkRecords is a supplemental traversal (spec.md's "SUPPLEMENTED
// FEATURES", grounded in original_source/c/tree.c's separate
// node-visited vs. record-changed callback split) that lets a caller
// rewrite DATA records in place without a full rebuild — e.g. re-keying
// payloads after a hash rehash. rewrite is called once per DATA record
// found during a normal walk; returning ok=false leaves the record
// untouched.
func (t *Tree) WalkRecords(rewrite func(n *Node, side int, rec Record) (next Record, ok bool)) {
	t.walk(func(_ nodeHandle, n *Node) {
		for _, side := range [2]int{0, 1} {
			rec := n.record(side)
			if !rec.IsData() {
				continue
			}
			if next, ok := rewrite(n, side, rec); ok {
				n.setRecord(side, next)
			}
		}
	})
}

// Validate performs a read-only DAG walk asserting the CORE's structural
// invariants: every DATA record's key is present in the payload hash, and
// post-finalize every visited node has a unique number. It is a
// supplemental safety net (spec.md's "SUPPLEMENTED FEATURES", loosely in
// the spirit of the original C source's internal re-entrancy/corruption
// guards), useful as a test helper and as a pre-write sanity check.
func (t *Tree) Validate() error {
	seenNumbers := make(map[int]bool)
	var err error
	t.walk(func(h nodeHandle, n *Node) {
		if err != nil {
			return
		}
		if t.finalized {
			if seenNumbers[n.number] {
				err = newError(StructuralError, "duplicate node number %d", n.number)
				return
			}
			seenNumbers[n.number] = true
		}
		for _, rec := range [2]Record{n.Left, n.Right} {
			if rec.IsData() {
				if _, ok := t.dataHash[rec.DataKey()]; !ok {
					err = newError(StructuralError, "data record key %q missing from payload hash", rec.DataKey())
					return
				}
			}
		}
	})
	return err
}
