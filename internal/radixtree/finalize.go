package radixtree

// Finalize assigns each reachable node a dense, pre-order number in
// [0, nodeCount), per spec.md §4.F. Required before WriteSearchTree,
// since the packed records it emits reference children by number. A
// no-op if the tree is already finalized and nothing has mutated it
// since (every mutating operation clears the finalized flag).
func (t *Tree) Finalize() {
	if t.finalized {
		return
	}

	count := 0
	t.walk(func(_ nodeHandle, n *Node) {
		n.number = count
		count++
	})
	t.nodeCount = count
	t.finalized = true
}
