package radixtree

// defaultNodesPerAlloc is the pool's chunk size, matching spec.md §4.B's
// default of 2^18 nodes per allocation.
const defaultNodesPerAlloc = 1 << 18

// nodePool bulk-allocates Nodes in fixed-size chunks and hands out stable
// handles (chunk index, slot index) rather than pointers. spec.md §9
// flags the original C source's raw-pointer-into-a-realloc'd-array scheme
// as a latent use-after-realloc bug; this arena never moves or frees a
// chunk once appended, so a nodeHandle stays valid for the tree's entire
// lifetime. Grounded in the teacher's pkg/iptrie/binary.go, which already
// stores trie nodes in a flat slice addressed by uint32 index rather than
// by pointer (its LoadPrecomputedTrie reconstructs children as
// &nodes[idx]); this pool generalizes that to a growable list of such
// slices so it isn't bounded by a single up-front allocation. The
// gaissmai-bart pool.go's Stats()/counter idiom is kept for observability
// (this is an allocate-only arena, not a sync.Pool — nodes here are never
// individually freed, per spec.md §4.B, so there is nothing to Put back).
type nodePool struct {
	chunks        [][]Node
	nodesPerAlloc int
	totalAlloc    int64
}

func newNodePool(nodesPerAlloc int) *nodePool {
	if nodesPerAlloc <= 0 {
		nodesPerAlloc = defaultNodesPerAlloc
	}
	return &nodePool{nodesPerAlloc: nodesPerAlloc}
}

// alloc returns a handle to a newly zeroed Node (both records EMPTY,
// number 0), growing the pool by a new chunk whenever the current one is
// full.
func (p *nodePool) alloc() nodeHandle {
	if len(p.chunks) == 0 || p.full(len(p.chunks)-1) {
		p.chunks = append(p.chunks, make([]Node, 0, p.nodesPerAlloc))
	}
	ci := len(p.chunks) - 1
	p.chunks[ci] = append(p.chunks[ci], Node{})
	p.totalAlloc++
	return nodeHandle{chunk: ci, slot: len(p.chunks[ci]) - 1}
}

func (p *nodePool) full(chunkIndex int) bool {
	return len(p.chunks[chunkIndex]) >= p.nodesPerAlloc
}

// get dereferences a handle. Panics on an invalid handle: any caller
// holding one built a Node through alloc() already, so an invalid handle
// here means a CORE bug, not bad input.
func (p *nodePool) get(h nodeHandle) *Node {
	return &p.chunks[h.chunk][h.slot]
}

// Stats mirrors gaissmai-bart's pool.Stats(): total nodes ever allocated,
// and how many chunks that took. Exposed for Tree.Stats()/telemetry.
func (p *nodePool) Stats() (total int64, chunks int) {
	return p.totalAlloc, len(p.chunks)
}
