package radixtree

// recordTag discriminates a Record's variant.
type recordTag uint8

const (
	recEmpty recordTag = iota
	recNode
	recData
)

// Record is one half of a Node: EMPTY, a handle to a child Node, or a
// payload key. It generalizes the teacher's pkg/iptrie.TrieNode boolean
// isEnd flag into the three-way variant spec.md §3 requires (a plain
// binary trie only ever needs "is this the end of a prefix", but a
// mergeable/aliasable one needs to tell "no data" from "data" from "more
// tree" at every position).
type Record struct {
	tag   recordTag
	child nodeHandle
	key   string
}

// emptyRecord is the zero value; recorded explicitly for readability at
// call sites.
var emptyRecord = Record{tag: recEmpty}

func dataRecord(key string) Record {
	return Record{tag: recData, key: key}
}

func nodeRecord(h nodeHandle) Record {
	return Record{tag: recNode, child: h}
}

// IsEmpty, IsNode and IsData let external packages (the encoder, tests)
// inspect a Record without reaching into its private fields.
func (r Record) IsEmpty() bool { return r.tag == recEmpty }
func (r Record) IsNode() bool  { return r.tag == recNode }
func (r Record) IsData() bool  { return r.tag == recData }

// DataKey returns the payload key of a DATA record. Callers must check
// IsData first; it panics otherwise, matching the CORE's "no silent
// miscompile" posture for genuinely structural bugs (spec.md §7,
// StructuralError class).
func (r Record) DataKey() string {
	if r.tag != recData {
		panic("radixtree: DataKey on non-DATA record")
	}
	return r.key
}

// nodeHandle is a stable reference to a Node: an index into the pool's
// backing storage. Per spec.md §9, this must remain valid across
// subsequent allocations — unlike the original C source's raw pointers
// into a realloc'd array, an index into a never-shrinking, never-moved
// chunk list is stable for the life of the tree.
type nodeHandle struct {
	chunk int
	slot  int
}

// Node is a single trie node: two records, plus a dense pre-order number
// assigned by Finalize. Both records are always initialized (to EMPTY on
// allocation) — there is no nil/uninitialized state, per spec.md §3.
type Node struct {
	Left, Right Record
	number      int
}

// Number is this node's dense index in [0, node_count), meaningful only
// after Tree.Finalize has run since the last mutation.
func (n *Node) Number() int { return n.number }

// record returns the record on the given side, and setRecord lets
// descend()/insert() write through the correct one without a manual
// branch at every call site.
func (n *Node) record(side int) Record {
	if side == 0 {
		return n.Left
	}
	return n.Right
}

func (n *Node) setRecord(side int, r Record) {
	if side == 0 {
		n.Left = r
	} else {
		n.Right = r
	}
}
