package radixtree

import "net/netip"

// dataEntry is the tree's owned mapping from payload key to (value,
// refcount), per spec.md §3's "payload-key hash". Both the tree and the
// external data-section collaborator hold references to the same value;
// the tree exclusively owns the count of each key's appearance.
type dataEntry struct {
	value any
	count int
}

// Tree is the CORE's mutable object: a fixed ip_version/record_size, a
// node pool, a root handle, and the payload-key hash. Per spec.md §5 it
// has no internal locking — single-threaded use only.
type Tree struct {
	family     Family
	recordSize int
	pool       *nodePool
	root       nodeHandle
	dataHash   map[string]*dataEntry
	nodeCount  int
	finalized  bool
}

// NewTree creates a tree with the given ip_version and record_size, and a
// pool chunk size of nodesPerAlloc (0 selects the default, spec.md §4.B).
func NewTree(family Family, recordSize int, nodesPerAlloc int) (*Tree, error) {
	if family != V4 && family != V6 {
		return nil, newError(InvalidArgument, "ip_version must be 4 or 6, got %d", family)
	}
	if recordSize != 24 && recordSize != 28 && recordSize != 32 {
		return nil, newError(InvalidArgument, "record_size must be 24, 28 or 32, got %d", recordSize)
	}

	pool := newNodePool(nodesPerAlloc)
	t := &Tree{
		family:     family,
		recordSize: recordSize,
		pool:       pool,
		dataHash:   make(map[string]*dataEntry),
	}
	t.root = pool.alloc()
	return t, nil
}

// Family reports the tree's declared ip_version.
func (t *Tree) Family() Family { return t.family }

// RecordSize reports the tree's on-disk record width in bits.
func (t *Tree) RecordSize() int { return t.recordSize }

// checkFamily rejects a v6 network presented to a v4 tree, per spec.md
// §4.D ("Rejects with InvalidFamily when ip_version=4 and the network
// resolves to v6" — the one family check the resolver itself does not
// make, per spec.md §4.A).
func (t *Tree) checkFamily(network Network) error {
	if t.family == V4 && network.Family == V6 {
		return newError(InvalidFamily, "v6 network presented to a v4 tree")
	}
	return nil
}

// bumpDataRef registers (key, value) in the data hash, incrementing its
// reference count. Per spec.md §9 this happens on every literal call to
// insert — including the sibling-merge recursion's own recursive call —
// which is the "idiosyncratic" refcount discipline spec.md documents: the
// tree over-retains references rather than tracking exact liveness.
func (t *Tree) bumpDataRef(key string, value any) {
	e, ok := t.dataHash[key]
	if !ok {
		t.dataHash[key] = &dataEntry{value: value, count: 1}
		return
	}
	e.value = value
	e.count++
}

// Insert associates network with payload key, registering value in the
// tree's payload hash, per spec.md §4.D. Siblings that end up holding the
// byte-identical key are merged into their shared parent automatically.
func (t *Tree) Insert(network Network, key string, value any) error {
	if err := t.checkFamily(network); err != nil {
		return err
	}
	t.insert(network, key, value)
	t.finalized = false
	return nil
}

func (t *Tree) insert(network Network, key string, value any) {
	t.bumpDataRef(key, value)

	h, bit := t.descend(network, t.materialize)
	side := network.bit(bit)
	sibling := 1 - side

	n := t.pool.get(h)
	siblingRec := n.record(sibling)
	if siblingRec.IsData() && siblingRec.DataKey() == key && network.MaskLength > 0 {
		t.insert(network.parent(), key, value)
	}

	n.setRecord(side, dataRecord(key))
}

// Delete removes whatever record currently sits at network's exact
// prefix. A no-op if nothing is there; no sibling-merge is undone and no
// reference count is decremented (spec.md §4.D, §5).
func (t *Tree) Delete(network Network) error {
	if err := t.checkFamily(network); err != nil {
		return err
	}

	h, bit := t.descend(network, halt)
	side := network.bit(bit)
	if t.pool.get(h).record(side).IsEmpty() {
		return nil
	}

	h, bit = t.descend(network, t.materialize)
	side = network.bit(bit)
	t.pool.get(h).setRecord(side, emptyRecord)
	t.finalized = false
	return nil
}

// Contains reports whether network's exact prefix currently resolves to
// any record (DATA or NODE) — a read-only operation, per spec.md §4.D.
func (t *Tree) Contains(network Network) (bool, error) {
	if err := t.checkFamily(network); err != nil {
		return false, err
	}
	h, bit := t.descend(network, halt)
	return !t.pool.get(h).record(network.bit(bit)).IsEmpty(), nil
}

// LookupHost resolves address (mask 32 or 128 depending on the tree's
// family) to the payload value stored for the most specific matching
// prefix, per spec.md §4.D. found is false when no prefix matches.
func (t *Tree) LookupHost(address string) (value any, found bool, err error) {
	mask := t.family.maxDepth()
	if addr, perr := netip.ParseAddr(address); perr == nil && addr.Unmap().Is4() {
		// A v4 literal is a /32 host; Resolve maps it to /128 in a v6 tree.
		mask = 32
	}
	network, err := Resolve(t.family, address, mask)
	if err != nil {
		return nil, false, err
	}
	if err := t.checkFamily(network); err != nil {
		return nil, false, err
	}

	h, bit := t.descend(network, halt)
	rec := t.pool.get(h).record(network.bit(bit))

	switch {
	case rec.IsNode():
		return nil, false, newError(StructuralError, "lookup_host landed on a NODE record at a host prefix")
	case rec.IsEmpty():
		return nil, false, nil
	default:
		e, ok := t.dataHash[rec.DataKey()]
		if !ok {
			return nil, false, newError(StructuralError, "data record key %q has no entry in the payload hash", rec.DataKey())
		}
		return e.value, true, nil
	}
}

// AliasIPv4Subtree makes the v4 address space reachable from 2002::/16 by
// pointing that prefix's record directly at the v4 root found under
// ::ffff:0:0/96, which is where Resolve places v4 literals in a v6 tree.
// The ::ffff:0:0/96 record itself is re-pointed at the same root, which
// leaves it unchanged. v6 trees only; a no-op if no v4 data has been
// inserted yet (the 96-bit descent does not reach full depth).
func (t *Tree) AliasIPv4Subtree() error {
	if t.family != V6 {
		return newError(InvalidArgument, "alias_ipv4_subtree is only valid on a v6 tree")
	}

	probe := v4RootProbeNetwork()
	h, bit := t.descend(probe, halt)
	if bit != 32 {
		// The descent did not consume all 96 bits: there is no v4 subtree
		// to alias yet.
		return nil
	}
	v4RootRec := t.pool.get(h).record(probe.bit(bit))
	if !v4RootRec.IsNode() {
		return nil
	}
	v4Root := v4RootRec.child

	for _, alias := range []Network{v4MappedAliasNetwork(), sixToFourAliasNetwork()} {
		h, bit := t.descend(alias, t.materialize)
		t.pool.get(h).setRecord(alias.bit(bit), nodeRecord(v4Root))
	}
	t.finalized = false
	return nil
}

// DeleteReservedNetworks deletes the well-known private/documentation/
// link-local prefixes enumerated in spec.md §6.5, as a convenience over
// repeated Delete calls.
func (t *Tree) DeleteReservedNetworks() error {
	for _, cidr := range ReservedNetworks(t.family) {
		network, err := ParseCIDR(t.family, cidr)
		if err != nil {
			return err
		}
		if err := t.Delete(network); err != nil {
			return err
		}
	}
	return nil
}

// TreeStats summarizes a tree for logging/telemetry — not part of the
// algorithmic core, but handy ambient observability (spec.md's CORE
// itself does no logging, per §7).
type TreeStats struct {
	Family      Family
	RecordSize  int
	NodeCount   int
	PayloadKeys int
	Finalized   bool
	TotalAllocs int64
	PoolChunks  int
}

// Stats reports current tree statistics.
func (t *Tree) Stats() TreeStats {
	total, chunks := t.pool.Stats()
	return TreeStats{
		Family:      t.family,
		RecordSize:  t.recordSize,
		NodeCount:   t.nodeCount,
		PayloadKeys: len(t.dataHash),
		Finalized:   t.finalized,
		TotalAllocs: total,
		PoolChunks:  chunks,
	}
}

// Free releases the tree's payload-key references, decrementing each
// DATA record's key exactly once across the finalized, alias-safe DAG —
// per spec.md §5, this is the only resource-teardown discipline the CORE
// has; the node pool itself is simply dropped for the GC.
func (t *Tree) Free() {
	t.walk(func(h nodeHandle, n *Node) {
		for _, side := range [2]Record{n.Left, n.Right} {
			if side.IsData() {
				if e, ok := t.dataHash[side.DataKey()]; ok {
					e.count--
				}
			}
		}
	})
	t.dataHash = nil
	t.pool = nil
}
