package radixtree

import "net/netip"

// Family is the address family of a Network or a Tree: v4 or v6. The same
// enum doubles as a tree's declared ip_version, per spec.md's data model.
type Family int

const (
	V4 Family = 4
	V6 Family = 6
)

func (f Family) String() string {
	if f == V4 {
		return "v4"
	}
	return "v6"
}

// maxDepth is the bit width of an address in this family: 32 or 128.
func (f Family) maxDepth() int {
	if f == V4 {
		return 32
	}
	return 128
}

// maxDepth0 is one less than maxDepth — the index of the most significant
// bit, since bit indices in descend() run downward from maxDepth0 to 0.
func (f Family) maxDepth0() int {
	return f.maxDepth() - 1
}

// Network is a CIDR prefix: family, big-endian address bytes (4 or 16 of
// them), and a mask length in [0, maxDepth]. It is a transient value —
// built by Resolve, consumed by a single Tree operation, then discarded.
type Network struct {
	Family     Family
	Bytes      []byte
	MaskLength int
}

// bit returns the bit of n at absolute position current (MSB-first,
// current counting down from Family.maxDepth0() to 0), exactly as
// spec.md §4.C step 1 describes: byte = bytes[(maxDepth0-current)>>3],
// bit = 1 << (~(maxDepth0-current) & 7).
func (n Network) bit(current int) int {
	maxDepth0 := n.Family.maxDepth0()
	offset := maxDepth0 - current
	byteIndex := offset >> 3
	bitMask := byte(1) << uint(^offset&7) //nolint:gosec // bitMask fits in a byte by construction
	if n.Bytes[byteIndex]&bitMask != 0 {
		return 1
	}
	return 0
}

// lastBit is the bit position of this network's final (mask-length-th)
// routing decision: maxDepth0 - (maskLength - 1). descend() walks
// intermediate node-to-node hops strictly above this position and leaves
// the decision at lastBit itself to the caller, since that decision reads
// or writes a *record* rather than traversing an edge (spec.md §4.C: "the
// caller distinguishes which side the target bit selects at
// final_current_bit"). A mask length of 0 has no real bit to decide;
// clamped to maxDepth0 so descend() still returns a well-defined root
// position rather than an out-of-range bit index.
func (n Network) lastBit() int {
	lb := n.Family.maxDepth0() - (n.MaskLength - 1)
	if lb > n.Family.maxDepth0() {
		lb = n.Family.maxDepth0()
	}
	return lb
}

// parent returns the /m-1 network obtained by shortening the mask by one
// bit, used by the sibling-merge recursion in Insert (spec.md §4.D.4).
func (n Network) parent() Network {
	return Network{Family: n.Family, Bytes: n.Bytes, MaskLength: n.MaskLength - 1}
}

// Resolve parses an address string plus mask length into a Network, per
// spec.md §4.A. When version is V6 and address is an IPv4 literal, the
// result is the v4-mapped v6 form (mask shifted by 96, per §6.5's
// "mask_length + 96" convention) rather than an error: that mapping is
// the adapter's one piece of real behavior, grounded in the teacher's
// net/netip-based address handling throughout pkg/iptrie and
// middleware.go. Family/ip_version mismatches other than that mapping are
// not rejected here — per spec.md §4.A, a v4 tree receiving a v6 literal
// is the caller's rejection to make (see Tree.checkFamily), not the
// resolver's.
func Resolve(version Family, address string, mask int) (Network, error) {
	addr, err := netip.ParseAddr(address)
	if err != nil {
		return Network{}, newError(BadAddress, "parse address %q: %v", address, err)
	}
	addr = addr.Unmap()

	switch {
	case addr.Is4():
		if mask < 0 || mask > 32 {
			return Network{}, newError(BadAddress, "mask length %d out of range for v4 address %q", mask, address)
		}
		if version == V6 {
			b4 := addr.As4()
			b16 := v4MappedBytes(b4)
			return Network{Family: V6, Bytes: b16, MaskLength: mask + 96}, nil
		}
		b4 := addr.As4()
		return Network{Family: V4, Bytes: append([]byte(nil), b4[:]...), MaskLength: mask}, nil

	case addr.Is6():
		if mask < 0 || mask > 128 {
			return Network{}, newError(BadAddress, "mask length %d out of range for v6 address %q", mask, address)
		}
		b16 := addr.As16()
		return Network{Family: V6, Bytes: append([]byte(nil), b16[:]...), MaskLength: mask}, nil

	default:
		return Network{}, newError(BadAddress, "address %q is neither v4 nor v6", address)
	}
}

// v4MappedBytes builds the 16-byte v4-in-v6 form: bytes 0-9 zero, 10-11
// 0xFF, 12-15 the v4 address, per spec.md §4.A.
func v4MappedBytes(v4 [4]byte) []byte {
	b := make([]byte, 16)
	b[10] = 0xFF
	b[11] = 0xFF
	copy(b[12:], v4[:])
	return b
}

// v4RootProbeNetwork, v4MappedAliasNetwork and sixToFourAliasNetwork are
// the networks consumed by Tree.AliasIPv4Subtree: the v4-root probe
// ::ffff:0:0/96 (where Resolve puts v4 literals in a v6 tree), and the two
// alias prefixes ::ffff:0:0/96 and 2002::/16.
func v4RootProbeNetwork() Network {
	b := make([]byte, 16)
	b[10] = 0xFF
	b[11] = 0xFF
	return Network{Family: V6, Bytes: b, MaskLength: 96}
}

func v4MappedAliasNetwork() Network {
	b := make([]byte, 16)
	b[10] = 0xFF
	b[11] = 0xFF
	return Network{Family: V6, Bytes: b, MaskLength: 96}
}

func sixToFourAliasNetwork() Network {
	b := make([]byte, 16)
	b[0] = 0x20
	b[1] = 0x02
	return Network{Family: V6, Bytes: b, MaskLength: 16}
}
