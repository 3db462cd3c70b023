package radixtree

import (
	"strconv"
	"strings"
)

// reservedV4 lists the well-known private, documentation and link-local
// IPv4 prefixes that a public-facing database typically carves out of
// its tree, per spec.md §6.5. Grounded in the real mmdbwriter's
// well-known reserved-network list (other_examples' sftfjugg-mmdbwriter
// tree.go references the same set by name).
var reservedV4 = []string{
	"0.0.0.0/8",
	"10.0.0.0/8",
	"100.64.0.0/10",
	"127.0.0.0/8",
	"169.254.0.0/16",
	"172.16.0.0/12",
	"192.0.0.0/29",
	"192.0.2.0/24",
	"192.88.99.0/24",
	"192.168.0.0/16",
	"198.18.0.0/15",
	"198.51.100.0/24",
	"224.0.0.0/4",
	"240.0.0.0/4",
}

// reservedV6Native lists the v6-only reserved prefixes from spec.md §6.5:
// the discard-only prefix, documented IETF protocol assignments,
// documentation, unique-local and link-local ranges, and multicast.
var reservedV6Native = []string{
	"100::/64",
	"2001::/23",
	"2001:db8::/32",
	"fc00::/7",
	"fe80::/10",
	"ff00::/8",
}

// ReservedNetworks returns the CIDR strings DeleteReservedNetworks
// carves out of family's tree: the v4 list for a v4 tree; for a v6 tree,
// the same v4 CIDR strings (ParseCIDR/Resolve apply the v4-mapped
// mask_length+96 aliasing themselves, per spec.md §6.5 and §4.A — a v4
// literal resolved against a v6 tree is exactly that mapping) plus the
// v6-native reserved ranges.
func ReservedNetworks(family Family) []string {
	if family == V4 {
		out := make([]string, len(reservedV4))
		copy(out, reservedV4)
		return out
	}

	out := make([]string, 0, len(reservedV4)+len(reservedV6Native))
	out = append(out, reservedV4...)
	out = append(out, reservedV6Native...)
	return out
}

// ParseCIDR splits a "address/mask" string and resolves it against
// family, a thin convenience wrapper around Resolve for callers (and
// DeleteReservedNetworks) that carry CIDR notation as a single string.
func ParseCIDR(family Family, cidr string) (Network, error) {
	addr, maskStr, ok := strings.Cut(cidr, "/")
	if !ok {
		return Network{}, newError(BadAddress, "malformed CIDR %q: missing mask", cidr)
	}
	mask, err := strconv.Atoi(maskStr)
	if err != nil {
		return Network{}, newError(BadAddress, "malformed CIDR %q: %v", cidr, err)
	}
	return Resolve(family, addr, mask)
}
