package radixtree

import (
	"bytes"
	"testing"
)

// fakeData is a DataPositioner test double: keys are positioned in
// first-seen order, one "slot" apart, mirroring how an external
// data-section collaborator would hand back offsets.
type fakeData struct {
	order []string
	pos   map[string]uint32
}

func newFakeData() *fakeData { return &fakeData{pos: make(map[string]uint32)} }

func (f *fakeData) Position(key string, _ any) (uint32, error) {
	if p, ok := f.pos[key]; ok {
		return p, nil
	}
	p := uint32(len(f.order)) //nolint:gosec // test double, bounded by test data
	f.pos[key] = p
	f.order = append(f.order, key)
	return p, nil
}

func mustTree(t *testing.T, family Family, recordSize int) *Tree {
	t.Helper()
	tree, err := NewTree(family, recordSize, 0)
	if err != nil {
		t.Fatalf("NewTree: %v", err)
	}
	return tree
}

func mustCIDR(t *testing.T, family Family, cidr string) Network {
	t.Helper()
	n, err := ParseCIDR(family, cidr)
	if err != nil {
		t.Fatalf("ParseCIDR(%q): %v", cidr, err)
	}
	return n
}

func TestNewTreeRejectsBadArguments(t *testing.T) {
	if _, err := NewTree(5, 24, 0); !IsKind(err, InvalidArgument) {
		t.Errorf("expected InvalidArgument for bad family, got %v", err)
	}
	if _, err := NewTree(V4, 25, 0); !IsKind(err, InvalidArgument) {
		t.Errorf("expected InvalidArgument for bad record_size, got %v", err)
	}
}

func TestInsertAndContainsIPv4(t *testing.T) {
	tests := []struct {
		name     string
		insert   []string
		contains map[string]bool
	}{
		{
			name:     "single /24 network",
			insert:   []string{"192.168.1.0/24"},
			contains: map[string]bool{"192.168.1.0/24": true, "192.168.2.0/24": false},
		},
		{
			name:     "multiple networks",
			insert:   []string{"10.0.0.0/8", "172.16.0.0/12"},
			contains: map[string]bool{"10.0.0.0/8": true, "172.16.0.0/12": true, "8.0.0.0/8": false},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree := mustTree(t, V4, 24)
			for _, cidr := range tt.insert {
				if err := tree.Insert(mustCIDR(t, V4, cidr), "k", "v"); err != nil {
					t.Fatalf("Insert(%q): %v", cidr, err)
				}
			}
			for cidr, want := range tt.contains {
				got, err := tree.Contains(mustCIDR(t, V4, cidr))
				if err != nil {
					t.Fatalf("Contains(%q): %v", cidr, err)
				}
				if got != want {
					t.Errorf("Contains(%q) = %v, want %v", cidr, got, want)
				}
			}
		})
	}
}

func TestLookupHostLongestPrefixMatch(t *testing.T) {
	tree := mustTree(t, V4, 24)
	mustInsert := func(cidr, key string) {
		t.Helper()
		if err := tree.Insert(mustCIDR(t, V4, cidr), key, key); err != nil {
			t.Fatalf("Insert(%q): %v", cidr, err)
		}
	}
	mustInsert("10.0.0.0/8", "broad")
	mustInsert("10.1.0.0/16", "mid")
	mustInsert("10.1.2.0/24", "narrow")

	cases := []struct {
		addr string
		want string
	}{
		{"10.0.0.1", "broad"},
		{"10.1.0.1", "mid"},
		{"10.1.2.3", "narrow"},
	}
	for _, c := range cases {
		v, found, err := tree.LookupHost(c.addr)
		if err != nil {
			t.Fatalf("LookupHost(%q): %v", c.addr, err)
		}
		if !found || v != c.want {
			t.Errorf("LookupHost(%q) = (%v, %v), want %q", c.addr, v, found, c.want)
		}
	}

	if _, found, err := tree.LookupHost("11.0.0.0"); err != nil || found {
		t.Errorf("LookupHost(11.0.0.0) = (found=%v, err=%v), want not found", found, err)
	}
}

func TestSiblingMergeLaw(t *testing.T) {
	merged := mustTree(t, V4, 24)
	if err := merged.Insert(mustCIDR(t, V4, "1.1.1.0/24"), "A", "A"); err != nil {
		t.Fatal(err)
	}
	merged.Finalize()
	mergedCount := merged.Stats().NodeCount

	split := mustTree(t, V4, 24)
	if err := split.Insert(mustCIDR(t, V4, "1.1.1.0/25"), "A", "A"); err != nil {
		t.Fatal(err)
	}
	if err := split.Insert(mustCIDR(t, V4, "1.1.1.128/25"), "A", "A"); err != nil {
		t.Fatal(err)
	}

	ok, err := split.Contains(mustCIDR(t, V4, "1.1.1.0/24"))
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected merged /24 parent to contain a record after sibling merge")
	}

	split.Finalize()
	if got := split.Stats().NodeCount; got != mergedCount {
		t.Errorf("node_count after sibling merge = %d, want %d (same as single-parent insert)", got, mergedCount)
	}
}

func TestDeletePunchesHoleInBroaderPrefix(t *testing.T) {
	tree := mustTree(t, V4, 24)
	if err := tree.Insert(mustCIDR(t, V4, "10.0.0.0/8"), "x", "x"); err != nil {
		t.Fatal(err)
	}
	if err := tree.Delete(mustCIDR(t, V4, "10.0.0.0/8")); err != nil {
		t.Fatal(err)
	}

	ok, err := tree.Contains(mustCIDR(t, V4, "10.0.0.0/8"))
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("expected contains(10.0.0.0/8) to be false after delete")
	}

	_, found, err := tree.LookupHost("10.1.2.3")
	if err != nil {
		t.Fatal(err)
	}
	if found {
		t.Error("expected lookup_host(10.1.2.3) to be not-found after deleting the covering prefix")
	}
}

func TestDeleteIsNoopWhenNothingThere(t *testing.T) {
	tree := mustTree(t, V4, 24)
	if err := tree.Delete(mustCIDR(t, V4, "10.0.0.0/8")); err != nil {
		t.Fatalf("Delete on empty tree: %v", err)
	}
	if tree.Stats().NodeCount != 0 && tree.finalized {
		t.Error("expected untouched tree after no-op delete")
	}
}

func TestDeleteReservedNetworks(t *testing.T) {
	tree := mustTree(t, V4, 24)
	if err := tree.Insert(mustCIDR(t, V4, "10.0.0.0/8"), "x", "x"); err != nil {
		t.Fatal(err)
	}
	if err := tree.DeleteReservedNetworks(); err != nil {
		t.Fatalf("DeleteReservedNetworks: %v", err)
	}

	ok, err := tree.Contains(mustCIDR(t, V4, "10.0.0.0/8"))
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("expected 10.0.0.0/8 to be gone after DeleteReservedNetworks")
	}
	if _, found, err := tree.LookupHost("10.1.2.3"); err != nil || found {
		t.Errorf("lookup(10.1.2.3) after DeleteReservedNetworks = found=%v err=%v, want not found", found, err)
	}
}

func TestAliasIPv4SubtreeSharesLookups(t *testing.T) {
	tree := mustTree(t, V6, 24)
	if err := tree.Insert(mustCIDR(t, V6, "1.2.3.4/32"), "V4", "V4"); err != nil {
		t.Fatal(err)
	}
	if err := tree.AliasIPv4Subtree(); err != nil {
		t.Fatalf("AliasIPv4Subtree: %v", err)
	}

	// Resolve normalizes both a bare v4 literal and its v4-mapped v6
	// spelling to the same canonical network (net/netip's Unmap), so
	// both find the original insertion directly.
	for _, addr := range []string{"1.2.3.4", "::ffff:1.2.3.4"} {
		v, found, err := tree.LookupHost(addr)
		if err != nil {
			t.Fatalf("LookupHost(%q): %v", addr, err)
		}
		if !found || v != "V4" {
			t.Errorf("LookupHost(%q) = (%v, %v), want (V4, true)", addr, v, found)
		}
	}

	// The 6to4 alias prefix itself must now resolve to a record (the
	// shared v4 subtree), whatever its precise contents at a given host
	// bit.
	ok, err := tree.Contains(mustCIDR(t, V6, "2002::/16"))
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("expected 2002::/16 to contain a record after AliasIPv4Subtree")
	}

	if err := tree.Validate(); err != nil {
		t.Errorf("Validate after aliasing: %v", err)
	}
}

func TestFinalizeIsIdempotentUntilMutation(t *testing.T) {
	tree := mustTree(t, V4, 24)
	if err := tree.Insert(mustCIDR(t, V4, "1.1.1.0/24"), "A", "A"); err != nil {
		t.Fatal(err)
	}
	tree.Finalize()
	first := tree.Stats().NodeCount
	tree.Finalize()
	if tree.Stats().NodeCount != first {
		t.Error("re-finalizing without mutation changed node_count")
	}

	if err := tree.Insert(mustCIDR(t, V4, "2.2.2.0/24"), "B", "B"); err != nil {
		t.Fatal(err)
	}
	if tree.Stats().Finalized {
		t.Error("mutation after finalize should clear the finalized flag")
	}
}

func TestEmptyV6TreeFinalizesToSingleRoot(t *testing.T) {
	tree := mustTree(t, V6, 32)
	tree.Finalize()
	stats := tree.Stats()
	if stats.NodeCount != 1 {
		t.Fatalf("node_count for empty tree = %d, want 1", stats.NodeCount)
	}

	var buf bytes.Buffer
	if err := tree.WriteSearchTree(&buf, newFakeData()); err != nil {
		t.Fatalf("WriteSearchTree: %v", err)
	}
	want := make([]byte, 8)
	if !bytes.Equal(buf.Bytes(), want) {
		t.Errorf("output = % x, want % x", buf.Bytes(), want)
	}
}

func TestWriteSearchTreeScenario1(t *testing.T) {
	tree := mustTree(t, V4, 24)
	if err := tree.Insert(mustCIDR(t, V4, "1.1.1.0/24"), "A", "A"); err != nil {
		t.Fatal(err)
	}
	tree.Finalize()

	stats := tree.Stats()
	if stats.NodeCount != 24 {
		t.Fatalf("node_count = %d, want 24", stats.NodeCount)
	}

	var buf bytes.Buffer
	if err := tree.WriteSearchTree(&buf, newFakeData()); err != nil {
		t.Fatalf("WriteSearchTree: %v", err)
	}
	if got, want := buf.Len(), 24*6; got != want {
		t.Errorf("byte stream length = %d, want %d", got, want)
	}
}

func TestLookupHostOnUnfinalizedTreeStillWorks(t *testing.T) {
	tree := mustTree(t, V4, 24)
	if err := tree.Insert(mustCIDR(t, V4, "1.1.1.0/24"), "A", "A"); err != nil {
		t.Fatal(err)
	}
	if _, found, err := tree.LookupHost("1.1.1.1"); err != nil || !found {
		t.Errorf("LookupHost before finalize: found=%v err=%v", found, err)
	}
}

func TestWriteSearchTreeRequiresFinalize(t *testing.T) {
	tree := mustTree(t, V4, 24)
	if err := tree.Insert(mustCIDR(t, V4, "1.1.1.0/24"), "A", "A"); err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	err := tree.WriteSearchTree(&buf, newFakeData())
	if !IsKind(err, InvalidArgument) {
		t.Errorf("WriteSearchTree before finalize: err=%v, want InvalidArgument", err)
	}
}

func TestInsertRejectsWrongFamily(t *testing.T) {
	tree := mustTree(t, V4, 24)
	err := tree.Insert(mustCIDR(t, V6, "::1/128"), "k", "v")
	if !IsKind(err, InvalidFamily) {
		t.Errorf("Insert(v6 network, v4 tree) = %v, want InvalidFamily", err)
	}
}

func TestFreeDecrementsEveryDataKeyExactlyOnce(t *testing.T) {
	tree := mustTree(t, V6, 24)
	if err := tree.Insert(mustCIDR(t, V6, "1.2.3.4/32"), "V4", "V4"); err != nil {
		t.Fatal(err)
	}
	if err := tree.AliasIPv4Subtree(); err != nil {
		t.Fatal(err)
	}
	tree.Finalize()
	if err := tree.Validate(); err != nil {
		t.Fatalf("Validate before Free: %v", err)
	}
	entry := tree.dataHash["V4"]
	before := entry.count
	tree.Free()
	if entry.count != before-1 {
		t.Errorf("count for key V4 after Free = %d, want %d (one DATA record)", entry.count, before-1)
	}
}
