package ring

import (
	"testing"
)

type testNode string

func (n testNode) ID() string { return string(n) }

func TestEmptyRing(t *testing.T) {
	r := New(4)
	if _, err := r.FindNode("foo"); err != ErrRingEmpty {
		t.Fatalf("FindNode on empty ring: got %v, want ErrRingEmpty", err)
	}
	if _, err := r.Successors("foo", 3); err != ErrRingEmpty {
		t.Fatalf("Successors on empty ring: got %v, want ErrRingEmpty", err)
	}
}

func TestSingleNodeOwnsEverything(t *testing.T) {
	r := New(8)
	r.AddNode(testNode("n1"))

	for _, key := range []string{"a", "b", "some-long-key-123"} {
		n, err := r.FindNode(key)
		if err != nil {
			t.Fatalf("FindNode(%q): %v", key, err)
		}
		if n.ID() != "n1" {
			t.Fatalf("FindNode(%q) = %s, want n1", key, n.ID())
		}
	}
}

func TestFindNodeDeterministic(t *testing.T) {
	r := New(16)
	r.AddNode(testNode("n1"))
	r.AddNode(testNode("n2"))
	r.AddNode(testNode("n3"))

	first, err := r.FindNode("stable-key")
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 10; i++ {
		got, err := r.FindNode("stable-key")
		if err != nil {
			t.Fatal(err)
		}
		if got.ID() != first.ID() {
			t.Fatalf("FindNode not deterministic: %s != %s", got.ID(), first.ID())
		}
	}
}

func TestSuccessorsDistinctAndClamped(t *testing.T) {
	r := New(32)
	r.AddNode(testNode("n1"))
	r.AddNode(testNode("n2"))
	r.AddNode(testNode("n3"))

	succ, err := r.Successors("key-x", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(succ) != 3 {
		t.Fatalf("Successors count = %d, want 3 (clamped to node count)", len(succ))
	}
	seen := make(map[string]bool)
	for _, n := range succ {
		if seen[n.ID()] {
			t.Fatalf("Successors returned duplicate node %s", n.ID())
		}
		seen[n.ID()] = true
	}
}

func TestSuccessorsSmallerCountThanNodes(t *testing.T) {
	r := New(16)
	r.AddNode(testNode("n1"))
	r.AddNode(testNode("n2"))
	r.AddNode(testNode("n3"))
	r.AddNode(testNode("n4"))

	succ, err := r.Successors("key-y", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(succ) != 2 {
		t.Fatalf("Successors count = %d, want 2", len(succ))
	}
}

func TestRemoveNodeRedistributes(t *testing.T) {
	r := New(16)
	r.AddNode(testNode("n1"))
	r.AddNode(testNode("n2"))
	r.AddNode(testNode("n3"))

	r.RemoveNode("n2")

	if _, ok := r.GetNode("n2"); ok {
		t.Fatalf("n2 should no longer be present after RemoveNode")
	}
	for _, vn := range r.VNodes() {
		if vn.Owner.ID() == "n2" {
			t.Fatalf("found a vnode still owned by removed node n2")
		}
	}
	if r.NodeCount() != 2 {
		t.Fatalf("NodeCount = %d, want 2", r.NodeCount())
	}
}

func TestAddNodeIdempotent(t *testing.T) {
	r := New(8)
	r.AddNode(testNode("n1"))
	before := len(r.VNodes())
	r.AddNode(testNode("n1"))
	after := len(r.VNodes())
	if before != after {
		t.Fatalf("re-adding n1 changed vnode count: %d -> %d", before, after)
	}
}

func TestNodesSortedAndDistinct(t *testing.T) {
	r := New(4)
	r.AddNode(testNode("n3"))
	r.AddNode(testNode("n1"))
	r.AddNode(testNode("n2"))

	nodes := r.Nodes()
	if len(nodes) != 3 {
		t.Fatalf("Nodes() length = %d, want 3", len(nodes))
	}
	for i := 1; i < len(nodes); i++ {
		if nodes[i-1].ID() >= nodes[i].ID() {
			t.Fatalf("Nodes() not sorted: %v", nodes)
		}
	}
}

func TestVNodeIDFormat(t *testing.T) {
	r := New(3)
	r.AddNode(testNode("alpha"))
	want := map[string]bool{"alpha-0": true, "alpha-1": true, "alpha-2": true}
	for _, vn := range r.VNodes() {
		if !want[vn.ID] {
			t.Fatalf("unexpected vnode id %q", vn.ID)
		}
		delete(want, vn.ID)
	}
	if len(want) != 0 {
		t.Fatalf("missing expected vnode ids: %v", want)
	}
}
