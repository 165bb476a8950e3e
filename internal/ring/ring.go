// Package ring implements consistent hashing with virtual nodes.
//
// Why not hash(key) % N?
//
// Because adding or removing a node would remap almost every key — massive
// data movement and instability. Consistent hashing instead places nodes
// and keys on a circle of positions; a key belongs to the first node
// clockwise from its position. Only keys near the changed node move.
//
// Virtual nodes: placing one position per physical node makes load uneven.
// Each physical node therefore owns many positions ("tokens") spread across
// the ring, smoothing its share of the keyspace.
package ring

import (
	"crypto/md5"
	"encoding/binary"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
)

// ErrRingEmpty is returned by FindNode/Successors when no node has been added yet.
var ErrRingEmpty = errors.New("ring: empty")

// Node is the subset of node identity the ring needs to place and return
// owners. The full remote-peer behavior lives in internal/membership.Node;
// the ring only needs to know who a vnode belongs to.
type Node interface {
	ID() string
}

// VirtualNode is one point on the ring.
type VirtualNode struct {
	ID       string // node.ID() + "-" + i
	Position uint64 // truncate64(md5(ID))
	Owner    Node
}

// Ring is a thread-safe consistent hash ring with virtual nodes.
//
// Reads (FindNode, Successors, GetNode, Nodes, VNodes) take a shared lock;
// AddNode/RemoveNode take an exclusive lock. No RPC is ever issued while
// holding either lock.
type Ring struct {
	mu     sync.RWMutex
	tokens int // vnodes per physical node

	vnodes   []VirtualNode    // sorted by Position
	byID     map[string]Node  // nodeID -> Node
	order    map[string]int   // nodeID -> insertion order, for tie-break determinism
	nextSeq  int
}

// New creates an empty ring. tokens is the per-node virtual-node multiplicity.
func New(tokens int) *Ring {
	if tokens <= 0 {
		tokens = 1
	}
	return &Ring{
		tokens: tokens,
		byID:   make(map[string]Node),
		order:  make(map[string]int),
	}
}

// hash implements truncate64(md5(key)): the first 8 bytes of the MD5
// digest, interpreted big-endian as a uint64.
func hash(key string) uint64 {
	sum := md5.Sum([]byte(key))
	return binary.BigEndian.Uint64(sum[:8])
}

// AddNode adds node's `tokens` virtual nodes to the ring. Adding a node that
// is already present replaces its vnodes (positions are recomputed from its
// id, so this is idempotent).
func (r *Ring) AddNode(n Node) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := n.ID()
	r.removeLocked(id)

	r.byID[id] = n
	if _, ok := r.order[id]; !ok {
		r.order[id] = r.nextSeq
		r.nextSeq++
	}

	for i := 0; i < r.tokens; i++ {
		vid := fmt.Sprintf("%s-%d", id, i)
		r.vnodes = append(r.vnodes, VirtualNode{
			ID:       vid,
			Position: hash(vid),
			Owner:    n,
		})
	}
	r.rebuild()
}

// RemoveNode removes every virtual node owned by nodeID.
func (r *Ring) RemoveNode(nodeID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(nodeID)
	r.rebuild()
}

func (r *Ring) removeLocked(nodeID string) {
	if _, ok := r.byID[nodeID]; !ok {
		return
	}
	delete(r.byID, nodeID)
	filtered := r.vnodes[:0]
	for _, vn := range r.vnodes {
		if vn.Owner.ID() != nodeID {
			filtered = append(filtered, vn)
		}
	}
	r.vnodes = filtered
}

// rebuild sorts vnodes by position, breaking ties by each owner's
// insertion order so placement is deterministic given a fixed vnode set.
func (r *Ring) rebuild() {
	slices.SortFunc(r.vnodes, func(a, b VirtualNode) int {
		switch {
		case a.Position < b.Position:
			return -1
		case a.Position > b.Position:
			return 1
		default:
			return r.order[a.Owner.ID()] - r.order[b.Owner.ID()]
		}
	})
}

// search returns the index of the first vnode whose position is > h,
// wrapping to 0 if every position is <= h.
func (r *Ring) search(h uint64) int {
	idx := sort.Search(len(r.vnodes), func(i int) bool {
		return r.vnodes[i].Position > h
	})
	if idx == len(r.vnodes) {
		idx = 0
	}
	return idx
}

// FindNode returns the node that owns key: the first vnode clockwise from
// key's hash.
func (r *Ring) FindNode(key string) (Node, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.vnodes) == 0 {
		return nil, ErrRingEmpty
	}
	idx := r.search(hash(key))
	return r.vnodes[idx].Owner, nil
}

// Successors returns up to count distinct physical nodes walking clockwise
// from key's hash, skipping vnodes whose owner has already been emitted.
// count is clamped to the number of distinct nodes currently on the ring.
func (r *Ring) Successors(key string, count int) ([]Node, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.vnodes) == 0 {
		return nil, ErrRingEmpty
	}

	total := len(r.byID)
	if count > total {
		count = total
	}

	idx := r.search(hash(key))
	seen := make(map[string]bool, count)
	out := make([]Node, 0, count)

	for i := 0; i < len(r.vnodes) && len(out) < count; i++ {
		vn := r.vnodes[(idx+i)%len(r.vnodes)]
		id := vn.Owner.ID()
		if !seen[id] {
			seen[id] = true
			out = append(out, vn.Owner)
		}
	}
	return out, nil
}

// GetNode returns the Node handle for id, if it is currently on the ring.
func (r *Ring) GetNode(id string) (Node, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.byID[id]
	return n, ok
}

// Nodes returns every distinct physical node currently on the ring.
func (r *Ring) Nodes() []Node {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Node, 0, len(r.byID))
	for _, n := range r.byID {
		out = append(out, n)
	}
	slices.SortFunc(out, func(a, b Node) int {
		if a.ID() < b.ID() {
			return -1
		} else if a.ID() > b.ID() {
			return 1
		}
		return 0
	})
	return out
}

// VNodes returns every virtual node currently on the ring, sorted by
// position. Used by the /admin/ring introspection endpoint.
func (r *Ring) VNodes() []VirtualNode {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]VirtualNode, len(r.vnodes))
	copy(out, r.vnodes)
	return out
}

// NodeCount returns the number of distinct physical nodes.
func (r *Ring) NodeCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
