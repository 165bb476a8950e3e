// Package vclock implements the vector clock used to detect causality and
// conflicts between writes made at different nodes.
//
// Each key in the store carries a VectorClock: a map from node id to a
// monotonically nondecreasing counter. Every write is stamped with the
// coordinator node's id and a fresh increment of that node's counter —
// never a replica's id (see Coordinator.Put in internal/coordinator).
package vclock

import "maps"

// Clock is a mapping from node id to logical counter.
type Clock map[string]uint64

// New returns an empty clock.
func New() Clock {
	return make(Clock)
}

// Get returns the counter for id, or 0 if id has never written this key.
func (c Clock) Get(id string) uint64 {
	return c[id]
}

// Increment bumps the counter for id by one, in place.
func (c Clock) Increment(id string) {
	c[id]++
}

// LessThan reports whether c happened-before other: true iff every entry of
// c is at most the corresponding entry of other (absent entries in other
// read as 0) and the two clocks are not identical.
//
// It only ranges over c's keys, never other's. That is deliberate: a key
// that exists in other with a positive count but is absent from c is never
// inspected directly, yet still produces the correct answer, because the
// trailing Equal check catches the difference. If a right-operand key is
// strictly larger and absent from the left operand, this still returns
// true — that is the intended causal-precedence semantics (see
// DESIGN.md), not a bug to fix.
func (c Clock) LessThan(other Clock) bool {
	for id, count := range c {
		if count > other[id] {
			return false
		}
	}
	return !Equal(c, other)
}

// Concurrent reports whether neither clock happened-before the other.
func Concurrent(a, b Clock) bool {
	return !a.LessThan(b) && !b.LessThan(a)
}

// Merge returns a new clock holding, per node id, the maximum of the two
// counters. Neither operand is modified.
func (c Clock) Merge(other Clock) Clock {
	merged := c.Copy()
	for id, count := range other {
		if count > merged[id] {
			merged[id] = count
		}
	}
	return merged
}

// Copy returns a deep copy; Clock is a map and therefore a reference type.
func (c Clock) Copy() Clock {
	out := make(Clock, len(c))
	maps.Copy(out, c)
	return out
}

// Equal reports whether two clocks hold exactly the same counters.
func Equal(a, b Clock) bool {
	if len(a) != len(b) {
		return false
	}
	for id, count := range a {
		if b[id] != count {
			return false
		}
	}
	return true
}
