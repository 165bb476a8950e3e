// Package replica implements the three replica-side operations a node
// exposes to its peers: apply an inbound put, accept a handoff hint,
// and serve a local read. All three operate purely against the local
// storage adapter and handoff queue — no RPC fan-out happens here, that
// is the coordinator's job.
package replica

import (
	"errors"

	"dynamokv/internal/membership"
	"dynamokv/internal/storage"
)

// ErrStale is returned by Put when the incoming value is dominated by
// an already-resident clock. The caller (the HTTP handler) maps this to
// a 400 response, which the sender treats as delivered.
var ErrStale = errors.New("replica: stale clock")

// Handlers bundles the local collaborators the replica-side operations
// need: the node's own ValueList store and its handoff queue.
type Handlers struct {
	store   *storage.Store
	handoff *storage.HandoffStore
}

// New builds a replica Handlers.
func New(store *storage.Store, handoff *storage.HandoffStore) *Handlers {
	return &Handlers{store: store, handoff: handoff}
}

// Put applies an inbound replica-put: if any resident clock strictly
// dominates value.Clock, it is rejected as stale (ErrStale); otherwise
// dominated residents are dropped and the new value is appended.
func (h *Handlers) Put(key string, value membership.Value) error {
	resident, err := h.store.Get(key)
	if err != nil {
		return err
	}
	for _, r := range resident {
		if value.Clock.LessThan(r.Clock) {
			return ErrStale
		}
	}

	kept := resident[:0]
	for _, r := range resident {
		if r.Clock.LessThan(value.Clock) {
			continue
		}
		kept = append(kept, r)
	}
	kept = append(kept, value)
	return h.store.Put(key, kept)
}

// Handoff validates and applies the put using the same reconciliation
// rule as Put, then upserts the handoff queue entry for targetID: the
// target is added to the record's target list (de-duplicated) and the
// record's pending value is replaced with value (last-writer-wins in
// the queue, per the open question this spec resolves explicitly —
// see SPEC_FULL.md §9).
func (h *Handlers) Handoff(key string, value membership.Value, targetID string) error {
	if err := h.Put(key, value); err != nil && !errors.Is(err, ErrStale) {
		return err
	}
	return h.handoff.Upsert(key, targetID, value)
}

// Get returns the local ValueList for key, or an empty list if absent.
// It never errors on a miss.
func (h *Handlers) Get(key string) (membership.ValueList, error) {
	return h.store.Get(key)
}
