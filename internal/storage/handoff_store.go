package storage

import "dynamokv/internal/membership"

// HandoffRecord is one pending hinted-handoff entry: the set of target
// node ids still owed this value, and the value itself. Per the open
// question this spec resolves explicitly: the queue keeps a single
// Value, not a ValueList — a newer handoff write for the same key
// simply replaces the pending value (last-writer-wins in the queue),
// it does not accumulate siblings.
type HandoffRecord struct {
	Targets []string
	Data    membership.Value
}

// HandoffStore is the durable map backing the handoff worker, keyed by
// the original key that produced the hint. It lives in its own bbolt
// file (see §6 persisted state) — a separate logical namespace from
// the main ValueList store, so a handoff replay and a normal read
// never contend on the same file's transactions.
type HandoffStore struct {
	engine *Engine
}

// NewHandoffStore wraps an already-open Engine as a handoff record store.
func NewHandoffStore(e *Engine) *HandoffStore {
	return &HandoffStore{engine: e}
}

// Get returns the pending record for key, if any.
func (h *HandoffStore) Get(key string) (HandoffRecord, bool, error) {
	raw, ok := h.engine.Get(key)
	if !ok {
		return HandoffRecord{}, false, nil
	}
	var rec HandoffRecord
	if err := decodeGob(raw, &rec); err != nil {
		return HandoffRecord{}, false, err
	}
	return rec, true, nil
}

// Upsert ensures targetID is present in key's target list (de-duplicated)
// and replaces the pending value with data.
func (h *HandoffStore) Upsert(key string, targetID string, data membership.Value) error {
	rec, found, err := h.Get(key)
	if err != nil {
		return err
	}
	if !found {
		rec = HandoffRecord{Targets: []string{targetID}}
	} else if !contains(rec.Targets, targetID) {
		rec.Targets = append(rec.Targets, targetID)
	}
	rec.Data = data
	return h.put(key, rec)
}

// Put overwrites the record for key wholesale — used by the handoff
// worker after a partial replay to shrink the target list.
func (h *HandoffStore) Put(key string, rec HandoffRecord) error {
	return h.put(key, rec)
}

func (h *HandoffStore) put(key string, rec HandoffRecord) error {
	raw, err := encodeGob(rec)
	if err != nil {
		return err
	}
	return h.engine.Put(key, raw)
}

// Delete removes key's handoff record entirely, once every target has
// been successfully replayed.
func (h *HandoffStore) Delete(key string) error {
	return h.engine.Delete(key)
}

// Scan iterates a consistent snapshot of every pending handoff record.
func (h *HandoffStore) Scan(fn func(key string, rec HandoffRecord) error) error {
	return h.engine.Scan(func(key string, raw []byte) error {
		var rec HandoffRecord
		if err := decodeGob(raw, &rec); err != nil {
			return err
		}
		return fn(key, rec)
	})
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
