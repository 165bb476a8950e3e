package storage

import "dynamokv/internal/membership"

// Store is the local ValueList adapter: the "any ordered or unordered
// durable map" collaborator the coordinator and replica handlers read
// and write against. One Store per node, over its own bbolt file.
type Store struct {
	engine *Engine
}

// NewStore wraps an already-open Engine as a ValueList store.
func NewStore(e *Engine) *Store {
	return &Store{engine: e}
}

// Get returns the ValueList resident for key, or an empty list if the
// key has never been written on this node. Replica-get never treats a
// miss as an error.
func (s *Store) Get(key string) (membership.ValueList, error) {
	raw, ok := s.engine.Get(key)
	if !ok {
		return membership.ValueList{}, nil
	}
	var values membership.ValueList
	if err := decodeGob(raw, &values); err != nil {
		return nil, err
	}
	return values, nil
}

// Put overwrites the resident ValueList for key. Callers (coordinator,
// replica handlers) are responsible for having already applied the
// dominated-sibling-pruning reconciliation rule before calling this.
func (s *Store) Put(key string, values membership.ValueList) error {
	raw, err := encodeGob(values)
	if err != nil {
		return err
	}
	return s.engine.Put(key, raw)
}

// Scan iterates every key currently resident, in key order, within one
// consistent snapshot.
func (s *Store) Scan(fn func(key string, values membership.ValueList) error) error {
	return s.engine.Scan(func(key string, raw []byte) error {
		var values membership.ValueList
		if err := decodeGob(raw, &values); err != nil {
			return err
		}
		return fn(key, values)
	})
}
