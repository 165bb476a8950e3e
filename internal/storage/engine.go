// Package storage is the local durable-map collaborator every node
// depends on for its own slice of the keyspace: a crash-safe ordered
// map from key to ValueList, backed by go.etcd.io/bbolt.
//
// The teacher's store kept this durable by hand — an append-only WAL
// plus a periodic atomic-rename snapshot. bbolt gives the same
// durability contract (every committed transaction is fsync'd before
// Update returns) without a hand-rolled replay path, so this package
// keeps the teacher's "durable map behind a small Go API" shape but
// drops the WAL/snapshot machinery in favor of bbolt's own B+tree
// transaction log.
package storage

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"go.etcd.io/bbolt"
)

var dataBucket = []byte("data")

// Engine is a durable, ordered byte-string map. Both the main
// ValueList store and the handoff queue store are Engines over
// separate bbolt files, matching the "separate logical namespace"
// requirement.
type Engine struct {
	db *bbolt.DB
}

// Open opens (creating if necessary) a bbolt file at path and ensures
// the data bucket exists.
func Open(path string) (*Engine, error) {
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(dataBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: init bucket: %w", err)
	}
	return &Engine{db: db}, nil
}

// Close releases the underlying file handle.
func (e *Engine) Close() error {
	return e.db.Close()
}

// Get returns the raw bytes stored for key, or (nil, false) if absent.
// The returned slice is a copy safe to retain past the call.
func (e *Engine) Get(key string) ([]byte, bool) {
	var out []byte
	_ = e.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(dataBucket).Get([]byte(key))
		if v != nil {
			out = append([]byte(nil), v...)
		}
		return nil
	})
	return out, out != nil
}

// Put stores raw bytes for key, overwriting any existing value.
func (e *Engine) Put(key string, value []byte) error {
	return e.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(dataBucket).Put([]byte(key), value)
	})
}

// Delete removes key. Deleting an absent key is a no-op.
func (e *Engine) Delete(key string) error {
	return e.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(dataBucket).Delete([]byte(key))
	})
}

// Scan calls fn for every key/value pair in a single consistent
// snapshot (a bbolt read-only transaction), in key order. Used by the
// handoff worker to iterate a stable view of pending records.
func (e *Engine) Scan(fn func(key string, value []byte) error) error {
	return e.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(dataBucket).ForEach(func(k, v []byte) error {
			return fn(string(k), v)
		})
	})
}

// encodeGob is a small helper shared by the adapters in this package:
// every record stored here is gob-encoded, matching the wire codec's
// choice of a tagged object graph format.
func encodeGob(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("storage: encode: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeGob(data []byte, v any) error {
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(v); err != nil {
		return fmt.Errorf("storage: decode: %w", err)
	}
	return nil
}
