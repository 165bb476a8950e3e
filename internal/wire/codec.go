// Package wire implements the binary framing used for every replica RPC
// body and every gossiped cluster state: a 4-byte little-endian length
// prefix followed by a gob-encoded payload.
//
// gob is this repo's "tagged object graph" codec, the same approach the
// chord transport in the example pack uses over raw TCP (header frame +
// gob body): it round-trips arbitrary Go structs, including the
// map[string]uint64 vector clocks, without per-field schema tags. The
// length prefix is explicit so framing does not depend on gob's own
// (stream-oriented, not frame-oriented) encoding to signal message
// boundaries over a connection that may carry more than one message.
package wire

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"io"
)

// maxFrameSize bounds a single decoded frame, guarding against a
// corrupt or hostile length prefix causing an unbounded allocation.
const maxFrameSize = 64 << 20 // 64MiB

// Encode gob-encodes v and returns it wrapped in a 4-byte little-endian
// length-prefixed frame.
func Encode(v any) ([]byte, error) {
	var payload bytes.Buffer
	if err := gob.NewEncoder(&payload).Encode(v); err != nil {
		return nil, fmt.Errorf("wire: encode: %w", err)
	}

	frame := make([]byte, 4+payload.Len())
	binary.LittleEndian.PutUint32(frame[:4], uint32(payload.Len()))
	copy(frame[4:], payload.Bytes())
	return frame, nil
}

// Decode reads one length-prefixed frame from r and gob-decodes it into
// v, which must be a pointer.
func Decode(r io.Reader, v any) error {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return fmt.Errorf("wire: read length prefix: %w", err)
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	if n > maxFrameSize {
		return fmt.Errorf("wire: frame size %d exceeds max %d", n, maxFrameSize)
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return fmt.Errorf("wire: read payload: %w", err)
	}
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(v); err != nil {
		return fmt.Errorf("wire: decode: %w", err)
	}
	return nil
}
