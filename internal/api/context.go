package api

import (
	"bytes"
	"encoding/base64"

	"dynamokv/internal/vclock"
	"dynamokv/internal/wire"
)

// encodeContext serializes a vector clock the way the client HTTP
// surface expects it: the binary-framed clock, base64'd for transport
// inside a JSON body. Matches spec.md §6 "context is the base64 of the
// binary vector clock returned by a prior /get".
func encodeContext(c vclock.Clock) (string, error) {
	frame, err := wire.Encode(c)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(frame), nil
}

// decodeContext reverses encodeContext. An empty string (the "no prior
// read" case, first write of a key) decodes to an empty clock.
func decodeContext(s string) (vclock.Clock, error) {
	if s == "" {
		return vclock.New(), nil
	}
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	var c vclock.Clock
	if err := wire.Decode(bytes.NewReader(raw), &c); err != nil {
		return nil, err
	}
	return c, nil
}

// encodeBase64 and decodeBase64 handle the client-facing payload
// encoding: spec.md §6 carries value bytes as base64 inside JSON.
func encodeBase64(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

func decodeBase64(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	return base64.StdEncoding.DecodeString(s)
}
