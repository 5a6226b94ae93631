// Package codec defines the serializer contract the shared-memory
// engine uses to turn arbitrary keys and values into the opaque bytes
// it stores in mmap'd slots, plus a default gob-backed implementation.
package codec

import (
	"bytes"
	"encoding/gob"
	"fmt"
)

// Codec converts values of type T to and from bytes. Encode failures are
// reported to the caller as a wrapped serialization error; Decode
// failures on stored bytes indicate a corrupt payload.
type Codec[T any] interface {
	Encode(v T) ([]byte, error)
	Decode(b []byte) (T, error)
}

// GobCodec is the default Codec, backed by encoding/gob. It is the
// codec used unless a Config supplies its own, matching the gob-based
// payload serialization used elsewhere in the pack for cache entries.
type GobCodec[T any] struct{}

func (GobCodec[T]) Encode(v T) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("codec: gob encode: %w", err)
	}
	return buf.Bytes(), nil
}

func (GobCodec[T]) Decode(b []byte) (T, error) {
	var v T
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&v); err != nil {
		return v, fmt.Errorf("codec: gob decode: %w", err)
	}
	return v, nil
}
