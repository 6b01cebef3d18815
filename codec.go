package esc

import (
	"encoding/json"
	"fmt"
)

// EventCodec defines how a Payload is encoded/decoded for persistence by a
// Storage backend. The in-memory reference backend does not need one (it
// keeps payloads as live Go values); the postgres and bolt backends require
// one codec per registered payload type name (see EventType).
type EventCodec interface {
	Encode(v any) ([]byte, error)
	Decode(b []byte) (any, error)
}

// JSONCodec is a generic implementation of EventCodec for JSON-based encoding.
func JSONCodec[T any]() EventCodec {
	return jsonCodec[T]{}
}

type jsonCodec[T any] struct{}

func (jsonCodec[T]) Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec[T]) Decode(b []byte) (any, error) {
	var v T
	err := json.Unmarshal(b, &v)
	if err != nil {
		return nil, fmt.Errorf("esc: failed to decode json: %w", err)
	}
	return v, err
}
