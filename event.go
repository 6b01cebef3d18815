package esc

import (
	"fmt"
	"time"
)

// Payload is a semantic alias of `any` that represents a domain event payload.
// esc never interprets it; callers supply already-serializable values and,
// for non-memory backends, an EventCodec to round-trip them.
type Payload any

// Event is an append-only record persisted by a Storage backend.
//
// StreamRevision, CommitID, CommitSequence, and CommitStamp are assigned by
// the Store at commit time (the core commit protocol); they are zero
// values on an event still pending inside an EventStream's
// UncommittedEvents slice.
type Event struct {
	StreamID       string
	StreamRevision int64 // position within StreamID; dense, starts at 0
	CommitID       string
	CommitSequence int
	CommitStamp    time.Time
	Header         Header
	Dispatched     bool
	Payload        Payload
}

// EventType returns the canonical name for a given payload.
// If the payload implements `EventType() string`, that value is used.
// Otherwise, it falls back to the Go type name (e.g., "account.AccountOpened").
func EventType(p Payload) string {
	if named, ok := p.(interface{ EventType() string }); ok {
		return named.EventType()
	}
	return fmt.Sprintf("%T", p)
}

// unassignedRevision is the sentinel CurrentRevision() reports for an empty
// EventStream: the first commit's first event becomes revision 0.
const unassignedRevision int64 = -1
