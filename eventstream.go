package esc

import (
	"context"
)

// EventStream is a mutable, per-aggregate working set of committed and
// uncommitted events. It is produced fresh by every Store.GetEventStream /
// GetFromSnapshot call and is not shared between callers; it is not
// thread-safe, by design — callers hold exclusive access for the
// load-mutate-commit lifecycle (see Commit).
type EventStream struct {
	StreamID          string
	Events            []Event // committed, ordered by StreamRevision
	UncommittedEvents []Event // pending, ordered by intended commit sequence

	store *Store
}

// newEventStream wraps committed events already ordered by revision into a
// fresh EventStream bound to store's commit protocol.
func newEventStream(store *Store, streamID string, committed []Event) *EventStream {
	return &EventStream{
		StreamID: streamID,
		Events:   committed,
		store:    store,
	}
}

// CurrentRevision returns the max StreamRevision across Events, or
// unassignedRevision (-1) if Events is empty.
func (es *EventStream) CurrentRevision() int64 {
	if len(es.Events) == 0 {
		return unassignedRevision
	}
	return es.Events[len(es.Events)-1].StreamRevision
}

// AddEvent wraps payload in a fresh, uncommitted Event and appends it to
// UncommittedEvents. Identity fields (StreamRevision, CommitID,
// CommitSequence, CommitStamp) stay zero until Commit. The order of
// AddEvent calls is the order events will receive CommitSequence values in.
//
// An optional Header may be supplied; when omitted, the Store's configured
// HeaderExtractor (if any) still applies at commit time.
func (es *EventStream) AddEvent(payload Payload, header ...Header) {
	var h Header
	if len(header) > 0 {
		h = header[0]
	}
	es.UncommittedEvents = append(es.UncommittedEvents, Event{
		StreamID: es.StreamID,
		Header:   h,
		Payload:  payload,
	})
}

// Commit delegates to the owning Store's commit protocol: it assigns a
// shared CommitID and dense, monotonically increasing StreamRevisions to
// UncommittedEvents, persists them via Storage, enqueues them onto the
// Dispatcher, and moves them into Events. It returns the same *EventStream,
// mutated in place, for chaining.
//
// Concurrent commits to the same stream from two independently-loaded
// EventStream instances are not detected or prevented; the caller must
// serialize them (see the Store doc comment).
func (es *EventStream) Commit(ctx context.Context) (*EventStream, error) {
	return es.store.commit(ctx, es)
}
