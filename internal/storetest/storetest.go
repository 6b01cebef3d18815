// Package storetest provides a backend-compliance suite shared by every
// esc.IStorage implementation, generalized from the commit/revision/
// dispatch invariants the core protocol guarantees.
package storetest

import (
	"context"
	"testing"
	"time"

	esc "github.com/mickamy/eventstore-core"
)

// Opened is a minimal test payload.
type Opened struct{ ID string }

func (Opened) EventType() string { return "Opened" }

// Added is a minimal test payload.
type Added struct{ N int }

func (Added) EventType() string { return "Added" }

// Factory creates a new, empty IStorage instance for testing. Each test
// should receive a fresh, isolated instance.
type Factory func(t *testing.T) esc.IStorage

// batch builds a committed-looking batch: shared CommitID/CommitStamp,
// dense CommitSequence, and StreamRevision continuing from startRev.
func batch(streamID, commitID string, startRev int64, payloads ...esc.Payload) []esc.Event {
	stamp := time.Now().UTC()
	out := make([]esc.Event, len(payloads))
	for i, p := range payloads {
		out[i] = esc.Event{
			StreamID:       streamID,
			StreamRevision: startRev + int64(i) + 1,
			CommitID:       commitID,
			CommitSequence: i,
			CommitStamp:    stamp,
			Payload:        p,
			Dispatched:     false,
		}
	}
	return out
}

// Run executes the compliance suite against newStorage. Subtests run in
// parallel, so backends must be concurrency-safe.
func Run(t *testing.T, newStorage Factory) {
	t.Run("append and read back preserves order and revisions", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		st := newStorage(t)

		b1 := batch("Stream:1", "commit-1", -1, Opened{ID: "1"}, Added{N: 5})
		if err := st.AddEvents(ctx, b1); err != nil {
			t.Fatalf("AddEvents: %v", err)
		}

		events, err := st.GetEvents(ctx, "Stream:1", 0, -1)
		if err != nil {
			t.Fatalf("GetEvents: %v", err)
		}
		if len(events) != 2 {
			t.Fatalf("expected 2 events, got %d", len(events))
		}
		if events[0].StreamRevision != 0 || events[1].StreamRevision != 1 {
			t.Fatalf("expected revisions 0,1 got %d,%d", events[0].StreamRevision, events[1].StreamRevision)
		}
		if events[0].CommitID != events[1].CommitID {
			t.Fatalf("expected shared CommitID within a batch")
		}
		if events[0].CommitSequence != 0 || events[1].CommitSequence != 1 {
			t.Fatalf("expected dense CommitSequence 0,1")
		}
		for _, ev := range events {
			if ev.Dispatched {
				t.Fatalf("expected Dispatched=false immediately after AddEvents")
			}
		}
	})

	t.Run("empty batch is a no-op success", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		st := newStorage(t)

		if err := st.AddEvents(ctx, nil); err != nil {
			t.Fatalf("AddEvents(nil): %v", err)
		}
		events, err := st.GetEvents(ctx, "Stream:none", 0, -1)
		if err != nil {
			t.Fatalf("GetEvents: %v", err)
		}
		if len(events) != 0 {
			t.Fatalf("expected 0 events for an unknown stream, got %d", len(events))
		}
	})

	t.Run("unknown stream returns empty", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		st := newStorage(t)

		events, err := st.GetEvents(ctx, "Stream:does-not-exist", 0, -1)
		if err != nil {
			t.Fatalf("GetEvents: %v", err)
		}
		if len(events) != 0 {
			t.Fatalf("expected empty slice, got %d events", len(events))
		}
	})

	t.Run("multi-commit revisions increase monotonically", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		st := newStorage(t)

		b1 := batch("Stream:multi", "commit-a", -1, Opened{ID: "x"}, Added{N: 1})
		if err := st.AddEvents(ctx, b1); err != nil {
			t.Fatalf("AddEvents: %v", err)
		}
		b2 := batch("Stream:multi", "commit-b", 1, Added{N: 2})
		if err := st.AddEvents(ctx, b2); err != nil {
			t.Fatalf("AddEvents: %v", err)
		}

		events, err := st.GetEvents(ctx, "Stream:multi", 0, -1)
		if err != nil {
			t.Fatalf("GetEvents: %v", err)
		}
		if len(events) != 3 {
			t.Fatalf("expected 3 events, got %d", len(events))
		}
		if events[2].StreamRevision != 2 {
			t.Fatalf("expected final revision 2, got %d", events[2].StreamRevision)
		}
		if events[2].CommitID == events[0].CommitID {
			t.Fatalf("expected a distinct CommitID for the second commit")
		}
	})

	t.Run("snapshot lookup by maxRev", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		st := newStorage(t)

		s1 := esc.Snapshot{ID: "s1", StreamID: "Stream:snap", Revision: 1, Data: "a"}
		s2 := esc.Snapshot{ID: "s2", StreamID: "Stream:snap", Revision: 4, Data: "b"}
		if err := st.AddSnapshot(ctx, s1); err != nil {
			t.Fatalf("AddSnapshot: %v", err)
		}
		if err := st.AddSnapshot(ctx, s2); err != nil {
			t.Fatalf("AddSnapshot: %v", err)
		}

		got, found, err := st.GetSnapshot(ctx, "Stream:snap", 2)
		if err != nil {
			t.Fatalf("GetSnapshot: %v", err)
		}
		if !found || got.Revision != 1 {
			t.Fatalf("expected snapshot at revision 1, got found=%v rev=%d", found, got.Revision)
		}

		got, found, err = st.GetSnapshot(ctx, "Stream:snap", -1)
		if err != nil {
			t.Fatalf("GetSnapshot: %v", err)
		}
		if !found || got.Revision != 4 {
			t.Fatalf("expected newest snapshot at revision 4, got found=%v rev=%d", found, got.Revision)
		}

		_, found, err = st.GetSnapshot(ctx, "Stream:no-snapshot", -1)
		if err != nil {
			t.Fatalf("GetSnapshot: %v", err)
		}
		if found {
			t.Fatalf("expected no snapshot for an unknown stream")
		}
	})

	t.Run("undispatched events are tracked and clear on dispatch", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		st := newStorage(t)

		b := batch("Stream:dispatch", "commit-d", -1, Opened{ID: "d"}, Added{N: 1})
		if err := st.AddEvents(ctx, b); err != nil {
			t.Fatalf("AddEvents: %v", err)
		}

		undispatched, err := st.GetUndispatchedEvents(ctx)
		if err != nil {
			t.Fatalf("GetUndispatchedEvents: %v", err)
		}
		if len(undispatched) < 2 {
			t.Fatalf("expected at least 2 undispatched events, got %d", len(undispatched))
		}

		for _, ev := range b {
			if err := st.SetEventToDispatched(ctx, ev); err != nil {
				t.Fatalf("SetEventToDispatched: %v", err)
			}
		}

		remaining, err := st.GetUndispatchedEvents(ctx)
		if err != nil {
			t.Fatalf("GetUndispatchedEvents: %v", err)
		}
		for _, ev := range remaining {
			if ev.StreamID == "Stream:dispatch" {
				t.Fatalf("expected Stream:dispatch events to be cleared from undispatched")
			}
		}
	})

	t.Run("GetID returns distinct non-empty ids", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		st := newStorage(t)

		id1, err := st.GetID(ctx)
		if err != nil {
			t.Fatalf("GetID: %v", err)
		}
		id2, err := st.GetID(ctx)
		if err != nil {
			t.Fatalf("GetID: %v", err)
		}
		if id1 == "" || id2 == "" {
			t.Fatalf("expected non-empty ids")
		}
		if id1 == id2 {
			t.Fatalf("expected distinct ids across calls")
		}
	})

	t.Run("GetAllEvents sorts by CommitStamp", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		st := newStorage(t)

		older := batch("Stream:a", "commit-older", -1, Opened{ID: "a"})
		older[0].CommitStamp = time.Now().UTC().Add(-time.Hour)
		newer := batch("Stream:b", "commit-newer", -1, Opened{ID: "b"})
		newer[0].CommitStamp = time.Now().UTC()

		if err := st.AddEvents(ctx, newer); err != nil {
			t.Fatalf("AddEvents: %v", err)
		}
		if err := st.AddEvents(ctx, older); err != nil {
			t.Fatalf("AddEvents: %v", err)
		}

		all, err := st.GetAllEvents(ctx)
		if err != nil {
			t.Fatalf("GetAllEvents: %v", err)
		}
		for i := 1; i < len(all); i++ {
			if all[i].CommitStamp.Before(all[i-1].CommitStamp) {
				t.Fatalf("GetAllEvents not sorted ascending by CommitStamp at index %d", i)
			}
		}
	})
}
