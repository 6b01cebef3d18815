package esc_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	esc "github.com/mickamy/eventstore-core"
)

type opened struct{ ID string }

func (opened) EventType() string { return "opened" }

type deposited struct{ Amount int }

func (deposited) EventType() string { return "deposited" }

// recordingPublisher records every Publish call; it never fails unless
// failUntil is positive, in which case the first failUntil calls fail.
type recordingPublisher struct {
	mu        sync.Mutex
	published []esc.Event
	failUntil int
	calls     int
}

func (p *recordingPublisher) Publish(_ context.Context, ev esc.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.calls <= p.failUntil {
		return errors.New("publish temporarily unavailable")
	}
	p.published = append(p.published, ev)
	return nil
}

func (p *recordingPublisher) snapshot() []esc.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]esc.Event, len(p.published))
	copy(out, p.published)
	return out
}

func newStartedStore(t *testing.T, pub esc.IPublisher) *esc.Store {
	t.Helper()
	store := esc.New(esc.Config{PublishingInterval: 5 * time.Millisecond}).Use(pub)
	if err := store.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(store.Stop)
	return store
}

func TestStore_CommitAssignsMonotonicRevisions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newStartedStore(t, &recordingPublisher{})

	stream, err := store.GetEventStream(ctx, "Account:1", 0, -1)
	if err != nil {
		t.Fatalf("GetEventStream: %v", err)
	}
	stream.AddEvent(opened{ID: "1"})
	stream.AddEvent(deposited{Amount: 100})
	if _, err := stream.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if len(stream.Events) != 2 {
		t.Fatalf("expected 2 committed events, got %d", len(stream.Events))
	}
	if stream.Events[0].StreamRevision != 0 || stream.Events[1].StreamRevision != 1 {
		t.Fatalf("expected revisions 0,1, got %d,%d", stream.Events[0].StreamRevision, stream.Events[1].StreamRevision)
	}
	if stream.Events[0].CommitID != stream.Events[1].CommitID {
		t.Fatalf("expected a shared CommitID within one commit")
	}
	if stream.CurrentRevision() != 1 {
		t.Fatalf("expected CurrentRevision 1, got %d", stream.CurrentRevision())
	}

	stream.AddEvent(deposited{Amount: 50})
	if _, err := stream.Commit(ctx); err != nil {
		t.Fatalf("second Commit: %v", err)
	}
	if stream.CurrentRevision() != 2 {
		t.Fatalf("expected CurrentRevision 2 after second commit, got %d", stream.CurrentRevision())
	}
	if stream.Events[2].CommitID == stream.Events[0].CommitID {
		t.Fatalf("expected a distinct CommitID for the second commit")
	}
}

func TestStore_CommitWithNoUncommittedEventsIsNoOp(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newStartedStore(t, &recordingPublisher{})

	stream, err := store.GetEventStream(ctx, "Account:empty", 0, -1)
	if err != nil {
		t.Fatalf("GetEventStream: %v", err)
	}
	if _, err := stream.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if len(stream.Events) != 0 {
		t.Fatalf("expected no events committed, got %d", len(stream.Events))
	}
}

func TestStore_HeaderExtractorMergesUnderExplicitHeader(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := esc.New(esc.Config{}).
		Use(&recordingPublisher{}).
		WithHeaderExtractor(func(context.Context) esc.Header {
			return esc.Header{"tenant": "extracted", "source": "extractor"}
		})
	if err := store.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(store.Stop)

	stream, err := store.GetEventStream(ctx, "Account:header", 0, -1)
	if err != nil {
		t.Fatalf("GetEventStream: %v", err)
	}
	stream.AddEvent(opened{ID: "h"}, esc.Header{"tenant": "explicit"})
	if _, err := stream.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	got := stream.Events[0].Header
	if got["tenant"] != "explicit" {
		t.Fatalf("expected explicit header to win over extracted, got %v", got["tenant"])
	}
	if got["source"] != "extractor" {
		t.Fatalf("expected extractor fields not overridden by explicit header to survive, got %v", got["source"])
	}
}

func TestStore_SnapshotAndTailRehydration(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newStartedStore(t, &recordingPublisher{})

	stream, err := store.GetEventStream(ctx, "Account:snap", 0, -1)
	if err != nil {
		t.Fatalf("GetEventStream: %v", err)
	}
	stream.AddEvent(opened{ID: "s"})
	stream.AddEvent(deposited{Amount: 10})
	stream.AddEvent(deposited{Amount: 20})
	if _, err := stream.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if _, err := store.CreateSnapshot(ctx, "Account:snap", 1, "balance=10"); err != nil {
		t.Fatalf("CreateSnapshot: %v", err)
	}

	snap, found, tail, err := store.GetFromSnapshot(ctx, "Account:snap", -1)
	if err != nil {
		t.Fatalf("GetFromSnapshot: %v", err)
	}
	if !found || snap.Revision != 1 {
		t.Fatalf("expected snapshot at revision 1, got found=%v rev=%d", found, snap.Revision)
	}
	if len(tail.Events) != 1 {
		t.Fatalf("expected 1 event after the snapshot, got %d", len(tail.Events))
	}
	if tail.Events[0].StreamRevision != 2 {
		t.Fatalf("expected the tail event at revision 2, got %d", tail.Events[0].StreamRevision)
	}
}

func TestStore_RequiresStartBeforeUse(t *testing.T) {
	t.Parallel()
	store := esc.New(esc.Config{})
	_, err := store.GetEventStream(context.Background(), "Account:unstarted", 0, -1)
	if !errors.Is(err, esc.ErrConfigurationMissing) {
		t.Fatalf("expected ErrConfigurationMissing before Start binds a default storage, got %v", err)
	}
}

func TestStore_DispatchesCommittedEventsAtLeastOnce(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	pub := &recordingPublisher{}
	store := newStartedStore(t, pub)

	stream, err := store.GetEventStream(ctx, "Account:dispatch", 0, -1)
	if err != nil {
		t.Fatalf("GetEventStream: %v", err)
	}
	stream.AddEvent(opened{ID: "d"})
	stream.AddEvent(deposited{Amount: 1})
	if _, err := stream.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if len(pub.snapshot()) == 2 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	published := pub.snapshot()
	if len(published) != 2 {
		t.Fatalf("expected 2 dispatched events, got %d", len(published))
	}
	if published[0].StreamRevision != 0 || published[1].StreamRevision != 1 {
		t.Fatalf("expected dispatch to preserve commit order, got revisions %d,%d",
			published[0].StreamRevision, published[1].StreamRevision)
	}
}
