package esc

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeDispatchStorage struct {
	mu          sync.Mutex
	backlog     []Event
	dispatched  []Event
}

func (s *fakeDispatchStorage) AddEvents(context.Context, []Event) error    { return nil }
func (s *fakeDispatchStorage) AddSnapshot(context.Context, Snapshot) error { return nil }
func (s *fakeDispatchStorage) GetEvents(context.Context, string, int64, int64) ([]Event, error) {
	return nil, nil
}
func (s *fakeDispatchStorage) GetAllEvents(context.Context) ([]Event, error) { return nil, nil }
func (s *fakeDispatchStorage) GetEventRange(context.Context, int64, int64) ([]Event, error) {
	return nil, nil
}
func (s *fakeDispatchStorage) GetSnapshot(context.Context, string, int64) (Snapshot, bool, error) {
	return Snapshot{}, false, nil
}
func (s *fakeDispatchStorage) GetUndispatchedEvents(context.Context) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.backlog))
	copy(out, s.backlog)
	return out, nil
}
func (s *fakeDispatchStorage) SetEventToDispatched(_ context.Context, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dispatched = append(s.dispatched, ev)
	return nil
}
func (s *fakeDispatchStorage) GetID(context.Context) (string, error) { return "fake-id", nil }

var _ IStorage = (*fakeDispatchStorage)(nil)

type fakePublisher struct {
	mu        sync.Mutex
	failNext  int
	published []Event
}

func (p *fakePublisher) Publish(_ context.Context, ev Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failNext > 0 {
		p.failNext--
		return errors.New("publish unavailable")
	}
	p.published = append(p.published, ev)
	return nil
}

func (p *fakePublisher) snapshot() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Event, len(p.published))
	copy(out, p.published)
	return out
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func TestDispatcher_RecoversUndispatchedEventsOnStart(t *testing.T) {
	t.Parallel()
	storage := &fakeDispatchStorage{
		backlog: []Event{
			{StreamID: "s1", CommitID: "c1", CommitSequence: 0, Payload: "a"},
			{StreamID: "s1", CommitID: "c1", CommitSequence: 1, Payload: "b"},
		},
	}
	pub := &fakePublisher{}
	d := newDispatcher(storage, pub, noopLogger{}, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer d.Stop()

	waitFor(t, time.Second, func() bool { return len(pub.snapshot()) == 2 })
}

func TestDispatcher_StopsAtFirstFailureAndPreservesOrder(t *testing.T) {
	t.Parallel()
	storage := &fakeDispatchStorage{}
	pub := &fakePublisher{failNext: 1}
	d := newDispatcher(storage, pub, noopLogger{}, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer d.Stop()

	d.AddUndispatchedEvents([]Event{
		{StreamID: "s1", CommitID: "c1", CommitSequence: 0, Payload: "a"},
		{StreamID: "s1", CommitID: "c1", CommitSequence: 1, Payload: "b"},
	})

	waitFor(t, time.Second, func() bool { return len(pub.snapshot()) == 2 })
	published := pub.snapshot()
	if published[0].CommitSequence != 0 || published[1].CommitSequence != 1 {
		t.Fatalf("expected FIFO order preserved across the failed retry, got sequences %d,%d",
			published[0].CommitSequence, published[1].CommitSequence)
	}
}

func TestDispatcher_StopWaitsForLoopExit(t *testing.T) {
	t.Parallel()
	storage := &fakeDispatchStorage{}
	pub := &fakePublisher{}
	d := newDispatcher(storage, pub, noopLogger{}, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	d.Stop()

	select {
	case <-d.doneCh:
	default:
		t.Fatalf("expected doneCh closed after Stop returns")
	}
}
