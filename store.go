package esc

import (
	"context"
	"sync"
)

// Store is the coordinator: it holds injected collaborators (Storage,
// Publisher, Logger), validates configuration, and drives the commit/load/
// snapshot protocols documented on its methods.
//
// Concurrent commits to the same stream from two independently-loaded
// EventStream instances are not detected: Store linearizes each commit
// against the EventStream's own loaded tail, not against Storage's
// authoritative tail. Serializing commits per stream — a mutex, a queue, a
// per-aggregate actor — is the caller's responsibility. This is a
// deliberate design choice (documented as an explicit open question in the
// package's originating spec) rather than an oversight.
type Store struct {
	cfg Config

	mu              sync.Mutex
	storage         IStorage
	publisher       IPublisher
	logger          ILogger
	headerExtractor HeaderExtractor

	dispatcher *Dispatcher
	started    bool
}

// New creates an unconfigured Store. Call Use and/or Configure to bind
// collaborators, then Start.
func New(cfg Config) *Store {
	return &Store{cfg: cfg}
}

// Use performs capability detection: module is checked against each
// recognized role (IStorage, IPublisher, ILogger) and bound to every role
// it satisfies. One module may fill multiple roles. Use returns the Store
// for chaining.
func (s *Store) Use(module any) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st, ok := module.(IStorage); ok {
		s.storage = st
	}
	if p, ok := module.(IPublisher); ok {
		s.publisher = p
	}
	if l, ok := module.(ILogger); ok {
		s.logger = l
	}
	return s
}

// WithHeaderExtractor sets a function that builds a Header from a
// context.Context; AddEvent's explicit header, when given, takes precedence
// over the extracted one at commit time.
func (s *Store) WithHeaderExtractor(ex HeaderExtractor) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.headerExtractor = ex
	return s
}

// Configure invokes a caller-supplied setup block against the Store,
// allowing multi-step wiring without exposing every field.
func (s *Store) Configure(fn func(*Store)) *Store {
	fn(s)
	return s
}

// Start fills any unbound role with a default (in-memory storage, a no-op
// publisher, and — only if Config.Logger == "console" — the built-in
// console logger), then constructs and starts the Dispatcher. Start must be
// called exactly once before Commit/GetEventStream/GetFromSnapshot.
func (s *Store) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.storage == nil {
		s.storage = newDefaultMemStorage()
	}
	if s.publisher == nil {
		s.publisher = noopPublisher{}
	}
	if s.logger == nil {
		if s.cfg.Logger == "console" {
			s.logger = NewConsoleLogger()
		} else {
			s.logger = noopLogger{}
		}
	}
	storage, publisher, logger := s.storage, s.publisher, s.logger
	s.started = true
	s.mu.Unlock()

	s.dispatcher = newDispatcher(storage, publisher, logger, s.cfg.publishingInterval())
	return s.dispatcher.Start(ctx)
}

// Stop requests the Dispatcher's poll loop to exit after its current tick.
func (s *Store) Stop() {
	if s.dispatcher != nil {
		s.dispatcher.Stop()
	}
}

// requireStorage returns ErrConfigurationMissing if no Storage is bound —
// the ConfigurationMissing error kind, surfaced synchronously to the caller.
func (s *Store) requireStorage() (IStorage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.storage == nil {
		return nil, ErrConfigurationMissing
	}
	return s.storage, nil
}

// GetEventStream fetches events from Storage in [minRev, maxRev) (positional)
// and wraps them in a fresh EventStream. maxRev = -1 means open-ended.
func (s *Store) GetEventStream(ctx context.Context, streamID string, minRev, maxRev int64) (*EventStream, error) {
	storage, err := s.requireStorage()
	if err != nil {
		return nil, err
	}

	events, err := storage.GetEvents(ctx, streamID, minRev, maxRev)
	if err != nil {
		return nil, &BackendError{Op: "GetEvents", Err: err}
	}
	return newEventStream(s, streamID, events), nil
}

// GetFromSnapshot obtains the latest snapshot with Revision <= maxRev (if
// any), then loads the events from snapshot.Revision+1 (or 0 if no
// snapshot) up to maxRev. It returns the snapshot (found=false if absent)
// and the resulting EventStream.
func (s *Store) GetFromSnapshot(ctx context.Context, streamID string, maxRev int64) (Snapshot, bool, *EventStream, error) {
	storage, err := s.requireStorage()
	if err != nil {
		return Snapshot{}, false, nil, err
	}

	snap, found, err := storage.GetSnapshot(ctx, streamID, maxRev)
	if err != nil {
		return Snapshot{}, false, nil, &BackendError{Op: "GetSnapshot", Err: err}
	}

	minRev := int64(0)
	if found {
		minRev = snap.Revision + 1
	}

	events, err := storage.GetEvents(ctx, streamID, minRev, maxRev)
	if err != nil {
		return Snapshot{}, false, nil, &BackendError{Op: "GetEvents", Err: err}
	}

	return snap, found, newEventStream(s, streamID, events), nil
}

// CreateSnapshot acquires a new id from Storage, assembles the Snapshot,
// and persists it.
func (s *Store) CreateSnapshot(ctx context.Context, streamID string, revision int64, data any) (Snapshot, error) {
	storage, err := s.requireStorage()
	if err != nil {
		return Snapshot{}, err
	}

	id, err := storage.GetID(ctx)
	if err != nil {
		return Snapshot{}, &BackendError{Op: "GetID", Err: err}
	}

	snap := Snapshot{
		ID:       id,
		StreamID: streamID,
		Revision: revision,
		Data:     data,
	}
	if err := storage.AddSnapshot(ctx, snap); err != nil {
		return Snapshot{}, &BackendError{Op: "AddSnapshot", Err: err}
	}
	return snap, nil
}

// GetAllEvents is a thin pass-through to Storage.GetAllEvents, intended for
// diagnostics, not production hot paths.
func (s *Store) GetAllEvents(ctx context.Context) ([]Event, error) {
	storage, err := s.requireStorage()
	if err != nil {
		return nil, err
	}
	events, err := storage.GetAllEvents(ctx)
	if err != nil {
		return nil, &BackendError{Op: "GetAllEvents", Err: err}
	}
	return events, nil
}

// GetEvents is a thin pass-through to Storage.GetEventRange, intended for
// diagnostics, not production hot paths.
func (s *Store) GetEvents(ctx context.Context, index, amount int64) ([]Event, error) {
	storage, err := s.requireStorage()
	if err != nil {
		return nil, err
	}
	events, err := storage.GetEventRange(ctx, index, amount)
	if err != nil {
		return nil, &BackendError{Op: "GetEventRange", Err: err}
	}
	return events, nil
}

// commit is the core protocol (see EventStream.Commit):
//
//  1. Obtain a fresh CommitID from Storage.
//  2. Compute the stream's currentRevision from es.Events.
//  3. For each uncommitted event in order: assign CommitID, CommitSequence,
//     CommitStamp, an incremented StreamRevision, and Dispatched=false.
//  4. Storage.AddEvents(uncommitted).
//  5. Enqueue the same batch onto the Dispatcher.
//  6. Move uncommitted events into es.Events; empty UncommittedEvents.
//
// Storage.AddEvents, Dispatcher.AddUndispatchedEvents, and the in-memory
// state transition are treated as a single logical step: steps 5-6 only
// run after 4 succeeds, and 5-6 are infallible once 4 has committed.
func (s *Store) commit(ctx context.Context, es *EventStream) (*EventStream, error) {
	storage, err := s.requireStorage()
	if err != nil {
		return nil, err
	}

	if len(es.UncommittedEvents) == 0 {
		return es, nil
	}

	commitID, err := storage.GetID(ctx)
	if err != nil {
		return nil, &BackendError{Op: "GetID", Err: err}
	}

	s.mu.Lock()
	extractor := s.headerExtractor
	s.mu.Unlock()

	var extracted Header
	if extractor != nil {
		extracted = extractor(ctx)
	}

	now := timeNow()
	currentRevision := es.CurrentRevision()
	batch := make([]Event, len(es.UncommittedEvents))
	for i, ev := range es.UncommittedEvents {
		currentRevision++
		ev.CommitID = commitID
		ev.CommitSequence = i
		ev.CommitStamp = now
		ev.StreamRevision = currentRevision
		ev.Dispatched = false
		if extractor != nil {
			ev.Header = extracted.Merge(ev.Header)
		}
		batch[i] = ev
	}

	if err := storage.AddEvents(ctx, batch); err != nil {
		return nil, &BackendError{Op: "AddEvents", Err: err}
	}

	if s.dispatcher != nil {
		s.dispatcher.AddUndispatchedEvents(batch)
	}

	es.Events = append(es.Events, batch...)
	es.UncommittedEvents = nil
	return es, nil
}
