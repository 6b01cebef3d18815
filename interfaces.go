package esc

import (
	"context"
)

// IStorage is the durable append-only event log, snapshot store, and id
// generator a Store delegates to. Implementations must be safe for
// concurrent use: the Dispatcher and the coordinator's callers both issue
// calls against the same instance.
//
// Every fallible operation returns an error. Store wraps each backend
// failure it surfaces in a *BackendError so callers can recognize "storage
// broke" uniformly while still being able to unwrap to the driver error
// with errors.As.
type IStorage interface {
	// AddEvents appends the ordered batch to the stream identified by
	// events[0].StreamID. All events in a batch MUST share one StreamID.
	// An empty batch is a no-op success. Append preserves order.
	AddEvents(ctx context.Context, events []Event) error

	// AddSnapshot appends to the per-stream snapshot list.
	AddSnapshot(ctx context.Context, snap Snapshot) error

	// GetEvents returns events with minRev <= index < maxRev using
	// zero-based positional indexing over the stream's event log (not
	// StreamRevision values, though in normal operation they coincide).
	// maxRev = -1 means "to end". An unknown stream returns an empty slice.
	GetEvents(ctx context.Context, streamID string, minRev, maxRev int64) ([]Event, error)

	// GetAllEvents returns every event across every stream, sorted
	// ascending by CommitStamp. Diagnostics only.
	GetAllEvents(ctx context.Context) ([]Event, error)

	// GetEventRange returns a slice of length <= amount starting at global
	// index across the concatenation of streams, sorted by CommitStamp.
	// Best-effort, diagnostics only: backends that gather events by
	// iterating streams in an unspecified order may break CommitStamp ties
	// differently across calls, so the window is not a stable cursor.
	GetEventRange(ctx context.Context, index, amount int64) ([]Event, error)

	// GetSnapshot returns the latest snapshot whose Revision <= maxRev, or
	// the newest snapshot if maxRev = -1. The second return value is false
	// when no qualifying snapshot exists.
	GetSnapshot(ctx context.Context, streamID string, maxRev int64) (Snapshot, bool, error)

	// GetUndispatchedEvents returns all events with Dispatched = false, in
	// any order the backend chooses but stable within a call.
	GetUndispatchedEvents(ctx context.Context) ([]Event, error)

	// SetEventToDispatched marks the event dispatched. The transition must
	// be visible to subsequent GetUndispatchedEvents calls.
	SetEventToDispatched(ctx context.Context, ev Event) error

	// GetID returns a fresh unique identifier, used for CommitID and
	// Snapshot.ID.
	GetID(ctx context.Context) (string, error)
}

// IPublisher accepts committed events for delivery to downstream
// subscribers. Publish must be idempotent per (CommitID, CommitSequence):
// the Dispatcher's at-least-once semantics mean the same event can be
// published more than once across a crash/restart.
type IPublisher interface {
	Publish(ctx context.Context, ev Event) error
}

// ILogger is the logging capability a Store and Dispatcher bind to.
// ConsoleLogger is the built-in implementation backed by zerolog.
type ILogger interface {
	Info(msg string)
	Debug(msg string)
	Warn(msg string)
	Error(msg string)
}

// noopLogger discards everything; it is the default when no ILogger is
// bound and Config.Logger is not "console".
type noopLogger struct{}

func (noopLogger) Info(string)  {}
func (noopLogger) Debug(string) {}
func (noopLogger) Warn(string)  {}
func (noopLogger) Error(string) {}

// noopPublisher accepts every event without forwarding it anywhere; it is
// the default when no IPublisher is bound.
type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, Event) error { return nil }
