// Package postgres is an esc.IStorage backend on top of PostgreSQL via pgx.
//
// Schema (see Migrate):
//
//	CREATE TABLE events (
//	    stream_id       text        NOT NULL,
//	    stream_revision bigint      NOT NULL,
//	    commit_id       text        NOT NULL,
//	    commit_sequence integer     NOT NULL,
//	    commit_stamp    timestamptz NOT NULL,
//	    header          jsonb,
//	    dispatched      boolean     NOT NULL DEFAULT false,
//	    event_type      text        NOT NULL,
//	    payload         jsonb       NOT NULL,
//	    PRIMARY KEY (stream_id, stream_revision)
//	);
//	CREATE INDEX events_undispatched_idx ON events (dispatched) WHERE NOT dispatched;
//	CREATE TABLE snapshots (
//	    id       text        NOT NULL PRIMARY KEY,
//	    stream_id text       NOT NULL,
//	    revision bigint      NOT NULL,
//	    data     jsonb       NOT NULL
//	);
//	CREATE INDEX snapshots_stream_idx ON snapshots (stream_id, revision);
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	esc "github.com/mickamy/eventstore-core"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Migrate creates the events/snapshots tables and supporting indexes if
// they do not already exist.
const Migrate = `
CREATE TABLE IF NOT EXISTS events (
    stream_id       text        NOT NULL,
    stream_revision bigint      NOT NULL,
    commit_id       text        NOT NULL,
    commit_sequence integer     NOT NULL,
    commit_stamp    timestamptz NOT NULL,
    header          jsonb,
    dispatched      boolean     NOT NULL DEFAULT false,
    event_type      text        NOT NULL,
    payload         jsonb       NOT NULL,
    PRIMARY KEY (stream_id, stream_revision)
);
CREATE INDEX IF NOT EXISTS events_undispatched_idx ON events (dispatched) WHERE NOT dispatched;
CREATE TABLE IF NOT EXISTS snapshots (
    id         text   NOT NULL PRIMARY KEY,
    stream_id  text   NOT NULL,
    revision   bigint NOT NULL,
    data       jsonb  NOT NULL
);
CREATE INDEX IF NOT EXISTS snapshots_stream_idx ON snapshots (stream_id, revision);
`

// Storage is a PostgreSQL-backed esc.IStorage. It encodes payloads as JSON
// through a per-event-type codec registry, the same idiom esc.EventCodec
// documents.
type Storage struct {
	pool     *pgxpool.Pool
	registry map[string]esc.EventCodec
}

// Option configures Storage.
type Option func(*Storage)

// WithTypeRegistry sets the registry mapping event type names to codecs.
func WithTypeRegistry(reg map[string]esc.EventCodec) Option {
	return func(s *Storage) { s.registry = reg }
}

// New creates a Postgres-backed Storage.
func New(pool *pgxpool.Pool, opts ...Option) *Storage {
	s := &Storage{
		pool:     pool,
		registry: map[string]esc.EventCodec{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Storage) codecFor(eventType string) (esc.EventCodec, error) {
	codec, ok := s.registry[eventType]
	if !ok {
		return nil, fmt.Errorf("esc/postgres: no codec registered for event type %q", eventType)
	}
	return codec, nil
}

// AddEvents appends the ordered batch inside a single transaction. All
// events must share one StreamID.
func (s *Storage) AddEvents(ctx context.Context, events []esc.Event) error {
	if len(events) == 0 {
		return nil
	}

	streamID := events[0].StreamID
	for _, ev := range events {
		if ev.StreamID != streamID {
			return fmt.Errorf("esc/postgres: batch spans multiple streams: %q and %q", streamID, ev.StreamID)
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("esc/postgres: could not begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, ev := range events {
		eventType := esc.EventType(ev.Payload)
		codec, err := s.codecFor(eventType)
		if err != nil {
			return err
		}
		payload, err := codec.Encode(ev.Payload)
		if err != nil {
			return fmt.Errorf("esc/postgres: could not encode payload: %w", err)
		}
		header, err := json.Marshal(ev.Header)
		if err != nil {
			return fmt.Errorf("esc/postgres: could not encode header: %w", err)
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO events (stream_id, stream_revision, commit_id, commit_sequence, commit_stamp, header, dispatched, event_type, payload)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, ev.StreamID, ev.StreamRevision, ev.CommitID, ev.CommitSequence, ev.CommitStamp, header, ev.Dispatched, eventType, payload); err != nil {
			return fmt.Errorf("esc/postgres: could not insert event: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("esc/postgres: could not commit transaction: %w", err)
	}
	return nil
}

// AddSnapshot inserts a new snapshot row.
func (s *Storage) AddSnapshot(ctx context.Context, snap esc.Snapshot) error {
	data, err := json.Marshal(snap.Data)
	if err != nil {
		return fmt.Errorf("esc/postgres: could not encode snapshot data: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO snapshots (id, stream_id, revision, data)
		VALUES ($1, $2, $3, $4)
	`, snap.ID, snap.StreamID, snap.Revision, data)
	if err != nil {
		return fmt.Errorf("esc/postgres: could not insert snapshot: %w", err)
	}
	return nil
}

// GetEvents returns events with minRev <= stream_revision < maxRev.
// maxRev = -1 means "to end".
func (s *Storage) GetEvents(ctx context.Context, streamID string, minRev, maxRev int64) ([]esc.Event, error) {
	query := `
		SELECT stream_revision, commit_id, commit_sequence, commit_stamp, header, dispatched, event_type, payload
		FROM events
		WHERE stream_id = $1 AND stream_revision >= $2
	`
	args := []any{streamID, minRev}
	if maxRev >= 0 {
		query += " AND stream_revision < $3"
		args = append(args, maxRev)
	}
	query += " ORDER BY stream_revision ASC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("esc/postgres: could not query events: %w", err)
	}
	defer rows.Close()

	return s.scanEvents(rows, streamID)
}

// GetAllEvents returns every event across every stream, sorted by CommitStamp.
func (s *Storage) GetAllEvents(ctx context.Context) ([]esc.Event, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT stream_id, stream_revision, commit_id, commit_sequence, commit_stamp, header, dispatched, event_type, payload
		FROM events
		ORDER BY commit_stamp ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("esc/postgres: could not query events: %w", err)
	}
	defer rows.Close()

	return s.scanEventsWithStream(rows)
}

// GetEventRange returns a slice of length <= amount starting at global
// index across the concatenation of streams, sorted by CommitStamp.
// Diagnostics only, like the same operation on the other backends.
func (s *Storage) GetEventRange(ctx context.Context, index, amount int64) ([]esc.Event, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT stream_id, stream_revision, commit_id, commit_sequence, commit_stamp, header, dispatched, event_type, payload
		FROM events
		ORDER BY commit_stamp ASC
		OFFSET $1 LIMIT $2
	`, index, amount)
	if err != nil {
		return nil, fmt.Errorf("esc/postgres: could not query events: %w", err)
	}
	defer rows.Close()

	return s.scanEventsWithStream(rows)
}

// GetSnapshot returns the latest snapshot whose revision <= maxRev, or the
// newest if maxRev = -1.
func (s *Storage) GetSnapshot(ctx context.Context, streamID string, maxRev int64) (esc.Snapshot, bool, error) {
	query := `
		SELECT id, revision, data
		FROM snapshots
		WHERE stream_id = $1
	`
	args := []any{streamID}
	if maxRev >= 0 {
		query += " AND revision <= $2"
		args = append(args, maxRev)
	}
	query += " ORDER BY revision DESC LIMIT 1"

	row := s.pool.QueryRow(ctx, query, args...)

	var id string
	var revision int64
	var raw []byte
	if err := row.Scan(&id, &revision, &raw); err != nil {
		if err == pgx.ErrNoRows {
			return esc.Snapshot{}, false, nil
		}
		return esc.Snapshot{}, false, fmt.Errorf("esc/postgres: could not scan snapshot: %w", err)
	}

	var data any
	if err := json.Unmarshal(raw, &data); err != nil {
		return esc.Snapshot{}, false, fmt.Errorf("esc/postgres: could not decode snapshot data: %w", err)
	}

	return esc.Snapshot{ID: id, StreamID: streamID, Revision: revision, Data: data}, true, nil
}

// GetUndispatchedEvents returns all events with dispatched = false.
func (s *Storage) GetUndispatchedEvents(ctx context.Context) ([]esc.Event, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT stream_id, stream_revision, commit_id, commit_sequence, commit_stamp, header, dispatched, event_type, payload
		FROM events
		WHERE NOT dispatched
	`)
	if err != nil {
		return nil, fmt.Errorf("esc/postgres: could not query undispatched events: %w", err)
	}
	defer rows.Close()

	return s.scanEventsWithStream(rows)
}

// SetEventToDispatched marks the matching event dispatched.
func (s *Storage) SetEventToDispatched(ctx context.Context, ev esc.Event) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE events SET dispatched = true
		WHERE stream_id = $1 AND stream_revision = $2
	`, ev.StreamID, ev.StreamRevision)
	if err != nil {
		return fmt.Errorf("esc/postgres: could not mark event dispatched: %w", err)
	}
	return nil
}

// GetID returns a fresh UUID.
func (s *Storage) GetID(_ context.Context) (string, error) {
	return uuid.NewString(), nil
}

type rowScanner interface {
	Next() bool
	Err() error
}

func (s *Storage) scanEvents(rows pgx.Rows, streamID string) ([]esc.Event, error) {
	var out []esc.Event
	for rows.Next() {
		ev, err := s.scanOne(rows, streamID)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *Storage) scanEventsWithStream(rows pgx.Rows) ([]esc.Event, error) {
	var out []esc.Event
	for rows.Next() {
		var streamID string
		var rev int64
		var commitID string
		var seq int
		var stamp time.Time
		var header []byte
		var dispatched bool
		var eventType string
		var payload []byte

		if err := rows.Scan(&streamID, &rev, &commitID, &seq, &stamp, &header, &dispatched, &eventType, &payload); err != nil {
			return nil, fmt.Errorf("esc/postgres: could not scan event: %w", err)
		}

		ev, err := s.decode(streamID, rev, commitID, seq, stamp, header, dispatched, eventType, payload)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *Storage) scanOne(rows pgx.Rows, streamID string) (esc.Event, error) {
	var rev int64
	var commitID string
	var seq int
	var stamp time.Time
	var header []byte
	var dispatched bool
	var eventType string
	var payload []byte

	if err := rows.Scan(&rev, &commitID, &seq, &stamp, &header, &dispatched, &eventType, &payload); err != nil {
		return esc.Event{}, fmt.Errorf("esc/postgres: could not scan event: %w", err)
	}
	return s.decode(streamID, rev, commitID, seq, stamp, header, dispatched, eventType, payload)
}

func (s *Storage) decode(streamID string, rev int64, commitID string, seq int, stamp time.Time, header []byte, dispatched bool, eventType string, payload []byte) (esc.Event, error) {
	codec, err := s.codecFor(eventType)
	if err != nil {
		return esc.Event{}, err
	}
	decoded, err := codec.Decode(payload)
	if err != nil {
		return esc.Event{}, fmt.Errorf("esc/postgres: could not decode payload: %w", err)
	}

	var h esc.Header
	if len(header) > 0 {
		if err := json.Unmarshal(header, &h); err != nil {
			return esc.Event{}, fmt.Errorf("esc/postgres: could not decode header: %w", err)
		}
	}

	return esc.Event{
		StreamID:       streamID,
		StreamRevision: rev,
		CommitID:       commitID,
		CommitSequence: seq,
		CommitStamp:    stamp,
		Header:         h,
		Dispatched:     dispatched,
		Payload:        decoded,
	}, nil
}

var _ esc.IStorage = (*Storage)(nil)
