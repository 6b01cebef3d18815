// Package bolt is an esc.IStorage backend on top of an embedded bbolt
// database: one bucket nesting a sub-bucket per stream for events, one
// bucket nesting a sub-bucket per stream for snapshots, and one flat
// bucket indexing the keys of events still awaiting dispatch.
package bolt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	esc "github.com/mickamy/eventstore-core"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketEvents       = []byte("events")
	bucketSnapshots    = []byte("snapshots")
	bucketUndispatched = []byte("undispatched")
)

// record is the on-disk shape of an event, everything but StreamID and
// StreamRevision, which live in the bucket path and key.
type record struct {
	CommitID       string    `json:"commitId"`
	CommitSequence int       `json:"commitSequence"`
	CommitStamp    time.Time `json:"commitStamp"`
	Header         esc.Header `json:"header,omitempty"`
	Dispatched     bool      `json:"dispatched"`
	EventType      string    `json:"eventType"`
	Payload        []byte    `json:"payload"`
}

// Storage is a bbolt-backed esc.IStorage.
type Storage struct {
	db       *bolt.DB
	registry map[string]esc.EventCodec
}

// Option configures Storage.
type Option func(*Storage)

// WithTypeRegistry sets the registry mapping event type names to codecs.
func WithTypeRegistry(reg map[string]esc.EventCodec) Option {
	return func(s *Storage) { s.registry = reg }
}

// Open opens (creating if absent) a bbolt database at path and prepares
// its top-level buckets.
func Open(path string, opts ...Option) (*Storage, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("esc/bolt: could not open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketEvents, bucketSnapshots, bucketUndispatched} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("esc/bolt: could not create bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Storage{db: db, registry: map[string]esc.EventCodec{}}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) codecFor(eventType string) (esc.EventCodec, error) {
	codec, ok := s.registry[eventType]
	if !ok {
		return nil, fmt.Errorf("esc/bolt: no codec registered for event type %q", eventType)
	}
	return codec, nil
}

func revKey(rev int64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(rev))
	return buf
}

func undispatchedKey(streamID string, rev int64) []byte {
	return []byte(fmt.Sprintf("%s\x00%020d", streamID, rev))
}

// AddEvents appends the ordered batch, creating the stream's bucket on
// first write. All events must share one StreamID.
func (s *Storage) AddEvents(_ context.Context, events []esc.Event) error {
	if len(events) == 0 {
		return nil
	}

	streamID := events[0].StreamID
	for _, ev := range events {
		if ev.StreamID != streamID {
			return fmt.Errorf("esc/bolt: batch spans multiple streams: %q and %q", streamID, ev.StreamID)
		}
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		events_, err := tx.Bucket(bucketEvents).CreateBucketIfNotExists([]byte(streamID))
		if err != nil {
			return err
		}
		undispatched := tx.Bucket(bucketUndispatched)

		for _, ev := range events {
			eventType := esc.EventType(ev.Payload)
			codec, err := s.codecFor(eventType)
			if err != nil {
				return err
			}
			payload, err := codec.Encode(ev.Payload)
			if err != nil {
				return fmt.Errorf("esc/bolt: could not encode payload: %w", err)
			}

			rec := record{
				CommitID:       ev.CommitID,
				CommitSequence: ev.CommitSequence,
				CommitStamp:    ev.CommitStamp,
				Header:         ev.Header,
				Dispatched:     ev.Dispatched,
				EventType:      eventType,
				Payload:        payload,
			}
			data, err := json.Marshal(rec)
			if err != nil {
				return fmt.Errorf("esc/bolt: could not encode event: %w", err)
			}
			if err := events_.Put(revKey(ev.StreamRevision), data); err != nil {
				return err
			}
			if !ev.Dispatched {
				if err := undispatched.Put(undispatchedKey(streamID, ev.StreamRevision), []byte{}); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// AddSnapshot stores snap under its stream's snapshot bucket, keyed by
// revision.
func (s *Storage) AddSnapshot(_ context.Context, snap esc.Snapshot) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.Bucket(bucketSnapshots).CreateBucketIfNotExists([]byte(snap.StreamID))
		if err != nil {
			return err
		}
		data, err := json.Marshal(snap)
		if err != nil {
			return fmt.Errorf("esc/bolt: could not encode snapshot: %w", err)
		}
		return b.Put(revKey(snap.Revision), data)
	})
}

// GetEvents returns events with minRev <= stream_revision < maxRev.
// maxRev = -1 means "to end". An unknown stream returns an empty slice.
func (s *Storage) GetEvents(_ context.Context, streamID string, minRev, maxRev int64) ([]esc.Event, error) {
	var out []esc.Event
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEvents).Bucket([]byte(streamID))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.Seek(revKey(minRev)); k != nil; k, v = c.Next() {
			rev := int64(binary.BigEndian.Uint64(k))
			if maxRev >= 0 && rev >= maxRev {
				break
			}
			ev, err := s.decode(streamID, rev, v)
			if err != nil {
				return err
			}
			out = append(out, ev)
		}
		return nil
	})
	return out, err
}

// GetAllEvents returns every event across every stream, sorted ascending
// by CommitStamp.
func (s *Storage) GetAllEvents(_ context.Context) ([]esc.Event, error) {
	var out []esc.Event
	err := s.db.View(func(tx *bolt.Tx) error {
		root := tx.Bucket(bucketEvents)
		c := root.Cursor()
		for streamID, v := c.First(); streamID != nil; streamID, v = c.Next() {
			if v != nil {
				continue
			}
			b := root.Bucket(streamID)
			err := b.ForEach(func(k, v []byte) error {
				rev := int64(binary.BigEndian.Uint64(k))
				ev, err := s.decode(string(streamID), rev, v)
				if err != nil {
					return err
				}
				out = append(out, ev)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CommitStamp.Before(out[j].CommitStamp)
	})
	return out, nil
}

// GetEventRange returns a slice of length <= amount starting at global
// index across the concatenation of streams, sorted by CommitStamp.
// Diagnostics only: bbolt's bucket iteration order does not reflect
// commit order, so the window boundary is only meaningful after sorting,
// the same caveat the reference in-memory backend documents.
func (s *Storage) GetEventRange(ctx context.Context, index, amount int64) ([]esc.Event, error) {
	all, err := s.GetAllEvents(ctx)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= int64(len(all)) {
		return nil, nil
	}
	end := index + amount
	if end > int64(len(all)) {
		end = int64(len(all))
	}
	out := make([]esc.Event, end-index)
	copy(out, all[index:end])
	return out, nil
}

// GetSnapshot returns the latest snapshot whose revision <= maxRev, or the
// newest if maxRev = -1.
func (s *Storage) GetSnapshot(_ context.Context, streamID string, maxRev int64) (esc.Snapshot, bool, error) {
	var best esc.Snapshot
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSnapshots).Bucket([]byte(streamID))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		if maxRev < 0 {
			k, v := c.Last()
			if k == nil {
				return nil
			}
			found = true
			return json.Unmarshal(v, &best)
		}
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			rev := int64(binary.BigEndian.Uint64(k))
			if rev <= maxRev {
				found = true
				return json.Unmarshal(v, &best)
			}
		}
		return nil
	})
	if err != nil {
		return esc.Snapshot{}, false, err
	}
	return best, found, nil
}

// GetUndispatchedEvents returns all events with Dispatched = false.
func (s *Storage) GetUndispatchedEvents(_ context.Context) ([]esc.Event, error) {
	var out []esc.Event
	err := s.db.View(func(tx *bolt.Tx) error {
		events := tx.Bucket(bucketEvents)
		return tx.Bucket(bucketUndispatched).ForEach(func(k, _ []byte) error {
			streamID, rev, err := splitUndispatchedKey(k)
			if err != nil {
				return err
			}
			b := events.Bucket([]byte(streamID))
			if b == nil {
				return nil
			}
			v := b.Get(revKey(rev))
			if v == nil {
				return nil
			}
			ev, err := s.decode(streamID, rev, v)
			if err != nil {
				return err
			}
			out = append(out, ev)
			return nil
		})
	})
	return out, err
}

// SetEventToDispatched marks the matching event dispatched and drops it
// from the undispatched index.
func (s *Storage) SetEventToDispatched(_ context.Context, target esc.Event) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEvents).Bucket([]byte(target.StreamID))
		if b == nil {
			return nil
		}
		key := revKey(target.StreamRevision)
		v := b.Get(key)
		if v == nil {
			return nil
		}
		var rec record
		if err := json.Unmarshal(v, &rec); err != nil {
			return fmt.Errorf("esc/bolt: could not decode event: %w", err)
		}
		if rec.CommitID != target.CommitID || rec.CommitSequence != target.CommitSequence {
			return nil
		}
		rec.Dispatched = true
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		if err := b.Put(key, data); err != nil {
			return err
		}
		return tx.Bucket(bucketUndispatched).Delete(undispatchedKey(target.StreamID, target.StreamRevision))
	})
}

// GetID returns a fresh UUID.
func (s *Storage) GetID(_ context.Context) (string, error) {
	return uuid.NewString(), nil
}

func (s *Storage) decode(streamID string, rev int64, data []byte) (esc.Event, error) {
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return esc.Event{}, fmt.Errorf("esc/bolt: could not decode event: %w", err)
	}
	codec, err := s.codecFor(rec.EventType)
	if err != nil {
		return esc.Event{}, err
	}
	payload, err := codec.Decode(rec.Payload)
	if err != nil {
		return esc.Event{}, fmt.Errorf("esc/bolt: could not decode payload: %w", err)
	}
	return esc.Event{
		StreamID:       streamID,
		StreamRevision: rev,
		CommitID:       rec.CommitID,
		CommitSequence: rec.CommitSequence,
		CommitStamp:    rec.CommitStamp,
		Header:         rec.Header,
		Dispatched:     rec.Dispatched,
		Payload:        payload,
	}, nil
}

func splitUndispatchedKey(k []byte) (string, int64, error) {
	s := string(k)
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '\x00' {
			var rev int64
			if _, err := fmt.Sscanf(s[i+1:], "%d", &rev); err != nil {
				return "", 0, fmt.Errorf("esc/bolt: malformed undispatched key: %w", err)
			}
			return s[:i], rev, nil
		}
	}
	return "", 0, fmt.Errorf("esc/bolt: malformed undispatched key %q", s)
}

var _ esc.IStorage = (*Storage)(nil)
