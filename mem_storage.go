package esc

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemStorage is the reference in-memory IStorage implementation: an arena
// of stream-indexed ordered event lists plus an insertion-ordered snapshot
// list per stream. It is concurrency-safe and suitable for tests,
// prototypes, and local runs; events and snapshots are lost on restart.
//
// It is the default Store binds when Start is called with no IStorage
// bound via Use. The storage/mem package re-exports it as mem.Store with a
// mem.New constructor (no options), for callers who want to construct one
// under the same storage/<name> layout as the other backends.
type MemStorage struct {
	mu        sync.RWMutex
	streams   map[string][]Event
	snapshots map[string][]Snapshot
}

// NewMemStorage creates an empty MemStorage.
func NewMemStorage() *MemStorage {
	return &MemStorage{
		streams:   make(map[string][]Event),
		snapshots: make(map[string][]Snapshot),
	}
}

func newDefaultMemStorage() *MemStorage {
	return NewMemStorage()
}

// AddEvents appends the ordered batch to the stream identified by
// events[0].StreamID. All events must share one StreamID. An empty batch is
// a no-op success.
func (m *MemStorage) AddEvents(_ context.Context, events []Event) error {
	if len(events) == 0 {
		return nil
	}

	streamID := events[0].StreamID
	for _, ev := range events {
		if ev.StreamID != streamID {
			return fmt.Errorf("esc/mem: batch spans multiple streams: %q and %q", streamID, ev.StreamID)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.streams[streamID] = append(m.streams[streamID], events...)
	return nil
}

// AddSnapshot appends to the per-stream snapshot list.
func (m *MemStorage) AddSnapshot(_ context.Context, snap Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[snap.StreamID] = append(m.snapshots[snap.StreamID], snap)
	return nil
}

// GetEvents returns events with minRev <= index < maxRev, using zero-based
// positional indexing over the stream's event log. maxRev = -1 means "to
// end". An unknown stream returns an empty slice.
func (m *MemStorage) GetEvents(_ context.Context, streamID string, minRev, maxRev int64) ([]Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seq := m.streams[streamID]
	if minRev < 0 {
		minRev = 0
	}
	end := int64(len(seq))
	if maxRev >= 0 && maxRev < end {
		end = maxRev
	}
	if minRev >= end {
		return nil, nil
	}

	out := make([]Event, end-minRev)
	copy(out, seq[minRev:end])
	return out, nil
}

// GetAllEvents returns every event across every stream, sorted ascending by
// CommitStamp. Diagnostics only.
func (m *MemStorage) GetAllEvents(_ context.Context) ([]Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var all []Event
	for _, seq := range m.streams {
		all = append(all, seq...)
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].CommitStamp.Before(all[j].CommitStamp)
	})
	return all, nil
}

// GetEventRange returns a slice of length <= amount starting at global
// index across the concatenation of streams, sorted by CommitStamp. This
// operation is best-effort/diagnostics-only: Go map iteration order is
// randomized, so which events land at a given index before the final sort
// is backend-dependent across calls when streams tie on CommitStamp.
func (m *MemStorage) GetEventRange(_ context.Context, index, amount int64) ([]Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var all []Event
	for _, seq := range m.streams {
		all = append(all, seq...)
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].CommitStamp.Before(all[j].CommitStamp)
	})

	if index < 0 || index >= int64(len(all)) {
		return nil, nil
	}
	end := index + amount
	if end > int64(len(all)) {
		end = int64(len(all))
	}
	out := make([]Event, end-index)
	copy(out, all[index:end])
	return out, nil
}

// GetSnapshot returns the latest snapshot whose Revision <= maxRev, or the
// newest snapshot if maxRev = -1. found is false when none qualifies.
func (m *MemStorage) GetSnapshot(_ context.Context, streamID string, maxRev int64) (Snapshot, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snaps := m.snapshots[streamID]
	var best Snapshot
	found := false
	for _, snap := range snaps {
		if maxRev >= 0 && snap.Revision > maxRev {
			continue
		}
		if !found || snap.Revision >= best.Revision {
			best = snap
			found = true
		}
	}
	return best, found, nil
}

// GetUndispatchedEvents returns all events with Dispatched = false.
func (m *MemStorage) GetUndispatchedEvents(_ context.Context) ([]Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Event
	for _, seq := range m.streams {
		for _, ev := range seq {
			if !ev.Dispatched {
				out = append(out, ev)
			}
		}
	}
	return out, nil
}

// SetEventToDispatched marks the matching event dispatched in place.
func (m *MemStorage) SetEventToDispatched(_ context.Context, target Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	seq := m.streams[target.StreamID]
	for i := range seq {
		if sameEvent(seq[i], target) {
			seq[i].Dispatched = true
			return nil
		}
	}
	return nil
}

// GetID returns a fresh UUID.
func (m *MemStorage) GetID(_ context.Context) (string, error) {
	return uuid.NewString(), nil
}

var _ IStorage = (*MemStorage)(nil)
