package esc

// Snapshot is an opaque captured state of a stream at a specific revision,
// used to shortcut replay. Once persisted, a Snapshot is never mutated.
type Snapshot struct {
	ID       string
	StreamID string
	Revision int64 // the StreamRevision at which this snapshot was taken (inclusive)
	Data     any
}
