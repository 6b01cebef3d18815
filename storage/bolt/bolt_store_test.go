package bolt_test

import (
	"path/filepath"
	"testing"

	esc "github.com/mickamy/eventstore-core"
	"github.com/mickamy/eventstore-core/internal/storetest"
	"github.com/mickamy/eventstore-core/storage/bolt"
)

func newTestRegistry() map[string]esc.EventCodec {
	return map[string]esc.EventCodec{
		"Opened": esc.JSONCodec[storetest.Opened](),
		"Added":  esc.JSONCodec[storetest.Added](),
	}
}

func TestStore_Compliance(t *testing.T) {
	t.Parallel()
	storetest.Run(t, func(t *testing.T) esc.IStorage {
		t.Helper()
		dir := t.TempDir()
		st, err := bolt.Open(filepath.Join(dir, "esc.db"), bolt.WithTypeRegistry(newTestRegistry()))
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		t.Cleanup(func() { _ = st.Close() })
		return st
	})
}
