package mem_test

import (
	"testing"

	esc "github.com/mickamy/eventstore-core"
	"github.com/mickamy/eventstore-core/internal/storetest"
	"github.com/mickamy/eventstore-core/storage/mem"
)

func TestStore_Compliance(t *testing.T) {
	t.Parallel()
	storetest.Run(t, func(t *testing.T) esc.IStorage {
		t.Helper()
		return mem.New()
	})
}
