// Package mem re-exports esc's reference in-memory Storage backend under
// the storage/<name> package layout used by the other backends (it takes
// no options), so callers who want explicit control (rather than relying
// on Store.Start's default) can import it directly:
//
//	st := mem.New()
//	store := esc.New(cfg).Use(st)
package mem

import (
	"github.com/mickamy/eventstore-core"
)

// Store is the in-memory IStorage implementation. See esc.MemStorage for
// the underlying logic; this alias keeps the storage/* package layout
// uniform across backends.
type Store = esc.MemStorage

// New creates a new in-memory Store.
func New() *Store {
	return esc.NewMemStorage()
}
