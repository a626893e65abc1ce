package transition

import (
	"sync"

	"github.com/ehr/hospital-admin/internal/domain/lifecycle"
)

type snapshot struct {
	entity Entity
	stale  bool
}

// Guard holds the last server copy of each entity. Versions are never
// changed locally; a snapshot only changes when Replace is handed a server
// response.
type Guard struct {
	mu    sync.RWMutex
	snaps map[Ref]*snapshot
}

func NewGuard() *Guard {
	return &Guard{snaps: make(map[Ref]*snapshot)}
}

// Replace stores a copy of e as the fresh snapshot for its ref.
func (g *Guard) Replace(e Entity) {
	e = cloneEntity(e)
	g.mu.Lock()
	defer g.mu.Unlock()
	g.snaps[RefOf(e)] = &snapshot{entity: e}
}

// Get returns the snapshot and whether it is stale. The entity is the stored
// one and must not be modified.
func (g *Guard) Get(ref Ref) (e Entity, stale bool, ok bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	s, ok := g.snaps[ref]
	if !ok {
		return nil, false, false
	}
	return s.entity, s.stale, true
}

// Stamp returns the version token to send with a mutation of ref.
func (g *Guard) Stamp(ref Ref) (int, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	s, ok := g.snaps[ref]
	if !ok {
		return 0, lifecycle.Validationf("%s has not been loaded", ref)
	}
	if s.stale {
		return 0, lifecycle.Conflictf("%s changed since it was loaded; reload before retrying", ref)
	}
	return s.entity.GetVersionID(), nil
}

// MarkStale flags ref's snapshot without touching its contents. It reports
// whether a snapshot existed.
func (g *Guard) MarkStale(ref Ref) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.snaps[ref]
	if ok {
		s.stale = true
	}
	return ok
}

// Forget drops ref's snapshot. It reports whether one existed.
func (g *Guard) Forget(ref Ref) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.snaps[ref]
	delete(g.snaps, ref)
	return ok
}
