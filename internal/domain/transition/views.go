package transition

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Invalidator is told which entity just changed.
type Invalidator interface {
	InvalidateFor(ref Ref) int
}

type view[V any] struct {
	value V
	deps  []Ref
	stale bool
}

// ViewCache is a bounded cache of derived views (lists, dashboards) keyed by
// name. Each view records the entities it was built from; a transition on any
// of them marks the view stale so it is refetched before it is shown again.
type ViewCache[V any] struct {
	mu    sync.Mutex
	cache *lru.Cache[string, *view[V]]
}

// NewViewCache returns a cache holding at most size views.
func NewViewCache[V any](size int) (*ViewCache[V], error) {
	c, err := lru.New[string, *view[V]](size)
	if err != nil {
		return nil, fmt.Errorf("creating view cache: %w", err)
	}
	return &ViewCache[V]{cache: c}, nil
}

// Put stores a fresh view built from deps.
func (v *ViewCache[V]) Put(key string, deps []Ref, value V) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.cache.Add(key, &view[V]{value: value, deps: append([]Ref(nil), deps...)})
}

// Get returns the cached value and whether it is still fresh.
func (v *ViewCache[V]) Get(key string) (value V, fresh bool, ok bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	e, ok := v.cache.Get(key)
	if !ok {
		return value, false, false
	}
	return e.value, !e.stale, true
}

// InvalidateFor marks every view depending on ref stale and returns how many
// changed.
func (v *ViewCache[V]) InvalidateFor(ref Ref) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	n := 0
	for _, key := range v.cache.Keys() {
		e, ok := v.cache.Peek(key)
		if !ok || e.stale {
			continue
		}
		for _, d := range e.deps {
			if d == ref {
				e.stale = true
				n++
				break
			}
		}
	}
	return n
}

func (v *ViewCache[V]) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.cache.Len()
}
