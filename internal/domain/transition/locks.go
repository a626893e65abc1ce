package transition

import "sync"

// keyedMutex serialises work per ref. Entries are dropped once unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[Ref]*refLock
}

type refLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[Ref]*refLock)}
}

// Lock blocks until ref is free and returns the unlock func.
func (k *keyedMutex) Lock(ref Ref) func() {
	k.mu.Lock()
	l, ok := k.locks[ref]
	if !ok {
		l = &refLock{}
		k.locks[ref] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, ref)
		}
		k.mu.Unlock()
	}
}

func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
