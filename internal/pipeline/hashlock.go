package pipeline

import "sync"

// hashLocks hands out one mutex per content hash. Entries are dropped once
// no job holds or waits on them.
type hashLocks struct {
	mu    sync.Mutex
	locks map[string]*hashLock
}

type hashLock struct {
	mu   sync.Mutex
	refs int
}

func newHashLocks() *hashLocks {
	return &hashLocks{locks: make(map[string]*hashLock)}
}

// Lock blocks until key is free and returns the matching unlock.
func (h *hashLocks) Lock(key string) func() {
	h.mu.Lock()
	l, ok := h.locks[key]
	if !ok {
		l = &hashLock{}
		h.locks[key] = l
	}
	l.refs++
	h.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		h.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(h.locks, key)
		}
		h.mu.Unlock()
	}
}

func (h *hashLocks) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.locks)
}
