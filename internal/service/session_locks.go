package service

import (
	"sync"

	"github.com/google/uuid"
)

// sessionLocks serializes operations per session id. Different sessions
// never contend; same-session calls (e.g. a violation report racing a
// submit retry) take turns, which makes the increment-then-check and the
// finalization compare-and-swap race-free within this process.
type sessionLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{locks: make(map[uuid.UUID]*sessionLock)}
}

// lock acquires the per-session mutex and returns its release func. Lock
// entries are reference-counted so the map does not grow with dead
// sessions.
func (l *sessionLocks) lock(id uuid.UUID) func() {
	l.mu.Lock()
	entry, ok := l.locks[id]
	if !ok {
		entry = &sessionLock{}
		l.locks[id] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}
