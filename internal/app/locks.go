package app

import (
	"sync"

	"github.com/google/uuid"
)

// eventLocks hands out one mutex per event id. Entries are dropped once no caller holds or waits for them.
type eventLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*refLock
}

type refLock struct {
	mu   sync.Mutex
	refs int
}

func newEventLocks() *eventLocks {
	return &eventLocks{locks: make(map[uuid.UUID]*refLock)}
}

// lock blocks until the event's mutex is held and returns the matching unlock.
func (l *eventLocks) lock(eventID uuid.UUID) func() {
	l.mu.Lock()
	rl, ok := l.locks[eventID]
	if !ok {
		rl = &refLock{}
		l.locks[eventID] = rl
	}
	rl.refs++
	l.mu.Unlock()

	rl.mu.Lock()

	return func() {
		rl.mu.Unlock()

		l.mu.Lock()
		rl.refs--
		if rl.refs == 0 {
			delete(l.locks, eventID)
		}
		l.mu.Unlock()
	}
}

func (l *eventLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
