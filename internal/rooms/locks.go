package rooms

import (
	"sync"

	"github.com/google/uuid"
)

// lockArena hands out one mutex per room id so status transitions and
// participant upserts are single-writer per room while rooms never block
// each other. Entries are kept for the process lifetime; the set is bounded
// by the number of rooms touched since startup.
type lockArena struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func newLockArena() *lockArena {
	return &lockArena{locks: make(map[uuid.UUID]*sync.Mutex)}
}

func (a *lockArena) forRoom(id uuid.UUID) *sync.Mutex {
	a.mu.Lock()
	defer a.mu.Unlock()
	l, ok := a.locks[id]
	if !ok {
		l = &sync.Mutex{}
		a.locks[id] = l
	}
	return l
}
