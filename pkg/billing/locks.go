package billing

import (
	"sync"

	"github.com/google/uuid"
)

// keyedMutex serializes mutations per subscription record: two concurrent
// charges on the same subscription must not interleave, while different
// subscriptions proceed in parallel. Entries are never removed; the map is
// bounded by the number of subscriptions touched by this process.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[uuid.UUID]*sync.Mutex)}
}

// lock acquires the mutex for key and returns its unlock function.
func (m *keyedMutex) lock(key uuid.UUID) func() {
	m.mu.Lock()
	l, exists := m.locks[key]
	if !exists {
		l = &sync.Mutex{}
		m.locks[key] = l
	}
	m.mu.Unlock()

	l.Lock()
	return l.Unlock
}
