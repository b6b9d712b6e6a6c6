// Package locks provides a process-local arena of short-lived mutexes
// keyed by user reference, so that at most one password-change or reset
// is in flight per user without a lock table that grows forever.
package locks

import (
	"sync"
	"time"
)

type entry struct {
	mu       sync.Mutex
	lastUsed time.Time
	holders  int
}

// Arena hands out per-key mutexes and evicts idle ones.
type Arena struct {
	mu      sync.Mutex
	entries map[string]*entry
	maxIdle time.Duration
}

func NewArena(maxIdle time.Duration) *Arena {
	return &Arena{
		entries: make(map[string]*entry),
		maxIdle: maxIdle,
	}
}

// Lock acquires the mutex for key, creating it if needed. The returned
// function releases the lock.
func (a *Arena) Lock(key string) func() {
	a.mu.Lock()
	e, ok := a.entries[key]
	if !ok {
		e = &entry{}
		a.entries[key] = e
	}
	e.holders++
	e.lastUsed = time.Now()
	a.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		a.mu.Lock()
		e.holders--
		e.lastUsed = time.Now()
		a.mu.Unlock()
	}
}

// Sweep drops entries that have been idle longer than the arena's maxIdle
// and are not currently held. Returns the number of evicted entries.
func (a *Arena) Sweep() int {
	cutoff := time.Now().Add(-a.maxIdle)

	a.mu.Lock()
	defer a.mu.Unlock()

	evicted := 0
	for key, e := range a.entries {
		if e.holders == 0 && e.lastUsed.Before(cutoff) {
			delete(a.entries, key)
			evicted++
		}
	}
	return evicted
}

// Len returns the current number of tracked locks.
func (a *Arena) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.entries)
}
