package locks

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestArena_MutualExclusion(t *testing.T) {
	arena := NewArena(time.Minute)

	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := arena.Lock("user-1")
			defer unlock()
			counter++
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
}

func TestArena_IndependentKeys(t *testing.T) {
	arena := NewArena(time.Minute)

	unlockA := arena.Lock("user-a")
	defer unlockA()

	// A held lock on another key must not block this one.
	done := make(chan struct{})
	go func() {
		unlockB := arena.Lock("user-b")
		unlockB()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on independent key blocked")
	}
}

func TestArena_SweepEvictsIdle(t *testing.T) {
	arena := NewArena(10 * time.Millisecond)

	unlock := arena.Lock("idle-user")
	unlock()
	assert.Equal(t, 1, arena.Len())

	time.Sleep(20 * time.Millisecond)
	evicted := arena.Sweep()

	assert.Equal(t, 1, evicted)
	assert.Equal(t, 0, arena.Len())
}

func TestArena_SweepKeepsHeldLocks(t *testing.T) {
	arena := NewArena(0)

	unlock := arena.Lock("busy-user")
	defer unlock()

	assert.Equal(t, 0, arena.Sweep())
	assert.Equal(t, 1, arena.Len())
}
