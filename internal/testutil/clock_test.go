package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClock_StaysFrozenWithoutAdvance(t *testing.T) {
	start := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	clock := NewClock(start)

	assert.Equal(t, start, clock.Now())
	assert.Equal(t, start, clock.Now())
}

func TestClock_AdvanceMovesForward(t *testing.T) {
	start := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	clock := NewClock(start)

	clock.Advance(time.Second)
	assert.Equal(t, start.Add(time.Second), clock.Now())

	clock.Advance(500 * time.Millisecond)
	assert.Equal(t, start.Add(1500*time.Millisecond), clock.Now())
}

func TestClock_SetJumpsToAbsoluteTime(t *testing.T) {
	clock := NewClock(time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC))

	target := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	clock.Set(target)
	assert.Equal(t, target, clock.Now())
}

func TestClock_ConcurrentAdvance(t *testing.T) {
	start := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	clock := NewClock(start)

	const goroutines = 50
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			clock.Advance(time.Millisecond)
		}()
	}
	wg.Wait()

	assert.Equal(t, start.Add(goroutines*time.Millisecond), clock.Now())
}
