package ratelimit

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(base time.Time) (*Limiter, *time.Time) {
	current := base
	l := New(DefaultConfig())
	l.SetClock(func() time.Time { return current })
	return l, &current
}

func TestCheckAllowsUnknownKey(t *testing.T) {
	l, _ := newTestLimiter(time.Now())

	allowed, retryAfter := l.Check("user@example.com")
	assert.True(t, allowed)
	assert.Zero(t, retryAfter)
}

func TestLockoutAfterThresholdFailures(t *testing.T) {
	l, _ := newTestLimiter(time.Now())
	key := "user@example.com"

	for i := 0; i < 4; i++ {
		locked, _ := l.RecordFailure(key)
		assert.False(t, locked, "attempt %d should not lock", i+1)

		allowed, _ := l.Check(key)
		assert.True(t, allowed, "attempt %d should still be allowed", i+1)
	}

	locked, retryAfter := l.RecordFailure(key)
	assert.True(t, locked, "5th failure engages the lockout")
	assert.Equal(t, 15*time.Minute, retryAfter)

	// The 6th attempt is refused before any credential work happens
	allowed, retryAfter := l.Check(key)
	assert.False(t, allowed)
	assert.Equal(t, 15*time.Minute, retryAfter)
}

func TestRetryAfterShrinksAsLockoutElapses(t *testing.T) {
	base := time.Now()
	l, clock := newTestLimiter(base)
	key := "user@example.com"

	for i := 0; i < 5; i++ {
		l.RecordFailure(key)
	}

	*clock = base.Add(10 * time.Minute)
	allowed, retryAfter := l.Check(key)
	assert.False(t, allowed)
	assert.Equal(t, 5*time.Minute, retryAfter)
}

func TestLockoutExpires(t *testing.T) {
	base := time.Now()
	l, clock := newTestLimiter(base)
	key := "user@example.com"

	for i := 0; i < 5; i++ {
		l.RecordFailure(key)
	}

	*clock = base.Add(15*time.Minute + time.Second)
	allowed, _ := l.Check(key)
	assert.True(t, allowed, "lock elapsed, attempts reset")

	// Counter restarted from zero: a single new failure does not re-lock
	locked, _ := l.RecordFailure(key)
	assert.False(t, locked)
}

func TestSuccessExoneratesKey(t *testing.T) {
	l, _ := newTestLimiter(time.Now())
	key := "user@example.com"

	for i := 0; i < 4; i++ {
		l.RecordFailure(key)
	}

	l.RecordSuccess(key)

	// History is gone; it takes a full set of fresh failures to lock again
	for i := 0; i < 4; i++ {
		locked, _ := l.RecordFailure(key)
		assert.False(t, locked, "failure %d after exoneration", i+1)
	}
	locked, _ := l.RecordFailure(key)
	assert.True(t, locked)
}

func TestWindowRolls(t *testing.T) {
	base := time.Now()
	l, clock := newTestLimiter(base)
	key := "user@example.com"

	for i := 0; i < 4; i++ {
		l.RecordFailure(key)
	}

	// Window elapses before the 5th failure: counter restarts
	*clock = base.Add(15*time.Minute + time.Second)
	locked, _ := l.RecordFailure(key)
	assert.False(t, locked)

	allowed, _ := l.Check(key)
	assert.True(t, allowed)
}

func TestKeysAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(time.Now())

	for i := 0; i < 5; i++ {
		l.RecordFailure("locked@example.com")
	}

	allowed, _ := l.Check("other@example.com")
	assert.True(t, allowed)
}

func TestSweepReclaimsStaleEntries(t *testing.T) {
	base := time.Now()
	l, clock := newTestLimiter(base)

	l.RecordFailure("stale@example.com")
	for i := 0; i < 5; i++ {
		l.RecordFailure("locked@example.com")
	}
	require.Equal(t, 2, l.Len())

	// Window elapsed for both, lock only elapsed for the first
	*clock = base.Add(15*time.Minute - time.Second)
	removed := l.Sweep(*clock)
	assert.Zero(t, removed, "nothing stale inside the window")

	*clock = base.Add(16 * time.Minute)
	removed = l.Sweep(*clock)
	assert.Equal(t, 2, removed)
	assert.Zero(t, l.Len())
}

func TestConcurrentFailuresNeverLoseUpdates(t *testing.T) {
	l := New(Config{Threshold: 1000, Window: time.Hour, Lockout: time.Hour})
	key := "user@example.com"

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				l.RecordFailure(key)
			}
		}()
	}
	wg.Wait()

	// 500 recorded failures: the 500 further failures below must reach
	// the threshold exactly, proving no increment was lost.
	for i := 0; i < 499; i++ {
		locked, _ := l.RecordFailure(key)
		require.False(t, locked, "locked early at extra failure %d", i+1)
	}
	locked, _ := l.RecordFailure(key)
	assert.True(t, locked)
}

func TestConcurrentDistinctKeys(t *testing.T) {
	l := New(DefaultConfig())

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := fmt.Sprintf("user-%d@example.com", n)
			for j := 0; j < 5; j++ {
				l.RecordFailure(key)
			}
			allowed, _ := l.Check(key)
			assert.False(t, allowed)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 64, l.Len())
}
