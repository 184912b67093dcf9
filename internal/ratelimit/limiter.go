// Package ratelimit tracks failed login attempts per identity key and
// enforces temporary lockout. State is process-local and in-memory by
// contract; it does not survive restarts and is not shared across instances.
package ratelimit

import (
	"hash/fnv"
	"sync"
	"time"
)

const shardCount = 32

// Config holds the lockout policy.
type Config struct {
	Threshold int           // failures inside a window before lockout
	Window    time.Duration // rolling window for counting failures
	Lockout   time.Duration // lockout length, sliding from the failure that triggered it
}

// DefaultConfig matches the platform policy: 5 failures in 15 minutes locks
// the key for 15 minutes.
func DefaultConfig() Config {
	return Config{
		Threshold: 5,
		Window:    15 * time.Minute,
		Lockout:   15 * time.Minute,
	}
}

type entry struct {
	attempts    int
	windowStart time.Time
	lockedUntil time.Time
}

type shard struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// Limiter is a sharded failed-attempt counter. Keys hash to independent
// shards so contention only occurs on repeated operations against the same
// identity, not across the whole service.
type Limiter struct {
	config Config
	shards [shardCount]*shard
	now    func() time.Time
}

// New creates a Limiter with the given policy.
func New(config Config) *Limiter {
	l := &Limiter{
		config: config,
		now:    time.Now,
	}
	for i := range l.shards {
		l.shards[i] = &shard{entries: make(map[string]*entry)}
	}
	return l
}

// SetClock overrides the time source. Test use only.
func (l *Limiter) SetClock(now func() time.Time) {
	l.now = now
}

func (l *Limiter) shardFor(key string) *shard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return l.shards[h.Sum32()%shardCount]
}

// Check reports whether an attempt under key may proceed. Called before any
// credential work so a locked-out caller never costs a hash computation.
func (l *Limiter) Check(key string) (allowed bool, retryAfter time.Duration) {
	now := l.now()
	s := l.shardFor(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return true, 0
	}

	if now.Before(e.lockedUntil) {
		return false, e.lockedUntil.Sub(now)
	}

	// Lock elapsed: the key starts a fresh window on its next failure.
	if !e.lockedUntil.IsZero() {
		delete(s.entries, key)
		return true, 0
	}

	if now.Sub(e.windowStart) >= l.config.Window {
		delete(s.entries, key)
		return true, 0
	}

	if e.attempts >= l.config.Threshold {
		// Only reachable if the threshold changed between calls; reaching
		// it normally always sets lockedUntil.
		return false, l.config.Lockout
	}

	return true, 0
}

// RecordFailure counts one failed attempt. Reaching the threshold locks the
// key for the configured duration starting now; the returned retryAfter is
// non-zero once the key is locked.
func (l *Limiter) RecordFailure(key string) (locked bool, retryAfter time.Duration) {
	now := l.now()
	s := l.shardFor(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || now.Sub(e.windowStart) >= l.config.Window || (!e.lockedUntil.IsZero() && !now.Before(e.lockedUntil)) {
		e = &entry{windowStart: now}
		s.entries[key] = e
	}

	e.attempts++
	if e.attempts >= l.config.Threshold {
		e.lockedUntil = now.Add(l.config.Lockout)
		return true, l.config.Lockout
	}

	return false, 0
}

// RecordSuccess fully exonerates the key: counter and lockout are cleared
// regardless of prior history.
func (l *Limiter) RecordSuccess(key string) {
	s := l.shardFor(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
}

// Sweep drops entries whose window and lockout have both elapsed. Purely a
// space reclamation pass; Check and RecordFailure already reset stale entries
// lazily. Each shard is locked independently so concurrent traffic on other
// shards is never blocked.
func (l *Limiter) Sweep(now time.Time) int {
	removed := 0
	for _, s := range l.shards {
		s.mu.Lock()
		for key, e := range s.entries {
			windowElapsed := now.Sub(e.windowStart) >= l.config.Window
			lockElapsed := e.lockedUntil.IsZero() || !now.Before(e.lockedUntil)
			if windowElapsed && lockElapsed {
				delete(s.entries, key)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}

// Len reports the number of tracked keys across all shards.
func (l *Limiter) Len() int {
	total := 0
	for _, s := range l.shards {
		s.mu.Lock()
		total += len(s.entries)
		s.mu.Unlock()
	}
	return total
}
