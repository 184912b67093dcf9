// Package revocation tracks explicitly revoked token IDs until their natural
// expiry. Like the rate limiter, state is process-local in-memory by
// contract: a revoked entry only needs to outlive the token it shadows.
package revocation

import (
	"hash/fnv"
	"sync"
	"time"
)

const shardCount = 32

type shard struct {
	mu      sync.Mutex
	entries map[string]time.Time // token id -> natural expiry
}

// Registry is a sharded set-with-TTL of revoked token IDs.
type Registry struct {
	shards [shardCount]*shard
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	r := &Registry{}
	for i := range r.shards {
		r.shards[i] = &shard{entries: make(map[string]time.Time)}
	}
	return r
}

func (r *Registry) shardFor(tokenID string) *shard {
	h := fnv.New32a()
	h.Write([]byte(tokenID))
	return r.shards[h.Sum32()%shardCount]
}

// Revoke records a token ID until expiresAt. Re-revoking is a no-op that
// keeps the later expiry, so logout stays idempotent.
func (r *Registry) Revoke(tokenID string, expiresAt time.Time) {
	if tokenID == "" {
		return
	}
	s := r.shardFor(tokenID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.entries[tokenID]; ok && existing.After(expiresAt) {
		return
	}
	s.entries[tokenID] = expiresAt
}

// IsRevoked reports whether tokenID is present. Expired-but-unswept entries
// still report true; the token's own expiry check makes that moot.
func (r *Registry) IsRevoked(tokenID string) bool {
	if tokenID == "" {
		return false
	}
	s := r.shardFor(tokenID)

	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.entries[tokenID]
	return ok
}

// Sweep removes entries whose expiry has passed and returns how many were
// dropped. Exists purely to reclaim space: correctness never depends on it.
// Shards are locked one at a time so concurrent Revoke/IsRevoked calls on
// other shards proceed untouched.
func (r *Registry) Sweep(now time.Time) int {
	removed := 0
	for _, s := range r.shards {
		s.mu.Lock()
		for tokenID, expiresAt := range s.entries {
			if expiresAt.Before(now) {
				delete(s.entries, tokenID)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}

// Len reports the number of tracked token IDs across all shards.
func (r *Registry) Len() int {
	total := 0
	for _, s := range r.shards {
		s.mu.Lock()
		total += len(s.entries)
		s.mu.Unlock()
	}
	return total
}
