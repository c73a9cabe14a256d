package guard

import (
	"context"
	"sync"
	"time"

	"github.com/gamemart/ledger/internal/domain"
)

// IdempotencyGuard deduplicates requests by idempotency key. Keys are
// remembered for ttl after they are first seen.
type IdempotencyGuard struct {
	mu   sync.Mutex
	seen map[string]time.Time
	ttl  time.Duration
	now  func() time.Time
}

// NewIdempotencyGuard creates a new in-memory idempotency guard.
func NewIdempotencyGuard(ttl time.Duration) *IdempotencyGuard {
	return &IdempotencyGuard{
		seen: make(map[string]time.Time),
		ttl:  ttl,
		now:  time.Now,
	}
}

// Check returns whether the given key has already been seen.
func (ig *IdempotencyGuard) Check(_ context.Context, key string) domain.GuardResult {
	if key == "" {
		return domain.GuardResult{Allowed: true}
	}

	ig.mu.Lock()
	defer ig.mu.Unlock()

	now := ig.now()
	ig.sweep(now)

	if _, ok := ig.seen[key]; ok {
		return domain.GuardResult{
			Allowed: false,
			Reason:  "duplicate request: idempotency key already used",
			Guard:   "idempotency",
		}
	}

	ig.seen[key] = now
	return domain.GuardResult{Allowed: true}
}

// Remove forgets key so a failed request can be retried with it.
func (ig *IdempotencyGuard) Remove(key string) {
	ig.mu.Lock()
	defer ig.mu.Unlock()
	delete(ig.seen, key)
}

func (ig *IdempotencyGuard) sweep(now time.Time) {
	for k, at := range ig.seen {
		if now.Sub(at) > ig.ttl {
			delete(ig.seen, k)
		}
	}
}
