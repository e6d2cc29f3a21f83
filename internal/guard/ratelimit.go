package guard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tutorloop/platform/internal/domain"
)

// RateLimiter caps how many times a key may pass within a sliding window.
// The auth routes key it by client IP; anything string-keyed works.
type RateLimiter struct {
	mu     sync.Mutex
	hits   map[string][]time.Time
	limit  int
	window time.Duration
}

// NewRateLimiter creates a limiter allowing limit hits per window per key.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		hits:   make(map[string][]time.Time),
		limit:  limit,
		window: window,
	}
}

// Check records a hit for key and reports whether it stayed within the limit.
// Hits older than the window are pruned on each call.
func (rl *RateLimiter) Check(_ context.Context, key string) domain.GuardResult {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-rl.window)

	recorded := rl.hits[key]
	fresh := recorded[:0]
	for _, t := range recorded {
		if t.After(cutoff) {
			fresh = append(fresh, t)
		}
	}

	if len(fresh) >= rl.limit {
		rl.hits[key] = fresh
		return domain.GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("rate limit exceeded: %d/%s", rl.limit, rl.window),
			Guard:   "rate_limiter",
		}
	}

	rl.hits[key] = append(fresh, now)
	return domain.GuardResult{Allowed: true}
}
