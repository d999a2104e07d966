package signal

import (
	"sync"

	"golang.org/x/time/rate"

	"github.com/dkeye/callroom/internal/domain"
)

// EventRateLimiter is a token bucket per connection. A nil limiter allows
// everything.
type EventRateLimiter struct {
	mu      sync.Mutex
	buckets map[domain.ConnectionID]*rate.Limiter
	limit   rate.Limit
	burst   int
}

func NewEventRateLimiter(perSecond float64, burst int) *EventRateLimiter {
	if perSecond <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return &EventRateLimiter{
		buckets: make(map[domain.ConnectionID]*rate.Limiter),
		limit:   rate.Limit(perSecond),
		burst:   burst,
	}
}

func (rl *EventRateLimiter) Allow(id domain.ConnectionID) bool {
	if rl == nil {
		return true
	}
	rl.mu.Lock()
	b, ok := rl.buckets[id]
	if !ok {
		b = rate.NewLimiter(rl.limit, rl.burst)
		rl.buckets[id] = b
	}
	rl.mu.Unlock()
	return b.Allow()
}

func (rl *EventRateLimiter) Forget(id domain.ConnectionID) {
	if rl == nil {
		return
	}
	rl.mu.Lock()
	delete(rl.buckets, id)
	rl.mu.Unlock()
}
