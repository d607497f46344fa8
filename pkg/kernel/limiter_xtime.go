package kernel

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// XTimeLimiterStore implements LimiterStore on top of golang.org/x/time/rate,
// an alternative to the hand-rolled TokenBucket for operators who prefer the
// standard library-adjacent limiter. Per-workspace limiters are created
// lazily and kept for the process lifetime.
type XTimeLimiterStore struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewXTimeLimiterStore creates an empty store.
func NewXTimeLimiterStore() *XTimeLimiterStore {
	return &XTimeLimiterStore{limiters: make(map[string]*rate.Limiter)}
}

// Allow implements LimiterStore. policy.RPM/60 becomes the limiter's
// events-per-second rate (1/s when RPM <= 0); policy.Burst becomes its
// bucket size (1 when Burst <= 0).
func (s *XTimeLimiterStore) Allow(ctx context.Context, workspaceID string, policy BackpressurePolicy, cost int) (bool, error) {
	s.mu.Lock()
	lim, ok := s.limiters[workspaceID]
	if !ok {
		perSec := float64(policy.RPM) / 60.0
		if perSec <= 0 {
			perSec = 1
		}
		burst := policy.Burst
		if burst <= 0 {
			burst = 1
		}
		lim = rate.NewLimiter(rate.Limit(perSec), burst)
		s.limiters[workspaceID] = lim
	}
	s.mu.Unlock()

	return lim.AllowN(time.Now(), cost), nil
}
