package hooks

import (
	"sync"

	"golang.org/x/time/rate"
)

// RateLimitConfig configures a per-hook token bucket.
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// RateLimiterRegistry keys a token-bucket limiter per hook id, lazily
// constructing one on first use.
type RateLimiterRegistry struct {
	mu       sync.Mutex
	cfg      RateLimitConfig
	limiters map[string]*rate.Limiter
}

func NewRateLimiterRegistry(cfg RateLimitConfig) *RateLimiterRegistry {
	return &RateLimiterRegistry{cfg: cfg, limiters: make(map[string]*rate.Limiter)}
}

func (r *RateLimiterRegistry) For(hookID string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.limiters[hookID]
	if !ok {
		l = rate.NewLimiter(rate.Limit(r.cfg.RequestsPerSecond), r.cfg.Burst)
		r.limiters[hookID] = l
	}
	return l
}

// Allow reports whether a call against hookID may proceed right now,
// consuming a token if so. When exhausted, the hook is skipped rather than
// made to wait.
func (r *RateLimiterRegistry) Allow(hookID string) bool {
	return r.For(hookID).Allow()
}
