// Package throttle paces file reads per scanned volume so fragile or slow
// media are not hammered by the worker pool.
package throttle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DelayObserver records time spent waiting for a token.
type DelayObserver func(volume string, waited time.Duration)

// Config holds limiter configuration.
type Config struct {
	// FilesPerSecond of zero or less disables throttling.
	FilesPerSecond float64
	Burst          int
}

// Limiter manages one token bucket per volume key.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
	observe  DelayObserver
}

// New creates a new Limiter. observe may be nil.
func New(cfg Config, observe DelayObserver) *Limiter {
	limit := rate.Limit(cfg.FilesPerSecond)
	if cfg.FilesPerSecond <= 0 {
		limit = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    limit,
		burst:    burst,
		observe:  observe,
	}
}

// Enabled reports whether Wait can block.
func (l *Limiter) Enabled() bool {
	return l != nil && l.limit != rate.Inf
}

// Wait blocks until a read token for volume is available.
func (l *Limiter) Wait(ctx context.Context, volume string) error {
	if !l.Enabled() {
		return nil
	}
	l.mu.Lock()
	limiter, ok := l.limiters[volume]
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters[volume] = limiter
	}
	l.mu.Unlock()

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("throttle wait: %w", err)
	}
	if waited := time.Since(start); waited > time.Millisecond && l.observe != nil {
		l.observe(volume, waited)
	}
	return nil
}
