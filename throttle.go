package endpoint

import (
	"context"
	"fmt"
	"math"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ThrottleConfig configures the Throttle pre-processor.
type ThrottleConfig struct {
	Rate            float64                      // requests per second
	Burst           int                          // max burst
	KeyFunc         func(r *http.Request) string // default: remote IP
	CleanupInterval time.Duration                // how often to prune idle limiters (default: 1m)
	MaxIdle         time.Duration                // remove limiters idle longer than this (default: 5m)
}

// ThrottleError is returned by the Throttle pre-processor when a caller
// exceeds its rate.
type ThrottleError struct {
	Key        string
	RetryAfter time.Duration
}

func (e *ThrottleError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry after %s", e.RetryAfter)
}

// StatusCode implements StatusCoder.
func (e *ThrottleError) StatusCode() int { return http.StatusTooManyRequests }

// Throttle returns a pre-processor applying per-key rate limiting to an
// endpoint. Throttled requests abort with a *ThrottleError before
// validation.
func Throttle[Req any](cfg ThrottleConfig) PreProcessor[Req] {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = func(r *http.Request) string {
			host, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				return r.RemoteAddr
			}
			return host
		}
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Minute
	}
	if cfg.MaxIdle <= 0 {
		cfg.MaxIdle = 5 * time.Minute
	}
	return &throttle[Req]{cfg: cfg, limiters: make(map[string]*limiterEntry)}
}

type throttle[Req any] struct {
	cfg ThrottleConfig

	mu          sync.Mutex
	limiters    map[string]*limiterEntry
	lastCleanup time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func (t *throttle[Req]) PreProcess(_ context.Context, pc *PreContext[Req]) error {
	key := t.cfg.KeyFunc(pc.HTTP)
	if t.limiter(key).Allow() {
		return nil
	}

	retry := time.Second
	if t.cfg.Rate > 0 {
		retry = time.Duration(math.Ceil(1/t.cfg.Rate)) * time.Second
	}
	return &ThrottleError{Key: key, RetryAfter: retry}
}

func (t *throttle[Req]) limiter(key string) *rate.Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()

	// Lazy cleanup of expired limiters.
	if now.Sub(t.lastCleanup) >= t.cfg.CleanupInterval {
		for k, e := range t.limiters {
			if now.Sub(e.lastSeen) > t.cfg.MaxIdle {
				delete(t.limiters, k)
			}
		}
		t.lastCleanup = now
	}

	entry, ok := t.limiters[key]
	if !ok {
		entry = &limiterEntry{
			limiter: rate.NewLimiter(rate.Limit(t.cfg.Rate), t.cfg.Burst),
		}
		t.limiters[key] = entry
	}
	entry.lastSeen = now
	return entry.limiter
}
