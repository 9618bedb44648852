package crawler

import (
	"context"
	"math/rand"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter enforces per-domain pacing on top of a token bucket, plus a
// small random jitter so request timing does not look mechanical.
type RateLimiter struct {
	limiters    map[string]*rate.Limiter
	mu          sync.Mutex
	minInterval time.Duration
	jitter      time.Duration
}

// NewRateLimiter creates a limiter allowing one request per minInterval per
// domain, with up to jitter of extra random delay added to each wait.
func NewRateLimiter(minInterval, jitter time.Duration) *RateLimiter {
	return &RateLimiter{
		limiters:    make(map[string]*rate.Limiter),
		minInterval: minInterval,
		jitter:      jitter,
	}
}

// Wait blocks until the domain's rate limit is satisfied
func (rl *RateLimiter) Wait(ctx context.Context, rawURL string) error {
	domain := extractDomain(rawURL)
	if domain == "" {
		return nil
	}

	rl.mu.Lock()
	limiter, ok := rl.limiters[domain]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(rl.minInterval), 1)
		rl.limiters[domain] = limiter
	}
	rl.mu.Unlock()

	if err := limiter.Wait(ctx); err != nil {
		return err
	}

	if rl.jitter > 0 {
		delay := time.Duration(rand.Int63n(int64(rl.jitter)))
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	return nil
}

// SetDomainInterval overrides the pacing for a specific domain
func (rl *RateLimiter) SetDomainInterval(domain string, interval time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.limiters[domain] = rate.NewLimiter(rate.Every(interval), 1)
}

// extractDomain parses the host from a URL
func extractDomain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Host
}
