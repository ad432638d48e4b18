package extract

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"
)

// defaultRatePerSecond is the default per-host request budget (spec
// §6: "1 request per host per second").
const defaultRatePerSecond = 1.0

// RateLimiter is a per-host token bucket. Process-global per spec §5;
// construct once and share across extraction calls.
type RateLimiter struct {
	mu      sync.Mutex
	rate    float64 // tokens per second
	burst   float64
	buckets map[string]*bucket
	now     func() time.Time
}

type bucket struct {
	tokens float64
	last   time.Time
}

// NewRateLimiter returns a RateLimiter allowing burst tokens per host,
// refilled at ratePerSecond. ratePerSecond <= 0 defaults to
// defaultRatePerSecond; burst <= 0 defaults to 1.
func NewRateLimiter(ratePerSecond float64, burst float64) *RateLimiter {
	if ratePerSecond <= 0 {
		ratePerSecond = defaultRatePerSecond
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{rate: ratePerSecond, burst: burst, buckets: make(map[string]*bucket), now: time.Now}
}

// HostOf extracts the hostname the limiter should key on.
func HostOf(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("extract: parse url for rate limiting: %w", err)
	}
	if parsed.Hostname() == "" {
		return "", fmt.Errorf("extract: url has no hostname")
	}
	return parsed.Hostname(), nil
}

// Wait blocks until a token is available for host, or ctx is done /
// maxWait elapses, whichever first — a bounded wait, not an unbounded
// one (spec §4.7: "on timeout the operation fails cleanly").
func (l *RateLimiter) Wait(ctx context.Context, host string, maxWait time.Duration) error {
	deadline := l.now().Add(maxWait)
	for {
		if l.tryAcquire(host) {
			return nil
		}
		if l.now().After(deadline) {
			return fmt.Errorf("extract: rate limit wait for host %q timed out after %s", host, maxWait)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func (l *RateLimiter) tryAcquire(host string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[host]
	now := l.now()
	if !ok {
		b = &bucket{tokens: l.burst - 1, last: now}
		l.buckets[host] = b
		return true
	}

	elapsed := now.Sub(b.last).Seconds()
	b.tokens += elapsed * l.rate
	if b.tokens > l.burst {
		b.tokens = l.burst
	}
	b.last = now

	if b.tokens >= 1 {
		b.tokens -= 1
		return true
	}
	return false
}
