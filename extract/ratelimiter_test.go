package extract

import (
	"context"
	"testing"
	"time"
)

func TestRateLimiterAllowsBurstThenGates(t *testing.T) {
	l := NewRateLimiter(1, 1)
	base := time.Now()
	l.now = func() time.Time { return base }

	if !l.tryAcquire("example.com") {
		t.Fatal("first acquire should succeed (burst=1)")
	}
	if l.tryAcquire("example.com") {
		t.Fatal("second immediate acquire should be gated")
	}
}

func TestRateLimiterRefillsOverTime(t *testing.T) {
	l := NewRateLimiter(1, 1)
	base := time.Now()
	l.now = func() time.Time { return base }
	l.tryAcquire("example.com")

	l.now = func() time.Time { return base.Add(1100 * time.Millisecond) }
	if !l.tryAcquire("example.com") {
		t.Error("expected token refilled after > 1s")
	}
}

func TestRateLimiterTracksHostsIndependently(t *testing.T) {
	l := NewRateLimiter(1, 1)
	base := time.Now()
	l.now = func() time.Time { return base }

	if !l.tryAcquire("a.com") {
		t.Fatal("a.com should acquire")
	}
	if !l.tryAcquire("b.com") {
		t.Error("b.com should acquire independently of a.com")
	}
}

func TestRateLimiterWaitTimesOutCleanly(t *testing.T) {
	l := NewRateLimiter(0.001, 1)
	ctx := context.Background()

	if err := l.Wait(ctx, "slow.example.com", 50*time.Millisecond); err != nil {
		t.Fatalf("first wait should succeed immediately: %v", err)
	}
	if err := l.Wait(ctx, "slow.example.com", 50*time.Millisecond); err == nil {
		t.Error("expected timeout waiting for a near-zero refill rate")
	}
}

func TestHostOfExtractsHostname(t *testing.T) {
	host, err := HostOf("https://example.com/path?query=1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if host != "example.com" {
		t.Errorf("expected example.com, got %q", host)
	}
}

func TestHostOfRejectsMissingHostname(t *testing.T) {
	if _, err := HostOf("not-a-url"); err == nil {
		t.Error("expected error for url without hostname")
	}
}
