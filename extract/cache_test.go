package extract

import (
	"context"
	"testing"
	"time"
)

func TestMemoryCacheSetThenGet(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()

	result := ExtractionResult{Title: "x", Content: "content", Success: true}
	if err := c.Set(ctx, "http://example.com", result); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	got, ok, err := c.Get(ctx, "http://example.com")
	if err != nil || !ok {
		t.Fatalf("expected cache hit, got ok=%v err=%v", ok, err)
	}
	if got.Title != "x" || !got.Cached {
		t.Errorf("unexpected cached result: %+v", got)
	}
}

func TestMemoryCacheMiss(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	_, ok, err := c.Get(ctx, "http://nope.example.com")
	if err != nil || ok {
		t.Errorf("expected miss, got ok=%v err=%v", ok, err)
	}
}

func TestMemoryCacheExpires(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	base := time.Now()
	c.now = func() time.Time { return base }

	if err := c.Set(ctx, "http://example.com", ExtractionResult{Title: "x"}); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	c.now = func() time.Time { return base.Add(25 * time.Hour) }
	_, ok, err := c.Get(ctx, "http://example.com")
	if err != nil || ok {
		t.Errorf("expected expiry, got ok=%v err=%v", ok, err)
	}
}

func TestMemoryCacheClear(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	c.Set(ctx, "http://example.com", ExtractionResult{Title: "x"})
	if err := c.Clear(ctx); err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	_, ok, _ := c.Get(ctx, "http://example.com")
	if ok {
		t.Error("expected no entries after clear")
	}
}

func TestMemoryCacheClearExpiredOnlyRemovesStale(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	base := time.Now()
	c.now = func() time.Time { return base }
	c.Set(ctx, "http://stale.example.com", ExtractionResult{Title: "stale"})

	c.now = func() time.Time { return base.Add(1 * time.Hour) }
	c.Set(ctx, "http://fresh.example.com", ExtractionResult{Title: "fresh"})

	c.now = func() time.Time { return base.Add(25 * time.Hour) }
	removed := c.ClearExpired()
	if removed != 1 {
		t.Errorf("expected 1 removed, got %d", removed)
	}
	_, ok, _ := c.Get(ctx, "http://fresh.example.com")
	if !ok {
		t.Error("fresh entry should still be present")
	}
}
