package extract

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func longArticleHTML(title string) string {
	body := `<html><head><title>` + title + `</title></head><body><article><p>`
	for i := 0; i < 10; i++ {
		body += "This is a long enough paragraph of article content to clear the minimum extraction length. "
	}
	body += `</p></article></body></html>`
	return body
}

// testPublicURL is the URL every orchestrator test uses in place of
// srv.URL: ValidateURL's SSRF guard rejects httptest's loopback address
// outright, so requests are addressed to a non-loopback hostname and the
// client's Transport is rigged to dial the real test server underneath.
const testPublicURL = "http://extract-test.invalid/article"

func newTestOrchestrator(handler http.HandlerFunc) (*Orchestrator, *httptest.Server) {
	srv := httptest.NewServer(handler)

	client := &http.Client{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, network, _ string) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, network, srv.Listener.Addr().String())
			},
		},
	}

	limiter := NewRateLimiter(1000, 1000)
	enhanced := NewEnhancedExtractor(client)
	o := NewOrchestrator(NewMemoryCache(), limiter, enhanced, nil)
	return o, srv
}

func TestOrchestratorExtractsAndCaches(t *testing.T) {
	var hits int32
	o, srv := newTestOrchestrator(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write([]byte(longArticleHTML("First Hit")))
	})
	defer srv.Close()

	result, err := o.ExtractURL(context.Background(), testPublicURL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success || result.Title != "First Hit" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if atomic.LoadInt32(&hits) != 1 {
		t.Fatalf("expected 1 server hit, got %d", hits)
	}

	// second call for the same URL should short-circuit via cache, no new hit.
	result2, err := o.ExtractURL(context.Background(), testPublicURL)
	if err != nil {
		t.Fatalf("unexpected error on cached call: %v", err)
	}
	if !result2.Cached {
		t.Error("expected second result to be served from cache")
	}
	if atomic.LoadInt32(&hits) != 1 {
		t.Fatalf("expected cache hit to avoid a second fetch, got %d hits", hits)
	}

	stats := o.Stats()
	if stats.TotalExtractions != 2 || stats.CacheHits != 1 || stats.CacheMisses != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestOrchestratorCoalescesConcurrentIdenticalURLs(t *testing.T) {
	var hits int32
	release := make(chan struct{})
	o, srv := newTestOrchestrator(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		<-release
		w.Write([]byte(longArticleHTML("Concurrent")))
	})
	defer srv.Close()

	var wg sync.WaitGroup
	results := make([]ExtractionResult, 5)
	errs := make([]error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = o.ExtractURL(context.Background(), testPublicURL)
		}(i)
	}

	// give every goroutine a chance to register with singleflight before
	// letting the single in-flight fetch complete.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("goroutine %d: unexpected error: %v", i, err)
		}
		if !results[i].Success {
			t.Fatalf("goroutine %d: expected success, got %+v", i, results[i])
		}
	}
	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Errorf("expected exactly 1 outbound fetch for concurrent identical URLs, got %d", got)
	}
}

func TestOrchestratorRateLimitTimeoutFailsCleanly(t *testing.T) {
	o, srv := newTestOrchestrator(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(longArticleHTML("Should Not Be Reached")))
	})
	defer srv.Close()

	// replace the limiter with one that can never acquire, and shrink the wait.
	old := rateLimitWait
	rateLimitWait = 50 * time.Millisecond
	defer func() { rateLimitWait = old }()

	o.limiter = NewRateLimiter(0.0000001, 1)
	o.limiter.tryAcquire(mustHost(testPublicURL)) // consume the single burst token up front

	_, err := o.ExtractURL(context.Background(), testPublicURL)
	if err == nil {
		t.Fatal("expected rate-limit timeout error")
	}
}

func mustHost(rawURL string) string {
	host, err := HostOf(rawURL)
	if err != nil {
		panic(err)
	}
	return host
}

func TestOrchestratorClearCache(t *testing.T) {
	o, srv := newTestOrchestrator(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(longArticleHTML("Cached Page")))
	})
	defer srv.Close()

	if _, err := o.ExtractURL(context.Background(), testPublicURL); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := o.ClearCache(context.Background()); err != nil {
		t.Fatalf("clear cache failed: %v", err)
	}

	result, err := o.ExtractURL(context.Background(), testPublicURL)
	if err != nil {
		t.Fatalf("unexpected error after clear: %v", err)
	}
	if result.Cached {
		t.Error("expected a fresh (non-cached) fetch after ClearCache")
	}
}

func TestOrchestratorRejectsInvalidURL(t *testing.T) {
	o := NewOrchestrator(NewMemoryCache(), nil, nil, nil)
	if _, err := o.ExtractURL(context.Background(), "http://localhost/evil"); err == nil {
		t.Error("expected SSRF-guard rejection for localhost URL")
	}
}
