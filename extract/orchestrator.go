package extract

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/via-canvas/intelligence-core/log"
)

// rateLimitWait bounds how long Extract will wait for a rate-limit
// token before failing (spec §4.7: "on timeout the operation fails
// cleanly"). Var rather than const so tests can shrink it.
var rateLimitWait = 30 * time.Second

// ExtractionResult is the outcome of one URL extraction (original
// extract_url's return dict).
type ExtractionResult struct {
	Title            string
	Content          string
	Text             string
	HTML             string
	Metadata         map[string]any
	Success          bool
	ExtractionMethod string
	Cached           bool
	ExtractionTime   time.Duration
	Error            string
}

// OrchestratorStats mirrors original get_stats.
type OrchestratorStats struct {
	TotalExtractions int
	CacheHits        int
	CacheMisses      int
	MethodUsage      map[string]int
}

// Orchestrator coordinates URL content extraction: cache lookup, per-
// host rate gating, dispatch by URL type, and caching of successful
// results (original ExtractionOrchestrator).
type Orchestrator struct {
	cache    Cache
	limiter  *RateLimiter
	enhanced *EnhancedExtractor
	video    *VideoExtractor // optional; nil falls back to enhanced for video URLs
	logger   log.Logger
	flight   singleflight.Group

	mu    sync.Mutex
	stats OrchestratorStats
}

// NewOrchestrator wires an Orchestrator. cache may be nil to disable
// caching entirely.
func NewOrchestrator(cache Cache, limiter *RateLimiter, enhanced *EnhancedExtractor, logger log.Logger) *Orchestrator {
	if limiter == nil {
		limiter = NewRateLimiter(defaultRatePerSecond, 1)
	}
	if enhanced == nil {
		enhanced = NewEnhancedExtractor(nil)
	}
	if logger == nil {
		logger = log.NewDefaultLogger(log.LogLevelInfo)
	}
	return &Orchestrator{cache: cache, limiter: limiter, enhanced: enhanced, logger: logger, stats: OrchestratorStats{MethodUsage: make(map[string]int)}}
}

// WithVideoExtractor attaches a VideoExtractor dispatch target for
// video-host URLs and returns the same Orchestrator for chaining.
func (o *Orchestrator) WithVideoExtractor(v *VideoExtractor) *Orchestrator {
	o.video = v
	return o
}

// ExtractURL extracts content from rawURL: cache hit short-circuits
// everything else; otherwise a per-host rate-limit token is acquired
// before the outbound fetch, and concurrent calls for the same URL are
// coalesced via singleflight so only one fetch happens at a time (spec
// §9 bullet 4: a concurrent second extraction of the same URL observes
// the first's cache write, not a second outbound fetch).
func (o *Orchestrator) ExtractURL(ctx context.Context, rawURL string) (ExtractionResult, error) {
	o.mu.Lock()
	o.stats.TotalExtractions++
	o.mu.Unlock()

	if err := ValidateURL(rawURL); err != nil {
		return ExtractionResult{}, err
	}

	if o.cache != nil {
		if cached, ok, err := o.cache.Get(ctx, rawURL); err == nil && ok {
			o.mu.Lock()
			o.stats.CacheHits++
			o.mu.Unlock()
			o.logger.Info("extract: cache hit for %s", rawURL)
			return cached, nil
		}
	}

	o.mu.Lock()
	o.stats.CacheMisses++
	o.mu.Unlock()

	v, err, _ := o.flight.Do(rawURL, func() (any, error) {
		return o.extractUncached(ctx, rawURL)
	})
	if err != nil {
		return ExtractionResult{}, err
	}
	return v.(ExtractionResult), nil
}

func (o *Orchestrator) extractUncached(ctx context.Context, rawURL string) (ExtractionResult, error) {
	// A second caller arriving while the first's singleflight call is
	// in progress will see the cache populated once this returns;
	// re-check here in case it raced in after the cache-miss check above.
	if o.cache != nil {
		if cached, ok, _ := o.cache.Get(ctx, rawURL); ok {
			return cached, nil
		}
	}

	host, err := HostOf(rawURL)
	if err != nil {
		return ExtractionResult{}, err
	}
	if err := o.limiter.Wait(ctx, host, rateLimitWait); err != nil {
		return ExtractionResult{}, fmt.Errorf("extract: %w", err)
	}

	start := time.Now()
	urlType := DetectURLType(rawURL)
	result, err := o.dispatch(ctx, rawURL, urlType)
	if err != nil {
		o.logger.Error("extract: extraction failed for %s: %v", rawURL, err)
		return ExtractionResult{Title: rawURL, Success: false, Error: err.Error(), Metadata: map[string]any{"url": rawURL}}, nil
	}
	result.ExtractionTime = time.Since(start)
	result.Cached = false

	o.mu.Lock()
	o.stats.MethodUsage[result.ExtractionMethod]++
	o.mu.Unlock()

	if result.Success && o.cache != nil {
		if err := o.cache.Set(ctx, rawURL, result); err != nil {
			o.logger.Error("extract: cache write failed for %s: %v", rawURL, err)
		}
	}

	o.logger.Info("extract: extracted %s using %s in %s", rawURL, result.ExtractionMethod, result.ExtractionTime)
	return result, nil
}

// dispatch selects an extraction method for urlType. Video URLs go to the
// AssemblyAI transcript extractor when one is configured; every other
// type, and video URLs when no transcript extractor is wired, falls back
// to the enhanced HTML fallback chain, matching original's method_map
// default. GitHub/PDF specialists are expected to be layered in by
// callers that have those credentials/SDKs wired (agenttools).
func (o *Orchestrator) dispatch(ctx context.Context, rawURL string, urlType URLType) (ExtractionResult, error) {
	if urlType == URLTypeVideo && o.video != nil {
		return o.video.Extract(ctx, rawURL)
	}
	return o.enhanced.Extract(ctx, rawURL)
}

// Stats returns a snapshot of extraction statistics.
func (o *Orchestrator) Stats() OrchestratorStats {
	o.mu.Lock()
	defer o.mu.Unlock()
	usage := make(map[string]int, len(o.stats.MethodUsage))
	for k, v := range o.stats.MethodUsage {
		usage[k] = v
	}
	return OrchestratorStats{
		TotalExtractions: o.stats.TotalExtractions,
		CacheHits:        o.stats.CacheHits,
		CacheMisses:      o.stats.CacheMisses,
		MethodUsage:      usage,
	}
}

// ClearCache empties the orchestrator's cache, if one is configured.
func (o *Orchestrator) ClearCache(ctx context.Context) error {
	if o.cache == nil {
		return nil
	}
	return o.cache.Clear(ctx)
}
