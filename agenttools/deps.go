package agenttools

import (
	"context"

	"github.com/via-canvas/intelligence-core/canvas"
	"github.com/via-canvas/intelligence-core/category"
	"github.com/via-canvas/intelligence-core/extract"
	"github.com/via-canvas/intelligence-core/kgstate"
	"github.com/via-canvas/intelligence-core/model"
	"github.com/via-canvas/intelligence-core/ragstore"
)

// URLExtractor is the narrow surface extract_url_content needs from
// *extract.Orchestrator — kept as an interface (matching the
// DBPool/Embedder narrow-dependency idiom used elsewhere in the tree) so
// tests can substitute a fake rather than driving the orchestrator's
// real SSRF-guarded network fetch.
type URLExtractor interface {
	ExtractURL(ctx context.Context, rawURL string) (extract.ExtractionResult, error)
}

// WebSearcher is the narrow surface academic_source_search and
// deep_research's academic lane need from *tool.BraveSearch. Optional:
// nil means no external search API is configured, in which case both
// callers fall back to the model's own knowledge.
type WebSearcher interface {
	Search(ctx context.Context, query string) (string, error)
}

// Deps collects every backing collaborator a domain tool may need. Each
// tool constructor only reaches into the fields it actually uses, so a
// caller wiring a single specialist doesn't need to supply the whole set.
type Deps struct {
	Extractor   URLExtractor
	CardBuilder *extract.CardBuilder
	KG          *kgstate.State
	Canvas      canvas.Store
	RAG         ragstore.Store
	Provider    model.Provider
	Classifier  *category.Classifier
	Manager     *category.Manager
	WebSearch   WebSearcher
}
