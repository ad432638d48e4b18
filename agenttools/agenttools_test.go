package agenttools

import (
	"context"
	"strings"
	"testing"

	"github.com/tmc/langchaingo/llms"

	"github.com/via-canvas/intelligence-core/bus"
	"github.com/via-canvas/intelligence-core/canvas"
	"github.com/via-canvas/intelligence-core/category"
	"github.com/via-canvas/intelligence-core/extract"
	"github.com/via-canvas/intelligence-core/kgraph"
	"github.com/via-canvas/intelligence-core/kgstate"
	"github.com/via-canvas/intelligence-core/model"
	"github.com/via-canvas/intelligence-core/ragstore"
)

// fakeProvider is a deterministic model.Provider double: Call echoes the
// prompt with a fixed prefix (good enough to assert a tool actually
// invoked it and persisted the result), and Embed/EmbedBatch derive a
// fixed-length vector from word overlap with a tiny vocabulary, same
// trick ragstore's own tests use.
type fakeProvider struct{}

var vocab = []string{"goroutines", "channels", "rust", "mutex", "cats", "dogs"}

func (fakeProvider) vectorFor(text string) []float32 {
	lower := strings.ToLower(text)
	vec := make([]float32, len(vocab))
	for i, term := range vocab {
		if strings.Contains(lower, term) {
			vec[i] = 1
		}
	}
	return vec
}

func (f fakeProvider) GenerateContent(_ context.Context, _ []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: "generated"}}}, nil
}
func (f fakeProvider) Call(_ context.Context, prompt string, _ ...llms.CallOption) (string, error) {
	return "expanded: " + prompt, nil
}
func (f fakeProvider) StreamChat(_ context.Context, _ []llms.MessageContent, _ []llms.Tool) (<-chan model.CanonicalEvent, error) {
	ch := make(chan model.CanonicalEvent)
	close(ch)
	return ch, nil
}
func (f fakeProvider) Embed(_ context.Context, text string) ([]float32, error) {
	return f.vectorFor(text), nil
}
func (f fakeProvider) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = f.vectorFor(t)
	}
	return out, nil
}

type fakeURLExtractor struct {
	result extract.ExtractionResult
	err    error
}

func (f fakeURLExtractor) ExtractURL(context.Context, string) (extract.ExtractionResult, error) {
	return f.result, f.err
}

func newTestDeps(t *testing.T) Deps {
	t.Helper()
	backend := kgraph.NewMemoryBackend("")
	kg := kgstate.New(backend)

	store := category.NewMemoryStore()
	retriever, err := category.NewRetriever(context.Background(), store)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	manager := category.NewManager(store, retriever)
	classifier := category.NewClassifier(retriever, nil, nil)

	return Deps{
		KG:         kg,
		Canvas:     canvas.NewMemoryStore(),
		RAG:        ragstore.NewVectorStore(fakeProvider{}, "fake-embedder", 500, 50),
		Provider:   fakeProvider{},
		Classifier: classifier,
		Manager:    manager,
	}
}

func TestGrowCardContentToolExpandsAndSaves(t *testing.T) {
	ctx := context.Background()
	deps := newTestDeps(t)
	card, err := deps.Canvas.CreateCard(ctx, canvas.Card{CanvasID: "c1", Title: "Goroutines", Content: "short"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tool := NewGrowCardContentTool(deps)
	out, err := tool.Call(ctx, `{"canvas_id":"c1","card_id":"`+card.ID+`"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "expanded:") {
		t.Errorf("expected expanded content in result, got %q", out)
	}

	updated, err := deps.Canvas.GetCard(ctx, "c1", card.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(updated.Content, "expanded:") {
		t.Errorf("expected card content to be persisted, got %q", updated.Content)
	}
}

func TestFindSimilarCardsToolUsesGraphEdges(t *testing.T) {
	ctx := context.Background()
	deps := newTestDeps(t)

	if _, err := deps.KG.AddCard(ctx, "card-1", "goroutines and channels", "Concurrency", []float32{1, 1, 0, 0}, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := deps.KG.AddCard(ctx, "card-2", "more goroutines and channels", "Concurrency 2", []float32{1, 0.9, 0, 0}, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tool := NewFindSimilarCardsTool(deps)
	out, err := tool.Call(ctx, `{"card_id":"card-1","top_k":5}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "card-2") {
		t.Errorf("expected card-2 to show up as similar, got %q", out)
	}
}

func TestDetectConflictsToolReportsDuplicatesWithoutMerging(t *testing.T) {
	ctx := context.Background()
	deps := newTestDeps(t)

	if _, err := deps.KG.AddCard(ctx, "card-1", "identical content here", "A", []float32{1, 1, 1, 1}, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := deps.KG.AddCard(ctx, "card-2", "identical content here too", "B", []float32{1, 1, 1, 1}, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tool := NewDetectConflictsTool(deps)
	out, err := tool.Call(ctx, `{}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "potential_duplicates") {
		t.Errorf("expected potential_duplicates key in result, got %q", out)
	}

	// still both present on the graph — detection never auto-merges.
	if _, ok, err := deps.KG.Backend().GetNode(ctx, "card-1"); err != nil || !ok {
		t.Fatal("expected card-1 to still exist after detection")
	}
}

func TestMergeCardsToolCombinesContentAndRemovesSecondary(t *testing.T) {
	ctx := context.Background()
	deps := newTestDeps(t)

	primary, _ := deps.Canvas.CreateCard(ctx, canvas.Card{CanvasID: "c1", Content: "primary content"})
	secondary, _ := deps.Canvas.CreateCard(ctx, canvas.Card{CanvasID: "c1", Content: "secondary content"})
	if _, err := deps.KG.AddCard(ctx, secondary.ID, "secondary content", "Secondary", []float32{0, 1}, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tool := NewMergeCardsTool(deps)
	out, err := tool.Call(ctx, `{"canvas_id":"c1","primary_card_id":"`+primary.ID+`","secondary_card_id":"`+secondary.ID+`"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, primary.ID) {
		t.Errorf("expected merged card id in result, got %q", out)
	}

	merged, err := deps.Canvas.GetCard(ctx, "c1", primary.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(merged.Content, "primary content") || !strings.Contains(merged.Content, "secondary content") {
		t.Errorf("expected merged content to include both, got %q", merged.Content)
	}

	if _, ok, _ := deps.KG.Backend().GetNode(ctx, secondary.ID); ok {
		t.Error("expected the secondary card to be removed from the graph")
	}
}

func TestAnswerCanvasQuestionToolCitesRetrievedCards(t *testing.T) {
	ctx := context.Background()
	deps := newTestDeps(t)

	if err := deps.RAG.IndexCard(ctx, "card-1", "Goroutines and channels make Go concurrency simple.", "c1", "card", nil, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tool := NewAnswerCanvasQuestionTool(deps)
	out, err := tool.Call(ctx, `{"canvas_id":"c1","question":"how does goroutine concurrency work?"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "card-1") {
		t.Errorf("expected card-1 cited in result, got %q", out)
	}
}

func TestExtractURLContentToolBuildsCardsFromExtraction(t *testing.T) {
	ctx := context.Background()
	deps := newTestDeps(t)
	kg := kgstate.New(kgraph.NewMemoryBackend(""))
	deps.KG = kg
	deps.CardBuilder = extract.NewCardBuilder(kg, nil, bus.New(nil), nil)
	deps.Extractor = fakeURLExtractor{result: extract.ExtractionResult{
		Title: "A Guide to Channels", Text: "Channels let goroutines communicate safely.", Success: true,
	}}

	tool := NewExtractURLContentTool(deps)
	out, err := tool.Call(ctx, `{"url":"https://example.com/channels","canvas_id":"c1"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "A Guide to Channels") {
		t.Errorf("expected extracted title in result, got %q", out)
	}
}
