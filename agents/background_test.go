package agents

import (
	"context"
	"strings"
	"testing"

	"github.com/tmc/langchaingo/llms"

	"github.com/via-canvas/intelligence-core/agenttools"
	"github.com/via-canvas/intelligence-core/bus"
	"github.com/via-canvas/intelligence-core/canvas"
	"github.com/via-canvas/intelligence-core/kgraph"
	"github.com/via-canvas/intelligence-core/kgstate"
	"github.com/via-canvas/intelligence-core/model"
)

// backgroundFakeProvider returns a fixed completion regardless of prompt,
// so each reactive task's childCard content is deterministic.
type backgroundFakeProvider struct{}

func (backgroundFakeProvider) GenerateContent(context.Context, []llms.MessageContent, ...llms.CallOption) (*llms.ContentResponse, error) {
	return &llms.ContentResponse{}, nil
}
func (backgroundFakeProvider) Call(_ context.Context, prompt string, _ ...llms.CallOption) (string, error) {
	return "generated: " + prompt, nil
}
func (backgroundFakeProvider) Embed(context.Context, string) ([]float32, error)          { return nil, nil }
func (backgroundFakeProvider) EmbedBatch(context.Context, []string) ([][]float32, error) { return nil, nil }
func (backgroundFakeProvider) StreamChat(context.Context, []llms.MessageContent, []llms.Tool) (<-chan model.CanonicalEvent, error) {
	ch := make(chan model.CanonicalEvent)
	close(ch)
	return ch, nil
}

func newBackgroundDeps(t *testing.T) (agenttools.Deps, *canvas.MemoryStore) {
	t.Helper()
	store := canvas.NewMemoryStore()
	backend := kgraph.NewMemoryBackend("")
	kg := kgstate.New(backend)
	return agenttools.Deps{
		Canvas:   store,
		KG:       kg,
		Provider: backgroundFakeProvider{},
	}, store
}

func TestBackgroundIntelligenceAgentHandlesCardCreated(t *testing.T) {
	ctx := context.Background()
	deps, store := newBackgroundDeps(t)
	agent := NewBackgroundIntelligenceAgent(deps, deps.Provider)

	root, err := store.CreateCard(ctx, canvas.Card{CanvasID: "canvas-1", Title: "Notes"})
	if err != nil {
		t.Fatalf("create root card: %v", err)
	}

	longContent := "- [ ] finish writing the report\n" + strings.Repeat("padding content to cross the entity-extraction length threshold. ", 5)
	agent.handle(ctx, bus.Event{
		Topic: bus.TopicCardCreated, CardID: root.ID, CanvasID: "canvas-1", Content: longContent,
	})

	cards, err := store.ListCards(ctx, "canvas-1")
	if err != nil {
		t.Fatalf("list cards: %v", err)
	}

	var titles []string
	for _, c := range cards {
		if c.ID != root.ID {
			titles = append(titles, c.Title)
		}
	}

	want := map[string]bool{
		"Extracted to-dos": false,
		"Named entities":   false,
		"Study questions":  false,
	}
	for _, title := range titles {
		if _, ok := want[title]; ok {
			want[title] = true
		}
	}
	for title, seen := range want {
		if !seen {
			t.Errorf("expected a child card titled %q, got titles %v", title, titles)
		}
	}

	// card_created never runs the contradiction check.
	for _, title := range titles {
		if title == "Possible contradiction" {
			t.Errorf("card_created should not run detectContradictions, got %v", titles)
		}
	}
}

func TestBackgroundIntelligenceAgentHandlesCardUpdated(t *testing.T) {
	ctx := context.Background()
	deps, store := newBackgroundDeps(t)
	agent := NewBackgroundIntelligenceAgent(deps, deps.Provider)

	root, err := store.CreateCard(ctx, canvas.Card{CanvasID: "canvas-1", Title: "Notes"})
	if err != nil {
		t.Fatalf("create root card: %v", err)
	}
	// A neighbor so FindSimilarNodes has something to return.
	if _, err := deps.KG.AddCard(ctx, root.ID, "original content about goroutines", "Notes", []float32{1, 0, 0}, nil); err != nil {
		t.Fatalf("add root to graph: %v", err)
	}
	if _, err := deps.KG.AddCard(ctx, "neighbor-1", "related content about goroutines and channels", "Related", []float32{0.99, 0.01, 0}, nil); err != nil {
		t.Fatalf("add neighbor to graph: %v", err)
	}

	agent.handle(ctx, bus.Event{
		Topic: bus.TopicCardUpdated, CardID: root.ID, CanvasID: "canvas-1",
		Content: "due 12/25 please review this revised section",
	})

	cards, err := store.ListCards(ctx, "canvas-1")
	if err != nil {
		t.Fatalf("list cards: %v", err)
	}

	var sawDeadlines, sawStudyQuestions bool
	for _, c := range cards {
		switch c.Title {
		case "Deadlines":
			sawDeadlines = true
		case "Study questions":
			sawStudyQuestions = true
		}
	}
	if !sawDeadlines {
		t.Error("expected a Deadlines child card from the deadline pattern match")
	}
	if sawStudyQuestions {
		t.Error("card_updated should not generate study questions, that's a card_created-only task")
	}
}

func TestBackgroundIntelligenceAgentIgnoresEmptyContent(t *testing.T) {
	ctx := context.Background()
	deps, store := newBackgroundDeps(t)
	agent := NewBackgroundIntelligenceAgent(deps, deps.Provider)

	agent.handle(ctx, bus.Event{Topic: bus.TopicCardCreated, CardID: "x", CanvasID: "canvas-1", Content: ""})

	cards, err := store.ListCards(ctx, "canvas-1")
	if err != nil {
		t.Fatalf("list cards: %v", err)
	}
	if len(cards) != 0 {
		t.Errorf("expected no cards created for an empty-content event, got %d", len(cards))
	}
}
