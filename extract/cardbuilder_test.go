package extract

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/via-canvas/intelligence-core/bus"
	"github.com/via-canvas/intelligence-core/kgraph"
	"github.com/via-canvas/intelligence-core/kgstate"
	"github.com/via-canvas/intelligence-core/model"
)

type eventRecorder struct {
	mu     sync.Mutex
	events []bus.Event
}

func (r *eventRecorder) record(_ context.Context, evt bus.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *eventRecorder) snapshot() []bus.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]bus.Event, len(r.events))
	copy(out, r.events)
	return out
}

func waitForEvents(t *testing.T, r *eventRecorder, n int) []bus.Event {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if evts := r.snapshot(); len(evts) >= n {
			return evts
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d events, got %d", n, len(r.snapshot()))
	return nil
}

func newTestCardBuilder(t *testing.T) (*CardBuilder, *eventRecorder, *kgstate.State) {
	t.Helper()
	backend := kgraph.NewMemoryBackend("")
	kg := kgstate.New(backend)
	b := bus.New(nil)

	rec := &eventRecorder{}
	b.Subscribe(bus.TopicCardCreated, rec.record)
	b.Subscribe(bus.TopicConnectionCreated, rec.record)

	return NewCardBuilder(kg, nil, b, nil), rec, kg
}

func TestBuildEmitsParentAndSectionCards(t *testing.T) {
	cb, rec, _ := newTestCardBuilder(t)
	ctx := context.Background()

	payload := Payload{
		Title:       "Goroutines",
		Description: "An introduction to goroutines.",
		CanvasID:    "canvas-1",
		Sections: []Section{
			{Heading: "Starting a goroutine", Content: "Use the go keyword."},
			{Heading: "Channels", Content: "Channels synchronize goroutines."},
		},
	}

	result, err := cb.Build(ctx, payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ParentCardID == "" {
		t.Fatal("expected a parent card id")
	}
	if len(result.ChildCardIDs) != 2 {
		t.Fatalf("expected 2 section child ids, got %d", len(result.ChildCardIDs))
	}

	// 1 parent card_created + 2 section card_created + 2 parent-child connections.
	events := waitForEvents(t, rec, 5)

	var cardCreated, connections int
	for _, evt := range events {
		switch evt.Topic {
		case bus.TopicCardCreated:
			cardCreated++
		case bus.TopicConnectionCreated:
			connections++
			if evt.ConnectionType != string(kgraph.EdgeParentChild) {
				t.Errorf("expected parent-child connection, got %q", evt.ConnectionType)
			}
		}
	}
	if cardCreated != 3 {
		t.Errorf("expected 3 card_created events, got %d", cardCreated)
	}
	if connections != 2 {
		t.Errorf("expected 2 connection_created events, got %d", connections)
	}
}

func TestBuildGroupsCodeBlocksIntoExamplesAndPatterns(t *testing.T) {
	cb, rec, _ := newTestCardBuilder(t)
	ctx := context.Background()

	payload := Payload{
		Title:    "Worker Pools",
		CanvasID: "canvas-1",
		CodeBlocks: []CodeBlock{
			{Kind: KindExample, Content: "Example: basic worker pool"},
			{Kind: KindUsage, Content: "Usage: submit jobs"},
			{Kind: KindPattern, Content: "Pattern: fan-out fan-in"},
		},
	}

	result, err := cb.Build(ctx, payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// parent + Examples group + 2 example/usage blocks + Patterns group + 1 pattern block = 6
	if len(result.ChildCardIDs) != 5 {
		t.Fatalf("expected 5 non-parent cards (2 groups + 3 blocks), got %d: %v", len(result.ChildCardIDs), result.ChildCardIDs)
	}

	events := waitForEvents(t, rec, 1+5+5) // parent + 5 cards + (parent->group x2, group->block x3) connections
	var titles []string
	for _, evt := range events {
		if evt.Topic == bus.TopicCardCreated {
			titles = append(titles, evt.Title)
		}
	}
	foundExamples, foundPatterns := false, false
	for _, title := range titles {
		if title == "Examples" {
			foundExamples = true
		}
		if title == "Patterns" {
			foundPatterns = true
		}
	}
	if !foundExamples {
		t.Error("expected an 'Examples' grouping card")
	}
	if !foundPatterns {
		t.Error("expected a 'Patterns' grouping card")
	}
}

func TestBuildEmitsDemonstratesEdgeWhenBlockNamesExistingCard(t *testing.T) {
	cb, rec, kg := newTestCardBuilder(t)
	ctx := context.Background()

	backend := kg.Backend()
	if err := backend.AddNode(ctx, kgraph.Node{
		ID:         "existing-card",
		Content:    "WaitGroup",
		Attributes: map[string]any{"title": "WaitGroup"},
	}); err != nil {
		t.Fatalf("seed node: %v", err)
	}

	payload := Payload{
		Title:    "Concurrency",
		CanvasID: "canvas-1",
		CodeBlocks: []CodeBlock{
			{Kind: KindExample, Content: "Example: using a WaitGroup to wait for goroutines"},
		},
	}

	if _, err := cb.Build(ctx, payload); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	events := waitForEvents(t, rec, 1+2+2+1) // parent + (Examples group + 1 block) cards + connections + demonstrates edge
	found := false
	for _, evt := range events {
		if evt.Topic == bus.TopicConnectionCreated && evt.ConnectionType == "demonstrates" {
			found = true
			if evt.TargetID != "existing-card" {
				t.Errorf("expected demonstrates edge to target existing-card, got %q", evt.TargetID)
			}
		}
	}
	if !found {
		t.Error("expected a demonstrates connection to the existing card")
	}
}

func TestBuildPicksExistingParentBySimilarity(t *testing.T) {
	cb, rec, kg := newTestCardBuilder(t)
	ctx := context.Background()

	embedding := model.FallbackVector("Goroutines\n\nAn introduction to goroutines.", 0)
	backend := kg.Backend()
	if err := backend.AddNode(ctx, kgraph.Node{
		ID:        "parent-candidate",
		Content:   "Goroutines",
		Embedding: embedding,
	}); err != nil {
		t.Fatalf("seed node: %v", err)
	}

	payload := Payload{
		Title:       "Goroutines",
		Description: "An introduction to goroutines.",
		CanvasID:    "canvas-1",
	}

	if _, err := cb.Build(ctx, payload); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	events := waitForEvents(t, rec, 2) // parent card_created + connection to existing parent
	foundConnection := false
	for _, evt := range events {
		if evt.Topic == bus.TopicConnectionCreated && evt.SourceID == "parent-candidate" {
			foundConnection = true
		}
	}
	if !foundConnection {
		t.Error("expected CardBuilder to connect the new parent card to the similar existing card")
	}
}

func TestBuildUsesExplicitParentIDWhenProvided(t *testing.T) {
	cb, rec, _ := newTestCardBuilder(t)
	ctx := context.Background()

	payload := Payload{
		Title:    "Channels",
		CanvasID: "canvas-1",
		ParentID: "explicit-parent",
	}

	if _, err := cb.Build(ctx, payload); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	events := waitForEvents(t, rec, 2)
	found := false
	for _, evt := range events {
		if evt.Topic == bus.TopicConnectionCreated && evt.SourceID == "explicit-parent" {
			found = true
		}
	}
	if !found {
		t.Error("expected connection from the explicit parent id")
	}
}
