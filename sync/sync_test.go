package sync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/via-canvas/intelligence-core/bus"
	"github.com/via-canvas/intelligence-core/category"
	"github.com/via-canvas/intelligence-core/kgraph"
	"github.com/via-canvas/intelligence-core/kgstate"
	"github.com/via-canvas/intelligence-core/model"
)

type stubProvider struct{}

func (stubProvider) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return "", nil
}
func (stubProvider) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	return &llms.ContentResponse{}, nil
}
func (stubProvider) StreamChat(ctx context.Context, messages []llms.MessageContent, tools []llms.Tool) (<-chan model.CanonicalEvent, error) {
	return nil, nil
}
func (stubProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0}, nil
}
func (stubProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestOnCardCreatedAddsToGraphAndClassifies(t *testing.T) {
	ctx := context.Background()
	backend := kgraph.NewMemoryBackend("")
	kg := kgstate.New(backend)

	store := category.NewMemoryStore()
	retriever, err := category.NewRetriever(ctx, store)
	require.NoError(t, err)
	classifier := category.NewClassifier(retriever, nil, nil)
	manager := category.NewManager(store, retriever)

	b := bus.New(nil)
	svc := New(kg, classifier, manager, stubProvider{}, b, nil)
	svc.Subscribe()

	b.Emit(ctx, bus.Event{Topic: bus.TopicCardCreated, CardID: "card-1", Content: "hello world content", Title: "Hello"})

	waitFor(t, func() bool {
		_, ok, _ := backend.GetNode(ctx, "card-1")
		return ok
	})
}

func TestOnCardDeletedRemovesFromGraph(t *testing.T) {
	ctx := context.Background()
	backend := kgraph.NewMemoryBackend("")
	kg := kgstate.New(backend)
	require.NoError(t, backend.AddNode(ctx, kgraph.Node{ID: "card-1"}))

	store := category.NewMemoryStore()
	retriever, err := category.NewRetriever(ctx, store)
	require.NoError(t, err)
	classifier := category.NewClassifier(retriever, nil, nil)
	manager := category.NewManager(store, retriever)

	b := bus.New(nil)
	svc := New(kg, classifier, manager, stubProvider{}, b, nil)
	svc.Subscribe()

	b.Emit(ctx, bus.Event{Topic: bus.TopicCardDeleted, CardID: "card-1"})

	waitFor(t, func() bool {
		ok, _ := backend.HasNode(ctx, "card-1")
		return !ok
	})
}

func TestOnConnectionCreatedComputesSimilarityWhenAbsent(t *testing.T) {
	ctx := context.Background()
	backend := kgraph.NewMemoryBackend("")
	kg := kgstate.New(backend)
	require.NoError(t, backend.AddNode(ctx, kgraph.Node{ID: "a", Embedding: []float32{1, 0}}))
	require.NoError(t, backend.AddNode(ctx, kgraph.Node{ID: "b", Embedding: []float32{1, 0}}))

	store := category.NewMemoryStore()
	retriever, err := category.NewRetriever(ctx, store)
	require.NoError(t, err)
	classifier := category.NewClassifier(retriever, nil, nil)
	manager := category.NewManager(store, retriever)

	b := bus.New(nil)
	svc := New(kg, classifier, manager, stubProvider{}, b, nil)
	svc.Subscribe()

	b.Emit(ctx, bus.Event{Topic: bus.TopicConnectionCreated, SourceID: "a", TargetID: "b", ConnectionType: "related"})

	waitFor(t, func() bool {
		edges, _ := backend.Edges(ctx, "a", kgraph.EdgeRelated, kgraph.Outgoing)
		return len(edges) == 1
	})

	edges, err := backend.Edges(ctx, "a", kgraph.EdgeRelated, kgraph.Outgoing)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.InDelta(t, 1.0, edges[0].Weight, 1e-9)
}
