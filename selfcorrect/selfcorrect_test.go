package selfcorrect

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/via-canvas/intelligence-core/category"
	"github.com/via-canvas/intelligence-core/kgraph"
	"github.com/via-canvas/intelligence-core/kgstate"
)

func newTestKG(t *testing.T) (*kgstate.State, *kgraph.MemoryBackend) {
	t.Helper()
	backend := kgraph.NewMemoryBackend("")
	return kgstate.New(backend), backend
}

func TestRunFixesOrphanBySimilarity(t *testing.T) {
	ctx := context.Background()
	kg, backend := newTestKG(t)

	require.NoError(t, backend.AddNode(ctx, kgraph.Node{ID: "parent", Content: "x", Embedding: []float32{1, 0}, Category: "Go"}))
	require.NoError(t, backend.AddNode(ctx, kgraph.Node{ID: "orphan", Content: "y", Embedding: []float32{1, 0}, Category: "Go"}))

	job := New(kg, nil, nil, nil)
	result, err := job.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, result.OrphanedCards)
	assert.Equal(t, 1, result.CorrectionsApplied)

	edges, err := backend.Edges(ctx, "parent", kgraph.EdgeParentChild, kgraph.Outgoing)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, "orphan", edges[0].Target)
	assert.Equal(t, true, edges[0].Attributes["auto_corrected"])
}

func TestRunRemovesWeakConnections(t *testing.T) {
	ctx := context.Background()
	kg, backend := newTestKG(t)

	require.NoError(t, backend.AddNode(ctx, kgraph.Node{ID: "a", Embedding: []float32{1, 0}, Category: "Go"}))
	require.NoError(t, backend.AddNode(ctx, kgraph.Node{ID: "b", Embedding: []float32{0, 1}, Category: "Go"}))
	_, err := backend.AddEdge(ctx, kgraph.Edge{Source: "a", Target: "b", Type: kgraph.EdgeSimilar, Weight: 0.05})
	require.NoError(t, err)

	job := New(kg, nil, nil, nil)
	result, err := job.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, result.WeakConnections)
	edges, err := backend.Edges(ctx, "a", kgraph.EdgeSimilar, kgraph.Outgoing)
	require.NoError(t, err)
	assert.Len(t, edges, 0)
}

func TestRunFillsMissingCategoryWithFallbackWhenNoClassifier(t *testing.T) {
	ctx := context.Background()
	kg, backend := newTestKG(t)
	require.NoError(t, backend.AddNode(ctx, kgraph.Node{ID: "card-1", Content: "hello", Embedding: []float32{1, 0}}))

	job := New(kg, nil, nil, nil)
	result, err := job.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, result.MissingCategories)
	node, ok, err := backend.GetNode(ctx, "card-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Uncategorized", node.Category)
	assert.Equal(t, true, node.Attributes["auto_categorized"])
}

func TestRunFlagsDuplicatesWithoutMerging(t *testing.T) {
	ctx := context.Background()
	kg, backend := newTestKG(t)

	require.NoError(t, backend.AddNode(ctx, kgraph.Node{ID: "a", Embedding: []float32{1, 0}, Category: "Go"}))
	require.NoError(t, backend.AddNode(ctx, kgraph.Node{ID: "b", Embedding: []float32{1, 0}, Category: "Go"}))
	_, err := backend.AddEdge(ctx, kgraph.Edge{Source: "a", Target: "b", Type: kgraph.EdgeSimilar, Weight: 0.99})
	require.NoError(t, err)

	job := New(kg, nil, nil, nil)
	result, err := job.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Duplicates)

	nodeA, ok, err := backend.GetNode(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "b", nodeA.Attributes["potential_duplicate_of"])

	_, ok, err = backend.GetNode(ctx, "b")
	require.NoError(t, err)
	require.True(t, ok)

	ids, err := backend.AllNodeIDs(ctx)
	require.NoError(t, err)
	assert.Len(t, ids, 2)
}

func TestHistoryIsBoundedAndOrdered(t *testing.T) {
	ctx := context.Background()
	kg, _ := newTestKG(t)
	job := New(kg, nil, nil, nil)

	for i := 0; i < 3; i++ {
		_, err := job.Run(ctx)
		require.NoError(t, err)
	}

	history := job.History(2)
	require.Len(t, history, 2)

	stats := job.Statistics()
	assert.Equal(t, 3, stats.TotalRuns)
	require.NotNil(t, stats.LastRun)
}

func TestRunUsesDynamicCategorySystemWhenWired(t *testing.T) {
	ctx := context.Background()
	kg, backend := newTestKG(t)
	require.NoError(t, backend.AddNode(ctx, kgraph.Node{ID: "card-1", Content: "goroutines and channels", Embedding: []float32{1, 0}}))

	store := category.NewMemoryStore()
	goProfile := category.Profile{ID: "cat_go", Name: "Go", CentroidEmbedding: []float32{1, 0}}
	require.NoError(t, store.Add(ctx, goProfile))
	retriever, err := category.NewRetriever(ctx, store)
	require.NoError(t, err)
	classifier := category.NewClassifier(retriever, nil, nil)
	manager := category.NewManager(store, retriever)

	job := New(kg, classifier, manager, nil)
	result, err := job.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.CorrectionsApplied)

	node, ok, err := backend.GetNode(ctx, "card-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Go", node.Category)

	updated, found, err := store.Get(ctx, "cat_go")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 1, updated.CardCount)
}
