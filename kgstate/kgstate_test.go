package kgstate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/via-canvas/intelligence-core/kgraph"
)

func vec(vals ...float32) []float32 { return vals }

func TestAddCardCreatesParentAboveThreshold(t *testing.T) {
	ctx := context.Background()
	backend := kgraph.NewMemoryBackend("")
	st := New(backend)

	_, err := st.AddCard(ctx, "a", "alpha content", "Alpha", vec(1, 0), nil)
	require.NoError(t, err)

	// b is identical to a -> similarity 1.0, well above parentMinScore.
	res, err := st.AddCard(ctx, "b", "beta content", "Beta", vec(1, 0), nil)
	require.NoError(t, err)

	assert.Equal(t, "a", res.ParentID)
	require.Len(t, res.SimilarTop5, 1)
	assert.Equal(t, "a", res.SimilarTop5[0].ID)

	parentEdges, err := backend.Edges(ctx, "b", kgraph.EdgeParentChild, kgraph.Incoming)
	require.NoError(t, err)
	require.Len(t, parentEdges, 1)
	assert.Equal(t, "a", parentEdges[0].Source)
}

func TestAddCardBelowParentThresholdHasNoParent(t *testing.T) {
	ctx := context.Background()
	backend := kgraph.NewMemoryBackend("")
	st := New(backend)

	require.NoError(t, backend.AddNode(ctx, kgraph.Node{ID: "x", Embedding: vec(1, 0)}))

	res, err := st.AddCard(ctx, "y", "y content", "Y", vec(0, 1), nil)
	require.NoError(t, err)
	assert.Empty(t, res.ParentID)
}

func TestUpdateCardRecomputesOnlyWhenContentChanges(t *testing.T) {
	ctx := context.Background()
	backend := kgraph.NewMemoryBackend("")
	st := New(backend)

	_, err := st.AddCard(ctx, "a", "alpha", "A", vec(1, 0), nil)
	require.NoError(t, err)
	_, err = st.AddCard(ctx, "b", "alpha", "B", vec(1, 0), nil)
	require.NoError(t, err)

	title := "B renamed"
	res, err := st.UpdateCard(ctx, "b", nil, &title, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, res.SimilarTop5, "no content change means no recomputation")
}

func TestUpdateCardStoresFreshEmbeddingAndRecomputesAgainstIt(t *testing.T) {
	ctx := context.Background()
	backend := kgraph.NewMemoryBackend("")
	st := New(backend)

	_, err := st.AddCard(ctx, "a", "alpha content", "A", vec(0, 1), nil)
	require.NoError(t, err)
	_, err = st.AddCard(ctx, "b", "beta content", "B", vec(1, 0), nil)
	require.NoError(t, err)
	require.Empty(t, st.ChangeLog()[1].ParentID)

	newContent := "beta rewritten"
	res, err := st.UpdateCard(ctx, "b", &newContent, nil, vec(0, 1), nil)
	require.NoError(t, err)

	node, ok, err := backend.GetNode(ctx, "b")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []float32{0, 1}, node.Embedding, "UpdateCard must persist the new embedding onto the node")

	require.Len(t, res.SimilarTop5, 1)
	assert.Equal(t, "a", res.SimilarTop5[0].ID, "recompute must score against the fresh embedding, not the stale one")
}

func TestRemoveCardRemovesEdges(t *testing.T) {
	ctx := context.Background()
	backend := kgraph.NewMemoryBackend("")
	st := New(backend)

	_, err := st.AddCard(ctx, "a", "alpha", "A", vec(1, 0), nil)
	require.NoError(t, err)
	_, err = st.AddCard(ctx, "b", "alpha", "B", vec(1, 0), nil)
	require.NoError(t, err)

	require.NoError(t, st.RemoveCard(ctx, "a"))

	edges, err := backend.Edges(ctx, "b", kgraph.EdgeParentChild, kgraph.Incoming)
	require.NoError(t, err)
	assert.Empty(t, edges)
}

func TestDetectIssuesOnPristineGraphFindsNothing(t *testing.T) {
	ctx := context.Background()
	backend := kgraph.NewMemoryBackend("")
	st := New(backend)

	issues, err := st.DetectIssues(ctx)
	require.NoError(t, err)
	assert.Empty(t, issues.OrphanedCards)
	assert.Empty(t, issues.WeakConnections)
	assert.Empty(t, issues.PotentialDuplicates)
}

func TestDetectIssuesFindsOrphansWeakAndDuplicates(t *testing.T) {
	ctx := context.Background()
	backend := kgraph.NewMemoryBackend("")

	require.NoError(t, backend.AddNode(ctx, kgraph.Node{ID: "orphan"}))
	require.NoError(t, backend.AddNode(ctx, kgraph.Node{ID: "a"}))
	require.NoError(t, backend.AddNode(ctx, kgraph.Node{ID: "b"}))
	require.NoError(t, backend.AddNode(ctx, kgraph.Node{ID: "c"}))

	ok, err := backend.AddEdge(ctx, kgraph.Edge{Source: "a", Target: "b", Type: kgraph.EdgeSimilar, Weight: 0.15})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = backend.AddEdge(ctx, kgraph.Edge{Source: "a", Target: "c", Type: kgraph.EdgeSimilar, Weight: 0.98})
	require.NoError(t, err)
	require.True(t, ok)

	st := New(backend)
	issues, err := st.DetectIssues(ctx)
	require.NoError(t, err)

	assert.Contains(t, issues.OrphanedCards, "orphan")
	require.Len(t, issues.WeakConnections, 1)
	assert.Equal(t, 0.15, issues.WeakConnections[0].Score)
	require.Len(t, issues.PotentialDuplicates, 1)
}
