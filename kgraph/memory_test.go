package kgraph

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBackendAddEdgeFailsSilentlyOnMissingEndpoint(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend("")
	require.NoError(t, b.AddNode(ctx, Node{ID: "a"}))

	ok, err := b.AddEdge(ctx, Edge{Source: "a", Target: "missing", Type: EdgeSimilar})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryBackendRemoveNodeRemovesIncidentEdges(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend("")
	require.NoError(t, b.AddNode(ctx, Node{ID: "a"}))
	require.NoError(t, b.AddNode(ctx, Node{ID: "b"}))

	ok, err := b.AddEdge(ctx, Edge{Source: "a", Target: "b", Type: EdgeSimilar, Weight: 0.9})
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, b.RemoveNode(ctx, "a"))

	edges, err := b.Edges(ctx, "b", EdgeSimilar, Incoming)
	require.NoError(t, err)
	assert.Empty(t, edges)
}

func TestFindSimilarNodesOnSingleNodeReturnsEmpty(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend("")
	require.NoError(t, b.AddNode(ctx, Node{ID: "only"}))

	results, err := b.FindSimilarNodes(ctx, "only", 5, 0.1)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestFindSimilarNodesSortsByScoreThenID(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend("")
	for _, id := range []string{"a", "b", "c", "d"} {
		require.NoError(t, b.AddNode(ctx, Node{ID: id}))
	}
	mustAddEdge(t, b, "a", "b", 0.5)
	mustAddEdge(t, b, "a", "c", 0.5)
	mustAddEdge(t, b, "a", "d", 0.9)

	results, err := b.FindSimilarNodes(ctx, "a", 10, 0.0)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "d", results[0].ID)
	assert.Equal(t, "b", results[1].ID) // tie broken by smallest id
	assert.Equal(t, "c", results[2].ID)
}

func mustAddEdge(t *testing.T, b *MemoryBackend, src, dst string, weight float64) {
	t.Helper()
	ok, err := b.AddEdge(context.Background(), Edge{Source: src, Target: dst, Type: EdgeSimilar, Weight: weight})
	require.NoError(t, err)
	require.True(t, ok)
}

func TestPersistLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "snapshot.gob")

	b := NewMemoryBackend(path)
	require.NoError(t, b.AddNode(ctx, Node{ID: "a", Content: "alpha", Embedding: []float32{0.1, 0.2}}))
	require.NoError(t, b.AddNode(ctx, Node{ID: "b", Content: "beta"}))
	mustAddEdge(t, b, "a", "b", 0.7)
	require.NoError(t, b.Persist(ctx))

	reloaded := NewMemoryBackend(path)
	require.NoError(t, reloaded.Load(ctx))

	n, ok, err := reloaded.GetNode(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "alpha", n.Content)

	similar, err := reloaded.FindSimilarNodes(ctx, "b", 5, 0.0)
	require.NoError(t, err)
	require.Len(t, similar, 1)
	assert.Equal(t, "a", similar[0].ID)

	_, err = os.Stat(path)
	require.NoError(t, err)
}

func TestCosineSimilarity(t *testing.T) {
	a := []float32{1, 0}
	b := []float32{1, 0}
	assert.InDelta(t, 1.0, CosineSimilarity(a, b), 1e-9)

	orth := []float32{0, 1}
	assert.InDelta(t, 0.0, CosineSimilarity(a, orth), 1e-9)
}
