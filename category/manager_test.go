package category

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeedDefaultsOnEmptyStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	m := NewManager(store, nil)

	require.NoError(t, m.SeedDefaults(ctx, 4))

	all, err := store.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	for _, p := range all {
		assert.Equal(t, 0.3, p.Confidence)
		assert.Len(t, p.CentroidEmbedding, 4)
	}
}

func TestSeedDefaultsIsNoopWhenNotEmpty(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Add(ctx, Profile{ID: "existing", Name: "Existing"}))

	m := NewManager(store, nil)
	require.NoError(t, m.SeedDefaults(ctx, 4))

	all, err := store.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestCreateProfileComputesCentroidKeywordsSnippets(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	m := NewManager(store, nil)

	cards := []CardInput{
		{Content: "Goroutines are cheap. They are scheduled by the runtime.", Embedding: []float32{1, 0}, Keywords: []string{"go", "goroutine"}},
		{Content: "Channels synchronize goroutines.", Embedding: []float32{0, 1}, Keywords: []string{"go", "channel"}},
	}

	p, err := m.CreateProfile(ctx, "Go", "Go language topics", cards, "")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.5}, p.CentroidEmbedding)
	assert.Contains(t, p.Keywords, "go")
	assert.Len(t, p.Snippets, 2)
	assert.Equal(t, 2, p.CardCount)
}

func TestUpdateProfileWithCardUpdatesCentroidAndStats(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	m := NewManager(store, nil)

	p, err := m.CreateProfile(ctx, "Go", "desc", []CardInput{{Embedding: []float32{1, 0}, Content: "a"}}, "")
	require.NoError(t, err)

	updated, err := m.UpdateProfileWithCard(ctx, p.ID, CardInput{Embedding: []float32{0, 2}}, nil, false)
	require.NoError(t, err)
	assert.Equal(t, 2, updated.CardCount)
	assert.Equal(t, 1, updated.AutoAssignments)
	assert.InDelta(t, float32(0.5), updated.CentroidEmbedding[0], 1e-6)
	assert.InDelta(t, float32(1.0), updated.CentroidEmbedding[1], 1e-6)
}

func TestMergeProfilesWeightsByCardCount(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	m := NewManager(store, nil)

	p1, err := m.CreateProfile(ctx, "Go", "desc", []CardInput{
		{Embedding: []float32{2, 0}}, {Embedding: []float32{2, 0}}, {Embedding: []float32{2, 0}},
	}, "")
	require.NoError(t, err)
	p2, err := m.CreateProfile(ctx, "Golang", "desc", []CardInput{{Embedding: []float32{0, 2}}}, "")
	require.NoError(t, err)

	merged, err := m.MergeProfiles(ctx, p1.ID, p2.ID, "")
	require.NoError(t, err)
	assert.Equal(t, 4, merged.CardCount)
	assert.InDelta(t, float32(1.5), merged.CentroidEmbedding[0], 1e-6)
	assert.InDelta(t, float32(0.5), merged.CentroidEmbedding[1], 1e-6)

	_, found, err := store.Get(ctx, p2.ID)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestDeleteProfileRemovesFromStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	m := NewManager(store, nil)

	p, err := m.CreateProfile(ctx, "Go", "desc", nil, "")
	require.NoError(t, err)

	require.NoError(t, m.DeleteProfile(ctx, p.ID))
	_, found, err := store.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, found)
}
