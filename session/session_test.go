package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCreateGetTouch(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	s, err := store.Create(ctx, "canvas-1")
	require.NoError(t, err)
	require.NotEmpty(t, s.ID)
	assert.Equal(t, "canvas-1", s.CanvasID)

	got, ok, err := store.Get(ctx, s.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, s.ID, got.ID)

	updated, err := store.Touch(ctx, s.ID, "", &Message{Role: "user", Content: "hi"})
	require.NoError(t, err)
	assert.Len(t, updated.Messages, 1)
	assert.Equal(t, 1, updated.MessageCount())
	assert.True(t, updated.LastActivity.After(s.LastActivity) || updated.LastActivity.Equal(s.LastActivity))
}

func TestMemoryTouchCreatesSessionOnUnknownID(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	s, err := store.Touch(ctx, "preexisting-id", "canvas-2", nil)
	require.NoError(t, err)
	assert.Equal(t, "preexisting-id", s.ID)
	assert.Equal(t, "canvas-2", s.CanvasID)
}

func TestMemoryGCRemovesIdleSessions(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	s, err := store.Create(ctx, "")
	require.NoError(t, err)

	store.mu.Lock()
	store.sessions[s.ID].LastActivity = time.Now().Add(-25 * time.Hour)
	store.mu.Unlock()

	removed, err := store.GC(ctx, DefaultTTL)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, ok, _ := store.Get(ctx, s.ID)
	assert.False(t, ok)
}

func TestRedisCreateGetTouch(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisWithClient(client, "test:", time.Hour)
	ctx := context.Background()

	s, err := store.Create(ctx, "canvas-1")
	require.NoError(t, err)

	got, ok, err := store.Get(ctx, s.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "canvas-1", got.CanvasID)

	updated, err := store.Touch(ctx, s.ID, "", &Message{Role: "assistant", Content: "hello"})
	require.NoError(t, err)
	assert.Len(t, updated.Messages, 1)
}

func TestRedisGetMissingReturnsNotFound(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisWithClient(client, "test:", time.Hour)

	_, ok, err := store.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}
