package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitDeliversToAllSubscribers(t *testing.T) {
	b := New(nil)
	defer b.Shutdown()

	var mu sync.Mutex
	var gotA, gotB []string

	done := make(chan struct{}, 2)
	b.Subscribe(TopicCardCreated, func(_ context.Context, evt Event) {
		mu.Lock()
		gotA = append(gotA, evt.CardID)
		mu.Unlock()
		done <- struct{}{}
	})
	b.Subscribe(TopicCardCreated, func(_ context.Context, evt Event) {
		mu.Lock()
		gotB = append(gotB, evt.CardID)
		mu.Unlock()
		done <- struct{}{}
	})

	b.Emit(context.Background(), Event{Topic: TopicCardCreated, CardID: "c1"})

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for subscriber delivery")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"c1"}, gotA)
	assert.Equal(t, []string{"c1"}, gotB)
}

func TestEmitPreservesOrderPerSubscriber(t *testing.T) {
	b := New(nil)
	defer b.Shutdown()

	var mu sync.Mutex
	var got []string
	done := make(chan struct{}, 1)

	b.Subscribe(TopicProgressUpdate, func(_ context.Context, evt Event) {
		mu.Lock()
		got = append(got, evt.Step)
		n := len(got)
		mu.Unlock()
		if n == 3 {
			done <- struct{}{}
		}
	})

	for _, step := range []string{"a", "b", "c"} {
		b.Emit(context.Background(), Event{Topic: TopicProgressUpdate, Step: step})
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestEmitWithNoSubscribersDoesNotBlock(t *testing.T) {
	b := New(nil)
	defer b.Shutdown()

	finished := make(chan struct{})
	go func() {
		b.Emit(context.Background(), Event{Topic: TopicCardDeleted, CardID: "ghost"})
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("emit with no subscribers blocked")
	}
}

func TestHandlerPanicIsSwallowed(t *testing.T) {
	b := New(nil)
	defer b.Shutdown()

	require.NotPanics(t, func() {
		b.Subscribe(TopicCardCreated, func(_ context.Context, _ Event) {
			panic("boom")
		})
		b.Emit(context.Background(), Event{Topic: TopicCardCreated, CardID: "x"})
		time.Sleep(50 * time.Millisecond)
	})
}
