package progress

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/via-canvas/intelligence-core/bus"
	"github.com/via-canvas/intelligence-core/store/memory"
)

type eventCollector struct {
	mu     sync.Mutex
	events []bus.Event
}

func (c *eventCollector) record(_ context.Context, evt bus.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
}

func (c *eventCollector) wait(t *testing.T, n int) []bus.Event {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		c.mu.Lock()
		got := len(c.events)
		c.mu.Unlock()
		if got >= n {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]bus.Event, len(c.events))
	copy(out, c.events)
	return out
}

func newTestSetup(t *testing.T) (*bus.Bus, *eventCollector, *CheckpointManager) {
	t.Helper()
	b := bus.New(nil)
	c := &eventCollector{}
	b.Subscribe(bus.TopicProgressUpdate, c.record)
	b.Subscribe(bus.TopicOperationComplete, c.record)
	b.Subscribe(bus.TopicOperationFailed, c.record)
	b.Subscribe(bus.TopicOperationCancelled, c.record)

	mgr := NewCheckpointManager(memory.NewMemoryCheckpointStore(), nil)
	return b, c, mgr
}

func TestUpdateProgressEmitsEventWithEstimate(t *testing.T) {
	b, c, mgr := newTestSetup(t)
	ctx := context.Background()

	tracker := NewTracker("op-1", "url_extraction", "canvas-1", "session-1", 4, b, mgr, nil)
	if err := tracker.UpdateProgress(ctx, "fetching", 0.5, "halfway", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	events := c.wait(t, 1)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	evt := events[0]
	if evt.Topic != bus.TopicProgressUpdate || evt.OperationID != "op-1" || evt.Progress != 0.5 {
		t.Errorf("unexpected event: %+v", evt)
	}
	if evt.EstimatedSecs == nil {
		t.Error("expected an estimated-seconds value at 50%% progress")
	}
}

func TestUpdateProgressCheckspointsEvery10Cards(t *testing.T) {
	b, _, mgr := newTestSetup(t)
	ctx := context.Background()

	tracker := NewTracker("op-2", "card_growth", "canvas-1", "", 1, b, mgr, nil)
	// Force the time-based trigger off by keeping elapsed tiny; only the
	// every-10-cards trigger should fire.
	var cards []string
	for i := 0; i < 10; i++ {
		cards = append(cards, "card-id")
	}
	if err := tracker.UpdateProgress(ctx, "growing", 0.3, "adding cards", cards); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	record, ok, err := mgr.Load(ctx, "op-2")
	if err != nil {
		t.Fatalf("unexpected error loading checkpoint: %v", err)
	}
	if !ok {
		t.Fatal("expected a checkpoint to have been saved at the 10-card mark")
	}
	if len(record.CardsCreated) != 10 {
		t.Errorf("expected 10 cards recorded, got %d", len(record.CardsCreated))
	}
}

func TestUpdateProgressIsNoOpAfterCancel(t *testing.T) {
	b, c, mgr := newTestSetup(t)
	ctx := context.Background()

	tracker := NewTracker("op-3", "deep_research", "canvas-1", "session-1", 3, b, mgr, nil)
	if err := tracker.Cancel(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := tracker.UpdateProgress(ctx, "step", 0.9, "should be ignored", []string{"c1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	events := c.wait(t, 1)
	for _, evt := range events {
		if evt.Topic == bus.TopicProgressUpdate {
			t.Error("expected no progress_update after cancellation")
		}
	}
	if !tracker.IsCancelled() {
		t.Error("expected tracker to report cancelled")
	}
}

func TestCompleteDeletesCheckpoint(t *testing.T) {
	b, c, mgr := newTestSetup(t)
	ctx := context.Background()

	tracker := NewTracker("op-4", "url_extraction", "canvas-1", "", 1, b, mgr, nil)
	if err := tracker.UpdateProgress(ctx, "step", 0.1, "starting", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// force a checkpoint so there's something to delete
	if err := mgr.Save(ctx, tracker.Record()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := tracker.Complete(ctx, "done"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, ok, err := mgr.Load(ctx, "op-4")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected checkpoint to be deleted on completion")
	}

	events := c.wait(t, 2)
	foundComplete := false
	for _, evt := range events {
		if evt.Topic == bus.TopicOperationComplete {
			foundComplete = true
		}
	}
	if !foundComplete {
		t.Error("expected an operation_complete event")
	}
}

func TestFailRetainsCheckpoint(t *testing.T) {
	b, c, mgr := newTestSetup(t)
	ctx := context.Background()

	tracker := NewTracker("op-5", "url_extraction", "canvas-1", "", 1, b, mgr, nil)
	if err := tracker.Fail(ctx, errors.New("boom")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	record, ok, err := mgr.Load(ctx, "op-5")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected checkpoint to be retained on failure")
	}
	if !record.Failed || record.Error != "boom" {
		t.Errorf("unexpected retained record: %+v", record)
	}

	events := c.wait(t, 1)
	foundFailed := false
	for _, evt := range events {
		if evt.Topic == bus.TopicOperationFailed {
			foundFailed = true
		}
	}
	if !foundFailed {
		t.Error("expected an operation_failed event")
	}
}

func TestGetIncompleteFiltersByCanvasAndSession(t *testing.T) {
	ctx := context.Background()
	mgr := NewCheckpointManager(memory.NewMemoryCheckpointStore(), nil)

	must := func(r Record) {
		if err := mgr.Save(ctx, r); err != nil {
			t.Fatalf("save failed: %v", err)
		}
	}
	must(Record{OperationID: "a", CanvasID: "canvas-1", SessionID: "s1", Progress: 0.5})
	must(Record{OperationID: "b", CanvasID: "canvas-2", SessionID: "s1", Progress: 0.2})
	must(Record{OperationID: "c", CanvasID: "canvas-1", SessionID: "s2", Progress: 1.0}) // complete, excluded

	results, err := mgr.GetIncomplete(ctx, "canvas-1", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 || results[0].OperationID != "a" {
		t.Errorf("expected only operation 'a' for canvas-1, got %+v", results)
	}

	all, err := mgr.GetIncomplete(ctx, "", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("expected 2 incomplete operations total, got %d", len(all))
	}
}

func TestCleanupRemovesOldCheckpointsOnly(t *testing.T) {
	ctx := context.Background()
	backend := memory.NewMemoryCheckpointStore()
	mgr := NewCheckpointManager(backend, nil)

	if err := mgr.Save(ctx, Record{OperationID: "old", Progress: 0.4}); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if err := mgr.Save(ctx, Record{OperationID: "new", Progress: 0.4}); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	// backdate the "old" checkpoint directly through the backing store.
	cp, err := backend.Load(ctx, "old")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	cp.Timestamp = time.Now().Add(-8 * 24 * time.Hour)
	if err := backend.Save(ctx, cp); err != nil {
		t.Fatalf("resave failed: %v", err)
	}

	removed, err := mgr.Cleanup(ctx, 0)
	if err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("expected 1 removed, got %d", removed)
	}

	_, ok, _ := mgr.Load(ctx, "old")
	if ok {
		t.Error("expected 'old' checkpoint to be removed")
	}
	_, ok, _ = mgr.Load(ctx, "new")
	if !ok {
		t.Error("expected 'new' checkpoint to survive cleanup")
	}
}
