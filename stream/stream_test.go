package stream

import (
	"context"
	"testing"
	"time"
)

func drain(t *testing.T, p *Processor) []Event {
	t.Helper()
	var got []Event
	deadline := time.After(2 * time.Second)
	for {
		select {
		case evt, ok := <-p.Events():
			if !ok {
				return got
			}
			got = append(got, evt)
		case <-deadline:
			t.Fatal("timed out waiting for events channel to close")
		}
	}
}

func TestInitMustBeFirst(t *testing.T) {
	ctx := context.Background()
	p := NewProcessor(8)
	if err := p.Response(ctx, "too early"); err == nil {
		t.Fatal("expected an error calling Response before Init")
	}
	if err := p.Init(ctx); err != nil {
		t.Fatalf("unexpected error on Init: %v", err)
	}
	if err := p.Init(ctx); err == nil {
		t.Fatal("expected an error calling Init twice")
	}
}

func TestFullSequenceEndsWithExactlyOneComplete(t *testing.T) {
	ctx := context.Background()
	p := NewProcessor(16)

	if err := p.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := p.Reasoning(ctx, "thinking..."); err != nil {
		t.Fatalf("Reasoning: %v", err)
	}
	if err := p.ToolUse(ctx, "call-1", "extract_url_content", map[string]any{"url": "https://example.com"}); err != nil {
		t.Fatalf("ToolUse: %v", err)
	}
	if err := p.ToolResult(ctx, "call-1", map[string]any{"title": "Example"}); err != nil {
		t.Fatalf("ToolResult: %v", err)
	}
	if err := p.Response(ctx, "Here's a summary."); err != nil {
		t.Fatalf("Response: %v", err)
	}
	if err := p.Complete(ctx, "Here's a summary.", nil); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	events := drain(t, p)
	if events[0].Kind != KindInit {
		t.Fatalf("expected first event to be init, got %s", events[0].Kind)
	}
	last := events[len(events)-1]
	if last.Kind != KindComplete {
		t.Fatalf("expected last event to be complete, got %s", last.Kind)
	}
	terminalCount := 0
	for _, evt := range events {
		if evt.Kind == KindComplete || evt.Kind == KindError {
			terminalCount++
		}
	}
	if terminalCount != 1 {
		t.Fatalf("expected exactly one terminal event, got %d", terminalCount)
	}
}

func TestToolUseMustPrecedeItsToolResult(t *testing.T) {
	ctx := context.Background()
	p := NewProcessor(8)
	_ = p.Init(ctx)

	if err := p.ToolResult(ctx, "never-opened", "x"); err != ErrUnmatchedToolResult {
		t.Fatalf("expected ErrUnmatchedToolResult, got %v", err)
	}
}

func TestDuplicateToolUseIDRejected(t *testing.T) {
	ctx := context.Background()
	p := NewProcessor(8)
	_ = p.Init(ctx)

	if err := p.ToolUse(ctx, "call-1", "grow_card_content", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := p.ToolUse(ctx, "call-1", "grow_card_content", nil); err != ErrDuplicateToolUse {
		t.Fatalf("expected ErrDuplicateToolUse, got %v", err)
	}
}

func TestNothingEmitsAfterTermination(t *testing.T) {
	ctx := context.Background()
	p := NewProcessor(8)
	_ = p.Init(ctx)
	if err := p.Error(ctx, "boom"); err != nil {
		t.Fatalf("unexpected error on Error: %v", err)
	}
	if err := p.Response(ctx, "too late"); err != ErrAlreadyTerminated {
		t.Fatalf("expected ErrAlreadyTerminated, got %v", err)
	}
}

func TestProgressPayloadIncludesEstimateWhenPresent(t *testing.T) {
	ctx := context.Background()
	p := NewProcessor(8)
	_ = p.Init(ctx)

	est := 12.5
	if err := p.Progress(ctx, ProgressFields{
		OperationID: "op-1", OperationType: "deep_research", Step: "searching",
		Progress: 0.4, Message: "searching sources", CardsCreated: 2,
		EstimatedSecs: &est, CanCancel: true,
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_ = p.Complete(ctx, "done", nil)

	events := drain(t, p)
	var progress Event
	for _, evt := range events {
		if evt.Kind == KindProgress {
			progress = evt
		}
	}
	if progress.Payload["estimated_time"] != 12.5 {
		t.Errorf("expected estimated_time 12.5, got %+v", progress.Payload)
	}
	if progress.Payload["operation_id"] != "op-1" {
		t.Errorf("expected operation_id op-1, got %+v", progress.Payload)
	}
}

type fakeToDict struct{ name string }

func (f fakeToDict) ToDict() map[string]any { return map[string]any{"name": f.name} }

type plainStruct struct{ X int }

func TestFlattenHandlesDictLikeListsAndFallbackStringify(t *testing.T) {
	in := map[string]any{
		"nested": map[string]any{"a": 1},
		"list":   []any{1, fakeToDict{name: "card-1"}, "x"},
		"custom": plainStruct{X: 7},
	}
	out, ok := Flatten(in).(map[string]any)
	if !ok {
		t.Fatalf("expected a map, got %T", Flatten(in))
	}

	nested, ok := out["nested"].(map[string]any)
	if !ok || nested["a"] != 1 {
		t.Errorf("expected nested map preserved, got %+v", out["nested"])
	}

	list, ok := out["list"].([]any)
	if !ok || len(list) != 3 {
		t.Fatalf("expected a 3-element list, got %+v", out["list"])
	}
	dict, ok := list[1].(map[string]any)
	if !ok || dict["name"] != "card-1" {
		t.Errorf("expected ToDict() to be unwrapped, got %+v", list[1])
	}

	if _, isString := out["custom"].(string); !isString {
		t.Errorf("expected a struct with no ToDict/AsDict to be stringified, got %T", out["custom"])
	}
}

func TestComplateImagesDefaultsToEmptySlice(t *testing.T) {
	ctx := context.Background()
	p := NewProcessor(4)
	_ = p.Init(ctx)
	if err := p.Complete(ctx, "result text", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	events := drain(t, p)
	last := events[len(events)-1]
	images, ok := last.Payload["images"].([]any)
	if !ok {
		t.Fatalf("expected images to be a slice, got %T", last.Payload["images"])
	}
	if len(images) != 0 {
		t.Errorf("expected empty images slice, got %+v", images)
	}
}
