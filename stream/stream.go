// Package stream normalizes an agent turn's internal event stream into the
// wire-format event grammar consumed by the chat-stream endpoint (spec
// §4.11): init (response|reasoning|tool_use|tool_result|progress)*
// (complete|error). Grounded on graph/listeners.go's StreamEvent/
// channel-based emission shape, adapted from best-effort/droppable
// delivery to lossless delivery since every event here is part of a
// contract the client parses, not a debug trace.
package stream

import (
	"context"
	"fmt"
)

// Kind is one wire event name (spec §4.11).
type Kind string

const (
	KindInit       Kind = "init"
	KindResponse   Kind = "response"
	KindReasoning  Kind = "reasoning"
	KindToolUse    Kind = "tool_use"
	KindToolResult Kind = "tool_result"
	KindProgress   Kind = "progress"
	KindComplete   Kind = "complete"
	KindError      Kind = "error"
)

// Event is one emission on the wire.
type Event struct {
	Kind    Kind
	Payload map[string]any
}

// DictLike and AsDictLike mirror Python's to_dict()/as_dict() convention
// (spec §4.11: "anything with a to_dict/as_dict method used, else str()").
type DictLike interface{ ToDict() map[string]any }
type AsDictLike interface{ AsDict() map[string]any }

// Flatten recursively reduces v to a JSON-serializable shape: maps and
// slices are flattened element-wise, a DictLike/AsDictLike value is
// unwrapped and flattened, and anything else that isn't already a JSON
// primitive is stringified (spec §4.11).
func Flatten(v any) any {
	switch t := v.(type) {
	case nil, bool, string, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64, float32, float64:
		return t
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = Flatten(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = Flatten(val)
		}
		return out
	case DictLike:
		return Flatten(t.ToDict())
	case AsDictLike:
		return Flatten(t.AsDict())
	default:
		return fmt.Sprintf("%v", t)
	}
}

func flattenPayload(payload map[string]any) map[string]any {
	flat, _ := Flatten(payload).(map[string]any)
	return flat
}

// ErrAlreadyTerminated is returned by any emit call after complete/error
// has already been sent.
var ErrAlreadyTerminated = fmt.Errorf("stream: already terminated")

// ErrDuplicateToolUse is returned when the same toolUseId is emitted
// twice (spec §4.11: "each toolUseId appears at most once").
var ErrDuplicateToolUse = fmt.Errorf("stream: duplicate tool_use id")

// ErrUnmatchedToolResult is returned when a tool_result names a
// toolUseId that was never opened, or was already resolved.
var ErrUnmatchedToolResult = fmt.Errorf("stream: tool_result has no matching open tool_use")

// Processor assembles one chat turn's wire event sequence and enforces
// its grammar: init precedes everything else, each tool_use precedes its
// tool_result, and exactly one of complete/error terminates the stream
// (spec §5 "Ordering guarantees").
type Processor struct {
	events   chan Event
	started  bool
	done     bool
	openUses map[string]bool
}

// NewProcessor returns a Processor whose Events channel is closed once a
// terminal event has been sent.
func NewProcessor(buffer int) *Processor {
	if buffer <= 0 {
		buffer = 32
	}
	return &Processor{
		events:   make(chan Event, buffer),
		openUses: make(map[string]bool),
	}
}

// Events is the outgoing wire event channel.
func (p *Processor) Events() <-chan Event { return p.events }

// send blocks until ctx is done or the event is delivered; unlike the
// teacher's debug-trace listener, nothing here is droppable, since every
// event is part of the client-visible grammar rather than a best-effort
// trace.
func (p *Processor) send(ctx context.Context, evt Event) error {
	select {
	case p.events <- evt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Init opens the stream. Must be the first call.
func (p *Processor) Init(ctx context.Context) error {
	if p.started {
		return fmt.Errorf("stream: init already sent")
	}
	p.started = true
	return p.send(ctx, Event{Kind: KindInit})
}

// Response emits one incremental assistant text chunk.
func (p *Processor) Response(ctx context.Context, text string) error {
	if err := p.guardOpen(); err != nil {
		return err
	}
	return p.send(ctx, Event{Kind: KindResponse, Payload: map[string]any{"data": text}})
}

// Reasoning emits an optional "thinking" trace chunk.
func (p *Processor) Reasoning(ctx context.Context, text string) error {
	if err := p.guardOpen(); err != nil {
		return err
	}
	return p.send(ctx, Event{Kind: KindReasoning, Payload: map[string]any{"text": text}})
}

// ToolUse opens toolUseID. Returns ErrDuplicateToolUse if the id was
// already used in this stream.
func (p *Processor) ToolUse(ctx context.Context, toolUseID, name string, input any) error {
	if err := p.guardOpen(); err != nil {
		return err
	}
	if p.openUses[toolUseID] {
		return ErrDuplicateToolUse
	}
	p.openUses[toolUseID] = true
	return p.send(ctx, Event{Kind: KindToolUse, Payload: flattenPayload(map[string]any{
		"toolUseId": toolUseID, "name": name, "input": input,
	})})
}

// ToolResult closes toolUseID with result. Returns ErrUnmatchedToolResult
// if toolUseID was never opened via ToolUse, or was already resolved.
func (p *Processor) ToolResult(ctx context.Context, toolUseID string, result any) error {
	if err := p.guardOpen(); err != nil {
		return err
	}
	if !p.openUses[toolUseID] {
		return ErrUnmatchedToolResult
	}
	delete(p.openUses, toolUseID)
	return p.send(ctx, Event{Kind: KindToolResult, Payload: flattenPayload(map[string]any{
		"toolUseId": toolUseID, "result": result,
	})})
}

// ProgressFields mirrors the progress tick payload shape (spec §4.8/§4.11).
type ProgressFields struct {
	OperationID   string
	OperationType string
	Step          string
	Progress      float64
	Message       string
	CardsCreated  int
	EstimatedSecs *float64
	CanCancel     bool
}

// Progress emits a tick from a long-running tool.
func (p *Processor) Progress(ctx context.Context, f ProgressFields) error {
	if err := p.guardOpen(); err != nil {
		return err
	}
	payload := map[string]any{
		"operation_id": f.OperationID, "operation_type": f.OperationType,
		"step": f.Step, "progress": f.Progress, "message": f.Message,
		"cards_created": f.CardsCreated, "can_cancel": f.CanCancel,
	}
	if f.EstimatedSecs != nil {
		payload["estimated_time"] = *f.EstimatedSecs
	}
	return p.send(ctx, Event{Kind: KindProgress, Payload: payload})
}

// Complete terminates the stream successfully.
func (p *Processor) Complete(ctx context.Context, result any, images []string) error {
	if err := p.terminate(ctx, Event{Kind: KindComplete, Payload: flattenPayload(map[string]any{
		"result": result, "images": toAnySlice(images),
	})}); err != nil {
		return err
	}
	return nil
}

// Error terminates the stream with a failure.
func (p *Processor) Error(ctx context.Context, message string) error {
	return p.terminate(ctx, Event{Kind: KindError, Payload: map[string]any{"message": message}})
}

func (p *Processor) terminate(ctx context.Context, evt Event) error {
	if err := p.guardOpen(); err != nil {
		return err
	}
	p.done = true
	defer close(p.events)
	return p.send(ctx, evt)
}

func (p *Processor) guardOpen() error {
	if !p.started {
		return fmt.Errorf("stream: init not sent")
	}
	if p.done {
		return ErrAlreadyTerminated
	}
	return nil
}

func toAnySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
