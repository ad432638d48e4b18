package agents

import (
	"context"
	"strings"
	"testing"

	"github.com/tmc/langchaingo/llms"

	"github.com/via-canvas/intelligence-core/agenttools"
	"github.com/via-canvas/intelligence-core/model"
	"github.com/via-canvas/intelligence-core/stream"
)

// scriptedProvider replays one model.CanonicalEvent slice per StreamChat
// call, in order; calls past the end of the script repeat the last entry.
type scriptedProvider struct {
	script [][]model.CanonicalEvent
	calls  int
}

func (p *scriptedProvider) GenerateContent(context.Context, []llms.MessageContent, ...llms.CallOption) (*llms.ContentResponse, error) {
	return &llms.ContentResponse{}, nil
}
func (p *scriptedProvider) Call(context.Context, string, ...llms.CallOption) (string, error) {
	return "", nil
}
func (p *scriptedProvider) Embed(context.Context, string) ([]float32, error) { return nil, nil }
func (p *scriptedProvider) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, nil
}
func (p *scriptedProvider) StreamChat(context.Context, []llms.MessageContent, []llms.Tool) (<-chan model.CanonicalEvent, error) {
	idx := p.calls
	if idx >= len(p.script) {
		idx = len(p.script) - 1
	}
	p.calls++
	events := p.script[idx]
	ch := make(chan model.CanonicalEvent, len(events))
	for _, e := range events {
		ch <- e
	}
	close(ch)
	return ch, nil
}

type echoArgs struct {
	Input string `json:"input"`
}

func newEchoTool(name string) agenttools.Tool {
	return agenttools.NewFuncTool(name, "echoes its input", func(_ context.Context, args echoArgs) (string, error) {
		return "tool-result:" + args.Input, nil
	})
}

func drainProcessor(proc *stream.Processor) []stream.Event {
	var got []stream.Event
	for evt := range proc.Events() {
		got = append(got, evt)
	}
	return got
}

func TestToolCallLoopExecutesToolThenReturnsAnswer(t *testing.T) {
	ctx := context.Background()
	provider := &scriptedProvider{script: [][]model.CanonicalEvent{
		{
			{Kind: model.EventMessageStop, ToolCalls: []llms.ToolCall{{
				ID: "call-1", Type: "function",
				FunctionCall: &llms.FunctionCall{Name: "echo", Arguments: `{"input":"hi"}`},
			}}},
		},
		{
			{Kind: model.EventContentBlockDelta, Text: "final answer"},
			{Kind: model.EventMessageStop},
		},
	}}

	loop := NewToolCallLoop(provider, []agenttools.Tool{newEchoTool("echo")}, 5)
	proc := stream.NewProcessor(16)
	if err := proc.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	var events []stream.Event
	done := make(chan struct{})
	go func() { events = drainProcessor(proc); close(done) }()

	answer, err := loop.Run(ctx, proc, []llms.MessageContent{
		{Role: llms.ChatMessageTypeHuman, Parts: []llms.ContentPart{llms.TextPart("go")}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if answer != "final answer" {
		t.Errorf("expected final answer text, got %q", answer)
	}

	proc.Complete(ctx, answer, nil)
	<-done

	var sawToolUse, sawToolResult bool
	for _, e := range events {
		if e.Kind == stream.KindToolUse {
			sawToolUse = true
		}
		if e.Kind == stream.KindToolResult {
			sawToolResult = true
			if payload, _ := e.Payload["result"].(string); !strings.Contains(payload, "tool-result") {
				t.Errorf("expected tool_result payload to carry the tool output, got %+v", e.Payload)
			}
		}
	}
	if !sawToolUse || !sawToolResult {
		t.Errorf("expected both tool_use and tool_result events, got %+v", events)
	}
}

func TestToolCallLoopMaxIterationsReached(t *testing.T) {
	ctx := context.Background()
	alwaysToolCall := []model.CanonicalEvent{
		{Kind: model.EventMessageStop, ToolCalls: []llms.ToolCall{{
			ID: "call-x", Type: "function",
			FunctionCall: &llms.FunctionCall{Name: "echo", Arguments: `{}`},
		}}},
	}
	provider := &scriptedProvider{script: [][]model.CanonicalEvent{alwaysToolCall}}

	loop := NewToolCallLoop(provider, []agenttools.Tool{newEchoTool("echo")}, 2)
	proc := stream.NewProcessor(16)
	if err := proc.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	go drainProcessor(proc)

	_, err := loop.Run(ctx, proc, []llms.MessageContent{
		{Role: llms.ChatMessageTypeHuman, Parts: []llms.ContentPart{llms.TextPart("go")}},
	})
	if err == nil {
		t.Fatal("expected an error when the iteration cap is reached")
	}
	if !strings.Contains(err.Error(), "max tool-call iterations") {
		t.Errorf("expected max-iterations error, got %v", err)
	}
	proc.Error(ctx, err.Error())
}
