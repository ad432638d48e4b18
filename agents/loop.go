// Package agents implements the orchestrator and the four specialist
// agents (content-extraction, knowledge-graph, learning-assistant,
// background-intelligence); the deep-research pipeline they can call is
// an agenttools tool. Grounded on
// prebuilt/react_agent.go's agent/tools node loop and
// graph/state_graph_typed.go's execution engine, generalized from a
// fixed langchaingo tools.Tool set with a single {"input": string}
// schema to agenttools.Tool's real per-tool JSON schemas, streamed
// through stream.Processor instead of returned as a final
// map[string]any.
package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"

	"github.com/via-canvas/intelligence-core/agenttools"
	"github.com/via-canvas/intelligence-core/graph"
	"github.com/via-canvas/intelligence-core/model"
	"github.com/via-canvas/intelligence-core/stream"
)

// DefaultMaxIterations bounds tool-call iterations per turn (spec §6).
const DefaultMaxIterations = 10

// loopState is the state threaded through the compiled graph: the
// conversation so far, the model's pending tool calls, and the turn's
// terminal answer once the model stops asking for tools.
type loopState struct {
	proc       *stream.Processor
	messages   []llms.MessageContent
	toolCalls  []llms.ToolCall
	answer     string
	done       bool
	iterations int
}

// ToolCallLoop drives one specialist's conversation with the model as a
// two-node graph.StateGraph, same shape as react_agent.go's "agent"/
// "tools" loop: stream a completion, execute any requested tool calls,
// append their results, and repeat until the model stops asking for
// tools or maxIterations is reached.
type ToolCallLoop struct {
	provider      model.Provider
	tools         map[string]agenttools.Tool
	defs          []llms.Tool
	maxIterations int
	runnable      *graph.StateRunnable[*loopState]
}

// NewToolCallLoop builds a loop over toolset. maxIterations <= 0 uses
// DefaultMaxIterations.
func NewToolCallLoop(provider model.Provider, toolset []agenttools.Tool, maxIterations int) *ToolCallLoop {
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}
	tools := make(map[string]agenttools.Tool, len(toolset))
	defs := make([]llms.Tool, 0, len(toolset))
	for _, t := range toolset {
		tools[t.Name()] = t
		defs = append(defs, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Schema(),
			},
		})
	}
	l := &ToolCallLoop{provider: provider, tools: tools, defs: defs, maxIterations: maxIterations}

	g := graph.NewStateGraph[*loopState]()
	g.AddNode("agent", "stream a completion and collect any tool calls", l.runAgent)
	g.AddNode("tools", "execute every tool call the agent node requested", l.runTools)
	g.SetEntryPoint("agent")
	g.AddConditionalEdge("agent", func(_ context.Context, s *loopState) string {
		if s.done || len(s.toolCalls) == 0 {
			return graph.END
		}
		return "tools"
	})
	g.AddEdge("tools", "agent")

	runnable, err := g.Compile()
	if err != nil {
		// entryPoint is always set above, so Compile can only fail if
		// this wiring itself regresses.
		panic(fmt.Sprintf("agents: tool-call loop graph: %v", err))
	}
	l.runnable = runnable
	return l
}

// Run streams messages through the model, forwarding response/reasoning
// text onto proc and executing every requested tool call as a
// tool_use/tool_result pair, until the model emits a turn with no tool
// calls (the final answer) or the iteration cap is hit.
func (l *ToolCallLoop) Run(ctx context.Context, proc *stream.Processor, messages []llms.MessageContent) (string, error) {
	final, err := l.runnable.Invoke(ctx, &loopState{proc: proc, messages: messages})
	if err != nil {
		return "", err
	}
	return final.answer, nil
}

// runAgent is the graph's "agent" node: stream one completion, and
// either settle a final answer or record the tool calls the "tools"
// node should run next.
func (l *ToolCallLoop) runAgent(ctx context.Context, s *loopState) (*loopState, error) {
	s.iterations++
	if s.iterations > l.maxIterations {
		return s, fmt.Errorf("agents: max tool-call iterations (%d) reached", l.maxIterations)
	}

	events, err := l.provider.StreamChat(ctx, s.messages, l.defs)
	if err != nil {
		return s, fmt.Errorf("agents: stream chat: %w", err)
	}

	var text strings.Builder
	var toolCalls []llms.ToolCall
	var streamErr error
	for evt := range events {
		switch evt.Kind {
		case model.EventContentBlockDelta:
			text.WriteString(evt.Text)
			if evt.Text != "" {
				if err := s.proc.Response(ctx, evt.Text); err != nil {
					return s, err
				}
			}
		case model.EventReasoningDelta:
			if err := s.proc.Reasoning(ctx, evt.Text); err != nil {
				return s, err
			}
		case model.EventMessageStop:
			toolCalls = evt.ToolCalls
			streamErr = evt.Err
		}
	}
	if streamErr != nil {
		return s, fmt.Errorf("agents: model stream: %w", streamErr)
	}

	if len(toolCalls) == 0 {
		s.answer = strings.TrimSpace(text.String())
		s.done = true
		return s, nil
	}

	aiMsg := llms.MessageContent{Role: llms.ChatMessageTypeAI}
	if text.Len() > 0 {
		aiMsg.Parts = append(aiMsg.Parts, llms.TextPart(text.String()))
	}
	for _, tc := range toolCalls {
		aiMsg.Parts = append(aiMsg.Parts, tc)
	}
	s.messages = append(s.messages, aiMsg)
	s.toolCalls = toolCalls
	return s, nil
}

// runTools is the graph's "tools" node: execute every tool call the
// agent node left pending and append their results as tool messages.
func (l *ToolCallLoop) runTools(ctx context.Context, s *loopState) (*loopState, error) {
	for _, tc := range s.toolCalls {
		result := l.invoke(ctx, s.proc, tc)
		s.messages = append(s.messages, llms.MessageContent{
			Role: llms.ChatMessageTypeTool,
			Parts: []llms.ContentPart{llms.ToolCallResponse{
				ToolCallID: tc.ID, Name: tc.FunctionCall.Name, Content: result,
			}},
		})
	}
	s.toolCalls = nil
	return s, nil
}

// invoke runs one tool call, emitting its tool_use/tool_result pair
// regardless of outcome — an unknown tool or a call error becomes the
// tool_result's content rather than aborting the turn, matching
// react_agent.go's "Error: %v" fallback.
func (l *ToolCallLoop) invoke(ctx context.Context, proc *stream.Processor, tc llms.ToolCall) string {
	args := tc.FunctionCall.Arguments
	if err := proc.ToolUse(ctx, tc.ID, tc.FunctionCall.Name, parseToolInput(args)); err != nil {
		return fmt.Sprintf("error: %v", err)
	}

	tool, ok := l.tools[tc.FunctionCall.Name]
	var result string
	if !ok {
		result = fmt.Sprintf("error: unknown tool %q", tc.FunctionCall.Name)
	} else if out, err := tool.Call(ctx, args); err != nil {
		result = fmt.Sprintf("error: %v", err)
	} else {
		result = out
	}

	_ = proc.ToolResult(ctx, tc.ID, parseToolInput(result))
	return result
}

// parseToolInput best-effort decodes a JSON object/array for a readable
// stream payload; non-JSON or scalar input passes through as the raw
// string, same fallback stream.Flatten itself applies one level up.
func parseToolInput(raw string) any {
	if raw == "" {
		return raw
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	return v
}
