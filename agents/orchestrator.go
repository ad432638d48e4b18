package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/tmc/langchaingo/llms"

	"github.com/via-canvas/intelligence-core/agenttools"
	"github.com/via-canvas/intelligence-core/memory"
	"github.com/via-canvas/intelligence-core/model"
	"github.com/via-canvas/intelligence-core/session"
	"github.com/via-canvas/intelligence-core/stream"
)

// historyWindow caps how many of a long session's messages get passed to
// the model untrimmed; beyond it, relevantHistory picks a topic-relevant
// subset instead of the full backlog.
const historyWindow = 20

// urlPattern detects a bare URL in a chat message, the deterministic
// bypass trigger (spec §4.10 rule 1).
var urlPattern = regexp.MustCompile(`https?://\S+`)

// Orchestrator routes one chat turn to either the URL-extraction
// shortcut or an LLM-picked specialist (spec §4.10). It owns session
// resolution (spec §6's chat-stream endpoint) and wraps every turn in
// the stream.Processor event grammar.
type Orchestrator struct {
	provider   model.Provider
	sessions   session.Store
	content    *Specialist
	knowledge  *Specialist
	learning   *Specialist
	background *BackgroundIntelligenceAgent
}

// NewOrchestrator wires the four specialists (the three chat-routed ones
// plus the background agent) over a shared Deps/Provider.
func NewOrchestrator(d agenttools.Deps, provider model.Provider, sessions session.Store) *Orchestrator {
	return &Orchestrator{
		provider:   provider,
		sessions:   sessions,
		content:    NewContentExtractionSpecialist(d, provider),
		knowledge:  NewKnowledgeGraphSpecialist(d, provider),
		learning:   NewLearningAssistantSpecialist(d, provider),
		background: NewBackgroundIntelligenceAgent(d, provider),
	}
}

// Background exposes the background-intelligence agent so a caller can
// Subscribe it to a bus.Bus at startup.
func (o *Orchestrator) Background() *BackgroundIntelligenceAgent { return o.background }

// HandleTurn runs one chat turn end to end: session resolution, routing,
// and the terminal complete/error event. Returns the resolved session id
// (spec §6: "a newly generated opaque value... when no valid one was
// provided; otherwise the supplied value is echoed").
func (o *Orchestrator) HandleTurn(ctx context.Context, proc *stream.Processor, sessionID, canvasID, message string) (string, error) {
	if err := proc.Init(ctx); err != nil {
		return "", err
	}

	sess, resolvedID, err := o.resolveSession(ctx, sessionID, canvasID)
	if err != nil {
		_ = proc.Error(ctx, err.Error())
		return "", err
	}
	history := historyOf(ctx, sess, message)

	var answer string
	if canvasID != "" && urlPattern.MatchString(message) {
		rawURL := urlPattern.FindString(message)
		if err = proc.Response(ctx, "Extracting "+rawURL+" onto the canvas."); err == nil {
			args, _ := json.Marshal(agenttools.ExtractURLContentArgs{URL: rawURL, CanvasID: canvasID})
			answer = o.content.loop.invoke(ctx, proc, llms.ToolCall{
				ID: "url-shortcut", Type: "function",
				FunctionCall: &llms.FunctionCall{Name: "extract_url_content", Arguments: string(args)},
			})
		}
	} else {
		answer, err = o.route(ctx, proc, history, message)
	}
	if err != nil {
		_ = proc.Error(ctx, err.Error())
		return resolvedID, err
	}

	if o.sessions != nil {
		_, _ = o.sessions.Touch(ctx, resolvedID, canvasID, &session.Message{Role: "user", Content: message})
		_, _ = o.sessions.Touch(ctx, resolvedID, canvasID, &session.Message{Role: "assistant", Content: answer})
	}

	return resolvedID, proc.Complete(ctx, answer, nil)
}

func (o *Orchestrator) resolveSession(ctx context.Context, sessionID, canvasID string) (*session.Session, string, error) {
	if o.sessions == nil {
		return nil, sessionID, nil
	}
	if sessionID != "" {
		if sess, ok, err := o.sessions.Get(ctx, sessionID); err == nil && ok {
			return sess, sess.ID, nil
		}
	}
	sess, err := o.sessions.Create(ctx, canvasID)
	if err != nil {
		return nil, "", fmt.Errorf("agents: create session: %w", err)
	}
	return sess, sess.ID, nil
}

// historyOf converts a session's messages into chat history, trimming a
// long backlog down to historyWindow topic-relevant turns (via
// memory.GraphBasedMemory) instead of handing the model the whole thing.
func historyOf(ctx context.Context, sess *session.Session, currentMessage string) []llms.MessageContent {
	if sess == nil {
		return nil
	}
	msgs := sess.Messages
	if len(msgs) > historyWindow {
		msgs = relevantHistory(ctx, msgs, currentMessage)
	}

	history := make([]llms.MessageContent, 0, len(msgs))
	for _, m := range msgs {
		role := llms.ChatMessageTypeHuman
		if m.Role == "assistant" {
			role = llms.ChatMessageTypeAI
		}
		history = append(history, llms.MessageContent{Role: role, Parts: []llms.ContentPart{llms.TextPart(m.Content)}})
	}
	return history
}

// relevantHistory selects up to historyWindow of msgs most relevant to
// currentMessage, in original order, using memory.GraphBasedMemory's
// keyword-topic traversal over the whole backlog.
func relevantHistory(ctx context.Context, msgs []session.Message, currentMessage string) []session.Message {
	mem := memory.NewGraphBasedMemory(&memory.GraphConfig{TopK: historyWindow})
	byID := make(map[string]session.Message, len(msgs))
	for i, m := range msgs {
		id := fmt.Sprintf("%d", i)
		byID[id] = m
		_ = mem.AddMessage(ctx, &memory.Message{ID: id, Role: m.Role, Content: m.Content, Timestamp: m.Timestamp})
	}

	picked, err := mem.GetContext(ctx, currentMessage)
	if err != nil || len(picked) == 0 {
		return msgs[len(msgs)-historyWindow:]
	}

	ids := make(map[string]bool, len(picked))
	for _, p := range picked {
		ids[p.ID] = true
	}
	out := make([]session.Message, 0, len(picked))
	for i, m := range msgs {
		if ids[fmt.Sprintf("%d", i)] {
			out = append(out, m)
		}
	}
	return out
}

// specialistArgs is the argument shape every specialist-as-tool call
// takes: the message to hand it (defaulting to the turn's own message
// when the model omits it).
type specialistArgs struct {
	Message string `json:"message"`
}

// route asks the model to pick exactly one of the three chat-routed
// specialists as a tool call (the background agent is event-driven and
// is not offered), then delegates the whole turn to it (spec §4.10 rule 2). If
// the model answers directly without picking a tool, that text is used
// as-is rather than treated as an error — the routing instruction is a
// strong preference, not a hard contract the orchestrator can enforce.
func (o *Orchestrator) route(ctx context.Context, proc *stream.Processor, history []llms.MessageContent, message string) (string, error) {
	specialists := map[string]*Specialist{
		o.content.Name:   o.content,
		o.knowledge.Name: o.knowledge,
		o.learning.Name:  o.learning,
	}

	var defs []llms.Tool
	for _, s := range []*Specialist{o.content, o.knowledge, o.learning} {
		defs = append(defs, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        s.Name,
				Description: s.Description,
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"message": map[string]any{"type": "string", "description": "the user's message to hand to this specialist"},
					},
					"required": []string{"message"},
				},
			},
		})
	}

	messages := make([]llms.MessageContent, 0, len(history)+2)
	messages = append(messages, llms.MessageContent{
		Role: llms.ChatMessageTypeSystem,
		Parts: []llms.ContentPart{llms.TextPart(
			"You route a canvas assistant's chat turn to exactly one specialist: " +
				"content-extraction, knowledge-graph, or learning-assistant. Call exactly one.",
		)},
	})
	messages = append(messages, history...)
	messages = append(messages, llms.MessageContent{Role: llms.ChatMessageTypeHuman, Parts: []llms.ContentPart{llms.TextPart(message)}})

	events, err := o.provider.StreamChat(ctx, messages, defs)
	if err != nil {
		return "", fmt.Errorf("agents: route: %w", err)
	}

	var text strings.Builder
	var toolCalls []llms.ToolCall
	var streamErr error
	for evt := range events {
		switch evt.Kind {
		case model.EventContentBlockDelta:
			text.WriteString(evt.Text)
		case model.EventMessageStop:
			toolCalls = evt.ToolCalls
			streamErr = evt.Err
		}
	}
	if streamErr != nil {
		return "", fmt.Errorf("agents: route: %w", streamErr)
	}
	if len(toolCalls) == 0 {
		return strings.TrimSpace(text.String()), nil
	}

	tc := toolCalls[0]
	specialist, ok := specialists[tc.FunctionCall.Name]
	if !ok {
		return "", fmt.Errorf("agents: orchestrator picked unknown specialist %q", tc.FunctionCall.Name)
	}

	var args specialistArgs
	_ = json.Unmarshal([]byte(tc.FunctionCall.Arguments), &args)
	msg := args.Message
	if msg == "" {
		msg = message
	}
	return specialist.Handle(ctx, proc, history, msg)
}
