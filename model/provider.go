// Package model adapts a streaming chat-completion endpoint and a
// text-embedding endpoint into the canonical event sequence and vector
// shape the rest of the core consumes, following the HTTP-adapter-into-
// llms.Model pattern of llms/ernie.
package model

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"
	"github.com/tmc/langchaingo/llms"

	"github.com/via-canvas/intelligence-core/log"
)

// EventKind enumerates the canonical chat-completion event sequence:
// messageStart -> contentBlockStart -> contentBlockDelta* -> contentBlockStop
// -> messageStop. reasoningDelta is a separate, optional track.
type EventKind string

const (
	EventMessageStart      EventKind = "messageStart"
	EventContentBlockStart EventKind = "contentBlockStart"
	EventContentBlockDelta EventKind = "contentBlockDelta"
	EventContentBlockStop  EventKind = "contentBlockStop"
	EventReasoningDelta    EventKind = "reasoningDelta"
	EventMessageStop       EventKind = "messageStop"
)

// CanonicalEvent is one tick of the normalized provider stream.
type CanonicalEvent struct {
	Kind       EventKind
	Text       string
	StopReason string
	ToolCalls  []llms.ToolCall
	Err        error
}

// ErrEmptyResponse is returned when the provider terminates a stream with
// no content and no tool calls.
var ErrEmptyResponse = errors.New("model: empty response")

// Provider is the uniform surface the agents and ragstore layers consume.
// It also satisfies llms.Model so it can be passed directly to any
// langchaingo-shaped helper (e.g. prebuilt react-agent style loops).
type Provider interface {
	llms.Model

	StreamChat(ctx context.Context, messages []llms.MessageContent, tools []llms.Tool) (<-chan CanonicalEvent, error)
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Config configures the OpenAI-backed provider.
type Config struct {
	APIKey         string
	BaseURL        string
	ChatModel      string
	EmbeddingModel string
	EmbeddingDim   int
}

// OpenAIProvider backs Provider with github.com/sashabaranov/go-openai.
type OpenAIProvider struct {
	client *openai.Client
	cfg    Config
	logger log.Logger
}

var _ Provider = (*OpenAIProvider)(nil)

// New returns an OpenAIProvider. cfg.EmbeddingDim defaults to 768 (spec §6)
// when zero.
func New(cfg Config, logger log.Logger) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("model: empty API key")
	}
	if cfg.EmbeddingDim == 0 {
		cfg.EmbeddingDim = 768
	}
	if cfg.ChatModel == "" {
		cfg.ChatModel = openai.GPT4oMini
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = string(openai.AdaEmbeddingV2)
	}
	if logger == nil {
		logger = log.NewDefaultLogger(log.LogLevelInfo)
	}

	oaCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oaCfg.BaseURL = cfg.BaseURL
	}

	return &OpenAIProvider{
		client: openai.NewClientWithConfig(oaCfg),
		cfg:    cfg,
		logger: logger,
	}, nil
}

// Call implements llms.Model.
func (p *OpenAIProvider) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, p, prompt, options...)
}

// GenerateContent implements llms.Model by running a non-streaming (from
// the caller's perspective) completion; internally it always streams so
// StreamChat and GenerateContent share one code path, matching the
// StreamingFunc-as-option shape of llms/ernie/client.
func (p *OpenAIProvider) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := &llms.CallOptions{}
	for _, opt := range options {
		opt(opts)
	}

	req := p.buildRequest(messages, opts)

	stream, err := p.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("model: create stream: %w", err)
	}
	defer stream.Close()

	var (
		content   []byte
		toolCalls []llms.ToolCall
		stopReas  string
	)
	pending := map[int]*llms.ToolCall{}
	pendingOrder := []int{}

	for {
		chunk, err := stream.Recv()
		if err != nil {
			break
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]
		delta := choice.Delta

		if delta.Content != "" {
			content = append(content, delta.Content...)
			if opts.StreamingFunc != nil {
				if err := opts.StreamingFunc(ctx, []byte(delta.Content)); err != nil {
					return nil, err
				}
			}
		}

		for _, tc := range delta.ToolCalls {
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}
			cur, ok := pending[idx]
			if !ok {
				cur = &llms.ToolCall{ID: tc.ID, Type: string(tc.Type), FunctionCall: &llms.FunctionCall{}}
				pending[idx] = cur
				pendingOrder = append(pendingOrder, idx)
			}
			if tc.ID != "" {
				cur.ID = tc.ID
			}
			if tc.Function.Name != "" {
				cur.FunctionCall.Name += tc.Function.Name
			}
			cur.FunctionCall.Arguments += tc.Function.Arguments
		}

		if choice.FinishReason != "" {
			stopReas = string(choice.FinishReason)
		}
	}

	for _, idx := range pendingOrder {
		toolCalls = append(toolCalls, *pending[idx])
	}

	if len(content) == 0 && len(toolCalls) == 0 {
		return nil, ErrEmptyResponse
	}
	if stopReas == "" {
		stopReas = "stop"
	}

	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{
			{
				Content:    string(content),
				StopReason: stopReas,
				ToolCalls:  toolCalls,
			},
		},
	}, nil
}

// StreamChat fans GenerateContent's StreamingFunc callback out to the
// canonical messageStart/contentBlockDelta/.../messageStop sequence.
func (p *OpenAIProvider) StreamChat(ctx context.Context, messages []llms.MessageContent, tools []llms.Tool) (<-chan CanonicalEvent, error) {
	events := make(chan CanonicalEvent, 16)

	go func() {
		defer close(events)

		events <- CanonicalEvent{Kind: EventMessageStart}
		events <- CanonicalEvent{Kind: EventContentBlockStart}

		streamFn := func(_ context.Context, chunk []byte) error {
			if len(chunk) == 0 {
				return nil
			}
			events <- CanonicalEvent{Kind: EventContentBlockDelta, Text: string(chunk)}
			return nil
		}

		opts := []llms.CallOption{llms.WithStreamingFunc(streamFn)}
		if len(tools) > 0 {
			opts = append(opts, llms.WithTools(tools))
		}

		resp, err := p.GenerateContent(ctx, messages, opts...)
		events <- CanonicalEvent{Kind: EventContentBlockStop}

		if err != nil {
			events <- CanonicalEvent{Kind: EventMessageStop, StopReason: "error", Err: err}
			return
		}

		var stopReason string
		var toolCalls []llms.ToolCall
		if len(resp.Choices) > 0 {
			stopReason = resp.Choices[0].StopReason
			toolCalls = resp.Choices[0].ToolCalls
		}
		events <- CanonicalEvent{Kind: EventMessageStop, StopReason: stopReason, ToolCalls: toolCalls}
	}()

	return events, nil
}

// Embed returns the embedding for text, falling back to a deterministic
// pseudo-vector derived from the text's hash when the provider errors, so
// callers always continue (spec §6, §7).
func (p *OpenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds a batch, substituting a deterministic fallback vector
// per-input on provider failure rather than failing the whole batch.
func (p *OpenAIProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input: texts,
		Model: openai.EmbeddingModel(p.cfg.EmbeddingModel),
	})
	if err != nil {
		p.logger.Warn("model: embedding provider failed, using fallback vectors: %v", err)
		out := make([][]float32, len(texts))
		for i, t := range texts {
			out[i] = FallbackVector(t, p.cfg.EmbeddingDim)
		}
		return out, nil
	}

	out := make([][]float32, len(texts))
	for i := range texts {
		if i < len(resp.Data) {
			out[i] = resp.Data[i].Embedding
		} else {
			out[i] = FallbackVector(texts[i], p.cfg.EmbeddingDim)
		}
	}
	return out, nil
}

// FallbackVector derives a deterministic unit-ish vector from text's
// SHA-256 digest so repeated calls for the same text are stable and two
// different texts are (with high probability) distinct, without calling
// out to any provider.
func FallbackVector(text string, dim int) []float32 {
	if dim <= 0 {
		dim = 768
	}
	sum := sha256.Sum256([]byte(text))
	out := make([]float32, dim)
	for i := range out {
		// Walk the digest cyclically, 4 bytes at a time, to fill dim.
		off := (i * 4) % len(sum)
		var b [4]byte
		for j := 0; j < 4; j++ {
			b[j] = sum[(off+j)%len(sum)]
		}
		v := binary.BigEndian.Uint32(b[:])
		out[i] = (float32(v%2000) - 1000.0) / 1000.0
	}
	return out
}

func (p *OpenAIProvider) buildRequest(messages []llms.MessageContent, opts *llms.CallOptions) openai.ChatCompletionRequest {
	chatMsgs := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		role := roleFor(msg.Role)
		var text string
		for _, part := range msg.Parts {
			if tc, ok := part.(llms.TextContent); ok {
				text += tc.Text
			}
		}
		chatMsgs = append(chatMsgs, openai.ChatCompletionMessage{Role: role, Content: text})
	}

	model := p.cfg.ChatModel
	if opts.Model != "" {
		model = opts.Model
	}

	req := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    chatMsgs,
		Temperature: float32(opts.Temperature),
		TopP:        float32(opts.TopP),
		Stream:      true,
	}
	if opts.MaxTokens > 0 {
		req.MaxTokens = opts.MaxTokens
	}
	for _, t := range opts.Tools {
		if t.Function == nil {
			continue
		}
		req.Tools = append(req.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Function.Name,
				Description: t.Function.Description,
				Parameters:  t.Function.Parameters,
			},
		})
	}
	return req
}

func roleFor(t llms.ChatMessageType) string {
	switch t {
	case llms.ChatMessageTypeSystem:
		return openai.ChatMessageRoleSystem
	case llms.ChatMessageTypeAI:
		return openai.ChatMessageRoleAssistant
	case llms.ChatMessageTypeTool:
		return openai.ChatMessageRoleTool
	default:
		return openai.ChatMessageRoleUser
	}
}
