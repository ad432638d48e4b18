package agents

import (
	"context"

	"github.com/tmc/langchaingo/llms"

	"github.com/via-canvas/intelligence-core/agenttools"
	"github.com/via-canvas/intelligence-core/model"
	"github.com/via-canvas/intelligence-core/stream"
)

// Specialist is one of the four domain agents (spec §4.10): a fixed
// system prompt plus a bounded tool-call loop over its own tool subset.
type Specialist struct {
	Name         string
	Description  string
	systemPrompt string
	loop         *ToolCallLoop
}

// NewSpecialist builds a Specialist over toolset, with maxIterations <=
// 0 defaulting to DefaultMaxIterations.
func NewSpecialist(name, description, systemPrompt string, provider model.Provider, toolset []agenttools.Tool, maxIterations int) *Specialist {
	return &Specialist{
		Name:         name,
		Description:  description,
		systemPrompt: systemPrompt,
		loop:         NewToolCallLoop(provider, toolset, maxIterations),
	}
}

// Handle runs userMessage (plus any prior turn history) through the
// specialist's loop, streaming every event onto proc, and returns its
// final answer text.
func (s *Specialist) Handle(ctx context.Context, proc *stream.Processor, history []llms.MessageContent, userMessage string) (string, error) {
	messages := make([]llms.MessageContent, 0, len(history)+2)
	messages = append(messages, llms.MessageContent{
		Role:  llms.ChatMessageTypeSystem,
		Parts: []llms.ContentPart{llms.TextPart(s.systemPrompt)},
	})
	messages = append(messages, history...)
	messages = append(messages, llms.MessageContent{
		Role:  llms.ChatMessageTypeHuman,
		Parts: []llms.ContentPart{llms.TextPart(userMessage)},
	})
	return s.loop.Run(ctx, proc, messages)
}

// NewContentExtractionSpecialist exposes the URL-extraction and
// card-growth tools (spec §4.10).
func NewContentExtractionSpecialist(d agenttools.Deps, provider model.Provider) *Specialist {
	return NewSpecialist(
		"content-extraction",
		"Extracts content from URLs and grows/places/connects the resulting cards.",
		"You are the content-extraction specialist for a mind-mapping canvas. "+
			"When given a URL, extract it into cards. Use your tools to grow, place, and connect cards as needed.",
		provider,
		[]agenttools.Tool{
			agenttools.NewExtractURLContentTool(d),
			agenttools.NewGrowCardContentTool(d),
			agenttools.NewFindSimilarCardsTool(d),
			agenttools.NewSuggestCardPlacementTool(d),
			agenttools.NewCreateIntelligentConnectionsTool(d),
		},
		DefaultMaxIterations,
	)
}

// NewKnowledgeGraphSpecialist exposes similarity, placement, connection,
// categorization, growth, merge, and conflict-detection tools (spec
// §4.10).
func NewKnowledgeGraphSpecialist(d agenttools.Deps, provider model.Provider) *Specialist {
	return NewSpecialist(
		"knowledge-graph",
		"Maintains the knowledge graph: similarity, categorization, connections, merges, and conflict detection.",
		"You are the knowledge-graph specialist for a mind-mapping canvas. "+
			"Use your tools to classify, connect, grow, merge, and audit cards. Never auto-merge on a mere duplicate flag — only on explicit instruction.",
		provider,
		[]agenttools.Tool{
			agenttools.NewFindSimilarCardsTool(d),
			agenttools.NewSuggestCardPlacementTool(d),
			agenttools.NewCreateIntelligentConnectionsTool(d),
			agenttools.NewCategorizeCardTool(d),
			agenttools.NewGrowCardContentTool(d),
			agenttools.NewMergeCardsTool(d),
			agenttools.NewDetectConflictsTool(d),
		},
		DefaultMaxIterations,
	)
}

// NewLearningAssistantSpecialist exposes the learning-assistant tool set
// plus the deep-research pipeline (spec §4.10).
func NewLearningAssistantSpecialist(d agenttools.Deps, provider model.Provider) *Specialist {
	return NewSpecialist(
		"learning-assistant",
		"Helps a learner understand canvas content: simplification, examples, gap analysis, Q&A, and deep research.",
		"You are the learning-assistant specialist for a mind-mapping canvas. "+
			"Use your tools to simplify, explain, question-answer, and research on the learner's behalf.",
		provider,
		[]agenttools.Tool{
			agenttools.NewSimplifyContentTool(d),
			agenttools.NewAnswerCanvasQuestionTool(d),
			agenttools.NewFindRealExamplesTool(d),
			agenttools.NewAnalyzeGapsTool(d),
			agenttools.NewCreateActionPlanTool(d),
			agenttools.NewAcademicSourceSearchTool(d),
			agenttools.NewCounterpointsTool(d),
			agenttools.NewRefreshInformationTool(d),
			agenttools.NewSurprisingConnectionsTool(d),
			agenttools.NewCreateLearningClusterTool(d),
			agenttools.NewDeepResearchTool(d),
		},
		DefaultMaxIterations,
	)
}
