package agenttools

import (
	"context"
	"fmt"
	"strings"

	"github.com/via-canvas/intelligence-core/canvas"
)

// SimplifyContentArgs is simplify_content's argument contract: rewrite a
// card's content at a lower complexity level.
type SimplifyContentArgs struct {
	Content string `json:"content"`
	Level   string `json:"level,omitempty"` // e.g. "beginner", "eli5"
}

// NewSimplifyContentTool asks the model to rewrite content more simply,
// one of the learning-assistant specialist's tools (spec §4.10).
func NewSimplifyContentTool(d Deps) Tool {
	return NewFuncTool("simplify_content",
		"Rewrite the given content so it's easier to understand, at the requested level.",
		func(ctx context.Context, args SimplifyContentArgs) (string, error) {
			level := args.Level
			if level == "" {
				level = "beginner"
			}
			prompt := fmt.Sprintf("Rewrite the following at a %s level, keeping the core meaning:\n\n%s", level, args.Content)
			out, err := d.Provider.Call(ctx, prompt)
			if err != nil {
				return "", fmt.Errorf("simplify_content: %w", err)
			}
			return strings.TrimSpace(out), nil
		})
}

// AnswerCanvasQuestionArgs is the conversational canvas Q&A tool's
// argument contract (spec §4.10: "conversational canvas Q&A using RAG
// context").
type AnswerCanvasQuestionArgs struct {
	CanvasID string `json:"canvas_id"`
	Question string `json:"question"`
	TopK     int    `json:"top_k,omitempty"`
}

// AnswerCanvasQuestionResult carries the answer plus the cards it cites.
type AnswerCanvasQuestionResult struct {
	Answer  string   `json:"answer"`
	CardIDs []string `json:"card_ids"`
}

// NewAnswerCanvasQuestionTool answers a question about a canvas by
// retrieving RAG context (ragstore.Store.RetrieveContext) and asking the
// model to answer grounded in it, citing the contributing card ids.
func NewAnswerCanvasQuestionTool(d Deps) Tool {
	return NewFuncTool("answer_canvas_question",
		"Answer a question about this canvas's content, grounded in retrieved context, and return the cards cited.",
		func(ctx context.Context, args AnswerCanvasQuestionArgs) (AnswerCanvasQuestionResult, error) {
			topK := args.TopK
			if topK <= 0 {
				topK = 4
			}
			contextBlock, results, err := d.RAG.RetrieveContext(ctx, args.Question, args.CanvasID, topK, 0.2)
			if err != nil {
				return AnswerCanvasQuestionResult{}, fmt.Errorf("answer_canvas_question: retrieve context: %w", err)
			}

			prompt := fmt.Sprintf(
				"Answer the question using only the context below. If the context doesn't cover it, say so.\n\nContext:\n%s\n\nQuestion: %s",
				contextBlock, args.Question,
			)
			answer, err := d.Provider.Call(ctx, prompt)
			if err != nil {
				return AnswerCanvasQuestionResult{}, fmt.Errorf("answer_canvas_question: generate: %w", err)
			}

			cardIDs := make([]string, 0, len(results))
			for _, r := range results {
				cardIDs = append(cardIDs, r.EntityID)
			}
			return AnswerCanvasQuestionResult{Answer: strings.TrimSpace(answer), CardIDs: cardIDs}, nil
		})
}

// FindRealExamplesArgs is find_real_examples' argument contract.
type FindRealExamplesArgs struct {
	Topic string `json:"topic"`
}

// NewFindRealExamplesTool asks the model for concrete, real-world
// examples of a concept (spec §4.10).
func NewFindRealExamplesTool(d Deps) Tool {
	return NewFuncTool("find_real_examples",
		"Find concrete, real-world examples that illustrate the given topic.",
		func(ctx context.Context, args FindRealExamplesArgs) (string, error) {
			out, err := d.Provider.Call(ctx, fmt.Sprintf(
				"List real-world examples that illustrate: %s", args.Topic))
			if err != nil {
				return "", fmt.Errorf("find_real_examples: %w", err)
			}
			return strings.TrimSpace(out), nil
		})
}

// AnalyzeGapsArgs is analyze_gaps' argument contract: find the holes in
// a learner's current understanding of a canvas's content.
type AnalyzeGapsArgs struct {
	CanvasID string `json:"canvas_id"`
	Topic    string `json:"topic"`
}

// NewAnalyzeGapsTool retrieves RAG context for topic and asks the model
// to name what's missing from it (spec §4.10 "analyze gaps").
func NewAnalyzeGapsTool(d Deps) Tool {
	return NewFuncTool("analyze_gaps",
		"Identify gaps in the canvas's current coverage of a topic.",
		func(ctx context.Context, args AnalyzeGapsArgs) (string, error) {
			contextBlock, _, err := d.RAG.RetrieveContext(ctx, args.Topic, args.CanvasID, 5, 0.2)
			if err != nil {
				return "", fmt.Errorf("analyze_gaps: retrieve context: %w", err)
			}
			prompt := fmt.Sprintf(
				"Topic: %s\n\nExisting canvas coverage:\n%s\n\nWhat important gaps remain uncovered?",
				args.Topic, contextBlock,
			)
			out, err := d.Provider.Call(ctx, prompt)
			if err != nil {
				return "", fmt.Errorf("analyze_gaps: %w", err)
			}
			return strings.TrimSpace(out), nil
		})
}

// CreateActionPlanArgs is create_action_plan's argument contract.
type CreateActionPlanArgs struct {
	Goal string `json:"goal"`
}

// NewCreateActionPlanTool asks the model for a concrete, ordered study
// plan toward a learning goal (spec §4.10).
func NewCreateActionPlanTool(d Deps) Tool {
	return NewFuncTool("create_action_plan",
		"Produce a concrete, ordered action plan toward a learning goal.",
		func(ctx context.Context, args CreateActionPlanArgs) (string, error) {
			out, err := d.Provider.Call(ctx, fmt.Sprintf(
				"Produce a concrete, ordered action plan to achieve this learning goal:\n\n%s", args.Goal))
			if err != nil {
				return "", fmt.Errorf("create_action_plan: %w", err)
			}
			return strings.TrimSpace(out), nil
		})
}

// AcademicSourceSearchArgs is academic_source_search's argument contract.
type AcademicSourceSearchArgs struct {
	Query string `json:"query"`
}

// NewAcademicSourceSearchTool looks for academically-grounded material on
// query. When d.WebSearch is configured it searches the live web first
// and asks the model to extract the established facts and sources from
// those results; otherwise it falls back to the model's own knowledge,
// prompted to foreground citable, established facts over opinion.
func NewAcademicSourceSearchTool(d Deps) Tool {
	return NewFuncTool("academic_source_search",
		"Search for academically-grounded material on a query, preferring a live web search when configured.",
		func(ctx context.Context, args AcademicSourceSearchArgs) (string, error) {
			if d.WebSearch != nil {
				raw, err := d.WebSearch.Search(ctx, args.Query)
				if err == nil {
					out, err := d.Provider.Call(ctx, fmt.Sprintf(
						"Extract the established facts and their sources relevant to %q from these search results:\n\n%s",
						args.Query, raw))
					if err == nil {
						return strings.TrimSpace(out), nil
					}
				}
			}
			out, err := d.Provider.Call(ctx, fmt.Sprintf(
				"Cite established, academically-grounded facts and sources (if known) relevant to: %s", args.Query))
			if err != nil {
				return "", fmt.Errorf("academic_source_search: %w", err)
			}
			return strings.TrimSpace(out), nil
		})
}

// CounterpointsArgs is counterpoints' argument contract.
type CounterpointsArgs struct {
	Claim string `json:"claim"`
}

// NewCounterpointsTool asks the model to argue the other side of a claim
// (spec §4.10).
func NewCounterpointsTool(d Deps) Tool {
	return NewFuncTool("counterpoints",
		"Produce well-reasoned counterpoints or caveats to a claim.",
		func(ctx context.Context, args CounterpointsArgs) (string, error) {
			out, err := d.Provider.Call(ctx, fmt.Sprintf(
				"Give well-reasoned counterpoints or important caveats to this claim:\n\n%s", args.Claim))
			if err != nil {
				return "", fmt.Errorf("counterpoints: %w", err)
			}
			return strings.TrimSpace(out), nil
		})
}

// RefreshInformationArgs is refresh_information's argument contract:
// regenerate a card's content with a note about what might be outdated.
type RefreshInformationArgs struct {
	CanvasID string `json:"canvas_id"`
	CardID   string `json:"card_id"`
}

// RefreshInformationResult reports the refreshed content.
type RefreshInformationResult struct {
	CardID     string `json:"card_id"`
	NewContent string `json:"new_content"`
}

// NewRefreshInformationTool asks the model to flag anything in a card
// that may be outdated and rewrite it accordingly, persisting the result
// (spec §4.10 "information refresh").
func NewRefreshInformationTool(d Deps) Tool {
	return NewFuncTool("refresh_information",
		"Review a card's content for anything likely outdated and rewrite it with current best understanding.",
		func(ctx context.Context, args RefreshInformationArgs) (RefreshInformationResult, error) {
			card, err := d.Canvas.GetCard(ctx, args.CanvasID, args.CardID)
			if err != nil {
				return RefreshInformationResult{}, fmt.Errorf("refresh_information: %w", err)
			}
			prompt := fmt.Sprintf(
				"Review the following for anything likely out of date, and rewrite it reflecting current best understanding. Note what changed.\n\nTitle: %s\n\nContent:\n%s",
				card.Title, card.Content,
			)
			refreshed, err := d.Provider.Call(ctx, prompt)
			if err != nil {
				return RefreshInformationResult{}, fmt.Errorf("refresh_information: generate: %w", err)
			}
			refreshed = strings.TrimSpace(refreshed)
			if _, err := d.Canvas.UpdateCard(ctx, args.CanvasID, args.CardID, canvasContentPatch(refreshed)); err != nil {
				return RefreshInformationResult{}, fmt.Errorf("refresh_information: save: %w", err)
			}
			return RefreshInformationResult{CardID: args.CardID, NewContent: refreshed}, nil
		})
}

// SurprisingConnectionsArgs is surprising_connections' argument contract.
type SurprisingConnectionsArgs struct {
	CardID string `json:"card_id"`
}

// NewSurprisingConnectionsTool looks at a card's moderately (not
// obviously) similar neighbors and asks the model to articulate the
// non-obvious link (spec §4.10).
func NewSurprisingConnectionsTool(d Deps) Tool {
	return NewFuncTool("surprising_connections",
		"Surface a non-obvious connection between a card and a moderately similar neighbor.",
		func(ctx context.Context, args SurprisingConnectionsArgs) (string, error) {
			neighbors, err := d.KG.Backend().FindSimilarNodes(ctx, args.CardID, 10, 0.15)
			if err != nil {
				return "", fmt.Errorf("surprising_connections: %w", err)
			}
			node, ok, err := d.KG.Backend().GetNode(ctx, args.CardID)
			if err != nil || !ok {
				return "", fmt.Errorf("surprising_connections: card not found")
			}

			var pick string
			lowest := 1.0
			for _, n := range neighbors {
				if n.Score < lowest {
					lowest, pick = n.Score, n.ID
				}
			}
			if pick == "" {
				return "No sufficiently distinct connection found.", nil
			}
			other, ok, err := d.KG.Backend().GetNode(ctx, pick)
			if err != nil || !ok {
				return "", fmt.Errorf("surprising_connections: neighbor not found")
			}

			prompt := fmt.Sprintf(
				"Explain the non-obvious, surprising connection between these two ideas:\n\nA: %s\n\nB: %s",
				node.Content, other.Content,
			)
			out, err := d.Provider.Call(ctx, prompt)
			if err != nil {
				return "", fmt.Errorf("surprising_connections: %w", err)
			}
			return strings.TrimSpace(out), nil
		})
}

// CreateLearningClusterArgs is create_learning_cluster's argument
// contract: build a set of cards covering a topic's core subtopics,
// without the deep-research pipeline's multi-source review loop.
type CreateLearningClusterArgs struct {
	CanvasID string `json:"canvas_id"`
	Topic    string `json:"topic"`
}

// CreateLearningClusterResult reports the created cluster.
type CreateLearningClusterResult struct {
	ParentCardID string   `json:"parent_card_id"`
	ChildCardIDs []string `json:"child_card_ids"`
}

// NewCreateLearningClusterTool asks the model to name a topic's core
// subtopics, then writes one parent overview card plus one child card
// per subtopic, connected parent-child (spec §4.10 "comprehensive
// learning-cluster creation").
func NewCreateLearningClusterTool(d Deps) Tool {
	return NewFuncTool("create_learning_cluster",
		"Create an overview card plus one child card per core subtopic for a learning topic.",
		func(ctx context.Context, args CreateLearningClusterArgs) (CreateLearningClusterResult, error) {
			overview, err := d.Provider.Call(ctx, fmt.Sprintf(
				"Write a short overview of: %s", args.Topic))
			if err != nil {
				return CreateLearningClusterResult{}, fmt.Errorf("create_learning_cluster: overview: %w", err)
			}
			parent, err := d.Canvas.CreateCard(ctx, canvas.Card{
				CanvasID: args.CanvasID, Title: args.Topic, Content: strings.TrimSpace(overview),
				CardType: canvas.CardTypeRichText, SourceType: canvas.SourceTypeAIGenerated,
			})
			if err != nil {
				return CreateLearningClusterResult{}, fmt.Errorf("create_learning_cluster: create parent: %w", err)
			}

			subtopics, err := decompose(ctx, d, args.Topic)
			if err != nil {
				return CreateLearningClusterResult{ParentCardID: parent.ID}, nil
			}

			var childIDs []string
			for _, sub := range subtopics {
				content, err := d.Provider.Call(ctx, fmt.Sprintf(
					"Explain this subtopic of %q in depth: %s", args.Topic, sub))
				if err != nil {
					continue
				}
				child, err := d.Canvas.CreateCard(ctx, canvas.Card{
					CanvasID: args.CanvasID, Title: sub, Content: strings.TrimSpace(content),
					CardType: canvas.CardTypeRichText, ParentID: parent.ID, SourceType: canvas.SourceTypeAIGenerated,
				})
				if err != nil {
					continue
				}
				if _, err := d.Canvas.CreateConnection(ctx, canvas.Connection{
					CanvasID: args.CanvasID, SourceID: parent.ID, TargetID: child.ID,
					ConnectionType: canvas.ConnectionParentChild,
				}); err != nil {
					continue
				}
				childIDs = append(childIDs, child.ID)
			}

			return CreateLearningClusterResult{ParentCardID: parent.ID, ChildCardIDs: childIDs}, nil
		})
}
