package agenttools

import (
	"context"
	"fmt"
	"strings"

	"github.com/via-canvas/intelligence-core/canvas"
	"github.com/via-canvas/intelligence-core/extract"
)

// ExtractURLContentArgs is extract_url_content's argument contract
// (spec §4.10, content-extraction agent).
type ExtractURLContentArgs struct {
	URL      string `json:"url"`
	CanvasID string `json:"canvas_id"`
	ParentID string `json:"parent_id,omitempty"`
}

// ExtractURLContentResult reports what was created.
type ExtractURLContentResult struct {
	ParentCardID string   `json:"parent_card_id"`
	ChildCardIDs []string `json:"child_card_ids"`
	Title        string   `json:"title"`
}

// NewExtractURLContentTool fetches rawURL via the extraction orchestrator
// and turns the result into a parent card plus section/example/pattern
// children on the graph (spec §4.7's "card construction from an
// extraction"), grounded on extract.Orchestrator.ExtractURL and
// extract.CardBuilder.Build.
func NewExtractURLContentTool(d Deps) Tool {
	return NewFuncTool("extract_url_content",
		"Fetch a URL and create a parent card plus section/example child cards from its content.",
		func(ctx context.Context, args ExtractURLContentArgs) (ExtractURLContentResult, error) {
			extraction, err := d.Extractor.ExtractURL(ctx, args.URL)
			if err != nil {
				return ExtractURLContentResult{}, fmt.Errorf("extract_url_content: %w", err)
			}
			if !extraction.Success {
				return ExtractURLContentResult{}, fmt.Errorf("extract_url_content: extraction failed: %s", extraction.Error)
			}

			payload := extract.Payload{
				Title:       extraction.Title,
				Description: extraction.Text,
				CanvasID:    args.CanvasID,
				ParentID:    args.ParentID,
			}
			built, err := d.CardBuilder.Build(ctx, payload)
			if err != nil {
				return ExtractURLContentResult{}, fmt.Errorf("extract_url_content: build cards: %w", err)
			}

			return ExtractURLContentResult{
				ParentCardID: built.ParentCardID,
				ChildCardIDs: built.ChildCardIDs,
				Title:        extraction.Title,
			}, nil
		})
}

// GrowCardContentArgs is grow_card_content's argument contract: expand a
// card's content with more depth/examples.
type GrowCardContentArgs struct {
	CanvasID  string `json:"canvas_id"`
	CardID    string `json:"card_id"`
	Direction string `json:"direction,omitempty"` // e.g. "add examples", "go deeper", "simplify"
}

// GrowCardContentResult carries the expanded content back for the caller
// to apply (the tool itself also writes it through canvas.Store).
type GrowCardContentResult struct {
	CardID     string `json:"card_id"`
	NewContent string `json:"new_content"`
}

// NewGrowCardContentTool asks the model to expand a card's content and
// persists the result through the canvas CRUD contract.
func NewGrowCardContentTool(d Deps) Tool {
	return NewFuncTool("grow_card_content",
		"Expand a card's content with more depth, examples, or detail, and save it back to the canvas.",
		func(ctx context.Context, args GrowCardContentArgs) (GrowCardContentResult, error) {
			card, err := d.Canvas.GetCard(ctx, args.CanvasID, args.CardID)
			if err != nil {
				return GrowCardContentResult{}, fmt.Errorf("grow_card_content: %w", err)
			}

			direction := args.Direction
			if direction == "" {
				direction = "add more depth and a concrete example"
			}
			prompt := fmt.Sprintf(
				"Expand the following card content. Direction: %s.\n\nTitle: %s\n\nContent:\n%s\n\nReturn only the expanded content.",
				direction, card.Title, card.Content,
			)
			grown, err := d.Provider.Call(ctx, prompt)
			if err != nil {
				return GrowCardContentResult{}, fmt.Errorf("grow_card_content: generate: %w", err)
			}
			grown = strings.TrimSpace(grown)

			if _, err := d.Canvas.UpdateCard(ctx, args.CanvasID, args.CardID, canvasContentPatch(grown)); err != nil {
				return GrowCardContentResult{}, fmt.Errorf("grow_card_content: save: %w", err)
			}
			return GrowCardContentResult{CardID: args.CardID, NewContent: grown}, nil
		})
}

// FindSimilarCardsArgs is find_similar_cards' argument contract.
type FindSimilarCardsArgs struct {
	CardID string  `json:"card_id"`
	TopK   int     `json:"top_k,omitempty"`
	MinSim float64 `json:"min_similarity,omitempty"`
}

// SimilarCard is one scored match.
type SimilarCard struct {
	CardID string  `json:"card_id"`
	Score  float64 `json:"score"`
}

// NewFindSimilarCardsTool surfaces the knowledge graph's precomputed
// "similar" edges for a card (spec §4.3), grounded on
// kgraph.Backend.FindSimilarNodes.
func NewFindSimilarCardsTool(d Deps) Tool {
	return NewFuncTool("find_similar_cards",
		"List cards the knowledge graph considers similar to the given card, most similar first.",
		func(ctx context.Context, args FindSimilarCardsArgs) ([]SimilarCard, error) {
			topK := args.TopK
			if topK <= 0 {
				topK = 5
			}
			scored, err := d.KG.Backend().FindSimilarNodes(ctx, args.CardID, topK, args.MinSim)
			if err != nil {
				return nil, fmt.Errorf("find_similar_cards: %w", err)
			}
			out := make([]SimilarCard, len(scored))
			for i, s := range scored {
				out[i] = SimilarCard{CardID: s.ID, Score: s.Score}
			}
			return out, nil
		})
}

// SuggestCardPlacementArgs is suggest_card_placement's argument contract:
// given draft content not yet on the canvas, suggest where it belongs.
type SuggestCardPlacementArgs struct {
	Content  string   `json:"content"`
	Title    string   `json:"title"`
	Keywords []string `json:"keywords,omitempty"`
}

// PlacementSuggestion reports the classifier's placement decision.
type PlacementSuggestion struct {
	Action       string  `json:"action"`
	CategoryID   string  `json:"category_id,omitempty"`
	CategoryName string  `json:"category_name,omitempty"`
	Confidence   float64 `json:"confidence"`
	Reasoning    string  `json:"reasoning"`
}

// NewSuggestCardPlacementTool runs the dynamic category classifier over
// draft content (spec §4.4) to suggest where a new card should land.
func NewSuggestCardPlacementTool(d Deps) Tool {
	return NewFuncTool("suggest_card_placement",
		"Suggest which existing category a new card belongs in, or whether it needs a new one.",
		func(ctx context.Context, args SuggestCardPlacementArgs) (PlacementSuggestion, error) {
			embedding, err := d.Provider.Embed(ctx, args.Title+"\n\n"+args.Content)
			if err != nil {
				return PlacementSuggestion{}, fmt.Errorf("suggest_card_placement: embed: %w", err)
			}
			decision, err := d.Classifier.Classify(ctx, args.Content, args.Title, embedding, args.Keywords, 5)
			if err != nil {
				return PlacementSuggestion{}, fmt.Errorf("suggest_card_placement: %w", err)
			}
			return PlacementSuggestion{
				Action: string(decision.Action), CategoryID: decision.CategoryID,
				CategoryName: decision.CategoryName, Confidence: decision.Confidence,
				Reasoning: decision.Reasoning,
			}, nil
		})
}

// CreateIntelligentConnectionsArgs is create_intelligent_connections'
// argument contract: materialize the knowledge graph's suggested edges
// for a card onto the canvas.
type CreateIntelligentConnectionsArgs struct {
	CanvasID string `json:"canvas_id"`
	CardID   string `json:"card_id"`
}

// NewCreateIntelligentConnectionsTool turns a card's computed similar
// neighbors into real canvas connections, grounded on
// kgraph.Backend.FindSimilarNodes plus canvas.Store.CreateConnection.
func NewCreateIntelligentConnectionsTool(d Deps) Tool {
	return NewFuncTool("create_intelligent_connections",
		"Create canvas connections from a card to its most similar existing cards.",
		func(ctx context.Context, args CreateIntelligentConnectionsArgs) ([]canvasConnectionResult, error) {
			scored, err := d.KG.Backend().FindSimilarNodes(ctx, args.CardID, 5, 0.2)
			if err != nil {
				return nil, fmt.Errorf("create_intelligent_connections: %w", err)
			}

			var created []canvasConnectionResult
			for _, s := range scored {
				score := s.Score
				conn, err := d.Canvas.CreateConnection(ctx, canvas.Connection{
					CanvasID: args.CanvasID, SourceID: args.CardID, TargetID: s.ID,
					ConnectionType: canvas.ConnectionSimilar, SimilarityScore: &score,
				})
				if err != nil {
					continue
				}
				created = append(created, canvasConnectionResult{ConnectionID: conn.ID, TargetID: s.ID, Score: score})
			}
			return created, nil
		})
}

type canvasConnectionResult struct {
	ConnectionID string  `json:"connection_id"`
	TargetID     string  `json:"target_id"`
	Score        float64 `json:"score"`
}
