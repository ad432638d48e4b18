package agenttools

import (
	"context"
	"fmt"

	"github.com/via-canvas/intelligence-core/category"
)

// CategorizeCardArgs is categorize_card's argument contract: run the
// dynamic category system's full decision (match/create_new/
// uncategorized), optionally updating the profile's member set.
type CategorizeCardArgs struct {
	CardID   string   `json:"card_id"`
	Title    string   `json:"title"`
	Content  string   `json:"content"`
	Keywords []string `json:"keywords,omitempty"`
}

// CategorizeCardResult mirrors category.Decision's user-facing fields.
type CategorizeCardResult struct {
	Action       string  `json:"action"`
	CategoryID   string  `json:"category_id,omitempty"`
	CategoryName string  `json:"category_name,omitempty"`
	Confidence   float64 `json:"confidence"`
	Reasoning    string  `json:"reasoning"`
}

// NewCategorizeCardTool runs the classifier and, on a match or a new
// category, folds the card into the profile via category.Manager so the
// profile's centroid/keyword index stays current (spec §4.4).
func NewCategorizeCardTool(d Deps) Tool {
	return NewFuncTool("categorize_card",
		"Classify a card into an existing or new dynamic category, updating that category's profile.",
		func(ctx context.Context, args CategorizeCardArgs) (CategorizeCardResult, error) {
			embedding, err := d.Provider.Embed(ctx, args.Title+"\n\n"+args.Content)
			if err != nil {
				return CategorizeCardResult{}, fmt.Errorf("categorize_card: embed: %w", err)
			}
			decision, err := d.Classifier.Classify(ctx, args.Content, args.Title, embedding, args.Keywords, 5)
			if err != nil {
				return CategorizeCardResult{}, fmt.Errorf("categorize_card: %w", err)
			}

			cardInput := category.CardInput{Content: args.Content, Embedding: embedding, Keywords: args.Keywords}
			switch decision.Action {
			case category.ActionMatch:
				if _, err := d.Manager.UpdateProfileWithCard(ctx, decision.CategoryID, cardInput, nil, false); err != nil {
					return CategorizeCardResult{}, fmt.Errorf("categorize_card: update profile: %w", err)
				}
			case category.ActionCreateNew:
				if decision.NewCategory != nil {
					profile, err := d.Manager.CreateProfile(ctx, decision.NewCategory.Name, decision.NewCategory.Description, []category.CardInput{cardInput}, decision.NewCategory.ParentID)
					if err != nil {
						return CategorizeCardResult{}, fmt.Errorf("categorize_card: create profile: %w", err)
					}
					decision.CategoryID = profile.ID
					decision.CategoryName = profile.Name
				}
			}

			return CategorizeCardResult{
				Action: string(decision.Action), CategoryID: decision.CategoryID,
				CategoryName: decision.CategoryName, Confidence: decision.Confidence,
				Reasoning: decision.Reasoning,
			}, nil
		})
}

// MergeCardsArgs is merge_cards' argument contract: combine two cards'
// content into the primary, removing the secondary from the graph.
// Merge never happens automatically from a duplicate detection — this
// tool only fires on an explicit user or agent decision (spec §4.10).
type MergeCardsArgs struct {
	CanvasID     string `json:"canvas_id"`
	PrimaryID    string `json:"primary_card_id"`
	SecondaryID  string `json:"secondary_card_id"`
}

// MergeCardsResult reports the outcome.
type MergeCardsResult struct {
	MergedCardID string `json:"merged_card_id"`
	RemovedID    string `json:"removed_id"`
}

// NewMergeCardsTool merges secondary into primary on both the canvas
// (content concatenation) and the knowledge graph (node removal).
func NewMergeCardsTool(d Deps) Tool {
	return NewFuncTool("merge_cards",
		"Merge two cards into one, combining their content and removing the duplicate.",
		func(ctx context.Context, args MergeCardsArgs) (MergeCardsResult, error) {
			primary, err := d.Canvas.GetCard(ctx, args.CanvasID, args.PrimaryID)
			if err != nil {
				return MergeCardsResult{}, fmt.Errorf("merge_cards: get primary: %w", err)
			}
			secondary, err := d.Canvas.GetCard(ctx, args.CanvasID, args.SecondaryID)
			if err != nil {
				return MergeCardsResult{}, fmt.Errorf("merge_cards: get secondary: %w", err)
			}

			merged := primary.Content + "\n\n" + secondary.Content
			if _, err := d.Canvas.UpdateCard(ctx, args.CanvasID, args.PrimaryID, canvasContentPatch(merged)); err != nil {
				return MergeCardsResult{}, fmt.Errorf("merge_cards: save merged content: %w", err)
			}
			if err := d.KG.RemoveCard(ctx, args.SecondaryID); err != nil {
				return MergeCardsResult{}, fmt.Errorf("merge_cards: remove duplicate from graph: %w", err)
			}

			return MergeCardsResult{MergedCardID: args.PrimaryID, RemovedID: args.SecondaryID}, nil
		})
}

// DetectConflictsArgs is detect_conflicts' argument contract: scan the
// whole graph for orphaned cards, weak connections, and potential
// duplicates (spec §4.3's DetectIssues), without merging anything —
// duplicates are only ever flagged, never auto-merged.
type DetectConflictsArgs struct{}

// DetectConflictsResult mirrors kgstate.Issues.
type DetectConflictsResult struct {
	OrphanedCards       []string           `json:"orphaned_cards"`
	WeakConnections     []WeakConnection   `json:"weak_connections"`
	PotentialDuplicates []DuplicateFinding `json:"potential_duplicates"`
}

// WeakConnection is one below-threshold similar edge.
type WeakConnection struct {
	Source string  `json:"source"`
	Target string  `json:"target"`
	Score  float64 `json:"score"`
}

// DuplicateFinding is one above-threshold candidate pair — flagged,
// never auto-merged (spec §4.3/§4.10).
type DuplicateFinding struct {
	CardA string  `json:"card_a"`
	CardB string  `json:"card_b"`
	Score float64 `json:"score"`
}

// NewDetectConflictsTool runs the knowledge graph's issue detector.
func NewDetectConflictsTool(d Deps) Tool {
	return NewFuncTool("detect_conflicts",
		"Scan the knowledge graph for orphaned cards, weak connections, and potential duplicates. Never merges anything automatically.",
		func(ctx context.Context, _ DetectConflictsArgs) (DetectConflictsResult, error) {
			issues, err := d.KG.DetectIssues(ctx)
			if err != nil {
				return DetectConflictsResult{}, fmt.Errorf("detect_conflicts: %w", err)
			}

			result := DetectConflictsResult{OrphanedCards: issues.OrphanedCards}
			for _, w := range issues.WeakConnections {
				result.WeakConnections = append(result.WeakConnections, WeakConnection{Source: w.Source, Target: w.Target, Score: w.Score})
			}
			for _, dup := range issues.PotentialDuplicates {
				result.PotentialDuplicates = append(result.PotentialDuplicates, DuplicateFinding{CardA: dup.A, CardB: dup.B, Score: dup.Score})
			}
			return result, nil
		})
}
