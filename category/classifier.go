package category

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"

	"github.com/via-canvas/intelligence-core/log"
)

// matchThreshold is the fallback (and LLM prompt guidance) threshold for
// accepting a Stage-A candidate as a match (spec §4.4 Stage B).
const matchThreshold = 0.6

// Action is the classifier's decision.
type Action string

const (
	ActionMatch         Action = "match"
	ActionCreateNew     Action = "create_new"
	ActionUncategorized Action = "uncategorized"
)

// NewCategory is the payload for ActionCreateNew.
type NewCategory struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Keywords    []string `json:"keywords"`
	ParentID    string   `json:"parent_id,omitempty"`
}

// Decision is the classifier's result.
type Decision struct {
	Action               Action
	CategoryID           string
	CategoryName         string
	NewCategory          *NewCategory
	Confidence           float64
	Reasoning            string
	CandidatesConsidered int
}

// llmResponse is the raw JSON contract asked of the model (spec §4.4).
type llmResponse struct {
	Action       string       `json:"action"`
	CategoryID   string       `json:"category_id"`
	CategoryName string       `json:"category_name"`
	NewCategory  *NewCategory `json:"new_category"`
	Confidence   float64      `json:"confidence"`
	Reasoning    string       `json:"reasoning"`
}

// chatCaller is the minimal surface the classifier needs from a
// model.Provider (llms.Model.Call), kept narrow for testability.
type chatCaller interface {
	Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error)
}

// Classifier is Stage B: LLM reasoning over Stage-A candidates.
type Classifier struct {
	retriever *Retriever
	model     chatCaller
	logger    log.Logger
}

// NewClassifier wraps retriever with an LLM decision stage. model may be
// nil, in which case classification always uses the heuristic fallback.
func NewClassifier(retriever *Retriever, model chatCaller, logger log.Logger) *Classifier {
	if logger == nil {
		logger = log.NewDefaultLogger(log.LogLevelInfo)
	}
	return &Classifier{retriever: retriever, model: model, logger: logger}
}

// Classify runs the full two-stage pipeline for one card.
func (c *Classifier) Classify(ctx context.Context, content, title string, embedding []float32, keywords []string, topK int) (Decision, error) {
	candidates, err := c.retriever.RetrieveCandidates(ctx, embedding, keywords, topK, 0.6)
	if err != nil {
		return Decision{}, fmt.Errorf("category: retrieve candidates: %w", err)
	}

	if len(candidates) == 0 {
		return Decision{
			Action:       ActionUncategorized,
			CategoryName: "Uncategorized",
			Reasoning:    "no existing categories to match against",
		}, nil
	}

	decision := c.classifyWithLLM(ctx, content, title, keywords, candidates)
	decision.CandidatesConsidered = len(candidates)
	return decision, nil
}

func (c *Classifier) classifyWithLLM(ctx context.Context, content, title string, keywords []string, candidates []Scored) Decision {
	if c.model == nil {
		c.logger.Warn("category: no LLM model configured, using fallback classification")
		return fallback(candidates)
	}

	prompt := buildPrompt(content, title, keywords, candidates)
	raw, err := c.model.Call(ctx, prompt)
	if err != nil {
		c.logger.Warn("category: LLM classification call failed: %v", err)
		return fallback(candidates)
	}

	var resp llmResponse
	if err := json.Unmarshal([]byte(extractJSON(raw)), &resp); err != nil {
		c.logger.Warn("category: LLM response not valid JSON, using fallback")
		return fallback(candidates)
	}
	if !validate(resp) {
		c.logger.Warn("category: LLM response failed validation, using fallback")
		return fallback(candidates)
	}

	return Decision{
		Action:       Action(resp.Action),
		CategoryID:   resp.CategoryID,
		CategoryName: resp.CategoryName,
		NewCategory:  resp.NewCategory,
		Confidence:   resp.Confidence,
		Reasoning:    resp.Reasoning,
	}
}

// extractJSON trims any prose a model wraps around its JSON object —
// some providers ignore a strict JSON-only instruction.
func extractJSON(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end < 0 || end < start {
		return s
	}
	return s[start : end+1]
}

func validate(r llmResponse) bool {
	switch Action(r.Action) {
	case ActionMatch:
		return r.CategoryID != ""
	case ActionCreateNew:
		return r.NewCategory != nil && r.NewCategory.Name != "" && r.NewCategory.Description != "" && len(r.NewCategory.Keywords) > 0
	case ActionUncategorized:
		return true
	default:
		return false
	}
}

// fallback implements the heuristic used when the model is absent,
// errors, or returns invalid JSON: match the top candidate if its score
// clears matchThreshold, else uncategorized (spec §4.4).
func fallback(candidates []Scored) Decision {
	best := candidates[0]
	if best.Score >= matchThreshold {
		return Decision{
			Action:       ActionMatch,
			CategoryID:   best.Profile.ID,
			CategoryName: best.Profile.Name,
			Confidence:   best.Score,
			Reasoning:    fmt.Sprintf("matched to highest scoring candidate (score: %.2f)", best.Score),
		}
	}
	return Decision{
		Action:       ActionUncategorized,
		CategoryName: "Uncategorized",
		Reasoning:    fmt.Sprintf("best match score (%.2f) below threshold (%.2f)", best.Score, matchThreshold),
	}
}

func buildPrompt(content, title string, keywords []string, candidates []Scored) string {
	var b strings.Builder
	b.WriteString("You are a category classification system. Analyze the card and decide the best action.\n\n")
	fmt.Fprintf(&b, "## New Card\n**Title:** %s\n", title)
	truncated := content
	suffix := ""
	if len(truncated) > 500 {
		truncated = truncated[:500]
		suffix = "..."
	}
	fmt.Fprintf(&b, "**Content:** %s%s\n", truncated, suffix)
	kws := keywords
	if len(kws) > 15 {
		kws = kws[:15]
	}
	fmt.Fprintf(&b, "**Keywords:** %s\n\n", strings.Join(kws, ", "))

	fmt.Fprintf(&b, "## Candidate Categories (Top %d)\n", len(candidates))
	for i, cand := range candidates {
		p := cand.Profile
		compact := p.Compact()
		fmt.Fprintf(&b, "%d. **%s** (score: %.2f, confidence: %v)\n", i+1, compact["name"], cand.Score, compact["confidence"])
		fmt.Fprintf(&b, "   ID: %s\n", p.ID)
		fmt.Fprintf(&b, "   Description: %s\n", p.Description)
		fmt.Fprintf(&b, "   Cards: %d\n\n", p.CardCount)
	}

	b.WriteString("## Instructions\nDecide the best action:\n")
	b.WriteString("1. match - if a candidate is a good fit (similarity > 0.6)\n")
	b.WriteString("2. create_new - if no good match and this represents a distinct new category\n")
	b.WriteString("3. uncategorized - if uncertain or too generic\n\n")
	b.WriteString(`Respond with exactly one JSON object: {"action": "match"|"create_new"|"uncategorized", "category_id": "...", "category_name": "...", "new_category": {"name": "...", "description": "...", "keywords": ["..."], "parent_id": "..."}, "confidence": 0.0-1.0, "reasoning": "..."}`)
	return b.String()
}
