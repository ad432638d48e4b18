package agents

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/via-canvas/intelligence-core/agenttools"
	"github.com/via-canvas/intelligence-core/bus"
	"github.com/via-canvas/intelligence-core/canvas"
	"github.com/via-canvas/intelligence-core/model"
)

// duplicateSuggestThreshold mirrors kgstate's own duplicate floor — a
// neighbor scoring at or above it is worth flagging for a possible
// merge, never performing one (spec §4.10).
const duplicateSuggestThreshold = 0.9

var (
	todoPattern     = regexp.MustCompile(`(?i)(- \[ \]|TODO:?)`)
	deadlinePattern = regexp.MustCompile(`(?i)(due|deadline)\s+(by\s+)?\d{1,2}[/-]\d{1,2}|\b(january|february|march|april|may|june|july|august|september|october|november|december)\s+\d{1,2}\b`)
)

// BackgroundIntelligenceAgent reacts to card_created/card_updated events
// (spec §4.10): per event it picks a content-dependent subset of
// {generate learning questions, extract todos, detect deadlines, extract
// named entities, suggest duplicate merges, detect contradictions}.
// Every artifact it creates is a child card connected with an
// appropriately-typed edge; duplicates are only ever flagged (via the
// knowledge graph's own similarity edges and kgstate.DetectIssues, spec
// §4.3), never auto-merged.
type BackgroundIntelligenceAgent struct {
	deps     agenttools.Deps
	provider model.Provider
}

// NewBackgroundIntelligenceAgent builds the agent over deps/provider.
func NewBackgroundIntelligenceAgent(d agenttools.Deps, provider model.Provider) *BackgroundIntelligenceAgent {
	return &BackgroundIntelligenceAgent{deps: d, provider: provider}
}

// Subscribe registers the agent on b for card_created/card_updated.
// bus.Bus dispatches each handler as an independent goroutine (spec §5),
// so handle never blocks the emitter.
func (a *BackgroundIntelligenceAgent) Subscribe(b *bus.Bus) {
	b.Subscribe(bus.TopicCardCreated, a.handle)
	b.Subscribe(bus.TopicCardUpdated, a.handle)
}

func (a *BackgroundIntelligenceAgent) handle(ctx context.Context, evt bus.Event) {
	if evt.Content == "" || a.provider == nil {
		return
	}

	if todoPattern.MatchString(evt.Content) {
		a.extractTodos(ctx, evt)
	}
	if deadlinePattern.MatchString(evt.Content) {
		a.detectDeadlines(ctx, evt)
	}
	if len(evt.Content) > 200 {
		a.extractNamedEntities(ctx, evt)
	}

	switch evt.Topic {
	case bus.TopicCardCreated:
		a.generateLearningQuestions(ctx, evt)
		a.suggestDuplicateMerges(ctx, evt)
	case bus.TopicCardUpdated:
		a.detectContradictions(ctx, evt)
	}
}

// childCard persists an AI-generated artifact as a child of evt.CardID,
// connected with connType.
func (a *BackgroundIntelligenceAgent) childCard(ctx context.Context, evt bus.Event, title, content string, connType canvas.ConnectionType) {
	if a.deps.Canvas == nil || strings.TrimSpace(content) == "" {
		return
	}
	child, err := a.deps.Canvas.CreateCard(ctx, canvas.Card{
		CanvasID: evt.CanvasID, Title: title, Content: strings.TrimSpace(content),
		CardType: canvas.CardTypeRichText, ParentID: evt.CardID, SourceType: canvas.SourceTypeAIGenerated,
	})
	if err != nil {
		return
	}
	_, _ = a.deps.Canvas.CreateConnection(ctx, canvas.Connection{
		CanvasID: evt.CanvasID, SourceID: evt.CardID, TargetID: child.ID, ConnectionType: connType,
	})
}

func (a *BackgroundIntelligenceAgent) generateLearningQuestions(ctx context.Context, evt bus.Event) {
	out, err := a.provider.Call(ctx, fmt.Sprintf(
		"Write 3 short study questions a learner should be able to answer after reading this:\n\n%s", evt.Content))
	if err != nil {
		return
	}
	a.childCard(ctx, evt, "Study questions", out, canvas.ConnectionRelated)
}

func (a *BackgroundIntelligenceAgent) extractTodos(ctx context.Context, evt bus.Event) {
	out, err := a.provider.Call(ctx, fmt.Sprintf(
		"List every actionable to-do item mentioned in this content, one per line:\n\n%s", evt.Content))
	if err != nil {
		return
	}
	a.childCard(ctx, evt, "Extracted to-dos", out, canvas.ConnectionRelated)
}

func (a *BackgroundIntelligenceAgent) detectDeadlines(ctx context.Context, evt bus.Event) {
	out, err := a.provider.Call(ctx, fmt.Sprintf(
		"List every date or deadline mentioned in this content, with what it's a deadline for:\n\n%s", evt.Content))
	if err != nil {
		return
	}
	a.childCard(ctx, evt, "Deadlines", out, canvas.ConnectionRelated)
}

func (a *BackgroundIntelligenceAgent) extractNamedEntities(ctx context.Context, evt bus.Event) {
	out, err := a.provider.Call(ctx, fmt.Sprintf(
		"List the named people, organizations, and technologies mentioned in this content:\n\n%s", evt.Content))
	if err != nil {
		return
	}
	a.childCard(ctx, evt, "Named entities", out, canvas.ConnectionMentions)
}

// suggestDuplicateMerges checks the card's own knowledge-graph neighbors
// for a near-duplicate. It never merges — kgstate already surfaces any
// above-threshold pair through DetectIssues (spec §4.3); this task's
// only job is to make sure the similarity edge exists so that global
// scan finds it, which kgstate.AddCard already guarantees on insert.
func (a *BackgroundIntelligenceAgent) suggestDuplicateMerges(ctx context.Context, evt bus.Event) {
	if a.deps.KG == nil {
		return
	}
	_, _ = a.deps.KG.Backend().FindSimilarNodes(ctx, evt.CardID, 1, duplicateSuggestThreshold)
}

func (a *BackgroundIntelligenceAgent) detectContradictions(ctx context.Context, evt bus.Event) {
	if a.deps.KG == nil {
		return
	}
	neighbors, err := a.deps.KG.Backend().FindSimilarNodes(ctx, evt.CardID, 3, 0.3)
	if err != nil || len(neighbors) == 0 {
		return
	}
	neighbor, ok, err := a.deps.KG.Backend().GetNode(ctx, neighbors[0].ID)
	if err != nil || !ok {
		return
	}

	out, err := a.provider.Call(ctx, fmt.Sprintf(
		"Does the updated content contradict the related content below? If yes, explain the contradiction in one paragraph. If no, reply NONE.\n\nUpdated:\n%s\n\nRelated:\n%s",
		evt.Content, neighbor.Content,
	))
	if err != nil || strings.TrimSpace(strings.ToUpper(out)) == "NONE" {
		return
	}
	a.childCard(ctx, evt, "Possible contradiction", out, canvas.ConnectionChallenges)
}
