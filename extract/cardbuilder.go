package extract

import (
	"context"
	"strings"

	"github.com/gomarkdown/markdown"
	mdhtml "github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"

	"github.com/via-canvas/intelligence-core/bus"
	"github.com/via-canvas/intelligence-core/kgraph"
	"github.com/via-canvas/intelligence-core/kgstate"
	"github.com/via-canvas/intelligence-core/log"
	"github.com/via-canvas/intelligence-core/model"
)

// parentMatchThreshold is the floor for CardBuilder to attach its new
// top-level card under an existing canvas card (spec §4.7 bullet i;
// looser than kgstate's own 0.5 auto-parent threshold since this is an
// explicit, caller-less placement decision rather than automatic
// similarity grouping).
const parentMatchThreshold = 0.3

// KindExample/KindPattern/KindUsage are the three labels a detected code
// block can carry (spec §4.7 bullet iii); example and usage blocks are
// grouped under an "Examples" card, pattern blocks under "Patterns".
const (
	KindExample = "example"
	KindPattern = "pattern"
	KindUsage   = "usage"
)

// Section is one heading+content unit of an extraction payload.
type Section struct {
	Heading string
	Content string
}

// CodeBlock is one detected "Example:"/"Pattern:"/"Usage:" block.
type CodeBlock struct {
	Kind    string // KindExample, KindPattern, or KindUsage
	Content string
}

// Payload is the structured result of an extraction, ready for card
// construction (original's extract() return shape: title, description,
// sections, optional code patterns).
type Payload struct {
	Title       string
	Description string
	Sections    []Section
	CodeBlocks  []CodeBlock
	CanvasID    string
	ParentID    string // explicit parent; if empty, CardBuilder picks one
}

// BuildResult reports what CardBuilder created.
type BuildResult struct {
	ParentCardID string
	ChildCardIDs []string
}

// CardBuilder turns an extraction Payload into cards on the knowledge
// graph, emitting card_created/connection_created bus events for each
// (original's card-construction step embedded in the content-extraction
// agent's tool handler; grounded on spec.md §4.7 bullet "Card
// construction from an extraction").
type CardBuilder struct {
	kg       *kgstate.State
	provider model.Provider
	bus      *bus.Bus
	logger   log.Logger
}

// NewCardBuilder wires a CardBuilder.
func NewCardBuilder(kg *kgstate.State, provider model.Provider, b *bus.Bus, logger log.Logger) *CardBuilder {
	if logger == nil {
		logger = log.NewDefaultLogger(log.LogLevelInfo)
	}
	return &CardBuilder{kg: kg, provider: provider, bus: b, logger: logger}
}

// Build constructs the parent card, one child per section, grouping
// cards for detected code blocks, and demonstrates edges to any
// existing card a block's content names.
func (b *CardBuilder) Build(ctx context.Context, payload Payload) (BuildResult, error) {
	if payload.CodeBlocks == nil {
		payload.CodeBlocks = detectCodeBlocks(payload)
	}

	parentContent := payload.Title + "\n\n" + payload.Description
	parentEmbedding, err := b.embed(ctx, parentContent)
	if err != nil {
		return BuildResult{}, err
	}

	parentID := newCardID()
	b.emitCardCreated(ctx, parentID, payload.Title, parentContent, payload.CanvasID, map[string]any{"card_type": "link"})

	externalParent := payload.ParentID
	if externalParent == "" {
		externalParent = b.pickParent(ctx, parentEmbedding)
	}
	if externalParent != "" {
		b.emitConnection(ctx, externalParent, parentID, kgraph.EdgeParentChild, nil)
	}

	result := BuildResult{ParentCardID: parentID}

	for _, section := range payload.Sections {
		childID := newCardID()
		b.emitCardCreated(ctx, childID, section.Heading, section.Content, payload.CanvasID, map[string]any{
			"section": true,
			"html":    renderMarkdown(section.Content),
		})
		b.emitConnection(ctx, parentID, childID, kgraph.EdgeParentChild, nil)
		result.ChildCardIDs = append(result.ChildCardIDs, childID)
	}

	result.ChildCardIDs = append(result.ChildCardIDs, b.buildCodeBlockGroups(ctx, payload, parentID)...)

	return result, nil
}

// detectCodeBlocks scans every section's content for "Example:"/
// "Pattern:"/"Usage:" labeled blocks when the caller hasn't already
// supplied CodeBlocks directly.
func detectCodeBlocks(payload Payload) []CodeBlock {
	var blocks []CodeBlock
	blocks = append(blocks, ExtractCodeBlocks(payload.Description)...)
	for _, section := range payload.Sections {
		blocks = append(blocks, ExtractCodeBlocks(section.Content)...)
	}
	return blocks
}

// buildCodeBlockGroups creates the "Examples"/"Patterns" grouping
// cards, one child card per block underneath, and a demonstrates edge
// to any existing card whose title the block's content names.
func (b *CardBuilder) buildCodeBlockGroups(ctx context.Context, payload Payload, parentID string) []string {
	var examples, patterns []CodeBlock
	for _, block := range payload.CodeBlocks {
		if block.Kind == KindPattern {
			patterns = append(patterns, block)
		} else {
			examples = append(examples, block)
		}
	}

	var created []string
	created = append(created, b.buildGroup(ctx, "Examples", examples, payload.CanvasID, parentID)...)
	created = append(created, b.buildGroup(ctx, "Patterns", patterns, payload.CanvasID, parentID)...)
	return created
}

func (b *CardBuilder) buildGroup(ctx context.Context, groupName string, blocks []CodeBlock, canvasID, parentID string) []string {
	if len(blocks) == 0 {
		return nil
	}

	groupID := newCardID()
	b.emitCardCreated(ctx, groupID, groupName, groupName, canvasID, map[string]any{"grouping": true})
	b.emitConnection(ctx, parentID, groupID, kgraph.EdgeParentChild, nil)

	ids := []string{groupID}
	for _, block := range blocks {
		blockID := newCardID()
		b.emitCardCreated(ctx, blockID, groupName+" block", block.Content, canvasID, map[string]any{"kind": block.Kind})
		b.emitConnection(ctx, groupID, blockID, kgraph.EdgeParentChild, nil)
		ids = append(ids, blockID)

		if targetID := b.findReferencedCard(ctx, block.Content); targetID != "" {
			b.emitConnection(ctx, blockID, targetID, kgraph.EdgeType("demonstrates"), nil)
		}
	}
	return ids
}

// findReferencedCard scans existing node titles for one named within
// content, returning its id or "" if none match. O(n) over the canvas;
// acceptable at the ~10k-node scale the in-memory backend targets.
func (b *CardBuilder) findReferencedCard(ctx context.Context, content string) string {
	backend := b.kg.Backend()
	ids, err := backend.AllNodeIDs(ctx)
	if err != nil {
		return ""
	}
	lowerContent := strings.ToLower(content)
	for _, id := range ids {
		node, ok, err := backend.GetNode(ctx, id)
		if err != nil || !ok {
			continue
		}
		title, _ := node.Attributes["title"].(string)
		if title == "" || len(title) < 3 {
			continue
		}
		if strings.Contains(lowerContent, strings.ToLower(title)) {
			return id
		}
	}
	return ""
}

// pickParent finds the best existing card for embedding to attach
// under, if its similarity clears parentMatchThreshold. The candidate
// card does not exist in the graph yet, so this computes cosine
// similarity directly rather than using the backend's edge-based
// FindSimilarNodes.
func (b *CardBuilder) pickParent(ctx context.Context, embedding []float32) string {
	backend := b.kg.Backend()
	ids, err := backend.AllNodeIDs(ctx)
	if err != nil {
		return ""
	}

	bestID := ""
	bestScore := 0.0
	for _, id := range ids {
		node, ok, err := backend.GetNode(ctx, id)
		if err != nil || !ok || len(node.Embedding) == 0 {
			continue
		}
		score := kgraph.CosineSimilarity(embedding, node.Embedding)
		if score > bestScore {
			bestScore = score
			bestID = id
		}
	}
	if bestScore >= parentMatchThreshold {
		return bestID
	}
	return ""
}

func (b *CardBuilder) embed(ctx context.Context, content string) ([]float32, error) {
	if b.provider == nil {
		return model.FallbackVector(content, 0), nil
	}
	embedding, err := b.provider.Embed(ctx, content)
	if err != nil {
		b.logger.Error("extract: embed failed, using fallback vector: %v", err)
		return model.FallbackVector(content, 0), nil
	}
	return embedding, nil
}

func (b *CardBuilder) emitCardCreated(ctx context.Context, cardID, title, content, canvasID string, metadata map[string]any) {
	b.bus.Emit(ctx, bus.Event{
		Topic: bus.TopicCardCreated, CardID: cardID, CanvasID: canvasID,
		Content: content, Title: title, Metadata: metadata,
	})
}

func (b *CardBuilder) emitConnection(ctx context.Context, sourceID, targetID string, edgeType kgraph.EdgeType, similarity *float64) {
	b.bus.Emit(ctx, bus.Event{
		Topic: bus.TopicConnectionCreated, SourceID: sourceID, TargetID: targetID,
		ConnectionType: string(edgeType), SimilarityScore: similarity,
	})
}

func newCardID() string {
	return "card_" + uuid.NewString()
}

// renderMarkdown turns a documentation section's markdown body into
// sanitized HTML suitable for the canvas's rich-text rendering.
func renderMarkdown(content string) string {
	extensions := parser.CommonExtensions | parser.AutoHeadingIDs
	p := parser.NewWithExtensions(extensions)
	doc := p.Parse([]byte(content))

	opts := mdhtml.RendererOptions{Flags: mdhtml.CommonFlags | mdhtml.HrefTargetBlank}
	renderer := mdhtml.NewRenderer(opts)
	rendered := markdown.Render(doc, renderer)

	return string(bluemonday.UGCPolicy().SanitizeBytes(rendered))
}
