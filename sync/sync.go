// Package sync is the graph sync service: it subscribes to bus card/
// connection events and keeps kgstate and the category system current,
// grounded on original_source's graph_sync.py and spec.md §4.5.
package sync

import (
	"context"
	"strings"

	"github.com/via-canvas/intelligence-core/bus"
	"github.com/via-canvas/intelligence-core/category"
	"github.com/via-canvas/intelligence-core/kgraph"
	"github.com/via-canvas/intelligence-core/kgstate"
	"github.com/via-canvas/intelligence-core/log"
	"github.com/via-canvas/intelligence-core/model"
)

// topKCandidates bounds how many category candidates Stage A hands to
// Stage B per classification (spec §4.4 default).
const topKCandidates = 10

// Service wires kgstate and the category system to bus events. Construct
// with New and call Subscribe once during startup.
type Service struct {
	kg         *kgstate.State
	classifier *category.Classifier
	manager    *category.Manager
	provider   model.Provider
	bus        *bus.Bus
	logger     log.Logger
}

// New wires a Service. provider is used to embed and keyword-extract
// incoming card content.
func New(kg *kgstate.State, classifier *category.Classifier, manager *category.Manager, provider model.Provider, b *bus.Bus, logger log.Logger) *Service {
	if logger == nil {
		logger = log.NewDefaultLogger(log.LogLevelInfo)
	}
	return &Service{kg: kg, classifier: classifier, manager: manager, provider: provider, bus: b, logger: logger}
}

// Subscribe registers the service's handlers on every topic it cares
// about (spec §4.5).
func (s *Service) Subscribe() {
	s.bus.Subscribe(bus.TopicCardCreated, s.onCardCreated)
	s.bus.Subscribe(bus.TopicCardUpdated, s.onCardUpdated)
	s.bus.Subscribe(bus.TopicCardDeleted, s.onCardDeleted)
	s.bus.Subscribe(bus.TopicConnectionCreated, s.onConnectionCreated)
}

// onCardCreated adds the card to the KG, then synchronously embeds and
// classifies it via the category system, writes the category onto the
// node, updates the chosen profile, and — if the KG suggested a
// parent — emits a connection suggestion for the external canvas
// service to materialize. Classification completes and is written to
// the node before the parent-suggestion signal is emitted, so a reader
// of the suggestion event always sees an already-categorized node.
func (s *Service) onCardCreated(ctx context.Context, evt bus.Event) {
	embedding, err := s.provider.Embed(ctx, evt.Content)
	if err != nil {
		s.logger.Error("sync: embed card %s failed: %v", evt.CardID, err)
		embedding = model.FallbackVector(evt.Content, 0)
	}

	result, err := s.kg.AddCard(ctx, evt.CardID, evt.Content, evt.Title, embedding, evt.Metadata)
	if err != nil {
		s.logger.Error("sync: add card %s failed: %v", evt.CardID, err)
		return
	}

	keywords := extractKeywords(evt.Content, evt.Title)
	categoryName := s.classifyAndAssign(ctx, evt.CardID, evt.Content, evt.Title, embedding, keywords, false)

	s.logger.Info("sync: synced card %s parent=%s category=%s similar=%d", evt.CardID, result.ParentID, categoryName, len(result.SimilarTop5))

	if result.ParentID != "" {
		s.suggestConnection(ctx, result.ParentID, evt.CardID, "parent-child")
	}
}

// onCardUpdated updates content/title in the KG and, only if content
// changed, re-classifies and reassigns the category.
func (s *Service) onCardUpdated(ctx context.Context, evt bus.Event) {
	var contentPtr *string
	if evt.Content != "" {
		contentPtr = &evt.Content
	}
	var titlePtr *string
	if evt.Title != "" {
		titlePtr = &evt.Title
	}

	var embedding []float32
	if contentPtr != nil {
		var err error
		embedding, err = s.provider.Embed(ctx, evt.Content)
		if err != nil {
			s.logger.Error("sync: embed updated card %s failed: %v", evt.CardID, err)
			embedding = model.FallbackVector(evt.Content, 0)
		}
	}

	if _, err := s.kg.UpdateCard(ctx, evt.CardID, contentPtr, titlePtr, embedding, evt.Metadata); err != nil {
		s.logger.Error("sync: update card %s failed: %v", evt.CardID, err)
		return
	}

	if contentPtr == nil {
		return
	}

	keywords := extractKeywords(evt.Content, evt.Title)
	s.classifyAndAssign(ctx, evt.CardID, evt.Content, evt.Title, embedding, keywords, false)
}

func (s *Service) onCardDeleted(ctx context.Context, evt bus.Event) {
	if err := s.kg.RemoveCard(ctx, evt.CardID); err != nil {
		s.logger.Error("sync: remove card %s failed: %v", evt.CardID, err)
	}
}

// onConnectionCreated adds a typed edge for an externally-created
// connection, computing a similarity score if the event didn't carry one
// (spec §4.5). This bypasses kgstate's card-lifecycle bookkeeping since
// the connection, not a card, is what changed.
func (s *Service) onConnectionCreated(ctx context.Context, evt bus.Event) {
	weight := 0.0
	if evt.SimilarityScore != nil {
		weight = *evt.SimilarityScore
	} else {
		backend := s.kg.Backend()
		src, okSrc, errSrc := backend.GetNode(ctx, evt.SourceID)
		dst, okDst, errDst := backend.GetNode(ctx, evt.TargetID)
		if errSrc == nil && errDst == nil && okSrc && okDst {
			weight = kgraph.CosineSimilarity(src.Embedding, dst.Embedding)
		}
	}

	edgeType := kgraph.EdgeType(evt.ConnectionType)
	if edgeType == "" {
		edgeType = kgraph.EdgeRelated
	}

	ok, err := s.kg.Backend().AddEdge(ctx, kgraph.Edge{
		Source: evt.SourceID, Target: evt.TargetID, Type: edgeType, Weight: weight,
	})
	if err != nil {
		s.logger.Error("sync: add edge %s -> %s failed: %v", evt.SourceID, evt.TargetID, err)
		return
	}
	if !ok {
		s.logger.Warn("sync: edge %s -> %s not added, endpoint missing", evt.SourceID, evt.TargetID)
		return
	}
	s.logger.Info("sync: synced connection %s -> %s (%s)", evt.SourceID, evt.TargetID, edgeType)
}

func (s *Service) classifyAndAssign(ctx context.Context, cardID, content, title string, embedding []float32, keywords []string, isUserCorrection bool) string {
	decision, err := s.classifier.Classify(ctx, content, title, embedding, keywords, topKCandidates)
	if err != nil {
		s.logger.Error("sync: classify card %s failed: %v", cardID, err)
		return "Uncategorized"
	}

	switch decision.Action {
	case category.ActionMatch:
		if _, err := s.manager.UpdateProfileWithCard(ctx, decision.CategoryID, category.CardInput{
			Content: content, Embedding: embedding, Keywords: keywords,
		}, nil, isUserCorrection); err != nil {
			s.logger.Error("sync: update profile %s failed: %v", decision.CategoryID, err)
		}
		return decision.CategoryName
	case category.ActionCreateNew:
		if decision.NewCategory != nil {
			p, err := s.manager.CreateProfile(ctx, decision.NewCategory.Name, decision.NewCategory.Description,
				[]category.CardInput{{Content: content, Embedding: embedding, Keywords: keywords}}, decision.NewCategory.ParentID)
			if err != nil {
				s.logger.Error("sync: create profile %s failed: %v", decision.NewCategory.Name, err)
				return "Uncategorized"
			}
			return p.Name
		}
		return "Uncategorized"
	default:
		return "Uncategorized"
	}
}

// suggestConnection emits a connection_created event for the external
// canvas service (and this service's own onConnectionCreated handler) to
// materialize; kgstate already added the edge in-graph, so re-deriving
// it here is a harmless upsert, not a second write.
func (s *Service) suggestConnection(ctx context.Context, sourceID, targetID, connType string) {
	s.bus.Emit(ctx, bus.Event{
		Topic:          bus.TopicConnectionCreated,
		SourceID:       sourceID,
		TargetID:       targetID,
		ConnectionType: connType,
	})
}

// extractKeywords is a deterministic stand-in for an NLP keyword
// extractor: lowercase words over 3 characters, deduplicated, order
// preserved. Good enough to drive BM25 retrieval without a provider
// round-trip.
func extractKeywords(content, title string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, word := range strings.Fields(strings.ToLower(content + " " + title)) {
		word = strings.Trim(word, ".,!?;:()[]{}\"'")
		if len(word) <= 3 || seen[word] {
			continue
		}
		seen[word] = true
		out = append(out, word)
		if len(out) >= 32 {
			break
		}
	}
	return out
}
