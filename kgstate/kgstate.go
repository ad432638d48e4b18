// Package kgstate provides the card lifecycle over a kgraph.Backend:
// add/update/remove, a change log, periodic persistence, and issue
// detection, grounded on original knowledge_graph_state.py's
// add_card/update_card/detect_issues shape and spec.md §4.3.
package kgstate

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/via-canvas/intelligence-core/kgraph"
)

const (
	// similarTopN bounds how many similar links are computed/stored
	// per add/update (spec §4.3).
	similarTopN = 10
	// similarMinScore is the floor for a computed similar link to be
	// stored at all.
	similarMinScore = 0.1
	// parentMinScore is the floor for the single best similar card to
	// also become a parent-child in-edge.
	parentMinScore = 0.5
	// persistEveryN triggers a backend persist every N change-log
	// entries.
	persistEveryN = 10
	// weakEdgeThreshold flags a "similar" edge as weak (spec §4.3/§6).
	weakEdgeThreshold = 0.2
	// duplicateThreshold flags two cards as potential duplicates.
	duplicateThreshold = 0.95
)

// ChangeEntry is one append-only change-log record.
type ChangeEntry struct {
	Action    string
	CardID    string
	Timestamp time.Time
	ParentID  string
	Similar   int
}

// ConnectionSuggestion is a candidate edge offered to the caller (e.g.
// sync) for the external canvas service to materialize.
type ConnectionSuggestion struct {
	TargetID       string
	ConnectionType kgraph.EdgeType
	Similarity     float64
	Reason         string
}

// AddResult is returned by AddCard/UpdateCard.
type AddResult struct {
	ParentID    string
	SimilarTop5 []kgraph.Scored
	Suggestions []ConnectionSuggestion
}

// Issues is the result of DetectIssues (spec §4.3).
type Issues struct {
	OrphanedCards       []string
	WeakConnections     []WeakEdge
	PotentialDuplicates []DuplicatePair
}

// WeakEdge is a "similar" edge below weakEdgeThreshold.
type WeakEdge struct {
	Source string
	Target string
	Score  float64
}

// DuplicatePair is a pair of cards whose similarity exceeds
// duplicateThreshold.
type DuplicatePair struct {
	A, B  string
	Score float64
}

// State wraps a kgraph.Backend with the card lifecycle operations. A
// single State instance serializes add/update/remove for one card at a
// time via per-card locking; operations on different cards may interleave
// (spec §5).
type State struct {
	backend kgraph.Backend

	mu        sync.Mutex
	cardLocks map[string]*sync.Mutex
	changeLog []ChangeEntry
}

// New wraps backend in a State.
func New(backend kgraph.Backend) *State {
	return &State{backend: backend, cardLocks: make(map[string]*sync.Mutex)}
}

// Backend exposes the wrapped graph backend for callers (e.g. sync) that
// need capabilities kgstate doesn't itself expose, such as adding a
// pre-typed edge supplied by an external event.
func (s *State) Backend() kgraph.Backend { return s.backend }

func (s *State) lockFor(cardID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.cardLocks[cardID]
	if !ok {
		l = &sync.Mutex{}
		s.cardLocks[cardID] = l
	}
	return l
}

// AddCard inserts a new node, computes up to 10 similar links scoring
// >= 0.1, and — if the single best link scores >= 0.5 — also adds a
// parent-child in-edge from it. Returns the suggested parent, top-5
// similar cards, and connection suggestions (spec §4.3).
func (s *State) AddCard(ctx context.Context, id, content, title string, embedding []float32, metadata map[string]any) (AddResult, error) {
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	attrs := map[string]any{"title": title}
	for k, v := range metadata {
		attrs[k] = v
	}

	if err := s.backend.AddNode(ctx, kgraph.Node{
		ID: id, Content: content, Embedding: embedding, Category: "", Attributes: attrs,
	}); err != nil {
		return AddResult{}, fmt.Errorf("kgstate: add node: %w", err)
	}

	similar, err := s.findSimilarByEmbedding(ctx, id, embedding, similarTopN, similarMinScore)
	if err != nil {
		return AddResult{}, fmt.Errorf("kgstate: find similar: %w", err)
	}

	var parentID string
	if len(similar) > 0 && similar[0].Score >= parentMinScore && similar[0].ID != id {
		parentID = similar[0].ID
		if _, err := s.backend.AddEdge(ctx, kgraph.Edge{
			Source: parentID, Target: id, Type: kgraph.EdgeParentChild, Weight: similar[0].Score,
		}); err != nil {
			return AddResult{}, fmt.Errorf("kgstate: add parent edge: %w", err)
		}
	}

	for _, cand := range similar {
		if _, err := s.backend.AddEdge(ctx, kgraph.Edge{
			Source: id, Target: cand.ID, Type: kgraph.EdgeSimilar, Weight: cand.Score,
		}); err != nil {
			return AddResult{}, fmt.Errorf("kgstate: add similar edge: %w", err)
		}
	}

	top5 := similar
	if len(top5) > 5 {
		top5 = top5[:5]
	}

	s.appendChange(ctx, ChangeEntry{Action: "add_card", CardID: id, Timestamp: time.Now(), ParentID: parentID, Similar: len(similar)})

	return AddResult{
		ParentID:    parentID,
		SimilarTop5: top5,
		Suggestions: suggestConnections(top5),
	}, nil
}

// UpdateCard updates title/metadata unconditionally; if content is
// non-nil and differs from the stored content, it also stores embedding
// as the node's new embedding, removes all prior similar out/in edges,
// and recomputes them against that fresh vector per the same rule as
// AddCard (spec §4.3). embedding is ignored when content is nil or
// unchanged.
func (s *State) UpdateCard(ctx context.Context, id string, content *string, title *string, embedding []float32, metadata map[string]any) (AddResult, error) {
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	existing, ok, err := s.backend.GetNode(ctx, id)
	if err != nil {
		return AddResult{}, fmt.Errorf("kgstate: get node: %w", err)
	}
	if !ok {
		return AddResult{}, fmt.Errorf("kgstate: card %s not found", id)
	}

	contentChanged := content != nil && *content != existing.Content

	err = s.backend.UpdateNode(ctx, id, func(n *kgraph.Node) {
		if content != nil {
			n.Content = *content
		}
		if contentChanged && len(embedding) > 0 {
			n.Embedding = embedding
		}
		if title != nil {
			if n.Attributes == nil {
				n.Attributes = map[string]any{}
			}
			n.Attributes["title"] = *title
		}
		for k, v := range metadata {
			if n.Attributes == nil {
				n.Attributes = map[string]any{}
			}
			n.Attributes[k] = v
		}
	})
	if err != nil {
		return AddResult{}, fmt.Errorf("kgstate: update node: %w", err)
	}

	var similar []kgraph.Scored
	var parentID string
	if contentChanged {
		if err := s.backend.RemoveEdgesOfType(ctx, id, kgraph.EdgeSimilar, kgraph.Both); err != nil {
			return AddResult{}, fmt.Errorf("kgstate: remove prior similar edges: %w", err)
		}

		newEmbedding := embedding
		if len(newEmbedding) == 0 {
			newEmbedding = existing.Embedding
		}
		similar, err = s.findSimilarByEmbedding(ctx, id, newEmbedding, similarTopN, similarMinScore)
		if err != nil {
			return AddResult{}, fmt.Errorf("kgstate: find similar: %w", err)
		}

		if len(similar) > 0 && similar[0].Score >= parentMinScore && similar[0].ID != id {
			parentID = similar[0].ID
			if _, err := s.backend.AddEdge(ctx, kgraph.Edge{
				Source: parentID, Target: id, Type: kgraph.EdgeParentChild, Weight: similar[0].Score,
			}); err != nil {
				return AddResult{}, fmt.Errorf("kgstate: add parent edge: %w", err)
			}
		}

		for _, cand := range similar {
			if _, err := s.backend.AddEdge(ctx, kgraph.Edge{
				Source: id, Target: cand.ID, Type: kgraph.EdgeSimilar, Weight: cand.Score,
			}); err != nil {
				return AddResult{}, fmt.Errorf("kgstate: add similar edge: %w", err)
			}
		}
	}

	s.appendChange(ctx, ChangeEntry{Action: "update_card", CardID: id, Timestamp: time.Now(), Similar: len(similar)})

	top5 := similar
	if len(top5) > 5 {
		top5 = top5[:5]
	}
	return AddResult{ParentID: parentID, SimilarTop5: top5, Suggestions: suggestConnections(top5)}, nil
}

// RemoveCard deletes the node and all incident edges.
func (s *State) RemoveCard(ctx context.Context, id string) error {
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	if err := s.backend.RemoveNode(ctx, id); err != nil {
		return fmt.Errorf("kgstate: remove node: %w", err)
	}
	s.appendChange(ctx, ChangeEntry{Action: "remove_card", CardID: id, Timestamp: time.Now()})
	return nil
}

// DetectIssues returns orphaned cards, weak "similar" edges (< 0.2), and
// potential duplicate pairs (> 0.95) (spec §4.3).
func (s *State) DetectIssues(ctx context.Context) (Issues, error) {
	ids, err := s.backend.AllNodeIDs(ctx)
	if err != nil {
		return Issues{}, fmt.Errorf("kgstate: all node ids: %w", err)
	}

	var issues Issues
	seenDup := make(map[[2]string]bool)

	for _, id := range ids {
		outSim, err := s.backend.Edges(ctx, id, kgraph.EdgeSimilar, kgraph.Outgoing)
		if err != nil {
			return Issues{}, fmt.Errorf("kgstate: edges: %w", err)
		}
		parentIn, err := s.backend.Edges(ctx, id, kgraph.EdgeParentChild, kgraph.Incoming)
		if err != nil {
			return Issues{}, fmt.Errorf("kgstate: parent edges: %w", err)
		}
		parentOut, err := s.backend.Edges(ctx, id, kgraph.EdgeParentChild, kgraph.Outgoing)
		if err != nil {
			return Issues{}, fmt.Errorf("kgstate: parent edges: %w", err)
		}

		if len(outSim) == 0 && len(parentIn) == 0 && len(parentOut) == 0 {
			issues.OrphanedCards = append(issues.OrphanedCards, id)
		}

		for _, e := range outSim {
			if e.Weight < weakEdgeThreshold {
				issues.WeakConnections = append(issues.WeakConnections, WeakEdge{Source: id, Target: e.Target, Score: e.Weight})
			}
			if e.Weight > duplicateThreshold {
				key := dupKey(id, e.Target)
				if !seenDup[key] {
					seenDup[key] = true
					issues.PotentialDuplicates = append(issues.PotentialDuplicates, DuplicatePair{A: key[0], B: key[1], Score: e.Weight})
				}
			}
		}
	}

	return issues, nil
}

func dupKey(a, b string) [2]string {
	if a < b {
		return [2]string{a, b}
	}
	return [2]string{b, a}
}

// ChangeLog returns a copy of the in-memory change log.
func (s *State) ChangeLog() []ChangeEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ChangeEntry(nil), s.changeLog...)
}

func (s *State) appendChange(ctx context.Context, e ChangeEntry) {
	s.mu.Lock()
	s.changeLog = append(s.changeLog, e)
	n := len(s.changeLog)
	s.mu.Unlock()

	if n%persistEveryN == 0 {
		_ = s.backend.Persist(ctx)
	}
}

// findSimilarByEmbedding scans every existing node's stored embedding and
// scores it against embedding directly, the same way
// extract.CardBuilder.pickParent does: excludeID has no "similar" edges
// yet (it was just added, or just had its prior ones stripped), so the
// backend's own edge-based FindSimilarNodes would see nothing to
// traverse. Results are capped at limit, sorted by score descending.
func (s *State) findSimilarByEmbedding(ctx context.Context, excludeID string, embedding []float32, limit int, minScore float64) ([]kgraph.Scored, error) {
	if len(embedding) == 0 {
		return nil, nil
	}

	ids, err := s.backend.AllNodeIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("all node ids: %w", err)
	}

	var results []kgraph.Scored
	for _, id := range ids {
		if id == excludeID {
			continue
		}
		node, ok, err := s.backend.GetNode(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("get node %s: %w", id, err)
		}
		if !ok || len(node.Embedding) == 0 {
			continue
		}
		score := kgraph.CosineSimilarity(embedding, node.Embedding)
		if score >= minScore {
			results = append(results, kgraph.Scored{ID: id, Score: score})
		}
	}

	sortScored(results)
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// suggestConnections mirrors original_source's _generate_connection_suggestions:
// the top-3 similar candidates, bucketed into a connection type by
// similarity band.
func suggestConnections(top5 []kgraph.Scored) []ConnectionSuggestion {
	n := len(top5)
	if n > 3 {
		n = 3
	}

	out := make([]ConnectionSuggestion, 0, n)
	for _, c := range top5[:n] {
		var connType kgraph.EdgeType
		var reason string
		switch {
		case c.Score > 0.7:
			connType, reason = kgraph.EdgeParentChild, "very high content similarity"
		case c.Score > 0.5:
			connType, reason = kgraph.EdgeRelated, "high content similarity"
		default:
			connType, reason = kgraph.EdgeReference, "moderate content similarity"
		}
		out = append(out, ConnectionSuggestion{TargetID: c.ID, ConnectionType: connType, Similarity: c.Score, Reason: reason})
	}
	return out
}

// sortScored is a small helper kept for callers that build their own
// Scored slices outside the backend's own sort (e.g. selfcorrect).
func sortScored(s []kgraph.Scored) {
	sort.Slice(s, func(i, j int) bool {
		if s[i].Score != s[j].Score {
			return s[i].Score > s[j].Score
		}
		return s[i].ID < s[j].ID
	})
}
