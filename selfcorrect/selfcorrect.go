// Package selfcorrect is the periodic graph self-correction job: detect
// issues, propose bounded corrections, apply them, persist. Grounded on
// original_source's self_correction_job.py and spec.md §4.6, with the
// periodic-loop shape borrowed from graph.RetryNode's ticker/backoff
// style (graph/retry.go).
package selfcorrect

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/via-canvas/intelligence-core/category"
	"github.com/via-canvas/intelligence-core/kgraph"
	"github.com/via-canvas/intelligence-core/kgstate"
	"github.com/via-canvas/intelligence-core/log"
)

// Per-pass caps (spec §4.6).
const (
	maxOrphanFixes   = 10
	maxWeakRemovals  = 20
	maxCategoryFills = 20
	maxDuplicateFlags = 10

	// historyLimit bounds how many pass summaries Job retains for
	// observability.
	historyLimit = 50

	// minParentSimilarity is the floor for an orphan's best similar
	// card to be proposed as a parent.
	minParentSimilarity = 0.3
)

// ActionType names one kind of proposed correction.
type ActionType string

const (
	ActionAddParent      ActionType = "add_parent"
	ActionRemoveWeakEdge ActionType = "remove_weak_connection"
	ActionAddCategory    ActionType = "add_category"
	ActionFlagDuplicate  ActionType = "flag_duplicate"
)

// Correction is one proposed action, produced by generateCorrections and
// consumed by applyCorrections.
type Correction struct {
	Type       ActionType
	CardID     string
	ParentID   string
	SourceID   string
	TargetID   string
	Similarity float64
	Category   string
	Card2ID    string
	Reason     string
}

// PassResult summarizes one detect->propose->apply cycle.
type PassResult struct {
	Timestamp         time.Time
	Duration          time.Duration
	OrphanedCards     int
	WeakConnections   int
	MissingCategories int
	Duplicates        int
	CorrectionsApplied int
}

// Job periodically improves knowledge graph quality: detects orphaned
// cards, weak "similar" edges, uncategorized cards, and potential
// duplicates, then applies bounded, auto_corrected-marked fixes for each.
// Duplicates are only flagged, never auto-merged.
type Job struct {
	kg         *kgstate.State
	classifier *category.Classifier
	manager    *category.Manager
	logger     log.Logger

	mu      sync.Mutex
	history []PassResult
}

// New constructs a Job. classifier/manager may be nil, in which case
// missing-category corrections fall back to the literal "Uncategorized"
// category, matching original behavior when no dynamic category system
// is wired.
func New(kg *kgstate.State, classifier *category.Classifier, manager *category.Manager, logger log.Logger) *Job {
	if logger == nil {
		logger = log.NewDefaultLogger(log.LogLevelInfo)
	}
	return &Job{kg: kg, classifier: classifier, manager: manager, logger: logger}
}

// Run executes one self-correction cycle: detect, propose, apply,
// persist. The returned PassResult is also appended to the bounded
// history retained by History.
func (j *Job) Run(ctx context.Context) (PassResult, error) {
	start := time.Now()
	j.logger.Info("selfcorrect: starting pass")

	issues, missingCategories, err := j.detectIssues(ctx)
	if err != nil {
		return PassResult{}, fmt.Errorf("selfcorrect: detect issues: %w", err)
	}

	corrections := j.generateCorrections(ctx, issues, missingCategories)
	applied := j.applyCorrections(ctx, corrections)

	if err := j.kg.Backend().Persist(ctx); err != nil {
		j.logger.Error("selfcorrect: persist failed: %v", err)
	}

	result := PassResult{
		Timestamp:          start,
		Duration:           time.Since(start),
		OrphanedCards:      len(issues.OrphanedCards),
		WeakConnections:    len(issues.WeakConnections),
		MissingCategories:  len(missingCategories),
		Duplicates:         len(issues.PotentialDuplicates),
		CorrectionsApplied: applied,
	}

	j.mu.Lock()
	j.history = append(j.history, result)
	if len(j.history) > historyLimit {
		j.history = j.history[len(j.history)-historyLimit:]
	}
	j.mu.Unlock()

	j.logger.Info("selfcorrect: pass completed in %s, %d corrections applied", result.Duration, applied)
	return result, nil
}

// RunPeriodically calls Run on every tick of interval until ctx is
// canceled. Errors from individual passes are logged, not returned;
// the loop keeps running.
func (j *Job) RunPeriodically(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := j.Run(ctx); err != nil {
				j.logger.Error("selfcorrect: pass failed: %v", err)
			}
		}
	}
}

// History returns up to limit of the most recent pass summaries, most
// recent last.
func (j *Job) History(limit int) []PassResult {
	j.mu.Lock()
	defer j.mu.Unlock()
	if limit <= 0 || limit > len(j.history) {
		limit = len(j.history)
	}
	out := make([]PassResult, limit)
	copy(out, j.history[len(j.history)-limit:])
	return out
}

// Statistics summarizes all passes run so far.
type Statistics struct {
	TotalRuns        int
	TotalCorrections int
	LastRun          *PassResult
}

func (j *Job) Statistics() Statistics {
	j.mu.Lock()
	defer j.mu.Unlock()

	stats := Statistics{TotalRuns: len(j.history)}
	for _, r := range j.history {
		stats.TotalCorrections += r.CorrectionsApplied
	}
	if len(j.history) > 0 {
		last := j.history[len(j.history)-1]
		stats.LastRun = &last
	}
	return stats
}

// detectIssues combines kgstate's structural issue detection with a
// scan for nodes that still carry no category.
func (j *Job) detectIssues(ctx context.Context) (kgstate.Issues, []string, error) {
	issues, err := j.kg.DetectIssues(ctx)
	if err != nil {
		return kgstate.Issues{}, nil, err
	}

	backend := j.kg.Backend()
	ids, err := backend.AllNodeIDs(ctx)
	if err != nil {
		return kgstate.Issues{}, nil, err
	}

	var missingCategories []string
	for _, id := range ids {
		node, ok, err := backend.GetNode(ctx, id)
		if err != nil || !ok || node.Category == "" {
			missingCategories = append(missingCategories, id)
		}
	}

	j.logger.Info("selfcorrect: detected %d orphans, %d weak edges, %d missing categories, %d duplicates",
		len(issues.OrphanedCards), len(issues.WeakConnections), len(missingCategories), len(issues.PotentialDuplicates))

	return issues, missingCategories, nil
}

// generateCorrections proposes bounded fixes for each class of issue.
func (j *Job) generateCorrections(ctx context.Context, issues kgstate.Issues, missingCategories []string) []Correction {
	backend := j.kg.Backend()
	var corrections []Correction

	orphans := issues.OrphanedCards
	if len(orphans) > maxOrphanFixes {
		orphans = orphans[:maxOrphanFixes]
	}
	for _, cardID := range orphans {
		if _, ok, err := backend.GetNode(ctx, cardID); err != nil || !ok {
			continue
		}
		similar, err := backend.FindSimilarNodes(ctx, cardID, 5, minParentSimilarity)
		if err != nil || len(similar) == 0 {
			continue
		}
		best := similar[0]
		corrections = append(corrections, Correction{
			Type:       ActionAddParent,
			CardID:     cardID,
			ParentID:   best.ID,
			Similarity: best.Score,
			Reason:     "orphaned card - found similar parent",
		})
	}

	weak := issues.WeakConnections
	if len(weak) > maxWeakRemovals {
		weak = weak[:maxWeakRemovals]
	}
	for _, edge := range weak {
		corrections = append(corrections, Correction{
			Type:       ActionRemoveWeakEdge,
			SourceID:   edge.Source,
			TargetID:   edge.Target,
			Similarity: edge.Score,
			Reason:     fmt.Sprintf("weak connection (similarity: %.2f)", edge.Score),
		})
	}

	missing := missingCategories
	if len(missing) > maxCategoryFills {
		missing = missing[:maxCategoryFills]
	}
	for _, cardID := range missing {
		node, ok, err := backend.GetNode(ctx, cardID)
		if err != nil || !ok {
			continue
		}
		corrections = append(corrections, j.suggestCategory(ctx, cardID, node))
	}

	dups := issues.PotentialDuplicates
	if len(dups) > maxDuplicateFlags {
		dups = dups[:maxDuplicateFlags]
	}
	for _, pair := range dups {
		corrections = append(corrections, Correction{
			Type:       ActionFlagDuplicate,
			CardID:     pair.A,
			Card2ID:    pair.B,
			Similarity: pair.Score,
			Reason:     fmt.Sprintf("potential duplicate (similarity: %.2f)", pair.Score),
		})
	}

	j.logger.Info("selfcorrect: generated %d corrections", len(corrections))
	return corrections
}

// suggestCategory asks the dynamic category system (if wired) for a
// category, falling back to the literal "Uncategorized" on any error or
// absence of a category system, matching original behavior.
func (j *Job) suggestCategory(ctx context.Context, cardID string, node kgraph.Node) Correction {
	if j.classifier == nil {
		return Correction{Type: ActionAddCategory, CardID: cardID, Category: "Uncategorized", Reason: "missing category - no category system available"}
	}

	decision, err := j.classifier.Classify(ctx, node.Content, "", node.Embedding, nil, 10)
	if err != nil {
		j.logger.Error("selfcorrect: classify %s failed: %v", cardID, err)
		return Correction{Type: ActionAddCategory, CardID: cardID, Category: "Uncategorized", Reason: "missing category - fallback due to error"}
	}

	switch decision.Action {
	case category.ActionMatch:
		return Correction{Type: ActionAddCategory, CardID: cardID, Category: decision.CategoryName, Reason: "missing category - auto-categorized with dynamic system"}
	case category.ActionCreateNew:
		if decision.NewCategory != nil {
			return Correction{Type: ActionAddCategory, CardID: cardID, Category: decision.NewCategory.Name, Reason: "missing category - auto-categorized with dynamic system"}
		}
	}
	return Correction{Type: ActionAddCategory, CardID: cardID, Category: "Uncategorized", Reason: "missing category - auto-categorized with dynamic system"}
}

// applyCorrections applies each proposed correction, marking graph
// mutations auto_corrected=true, and returns the count applied. A
// failure on one correction is logged and skipped; it never aborts the
// rest of the pass.
func (j *Job) applyCorrections(ctx context.Context, corrections []Correction) int {
	backend := j.kg.Backend()
	applied := 0

	for _, c := range corrections {
		var err error
		switch c.Type {
		case ActionAddParent:
			_, err = backend.AddEdge(ctx, kgraph.Edge{
				Source: c.ParentID,
				Target: c.CardID,
				Type:   kgraph.EdgeParentChild,
				Weight: c.Similarity,
				Attributes: map[string]any{
					"auto_corrected":    true,
					"correction_reason": c.Reason,
				},
			})

		case ActionRemoveWeakEdge:
			err = backend.RemoveEdge(ctx, c.SourceID, c.TargetID, kgraph.EdgeSimilar)

		case ActionAddCategory:
			err = backend.UpdateNode(ctx, c.CardID, func(n *kgraph.Node) {
				n.Category = c.Category
				if n.Attributes == nil {
					n.Attributes = make(map[string]any)
				}
				n.Attributes["auto_categorized"] = true
			})
			if err == nil {
				j.updateCategorySystem(ctx, c.CardID, c.Category)
			}

		case ActionFlagDuplicate:
			err = backend.UpdateNode(ctx, c.CardID, func(n *kgraph.Node) {
				if n.Attributes == nil {
					n.Attributes = make(map[string]any)
				}
				n.Attributes["potential_duplicate_of"] = c.Card2ID
				n.Attributes["duplicate_similarity"] = c.Similarity
			})
		}

		if err != nil {
			j.logger.Error("selfcorrect: apply correction %s for %s failed: %v", c.Type, c.CardID, err)
			continue
		}
		applied++
	}

	j.logger.Info("selfcorrect: applied %d/%d corrections", applied, len(corrections))
	return applied
}

// updateCategorySystem reflects an auto-applied category fill into the
// dynamic category system, so the assigned profile's centroid and
// counters stay current. Failures are logged, not propagated: the node
// write already succeeded.
func (j *Job) updateCategorySystem(ctx context.Context, cardID, categoryName string) {
	if j.manager == nil {
		return
	}
	backend := j.kg.Backend()
	node, ok, err := backend.GetNode(ctx, cardID)
	if err != nil || !ok {
		return
	}
	profile, found, err := j.manager.ProfileByName(ctx, categoryName)
	if err != nil || !found {
		return
	}
	if _, err := j.manager.UpdateProfileWithCard(ctx, profile.ID, category.CardInput{
		Content: node.Content, Embedding: node.Embedding,
	}, nil, false); err != nil {
		j.logger.Error("selfcorrect: update category system for %s failed: %v", cardID, err)
	}
}
