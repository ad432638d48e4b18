package agenttools

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/via-canvas/intelligence-core/canvas"
)

// DeepResearchArgs is deep_research's argument contract: the multi-stage
// pipeline the learning-assistant specialist runs for an open-ended
// research question (spec §4.10).
type DeepResearchArgs struct {
	CanvasID string `json:"canvas_id"`
	Topic    string `json:"topic"`
}

// DeepResearchResult reports the hierarchical cluster the pipeline wrote
// to the canvas.
type DeepResearchResult struct {
	ParentCardID string   `json:"parent_card_id"`
	ChildCardIDs []string `json:"child_card_ids"`
	Subquestions []string `json:"subquestions"`
}

// maxReviewIterations bounds the critical-review gap-closing loop (spec
// §4.10: "up to 2 iteration loops addressing gaps").
const maxReviewIterations = 2

// findingSource tags which of the three parallel search lanes produced a
// finding, for citation in the synthesis prompt.
type findingSource struct {
	subquestion string
	lane        string // "canvas", "academic", "llm_insight"
	text        string
	cardID      string // set only for the canvas lane
}

// NewDeepResearchTool runs query analysis -> decomposition -> parallel
// search across canvas/academic/LLM-insight sources -> critical review
// (up to maxReviewIterations gap-closing rounds) -> synthesis ->
// hierarchical card cluster creation with citations (spec §4.10).
//
// The "academic-source search" lane uses d.WebSearch (Deps.WebSearch)
// when configured, then asks the model to extract established facts
// from the raw results; with no search API configured it falls back to
// the model's own knowledge, same as the "LLM insight" lane but prompted
// to foreground citable facts over opinion.
func NewDeepResearchTool(d Deps) Tool {
	return NewFuncTool("deep_research",
		"Run a multi-stage research pipeline on a topic, producing a cited hierarchical cluster of canvas cards.",
		func(ctx context.Context, args DeepResearchArgs) (DeepResearchResult, error) {
			subquestions, err := decompose(ctx, d, args.Topic)
			if err != nil {
				return DeepResearchResult{}, fmt.Errorf("deep_research: decompose: %w", err)
			}

			findings := searchAll(ctx, d, args.CanvasID, subquestions)

			for round := 0; round < maxReviewIterations; round++ {
				gaps, err := reviewGaps(ctx, d, args.Topic, findings)
				if err != nil || len(gaps) == 0 {
					break
				}
				findings = append(findings, searchAll(ctx, d, args.CanvasID, gaps)...)
			}

			synthesis, err := synthesize(ctx, d, args.Topic, findings)
			if err != nil {
				return DeepResearchResult{}, fmt.Errorf("deep_research: synthesize: %w", err)
			}

			parent, err := d.Canvas.CreateCard(ctx, canvas.Card{
				CanvasID:   args.CanvasID,
				Title:      "Research: " + args.Topic,
				Content:    synthesis,
				CardType:   canvas.CardTypeRichText,
				SourceType: canvas.SourceTypeAIGenerated,
			})
			if err != nil {
				return DeepResearchResult{}, fmt.Errorf("deep_research: create parent card: %w", err)
			}

			var childIDs []string
			for _, sq := range subquestions {
				section := renderSection(findings, sq)
				if section == "" {
					continue
				}
				child, err := d.Canvas.CreateCard(ctx, canvas.Card{
					CanvasID: args.CanvasID, Title: sq, Content: section,
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

			return DeepResearchResult{ParentCardID: parent.ID, ChildCardIDs: childIDs, Subquestions: subquestions}, nil
		})
}

// decompose asks the model to break topic into 3-5 concrete
// subquestions, one per line.
func decompose(ctx context.Context, d Deps, topic string) ([]string, error) {
	prompt := fmt.Sprintf(
		"Break this research topic into 3 to 5 concrete subquestions, one per line, no numbering:\n\n%s", topic,
	)
	out, err := d.Provider.Call(ctx, prompt)
	if err != nil {
		return nil, err
	}
	return splitNonEmptyLines(out), nil
}

// searchAll fans each subquestion out across canvas/academic/LLM-insight
// lanes concurrently, mirroring the fan-out/collect shape
// graph/parallel.go's ParallelNode uses for its own worker pool.
func searchAll(ctx context.Context, d Deps, canvasID string, subquestions []string) []findingSource {
	type job struct {
		sq   string
		lane string
	}
	var jobs []job
	for _, sq := range subquestions {
		jobs = append(jobs, job{sq, "canvas"}, job{sq, "academic"}, job{sq, "llm_insight"})
	}

	results := make([]findingSource, len(jobs))
	var wg sync.WaitGroup
	for i, j := range jobs {
		wg.Add(1)
		go func(idx int, j job) {
			defer wg.Done()
			results[idx] = searchOne(ctx, d, canvasID, j.sq, j.lane)
		}(i, j)
	}
	wg.Wait()

	out := make([]findingSource, 0, len(results))
	for _, r := range results {
		if r.text != "" {
			out = append(out, r)
		}
	}
	return out
}

func searchOne(ctx context.Context, d Deps, canvasID, subquestion, lane string) findingSource {
	switch lane {
	case "canvas":
		if d.RAG == nil {
			return findingSource{}
		}
		results, err := d.RAG.Search(ctx, subquestion, canvasID, "", 3, 0.2)
		if err != nil || len(results) == 0 {
			return findingSource{}
		}
		var b strings.Builder
		for _, r := range results {
			b.WriteString(r.Content)
			b.WriteString("\n")
		}
		return findingSource{subquestion: subquestion, lane: lane, text: b.String(), cardID: results[0].EntityID}
	case "academic":
		if d.WebSearch != nil {
			if raw, err := d.WebSearch.Search(ctx, subquestion); err == nil {
				out, err := d.Provider.Call(ctx, fmt.Sprintf(
					"Extract the established facts (no speculation) relevant to %q from these search results:\n\n%s",
					subquestion, raw))
				if err == nil {
					return findingSource{subquestion: subquestion, lane: lane, text: out}
				}
			}
		}
		out, err := d.Provider.Call(ctx, fmt.Sprintf(
			"Cite established facts (no speculation) relevant to: %s", subquestion))
		if err != nil {
			return findingSource{}
		}
		return findingSource{subquestion: subquestion, lane: lane, text: out}
	default: // llm_insight
		out, err := d.Provider.Call(ctx, fmt.Sprintf(
			"Offer an insight or connection relevant to: %s", subquestion))
		if err != nil {
			return findingSource{}
		}
		return findingSource{subquestion: subquestion, lane: lane, text: out}
	}
}

// reviewGaps asks the model to critique the findings so far and name any
// unanswered subquestions; an empty/"NONE" reply ends the review loop.
func reviewGaps(ctx context.Context, d Deps, topic string, findings []findingSource) ([]string, error) {
	prompt := fmt.Sprintf(
		"Topic: %s\n\nFindings so far:\n%s\n\nWhat important subquestions remain unanswered? One per line. Reply NONE if none.",
		topic, renderAllFindings(findings),
	)
	out, err := d.Provider.Call(ctx, prompt)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(strings.ToUpper(out)) == "NONE" {
		return nil, nil
	}
	return splitNonEmptyLines(out), nil
}

func synthesize(ctx context.Context, d Deps, topic string, findings []findingSource) (string, error) {
	prompt := fmt.Sprintf(
		"Synthesize a clear, well-organized report on %q from the findings below. Cite the source lane in parentheses after each claim.\n\n%s",
		topic, renderAllFindings(findings),
	)
	out, err := d.Provider.Call(ctx, prompt)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func renderAllFindings(findings []findingSource) string {
	var b strings.Builder
	for _, f := range findings {
		fmt.Fprintf(&b, "[%s / %s] %s\n", f.subquestion, f.lane, f.text)
	}
	return b.String()
}

func renderSection(findings []findingSource, subquestion string) string {
	var b strings.Builder
	for _, f := range findings {
		if f.subquestion != subquestion {
			continue
		}
		fmt.Fprintf(&b, "(%s) %s\n\n", f.lane, f.text)
	}
	return strings.TrimSpace(b.String())
}

func splitNonEmptyLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "-"))
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}
