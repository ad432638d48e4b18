package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// minExtractedChars is the length a fallback-chain method must clear to
// be accepted (spec §4.7: "First method that returns ≥ 100 characters
// wins").
const minExtractedChars = 100

// fetchTimeout bounds the outbound HTTP fetch for enhanced extraction.
const fetchTimeout = 30 * time.Second

// extractionMethod is one link of EnhancedExtractor's fallback chain.
type extractionMethod struct {
	name string
	run  func(doc *goquery.Document) (title, content string)
}

// EnhancedExtractor fetches a URL once and runs a fallback chain of
// extraction methods over the resulting HTML, in order of how
// structurally confident they are, accepting the first method whose
// output clears minExtractedChars (original EnhancedExtractor.extract's
// "structural -> rendered-readability -> article-library -> raw" chain,
// all four expressed here as goquery-based passes since no headless-
// browser or readability library is available to wire; see DESIGN.md).
type EnhancedExtractor struct {
	httpClient *http.Client
}

// NewEnhancedExtractor returns an EnhancedExtractor using client, or a
// default fetchTimeout-bounded client if client is nil.
func NewEnhancedExtractor(client *http.Client) *EnhancedExtractor {
	if client == nil {
		client = &http.Client{Timeout: fetchTimeout}
	}
	return &EnhancedExtractor{httpClient: client}
}

// Extract fetches rawURL and runs the fallback chain, returning the
// first method's output to clear minExtractedChars.
func (e *EnhancedExtractor) Extract(ctx context.Context, rawURL string) (ExtractionResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return ExtractionResult{}, fmt.Errorf("extract: build request: %w", err)
	}
	req.Header.Set("User-Agent", "Via-Canvas-Bot/1.0 (Content Extraction for Mind Mapping)")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return ExtractionResult{}, fmt.Errorf("extract: fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return ExtractionResult{}, fmt.Errorf("extract: fetch %s: status %d", rawURL, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return ExtractionResult{}, fmt.Errorf("extract: read body of %s: %w", rawURL, err)
	}

	for _, method := range e.chain() {
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
		if err != nil {
			return ExtractionResult{}, fmt.Errorf("extract: parse html of %s: %w", rawURL, err)
		}
		title, content := method.run(doc)
		content = collapseWhitespace(content)
		if len(content) >= minExtractedChars {
			return ExtractionResult{
				Title:            firstNonEmpty(title, rawURL),
				Content:          content,
				Text:             content,
				Success:          true,
				ExtractionMethod: method.name,
				Metadata:         map[string]any{"url": rawURL},
			}, nil
		}
	}

	return ExtractionResult{
		Title:            rawURL,
		Success:          false,
		ExtractionMethod: "none",
		Metadata:         map[string]any{"url": rawURL},
		Error:            "no extraction method produced sufficient content",
	}, nil
}

func (e *EnhancedExtractor) chain() []extractionMethod {
	return []extractionMethod{
		{"structural", extractStructural},
		{"rendered-readability", extractDensestBlock},
		{"article-library", extractArticleTag},
		{"raw-html", extractRawBody},
	}
}

// extractStructural looks for <article> or <main>, the highest-
// confidence structural signal a page can offer.
func extractStructural(doc *goquery.Document) (string, string) {
	title := strings.TrimSpace(doc.Find("title").First().Text())
	doc.Find("script, style, nav, footer, aside").Remove()

	sel := doc.Find("article").First()
	if sel.Length() == 0 {
		sel = doc.Find("main").First()
	}
	if sel.Length() == 0 {
		return title, ""
	}
	return title, sel.Text()
}

// extractDensestBlock picks the <div>/<section> with the most text per
// descendant tag, a crude stand-in for a headless-browser-rendered
// readability pass (no headless browser is wired).
func extractDensestBlock(doc *goquery.Document) (string, string) {
	title := strings.TrimSpace(doc.Find("title").First().Text())
	doc.Find("script, style, nav, footer, aside").Remove()

	best := ""
	bestDensity := 0.0
	doc.Find("div, section").Each(func(_ int, sel *goquery.Selection) {
		text := strings.TrimSpace(sel.Text())
		if text == "" {
			return
		}
		tagCount := sel.Find("*").Length() + 1
		density := float64(len(text)) / float64(tagCount)
		if density > bestDensity {
			bestDensity = density
			best = text
		}
	})
	return title, best
}

// extractArticleTag re-tries structural extraction over the remaining
// body (original's "article-oriented library" stage, here a second
// structural pass over <p> tags, roughly what an article-extraction
// library does once no semantic container is present).
func extractArticleTag(doc *goquery.Document) (string, string) {
	title := strings.TrimSpace(doc.Find("title").First().Text())
	doc.Find("script, style, nav, footer, aside").Remove()

	var b strings.Builder
	doc.Find("p").Each(func(_ int, sel *goquery.Selection) {
		text := strings.TrimSpace(sel.Text())
		if text != "" {
			b.WriteString(text)
			b.WriteString("\n")
		}
	})
	return title, b.String()
}

// extractRawBody is the final fallback: the whole body's text.
func extractRawBody(doc *goquery.Document) (string, string) {
	title := strings.TrimSpace(doc.Find("title").First().Text())
	doc.Find("script, style").Remove()
	return title, doc.Find("body").Text()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
