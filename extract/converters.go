package extract

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ledongthuc/pdf"
	"github.com/microcosm-cc/bluemonday"
)

// HTMLConverter extracts title/text/sanitized-HTML from an HTML byte
// stream (original's BeautifulSoup-based basic extraction, ported to
// goquery + bluemonday). Registered at PriorityGeneric: HTML is the
// catch-all for anything a more specific converter declined.
type HTMLConverter struct {
	sanitizer *bluemonday.Policy
}

// NewHTMLConverter returns an HTMLConverter with a UGC sanitization
// policy applied to the HTML it returns.
func NewHTMLConverter() *HTMLConverter {
	return &HTMLConverter{sanitizer: bluemonday.UGCPolicy()}
}

func (c *HTMLConverter) Name() string { return "html" }

func (c *HTMLConverter) Accepts(_ []byte, info StreamInfo) bool {
	if info.Mimetype != "" {
		return strings.HasPrefix(info.Mimetype, "text/html") || strings.Contains(info.Mimetype, "xhtml")
	}
	ext := info.Extension
	if ext == "" {
		ext = extensionOf(info.Filename)
	}
	return ext == ".html" || ext == ".htm"
}

func (c *HTMLConverter) Convert(data []byte, info StreamInfo) ConversionResult {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return ConversionResult{Title: info.Filename, Success: false, Error: fmt.Sprintf("html parse: %v", err)}
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		title = info.Filename
		if title == "" {
			title = info.URL
		}
	}

	doc.Find("script, style, nav, footer").Remove()

	rawHTML, err := doc.Html()
	if err != nil {
		rawHTML = ""
	}

	text := collapseWhitespace(doc.Text())
	if len(text) < 1 {
		return ConversionResult{Title: title, Success: false, Error: "html conversion produced no text"}
	}

	return ConversionResult{
		Title:    title,
		Content:  text,
		Text:     text,
		HTML:     c.sanitizer.Sanitize(rawHTML),
		Metadata: map[string]any{"url": info.URL},
		Success:  true,
	}
}

func collapseWhitespace(s string) string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

// PDFConverter extracts plain text from a PDF byte stream via
// ledongthuc/pdf. Registered at PrioritySpecific.
type PDFConverter struct{}

func (PDFConverter) Name() string { return "pdf" }

func (PDFConverter) Accepts(data []byte, info StreamInfo) bool {
	if info.Mimetype == "application/pdf" || info.Extension == ".pdf" {
		return true
	}
	return bytes.HasPrefix(data, []byte("%PDF"))
}

func (PDFConverter) Convert(data []byte, info StreamInfo) ConversionResult {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return ConversionResult{Title: info.Filename, Success: false, Error: fmt.Sprintf("pdf open: %v", err)}
	}

	textReader, err := reader.GetPlainText()
	if err != nil {
		return ConversionResult{Title: info.Filename, Success: false, Error: fmt.Sprintf("pdf extract: %v", err)}
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, textReader); err != nil {
		return ConversionResult{Title: info.Filename, Success: false, Error: fmt.Sprintf("pdf read: %v", err)}
	}

	text := collapseWhitespace(buf.String())
	if text == "" {
		return ConversionResult{Title: info.Filename, Success: false, Error: "pdf produced no extractable text"}
	}

	title := info.Filename
	if title == "" {
		title = info.URL
	}
	return ConversionResult{
		Title:    title,
		Content:  text,
		Text:     text,
		Metadata: map[string]any{"pages": reader.NumPage()},
		Success:  true,
	}
}

// ImageConverter handles image byte streams. It does not itself run OCR
// or a vision model — that requires a model.Provider round-trip the
// converter registry is deliberately decoupled from — so it returns a
// placeholder result flagging the need for vision captioning, for the
// card-construction layer to fill in from the image's surrounding
// context (alt text, caption, filename).
type ImageConverter struct{}

func (ImageConverter) Name() string { return "image" }

func (ImageConverter) Accepts(_ []byte, info StreamInfo) bool {
	return strings.HasPrefix(info.Mimetype, "image/")
}

func (ImageConverter) Convert(_ []byte, info StreamInfo) ConversionResult {
	title := info.Filename
	if title == "" {
		title = info.URL
	}
	if title == "" {
		title = "image"
	}
	return ConversionResult{
		Title:    title,
		Content:  "",
		Metadata: map[string]any{"requires_vision_captioning": true, "mimetype": info.Mimetype},
		Success:  true,
	}
}
