// Package extract implements URL content extraction: per-host rate
// limiting, a 24h extraction cache, URL-type detection and dispatch,
// priority-ordered byte-stream converters with magic-byte sniffing, and
// card construction from an extraction payload. Grounded on
// original_source's extractors/ package (extraction_orchestrator.py,
// enhanced_extractor.py, converter_registry.py, file_detector.py,
// url_extractor.py) and spec.md §4.7.
package extract

// StreamInfo is metadata about a byte stream being converted: mimetype,
// extension, charset, filename, source url/local path. Augmented by
// file detection before converter dispatch (original StreamInfo).
type StreamInfo struct {
	Mimetype  string
	Charset   string
	Extension string
	Filename  string
	LocalPath string
	URL       string
}

// withGuess returns a copy of s with Mimetype (and, if ext != "",
// Extension) overridden. Mirrors StreamInfo.copy_and_update's partial-
// update semantics without mutating the receiver.
func (s StreamInfo) withGuess(mimetype, ext string) StreamInfo {
	out := s
	if mimetype != "" {
		out.Mimetype = mimetype
	}
	if ext != "" {
		out.Extension = ext
	}
	return out
}

// ConversionResult is what a Converter produces.
type ConversionResult struct {
	Title    string
	Content  string // markdown by default
	Text     string
	HTML     string
	Metadata map[string]any
	Success  bool
	Error    string
}
