package extract

import (
	"sort"
	"strings"

	"github.com/dlclark/regexp2"
)

// blockPattern pairs a label's regex with the CodeBlock kind it produces.
// The lookahead-bearing pattern below is why this uses regexp2 rather
// than the standard library's RE2 engine: it captures a label line and
// everything up to (but not including) the next label or the end of the
// text, which needs variable-length lookahead RE2 doesn't support.
type blockPattern struct {
	kind  string
	regex *regexp2.Regexp
}

var blockPatterns = []blockPattern{
	{KindExample, regexp2.MustCompile(`(?is)Example:\s*(.*?)(?=\n\s*(Example|Pattern|Usage):|\z)`, regexp2.None)},
	{KindPattern, regexp2.MustCompile(`(?is)Pattern:\s*(.*?)(?=\n\s*(Example|Pattern|Usage):|\z)`, regexp2.None)},
	{KindUsage, regexp2.MustCompile(`(?is)Usage:\s*(.*?)(?=\n\s*(Example|Pattern|Usage):|\z)`, regexp2.None)},
}

type codeBlockMatch struct {
	index int
	block CodeBlock
}

// ExtractCodeBlocks scans text for "Example:"/"Pattern:"/"Usage:" labeled
// blocks (spec §4.7 bullet iii) and returns one CodeBlock per match, in
// the order they appear in text.
func ExtractCodeBlocks(text string) []CodeBlock {
	var matches []codeBlockMatch

	for _, bp := range blockPatterns {
		m, err := bp.regex.FindStringMatch(text)
		for err == nil && m != nil {
			groups := m.Groups()
			if len(groups) > 1 {
				content := strings.TrimSpace(groups[1].String())
				if content != "" {
					matches = append(matches, codeBlockMatch{index: m.Index, block: CodeBlock{Kind: bp.kind, Content: content}})
				}
			}
			m, err = bp.regex.FindNextMatch(m)
		}
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].index < matches[j].index })

	blocks := make([]CodeBlock, len(matches))
	for i, mt := range matches {
		blocks[i] = mt.block
	}
	return blocks
}
