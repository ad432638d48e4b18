package ragstore

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Chunk is one overlapping window of a larger document, produced by
// chunkWords. TokenCount is informational (cost/budget accounting in
// agents/ and the deep-research pipeline), not used to resize the chunk.
type Chunk struct {
	Index      int
	Content    string
	TokenCount int
}

var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
)

// tokenCount returns the cl100k_base token count for text, falling back to
// a whitespace word count if the encoder can't be loaded.
func tokenCount(text string) int {
	encOnce.Do(func() {
		e, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			enc = e
		}
	})
	if enc == nil {
		return len(strings.Fields(text))
	}
	return len(enc.Encode(text, nil, nil))
}

// chunkWords splits text into overlapping windows of chunkSize words with
// chunkOverlap words of repeat between consecutive chunks (spec default:
// 500/50), mirroring the teacher's RecursiveCharacterTextSplitter stride
// but operating on words instead of characters.
func chunkWords(text string, chunkSize, chunkOverlap int) []Chunk {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	if chunkSize <= 0 {
		chunkSize = 500
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = 0
	}

	stride := chunkSize - chunkOverlap
	var chunks []Chunk
	for start := 0; start < len(words); start += stride {
		end := start + chunkSize
		if end > len(words) {
			end = len(words)
		}
		content := strings.Join(words[start:end], " ")
		chunks = append(chunks, Chunk{
			Index:      len(chunks),
			Content:    content,
			TokenCount: tokenCount(content),
		})
		if end == len(words) {
			break
		}
	}
	return chunks
}
