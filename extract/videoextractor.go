package extract

import (
	"context"
	"fmt"

	aai "github.com/AssemblyAI/assemblyai-go-sdk"
)

// VideoExtractor transcribes the audio track of a video-host URL so the
// rest of the pipeline has text to hand to card construction, the same
// role the original's video extractor played ahead of the generic
// enhanced extractor.
type VideoExtractor struct {
	client *aai.Client
}

// NewVideoExtractor wraps an AssemblyAI client constructed with the
// caller's API key (aai.NewClient(apiKey)).
func NewVideoExtractor(client *aai.Client) *VideoExtractor {
	return &VideoExtractor{client: client}
}

// Extract submits rawURL for transcription and waits for AssemblyAI to
// finish processing it, returning the transcript as extracted text.
func (v *VideoExtractor) Extract(ctx context.Context, rawURL string) (ExtractionResult, error) {
	if v.client == nil {
		return ExtractionResult{}, fmt.Errorf("extract: video extractor has no AssemblyAI client configured")
	}

	transcript, err := v.client.Transcripts.TranscribeFromURL(ctx, rawURL, nil)
	if err != nil {
		return ExtractionResult{}, fmt.Errorf("extract: transcribe %s: %w", rawURL, err)
	}

	if transcript.Status == aai.TranscriptStatusError {
		msg := "transcription failed"
		if transcript.Error != nil {
			msg = *transcript.Error
		}
		return ExtractionResult{Title: rawURL, Success: false, ExtractionMethod: "video-transcript", Error: msg}, nil
	}

	text := ""
	if transcript.Text != nil {
		text = *transcript.Text
	}
	if len(text) < minExtractedChars {
		return ExtractionResult{
			Title: rawURL, Success: false, ExtractionMethod: "video-transcript",
			Error: "transcript too short to use as extracted content",
		}, nil
	}

	return ExtractionResult{
		Title:            rawURL,
		Content:          text,
		Text:             text,
		Success:          true,
		ExtractionMethod: "video-transcript",
		Metadata:         map[string]any{"url": rawURL},
	}, nil
}
