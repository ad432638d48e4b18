package extract

import (
	"context"
	"testing"
)

// TranscribeFromURL talks to AssemblyAI's API directly; there is no local
// fake for *aai.Client; the nil-client guard is the one deterministic
// unit-testable path here, the rest is exercised manually against the
// AssemblyAI account issuing the API key.
func TestVideoExtractorRequiresClient(t *testing.T) {
	v := NewVideoExtractor(nil)
	_, err := v.Extract(context.Background(), "https://example.com/video")
	if err == nil {
		t.Error("expected an error when no AssemblyAI client is configured")
	}
}
