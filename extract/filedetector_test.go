package extract

import "testing"

func TestDetectStreamInfoMagicBytesPDF(t *testing.T) {
	guesses := DetectStreamInfo([]byte("%PDF-1.4 rest of file"), StreamInfo{Filename: "doc.bin"})
	if len(guesses) == 0 {
		t.Fatal("expected at least one guess")
	}
	if guesses[0].Mimetype != "application/pdf" {
		t.Errorf("expected application/pdf, got %q", guesses[0].Mimetype)
	}
	if guesses[0].Extension != ".pdf" {
		t.Errorf("expected .pdf extension, got %q", guesses[0].Extension)
	}
}

func TestDetectStreamInfoWebpRequiresWebpMarker(t *testing.T) {
	notWebp := append([]byte("RIFF"), []byte{0, 0, 0, 0, 'A', 'V', 'I', ' '}...)
	guesses := DetectStreamInfo(notWebp, StreamInfo{})
	if guesses[0].Mimetype == "image/webp" {
		t.Error("should not detect webp without WEBP marker")
	}

	webp := append([]byte("RIFF"), []byte{0, 0, 0, 0, 'W', 'E', 'B', 'P'}...)
	guesses = DetectStreamInfo(webp, StreamInfo{})
	if guesses[0].Mimetype != "image/webp" {
		t.Errorf("expected image/webp, got %q", guesses[0].Mimetype)
	}
}

func TestDetectStreamInfoFallsBackToBaseWhenNoGuess(t *testing.T) {
	base := StreamInfo{Filename: "mystery"}
	guesses := DetectStreamInfo([]byte("plain unrecognized bytes"), base)
	if len(guesses) != 1 || guesses[0] != base {
		t.Errorf("expected fallback to base info, got %+v", guesses)
	}
}

func TestIsTextFile(t *testing.T) {
	if !IsTextFile(StreamInfo{Mimetype: "text/plain"}) {
		t.Error("text/plain should be text")
	}
	if !IsTextFile(StreamInfo{Mimetype: "application/json"}) {
		t.Error("application/json should be text")
	}
	if IsTextFile(StreamInfo{Mimetype: "application/pdf"}) {
		t.Error("application/pdf should not be text")
	}
	if IsTextFile(StreamInfo{}) {
		t.Error("empty mimetype should not be text")
	}
}
