package extract

import "testing"

func TestExtractCodeBlocksFindsAllLabeledKinds(t *testing.T) {
	text := `Intro paragraph.

Example: fmt.Println("hello")
more example text

Pattern: worker pool with bounded channel

Usage: call Run() once at startup
`
	blocks := ExtractCodeBlocks(text)
	if len(blocks) != 3 {
		t.Fatalf("expected 3 blocks, got %d: %+v", len(blocks), blocks)
	}

	kinds := map[string]bool{}
	for _, b := range blocks {
		kinds[b.Kind] = true
		if b.Content == "" {
			t.Errorf("block of kind %q has empty content", b.Kind)
		}
	}
	for _, want := range []string{KindExample, KindPattern, KindUsage} {
		if !kinds[want] {
			t.Errorf("expected a block of kind %q", want)
		}
	}
}

func TestExtractCodeBlocksPreservesOrder(t *testing.T) {
	text := "Usage: first\n\nExample: second\n\nPattern: third"
	blocks := ExtractCodeBlocks(text)
	if len(blocks) != 3 {
		t.Fatalf("expected 3 blocks, got %d", len(blocks))
	}
	if blocks[0].Kind != KindUsage || blocks[1].Kind != KindExample || blocks[2].Kind != KindPattern {
		t.Errorf("expected usage, example, pattern order, got %v, %v, %v", blocks[0].Kind, blocks[1].Kind, blocks[2].Kind)
	}
}

func TestExtractCodeBlocksReturnsNoneWhenUnlabeled(t *testing.T) {
	blocks := ExtractCodeBlocks("just a plain paragraph with no labeled blocks.")
	if len(blocks) != 0 {
		t.Errorf("expected no blocks, got %d", len(blocks))
	}
}
