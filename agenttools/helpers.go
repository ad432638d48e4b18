package agenttools

import "github.com/via-canvas/intelligence-core/canvas"

// canvasContentPatch builds a CardPatch that only touches Content.
func canvasContentPatch(content string) canvas.CardPatch {
	return canvas.CardPatch{Content: &content}
}
