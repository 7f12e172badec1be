package tools

import (
	"encoding/json"

	"github.com/brightpath-assess/toolgate/internal/catalog"
)

var ttsConfigSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"voice": {"type": "string"},
		"rate": {"type": "number", "minimum": 0.5, "maximum": 2.0},
		"highlightWords": {"type": "boolean"}
	},
	"additionalProperties": false
}`)

// TextToSpeech reads item and passage text aloud. Renders in the highlight
// band so word tracking draws over content without covering handles.
func TextToSpeech() *catalog.Descriptor {
	return &catalog.Descriptor{
		ToolID:          "textToSpeech",
		Name:            "Text to Speech",
		Description:     "Reads item and passage text aloud with word highlighting.",
		Band:            catalog.BandHighlight,
		SupportedLevels: []catalog.Level{catalog.LevelItem, catalog.LevelPassage},
		ExternalSupportIDs: []string{
			"textToSpeech",
			"tts",
			"read-aloud",
		},
		ConfigSchema: ttsConfigSchema,
		Relevant: func(sctx *catalog.StructuralContext) bool {
			return hasAnyContent(sctx, "text", "passage", "prompt")
		},
		Load: staticLoad("textToSpeech"),
	}
}
