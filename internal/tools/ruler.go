package tools

import (
	"encoding/json"

	"github.com/brightpath-assess/toolgate/internal/catalog"
)

var rulerConfigSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"units": {"type": "string", "enum": ["cm", "in", "both"]}
	},
	"additionalProperties": false
}`)

// Ruler is a draggable measuring tool for geometry and measurement items.
// Not relevant on plain-text content.
func Ruler() *catalog.Descriptor {
	return &catalog.Descriptor{
		ToolID:          "ruler",
		Name:            "Ruler",
		Description:     "Draggable on-screen ruler for measurement tasks.",
		Band:            catalog.BandNonModal,
		SupportedLevels: []catalog.Level{catalog.LevelItem, catalog.LevelPassage},
		ExternalSupportIDs: []string{
			"ruler",
			"ruler-cm",
			"ruler-in",
		},
		ConfigSchema: rulerConfigSchema,
		Relevant: func(sctx *catalog.StructuralContext) bool {
			return hasAnyContent(sctx, "geometry", "measurement", "graph")
		},
		Load: staticLoad("ruler"),
	}
}
