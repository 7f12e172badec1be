package tools

import (
	"encoding/json"

	"github.com/brightpath-assess/toolgate/internal/catalog"
)

var calculatorConfigSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"mode": {"type": "string", "enum": ["basic", "scientific", "graphing"]},
		"allowMemory": {"type": "boolean"}
	},
	"additionalProperties": false
}`)

// Calculator is a modal calculator offered on math items. Items pick the
// mode through per-support config.
func Calculator() *catalog.Descriptor {
	return &catalog.Descriptor{
		ToolID:          "calculator",
		Name:            "Calculator",
		Description:     "On-screen calculator with basic, scientific and graphing modes.",
		Band:            catalog.BandModal,
		SupportedLevels: []catalog.Level{catalog.LevelItem},
		ExternalSupportIDs: []string{
			"calculator",
			"calc-basic",
			"calc-scientific",
			"calc-graphing",
		},
		ConfigSchema: calculatorConfigSchema,
		Relevant: func(sctx *catalog.StructuralContext) bool {
			return hasAnyContent(sctx, "math", "numeric-entry")
		},
		Load: staticLoad("calculator"),
	}
}
