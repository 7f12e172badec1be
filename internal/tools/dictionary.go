package tools

import "github.com/brightpath-assess/toolgate/internal/catalog"

// Dictionary is a modal lookup tool. Districts commonly block it on
// vocabulary assessments through policy, so it carries no relevance
// restriction of its own beyond text content.
func Dictionary() *catalog.Descriptor {
	return &catalog.Descriptor{
		ToolID:          "dictionary",
		Name:            "Dictionary",
		Description:     "Word lookup with student-friendly definitions.",
		Band:            catalog.BandModal,
		SupportedLevels: []catalog.Level{catalog.LevelItem, catalog.LevelPassage},
		ExternalSupportIDs: []string{
			"dictionary",
			"glossary",
		},
		Relevant: func(sctx *catalog.StructuralContext) bool {
			return hasAnyContent(sctx, "text", "passage", "prompt")
		},
		Load: staticLoad("dictionary"),
	}
}
