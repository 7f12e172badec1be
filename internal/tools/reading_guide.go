package tools

import "github.com/brightpath-assess/toolgate/internal/catalog"

// ReadingGuide is a movable line-focus strip for long passages.
func ReadingGuide() *catalog.Descriptor {
	return &catalog.Descriptor{
		ToolID:          "readingGuide",
		Name:            "Reading Guide",
		Description:     "Movable strip that isolates one line of text at a time.",
		Band:            catalog.BandNonModal,
		SupportedLevels: []catalog.Level{catalog.LevelItem, catalog.LevelPassage},
		ExternalSupportIDs: []string{
			"readingGuide",
			"line-reader",
		},
		Relevant: func(sctx *catalog.StructuralContext) bool {
			return hasAnyContent(sctx, "text", "passage")
		},
		Load: staticLoad("readingGuide"),
	}
}
