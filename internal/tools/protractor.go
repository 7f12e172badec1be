package tools

import "github.com/brightpath-assess/toolgate/internal/catalog"

// Protractor measures angles on geometry items.
func Protractor() *catalog.Descriptor {
	return &catalog.Descriptor{
		ToolID:          "protractor",
		Name:            "Protractor",
		Description:     "Draggable protractor for angle measurement.",
		Band:            catalog.BandNonModal,
		SupportedLevels: []catalog.Level{catalog.LevelItem},
		ExternalSupportIDs: []string{
			"protractor",
		},
		Relevant: func(sctx *catalog.StructuralContext) bool {
			return hasAnyContent(sctx, "geometry", "angle")
		},
		Load: staticLoad("protractor"),
	}
}
