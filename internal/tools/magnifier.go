package tools

import "github.com/brightpath-assess/toolgate/internal/catalog"

// Magnifier is a floating zoom lens. It attaches at section level and stays
// mounted across item navigation, so it is relevant everywhere.
func Magnifier() *catalog.Descriptor {
	return &catalog.Descriptor{
		ToolID:          "magnifier",
		Name:            "Magnifier",
		Description:     "Floating lens that magnifies any part of the screen.",
		Band:            catalog.BandNonModal,
		SupportedLevels: []catalog.Level{catalog.LevelSection, catalog.LevelItem, catalog.LevelPassage},
		ExternalSupportIDs: []string{
			"magnifier",
			"magnification",
			"zoom",
		},
		Relevant: func(_ *catalog.StructuralContext) bool {
			return true
		},
		Load: staticLoad("magnifier"),
	}
}
