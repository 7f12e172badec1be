package tools

import "github.com/brightpath-assess/toolgate/internal/catalog"

// AnswerEliminator lets students strike through answer choices. Only
// pertinent where selectable choices exist.
func AnswerEliminator() *catalog.Descriptor {
	return &catalog.Descriptor{
		ToolID:          "answerEliminator",
		Name:            "Answer Eliminator",
		Description:     "Strike through answer choices to narrow options.",
		Band:            catalog.BandNonModal,
		SupportedLevels: []catalog.Level{catalog.LevelItem, catalog.LevelElement},
		ExternalSupportIDs: []string{
			"answerEliminator",
			"answer-masking",
		},
		Relevant: func(sctx *catalog.StructuralContext) bool {
			return hasAnyContent(sctx, "multiple-choice", "choice")
		},
		Load: staticLoad("answerEliminator"),
	}
}
