package catalog

// Level identifies where in the assessment structure a tool can attach.
type Level string

const (
	LevelAssessment Level = "assessment"
	LevelSection    Level = "section"
	LevelItem       Level = "item"
	LevelPassage    Level = "passage"
	LevelElement    Level = "element"
)

// StructuralContext describes the concrete slice of assessment content a
// relevance decision is being made for. Contexts are built by the player
// surface and passed through untouched; the engine never mutates one.
type StructuralContext struct {
	AssessmentID string
	SectionID    string
	ItemID       string
	PassageID    string
	ElementID    string

	Level Level

	// ContentKinds lists the content features present in this context
	// ("geometry", "plain_text", "numeric_entry", ...). Relevance
	// predicates key off these.
	ContentKinds []string

	// ContentReady is false while the content for this context is still
	// loading. Visibility computation degrades to pass-1-only until it
	// flips true.
	ContentReady bool

	// Elements holds finer-grained sub-contexts (e.g. the interactive
	// elements inside an item). A tool relevant to any element is
	// relevant to the containing context.
	Elements []*StructuralContext
}

// HasContent reports whether the context carries the given content kind.
func (c *StructuralContext) HasContent(kind string) bool {
	for _, k := range c.ContentKinds {
		if k == kind {
			return true
		}
	}
	return false
}
