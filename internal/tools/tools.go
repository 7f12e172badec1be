// Package tools holds the built-in assistive tool descriptors. Each tool
// lives in its own file; Builtin returns the full set for catalog
// registration at process start.
package tools

import (
	"context"
	"encoding/json"

	"github.com/brightpath-assess/toolgate/internal/catalog"
	"github.com/google/uuid"
)

// Builtin returns descriptors for every built-in tool.
func Builtin() []*catalog.Descriptor {
	return []*catalog.Descriptor{
		Calculator(),
		TextToSpeech(),
		Ruler(),
		Protractor(),
		ReadingGuide(),
		Dictionary(),
		AnswerEliminator(),
		Magnifier(),
	}
}

// RegisterBuiltin registers every built-in tool with the catalog.
func RegisterBuiltin(cat *catalog.Catalog) {
	for _, d := range Builtin() {
		cat.Register(d)
	}
}

// staticImplementation is the in-process Implementation shared by the
// built-in tools. Real surfaces are mounted by the hosting player; the engine
// only needs a handle it can track and close.
type staticImplementation struct {
	toolID string
}

func (impl *staticImplementation) NewAffordance(_ *catalog.StructuralContext, _ json.RawMessage) (catalog.Affordance, error) {
	return &staticAffordance{id: impl.toolID + ":" + uuid.NewString()}, nil
}

type staticAffordance struct {
	id string
}

func (a *staticAffordance) InstanceID() string { return a.id }
func (a *staticAffordance) Close()             {}

// staticLoad builds a LoadFunc for a built-in tool. Built-ins have no bundle
// to fetch, so the load is immediate; ctx is honored for uniformity.
func staticLoad(toolID string) catalog.LoadFunc {
	return func(ctx context.Context) (catalog.Implementation, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return &staticImplementation{toolID: toolID}, nil
	}
}

// hasAnyContent reports whether the context carries any of the given kinds.
func hasAnyContent(sctx *catalog.StructuralContext, kinds ...string) bool {
	for _, k := range kinds {
		if sctx.HasContent(k) {
			return true
		}
	}
	return false
}
