package catalog

import (
	"context"
	"encoding/json"
)

// Band names the z-index band a tool's affordance renders in. The numeric
// ranges live with the runtime coordinator, which owns stacking order.
type Band string

const (
	BandContent   Band = "content"   // assessment content, chrome
	BandNonModal  Band = "non_modal" // ruler, protractor, reading guide
	BandModal     Band = "modal"     // calculator, dictionary
	BandHandles   Band = "handles"   // drag/resize handles
	BandHighlight Band = "highlight" // speech/annotation highlight overlays
	BandCritical  Band = "critical"  // errors, system notices
)

// Affordance is an opaque handle to a mounted tool UI surface. The engine
// only tracks it; rendering is the player's concern.
type Affordance interface {
	InstanceID() string
	Close()
}

// Implementation is the lazily loaded behavior of a tool. It is produced at
// most once per tool id by the loader and reused for every activation.
type Implementation interface {
	// NewAffordance mounts the tool for the given structural context with
	// the resolved per-tool configuration (may be nil).
	NewAffordance(sctx *StructuralContext, config json.RawMessage) (Affordance, error)
}

// LoadFunc produces a tool's Implementation. Must respect ctx cancellation;
// it may perform I/O (fetching the tool bundle) and is only ever invoked
// through the loader's single-flight memoization.
type LoadFunc func(ctx context.Context) (Implementation, error)

// Descriptor is an immutable tool registration. Created at process start by
// Register calls; the catalog owns it thereafter.
type Descriptor struct {
	// ToolID is the stable internal key for the tool.
	ToolID string

	Name        string
	Description string

	// Band selects the z-index band the tool's affordance renders in.
	Band Band

	// SupportedLevels lists the structural levels the tool can attach to.
	SupportedLevels []Level

	// ExternalSupportIDs is the vocabulary accommodation-plan and policy
	// data use to reference this tool. Many support ids may map to one
	// tool id; each support id belongs to at most one tool.
	ExternalSupportIDs []string

	// ConfigSchema optionally constrains per-tool config payloads supplied
	// by item requirements or administration overrides (JSON Schema).
	ConfigSchema json.RawMessage

	// Relevant reports whether the tool is pertinent to the given
	// structural context. Must be pure and fast: no I/O, no blocking. It
	// runs synchronously on every visibility recomputation. A panicking
	// predicate is treated as "not relevant", never propagated.
	Relevant func(sctx *StructuralContext) bool

	// Load produces the tool's Implementation on first activation.
	Load LoadFunc
}

// SupportsLevel reports whether the descriptor can attach at the given level.
func (d *Descriptor) SupportsLevel(level Level) bool {
	for _, l := range d.SupportedLevels {
		if l == level {
			return true
		}
	}
	return false
}
