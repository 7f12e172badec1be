// Package visibility implements the two-pass filter that decides which
// resolved tools may actually render for a concrete structural context.
//
// Pass 1 is the resolver's allow-list, optionally narrowed by a placement
// allow-list. Pass 2 asks each surviving tool's relevance predicate whether
// it is pertinent to the content on screen. Pass 2 is a one-way veto: it can
// only remove tools, never admit one pass 1 excluded.
package visibility

import (
	"github.com/brightpath-assess/toolgate/internal/catalog"
	"github.com/brightpath-assess/toolgate/internal/resolve"
	"go.uber.org/zap"
)

// Options tunes one visibility computation.
type Options struct {
	// PlacementAllowList, when non-nil, further narrows pass 1 to the
	// tools a UI region is configured to ever show. It never widens.
	PlacementAllowList []string
}

// Coordinator computes visible tool sets from resolved decisions.
type Coordinator struct {
	catalog *catalog.Catalog
	logger  *zap.Logger
}

// New creates a visibility coordinator over the given catalog.
func New(cat *catalog.Catalog, logger *zap.Logger) *Coordinator {
	return &Coordinator{catalog: cat, logger: logger}
}

// ComputeVisibleTools returns the set of tool ids that may render for the
// given structural context.
//
// When the context's content is not yet ready, the computation degrades to
// pass-1-only output rather than blocking the surface; callers recompute once
// content arrives. When the context carries sub-contexts, the visible set is
// the union of pass-2 results across them — a tool relevant to any element
// within an item is shown for the item.
func (c *Coordinator) ComputeVisibleTools(sctx *catalog.StructuralContext, decisions map[string]resolve.Decision, opts Options) map[string]struct{} {
	allowed := passOne(decisions, opts.PlacementAllowList)
	if sctx == nil || !sctx.ContentReady {
		return allowed
	}

	visible := make(map[string]struct{}, len(allowed))
	for toolID := range allowed {
		d := c.catalog.Get(toolID)
		if d == nil {
			// Resolved but unregistered: deny side of the invariant.
			c.logger.Warn("visibility: decision for unregistered tool, excluding",
				zap.String("tool_id", toolID),
			)
			continue
		}
		if c.relevantAnywhere(d, sctx) {
			visible[toolID] = struct{}{}
		}
	}
	return visible
}

// relevantAnywhere evaluates pass 2 for the context and, when present, its
// sub-contexts. Level support is checked per context, so an element-only tool
// can surface through an item's elements without claiming the item level.
func (c *Coordinator) relevantAnywhere(d *catalog.Descriptor, sctx *catalog.StructuralContext) bool {
	if d.SupportsLevel(sctx.Level) && c.catalog.EvaluateRelevance(d.ToolID, sctx) {
		return true
	}
	for _, sub := range sctx.Elements {
		if sub == nil {
			continue
		}
		if c.relevantAnywhere(d, sub) {
			return true
		}
	}
	return false
}

// passOne intersects enabled decisions with the placement allow-list.
func passOne(decisions map[string]resolve.Decision, placement []string) map[string]struct{} {
	allowed := make(map[string]struct{}, len(decisions))
	for toolID, d := range decisions {
		if !d.Enabled {
			continue
		}
		if placement != nil && !containsString(placement, toolID) {
			continue
		}
		allowed[toolID] = struct{}{}
	}
	return allowed
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
