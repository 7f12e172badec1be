package visibility

import (
	"testing"

	"github.com/brightpath-assess/toolgate/internal/catalog"
	"github.com/brightpath-assess/toolgate/internal/resolve"
	"go.uber.org/zap"
)

func testCatalog() *catalog.Catalog {
	c := catalog.New(zap.NewNop())
	c.Register(&catalog.Descriptor{
		ToolID:          "ruler",
		SupportedLevels: []catalog.Level{catalog.LevelItem, catalog.LevelPassage, catalog.LevelElement},
		Relevant: func(sctx *catalog.StructuralContext) bool {
			return sctx.HasContent("geometry")
		},
	})
	c.Register(&catalog.Descriptor{
		ToolID:          "dictionary",
		SupportedLevels: []catalog.Level{catalog.LevelPassage, catalog.LevelItem},
		Relevant: func(sctx *catalog.StructuralContext) bool {
			return sctx.HasContent("plain_text")
		},
	})
	c.Register(&catalog.Descriptor{
		ToolID:          "calculator",
		SupportedLevels: []catalog.Level{catalog.LevelItem},
		Relevant: func(sctx *catalog.StructuralContext) bool {
			return sctx.HasContent("numeric_entry")
		},
	})
	c.Freeze()
	return c
}

func enabled(toolIDs ...string) map[string]resolve.Decision {
	out := make(map[string]resolve.Decision, len(toolIDs))
	for _, id := range toolIDs {
		out[id] = resolve.Decision{ToolID: id, Enabled: true}
	}
	return out
}

func TestComputeVisibleTools_RelevanceExcludes(t *testing.T) {
	v := New(testCatalog(), zap.NewNop())

	// Plain-text passage: pass 1 allows the ruler, pass 2 excludes it.
	passage := &catalog.StructuralContext{
		Level:        catalog.LevelPassage,
		ContentReady: true,
		ContentKinds: []string{"plain_text"},
	}
	visible := v.ComputeVisibleTools(passage, enabled("ruler", "dictionary"), Options{})
	if _, ok := visible["ruler"]; ok {
		t.Fatal("ruler should not be visible on a plain-text passage")
	}
	if _, ok := visible["dictionary"]; !ok {
		t.Fatal("dictionary should be visible on a plain-text passage")
	}

	// Geometry item in the same section: the ruler comes back.
	item := &catalog.StructuralContext{
		Level:        catalog.LevelItem,
		ContentReady: true,
		ContentKinds: []string{"geometry"},
	}
	visible = v.ComputeVisibleTools(item, enabled("ruler", "dictionary"), Options{})
	if _, ok := visible["ruler"]; !ok {
		t.Fatal("ruler should be visible where geometry content is present")
	}
}

func TestComputeVisibleTools_OneWayVeto(t *testing.T) {
	v := New(testCatalog(), zap.NewNop())

	// A decision map with a disabled tool whose predicate would say yes:
	// pass 2 must never add it back.
	decisions := map[string]resolve.Decision{
		"ruler":      {ToolID: "ruler", Enabled: false},
		"dictionary": {ToolID: "dictionary", Enabled: true},
	}
	sctx := &catalog.StructuralContext{
		Level:        catalog.LevelItem,
		ContentReady: true,
		ContentKinds: []string{"geometry", "plain_text"},
	}
	visible := v.ComputeVisibleTools(sctx, decisions, Options{})
	if _, ok := visible["ruler"]; ok {
		t.Fatal("pass 2 admitted a tool pass 1 excluded")
	}
	for toolID := range visible {
		if !decisions[toolID].Enabled {
			t.Fatalf("visible set is not a subset of the allow-list: %s", toolID)
		}
	}
}

func TestComputeVisibleTools_PlacementNarrows(t *testing.T) {
	v := New(testCatalog(), zap.NewNop())

	sctx := &catalog.StructuralContext{
		Level:        catalog.LevelItem,
		ContentReady: true,
		ContentKinds: []string{"geometry", "plain_text"},
	}
	visible := v.ComputeVisibleTools(sctx, enabled("ruler", "dictionary"), Options{
		PlacementAllowList: []string{"dictionary"},
	})
	if len(visible) != 1 {
		t.Fatalf("placement allow-list should narrow to 1 tool, got %d", len(visible))
	}
	if _, ok := visible["dictionary"]; !ok {
		t.Fatal("dictionary should survive the placement allow-list")
	}
}

func TestComputeVisibleTools_ContentNotReadyDegradesToPassOne(t *testing.T) {
	v := New(testCatalog(), zap.NewNop())

	sctx := &catalog.StructuralContext{Level: catalog.LevelItem, ContentReady: false}
	visible := v.ComputeVisibleTools(sctx, enabled("ruler", "dictionary"), Options{})
	if len(visible) != 2 {
		t.Fatalf("expected pass-1-only output while content loads, got %d tools", len(visible))
	}
}

func TestComputeVisibleTools_SubContextUnion(t *testing.T) {
	v := New(testCatalog(), zap.NewNop())

	// The item itself has no geometry, but one of its elements does.
	item := &catalog.StructuralContext{
		Level:        catalog.LevelItem,
		ContentReady: true,
		ContentKinds: []string{"plain_text"},
		Elements: []*catalog.StructuralContext{
			{Level: catalog.LevelElement, ContentReady: true, ContentKinds: []string{"geometry"}},
			{Level: catalog.LevelElement, ContentReady: true, ContentKinds: []string{"plain_text"}},
		},
	}
	visible := v.ComputeVisibleTools(item, enabled("ruler", "dictionary", "calculator"), Options{})
	if _, ok := visible["ruler"]; !ok {
		t.Fatal("tool relevant to any element should be visible for the item")
	}
	if _, ok := visible["calculator"]; ok {
		t.Fatal("calculator has no relevant content in any sub-context")
	}
}

func TestComputeVisibleTools_UnregisteredDecisionExcluded(t *testing.T) {
	v := New(testCatalog(), zap.NewNop())

	sctx := &catalog.StructuralContext{Level: catalog.LevelItem, ContentReady: true}
	visible := v.ComputeVisibleTools(sctx, enabled("ghost-tool"), Options{})
	if len(visible) != 0 {
		t.Fatal("a decision for an unregistered tool must not render")
	}
}
