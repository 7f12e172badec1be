package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/brightpath-assess/toolgate/internal/catalog"
	"github.com/brightpath-assess/toolgate/internal/resolve"
	"github.com/brightpath-assess/toolgate/internal/storage"
	"github.com/brightpath-assess/toolgate/internal/visibility"
	"go.uber.org/zap"
)

// collectingWriter captures events written by handlers.
type collectingWriter struct {
	events []*storage.ResolutionEvent
}

func (w *collectingWriter) Write(event *storage.ResolutionEvent) {
	w.events = append(w.events, event)
}
func (w *collectingWriter) Close() {}

func testDeps(t *testing.T) (*Dependencies, *collectingWriter) {
	t.Helper()
	logger, _ := zap.NewDevelopment()

	cat := catalog.New(logger)
	cat.Register(&catalog.Descriptor{
		ToolID:             "calculator",
		Band:               catalog.BandNonModal,
		SupportedLevels:    []catalog.Level{catalog.LevelItem},
		ExternalSupportIDs: []string{"calculator"},
		Relevant: func(sctx *catalog.StructuralContext) bool {
			return sctx.HasContent("math")
		},
	})
	cat.Register(&catalog.Descriptor{
		ToolID:             "textToSpeech",
		Band:               catalog.BandNonModal,
		SupportedLevels:    []catalog.Level{catalog.LevelItem},
		ExternalSupportIDs: []string{"textToSpeech"},
		Relevant:           func(*catalog.StructuralContext) bool { return true },
	})
	cat.Freeze()

	writer := &collectingWriter{}
	return &Dependencies{
		Catalog:    cat,
		Resolver:   resolve.New(cat, logger),
		Visibility: visibility.New(cat, logger),
		Writer:     writer,
		Logger:     logger,
		CacheTTL:   30 * time.Second,
	}, writer
}

func resolveRequest(t *testing.T, deps *Dependencies, dist *authDistrict, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/resolve", strings.NewReader(body))
	req = req.WithContext(context.WithValue(req.Context(), districtCtxKey, dist))
	rec := httptest.NewRecorder()
	deps.handleResolve(rec, req)
	return rec
}

func TestHandleResolve_DistrictBlockWins(t *testing.T) {
	deps, writer := testDeps(t)
	dist := &authDistrict{
		ID:     "d-1",
		Active: true,
		Policy: &resolve.DistrictPolicy{BlockedSupportIDs: []string{"calculator"}},
	}

	rec := resolveRequest(t, deps, dist, `{
		"student_id": "s-1",
		"assessment_id": "a-1",
		"item_id": "item-5",
		"student_accommodations": ["calculator", "textToSpeech"]
	}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp ResolveResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.RequestID == "" {
		t.Fatal("request_id missing")
	}

	byTool := make(map[string]DecisionResp, len(resp.Decisions))
	for _, d := range resp.Decisions {
		byTool[d.ToolID] = d
	}

	calc := byTool["calculator"]
	if calc.Enabled || !calc.Restricted {
		t.Fatalf("district block should deny calculator: %+v", calc)
	}
	if calc.WinningRule != "district_block" {
		t.Fatalf("expected district_block to win, got %q", calc.WinningRule)
	}
	tts := byTool["textToSpeech"]
	if !tts.Enabled {
		t.Fatalf("textToSpeech should be enabled: %+v", tts)
	}

	if len(resp.AllowedTools) != 1 || resp.AllowedTools[0] != "textToSpeech" {
		t.Fatalf("allowed tools wrong: %v", resp.AllowedTools)
	}
	// No placement list, no structural context: visible mirrors allowed.
	if len(resp.VisibleTools) != 1 || resp.VisibleTools[0] != "textToSpeech" {
		t.Fatalf("visible tools wrong: %v", resp.VisibleTools)
	}

	// One audit event per decision, trails flattened.
	if len(writer.events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(writer.events))
	}
	for _, e := range writer.events {
		if e.DistrictID != "d-1" || e.StudentID != "s-1" || e.ItemID != "item-5" {
			t.Fatalf("event ids not carried: %+v", e)
		}
		if len(e.TrailRules) == 0 {
			t.Fatal("event trail missing")
		}
		if len(e.TrailSteps) != len(e.TrailRules) {
			t.Fatalf("trail steps not parallel to rules: %d vs %d", len(e.TrailSteps), len(e.TrailRules))
		}
		if e.TrailSteps[0] != 1 {
			t.Fatalf("trail step numbering must start at 1, got %d", e.TrailSteps[0])
		}
	}
}

func TestHandleResolve_PlacementAllowListNarrowsVisible(t *testing.T) {
	deps, _ := testDeps(t)
	dist := &authDistrict{
		ID:                 "d-1",
		Active:             true,
		PlacementAllowList: []string{"textToSpeech"},
	}

	rec := resolveRequest(t, deps, dist, `{
		"student_id": "s-1",
		"assessment_id": "a-1",
		"student_accommodations": ["calculator", "textToSpeech"]
	}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp ResolveResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	// Both resolve enabled, but only the placement-listed tool may render.
	if len(resp.AllowedTools) != 2 {
		t.Fatalf("both tools should be enabled: %v", resp.AllowedTools)
	}
	if len(resp.VisibleTools) != 1 || resp.VisibleTools[0] != "textToSpeech" {
		t.Fatalf("placement allow-list should narrow visible set: %v", resp.VisibleTools)
	}
}

func TestHandleResolve_RelevancePassFiltersVisible(t *testing.T) {
	deps, _ := testDeps(t)
	dist := &authDistrict{ID: "d-1", Active: true}

	rec := resolveRequest(t, deps, dist, `{
		"student_id": "s-1",
		"assessment_id": "a-1",
		"item_id": "item-3",
		"student_accommodations": ["calculator", "textToSpeech"],
		"structural_context": {
			"assessment_id": "a-1",
			"item_id": "item-3",
			"level": "item",
			"content_kinds": ["plain_text"],
			"content_ready": true
		}
	}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp ResolveResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.AllowedTools) != 2 {
		t.Fatalf("both tools should be enabled: %v", resp.AllowedTools)
	}
	// Calculator is not relevant to plain text; the relevance pass drops it.
	if len(resp.VisibleTools) != 1 || resp.VisibleTools[0] != "textToSpeech" {
		t.Fatalf("relevance pass should drop calculator: %v", resp.VisibleTools)
	}
}

func TestHandleResolve_Validation(t *testing.T) {
	deps, _ := testDeps(t)
	dist := &authDistrict{ID: "d-1", Active: true}

	rec := resolveRequest(t, deps, dist, `{"assessment_id": "a-1"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing student_id should be 400, got %d", rec.Code)
	}

	rec = resolveRequest(t, deps, dist, `{"student_id": "s-1"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing assessment_id should be 400, got %d", rec.Code)
	}

	rec = resolveRequest(t, deps, dist, `not json`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad JSON should be 400, got %d", rec.Code)
	}
}

func TestHandleResolve_ItemConfigCarried(t *testing.T) {
	deps, _ := testDeps(t)
	dist := &authDistrict{ID: "d-1", Active: true}

	rec := resolveRequest(t, deps, dist, `{
		"student_id": "s-1",
		"assessment_id": "a-1",
		"item_id": "item-7",
		"item_requirements": {
			"required_support_ids": ["calculator"],
			"per_support_config": {"calculator": {"mode": "scientific"}}
		}
	}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp ResolveResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	for _, d := range resp.Decisions {
		if d.ToolID != "calculator" {
			continue
		}
		if !d.Enabled || !d.Required {
			t.Fatalf("item requirement should enable and require: %+v", d)
		}
		if string(d.Config) != `{"mode": "scientific"}` && string(d.Config) != `{"mode":"scientific"}` {
			t.Fatalf("item config not carried: %s", d.Config)
		}
		return
	}
	t.Fatal("calculator decision missing")
}

func TestAuthCache_StaleWhileRevalidate(t *testing.T) {
	cache := newAuthCache(time.Millisecond)
	cache.set("dsk_test", &authDistrict{ID: "d-1", Active: true})

	time.Sleep(5 * time.Millisecond)

	dist, hit, needsRefresh := cache.get("dsk_test")
	if !hit || dist == nil {
		t.Fatal("stale entry should still serve")
	}
	if !needsRefresh {
		t.Fatal("first stale read should win the refresh")
	}
	if _, _, again := cache.get("dsk_test"); again {
		t.Fatal("only one caller may win the refresh CAS")
	}
}

func TestExtractBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if _, ok := extractBearerToken(req); ok {
		t.Fatal("missing header should not extract")
	}

	req.Header.Set("Authorization", "Bearer dsk_abc123")
	token, ok := extractBearerToken(req)
	if !ok || token != "dsk_abc123" {
		t.Fatalf("token not extracted: %q %v", token, ok)
	}

	req.Header.Set("Authorization", "Basic dXNlcg==")
	if _, ok := extractBearerToken(req); ok {
		t.Fatal("non-Bearer scheme should not extract")
	}
}
