package session

import (
	"context"
	"errors"
	"testing"

	"github.com/brightpath-assess/toolgate/internal/catalog"
	"github.com/brightpath-assess/toolgate/internal/plansource"
	"github.com/brightpath-assess/toolgate/internal/runtime"
	"github.com/brightpath-assess/toolgate/internal/visibility"
	"go.uber.org/zap"
)

// fakeSource returns canned plan data and can advance the session mid-fetch
// to simulate a slow upstream racing navigation.
type fakeSource struct {
	plan      *plansource.PlanData
	err       error
	onFetch   func()
	callCount int
}

func (s *fakeSource) FetchPlan(_ context.Context, _, _, _ string) (*plansource.PlanData, error) {
	s.callCount++
	if s.onFetch != nil {
		s.onFetch()
	}
	return s.plan, s.err
}

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	logger, _ := zap.NewDevelopment()
	cat := catalog.New(logger)
	cat.Register(&catalog.Descriptor{
		ToolID:             "calculator",
		Band:               catalog.BandNonModal,
		SupportedLevels:    []catalog.Level{catalog.LevelItem},
		ExternalSupportIDs: []string{"calculator", "calc-basic"},
		Relevant:           func(*catalog.StructuralContext) bool { return true },
	})
	cat.Register(&catalog.Descriptor{
		ToolID:             "textToSpeech",
		Band:               catalog.BandNonModal,
		SupportedLevels:    []catalog.Level{catalog.LevelItem, catalog.LevelPassage},
		ExternalSupportIDs: []string{"textToSpeech"},
		Relevant:           func(*catalog.StructuralContext) bool { return true },
	})
	cat.Freeze()
	return cat
}

func newTestSession(t *testing.T, src plansource.Source) *Session {
	t.Helper()
	logger, _ := zap.NewDevelopment()
	return New(Config{
		DistrictID:   "d-1",
		StudentID:    "s-1",
		AssessmentID: "a-1",
		SectionID:    "sec-1",
		Catalog:      testCatalog(t),
		Source:       src,
		Logger:       logger,
	})
}

func TestBuildContext_CarriesPlanData(t *testing.T) {
	src := &fakeSource{plan: &plansource.PlanData{
		StudentAccommodations: []string{"calculator"},
		LegalRequirements:     []string{"textToSpeech"},
		AssessmentDefaults:    []string{"calc-basic"},
	}}
	s := newTestSession(t, src)

	rc, err := s.BuildContext(context.Background(), "item-1", nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if rc.ItemID != "item-1" || rc.AssessmentID != "a-1" || rc.SectionID != "sec-1" {
		t.Fatalf("context ids not carried: %+v", rc)
	}
	if len(rc.StudentAccommodations) != 1 || rc.StudentAccommodations[0] != "calculator" {
		t.Fatalf("accommodations not carried: %v", rc.StudentAccommodations)
	}
	if rc.AssessmentDefaults == nil || rc.AssessmentDefaults.DefaultSupportIDs[0] != "calc-basic" {
		t.Fatal("assessment defaults not carried")
	}

	result := s.Resolve(rc)
	d, ok := result.Decisions["textToSpeech"]
	if !ok || !d.AlwaysAvailable {
		t.Fatalf("legal requirement should resolve always-available: %+v", d)
	}
}

func TestBuildContext_NoPlanOnFile(t *testing.T) {
	s := newTestSession(t, &fakeSource{plan: nil})

	rc, err := s.BuildContext(context.Background(), "item-1", nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if rc.StudentAccommodations != nil || rc.AssessmentDefaults != nil {
		t.Fatal("no-plan context should carry no plan fields")
	}
}

func TestBuildContext_StaleFetchDiscarded(t *testing.T) {
	src := &fakeSource{plan: &plansource.PlanData{StudentAccommodations: []string{"calculator"}}}
	s := newTestSession(t, src)

	// Navigation lands while the fetch is in flight.
	src.onFetch = func() { s.Advance() }

	_, err := s.BuildContext(context.Background(), "item-1", nil, nil)
	if !errors.Is(err, ErrStaleContext) {
		t.Fatalf("expected ErrStaleContext, got %v", err)
	}

	// The next build, against the new version, succeeds.
	src.onFetch = nil
	rc, err := s.BuildContext(context.Background(), "item-2", nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if rc.Version != s.Version() {
		t.Fatalf("context version %d does not match session %d", rc.Version, s.Version())
	}
}

func TestBuildContext_SourceError(t *testing.T) {
	wantErr := errors.New("upstream unavailable")
	s := newTestSession(t, &fakeSource{err: wantErr})

	if _, err := s.BuildContext(context.Background(), "item-1", nil, nil); !errors.Is(err, wantErr) {
		t.Fatalf("expected source error, got %v", err)
	}
}

func TestLeaveItem_TearsDownItemInstances(t *testing.T) {
	s := newTestSession(t, &fakeSource{})

	s.Runtime.RegisterTool(runtime.InstanceID("calculator", "item-1"),
		runtime.Meta{ToolID: "calculator", Band: catalog.BandNonModal, ScopeID: "item-1"})
	s.Runtime.RegisterTool(runtime.InstanceID("textToSpeech", "item-2"),
		runtime.Meta{ToolID: "textToSpeech", Band: catalog.BandNonModal, ScopeID: "item-2"})
	s.Runtime.ShowTool(runtime.InstanceID("calculator", "item-1"))

	before := s.Version()
	s.LeaveItem("item-1")

	if s.Version() != before+1 {
		t.Fatalf("leaving an item must advance the version: %d -> %d", before, s.Version())
	}
	if _, ok := s.Runtime.GetToolState(runtime.InstanceID("calculator", "item-1")); ok {
		t.Fatal("item-1 instance should be unregistered")
	}
	if _, ok := s.Runtime.GetToolState(runtime.InstanceID("textToSpeech", "item-2")); !ok {
		t.Fatal("item-2 instance must survive leaving item-1")
	}
}

func TestApplyVisibility_SyncsRuntime(t *testing.T) {
	src := &fakeSource{plan: &plansource.PlanData{StudentAccommodations: []string{"calculator"}}}
	s := newTestSession(t, src)

	rc, err := s.BuildContext(context.Background(), "item-1", nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	result := s.Resolve(rc)

	// A tool already on screen that the new decisions do not allow gets hidden.
	s.Runtime.RegisterTool(runtime.InstanceID("textToSpeech", "item-1"),
		runtime.Meta{ToolID: "textToSpeech", Band: catalog.BandNonModal, ScopeID: "item-1"})
	s.Runtime.ShowTool(runtime.InstanceID("textToSpeech", "item-1"))

	sctx := &catalog.StructuralContext{
		AssessmentID: "a-1",
		ItemID:       "item-1",
		Level:        catalog.LevelItem,
		ContentReady: true,
	}
	visible := s.ApplyVisibility(sctx, result, visibility.Options{})

	if _, ok := visible["calculator"]; !ok {
		t.Fatal("calculator should be visible")
	}
	if s.Runtime.IsToolVisible(runtime.InstanceID("textToSpeech", "item-1")) {
		t.Fatal("disallowed tool must be hidden by the sync")
	}
}
