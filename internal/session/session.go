// Package session scopes one student's assessment sitting: it owns the
// runtime coordinator, scoped state store and loader for that sitting, and
// guards resolution-context builds against stale upstream fetches. Sessions
// are created and disposed by the surrounding lifecycle — there are no
// process-wide singletons to reset between tests.
package session

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/brightpath-assess/toolgate/internal/catalog"
	"github.com/brightpath-assess/toolgate/internal/loader"
	"github.com/brightpath-assess/toolgate/internal/plansource"
	"github.com/brightpath-assess/toolgate/internal/resolve"
	"github.com/brightpath-assess/toolgate/internal/runtime"
	"github.com/brightpath-assess/toolgate/internal/scopestate"
	"github.com/brightpath-assess/toolgate/internal/visibility"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrStaleContext reports that an async plan fetch resolved after the
// session moved on (navigation superseded the context). Expected under rapid
// navigation: callers discard the result and carry on, they never surface it
// as a failure.
var ErrStaleContext = errors.New("session: resolution context superseded")

// Config assembles a session's collaborators.
type Config struct {
	DistrictID   string
	StudentID    string
	AssessmentID string
	SectionID    string

	Catalog *catalog.Catalog
	Source  plansource.Source
	Logger  *zap.Logger
}

// Session owns the engine state for one sitting.
type Session struct {
	ID           string
	DistrictID   string
	StudentID    string
	AssessmentID string
	SectionID    string

	Runtime *runtime.Coordinator
	State   *scopestate.Store
	Loader  *loader.Loader

	catalog    *catalog.Catalog
	resolver   *resolve.Resolver
	visibility *visibility.Coordinator
	source     plansource.Source
	version    atomic.Uint64
	logger     *zap.Logger
}

// New creates a session with its own coordinator, store and loader.
func New(cfg Config) *Session {
	return &Session{
		ID:           uuid.NewString(),
		DistrictID:   cfg.DistrictID,
		StudentID:    cfg.StudentID,
		AssessmentID: cfg.AssessmentID,
		SectionID:    cfg.SectionID,
		Runtime:      runtime.NewCoordinator(cfg.Logger),
		State:        scopestate.NewStore(),
		Loader:       loader.New(cfg.Catalog, cfg.Logger),
		catalog:      cfg.Catalog,
		resolver:     resolve.New(cfg.Catalog, cfg.Logger),
		visibility:   visibility.New(cfg.Catalog, cfg.Logger),
		source:       cfg.Source,
		logger:       cfg.Logger,
	}
}

// Version returns the current context-version token.
func (s *Session) Version() uint64 {
	return s.version.Load()
}

// Advance bumps the context-version token, invalidating any in-flight
// context build. Called on navigation and whenever upstream policy changes.
func (s *Session) Advance() uint64 {
	return s.version.Add(1)
}

// BuildContext fetches the student's plan data and assembles a resolution
// context for the given item. If the session version advanced while the
// fetch was in flight, the snapshot is discarded and ErrStaleContext is
// returned — stale data is never applied retroactively.
func (s *Session) BuildContext(ctx context.Context, itemID string, districtPolicy *resolve.DistrictPolicy, itemReq *resolve.ItemRequirements) (*resolve.Context, error) {
	v := s.version.Load()

	plan, err := s.source.FetchPlan(ctx, s.DistrictID, s.StudentID, s.AssessmentID)
	if err != nil {
		return nil, err
	}

	if s.version.Load() != v {
		s.logger.Debug("session: discarding stale plan fetch",
			zap.String("session_id", s.ID),
			zap.Uint64("built_for", v),
			zap.Uint64("current", s.version.Load()),
		)
		return nil, ErrStaleContext
	}

	rc := &resolve.Context{
		AssessmentID:     s.AssessmentID,
		SectionID:        s.SectionID,
		ItemID:           itemID,
		Version:          v,
		DistrictPolicy:   districtPolicy,
		ItemRequirements: itemReq,
	}
	if plan != nil {
		rc.StudentAccommodations = plan.StudentAccommodations
		rc.StudentLegalRequirements = plan.LegalRequirements
		rc.AdministrationOverrides = plan.AdministrationOverrides
		if len(plan.AssessmentDefaults) > 0 {
			rc.AssessmentDefaults = &resolve.AssessmentDefaults{DefaultSupportIDs: plan.AssessmentDefaults}
		}
	}
	return rc, nil
}

// Resolve runs the precedence resolver over a context.
func (s *Session) Resolve(rc *resolve.Context) *resolve.Result {
	return s.resolver.Resolve(rc)
}

// ApplyVisibility computes the two-pass visible set for a structural context
// and enforces it on the runtime coordinator: any live instance whose tool
// fell out of the set is hidden. Returns the visible tool ids.
func (s *Session) ApplyVisibility(sctx *catalog.StructuralContext, result *resolve.Result, opts visibility.Options) map[string]struct{} {
	visible := s.visibility.ComputeVisibleTools(sctx, result.Decisions, opts)
	s.Runtime.SyncVisible(visible)
	return visible
}

// LeaveItem advances the context version and tears down the item's runtime
// instances. Scoped state survives for restore-on-return; callers discard it
// with State.DeleteItemScope once the item is permanently left.
func (s *Session) LeaveItem(itemID string) {
	s.Advance()
	for _, instanceID := range s.Runtime.InstancesInScope(itemID) {
		s.Runtime.UnregisterTool(instanceID)
	}
}

// Close tears down the session's runtime state.
func (s *Session) Close() {
	s.Runtime.HideAllTools()
}
