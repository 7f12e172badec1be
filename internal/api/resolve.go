package api

import (
	"net/http"
	"sort"
	"time"

	"github.com/brightpath-assess/toolgate/internal/catalog"
	"github.com/brightpath-assess/toolgate/internal/resolve"
	"github.com/brightpath-assess/toolgate/internal/storage"
	"github.com/brightpath-assess/toolgate/internal/visibility"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// handleResolve implements POST /v1/resolve.
// Auth middleware has already validated the Bearer token and injected the
// district with its parsed tool policy.
func (d *Dependencies) handleResolve(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req ResolveRequest
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	if req.StudentID == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "student_id is required"})
		return
	}
	if req.AssessmentID == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "assessment_id is required"})
		return
	}

	dist := districtFromContext(r.Context())
	if dist == nil {
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "missing district context"})
		return
	}

	rc := d.buildContext(r, &req, dist)
	result := d.Resolver.Resolve(rc)

	// Two-pass visible set: placement narrowing always applies; the
	// relevance pass runs when the caller supplied a structural context.
	visible := d.Visibility.ComputeVisibleTools(
		structuralContextFromReq(req.StructuralContext),
		result.Decisions,
		visibility.Options{PlacementAllowList: dist.PlacementAllowList},
	)

	requestID := uuid.New().String()
	latencyMs := float64(time.Since(start)) / float64(time.Millisecond)

	// Fire-and-forget: persist one event per decision
	d.writeResolutionEvents(&req, dist.ID, requestID, result, float32(latencyMs))

	writeJSON(w, http.StatusOK, ResolveResponse{
		RequestID:    requestID,
		Decisions:    decisionsToResp(result),
		AllowedTools: sortedToolIDs(result.AllowedToolIDs()),
		VisibleTools: sortedToolIDs(visible),
		LatencyMs:    latencyMs,
	})
}

// structuralContextFromReq converts the wire context (and its nested
// elements) into the engine shape. Nil in, nil out.
func structuralContextFromReq(req *StructuralContextReq) *catalog.StructuralContext {
	if req == nil {
		return nil
	}
	sctx := &catalog.StructuralContext{
		AssessmentID: req.AssessmentID,
		SectionID:    req.SectionID,
		ItemID:       req.ItemID,
		PassageID:    req.PassageID,
		ElementID:    req.ElementID,
		Level:        catalog.Level(req.Level),
		ContentKinds: req.ContentKinds,
		ContentReady: req.ContentReady,
	}
	for _, sub := range req.Elements {
		if sub == nil {
			continue
		}
		sctx.Elements = append(sctx.Elements, structuralContextFromReq(sub))
	}
	return sctx
}

// buildContext assembles the resolution context from the request body, the
// district's stored policy, and (for omitted plan fields) the plan source.
func (d *Dependencies) buildContext(r *http.Request, req *ResolveRequest, dist *authDistrict) *resolve.Context {
	rc := &resolve.Context{
		AssessmentID:             req.AssessmentID,
		SectionID:                req.SectionID,
		ItemID:                   req.ItemID,
		DistrictPolicy:           dist.Policy,
		StudentAccommodations:    req.StudentAccommodations,
		StudentLegalRequirements: req.LegalRequirements,
	}

	if len(req.AdministrationOverrides) > 0 {
		rc.AdministrationOverrides = make(map[string]resolve.Override, len(req.AdministrationOverrides))
		for id, o := range req.AdministrationOverrides {
			rc.AdministrationOverrides[id] = resolve.Override{Blocked: o.Blocked, Config: o.Config}
		}
	}
	if req.ItemRequirements != nil {
		rc.ItemRequirements = &resolve.ItemRequirements{
			RequiredSupportIDs:   req.ItemRequirements.RequiredSupportIDs,
			RestrictedSupportIDs: req.ItemRequirements.RestrictedSupportIDs,
			PerSupportConfig:     req.ItemRequirements.PerSupportConfig,
		}
	}
	if len(req.AssessmentDefaults) > 0 {
		rc.AssessmentDefaults = &resolve.AssessmentDefaults{DefaultSupportIDs: req.AssessmentDefaults}
	}

	// Plan fields omitted entirely: fall back to the stored plan.
	if d.Plans != nil && req.StudentAccommodations == nil && req.LegalRequirements == nil &&
		req.AdministrationOverrides == nil && req.AssessmentDefaults == nil {
		plan, err := d.Plans.FetchPlan(r.Context(), dist.ID, req.StudentID, req.AssessmentID)
		if err != nil {
			d.Logger.Warn("plan fetch failed, resolving without plan data",
				zap.String("district_id", dist.ID),
				zap.String("student_id", req.StudentID),
				zap.Error(err),
			)
		} else if plan != nil {
			rc.StudentAccommodations = plan.StudentAccommodations
			rc.StudentLegalRequirements = plan.LegalRequirements
			rc.AdministrationOverrides = plan.AdministrationOverrides
			if len(plan.AssessmentDefaults) > 0 {
				rc.AssessmentDefaults = &resolve.AssessmentDefaults{DefaultSupportIDs: plan.AssessmentDefaults}
			}
		}
	}

	return rc
}

// writeResolutionEvents flattens each decision and trail into an audit event.
func (d *Dependencies) writeResolutionEvents(
	req *ResolveRequest,
	districtID, requestID string,
	result *resolve.Result,
	latencyMs float32,
) {
	now := time.Now()
	for toolID, decision := range result.Decisions {
		trail := result.Trails[toolID]

		event := &storage.ResolutionEvent{
			RequestID:    requestID,
			DistrictID:   districtID,
			Timestamp:    now,
			StudentID:    req.StudentID,
			AssessmentID: req.AssessmentID,
			SectionID:    req.SectionID,
			ItemID:       req.ItemID,

			ToolID:          toolID,
			Enabled:         decision.Enabled,
			Required:        decision.Required,
			AlwaysAvailable: decision.AlwaysAvailable,
			Restricted:      decision.Restricted,
			Config:          string(decision.Config),

			LatencyMs: latencyMs,
			Source:    "api",
		}

		if trail != nil {
			if win := trail.WinningEntry(); win != nil {
				event.WinningRule = win.Rule
				event.WinningStep = uint8(win.Step)
			}
			event.TrailSteps = make([]uint8, len(trail.Entries))
			event.TrailRules = make([]string, len(trail.Entries))
			event.TrailSupports = make([]string, len(trail.Entries))
			event.TrailActions = make([]string, len(trail.Entries))
			event.TrailReasons = make([]string, len(trail.Entries))
			event.TrailSources = make([]string, len(trail.Entries))
			for i, e := range trail.Entries {
				event.TrailSteps[i] = uint8(e.Step)
				event.TrailRules[i] = e.Rule
				event.TrailSupports[i] = e.SupportID
				event.TrailActions[i] = string(e.Action)
				event.TrailReasons[i] = e.Reason
				event.TrailSources[i] = e.Source
			}
		}

		d.Writer.Write(event)
	}
}

// decisionsToResp converts the result into the wire shape, ordered by tool id
// so responses are deterministic.
func decisionsToResp(result *resolve.Result) []DecisionResp {
	out := make([]DecisionResp, 0, len(result.Decisions))
	for toolID, decision := range result.Decisions {
		resp := DecisionResp{
			ToolID:          toolID,
			Enabled:         decision.Enabled,
			Required:        decision.Required,
			AlwaysAvailable: decision.AlwaysAvailable,
			Restricted:      decision.Restricted,
			Config:          decision.Config,
		}
		if trail := result.Trails[toolID]; trail != nil {
			if win := trail.WinningEntry(); win != nil {
				resp.WinningRule = win.Rule
			}
			resp.Trail = make([]TrailEntryResp, len(trail.Entries))
			for i, e := range trail.Entries {
				resp.Trail[i] = TrailEntryResp{
					Step:      e.Step,
					Rule:      e.Rule,
					SupportID: e.SupportID,
					Action:    string(e.Action),
					Reason:    e.Reason,
					Source:    e.Source,
				}
			}
		}
		out = append(out, resp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ToolID < out[j].ToolID })
	return out
}

func sortedToolIDs(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// handleListTools implements GET /v1/tools: the registered catalog in wire form.
func (d *Dependencies) handleListTools(w http.ResponseWriter, _ *http.Request) {
	descriptors := d.Catalog.Descriptors()

	out := make([]ToolResp, 0, len(descriptors))
	for _, desc := range descriptors {
		levels := make([]string, len(desc.SupportedLevels))
		for i, l := range desc.SupportedLevels {
			levels[i] = string(l)
		}
		out = append(out, ToolResp{
			ToolID:             desc.ToolID,
			Name:               desc.Name,
			Description:        desc.Description,
			Band:               string(desc.Band),
			SupportedLevels:    levels,
			ExternalSupportIDs: desc.ExternalSupportIDs,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ToolID < out[j].ToolID })

	writeJSON(w, http.StatusOK, out)
}
