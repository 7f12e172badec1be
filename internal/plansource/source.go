// Package plansource fetches upstream accommodation-plan and policy data —
// the engine's only external data dependency. The resolver never touches it
// directly; the session builds a resolution context from a fetched snapshot.
package plansource

import (
	"context"

	"github.com/brightpath-assess/toolgate/internal/resolve"
)

// PlanData is one student's accommodation snapshot for an assessment,
// expressed in external support-id vocabulary.
type PlanData struct {
	// StudentAccommodations are the general accommodation preferences
	// from the student's personal needs profile.
	StudentAccommodations []string

	// LegalRequirements are the legally-mandated accommodations (IEP/504
	// sourced); they resolve to always-available.
	LegalRequirements []string

	// AdministrationOverrides are per-sitting block/config adjustments.
	AdministrationOverrides map[string]resolve.Override

	// AssessmentDefaults is the assessment-level default tool list.
	AssessmentDefaults []string
}

// Source provides accommodation plans for a district+student+assessment.
type Source interface {
	// FetchPlan returns the plan snapshot, or nil if none is on file
	// (no plan is not an error — resolution then runs on defaults only).
	FetchPlan(ctx context.Context, districtID, studentID, assessmentID string) (*PlanData, error)
}
