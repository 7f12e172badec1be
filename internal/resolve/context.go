package resolve

import (
	"encoding/json"
	"sort"
)

// Override is an administration-level adjustment for one support id during a
// specific test sitting.
type Override struct {
	Blocked bool            `json:"blocked,omitempty"`
	Config  json.RawMessage `json:"config,omitempty"`
}

// DistrictPolicy carries district-wide tool rules.
type DistrictPolicy struct {
	BlockedSupportIDs  []string `json:"blocked_tool_support_ids"`
	RequiredSupportIDs []string `json:"required_tool_support_ids"`
}

// ItemRequirements carries per-item tool rules and parameters.
type ItemRequirements struct {
	RequiredSupportIDs   []string                   `json:"required_support_ids"`
	RestrictedSupportIDs []string                   `json:"restricted_support_ids"`
	PerSupportConfig     map[string]json.RawMessage `json:"per_support_config,omitempty"`
}

// AssessmentDefaults carries the assessment-level default tool list.
type AssessmentDefaults struct {
	DefaultSupportIDs []string `json:"default_support_ids"`
}

// Context is the immutable input snapshot for one resolution. Constructed
// fresh per call, never mutated by the resolver. All fields are optional:
// "not configured anywhere" resolves to blocked, not to an error.
type Context struct {
	AssessmentID string
	SectionID    string
	ItemID       string

	// Version is the session's context-version token at build time. The
	// resolver ignores it; the session uses it to discard stale contexts.
	Version uint64

	StudentAccommodations    []string
	StudentLegalRequirements []string
	DistrictPolicy           *DistrictPolicy
	AdministrationOverrides  map[string]Override
	ItemRequirements         *ItemRequirements
	AssessmentDefaults       *AssessmentDefaults
}

// AllSupportIDs returns every external support id mentioned anywhere in the
// context, deduplicated, in a deterministic order: field by field in
// precedence order, map keys sorted. This ordering is load-bearing — it fixes
// the provenance trail ordering across identical contexts.
func (rc *Context) AllSupportIDs() []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(ids ...string) {
		for _, id := range ids {
			if id == "" {
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}

	if rc.DistrictPolicy != nil {
		add(rc.DistrictPolicy.BlockedSupportIDs...)
		add(rc.DistrictPolicy.RequiredSupportIDs...)
	}
	if len(rc.AdministrationOverrides) > 0 {
		keys := make([]string, 0, len(rc.AdministrationOverrides))
		for k := range rc.AdministrationOverrides {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		add(keys...)
	}
	if rc.ItemRequirements != nil {
		add(rc.ItemRequirements.RestrictedSupportIDs...)
		add(rc.ItemRequirements.RequiredSupportIDs...)
	}
	add(rc.StudentLegalRequirements...)
	add(rc.StudentAccommodations...)
	if rc.AssessmentDefaults != nil {
		add(rc.AssessmentDefaults.DefaultSupportIDs...)
	}
	return out
}

// overrideFor returns the administration override for a support id, if any.
func (rc *Context) overrideFor(supportID string) (Override, bool) {
	if rc.AdministrationOverrides == nil {
		return Override{}, false
	}
	ov, ok := rc.AdministrationOverrides[supportID]
	return ov, ok
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
