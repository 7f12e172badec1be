package resolve

import "fmt"

// ruleOutcome is what a single precedence rule produced for one support id.
type ruleOutcome struct {
	matched         bool
	action          Action
	required        bool
	alwaysAvailable bool
	reason          string
}

func noMatch() ruleOutcome {
	return ruleOutcome{}
}

// rule is one row of the precedence table: a predicate plus the decision it
// produces when it matches. Rules are evaluated in table order with
// short-circuit; the table itself never changes between resolutions, which is
// what makes precedence independently testable.
type rule struct {
	name   string
	source string
	eval   func(supportID string, rc *Context) ruleOutcome
}

// ruleTable returns the precedence table, highest precedence first.
//
//  1. district block          → blocked (absolute veto)
//  2. administration block    → blocked
//  3. item restriction        → blocked
//  4. district requirement    → enabled, required
//  5. item requirement        → enabled, required (item config carried)
//  6. legal requirement (PNP) → enabled, always available
//  7. student preference      → enabled
//  8. assessment default      → enabled
//  9. default                 → blocked (deny-by-default, not an error)
func ruleTable() []rule {
	return []rule{
		{
			name:   "district_block",
			source: "district_policy",
			eval: func(supportID string, rc *Context) ruleOutcome {
				if rc.DistrictPolicy == nil || !contains(rc.DistrictPolicy.BlockedSupportIDs, supportID) {
					return noMatch()
				}
				return ruleOutcome{
					matched: true,
					action:  ActionBlock,
					reason:  fmt.Sprintf("support %q blocked by district policy", supportID),
				}
			},
		},
		{
			name:   "administration_block",
			source: "administration",
			eval: func(supportID string, rc *Context) ruleOutcome {
				ov, ok := rc.overrideFor(supportID)
				if !ok || !ov.Blocked {
					return noMatch()
				}
				return ruleOutcome{
					matched: true,
					action:  ActionBlock,
					reason:  fmt.Sprintf("support %q blocked by administration override", supportID),
				}
			},
		},
		{
			name:   "item_restriction",
			source: "item",
			eval: func(supportID string, rc *Context) ruleOutcome {
				if rc.ItemRequirements == nil || !contains(rc.ItemRequirements.RestrictedSupportIDs, supportID) {
					return noMatch()
				}
				return ruleOutcome{
					matched: true,
					action:  ActionBlock,
					reason:  fmt.Sprintf("support %q restricted by item %q", supportID, rc.ItemID),
				}
			},
		},
		{
			name:   "district_requirement",
			source: "district_policy",
			eval: func(supportID string, rc *Context) ruleOutcome {
				if rc.DistrictPolicy == nil || !contains(rc.DistrictPolicy.RequiredSupportIDs, supportID) {
					return noMatch()
				}
				return ruleOutcome{
					matched:  true,
					action:   ActionEnable,
					required: true,
					reason:   fmt.Sprintf("support %q required by district policy", supportID),
				}
			},
		},
		{
			name:   "item_requirement",
			source: "item",
			eval: func(supportID string, rc *Context) ruleOutcome {
				if rc.ItemRequirements == nil || !contains(rc.ItemRequirements.RequiredSupportIDs, supportID) {
					return noMatch()
				}
				return ruleOutcome{
					matched:  true,
					action:   ActionEnable,
					required: true,
					reason:   fmt.Sprintf("support %q required by item %q", supportID, rc.ItemID),
				}
			},
		},
		{
			name:   "legal_requirement",
			source: "pnp",
			eval: func(supportID string, rc *Context) ruleOutcome {
				if !contains(rc.StudentLegalRequirements, supportID) {
					return noMatch()
				}
				return ruleOutcome{
					matched:         true,
					action:          ActionEnable,
					alwaysAvailable: true,
					reason:          fmt.Sprintf("support %q is a legally-mandated accommodation", supportID),
				}
			},
		},
		{
			name:   "student_preference",
			source: "student",
			eval: func(supportID string, rc *Context) ruleOutcome {
				if !contains(rc.StudentAccommodations, supportID) {
					return noMatch()
				}
				return ruleOutcome{
					matched: true,
					action:  ActionEnable,
					reason:  fmt.Sprintf("support %q in student accommodation preferences", supportID),
				}
			},
		},
		{
			name:   "assessment_default",
			source: "assessment",
			eval: func(supportID string, rc *Context) ruleOutcome {
				if rc.AssessmentDefaults == nil || !contains(rc.AssessmentDefaults.DefaultSupportIDs, supportID) {
					return noMatch()
				}
				return ruleOutcome{
					matched: true,
					action:  ActionEnable,
					reason:  fmt.Sprintf("support %q in assessment default tool list", supportID),
				}
			},
		},
		{
			name:   "default_deny",
			source: "system",
			eval: func(supportID string, _ *Context) ruleOutcome {
				return ruleOutcome{
					matched: true,
					action:  ActionBlock,
					reason:  fmt.Sprintf("support %q not configured anywhere", supportID),
				}
			},
		},
	}
}
