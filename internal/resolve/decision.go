package resolve

import "encoding/json"

// Action records what a precedence rule did for one support id.
type Action string

const (
	ActionEnable Action = "enable"
	ActionBlock  Action = "block"
	ActionSkip   Action = "skip"
)

// Decision is the resolved outcome for one tool id. Exactly one exists per
// tool id per resolution; decisions are recomputed, never patched.
type Decision struct {
	ToolID string `json:"tool_id"`

	// Enabled means the tool may be offered (still subject to pass-2
	// relevance filtering).
	Enabled bool `json:"enabled"`

	// Required means the tool must be used and cannot be hidden.
	Required bool `json:"required"`

	// AlwaysAvailable means the tool cannot be turned off, but using it is
	// not mandatory (legally-mandated accommodations).
	AlwaysAvailable bool `json:"always_available"`

	// Restricted means an explicit veto fired (district, administration or
	// item). A default deny leaves Restricted false.
	Restricted bool `json:"restricted"`

	// Config is the resolved per-tool configuration payload, validated
	// against the descriptor's config schema. Nil when none was supplied
	// or the supplied payload failed validation.
	Config json.RawMessage `json:"config,omitempty"`
}

// TrailEntry records one precedence rule evaluation for the audit trail.
type TrailEntry struct {
	Step      int    `json:"step"`
	Rule      string `json:"rule"`
	SupportID string `json:"support_id"`
	Action    Action `json:"action"`
	Reason    string `json:"reason"`
	Source    string `json:"source"`
}

// Trail is the ordered provenance log for one tool id. When several support
// ids map to the same tool, the trail concatenates their rule evaluations in
// context order.
type Trail struct {
	Entries []TrailEntry `json:"entries"`

	// Winning indexes the entry that produced the final decision. A pure
	// default deny points at the first alias's default_deny entry; -1 only
	// occurs for an empty trail.
	Winning int `json:"winning"`
}

// WinningEntry returns the deciding trail entry, or nil for an empty trail.
func (t *Trail) WinningEntry() *TrailEntry {
	if t.Winning < 0 || t.Winning >= len(t.Entries) {
		return nil
	}
	return &t.Entries[t.Winning]
}

// Result is the output of one resolution: one decision and one provenance
// trail per tool id.
type Result struct {
	Decisions map[string]Decision `json:"decisions"`
	Trails    map[string]*Trail   `json:"trails"`
}

// AllowedToolIDs returns the tool ids with enabled decisions (the pass-1
// allow-list before placement narrowing).
func (r *Result) AllowedToolIDs() map[string]struct{} {
	out := make(map[string]struct{}, len(r.Decisions))
	for toolID, d := range r.Decisions {
		if d.Enabled {
			out[toolID] = struct{}{}
		}
	}
	return out
}
