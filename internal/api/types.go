package api

import (
	"encoding/json"
	"time"
)

// --- POST /v1/resolve request/response ---

// ItemRequirementsReq carries the item-authored tool demands for one item.
type ItemRequirementsReq struct {
	RequiredSupportIDs   []string                   `json:"required_support_ids,omitempty"`
	RestrictedSupportIDs []string                   `json:"restricted_support_ids,omitempty"`
	PerSupportConfig     map[string]json.RawMessage `json:"per_support_config,omitempty"`
}

// StructuralContextReq describes the slice of content on screen, as reported
// by the player surface. It drives the relevance pass; elements nest.
type StructuralContextReq struct {
	AssessmentID string                  `json:"assessment_id,omitempty"`
	SectionID    string                  `json:"section_id,omitempty"`
	ItemID       string                  `json:"item_id,omitempty"`
	PassageID    string                  `json:"passage_id,omitempty"`
	ElementID    string                  `json:"element_id,omitempty"`
	Level        string                  `json:"level"`
	ContentKinds []string                `json:"content_kinds,omitempty"`
	ContentReady bool                    `json:"content_ready"`
	Elements     []*StructuralContextReq `json:"elements,omitempty"`
}

// OverrideReq is one per-sitting administration adjustment.
type OverrideReq struct {
	Blocked bool            `json:"blocked,omitempty"`
	Config  json.RawMessage `json:"config,omitempty"`
}

// ResolveRequest is the JSON body for POST /v1/resolve. Plan fields
// (accommodations, legal requirements, overrides, defaults) may be supplied
// inline; when omitted and a plan source is configured, they are fetched by
// district+student+assessment.
type ResolveRequest struct {
	StudentID    string `json:"student_id"`
	AssessmentID string `json:"assessment_id"`
	SectionID    string `json:"section_id,omitempty"`
	ItemID       string `json:"item_id,omitempty"`

	StudentAccommodations   []string               `json:"student_accommodations,omitempty"`
	LegalRequirements       []string               `json:"legal_requirements,omitempty"`
	AdministrationOverrides map[string]OverrideReq `json:"administration_overrides,omitempty"`
	ItemRequirements        *ItemRequirementsReq   `json:"item_requirements,omitempty"`
	AssessmentDefaults      []string               `json:"assessment_defaults,omitempty"`

	// StructuralContext, when supplied, lets the relevance pass narrow the
	// visible set to tools pertinent to the content on screen. Without it
	// the visible set is the enabled set after placement narrowing.
	StructuralContext *StructuralContextReq `json:"structural_context,omitempty"`

	TraceID string `json:"trace_id,omitempty"`
}

// TrailEntryResp is one precedence step in a decision's provenance trail.
type TrailEntryResp struct {
	Step      int    `json:"step"`
	Rule      string `json:"rule"`
	SupportID string `json:"support_id,omitempty"`
	Action    string `json:"action"`
	Reason    string `json:"reason"`
	Source    string `json:"source"`
}

// DecisionResp is one tool's resolved availability with its trail.
type DecisionResp struct {
	ToolID          string           `json:"tool_id"`
	Enabled         bool             `json:"enabled"`
	Required        bool             `json:"required"`
	AlwaysAvailable bool             `json:"always_available"`
	Restricted      bool             `json:"restricted"`
	Config          json.RawMessage  `json:"config,omitempty"`
	WinningRule     string           `json:"winning_rule"`
	Trail           []TrailEntryResp `json:"trail"`
}

// ResolveResponse is the body for POST /v1/resolve. AllowedTools is the
// enabled set before narrowing; VisibleTools is what may actually render
// after the placement allow-list and the relevance pass.
type ResolveResponse struct {
	RequestID    string         `json:"request_id"`
	Decisions    []DecisionResp `json:"decisions"`
	AllowedTools []string       `json:"allowed_tools"`
	VisibleTools []string       `json:"visible_tools"`
	LatencyMs    float64        `json:"latency_ms"`
}

// --- District CRUD ---

// CreateDistrictReq is the JSON body for POST /api/toolgate/districts.
type CreateDistrictReq struct {
	Name string `json:"name"`
}

// CreateDistrictResp includes the plaintext API key (shown once).
type CreateDistrictResp struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	APIKey       string    `json:"api_key"`
	APIKeyPrefix string    `json:"api_key_prefix"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
}

// UpdateDistrictReq is the JSON body for PATCH /api/toolgate/districts/{id}.
type UpdateDistrictReq struct {
	Name   *string `json:"name,omitempty"`
	Active *bool   `json:"active,omitempty"`
}

// DistrictResp is a district without its plaintext key.
type DistrictResp struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	APIKeyPrefix string    `json:"api_key_prefix"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// RotateKeyResp includes the new plaintext API key (shown once).
type RotateKeyResp struct {
	APIKey       string `json:"api_key"`
	APIKeyPrefix string `json:"api_key_prefix"`
}

// --- Tool policy CRUD ---

// UpdateToolPolicyReq is the JSON body for PATCH/PUT policy endpoints.
type UpdateToolPolicyReq struct {
	BlockedSupportIDs  json.RawMessage `json:"blocked_support_ids,omitempty"`
	RequiredSupportIDs json.RawMessage `json:"required_support_ids,omitempty"`
	PlacementAllowList json.RawMessage `json:"placement_allow_list,omitempty"`
}

// ToolPolicyResp is a district's tool policy.
type ToolPolicyResp struct {
	ID                 string          `json:"id"`
	DistrictID         string          `json:"district_id"`
	BlockedSupportIDs  json.RawMessage `json:"blocked_support_ids"`
	RequiredSupportIDs json.RawMessage `json:"required_support_ids"`
	PlacementAllowList json.RawMessage `json:"placement_allow_list"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// --- Tool catalog ---

// ToolResp describes one registered tool.
type ToolResp struct {
	ToolID             string   `json:"tool_id"`
	Name               string   `json:"name"`
	Description        string   `json:"description,omitempty"`
	Band               string   `json:"band"`
	SupportedLevels    []string `json:"supported_levels"`
	ExternalSupportIDs []string `json:"external_support_ids"`
}

// --- Resolution events ---

// ResolutionEventResp is one persisted resolution decision.
type ResolutionEventResp struct {
	RequestID       string           `json:"request_id"`
	DistrictID      string           `json:"district_id"`
	StudentID       string           `json:"student_id"`
	AssessmentID    string           `json:"assessment_id"`
	SectionID       *string          `json:"section_id"`
	ItemID          *string          `json:"item_id"`
	ToolID          string           `json:"tool_id"`
	Enabled         bool             `json:"enabled"`
	Required        bool             `json:"required"`
	AlwaysAvailable bool             `json:"always_available"`
	Restricted      bool             `json:"restricted"`
	Config          *string          `json:"config"`
	WinningRule     string           `json:"winning_rule"`
	Trail           []TrailEntryResp `json:"trail"`
	LatencyMs       float32          `json:"latency_ms"`
	Source          string           `json:"source"`
	Timestamp       time.Time        `json:"timestamp"`
}

// EventListResp is the paginated event listing body.
type EventListResp struct {
	Events   []ResolutionEventResp `json:"events"`
	Total    int                   `json:"total"`
	Page     int                   `json:"page"`
	PageSize int                   `json:"page_size"`
}

// --- Analytics ---

// AnalyticsResp aggregates resolution outcomes for a district.
type AnalyticsResp struct {
	Summary            SummaryStatsResp       `json:"summary"`
	DenialsOverTime    []TimeSeriesBucketResp `json:"denials_over_time"`
	TopWinningRules    []RuleCountResp        `json:"top_winning_rules"`
	TopDeniedTools     []ToolCountResp        `json:"top_denied_tools"`
	LatencyPercentiles LatencyPercentilesResp `json:"latency_percentiles"`
}

// SummaryStatsResp holds aggregate decision counts.
type SummaryStatsResp struct {
	TotalResolutions int `json:"total_resolutions"`
	Enabled          int `json:"enabled"`
	Denied           int `json:"denied"`
	AlwaysAvailable  int `json:"always_available"`
}

// TimeSeriesBucketResp holds an hourly count.
type TimeSeriesBucketResp struct {
	Hour  string `json:"hour"`
	Count int    `json:"count"`
}

// RuleCountResp holds a winning rule and its count.
type RuleCountResp struct {
	Rule  string `json:"rule"`
	Count int    `json:"count"`
}

// ToolCountResp holds a tool id and its count.
type ToolCountResp struct {
	ToolID string `json:"tool_id"`
	Count  int    `json:"count"`
}

// LatencyPercentilesResp holds latency percentiles.
type LatencyPercentilesResp struct {
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

// ErrorResp is a standard error response body.
type ErrorResp struct {
	Detail string `json:"detail"`
}
