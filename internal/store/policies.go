package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// ToolPolicy represents a row in the tool_policies table.
type ToolPolicy struct {
	ID                 string
	DistrictID         string
	BlockedSupportIDs  json.RawMessage // JSONB array of external support ids
	RequiredSupportIDs json.RawMessage // JSONB array
	PlacementAllowList json.RawMessage // nullable JSONB array of tool ids
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// UpdateToolPolicyParams holds optional fields for partial policy updates.
type UpdateToolPolicyParams struct {
	BlockedSupportIDs  *json.RawMessage // nil = don't change
	RequiredSupportIDs *json.RawMessage // nil = don't change
	PlacementAllowList *json.RawMessage // nil = don't change
}

// ReplaceToolPolicyParams holds fields for a full policy replace.
type ReplaceToolPolicyParams struct {
	BlockedSupportIDs  json.RawMessage
	RequiredSupportIDs json.RawMessage
	PlacementAllowList json.RawMessage // may be nil
}

// GetToolPolicy returns the tool policy for a district, or nil if not found.
func (s *Store) GetToolPolicy(ctx context.Context, districtID string) (*ToolPolicy, error) {
	var p ToolPolicy
	err := s.db.QueryRowContext(ctx, `
		SELECT id, district_id, blocked_support_ids, required_support_ids,
		       COALESCE(placement_allow_list, 'null'::jsonb), created_at, updated_at
		FROM tool_policies WHERE district_id = $1`, districtID,
	).Scan(&p.ID, &p.DistrictID, &p.BlockedSupportIDs, &p.RequiredSupportIDs,
		&p.PlacementAllowList, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetToolPolicy: %w", err)
	}
	return &p, nil
}

// UpdateToolPolicy applies a partial update to a policy. Only non-nil fields
// are changed.
func (s *Store) UpdateToolPolicy(ctx context.Context, districtID string, params UpdateToolPolicyParams) (*ToolPolicy, error) {
	var p ToolPolicy
	err := s.db.QueryRowContext(ctx, `
		UPDATE tool_policies SET
			blocked_support_ids  = COALESCE($2, blocked_support_ids),
			required_support_ids = COALESCE($3, required_support_ids),
			placement_allow_list = COALESCE($4, placement_allow_list),
			updated_at           = now()
		WHERE district_id = $1
		RETURNING id, district_id, blocked_support_ids, required_support_ids,
		          COALESCE(placement_allow_list, 'null'::jsonb), created_at, updated_at`,
		districtID,
		nullableJSON(params.BlockedSupportIDs),
		nullableJSON(params.RequiredSupportIDs),
		nullableJSON(params.PlacementAllowList),
	).Scan(&p.ID, &p.DistrictID, &p.BlockedSupportIDs, &p.RequiredSupportIDs,
		&p.PlacementAllowList, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("UpdateToolPolicy: %w", err)
	}
	return &p, nil
}

// ReplaceToolPolicy fully replaces a district's tool policy.
func (s *Store) ReplaceToolPolicy(ctx context.Context, districtID string, params ReplaceToolPolicyParams) (*ToolPolicy, error) {
	blocked := params.BlockedSupportIDs
	if blocked == nil {
		blocked = json.RawMessage(`[]`)
	}
	required := params.RequiredSupportIDs
	if required == nil {
		required = json.RawMessage(`[]`)
	}

	var p ToolPolicy
	err := s.db.QueryRowContext(ctx, `
		UPDATE tool_policies SET
			blocked_support_ids  = $2,
			required_support_ids = $3,
			placement_allow_list = $4,
			updated_at           = now()
		WHERE district_id = $1
		RETURNING id, district_id, blocked_support_ids, required_support_ids,
		          COALESCE(placement_allow_list, 'null'::jsonb), created_at, updated_at`,
		districtID, blocked, required, nullableRaw(params.PlacementAllowList),
	).Scan(&p.ID, &p.DistrictID, &p.BlockedSupportIDs, &p.RequiredSupportIDs,
		&p.PlacementAllowList, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ReplaceToolPolicy: %w", err)
	}
	return &p, nil
}

// nullableJSON returns nil (SQL NULL) if the pointer is nil, otherwise the raw bytes.
func nullableJSON(v *json.RawMessage) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

// nullableRaw returns nil (SQL NULL) if the raw message is nil or empty.
func nullableRaw(v json.RawMessage) interface{} {
	if v == nil {
		return nil
	}
	return v
}
