package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// District represents a row in the districts table.
type District struct {
	ID           string
	Name         string
	APIKeyHash   string
	APIKeyPrefix string
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// DistrictWithPolicy is a District joined with its ToolPolicy (for auth lookups).
type DistrictWithPolicy struct {
	District
	BlockedSupportIDs  json.RawMessage // from tool_policies.blocked_support_ids
	RequiredSupportIDs json.RawMessage // from tool_policies.required_support_ids
	PlacementAllowList json.RawMessage // from tool_policies.placement_allow_list
}

// UpdateDistrictParams holds optional fields for partial district updates.
type UpdateDistrictParams struct {
	Name   *string
	Active *bool
}

// GenerateAPIKey creates a new dsk_ API key with its bcrypt hash and prefix.
// Returns (fullKey, hash, prefix, error). The fullKey is shown to the user once.
func GenerateAPIKey() (string, string, string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", "", "", fmt.Errorf("GenerateAPIKey: %w", err)
	}
	fullKey := "dsk_" + hex.EncodeToString(raw) // 68 chars total

	hashBytes, err := bcrypt.GenerateFromPassword([]byte(fullKey), bcrypt.DefaultCost)
	if err != nil {
		return "", "", "", fmt.Errorf("GenerateAPIKey: %w", err)
	}

	prefix := fullKey[:8] // "dsk_abcd"
	return fullKey, string(hashBytes), prefix, nil
}

// CreateDistrict inserts a new district and its default tool policy in a
// single transaction. Returns the district, policy, and plaintext API key
// (shown once).
func (s *Store) CreateDistrict(ctx context.Context, name string) (*District, *ToolPolicy, string, error) {
	fullKey, keyHash, keyPrefix, err := GenerateAPIKey()
	if err != nil {
		return nil, nil, "", fmt.Errorf("CreateDistrict: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, "", fmt.Errorf("CreateDistrict: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var d District
	err = tx.QueryRowContext(ctx, `
		INSERT INTO districts (name, api_key_hash, api_key_prefix)
		VALUES ($1, $2, $3)
		RETURNING id, name, api_key_hash, api_key_prefix, active, created_at, updated_at`,
		name, keyHash, keyPrefix,
	).Scan(&d.ID, &d.Name, &d.APIKeyHash, &d.APIKeyPrefix, &d.Active,
		&d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, nil, "", fmt.Errorf("CreateDistrict: %w", err)
	}

	var pol ToolPolicy
	err = tx.QueryRowContext(ctx, `
		INSERT INTO tool_policies (district_id)
		VALUES ($1)
		RETURNING id, district_id, blocked_support_ids, required_support_ids,
		          COALESCE(placement_allow_list, 'null'::jsonb), created_at, updated_at`,
		d.ID,
	).Scan(&pol.ID, &pol.DistrictID, &pol.BlockedSupportIDs, &pol.RequiredSupportIDs,
		&pol.PlacementAllowList, &pol.CreatedAt, &pol.UpdatedAt)
	if err != nil {
		return nil, nil, "", fmt.Errorf("CreateDistrict: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, "", fmt.Errorf("CreateDistrict: %w", err)
	}

	return &d, &pol, fullKey, nil
}

// ListDistricts returns all districts ordered by created_at DESC.
func (s *Store) ListDistricts(ctx context.Context) ([]*District, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, api_key_hash, api_key_prefix, active, created_at, updated_at
		FROM districts ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("ListDistricts: %w", err)
	}
	defer rows.Close()

	var districts []*District
	for rows.Next() {
		var d District
		if err := rows.Scan(&d.ID, &d.Name, &d.APIKeyHash, &d.APIKeyPrefix,
			&d.Active, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("ListDistricts: %w", err)
		}
		districts = append(districts, &d)
	}
	return districts, rows.Err()
}

// GetDistrict returns a district by ID, or nil if not found.
func (s *Store) GetDistrict(ctx context.Context, id string) (*District, error) {
	var d District
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, api_key_hash, api_key_prefix, active, created_at, updated_at
		FROM districts WHERE id = $1`, id,
	).Scan(&d.ID, &d.Name, &d.APIKeyHash, &d.APIKeyPrefix,
		&d.Active, &d.CreatedAt, &d.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetDistrict: %w", err)
	}
	return &d, nil
}

// UpdateDistrict applies a partial update to a district. Only non-nil fields
// are changed.
func (s *Store) UpdateDistrict(ctx context.Context, id string, params UpdateDistrictParams) (*District, error) {
	var d District
	err := s.db.QueryRowContext(ctx, `
		UPDATE districts SET
			name       = COALESCE($2, name),
			active     = COALESCE($3, active),
			updated_at = now()
		WHERE id = $1
		RETURNING id, name, api_key_hash, api_key_prefix, active, created_at, updated_at`,
		id, params.Name, params.Active,
	).Scan(&d.ID, &d.Name, &d.APIKeyHash, &d.APIKeyPrefix,
		&d.Active, &d.CreatedAt, &d.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("UpdateDistrict: %w", err)
	}
	return &d, nil
}

// DeleteDistrict deletes a district by ID. The tool policy cascades.
func (s *Store) DeleteDistrict(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM districts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("DeleteDistrict: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// RotateAPIKey generates a new API key for a district.
// Returns the updated district and the plaintext key (shown once).
func (s *Store) RotateAPIKey(ctx context.Context, id string) (*District, string, error) {
	fullKey, keyHash, keyPrefix, err := GenerateAPIKey()
	if err != nil {
		return nil, "", fmt.Errorf("RotateAPIKey: %w", err)
	}

	var d District
	err = s.db.QueryRowContext(ctx, `
		UPDATE districts SET
			api_key_hash   = $2,
			api_key_prefix = $3,
			updated_at     = now()
		WHERE id = $1
		RETURNING id, name, api_key_hash, api_key_prefix, active, created_at, updated_at`,
		id, keyHash, keyPrefix,
	).Scan(&d.ID, &d.Name, &d.APIKeyHash, &d.APIKeyPrefix,
		&d.Active, &d.CreatedAt, &d.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, "", fmt.Errorf("RotateAPIKey: district not found")
	}
	if err != nil {
		return nil, "", fmt.Errorf("RotateAPIKey: %w", err)
	}

	return &d, fullKey, nil
}

// LookupByPrefix finds a district by API key prefix (first 8 chars).
// Used by auth to narrow candidates before bcrypt verify.
func (s *Store) LookupByPrefix(ctx context.Context, prefix string) (*DistrictWithPolicy, error) {
	var dw DistrictWithPolicy
	err := s.db.QueryRowContext(ctx, `
		SELECT d.id, d.name, d.api_key_hash, d.api_key_prefix, d.active,
		       d.created_at, d.updated_at,
		       COALESCE(pol.blocked_support_ids, '[]'),
		       COALESCE(pol.required_support_ids, '[]'),
		       COALESCE(pol.placement_allow_list, 'null'::jsonb)
		FROM districts d
		LEFT JOIN tool_policies pol ON pol.district_id = d.id
		WHERE d.api_key_prefix = $1`, prefix,
	).Scan(&dw.ID, &dw.Name, &dw.APIKeyHash, &dw.APIKeyPrefix, &dw.Active,
		&dw.CreatedAt, &dw.UpdatedAt,
		&dw.BlockedSupportIDs, &dw.RequiredSupportIDs, &dw.PlacementAllowList)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("LookupByPrefix: %w", err)
	}
	return &dw, nil
}
