package plansource

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/brightpath-assess/toolgate/internal/resolve"
	"go.uber.org/zap"
)

// planStore abstracts DB queries for testability.
type planStore interface {
	LookupPlan(ctx context.Context, districtID, studentID, assessmentID string) (*planRow, error)
}

type planRow struct {
	ID                      string
	DistrictID              string
	StudentID               string
	AssessmentID            string
	Accommodations          string // JSONB array as string
	LegalRequirements       string // JSONB array
	AdministrationOverrides string // JSONB object: support id → {blocked, config}
	AssessmentDefaults      string // JSONB array
}

// sqlPlanStore is the real implementation using *sql.DB (pgx stdlib driver).
type sqlPlanStore struct {
	db *sql.DB
}

func (s *sqlPlanStore) LookupPlan(ctx context.Context, districtID, studentID, assessmentID string) (*planRow, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, district_id, student_id, assessment_id,
		       COALESCE(accommodations, '[]'),
		       COALESCE(legal_requirements, '[]'),
		       COALESCE(administration_overrides, '{}'),
		       COALESCE(assessment_defaults, '[]')
		FROM accommodation_plans
		WHERE district_id = $1 AND student_id = $2 AND assessment_id = $3
	`, districtID, studentID, assessmentID)

	var r planRow
	if err := row.Scan(
		&r.ID, &r.DistrictID, &r.StudentID, &r.AssessmentID,
		&r.Accommodations, &r.LegalRequirements,
		&r.AdministrationOverrides, &r.AssessmentDefaults,
	); err != nil {
		return nil, err
	}
	return &r, nil
}

// PostgresSource fetches accommodation plans from the accommodation_plans
// table, fronted by a stale-while-revalidate cache.
type PostgresSource struct {
	store  planStore
	cache  *PlanCache
	logger *zap.Logger
}

// PostgresSourceConfig configures the PostgresSource.
type PostgresSourceConfig struct {
	DB       *sql.DB
	CacheTTL time.Duration
	Logger   *zap.Logger
}

// NewPostgresSource creates a new PostgresSource.
func NewPostgresSource(cfg PostgresSourceConfig) *PostgresSource {
	ttl := cfg.CacheTTL
	if ttl == 0 {
		ttl = 60 * time.Second
	}
	return &PostgresSource{
		store:  &sqlPlanStore{db: cfg.DB},
		cache:  NewPlanCache(ttl),
		logger: cfg.Logger,
	}
}

// newPostgresSourceWithStore creates a source with a custom store (for testing).
func newPostgresSourceWithStore(store planStore, cacheTTL time.Duration, logger *zap.Logger) *PostgresSource {
	if cacheTTL == 0 {
		cacheTTL = 60 * time.Second
	}
	return &PostgresSource{
		store:  store,
		cache:  NewPlanCache(cacheTTL),
		logger: logger,
	}
}

// FetchPlan implements Source.
func (s *PostgresSource) FetchPlan(ctx context.Context, districtID, studentID, assessmentID string) (*PlanData, error) {
	cached := s.cache.Get(districtID, studentID, assessmentID)
	if cached.Hit {
		if cached.NeedsRefresh {
			go s.refreshInBackground(districtID, studentID, assessmentID)
		}
		return cached.Plan, nil
	}

	plan, err := s.fetchFromDB(ctx, districtID, studentID, assessmentID)
	if err != nil {
		if err == sql.ErrNoRows {
			// Negative cache: no plan on file.
			s.cache.Set(districtID, studentID, assessmentID, nil)
			return nil, nil
		}
		return nil, fmt.Errorf("FetchPlan: %w", err)
	}

	s.cache.Set(districtID, studentID, assessmentID, plan)
	return plan, nil
}

func (s *PostgresSource) fetchFromDB(ctx context.Context, districtID, studentID, assessmentID string) (*PlanData, error) {
	row, err := s.store.LookupPlan(ctx, districtID, studentID, assessmentID)
	if err != nil {
		return nil, err
	}
	return parsePlanRow(row)
}

func (s *PostgresSource) refreshInBackground(districtID, studentID, assessmentID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	plan, err := s.fetchFromDB(ctx, districtID, studentID, assessmentID)
	if err != nil {
		if err == sql.ErrNoRows {
			s.cache.Set(districtID, studentID, assessmentID, nil)
			return
		}
		s.logger.Warn("background plan refresh failed",
			zap.String("district_id", districtID),
			zap.String("student_id", studentID),
			zap.Error(err),
		)
		return
	}
	s.cache.Set(districtID, studentID, assessmentID, plan)
}

func parsePlanRow(row *planRow) (*PlanData, error) {
	plan := &PlanData{}

	if row.Accommodations != "" && row.Accommodations != "[]" {
		if err := json.Unmarshal([]byte(row.Accommodations), &plan.StudentAccommodations); err != nil {
			return nil, fmt.Errorf("parsePlanRow: accommodations: %w", err)
		}
	}
	if row.LegalRequirements != "" && row.LegalRequirements != "[]" {
		if err := json.Unmarshal([]byte(row.LegalRequirements), &plan.LegalRequirements); err != nil {
			return nil, fmt.Errorf("parsePlanRow: legal_requirements: %w", err)
		}
	}
	if row.AdministrationOverrides != "" && row.AdministrationOverrides != "{}" {
		var overrides map[string]resolve.Override
		if err := json.Unmarshal([]byte(row.AdministrationOverrides), &overrides); err != nil {
			return nil, fmt.Errorf("parsePlanRow: administration_overrides: %w", err)
		}
		plan.AdministrationOverrides = overrides
	}
	if row.AssessmentDefaults != "" && row.AssessmentDefaults != "[]" {
		if err := json.Unmarshal([]byte(row.AssessmentDefaults), &plan.AssessmentDefaults); err != nil {
			return nil, fmt.Errorf("parsePlanRow: assessment_defaults: %w", err)
		}
	}

	return plan, nil
}
