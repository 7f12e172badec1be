// Package chread provides read access to the resolution audit store for the
// district-facing API. Writes go through the storage package; this side is
// query-only and opens its own connection.
package chread

import (
	"context"
	"crypto/tls"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"
)

// Reader provides read access to the ClickHouse resolution_events table.
type Reader struct {
	conn   driver.Conn
	logger *zap.Logger
}

// NewReader opens a ClickHouse connection for read queries.
func NewReader(dsn string, logger *zap.Logger) (*Reader, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("NewReader: %w", err)
	}
	if opts.TLS == nil {
		opts.TLS = &tls.Config{}
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("NewReader: %w", err)
	}
	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("NewReader: %w", err)
	}

	return &Reader{conn: conn, logger: logger}, nil
}

// Close closes the ClickHouse connection.
func (r *Reader) Close() error {
	return r.conn.Close()
}

// EventRow represents a single row from the resolution_events table.
type EventRow struct {
	RequestID       string
	DistrictID      string
	Timestamp       time.Time
	StudentID       string
	AssessmentID    string
	SectionID       string
	ItemID          string
	ToolID          string
	Enabled         uint8
	Required        uint8
	AlwaysAvailable uint8
	Restricted      uint8
	Config          string
	WinningRule     string
	WinningStep     uint8
	TrailSteps      []uint8
	TrailRules      []string
	TrailSupports   []string
	TrailActions    []string
	TrailReasons    []string
	TrailSources    []string
	ContextVersion  uint64
	LatencyMs       float32
	Source          string
}

// ListEventsParams holds filters and pagination for resolution listing.
type ListEventsParams struct {
	DistrictID   string
	StudentID    *string
	AssessmentID *string
	ToolID       *string
	WinningRule  *string
	Enabled      *bool
	StartTime    *time.Time
	EndTime      *time.Time
	Page         int
	PageSize     int
}

const eventColumns = "request_id, district_id, timestamp, " +
	"student_id, assessment_id, section_id, item_id, " +
	"tool_id, enabled, required, always_available, restricted, config, " +
	"winning_rule, winning_step, " +
	"trail_steps, trail_rules, trail_supports, trail_actions, trail_reasons, trail_sources, " +
	"context_version, latency_ms, source"

func scanEvent(row interface{ Scan(...any) error }) (EventRow, error) {
	var e EventRow
	err := row.Scan(
		&e.RequestID, &e.DistrictID, &e.Timestamp,
		&e.StudentID, &e.AssessmentID, &e.SectionID, &e.ItemID,
		&e.ToolID, &e.Enabled, &e.Required, &e.AlwaysAvailable, &e.Restricted, &e.Config,
		&e.WinningRule, &e.WinningStep,
		&e.TrailSteps, &e.TrailRules, &e.TrailSupports, &e.TrailActions, &e.TrailReasons, &e.TrailSources,
		&e.ContextVersion, &e.LatencyMs, &e.Source,
	)
	return e, err
}

// ListEvents returns paginated, filtered resolution events and the total count.
func (r *Reader) ListEvents(ctx context.Context, params ListEventsParams) ([]EventRow, int, error) {
	conditions := []string{"district_id = @district_id"}
	args := []any{
		clickhouse.Named("district_id", params.DistrictID),
	}

	if params.StudentID != nil {
		conditions = append(conditions, "student_id = @student_id")
		args = append(args, clickhouse.Named("student_id", *params.StudentID))
	}
	if params.AssessmentID != nil {
		conditions = append(conditions, "assessment_id = @assessment_id")
		args = append(args, clickhouse.Named("assessment_id", *params.AssessmentID))
	}
	if params.ToolID != nil {
		conditions = append(conditions, "tool_id = @tool_id")
		args = append(args, clickhouse.Named("tool_id", *params.ToolID))
	}
	if params.WinningRule != nil {
		conditions = append(conditions, "winning_rule = @winning_rule")
		args = append(args, clickhouse.Named("winning_rule", *params.WinningRule))
	}
	if params.Enabled != nil {
		var v uint8
		if *params.Enabled {
			v = 1
		}
		conditions = append(conditions, "enabled = @enabled")
		args = append(args, clickhouse.Named("enabled", v))
	}
	if params.StartTime != nil {
		conditions = append(conditions, "timestamp >= @start_time")
		args = append(args, clickhouse.Named("start_time", *params.StartTime))
	}
	if params.EndTime != nil {
		conditions = append(conditions, "timestamp <= @end_time")
		args = append(args, clickhouse.Named("end_time", *params.EndTime))
	}

	where := strings.Join(conditions, " AND ")
	offset := (params.Page - 1) * params.PageSize

	// Count query
	var total uint64
	countQuery := fmt.Sprintf("SELECT count() FROM resolution_events WHERE %s", where)
	if err := r.conn.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ListEvents count: %w", err)
	}

	// Data query
	dataQuery := fmt.Sprintf(
		"SELECT %s FROM resolution_events WHERE %s "+
			"ORDER BY timestamp DESC "+
			"LIMIT @limit OFFSET @offset",
		eventColumns, where,
	)
	args = append(args,
		clickhouse.Named("limit", uint32(params.PageSize)),
		clickhouse.Named("offset", uint32(offset)),
	)

	rows, err := r.conn.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("ListEvents query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []EventRow
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("ListEvents scan: %w", err)
		}
		events = append(events, e)
	}

	return events, int(total), rows.Err()
}

// GetEvent returns a single event by district ID and request ID, or nil if
// not found.
func (r *Reader) GetEvent(ctx context.Context, districtID, requestID string) (*EventRow, error) {
	row := r.conn.QueryRow(ctx,
		fmt.Sprintf("SELECT %s FROM resolution_events "+
			"WHERE district_id = @district_id AND request_id = @request_id", eventColumns),
		clickhouse.Named("district_id", districtID),
		clickhouse.Named("request_id", requestID),
	)

	e, err := scanEvent(row)
	if err != nil {
		// ClickHouse doesn't return sql.ErrNoRows, so check for empty result
		return nil, fmt.Errorf("GetEvent: %w", err)
	}
	if e.RequestID == "" {
		return nil, nil
	}
	return &e, nil
}

// SummaryStats holds aggregate decision counts.
type SummaryStats struct {
	TotalResolutions int `json:"total_resolutions"`
	Enabled          int `json:"enabled"`
	Denied           int `json:"denied"`
	AlwaysAvailable  int `json:"always_available"`
}

// TimeSeriesBucket holds an hourly count.
type TimeSeriesBucket struct {
	Hour  string `json:"hour"`
	Count int    `json:"count"`
}

// RuleCount holds a winning rule and its count.
type RuleCount struct {
	Rule  string `json:"rule"`
	Count int    `json:"count"`
}

// ToolCount holds a tool_id and its count.
type ToolCount struct {
	ToolID string `json:"tool_id"`
	Count  int    `json:"count"`
}

// LatencyStats holds latency percentiles.
type LatencyStats struct {
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

// AnalyticsResult holds all analytics aggregations.
type AnalyticsResult struct {
	Summary            SummaryStats       `json:"summary"`
	DenialsOverTime    []TimeSeriesBucket `json:"denials_over_time"`
	TopWinningRules    []RuleCount        `json:"top_winning_rules"`
	TopDeniedTools     []ToolCount        `json:"top_denied_tools"`
	LatencyPercentiles LatencyStats       `json:"latency_percentiles"`
}

// GetAnalytics returns aggregated analytics for a district over the given
// number of days.
func (r *Reader) GetAnalytics(ctx context.Context, districtID string, days int) (*AnalyticsResult, error) {
	now := time.Now().UTC()
	rangeStart := now.Add(-time.Duration(days) * 24 * time.Hour)
	dayStart := now.Add(-24 * time.Hour)

	baseArgs := []any{
		clickhouse.Named("district_id", districtID),
		clickhouse.Named("range_start", rangeStart),
	}

	result := &AnalyticsResult{}

	// Summary counts
	var total, enabled, denied, always uint64
	err := r.conn.QueryRow(ctx,
		"SELECT count() as total, "+
			"countIf(enabled = 1) as enabled, "+
			"countIf(enabled = 0) as denied, "+
			"countIf(always_available = 1) as always "+
			"FROM resolution_events "+
			"WHERE district_id = @district_id AND timestamp >= @range_start",
		baseArgs...,
	).Scan(&total, &enabled, &denied, &always)
	if err != nil {
		return nil, fmt.Errorf("GetAnalytics summary: %w", err)
	}
	result.Summary = SummaryStats{
		TotalResolutions: int(total),
		Enabled:          int(enabled),
		Denied:           int(denied),
		AlwaysAvailable:  int(always),
	}

	// Denials over time (hourly)
	dotRows, err := r.conn.Query(ctx,
		"SELECT toStartOfHour(timestamp) as hour, count() as count "+
			"FROM resolution_events "+
			"WHERE district_id = @district_id AND enabled = 0 "+
			"AND timestamp >= @range_start "+
			"GROUP BY hour ORDER BY hour",
		baseArgs...,
	)
	if err != nil {
		return nil, fmt.Errorf("GetAnalytics denials_over_time: %w", err)
	}
	defer func() { _ = dotRows.Close() }()
	for dotRows.Next() {
		var hour time.Time
		var count uint64
		if err := dotRows.Scan(&hour, &count); err != nil {
			return nil, fmt.Errorf("GetAnalytics denials_over_time scan: %w", err)
		}
		result.DenialsOverTime = append(result.DenialsOverTime, TimeSeriesBucket{
			Hour:  hour.Format(time.RFC3339),
			Count: int(count),
		})
	}

	// Top winning rules
	ruleRows, err := r.conn.Query(ctx,
		"SELECT winning_rule, count() as count "+
			"FROM resolution_events "+
			"WHERE district_id = @district_id AND timestamp >= @range_start "+
			"GROUP BY winning_rule ORDER BY count DESC LIMIT 10",
		baseArgs...,
	)
	if err != nil {
		return nil, fmt.Errorf("GetAnalytics top_rules: %w", err)
	}
	defer func() { _ = ruleRows.Close() }()
	for ruleRows.Next() {
		var rule string
		var count uint64
		if err := ruleRows.Scan(&rule, &count); err != nil {
			return nil, fmt.Errorf("GetAnalytics top_rules scan: %w", err)
		}
		result.TopWinningRules = append(result.TopWinningRules, RuleCount{
			Rule: rule, Count: int(count),
		})
	}

	// Top denied tools
	toolRows, err := r.conn.Query(ctx,
		"SELECT tool_id, count() as count "+
			"FROM resolution_events "+
			"WHERE district_id = @district_id AND enabled = 0 "+
			"AND timestamp >= @range_start "+
			"GROUP BY tool_id ORDER BY count DESC LIMIT 10",
		baseArgs...,
	)
	if err != nil {
		return nil, fmt.Errorf("GetAnalytics top_denied: %w", err)
	}
	defer func() { _ = toolRows.Close() }()
	for toolRows.Next() {
		var toolID string
		var count uint64
		if err := toolRows.Scan(&toolID, &count); err != nil {
			return nil, fmt.Errorf("GetAnalytics top_denied scan: %w", err)
		}
		result.TopDeniedTools = append(result.TopDeniedTools, ToolCount{
			ToolID: toolID, Count: int(count),
		})
	}

	// Latency percentiles (last 24h)
	var p50, p95, p99 float64
	err = r.conn.QueryRow(ctx,
		"SELECT quantile(0.5)(latency_ms) as p50, "+
			"quantile(0.95)(latency_ms) as p95, "+
			"quantile(0.99)(latency_ms) as p99 "+
			"FROM resolution_events "+
			"WHERE district_id = @district_id AND timestamp >= @day_start",
		clickhouse.Named("district_id", districtID),
		clickhouse.Named("day_start", dayStart),
	).Scan(&p50, &p95, &p99)
	if err != nil {
		return nil, fmt.Errorf("GetAnalytics latency: %w", err)
	}
	result.LatencyPercentiles = LatencyStats{
		P50: safeFloat(p50), P95: safeFloat(p95), P99: safeFloat(p99),
	}

	// Ensure slices are non-nil for JSON serialization
	if result.DenialsOverTime == nil {
		result.DenialsOverTime = []TimeSeriesBucket{}
	}
	if result.TopWinningRules == nil {
		result.TopWinningRules = []RuleCount{}
	}
	if result.TopDeniedTools == nil {
		result.TopDeniedTools = []ToolCount{}
	}

	return result, nil
}

// safeFloat replaces NaN/Inf with 0.0.
// ClickHouse returns NaN for quantile() on empty result sets.
func safeFloat(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0.0
	}
	return f
}
