package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/brightpath-assess/toolgate/internal/chread"
	"go.uber.org/zap"
)

func (d *Dependencies) handleListEvents(w http.ResponseWriter, r *http.Request) {
	if d.Reader == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "ClickHouse not configured"})
		return
	}

	q := r.URL.Query()
	districtID := q.Get("district_id")
	if districtID == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "district_id query parameter is required"})
		return
	}

	params := chread.ListEventsParams{
		DistrictID: districtID,
		Page:       queryInt(q, "page", 1),
		PageSize:   queryInt(q, "page_size", 50),
	}
	if params.PageSize > 200 {
		params.PageSize = 200
	}
	if params.Page < 1 {
		params.Page = 1
	}

	if v := q.Get("student_id"); v != "" {
		params.StudentID = &v
	}
	if v := q.Get("assessment_id"); v != "" {
		params.AssessmentID = &v
	}
	if v := q.Get("tool_id"); v != "" {
		params.ToolID = &v
	}
	if v := q.Get("winning_rule"); v != "" {
		params.WinningRule = &v
	}
	if v := q.Get("enabled"); v != "" {
		b := v == "true" || v == "1"
		params.Enabled = &b
	}
	if v := q.Get("start_time"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			params.StartTime = &t
		}
	}
	if v := q.Get("end_time"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			params.EndTime = &t
		}
	}

	events, total, err := d.Reader.ListEvents(r.Context(), params)
	if err != nil {
		d.Logger.Error("failed to list resolutions", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to list resolutions"})
		return
	}

	resp := EventListResp{
		Events:   make([]ResolutionEventResp, 0, len(events)),
		Total:    total,
		Page:     params.Page,
		PageSize: params.PageSize,
	}
	for _, e := range events {
		resp.Events = append(resp.Events, eventRowToResp(e))
	}

	writeJSON(w, http.StatusOK, resp)
}

func (d *Dependencies) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	if d.Reader == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "ClickHouse not configured"})
		return
	}

	requestID := r.PathValue("request_id")
	districtID := r.URL.Query().Get("district_id")
	if districtID == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "district_id query parameter is required"})
		return
	}

	event, err := d.Reader.GetEvent(r.Context(), districtID, requestID)
	if err != nil {
		d.Logger.Error("failed to get resolution", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to get resolution"})
		return
	}
	if event == nil {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Resolution not found."})
		return
	}

	writeJSON(w, http.StatusOK, eventRowToResp(*event))
}

func (d *Dependencies) handleGetAnalytics(w http.ResponseWriter, r *http.Request) {
	if d.Reader == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "ClickHouse not configured"})
		return
	}

	q := r.URL.Query()
	districtID := q.Get("district_id")
	if districtID == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "district_id query parameter is required"})
		return
	}

	days := queryInt(q, "days", 7)
	if days < 1 {
		days = 1
	}
	if days > 90 {
		days = 90
	}

	result, err := d.Reader.GetAnalytics(r.Context(), districtID, days)
	if err != nil {
		d.Logger.Error("failed to get analytics", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to get analytics"})
		return
	}

	writeJSON(w, http.StatusOK, AnalyticsResp{
		Summary: SummaryStatsResp{
			TotalResolutions: result.Summary.TotalResolutions,
			Enabled:          result.Summary.Enabled,
			Denied:           result.Summary.Denied,
			AlwaysAvailable:  result.Summary.AlwaysAvailable,
		},
		DenialsOverTime: toTimeSeriesResp(result.DenialsOverTime),
		TopWinningRules: toRuleCountResp(result.TopWinningRules),
		TopDeniedTools:  toToolCountResp(result.TopDeniedTools),
		LatencyPercentiles: LatencyPercentilesResp{
			P50: result.LatencyPercentiles.P50,
			P95: result.LatencyPercentiles.P95,
			P99: result.LatencyPercentiles.P99,
		},
	})
}

// eventRowToResp converts a ClickHouse EventRow to the API response.
// Trail entries are stored as parallel arrays and reconstructed here. The
// step column restarts per support id in merged trails; rows written before
// the column existed fall back to positional numbering.
func eventRowToResp(e chread.EventRow) ResolutionEventResp {
	trail := make([]TrailEntryResp, 0, len(e.TrailRules))
	for i, rule := range e.TrailRules {
		entry := TrailEntryResp{
			Step: i + 1,
			Rule: rule,
		}
		if i < len(e.TrailSteps) {
			entry.Step = int(e.TrailSteps[i])
		}
		if i < len(e.TrailSupports) {
			entry.SupportID = e.TrailSupports[i]
		}
		if i < len(e.TrailActions) {
			entry.Action = e.TrailActions[i]
		}
		if i < len(e.TrailReasons) {
			entry.Reason = e.TrailReasons[i]
		}
		if i < len(e.TrailSources) {
			entry.Source = e.TrailSources[i]
		}
		trail = append(trail, entry)
	}

	return ResolutionEventResp{
		RequestID:       e.RequestID,
		DistrictID:      e.DistrictID,
		StudentID:       e.StudentID,
		AssessmentID:    e.AssessmentID,
		SectionID:       nilIfEmpty(e.SectionID),
		ItemID:          nilIfEmpty(e.ItemID),
		ToolID:          e.ToolID,
		Enabled:         e.Enabled == 1,
		Required:        e.Required == 1,
		AlwaysAvailable: e.AlwaysAvailable == 1,
		Restricted:      e.Restricted == 1,
		Config:          nilIfEmpty(e.Config),
		WinningRule:     e.WinningRule,
		Trail:           trail,
		LatencyMs:       e.LatencyMs,
		Source:          e.Source,
		Timestamp:       e.Timestamp,
	}
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func queryInt(q interface{ Get(string) string }, key string, defaultVal int) int {
	v := q.Get(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func toTimeSeriesResp(buckets []chread.TimeSeriesBucket) []TimeSeriesBucketResp {
	out := make([]TimeSeriesBucketResp, len(buckets))
	for i, b := range buckets {
		out[i] = TimeSeriesBucketResp{Hour: b.Hour, Count: b.Count}
	}
	return out
}

func toRuleCountResp(rules []chread.RuleCount) []RuleCountResp {
	out := make([]RuleCountResp, len(rules))
	for i, r := range rules {
		out[i] = RuleCountResp{Rule: r.Rule, Count: r.Count}
	}
	return out
}

func toToolCountResp(tools []chread.ToolCount) []ToolCountResp {
	out := make([]ToolCountResp, len(tools))
	for i, t := range tools {
		out[i] = ToolCountResp{ToolID: t.ToolID, Count: t.Count}
	}
	return out
}
