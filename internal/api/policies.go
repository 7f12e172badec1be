package api

import (
	"encoding/json"
	"net/http"

	"github.com/brightpath-assess/toolgate/internal/store"
	"go.uber.org/zap"
)

func (d *Dependencies) handleGetToolPolicy(w http.ResponseWriter, r *http.Request) {
	districtID := r.PathValue("district_id")
	policy, err := d.Store.GetToolPolicy(r.Context(), districtID)
	if err != nil {
		d.Logger.Error("failed to get tool policy", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to get tool policy"})
		return
	}
	if policy == nil {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Tool policy not found."})
		return
	}
	writeJSON(w, http.StatusOK, policyToResp(policy))
}

func (d *Dependencies) handleReplaceToolPolicy(w http.ResponseWriter, r *http.Request) {
	districtID := r.PathValue("district_id")

	var req UpdateToolPolicyReq
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	if !validSupportIDArray(req.BlockedSupportIDs) || !validSupportIDArray(req.RequiredSupportIDs) ||
		!validSupportIDArray(req.PlacementAllowList) {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "policy fields must be JSON arrays of strings"})
		return
	}

	policy, err := d.Store.ReplaceToolPolicy(r.Context(), districtID, store.ReplaceToolPolicyParams{
		BlockedSupportIDs:  req.BlockedSupportIDs,
		RequiredSupportIDs: req.RequiredSupportIDs,
		PlacementAllowList: req.PlacementAllowList,
	})
	if err != nil {
		d.Logger.Error("failed to replace tool policy", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to replace tool policy"})
		return
	}
	if policy == nil {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Tool policy not found."})
		return
	}
	writeJSON(w, http.StatusOK, policyToResp(policy))
}

func (d *Dependencies) handleUpdateToolPolicy(w http.ResponseWriter, r *http.Request) {
	districtID := r.PathValue("district_id")

	var req UpdateToolPolicyReq
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	if !validSupportIDArray(req.BlockedSupportIDs) || !validSupportIDArray(req.RequiredSupportIDs) ||
		!validSupportIDArray(req.PlacementAllowList) {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "policy fields must be JSON arrays of strings"})
		return
	}

	params := store.UpdateToolPolicyParams{}
	if req.BlockedSupportIDs != nil {
		params.BlockedSupportIDs = &req.BlockedSupportIDs
	}
	if req.RequiredSupportIDs != nil {
		params.RequiredSupportIDs = &req.RequiredSupportIDs
	}
	if req.PlacementAllowList != nil {
		params.PlacementAllowList = &req.PlacementAllowList
	}

	policy, err := d.Store.UpdateToolPolicy(r.Context(), districtID, params)
	if err != nil {
		d.Logger.Error("failed to update tool policy", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to update tool policy"})
		return
	}
	if policy == nil {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Tool policy not found."})
		return
	}
	writeJSON(w, http.StatusOK, policyToResp(policy))
}

// validSupportIDArray accepts absent fields and JSON arrays of strings.
func validSupportIDArray(raw json.RawMessage) bool {
	if raw == nil {
		return true
	}
	var ids []string
	return json.Unmarshal(raw, &ids) == nil
}

func policyToResp(p *store.ToolPolicy) ToolPolicyResp {
	blocked := p.BlockedSupportIDs
	if blocked == nil {
		blocked = json.RawMessage(`[]`)
	}
	required := p.RequiredSupportIDs
	if required == nil {
		required = json.RawMessage(`[]`)
	}
	return ToolPolicyResp{
		ID:                 p.ID,
		DistrictID:         p.DistrictID,
		BlockedSupportIDs:  blocked,
		RequiredSupportIDs: required,
		PlacementAllowList: p.PlacementAllowList,
		CreatedAt:          p.CreatedAt,
		UpdatedAt:          p.UpdatedAt,
	}
}
