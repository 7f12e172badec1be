package api

import (
	"database/sql"
	"net/http"

	"github.com/brightpath-assess/toolgate/internal/store"
	"go.uber.org/zap"
)

func (d *Dependencies) handleCreateDistrict(w http.ResponseWriter, r *http.Request) {
	var req CreateDistrictReq
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	if req.Name == "" || len(req.Name) > 255 {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "name must be 1-255 characters"})
		return
	}

	district, _, plainKey, err := d.Store.CreateDistrict(r.Context(), req.Name)
	if err != nil {
		d.Logger.Error("failed to create district", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to create district"})
		return
	}

	writeJSON(w, http.StatusCreated, CreateDistrictResp{
		ID:           district.ID,
		Name:         district.Name,
		APIKey:       plainKey,
		APIKeyPrefix: district.APIKeyPrefix,
		Active:       district.Active,
		CreatedAt:    district.CreatedAt,
	})
}

func (d *Dependencies) handleListDistricts(w http.ResponseWriter, r *http.Request) {
	districts, err := d.Store.ListDistricts(r.Context())
	if err != nil {
		d.Logger.Error("failed to list districts", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to list districts"})
		return
	}

	resp := make([]DistrictResp, 0, len(districts))
	for _, dist := range districts {
		resp = append(resp, districtToResp(dist))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (d *Dependencies) handleGetDistrict(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("district_id")
	district, err := d.Store.GetDistrict(r.Context(), id)
	if err != nil {
		d.Logger.Error("failed to get district", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to get district"})
		return
	}
	if district == nil {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "District not found."})
		return
	}
	writeJSON(w, http.StatusOK, districtToResp(district))
}

func (d *Dependencies) handleUpdateDistrict(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("district_id")

	var req UpdateDistrictReq
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}

	// Validate name if provided
	if req.Name != nil && (len(*req.Name) == 0 || len(*req.Name) > 255) {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "name must be 1-255 characters"})
		return
	}

	district, err := d.Store.UpdateDistrict(r.Context(), id, store.UpdateDistrictParams{
		Name:   req.Name,
		Active: req.Active,
	})
	if err != nil {
		d.Logger.Error("failed to update district", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to update district"})
		return
	}
	if district == nil {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "District not found."})
		return
	}
	writeJSON(w, http.StatusOK, districtToResp(district))
}

func (d *Dependencies) handleDeleteDistrict(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("district_id")
	err := d.Store.DeleteDistrict(r.Context(), id)
	if err == sql.ErrNoRows {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "District not found."})
		return
	}
	if err != nil {
		d.Logger.Error("failed to delete district", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to delete district"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (d *Dependencies) handleRotateKey(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("district_id")
	district, plainKey, err := d.Store.RotateAPIKey(r.Context(), id)
	if err != nil {
		d.Logger.Error("failed to rotate key", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to rotate API key"})
		return
	}
	writeJSON(w, http.StatusOK, RotateKeyResp{
		APIKey:       plainKey,
		APIKeyPrefix: district.APIKeyPrefix,
	})
}

func districtToResp(dist *store.District) DistrictResp {
	return DistrictResp{
		ID:           dist.ID,
		Name:         dist.Name,
		APIKeyPrefix: dist.APIKeyPrefix,
		Active:       dist.Active,
		CreatedAt:    dist.CreatedAt,
		UpdatedAt:    dist.UpdatedAt,
	}
}
