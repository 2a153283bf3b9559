package handlers

import (
	"net/http"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/chemlab/labstock/internal/httpx"
	"github.com/chemlab/labstock/internal/models"
	"github.com/chemlab/labstock/internal/validation"
)

// NormativeHandler manages the normative (solution/mixture recipe) catalog.
type NormativeHandler struct {
	DB *gorm.DB
}

func NewNormativeHandler(db *gorm.DB) *NormativeHandler { return &NormativeHandler{DB: db} }

// List: GET /normatives
func (h *NormativeHandler) List(w http.ResponseWriter, r *http.Request) {
	var norms []models.Normative
	if err := h.DB.Order("name").Find(&norms).Error; err != nil {
		httpx.JSONError(w, http.StatusInternalServerError, "failed_to_list_normatives", nil)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": norms, "total": len(norms)})
}

// Components: GET /normatives/components — normatives usable as an
// ingredient of another normative.
func (h *NormativeHandler) Components(w http.ResponseWriter, r *http.Request) {
	var norms []models.Normative
	if err := h.DB.Where("as_component = ?", true).Order("name").Find(&norms).Error; err != nil {
		httpx.JSONError(w, http.StatusInternalServerError, "failed_to_list_normatives", nil)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": norms, "total": len(norms)})
}

// Create: POST /normatives
func (h *NormativeHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string              `json:"name"`
		Type        string              `json:"type"`
		Output      decimal.Decimal     `json:"output"`
		AsComponent bool                `json:"as_component"`
		Substances  models.ComponentMap `json:"substances"`
		Solutions   models.ComponentMap `json:"solutions"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_json", nil)
		return
	}
	v := validation.Violations{}
	validation.Required("name", req.Name, v)
	validation.MaxLen("name", req.Name, 255, v)
	validation.Positive("output", req.Output, v)
	if req.Type != models.NormativeSolution && req.Type != models.NormativeMixture {
		v["type"] = "unknown_type"
	}
	if len(req.Substances) == 0 && len(req.Solutions) == 0 {
		v["substances"] = "at_least_one_component_required"
	}
	for name, qty := range req.Substances {
		if qty.IsNegative() {
			v["substances."+name] = "must_not_be_negative"
		}
	}
	for name, qty := range req.Solutions {
		if qty.IsNegative() {
			v["solutions."+name] = "must_not_be_negative"
		}
	}
	if !v.Empty() {
		httpx.JSONError(w, http.StatusBadRequest, "validation_failed", v)
		return
	}

	var count int64
	h.DB.Model(&models.Normative{}).Where("name = ?", req.Name).Count(&count)
	if count > 0 {
		httpx.JSONError(w, http.StatusConflict, "name_already_exists", req.Name)
		return
	}
	if unknown := h.unknownSubstances(req.Substances); len(unknown) > 0 {
		httpx.JSONError(w, http.StatusBadRequest, "unknown_substances", unknown)
		return
	}
	if unknown := h.unusableSolutions(req.Solutions); len(unknown) > 0 {
		httpx.JSONError(w, http.StatusBadRequest, "unknown_or_unusable_solutions", unknown)
		return
	}

	norm := models.Normative{
		Name:        req.Name,
		Type:        req.Type,
		Output:      req.Output,
		Substances:  req.Substances,
		Solutions:   req.Solutions,
		AsComponent: req.AsComponent,
	}
	if err := h.DB.Create(&norm).Error; err != nil {
		httpx.JSONError(w, http.StatusInternalServerError, "failed_to_create_normative", nil)
		return
	}
	httpx.JSON(w, http.StatusCreated, norm)
}

// Delete: POST /normatives/delete?id=N
func (h *NormativeHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		httpx.JSONError(w, http.StatusBadRequest, "missing_id", nil)
		return
	}
	res := h.DB.Delete(&models.Normative{}, id)
	if res.Error != nil {
		httpx.JSONError(w, http.StatusInternalServerError, "failed_to_delete_normative", nil)
		return
	}
	if res.RowsAffected == 0 {
		httpx.JSONError(w, http.StatusNotFound, "not_found", nil)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"deleted": id})
}

func (h *NormativeHandler) unknownSubstances(components models.ComponentMap) []string {
	var unknown []string
	for name := range components {
		var count int64
		h.DB.Model(&models.Substance{}).Where("name = ?", name).Count(&count)
		if count == 0 {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// unusableSolutions returns component names that are not normatives flagged
// as usable components.
func (h *NormativeHandler) unusableSolutions(components models.ComponentMap) []string {
	var unknown []string
	for name := range components {
		var count int64
		h.DB.Model(&models.Normative{}).Where("name = ? AND as_component = ?", name, true).Count(&count)
		if count == 0 {
			unknown = append(unknown, name)
		}
	}
	return unknown
}
