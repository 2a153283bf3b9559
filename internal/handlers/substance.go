package handlers

import (
	"net/http"

	"gorm.io/gorm"

	"github.com/chemlab/labstock/internal/httpx"
	"github.com/chemlab/labstock/internal/models"
	"github.com/chemlab/labstock/internal/validation"
)

// SubstanceHandler manages the raw-substance catalog.
type SubstanceHandler struct {
	DB *gorm.DB
}

func NewSubstanceHandler(db *gorm.DB) *SubstanceHandler { return &SubstanceHandler{DB: db} }

// List: GET /substances
func (h *SubstanceHandler) List(w http.ResponseWriter, r *http.Request) {
	var subs []models.Substance
	if err := h.DB.Order("name").Find(&subs).Error; err != nil {
		httpx.JSONError(w, http.StatusInternalServerError, "failed_to_list_substances", nil)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": subs, "total": len(subs)})
}

// Create: POST /substances
func (h *SubstanceHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string `json:"name"`
		Measurement string `json:"measurement"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_json", nil)
		return
	}
	v := validation.Violations{}
	validation.Required("name", req.Name, v)
	validation.MaxLen("name", req.Name, 255, v)
	switch req.Measurement {
	case models.UnitGram, models.UnitMillilitre, models.UnitPiece:
	default:
		v["measurement"] = "unknown_unit"
	}
	if !v.Empty() {
		httpx.JSONError(w, http.StatusBadRequest, "validation_failed", v)
		return
	}
	var count int64
	h.DB.Model(&models.Substance{}).Where("name = ?", req.Name).Count(&count)
	if count > 0 {
		httpx.JSONError(w, http.StatusConflict, "name_already_exists", req.Name)
		return
	}
	subst := models.Substance{Name: req.Name, Measurement: req.Measurement}
	if err := h.DB.Create(&subst).Error; err != nil {
		httpx.JSONError(w, http.StatusInternalServerError, "failed_to_create_substance", nil)
		return
	}
	httpx.JSON(w, http.StatusCreated, subst)
}

// Delete: POST /substances/delete?id=N
// The catalog row goes away; ledger history referencing the name stays.
func (h *SubstanceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		httpx.JSONError(w, http.StatusBadRequest, "missing_id", nil)
		return
	}
	res := h.DB.Delete(&models.Substance{}, id)
	if res.Error != nil {
		httpx.JSONError(w, http.StatusInternalServerError, "failed_to_delete_substance", nil)
		return
	}
	if res.RowsAffected == 0 {
		httpx.JSONError(w, http.StatusNotFound, "not_found", nil)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"deleted": id})
}
