package handlers

import (
	"net/http"

	"gorm.io/gorm"

	"github.com/chemlab/labstock/internal/httpx"
	"github.com/chemlab/labstock/internal/models"
	"github.com/chemlab/labstock/internal/services"
	"github.com/chemlab/labstock/internal/validation"
)

// AnalysisHandler records and reverses completed analyses.
type AnalysisHandler struct {
	DB  *gorm.DB
	Svc *services.AnalysisService
}

func NewAnalysisHandler(db *gorm.DB, svc *services.AnalysisService) *AnalysisHandler {
	return &AnalysisHandler{DB: db, Svc: svc}
}

// Run: POST /analyses
func (h *AnalysisHandler) Run(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RecipeName string `json:"recipe_name"`
		Quantity   int    `json:"quantity"`
		DoneDate   string `json:"done_date"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_json", nil)
		return
	}
	v := validation.Violations{}
	validation.Required("recipe_name", req.RecipeName, v)
	if req.Quantity <= 0 {
		v["quantity"] = "must_be_positive"
	}
	doneDate, err := parseDate(req.DoneDate)
	if err != nil {
		v["done_date"] = "invalid_date"
	}
	if !v.Empty() {
		httpx.JSONError(w, http.StatusBadRequest, "validation_failed", v)
		return
	}
	analysis, err := h.Svc.RunAnalysis(req.RecipeName, req.Quantity, doneDate)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, analysis)
}

// List: GET /analyses
func (h *AnalysisHandler) List(w http.ResponseWriter, r *http.Request) {
	var items []models.Analysis
	if err := h.DB.Order("done_date desc, id desc").Find(&items).Error; err != nil {
		httpx.JSONError(w, http.StatusInternalServerError, "failed_to_list_analyses", nil)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items, "total": len(items)})
}

// Delete: POST /analyses/delete?id=N — best-effort reversal; the report
// lists any component rows that could not be matched.
func (h *AnalysisHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		httpx.JSONError(w, http.StatusBadRequest, "missing_id", nil)
		return
	}
	report, err := h.Svc.DeleteAnalysis(id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}
