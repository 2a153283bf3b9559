package handlers

import (
	"net/http"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/chemlab/labstock/internal/httpx"
	"github.com/chemlab/labstock/internal/reports"
	"github.com/chemlab/labstock/internal/services"
	"github.com/chemlab/labstock/internal/validation"
)

// SolutionHandler covers the solution ledger: production, write-offs,
// reversal, history, summary.
type SolutionHandler struct {
	DB       *gorm.DB
	Prod     *services.ProductionService
	Analysis *services.AnalysisService
	Reports  *reports.Service
}

func NewSolutionHandler(db *gorm.DB, prod *services.ProductionService, an *services.AnalysisService, rep *reports.Service) *SolutionHandler {
	return &SolutionHandler{DB: db, Prod: prod, Analysis: an, Reports: rep}
}

// Produce: POST /solutions/produce
func (h *SolutionHandler) Produce(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Normative string          `json:"normative"`
		Amount    decimal.Decimal `json:"amount"`
		MadeOn    string          `json:"made_on"`
		DueDate   string          `json:"due_date"`
		Notes     string          `json:"notes"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_json", nil)
		return
	}
	v := validation.Violations{}
	validation.Required("normative", req.Normative, v)
	validation.Positive("amount", req.Amount, v)
	validation.MaxLen("notes", req.Notes, 600, v)
	madeOn, err := parseDate(req.MadeOn)
	if err != nil {
		v["made_on"] = "invalid_date"
	} else {
		validation.DateNotFuture("made_on", madeOn, v)
	}
	dueDate, err := parseDate(req.DueDate)
	if err != nil {
		v["due_date"] = "invalid_date"
	} else if err == nil && req.MadeOn != "" && dueDate.Before(madeOn) {
		v["due_date"] = "before_made_on"
	}
	if !v.Empty() {
		httpx.JSONError(w, http.StatusBadRequest, "validation_failed", v)
		return
	}
	summary, err := h.Prod.ProduceNormative(services.ProduceRequest{
		Normative: req.Normative,
		Amount:    req.Amount,
		MadeOn:    madeOn,
		DueDate:   dueDate,
		Notes:     req.Notes,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, summary)
}

// WriteOff: POST /solutions/write-off — negative adjustment at the last
// row's remainder and price.
func (h *SolutionHandler) WriteOff(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Normative string          `json:"normative"`
		Amount    decimal.Decimal `json:"amount"`
		Date      string          `json:"date"`
		Notes     string          `json:"notes"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_json", nil)
		return
	}
	v := validation.Violations{}
	validation.Required("normative", req.Normative, v)
	validation.MaxLen("notes", req.Notes, 600, v)
	date, err := parseDate(req.Date)
	if err != nil {
		v["date"] = "invalid_date"
	} else {
		validation.DateNotFuture("date", date, v)
	}
	if !v.Empty() {
		httpx.JSONError(w, http.StatusBadRequest, "validation_failed", v)
		return
	}
	entry, err := h.Prod.WriteOffSolution(req.Normative, req.Amount, date, req.Notes)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

// Delete: POST /solutions/delete?id=N — best-effort reversal of one
// production row.
func (h *SolutionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		httpx.JSONError(w, http.StatusBadRequest, "missing_id", nil)
		return
	}
	report, err := h.Analysis.DeleteSolution(id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

// History: GET /solutions/history?key=&direction=&from=&to=
func (h *SolutionHandler) History(w http.ResponseWriter, r *http.Request) {
	filter, err := historyFilter(r)
	if err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_filter", err.Error())
		return
	}
	entries, err := h.Reports.SolutionHistory(filter)
	if err != nil {
		httpx.JSONError(w, http.StatusInternalServerError, "failed_to_list_solutions", nil)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": entries, "total": len(entries)})
}

// Summary: GET /solutions/summary — per-normative rollup.
func (h *SolutionHandler) Summary(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Reports.SolutionSummary()
	if err != nil {
		httpx.JSONError(w, http.StatusInternalServerError, "failed_to_summarize_solutions", nil)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": rows, "total": len(rows)})
}
