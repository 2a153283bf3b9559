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

// StockHandler covers the substance ledger: intake, history, summary.
type StockHandler struct {
	DB      *gorm.DB
	Svc     *services.ProductionService
	Reports *reports.Service
}

func NewStockHandler(db *gorm.DB, svc *services.ProductionService, rep *reports.Service) *StockHandler {
	return &StockHandler{DB: db, Svc: svc, Reports: rep}
}

// Intake: POST /stock/intake — a signed movement at an entered price.
// Negative amounts are manual corrections.
func (h *StockHandler) Intake(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SubstanceName string          `json:"substance_name"`
		Amount        decimal.Decimal `json:"amount"`
		Price         decimal.Decimal `json:"price"`
		Date          string          `json:"date"`
		Notes         string          `json:"notes"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_json", nil)
		return
	}
	v := validation.Violations{}
	validation.Required("substance_name", req.SubstanceName, v)
	validation.NonNegative("price", req.Price, v)
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
	entry, err := h.Svc.RecordIntake(req.SubstanceName, req.Amount, req.Price, date, req.Notes)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

// History: GET /stock/history?key=&direction=&from=&to=
func (h *StockHandler) History(w http.ResponseWriter, r *http.Request) {
	filter, err := historyFilter(r)
	if err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_filter", err.Error())
		return
	}
	entries, err := h.Reports.StockHistory(filter)
	if err != nil {
		httpx.JSONError(w, http.StatusInternalServerError, "failed_to_list_stock", nil)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": entries, "total": len(entries)})
}

// Summary: GET /stock/summary — per-substance rollup.
func (h *StockHandler) Summary(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Reports.StockSummary()
	if err != nil {
		httpx.JSONError(w, http.StatusInternalServerError, "failed_to_summarize_stock", nil)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": rows, "total": len(rows)})
}

// Consumption: GET /stock/consumption?from=&to= — period outflow rollup.
func (h *StockHandler) Consumption(w http.ResponseWriter, r *http.Request) {
	from, err := parseDate(r.URL.Query().Get("from"))
	if err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_filter", "from")
		return
	}
	to, err := parseDate(r.URL.Query().Get("to"))
	if err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_filter", "to")
		return
	}
	rows, err := h.Reports.ConsumptionBetween(from, to)
	if err != nil {
		httpx.JSONError(w, http.StatusInternalServerError, "failed_to_summarize_consumption", nil)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": rows, "total": len(rows)})
}

func historyFilter(r *http.Request) (reports.HistoryFilter, error) {
	f := reports.HistoryFilter{
		Key:       r.URL.Query().Get("key"),
		Direction: r.URL.Query().Get("direction"),
	}
	if v := r.URL.Query().Get("from"); v != "" {
		t, err := parseDate(v)
		if err != nil {
			return f, err
		}
		f.From = &t
	}
	if v := r.URL.Query().Get("to"); v != "" {
		t, err := parseDate(v)
		if err != nil {
			return f, err
		}
		f.To = &t
	}
	return f, nil
}
