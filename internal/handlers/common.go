package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"gorm.io/gorm"

	"github.com/chemlab/labstock/internal/costing"
	"github.com/chemlab/labstock/internal/httpx"
	"github.com/chemlab/labstock/internal/services"
)

const dateLayout = "2006-01-02"

func parseDate(s string) (time.Time, error) {
	return time.Parse(dateLayout, s)
}

func idParam(r *http.Request) (uint, bool) {
	v := r.URL.Query().Get("id")
	if v == "" {
		return 0, false
	}
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil || n == 0 {
		return 0, false
	}
	return uint(n), true
}

// writeServiceError maps orchestrator errors to HTTP statuses. Costing and
// validation failures are recoverable client errors; anything else is a
// persistence fault and stays a 500.
func writeServiceError(w http.ResponseWriter, err error) {
	var missing *costing.MissingComponentsError
	if errors.As(err, &missing) {
		httpx.JSONError(w, http.StatusUnprocessableEntity, "missing_components", missing.Names)
		return
	}
	var zero *costing.ZeroRemainderError
	if errors.As(err, &zero) {
		httpx.JSONError(w, http.StatusUnprocessableEntity, "zero_remainder", zero.Name)
		return
	}
	if errors.Is(err, costing.ErrZeroQuantity) || errors.Is(err, services.ErrInvalidQuantity) {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_quantity", err.Error())
		return
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		httpx.JSONError(w, http.StatusNotFound, "not_found", err.Error())
		return
	}
	httpx.JSONError(w, http.StatusInternalServerError, "internal_error", nil)
}
