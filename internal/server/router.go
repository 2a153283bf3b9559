package server

import (
	"net/http"

	"gorm.io/gorm"

	"github.com/chemlab/labstock/internal/handlers"
	"github.com/chemlab/labstock/internal/httpx"
	"github.com/chemlab/labstock/internal/reports"
	"github.com/chemlab/labstock/internal/services"
)

// New constructs the root http.Handler with all routes applied.
func New(db *gorm.DB) http.Handler {
	mux := http.NewServeMux()

	// --- Health endpoints ---
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.Exec("SELECT 1").Error; err != nil {
			httpx.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	prodSvc := services.NewProductionService(db)
	analysisSvc := services.NewAnalysisService(db)
	reportSvc := reports.NewService(db)

	// Catalog: substances
	sh := handlers.NewSubstanceHandler(db)
	mux.Handle("/substances", listCreate(sh.List, sh.Create))
	mux.Handle("/substances/delete", postOnly(sh.Delete))

	// Catalog: normatives
	nh := handlers.NewNormativeHandler(db)
	mux.Handle("/normatives", listCreate(nh.List, nh.Create))
	mux.Handle("/normatives/components", getOnly(nh.Components))
	mux.Handle("/normatives/delete", postOnly(nh.Delete))

	// Catalog: recipes
	rh := handlers.NewRecipeHandler(db)
	mux.Handle("/recipes", listCreate(rh.List, rh.Create))
	mux.Handle("/recipes/detail", getOnly(rh.Detail))
	mux.Handle("/recipes/delete", postOnly(rh.Delete))

	// Stock ledger
	sth := handlers.NewStockHandler(db, prodSvc, reportSvc)
	mux.Handle("/stock/intake", postOnly(sth.Intake))
	mux.Handle("/stock/history", getOnly(sth.History))
	mux.Handle("/stock/summary", getOnly(sth.Summary))
	mux.Handle("/stock/consumption", getOnly(sth.Consumption))

	// Solution ledger
	slh := handlers.NewSolutionHandler(db, prodSvc, analysisSvc, reportSvc)
	mux.Handle("/solutions/produce", postOnly(slh.Produce))
	mux.Handle("/solutions/write-off", postOnly(slh.WriteOff))
	mux.Handle("/solutions/delete", postOnly(slh.Delete))
	mux.Handle("/solutions/history", getOnly(slh.History))
	mux.Handle("/solutions/summary", getOnly(slh.Summary))

	// Analyses
	ah := handlers.NewAnalysisHandler(db, analysisSvc)
	mux.Handle("/analyses", listCreate(ah.List, ah.Run))
	mux.Handle("/analyses/delete", postOnly(ah.Delete))

	return mux
}

func listCreate(list, create http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			list(w, r)
		case http.MethodPost:
			create(w, r)
		default:
			w.Header().Set("Allow", "GET,POST")
			httpx.JSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", nil)
		}
	})
}

func getOnly(h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", "GET")
			httpx.JSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", nil)
			return
		}
		h(w, r)
	})
}

func postOnly(h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", "POST")
			httpx.JSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", nil)
			return
		}
		h(w, r)
	})
}
