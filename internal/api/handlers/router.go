package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/dvloznov/just-save/internal/api/middleware"
	"github.com/dvloznov/just-save/internal/jobs"
	"github.com/dvloznov/just-save/internal/pdftext"
)

// RouterConfig holds everything NewRouter wires together. Publisher, Store and
// Metrics are optional: without a publisher and store the job routes are not
// registered, without Metrics no request metrics are recorded.
type RouterConfig struct {
	Service        Pipeline
	PDF            pdftext.Extractor
	Publisher      jobs.Publisher
	Store          jobs.JobStore
	Metrics        middleware.HTTPRecorder
	MetricsHandler http.Handler
	Log            zerolog.Logger
	APIKey         string
	CORSOrigin     string
}

// NewRouter builds the HTTP API.
func NewRouter(cfg RouterConfig) *mux.Router {
	r := mux.NewRouter()

	r.Use(
		middleware.Recovery(cfg.Log),
		middleware.RequestID(cfg.Log),
		middleware.Logger(cfg.Log),
		middleware.CORS(cfg.CORSOrigin),
	)
	if cfg.Metrics != nil {
		r.Use(middleware.Metrics(cfg.Metrics))
	}

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	}).Methods(http.MethodGet)

	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler).Methods(http.MethodGet)
	}

	api := r.PathPrefix("/api").Subrouter()
	api.Use(middleware.Auth(cfg.APIKey))

	statements := NewStatementsHandler(cfg.Service, cfg.PDF)
	api.HandleFunc("/parse-csv", statements.ParseCSV).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/parse-pdf", statements.ParsePDF).Methods(http.MethodPost, http.MethodOptions)

	analysis := NewAnalysisHandler(cfg.Service)
	api.HandleFunc("/analyze", analysis.Analyze).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/explain", analysis.Explain).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/audit", analysis.Audit).Methods(http.MethodPost, http.MethodOptions)

	if cfg.Publisher != nil && cfg.Store != nil {
		jobsHandler := NewJobsHandler(cfg.Publisher, cfg.Store, cfg.PDF, cfg.Service.Limits())
		api.HandleFunc("/jobs", jobsHandler.CreateJob).Methods(http.MethodPost, http.MethodOptions)
		api.HandleFunc("/jobs", jobsHandler.ListJobs).Methods(http.MethodGet)
		api.HandleFunc("/jobs/{id}", jobsHandler.GetJob).Methods(http.MethodGet, http.MethodOptions)
	}

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteError(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	return r
}
