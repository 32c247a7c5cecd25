// Package httpapi exposes the run service over HTTP.
package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/architectagent/architect/internal/service"
)

// DefaultMaxBodyBytes bounds request bodies when no limit is configured.
const DefaultMaxBodyBytes int64 = 1 << 20

// Options tune the router.
type Options struct {
	MaxBodyBytes int64
	Logger       *slog.Logger
}

type handlers struct {
	svc    *service.Service
	opts   Options
	logger *slog.Logger
}

// NewRouter returns the API handler for svc.
func NewRouter(svc *service.Service, opts Options) http.Handler {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	h := &handlers{svc: svc, opts: opts, logger: opts.Logger}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("POST /v1/runs", h.handleRunStart)
	mux.HandleFunc("GET /v1/runs", h.handleRunList)
	mux.HandleFunc("GET /v1/runs/{run_id}", h.handleRunQuery)
	mux.HandleFunc("POST /v1/runs/{run_id}/cancel", h.handleRunCancel)
	mux.HandleFunc("POST /v1/runs/{run_id}/resume", h.handleRunResume)
	mux.HandleFunc("GET /v1/runs/{run_id}/blueprint", h.handleBlueprint)
	mux.HandleFunc("GET /v1/patterns", h.handlePatterns)
	mux.HandleFunc("POST /v1/analyze", h.handleAnalyze)
	return h.logRequests(mux)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (h *handlers) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		h.logger.Debug("http request",
			"method", r.Method, "path", r.URL.Path, "status", rec.status, "elapsed", time.Since(start))
	})
}
