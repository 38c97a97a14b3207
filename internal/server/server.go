// Package server exposes run status over HTTP. Handlers read only
// published state: whole-tick snapshots and finalized reports, never the
// engine's in-flight tick.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/quantfold/mmsim/internal/domain"
)

// StatusReader serves the latest published tick for a run.
type StatusReader interface {
	LatestTick(ctx context.Context, runID string) (domain.TickStatus, error)
}

// ReportReader serves finalized run reports.
type ReportReader interface {
	GetReport(ctx context.Context, runID string) (domain.RunReport, error)
}

// NewRouter creates a chi router with all routes registered and request
// logging.
func NewRouter(status StatusReader, reports ReportReader, logger *slog.Logger) chi.Router {
	r := chi.NewRouter()
	r.Use(requestLogging(logger))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/runs/{run_id}/status", func(w http.ResponseWriter, r *http.Request) {
		runID := chi.URLParam(r, "run_id")
		tick, err := status.LatestTick(r.Context(), runID)
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no status published for run")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "status lookup failed")
			return
		}
		writeJSON(w, http.StatusOK, tick)
	})

	r.Get("/runs/{run_id}/report", func(w http.ResponseWriter, r *http.Request) {
		runID := chi.URLParam(r, "run_id")
		report, err := reports.GetReport(r.Context(), runID)
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "run has no finalized report")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "report lookup failed")
			return
		}
		writeJSON(w, http.StatusOK, report)
	})

	return r
}

// New creates an http.Server for the router with sane timeouts.
func New(addr string, router chi.Router) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// requestLogging logs each request's method, path, status and duration.
func requestLogging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.status),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
