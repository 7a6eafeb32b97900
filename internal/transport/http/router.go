// SPDX-License-Identifier: Apache-2.0

package httptransport

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/adiadia/salesflow/internal/metrics"
	"github.com/adiadia/salesflow/internal/transport/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
)

const defaultMaxBodyBytes = 10 << 20

type Deps struct {
	Raw           RawAppender
	Dataset       DatasetReader
	Compactor     Compactor
	Trigger       CompactionTrigger
	HealthChecker HealthChecker
	Logger        *slog.Logger

	AdminToken             string
	MaxBodyBytes           int64
	WebhookRateLimitPerMin int
	CORSAllowedOrigins     []string

	Version   string
	Commit    string
	BuildDate string
}

func NewRouter(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics.Init()
	version := valueOrDefault(deps.Version, "dev")
	commit := valueOrDefault(deps.Commit, "none")
	buildDate := valueOrDefault(deps.BuildDate, "unknown")

	maxBody := deps.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware())
	r.Use(requestLoggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	if len(deps.CORSAllowedOrigins) > 0 {
		r.Use(cors.New(cors.Options{
			AllowedOrigins: deps.CORSAllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"*"},
			ExposedHeaders: []string{headerRequestID, "ETag"},
		}).Handler)
	}

	// ---------------- HEALTH ----------------

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		logger.Debug("health check hit")
		if deps.HealthChecker != nil {
			if err := deps.HealthChecker.Check(r.Context()); err != nil {
				logger.Warn("health check failed", "error", err)
				http.Error(w, "not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// ---------------- METRICS ----------------

	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	// ---------------- VERSION ----------------

	r.Get("/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"version":    version,
			"commit":     commit,
			"build_date": buildDate,
		})
	})

	// ---------------- INGESTION ----------------

	if deps.Raw != nil {
		limited := func() { metrics.IncWebhookBatch(metrics.OutcomeLimited) }
		r.With(middleware.RateLimit(deps.WebhookRateLimitPerMin, logger, limited)).
			Post("/webhook", webhookHandler(deps.Raw, deps.Trigger, maxBody, logger))
	}

	// ---------------- DATASET (READ ONLY) ----------------

	if deps.Dataset != nil {
		r.Get("/dataset", datasetCSVHandler(deps.Dataset, logger))
		r.Get("/dataset.xlsx", datasetXLSXHandler(deps.Dataset, logger))
		r.Get("/dataset/records", datasetRecordsHandler(deps.Dataset, logger))
		r.Get("/dataset/summary", datasetSummaryHandler(deps.Dataset, logger))
	}

	// ---------------- COMPACTION (ADMIN) ----------------

	if deps.Compactor != nil {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(middleware.AdminTokenAuth(deps.AdminToken, logger))

			admin.Post("/compact", func(w http.ResponseWriter, r *http.Request) {
				res, err := deps.Compactor.Compact(r.Context())
				if err != nil {
					logger.Error("admin compaction failed", "error", err)
					writeError(w, http.StatusInternalServerError, "compaction aborted")
					return
				}

				logger.Info("compaction requested via API",
					"skipped", res.Skipped,
					"records", res.Records,
				)
				writeJSON(w, http.StatusOK, res)
			})
		})
	}

	return r
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func valueOrDefault(value, defaultValue string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return defaultValue
	}
	return trimmed
}
