package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"log/slog"

	"pg-insight/internal/querystore"
)

type Queries struct {
	repo             *querystore.Repository
	log              *slog.Logger
	defaultThreshold float64
}

func NewQueries(repo *querystore.Repository, log *slog.Logger, defaultThresholdMs float64) *Queries {
	if log == nil {
		log = slog.Default()
	}
	return &Queries{repo: repo, log: log, defaultThreshold: defaultThresholdMs}
}

// Swagger DTOs
type ListDatabasesResponse struct {
	Databases []string `json:"databases"`
}

type SlowQueriesResponse struct {
	ThresholdMs float64                  `json:"threshold_ms"`
	Items       []querystore.QueryRecord `json:"items"`
}

type PatternsResponse struct {
	Patterns []querystore.PatternStat `json:"patterns"`
}

type PercentilesResponse struct {
	ExecTimeMs querystore.PercentileSet `json:"exec_time_ms"`
}

// ListDatabases godoc
// @Summary List databases seen in parsed logs
// @Description Returns distinct database names that have stored queries. SQLAlchemy-sourced queries appear under the "sqlalchemy" sentinel.
// @Tags queries
// @Produce json
// @Success 200 {object} ListDatabasesResponse
// @Failure 500 {object} ErrorEnvelope
// @Router /v1/queries/databases [get]
func (h *Queries) ListDatabases() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.repo == nil {
			writeError(w, http.StatusInternalServerError, "internal_error", "repository not configured")
			return
		}
		names, err := h.repo.ListDatabases(r.Context())
		if err != nil {
			h.log.Error("list databases failed", "err", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to list databases")
			return
		}
		writeJSON(w, http.StatusOK, ListDatabasesResponse{Databases: names})
	})
}

// SlowQueries godoc
// @Summary List slow queries
// @Description Stored queries at or above the threshold, slowest first.
// @Tags queries
// @Produce json
// @Param db query string false "Database name filter"
// @Param threshold_ms query number false "Slow threshold in ms (default from config)"
// @Param limit query int false "Max rows" default(100)
// @Success 200 {object} SlowQueriesResponse
// @Failure 400 {object} ErrorEnvelope
// @Failure 500 {object} ErrorEnvelope
// @Router /v1/queries/slow [get]
func (h *Queries) SlowQueries() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.repo == nil {
			writeError(w, http.StatusInternalServerError, "internal_error", "repository not configured")
			return
		}
		q := r.URL.Query()
		db := strings.TrimSpace(q.Get("db"))

		threshold := h.defaultThreshold
		if s := strings.TrimSpace(q.Get("threshold_ms")); s != "" {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil || v < 0 {
				writeError(w, http.StatusBadRequest, "bad_request", "threshold_ms must be a non-negative number")
				return
			}
			threshold = v
		}

		limit := 100
		if s := strings.TrimSpace(q.Get("limit")); s != "" {
			v, err := strconv.Atoi(s)
			if err != nil || v <= 0 {
				writeError(w, http.StatusBadRequest, "bad_request", "limit must be a positive integer")
				return
			}
			limit = v
		}

		rows, err := h.repo.SlowQueries(r.Context(), db, threshold, limit)
		if err != nil {
			h.log.Error("slow queries failed", "db", db, "err", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to query slow queries")
			return
		}
		if rows == nil {
			rows = []querystore.QueryRecord{}
		}
		writeJSON(w, http.StatusOK, SlowQueriesResponse{ThresholdMs: threshold, Items: rows})
	})
}

// Patterns godoc
// @Summary Top query patterns
// @Description Most frequent normalized query patterns, ranked by occurrence count.
// @Tags queries
// @Produce json
// @Param db query string false "Database name filter"
// @Param top query int false "Number of patterns" default(10)
// @Success 200 {object} PatternsResponse
// @Failure 400 {object} ErrorEnvelope
// @Failure 500 {object} ErrorEnvelope
// @Router /v1/queries/patterns [get]
func (h *Queries) Patterns() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.repo == nil {
			writeError(w, http.StatusInternalServerError, "internal_error", "repository not configured")
			return
		}
		q := r.URL.Query()
		db := strings.TrimSpace(q.Get("db"))

		top := 10
		if s := strings.TrimSpace(q.Get("top")); s != "" {
			v, err := strconv.Atoi(s)
			if err != nil || v <= 0 {
				writeError(w, http.StatusBadRequest, "bad_request", "top must be a positive integer")
				return
			}
			top = v
		}

		stats, err := h.repo.TopPatterns(r.Context(), db, top)
		if err != nil {
			h.log.Error("top patterns failed", "db", db, "err", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to rank patterns")
			return
		}
		if stats == nil {
			stats = []querystore.PatternStat{}
		}
		writeJSON(w, http.StatusOK, PatternsResponse{Patterns: stats})
	})
}

// Percentiles godoc
// @Summary Execution-time percentiles
// @Description percentile_disc over stored execution times. pcts is a comma list of fractions, default 0.5,0.75,0.9,0.95,0.99.
// @Tags queries
// @Produce json
// @Param db query string false "Database name filter"
// @Param pcts query string false "Comma-separated fractions in (0,1]"
// @Success 200 {object} PercentilesResponse
// @Failure 400 {object} ErrorEnvelope
// @Failure 500 {object} ErrorEnvelope
// @Router /v1/queries/percentiles [get]
func (h *Queries) Percentiles() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.repo == nil {
			writeError(w, http.StatusInternalServerError, "internal_error", "repository not configured")
			return
		}
		q := r.URL.Query()
		db := strings.TrimSpace(q.Get("db"))

		pcts := []float64{0.5, 0.75, 0.9, 0.95, 0.99}
		if s := strings.TrimSpace(q.Get("pcts")); s != "" {
			parsed, err := parsePcts(s)
			if err != nil {
				writeError(w, http.StatusBadRequest, "bad_request", err.Error())
				return
			}
			pcts = parsed
		}

		set, err := h.repo.ExecTimePercentiles(r.Context(), db, pcts)
		if err != nil {
			h.log.Error("percentiles failed", "db", db, "err", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to compute percentiles")
			return
		}
		writeJSON(w, http.StatusOK, PercentilesResponse{ExecTimeMs: set})
	})
}

func parsePcts(s string) ([]float64, error) {
	parts := strings.Split(s, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseFloat(p, 64)
		if err != nil || v <= 0 || v > 1 {
			return nil, fmt.Errorf("invalid percentile fraction: %q", p)
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("pcts must contain at least one fraction")
	}
	return out, nil
}
