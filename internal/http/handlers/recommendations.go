package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"log/slog"

	"pg-insight/internal/logparse"
	"pg-insight/internal/querystore"
	"pg-insight/internal/recommend"
)

type Recommendations struct {
	repo             *querystore.Repository
	recommender      *recommend.Recommender
	log              *slog.Logger
	maxBodyBytes     int64
	defaultThreshold float64
}

func NewRecommendations(repo *querystore.Repository, rec *recommend.Recommender, log *slog.Logger, maxBodyBytes int64, defaultThresholdMs float64) *Recommendations {
	if log == nil {
		log = slog.Default()
	}
	return &Recommendations{
		repo:             repo,
		recommender:      rec,
		log:              log,
		maxBodyBytes:     maxBodyBytes,
		defaultThreshold: defaultThresholdMs,
	}
}

type AnalyzeResponse struct {
	Analyzed        int                        `json:"analyzed_queries"`
	Recommendations []recommend.Recommendation `json:"recommendations"`
}

type ListRecommendationsResponse struct {
	Items []recommend.Recommendation `json:"items"`
}

type UpdateStatusRequest struct {
	Status string `json:"status"`
}

// Analyze godoc
// @Summary Generate index recommendations
// @Description Runs the index recommender over stored slow queries, persists the result and returns it sorted by impact.
// @Tags recommendations
// @Produce json
// @Security BearerAuth
// @Param db query string false "Database name filter"
// @Param threshold_ms query number false "Slow threshold in ms (default from config)"
// @Success 200 {object} AnalyzeResponse
// @Failure 400 {object} ErrorEnvelope
// @Failure 500 {object} ErrorEnvelope
// @Router /v1/recommendations/analyze [post]
func (h *Recommendations) Analyze() http.Handler {
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

		rows, err := h.repo.SlowQueries(r.Context(), db, threshold, 0)
		if err != nil {
			h.log.Error("load slow queries failed", "db", db, "err", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to load queries")
			return
		}

		queries := make([]logparse.Query, 0, len(rows))
		for _, row := range rows {
			queries = append(queries, row.Query())
		}
		recs := h.recommender.Analyze(queries)

		if len(recs) > 0 {
			if err := h.repo.SaveRecommendations(r.Context(), recs); err != nil {
				h.log.Error("save recommendations failed", "err", err)
				writeError(w, http.StatusInternalServerError, "internal_error", "failed to save recommendations")
				return
			}
		}
		if recs == nil {
			recs = []recommend.Recommendation{}
		}
		writeJSON(w, http.StatusOK, AnalyzeResponse{Analyzed: len(queries), Recommendations: recs})
	})
}

// List godoc
// @Summary List recommendations
// @Description Stored recommendations, highest impact first, optionally filtered by status.
// @Tags recommendations
// @Produce json
// @Security BearerAuth
// @Param status query string false "pending|implemented|dismissed|scheduled"
// @Success 200 {object} ListRecommendationsResponse
// @Failure 400 {object} ErrorEnvelope
// @Failure 500 {object} ErrorEnvelope
// @Router /v1/recommendations [get]
func (h *Recommendations) List() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.repo == nil {
			writeError(w, http.StatusInternalServerError, "internal_error", "repository not configured")
			return
		}
		status := recommend.Status(strings.TrimSpace(r.URL.Query().Get("status")))
		if status != "" && !recommend.ValidStatus(status) {
			writeError(w, http.StatusBadRequest, "bad_request", "invalid status filter")
			return
		}
		recs, err := h.listRecommendations(r, status)
		if err != nil {
			h.log.Error("list recommendations failed", "err", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to list recommendations")
			return
		}
		writeJSON(w, http.StatusOK, ListRecommendationsResponse{Items: recs})
	})
}

// UpdateStatus godoc
// @Summary Update recommendation status
// @Description Moves a recommendation through its lifecycle. implemented_at is stamped on the transition into implemented.
// @Tags recommendations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Recommendation id"
// @Param body body UpdateStatusRequest true "New status"
// @Success 200 {object} recommend.Recommendation
// @Failure 400 {object} ErrorEnvelope
// @Failure 404 {object} ErrorEnvelope
// @Failure 500 {object} ErrorEnvelope
// @Router /v1/recommendations/{id}/status [patch]
func (h *Recommendations) UpdateStatus() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.repo == nil {
			writeError(w, http.StatusInternalServerError, "internal_error", "repository not configured")
			return
		}
		id := r.PathValue("id")
		if id == "" {
			writeError(w, http.StatusBadRequest, "bad_request", "missing recommendation id")
			return
		}

		if h.maxBodyBytes > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
		}
		var req UpdateStatusRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
			return
		}
		status := recommend.Status(strings.TrimSpace(req.Status))
		if !recommend.ValidStatus(status) {
			writeError(w, http.StatusBadRequest, "bad_request", "invalid status")
			return
		}

		rec, err := h.repo.UpdateRecommendationStatus(r.Context(), id, status)
		if errors.Is(err, querystore.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "recommendation not found")
			return
		}
		if err != nil {
			h.log.Error("update recommendation status failed", "id", id, "err", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to update status")
			return
		}
		writeJSON(w, http.StatusOK, rec.Recommendation())
	})
}

// ExportSQL godoc
// @Summary Export pending recommendations as a SQL script
// @Tags recommendations
// @Produce plain
// @Security BearerAuth
// @Success 200 {string} string "SQL script"
// @Failure 500 {object} ErrorEnvelope
// @Router /v1/recommendations/export.sql [get]
func (h *Recommendations) ExportSQL() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recs, err := h.listRecommendations(r, "")
		if err != nil {
			h.log.Error("export sql failed", "err", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to export")
			return
		}
		name := buildFilename("sql")
		w.Header().Set("Content-Type", "application/sql; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
		_, _ = w.Write([]byte(recommend.SQLScript(recs)))
	})
}

// ExportMarkdown godoc
// @Summary Export recommendations as a Markdown report
// @Tags recommendations
// @Produce plain
// @Security BearerAuth
// @Success 200 {string} string "Markdown report"
// @Failure 500 {object} ErrorEnvelope
// @Router /v1/recommendations/export.md [get]
func (h *Recommendations) ExportMarkdown() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recs, err := h.listRecommendations(r, "")
		if err != nil {
			h.log.Error("export markdown failed", "err", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to export")
			return
		}
		name := buildFilename("md")
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
		_, _ = w.Write([]byte(recommend.MarkdownReport(recs)))
	})
}

// ExportPDF godoc
// @Summary Export recommendations as a PDF report
// @Tags recommendations
// @Produce application/pdf
// @Security BearerAuth
// @Success 200 {string} string "PDF content"
// @Failure 500 {object} ErrorEnvelope
// @Router /v1/recommendations/export.pdf [get]
func (h *Recommendations) ExportPDF() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recs, err := h.listRecommendations(r, "")
		if err != nil {
			h.log.Error("export pdf failed", "err", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to export")
			return
		}
		b, err := recommend.PDFReport(recs)
		if err != nil {
			h.log.Error("render pdf failed", "err", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "could not render pdf")
			return
		}
		name := buildFilename("pdf")
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
		_, _ = w.Write(b)
	})
}

func (h *Recommendations) listRecommendations(r *http.Request, status recommend.Status) ([]recommend.Recommendation, error) {
	if h.repo == nil {
		return nil, fmt.Errorf("repository not configured")
	}
	records, err := h.repo.ListRecommendations(r.Context(), status)
	if err != nil {
		return nil, err
	}
	recs := make([]recommend.Recommendation, 0, len(records))
	for _, rec := range records {
		recs = append(recs, rec.Recommendation())
	}
	return recs, nil
}

func buildFilename(ext string) string {
	stamp := time.Now().UTC().Format("20060102-1504")
	return fmt.Sprintf("pg-insight-recommendations-%s.%s", stamp, ext)
}
