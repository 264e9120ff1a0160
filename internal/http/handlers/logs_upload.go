package handlers

import (
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"pg-insight/internal/logparse"
	"pg-insight/internal/observability"
	"pg-insight/internal/querystore"
)

type LogUpload struct {
	parser       *logparse.Parser
	repo         *querystore.Repository
	log          *slog.Logger
	maxBodyBytes int64
}

func NewLogUpload(parser *logparse.Parser, repo *querystore.Repository, log *slog.Logger, maxBodyBytes int64) *LogUpload {
	if log == nil {
		log = slog.Default()
	}
	return &LogUpload{parser: parser, repo: repo, log: log, maxBodyBytes: maxBodyBytes}
}

// UploadResponse is the success response body for the upload endpoint.
type UploadResponse struct {
	Message  string         `json:"message"`
	Filename string         `json:"filename"`
	Inserted int            `json:"inserted"`
	Stats    logparse.Stats `json:"stats"`
}

// Upload godoc
// @Summary Upload a database log file
// @Description Accepts multipart/form-data with field "file" (.log, .txt or .gz). Reconstructs queries (multi-line ORM statements included) and stores them. Optional "sample_size" form field parses a uniform random subset of lines.
// @Tags logs
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "postgresql.log"
// @Param sample_size formData int false "Number of lines to sample"
// @Success 200 {object} UploadResponse
// @Failure 400 {object} ErrorEnvelope
// @Failure 500 {object} ErrorEnvelope
// @Router /v1/logs/upload [post]
func (h *LogUpload) Upload() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.repo == nil {
			writeError(w, http.StatusInternalServerError, "internal_error", "repository not configured")
			return
		}

		if h.maxBodyBytes > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
		}

		if err := r.ParseMultipartForm(32 << 20); err != nil { // 32 MiB memory cap
			writeError(w, http.StatusBadRequest, "bad_request", "invalid multipart form")
			return
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "missing file")
			return
		}
		defer safeClose(file)

		if err := validateUpload(header); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", err.Error())
			return
		}

		sampleSize := 0
		if s := strings.TrimSpace(r.FormValue("sample_size")); s != "" {
			v, err := strconv.Atoi(s)
			if err != nil || v < 0 {
				writeError(w, http.StatusBadRequest, "bad_request", "sample_size must be a non-negative integer")
				return
			}
			sampleSize = v
		}

		ctx := r.Context()
		result, err := h.parser.Parse(ctx, file, logparse.Options{
			SourceName: header.Filename,
			SampleSize: sampleSize,
		})
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", fmt.Sprintf("cannot parse file: %v", err))
			return
		}
		observability.IncParseRuns()
		observability.AddParseErrors(result.Stats.Errors)
		observability.AddQueriesParsed(result.Stats.ParsedQueries)

		if len(result.Queries) > 0 {
			if err := h.repo.InsertQueries(ctx, result.Queries); err != nil {
				h.log.Error("insert queries failed", "err", err)
				writeError(w, http.StatusInternalServerError, "internal_error", "insert failed")
				return
			}
		}

		msg := "upload processed"
		if len(result.Queries) == 0 {
			msg = "no queries found; nothing inserted"
		}
		writeJSON(w, http.StatusOK, UploadResponse{
			Message:  msg,
			Filename: header.Filename,
			Inserted: len(result.Queries),
			Stats:    result.Stats,
		})
	})
}

func validateUpload(h *multipart.FileHeader) error {
	name := strings.ToLower(h.Filename)
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".log", ".txt", ".gz":
		// ok
	default:
		return fmt.Errorf("unsupported file extension: %s (allowed: .log, .txt, .gz)", ext)
	}
	// Clients may send application/octet-stream for any of these.
	ct := strings.ToLower(h.Header.Get("Content-Type"))
	if ct != "" && !(strings.HasPrefix(ct, "text/plain") || ct == "application/octet-stream" || ct == "application/gzip" || ct == "application/x-gzip") {
		return fmt.Errorf("unsupported content-type: %s", ct)
	}
	return nil
}

func safeClose(c io.Closer) {
	_ = c.Close()
}
