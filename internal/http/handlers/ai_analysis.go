package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"

	"pg-insight/internal/config"
	"pg-insight/internal/logparse"
	"pg-insight/internal/querystore"
)

// Narrator produces a human-readable optimization suggestion for one
// SQL statement.
type Narrator interface {
	Narrate(ctx context.Context, queryText string) (string, error)
}

// AIAnalysisHandler serves narrative suggestions for stored slow
// queries.
type AIAnalysisHandler struct {
	repo        *querystore.Repository
	log         *slog.Logger
	narrator    Narrator
	thresholdMs float64
}

// NewAIAnalysisHandler wires the OpenAI narrator when an API key is
// configured and the local heuristic otherwise.
func NewAIAnalysisHandler(repo *querystore.Repository, log *slog.Logger, cfg config.Config) *AIAnalysisHandler {
	if log == nil {
		log = slog.Default()
	}
	var narrator Narrator = localNarrator{}
	if cfg.OpenAIAPIKey != "" {
		narrator = &openaiNarrator{client: openai.NewClient(cfg.OpenAIAPIKey)}
	}
	return &AIAnalysisHandler{
		repo:        repo,
		log:         log,
		narrator:    narrator,
		thresholdMs: cfg.SlowThresholdMs,
	}
}

// AnalysisResult represents the response structure
type AnalysisResult struct {
	Status string          `json:"status"`
	Data   []QueryAnalysis `json:"data,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// QueryAnalysis represents analysis of a single query
type QueryAnalysis struct {
	QueryID     string  `json:"query_id"`
	QueryText   string  `json:"query_text"`
	ExecTimeMs  float64 `json:"exec_time_ms"`
	Suggestions string  `json:"suggestions"`
}

// AIAnalysis godoc
// @Summary AI analysis of slow queries
// @Tags ai
// @Param db query string true "Database name"
// @Success 200 {object} AnalysisResult
// @Failure 400 {object} AnalysisResult
// @Failure 500 {object} AnalysisResult
// @Router /v1/ai-analysis [get]
func (h *AIAnalysisHandler) AIAnalysis() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		db := r.URL.Query().Get("db")
		if db == "" {
			h.writeErrorResponse(w, http.StatusBadRequest, "db parameter is required")
			return
		}

		rows, err := h.repo.SlowQueries(r.Context(), db, h.thresholdMs, 50)
		if err != nil {
			h.log.Error("failed to query slow queries", "error", err, "db", db)
			h.writeErrorResponse(w, http.StatusInternalServerError, "Failed to query database")
			return
		}

		if len(rows) == 0 {
			h.writeSuccessResponse(w, []QueryAnalysis{})
			return
		}

		analyses := make([]QueryAnalysis, len(rows))
		for i, row := range rows {
			suggestions, err := h.narrator.Narrate(r.Context(), row.QueryText)
			if err != nil {
				h.log.Error("narration failed", "error", err, "query_id", row.QueryID)
				suggestions = "Recommendation: manual review required"
			}
			analyses[i] = QueryAnalysis{
				QueryID:     row.QueryID,
				QueryText:   row.QueryText,
				ExecTimeMs:  row.ExecTimeMs,
				Suggestions: suggestions,
			}
		}

		h.writeSuccessResponse(w, analyses)
	}
}

// openaiNarrator asks a chat model for optimization suggestions.
type openaiNarrator struct {
	client *openai.Client
}

func (n *openaiNarrator) Narrate(ctx context.Context, queryText string) (string, error) {
	prompt := fmt.Sprintf(`You are a database optimization assistant.
Your task is to analyze unusual SQL queries and provide optimization suggestions based on the following rules:
When an SQL query is detected, analyze the WHERE clause to identify the fields used.
If the WHERE clause contains a single field, suggest: "Add index on [field_name]".
If the WHERE clause has multiple fields, suggest indexes for all relevant fields.
Continue analysis the query to identify potential performance improvements.
If the query cannot be analyzed to provide suggestions, return: "Recommendation: manual review required".
Apply these rules to any SQL statement I provide.

Query to analyze:
%s`, queryText)

	resp, err := n.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: openai.GPT4Dot1Nano,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		MaxTokens:   16 * 1024,
		Temperature: 0.1,
	})
	if err != nil {
		return "", fmt.Errorf("OpenAI API error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from OpenAI")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// localNarrator is the offline fallback: it suggests indexing the
// WHERE-clause columns when it can find any.
type localNarrator struct{}

func (localNarrator) Narrate(_ context.Context, queryText string) (string, error) {
	cols := logparse.WhereColumns(queryText)
	switch len(cols) {
	case 0:
		return "Recommendation: manual review required", nil
	case 1:
		return fmt.Sprintf("Add index on %s", cols[0]), nil
	default:
		return fmt.Sprintf("Add indexes on %s", strings.Join(cols, ", ")), nil
	}
}

func (h *AIAnalysisHandler) writeSuccessResponse(w http.ResponseWriter, data []QueryAnalysis) {
	h.writeJSONResponse(w, http.StatusOK, AnalysisResult{Status: "success", Data: data})
}

func (h *AIAnalysisHandler) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	h.writeJSONResponse(w, statusCode, AnalysisResult{Status: "error", Error: message})
}

func (h *AIAnalysisHandler) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	writeJSON(w, statusCode, data)
}
