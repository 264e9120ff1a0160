package http

import (
	"expvar"
	nhttp "net/http"

	"log/slog"

	httpSwagger "github.com/swaggo/http-swagger"

	"pg-insight/internal/auth"
	"pg-insight/internal/config"
	"pg-insight/internal/http/handlers"
	"pg-insight/internal/logparse"
	"pg-insight/internal/querystore"
	"pg-insight/internal/recommend"
)

func NewRouter(cfg config.Config, log *slog.Logger, authSvc *auth.Service, repo *querystore.Repository) nhttp.Handler {
	mux := nhttp.NewServeMux()

	// Liveness and readiness
	mux.HandleFunc("GET /healthz", handlers.Healthz)
	mux.HandleFunc("GET /readyz", handlers.Readyz)

	// expvar
	mux.Handle("GET /debug/vars", expvar.Handler())

	// Swagger UI
	mux.Handle("GET /swagger/", httpSwagger.WrapHandler)

	// Auth endpoints
	if authSvc != nil {
		ah := handlers.NewAuth(authSvc, log, cfg.MaxBodyBytes)
		mux.Handle("POST /v1/auth/register", ah.Register())
		mux.Handle("POST /v1/auth/login", ah.Login())
		mux.Handle("POST /v1/auth/refresh", ah.Refresh())
		mux.Handle("GET /v1/auth/me", handlers.RequireAuth(authSvc)(ah.Me()))
	}

	// Log ingestion and query analytics
	if repo != nil {
		parser := logparse.NewParser(log)
		uh := handlers.NewLogUpload(parser, repo, log, cfg.MaxBodyBytes)
		mux.Handle("POST /v1/logs/upload", uh.Upload())

		qh := handlers.NewQueries(repo, log, cfg.SlowThresholdMs)
		mux.Handle("GET /v1/queries/databases", qh.ListDatabases())
		mux.Handle("GET /v1/queries/slow", qh.SlowQueries())
		mux.Handle("GET /v1/queries/patterns", qh.Patterns())
		mux.Handle("GET /v1/queries/percentiles", qh.Percentiles())

		rh := handlers.NewRecommendations(repo, recommend.NewRecommender(), log, cfg.MaxBodyBytes, cfg.SlowThresholdMs)
		mux.Handle("POST /v1/recommendations/analyze", rh.Analyze())
		mux.Handle("GET /v1/recommendations", rh.List())
		mux.Handle("PATCH /v1/recommendations/{id}/status", rh.UpdateStatus())

		// Exports require auth, matching the report endpoints they
		// replaced.
		exportSQL := rh.ExportSQL()
		exportMD := rh.ExportMarkdown()
		exportPDF := rh.ExportPDF()
		if authSvc != nil {
			requireAuth := handlers.RequireAuth(authSvc)
			exportSQL = requireAuth(exportSQL)
			exportMD = requireAuth(exportMD)
			exportPDF = requireAuth(exportPDF)
		}
		mux.Handle("GET /v1/recommendations/export.sql", exportSQL)
		mux.Handle("GET /v1/recommendations/export.md", exportMD)
		mux.Handle("GET /v1/recommendations/export.pdf", exportPDF)

		aih := handlers.NewAIAnalysisHandler(repo, log, cfg)
		mux.Handle("GET /v1/ai-analysis", aih.AIAnalysis())
	}

	// Compose middleware (order matters; first is outermost)
	return chain(mux,
		withRequestID,
		func(h nhttp.Handler) nhttp.Handler { return withRecover(log, h) },
		func(h nhttp.Handler) nhttp.Handler { return withCORS(cfg.AllowedOrigins, h) },
		func(h nhttp.Handler) nhttp.Handler { return withRequestLogging(log, cfg.MaxBodyBytes)(h) },
	)
}
