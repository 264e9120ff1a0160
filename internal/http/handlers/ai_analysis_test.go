package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gavv/httpexpect/v2"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"pg-insight/internal/config"
	"pg-insight/internal/db"
	"pg-insight/internal/logparse"
	"pg-insight/internal/querystore"
)

type AIAnalysisTestSuite struct {
	suite.Suite
	e      *httpexpect.Expect
	server *httptest.Server
	repo   *querystore.Repository
	dbx    *db.DB
}

func (suite *AIAnalysisTestSuite) SetupSuite() {
	requireTestDatabase(suite.T())

	cfg := config.Config{
		DatabaseURL:     getTestDatabaseURL(),
		MaxBodyBytes:    1024 * 1024,
		SlowThresholdMs: 100,
		OpenAIAPIKey:    "", // empty key selects the local narrator
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))

	var err error
	suite.dbx, err = db.New(cfg, logger)
	require.NoError(suite.T(), err)

	suite.repo = querystore.NewRepository(suite.dbx.Gorm)
	require.NoError(suite.T(), suite.repo.Migrate(context.Background()))

	aiHandler := NewAIAnalysisHandler(suite.repo, logger, cfg)

	mux := http.NewServeMux()
	mux.Handle("GET /v1/ai-analysis", aiHandler.AIAnalysis())

	suite.server = httptest.NewServer(mux)
	suite.e = httpexpect.Default(suite.T(), suite.server.URL)
}

func (suite *AIAnalysisTestSuite) TearDownSuite() {
	if suite.server != nil {
		suite.server.Close()
	}
	if suite.dbx != nil {
		suite.dbx.Close()
	}
}

func (suite *AIAnalysisTestSuite) SetupTest() {
	err := suite.dbx.Gorm.Exec(`DELETE FROM "INSIGHT"."QUERY_LOG"`).Error
	if err != nil {
		suite.T().Logf("Warning: could not clean QUERY_LOG table: %v", err)
	}
}

func (suite *AIAnalysisTestSuite) TestAIAnalysis_MissingDBParam() {
	resp := suite.e.GET("/v1/ai-analysis").
		Expect().
		Status(http.StatusBadRequest).
		JSON().Object()

	resp.Value("status").String().IsEqual("error")
	resp.Value("error").String().Contains("db parameter")
}

func (suite *AIAnalysisTestSuite) TestAIAnalysis_NoSlowQueries() {
	resp := suite.e.GET("/v1/ai-analysis").
		WithQuery("db", "testdb").
		Expect().
		Status(http.StatusOK).
		JSON().Object()

	resp.Value("status").String().IsEqual("success")
	resp.NotContainsKey("data")
}

func (suite *AIAnalysisTestSuite) TestAIAnalysis_LocalSuggestions() {
	now := time.Now().UTC()
	queries := []logparse.Query{
		logparse.NewQuery("", "SELECT * FROM users WHERE email = 'a@b.com'", 500, now, "testdb"),
		logparse.NewQuery("", "SELECT * FROM orders WHERE user_id = 7 AND status = 'open'", 300, now, "testdb"),
	}
	require.NoError(suite.T(), suite.repo.InsertQueries(context.Background(), queries))

	resp := suite.e.GET("/v1/ai-analysis").
		WithQuery("db", "testdb").
		Expect().
		Status(http.StatusOK).
		JSON().Object()

	resp.Value("status").String().IsEqual("success")
	data := resp.Value("data").Array()
	data.Length().IsEqual(2)
	// Slowest first: the 500 ms query on users(email).
	first := data.Value(0).Object()
	first.Value("exec_time_ms").Number().IsEqual(500)
	first.Value("suggestions").String().IsEqual("Add index on EMAIL")
}

func TestAIAnalysisTestSuite(t *testing.T) {
	suite.Run(t, new(AIAnalysisTestSuite))
}

func TestLocalNarrator(t *testing.T) {
	n := localNarrator{}

	tests := []struct {
		name  string
		query string
		want  string
	}{
		{
			name:  "single column",
			query: "SELECT * FROM users WHERE email = 'x'",
			want:  "Add index on EMAIL",
		},
		{
			name:  "multiple columns",
			query: "SELECT * FROM orders WHERE user_id = 1 AND status = 'open'",
			want:  "Add indexes on STATUS, USER_ID",
		},
		{
			name:  "no where clause",
			query: "SELECT * FROM users",
			want:  "Recommendation: manual review required",
		},
		{
			name:  "not a select",
			query: "UPDATE users SET name = 'x' WHERE id = 1",
			want:  "Recommendation: manual review required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := n.Narrate(context.Background(), tt.query)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}
