package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gavv/httpexpect/v2"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"pg-insight/internal/config"
	"pg-insight/internal/db"
	"pg-insight/internal/logparse"
	"pg-insight/internal/querystore"
)

type QueryLogsTestSuite struct {
	suite.Suite
	e      *httpexpect.Expect
	server *httptest.Server
	repo   *querystore.Repository
	dbx    *db.DB
}

func (suite *QueryLogsTestSuite) SetupSuite() {
	requireTestDatabase(suite.T())

	cfg := config.Config{
		DatabaseURL:     getTestDatabaseURL(),
		MaxBodyBytes:    1024 * 1024,
		SlowThresholdMs: 100,
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))

	var err error
	suite.dbx, err = db.New(cfg, logger)
	require.NoError(suite.T(), err)

	suite.repo = querystore.NewRepository(suite.dbx.Gorm)
	require.NoError(suite.T(), suite.repo.Migrate(context.Background()))

	parser := logparse.NewParser(logger)
	uploadHandler := NewLogUpload(parser, suite.repo, logger, cfg.MaxBodyBytes)
	queryHandler := NewQueries(suite.repo, logger, cfg.SlowThresholdMs)

	mux := http.NewServeMux()
	mux.Handle("POST /v1/logs/upload", uploadHandler.Upload())
	mux.Handle("GET /v1/queries/databases", queryHandler.ListDatabases())
	mux.Handle("GET /v1/queries/slow", queryHandler.SlowQueries())
	mux.Handle("GET /v1/queries/patterns", queryHandler.Patterns())
	mux.Handle("GET /v1/queries/percentiles", queryHandler.Percentiles())

	suite.server = httptest.NewServer(mux)
	suite.e = httpexpect.Default(suite.T(), suite.server.URL)
}

func (suite *QueryLogsTestSuite) TearDownSuite() {
	if suite.server != nil {
		suite.server.Close()
	}
	if suite.dbx != nil {
		suite.dbx.Close()
	}
}

func (suite *QueryLogsTestSuite) SetupTest() {
	err := suite.dbx.Gorm.Exec(`DELETE FROM "INSIGHT"."QUERY_LOG"`).Error
	if err != nil {
		suite.T().Logf("Warning: could not clean QUERY_LOG table: %v", err)
	}
}

const nativeLogContent = `2023-01-15 10:30:00.123 UTC [12345] user@testdb:testdb [idle] LOG:  duration: 150.500 ms  statement: SELECT * FROM users WHERE id = 42
2023-01-15 10:30:01.456 UTC [12345] user@testdb:testdb [idle] LOG:  duration: 42.100 ms  statement: SELECT * FROM orders WHERE user_id = 42
2023-01-15 10:30:02.789 UTC [12346] user@testdb:testdb [idle] LOG:  connection received: host=127.0.0.1
`

// Upload Tests
func (suite *QueryLogsTestSuite) TestUpload_Success() {
	resp := suite.e.POST("/v1/logs/upload").
		WithMultipart().
		WithFileBytes("file", "postgresql.log", []byte(nativeLogContent)).
		Expect().
		Status(http.StatusOK).
		JSON().Object()

	resp.Value("inserted").Number().IsEqual(2)
	resp.Value("stats").Object().Value("total_lines").Number().IsEqual(3)
	resp.Value("stats").Object().Value("parsed_queries").Number().IsEqual(2)
}

func (suite *QueryLogsTestSuite) TestUpload_MultiLineORMStatement() {
	logContent := `2023-01-15 10:30:00,123 - INFO - SELECT stock_company_info.ticker AS ticker
2023-01-15 10:30:00,124 - INFO - Line 635 did not match any log pattern: FROM stock_company_info
2023-01-15 10:30:00,125 - INFO - Line 636 did not match any log pattern: WHERE ticker = 'MSFT' LIMIT 1
2023-01-15 10:30:00,126 - INFO - [cached since 22.05s ago] {'ticker_1': 'MSFT'}
`
	resp := suite.e.POST("/v1/logs/upload").
		WithMultipart().
		WithFileBytes("file", "sqlalchemy.log", []byte(logContent)).
		Expect().
		Status(http.StatusOK).
		JSON().Object()

	resp.Value("inserted").Number().IsEqual(1)
	resp.Value("stats").Object().Value("total_lines").Number().IsEqual(4)
}

func (suite *QueryLogsTestSuite) TestUpload_MissingFile() {
	suite.e.POST("/v1/logs/upload").
		WithMultipart().
		Expect().
		Status(http.StatusBadRequest).
		JSON().Object().
		Path("$.error.code").String().IsEqual("bad_request")
}

func (suite *QueryLogsTestSuite) TestUpload_InvalidFileType() {
	suite.e.POST("/v1/logs/upload").
		WithMultipart().
		WithFileBytes("file", "data.csv", []byte("a,b,c")).
		Expect().
		Status(http.StatusBadRequest)
}

func (suite *QueryLogsTestSuite) TestUpload_EmptyFile() {
	resp := suite.e.POST("/v1/logs/upload").
		WithMultipart().
		WithFileBytes("file", "empty.log", []byte("")).
		Expect().
		Status(http.StatusOK).
		JSON().Object()

	resp.Value("inserted").Number().IsEqual(0)
	resp.Value("message").String().Contains("nothing inserted")
}

func (suite *QueryLogsTestSuite) TestUpload_InvalidSampleSize() {
	suite.e.POST("/v1/logs/upload").
		WithMultipart().
		WithFileBytes("file", "postgresql.log", []byte(nativeLogContent)).
		WithFormField("sample_size", "not-a-number").
		Expect().
		Status(http.StatusBadRequest)
}

// ListDatabases Tests
func (suite *QueryLogsTestSuite) TestListDatabases_Success() {
	suite.uploadNativeLog()

	resp := suite.e.GET("/v1/queries/databases").
		Expect().
		Status(http.StatusOK).
		JSON().Object()

	resp.Value("databases").Array().ContainsAll("testdb")
}

func (suite *QueryLogsTestSuite) TestListDatabases_EmptyResult() {
	resp := suite.e.GET("/v1/queries/databases").
		Expect().
		Status(http.StatusOK).
		JSON().Object()

	resp.Value("databases").Array().Length().IsEqual(0)
}

// SlowQueries Tests
func (suite *QueryLogsTestSuite) TestSlowQueries_DefaultThreshold() {
	suite.uploadNativeLog()

	resp := suite.e.GET("/v1/queries/slow").
		Expect().
		Status(http.StatusOK).
		JSON().Object()

	resp.Value("threshold_ms").Number().IsEqual(100)
	items := resp.Value("items").Array()
	items.Length().IsEqual(1)
	items.Value(0).Object().Value("exec_time_ms").Number().IsEqual(150.5)
}

func (suite *QueryLogsTestSuite) TestSlowQueries_CustomThreshold() {
	suite.uploadNativeLog()

	resp := suite.e.GET("/v1/queries/slow").
		WithQuery("threshold_ms", "10").
		Expect().
		Status(http.StatusOK).
		JSON().Object()

	resp.Value("items").Array().Length().IsEqual(2)
}

func (suite *QueryLogsTestSuite) TestSlowQueries_InvalidThreshold() {
	suite.e.GET("/v1/queries/slow").
		WithQuery("threshold_ms", "abc").
		Expect().
		Status(http.StatusBadRequest).
		JSON().Object().
		Path("$.error.code").String().IsEqual("bad_request")
}

// Patterns Tests
func (suite *QueryLogsTestSuite) TestPatterns_Success() {
	suite.uploadNativeLog()

	resp := suite.e.GET("/v1/queries/patterns").
		Expect().
		Status(http.StatusOK).
		JSON().Object()

	patterns := resp.Value("patterns").Array()
	patterns.Length().IsEqual(2)
	patterns.Value(0).Object().Value("pattern").String().Contains("N")
}

func (suite *QueryLogsTestSuite) TestPatterns_InvalidTop() {
	suite.e.GET("/v1/queries/patterns").
		WithQuery("top", "0").
		Expect().
		Status(http.StatusBadRequest)
}

// Percentiles Tests
func (suite *QueryLogsTestSuite) TestPercentiles_Success() {
	suite.uploadNativeLog()

	resp := suite.e.GET("/v1/queries/percentiles").
		WithQuery("pcts", "0.5,0.95").
		Expect().
		Status(http.StatusOK).
		JSON().Object()

	set := resp.Value("exec_time_ms").Object()
	set.ContainsKey("p50")
	set.ContainsKey("p95")
}

func (suite *QueryLogsTestSuite) TestPercentiles_InvalidFraction() {
	suite.e.GET("/v1/queries/percentiles").
		WithQuery("pcts", "1.5").
		Expect().
		Status(http.StatusBadRequest)
}

func (suite *QueryLogsTestSuite) uploadNativeLog() {
	suite.e.POST("/v1/logs/upload").
		WithMultipart().
		WithFileBytes("file", "postgresql.log", []byte(nativeLogContent)).
		Expect().
		Status(http.StatusOK)
}

func TestQueryLogsTestSuite(t *testing.T) {
	suite.Run(t, new(QueryLogsTestSuite))
}
