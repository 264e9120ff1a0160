package logparse

import (
	"bytes"
	"compress/gzip"
	"context"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func parseString(t *testing.T, content string, opts Options) Result {
	t.Helper()
	p := NewParser(nil)
	res, err := p.Parse(context.Background(), strings.NewReader(content), opts)
	require.NoError(t, err)
	return res
}

func TestParse_NativeDurationLines(t *testing.T) {
	content := `2023-01-15 10:30:00.123 UTC [12345] app@testdb:testdb [idle] LOG:  duration: 150.500 ms  statement: SELECT * FROM users WHERE id = 42
2023-01-15 10:30:01.456 UTC [12345] app@testdb:testdb [idle] LOG:  duration: 42.100 ms  execute <unnamed>: SELECT * FROM orders WHERE user_id = 42
2023-01-15 10:30:02.789 UTC [12346] app@testdb:testdb [idle] LOG:  connection received: host=127.0.0.1
`
	res := parseString(t, content, Options{})

	require.Len(t, res.Queries, 2)
	require.Equal(t, 3, res.Stats.TotalLines)
	require.Equal(t, 2, res.Stats.ParsedQueries)
	require.Equal(t, 0, res.Stats.Errors)

	q := res.Queries[0]
	require.Equal(t, 150.5, q.ExecutionTimeMs)
	require.Equal(t, "testdb", q.Database)
	require.Equal(t, []string{"USERS"}, q.TablesAccessed)
	require.True(t, strings.HasPrefix(q.QueryID, "12345_"))

	require.Equal(t, 42.1, res.Queries[1].ExecutionTimeMs)
	require.Equal(t, []string{"ORDERS"}, res.Queries[1].TablesAccessed)
}

func TestParse_TimeRange(t *testing.T) {
	content := `2023-01-15 10:30:00.123 UTC [1] app@testdb:testdb [idle] LOG:  duration: 1.000 ms  statement: SELECT 1
2023-01-15 10:35:00.000 UTC [1] app@testdb:testdb [idle] LOG:  duration: 1.000 ms  statement: SELECT 2
`
	res := parseString(t, content, Options{})
	require.Equal(t, time.Date(2023, 1, 15, 10, 30, 0, 123000000, time.UTC), res.Stats.StartTime)
	require.Equal(t, time.Date(2023, 1, 15, 10, 35, 0, 0, time.UTC), res.Stats.EndTime)
}

func TestParse_MultiLineStatement_CachedTerminal(t *testing.T) {
	content := `2023-01-15 10:30:00,123 - INFO - SELECT stock_company_info.ticker AS ticker
2023-01-15 10:30:00,124 - INFO - Line 635 did not match any log pattern: FROM stock_company_info
2023-01-15 10:30:00,125 - INFO - Line 636 did not match any log pattern: WHERE ticker = 'MSFT' LIMIT 1
2023-01-15 10:30:00,126 - INFO - [cached since 22.05s ago] {'ticker_1': 'MSFT'}
`
	res := parseString(t, content, Options{})

	require.Len(t, res.Queries, 1)
	q := res.Queries[0]
	require.Equal(t, "SELECT stock_company_info.ticker AS ticker FROM stock_company_info WHERE ticker = 'MSFT' LIMIT 1", q.QueryText)
	// Cache-age proxy is capped at 10 ms.
	require.Equal(t, 10.0, q.ExecutionTimeMs)
	require.Equal(t, SQLAlchemyDatabase, q.Database)
	require.Equal(t, []string{"STOCK_COMPANY_INFO"}, q.TablesAccessed)
	require.Equal(t, map[string]string{"ticker_1": "MSFT"}, q.Parameters)
}

func TestParse_MultiLineStatement_GeneratedTerminal(t *testing.T) {
	content := `2023-01-15 10:30:00,123 - INFO - SELECT users.id FROM users
2023-01-15 10:30:00,124 - INFO - [generated in 0.25s] {}
`
	res := parseString(t, content, Options{})

	require.Len(t, res.Queries, 1)
	require.Equal(t, 250.0, res.Queries[0].ExecutionTimeMs)
	require.Nil(t, res.Queries[0].Parameters)
}

func TestParse_CachedBelowCap(t *testing.T) {
	content := `2023-01-15 10:30:00,123 - INFO - SELECT users.id FROM users
2023-01-15 10:30:00,124 - INFO - [cached since 0.042s ago] {}
`
	res := parseString(t, content, Options{})

	require.Len(t, res.Queries, 1)
	require.InDelta(t, 4.2, res.Queries[0].ExecutionTimeMs, 1e-9)
}

func TestParse_TransactionFlushesOpenStatement(t *testing.T) {
	content := `2023-01-15 10:30:00,123 - INFO - SELECT users.id FROM users
2023-01-15 10:30:00,124 - INFO - COMMIT
`
	res := parseString(t, content, Options{})

	require.Len(t, res.Queries, 2)
	// Flushed statement first, then the transaction itself.
	require.Equal(t, "SELECT users.id FROM users", res.Queries[0].QueryText)
	require.Equal(t, 0.1, res.Queries[0].ExecutionTimeMs)

	txn := res.Queries[1]
	require.Equal(t, "COMMIT", txn.QueryText)
	require.Equal(t, 0.1, txn.ExecutionTimeMs)
	require.Nil(t, txn.TablesAccessed)
}

func TestParse_BeginImplicit(t *testing.T) {
	content := `2023-01-15 10:30:00,123 - INFO - BEGIN (implicit)
`
	res := parseString(t, content, Options{})

	require.Len(t, res.Queries, 1)
	require.Equal(t, "BEGIN (implicit)", res.Queries[0].QueryText)
	require.Equal(t, 0.1, res.Queries[0].ExecutionTimeMs)
}

func TestParse_NewStatementReplacesOpenBuffer(t *testing.T) {
	content := `2023-01-15 10:30:00,123 - INFO - SELECT users.id FROM users
2023-01-15 10:30:00,124 - INFO - SELECT orders.id FROM orders
2023-01-15 10:30:00,125 - INFO - [generated in 0.10s] {}
`
	res := parseString(t, content, Options{})

	// The first SELECT had no terminal and is replaced, not emitted.
	require.Len(t, res.Queries, 1)
	require.Equal(t, "SELECT orders.id FROM orders", res.Queries[0].QueryText)
}

func TestParse_EndOfStreamFlush(t *testing.T) {
	content := `2023-01-15 10:30:00,123 - INFO - SELECT users.id FROM users
2023-01-15 10:30:00,124 - INFO - Line 10 did not match any log pattern: WHERE users.active = true
`
	res := parseString(t, content, Options{})

	require.Len(t, res.Queries, 1)
	q := res.Queries[0]
	require.Equal(t, "SELECT users.id FROM users WHERE users.active = true", q.QueryText)
	require.Equal(t, 0.1, q.ExecutionTimeMs)
}

func TestParse_ContinuationIgnoredWhenNothingOpen(t *testing.T) {
	content := `2023-01-15 10:30:00,123 - INFO - Line 10 did not match any log pattern: WHERE users.active = true
`
	res := parseString(t, content, Options{})
	require.Empty(t, res.Queries)
}

func TestParse_BadTimestampCountsError(t *testing.T) {
	content := `2023-13-45 10:30:00.123 UTC [1] app@testdb:testdb [idle] LOG:  duration: 1.000 ms  statement: SELECT 1
`
	res := parseString(t, content, Options{})
	require.Empty(t, res.Queries)
	require.Equal(t, 1, res.Stats.Errors)
}

func TestParse_BlankLinesNotCounted(t *testing.T) {
	content := "\n\n2023-01-15 10:30:00.123 UTC [1] app@testdb:testdb [idle] LOG:  duration: 1.000 ms  statement: SELECT 1\n\n"
	res := parseString(t, content, Options{})
	require.Equal(t, 1, res.Stats.TotalLines)
}

func TestParse_GzipBySuffix(t *testing.T) {
	plain := `2023-01-15 10:30:00.123 UTC [1] app@testdb:testdb [idle] LOG:  duration: 1.000 ms  statement: SELECT 1
`
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write([]byte(plain))
	require.NoError(t, err)
	require.NoError(t, gz.Close())

	p := NewParser(nil)
	res, err := p.Parse(context.Background(), &buf, Options{SourceName: "postgresql.log.gz"})
	require.NoError(t, err)
	require.Len(t, res.Queries, 1)
}

func TestParse_GzipSuffixWithPlainContent(t *testing.T) {
	p := NewParser(nil)
	_, err := p.Parse(context.Background(), strings.NewReader("not gzip"), Options{SourceName: "broken.gz"})
	require.Error(t, err)
}

func TestParse_SamplingKeepsOrder(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 100; i++ {
		b.WriteString("2023-01-15 10:30:")
		b.WriteString(twoDigits(i % 60))
		b.WriteString(".000 UTC [1] app@testdb:testdb [idle] LOG:  duration: 1.000 ms  statement: SELECT 1\n")
	}
	res := parseString(t, b.String(), Options{
		SampleSize: 10,
		Rand:       rand.New(rand.NewSource(1)),
	})
	require.Equal(t, 10, res.Stats.TotalLines)
	require.Len(t, res.Queries, 10)
}

func TestParse_InvalidUTF8Replaced(t *testing.T) {
	content := "2023-01-15 10:30:00.123 UTC [1] app@testdb:testdb [idle] LOG:  duration: 5.000 ms  statement: SELECT * FROM users WHERE name = '\xff\xfe'\n"
	res := parseString(t, content, Options{})

	require.Len(t, res.Queries, 1)
	require.Equal(t, 0, res.Stats.Errors)
	// Invalid byte sequences are replaced, never fatal.
	require.Contains(t, res.Queries[0].QueryText, "�")
}

func TestParse_SamplingDeterministicWithSeed(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 50; i++ {
		b.WriteString("2023-01-15 10:30:")
		b.WriteString(twoDigits(i % 60))
		b.WriteString(".000 UTC [1] app@testdb:testdb [idle] LOG:  duration: 1.000 ms  statement: SELECT ")
		b.WriteString(twoDigits(i))
		b.WriteString("\n")
	}
	content := b.String()

	first := parseString(t, content, Options{SampleSize: 5, Rand: rand.New(rand.NewSource(7))})
	second := parseString(t, content, Options{SampleSize: 5, Rand: rand.New(rand.NewSource(7))})

	require.Len(t, first.Queries, 5)
	require.Equal(t, queryTexts(first.Queries), queryTexts(second.Queries))
}

func queryTexts(queries []Query) []string {
	out := make([]string, 0, len(queries))
	for _, q := range queries {
		out = append(out, q.QueryText)
	}
	return out
}

func TestParse_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := NewParser(nil)
	_, err := p.Parse(ctx, strings.NewReader("2023-01-15 10:30:00,123 - INFO - COMMIT\n"), Options{})
	require.ErrorIs(t, err, context.Canceled)
}

func twoDigits(n int) string {
	return string([]byte{byte('0' + n/10), byte('0' + n%10)})
}
