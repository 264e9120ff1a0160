package logparse

import (
	"crypto/md5"
	"encoding/hex"
	"time"
)

// Dialect identifies which log format a line (or query) came from.
type Dialect int

const (
	DialectUnknown Dialect = iota
	DialectPostgres
	DialectSQLAlchemy
)

func (d Dialect) String() string {
	switch d {
	case DialectPostgres:
		return "postgres"
	case DialectSQLAlchemy:
		return "sqlalchemy"
	default:
		return "unknown"
	}
}

// SQLAlchemy logs never carry a database name, so reconstructed queries
// from that dialect are tagged with this sentinel.
const SQLAlchemyDatabase = "sqlalchemy"

// Query is one reconstructed statement from a log stream.
type Query struct {
	QueryID         string            `json:"query_id"`
	QueryText       string            `json:"query_text"`
	ExecutionTimeMs float64           `json:"execution_time_ms"`
	Timestamp       time.Time         `json:"timestamp"`
	Database        string            `json:"database"`
	TablesAccessed  []string          `json:"tables_accessed"`
	Parameters      map[string]string `json:"parameters,omitempty"`
	Frequency       int               `json:"frequency"`
}

// NewQuery builds a Query with tables extracted from the text and a
// content-hash id when none is supplied.
func NewQuery(id, text string, execMs float64, ts time.Time, database string) Query {
	if id == "" {
		id = HashQueryID(text)
	}
	return Query{
		QueryID:         id,
		QueryText:       text,
		ExecutionTimeMs: execMs,
		Timestamp:       ts,
		Database:        database,
		TablesAccessed:  ExtractTables(text),
		Frequency:       1,
	}
}

// HashQueryID derives a stable 10-character id from the query text.
func HashQueryID(text string) string {
	sum := md5.Sum([]byte(text))
	return hex.EncodeToString(sum[:])[:10]
}

// Stats summarises one parse run. StartTime/EndTime cover every line
// that carried a parseable timestamp, not only lines that produced a
// Query.
type Stats struct {
	TotalLines    int       `json:"total_lines"`
	ParsedQueries int       `json:"parsed_queries"`
	Errors        int       `json:"errors"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
}

func (s *Stats) observeTime(ts time.Time) {
	if s.StartTime.IsZero() || ts.Before(s.StartTime) {
		s.StartTime = ts
	}
	if s.EndTime.IsZero() || ts.After(s.EndTime) {
		s.EndTime = ts
	}
}

// Result is the full output of one parse run.
type Result struct {
	Queries []Query `json:"queries"`
	Stats   Stats   `json:"stats"`
}
