package logparse

import (
	"regexp"
	"strings"
	"time"
)

// lineCapture holds the fields a dialect matcher pulls out of one line.
// PID, Database and Session are only set by the PostgreSQL matcher;
// Level only by the SQLAlchemy matcher.
type lineCapture struct {
	Dialect   Dialect
	Timestamp string
	PID       string
	Database  string
	Session   string
	Level     string
	Message   string
}

// lineMatcher tests one line against one dialect's line pattern.
type lineMatcher interface {
	TryMatch(line string) (lineCapture, bool)
}

// Expected PostgreSQL stderr log line:
//
//	2024-05-14 10:23:45.123 UTC [12345] app@sales:sales [sess1] LOG:  duration: 12.50 ms  statement: SELECT ...
//
// The user@db: prefix is optional; the level word is LOG, ERROR or
// WARNING followed by two spaces.
var postgresLineRE = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}\.\d+) \w+ \[(\d+)\] (?:\w+@\w+:)?(\w+) \[(\w+)\] (?:LOG|ERROR|WARNING):  (.*)$`)

// Embedded single-line duration record within a PostgreSQL message.
var durationRE = regexp.MustCompile(`duration: (\d+\.\d+) ms  (?:statement|execute <unnamed>): (.+)`)

// Expected SQLAlchemy engine log line (comma before the milliseconds):
//
//	2024-05-14 10:23:45,123 - INFO - SELECT a.ticker AS t
var sqlalchemyLineRE = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2},\d+) - (\w+) - (.+)$`)

type postgresMatcher struct{}

func (postgresMatcher) TryMatch(line string) (lineCapture, bool) {
	m := postgresLineRE.FindStringSubmatch(line)
	if m == nil {
		return lineCapture{}, false
	}
	return lineCapture{
		Dialect:   DialectPostgres,
		Timestamp: m[1],
		PID:       m[2],
		Database:  m[3],
		Session:   m[4],
		Message:   m[5],
	}, true
}

type sqlalchemyMatcher struct{}

func (sqlalchemyMatcher) TryMatch(line string) (lineCapture, bool) {
	m := sqlalchemyLineRE.FindStringSubmatch(line)
	if m == nil {
		return lineCapture{}, false
	}
	return lineCapture{
		Dialect:   DialectSQLAlchemy,
		Timestamp: m[1],
		Level:     m[2],
		Message:   m[3],
	}, true
}

// matchers is the fixed dispatch order: the native dialect wins over
// the ORM-style dialect when both could apply.
var matchers = []lineMatcher{postgresMatcher{}, sqlalchemyMatcher{}}

// parseTimestamp handles both dialects' timestamp shapes. SQLAlchemy
// separates the fractional seconds with a comma; normalise before
// parsing. Go accepts a fractional-second field even when the layout
// omits it.
func parseTimestamp(s string) (time.Time, error) {
	return time.Parse("2006-01-02 15:04:05", strings.Replace(s, ",", ".", 1))
}
