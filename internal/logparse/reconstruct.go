package logparse

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// parserState tracks an in-flight multi-line ORM statement. One state
// exists per run; it is never shared across runs.
type parserState struct {
	collecting    bool
	fragments     []string
	openTimestamp time.Time
}

func (s *parserState) open(first string, ts time.Time) {
	s.collecting = true
	s.fragments = []string{first}
	s.openTimestamp = ts
}

func (s *parserState) clear() {
	s.collecting = false
	s.fragments = nil
	s.openTimestamp = time.Time{}
}

// run is the per-call driver: state machine plus accumulated output.
type run struct {
	log     *slog.Logger
	state   parserState
	queries []Query
	stats   Stats
}

func newRun(log *slog.Logger) *run {
	return &run{log: log}
}

// handleLine classifies one non-empty line. Classification is strict
// priority: native duration record, ORM statement start, ORM
// transaction, ORM terminal annotation, continuation fragment. At most
// one rule applies; an unrecognised line is discarded silently.
func (r *run) handleLine(line string) {
	for _, m := range matchers {
		lc, ok := m.TryMatch(line)
		if !ok {
			continue
		}
		ts, err := parseTimestamp(lc.Timestamp)
		if err != nil {
			r.stats.Errors++
			r.log.Debug("bad timestamp", "value", lc.Timestamp, "err", err)
			return
		}
		r.stats.observeTime(ts)

		switch lc.Dialect {
		case DialectPostgres:
			r.handlePostgres(lc, ts)
		case DialectSQLAlchemy:
			r.handleSQLAlchemy(lc, ts)
		}
		return
	}

	// Neither dialect matched: possibly a continuation fragment of an
	// open ORM statement.
	if r.state.collecting {
		if frag, ok := continuationFragment(line); ok {
			r.state.fragments = append(r.state.fragments, frag)
			return
		}
	}
	r.log.Debug("line did not match any log pattern", "line", truncate(line, 80))
}

// handlePostgres emits a Query immediately when the message carries an
// embedded duration record; other native lines only contribute to the
// time range.
func (r *run) handlePostgres(lc lineCapture, ts time.Time) {
	m := durationRE.FindStringSubmatch(lc.Message)
	if m == nil {
		return
	}
	durationMs, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		r.stats.Errors++
		return
	}
	id := fmt.Sprintf("%s_%d", lc.PID, ts.UnixMilli())
	r.emit(NewQuery(id, m[2], durationMs, ts, lc.Database))
}

func (r *run) handleSQLAlchemy(lc lineCapture, ts time.Time) {
	msg := lc.Message
	switch {
	case isStatementStart(msg):
		// A new statement replaces any open collection without
		// flushing it; only transaction lines flush.
		r.state.open(msg, ts)

	case isTransaction(msg):
		if r.state.collecting && len(r.state.fragments) > 0 {
			r.finalize("")
		}
		txn := NewQuery(sqlalchemyID(ts), msg, nominalExecTimeMs, ts, SQLAlchemyDatabase)
		txn.TablesAccessed = nil
		r.emit(txn)

	case strings.HasPrefix(msg, "[") && r.state.collecting:
		r.finalize(msg)

	default:
		if r.state.collecting {
			if frag, ok := continuationFragment(msg); ok {
				r.state.fragments = append(r.state.fragments, frag)
			}
		}
	}
}

// finalize joins the open fragments into one Query. annotation is the
// terminal "[...]" message, or empty when flushing for another reason
// (transaction line, end of stream); it supplies the duration
// heuristics and an optional bound-parameter payload.
func (r *run) finalize(annotation string) {
	defer r.state.clear()
	if len(r.state.fragments) == 0 {
		return
	}
	text := strings.Join(r.state.fragments, " ")
	durationMs := nominalExecTimeMs
	var params map[string]string
	if annotation != "" {
		durationMs = annotationDuration(annotation)
		params = annotationParameters(annotation)
	}
	q := NewQuery(sqlalchemyID(r.state.openTimestamp), text, durationMs, r.state.openTimestamp, SQLAlchemyDatabase)
	q.Parameters = params
	r.emit(q)
}

// flush finalizes a statement left open at end of stream. Losing the
// trailing statement would be worse than the missing terminal line.
func (r *run) flush() {
	if r.state.collecting && len(r.state.fragments) > 0 {
		r.finalize("")
	}
}

func (r *run) emit(q Query) {
	r.queries = append(r.queries, q)
	r.stats.ParsedQueries++
}

func isStatementStart(msg string) bool {
	for _, kw := range []string{"SELECT", "INSERT", "UPDATE", "DELETE"} {
		if strings.HasPrefix(msg, kw) {
			return true
		}
	}
	return false
}

// isTransaction matches BEGIN by prefix ("BEGIN (implicit)" included)
// and COMMIT/ROLLBACK exactly.
func isTransaction(msg string) bool {
	return strings.HasPrefix(msg, "BEGIN") || msg == "COMMIT" || msg == "ROLLBACK"
}

// continuationFragment recognises a fragment of an open statement:
// either an explicit "did not match any log pattern: ..." marker (the
// fragment is everything after the first colon following the marker),
// or a line whose trimmed, uppercased form starts with a clause
// keyword.
func continuationFragment(line string) (string, bool) {
	if pos := strings.Index(line, fragmentMarker); pos != -1 {
		// The marker itself ends in the colon the fragment follows.
		frag := strings.TrimSpace(line[pos+len(fragmentMarker):])
		if frag != "" {
			return frag, true
		}
		return "", false
	}

	trimmed := strings.TrimSpace(line)
	upper := strings.ToUpper(trimmed)
	for _, clause := range continuationClauses {
		if strings.HasPrefix(upper, clause) {
			return trimmed, true
		}
	}
	return "", false
}

// annotationDuration derives execution time from a terminal "[...]"
// message: an explicit generation time wins, then the damped cache-age
// proxy, then the nominal default. A malformed annotation never fails;
// it falls back to the default.
func annotationDuration(msg string) float64 {
	if m := generatedInRE.FindStringSubmatch(msg); m != nil {
		if s, err := strconv.ParseFloat(m[1], 64); err == nil {
			return s * 1000
		}
	}
	if m := cachedSinceRE.FindStringSubmatch(msg); m != nil {
		if age, err := strconv.ParseFloat(m[1], 64); err == nil {
			ms := age * 100
			if ms > cachedCapMs {
				ms = cachedCapMs
			}
			return ms
		}
	}
	return nominalExecTimeMs
}

// annotationParameters parses a {'name': value, ...} payload trailing
// the bracketed annotation into a string map. Anything unparseable is
// ignored; parameters are best-effort.
func annotationParameters(msg string) map[string]string {
	open := strings.Index(msg, "{")
	if open == -1 {
		return nil
	}
	closeIdx := strings.LastIndex(msg, "}")
	if closeIdx <= open {
		return nil
	}
	body := msg[open+1 : closeIdx]
	params := make(map[string]string)
	for _, pair := range splitTopLevel(body, ',') {
		k, v, found := strings.Cut(pair, ":")
		if !found {
			continue
		}
		key := strings.Trim(strings.TrimSpace(k), "'\"")
		val := strings.Trim(strings.TrimSpace(v), "'\"")
		if key != "" {
			params[key] = val
		}
	}
	if len(params) == 0 {
		return nil
	}
	return params
}

// splitTopLevel splits on sep outside single or double quotes.
func splitTopLevel(s string, sep byte) []string {
	var out []string
	var quote byte
	start := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == sep:
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}

func sqlalchemyID(ts time.Time) string {
	return fmt.Sprintf("sqlalchemy_%d", ts.UnixMilli())
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
