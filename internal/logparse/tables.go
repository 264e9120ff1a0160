package logparse

import (
	"sort"
	"strings"
)

// Clause keywords that terminate a FROM clause or a WHERE clause when
// scanning for table and column references.
var fromStopClauses = []string{"WHERE", "GROUP BY", "HAVING", "ORDER BY", "LIMIT", "OFFSET"}
var whereStopClauses = []string{"GROUP BY", "HAVING", "ORDER BY", "LIMIT", "OFFSET"}

const identifierTrimSet = "\"'`[]"

// ExtractTables heuristically returns the uppercased table names a
// statement references. It scans FROM and JOIN clauses plus the
// INSERT INTO / UPDATE / DELETE FROM targets. Subqueries, CTEs and
// quoted identifiers containing clause keywords can mislead it; that
// approximation is accepted.
func ExtractTables(queryText string) []string {
	upper := strings.ToUpper(queryText)

	if strings.HasPrefix(upper, "BEGIN") || strings.HasPrefix(upper, "COMMIT") || strings.HasPrefix(upper, "ROLLBACK") {
		return nil
	}

	seen := make(map[string]struct{})
	add := func(token string) {
		t := strings.Trim(token, identifierTrimSet)
		if t != "" {
			seen[t] = struct{}{}
		}
	}

	// FROM clause: runs until the next major clause, split on commas,
	// first whitespace token of each reference is the table.
	if fromPos := strings.Index(upper, "FROM"); fromPos != -1 {
		clause := upper[fromPos+4:]
		for _, stop := range fromStopClauses {
			if pos := strings.Index(clause, stop); pos != -1 {
				clause = clause[:pos]
			}
		}
		for _, ref := range strings.Split(clause, ",") {
			if parts := strings.Fields(ref); len(parts) > 0 {
				add(parts[0])
			}
		}
	}

	// Every JOIN: the following token is a table.
	for rest := upper; ; {
		pos := strings.Index(rest, "JOIN")
		if pos == -1 {
			break
		}
		if parts := strings.Fields(rest[pos+4:]); len(parts) > 0 {
			add(parts[0])
		}
		rest = rest[pos+4:]
	}

	// DML targets.
	switch {
	case strings.HasPrefix(upper, "INSERT INTO"):
		if parts := strings.Fields(upper[len("INSERT INTO"):]); len(parts) > 0 {
			add(parts[0])
		}
	case strings.HasPrefix(upper, "UPDATE"):
		if parts := strings.Fields(upper[len("UPDATE"):]); len(parts) > 0 {
			add(parts[0])
		}
	case strings.HasPrefix(upper, "DELETE FROM"):
		if parts := strings.Fields(upper[len("DELETE FROM"):]); len(parts) > 0 {
			add(parts[0])
		}
	}

	if len(seen) == 0 {
		return nil
	}
	tables := make([]string, 0, len(seen))
	for t := range seen {
		tables = append(tables, t)
	}
	sort.Strings(tables)
	return tables
}

// WhereColumns returns the sorted, deduplicated candidate index columns
// a SELECT statement's WHERE clause constrains with equality or range
// operators. Table qualifiers are stripped at the last dot. Non-SELECT
// statements and statements without a WHERE clause yield nil.
func WhereColumns(queryText string) []string {
	upper := strings.ToUpper(queryText)
	if !strings.HasPrefix(upper, "SELECT") {
		return nil
	}
	wherePos := strings.Index(upper, "WHERE")
	if wherePos == -1 {
		return nil
	}
	clause := upper[wherePos+5:]
	for _, stop := range whereStopClauses {
		if pos := strings.Index(clause, stop); pos != -1 {
			clause = clause[:pos]
		}
	}

	seen := make(map[string]struct{})
	for _, cond := range strings.Split(clause, "AND") {
		for _, op := range []string{">=", "<=", "=", ">", "<"} {
			lhs, _, found := strings.Cut(cond, op)
			if !found {
				continue
			}
			col := strings.TrimSpace(lhs)
			if dot := strings.LastIndex(col, "."); dot != -1 {
				col = col[dot+1:]
			}
			if col != "" {
				seen[col] = struct{}{}
			}
			break
		}
	}

	if len(seen) == 0 {
		return nil
	}
	cols := make([]string, 0, len(seen))
	for c := range seen {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}
