package logparse

import (
	"regexp"
	"sort"
)

var (
	numberLitRE = regexp.MustCompile(`\b\d+\b`)
	uuidLitRE   = regexp.MustCompile(`'[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}'`)
	stringLitRE = regexp.MustCompile(`'[^']*'`)
)

// NormalizePattern maps a statement to its canonical pattern: numeric
// literals become N, UUID-shaped literals become 'UUID', every other
// single-quoted literal becomes 'S'. The UUID rule runs first so a
// UUID is not mistaken for a short string literal. Normalization is
// idempotent: the placeholders themselves are never re-replaced.
func NormalizePattern(queryText string) string {
	pattern := numberLitRE.ReplaceAllString(queryText, "N")
	pattern = uuidLitRE.ReplaceAllString(pattern, "'UUID'")
	return stringLitRE.ReplaceAllStringFunc(pattern, func(lit string) string {
		if lit == "'S'" || lit == "'UUID'" {
			return lit
		}
		return "'S'"
	})
}

// PatternGroup is one bucket of structurally identical queries.
type PatternGroup struct {
	Pattern string  `json:"pattern"`
	Queries []Query `json:"queries"`
}

// GroupPatterns buckets queries by normalized pattern, ordered by
// descending bucket size; ties keep the encounter order of the first
// member.
func GroupPatterns(queries []Query) []PatternGroup {
	index := make(map[string]int)
	groups := make([]PatternGroup, 0)
	for _, q := range queries {
		p := NormalizePattern(q.QueryText)
		i, ok := index[p]
		if !ok {
			i = len(groups)
			index[p] = i
			groups = append(groups, PatternGroup{Pattern: p})
		}
		groups[i].Queries = append(groups[i].Queries, q)
	}
	sort.SliceStable(groups, func(i, j int) bool {
		return len(groups[i].Queries) > len(groups[j].Queries)
	})
	return groups
}

// SlowQueries returns the queries at or above the threshold, in input
// order.
func SlowQueries(queries []Query, thresholdMs float64) []Query {
	var slow []Query
	for _, q := range queries {
		if q.ExecutionTimeMs >= thresholdMs {
			slow = append(slow, q)
		}
	}
	return slow
}

// DefaultSlowThresholdMs is the slow-query cutoff used when the caller
// does not supply one.
const DefaultSlowThresholdMs = 100.0
