package recommend

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"pg-insight/internal/logparse"
)

// Type of a recommendation. Only index recommendations are generated
// here; the other values exist for records produced elsewhere.
type Type string

const (
	TypeIndex  Type = "index"
	TypeTable  Type = "table"
	TypeQuery  Type = "query"
	TypeConfig Type = "config"
)

// Status lifecycle of a recommendation. The recommender creates every
// recommendation as pending; transitions belong to the caller.
type Status string

const (
	StatusPending     Status = "pending"
	StatusImplemented Status = "implemented"
	StatusDismissed   Status = "dismissed"
	StatusScheduled   Status = "scheduled"
)

// ValidStatus reports whether s is one of the lifecycle states.
func ValidStatus(s Status) bool {
	switch s {
	case StatusPending, StatusImplemented, StatusDismissed, StatusScheduled:
		return true
	}
	return false
}

// Recommendation is one candidate optimization.
type Recommendation struct {
	RecommendationID     string     `json:"recommendation_id"`
	Type                 Type       `json:"type"`
	Title                string     `json:"title"`
	Description          string     `json:"description"`
	ImpactScore          float64    `json:"impact_score"`
	SQLScript            string     `json:"sql_script"`
	Status               Status     `json:"status"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            *time.Time `json:"updated_at,omitempty"`
	ImplementedAt        *time.Time `json:"implemented_at,omitempty"`
	RelatedObjects       []string   `json:"related_objects,omitempty"`
	EstimatedImprovement string     `json:"estimated_improvement,omitempty"`
	SourceQueries        []string   `json:"source_queries,omitempty"`
}

// Dismiss marks the recommendation as dismissed.
func (r *Recommendation) Dismiss() {
	r.Status = StatusDismissed
	now := time.Now()
	r.UpdatedAt = &now
}

// Implement marks the recommendation as implemented.
func (r *Recommendation) Implement() {
	r.Status = StatusImplemented
	now := time.Now()
	r.UpdatedAt = &now
	r.ImplementedAt = &now
}

// Schedule marks the recommendation as scheduled for implementation.
func (r *Recommendation) Schedule() {
	r.Status = StatusScheduled
	now := time.Now()
	r.UpdatedAt = &now
}

// Indexes wider than this are treated as impractical and skipped.
const maxIndexColumns = 3

// Recommender derives index candidates from a batch of reconstructed
// queries.
type Recommender struct{}

func NewRecommender() *Recommender {
	return &Recommender{}
}

// Analyze groups the queries by accessed table, extracts WHERE-clause
// column sets per table, scores each (table, column set) pair by
// min(100, total_time * frequency / 1000), and returns the
// recommendations sorted by impact descending. A table with no SELECT
// queries or no WHERE clauses simply contributes nothing.
func (rec *Recommender) Analyze(queries []logparse.Query) []Recommendation {
	byTable := make(map[string][]logparse.Query)
	var tableOrder []string
	for _, q := range queries {
		for _, table := range q.TablesAccessed {
			if _, ok := byTable[table]; !ok {
				tableOrder = append(tableOrder, table)
			}
			byTable[table] = append(byTable[table], q)
		}
	}

	var recs []Recommendation
	for _, table := range tableOrder {
		recs = append(recs, rec.analyzeTable(table, byTable[table])...)
	}

	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].ImpactScore > recs[j].ImpactScore
	})
	return recs
}

func (rec *Recommender) analyzeTable(table string, queries []logparse.Query) []Recommendation {
	// Column set -> contributing queries, keyed by the joined sorted
	// column list.
	byColSet := make(map[string][]logparse.Query)
	var setOrder []string
	for _, q := range queries {
		cols := logparse.WhereColumns(q.QueryText)
		if len(cols) == 0 {
			continue
		}
		key := strings.Join(cols, ",")
		if _, ok := byColSet[key]; !ok {
			setOrder = append(setOrder, key)
		}
		byColSet[key] = append(byColSet[key], q)
	}

	var recs []Recommendation
	for _, colSet := range setOrder {
		columns := strings.Split(colSet, ",")
		if len(columns) > maxIndexColumns {
			continue
		}
		contributing := byColSet[colSet]

		var totalTime float64
		sourceIDs := make([]string, 0, len(contributing))
		for _, q := range contributing {
			totalTime += q.ExecutionTimeMs
			sourceIDs = append(sourceIDs, q.QueryID)
		}
		frequency := len(contributing)
		impact := totalTime * float64(frequency) / 1000
		if impact > 100 {
			impact = 100
		}

		indexName := fmt.Sprintf("idx_%s_%s", strings.ToLower(table), strings.ToLower(strings.Join(columns, "_")))
		recs = append(recs, Recommendation{
			RecommendationID: uuid.NewString(),
			Type:             TypeIndex,
			Title:            fmt.Sprintf("Add index on %s(%s)", table, colSet),
			Description: fmt.Sprintf(
				"Creating an index on %s(%s) could improve the performance of %d queries with a total execution time of %.2f ms.",
				table, colSet, frequency, totalTime),
			ImpactScore:          impact,
			SQLScript:            fmt.Sprintf("CREATE INDEX %s ON %s (%s);", indexName, table, colSet),
			Status:               StatusPending,
			CreatedAt:            time.Now(),
			RelatedObjects:       []string{table},
			EstimatedImprovement: fmt.Sprintf("May reduce query time by up to 80%% for %d queries", frequency),
			SourceQueries:        sourceIDs,
		})
	}
	return recs
}
