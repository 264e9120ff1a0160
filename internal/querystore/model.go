package querystore

import (
	"strings"
	"time"

	"pg-insight/internal/logparse"
	"pg-insight/internal/recommend"
)

// QueryRecord persists one reconstructed query in INSIGHT.QUERY_LOG.
// The normalized pattern is computed once at insert time so grouping
// and ranking are plain GROUP BY queries.
type QueryRecord struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement;column:id"`
	QueryID    string    `gorm:"column:query_id;type:varchar(64);index;not null"`
	DBName     string    `gorm:"column:db_name;type:varchar(128);index;not null"`
	QueryText  string    `gorm:"column:query_text;type:text;not null"`
	Pattern    string    `gorm:"column:pattern;type:text;index;not null"`
	ExecTimeMs float64   `gorm:"column:exec_time_ms;not null"`
	Tables     string    `gorm:"column:tables;type:text"` // comma-joined, uppercased
	OccurredAt time.Time `gorm:"column:occurred_at;index"`
	Frequency  int64     `gorm:"column:frequency;not null;default:1"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (QueryRecord) TableName() string { return "INSIGHT.QUERY_LOG" }

// NewQueryRecord converts a parsed query for storage.
func NewQueryRecord(q logparse.Query) QueryRecord {
	return QueryRecord{
		QueryID:    q.QueryID,
		DBName:     q.Database,
		QueryText:  q.QueryText,
		Pattern:    logparse.NormalizePattern(q.QueryText),
		ExecTimeMs: q.ExecutionTimeMs,
		Tables:     strings.Join(q.TablesAccessed, ","),
		OccurredAt: q.Timestamp,
		Frequency:  int64(q.Frequency),
	}
}

// Query converts the record back into the in-memory form the
// recommender consumes.
func (r QueryRecord) Query() logparse.Query {
	var tables []string
	if r.Tables != "" {
		tables = strings.Split(r.Tables, ",")
	}
	return logparse.Query{
		QueryID:         r.QueryID,
		QueryText:       r.QueryText,
		ExecutionTimeMs: r.ExecTimeMs,
		Timestamp:       r.OccurredAt,
		Database:        r.DBName,
		TablesAccessed:  tables,
		Frequency:       int(r.Frequency),
	}
}

// RecommendationRecord persists one recommendation in
// INSIGHT.RECOMMENDATION. Only status, updated_at and implemented_at
// change after creation.
type RecommendationRecord struct {
	ID             string     `gorm:"column:id;type:uuid;primaryKey"`
	Type           string     `gorm:"column:type;type:varchar(32);not null"`
	Title          string     `gorm:"column:title;type:text;not null"`
	Description    string     `gorm:"column:description;type:text"`
	ImpactScore    float64    `gorm:"column:impact_score;not null"`
	SQLScript      string     `gorm:"column:sql_script;type:text"`
	Status         string     `gorm:"column:status;type:varchar(32);index;not null"`
	RelatedObjects string     `gorm:"column:related_objects;type:text"`
	SourceQueries  string     `gorm:"column:source_queries;type:text"`
	Improvement    string     `gorm:"column:estimated_improvement;type:text"`
	CreatedAt      time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      *time.Time `gorm:"column:updated_at"`
	ImplementedAt  *time.Time `gorm:"column:implemented_at"`
}

func (RecommendationRecord) TableName() string { return "INSIGHT.RECOMMENDATION" }

// NewRecommendationRecord converts a recommendation for storage.
func NewRecommendationRecord(r recommend.Recommendation) RecommendationRecord {
	return RecommendationRecord{
		ID:             r.RecommendationID,
		Type:           string(r.Type),
		Title:          r.Title,
		Description:    r.Description,
		ImpactScore:    r.ImpactScore,
		SQLScript:      r.SQLScript,
		Status:         string(r.Status),
		RelatedObjects: strings.Join(r.RelatedObjects, ","),
		SourceQueries:  strings.Join(r.SourceQueries, ","),
		Improvement:    r.EstimatedImprovement,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
		ImplementedAt:  r.ImplementedAt,
	}
}

// Recommendation converts the record back into the export/domain form.
func (r RecommendationRecord) Recommendation() recommend.Recommendation {
	return recommend.Recommendation{
		RecommendationID:     r.ID,
		Type:                 recommend.Type(r.Type),
		Title:                r.Title,
		Description:          r.Description,
		ImpactScore:          r.ImpactScore,
		SQLScript:            r.SQLScript,
		Status:               recommend.Status(r.Status),
		CreatedAt:            r.CreatedAt,
		UpdatedAt:            r.UpdatedAt,
		ImplementedAt:        r.ImplementedAt,
		RelatedObjects:       splitCSV(r.RelatedObjects),
		EstimatedImprovement: r.Improvement,
		SourceQueries:        splitCSV(r.SourceQueries),
	}
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
