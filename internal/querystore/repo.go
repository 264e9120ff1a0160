package querystore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"pg-insight/internal/logparse"
	"pg-insight/internal/recommend"
)

// ErrNotFound is returned when a lookup by id matches nothing.
var ErrNotFound = errors.New("querystore: not found")

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Migrate ensures the INSIGHT.QUERY_LOG and INSIGHT.RECOMMENDATION
// tables exist.
func (r *Repository) Migrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&QueryRecord{}, &RecommendationRecord{})
}

// InsertQueries stores parsed queries in batches for performance.
func (r *Repository) InsertQueries(ctx context.Context, queries []logparse.Query) error {
	if len(queries) == 0 {
		return nil
	}
	records := make([]QueryRecord, 0, len(queries))
	for i, q := range queries {
		if q.Database == "" || q.QueryText == "" {
			return fmt.Errorf("missing required fields at index %d", i)
		}
		records = append(records, NewQueryRecord(q))
	}
	return r.db.WithContext(ctx).CreateInBatches(records, 500).Error
}

// ListDatabases returns the distinct database names seen in the log
// store, ordered alphabetically.
func (r *Repository) ListDatabases(ctx context.Context) ([]string, error) {
	var names []string
	err := r.db.WithContext(ctx).
		Model(&QueryRecord{}).
		Distinct("db_name").
		Order("db_name ASC").
		Pluck("db_name", &names).Error
	if err != nil {
		return nil, fmt.Errorf("list databases: %w", err)
	}
	return names, nil
}

// SlowQueries returns stored queries at or above thresholdMs, slowest
// first. db narrows to one database when non-empty; limit <= 0 means
// no limit.
func (r *Repository) SlowQueries(ctx context.Context, db string, thresholdMs float64, limit int) ([]QueryRecord, error) {
	q := r.db.WithContext(ctx).
		Model(&QueryRecord{}).
		Where("exec_time_ms >= ?", thresholdMs).
		Order("exec_time_ms DESC")
	if db != "" {
		q = q.Where("db_name = ?", db)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var records []QueryRecord
	if err := q.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("slow queries: %w", err)
	}
	return records, nil
}

// PatternStat is one normalized query pattern with its occurrence
// count and accumulated execution time.
type PatternStat struct {
	Pattern     string  `json:"pattern"`
	Occurrences int64   `json:"occurrences"`
	TotalTimeMs float64 `json:"total_time_ms"`
}

// TopPatterns ranks the stored patterns by occurrence count
// descending, ties broken by pattern for stable output.
func (r *Repository) TopPatterns(ctx context.Context, db string, top int) ([]PatternStat, error) {
	if top <= 0 {
		return nil, nil
	}
	q := r.db.WithContext(ctx).
		Model(&QueryRecord{}).
		Select("pattern, COUNT(*) AS occurrences, SUM(exec_time_ms) AS total_time_ms").
		Group("pattern").
		Order("occurrences DESC, pattern ASC").
		Limit(top)
	if db != "" {
		q = q.Where("db_name = ?", db)
	}
	var stats []PatternStat
	if err := q.Scan(&stats).Error; err != nil {
		return nil, fmt.Errorf("top patterns: %w", err)
	}
	return stats, nil
}

// PercentileSet maps keys like "p50","p95" to execution times in ms.
type PercentileSet map[string]float64

// ExecTimePercentiles computes exec_time_ms percentiles with
// PostgreSQL percentile_disc. pcts are fractions in (0,1]; db narrows
// to one database when non-empty.
func (r *Repository) ExecTimePercentiles(ctx context.Context, db string, pcts []float64) (PercentileSet, error) {
	out := make(PercentileSet, len(pcts))
	if len(pcts) == 0 {
		return out, nil
	}
	where := "1=1"
	var args []any
	if db != "" {
		where = "db_name = ?"
		args = append(args, db)
	}
	for _, pct := range pcts {
		q := fmt.Sprintf(`
SELECT percentile_disc(?) WITHIN GROUP (ORDER BY exec_time_ms)
FROM "INSIGHT"."QUERY_LOG"
WHERE %s
`, where)
		var v float64
		rowArgs := append([]any{pct}, args...)
		if err := r.db.WithContext(ctx).Raw(q, rowArgs...).Scan(&v).Error; err != nil {
			return nil, fmt.Errorf("percentile %g: %w", pct, err)
		}
		out[pctKey(pct)] = v
	}
	return out, nil
}

func pctKey(f float64) string {
	n := int(f*100 + 0.5)
	return fmt.Sprintf("p%d", n)
}

// SaveRecommendations stores a freshly generated batch. Existing rows
// with the same id are left untouched; analyze runs always mint new
// ids, so conflicts only occur on retried requests.
func (r *Repository) SaveRecommendations(ctx context.Context, recs []recommend.Recommendation) error {
	if len(recs) == 0 {
		return nil
	}
	records := make([]RecommendationRecord, 0, len(recs))
	for _, rec := range recs {
		records = append(records, NewRecommendationRecord(rec))
	}
	return r.db.WithContext(ctx).CreateInBatches(records, 100).Error
}

// ListRecommendations returns stored recommendations by impact
// descending, optionally filtered to one status.
func (r *Repository) ListRecommendations(ctx context.Context, status recommend.Status) ([]RecommendationRecord, error) {
	q := r.db.WithContext(ctx).
		Model(&RecommendationRecord{}).
		Order("impact_score DESC, created_at ASC")
	if status != "" {
		q = q.Where("status = ?", string(status))
	}
	var records []RecommendationRecord
	if err := q.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("list recommendations: %w", err)
	}
	return records, nil
}

// GetRecommendation loads one recommendation by id.
func (r *Repository) GetRecommendation(ctx context.Context, id string) (RecommendationRecord, error) {
	var rec RecommendationRecord
	err := r.db.WithContext(ctx).First(&rec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return rec, ErrNotFound
	}
	if err != nil {
		return rec, fmt.Errorf("get recommendation: %w", err)
	}
	return rec, nil
}

// UpdateRecommendationStatus moves a recommendation through its
// lifecycle and returns the updated row. implemented_at is stamped
// only on the transition into implemented.
func (r *Repository) UpdateRecommendationStatus(ctx context.Context, id string, status recommend.Status) (RecommendationRecord, error) {
	rec, err := r.GetRecommendation(ctx, id)
	if err != nil {
		return rec, err
	}
	now := time.Now().UTC()
	updates := map[string]any{
		"status":     string(status),
		"updated_at": now,
	}
	if status == recommend.StatusImplemented {
		updates["implemented_at"] = now
	}
	if err := r.db.WithContext(ctx).Model(&rec).Updates(updates).Error; err != nil {
		return rec, fmt.Errorf("update recommendation status: %w", err)
	}
	rec.Status = string(status)
	rec.UpdatedAt = &now
	if status == recommend.StatusImplemented {
		rec.ImplementedAt = &now
	}
	return rec, nil
}
