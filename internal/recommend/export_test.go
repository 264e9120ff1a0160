package recommend

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func sampleRecommendations() []Recommendation {
	return []Recommendation{
		{
			RecommendationID: "r1",
			Type:             TypeIndex,
			Title:            "Add index on USERS(EMAIL)",
			Description:      "Creating an index on USERS(EMAIL) could improve the performance of 2 queries with a total execution time of 800.00 ms.",
			ImpactScore:      1.6,
			SQLScript:        "CREATE INDEX idx_users_email ON USERS (EMAIL);",
			Status:           StatusPending,
			CreatedAt:        time.Now(),
		},
		{
			RecommendationID: "r2",
			Type:             TypeIndex,
			Title:            "Add index on ORDERS(USER_ID)",
			Description:      "Creating an index on ORDERS(USER_ID) could improve the performance of 1 queries with a total execution time of 600.00 ms.",
			ImpactScore:      0.6,
			SQLScript:        "CREATE INDEX idx_orders_user_id ON ORDERS (USER_ID);",
			Status:           StatusImplemented,
			CreatedAt:        time.Now(),
		},
	}
}

func TestSQLScript_PendingOnly(t *testing.T) {
	out := SQLScript(sampleRecommendations())

	require.Contains(t, out, "-- Add index on USERS(EMAIL)")
	require.Contains(t, out, "-- Impact Score: 1.60")
	require.Contains(t, out, "CREATE INDEX idx_users_email ON USERS (EMAIL);")
	// Implemented recommendations stay out of the script.
	require.NotContains(t, out, "idx_orders_user_id")
}

func TestSQLScript_Empty(t *testing.T) {
	require.Equal(t, "", SQLScript(nil))
}

func TestMarkdownReport_AllStatuses(t *testing.T) {
	out := MarkdownReport(sampleRecommendations())

	require.True(t, strings.HasPrefix(out, "# PostgreSQL Optimization Recommendations"))
	require.Contains(t, out, "## Add index on USERS(EMAIL)")
	require.Contains(t, out, "## Add index on ORDERS(USER_ID)")
	require.Contains(t, out, "Status: Pending")
	require.Contains(t, out, "Status: Implemented")
	require.Contains(t, out, "```sql")
	require.Contains(t, out, "---")
}

func TestMarkdownReport_OmitsEmptyScriptBlock(t *testing.T) {
	recs := []Recommendation{{
		Title:       "Review query plan",
		Type:        TypeQuery,
		Status:      StatusPending,
		Description: "Manual review.",
	}}
	out := MarkdownReport(recs)
	require.NotContains(t, out, "```sql")
}

func TestPDFReport(t *testing.T) {
	b, err := PDFReport(sampleRecommendations())
	require.NoError(t, err)
	require.True(t, len(b) > 0)
	// PDF header magic.
	require.True(t, strings.HasPrefix(string(b), "%PDF"))
}
