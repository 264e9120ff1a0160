package logparse

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractTables(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{
			name:  "simple select",
			query: "SELECT * FROM users WHERE id = 1",
			want:  []string{"USERS"},
		},
		{
			name:  "from list with aliases",
			query: "SELECT * FROM users u, orders o WHERE u.id = o.user_id",
			want:  []string{"ORDERS", "USERS"},
		},
		{
			name:  "join",
			query: "SELECT * FROM users JOIN orders ON users.id = orders.user_id",
			want:  []string{"ORDERS", "USERS"},
		},
		{
			name:  "insert",
			query: "INSERT INTO audit_log (id) VALUES (1)",
			want:  []string{"AUDIT_LOG"},
		},
		{
			name:  "update",
			query: "UPDATE users SET name = 'x' WHERE id = 1",
			want:  []string{"USERS"},
		},
		{
			name:  "delete",
			query: "DELETE FROM sessions WHERE expired = true",
			want:  []string{"SESSIONS"},
		},
		{
			name:  "quoted identifiers",
			query: `SELECT * FROM "Users" WHERE id = 1`,
			want:  []string{"USERS"},
		},
		{
			name:  "duplicates collapse",
			query: "SELECT * FROM users JOIN users ON 1=1",
			want:  []string{"USERS"},
		},
		{
			name:  "transaction",
			query: "COMMIT",
			want:  nil,
		},
		{
			name:  "begin",
			query: "BEGIN (implicit)",
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, ExtractTables(tt.query))
		})
	}
}

func TestWhereColumns(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{
			name:  "single condition",
			query: "SELECT * FROM users WHERE email = 'x'",
			want:  []string{"EMAIL"},
		},
		{
			name:  "multiple conditions sorted",
			query: "SELECT * FROM orders WHERE user_id = 1 AND created_at >= '2023-01-01'",
			want:  []string{"CREATED_AT", "USER_ID"},
		},
		{
			name:  "qualified columns stripped",
			query: "SELECT * FROM orders o WHERE o.user_id = 1 AND o.status = 'open'",
			want:  []string{"STATUS", "USER_ID"},
		},
		{
			name:  "where clause truncated at order by",
			query: "SELECT * FROM users WHERE age > 30 ORDER BY name",
			want:  []string{"AGE"},
		},
		{
			name:  "no where clause",
			query: "SELECT * FROM users",
			want:  nil,
		},
		{
			name:  "non-select ignored",
			query: "UPDATE users SET name = 'x' WHERE id = 1",
			want:  nil,
		},
		{
			name:  "duplicate columns collapse",
			query: "SELECT * FROM t WHERE a = 1 AND a > 0 AND b <= 5",
			want:  []string{"A", "B"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, WhereColumns(tt.query))
		})
	}
}
