package ddl

import (
	"strconv"
	"strings"
	"testing"
)

func dq(id string) string { return `"` + strings.ReplaceAll(id, `"`, `""`) + `"` }

// TestBuildCreateTableSQL verifies the rendered statement and the error
// surface for invalid definitions.
func TestBuildCreateTableSQL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		def         TableDef
		q           Quoter
		wantSQL     string
		errContains string
	}{
		{
			name:        "empty FQN returns error",
			def:         TableDef{FQN: "", Columns: []ColumnDef{{Name: "id", SQLType: "INT"}}},
			errContains: "table FQN must not be empty",
		},
		{
			name:        "no columns returns error",
			def:         TableDef{FQN: "dbo.t"},
			errContains: "at least one column is required",
		},
		{
			name:        "column with empty name returns error",
			def:         TableDef{FQN: "t", Columns: []ColumnDef{{Name: " ", SQLType: "INT"}}},
			errContains: "column with empty name",
		},
		{
			name:        "column with empty type returns error",
			def:         TableDef{FQN: "t", Columns: []ColumnDef{{Name: "id"}}},
			errContains: "missing SQLType",
		},
		{
			name:    "single nullable column",
			def:     TableDef{FQN: "t", Columns: []ColumnDef{{Name: "id", SQLType: "INT", Nullable: true}}},
			wantSQL: "CREATE TABLE t (\n  id INT\n);",
		},
		{
			name: "not null default and composite key",
			def: TableDef{
				FQN: "sales.Orders",
				Columns: []ColumnDef{
					{Name: "id", SQLType: "INT", PrimaryKey: true},
					{Name: "tenant", SQLType: "INT", PrimaryKey: true},
					{Name: "status", SQLType: "VARCHAR(10)", Nullable: true, Default: " ('new') "},
				},
			},
			q: dq,
			wantSQL: "CREATE TABLE \"sales\".\"Orders\" (\n" +
				"  \"id\" INT NOT NULL,\n" +
				"  \"tenant\" INT NOT NULL,\n" +
				"  \"status\" VARCHAR(10) DEFAULT ('new'),\n" +
				"  PRIMARY KEY (\"id\", \"tenant\")\n);",
		},
	}

	for _, tt := range tests {
		tt := tt

		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := BuildCreateTableSQL(tt.def, tt.q)
			if tt.errContains != "" {
				if err == nil {
					t.Fatalf("BuildCreateTableSQL() error = nil, want error containing %q", tt.errContains)
				}
				if !strings.Contains(err.Error(), tt.errContains) {
					t.Fatalf("BuildCreateTableSQL() error = %q, want it to contain %q", err.Error(), tt.errContains)
				}
				return
			}
			if err != nil {
				t.Fatalf("BuildCreateTableSQL() unexpected error: %v", err)
			}
			if got != tt.wantSQL {
				t.Fatalf("BuildCreateTableSQL() SQL mismatch\n got: %q\nwant: %q", got, tt.wantSQL)
			}
		})
	}
}

// TestQuoteFQN verifies splitting and per-segment quoting.
func TestQuoteFQN(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{in: "Users", want: `"Users"`},
		{in: "dbo.Users", want: `"dbo"."Users"`},
		{in: " dbo . Users ", want: `"dbo"."Users"`},
		{in: ".dbo..Users.", want: `"dbo"."Users"`},
		{in: "", want: ""},
	}
	for _, tt := range tests {
		if got := QuoteFQN(tt.in, dq); got != tt.want {
			t.Fatalf("QuoteFQN(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

var benchmarkSink string

// BenchmarkBuildCreateTableSQL_LargeSchema measures rendering of a wide table.
func BenchmarkBuildCreateTableSQL_LargeSchema(b *testing.B) {
	cols := make([]ColumnDef, 0, 64)
	for i := 0; i < 64; i++ {
		cols = append(cols, ColumnDef{Name: "col_" + strconv.Itoa(i), SQLType: "NVARCHAR(MAX)", Nullable: true})
	}
	def := TableDef{FQN: "dbo.large_table", Columns: cols}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		sql, err := BuildCreateTableSQL(def, dq)
		if err != nil {
			b.Fatalf("BuildCreateTableSQL() error = %v", err)
		}
		benchmarkSink = sql
	}
}
