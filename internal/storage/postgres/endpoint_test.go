package postgres

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"dbclone/internal/schema"
)

func ordersSchema() schema.TableSchema {
	return schema.TableSchema{
		Table: schema.TableIdentity{Schema: "public", Name: "orders"},
		Columns: []schema.ColumnDescriptor{
			{Name: "id", DataType: "integer", Identity: true},
			{Name: "placed", DataType: "timestamp without time zone", Nullable: true},
			{Name: "blob", DataType: "bytea", Nullable: true},
			{Name: "total", DataType: "numeric", NumericPrecision: schema.IntPtr(10), NumericScale: schema.IntPtr(2)},
			{Name: "note", DataType: "text", Nullable: true},
		},
		PrimaryKey: []string{"id"},
	}
}

// TestWindowSQL verifies the paged SELECT and its row-location fallback.
func TestWindowSQL(t *testing.T) {
	t.Parallel()

	s := ordersSchema()
	got, err := windowSQL(s, []string{"id", "note"})
	if err != nil {
		t.Fatalf("windowSQL() error = %v", err)
	}
	want := `SELECT "id", "note" FROM "public"."orders" ORDER BY "id" OFFSET $1 ROWS FETCH NEXT $2 ROWS ONLY`
	if got != want {
		t.Fatalf("windowSQL() = %q, want %q", got, want)
	}

	s.PrimaryKey = nil
	s.Columns = append(s.Columns,
		schema.ColumnDescriptor{Name: "payload", DataType: "json", Nullable: true},
		schema.ColumnDescriptor{Name: "spot", DataType: "point", Nullable: true})
	got, err = windowSQL(s, []string{"id", "payload", "spot"})
	if err != nil {
		t.Fatalf("windowSQL() error = %v", err)
	}
	want = `SELECT "id", "payload", "spot" FROM "public"."orders" ORDER BY tableoid, ctid OFFSET $1 ROWS FETCH NEXT $2 ROWS ONLY`
	if got != want {
		t.Fatalf("windowSQL() = %q, want %q", got, want)
	}
	if strings.Contains(got, `ORDER BY "payload"`) || strings.Contains(got, "ORDER BY 1") {
		t.Fatalf("windowSQL() = %q, want no ordering on unorderable columns", got)
	}

	if _, err := windowSQL(s, []string{`a"b`}); !errors.Is(err, schema.ErrInvalidIdentifier) {
		t.Fatalf("windowSQL(bad column) error = %v, want ErrInvalidIdentifier", err)
	}
	if _, err := windowSQL(s, nil); err == nil {
		t.Fatalf("windowSQL(no columns) error = nil, want non-nil")
	}
}

// TestInsertSQL verifies OVERRIDING SYSTEM VALUE only when an identity
// column is written.
func TestInsertSQL(t *testing.T) {
	t.Parallel()

	s := ordersSchema()
	tests := []struct {
		name    string
		columns []string
		want    string
	}{
		{
			name:    "identity",
			columns: []string{"id", "note"},
			want:    `INSERT INTO "public"."orders" ("id","note") OVERRIDING SYSTEM VALUE VALUES ($1,$2)`,
		},
		{
			name:    "plain",
			columns: []string{"note", "total"},
			want:    `INSERT INTO "public"."orders" ("note","total") VALUES ($1,$2)`,
		},
	}

	for _, tt := range tests {
		tt := tt

		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := insertSQL(s, tt.columns)
			if err != nil {
				t.Fatalf("insertSQL() error = %v", err)
			}
			if got != tt.want {
				t.Fatalf("insertSQL() = %q, want %q", got, tt.want)
			}
		})
	}
}

// TestChecksumSQL verifies canonical expressions per type family.
func TestChecksumSQL(t *testing.T) {
	t.Parallel()

	got, err := checksumSQL(ordersSchema())
	if err != nil {
		t.Fatalf("checksumSQL() error = %v", err)
	}
	for _, part := range []string{
		`COALESCE("id"::text, 'NULL')`,
		`COALESCE(to_char("placed", 'YYYY-MM-DD HH24:MI:SS.MS'), 'NULL')`,
		`COALESCE(encode("blob", 'hex'), 'NULL')`,
		` || '|' || `,
		`substr(md5(`,
		`FROM "public"."orders"`,
	} {
		if !strings.Contains(got, part) {
			t.Fatalf("checksumSQL() = %q, want it to contain %q", got, part)
		}
	}

	empty := schema.TableSchema{
		Table:   schema.TableIdentity{Schema: "public", Name: "stamps"},
		Columns: []schema.ColumnDescriptor{{Name: "row_version", DataType: "bigint"}},
	}
	got, err = checksumSQL(empty)
	if err != nil || got != "" {
		t.Fatalf("checksumSQL(versioning only) = %q, %v, want empty", got, err)
	}
}

// TestIsTransient verifies SQLSTATE classification.
func TestIsTransient(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "deadlock", err: &pgconn.PgError{Code: "40P01"}, want: true},
		{name: "serialization", err: fmt.Errorf("wrap: %w", &pgconn.PgError{Code: "40001"}), want: true},
		{name: "connection class", err: &pgconn.PgError{Code: "08006"}, want: true},
		{name: "unique violation", err: &pgconn.PgError{Code: "23505"}, want: false},
		{name: "plain", err: errors.New("boom"), want: false},
	}

	for _, tt := range tests {
		tt := tt

		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := isTransient(tt.err); got != tt.want {
				t.Fatalf("isTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

// TestToCopyVal verifies portable values are converted for their columns.
func TestToCopyVal(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	if got, ok := toCopyVal(id.String(), "uuid").([16]byte); !ok || uuid.UUID(got) != id {
		t.Fatalf("toCopyVal(uuid string) = %v, want [16]byte %s", got, id)
	}
	if _, ok := toCopyVal("12.50", "numeric").(pgtype.Numeric); !ok {
		t.Fatalf("toCopyVal(numeric string) is not pgtype.Numeric")
	}
	if got := toCopyVal("not a number", "numeric"); got != "not a number" {
		t.Fatalf("toCopyVal(bad numeric) = %v, want passthrough", got)
	}
	if got := toCopyVal(true, "integer"); got != int64(1) {
		t.Fatalf("toCopyVal(true, integer) = %v, want 1", got)
	}
	if got := toCopyVal(int64(0), "boolean"); got != false {
		t.Fatalf("toCopyVal(0, boolean) = %v, want false", got)
	}
	if got := toCopyVal(nil, "text"); got != nil {
		t.Fatalf("toCopyVal(nil) = %v, want nil", got)
	}
}

// TestFromDriver verifies decoded pgx values become portable forms.
func TestFromDriver(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	if got := fromDriver([16]byte(id)); got != id.String() {
		t.Fatalf("fromDriver(uuid) = %v, want %s", got, id)
	}
	if got := fromDriver(map[string]any{"a": float64(1)}); got != `{"a":1}` {
		t.Fatalf("fromDriver(json) = %v, want {\"a\":1}", got)
	}
	var n pgtype.Numeric
	if err := n.Scan("3.25"); err != nil {
		t.Fatalf("Numeric.Scan() error = %v", err)
	}
	if got := fromDriver(n); got != "3.25" {
		t.Fatalf("fromDriver(numeric) = %v, want 3.25", got)
	}
	if got := fromDriver(int32(7)); got != int32(7) {
		t.Fatalf("fromDriver(int32) = %v, want passthrough", got)
	}
}

// TestPoolConfig verifies pool bounds and DSN errors.
func TestPoolConfig(t *testing.T) {
	t.Parallel()

	pc, err := poolConfig(Config{DSN: "postgres://u:p@localhost:5432/db", PoolMin: 2, PoolMax: 8})
	if err != nil {
		t.Fatalf("poolConfig() error = %v", err)
	}
	if pc.MaxConns != 8 || pc.MinConns != 2 {
		t.Fatalf("poolConfig() conns = %d/%d, want 2/8", pc.MinConns, pc.MaxConns)
	}

	if _, err := poolConfig(Config{DSN: "postgres://%zz"}); err == nil || !strings.Contains(err.Error(), "postgres dsn") {
		t.Fatalf("poolConfig(bad) error = %v, want postgres dsn error", err)
	}
}
