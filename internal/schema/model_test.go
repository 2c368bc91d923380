package schema

import (
	"errors"
	"testing"
)

// TestStructurallyEqual verifies that equality covers type, nullability,
// length and precision/scale but ignores ordinal position and defaults.
func TestStructurallyEqual(t *testing.T) {
	t.Parallel()

	base := ColumnDescriptor{Name: "name", DataType: "varchar", CharLength: IntPtr(50), Nullable: true, Ordinal: 2}

	tests := []struct {
		name  string
		other ColumnDescriptor
		want  bool
	}{
		{name: "identical", other: base, want: true},
		{name: "different ordinal", other: func() ColumnDescriptor { c := base; c.Ordinal = 7; return c }(), want: true},
		{name: "type case differs", other: func() ColumnDescriptor { c := base; c.DataType = "VARCHAR"; return c }(), want: true},
		{name: "default differs", other: func() ColumnDescriptor { c := base; c.Default = StringPtr("('x')"); return c }(), want: true},
		{name: "length differs", other: func() ColumnDescriptor { c := base; c.CharLength = IntPtr(100); return c }(), want: false},
		{name: "length nil", other: func() ColumnDescriptor { c := base; c.CharLength = nil; return c }(), want: false},
		{name: "nullability differs", other: func() ColumnDescriptor { c := base; c.Nullable = false; return c }(), want: false},
		{name: "type differs", other: func() ColumnDescriptor { c := base; c.DataType = "nvarchar"; return c }(), want: false},
		{name: "scale differs", other: func() ColumnDescriptor { c := base; c.NumericScale = IntPtr(2); return c }(), want: false},
	}

	for _, tt := range tests {
		tt := tt

		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := base.StructurallyEqual(tt.other); got != tt.want {
				t.Fatalf("StructurallyEqual(%+v) = %v, want %v", tt.other, got, tt.want)
			}
		})
	}
}

// TestParseTableIdentity verifies schema splitting and defaults.
func TestParseTableIdentity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want TableIdentity
	}{
		{in: "dbo.Orders", want: TableIdentity{Schema: "dbo", Name: "Orders"}},
		{in: "Orders", want: TableIdentity{Schema: "dbo", Name: "Orders"}},
		{in: " sales . Items ", want: TableIdentity{Schema: "sales", Name: "Items"}},
	}
	for _, tt := range tests {
		if got := ParseTableIdentity(tt.in, "dbo"); got != tt.want {
			t.Fatalf("ParseTableIdentity(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

// TestValidateIdentifier verifies the allow-list accepts catalog-style names
// and rejects anything that could break out of a quoted identifier.
func TestValidateIdentifier(t *testing.T) {
	t.Parallel()

	good := []string{"Orders", "order_items", "_tmp", "Col1", "Order Details", "a$b", "tbl#1"}
	bad := []string{"", "#temp", "1abc", "a]b", `a"b`, "a;DROP TABLE x", "a'b", "a.b", "naïve"}

	for _, id := range good {
		if err := ValidateIdentifier(id); err != nil {
			t.Fatalf("ValidateIdentifier(%q) error = %v, want nil", id, err)
		}
	}
	for _, id := range bad {
		err := ValidateIdentifier(id)
		if err == nil {
			t.Fatalf("ValidateIdentifier(%q) error = nil, want non-nil", id)
		}
		if !errors.Is(err, ErrInvalidIdentifier) {
			t.Fatalf("ValidateIdentifier(%q) error = %v, want ErrInvalidIdentifier", id, err)
		}
	}
}

// TestInsertableAndChecksumColumns verifies which columns a transfer writes
// and which participate in checksums.
func TestInsertableAndChecksumColumns(t *testing.T) {
	t.Parallel()

	s := TableSchema{
		Table: TableIdentity{Schema: "dbo", Name: "Orders"},
		Columns: []ColumnDescriptor{
			{Name: "id", DataType: "int", Identity: true},
			{Name: "rv", DataType: "timestamp"},
			{Name: "total", DataType: "decimal"},
			{Name: "RowVersion", DataType: "binary", CharLength: IntPtr(8)},
			{Name: "doubled", DataType: "int", Computed: true},
			{Name: "weight", DataType: "float"},
		},
	}

	names := func(cs []ColumnDescriptor) []string {
		out := make([]string, len(cs))
		for i, c := range cs {
			out[i] = c.Name
		}
		return out
	}

	gotIns := names(s.InsertableColumns())
	wantIns := []string{"id", "total", "RowVersion", "weight"}
	if len(gotIns) != len(wantIns) {
		t.Fatalf("InsertableColumns() = %v, want %v", gotIns, wantIns)
	}
	for i := range wantIns {
		if gotIns[i] != wantIns[i] {
			t.Fatalf("InsertableColumns()[%d] = %q, want %q", i, gotIns[i], wantIns[i])
		}
	}

	gotSum := names(s.ChecksumColumns())
	wantSum := []string{"id", "total", "weight"}
	if len(gotSum) != len(wantSum) {
		t.Fatalf("ChecksumColumns() = %v, want %v", gotSum, wantSum)
	}
	for i := range wantSum {
		if gotSum[i] != wantSum[i] {
			t.Fatalf("ChecksumColumns()[%d] = %q, want %q", i, gotSum[i], wantSum[i])
		}
	}

	if !s.HasIdentity() {
		t.Fatalf("HasIdentity() = false, want true")
	}
	if got := s.ApproximateColumns(); len(got) != 1 || got[0] != "weight" {
		t.Fatalf("ApproximateColumns() = %v, want [weight]", got)
	}
}

// TestGroupForeignKeys verifies multi-column constraints are grouped in order.
func TestGroupForeignKeys(t *testing.T) {
	t.Parallel()

	own := TableIdentity{Schema: "dbo", Name: "OrderItems"}
	ref := TableIdentity{Schema: "dbo", Name: "Orders"}
	refs := []ForeignKeyRef{
		{Name: "FK_a", Table: own, Column: "order_id", RefTable: ref, RefColumn: "id"},
		{Name: "FK_b", Table: own, Column: "product_id", RefTable: TableIdentity{Schema: "dbo", Name: "Products"}, RefColumn: "id"},
		{Name: "FK_a", Table: own, Column: "tenant_id", RefTable: ref, RefColumn: "tenant_id"},
	}

	groups := GroupForeignKeys(refs)
	if len(groups) != 2 {
		t.Fatalf("GroupForeignKeys() groups = %d, want 2", len(groups))
	}
	if len(groups[0]) != 2 || groups[0][1].Column != "tenant_id" {
		t.Fatalf("groups[0] = %+v, want FK_a with 2 columns", groups[0])
	}
	if groups[1][0].Name != "FK_b" {
		t.Fatalf("groups[1][0].Name = %q, want FK_b", groups[1][0].Name)
	}
}

// TestFormatLength verifies rendering of the MAX sentinel and NULL.
func TestFormatLength(t *testing.T) {
	t.Parallel()

	if got := FormatLength(nil); got != "NULL" {
		t.Fatalf("FormatLength(nil) = %q, want NULL", got)
	}
	if got := FormatLength(IntPtr(MaxLength)); got != "MAX" {
		t.Fatalf("FormatLength(-1) = %q, want MAX", got)
	}
	if got := FormatLength(IntPtr(50)); got != "50" {
		t.Fatalf("FormatLength(50) = %q, want 50", got)
	}
}
