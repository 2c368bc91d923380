package verify

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"dbclone/internal/schema"
)

// TestCanonical verifies values from different drivers render identically.
func TestCanonical(t *testing.T) {
	t.Parallel()

	ts := time.Date(2024, 3, 1, 12, 30, 45, 123456789, time.UTC)
	id := uuid.MustParse("6F9619FF-8B86-D011-B42D-00C04FC964FF")

	tests := []struct {
		name string
		v    any
		typ  string
		want string
	}{
		{name: "nil", v: nil, typ: "int", want: "NULL"},
		{name: "int64", v: int64(42), typ: "bigint", want: "42"},
		{name: "int32", v: int32(-7), typ: "int", want: "-7"},
		{name: "float", v: 1.5, typ: "float", want: "1.5"},
		{name: "bool true", v: true, typ: "bit", want: "1"},
		{name: "bit text", v: "true", typ: "boolean", want: "1"},
		{name: "binary", v: []byte{0xde, 0xad}, typ: "varbinary", want: "dead"},
		{name: "text bytes", v: []byte("abc"), typ: "varchar", want: "abc"},
		{name: "datetime", v: ts, typ: "datetime2", want: "2024-03-01 12:30:45.123"},
		{name: "datetime offset", v: ts.In(time.FixedZone("x", 3600)), typ: "datetimeoffset", want: "2024-03-01 12:30:45.123"},
		{name: "datetime text", v: "2024-03-01 12:30:45.123", typ: "timestamp without time zone", want: "2024-03-01 12:30:45.123"},
		{name: "date", v: "2024-03-01", typ: "date", want: "2024-03-01 00:00:00.000"},
		{name: "time", v: "08:15:00", typ: "time", want: "08:15:00.000"},
		{name: "uuid upper", v: "6F9619FF-8B86-D011-B42D-00C04FC964FF", typ: "uniqueidentifier", want: "6f9619ff-8b86-d011-b42d-00c04fc964ff"},
		{name: "uuid valuer", v: id, typ: "uuid", want: "6f9619ff-8b86-d011-b42d-00c04fc964ff"},
		{name: "plain text", v: "Hello", typ: "nvarchar", want: "Hello"},
	}

	for _, tt := range tests {
		tt := tt

		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := Canonical(tt.v, schema.ColumnDescriptor{DataType: tt.typ}); got != tt.want {
				t.Fatalf("Canonical(%v, %s) = %q, want %q", tt.v, tt.typ, got, tt.want)
			}
		})
	}
}

// TestAccumulatorDistinguishesRows verifies a changed value changes the sum.
func TestAccumulatorDistinguishesRows(t *testing.T) {
	t.Parallel()

	cols := []schema.ColumnDescriptor{{Name: "id", DataType: "int"}, {Name: "name", DataType: "varchar"}}
	a, b := NewAccumulator(cols), NewAccumulator(cols)
	a.Add([]any{int64(1), "x"})
	b.Add([]any{int64(1), "y"})
	if a.Sum() == b.Sum() {
		t.Fatalf("Sum() equal for different rows: %s", a.Sum())
	}
	if a.Rows() != 1 {
		t.Fatalf("Rows() = %d, want 1", a.Rows())
	}

	// NULL and the empty string are distinct.
	c, d := NewAccumulator(cols), NewAccumulator(cols)
	c.Add([]any{int64(1), nil})
	d.Add([]any{int64(1), ""})
	if c.Sum() == d.Sum() {
		t.Fatalf("Sum() equal for NULL and empty string")
	}
}

// TestAccumulatorOrderIndependence checks that any permutation of the same
// rows yields the same checksum.
func TestAccumulatorOrderIndependence(t *testing.T) {
	t.Parallel()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	cols := []schema.ColumnDescriptor{{Name: "id", DataType: "bigint"}, {Name: "name", DataType: "varchar"}}

	properties.Property("permuted rows sum equally", prop.ForAll(
		func(ids []int64, names []string, rotate int) bool {
			n := len(ids)
			if len(names) < n {
				n = len(names)
			}
			rows := make([][]any, n)
			for i := 0; i < n; i++ {
				rows[i] = []any{ids[i], names[i]}
			}

			forward := NewAccumulator(cols)
			for _, r := range rows {
				forward.Add(r)
			}
			permuted := NewAccumulator(cols)
			for i := n - 1; i >= 0; i-- {
				permuted.Add(rows[i])
			}
			rotated := NewAccumulator(cols)
			for i := 0; i < n; i++ {
				rotated.Add(rows[(i+rotate)%n])
			}
			return forward.Sum() == permuted.Sum() && forward.Sum() == rotated.Sum()
		},
		gen.SliceOf(gen.Int64()),
		gen.SliceOf(gen.AlphaString()),
		gen.IntRange(0, 50),
	))

	properties.TestingRun(t)
}

type windowReader struct {
	rows    [][]any
	fetches int
}

func (w *windowReader) FetchWindow(_ context.Context, _ schema.TableSchema, _ []string, offset, limit int64) ([][]any, error) {
	w.fetches++
	if offset >= int64(len(w.rows)) {
		return nil, nil
	}
	end := offset + limit
	if end > int64(len(w.rows)) {
		end = int64(len(w.rows))
	}
	return w.rows[offset:end], nil
}

// TestClientChecksum verifies paging covers every row once.
func TestClientChecksum(t *testing.T) {
	t.Parallel()

	cols := []schema.ColumnDescriptor{{Name: "id", DataType: "int"}}
	r := &windowReader{}
	want := NewAccumulator(cols)
	for i := 0; i < 25; i++ {
		row := []any{int64(i)}
		r.rows = append(r.rows, row)
		want.Add(row)
	}

	sum, n, err := ClientChecksum(context.Background(), r, schema.TableSchema{}, cols, 10)
	if err != nil {
		t.Fatalf("ClientChecksum() error = %v", err)
	}
	if n != 25 || sum != want.Sum() {
		t.Fatalf("ClientChecksum() = %s, %d, want %s, 25", sum, n, want.Sum())
	}
	if r.fetches != 3 {
		t.Fatalf("fetches = %d, want 3", r.fetches)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := ClientChecksum(ctx, r, schema.TableSchema{}, cols, 10); err == nil {
		t.Fatalf("ClientChecksum(canceled) error = nil, want non-nil")
	}
}
