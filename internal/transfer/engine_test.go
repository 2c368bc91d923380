package transfer

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"dbclone/internal/retry"
	"dbclone/internal/schema"
	"dbclone/internal/storage"
	msddl "dbclone/internal/storage/mssql/ddl"
)

// memSource serves rows from memory in slice order.
type memSource struct {
	rows     [][]any
	countErr error
	fetchErr error
	fetches  int
}

func (m *memSource) CountRows(context.Context, schema.TableIdentity) (int64, error) {
	if m.countErr != nil {
		return 0, m.countErr
	}
	return int64(len(m.rows)), nil
}

func (m *memSource) FetchWindow(_ context.Context, _ schema.TableSchema, _ []string, offset, limit int64) ([][]any, error) {
	m.fetches++
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	if offset >= int64(len(m.rows)) {
		return nil, nil
	}
	end := offset + limit
	if end > int64(len(m.rows)) {
		end = int64(len(m.rows))
	}
	return m.rows[offset:end], nil
}

// memTarget records bulk and single-row writes.
type memTarget struct {
	copyCalls   int
	copyErr     func(call int) error
	rowErr      func(values []any) error
	bulkRows    int64
	insertCalls int
	inserted    [][]any
}

func (m *memTarget) CopyFrom(_ context.Context, _ schema.TableSchema, _ []string, rows [][]any) (int64, error) {
	m.copyCalls++
	if m.copyErr != nil {
		if err := m.copyErr(m.copyCalls); err != nil {
			return 0, err
		}
	}
	m.bulkRows += int64(len(rows))
	return int64(len(rows)), nil
}

func (m *memTarget) InsertRow(_ context.Context, _ schema.TableSchema, _ []string, values []any) error {
	m.insertCalls++
	if m.rowErr != nil {
		if err := m.rowErr(values); err != nil {
			return err
		}
	}
	m.inserted = append(m.inserted, values)
	return nil
}

func (m *memTarget) IsTransient(err error) bool { return errors.Is(err, errTransient) }

func (m *memTarget) Dialect() storage.Dialect { return msddl.Dialect{} }

var (
	errTransient = errors.New("lock request time out")
	errBadValue  = errors.New("conversion failed")
)

func ordersSchema() schema.TableSchema {
	return schema.TableSchema{
		Table: schema.TableIdentity{Schema: "dbo", Name: "Orders"},
		Columns: []schema.ColumnDescriptor{
			{Name: "id", DataType: "int"},
			{Name: "note", DataType: "nvarchar", CharLength: schema.IntPtr(50), Nullable: true},
		},
		PrimaryKey: []string{"id"},
	}
}

func genRows(n int) [][]any {
	rows := make([][]any, n)
	for i := range rows {
		rows[i] = []any{int64(i), "row"}
	}
	return rows
}

// fakeClock advances one second per reading.
func fakeClock() func() time.Time {
	t := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func noSleep(context.Context, time.Duration) error { return nil }

// TestEngine_Orders250k verifies 250,000 rows at batch size 10,000 take 25
// bulk loads and the final report shows 250,000/250,000 at 100.0%.
func TestEngine_Orders250k(t *testing.T) {
	t.Parallel()

	src := &memSource{rows: genRows(250000)}
	dst := &memTarget{}
	var reports []Progress
	e := New(src, dst, Options{
		BatchSize:  10000,
		Now:        fakeClock(),
		OnProgress: func(p Progress) { reports = append(reports, p) },
	})

	s := ordersSchema()
	res, err := e.Table(context.Background(), s, s)
	if err != nil {
		t.Fatalf("Table() error = %v", err)
	}
	if dst.copyCalls != 25 {
		t.Fatalf("CopyFrom calls = %d, want 25", dst.copyCalls)
	}
	if res.Transferred != 250000 || res.Total != 250000 || !res.Complete() {
		t.Fatalf("Table() = %+v, want 250000/250000 complete", res)
	}
	if dst.bulkRows != 250000 {
		t.Fatalf("target rows = %d, want 250000", dst.bulkRows)
	}
	if len(reports) != 25 {
		t.Fatalf("progress reports = %d, want 25", len(reports))
	}
	final := reports[len(reports)-1]
	if final.Percent() != 100.0 {
		t.Fatalf("final Percent() = %v, want 100.0", final.Percent())
	}
	if got := final.String(); !strings.Contains(got, "rows=250,000/250,000 pct=100.0") {
		t.Fatalf("final progress = %q, want rows=250,000/250,000 pct=100.0", got)
	}
	if final.ETA() != 0 {
		t.Fatalf("final ETA() = %v, want 0", final.ETA())
	}
}

// TestEngine_EmptyTable verifies an empty table is a successful no-op.
func TestEngine_EmptyTable(t *testing.T) {
	t.Parallel()

	src := &memSource{}
	dst := &memTarget{}
	s := ordersSchema()
	res, err := New(src, dst, Options{}).Table(context.Background(), s, s)
	if err != nil {
		t.Fatalf("Table() error = %v", err)
	}
	if res.Transferred != 0 || res.Total != 0 || !res.Complete() {
		t.Fatalf("Table() = %+v, want zero complete result", res)
	}
	if src.fetches != 0 || dst.copyCalls != 0 {
		t.Fatalf("fetches=%d copies=%d, want none", src.fetches, dst.copyCalls)
	}
}

// TestEngine_AllBatchesFallBack verifies every failed bulk window goes row by
// row and the committed total is exactly the sum of row successes.
func TestEngine_AllBatchesFallBack(t *testing.T) {
	t.Parallel()

	src := &memSource{rows: genRows(95)}
	dst := &memTarget{
		copyErr: func(int) error { return errBadValue },
		rowErr: func(v []any) error {
			if v[0].(int64)%10 == 3 {
				return errBadValue
			}
			return nil
		},
	}
	var rejects bytes.Buffer
	s := ordersSchema()
	res, err := New(src, dst, Options{BatchSize: 20, Rejects: &rejects, Retry: retry.Policy{Sleep: noSleep}}).Table(context.Background(), s, s)
	if err != nil {
		t.Fatalf("Table() error = %v", err)
	}
	if dst.copyCalls != 5 {
		t.Fatalf("CopyFrom calls = %d, want 5 (no retries on non-transient errors)", dst.copyCalls)
	}
	if res.FallbackBatches != 5 {
		t.Fatalf("FallbackBatches = %d, want 5", res.FallbackBatches)
	}
	if res.Failed != 10 || res.Transferred != 85 {
		t.Fatalf("Table() transferred=%d failed=%d, want 85 and 10", res.Transferred, res.Failed)
	}
	if int64(len(dst.inserted)) != res.Transferred {
		t.Fatalf("inserted rows = %d, want %d", len(dst.inserted), res.Transferred)
	}
	if res.Complete() {
		t.Fatalf("Complete() = true with failed rows")
	}
	if got := strings.Count(rejects.String(), "INSERT INTO [dbo].[Orders] ([id], [note]) VALUES ("); got != 10 {
		t.Fatalf("rejects lines = %d, want 10:\n%s", got, rejects.String())
	}
	if !strings.Contains(rejects.String(), "VALUES (13, 'row');") {
		t.Fatalf("rejects = %q, want the row with id 13", rejects.String())
	}
}

// TestEngine_TransientBulkRetried verifies transient bulk errors are
// retried before any fallback.
func TestEngine_TransientBulkRetried(t *testing.T) {
	t.Parallel()

	src := &memSource{rows: genRows(10)}
	dst := &memTarget{copyErr: func(call int) error {
		if call == 1 {
			return errTransient
		}
		return nil
	}}
	s := ordersSchema()
	res, err := New(src, dst, Options{BatchSize: 10, Retry: retry.Policy{Sleep: noSleep}}).Table(context.Background(), s, s)
	if err != nil {
		t.Fatalf("Table() error = %v", err)
	}
	if dst.copyCalls != 2 || dst.insertCalls != 0 {
		t.Fatalf("copies=%d inserts=%d, want 2 and 0", dst.copyCalls, dst.insertCalls)
	}
	if res.Transferred != 10 {
		t.Fatalf("Transferred = %d, want 10", res.Transferred)
	}
}

// TestEngine_FatalErrors verifies count and fetch failures stop the table.
func TestEngine_FatalErrors(t *testing.T) {
	t.Parallel()

	s := ordersSchema()
	tests := []struct {
		name string
		src  *memSource
		want string
	}{
		{name: "count", src: &memSource{countErr: errors.New("login failed")}, want: "count dbo.Orders"},
		{name: "fetch", src: &memSource{rows: genRows(5), fetchErr: errors.New("connection reset")}, want: "fetch dbo.Orders offset=0"},
	}

	for _, tt := range tests {
		tt := tt

		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := New(tt.src, &memTarget{}, Options{}).Table(context.Background(), s, s)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Table() error = %v, want it to contain %q", err, tt.want)
			}
		})
	}
}

// TestEngine_CanceledBetweenWindows verifies cancellation stops before the
// next window without touching committed ones.
func TestEngine_CanceledBetweenWindows(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	src := &memSource{rows: genRows(30)}
	dst := &memTarget{}
	s := ordersSchema()
	e := New(src, dst, Options{BatchSize: 10, OnProgress: func(p Progress) {
		if p.Batch == 1 {
			cancel()
		}
	}})

	res, err := e.Table(ctx, s, s)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Table() error = %v, want context.Canceled", err)
	}
	if dst.copyCalls != 1 || res.Transferred != 10 {
		t.Fatalf("copies=%d transferred=%d, want 1 and 10", dst.copyCalls, res.Transferred)
	}
}

// TestColumns verifies only columns writable on both sides are moved.
func TestColumns(t *testing.T) {
	t.Parallel()

	src := schema.TableSchema{Columns: []schema.ColumnDescriptor{
		{Name: "id", DataType: "int"},
		{Name: "RV", DataType: "timestamp"},
		{Name: "Note", DataType: "nvarchar"},
		{Name: "gone", DataType: "int"},
	}}
	dst := schema.TableSchema{Columns: []schema.ColumnDescriptor{
		{Name: "id", DataType: "integer"},
		{Name: "note", DataType: "text"},
		{Name: "rv", DataType: "bytea"},
		{Name: "total", DataType: "integer", Computed: true},
	}}

	got := Columns(src, dst)
	want := []string{"id", "note"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("Columns() = %v, want %v", got, want)
	}
}

// TestProgress verifies throughput and ETA arithmetic.
func TestProgress(t *testing.T) {
	t.Parallel()

	p := Progress{Transferred: 1000, Total: 5000, Elapsed: 10 * time.Second}
	if got := p.RowsPerSec(); got != 100 {
		t.Fatalf("RowsPerSec() = %v, want 100", got)
	}
	if got := p.ETA(); got != 40*time.Second {
		t.Fatalf("ETA() = %v, want 40s", got)
	}
	if got := p.Percent(); got != 20 {
		t.Fatalf("Percent() = %v, want 20", got)
	}
	if got := (Progress{}).Percent(); got != 100 {
		t.Fatalf("empty Percent() = %v, want 100", got)
	}
}
