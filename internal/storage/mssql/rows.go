package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	mssql "github.com/microsoft/go-mssqldb"

	"dbclone/internal/schema"
)

// CountRows runs SELECT COUNT_BIG(*) over t.
func (e *Endpoint) CountRows(ctx context.Context, t schema.TableIdentity) (int64, error) {
	if err := schema.ValidateTable(t); err != nil {
		return 0, err
	}
	ctx, cancel := e.opContext(ctx)
	defer cancel()

	var n int64
	if err := e.db.QueryRowContext(ctx, "SELECT COUNT_BIG(*) FROM "+msTable(t)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", t, err)
	}
	return n, nil
}

// FetchWindow reads one OFFSET/FETCH window of s in paging order.
func (e *Endpoint) FetchWindow(ctx context.Context, s schema.TableSchema, columns []string, offset, limit int64) ([][]any, error) {
	q, err := windowSQL(s, columns)
	if err != nil {
		return nil, err
	}
	ctx, cancel := e.opContext(ctx)
	defer cancel()

	rows, err := e.db.QueryContext(ctx, q, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch %s offset=%d: %w", s.Table, offset, err)
	}
	defer rows.Close()

	types := columnTypes(s, columns)
	out := make([][]any, 0, limit)
	for rows.Next() {
		vals := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", s.Table, err)
		}
		for i := range vals {
			vals[i] = fromDriver(vals[i], types[i])
		}
		out = append(out, vals)
	}
	return out, rows.Err()
}

// CopyFrom loads rows into s.Table in one transaction. NULLs are not
// replaced by column defaults. Bulk copy cannot keep identity values, so when
// an identity column is written the rows go in as multi-row INSERTs under
// IDENTITY_INSERT instead.
func (e *Endpoint) CopyFrom(ctx context.Context, s schema.TableSchema, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if err := schema.ValidateTable(s.Table); err != nil {
		return 0, err
	}
	ctx, cancel := e.opContext(ctx)
	defer cancel()

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}

	var n int64
	switch loadMethodFor(s, columns) {
	case loadIdentityInsert:
		n, err = insertBatches(ctx, tx, s, columns, rows)
	default:
		n, err = bulkCopy(ctx, tx, s.Table, columns, rows)
	}
	if err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return n, nil
}

type loadMethod int

const (
	loadBulkCopy loadMethod = iota
	loadIdentityInsert
)

// loadMethodFor picks how CopyFrom writes columns of s.
func loadMethodFor(s schema.TableSchema, columns []string) loadMethod {
	for _, c := range columns {
		if col, ok := s.Column(c); ok && col.Identity {
			return loadIdentityInsert
		}
	}
	return loadBulkCopy
}

func bulkCopy(ctx context.Context, tx *sql.Tx, t schema.TableIdentity, columns []string, rows [][]any) (int64, error) {
	stmt, err := tx.PrepareContext(ctx, mssql.CopyIn(msTable(t), mssql.BulkOptions{KeepNulls: true}, columns...))
	if err != nil {
		return 0, fmt.Errorf("prepare bulk: %w", err)
	}
	for i := range rows {
		if _, err := stmt.ExecContext(ctx, rows[i]...); err != nil {
			_ = stmt.Close()
			return 0, fmt.Errorf("bulk row %d: %w", i, err)
		}
	}
	res, err := stmt.ExecContext(ctx)
	if cerr := stmt.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		return 0, fmt.Errorf("bulk finalize: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// SQL Server accepts at most 2100 parameters per request and 1000 row
// constructors per VALUES clause.
const (
	maxParams    = 2100
	maxValueRows = 1000
)

// batchRows is how many rows of ncols columns fit in one INSERT.
func batchRows(ncols int) int {
	n := (maxParams - 1) / ncols
	if n > maxValueRows {
		n = maxValueRows
	}
	if n < 1 {
		n = 1
	}
	return n
}

func insertBatches(ctx context.Context, tx *sql.Tx, s schema.TableSchema, columns []string, rows [][]any) (int64, error) {
	size := batchRows(len(columns))
	var total int64
	for start := 0; start < len(rows); start += size {
		end := min(start+size, len(rows))
		q, err := insertBatchSQL(s, columns, end-start)
		if err != nil {
			return 0, err
		}
		args := make([]any, 0, (end-start)*len(columns))
		for _, r := range rows[start:end] {
			args = append(args, r...)
		}
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return 0, fmt.Errorf("identity insert rows %d-%d: %w", start, end-1, err)
		}
		total += int64(end - start)
	}
	return total, nil
}

// InsertRow inserts one row with @pN parameters. When an identity column is
// written, the insert runs in the same batch as SET IDENTITY_INSERT ON/OFF.
func (e *Endpoint) InsertRow(ctx context.Context, s schema.TableSchema, columns []string, values []any) error {
	q, err := insertSQL(s, columns)
	if err != nil {
		return err
	}
	ctx, cancel := e.opContext(ctx)
	defer cancel()

	if _, err := e.db.ExecContext(ctx, q, values...); err != nil {
		return fmt.Errorf("insert %s: %w", s.Table, err)
	}
	return nil
}

// windowSQL renders the paged SELECT for columns of s.
func windowSQL(s schema.TableSchema, columns []string) (string, error) {
	if err := schema.ValidateTable(s.Table); err != nil {
		return "", err
	}
	if len(columns) == 0 {
		return "", fmt.Errorf("mssql: fetch from %s with no columns", s.Table)
	}
	cols := make([]string, len(columns))
	for i, c := range columns {
		if err := schema.ValidateIdentifier(c); err != nil {
			return "", err
		}
		cols[i] = msIdent(c)
	}
	return fmt.Sprintf("SELECT %s FROM %s ORDER BY %s OFFSET @p1 ROWS FETCH NEXT @p2 ROWS ONLY",
		strings.Join(cols, ", "), msTable(s.Table), orderBy(s)), nil
}

// orderBy is the stable paging order: the primary key when present,
// otherwise (SELECT NULL), which is only stable on a static table.
func orderBy(s schema.TableSchema) string {
	if len(s.PrimaryKey) == 0 {
		return "(SELECT NULL)"
	}
	return strings.Join(mapIdent(s.PrimaryKey), ", ")
}

func insertSQL(s schema.TableSchema, columns []string) (string, error) {
	return insertBatchSQL(s, columns, 1)
}

// insertBatchSQL renders an INSERT of nrows row constructors numbered
// @p1..@pN row by row. Writing an identity column wraps it in
// SET IDENTITY_INSERT ON/OFF.
func insertBatchSQL(s schema.TableSchema, columns []string, nrows int) (string, error) {
	if err := schema.ValidateTable(s.Table); err != nil {
		return "", err
	}
	if len(columns) == 0 {
		return "", fmt.Errorf("mssql: insert into %s with no columns", s.Table)
	}
	if nrows < 1 {
		return "", fmt.Errorf("mssql: insert into %s with no rows", s.Table)
	}
	for _, c := range columns {
		if err := schema.ValidateIdentifier(c); err != nil {
			return "", err
		}
	}
	tuples := make([]string, nrows)
	ph := make([]string, len(columns))
	for r := range tuples {
		for i := range columns {
			ph[i] = fmt.Sprintf("@p%d", r*len(columns)+i+1)
		}
		tuples[r] = "(" + strings.Join(ph, ",") + ")"
	}
	t := msTable(s.Table)
	ins := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s;", t, strings.Join(mapIdent(columns), ","), strings.Join(tuples, ","))
	if loadMethodFor(s, columns) != loadIdentityInsert {
		return ins, nil
	}
	return fmt.Sprintf("SET IDENTITY_INSERT %s ON; %s SET IDENTITY_INSERT %s OFF;", t, ins, t), nil
}

// columnTypes returns the lower-case data type of each requested column.
func columnTypes(s schema.TableSchema, columns []string) []string {
	out := make([]string, len(columns))
	for i, name := range columns {
		if c, ok := s.Column(name); ok {
			out[i] = strings.ToLower(c.DataType)
		}
	}
	return out
}

// fromDriver converts go-mssqldb scan results into portable values:
// decimal and money arrive as ASCII digits, uniqueidentifier as raw bytes in
// wire order.
func fromDriver(v any, dataType string) any {
	b, ok := v.([]byte)
	if !ok {
		return v
	}
	switch dataType {
	case "decimal", "numeric", "money", "smallmoney":
		return string(b)
	case "uniqueidentifier":
		var u mssql.UniqueIdentifier
		if err := u.Scan(b); err != nil {
			return b
		}
		return u.String()
	}
	return b
}

// msIdent safely quotes a SQL Server identifier using [brackets], escaping ].
func msIdent(id string) string { return `[` + strings.ReplaceAll(id, `]`, `]]`) + `]` }

// msTable quotes a table identity as [schema].[name].
func msTable(t schema.TableIdentity) string {
	if t.Schema == "" {
		return msIdent(t.Name)
	}
	return msIdent(t.Schema) + "." + msIdent(t.Name)
}

// mapIdent maps a list of column names to their bracket-quoted forms.
func mapIdent(cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = msIdent(c)
	}
	return out
}
