package postgres

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"dbclone/internal/schema"
)

// CountRows runs SELECT count(*) over t.
func (e *Endpoint) CountRows(ctx context.Context, t schema.TableIdentity) (int64, error) {
	if err := schema.ValidateTable(t); err != nil {
		return 0, err
	}
	ctx, cancel := e.opContext(ctx)
	defer cancel()

	var n int64
	if err := e.pool.QueryRow(ctx, "SELECT count(*) FROM "+pgTable(t)).Scan(&n); err != nil {
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

	rows, err := e.pool.Query(ctx, q, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch %s offset=%d: %w", s.Table, offset, err)
	}
	out, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) ([]any, error) {
		vals, err := r.Values()
		if err != nil {
			return nil, err
		}
		for i := range vals {
			vals[i] = fromDriver(vals[i])
		}
		return vals, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s offset=%d: %w", s.Table, offset, err)
	}
	return out, nil
}

// CopyFrom bulk-loads rows with COPY. Values bound for numeric and uuid
// columns are converted from their portable string forms first.
func (e *Endpoint) CopyFrom(ctx context.Context, s schema.TableSchema, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if err := schema.ValidateTable(s.Table); err != nil {
		return 0, err
	}
	ctx, cancel := e.opContext(ctx)
	defer cancel()

	types := columnTypes(s, columns)
	converted := make([][]any, len(rows))
	for i, row := range rows {
		out := make([]any, len(row))
		for j, v := range row {
			out[j] = toCopyVal(v, types[j])
		}
		converted[i] = out
	}

	n, err := e.pool.CopyFrom(ctx, pgx.Identifier{s.Table.Schema, s.Table.Name}, columns, pgx.CopyFromRows(converted))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Detail != "" {
			return 0, fmt.Errorf("copy into %s: %s (%s): %w", s.Table, pgErr.Detail, pgErr.SQLState(), err)
		}
		return 0, fmt.Errorf("copy into %s: %w", s.Table, err)
	}
	return n, nil
}

// InsertRow inserts one row with $N parameters. OVERRIDING SYSTEM VALUE
// lets source values into GENERATED ALWAYS identity columns.
func (e *Endpoint) InsertRow(ctx context.Context, s schema.TableSchema, columns []string, values []any) error {
	q, err := insertSQL(s, columns)
	if err != nil {
		return err
	}
	ctx, cancel := e.opContext(ctx)
	defer cancel()

	types := columnTypes(s, columns)
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = toCopyVal(v, types[i])
	}
	if _, err := e.pool.Exec(ctx, q, args...); err != nil {
		return fmt.Errorf("insert %s: %w", s.Table, err)
	}
	return nil
}

func windowSQL(s schema.TableSchema, columns []string) (string, error) {
	if err := schema.ValidateTable(s.Table); err != nil {
		return "", err
	}
	if len(columns) == 0 {
		return "", fmt.Errorf("postgres: fetch from %s with no columns", s.Table)
	}
	cols := make([]string, len(columns))
	for i, c := range columns {
		if err := schema.ValidateIdentifier(c); err != nil {
			return "", err
		}
		cols[i] = pgIdent(c)
	}
	return fmt.Sprintf("SELECT %s FROM %s ORDER BY %s OFFSET $1 ROWS FETCH NEXT $2 ROWS ONLY",
		strings.Join(cols, ", "), pgTable(s.Table), orderBy(s)), nil
}

// orderBy is the stable paging order: the primary key when present,
// otherwise the physical row location. Column ordinals would fail on types
// without a btree ordering (json, xml, point).
func orderBy(s schema.TableSchema) string {
	if len(s.PrimaryKey) > 0 {
		return strings.Join(mapIdent(s.PrimaryKey), ", ")
	}
	return "tableoid, ctid"
}

func insertSQL(s schema.TableSchema, columns []string) (string, error) {
	if err := schema.ValidateTable(s.Table); err != nil {
		return "", err
	}
	if len(columns) == 0 {
		return "", fmt.Errorf("postgres: insert into %s with no columns", s.Table)
	}
	ph := make([]string, len(columns))
	identity := false
	for i, c := range columns {
		if err := schema.ValidateIdentifier(c); err != nil {
			return "", err
		}
		ph[i] = fmt.Sprintf("$%d", i+1)
		if col, ok := s.Column(c); ok && col.Identity {
			identity = true
		}
	}
	override := ""
	if identity {
		override = " OVERRIDING SYSTEM VALUE"
	}
	return fmt.Sprintf("INSERT INTO %s (%s)%s VALUES (%s)",
		pgTable(s.Table), strings.Join(mapIdent(columns), ","), override, strings.Join(ph, ",")), nil
}

func columnTypes(s schema.TableSchema, columns []string) []string {
	out := make([]string, len(columns))
	for i, name := range columns {
		if c, ok := s.Column(name); ok {
			out[i] = strings.ToLower(c.DataType)
		}
	}
	return out
}

// fromDriver converts pgx decoded values into portable forms: uuids as
// strings, json documents re-encoded as text, pgtype values (numeric,
// interval, time) through their driver.Valuer.
func fromDriver(v any) any {
	switch x := v.(type) {
	case [16]byte:
		return uuid.UUID(x).String()
	case map[string]any, []any:
		b, err := json.Marshal(x)
		if err != nil {
			return v
		}
		return string(b)
	case driver.Valuer:
		dv, err := x.Value()
		if err != nil {
			return v
		}
		return dv
	}
	return v
}

// toCopyVal prepares a portable value for a Postgres column of dataType.
func toCopyVal(v any, dataType string) any {
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		switch dataType {
		case "numeric", "decimal":
			var n pgtype.Numeric
			if err := n.Scan(x); err == nil {
				return n
			}
		case "uuid":
			if u, err := uuid.Parse(x); err == nil {
				return [16]byte(u)
			}
		}
	case bool:
		switch dataType {
		case "smallint", "integer", "bigint":
			if x {
				return int64(1)
			}
			return int64(0)
		}
	case int64:
		if dataType == "boolean" {
			return x != 0
		}
	}
	return v
}

// pgIdent double-quotes an identifier, doubling embedded quotes.
func pgIdent(id string) string { return `"` + strings.ReplaceAll(id, `"`, `""`) + `"` }

func pgTable(t schema.TableIdentity) string {
	if t.Schema == "" {
		return pgIdent(t.Name)
	}
	return pgIdent(t.Schema) + "." + pgIdent(t.Name)
}

func mapIdent(cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = pgIdent(c)
	}
	return out
}
