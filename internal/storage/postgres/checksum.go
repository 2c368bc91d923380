package postgres

import (
	"context"
	"fmt"
	"strings"

	"dbclone/internal/schema"
)

// Checksum sums the first 32 bits of an md5 over each row's canonical text.
func (e *Endpoint) Checksum(ctx context.Context, s schema.TableSchema) (string, bool, error) {
	q, err := checksumSQL(s)
	if err != nil {
		return "", false, err
	}
	if q == "" {
		return "", false, nil
	}
	ctx, cancel := e.opContext(ctx)
	defer cancel()

	var sum string
	if err := e.pool.QueryRow(ctx, q).Scan(&sum); err != nil {
		return "", false, fmt.Errorf("checksum %s: %w", s.Table, err)
	}
	return sum, true, nil
}

// checksumSQL renders the aggregate; "" when the table has no checksum
// columns.
func checksumSQL(s schema.TableSchema) (string, error) {
	if err := schema.ValidateTable(s.Table); err != nil {
		return "", err
	}
	cols := s.ChecksumColumns()
	if len(cols) == 0 {
		return "", nil
	}
	parts := make([]string, len(cols))
	for i, c := range cols {
		if err := schema.ValidateIdentifier(c.Name); err != nil {
			return "", err
		}
		parts[i] = canonicalExpr(c)
	}
	row := strings.Join(parts, " || '|' || ")
	return fmt.Sprintf("SELECT COALESCE(SUM(('x' || substr(md5(%s), 1, 8))::bit(32)::bigint), 0)::text FROM %s",
		row, pgTable(s.Table)), nil
}

// canonicalExpr renders one column as text: temporal values to
// milliseconds, bytea as hex, everything else ::text; NULL becomes 'NULL'.
func canonicalExpr(c schema.ColumnDescriptor) string {
	col := pgIdent(c.Name)
	var expr string
	switch {
	case schema.IsTemporal(c.DataType):
		expr = fmt.Sprintf("to_char(%s, 'YYYY-MM-DD HH24:MI:SS.MS')", col)
	case schema.IsBinary(c.DataType):
		expr = fmt.Sprintf("encode(%s, 'hex')", col)
	default:
		expr = col + "::text"
	}
	return fmt.Sprintf("COALESCE(%s, 'NULL')", expr)
}
