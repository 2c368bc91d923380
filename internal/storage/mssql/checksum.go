package mssql

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"dbclone/internal/schema"
)

// Checksum sums the first four bytes of an MD5 over each row's canonical
// text. Addition is commutative, so row order does not matter.
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

	var sum int64
	if err := e.db.QueryRowContext(ctx, q).Scan(&sum); err != nil {
		return "", false, fmt.Errorf("checksum %s: %w", s.Table, err)
	}
	return strconv.FormatInt(sum, 10), true, nil
}

// checksumSQL renders the aggregate; "" when the table has no checksum
// columns.
//
//	SELECT ISNULL(SUM(CAST(CAST(HASHBYTES('MD5', <a> + '|' + <b>) AS BINARY(4)) AS BIGINT)), 0) FROM [s].[t]
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
	row := strings.Join(parts, " + N'|' + ")
	return fmt.Sprintf("SELECT ISNULL(SUM(CAST(CAST(HASHBYTES('MD5', %s) AS BINARY(4)) AS BIGINT)), 0) FROM %s",
		row, msTable(s.Table)), nil
}

// canonicalExpr renders one column as text: temporal values with style 121
// truncated to milliseconds, binary as hex, everything else cast to
// NVARCHAR(MAX); NULL becomes the literal NULL.
func canonicalExpr(c schema.ColumnDescriptor) string {
	col := msIdent(c.Name)
	var expr string
	switch {
	case schema.IsTemporal(c.DataType):
		expr = fmt.Sprintf("CONVERT(NVARCHAR(23), %s, 121)", col)
	case schema.IsBinary(c.DataType):
		expr = fmt.Sprintf("CONVERT(NVARCHAR(MAX), CAST(%s AS VARBINARY(MAX)), 2)", col)
	case strings.EqualFold(c.DataType, "text"):
		expr = fmt.Sprintf("CAST(CAST(%s AS VARCHAR(MAX)) AS NVARCHAR(MAX))", col)
	default:
		expr = fmt.Sprintf("CAST(%s AS NVARCHAR(MAX))", col)
	}
	return fmt.Sprintf("ISNULL(%s, N'NULL')", expr)
}
