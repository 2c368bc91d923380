package transfer

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"dbclone/internal/schema"
	"dbclone/internal/storage"
)

// Literal renders v as an SQL literal for column c in dialect d. It is used
// only for the rejects log, where parameter binding is bypassed.
func Literal(v any, c schema.ColumnDescriptor, d storage.Dialect) string {
	if schema.IsTemporal(c.DataType) {
		v = CoerceParam(v, c)
	}
	switch x := v.(type) {
	case nil:
		return "NULL"
	case string:
		return quote(x)
	case bool:
		return d.BoolLiteral(x, c.DataType)
	case []byte:
		if schema.IsBinary(c.DataType) || !isText(x) {
			return d.BinaryLiteral(x)
		}
		return quote(string(x))
	case time.Time:
		return quote(x.UTC().Format(TemporalLayout))
	case int64:
		return strconv.FormatInt(x, 10)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int:
		return strconv.Itoa(x)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32)
	}
	return quote(fmt.Sprint(v))
}

// InsertStatement renders one row as a literal INSERT terminated by ";".
func InsertStatement(d storage.Dialect, s schema.TableSchema, columns []string, values []any) (string, error) {
	if err := schema.ValidateTable(s.Table); err != nil {
		return "", err
	}
	if len(columns) != len(values) {
		return "", fmt.Errorf("insert literal %s: %d columns, %d values", s.Table, len(columns), len(values))
	}
	cols := make([]string, len(columns))
	lits := make([]string, len(values))
	for i, name := range columns {
		if err := schema.ValidateIdentifier(name); err != nil {
			return "", err
		}
		cols[i] = d.QuoteIdent(name)
		c, _ := s.Column(name)
		lits[i] = Literal(values[i], c, d)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s);",
		d.QuoteTable(s.Table), strings.Join(cols, ", "), strings.Join(lits, ", ")), nil
}

// quote wraps s in single quotes, doubling embedded quotes.
func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func isText(b []byte) bool {
	for _, c := range b {
		if c < 0x20 && c != '\t' && c != '\n' && c != '\r' {
			return false
		}
	}
	return true
}
