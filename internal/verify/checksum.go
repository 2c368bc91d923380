package verify

import (
	"context"
	"database/sql/driver"
	"encoding/hex"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/zeebo/xxh3"

	"dbclone/internal/schema"
)

// CanonicalTimeLayout is the fixed-width form of temporal values.
const CanonicalTimeLayout = "2006-01-02 15:04:05.000"

// Accumulator is an order-independent checksum: the sum modulo 2^64 of the
// xxh3 hash of each row's canonical string.
type Accumulator struct {
	cols []schema.ColumnDescriptor
	sum  uint64
	rows int64
	buf  strings.Builder
}

// NewAccumulator checksums rows aligned to cols.
func NewAccumulator(cols []schema.ColumnDescriptor) *Accumulator {
	return &Accumulator{cols: cols}
}

// Add folds one row into the checksum.
func (a *Accumulator) Add(row []any) {
	a.buf.Reset()
	for i, v := range row {
		if i > 0 {
			a.buf.WriteByte('|')
		}
		var c schema.ColumnDescriptor
		if i < len(a.cols) {
			c = a.cols[i]
		}
		a.buf.WriteString(Canonical(v, c))
	}
	a.sum += xxh3.HashString(a.buf.String())
	a.rows++
}

// Rows is the number of rows added.
func (a *Accumulator) Rows() int64 { return a.rows }

// Sum renders the checksum as a decimal string.
func (a *Accumulator) Sum() string { return strconv.FormatUint(a.sum, 10) }

// Canonical renders one value in the engine-neutral text form used by the
// client checksum: NULL for nil, fixed-width UTC timestamps for temporal
// columns, 1/0 for booleans, lower-case hex for binary, plain text for
// everything else.
func Canonical(v any, c schema.ColumnDescriptor) string {
	if dv, ok := v.(driver.Valuer); ok {
		if x, err := dv.Value(); err == nil {
			v = x
		}
	}
	if v == nil {
		return "NULL"
	}

	typ := strings.ToLower(c.DataType)
	if schema.IsTemporal(typ) {
		if s, ok := canonicalTime(v, typ); ok {
			return s
		}
	}

	switch x := v.(type) {
	case bool:
		if x {
			return "1"
		}
		return "0"
	case []byte:
		if schema.IsBinary(typ) || schema.IsRowVersionType(typ) {
			return hex.EncodeToString(x)
		}
		return canonicalText(string(x), typ)
	case string:
		return canonicalText(x, typ)
	case time.Time:
		return x.UTC().Format(CanonicalTimeLayout)
	case int64:
		return strconv.FormatInt(x, 10)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int16:
		return strconv.FormatInt(int64(x), 10)
	case int8:
		return strconv.FormatInt(int64(x), 10)
	case int:
		return strconv.Itoa(x)
	case uint8:
		return strconv.FormatUint(uint64(x), 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32)
	case *big.Int:
		return x.String()
	}
	return fmt.Sprint(v)
}

func canonicalText(s, typ string) string {
	switch typ {
	case "uniqueidentifier", "uuid":
		return strings.ToLower(s)
	case "bit", "boolean", "bool":
		switch strings.ToLower(s) {
		case "true", "t":
			return "1"
		case "false", "f":
			return "0"
		}
	}
	return s
}

// canonicalTime formats temporal values; time-of-day types drop the date.
func canonicalTime(v any, typ string) (string, bool) {
	var t time.Time
	switch x := v.(type) {
	case time.Time:
		t = x
	case string:
		p, ok := parseTime(x)
		if !ok {
			return "", false
		}
		t = p
	case []byte:
		p, ok := parseTime(string(x))
		if !ok {
			return "", false
		}
		t = p
	default:
		return "", false
	}
	t = t.UTC()
	if strings.HasPrefix(typ, "time") && !strings.HasPrefix(typ, "timestamp") {
		return t.Format("15:04:05.000"), true
	}
	return t.Format(CanonicalTimeLayout), true
}

var timeInputs = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999 -07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
	"15:04:05.999999999",
}

func parseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range timeInputs {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// RowReader is what ClientChecksum pages through.
type RowReader interface {
	FetchWindow(ctx context.Context, s schema.TableSchema, columns []string, offset, limit int64) ([][]any, error)
}

// ClientChecksum streams every row of s's columns cols through an
// Accumulator in windows of batch rows.
func ClientChecksum(ctx context.Context, r RowReader, s schema.TableSchema, cols []schema.ColumnDescriptor, batch int64) (string, int64, error) {
	if batch <= 0 {
		batch = 10000
	}
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	acc := NewAccumulator(cols)
	for offset := int64(0); ; offset += batch {
		if err := ctx.Err(); err != nil {
			return "", acc.Rows(), err
		}
		rows, err := r.FetchWindow(ctx, s, names, offset, batch)
		if err != nil {
			return "", acc.Rows(), err
		}
		for _, row := range rows {
			acc.Add(row)
		}
		if int64(len(rows)) < batch {
			break
		}
	}
	return acc.Sum(), acc.Rows(), nil
}
