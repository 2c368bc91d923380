package transfer

import (
	"strings"
	"time"

	"dbclone/internal/schema"
)

// TemporalLayout is the fixed form temporal values take in the row fallback,
// always in UTC. Time-of-day columns use TimeOfDayLayout.
const (
	TemporalLayout  = "2006-01-02 15:04:05"
	TimeOfDayLayout = "15:04:05"
)

// temporalInputs are the string forms accepted for temporal columns.
var temporalInputs = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.9999999 -07:00",
	"2006-01-02 15:04:05.9999999Z07:00",
	"2006-01-02 15:04:05.9999999",
	"2006-01-02T15:04:05.9999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"15:04:05.9999999",
	"15:04:05",
}

// CoerceParam prepares one value for a parameterized single-row insert into
// column c:
//
//   - nil stays nil (SQL NULL).
//   - temporal columns get a UTC TemporalLayout string (TimeOfDayLayout for
//     time columns); strings that do not parse as a date or time become nil
//     rather than failing the row.
//   - booleans become 1/0.
//   - everything else is passed to the parameter binder as is.
func CoerceParam(v any, c schema.ColumnDescriptor) any {
	if v == nil {
		return nil
	}
	if schema.IsTemporal(c.DataType) {
		switch x := v.(type) {
		case time.Time:
			return formatTemporal(x, c.DataType)
		case string:
			t, ok := parseTemporal(x)
			if !ok {
				return nil
			}
			return formatTemporal(t, c.DataType)
		case []byte:
			t, ok := parseTemporal(string(x))
			if !ok {
				return nil
			}
			return formatTemporal(t, c.DataType)
		}
		return v
	}
	if b, ok := v.(bool); ok {
		if b {
			return int64(1)
		}
		return int64(0)
	}
	return v
}

func parseTemporal(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range temporalInputs {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func formatTemporal(t time.Time, dataType string) string {
	t = t.UTC()
	switch strings.ToLower(strings.TrimSpace(dataType)) {
	case "time", "time without time zone", "time with time zone":
		return t.Format(TimeOfDayLayout)
	}
	return t.Format(TemporalLayout)
}
