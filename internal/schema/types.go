package schema

import (
	"regexp"
	"strings"
)

// Type families used by coercion, materialization and checksums. Names are
// matched case-insensitively against INFORMATION_SCHEMA.COLUMNS.DATA_TYPE as
// reported by SQL Server and Postgres.

var temporalTypes = map[string]struct{}{
	"date":                        {},
	"datetime":                    {},
	"datetime2":                   {},
	"smalldatetime":               {},
	"datetimeoffset":              {},
	"time":                        {},
	"timestamp without time zone": {},
	"timestamp with time zone":    {},
	"time without time zone":      {},
	"time with time zone":         {},
	"timestamptz":                 {},
}

var binaryTypes = map[string]struct{}{
	"binary":    {},
	"varbinary": {},
	"image":     {},
	"bytea":     {},
}

var booleanTypes = map[string]struct{}{
	"bit":     {},
	"boolean": {},
	"bool":    {},
}

var approximateTypes = map[string]struct{}{
	"float":            {},
	"real":             {},
	"double precision": {},
	"float4":           {},
	"float8":           {},
}

var characterTypes = map[string]struct{}{
	"char":              {},
	"varchar":           {},
	"nchar":             {},
	"nvarchar":          {},
	"text":              {},
	"ntext":             {},
	"character":         {},
	"character varying": {},
}

func norm(dataType string) string { return strings.ToLower(strings.TrimSpace(dataType)) }

// IsTemporal reports whether dataType is in the date/time family.
// SQL Server's "timestamp" is a row version, not a temporal type.
func IsTemporal(dataType string) bool {
	_, ok := temporalTypes[norm(dataType)]
	return ok
}

// IsBinary reports whether dataType holds raw bytes.
func IsBinary(dataType string) bool {
	_, ok := binaryTypes[norm(dataType)]
	return ok
}

// IsBoolean reports whether dataType is a bit/boolean type.
func IsBoolean(dataType string) bool {
	_, ok := booleanTypes[norm(dataType)]
	return ok
}

// IsNativeBoolean reports whether dataType only accepts true/false literals
// (Postgres boolean), as opposed to SQL Server's numeric BIT.
func IsNativeBoolean(dataType string) bool {
	switch norm(dataType) {
	case "boolean", "bool":
		return true
	}
	return false
}

// IsApproximate reports whether dataType is a floating-point type whose text
// form may differ between engines.
func IsApproximate(dataType string) bool {
	_, ok := approximateTypes[norm(dataType)]
	return ok
}

// IsCharacter reports whether dataType is a character string type.
func IsCharacter(dataType string) bool {
	_, ok := characterTypes[norm(dataType)]
	return ok
}

// IsRowVersionType reports SQL Server's auto-maintained row version types.
// They cannot be inserted and change on every write.
func IsRowVersionType(dataType string) bool {
	switch norm(dataType) {
	case "timestamp", "rowversion":
		return true
	}
	return false
}

// VersionColumnPattern matches column names that hold auto-maintained
// version stamps. Such columns are left out of data checksums.
var VersionColumnPattern = regexp.MustCompile(`(?i)^(row_?version|version_?stamp|timestamp|ts)$`)

// IsVersioning reports whether c is an auto-maintained versioning column,
// by type or by name.
func IsVersioning(c ColumnDescriptor) bool {
	return IsRowVersionType(c.DataType) || VersionColumnPattern.MatchString(c.Name)
}

// ChecksumColumns returns the columns that participate in a data checksum:
// every column except versioning and computed ones, in catalog order.
func (s TableSchema) ChecksumColumns() []ColumnDescriptor {
	out := make([]ColumnDescriptor, 0, len(s.Columns))
	for _, c := range s.Columns {
		if c.Computed || IsVersioning(c) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// ApproximateColumns returns the names of floating-point columns.
func (s TableSchema) ApproximateColumns() []string {
	var out []string
	for _, c := range s.Columns {
		if IsApproximate(c.DataType) {
			out = append(out, c.Name)
		}
	}
	return out
}
