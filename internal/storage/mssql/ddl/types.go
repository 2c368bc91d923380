// Package ddl contains SQL Server-specific helpers for generating DDL.
//
// MapType maps catalog column descriptors, reported by SQL Server or by
// Postgres, into SQL Server types. Lengths and precisions follow the source
// column; unknown types fall back to NVARCHAR(MAX).
package ddl

import (
	"strings"

	gddl "dbclone/internal/ddl"
	"dbclone/internal/schema"
)

// Largest fixed lengths before SQL Server requires (MAX).
const (
	maxSingleByteLen = 8000
	maxUnicodeLen    = 4000
)

// MapType maps a source column into a SQL Server type.
//
//	nvarchar(-1)                 -> NVARCHAR(MAX)
//	varchar(50)                  -> VARCHAR(50)
//	decimal(18,2)                -> DECIMAL(18,2)
//	datetime2(3)                 -> DATETIME2(3)
//	character varying(20)        -> NVARCHAR(20)
//	text                         -> NVARCHAR(MAX)
//	timestamp without time zone  -> DATETIME2(6)
//	bytea                        -> VARBINARY(MAX)
func MapType(c schema.ColumnDescriptor) (gddl.TargetType, error) {
	name := strings.ToLower(strings.TrimSpace(c.DataType))
	switch name {
	case "varchar", "char", "binary", "varbinary":
		return gddl.TargetType{Name: name, Length: lengthOrMax(c.CharLength, maxSingleByteLen)}, nil
	case "nvarchar", "nchar":
		return gddl.TargetType{Name: name, Length: lengthOrMax(c.CharLength, maxUnicodeLen)}, nil
	case "decimal", "numeric":
		return decimal(name, c), nil
	case "datetime2", "time", "datetimeoffset":
		return gddl.TargetType{Name: name, Fraction: c.DateTimePrecision}, nil

	// Postgres names.
	case "integer", "int4", "serial":
		return gddl.TargetType{Name: "int"}, nil
	case "int8", "bigserial":
		return gddl.TargetType{Name: "bigint"}, nil
	case "int2", "smallserial":
		return gddl.TargetType{Name: "smallint"}, nil
	case "boolean", "bool":
		return gddl.TargetType{Name: "bit"}, nil
	case "character varying":
		return gddl.TargetType{Name: "nvarchar", Length: lengthOrMax(c.CharLength, maxUnicodeLen)}, nil
	case "character":
		return gddl.TargetType{Name: "nchar", Length: lengthOrMax(c.CharLength, maxUnicodeLen)}, nil
	case "text", "json", "jsonb", "citext":
		return gddl.TargetType{Name: "nvarchar", Length: schema.IntPtr(schema.MaxLength)}, nil
	case "bytea":
		return gddl.TargetType{Name: "varbinary", Length: schema.IntPtr(schema.MaxLength)}, nil
	case "timestamp without time zone":
		return gddl.TargetType{Name: "datetime2", Fraction: fraction(c.DateTimePrecision)}, nil
	case "timestamp with time zone", "timestamptz":
		return gddl.TargetType{Name: "datetimeoffset", Fraction: fraction(c.DateTimePrecision)}, nil
	case "time without time zone":
		return gddl.TargetType{Name: "time", Fraction: fraction(c.DateTimePrecision)}, nil
	case "double precision", "float8":
		return gddl.TargetType{Name: "float"}, nil
	case "float4":
		return gddl.TargetType{Name: "real"}, nil
	case "uuid":
		return gddl.TargetType{Name: "uniqueidentifier"}, nil
	case "":
		return gddl.TargetType{Name: "nvarchar", Length: schema.IntPtr(schema.MaxLength)}, nil
	}
	if _, ok := passthrough[name]; ok {
		return gddl.TargetType{Name: name}, nil
	}
	// Default to a flexible Unicode string type.
	return gddl.TargetType{Name: "nvarchar", Length: schema.IntPtr(schema.MaxLength)}, nil
}

// NativeType rebuilds a column read from SQL Server. Types that MapType
// would translate as Postgres names (text, for one) are kept as declared.
func NativeType(c schema.ColumnDescriptor) (gddl.TargetType, error) {
	name := strings.ToLower(strings.TrimSpace(c.DataType))
	if _, ok := passthrough[name]; ok {
		return gddl.TargetType{Name: name}, nil
	}
	return MapType(c)
}

// passthrough holds SQL Server types rendered without modifiers.
var passthrough = map[string]struct{}{
	"bigint": {}, "int": {}, "smallint": {}, "tinyint": {}, "bit": {},
	"money": {}, "smallmoney": {}, "float": {}, "real": {},
	"date": {}, "datetime": {}, "smalldatetime": {},
	"text": {}, "ntext": {}, "image": {}, "xml": {},
	"uniqueidentifier": {}, "sql_variant": {}, "hierarchyid": {},
	"geography": {}, "geometry": {}, "timestamp": {}, "rowversion": {},
}

func lengthOrMax(n *int, limit int) *int {
	if n == nil || *n == schema.MaxLength || *n > limit {
		return schema.IntPtr(schema.MaxLength)
	}
	return schema.IntPtr(*n)
}

func decimal(name string, c schema.ColumnDescriptor) gddl.TargetType {
	if c.NumericPrecision == nil {
		return gddl.TargetType{Name: "decimal", Precision: schema.IntPtr(38), Scale: schema.IntPtr(10)}
	}
	scale := 0
	if c.NumericScale != nil {
		scale = *c.NumericScale
	}
	return gddl.TargetType{Name: name, Precision: schema.IntPtr(*c.NumericPrecision), Scale: schema.IntPtr(scale)}
}

// fraction caps Postgres' microsecond precision at SQL Server's 7 digits.
func fraction(p *int) *int {
	if p == nil {
		return nil
	}
	if *p > 7 {
		return schema.IntPtr(7)
	}
	return schema.IntPtr(*p)
}
