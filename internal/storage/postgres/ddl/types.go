// Package ddl contains Postgres-specific helpers for generating DDL.
package ddl

import (
	"regexp"
	"strings"

	gddl "dbclone/internal/ddl"
	"dbclone/internal/schema"
)

// MapType maps a source column, reported by Postgres or SQL Server, into a
// Postgres type.
//
//	nvarchar(50)/varchar(50)    -> character varying(50)
//	nvarchar(MAX)/ntext         -> text
//	bit                         -> boolean
//	datetime2(7)                -> timestamp(6)
//	datetimeoffset              -> timestamptz
//	uniqueidentifier            -> uuid
//	varbinary/image/rowversion  -> bytea
//	everything else unknown     -> text
func MapType(c schema.ColumnDescriptor) (gddl.TargetType, error) {
	name := strings.ToLower(strings.TrimSpace(c.DataType))
	switch name {
	case "character varying", "varchar", "nvarchar":
		if unbounded(c.CharLength) {
			return text(), nil
		}
		return gddl.TargetType{Name: "character varying", Base: "varchar", Length: schema.IntPtr(*c.CharLength)}, nil
	case "character", "char", "nchar":
		if unbounded(c.CharLength) {
			return text(), nil
		}
		return gddl.TargetType{Name: "character", Base: "char", Length: schema.IntPtr(*c.CharLength)}, nil
	case "text", "ntext", "sql_variant", "hierarchyid", "":
		return text(), nil
	case "numeric", "decimal":
		if c.NumericPrecision == nil {
			return gddl.TargetType{Name: "numeric"}, nil
		}
		scale := 0
		if c.NumericScale != nil {
			scale = *c.NumericScale
		}
		return gddl.TargetType{Name: "numeric", Precision: schema.IntPtr(*c.NumericPrecision), Scale: schema.IntPtr(scale)}, nil
	case "money":
		return gddl.TargetType{Name: "numeric", Precision: schema.IntPtr(19), Scale: schema.IntPtr(4)}, nil
	case "smallmoney":
		return gddl.TargetType{Name: "numeric", Precision: schema.IntPtr(10), Scale: schema.IntPtr(4)}, nil
	case "integer", "int", "int4":
		return gddl.TargetType{Name: "integer"}, nil
	case "bigint", "int8":
		return gddl.TargetType{Name: "bigint"}, nil
	case "smallint", "int2", "tinyint":
		return gddl.TargetType{Name: "smallint"}, nil
	case "boolean", "bool", "bit":
		return gddl.TargetType{Name: "boolean"}, nil
	case "double precision", "float", "float8":
		return gddl.TargetType{Name: "double precision"}, nil
	case "real", "float4":
		return gddl.TargetType{Name: "real"}, nil
	case "date":
		return gddl.TargetType{Name: "date"}, nil
	case "timestamp without time zone", "datetime2":
		return gddl.TargetType{Name: "timestamp without time zone", Base: "timestamp", Fraction: fraction(c.DateTimePrecision)}, nil
	case "datetime":
		return gddl.TargetType{Name: "timestamp without time zone", Base: "timestamp", Fraction: schema.IntPtr(3)}, nil
	case "smalldatetime":
		return gddl.TargetType{Name: "timestamp without time zone", Base: "timestamp", Fraction: schema.IntPtr(0)}, nil
	case "timestamp with time zone", "timestamptz", "datetimeoffset":
		return gddl.TargetType{Name: "timestamp with time zone", Base: "timestamptz", Fraction: fraction(c.DateTimePrecision)}, nil
	case "time without time zone", "time":
		return gddl.TargetType{Name: "time without time zone", Base: "time", Fraction: fraction(c.DateTimePrecision)}, nil
	case "bytea", "binary", "varbinary", "image", "timestamp", "rowversion":
		return gddl.TargetType{Name: "bytea"}, nil
	case "uuid", "uniqueidentifier":
		return gddl.TargetType{Name: "uuid"}, nil
	case "xml", "json", "jsonb", "inet", "cidr", "interval", "tsvector", "citext":
		return gddl.TargetType{Name: name}, nil
	}
	return text(), nil
}

// plainTypeName matches catalog names that are safe to emit unquoted:
// built-ins such as double precision, array udt names (_int4) and enums.
var plainTypeName = regexp.MustCompile(`^[a-z_][a-z0-9_ ]*$`)

// NativeType rebuilds a column read from Postgres so the target catalog
// reports it exactly as the source did. Unbounded character varying stays
// varchar; arrays and user-defined types keep their udt name, which must
// already exist on the target.
func NativeType(c schema.ColumnDescriptor) (gddl.TargetType, error) {
	name := strings.ToLower(strings.TrimSpace(c.DataType))
	switch name {
	case "character varying":
		return gddl.TargetType{Name: name, Base: "varchar", Length: c.CharLength}, nil
	case "character":
		return gddl.TargetType{Name: name, Base: "char", Length: c.CharLength}, nil
	case "bit":
		return gddl.TargetType{Name: name, Length: c.CharLength}, nil
	case "bit varying":
		return gddl.TargetType{Name: name, Base: "varbit", Length: c.CharLength}, nil
	case "numeric":
		return MapType(c)
	case "timestamp without time zone":
		return gddl.TargetType{Name: name, Base: "timestamp", Fraction: c.DateTimePrecision}, nil
	case "timestamp with time zone":
		return gddl.TargetType{Name: name, Base: "timestamptz", Fraction: c.DateTimePrecision}, nil
	case "time without time zone":
		return gddl.TargetType{Name: name, Base: "time", Fraction: c.DateTimePrecision}, nil
	case "time with time zone":
		return gddl.TargetType{Name: name, Base: "timetz", Fraction: c.DateTimePrecision}, nil
	}
	if plainTypeName.MatchString(name) {
		return gddl.TargetType{Name: name}, nil
	}
	return MapType(c)
}

func text() gddl.TargetType { return gddl.TargetType{Name: "text"} }

func unbounded(n *int) bool { return n == nil || *n == schema.MaxLength || *n > 10485760 }

// fraction caps SQL Server's 7-digit precision at Postgres' microseconds.
func fraction(p *int) *int {
	if p == nil {
		return nil
	}
	if *p > 6 {
		return schema.IntPtr(6)
	}
	return schema.IntPtr(*p)
}
