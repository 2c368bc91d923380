package ddl

import (
	"fmt"
	"strings"

	"dbclone/internal/schema"
)

// TargetType is a column type as the target engine will store and report it.
//
// Name is the lower-case catalog type name ("nvarchar", "decimal", "text").
// At most one modifier group is rendered: Length, then Precision/Scale,
// then Fraction (fractional-seconds precision).
type TargetType struct {
	Name      string
	Length    *int
	Precision *int
	Scale     *int
	Fraction  *int

	// Base is the DDL spelling when it differs from the catalog name, e.g.
	// "timestamp" for "timestamp without time zone".
	Base string
}

// Render formats the type as DDL text, e.g. NVARCHAR(MAX), DECIMAL(18,2),
// DATETIME2(7).
func (t TargetType) Render() string {
	name := t.Name
	if t.Base != "" {
		name = t.Base
	}
	name = strings.ToUpper(name)
	switch {
	case t.Length != nil:
		if *t.Length == schema.MaxLength {
			return name + "(MAX)"
		}
		return fmt.Sprintf("%s(%d)", name, *t.Length)
	case t.Precision != nil && t.Scale != nil:
		return fmt.Sprintf("%s(%d,%d)", name, *t.Precision, *t.Scale)
	case t.Precision != nil:
		return fmt.Sprintf("%s(%d)", name, *t.Precision)
	case t.Fraction != nil:
		return fmt.Sprintf("%s(%d)", name, *t.Fraction)
	default:
		return name
	}
}

// TypeMapper derives the target type for one source column.
type TypeMapper func(c schema.ColumnDescriptor) (TargetType, error)

// Options tune Materialize.
type Options struct {
	// KeepDefaults copies source default expressions verbatim. Cross-engine
	// clones usually turn this off since default syntax rarely ports.
	KeepDefaults bool
	// Identity, when non-empty, is appended to the type of identity columns
	// (e.g. "IDENTITY(1,1)").
	Identity string
}

// Materialize derives a target TableDef from a source schema: every column in
// catalog order, mapped through m, with primary key membership and
// (optionally) defaults.
func Materialize(s schema.TableSchema, m TypeMapper, opt Options) (TableDef, error) {
	if m == nil {
		return TableDef{}, fmt.Errorf("ddl: nil type mapper")
	}
	if err := s.Validate(); err != nil {
		return TableDef{}, fmt.Errorf("ddl: %w", err)
	}
	if len(s.Columns) == 0 {
		return TableDef{}, fmt.Errorf("ddl: table %s has no columns", s.Table)
	}

	pk := make(map[string]struct{}, len(s.PrimaryKey))
	for _, name := range s.PrimaryKey {
		pk[strings.ToLower(name)] = struct{}{}
	}

	out := TableDef{FQN: s.Table.String(), Columns: make([]ColumnDef, 0, len(s.Columns))}
	for _, c := range s.Columns {
		tt, err := m(c)
		if err != nil {
			return TableDef{}, fmt.Errorf("ddl: column %s.%s: %w", s.Table, c.Name, err)
		}
		typ := tt.Render()
		if c.Identity && opt.Identity != "" {
			typ += " " + opt.Identity
		}
		_, isPK := pk[strings.ToLower(c.Name)]
		col := ColumnDef{
			Name:       c.Name,
			SQLType:    typ,
			Nullable:   c.Nullable && !isPK,
			PrimaryKey: isPK,
		}
		if opt.KeepDefaults && c.Default != nil && !c.Identity {
			col.Default = *c.Default
		}
		out.Columns = append(out.Columns, col)
	}
	return out, nil
}

// Normalize reports how c would appear in the target catalog once
// materialized through m: type name and length replaced, decimal
// precision/scale kept, everything else unchanged. Verifiers use it to compare
// a source column against a target of a different engine.
func Normalize(c schema.ColumnDescriptor, m TypeMapper) (schema.ColumnDescriptor, error) {
	tt, err := m(c)
	if err != nil {
		return c, err
	}
	out := c
	out.DataType = tt.Name
	out.CharLength = tt.Length
	out.NumericPrecision = tt.Precision
	out.NumericScale = tt.Scale
	return out, nil
}
