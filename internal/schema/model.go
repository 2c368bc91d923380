// Package schema defines the catalog snapshot model shared by every part of
// the clone: table identities, column descriptors, primary/foreign keys and
// routine definitions.
//
// All values are read-only snapshots. They are read fresh from each endpoint
// per operation and never cached across operations, because the target schema
// may be changed mid-run by repair.
package schema

import (
	"fmt"
	"strings"
)

// MaxLength is the CharLength sentinel for unbounded character/binary
// columns (VARCHAR(MAX) and friends). INFORMATION_SCHEMA reports it as -1.
const MaxLength = -1

// TableIdentity names a table on either side of the clone.
type TableIdentity struct {
	Schema string `json:"schema"`
	Name   string `json:"name"`
}

// String renders the identity as "schema.name", or just the name when the
// schema is empty.
func (t TableIdentity) String() string {
	if t.Schema == "" {
		return t.Name
	}
	return t.Schema + "." + t.Name
}

// ParseTableIdentity splits "schema.table" into an identity. A bare name gets
// defaultSchema.
func ParseTableIdentity(s, defaultSchema string) TableIdentity {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, "."); i >= 0 {
		return TableIdentity{Schema: strings.TrimSpace(s[:i]), Name: strings.TrimSpace(s[i+1:])}
	}
	return TableIdentity{Schema: defaultSchema, Name: s}
}

// ColumnDescriptor is one column as reported by a catalog.
//
// Optional numeric fields are nil when the catalog reports NULL for them.
type ColumnDescriptor struct {
	Name              string  `json:"name"`
	DataType          string  `json:"data_type"`
	CharLength        *int    `json:"char_length,omitempty"`
	NumericPrecision  *int    `json:"numeric_precision,omitempty"`
	NumericScale      *int    `json:"numeric_scale,omitempty"`
	DateTimePrecision *int    `json:"datetime_precision,omitempty"`
	Nullable          bool    `json:"nullable"`
	Default           *string `json:"default,omitempty"`
	Ordinal           int     `json:"ordinal"`
	Identity          bool    `json:"identity,omitempty"`
	Computed          bool    `json:"computed,omitempty"`
}

// StructurallyEqual reports whether c and o have the same type name,
// nullability, character length and numeric precision/scale. Ordinal
// position, defaults and identity flags are not part of equality.
func (c ColumnDescriptor) StructurallyEqual(o ColumnDescriptor) bool {
	return strings.EqualFold(c.DataType, o.DataType) &&
		c.Nullable == o.Nullable &&
		intPtrEqual(c.CharLength, o.CharLength) &&
		intPtrEqual(c.NumericPrecision, o.NumericPrecision) &&
		intPtrEqual(c.NumericScale, o.NumericScale)
}

// LengthString renders CharLength for messages: "MAX", the number, or "NULL".
func (c ColumnDescriptor) LengthString() string {
	return FormatLength(c.CharLength)
}

// FormatLength renders an optional character length the way catalog messages
// show it.
func FormatLength(p *int) string {
	switch {
	case p == nil:
		return "NULL"
	case *p == MaxLength:
		return "MAX"
	default:
		return fmt.Sprintf("%d", *p)
	}
}

// ForeignKeyRef is one column of a foreign key constraint. Multi-column
// constraints are represented by several refs sharing Name, in key order.
type ForeignKeyRef struct {
	Name      string        `json:"name"`
	Table     TableIdentity `json:"table"`
	Column    string        `json:"column"`
	RefTable  TableIdentity `json:"ref_table"`
	RefColumn string        `json:"ref_column"`
}

// TableSchema is a table with its ordered columns and keys.
type TableSchema struct {
	Table       TableIdentity      `json:"table"`
	Columns     []ColumnDescriptor `json:"columns"`
	PrimaryKey  []string           `json:"primary_key,omitempty"`
	ForeignKeys []ForeignKeyRef    `json:"foreign_keys,omitempty"`
}

// Column returns the named column (case-insensitive).
func (s TableSchema) Column(name string) (ColumnDescriptor, bool) {
	for _, c := range s.Columns {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return ColumnDescriptor{}, false
}

// ColumnNames returns every column name in catalog order.
func (s TableSchema) ColumnNames() []string {
	out := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		out[i] = c.Name
	}
	return out
}

// InsertableColumns returns the columns a transfer writes: everything except
// server-maintained row versions and computed columns.
func (s TableSchema) InsertableColumns() []ColumnDescriptor {
	out := make([]ColumnDescriptor, 0, len(s.Columns))
	for _, c := range s.Columns {
		if c.Computed || IsRowVersionType(c.DataType) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// HasIdentity reports whether any insertable column is an identity column.
func (s TableSchema) HasIdentity() bool {
	for _, c := range s.InsertableColumns() {
		if c.Identity {
			return true
		}
	}
	return false
}

// ForeignKeyGroups groups the table's foreign key refs by constraint name,
// preserving first-seen order of constraints and key order within each.
func (s TableSchema) ForeignKeyGroups() [][]ForeignKeyRef {
	return GroupForeignKeys(s.ForeignKeys)
}

// GroupForeignKeys groups refs by (owning table, constraint name).
func GroupForeignKeys(refs []ForeignKeyRef) [][]ForeignKeyRef {
	idx := map[string]int{}
	var out [][]ForeignKeyRef
	for _, fk := range refs {
		key := fk.Table.String() + "|" + fk.Name
		i, ok := idx[key]
		if !ok {
			i = len(out)
			idx[key] = i
			out = append(out, nil)
		}
		out[i] = append(out[i], fk)
	}
	return out
}

// RoutineKind distinguishes functions from views.
type RoutineKind string

const (
	RoutineFunction RoutineKind = "function"
	RoutineView     RoutineKind = "view"
)

// RoutineDefinition is a function or view with its full creation statement.
// The definition is opaque and copied verbatim.
type RoutineDefinition struct {
	Schema     string      `json:"schema"`
	Name       string      `json:"name"`
	Kind       RoutineKind `json:"kind"`
	Definition string      `json:"definition"`
}

// QualifiedName renders "schema.name".
func (r RoutineDefinition) QualifiedName() string {
	return TableIdentity{Schema: r.Schema, Name: r.Name}.String()
}

// IntPtr returns a pointer to v. Handy for building descriptors in code and
// tests.
func IntPtr(v int) *int { return &v }

// StringPtr returns a pointer to v.
func StringPtr(v string) *string { return &v }

func intPtrEqual(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
