package sqltest

import (
	"encoding/hex"
	"fmt"
	"strings"

	gddl "dbclone/internal/ddl"
	"dbclone/internal/schema"
	"dbclone/internal/storage"
)

var _ storage.Dialect = Dialect{}

// noop stands in for statements SQLite cannot run on existing tables.
const noop = "SELECT 1"

// Dialect renders SQLite statements.
type Dialect struct{}

func (Dialect) QuoteIdent(id string) string { return quoteIdent(id) }

func (Dialect) QuoteTable(t schema.TableIdentity) string { return quoteTable(t) }

// NormalizeColumn keeps the declared type; SQLite stores it verbatim.
func (Dialect) NormalizeColumn(c schema.ColumnDescriptor) (schema.ColumnDescriptor, error) {
	return gddl.Normalize(c, mapType)
}

// EnsureSchemaSQL is a no-op: every table lives in "main".
func (Dialect) EnsureSchemaSQL(name string) (string, error) {
	if err := schema.ValidateIdentifier(name); err != nil {
		return "", err
	}
	return noop, nil
}

func (Dialect) CreateTableSQL(s schema.TableSchema, sameEngine bool) (string, error) {
	def, err := gddl.Materialize(s, mapType, gddl.Options{KeepDefaults: sameEngine})
	if err != nil {
		return "", err
	}
	lines, _, err := gddl.BuildColumnList(def, quoteIdent)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n);", quoteTable(s.Table), strings.Join(lines, ",\n  ")), nil
}

func (Dialect) DropTableSQL(t schema.TableIdentity) (string, error) {
	if err := schema.ValidateTable(t); err != nil {
		return "", err
	}
	return "DROP TABLE IF EXISTS " + quoteTable(t) + ";", nil
}

func (Dialect) ClearTableSQL(t schema.TableIdentity) (string, error) {
	if err := schema.ValidateTable(t); err != nil {
		return "", err
	}
	return "DELETE FROM " + quoteTable(t) + ";", nil
}

func (Dialect) BackupTableSQL(t schema.TableIdentity, backup string) (string, error) {
	if err := schema.ValidateTable(t); err != nil {
		return "", err
	}
	if err := schema.ValidateIdentifier(backup); err != nil {
		return "", err
	}
	return fmt.Sprintf("CREATE TABLE %s AS SELECT * FROM %s;",
		quoteTable(schema.TableIdentity{Schema: t.Schema, Name: backup}), quoteTable(t)), nil
}

func (Dialect) AddForeignKeySQL(group []schema.ForeignKeyRef) (string, error) {
	if len(group) == 0 {
		return "", fmt.Errorf("sqlite: empty foreign key group")
	}
	for _, fk := range group {
		if err := schema.ValidateForeignKey(fk); err != nil {
			return "", err
		}
	}
	return noop, nil
}

func (Dialect) DropForeignKeySQL(fk schema.ForeignKeyRef) (string, error) {
	if err := schema.ValidateForeignKey(fk); err != nil {
		return "", err
	}
	return noop, nil
}

func (Dialect) InsertSQL(t schema.TableIdentity, columns []string) (string, error) {
	if err := schema.ValidateTable(t); err != nil {
		return "", err
	}
	if len(columns) == 0 {
		return "", fmt.Errorf("sqlite: insert into %s with no columns", t)
	}
	ph := make([]string, len(columns))
	for i, c := range columns {
		if err := schema.ValidateIdentifier(c); err != nil {
			return "", err
		}
		ph[i] = "?"
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteTable(t), strings.Join(mapIdent(columns), ", "), strings.Join(ph, ", ")), nil
}

func (Dialect) BinaryLiteral(b []byte) string { return "X'" + hex.EncodeToString(b) + "'" }

func (Dialect) BoolLiteral(v bool, _ string) string {
	if v {
		return "1"
	}
	return "0"
}

// mapType keeps the source type name and modifiers.
func mapType(c schema.ColumnDescriptor) (gddl.TargetType, error) {
	tt := gddl.TargetType{Name: strings.ToLower(c.DataType)}
	switch {
	case c.CharLength != nil:
		tt.Length = c.CharLength
	case c.NumericPrecision != nil:
		tt.Precision = c.NumericPrecision
		tt.Scale = c.NumericScale
	}
	return tt, nil
}

func quoteIdent(id string) string { return `"` + strings.ReplaceAll(id, `"`, `""`) + `"` }

func quoteTable(t schema.TableIdentity) string {
	if t.Schema == "" {
		return quoteIdent(t.Name)
	}
	return quoteIdent(t.Schema) + "." + quoteIdent(t.Name)
}

func mapIdent(cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = quoteIdent(c)
	}
	return out
}
