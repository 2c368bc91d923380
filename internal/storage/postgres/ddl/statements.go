package ddl

import (
	"encoding/hex"
	"fmt"
	"strings"

	gddl "dbclone/internal/ddl"
	"dbclone/internal/schema"
	"dbclone/internal/storage"
)

var _ storage.Dialect = Dialect{}

// Dialect renders Postgres statements for the clone.
type Dialect struct{}

func (Dialect) QuoteIdent(id string) string { return quoteIdent(id) }

func (Dialect) QuoteTable(t schema.TableIdentity) string { return quoteTable(t) }

func (Dialect) NormalizeColumn(c schema.ColumnDescriptor) (schema.ColumnDescriptor, error) {
	return gddl.Normalize(c, MapType)
}

func (Dialect) EnsureSchemaSQL(name string) (string, error) {
	if err := schema.ValidateIdentifier(name); err != nil {
		return "", err
	}
	return "CREATE SCHEMA IF NOT EXISTS " + quoteIdent(name) + ";", nil
}

func (Dialect) CreateTableSQL(s schema.TableSchema, sameEngine bool) (string, error) {
	return CreateTableFromSchema(s, sameEngine)
}

// DropTableSQL drops t along with constraints that depend on it.
func (Dialect) DropTableSQL(t schema.TableIdentity) (string, error) {
	if err := schema.ValidateTable(t); err != nil {
		return "", err
	}
	return "DROP TABLE IF EXISTS " + quoteTable(t) + " CASCADE;", nil
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
	dst := schema.TableIdentity{Schema: t.Schema, Name: backup}
	return fmt.Sprintf("CREATE TABLE %s AS TABLE %s;", quoteTable(dst), quoteTable(t)), nil
}

func (Dialect) AddForeignKeySQL(group []schema.ForeignKeyRef) (string, error) {
	if len(group) == 0 {
		return "", fmt.Errorf("postgres ddl: empty foreign key group")
	}
	first := group[0]
	if err := schema.ValidateTable(first.Table); err != nil {
		return "", err
	}
	local := make([]string, len(group))
	remote := make([]string, len(group))
	for i, fk := range group {
		if err := schema.ValidateForeignKey(fk); err != nil {
			return "", err
		}
		if fk.Name != first.Name || fk.RefTable != first.RefTable {
			return "", fmt.Errorf("postgres ddl: foreign key group mixes %s and %s", first.Name, fk.Name)
		}
		local[i] = quoteIdent(fk.Column)
		remote[i] = quoteIdent(fk.RefColumn)
	}
	return fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s);",
		quoteTable(first.Table), quoteIdent(first.Name), strings.Join(local, ", "),
		quoteTable(first.RefTable), strings.Join(remote, ", ")), nil
}

func (Dialect) DropForeignKeySQL(fk schema.ForeignKeyRef) (string, error) {
	if err := schema.ValidateTable(fk.Table); err != nil {
		return "", err
	}
	if err := schema.ValidateIdentifier(fk.Name); err != nil {
		return "", err
	}
	return fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT IF EXISTS %s;", quoteTable(fk.Table), quoteIdent(fk.Name)), nil
}

// InsertSQL renders INSERT INTO "s"."t" ("a","b") VALUES ($1,$2).
func (Dialect) InsertSQL(t schema.TableIdentity, columns []string) (string, error) {
	if err := schema.ValidateTable(t); err != nil {
		return "", err
	}
	if len(columns) == 0 {
		return "", fmt.Errorf("postgres ddl: insert into %s with no columns", t)
	}
	cols := make([]string, len(columns))
	ph := make([]string, len(columns))
	for i, c := range columns {
		if err := schema.ValidateIdentifier(c); err != nil {
			return "", err
		}
		cols[i] = quoteIdent(c)
		ph[i] = fmt.Sprintf("$%d", i+1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", quoteTable(t), strings.Join(cols, ","), strings.Join(ph, ",")), nil
}

// BinaryLiteral renders bytea hex input: '\xdead01'.
func (Dialect) BinaryLiteral(b []byte) string { return `'\x` + hex.EncodeToString(b) + `'` }

// BoolLiteral renders TRUE/FALSE for boolean columns and 1/0 otherwise.
func (Dialect) BoolLiteral(v bool, dataType string) string {
	if schema.IsNativeBoolean(dataType) {
		if v {
			return "TRUE"
		}
		return "FALSE"
	}
	if v {
		return "1"
	}
	return "0"
}
