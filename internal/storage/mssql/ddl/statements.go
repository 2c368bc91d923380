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

// Dialect renders T-SQL statements for the clone.
type Dialect struct{}

func (Dialect) QuoteIdent(id string) string { return quoteIdent(id) }

func (Dialect) QuoteTable(t schema.TableIdentity) string { return quoteTable(t) }

func (Dialect) NormalizeColumn(c schema.ColumnDescriptor) (schema.ColumnDescriptor, error) {
	return gddl.Normalize(c, MapType)
}

// EnsureSchemaSQL creates a schema unless it exists. CREATE SCHEMA must be
// alone in its batch, hence EXEC.
func (Dialect) EnsureSchemaSQL(name string) (string, error) {
	if err := schema.ValidateIdentifier(name); err != nil {
		return "", err
	}
	return fmt.Sprintf("IF SCHEMA_ID(N'%s') IS NULL EXEC(N'CREATE SCHEMA %s');",
		escapeLiteral(name), escapeLiteral(quoteIdent(name))), nil
}

func (Dialect) CreateTableSQL(s schema.TableSchema, sameEngine bool) (string, error) {
	return CreateTableFromSchema(s, sameEngine)
}

func (Dialect) DropTableSQL(t schema.TableIdentity) (string, error) {
	if err := schema.ValidateTable(t); err != nil {
		return "", err
	}
	q := quoteTable(t)
	return fmt.Sprintf("IF OBJECT_ID(N'%s', N'U') IS NOT NULL DROP TABLE %s;", escapeLiteral(q), q), nil
}

// ClearTableSQL deletes every row. TRUNCATE is refused on tables referenced
// by foreign keys, DELETE is not.
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
	return fmt.Sprintf("SELECT * INTO %s FROM %s;", quoteTable(dst), quoteTable(t)), nil
}

func (Dialect) AddForeignKeySQL(group []schema.ForeignKeyRef) (string, error) {
	return addForeignKeySQL(group, quoteIdent, quoteTable)
}

func (Dialect) DropForeignKeySQL(fk schema.ForeignKeyRef) (string, error) {
	if err := schema.ValidateTable(fk.Table); err != nil {
		return "", err
	}
	if err := schema.ValidateIdentifier(fk.Name); err != nil {
		return "", err
	}
	return fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s;", quoteTable(fk.Table), quoteIdent(fk.Name)), nil
}

// InsertSQL renders INSERT INTO [s].[t] ([a],[b]) VALUES (@p1,@p2).
func (Dialect) InsertSQL(t schema.TableIdentity, columns []string) (string, error) {
	if err := schema.ValidateTable(t); err != nil {
		return "", err
	}
	if len(columns) == 0 {
		return "", fmt.Errorf("mssql ddl: insert into %s with no columns", t)
	}
	cols := make([]string, len(columns))
	ph := make([]string, len(columns))
	for i, c := range columns {
		if err := schema.ValidateIdentifier(c); err != nil {
			return "", err
		}
		cols[i] = quoteIdent(c)
		ph[i] = fmt.Sprintf("@p%d", i+1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", quoteTable(t), strings.Join(cols, ","), strings.Join(ph, ",")), nil
}

func (Dialect) BinaryLiteral(b []byte) string { return "0x" + strings.ToUpper(hex.EncodeToString(b)) }

// BoolLiteral renders BIT values.
func (Dialect) BoolLiteral(v bool, _ string) string {
	if v {
		return "1"
	}
	return "0"
}

// addForeignKeySQL renders ALTER TABLE .. ADD CONSTRAINT .. FOREIGN KEY for
// one constraint group (refs sharing a name, in key order).
func addForeignKeySQL(group []schema.ForeignKeyRef, qi func(string) string, qt func(schema.TableIdentity) string) (string, error) {
	if len(group) == 0 {
		return "", fmt.Errorf("ddl: empty foreign key group")
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
			return "", fmt.Errorf("ddl: foreign key group mixes %s and %s", first.Name, fk.Name)
		}
		local[i] = qi(fk.Column)
		remote[i] = qi(fk.RefColumn)
	}
	return fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s);",
		qt(first.Table), qi(first.Name), strings.Join(local, ", "), qt(first.RefTable), strings.Join(remote, ", ")), nil
}
