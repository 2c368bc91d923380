package ddl

import (
	"fmt"
	"strings"

	gddl "dbclone/internal/ddl"
	"dbclone/internal/schema"
)

// BuildCreateTableSQL returns a T-SQL script that creates a table matching
// the provided definition if it does not already exist.
//
// The generated script has the form:
//
//	IF OBJECT_ID(N'[schema].[table]', N'U') IS NULL
//	BEGIN
//	  CREATE TABLE [schema].[table] (
//	    [col1] TYPE [NOT NULL] [DEFAULT expr],
//	    [col2] TYPE,
//	    PRIMARY KEY ([pk1], [pk2])
//	  );
//	END;
//
// T-SQL has no CREATE TABLE IF NOT EXISTS, hence the OBJECT_ID guard.
func BuildCreateTableSQL(t gddl.TableDef) (string, error) {
	cols, fqnQuoted, err := gddl.BuildColumnList(t, quoteIdent)
	if err != nil {
		return "", fmt.Errorf("mssql %w", err)
	}
	stmt := fmt.Sprintf(
		"IF OBJECT_ID(N'%s', N'U') IS NULL\nBEGIN\n  CREATE TABLE %s (\n    %s\n  );\nEND;",
		escapeLiteral(fqnQuoted),
		fqnQuoted,
		strings.Join(cols, ",\n    "),
	)
	return stmt, nil
}

// CreateTableFromSchema materializes s for SQL Server and renders the guarded
// CREATE TABLE. sameEngine means s came from SQL Server: types go through
// NativeType and defaults are kept. Identity columns keep IDENTITY(1,1);
// source keys are written under IDENTITY_INSERT.
func CreateTableFromSchema(s schema.TableSchema, sameEngine bool) (string, error) {
	m := MapType
	if sameEngine {
		m = NativeType
	}
	def, err := gddl.Materialize(s, m, gddl.Options{KeepDefaults: sameEngine, Identity: "IDENTITY(1,1)"})
	if err != nil {
		return "", err
	}
	return BuildCreateTableSQL(def)
}

// quoteIdent quotes a single identifier segment for SQL Server using
// bracket syntax, escaping any closing brackets.
//
//	name      -> [name]
//	weird]id  -> [weird]]id]
func quoteIdent(id string) string {
	return "[" + strings.ReplaceAll(id, "]", "]]") + "]"
}

// quoteTable quotes schema and name: [dbo].[Users], or [Users] with no schema.
func quoteTable(t schema.TableIdentity) string {
	if t.Schema == "" {
		return quoteIdent(t.Name)
	}
	return quoteIdent(t.Schema) + "." + quoteIdent(t.Name)
}

// escapeLiteral doubles single quotes for use inside N'...'.
func escapeLiteral(s string) string { return strings.ReplaceAll(s, "'", "''") }
