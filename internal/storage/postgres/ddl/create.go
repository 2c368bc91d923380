package ddl

import (
	"fmt"
	"strings"

	gddl "dbclone/internal/ddl"
	"dbclone/internal/schema"
)

// identityClause lets explicit inserts of source keys through.
const identityClause = "GENERATED BY DEFAULT AS IDENTITY"

// BuildCreateTableSQL renders CREATE TABLE IF NOT EXISTS with double-quoted
// identifiers:
//
//	CREATE TABLE IF NOT EXISTS "schema"."table" (
//	  "col1" TYPE [NOT NULL] [DEFAULT expr],
//	  PRIMARY KEY ("pk1")
//	);
func BuildCreateTableSQL(t gddl.TableDef) (string, error) {
	cols, fqnQuoted, err := gddl.BuildColumnList(t, quoteIdent)
	if err != nil {
		return "", fmt.Errorf("postgres %w", err)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n);", fqnQuoted, strings.Join(cols, ",\n  ")), nil
}

// CreateTableFromSchema materializes s for Postgres. sameEngine means s came
// from Postgres: types go through NativeType and defaults are kept. Serial
// defaults (nextval of a sequence the target does not have) become identity
// columns.
func CreateTableFromSchema(s schema.TableSchema, sameEngine bool) (string, error) {
	s = promoteSerials(s)
	m := MapType
	if sameEngine {
		m = NativeType
	}
	def, err := gddl.Materialize(s, m, gddl.Options{KeepDefaults: sameEngine, Identity: identityClause})
	if err != nil {
		return "", err
	}
	return BuildCreateTableSQL(def)
}

func promoteSerials(s schema.TableSchema) schema.TableSchema {
	cols := make([]schema.ColumnDescriptor, len(s.Columns))
	for i, c := range s.Columns {
		if c.Default != nil && strings.HasPrefix(strings.ToLower(*c.Default), "nextval(") {
			c.Default = nil
			c.Identity = true
		}
		cols[i] = c
	}
	s.Columns = cols
	return s
}

// quoteIdent double-quotes an identifier, doubling embedded quotes.
func quoteIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

func quoteTable(t schema.TableIdentity) string {
	if t.Schema == "" {
		return quoteIdent(t.Name)
	}
	return quoteIdent(t.Schema) + "." + quoteIdent(t.Name)
}
