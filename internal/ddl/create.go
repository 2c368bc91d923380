// Package ddl is the schema materializer: it derives a target-compatible
// table definition from a source TableSchema and renders simple CREATE TABLE
// statements from that definition.
//
// The package stays dialect-neutral. Backends supply a TypeMapper (how a
// source column's type, length and precision become target type text) and a
// Quoter (how identifiers are quoted). Backend ddl packages wrap
// BuildCreateTableSQL with their own guards, e.g. IF OBJECT_ID(...) on SQL
// Server.
package ddl

import (
	"fmt"
	"strings"
)

// Quoter quotes a single identifier segment.
type Quoter func(id string) string

// NoQuote emits identifiers unchanged.
func NoQuote(id string) string { return id }

// QuoteFQN splits a dotted name and quotes each non-empty segment with q.
func QuoteFQN(fqn string, q Quoter) string {
	parts := strings.Split(fqn, ".")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, q(p))
	}
	return strings.Join(out, ".")
}

// BuildCreateTableSQL renders a CREATE TABLE statement from a TableDef.
//
// Rules:
//
//   - t.FQN must be non-empty; each dotted segment is quoted with q.
//
//   - Each column must have a non-empty Name and SQLType.
//
//   - A column is rendered as:
//
//     <Name> <SQLType> [NOT NULL] [DEFAULT <Default>]
//
//     where NOT NULL is added when Nullable == false.
//
//   - Columns with PrimaryKey == true are collected and rendered as a separate
//     PRIMARY KEY (<col1>, <col2>, ...) clause at the end of the column list.
//
// The resulting statement has the form:
//
//	CREATE TABLE <FQN> (
//	  <col1-def>,
//	  ...,
//	  [PRIMARY KEY (<pk-cols>)]
//	);
func BuildCreateTableSQL(t TableDef, q Quoter) (string, error) {
	body, fqn, err := BuildColumnList(t, q)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("CREATE TABLE %s (\n  %s\n);", fqn, strings.Join(body, ",\n  ")), nil
}

// BuildColumnList validates t and returns the rendered column/constraint
// lines plus the quoted table name, for renderers that need their own
// statement framing.
func BuildColumnList(t TableDef, q Quoter) ([]string, string, error) {
	if q == nil {
		q = NoQuote
	}
	fqn := strings.TrimSpace(t.FQN)
	if fqn == "" {
		return nil, "", fmt.Errorf("ddl: table FQN must not be empty")
	}
	if len(t.Columns) == 0 {
		return nil, "", fmt.Errorf("ddl: at least one column is required")
	}

	cols := make([]string, 0, len(t.Columns)+1)
	pks := make([]string, 0, len(t.Columns))

	for _, c := range t.Columns {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			return nil, "", fmt.Errorf("ddl: column with empty name in table %s", fqn)
		}
		typ := strings.TrimSpace(c.SQLType)
		if typ == "" {
			return nil, "", fmt.Errorf("ddl: column %s missing SQLType", name)
		}

		var sb strings.Builder
		sb.WriteString(q(name))
		sb.WriteByte(' ')
		sb.WriteString(typ)

		if !c.Nullable {
			sb.WriteString(" NOT NULL")
		}

		if def := strings.TrimSpace(c.Default); def != "" {
			sb.WriteString(" DEFAULT ")
			// Default is emitted as raw SQL expression.
			sb.WriteString(def)
		}

		cols = append(cols, sb.String())

		if c.PrimaryKey {
			pks = append(pks, q(name))
		}
	}

	if len(pks) > 0 {
		cols = append(cols, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(pks, ", ")))
	}

	return cols, QuoteFQN(fqn, q), nil
}
