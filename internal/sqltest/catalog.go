package sqltest

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"dbclone/internal/schema"
)

// ListTables returns user tables in name order.
func (e *Endpoint) ListTables(ctx context.Context) ([]schema.TableIdentity, error) {
	names, err := e.names(ctx, "table")
	if err != nil {
		return nil, err
	}
	out := make([]schema.TableIdentity, len(names))
	for i, n := range names {
		out[i] = schema.TableIdentity{Schema: Schema, Name: n}
	}
	return out, nil
}

func (e *Endpoint) names(ctx context.Context, typ string) ([]string, error) {
	rows, err := e.db.QueryContext(ctx,
		"SELECT name FROM sqlite_master WHERE type = ? AND name NOT LIKE 'sqlite_%' ORDER BY name", typ)
	if err != nil {
		return nil, fmt.Errorf("list %ss: %w", typ, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// TableExists reports whether t is a table.
func (e *Endpoint) TableExists(ctx context.Context, t schema.TableIdentity) (bool, error) {
	var n int
	err := e.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", t.Name).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("table exists %s: %w", t, err)
	}
	return n > 0, nil
}

// Columns reads PRAGMA table_info.
func (e *Endpoint) Columns(ctx context.Context, t schema.TableIdentity) ([]schema.ColumnDescriptor, error) {
	cols, _, err := e.tableInfo(ctx, t)
	return cols, err
}

func (e *Endpoint) tableInfo(ctx context.Context, t schema.TableIdentity) ([]schema.ColumnDescriptor, []string, error) {
	if err := schema.ValidateTable(t); err != nil {
		return nil, nil, err
	}
	rows, err := e.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(t.Name)))
	if err != nil {
		return nil, nil, fmt.Errorf("columns %s: %w", t, err)
	}
	defer rows.Close()

	type pkCol struct {
		name string
		pos  int
	}
	var (
		cols []schema.ColumnDescriptor
		pks  []pkCol
	)
	for rows.Next() {
		var (
			cid     int
			name    string
			decl    string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &decl, &notNull, &dflt, &pk); err != nil {
			return nil, nil, err
		}
		c := parseDecl(decl)
		c.Name = name
		c.Ordinal = cid + 1
		c.Nullable = notNull == 0 && pk == 0
		if dflt.Valid {
			c.Default = schema.StringPtr(dflt.String)
		}
		cols = append(cols, c)
		if pk > 0 {
			pks = append(pks, pkCol{name, pk})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	sort.Slice(pks, func(i, j int) bool { return pks[i].pos < pks[j].pos })
	pk := make([]string, len(pks))
	for i, p := range pks {
		pk[i] = p.name
	}
	return cols, pk, nil
}

// TableSchema reads columns, primary key and foreign keys.
func (e *Endpoint) TableSchema(ctx context.Context, t schema.TableIdentity) (schema.TableSchema, error) {
	cols, pk, err := e.tableInfo(ctx, t)
	if err != nil {
		return schema.TableSchema{}, err
	}
	fks, err := e.foreignKeys(ctx, t)
	if err != nil {
		return schema.TableSchema{}, err
	}
	return schema.TableSchema{Table: t, Columns: cols, PrimaryKey: pk, ForeignKeys: fks}, nil
}

func (e *Endpoint) foreignKeys(ctx context.Context, t schema.TableIdentity) ([]schema.ForeignKeyRef, error) {
	rows, err := e.db.QueryContext(ctx, fmt.Sprintf("PRAGMA foreign_key_list(%s)", quoteIdent(t.Name)))
	if err != nil {
		return nil, fmt.Errorf("foreign keys %s: %w", t, err)
	}
	defer rows.Close()

	var out []schema.ForeignKeyRef
	for rows.Next() {
		var (
			id, seq                         int
			refTable, from                  string
			to                              sql.NullString
			onUpdate, onDelete, matchClause string
		)
		if err := rows.Scan(&id, &seq, &refTable, &from, &to, &onUpdate, &onDelete, &matchClause); err != nil {
			return nil, err
		}
		out = append(out, schema.ForeignKeyRef{
			Name:      fmt.Sprintf("fk_%s_%d", t.Name, id),
			Table:     t,
			Column:    from,
			RefTable:  schema.TableIdentity{Schema: Schema, Name: refTable},
			RefColumn: to.String,
		})
	}
	return out, rows.Err()
}

// ReferencingForeignKeys scans every table for foreign keys pointing at t.
func (e *Endpoint) ReferencingForeignKeys(ctx context.Context, t schema.TableIdentity) ([]schema.ForeignKeyRef, error) {
	tables, err := e.ListTables(ctx)
	if err != nil {
		return nil, err
	}
	var out []schema.ForeignKeyRef
	for _, other := range tables {
		fks, err := e.foreignKeys(ctx, other)
		if err != nil {
			return nil, err
		}
		for _, fk := range fks {
			if strings.EqualFold(fk.RefTable.Name, t.Name) && !strings.EqualFold(other.Name, t.Name) {
				out = append(out, fk)
			}
		}
	}
	return out, nil
}

// ListFunctions returns nothing; SQLite has no stored functions.
func (e *Endpoint) ListFunctions(context.Context) ([]schema.RoutineDefinition, error) {
	return nil, nil
}

// ListViews returns each view's CREATE VIEW statement.
func (e *Endpoint) ListViews(ctx context.Context) ([]schema.RoutineDefinition, error) {
	rows, err := e.db.QueryContext(ctx, "SELECT name, sql FROM sqlite_master WHERE type = 'view' ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("list views: %w", err)
	}
	defer rows.Close()

	var out []schema.RoutineDefinition
	for rows.Next() {
		var r schema.RoutineDefinition
		if err := rows.Scan(&r.Name, &r.Definition); err != nil {
			return nil, err
		}
		r.Schema = Schema
		r.Kind = schema.RoutineView
		out = append(out, r)
	}
	return out, rows.Err()
}

var declPattern = regexp.MustCompile(`^\s*([A-Za-z][A-Za-z0-9 ]*?)\s*(?:\(\s*(MAX|\d+)\s*(?:,\s*(\d+)\s*)?\))?\s*$`)

// parseDecl splits a declared type such as "VARCHAR(50)" or
// "DECIMAL(10,2)" into catalog fields.
func parseDecl(decl string) schema.ColumnDescriptor {
	m := declPattern.FindStringSubmatch(decl)
	if m == nil {
		return schema.ColumnDescriptor{DataType: strings.ToLower(strings.TrimSpace(decl))}
	}
	c := schema.ColumnDescriptor{DataType: strings.ToLower(m[1])}
	if m[2] == "" {
		return c
	}
	first := schema.MaxLength
	if !strings.EqualFold(m[2], "MAX") {
		first, _ = strconv.Atoi(m[2])
	}
	if schema.IsCharacter(c.DataType) || schema.IsBinary(c.DataType) {
		c.CharLength = schema.IntPtr(first)
		return c
	}
	c.NumericPrecision = schema.IntPtr(first)
	if m[3] != "" {
		s, _ := strconv.Atoi(m[3])
		c.NumericScale = schema.IntPtr(s)
	}
	return c
}
