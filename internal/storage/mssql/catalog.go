package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"dbclone/internal/schema"
)

const listTablesSQL = `
SELECT TABLE_SCHEMA, TABLE_NAME
  FROM INFORMATION_SCHEMA.TABLES
 WHERE TABLE_TYPE = 'BASE TABLE'
   AND TABLE_NAME <> 'sysdiagrams'
 ORDER BY TABLE_SCHEMA, TABLE_NAME`

const tableExistsSQL = `
SELECT COUNT(*)
  FROM INFORMATION_SCHEMA.TABLES
 WHERE TABLE_TYPE = 'BASE TABLE' AND TABLE_SCHEMA = @p1 AND TABLE_NAME = @p2`

const columnsSQL = `
SELECT c.COLUMN_NAME, c.DATA_TYPE, c.CHARACTER_MAXIMUM_LENGTH,
       c.NUMERIC_PRECISION, c.NUMERIC_SCALE, c.DATETIME_PRECISION,
       c.IS_NULLABLE, c.COLUMN_DEFAULT, c.ORDINAL_POSITION,
       COLUMNPROPERTY(OBJECT_ID(QUOTENAME(c.TABLE_SCHEMA) + '.' + QUOTENAME(c.TABLE_NAME)), c.COLUMN_NAME, 'IsIdentity'),
       COLUMNPROPERTY(OBJECT_ID(QUOTENAME(c.TABLE_SCHEMA) + '.' + QUOTENAME(c.TABLE_NAME)), c.COLUMN_NAME, 'IsComputed')
  FROM INFORMATION_SCHEMA.COLUMNS c
 WHERE c.TABLE_SCHEMA = @p1 AND c.TABLE_NAME = @p2
 ORDER BY c.ORDINAL_POSITION`

const primaryKeySQL = `
SELECT kcu.COLUMN_NAME
  FROM INFORMATION_SCHEMA.TABLE_CONSTRAINTS tc
  JOIN INFORMATION_SCHEMA.KEY_COLUMN_USAGE kcu
    ON kcu.CONSTRAINT_NAME = tc.CONSTRAINT_NAME
   AND kcu.TABLE_SCHEMA = tc.TABLE_SCHEMA
   AND kcu.TABLE_NAME = tc.TABLE_NAME
 WHERE tc.CONSTRAINT_TYPE = 'PRIMARY KEY'
   AND tc.TABLE_SCHEMA = @p1 AND tc.TABLE_NAME = @p2
 ORDER BY kcu.ORDINAL_POSITION`

// foreignKeysSQL lists one row per constraint column; %s is the side
// (pt = owning table, rt = referenced table) the filter applies to.
const foreignKeysSQL = `
SELECT fk.name,
       SCHEMA_NAME(pt.schema_id), pt.name, pc.name,
       SCHEMA_NAME(rt.schema_id), rt.name, rc.name
  FROM sys.foreign_keys fk
  JOIN sys.foreign_key_columns fkc ON fkc.constraint_object_id = fk.object_id
  JOIN sys.tables pt ON pt.object_id = fkc.parent_object_id
  JOIN sys.columns pc ON pc.object_id = fkc.parent_object_id AND pc.column_id = fkc.parent_column_id
  JOIN sys.tables rt ON rt.object_id = fkc.referenced_object_id
  JOIN sys.columns rc ON rc.object_id = fkc.referenced_object_id AND rc.column_id = fkc.referenced_column_id
 WHERE SCHEMA_NAME(%[1]s.schema_id) = @p1 AND %[1]s.name = @p2
 ORDER BY SCHEMA_NAME(pt.schema_id), pt.name, fk.name, fkc.constraint_column_id`

// routinesSQL lists user modules of the given object types with their full
// CREATE text.
const routinesSQL = `
SELECT SCHEMA_NAME(o.schema_id), o.name, m.definition
  FROM sys.objects o
  JOIN sys.sql_modules m ON m.object_id = o.object_id
 WHERE o.type IN (%s) AND o.is_ms_shipped = 0
 ORDER BY o.create_date, o.name`

// ListTables returns every user base table.
func (e *Endpoint) ListTables(ctx context.Context) ([]schema.TableIdentity, error) {
	ctx, cancel := e.opContext(ctx)
	defer cancel()

	rows, err := e.db.QueryContext(ctx, listTablesSQL)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var out []schema.TableIdentity
	for rows.Next() {
		var t schema.TableIdentity
		if err := rows.Scan(&t.Schema, &t.Name); err != nil {
			return nil, fmt.Errorf("scan table: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// TableExists reports whether t is a base table.
func (e *Endpoint) TableExists(ctx context.Context, t schema.TableIdentity) (bool, error) {
	ctx, cancel := e.opContext(ctx)
	defer cancel()

	var n int
	if err := e.db.QueryRowContext(ctx, tableExistsSQL, t.Schema, t.Name).Scan(&n); err != nil {
		return false, fmt.Errorf("table exists %s: %w", t, err)
	}
	return n > 0, nil
}

// Columns returns t's columns in ordinal order.
func (e *Endpoint) Columns(ctx context.Context, t schema.TableIdentity) ([]schema.ColumnDescriptor, error) {
	ctx, cancel := e.opContext(ctx)
	defer cancel()

	rows, err := e.db.QueryContext(ctx, columnsSQL, t.Schema, t.Name)
	if err != nil {
		return nil, fmt.Errorf("columns %s: %w", t, err)
	}
	defer rows.Close()

	var out []schema.ColumnDescriptor
	for rows.Next() {
		var (
			c                           schema.ColumnDescriptor
			length, prec, scale, dtPrec sql.NullInt64
			nullable                    string
			def                         sql.NullString
			ordinal                     int
			isIdentity, isComputed      sql.NullInt64
		)
		if err := rows.Scan(&c.Name, &c.DataType, &length, &prec, &scale, &dtPrec,
			&nullable, &def, &ordinal, &isIdentity, &isComputed); err != nil {
			return nil, fmt.Errorf("scan column %s: %w", t, err)
		}
		c.DataType = strings.ToLower(c.DataType)
		c.CharLength = nullInt(length)
		c.NumericPrecision = nullInt(prec)
		c.NumericScale = nullInt(scale)
		c.DateTimePrecision = nullInt(dtPrec)
		c.Nullable = strings.EqualFold(nullable, "YES")
		if def.Valid {
			c.Default = schema.StringPtr(def.String)
		}
		c.Ordinal = ordinal
		c.Identity = isIdentity.Valid && isIdentity.Int64 == 1
		c.Computed = isComputed.Valid && isComputed.Int64 == 1
		out = append(out, c)
	}
	return out, rows.Err()
}

// TableSchema returns columns, primary key and outgoing foreign keys of t.
func (e *Endpoint) TableSchema(ctx context.Context, t schema.TableIdentity) (schema.TableSchema, error) {
	cols, err := e.Columns(ctx, t)
	if err != nil {
		return schema.TableSchema{}, err
	}
	pk, err := e.primaryKey(ctx, t)
	if err != nil {
		return schema.TableSchema{}, err
	}
	fks, err := e.foreignKeys(ctx, "pt", t)
	if err != nil {
		return schema.TableSchema{}, err
	}
	return schema.TableSchema{Table: t, Columns: cols, PrimaryKey: pk, ForeignKeys: fks}, nil
}

// ReferencingForeignKeys returns foreign keys on any table that reference t.
func (e *Endpoint) ReferencingForeignKeys(ctx context.Context, t schema.TableIdentity) ([]schema.ForeignKeyRef, error) {
	return e.foreignKeys(ctx, "rt", t)
}

func (e *Endpoint) primaryKey(ctx context.Context, t schema.TableIdentity) ([]string, error) {
	ctx, cancel := e.opContext(ctx)
	defer cancel()

	rows, err := e.db.QueryContext(ctx, primaryKeySQL, t.Schema, t.Name)
	if err != nil {
		return nil, fmt.Errorf("primary key %s: %w", t, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var col string
		if err := rows.Scan(&col); err != nil {
			return nil, fmt.Errorf("scan primary key %s: %w", t, err)
		}
		out = append(out, col)
	}
	return out, rows.Err()
}

func (e *Endpoint) foreignKeys(ctx context.Context, side string, t schema.TableIdentity) ([]schema.ForeignKeyRef, error) {
	ctx, cancel := e.opContext(ctx)
	defer cancel()

	rows, err := e.db.QueryContext(ctx, fmt.Sprintf(foreignKeysSQL, side), t.Schema, t.Name)
	if err != nil {
		return nil, fmt.Errorf("foreign keys %s: %w", t, err)
	}
	defer rows.Close()

	var out []schema.ForeignKeyRef
	for rows.Next() {
		var fk schema.ForeignKeyRef
		if err := rows.Scan(&fk.Name, &fk.Table.Schema, &fk.Table.Name, &fk.Column,
			&fk.RefTable.Schema, &fk.RefTable.Name, &fk.RefColumn); err != nil {
			return nil, fmt.Errorf("scan foreign key %s: %w", t, err)
		}
		out = append(out, fk)
	}
	return out, rows.Err()
}

// ListFunctions returns scalar, inline and table-valued functions.
func (e *Endpoint) ListFunctions(ctx context.Context) ([]schema.RoutineDefinition, error) {
	return e.routines(ctx, "'FN','IF','TF'", schema.RoutineFunction)
}

// ListViews returns user views.
func (e *Endpoint) ListViews(ctx context.Context) ([]schema.RoutineDefinition, error) {
	return e.routines(ctx, "'V'", schema.RoutineView)
}

func (e *Endpoint) routines(ctx context.Context, types string, kind schema.RoutineKind) ([]schema.RoutineDefinition, error) {
	ctx, cancel := e.opContext(ctx)
	defer cancel()

	rows, err := e.db.QueryContext(ctx, fmt.Sprintf(routinesSQL, types))
	if err != nil {
		return nil, fmt.Errorf("list %ss: %w", kind, err)
	}
	defer rows.Close()

	var out []schema.RoutineDefinition
	for rows.Next() {
		r := schema.RoutineDefinition{Kind: kind}
		var def sql.NullString
		if err := rows.Scan(&r.Schema, &r.Name, &def); err != nil {
			return nil, fmt.Errorf("scan %s: %w", kind, err)
		}
		// Encrypted modules report a NULL definition and cannot be copied.
		if !def.Valid {
			continue
		}
		r.Definition = def.String
		out = append(out, r)
	}
	return out, rows.Err()
}

func nullInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	return schema.IntPtr(int(v.Int64))
}
