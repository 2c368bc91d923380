package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"dbclone/internal/schema"
)

const listTablesSQL = `
SELECT table_schema, table_name
  FROM information_schema.tables
 WHERE table_type = 'BASE TABLE'
   AND table_schema NOT IN ('pg_catalog', 'information_schema')
 ORDER BY table_schema, table_name`

const tableExistsSQL = `
SELECT count(*)
  FROM information_schema.tables
 WHERE table_type = 'BASE TABLE' AND table_schema = $1 AND table_name = $2`

const columnsSQL = `
SELECT column_name,
       CASE WHEN data_type IN ('USER-DEFINED', 'ARRAY') THEN udt_name ELSE data_type END,
       character_maximum_length, numeric_precision, numeric_scale, datetime_precision,
       is_nullable, column_default, ordinal_position,
       is_identity = 'YES', is_generated = 'ALWAYS'
  FROM information_schema.columns
 WHERE table_schema = $1 AND table_name = $2
 ORDER BY ordinal_position`

const primaryKeySQL = `
SELECT kcu.column_name
  FROM information_schema.table_constraints tc
  JOIN information_schema.key_column_usage kcu
    ON kcu.constraint_name = tc.constraint_name
   AND kcu.table_schema = tc.table_schema
   AND kcu.table_name = tc.table_name
 WHERE tc.constraint_type = 'PRIMARY KEY'
   AND tc.table_schema = $1 AND tc.table_name = $2
 ORDER BY kcu.ordinal_position`

// foreignKeysSQL lists one row per constraint column; %[1]s/%[2]s select the
// side (owning or referenced) the filter applies to.
const foreignKeysSQL = `
SELECT c.conname, ns.nspname, cl.relname, a.attname, rns.nspname, rcl.relname, ra.attname
  FROM pg_constraint c
  JOIN pg_class cl ON cl.oid = c.conrelid
  JOIN pg_namespace ns ON ns.oid = cl.relnamespace
  JOIN pg_class rcl ON rcl.oid = c.confrelid
  JOIN pg_namespace rns ON rns.oid = rcl.relnamespace
  CROSS JOIN LATERAL unnest(c.conkey, c.confkey) WITH ORDINALITY AS k(attnum, refattnum, ord)
  JOIN pg_attribute a ON a.attrelid = c.conrelid AND a.attnum = k.attnum
  JOIN pg_attribute ra ON ra.attrelid = c.confrelid AND ra.attnum = k.refattnum
 WHERE c.contype = 'f' AND %[1]s.nspname = $1 AND %[2]s.relname = $2
 ORDER BY ns.nspname, cl.relname, c.conname, k.ord`

// Extension-owned objects are recreated by CREATE EXTENSION, not copied.
const functionsSQL = `
SELECT n.nspname, p.proname, pg_get_functiondef(p.oid)
  FROM pg_proc p
  JOIN pg_namespace n ON n.oid = p.pronamespace
 WHERE n.nspname NOT IN ('pg_catalog', 'information_schema')
   AND p.prokind = 'f'
   AND NOT EXISTS (SELECT 1 FROM pg_depend d WHERE d.objid = p.oid AND d.deptype = 'e')
 ORDER BY p.oid`

const viewsSQL = `
SELECT schemaname, viewname,
       'CREATE OR REPLACE VIEW ' || quote_ident(schemaname) || '.' || quote_ident(viewname) || ' AS ' || definition
  FROM pg_views
 WHERE schemaname NOT IN ('pg_catalog', 'information_schema')
 ORDER BY schemaname, viewname`

// ListTables returns every user base table.
func (e *Endpoint) ListTables(ctx context.Context) ([]schema.TableIdentity, error) {
	ctx, cancel := e.opContext(ctx)
	defer cancel()

	rows, err := e.pool.Query(ctx, listTablesSQL)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (schema.TableIdentity, error) {
		var t schema.TableIdentity
		err := r.Scan(&t.Schema, &t.Name)
		return t, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan tables: %w", err)
	}
	return out, nil
}

// TableExists reports whether t is a base table.
func (e *Endpoint) TableExists(ctx context.Context, t schema.TableIdentity) (bool, error) {
	ctx, cancel := e.opContext(ctx)
	defer cancel()

	var n int64
	if err := e.pool.QueryRow(ctx, tableExistsSQL, t.Schema, t.Name).Scan(&n); err != nil {
		return false, fmt.Errorf("table exists %s: %w", t, err)
	}
	return n > 0, nil
}

// Columns returns t's columns in ordinal order.
func (e *Endpoint) Columns(ctx context.Context, t schema.TableIdentity) ([]schema.ColumnDescriptor, error) {
	ctx, cancel := e.opContext(ctx)
	defer cancel()

	rows, err := e.pool.Query(ctx, columnsSQL, t.Schema, t.Name)
	if err != nil {
		return nil, fmt.Errorf("columns %s: %w", t, err)
	}
	out, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (schema.ColumnDescriptor, error) {
		var (
			c                           schema.ColumnDescriptor
			length, prec, scale, dtPrec *int32
			nullable                    string
			def                         *string
			ordinal                     int32
		)
		if err := r.Scan(&c.Name, &c.DataType, &length, &prec, &scale, &dtPrec,
			&nullable, &def, &ordinal, &c.Identity, &c.Computed); err != nil {
			return c, err
		}
		c.DataType = strings.ToLower(c.DataType)
		c.CharLength = intPtr(length)
		c.NumericPrecision = intPtr(prec)
		c.NumericScale = intPtr(scale)
		c.DateTimePrecision = intPtr(dtPrec)
		c.Nullable = strings.EqualFold(nullable, "YES")
		c.Default = def
		c.Ordinal = int(ordinal)
		return c, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan columns %s: %w", t, err)
	}
	return out, nil
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
	fks, err := e.foreignKeys(ctx, "ns", "cl", t)
	if err != nil {
		return schema.TableSchema{}, err
	}
	return schema.TableSchema{Table: t, Columns: cols, PrimaryKey: pk, ForeignKeys: fks}, nil
}

// ReferencingForeignKeys returns foreign keys on any table that reference t.
func (e *Endpoint) ReferencingForeignKeys(ctx context.Context, t schema.TableIdentity) ([]schema.ForeignKeyRef, error) {
	return e.foreignKeys(ctx, "rns", "rcl", t)
}

func (e *Endpoint) primaryKey(ctx context.Context, t schema.TableIdentity) ([]string, error) {
	ctx, cancel := e.opContext(ctx)
	defer cancel()

	rows, err := e.pool.Query(ctx, primaryKeySQL, t.Schema, t.Name)
	if err != nil {
		return nil, fmt.Errorf("primary key %s: %w", t, err)
	}
	out, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan primary key %s: %w", t, err)
	}
	return out, nil
}

func (e *Endpoint) foreignKeys(ctx context.Context, nsAlias, relAlias string, t schema.TableIdentity) ([]schema.ForeignKeyRef, error) {
	ctx, cancel := e.opContext(ctx)
	defer cancel()

	rows, err := e.pool.Query(ctx, fmt.Sprintf(foreignKeysSQL, nsAlias, relAlias), t.Schema, t.Name)
	if err != nil {
		return nil, fmt.Errorf("foreign keys %s: %w", t, err)
	}
	out, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (schema.ForeignKeyRef, error) {
		var fk schema.ForeignKeyRef
		err := r.Scan(&fk.Name, &fk.Table.Schema, &fk.Table.Name, &fk.Column,
			&fk.RefTable.Schema, &fk.RefTable.Name, &fk.RefColumn)
		return fk, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan foreign keys %s: %w", t, err)
	}
	return out, nil
}

// ListFunctions returns user functions with their CREATE OR REPLACE text.
func (e *Endpoint) ListFunctions(ctx context.Context) ([]schema.RoutineDefinition, error) {
	return e.routines(ctx, functionsSQL, schema.RoutineFunction)
}

// ListViews returns user views rendered as CREATE OR REPLACE VIEW.
func (e *Endpoint) ListViews(ctx context.Context) ([]schema.RoutineDefinition, error) {
	return e.routines(ctx, viewsSQL, schema.RoutineView)
}

func (e *Endpoint) routines(ctx context.Context, q string, kind schema.RoutineKind) ([]schema.RoutineDefinition, error) {
	ctx, cancel := e.opContext(ctx)
	defer cancel()

	rows, err := e.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list %ss: %w", kind, err)
	}
	out, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (schema.RoutineDefinition, error) {
		d := schema.RoutineDefinition{Kind: kind}
		err := r.Scan(&d.Schema, &d.Name, &d.Definition)
		return d, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan %ss: %w", kind, err)
	}
	return out, nil
}

func intPtr(v *int32) *int {
	if v == nil {
		return nil
	}
	return schema.IntPtr(int(*v))
}
