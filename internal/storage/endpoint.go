// Package storage contains the engine-agnostic contracts the clone runs on:
// an Endpoint is one open database (catalog reads, row windows, bulk load,
// single-row insert, statement execution) and a Dialect renders the
// statements that endpoint's engine understands.
//
// Backends register a factory per kind at init time; importing
// dbclone/internal/storage/all makes every built-in backend available.
package storage

import (
	"context"

	"dbclone/internal/schema"
)

// Catalog reads a connection's system catalog. Results are fresh snapshots.
type Catalog interface {
	// ListTables returns every base table, ordered by schema then name.
	ListTables(ctx context.Context) ([]schema.TableIdentity, error)
	// Columns returns the columns of t in ordinal order.
	Columns(ctx context.Context, t schema.TableIdentity) ([]schema.ColumnDescriptor, error)
	// TableSchema returns columns, primary key and outgoing foreign keys.
	TableSchema(ctx context.Context, t schema.TableIdentity) (schema.TableSchema, error)
	// TableExists reports whether t is a base table on this endpoint.
	TableExists(ctx context.Context, t schema.TableIdentity) (bool, error)
	// ReferencingForeignKeys returns foreign keys on other tables that point at t.
	ReferencingForeignKeys(ctx context.Context, t schema.TableIdentity) ([]schema.ForeignKeyRef, error)
	ListFunctions(ctx context.Context) ([]schema.RoutineDefinition, error)
	ListViews(ctx context.Context) ([]schema.RoutineDefinition, error)
}

// Endpoint is one side of a clone.
type Endpoint interface {
	Catalog

	// Kind is the registered backend kind ("mssql", "postgres").
	Kind() string

	// CountRows runs a single aggregate count over t.
	CountRows(ctx context.Context, t schema.TableIdentity) (int64, error)

	// FetchWindow reads up to limit rows of columns starting at offset, in
	// the table's stable paging order. Values are driver-native.
	FetchWindow(ctx context.Context, s schema.TableSchema, columns []string, offset, limit int64) ([][]any, error)

	// CopyFrom bulk-loads rows into s.Table in one operation and returns the
	// number of rows loaded. Any row the engine rejects fails the whole call.
	CopyFrom(ctx context.Context, s schema.TableSchema, columns []string, rows [][]any) (int64, error)

	// InsertRow inserts one row with a parameterized INSERT.
	InsertRow(ctx context.Context, s schema.TableSchema, columns []string, values []any) error

	// Exec runs a statement with no result set.
	Exec(ctx context.Context, stmt string, args ...any) error

	// Checksum computes an order-independent aggregate checksum of s's
	// checksum columns on the server. ok is false when the backend has no
	// server-side form for this table; callers fall back to a client-side
	// checksum.
	Checksum(ctx context.Context, s schema.TableSchema) (value string, ok bool, err error)

	// IsTransient reports whether err is worth retrying (lock timeouts,
	// deadlocks, dropped connections).
	IsTransient(err error) bool

	Dialect() Dialect

	Close() error
}

// Dialect renders engine-specific statements. Every identifier is validated
// with schema.ValidateIdentifier before interpolation.
type Dialect interface {
	// QuoteIdent quotes a single identifier segment.
	QuoteIdent(id string) string
	// QuoteTable quotes schema and name.
	QuoteTable(t schema.TableIdentity) string

	// NormalizeColumn reports how a source column (of any supported engine)
	// would appear in this engine's catalog once created by CreateTableSQL.
	NormalizeColumn(c schema.ColumnDescriptor) (schema.ColumnDescriptor, error)

	// EnsureSchemaSQL creates the named schema if it does not exist.
	EnsureSchemaSQL(name string) (string, error)
	// CreateTableSQL materializes s for this engine. sameEngine is set when
	// s was read from an engine of this kind: column types are then rebuilt
	// as the source declares them and default expressions are copied.
	CreateTableSQL(s schema.TableSchema, sameEngine bool) (string, error)
	DropTableSQL(t schema.TableIdentity) (string, error)
	ClearTableSQL(t schema.TableIdentity) (string, error)
	// BackupTableSQL copies t's rows into a new table named backup.
	BackupTableSQL(t schema.TableIdentity, backup string) (string, error)
	// AddForeignKeySQL adds one (possibly multi-column) constraint.
	AddForeignKeySQL(group []schema.ForeignKeyRef) (string, error)
	DropForeignKeySQL(fk schema.ForeignKeyRef) (string, error)
	// InsertSQL renders a parameterized single-row INSERT.
	InsertSQL(t schema.TableIdentity, columns []string) (string, error)

	// BinaryLiteral renders bytes as an inline literal (0x.. or '\x..').
	BinaryLiteral(b []byte) string
	// BoolLiteral renders a boolean literal for a column of dataType.
	BoolLiteral(v bool, dataType string) string
}
