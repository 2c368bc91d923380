// Package sqltest is an in-memory SQLite storage.Endpoint for tests.
//
// It runs real SQL through modernc.org/sqlite so that transfer, verify,
// repair and migrate can be exercised end to end without a database
// server. Tables live in the "main" schema. SQLite cannot add or drop
// foreign key constraints on existing tables, so those statements are
// no-ops. It is not a supported migration engine.
package sqltest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"dbclone/internal/schema"
	"dbclone/internal/storage"
)

// Kind is reported by Endpoint.Kind.
const Kind = "sqlite"

// Schema is the schema every table lives in.
const Schema = "main"

// Endpoint is an in-memory SQLite database behind storage.Endpoint.
type Endpoint struct {
	db *sql.DB

	mu sync.Mutex
	// CopyHook, when set, runs before every CopyFrom; a non-nil error fails
	// the bulk load as the engine would.
	CopyHook func(t schema.TableIdentity, rows [][]any) error
	// InsertHook, when set, runs before every InsertRow.
	InsertHook func(t schema.TableIdentity, values []any) error

	copies   int
	inserts  int
	executed []string
}

var _ storage.Endpoint = (*Endpoint)(nil)

// Open creates a fresh, private in-memory database.
func Open(ctx context.Context) (*Endpoint, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// Every connection to :memory: is its own database; keep exactly one.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}
	return &Endpoint{db: db}, nil
}

// Kind returns "sqlite".
func (e *Endpoint) Kind() string { return Kind }

// Dialect returns the SQLite renderer.
func (e *Endpoint) Dialect() storage.Dialect { return Dialect{} }

// Close closes the database; its contents are gone afterwards.
func (e *Endpoint) Close() error { return e.db.Close() }

// DB exposes the handle for test setup and assertions.
func (e *Endpoint) DB() *sql.DB { return e.db }

// Copies returns the number of CopyFrom calls so far.
func (e *Endpoint) Copies() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.copies
}

// Inserts returns the number of InsertRow calls so far.
func (e *Endpoint) Inserts() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.inserts
}

// Executed returns every statement passed to Exec, in order.
func (e *Endpoint) Executed() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.executed...)
}

// MustExec runs setup statements and panics on error.
func (e *Endpoint) MustExec(stmts ...string) {
	for _, s := range stmts {
		if _, err := e.db.Exec(s); err != nil {
			panic(fmt.Sprintf("sqltest: %s: %v", s, err))
		}
	}
}

// Exec executes a statement.
func (e *Endpoint) Exec(ctx context.Context, stmt string, args ...any) error {
	e.mu.Lock()
	e.executed = append(e.executed, stmt)
	e.mu.Unlock()

	if strings.TrimSpace(stmt) == "" {
		return nil
	}
	if _, err := e.db.ExecContext(ctx, stmt, args...); err != nil {
		return fmt.Errorf("sqlite: exec: %w", err)
	}
	return nil
}

// CountRows runs SELECT COUNT(*) over t.
func (e *Endpoint) CountRows(ctx context.Context, t schema.TableIdentity) (int64, error) {
	if err := schema.ValidateTable(t); err != nil {
		return 0, err
	}
	var n int64
	if err := e.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+quoteTable(t)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", t, err)
	}
	return n, nil
}

// FetchWindow reads a LIMIT/OFFSET window ordered by primary key, or rowid.
func (e *Endpoint) FetchWindow(ctx context.Context, s schema.TableSchema, columns []string, offset, limit int64) ([][]any, error) {
	if err := schema.ValidateTable(s.Table); err != nil {
		return nil, err
	}
	cols := make([]string, len(columns))
	for i, c := range columns {
		if err := schema.ValidateIdentifier(c); err != nil {
			return nil, err
		}
		cols[i] = quoteIdent(c)
	}
	order := "rowid"
	if len(s.PrimaryKey) > 0 {
		order = strings.Join(mapIdent(s.PrimaryKey), ", ")
	}
	q := fmt.Sprintf("SELECT %s FROM %s ORDER BY %s LIMIT ? OFFSET ?", strings.Join(cols, ", "), quoteTable(s.Table), order)

	rows, err := e.db.QueryContext(ctx, q, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("fetch %s offset=%d: %w", s.Table, offset, err)
	}
	defer rows.Close()

	var out [][]any
	for rows.Next() {
		vals := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", s.Table, err)
		}
		out = append(out, vals)
	}
	return out, rows.Err()
}

// CopyFrom inserts rows inside one transaction; any failing row rolls the
// whole batch back.
func (e *Endpoint) CopyFrom(ctx context.Context, s schema.TableSchema, columns []string, rows [][]any) (int64, error) {
	e.mu.Lock()
	e.copies++
	hook := e.CopyHook
	e.mu.Unlock()

	if len(rows) == 0 {
		return 0, nil
	}
	if hook != nil {
		if err := hook(s.Table, rows); err != nil {
			return 0, err
		}
	}
	stmtSQL, err := Dialect{}.InsertSQL(s.Table, columns)
	if err != nil {
		return 0, err
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, stmtSQL)
	if err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	var inserted int64
	for i, row := range rows {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("bulk row %d: %w", i, err)
		}
		inserted++
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

// InsertRow inserts a single row.
func (e *Endpoint) InsertRow(ctx context.Context, s schema.TableSchema, columns []string, values []any) error {
	e.mu.Lock()
	e.inserts++
	hook := e.InsertHook
	e.mu.Unlock()

	if hook != nil {
		if err := hook(s.Table, values); err != nil {
			return err
		}
	}
	q, err := Dialect{}.InsertSQL(s.Table, columns)
	if err != nil {
		return err
	}
	if _, err := e.db.ExecContext(ctx, q, values...); err != nil {
		return fmt.Errorf("insert %s: %w", s.Table, err)
	}
	return nil
}

// Checksum has no server-side form on SQLite.
func (e *Endpoint) Checksum(context.Context, schema.TableSchema) (string, bool, error) {
	return "", false, nil
}

// IsTransient reports SQLITE_BUSY and SQLITE_LOCKED.
func (e *Endpoint) IsTransient(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return true
		}
	}
	return false
}
