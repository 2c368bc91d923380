// Package mssql implements storage.Endpoint for Microsoft SQL Server on
// github.com/microsoft/go-mssqldb: INFORMATION_SCHEMA and sys.* catalog
// reads, OFFSET/FETCH row windows, bulk copy via mssql.CopyIn, and a
// HASHBYTES-based server-side checksum.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/microsoft/go-mssqldb/msdsn"

	"dbclone/internal/storage"
	"dbclone/internal/storage/mssql/ddl"
)

// Kind is the registered storage kind.
const Kind = "mssql"

// Config holds SQL Server endpoint configuration.
type Config struct {
	DSN            string
	PoolMin        int
	PoolMax        int
	RequestTimeout time.Duration
}

// Endpoint is a SQL Server-backed storage.Endpoint.
type Endpoint struct {
	db  *sql.DB
	cfg Config
}

var _ storage.Endpoint = (*Endpoint)(nil)

// newEndpoint is a test hook that points to Open by default.
var newEndpoint = Open

func init() {
	storage.Register(Kind, func(ctx context.Context, cfg storage.Config) (storage.Endpoint, error) {
		return newEndpoint(ctx, Config{
			DSN:            cfg.DSN,
			PoolMin:        cfg.PoolMin,
			PoolMax:        cfg.PoolMax,
			RequestTimeout: cfg.RequestTimeout,
		})
	})
}

// Open validates the DSN, opens a pool and pings the server.
func Open(ctx context.Context, cfg Config) (*Endpoint, error) {
	// Validate DSN early to fail fast on obvious mistakes.
	if _, err := msdsn.Parse(cfg.DSN); err != nil {
		return nil, fmt.Errorf("mssql dsn: %w", err)
	}
	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}
	if cfg.PoolMax > 0 {
		db.SetMaxOpenConns(cfg.PoolMax)
	}
	if cfg.PoolMin > 0 {
		db.SetMaxIdleConns(cfg.PoolMin)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Endpoint{db: db, cfg: cfg}, nil
}

// Kind returns "mssql".
func (e *Endpoint) Kind() string { return Kind }

// Dialect returns the T-SQL renderer.
func (e *Endpoint) Dialect() storage.Dialect { return ddl.Dialect{} }

// Close closes the pool.
func (e *Endpoint) Close() error { return e.db.Close() }

// opContext detaches a statement from run cancellation so an interrupt never
// aborts a statement mid-flight, and applies the per-request timeout.
func (e *Endpoint) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx = context.WithoutCancel(ctx)
	if e.cfg.RequestTimeout > 0 {
		return context.WithTimeout(ctx, e.cfg.RequestTimeout)
	}
	return ctx, func() {}
}

// Exec executes a statement against the pool.
func (e *Endpoint) Exec(ctx context.Context, stmt string, args ...any) error {
	ctx, cancel := e.opContext(ctx)
	defer cancel()
	_, err := e.db.ExecContext(ctx, stmt, args...)
	return err
}
