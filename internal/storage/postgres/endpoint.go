// Package postgres implements storage.Endpoint for Postgres on pgx v5:
// information_schema and pg_catalog reads, OFFSET/FETCH row windows, COPY
// bulk loads via CopyFrom, and an md5-based server-side checksum.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"dbclone/internal/storage"
	"dbclone/internal/storage/postgres/ddl"
)

// Kind is the registered storage kind.
const Kind = "postgres"

// Config holds Postgres endpoint configuration.
type Config struct {
	DSN            string // connection string for pgxpool
	PoolMin        int
	PoolMax        int
	ConnectTimeout time.Duration
	RequestTimeout time.Duration
}

// Endpoint is a Postgres-backed storage.Endpoint.
type Endpoint struct {
	pool *pgxpool.Pool
	cfg  Config
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
			ConnectTimeout: cfg.ConnectTimeout,
			RequestTimeout: cfg.RequestTimeout,
		})
	})
}

// poolConfig parses the DSN and applies pool bounds.
func poolConfig(cfg Config) (*pgxpool.Config, error) {
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres dsn: %w", err)
	}
	if cfg.PoolMax > 0 {
		pc.MaxConns = int32(cfg.PoolMax)
	}
	if cfg.PoolMin > 0 {
		pc.MinConns = int32(cfg.PoolMin)
	}
	if cfg.ConnectTimeout > 0 {
		pc.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	}
	return pc, nil
}

// Open creates the pool and pings the server.
func Open(ctx context.Context, cfg Config) (*Endpoint, error) {
	pc, err := poolConfig(cfg)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("pgxpool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Endpoint{pool: pool, cfg: cfg}, nil
}

// Kind returns "postgres".
func (e *Endpoint) Kind() string { return Kind }

// Dialect returns the Postgres renderer.
func (e *Endpoint) Dialect() storage.Dialect { return ddl.Dialect{} }

// Close closes the pool.
func (e *Endpoint) Close() error {
	e.pool.Close()
	return nil
}

// opContext detaches a statement from run cancellation and applies the
// per-request timeout.
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
	_, err := e.pool.Exec(ctx, stmt, args...)
	return err
}
