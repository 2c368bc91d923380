package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// ErrUnsupportedKind is returned by Open for kinds with no registered factory.
var ErrUnsupportedKind = errors.New("unsupported storage.kind")

// Config is what a backend factory needs to open an Endpoint.
type Config struct {
	Kind string
	DSN  string

	PoolMin        int
	PoolMax        int
	ConnectTimeout time.Duration
	RequestTimeout time.Duration
}

// Factory opens an Endpoint for one backend kind.
type Factory func(ctx context.Context, cfg Config) (Endpoint, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register registers (or replaces) the factory for kind. Backends call it from
// init().
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[kind] = f
}

// Open opens an Endpoint using the factory registered for cfg.Kind.
func Open(ctx context.Context, cfg Config) (Endpoint, error) {
	mu.RLock()
	f, ok := factories[cfg.Kind]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w=%s", ErrUnsupportedKind, cfg.Kind)
	}
	return f(ctx, cfg)
}

// ListKinds returns a sorted snapshot of the registered kinds.
func ListKinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
