package transfer

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"

	"dbclone/internal/retry"
	"dbclone/internal/schema"
)

// RowOutcome is the result of inserting one row of a fallback batch.
type RowOutcome struct {
	Offset int64 // position of the row in the table's paging order
	Err    error // nil on success
}

// FallbackResult summarizes one batch inserted row by row.
type FallbackResult struct {
	Succeeded int64
	Failed    int64
	Rejected  []RowOutcome

	// Interrupted is set when the run context was canceled before every row
	// was attempted.
	Interrupted bool
}

// Fallback inserts a batch one row at a time so that a single bad value
// does not sink the whole batch.
type Fallback struct {
	dst    Target
	policy retry.Policy

	mu      sync.Mutex
	rejects io.Writer
}

// NewFallback returns a Fallback writing through dst. Each row insert is
// retried on transient errors with policy. When rejects is non-nil every
// failed row is appended to it as a literal INSERT statement.
func NewFallback(dst Target, policy retry.Policy, rejects io.Writer) *Fallback {
	policy.Retryable = dst.IsTransient
	return &Fallback{dst: dst, policy: policy, rejects: rejects}
}

// Run inserts rows (aligned to columns) starting at table offset base. Row
// failures are counted, logged and skipped; Run always finishes its batch
// unless ctx is canceled.
func (f *Fallback) Run(ctx context.Context, s schema.TableSchema, columns []string, rows [][]any, base int64) FallbackResult {
	var res FallbackResult

	cols := make([]schema.ColumnDescriptor, len(columns))
	for i, name := range columns {
		cols[i], _ = s.Column(name)
	}

	for i, row := range rows {
		if ctx.Err() != nil {
			res.Interrupted = true
			return res
		}

		params := make([]any, len(row))
		for j, v := range row {
			params[j] = CoerceParam(v, cols[j])
		}

		err := retry.Run(ctx, f.policy, func() error {
			return f.dst.InsertRow(ctx, s, columns, params)
		})
		if err == nil {
			res.Succeeded++
			continue
		}

		offset := base + int64(i)
		res.Failed++
		res.Rejected = append(res.Rejected, RowOutcome{Offset: offset, Err: err})
		log.Printf("fallback: table=%s row=%d insert failed: %v", s.Table, offset, err)
		f.reject(s, columns, row)
	}
	return res
}

func (f *Fallback) reject(s schema.TableSchema, columns []string, row []any) {
	if f.rejects == nil {
		return
	}
	stmt, err := InsertStatement(f.dst.Dialect(), s, columns, row)
	if err != nil {
		log.Printf("fallback: table=%s render reject: %v", s.Table, err)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := fmt.Fprintln(f.rejects, stmt); err != nil {
		log.Printf("fallback: table=%s write reject: %v", s.Table, err)
	}
}
