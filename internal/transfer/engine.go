// Package transfer moves a table's rows from a source to a target in
// fixed-size windows.
//
// Each window is read with an OFFSET/FETCH query in the table's stable paging
// order and bulk-loaded into the target in one call. A window the bulk path
// rejects is handed to the row-level Fallback, which inserts it one row at a
// time; its successes and failures are counted and the transfer moves on to
// the next window. Windows are applied strictly in offset order.
//
// Paging assumes a static source. Rows inserted or deleted on the source
// while a table is being transferred can be skipped or duplicated.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"dbclone/internal/metrics"
	"dbclone/internal/retry"
	"dbclone/internal/schema"
	"dbclone/internal/storage"
)

// DefaultBatchSize is the window size when Options.BatchSize is zero.
const DefaultBatchSize = 10000

// Source is where rows come from: a live endpoint or an export archive.
type Source interface {
	CountRows(ctx context.Context, t schema.TableIdentity) (int64, error)
	FetchWindow(ctx context.Context, s schema.TableSchema, columns []string, offset, limit int64) ([][]any, error)
}

// Target is the subset of storage.Endpoint the engine writes through.
type Target interface {
	CopyFrom(ctx context.Context, s schema.TableSchema, columns []string, rows [][]any) (int64, error)
	InsertRow(ctx context.Context, s schema.TableSchema, columns []string, values []any) error
	IsTransient(err error) bool
	Dialect() storage.Dialect
}

// Options configures an Engine.
type Options struct {
	Job       string
	BatchSize int

	// ProgressEvery is the number of windows between progress lines. The
	// final window of a table always reports.
	ProgressEvery int
	Verbose       bool

	Retry   retry.Policy
	Rejects io.Writer

	// OnProgress, when set, receives every reported snapshot.
	OnProgress func(Progress)
	// Now is the clock used for throughput. nil uses time.Now.
	Now func() time.Time
}

// TableResult accounts for every row of one table transfer.
type TableResult struct {
	Table           schema.TableIdentity
	Total           int64
	Transferred     int64
	Failed          int64
	Batches         int
	FallbackBatches int
	Duration        time.Duration
}

// Complete reports whether every counted row reached the target.
func (r TableResult) Complete() bool {
	return r.Failed == 0 && r.Transferred == r.Total
}

// Engine is the batch transfer engine for one source/target pair.
type Engine struct {
	src      Source
	dst      Target
	opt      Options
	fallback *Fallback
}

// New returns an Engine reading from src and writing to dst.
func New(src Source, dst Target, opt Options) *Engine {
	if opt.BatchSize <= 0 {
		opt.BatchSize = DefaultBatchSize
	}
	if opt.ProgressEvery <= 0 {
		opt.ProgressEvery = 1
	}
	if opt.Now == nil {
		opt.Now = time.Now
	}
	return &Engine{
		src:      src,
		dst:      dst,
		opt:      opt,
		fallback: NewFallback(dst, opt.Retry, opt.Rejects),
	}
}

// Columns returns the columns a transfer moves from src to dst: source
// insertable columns that are also insertable on the target, in source
// order.
func Columns(src, dst schema.TableSchema) []string {
	writable := map[string]string{}
	for _, c := range dst.InsertableColumns() {
		writable[strings.ToLower(c.Name)] = c.Name
	}
	var out []string
	for _, c := range src.InsertableColumns() {
		if name, ok := writable[strings.ToLower(c.Name)]; ok {
			out = append(out, name)
		}
	}
	return out
}

// Table transfers every row of src into dst. Row and window failures are
// recovered and counted in the result; a returned error is fatal to this
// table only (count or fetch failure, exhausted retries while interrupted,
// or cancellation between windows).
func (e *Engine) Table(ctx context.Context, src, dst schema.TableSchema) (res TableResult, err error) {
	start := e.opt.Now()
	res.Table = dst.Table
	defer func() {
		res.Duration = e.opt.Now().Sub(start)
		metrics.RecordStep(e.opt.Job, "transfer", err, res.Duration)
	}()

	cols := Columns(src, dst)
	if len(cols) == 0 {
		return res, fmt.Errorf("transfer %s: no insertable columns in common", dst.Table)
	}

	total, err := e.src.CountRows(ctx, src.Table)
	if err != nil {
		return res, fmt.Errorf("count %s: %w", src.Table, err)
	}
	res.Total = total
	if total == 0 {
		log.Printf("transfer: table=%s rows=0 nothing to copy", dst.Table)
		e.report(Progress{Table: dst.Table})
		return res, nil
	}
	log.Printf("transfer: table=%s rows=%s batch_size=%d starting", dst.Table, humanize.Comma(total), e.opt.BatchSize)

	limit := int64(e.opt.BatchSize)
	bulk := e.opt.Retry
	bulk.Retryable = e.dst.IsTransient

	for offset := int64(0); offset < total; offset += limit {
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("transfer %s stopped at offset=%d: %w", dst.Table, offset, err)
		}

		rows, err := e.src.FetchWindow(ctx, src, cols, offset, limit)
		if err != nil {
			return res, fmt.Errorf("fetch %s offset=%d: %w", src.Table, offset, err)
		}
		if len(rows) == 0 {
			log.Printf("transfer: table=%s offset=%d source returned no rows, stopping early", dst.Table, offset)
			break
		}
		res.Batches++

		n, err := retry.Do(ctx, bulk, func() (int64, error) {
			return e.dst.CopyFrom(ctx, dst, cols, rows)
		})
		switch {
		case err == nil:
			res.Transferred += n
			metrics.RecordRows(e.opt.Job, metrics.RowsTransferred, n)
		case ctx.Err() != nil && errors.Is(err, ctx.Err()):
			return res, fmt.Errorf("transfer %s stopped at offset=%d: %w", dst.Table, offset, err)
		default:
			log.Printf("transfer: table=%s batch=%d offset=%d bulk load failed, inserting row by row: %v",
				dst.Table, res.Batches, offset, err)
			fb := e.fallback.Run(ctx, dst, cols, rows, offset)
			res.FallbackBatches++
			res.Transferred += fb.Succeeded
			res.Failed += fb.Failed
			metrics.RecordRows(e.opt.Job, metrics.RowsFallbackOK, fb.Succeeded)
			metrics.RecordRows(e.opt.Job, metrics.RowsFallbackFailed, fb.Failed)
			log.Printf("fallback: table=%s batch=%d ok=%d failed=%d", dst.Table, res.Batches, fb.Succeeded, fb.Failed)
			if fb.Interrupted {
				return res, fmt.Errorf("transfer %s stopped during row fallback at offset=%d: %w", dst.Table, offset, ctx.Err())
			}
		}
		metrics.RecordBatches(e.opt.Job, 1)

		last := offset+limit >= total
		if last || res.Batches%e.opt.ProgressEvery == 0 || e.opt.Verbose {
			e.report(Progress{
				Table:       dst.Table,
				Batch:       res.Batches,
				Transferred: res.Transferred,
				Failed:      res.Failed,
				Total:       total,
				Elapsed:     e.opt.Now().Sub(start),
			})
		}
	}

	log.Printf("transfer: table=%s done transferred=%s failed=%s batches=%d fallback_batches=%d elapsed=%s",
		dst.Table, humanize.Comma(res.Transferred), humanize.Comma(res.Failed), res.Batches, res.FallbackBatches,
		e.opt.Now().Sub(start).Truncate(time.Millisecond))
	return res, nil
}

func (e *Engine) report(p Progress) {
	log.Printf("transfer: %s", p)
	if e.opt.OnProgress != nil {
		e.opt.OnProgress(p)
	}
}
