// Package verify compares a table on the source and target of a clone.
//
// The structural check compares column definitions; the data check compares
// row counts and an order-independent checksum of row content. Every
// failure is reported as an Issue in the table's Result, never as a returned
// error, so one bad table cannot abort a run over many.
package verify

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"dbclone/internal/metrics"
	"dbclone/internal/schema"
	"dbclone/internal/storage"
)

// Options configures a Verifier.
type Options struct {
	Job string
	// BatchSize is the window size for client-side checksums.
	BatchSize int
}

// Verifier compares tables between two endpoints.
type Verifier struct {
	src storage.Endpoint
	dst storage.Endpoint
	opt Options
}

// New returns a Verifier for src and dst.
func New(src, dst storage.Endpoint, opt Options) *Verifier {
	if opt.BatchSize <= 0 {
		opt.BatchSize = 10000
	}
	return &Verifier{src: src, dst: dst, opt: opt}
}

// Tables verifies each table in order.
func (v *Verifier) Tables(ctx context.Context, tables []schema.TableIdentity) []Result {
	out := make([]Result, 0, len(tables))
	for _, t := range tables {
		if ctx.Err() != nil {
			break
		}
		out = append(out, v.Table(ctx, t))
	}
	return out
}

// Table verifies one table: structure, then row counts, then (when the
// structure matches and the table is not empty) the data checksum.
func (v *Verifier) Table(ctx context.Context, t schema.TableIdentity) Result {
	start := time.Now()
	issues, count, err := v.check(ctx, t)
	if err != nil {
		log.Printf("verify: table=%s error: %v", t, err)
		issues = []Issue{{Type: IssueError, Message: err.Error()}}
	}
	res := NewResult(t, count, issues)

	metrics.RecordVerification(v.opt.Job, string(res.Status))
	metrics.RecordStep(v.opt.Job, "verify", err, time.Since(start))
	log.Printf("verify: table=%s status=%s rows=%s issues=%d", t, res.Status, humanize.Comma(count), len(res.Issues))
	for _, is := range res.Issues {
		log.Printf("verify: table=%s %s: %s", t, is.Type, is.Message)
	}
	return res
}

// Structure returns the structural differences for t, reading both schemas
// fresh.
func (v *Verifier) Structure(ctx context.Context, t schema.TableIdentity) ([]string, error) {
	src, err := v.src.TableSchema(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("source schema %s: %w", t, err)
	}
	dst, err := v.dst.TableSchema(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("target schema %s: %w", t, err)
	}
	return CompareColumns(src.Columns, dst.Columns, v.normalizer()), nil
}

func (v *Verifier) normalizer() Normalizer {
	if v.src.Kind() == v.dst.Kind() {
		return nil
	}
	return v.dst.Dialect().NormalizeColumn
}

func (v *Verifier) check(ctx context.Context, t schema.TableIdentity) ([]Issue, int64, error) {
	srcCount, err := v.src.CountRows(ctx, t)
	if err != nil {
		return nil, 0, fmt.Errorf("source count: %w", err)
	}

	exists, err := v.dst.TableExists(ctx, t)
	if err != nil {
		return nil, srcCount, fmt.Errorf("target lookup: %w", err)
	}
	if !exists {
		return []Issue{{Type: IssueStructure, Message: fmt.Sprintf("table %s does not exist on target", t)}}, srcCount, nil
	}

	srcSchema, err := v.src.TableSchema(ctx, t)
	if err != nil {
		return nil, srcCount, fmt.Errorf("source schema: %w", err)
	}
	dstSchema, err := v.dst.TableSchema(ctx, t)
	if err != nil {
		return nil, srcCount, fmt.Errorf("target schema: %w", err)
	}

	var issues []Issue
	for _, d := range CompareColumns(srcSchema.Columns, dstSchema.Columns, v.normalizer()) {
		issues = append(issues, Issue{Type: IssueStructure, Message: d})
	}

	dstCount, err := v.dst.CountRows(ctx, t)
	if err != nil {
		return nil, srcCount, fmt.Errorf("target count: %w", err)
	}
	if srcCount != dstCount {
		issues = append(issues, Issue{
			Type:    IssueRowCount,
			Message: fmt.Sprintf("row count differs: source=%d target=%d", srcCount, dstCount),
		})
	}

	// A checksum over structurally different or unequal-size tables says
	// nothing the other issues do not.
	if len(issues) > 0 || srcCount == 0 {
		return issues, srcCount, nil
	}

	a, b, err := v.checksums(ctx, srcSchema, dstSchema)
	if err != nil {
		return nil, srcCount, fmt.Errorf("checksum: %w", err)
	}
	if a != b {
		msg := fmt.Sprintf("checksum differs: source=%s target=%s", a, b)
		if approx := srcSchema.ApproximateColumns(); len(approx) > 0 {
			msg += fmt.Sprintf("; approximate numeric columns may differ by representation: %s", strings.Join(approx, ", "))
		}
		issues = append(issues, Issue{Type: IssueDataChecksum, Message: msg})
	}
	return issues, srcCount, nil
}

// checksums computes both sides' checksums: server-side when both endpoints
// are the same kind and support it, otherwise client-side on both.
func (v *Verifier) checksums(ctx context.Context, src, dst schema.TableSchema) (string, string, error) {
	srcCols := src.ChecksumColumns()
	if len(srcCols) == 0 {
		return "", "", nil
	}
	dstCols := make([]schema.ColumnDescriptor, 0, len(srcCols))
	for _, c := range srcCols {
		tc, ok := dst.Column(c.Name)
		if !ok {
			return "", "", fmt.Errorf("column %s missing on target", c.Name)
		}
		dstCols = append(dstCols, tc)
	}

	if v.src.Kind() == v.dst.Kind() {
		a, okA, err := v.src.Checksum(ctx, src)
		if err != nil {
			return "", "", fmt.Errorf("source: %w", err)
		}
		if okA {
			b, okB, err := v.dst.Checksum(ctx, dst)
			if err != nil {
				return "", "", fmt.Errorf("target: %w", err)
			}
			if okB {
				return a, b, nil
			}
		}
	}

	batch := int64(v.opt.BatchSize)
	a, _, err := ClientChecksum(ctx, v.src, src, srcCols, batch)
	if err != nil {
		return "", "", fmt.Errorf("source: %w", err)
	}
	b, _, err := ClientChecksum(ctx, v.dst, dst, dstCols, batch)
	if err != nil {
		return "", "", fmt.Errorf("target: %w", err)
	}
	return a, b, nil
}
