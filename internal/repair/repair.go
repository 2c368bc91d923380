// Package repair brings a diverged target back in line with its source.
//
// A run verifies every common table, then fixes each one that did not match:
// structural divergence recreates the target table from the source schema
// (after an optional backup) and data divergence clears the target rows. In
// both cases foreign keys on other tables that reference it are dropped first
// and restored after the table is retransferred with the batch engine, and
// the fixed set is verified again.
package repair

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"dbclone/internal/metrics"
	"dbclone/internal/retry"
	"dbclone/internal/schema"
	"dbclone/internal/storage"
	"dbclone/internal/transfer"
	"dbclone/internal/verify"
)

// Options configures a Repairer.
type Options struct {
	Job string
	// Backup copies the target rows into a side table before a structural
	// recreation.
	Backup   bool
	Transfer transfer.Options
	// Now names backup tables. nil uses time.Now.
	Now func() time.Time
}

// TableOutcome records what was done to one problematic table.
type TableOutcome struct {
	Table      schema.TableIdentity
	Recreated  bool
	Cleared    bool
	BackupName string
	Transfer   transfer.TableResult
	// ForeignKeyFailures counts constraints that could not be restored.
	ForeignKeyFailures int
	Err                error
}

// Result summarizes a repair run.
type Result struct {
	// Success is true iff every initially problematic table now matches.
	Success         bool
	Checked         int
	Problematic     int
	Fixed           int
	StillMismatched int

	Outcomes []TableOutcome
	// Remaining are the post-repair results that still do not match.
	Remaining []verify.Result
}

func (r Result) String() string {
	return fmt.Sprintf("checked=%d problematic=%d fixed=%d still_mismatched=%d success=%t",
		r.Checked, r.Problematic, r.Fixed, r.StillMismatched, r.Success)
}

// Repairer fixes target tables from a source.
type Repairer struct {
	src      storage.Endpoint
	dst      storage.Endpoint
	opt      Options
	verifier *verify.Verifier
	engine   *transfer.Engine
	exec     retry.Policy
}

// New returns a Repairer copying from src into dst.
func New(src, dst storage.Endpoint, opt Options) *Repairer {
	if opt.Now == nil {
		opt.Now = time.Now
	}
	if opt.Transfer.Job == "" {
		opt.Transfer.Job = opt.Job
	}
	exec := opt.Transfer.Retry
	exec.Retryable = dst.IsTransient
	return &Repairer{
		src:      src,
		dst:      dst,
		opt:      opt,
		verifier: verify.New(src, dst, verify.Options{Job: opt.Job, BatchSize: opt.Transfer.BatchSize}),
		engine:   transfer.New(src, dst, opt.Transfer),
		exec:     exec,
	}
}

// CommonTables returns the tables of candidates that also exist on dst,
// matched case-insensitively, in candidate order.
func CommonTables(ctx context.Context, dst storage.Catalog, candidates []schema.TableIdentity) ([]schema.TableIdentity, error) {
	targets, err := dst.ListTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("list target tables: %w", err)
	}
	have := make(map[string]struct{}, len(targets))
	for _, t := range targets {
		have[strings.ToLower(t.String())] = struct{}{}
	}
	var out []schema.TableIdentity
	for _, t := range candidates {
		if _, ok := have[strings.ToLower(t.String())]; ok {
			out = append(out, t)
		}
	}
	return out, nil
}

// Run verifies tables, fixes every one that does not match and verifies the
// fixed set again. Per-table failures are recorded in the outcome and do not
// stop the run; only cancellation is returned as an error.
func (r *Repairer) Run(ctx context.Context, tables []schema.TableIdentity) (Result, error) {
	start := time.Now()
	initial := r.verifier.Tables(ctx, tables)
	res := Result{Checked: len(initial)}

	var problems []verify.Result
	for _, v := range initial {
		if v.Status != verify.StatusMatch {
			problems = append(problems, v)
		}
	}
	res.Problematic = len(problems)
	log.Printf("repair: checked=%d problematic=%d", res.Checked, res.Problematic)
	if len(problems) == 0 {
		res.Success = ctx.Err() == nil
		metrics.RecordStep(r.opt.Job, "repair", ctx.Err(), time.Since(start))
		return res, ctx.Err()
	}

	fixed := make([]schema.TableIdentity, 0, len(problems))
	for _, p := range problems {
		if err := ctx.Err(); err != nil {
			metrics.RecordStep(r.opt.Job, "repair", err, time.Since(start))
			return res, err
		}
		out := r.table(ctx, p)
		if out.Err != nil {
			log.Printf("repair: table=%s failed: %v", p.Table, out.Err)
		}
		res.Outcomes = append(res.Outcomes, out)
		fixed = append(fixed, p.Table)
	}

	for _, v := range r.verifier.Tables(ctx, fixed) {
		if v.Status == verify.StatusMatch {
			res.Fixed++
			continue
		}
		res.Remaining = append(res.Remaining, v)
	}
	// Tables left unverified by a cancellation count as still mismatched.
	res.StillMismatched = len(fixed) - res.Fixed
	res.Success = res.StillMismatched == 0 && ctx.Err() == nil

	log.Printf("repair: %s", res)
	metrics.RecordStep(r.opt.Job, "repair", ctx.Err(), time.Since(start))
	return res, ctx.Err()
}

// table fixes one problematic table. A STRUCTURE issue recreates the table
// before any data is moved; anything else only clears the rows.
func (r *Repairer) table(ctx context.Context, v verify.Result) TableOutcome {
	out := TableOutcome{Table: v.Table}

	src, err := r.src.TableSchema(ctx, v.Table)
	if err != nil {
		out.Err = fmt.Errorf("source schema: %w", err)
		return out
	}

	var incoming []schema.ForeignKeyRef
	if v.Has(verify.IssueStructure) {
		incoming, err = r.recreate(ctx, src, &out)
		if err != nil {
			out.Err = err
			return out
		}
		out.Recreated = true
	} else {
		incoming, err = r.clear(ctx, v.Table)
		if err != nil {
			out.ForeignKeyFailures = r.addForeignKeys(ctx, schema.GroupForeignKeys(incoming))
			out.Err = err
			return out
		}
		out.Cleared = true
		log.Printf("repair: table=%s cleared", v.Table)
	}

	dst, err := r.dst.TableSchema(ctx, v.Table)
	if err != nil {
		out.Err = fmt.Errorf("target schema: %w", err)
		return out
	}
	out.Transfer, err = r.engine.Table(ctx, src, dst)
	if err != nil {
		out.Err = fmt.Errorf("retransfer: %w", err)
	}

	groups := schema.GroupForeignKeys(incoming)
	if out.Recreated {
		groups = append(src.ForeignKeyGroups(), groups...)
	}
	out.ForeignKeyFailures = r.addForeignKeys(ctx, groups)
	return out
}

// clear deletes every target row of t. Referencing foreign keys are dropped
// first, since a DELETE on a parent with child rows would violate them; they
// are returned, dropped or not, for the caller to restore.
func (r *Repairer) clear(ctx context.Context, t schema.TableIdentity) ([]schema.ForeignKeyRef, error) {
	incoming, err := r.dropIncoming(ctx, t)
	if err != nil {
		return incoming, err
	}
	stmt, err := r.dst.Dialect().ClearTableSQL(t)
	if err != nil {
		return incoming, err
	}
	if err := r.run(ctx, stmt); err != nil {
		return incoming, fmt.Errorf("clear: %w", err)
	}
	return incoming, nil
}

// dropIncoming drops the foreign keys on target tables that reference t and
// returns them.
func (r *Repairer) dropIncoming(ctx context.Context, t schema.TableIdentity) ([]schema.ForeignKeyRef, error) {
	incoming, err := r.dst.ReferencingForeignKeys(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("referencing foreign keys: %w", err)
	}
	for _, g := range schema.GroupForeignKeys(incoming) {
		stmt, err := r.dst.Dialect().DropForeignKeySQL(g[0])
		if err != nil {
			return incoming, err
		}
		if err := r.run(ctx, stmt); err != nil {
			return incoming, fmt.Errorf("drop foreign key %s: %w", g[0].Name, err)
		}
	}
	return incoming, nil
}

// recreate replaces the target table with one materialized from src. It
// returns the foreign keys on other tables that pointed at the old table so
// they can be restored once the data is back.
func (r *Repairer) recreate(ctx context.Context, src schema.TableSchema, out *TableOutcome) ([]schema.ForeignKeyRef, error) {
	d := r.dst.Dialect()
	t := src.Table

	exists, err := r.dst.TableExists(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("target lookup: %w", err)
	}

	var incoming []schema.ForeignKeyRef
	if exists {
		incoming, err = r.dropIncoming(ctx, t)
		if err != nil {
			return nil, err
		}

		if r.opt.Backup {
			name := BackupName(t, r.opt.Now())
			stmt, err := d.BackupTableSQL(t, name)
			if err != nil {
				return nil, err
			}
			if err := r.run(ctx, stmt); err != nil {
				return nil, fmt.Errorf("backup: %w", err)
			}
			out.BackupName = name
			log.Printf("repair: table=%s backup=%s", t, name)
		}

		stmt, err := d.DropTableSQL(t)
		if err != nil {
			return nil, err
		}
		if err := r.run(ctx, stmt); err != nil {
			return nil, fmt.Errorf("drop: %w", err)
		}
	}

	if t.Schema != "" {
		stmt, err := d.EnsureSchemaSQL(t.Schema)
		if err != nil {
			return nil, err
		}
		if err := r.run(ctx, stmt); err != nil {
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
	}

	stmt, err := d.CreateTableSQL(src, r.src.Kind() == r.dst.Kind())
	if err != nil {
		return nil, err
	}
	if err := r.run(ctx, stmt); err != nil {
		return nil, fmt.Errorf("create: %w", err)
	}
	log.Printf("repair: table=%s recreated", t)
	return incoming, nil
}

func (r *Repairer) addForeignKeys(ctx context.Context, groups [][]schema.ForeignKeyRef) int {
	failed := 0
	for _, g := range groups {
		stmt, err := r.dst.Dialect().AddForeignKeySQL(g)
		if err == nil {
			err = r.run(ctx, stmt)
		}
		if err != nil {
			failed++
			log.Printf("repair: table=%s foreign key %s not restored: %v", g[0].Table, g[0].Name, err)
		}
	}
	return failed
}

func (r *Repairer) run(ctx context.Context, stmt string) error {
	return retry.Run(ctx, r.exec, func() error { return r.dst.Exec(ctx, stmt) })
}

// BackupName is the side table a recreation backs up into:
// <table>_backup_<yyyymmddhhmmss>, with the table part shortened so the
// whole name stays a valid identifier.
func BackupName(t schema.TableIdentity, now time.Time) string {
	suffix := "_backup_" + now.UTC().Format("20060102150405")
	base := t.Name
	if limit := 128 - len(suffix); len(base) > limit {
		base = base[:limit]
	}
	return base + suffix
}
