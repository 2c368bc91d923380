// Package migrate runs a full clone of one database into another: it
// enumerates the source tables, materializes the missing ones on the target,
// transfers each table's rows, adds foreign keys once all data is loaded,
// copies functions and views and, optionally, verifies the result.
//
// Tables are processed one at a time. A table that fails is logged and
// counted and the run moves on; only listing the source tables and
// cancellation end a run early.
package migrate

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"dbclone/internal/metrics"
	"dbclone/internal/retry"
	"dbclone/internal/schema"
	"dbclone/internal/storage"
	"dbclone/internal/transfer"
	"dbclone/internal/verify"
)

// Options configures a Migrator.
type Options struct {
	Job    string
	RunID  string
	Filter Filter

	Transfer transfer.Options

	CopyRoutines bool
	Validate     bool

	// Now stamps the summary. nil uses time.Now.
	Now func() time.Time
}

// TableReport is the outcome for one table.
type TableReport struct {
	Table    schema.TableIdentity
	Created  bool
	Transfer transfer.TableResult
	Err      error
}

// Summary is the outcome of a run.
type Summary struct {
	RunID    string
	Started  time.Time
	Finished time.Time

	Tables []TableReport

	ForeignKeys        int
	ForeignKeyFailures int
	Routines           RoutineResult
	// RoutinesSkipped is set when source and target engines differ.
	RoutinesSkipped bool

	// Verification is nil unless Options.Validate was set.
	Verification []verify.Result
}

// Transferred is the number of rows written across every table.
func (s Summary) Transferred() int64 {
	var n int64
	for _, t := range s.Tables {
		n += t.Transfer.Transferred
	}
	return n
}

// FailedRows is the number of rows the fallback could not insert.
func (s Summary) FailedRows() int64 {
	var n int64
	for _, t := range s.Tables {
		n += t.Transfer.Failed
	}
	return n
}

// FailedTables names the tables whose migration returned an error.
func (s Summary) FailedTables() []string {
	var out []string
	for _, t := range s.Tables {
		if t.Err != nil {
			out = append(out, t.Table.String())
		}
	}
	sort.Strings(out)
	return out
}

// OK reports whether every table migrated and, when verified, matched.
func (s Summary) OK() bool {
	if len(s.FailedTables()) > 0 {
		return false
	}
	if s.Verification != nil && !verify.Summarize(s.Verification).OK() {
		return false
	}
	return true
}

func (s Summary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "run_id=%s tables=%d rows=%s failed_rows=%s duration=%s",
		s.RunID, len(s.Tables), humanize.Comma(s.Transferred()), humanize.Comma(s.FailedRows()),
		s.Finished.Sub(s.Started).Round(time.Millisecond))
	fmt.Fprintf(&b, " foreign_keys=%d foreign_key_failures=%d", s.ForeignKeys, s.ForeignKeyFailures)
	if s.RoutinesSkipped {
		b.WriteString(" routines=skipped")
	} else {
		fmt.Fprintf(&b, " routines=%d routine_failures=%d", s.Routines.Copied, len(s.Routines.Failed))
	}
	if failed := s.FailedTables(); len(failed) > 0 {
		b.WriteString(" failed_tables=" + strings.Join(failed, ","))
	}
	if s.Verification != nil {
		b.WriteString(" verify: " + verify.Summarize(s.Verification).String())
	}
	return b.String()
}

// Source is what a run reads from: a live endpoint, or an export archive
// for an import.
type Source interface {
	transfer.Source
	Kind() string
	ListTables(ctx context.Context) ([]schema.TableIdentity, error)
	TableSchema(ctx context.Context, t schema.TableIdentity) (schema.TableSchema, error)
	ListFunctions(ctx context.Context) ([]schema.RoutineDefinition, error)
	ListViews(ctx context.Context) ([]schema.RoutineDefinition, error)
}

// Migrator clones src into dst.
type Migrator struct {
	src  Source
	dst  storage.Endpoint
	opt  Options
	exec retry.Policy
}

// New returns a Migrator. Verification needs a live source and is skipped
// when src is not a storage.Endpoint.
func New(src Source, dst storage.Endpoint, opt Options) *Migrator {
	if opt.RunID == "" {
		opt.RunID = uuid.NewString()
	}
	if opt.Now == nil {
		opt.Now = time.Now
	}
	if opt.Transfer.Job == "" {
		opt.Transfer.Job = opt.Job
	}
	exec := opt.Transfer.Retry
	exec.Retryable = dst.IsTransient
	return &Migrator{src: src, dst: dst, opt: opt, exec: exec}
}

// Tables lists the source tables that pass the filter.
func (m *Migrator) Tables(ctx context.Context) ([]schema.TableIdentity, error) {
	all, err := m.src.ListTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("list source tables: %w", err)
	}
	return m.opt.Filter.Apply(all), nil
}

// Run performs the clone. The returned Summary is populated as far as the
// run got even when an error is returned.
func (m *Migrator) Run(ctx context.Context) (Summary, error) {
	sum := Summary{RunID: m.opt.RunID, Started: m.opt.Now()}
	start := time.Now()

	tables, err := m.Tables(ctx)
	if err != nil {
		sum.Finished = m.opt.Now()
		metrics.RecordStep(m.opt.Job, "migrate", err, time.Since(start))
		return sum, err
	}
	log.Printf("migrate: run=%s tables=%d source=%s target=%s", sum.RunID, len(tables), m.src.Kind(), m.dst.Kind())

	engine := transfer.New(m.src, m.dst, m.opt.Transfer)
	ensured := map[string]bool{}
	var loaded []schema.TableSchema

	for _, t := range tables {
		if err := ctx.Err(); err != nil {
			sum.Finished = m.opt.Now()
			metrics.RecordStep(m.opt.Job, "migrate", err, time.Since(start))
			return sum, err
		}
		tableStart := time.Now()
		rep, src := m.table(ctx, engine, t, ensured)
		metrics.RecordStep(m.opt.Job, "migrate_table", rep.Err, time.Since(tableStart))
		if rep.Err != nil {
			log.Printf("migrate: table=%s failed: %v", t, rep.Err)
		} else if rep.Created {
			loaded = append(loaded, src)
		}
		sum.Tables = append(sum.Tables, rep)
	}

	for _, s := range loaded {
		for _, g := range s.ForeignKeyGroups() {
			if err := m.addForeignKey(ctx, g); err != nil {
				sum.ForeignKeyFailures++
				log.Printf("migrate: table=%s foreign key %s failed: %v", s.Table, g[0].Name, err)
				continue
			}
			sum.ForeignKeys++
		}
	}

	if m.opt.CopyRoutines {
		if m.src.Kind() != m.dst.Kind() {
			sum.RoutinesSkipped = true
			log.Printf("migrate: routines skipped: %s definitions do not run on %s", m.src.Kind(), m.dst.Kind())
		} else if err := m.copyRoutines(ctx, &sum); err != nil {
			log.Printf("migrate: routines: %v", err)
		}
	}

	if m.opt.Validate && ctx.Err() == nil {
		if ep, ok := m.src.(storage.Endpoint); ok {
			v := verify.New(ep, m.dst, verify.Options{Job: m.opt.Job, BatchSize: m.opt.Transfer.BatchSize})
			sum.Verification = v.Tables(ctx, tables)
		} else {
			log.Printf("migrate: verification skipped: %s source is not a live endpoint", m.src.Kind())
		}
	}

	sum.Finished = m.opt.Now()
	log.Printf("migrate: %s", sum)
	metrics.RecordStep(m.opt.Job, "migrate", ctx.Err(), time.Since(start))
	return sum, ctx.Err()
}

// table creates t on the target if needed, or clears it if it already
// exists, then transfers its rows.
func (m *Migrator) table(ctx context.Context, engine *transfer.Engine, t schema.TableIdentity, ensured map[string]bool) (TableReport, schema.TableSchema) {
	rep := TableReport{Table: t}
	d := m.dst.Dialect()

	src, err := m.src.TableSchema(ctx, t)
	if err != nil {
		rep.Err = fmt.Errorf("source schema: %w", err)
		return rep, src
	}

	if t.Schema != "" && !ensured[t.Schema] {
		stmt, err := d.EnsureSchemaSQL(t.Schema)
		if err == nil {
			err = m.run(ctx, stmt)
		}
		if err != nil {
			rep.Err = fmt.Errorf("ensure schema %s: %w", t.Schema, err)
			return rep, src
		}
		ensured[t.Schema] = true
	}

	exists, err := m.dst.TableExists(ctx, t)
	if err != nil {
		rep.Err = fmt.Errorf("target lookup: %w", err)
		return rep, src
	}
	if exists {
		stmt, err := d.ClearTableSQL(t)
		if err == nil {
			err = m.run(ctx, stmt)
		}
		if err != nil {
			rep.Err = fmt.Errorf("clear existing: %w", err)
			return rep, src
		}
	} else {
		stmt, err := d.CreateTableSQL(src, m.src.Kind() == m.dst.Kind())
		if err == nil {
			err = m.run(ctx, stmt)
		}
		if err != nil {
			rep.Err = fmt.Errorf("create: %w", err)
			return rep, src
		}
		rep.Created = true
	}

	dst, err := m.dst.TableSchema(ctx, t)
	if err != nil {
		rep.Err = fmt.Errorf("target schema: %w", err)
		return rep, src
	}
	rep.Transfer, rep.Err = engine.Table(ctx, src, dst)
	if rep.Err == nil {
		log.Printf("migrate: table=%s created=%t rows=%s failed=%s", t, rep.Created,
			humanize.Comma(rep.Transfer.Transferred), humanize.Comma(rep.Transfer.Failed))
	}
	return rep, src
}

func (m *Migrator) addForeignKey(ctx context.Context, group []schema.ForeignKeyRef) error {
	stmt, err := m.dst.Dialect().AddForeignKeySQL(group)
	if err != nil {
		return err
	}
	return m.run(ctx, stmt)
}

func (m *Migrator) copyRoutines(ctx context.Context, sum *Summary) error {
	fns, err := m.src.ListFunctions(ctx)
	if err != nil {
		return fmt.Errorf("list functions: %w", err)
	}
	views, err := m.src.ListViews(ctx)
	if err != nil {
		return fmt.Errorf("list views: %w", err)
	}
	sum.Routines = CopyRoutines(ctx, m.dst, append(fns, views...))
	log.Printf("migrate: routines copied=%d failed=%d passes=%d", sum.Routines.Copied, len(sum.Routines.Failed), sum.Routines.Passes)
	return nil
}

func (m *Migrator) run(ctx context.Context, stmt string) error {
	return retry.Run(ctx, m.exec, func() error { return m.dst.Exec(ctx, stmt) })
}
