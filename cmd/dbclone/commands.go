package main

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"dbclone/internal/archive"
	"dbclone/internal/config"
	"dbclone/internal/metrics"
	"dbclone/internal/migrate"
	"dbclone/internal/repair"
	"dbclone/internal/schema"
	"dbclone/internal/storage"
	"dbclone/internal/verify"
)

func (a *app) exportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Export the source schema and data to EXPORT_DIR",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			flush, err := a.setup(config.CommandExport)
			if err != nil {
				return err
			}
			defer flush()
			ctx := cmd.Context()

			src, err := a.openEndpoint(ctx, "source", a.cfg.Source)
			if err != nil {
				return err
			}
			defer closeEndpoint("source", src)

			store, err := archive.OpenStore(ctx, a.cfg.ExportDir, a.s3Config())
			if err != nil {
				return err
			}
			tables, err := a.sourceTables(cmd, src)
			if err != nil {
				return err
			}

			ex := archive.NewExporter(src, store, archive.ExportOptions{
				Job:       a.cfg.JobName,
				RunID:     uuid.NewString(),
				ChunkSize: a.cfg.ChunkSize,
				BatchSize: a.cfg.BatchSize,
				Compress:  a.cfg.ExportCompress,
				Now:       a.now,
			})
			m, err := ex.Run(ctx, tables)
			if err != nil {
				return fmt.Errorf("export: %w", err)
			}

			var rows int64
			var failed []string
			for _, e := range m.Tables {
				rows += e.Rows
				if e.Error != "" {
					failed = append(failed, e.Table.String())
				}
			}
			fmt.Fprintf(a.out, "export: run_id=%s location=%s tables=%d rows=%s failed_tables=%s\n",
				m.RunID, a.cfg.ExportDir, len(m.Tables), humanize.Comma(rows), listOrNone(failed))
			if len(failed) > 0 {
				return errFailed
			}
			return nil
		},
	}
}

func (a *app) importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import",
		Short: "Import an archive from EXPORT_DIR into the target",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			flush, err := a.setup(config.CommandImport)
			if err != nil {
				return err
			}
			defer flush()
			ctx := cmd.Context()

			store, err := archive.OpenStore(ctx, a.cfg.ExportDir, a.s3Config())
			if err != nil {
				return err
			}
			arc, err := archive.Open(ctx, store)
			if err != nil {
				return fmt.Errorf("import: %w", err)
			}
			log.Printf("import: archive run=%s source_kind=%s tables=%d",
				arc.Manifest().RunID, arc.Kind(), len(arc.Manifest().Tables))

			dst, err := a.openEndpoint(ctx, "target", a.cfg.Target)
			if err != nil {
				return err
			}
			defer closeEndpoint("target", dst)

			sum, err := a.runMigrate(cmd, arc, dst)
			metrics.RecordRows(a.cfg.JobName, metrics.RowsImported, sum.Transferred())
			return err
		},
	}
}

func (a *app) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "migrate",
		Aliases: []string{"disaster-recovery"},
		Short:   "Clone the source database into the target",
		Long: `Create missing target tables, copy every table in batches, add foreign
keys after the data is loaded, copy functions and views, then verify the
result when VALIDATE is set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			flush, err := a.setup(config.CommandMigrate)
			if err != nil {
				return err
			}
			defer flush()

			src, dst, closeAll, err := a.openPair(cmd.Context())
			if err != nil {
				return err
			}
			defer closeAll()

			_, err = a.runMigrate(cmd, src, dst)
			return err
		},
	}
}

// runMigrate clones src into dst and prints the summary.
func (a *app) runMigrate(cmd *cobra.Command, src migrate.Source, dst storage.Endpoint) (migrate.Summary, error) {
	topt, closeRejects, err := a.transferOptions(dst)
	if err != nil {
		return migrate.Summary{}, err
	}
	defer closeRejects()

	m := migrate.New(src, dst, migrate.Options{
		Job:          a.cfg.JobName,
		RunID:        uuid.NewString(),
		Filter:       a.filter(),
		Transfer:     topt,
		CopyRoutines: a.cfg.CopyRoutines,
		Validate:     a.cfg.Validate,
		Now:          a.now,
	})
	sum, err := m.Run(cmd.Context())
	a.printMigrate(sum)
	if err != nil {
		return sum, err
	}
	if !sum.OK() {
		return sum, errFailed
	}
	return sum, nil
}

func (a *app) printMigrate(sum migrate.Summary) {
	fmt.Fprintf(a.out, "run_id=%s\n", sum.RunID)
	fmt.Fprintf(a.out, "tables=%d rows=%s failed_rows=%s duration=%s\n",
		len(sum.Tables), humanize.Comma(sum.Transferred()), humanize.Comma(sum.FailedRows()),
		sum.Finished.Sub(sum.Started).Round(time.Millisecond))
	fmt.Fprintf(a.out, "foreign_keys=%d foreign_key_failures=%d\n", sum.ForeignKeys, sum.ForeignKeyFailures)
	switch {
	case sum.RoutinesSkipped:
		fmt.Fprintln(a.out, "routines=skipped")
	default:
		fmt.Fprintf(a.out, "routines=%d routine_failures=%d\n", sum.Routines.Copied, len(sum.Routines.Failed))
	}
	fmt.Fprintf(a.out, "failed_tables=%s\n", listOrNone(sum.FailedTables()))
	if sum.Verification != nil {
		a.printVerification(sum.Verification)
	}
}

func (a *app) verifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Compare structure, row counts and checksums of every common table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			flush, err := a.setup(config.CommandVerify)
			if err != nil {
				return err
			}
			defer flush()
			ctx := cmd.Context()

			src, dst, closeAll, err := a.openPair(ctx)
			if err != nil {
				return err
			}
			defer closeAll()

			tables, err := a.commonTables(cmd, src, dst)
			if err != nil {
				return err
			}
			v := verify.New(src, dst, verify.Options{Job: a.cfg.JobName, BatchSize: a.cfg.BatchSize})
			results := v.Tables(ctx, tables)
			fmt.Fprintf(a.out, "run_id=%s\n", uuid.NewString())
			a.printVerification(results)
			if err := ctx.Err(); err != nil {
				return err
			}
			if !verify.Summarize(results).OK() {
				return errFailed
			}
			return nil
		},
	}
}

func (a *app) printVerification(results []verify.Result) {
	for _, r := range results {
		if r.Status == verify.StatusMatch {
			if a.verbose {
				fmt.Fprintf(a.out, "%-8s %s rows=%s\n", r.Status, r.Table, humanize.Comma(r.RowCount))
			}
			continue
		}
		for _, is := range r.Issues {
			fmt.Fprintf(a.out, "%-8s %s %s: %s\n", r.Status, r.Table, is.Type, is.Message)
		}
	}
	fmt.Fprintf(a.out, "verify: %s\n", verify.Summarize(results))
}

func (a *app) fixCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fix",
		Short: "Repair every common table that does not match the source",
		Long: `Verify every common table, then repair the ones that differ: structural
differences recreate the target table (after an optional backup), data
differences clear and reload it. The repaired tables are verified again.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			flush, err := a.setup(config.CommandFix)
			if err != nil {
				return err
			}
			defer flush()
			ctx := cmd.Context()

			src, dst, closeAll, err := a.openPair(ctx)
			if err != nil {
				return err
			}
			defer closeAll()

			tables, err := a.commonTables(cmd, src, dst)
			if err != nil {
				return err
			}
			topt, closeRejects, err := a.transferOptions(dst)
			if err != nil {
				return err
			}
			defer closeRejects()

			r := repair.New(src, dst, repair.Options{
				Job:      a.cfg.JobName,
				Backup:   a.cfg.Backup,
				Transfer: topt,
				Now:      a.now,
			})
			res, err := r.Run(ctx, tables)
			fmt.Fprintf(a.out, "run_id=%s\n", uuid.NewString())
			for _, o := range res.Outcomes {
				action := "reloaded"
				if o.Recreated {
					action = "recreated"
				}
				line := fmt.Sprintf("fix: table=%s action=%s rows=%s", o.Table, action, humanize.Comma(o.Transfer.Transferred))
				if o.BackupName != "" {
					line += " backup=" + o.BackupName
				}
				if o.Err != nil {
					line += fmt.Sprintf(" error=%q", o.Err.Error())
				}
				fmt.Fprintln(a.out, line)
			}
			if len(res.Remaining) > 0 {
				a.printVerification(res.Remaining)
			}
			fmt.Fprintf(a.out, "fix: %s\n", res)
			if err != nil {
				return err
			}
			if !res.Success {
				return errFailed
			}
			return nil
		},
	}
}

func (a *app) s3Config() archive.S3Config {
	return archive.S3Config{
		Region:       a.cfg.AWSRegion,
		Endpoint:     a.cfg.S3Endpoint,
		UsePathStyle: a.cfg.S3PathStyle,
	}
}

// sourceTables lists the source tables that pass the table filters.
func (a *app) sourceTables(cmd *cobra.Command, src storage.Catalog) ([]schema.TableIdentity, error) {
	all, err := src.ListTables(cmd.Context())
	if err != nil {
		return nil, fmt.Errorf("list source tables: %w", err)
	}
	return a.filter().Apply(all), nil
}

// commonTables is sourceTables narrowed to tables that also exist on dst.
func (a *app) commonTables(cmd *cobra.Command, src, dst storage.Catalog) ([]schema.TableIdentity, error) {
	tables, err := a.sourceTables(cmd, src)
	if err != nil {
		return nil, err
	}
	common, err := repair.CommonTables(cmd.Context(), dst, tables)
	if err != nil {
		return nil, err
	}
	if skipped := len(tables) - len(common); skipped > 0 {
		log.Printf("dbclone: %d source tables have no target counterpart and are skipped", skipped)
	}
	return common, nil
}

func listOrNone(names []string) string {
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ",")
}
