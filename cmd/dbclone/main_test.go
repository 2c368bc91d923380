package main

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"dbclone/internal/schema"
	"dbclone/internal/sqltest"
	"dbclone/internal/storage"
)

// kept keeps the database open across commands so tests can inspect it.
type kept struct{ *sqltest.Endpoint }

func (kept) Close() error { return nil }

func openSQLite(t *testing.T) *sqltest.Endpoint {
	t.Helper()
	ep, err := sqltest.Open(context.Background())
	if err != nil {
		t.Fatalf("sqltest.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = ep.Close() })
	return ep
}

// run executes one command line against endpoints keyed by DSN.
func run(t *testing.T, env map[string]string, eps map[string]*sqltest.Endpoint, args ...string) (int, string) {
	t.Helper()
	var out bytes.Buffer
	a := newApp(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}, &out)
	a.envFile = ""
	a.open = func(_ context.Context, cfg storage.Config) (storage.Endpoint, error) {
		ep, ok := eps[cfg.DSN]
		if !ok {
			return nil, fmt.Errorf("no endpoint for %q", cfg.DSN)
		}
		return kept{ep}, nil
	}
	code := a.execute(context.Background(), args)
	return code, out.String()
}

func baseEnv() map[string]string {
	return map[string]string{
		"SOURCE_KIND": "postgres",
		"SOURCE_DSN":  "src",
		"TARGET_KIND": "postgres",
		"TARGET_DSN":  "dst",
		"BATCH_SIZE":  "4",
	}
}

func seedItems(t *testing.T, ep *sqltest.Endpoint, n int) {
	t.Helper()
	ep.MustExec(`CREATE TABLE "Items" ("id" INTEGER NOT NULL, "name" VARCHAR(30), "qty" INTEGER, PRIMARY KEY ("id"))`)
	for i := 1; i <= n; i++ {
		ep.MustExec(fmt.Sprintf(`INSERT INTO "Items" VALUES (%d, 'item-%d', %d)`, i, i, i*3))
	}
}

func countItems(t *testing.T, ep *sqltest.Endpoint) int64 {
	t.Helper()
	n, err := ep.CountRows(context.Background(), schema.TableIdentity{Schema: sqltest.Schema, Name: "Items"})
	if err != nil {
		t.Fatalf("CountRows() error = %v", err)
	}
	return n
}

// TestRootCommands verifies the command tree, including the alias.
func TestRootCommands(t *testing.T) {
	t.Parallel()

	root := newApp(nil, &bytes.Buffer{}).rootCmd()
	for _, name := range []string{"export", "import", "migrate", "disaster-recovery", "verify", "fix"} {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd == root {
			t.Fatalf("Find(%q) = %v, %v, want a subcommand", name, cmd, err)
		}
	}
	if f := root.PersistentFlags().ShorthandLookup("v"); f == nil || f.Name != "verbose" {
		t.Fatalf("-v flag = %v, want verbose", f)
	}
}

// TestInvalidConfigExitsNonZero verifies validation errors stop the run
// before any endpoint is opened.
func TestInvalidConfigExitsNonZero(t *testing.T) {
	t.Parallel()

	env := baseEnv()
	env["SOURCE_KIND"] = "oracle"
	code, _ := run(t, env, nil, "migrate")
	if code != 1 {
		t.Fatalf("exit = %d, want 1", code)
	}
}

// TestMigrateVerifyFix drives a full cycle: clone, verify, drift, detect,
// repair, verify again.
func TestMigrateVerifyFix(t *testing.T) {
	t.Parallel()

	src, dst := openSQLite(t), openSQLite(t)
	seedItems(t, src, 10)
	eps := map[string]*sqltest.Endpoint{"src": src, "dst": dst}
	env := baseEnv()

	code, out := run(t, env, eps, "disaster-recovery")
	if code != 0 {
		t.Fatalf("migrate exit = %d, output:\n%s", code, out)
	}
	if !strings.Contains(out, "rows=10") || !strings.Contains(out, "verify: matched=1 mismatched=0 errored=0") {
		t.Fatalf("migrate output = %q, want rows=10 and a clean verify line", out)
	}
	if got := countItems(t, dst); got != 10 {
		t.Fatalf("target rows = %d, want 10", got)
	}

	if code, out := run(t, env, eps, "verify"); code != 0 {
		t.Fatalf("verify exit = %d, output:\n%s", code, out)
	}

	dst.MustExec(`UPDATE "Items" SET "name" = 'drifted' WHERE "id" = 3`)
	code, out = run(t, env, eps, "verify")
	if code != 1 {
		t.Fatalf("verify after drift exit = %d, want 1", code)
	}
	if !strings.Contains(out, "DATA_CHECKSUM") || !strings.Contains(out, "mismatched_tables=main.Items") {
		t.Fatalf("verify output = %q, want a DATA_CHECKSUM issue for main.Items", out)
	}

	code, out = run(t, env, eps, "fix")
	if code != 0 {
		t.Fatalf("fix exit = %d, output:\n%s", code, out)
	}
	if !strings.Contains(out, "action=reloaded") || !strings.Contains(out, "success=true") {
		t.Fatalf("fix output = %q, want a reload and success", out)
	}

	if code, out := run(t, env, eps, "verify"); code != 0 {
		t.Fatalf("verify after fix exit = %d, output:\n%s", code, out)
	}
}

// TestExportImport round-trips a table through a local archive.
func TestExportImport(t *testing.T) {
	t.Parallel()

	src, dst := openSQLite(t), openSQLite(t)
	seedItems(t, src, 9)
	eps := map[string]*sqltest.Endpoint{"src": src, "dst": dst}
	env := baseEnv()
	env["EXPORT_DIR"] = filepath.Join(t.TempDir(), "archive")
	env["CHUNK_SIZE"] = "4"
	env["EXPORT_COMPRESS"] = "true"

	code, out := run(t, env, eps, "export")
	if code != 0 {
		t.Fatalf("export exit = %d, output:\n%s", code, out)
	}
	if !strings.Contains(out, "tables=1 rows=9 failed_tables=none") {
		t.Fatalf("export output = %q, want tables=1 rows=9", out)
	}

	code, out = run(t, env, eps, "import")
	if code != 0 {
		t.Fatalf("import exit = %d, output:\n%s", code, out)
	}
	if got := countItems(t, dst); got != 9 {
		t.Fatalf("target rows = %d, want 9", got)
	}
}

// TestImportMissingArchive verifies an empty location fails cleanly.
func TestImportMissingArchive(t *testing.T) {
	t.Parallel()

	env := baseEnv()
	env["EXPORT_DIR"] = t.TempDir()
	code, _ := run(t, env, map[string]*sqltest.Endpoint{"dst": openSQLite(t)}, "import")
	if code != 1 {
		t.Fatalf("import exit = %d, want 1", code)
	}
}
