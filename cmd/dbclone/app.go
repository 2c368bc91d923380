package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"dbclone/internal/config"
	"dbclone/internal/metrics"
	"dbclone/internal/metrics/datadog"
	"dbclone/internal/metrics/prompush"
	"dbclone/internal/migrate"
	"dbclone/internal/retry"
	"dbclone/internal/storage"
	"dbclone/internal/transfer"
)

// errFailed marks a run that completed but did not succeed. Its summary has
// already been printed, so main only sets the exit status.
var errFailed = errors.New("run did not succeed")

// app carries what every subcommand shares: where configuration comes from,
// how endpoints are opened and where summaries go.
type app struct {
	lookup  config.Lookup
	envFile string
	verbose bool
	out     io.Writer

	open func(ctx context.Context, cfg storage.Config) (storage.Endpoint, error)
	now  func() time.Time

	cfg *config.Config
}

func newApp(lookup config.Lookup, out io.Writer) *app {
	return &app{
		lookup:  lookup,
		envFile: ".env",
		out:     out,
		open:    storage.Open,
		now:     time.Now,
	}
}

// execute runs the command line and returns the process exit status.
func (a *app) execute(ctx context.Context, args []string) int {
	root := a.rootCmd()
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errFailed):
	case errors.Is(err, context.Canceled):
		log.Printf("dbclone: interrupted; committed batches are kept")
	default:
		log.Printf("dbclone: %v", err)
	}
	return 1
}

// setup loads and validates configuration for cmd and installs the metrics
// backend. The returned func flushes metrics.
func (a *app) setup(cmd config.Command) (func(), error) {
	cfg, err := config.Load(a.envFile, a.lookup)
	if err != nil {
		return nil, err
	}
	issues := config.Validate(cfg, cmd)
	for _, iss := range issues {
		log.Printf("config: %s: %s: %s", iss.Severity, iss.Path, iss.Message)
	}
	if config.HasErrors(issues) {
		return nil, fmt.Errorf("configuration is invalid")
	}
	a.cfg = cfg
	return a.setupMetrics(), nil
}

func (a *app) setupMetrics() func() {
	flush := func() {
		if err := metrics.Flush(); err != nil {
			log.Printf("metrics: flush error: %v", err)
		}
	}

	c := a.cfg
	switch c.MetricsBackend {
	case "pushgateway":
		b, err := prompush.NewBackend(c.JobName, c.PushgatewayURL)
		if err != nil {
			log.Printf("metrics: failed to init prom push backend: %v; using nop", err)
			return func() {}
		}
		log.Printf("metrics: url=%v, backend=%v, job_name=%v", c.PushgatewayURL, c.MetricsBackend, c.JobName)
		metrics.SetBackend(b)
		return flush

	case "datadog":
		b, err := datadog.NewBackend(datadog.Config{
			Addr:       c.DatadogAddr,
			Namespace:  "dbclone.",
			GlobalTags: []string{"job:" + c.JobName},
		})
		if err != nil {
			log.Printf("metrics: failed to init datadog backend: %v; using nop", err)
			return func() {}
		}
		log.Printf("metrics: addr=%v, backend=%v, job_name=%v", c.DatadogAddr, c.MetricsBackend, c.JobName)
		metrics.SetBackend(b)
		return flush

	default:
		if a.verbose {
			log.Printf("metrics: disabled (backend=%q)", c.MetricsBackend)
		}
		return func() {}
	}
}

// openEndpoint opens one side. role is "source" or "target" for messages.
func (a *app) openEndpoint(ctx context.Context, role string, e config.Endpoint) (storage.Endpoint, error) {
	sc, err := a.cfg.StorageConfig(e)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", role, err)
	}
	ep, err := a.open(ctx, sc)
	if err != nil {
		return nil, fmt.Errorf("open %s %s: %w", role, e.Redacted(), err)
	}
	if a.verbose {
		log.Printf("dbclone: %s=%s", role, e.Redacted())
	}
	return ep, nil
}

// openPair opens source then target. The returned func closes both.
func (a *app) openPair(ctx context.Context) (storage.Endpoint, storage.Endpoint, func(), error) {
	src, err := a.openEndpoint(ctx, "source", a.cfg.Source)
	if err != nil {
		return nil, nil, nil, err
	}
	dst, err := a.openEndpoint(ctx, "target", a.cfg.Target)
	if err != nil {
		closeEndpoint("source", src)
		return nil, nil, nil, err
	}
	return src, dst, func() {
		closeEndpoint("source", src)
		closeEndpoint("target", dst)
	}, nil
}

func closeEndpoint(role string, ep storage.Endpoint) {
	if err := ep.Close(); err != nil {
		log.Printf("dbclone: close %s: %v", role, err)
	}
}

func (a *app) filter() migrate.Filter {
	return migrate.Filter{Include: a.cfg.IncludeTables, Exclude: a.cfg.ExcludeTables}
}

// transferOptions builds the engine options for dst. The returned func
// closes the rejects file, if one was opened.
func (a *app) transferOptions(dst storage.Endpoint) (transfer.Options, func(), error) {
	c := a.cfg
	opt := transfer.Options{
		Job:           c.JobName,
		BatchSize:     c.BatchSize,
		ProgressEvery: c.ProgressInterval,
		Verbose:       a.verbose,
		Retry: retry.Policy{
			MaxAttempts: c.RetryMax,
			BaseDelay:   c.RetryDelay,
			Retryable:   dst.IsTransient,
		},
	}
	if c.RejectsFile == "" {
		return opt, func() {}, nil
	}
	f, err := os.OpenFile(c.RejectsFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return transfer.Options{}, nil, fmt.Errorf("open rejects file: %w", err)
	}
	opt.Rejects = f
	return opt, func() {
		if err := f.Close(); err != nil {
			log.Printf("dbclone: close rejects file: %v", err)
		}
	}, nil
}
