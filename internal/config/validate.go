package config

import (
	"fmt"
	"strings"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError blocks the run.
	SeverityError IssueSeverity = "error"
	// SeverityWarning is surfaced but does not block.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation finding. Path names the environment
// variable (or variables) the finding is about.
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements error so an Issue can be returned where an error is
// expected.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// Command names which endpoints and settings a run needs.
type Command string

const (
	CommandExport  Command = "export"
	CommandImport  Command = "import"
	CommandMigrate Command = "migrate"
	CommandVerify  Command = "verify"
	CommandFix     Command = "fix"
)

// HasErrors reports whether any issue is an error.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Validate checks c for cmd without mutating it. Export needs only the
// source, import only the target, every other command both.
func Validate(c *Config, cmd Command) []Issue {
	var issues []Issue

	needSource := cmd != CommandImport
	needTarget := cmd != CommandExport
	if needSource {
		issues = append(issues, validateEndpoint("SOURCE_", c.Source)...)
	}
	if needTarget {
		issues = append(issues, validateEndpoint("TARGET_", c.Target)...)
	}
	if needSource && needTarget && sameDatabase(c.Source, c.Target) {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "SOURCE_*/TARGET_*",
			Message:  "source and target point at the same database",
		})
	}

	issues = append(issues, validateRuntime(c)...)

	if cmd == CommandExport || cmd == CommandImport {
		if strings.TrimSpace(c.ExportDir) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "EXPORT_DIR",
				Message:  "export/import requires a directory or s3:// location",
			})
		}
		if strings.HasPrefix(c.ExportDir, "s3://") && c.AWSRegion == "" && c.S3Endpoint == "" {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     "AWS_REGION",
				Message:  "no region set; the AWS default chain must supply one",
			})
		}
	}

	issues = append(issues, validateMetrics(c)...)
	return issues
}

func validateEndpoint(prefix string, e Endpoint) []Issue {
	var issues []Issue

	switch e.Kind {
	case KindMSSQL, KindPostgres:
	case "":
		return append(issues, Issue{
			Severity: SeverityError,
			Path:     prefix + "KIND",
			Message:  prefix + "KIND must not be empty",
		})
	default:
		return append(issues, Issue{
			Severity: SeverityError,
			Path:     prefix + "KIND",
			Message:  fmt.Sprintf("unknown kind %q; want %s or %s", e.Kind, KindMSSQL, KindPostgres),
		})
	}

	if e.DSN != "" {
		return issues
	}
	if strings.TrimSpace(e.Server) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     prefix + "SERVER",
			Message:  "server is required unless " + prefix + "DSN is set",
		})
	}
	if strings.TrimSpace(e.Database) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     prefix + "DATABASE",
			Message:  "database is required unless " + prefix + "DSN is set",
		})
	}
	if e.Port < 0 || e.Port > 65535 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     prefix + "PORT",
			Message:  fmt.Sprintf("port %d is out of range", e.Port),
		})
	}
	if e.User == "" {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     prefix + "USER",
			Message:  "no user set; the driver's default authentication will be used",
		})
	}
	return issues
}

func validateRuntime(c *Config) []Issue {
	var issues []Issue
	positive := []struct {
		path string
		v    int
	}{
		{"BATCH_SIZE", c.BatchSize},
		{"CHUNK_SIZE", c.ChunkSize},
		{"PROGRESS_INTERVAL", c.ProgressInterval},
		{"RETRY_MAX", c.RetryMax},
	}
	for _, p := range positive {
		if p.v <= 0 {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     p.path,
				Message:  fmt.Sprintf("%s must be > 0 (got %d)", p.path, p.v),
			})
		}
	}
	if c.PoolMin < 0 || (c.PoolMax > 0 && c.PoolMin > c.PoolMax) {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "POOL_MIN",
			Message:  fmt.Sprintf("pool bounds min=%d max=%d are inconsistent", c.PoolMin, c.PoolMax),
		})
	}
	if c.RetryDelay < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "RETRY_DELAY",
			Message:  "RETRY_DELAY must not be negative",
		})
	}
	if c.BatchSize > 0 && c.ChunkSize > 0 && c.BatchSize > c.ChunkSize {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "BATCH_SIZE",
			Message:  "BATCH_SIZE exceeds CHUNK_SIZE; exports read windows of CHUNK_SIZE",
		})
	}
	return issues
}

func validateMetrics(c *Config) []Issue {
	var issues []Issue
	switch c.MetricsBackend {
	case "", "none":
	case "pushgateway":
		if c.PushgatewayURL == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "PUSHGATEWAY_URL",
				Message:  "pushgateway backend requires PUSHGATEWAY_URL",
			})
		}
	case "datadog":
		if c.DatadogAddr == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "DD_AGENT_ADDR",
				Message:  "datadog backend requires DD_AGENT_ADDR",
			})
		}
	default:
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "METRICS_BACKEND",
			Message:  fmt.Sprintf("unknown metrics backend %q; want none, pushgateway or datadog", c.MetricsBackend),
		})
	}
	return issues
}

func sameDatabase(a, b Endpoint) bool {
	if a.DSN != "" || b.DSN != "" {
		return a.DSN != "" && a.DSN == b.DSN
	}
	pa, pb := a.Port, b.Port
	if pa == 0 {
		pa = DefaultPort(a.Kind)
	}
	if pb == 0 {
		pb = DefaultPort(b.Kind)
	}
	return a.Kind == b.Kind &&
		strings.EqualFold(a.Server, b.Server) &&
		pa == pb &&
		strings.EqualFold(a.Database, b.Database)
}
