package config

import (
	"fmt"
	"strings"

	"linemend/internal/linefile"
	"linemend/internal/repair"
)

// IssueSeverity is the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError blocks execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning is surfaced but does not block.
	SeverityWarning IssueSeverity = "warning"
)

// Issue is a single lint finding. Path is a dotted path into the job, such
// as "storage.dsn".
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue has error severity.
func HasErrors(issues []Issue) bool {
	for _, i := range issues {
		if i.Severity == SeverityError {
			return true
		}
	}
	return false
}

// ValidateJob lints j without mutating it.
func ValidateJob(j Job) []Issue {
	var issues []Issue
	add := func(sev IssueSeverity, path, format string, args ...any) {
		issues = append(issues, Issue{Severity: sev, Path: path, Message: fmt.Sprintf(format, args...)})
	}

	if strings.TrimSpace(j.Name) == "" {
		add(SeverityError, "name", "name must not be empty; it labels metrics and reports")
	}
	if strings.TrimSpace(j.Output.Dir) == "" {
		add(SeverityError, "output.dir", "output.dir must not be empty")
	}

	issues = append(issues, validateParser(j.Parser)...)

	if j.Validate.Contract != nil && len(j.Validate.Contract.Fields) == 0 {
		add(SeverityWarning, "validate.contract", "contract has no fields; it will not enforce anything")
	}
	if _, _, err := j.Contract(); err != nil {
		add(SeverityError, "validate.table", "%v", err)
	}

	issues = append(issues, validateStorage(j.Storage)...)

	switch j.Metrics.Backend {
	case "", "none":
	case "pushgateway", "prom":
		if j.Metrics.PushgatewayURL == "" {
			add(SeverityError, "metrics.pushgateway_url", "pushgateway backend requires a url")
		}
	case "datadog", "dogstatsd":
	default:
		add(SeverityError, "metrics.backend", "unknown metrics backend %q", j.Metrics.Backend)
	}

	if j.Runtime.Workers < 0 {
		add(SeverityError, "runtime.workers", "workers must not be negative")
	}
	return issues
}

func validateParser(p Parser) []Issue {
	var issues []Issue
	if p.Kind != "" && p.Kind != "lines" {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "parser.kind",
			Message:  fmt.Sprintf("unknown parser kind %q; only \"lines\" is implemented", p.Kind),
		})
	}

	d := p.Options.String("delimiter", ";")
	switch {
	case d == "":
		issues = append(issues, Issue{SeverityError, "parser.options.delimiter", "delimiter must not be empty"})
	case d == `\t`:
	case len([]rune(d)) != 1:
		issues = append(issues, Issue{SeverityError, "parser.options.delimiter", fmt.Sprintf("delimiter %q must be a single character", d)})
	case d == "\n" || d == "\r":
		issues = append(issues, Issue{SeverityError, "parser.options.delimiter", "delimiter must not be a line terminator"})
	}

	for _, key := range []string{"encoding", "fallback_encoding"} {
		name := p.Options.String(key, "")
		if name == "" || name == linefile.Auto {
			continue
		}
		if _, _, err := linefile.Resolve(name); err != nil {
			issues = append(issues, Issue{SeverityError, "parser.options." + key, err.Error()})
		}
	}

	switch s := repair.Strategy(p.Options.String("strategy", string(repair.StrategyMode))); s {
	case repair.StrategyMode, repair.StrategyMax:
	default:
		issues = append(issues, Issue{SeverityError, "parser.options.strategy", fmt.Sprintf("unknown strategy %q", s)})
	}
	if n := p.Options.Int("max_fragments", repair.DefaultMaxFragments); n < 2 {
		issues = append(issues, Issue{SeverityWarning, "parser.options.max_fragments", fmt.Sprintf("max_fragments=%d disables merging", n)})
	}
	return issues
}

func validateStorage(s Storage) []Issue {
	if s.Kind == "" {
		return nil
	}
	var issues []Issue
	switch s.Kind {
	case "postgres", "mssql", "sqlite":
	default:
		issues = append(issues, Issue{SeverityError, "storage.kind", fmt.Sprintf("unknown storage kind %q", s.Kind)})
	}
	if strings.TrimSpace(s.DSN) == "" {
		issues = append(issues, Issue{SeverityError, "storage.dsn", "storage.dsn must not be empty"})
	}
	if strings.TrimSpace(s.Table) == "" {
		issues = append(issues, Issue{SeverityError, "storage.table", "storage.table must not be empty"})
	}
	if s.BatchSize <= 0 {
		issues = append(issues, Issue{SeverityWarning, "storage.batch_size", fmt.Sprintf("batch_size=%d; non-positive batch sizes may hurt throughput", s.BatchSize)})
	}
	return issues
}
