// Package config defines the job configuration of a repair run. A Job is an
// explicit value decoded from JSON or YAML, adjusted by environment
// overrides and passed down; nothing in the core reads global state.
//
// Example (trimmed):
//
//	name: sinistres
//	source:  { dir: input, patterns: ["*.csv"] }
//	output:  { dir: output, parquet: true, reports: true }
//	parser:
//	  kind: lines
//	  options: { delimiter: ";", encoding: utf-8, fallback_encoding: latin-1 }
//	validate: { table: cnrps }
//	storage: { kind: sqlite, dsn: "file:out.db", table: sinistres, auto_create: true }
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"linemend/internal/validate"
)

// Job is the top-level object of a job file.
type Job struct {
	Name     string   `json:"name" yaml:"name"`
	Source   Source   `json:"source" yaml:"source"`
	Output   Output   `json:"output" yaml:"output"`
	Parser   Parser   `json:"parser" yaml:"parser"`
	Validate Validate `json:"validate" yaml:"validate"`
	Storage  Storage  `json:"storage" yaml:"storage"`
	Metrics  Metrics  `json:"metrics" yaml:"metrics"`
	Runtime  Runtime  `json:"runtime" yaml:"runtime"`
}

// Source selects the input files.
type Source struct {
	Dir      string   `json:"dir" yaml:"dir"`
	Patterns []string `json:"patterns" yaml:"patterns"`
}

// Output selects where results go and which optional outputs are produced.
type Output struct {
	Dir     string `json:"dir" yaml:"dir"`
	Parquet bool   `json:"parquet" yaml:"parquet"`
	Reports bool   `json:"reports" yaml:"reports"`
}

// Parser configures the line reader. Kind is "lines"; Options carries
// delimiter, encoding, fallback_encoding, chunk_size, join_with,
// max_fragments and strategy.
type Parser struct {
	Kind    string  `json:"kind" yaml:"kind"`
	Options Options `json:"options" yaml:"options"`
}

// Validate enables per-row semantic checks. Contract wins over Table, which
// names a registered contract.
type Validate struct {
	Table    string             `json:"table" yaml:"table"`
	Contract *validate.Contract `json:"contract,omitempty" yaml:"contract,omitempty"`
}

// Storage optionally loads every corrected file into a database table.
type Storage struct {
	Kind       string   `json:"kind" yaml:"kind"` // "", "postgres", "mssql", "sqlite"
	DSN        string   `json:"dsn" yaml:"dsn"`
	Table      string   `json:"table" yaml:"table"`
	Columns    []string `json:"columns" yaml:"columns"` // empty: use the corrected header
	AutoCreate bool     `json:"auto_create" yaml:"auto_create"`
	BatchSize  int      `json:"batch_size" yaml:"batch_size"`
}

// Metrics selects the metrics backend: "none", "pushgateway" or "datadog".
type Metrics struct {
	Backend        string `json:"backend" yaml:"backend"`
	PushgatewayURL string `json:"pushgateway_url" yaml:"pushgateway_url"`
	DatadogAddr    string `json:"datadog_addr" yaml:"datadog_addr"`
	Namespace      string `json:"namespace" yaml:"namespace"`
}

// Runtime controls concurrency.
type Runtime struct {
	Workers int `json:"workers" yaml:"workers"` // files repaired in parallel
}

// Defaults returns a runnable job.
func Defaults() Job {
	return Job{
		Name:   "linemend",
		Source: Source{Dir: ".", Patterns: []string{"*.csv", "*.txt"}},
		Output: Output{Dir: "output"},
		Parser: Parser{
			Kind: "lines",
			Options: Options{
				"delimiter":         ";",
				"encoding":          "utf-8",
				"fallback_encoding": "latin-1",
				"chunk_size":        100000,
				"strategy":          "mode",
			},
		},
		Storage: Storage{BatchSize: 5000},
		Metrics: Metrics{Backend: "none"},
		Runtime: Runtime{Workers: 1},
	}
}

// Load reads a job file on top of Defaults. Files ending in .yaml or .yml
// are decoded as YAML, everything else as JSON. An empty path returns the
// defaults.
func Load(path string) (Job, error) {
	job := Defaults()
	if path == "" {
		return job, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return job, fmt.Errorf("read config %s: %w", path, err)
	}

	// Decode into a zero Job and merge so a partial options bag does not
	// drop the defaults.
	var file Job
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &file)
	default:
		dec := json.NewDecoder(bytes.NewReader(b))
		err = dec.Decode(&file)
	}
	if err != nil {
		return job, fmt.Errorf("decode config %s: %w", path, err)
	}
	return merge(job, file), nil
}

func merge(base, over Job) Job {
	if over.Name != "" {
		base.Name = over.Name
	}
	if over.Source.Dir != "" {
		base.Source.Dir = over.Source.Dir
	}
	if len(over.Source.Patterns) > 0 {
		base.Source.Patterns = over.Source.Patterns
	}
	if over.Output.Dir != "" {
		base.Output.Dir = over.Output.Dir
	}
	base.Output.Parquet = over.Output.Parquet
	base.Output.Reports = over.Output.Reports
	if over.Parser.Kind != "" {
		base.Parser.Kind = over.Parser.Kind
	}
	for k, v := range over.Parser.Options {
		base.Parser.Options[k] = v
	}
	base.Validate = over.Validate
	if over.Storage.BatchSize <= 0 {
		over.Storage.BatchSize = base.Storage.BatchSize
	}
	base.Storage = over.Storage
	if over.Metrics.Backend != "" {
		base.Metrics = over.Metrics
	}
	if over.Runtime.Workers != 0 {
		base.Runtime.Workers = over.Runtime.Workers
	}
	return base
}

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing file is not
// an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays environment overrides onto job. getenv is usually
// os.Getenv.
func (j *Job) ApplyEnv(getenv func(string) string) {
	if j.Parser.Options == nil {
		j.Parser.Options = Options{}
	}
	if d := firstNonEmpty(getenv("LINEMEND_DELIMITER"), getenv("CRES_CSV_DELIMITER")); d != "" {
		j.Parser.Options["delimiter"] = d
	}
	if e := getenv("LINEMEND_ENCODING"); e != "" {
		j.Parser.Options["encoding"] = e
	}
	if n := getenvInt(getenv, "LINEMEND_CHUNK_SIZE", 0); n > 0 {
		j.Parser.Options["chunk_size"] = n
	}
	j.Runtime.Workers = pickInt(getenvInt(getenv, "LINEMEND_WORKERS", 0), j.Runtime.Workers)
	if b := getenv("METRICS_BACKEND"); b != "" {
		j.Metrics.Backend = b
	}
	if u := getenv("PUSHGATEWAY_URL"); u != "" {
		j.Metrics.PushgatewayURL = u
	}
	if a := getenv("DD_AGENT_ADDR"); a != "" {
		j.Metrics.DatadogAddr = a
	}
	if dsn := getenv("LINEMEND_STORAGE_DSN"); dsn != "" {
		j.Storage.DSN = dsn
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// getenvInt reads an int from getenv, returning def when unset or invalid.
func getenvInt(getenv func(string) string, k string, def int) int {
	if s := strings.TrimSpace(getenv(k)); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return def
}

// pickInt chooses a when positive, otherwise b.
func pickInt(a, b int) int {
	if a > 0 {
		return a
	}
	return b
}
