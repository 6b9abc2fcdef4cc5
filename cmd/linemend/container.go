package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"linemend/internal/config"
	"linemend/internal/datasource/file"
	"linemend/internal/export"
	"linemend/internal/metrics"
	"linemend/internal/repair"
	"linemend/internal/storage"
)

const thisMany = 5

// Test seams. Production code points at the real implementations.
var (
	repairFileFn    = repair.RepairFile
	toParquetFn     = export.ToParquet
	newRepositoryFn = storage.New
	ensureTableFn   = storage.EnsureTable
	loadFileFn      = storage.LoadFile
)

// counters accumulate run totals across workers.
type counters struct {
	ok        atomic.Int64
	corrected atomic.Int64
	warning   atomic.Int64
	failed    atomic.Int64
	repaired  atomic.Int64 // files whose outputs were written

	lines         atomic.Int64 // physical lines read
	consumed      atomic.Int64 // lines inside emitted rows
	rows          atomic.Int64 // emitted data rows
	merged        atomic.Int64
	rejectedRows  atomic.Int64
	rejectedLines atomic.Int64
	loaded        atomic.Int64
	exported      atomic.Int64
}

// runSummary is the outcome of a correct run.
type runSummary struct {
	RunID     string
	Files     int
	OK        int64
	Corrected int64
	Warning   int64
	Failed    int64
	Lines     int64
	Rows      int64
	Merged    int64
	Rejected  int64
	Loaded    int64
	Exported  int64
	Balanced  bool
	Reports   []repair.Report
}

// errAgg keeps a count of failures and the first few messages.
type errAgg struct {
	mu    sync.Mutex
	limit int
	count int
	first []string
}

func newErrAgg(limit int) *errAgg { return &errAgg{limit: limit} }

func (a *errAgg) add(msg string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.count < a.limit {
		a.first = append(a.first, msg)
	}
	a.count++
}

// runner carries what every per-file job shares.
type runner struct {
	job   config.Job
	log   logrus.FieldLogger
	runID string
	stats *counters
	fails *errAgg

	repo     storage.Repository
	loadMu   sync.Mutex // one writer per table
	ensured  bool
	reportMu sync.Mutex
	reports  []repair.Report
}

// runCorrect repairs every file in files with job settings. Per-file failures
// are logged and counted without stopping the other files; the returned
// error is non-nil when any file failed or the run was cancelled.
func runCorrect(ctx context.Context, job config.Job, files []string, log logrus.FieldLogger) (runSummary, error) {
	r := &runner{
		job:   job,
		runID: uuid.NewString(),
		stats: &counters{},
		fails: newErrAgg(thisMany),
	}
	r.log = log.WithField("run_id", r.runID)
	sum := runSummary{RunID: r.runID, Files: len(files)}

	if job.Storage.Kind != "" {
		repo, err := newRepositoryFn(ctx, storage.Config{
			Kind:    job.Storage.Kind,
			DSN:     job.Storage.DSN,
			Table:   job.Storage.Table,
			Columns: job.Storage.Columns,
		})
		if err != nil {
			return sum, fmt.Errorf("storage: %w", err)
		}
		defer repo.Close()
		r.repo = repo
	}

	workers := job.Runtime.Workers
	if workers < 1 {
		workers = 1
	}
	r.log.WithFields(logrus.Fields{"files": len(files), "workers": workers}).Info("run started")
	start := time.Now()

	claimed := make(map[string]string, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, src := range files {
		src := src
		layout := file.Outputs(job.Output.Dir, src)
		if other, dup := claimed[layout.Corrected]; dup {
			r.fail(src, fmt.Errorf("output %s already used by %s", layout.Corrected, other))
			continue
		}
		claimed[layout.Corrected] = src

		g.Go(func() error {
			if err := r.processFile(gctx, src, layout); err != nil {
				if errors.Is(err, context.Canceled) {
					return err
				}
				r.fail(src, err)
			}
			return nil
		})
	}
	waitErr := g.Wait()

	sum.OK = r.stats.ok.Load()
	sum.Corrected = r.stats.corrected.Load()
	sum.Warning = r.stats.warning.Load()
	sum.Failed = r.stats.failed.Load()
	sum.Lines = r.stats.lines.Load()
	sum.Rows = r.stats.rows.Load()
	sum.Merged = r.stats.merged.Load()
	sum.Rejected = r.stats.rejectedRows.Load()
	sum.Loaded = r.stats.loaded.Load()
	sum.Exported = r.stats.exported.Load()
	sum.Reports = r.sortedReports()
	sum.Balanced = r.logGlobalSummary(time.Since(start))

	if waitErr != nil {
		return sum, waitErr
	}
	if sum.Failed > 0 {
		return sum, fmt.Errorf("%d of %d files failed", sum.Failed, len(files))
	}
	return sum, nil
}

func (r *runner) fail(src string, err error) {
	r.stats.failed.Add(1)
	r.fails.add(fmt.Sprintf("%s: %v", src, err))
	metrics.RecordFile(r.job.Name, string(repair.StatusError))
	r.log.WithField("file", src).WithError(err).Error("file failed")
}

// processFile runs repair then the optional report, export and load steps.
func (r *runner) processFile(ctx context.Context, src string, layout file.Layout) error {
	log := r.log.WithField("file", src)
	opts, err := r.job.RepairOptions(log)
	if err != nil {
		return err
	}

	t0 := time.Now()
	rep, err := repairFileFn(ctx, src, repair.Paths{Corrected: layout.Corrected, Rejected: layout.Rejected}, opts)
	metrics.RecordStep(r.job.Name, "repair", err, time.Since(t0))
	if err != nil {
		return err
	}
	rep.RunID = r.runID

	st := rep.Stats
	r.stats.repaired.Add(1)
	r.stats.lines.Add(int64(st.OriginalLines))
	r.stats.consumed.Add(int64(st.ConsumedLines))
	r.stats.rows.Add(int64(st.CorrectedLines - 1))
	r.stats.merged.Add(int64(st.MergedRows))
	r.stats.rejectedRows.Add(int64(st.RejectedRows))
	r.stats.rejectedLines.Add(int64(st.RejectedLines))
	metrics.RecordRow(r.job.Name, "lines", int64(st.OriginalLines))
	metrics.RecordRow(r.job.Name, "corrected", int64(st.CorrectedLines-1))
	metrics.RecordRow(r.job.Name, "merged", int64(st.MergedRows))
	metrics.RecordRow(r.job.Name, "rejected", int64(st.RejectedRows))

	if r.job.Output.Reports {
		if err := writeReport(layout.Report, rep); err != nil {
			return err
		}
	}

	if r.job.Output.Parquet {
		t0 = time.Now()
		n, err := toParquetFn(ctx, layout.Corrected, layout.Parquet, export.ParquetOptions{Delimiter: opts.Delimiter})
		metrics.RecordStep(r.job.Name, "parquet", err, time.Since(t0))
		if err != nil {
			return fmt.Errorf("parquet: %w", err)
		}
		r.stats.exported.Add(n)
		log.WithField("rows", n).Debug("parquet written")
	}

	if r.repo != nil {
		t0 = time.Now()
		n, err := r.load(ctx, layout.Corrected, opts.Delimiter)
		metrics.RecordStep(r.job.Name, "load", err, time.Since(t0))
		if err != nil {
			return fmt.Errorf("load: %w", err)
		}
		r.stats.loaded.Add(n)
		metrics.RecordRow(r.job.Name, "loaded", n)
		log.WithFields(logrus.Fields{"rows": n, "table": r.job.Storage.Table}).Info("file loaded")
	}

	switch status := rep.Status(); status {
	case repair.StatusOK:
		r.stats.ok.Add(1)
	case repair.StatusCorrected:
		r.stats.corrected.Add(1)
	default:
		r.stats.warning.Add(1)
	}
	metrics.RecordFile(r.job.Name, string(rep.Status()))

	r.reportMu.Lock()
	r.reports = append(r.reports, rep)
	r.reportMu.Unlock()
	return nil
}

func (r *runner) load(ctx context.Context, path string, delim rune) (int64, error) {
	r.loadMu.Lock()
	defer r.loadMu.Unlock()

	s := r.job.Storage
	if s.AutoCreate && !r.ensured {
		cols := s.Columns
		if len(cols) == 0 {
			var err error
			if cols, err = storage.FileColumns(ctx, path, delim); err != nil {
				return 0, err
			}
		}
		if err := ensureTableFn(ctx, s.Kind, r.repo, s.Table, cols); err != nil {
			return 0, err
		}
		r.ensured = true
	}
	_, n, err := loadFileFn(ctx, r.repo, path, storage.LoadOptions{
		Delimiter: delim,
		Columns:   s.Columns,
		BatchSize: s.BatchSize,
		Logger:    r.log,
	})
	return n, err
}

func (r *runner) sortedReports() []repair.Report {
	r.reportMu.Lock()
	defer r.reportMu.Unlock()
	out := append([]repair.Report(nil), r.reports...)
	sort.Slice(out, func(i, j int) bool { return out[i].Source < out[j].Source })
	return out
}

func writeReport(path string, rep repair.Report) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("report: %w", err)
	}
	b, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return fmt.Errorf("report: %w", err)
	}
	if err := os.WriteFile(path, append(b, '\n'), 0o644); err != nil {
		return fmt.Errorf("report: %w", err)
	}
	return nil
}

// logGlobalSummary logs the end-of-run totals and checks that every line of
// every repaired file is accounted for:
//
//	lines == repaired + consumed + rejected_lines
//
// where repaired counts one header per file whose outputs were written, even
// if a later export or load step failed.
func (r *runner) logGlobalSummary(elapsed time.Duration) bool {
	c := r.stats
	repaired := c.repaired.Load()
	lines := c.lines.Load()
	accounted := repaired + c.consumed.Load() + c.rejectedLines.Load()

	r.log.WithFields(logrus.Fields{
		"ok":             c.ok.Load(),
		"corrected":      c.corrected.Load(),
		"warning":        c.warning.Load(),
		"error":          c.failed.Load(),
		"lines":          lines,
		"rows":           c.rows.Load(),
		"merged":         c.merged.Load(),
		"rejected_rows":  c.rejectedRows.Load(),
		"rejected_lines": c.rejectedLines.Load(),
		"loaded":         c.loaded.Load(),
		"exported":       c.exported.Load(),
		"elapsed":        elapsed.Truncate(time.Millisecond),
	}).Info("summary")

	if r.fails.count > 0 {
		r.log.Warnf("file errors: %d (showing first %d)", r.fails.count, len(r.fails.first))
		for i, s := range r.fails.first {
			r.log.Warnf("  #%03d: %s", i+1, s)
		}
	}

	if lines != accounted {
		r.log.WithFields(logrus.Fields{
			"lines":     lines,
			"accounted": accounted,
			"delta":     lines - accounted,
		}).Warn("line accounting mismatch")
		return false
	}
	return true
}
