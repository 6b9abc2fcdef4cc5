// Package repair restores row integrity in delimited extracts whose rows were
// split by stray line breaks inside field values.
//
// A file is read twice. The census pass derives the expected column count
// from the most frequent line width. The correction pass glues fragments back
// together until each row has exactly that many fields, and routes whatever
// cannot be repaired to a rejected-rows sink. Neither pass buffers more than
// one logical row.
package repair

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/zeebo/xxh3"

	"linemend/internal/rejects"
)

// Paths are the outputs of one repaired file.
type Paths struct {
	Corrected string
	Rejected  string
}

// Status summarises a report for the end-of-run summary.
type Status string

const (
	StatusOK        Status = "ok"        // nothing changed
	StatusCorrected Status = "corrected" // rows merged or header trimmed, nothing rejected
	StatusWarning   Status = "warning"   // rows rejected or header mismatch
	StatusError     Status = "error"     // file-level failure
)

// Report is the per-file summary.
type Report struct {
	RunID          string                 `json:"run_id,omitempty"`
	Source         string                 `json:"source"`
	Corrected      string                 `json:"corrected"`
	Rejected       string                 `json:"rejected"`
	Encoding       string                 `json:"encoding"`
	Expected       int                    `json:"expected_columns"`
	Frequencies    map[int]int64          `json:"column_frequencies"`
	HeaderColumns  int                    `json:"header_columns"`
	HeaderAdjusted bool                   `json:"header_adjusted"`
	HeaderWarning  *HeaderMismatchWarning `json:"header_warning,omitempty"`
	Warnings       []string               `json:"warnings,omitempty"`
	Stats          Stats                  `json:"stats"`
	Checksum       string                 `json:"checksum"` // xxh3 of the corrected output
	Duration       time.Duration          `json:"duration_ns"`
}

// Status classifies r.
func (r Report) Status() Status {
	switch {
	case r.HeaderWarning != nil || r.Stats.RejectedRows > 0 || len(r.Warnings) > 0:
		return StatusWarning
	case r.HeaderAdjusted || r.Stats.MergedRows > 0:
		return StatusCorrected
	default:
		return StatusOK
	}
}

// RepairFile runs census, header reconciliation and correction for src and
// writes both outputs. Outputs are written under a temporary name and renamed
// into place only when the whole file succeeded.
func RepairFile(ctx context.Context, src string, dst Paths, opts Options) (Report, error) {
	opts = opts.withDefaults()
	start := time.Now()
	rep := Report{Source: src, Corrected: dst.Corrected, Rejected: dst.Rejected}
	log := opts.Logger.WithField("file", src)

	cen, err := Census(ctx, src, opts)
	if err != nil {
		return rep, err
	}
	rep.Encoding = cen.Encoding
	rep.Expected = cen.Expected
	rep.Frequencies = cen.Frequencies
	rep.HeaderColumns = len(cen.Header)
	log = log.WithField("expected", cen.Expected)

	header, adjusted, warn := Reconcile(cen.Header, cen.Expected)
	rep.HeaderAdjusted = adjusted
	if warn != nil {
		rep.HeaderWarning = warn
		log.WithError(warn).Warn("header mismatch; header kept as is")
	}

	opts.Encoding = cen.Encoding
	if opts.NewValidator != nil {
		v, verr := opts.NewValidator(header)
		if verr != nil {
			rep.Warnings = append(rep.Warnings, "semantic validation disabled: "+verr.Error())
			log.WithError(verr).Warn("semantic validation disabled")
			opts.NewValidator = nil
		} else {
			opts.NewValidator = func([]string) (RowValidator, error) { return v, nil }
		}
	}

	corrTmp, err := createPartial(dst.Corrected)
	if err != nil {
		return rep, err
	}
	defer cleanupPartial(corrTmp)

	rejTmp := dst.Rejected + ".partial"
	sink, err := rejects.Create(rejTmp, opts.Delimiter, header)
	if err != nil {
		return rep, &IOError{Op: "create", Path: dst.Rejected, Err: err}
	}
	defer func() {
		_ = sink.Close()
		_ = os.Remove(rejTmp)
	}()

	h := xxh3.New()
	st, err := Correct(ctx, src, io.MultiWriter(corrTmp, h), sink, opts, cen.Expected, header)
	rep.Stats = st
	if err != nil {
		return rep, err
	}

	if err := corrTmp.Close(); err != nil {
		return rep, &IOError{Op: "close", Path: dst.Corrected, Err: err}
	}
	if err := sink.Close(); err != nil {
		return rep, &IOError{Op: "close", Path: dst.Rejected, Err: err}
	}
	if err := os.Rename(corrTmp.Name(), dst.Corrected); err != nil {
		return rep, &IOError{Op: "rename", Path: dst.Corrected, Err: err}
	}
	if err := os.Rename(rejTmp, dst.Rejected); err != nil {
		return rep, &IOError{Op: "rename", Path: dst.Rejected, Err: err}
	}

	rep.Checksum = strconv.FormatUint(h.Sum64(), 16)
	rep.Duration = time.Since(start)
	if !st.Balanced() {
		rep.Warnings = append(rep.Warnings, fmt.Sprintf("line accounting mismatch: original=%d consumed=%d rejected=%d",
			st.OriginalLines, st.ConsumedLines, st.RejectedLines))
	}

	log.WithFields(logrus.Fields{
		"lines":           st.OriginalLines,
		"corrected":       st.CorrectedLines,
		"merged":          st.MergedRows,
		"rejected_rows":   st.RejectedRows,
		"header_adjusted": adjusted,
		"status":          rep.Status(),
	}).Info("file repaired")
	return rep, nil
}

func createPartial(final string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(final), 0o755); err != nil {
		return nil, &IOError{Op: "create", Path: final, Err: err}
	}
	f, err := os.Create(final + ".partial")
	if err != nil {
		return nil, &IOError{Op: "create", Path: final, Err: err}
	}
	return f, nil
}

// cleanupPartial removes a temp output that was not renamed into place.
func cleanupPartial(f *os.File) {
	_ = f.Close()
	if _, err := os.Stat(f.Name()); err == nil {
		_ = os.Remove(f.Name())
	}
}
