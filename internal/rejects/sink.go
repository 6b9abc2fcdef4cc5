// Package rejects writes rows that could not be repaired, or that failed
// semantic validation, to a side file next to the corrected output.
//
// The file is created unconditionally and always starts with a header line:
// the metadata columns followed by the reconciled header of the source.
// Every physical fragment of a rejected unit becomes its own record. The
// fragments of one unit share a group id (the unit's first physical line),
// and the raw fragment text is kept verbatim after the metadata columns so
// its fields stay aligned with the source header.
package rejects

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Reason classifies why a unit was rejected.
type Reason string

const (
	// ColumnOvershoot: merging would exceed the expected column count, or a
	// single line already has too many fields.
	ColumnOvershoot Reason = "column_overshoot"
	// Unmergeable: the input ended, or the fragment limit was hit, before the
	// unit reached the expected column count.
	Unmergeable Reason = "unmergeable"
	// SemanticValidationFailure: the row had the right shape but failed a
	// field-level check.
	SemanticValidationFailure Reason = "semantic_validation_failure"
)

// MetaColumns prefix every record, in this order.
var MetaColumns = []string{
	"rejected_reason",
	"rejected_group",
	"rejected_line",
	"rejected_fragment",
	"rejected_detail",
}

// Fragment is one physical source line.
type Fragment struct {
	Line int
	Text string
}

// Unit is one rejected logical row and the fragments it was built from.
type Unit struct {
	Reason    Reason
	Fragments []Fragment
	Detail    string
}

// Start is the physical line number of the first fragment.
func (u Unit) Start() int {
	if len(u.Fragments) == 0 {
		return 0
	}
	return u.Fragments[0].Line
}

// Sink appends rejected units to one file. It is not safe for concurrent
// use; each file being repaired owns its own Sink.
type Sink struct {
	w      *bufio.Writer
	closer io.Closer
	delim  string

	rows    int
	lines   int
	reasons map[Reason]int
}

// Create makes path (and its parent directory) and writes the header line.
func Create(path string, delim rune, header []string) (*Sink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create dir %s: %w", filepath.Dir(path), err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	s, err := New(f, delim, header)
	if err != nil {
		f.Close()
		return nil, err
	}
	s.closer = f
	return s, nil
}

// New writes the header line to w and returns a Sink appending to it.
func New(w io.Writer, delim rune, header []string) (*Sink, error) {
	s := &Sink{
		w:       bufio.NewWriterSize(w, 64<<10),
		delim:   string(delim),
		reasons: make(map[Reason]int),
	}
	cols := make([]string, 0, len(MetaColumns)+len(header))
	cols = append(cols, MetaColumns...)
	cols = append(cols, header...)
	if _, err := s.w.WriteString(strings.Join(cols, s.delim) + "\n"); err != nil {
		return nil, fmt.Errorf("write rejected header: %w", err)
	}
	return s, nil
}

// Record writes one record per fragment of u.
func (s *Sink) Record(u Unit) error {
	if len(u.Fragments) == 0 {
		return fmt.Errorf("rejects: unit %q has no fragments", u.Reason)
	}
	group := strconv.Itoa(u.Start())
	detail := s.clean(u.Detail)
	for i, f := range u.Fragments {
		meta := [...]string{
			string(u.Reason),
			group,
			strconv.Itoa(f.Line),
			strconv.Itoa(i + 1),
			detail,
		}
		for _, m := range meta {
			s.w.WriteString(m)
			s.w.WriteString(s.delim)
		}
		s.w.WriteString(f.Text)
		if err := s.w.WriteByte('\n'); err != nil {
			return fmt.Errorf("write rejected line %d: %w", f.Line, err)
		}
	}
	s.rows++
	s.lines += len(u.Fragments)
	s.reasons[u.Reason]++
	return nil
}

// clean keeps detail on one line and inside one column.
func (s *Sink) clean(detail string) string {
	if detail == "" {
		return ""
	}
	sub := ","
	if s.delim == sub {
		sub = "/"
	}
	r := strings.NewReplacer(s.delim, sub, "\r", " ", "\n", " ")
	return r.Replace(detail)
}

// Rows is the number of rejected units recorded so far.
func (s *Sink) Rows() int { return s.rows }

// Lines is the number of physical fragment lines recorded so far.
func (s *Sink) Lines() int { return s.lines }

// Counts returns a copy of the per-reason unit counts.
func (s *Sink) Counts() map[Reason]int {
	out := make(map[Reason]int, len(s.reasons))
	for k, v := range s.reasons {
		out[k] = v
	}
	return out
}

// Flush writes buffered records to the underlying writer.
func (s *Sink) Flush() error {
	return s.w.Flush()
}

// Close flushes and, for sinks made by Create, closes the file.
func (s *Sink) Close() error {
	err := s.w.Flush()
	if s.closer != nil {
		if cerr := s.closer.Close(); err == nil {
			err = cerr
		}
		s.closer = nil
	}
	return err
}
