package repair

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"linemend/internal/linefile"
	"linemend/internal/rejects"
)

// RejectSink receives rejected units in input order.
type RejectSink interface {
	Record(rejects.Unit) error
}

// Stats accounts for every physical line of one file.
//
// OriginalLines == 1 + ConsumedLines + RejectedLines always holds after a
// successful pass: each line is the header, part of an emitted row, or a
// rejected fragment.
type Stats struct {
	OriginalLines  int                    `json:"original_lines"`
	CorrectedLines int                    `json:"corrected_lines"` // header + emitted rows
	ConsumedLines  int                    `json:"consumed_lines"`  // physical lines inside emitted rows
	MergedRows     int                    `json:"merged_rows"`
	RejectedRows   int                    `json:"rejected_rows"`
	RejectedLines  int                    `json:"rejected_lines"`
	Reasons        map[rejects.Reason]int `json:"reasons,omitempty"`
}

// Balanced reports whether every physical line is accounted for.
func (s Stats) Balanced() bool {
	return s.OriginalLines == 1+s.ConsumedLines+s.RejectedLines
}

// Correct is the second pass. It rewrites path into out as header plus
// well-formed rows of exactly expected fields, gluing together physical lines
// that were split inside a value, and sends everything it cannot repair to
// sink.
//
// Line 1 of path is skipped; header is written in its place. Rows keep their
// input order. out is buffered internally and flushed before return.
func Correct(ctx context.Context, path string, out io.Writer, sink RejectSink, opts Options, expected int, header []string) (Stats, error) {
	opts = opts.withDefaults()
	st := Stats{Reasons: make(map[rejects.Reason]int)}
	if expected <= 0 {
		return st, fmt.Errorf("correct %s: expected column count must be positive, got %d", path, expected)
	}

	var validator RowValidator
	if opts.NewValidator != nil {
		v, err := opts.NewValidator(header)
		if err != nil {
			return st, fmt.Errorf("correct %s: %w", path, err)
		}
		validator = v
	}

	r, err := linefile.Open(path, opts.Encoding)
	if err != nil {
		return st, &IOError{Op: "open", Path: path, Err: err}
	}
	defer r.Close()

	w := bufio.NewWriterSize(out, 1<<20)
	writeRow := func(fields []string) error {
		w.WriteString(linefile.Join(fields, opts.Delimiter))
		if err := w.WriteByte('\n'); err != nil {
			return &IOError{Op: "write", Path: path, Err: err}
		}
		return nil
	}

	m := &merger{
		expected: expected,
		delim:    opts.Delimiter,
		join:     opts.JoinWith,
		maxFrag:  opts.MaxFragments,
		emit: func(fields []string, frags []rejects.Fragment) error {
			if validator != nil {
				if verr := validator.Check(fields); verr != nil {
					return reject(sink, &st, rejects.Unit{
						Reason:    rejects.SemanticValidationFailure,
						Fragments: frags,
						Detail:    verr.Error(),
					})
				}
			}
			if err := writeRow(fields); err != nil {
				return err
			}
			st.CorrectedLines++
			st.ConsumedLines += len(frags)
			if len(frags) > 1 {
				st.MergedRows++
			}
			return nil
		},
		reject: func(u rejects.Unit) error {
			return reject(sink, &st, u)
		},
	}

	for {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		line, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return st, readError(path, r.Line(), err)
		}
		st.OriginalLines++

		if st.OriginalLines == 1 {
			if err := writeRow(header); err != nil {
				return st, err
			}
			st.CorrectedLines++
			continue
		}
		if err := m.push(r.Line(), line); err != nil {
			return st, err
		}
		opts.progress("correct", st.OriginalLines)
	}

	if st.OriginalLines == 0 {
		return st, fmt.Errorf("correct %s: %w", path, ErrEmptyFile)
	}
	if err := m.finish(); err != nil {
		return st, err
	}
	if err := w.Flush(); err != nil {
		return st, &IOError{Op: "write", Path: path, Err: err}
	}

	opts.Logger.WithFields(logrus.Fields{
		"file":      path,
		"lines":     st.OriginalLines,
		"corrected": st.CorrectedLines,
		"merged":    st.MergedRows,
		"rejected":  st.RejectedRows,
	}).Debug("correct done")
	return st, nil
}

func reject(sink RejectSink, st *Stats, u rejects.Unit) error {
	if err := sink.Record(u); err != nil {
		return &IOError{Op: "write", Path: "rejected sink", Line: u.Start(), Err: err}
	}
	st.RejectedRows++
	st.RejectedLines += len(u.Fragments)
	st.Reasons[u.Reason]++
	return nil
}

// merger is the line-joining state machine. An empty frags slice is the
// EMPTY state; otherwise buf holds the fields accumulated so far.
type merger struct {
	expected int
	delim    rune
	join     string
	maxFrag  int

	buf   []string
	frags []rejects.Fragment

	emit   func(fields []string, frags []rejects.Fragment) error
	reject func(rejects.Unit) error
}

// push feeds one physical line.
func (m *merger) push(num int, text string) error {
	fields := linefile.Split(text, m.delim)
	frag := rejects.Fragment{Line: num, Text: text}

	if len(m.frags) > 0 {
		width := len(m.buf) + len(fields) - 1
		if width <= m.expected {
			m.buf[len(m.buf)-1] += m.join + fields[0]
			m.buf = append(m.buf, fields[1:]...)
			m.frags = append(m.frags, frag)
			return m.settle()
		}
		// The guess that this line continues the buffer was wrong. Reject
		// what was buffered and start over from the current line.
		detail := fmt.Sprintf("%d columns, merging line %d would give %d of %d", len(m.buf), num, width, m.expected)
		if err := m.flush(rejects.ColumnOvershoot, detail); err != nil {
			return err
		}
	}

	m.buf = append(m.buf[:0], fields...)
	m.frags = append(m.frags[:0], frag)
	return m.settle()
}

func (m *merger) settle() error {
	switch n := len(m.buf); {
	case n == m.expected:
		err := m.emit(m.buf, m.frags)
		m.reset()
		return err
	case n > m.expected:
		return m.flush(rejects.ColumnOvershoot, fmt.Sprintf("%d columns, expected %d", n, m.expected))
	case len(m.frags) >= m.maxFrag:
		return m.flush(rejects.Unmergeable, fmt.Sprintf("%d of %d columns after %d lines", n, m.expected, len(m.frags)))
	}
	return nil
}

// finish handles end of input.
func (m *merger) finish() error {
	if len(m.frags) == 0 {
		return nil
	}
	return m.flush(rejects.Unmergeable, fmt.Sprintf("end of input with %d of %d columns", len(m.buf), m.expected))
}

func (m *merger) flush(reason rejects.Reason, detail string) error {
	frags := make([]rejects.Fragment, len(m.frags))
	copy(frags, m.frags)
	m.reset()
	return m.reject(rejects.Unit{Reason: reason, Fragments: frags, Detail: detail})
}

func (m *merger) reset() {
	m.buf = m.buf[:0]
	m.frags = m.frags[:0]
}
