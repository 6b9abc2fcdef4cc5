package repair

import (
	"errors"
	"fmt"
)

// ErrEmptyFile means the input has no line to derive an expected column
// count from: it is empty, or holds a header and no data.
var ErrEmptyFile = errors.New("empty file")

// IOError is a file-level failure: the source cannot be opened or decoded,
// or an output cannot be written. It aborts the current file only.
type IOError struct {
	Op   string // open, read, decode, write, close, rename
	Path string
	Line int // physical line, when known
	Err  error
}

func (e *IOError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s %s: line %d: %v", e.Op, e.Path, e.Line, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// HeaderMismatchWarning reports a header whose width cannot be reconciled
// with the data. The header is used unmodified.
type HeaderMismatchWarning struct {
	HeaderColumns int    `json:"header_columns"`
	Expected      int    `json:"expected"`
	Reason        string `json:"reason"`
}

func (w *HeaderMismatchWarning) Error() string {
	return fmt.Sprintf("header has %d columns, data has %d: %s", w.HeaderColumns, w.Expected, w.Reason)
}
