package validate

import (
	"context"
	"errors"
	"fmt"
	"io"

	"linemend/internal/linefile"
)

// RowIssue identifies one invalid row of a checked file.
type RowIssue struct {
	Line    int    `json:"line"`
	Column  string `json:"column,omitempty"`
	Message string `json:"message"`
}

// Result is the outcome of validating a whole file.
type Result struct {
	Table        string     `json:"table"`
	Passed       bool       `json:"passed"`
	Checked      int        `json:"checked"`
	InvalidCount int        `json:"invalid_count"`
	Invalid      []RowIssue `json:"invalid,omitempty"`
}

// FileOptions controls ValidateFile.
type FileOptions struct {
	Delimiter rune
	Encoding  string
	// Limit caps how many issues are kept in Result.Invalid; InvalidCount is
	// always exact. Zero keeps all.
	Limit int
}

// ValidateFile checks every data row of a corrected file against c.
// Line 1 is the header. Rows whose width differs from the header are
// reported as invalid too.
func ValidateFile(ctx context.Context, path string, c Contract, opts FileOptions) (Result, error) {
	if opts.Delimiter == 0 {
		opts.Delimiter = ';'
	}
	res := Result{Table: c.Name}

	r, err := linefile.Open(path, opts.Encoding)
	if err != nil {
		return res, err
	}
	defer r.Close()

	head, err := r.Next()
	if errors.Is(err, io.EOF) {
		return res, fmt.Errorf("validate %s: empty file", path)
	}
	if err != nil {
		return res, fmt.Errorf("validate %s: %w", path, err)
	}
	header := linefile.Split(head, opts.Delimiter)

	v, err := New(c, header)
	if err != nil {
		return res, err
	}

	add := func(is RowIssue) {
		res.InvalidCount++
		if opts.Limit == 0 || len(res.Invalid) < opts.Limit {
			res.Invalid = append(res.Invalid, is)
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		line, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return res, fmt.Errorf("validate %s: %w", path, err)
		}
		res.Checked++

		fields := linefile.Split(line, opts.Delimiter)
		if len(fields) != len(header) {
			add(RowIssue{Line: r.Line(), Message: fmt.Sprintf("%d columns, header has %d", len(fields), len(header))})
			continue
		}
		if err := v.Check(fields); err != nil {
			is := RowIssue{Line: r.Line(), Message: err.Error()}
			var fe *FieldError
			if errors.As(err, &fe) {
				is.Column = fe.Column
			}
			add(is)
		}
	}

	res.Passed = res.InvalidCount == 0
	return res, nil
}
