package repair

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/sirupsen/logrus"

	"linemend/internal/linefile"
)

// CensusResult is the outcome of the first pass over a file.
type CensusResult struct {
	Expected    int           `json:"expected"`
	Frequencies map[int]int64 `json:"frequencies"`
	Header      []string      `json:"-"`
	Lines       int           `json:"lines"`      // physical lines, header included
	DataLines   int           `json:"data_lines"` // Lines - 1
	Encoding    string        `json:"encoding"`   // encoding that decoded the file
}

// Census streams path once, tallies the column count of every data line and
// derives the expected column count. Line 1 is kept as the header and is not
// tallied. Memory is bounded by the number of distinct column counts.
//
// When the declared encoding fails to decode and a fallback is configured,
// the pass is retried once with the fallback encoding.
func Census(ctx context.Context, path string, opts Options) (CensusResult, error) {
	opts = opts.withDefaults()

	res, err := census(ctx, path, opts.Encoding, opts)
	var de *linefile.DecodeError
	if errors.As(err, &de) && opts.FallbackEncoding != "" && !sameEncoding(opts.Encoding, opts.FallbackEncoding) {
		opts.Logger.WithFields(logrus.Fields{
			"file":     path,
			"line":     de.Line,
			"encoding": opts.Encoding,
			"fallback": opts.FallbackEncoding,
		}).Warn("census: decode failed, retrying with fallback encoding")
		return census(ctx, path, opts.FallbackEncoding, opts)
	}
	return res, err
}

func census(ctx context.Context, path, encoding string, opts Options) (CensusResult, error) {
	res := CensusResult{Frequencies: make(map[int]int64)}

	r, err := linefile.Open(path, encoding)
	if err != nil {
		return res, &IOError{Op: "open", Path: path, Err: err}
	}
	defer r.Close()
	res.Encoding = r.Encoding()

	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		line, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return res, readError(path, r.Line(), err)
		}
		res.Lines++
		if res.Lines == 1 {
			res.Header = linefile.Split(line, opts.Delimiter)
			continue
		}
		res.Frequencies[linefile.Count(line, opts.Delimiter)]++
		opts.progress("census", res.Lines)
	}

	if res.Lines == 0 {
		return res, fmt.Errorf("census %s: %w", path, ErrEmptyFile)
	}
	res.DataLines = res.Lines - 1
	if res.DataLines == 0 {
		return res, fmt.Errorf("census %s: header only: %w", path, ErrEmptyFile)
	}

	switch opts.Strategy {
	case StrategyMax:
		res.Expected = Widest(res.Frequencies)
	default:
		res.Expected = Mode(res.Frequencies)
	}

	opts.Logger.WithFields(logrus.Fields{
		"file":     path,
		"lines":    res.Lines,
		"expected": res.Expected,
		"widths":   len(res.Frequencies),
	}).Debug("census done")
	return res, nil
}

// Mode returns the most frequent column count. Ties go to the smallest
// column count so the result does not depend on map order.
func Mode(freq map[int]int64) int {
	best, bestN := 0, int64(-1)
	for cols, n := range freq {
		if n > bestN || (n == bestN && cols < best) {
			best, bestN = cols, n
		}
	}
	return best
}

// Widest returns the largest column count present in freq.
func Widest(freq map[int]int64) int {
	w := 0
	for cols := range freq {
		if cols > w {
			w = cols
		}
	}
	return w
}

// Distribution is one row of a frequency table, for display.
type Distribution struct {
	Columns int
	Lines   int64
}

// SortedFrequencies lists freq by descending line count, then ascending
// column count.
func SortedFrequencies(freq map[int]int64) []Distribution {
	out := make([]Distribution, 0, len(freq))
	for c, n := range freq {
		out = append(out, Distribution{Columns: c, Lines: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Lines != out[j].Lines {
			return out[i].Lines > out[j].Lines
		}
		return out[i].Columns < out[j].Columns
	})
	return out
}

func readError(path string, line int, err error) error {
	var de *linefile.DecodeError
	if errors.As(err, &de) {
		return &IOError{Op: "decode", Path: path, Line: de.Line, Err: err}
	}
	return &IOError{Op: "read", Path: path, Line: line, Err: err}
}

func sameEncoding(a, b string) bool {
	_, ca, errA := linefile.Resolve(a)
	_, cb, errB := linefile.Resolve(b)
	return errA == nil && errB == nil && ca == cb
}
