package repair

import (
	"context"
	"errors"
	"io"

	"linemend/internal/linefile"
)

// Anomaly is a physical line whose width differs from the expected count.
type Anomaly struct {
	Line    int
	Columns int
}

// Analyze is the read-only counterpart of RepairFile. It runs the census and
// then reports every line whose column count differs from the expected one,
// in order, without writing anything. The header is reported only when it
// cannot be reconciled. It returns the census and the number of anomalies.
func Analyze(ctx context.Context, path string, opts Options, fn func(Anomaly)) (CensusResult, int, error) {
	opts = opts.withDefaults()

	cen, err := Census(ctx, path, opts)
	if err != nil {
		return cen, 0, err
	}

	r, err := linefile.Open(path, cen.Encoding)
	if err != nil {
		return cen, 0, &IOError{Op: "open", Path: path, Err: err}
	}
	defer r.Close()

	found := 0
	report := func(a Anomaly) {
		found++
		if fn != nil {
			fn(a)
		}
	}

	if _, _, warn := Reconcile(cen.Header, cen.Expected); warn != nil {
		report(Anomaly{Line: 1, Columns: len(cen.Header)})
	}

	for {
		if err := ctx.Err(); err != nil {
			return cen, found, err
		}
		line, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return cen, found, readError(path, r.Line(), err)
		}
		if r.Line() == 1 {
			continue
		}
		if n := linefile.Count(line, opts.Delimiter); n != cen.Expected {
			report(Anomaly{Line: r.Line(), Columns: n})
		}
		opts.progress("analyze", r.Line())
	}
	return cen, found, nil
}
