package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"linemend/internal/datasource/file"
	"linemend/internal/linefile"
)

// CopyFn is a backend's bulk insert. It returns the number of rows inserted.
type CopyFn func(ctx context.Context, columns []string, rows [][]any) (int64, error)

// LoadBatches drains rows from in, groups them into batches of batchSize and
// calls copyFn for each non-empty batch. It returns the total reported by
// copyFn and the first error. Progress is logged at debug level per flush.
func LoadBatches(
	ctx context.Context,
	columns []string,
	in <-chan []any,
	batchSize int,
	copyFn CopyFn,
	log logrus.FieldLogger,
) (int64, error) {
	if batchSize <= 0 {
		return 0, fmt.Errorf("batchSize must be > 0")
	}
	if copyFn == nil {
		return 0, fmt.Errorf("copyFn must not be nil")
	}

	var (
		total   int64
		batches int
		batch   = make([][]any, 0, batchSize)
		start   = time.Now()
	)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := copyFn(ctx, columns, batch)
		total += n
		batch = batch[:0]
		if err != nil {
			return err
		}
		batches++
		if log != nil {
			log.WithFields(logrus.Fields{
				"batch":    batches,
				"inserted": n,
				"total":    total,
				"elapsed":  time.Since(start).Truncate(time.Millisecond),
			}).Debug("storage: batch flushed")
		}
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return total, ctx.Err()
		case row, ok := <-in:
			if !ok {
				return total, flush()
			}
			batch = append(batch, row)
			if len(batch) >= batchSize {
				if err := flush(); err != nil {
					return total, err
				}
			}
		}
	}
}

// LoadOptions configures LoadFile.
type LoadOptions struct {
	Delimiter rune
	Columns   []string // destination columns; empty derives them from the header
	BatchSize int
	Logger    logrus.FieldLogger
}

// LoadFile streams a corrected file into repo. The first line is the header;
// every following line must have exactly as many fields as the header, which
// RepairFile guarantees. Empty fields are loaded as NULL. It returns the
// destination columns and the number of rows inserted.
func LoadFile(ctx context.Context, repo Repository, path string, opts LoadOptions) ([]string, int64, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 5000
	}
	rc, err := file.NewLocal(path).Open(ctx)
	if err != nil {
		return nil, 0, err
	}
	defer rc.Close()

	r := linefile.NewReader(rc, nil, linefile.UTF8)
	first, err := r.Next()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, 0, fmt.Errorf("load %s: empty file", path)
		}
		return nil, 0, fmt.Errorf("load %s: %w", path, err)
	}
	header := linefile.Split(first, opts.Delimiter)
	columns := opts.Columns
	if len(columns) == 0 {
		columns = SanitizeColumns(header)
	}
	if len(columns) != len(header) {
		return nil, 0, fmt.Errorf("load %s: %d destination columns for %d header fields", path, len(columns), len(header))
	}

	rows := make(chan []any, opts.BatchSize)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(rows)
		for {
			line, err := r.Next()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("load %s: %w", path, err)
			}
			fields := linefile.Split(line, opts.Delimiter)
			if len(fields) != len(columns) {
				return fmt.Errorf("load %s: line %d has %d fields, want %d", path, r.Line(), len(fields), len(columns))
			}
			row := make([]any, len(fields))
			for i, f := range fields {
				if f != "" {
					row[i] = f
				}
			}
			select {
			case rows <- row:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
	})

	var total int64
	g.Go(func() error {
		n, err := LoadBatches(gctx, columns, rows, opts.BatchSize, repo.CopyFrom, opts.Logger)
		total = n
		return err
	})
	if err := g.Wait(); err != nil {
		return columns, total, err
	}
	return columns, total, nil
}

// FileColumns reads the header of a corrected file and returns its
// sanitized column names.
func FileColumns(ctx context.Context, path string, delim rune) ([]string, error) {
	rc, err := file.NewLocal(path).Open(ctx)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	first, err := linefile.NewReader(rc, nil, linefile.UTF8).Next()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("columns %s: empty file", path)
	}
	if err != nil {
		return nil, fmt.Errorf("columns %s: %w", path, err)
	}
	return SanitizeColumns(linefile.Split(first, delim)), nil
}
