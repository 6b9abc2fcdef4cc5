// Package export converts corrected files to Parquet.
package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"linemend/internal/datasource/file"
	"linemend/internal/linefile"
	"linemend/internal/storage"
)

// ParquetOptions configures ToParquet.
type ParquetOptions struct {
	Delimiter rune
	// Parallelism is the parquet-go marshalling concurrency; default 4.
	Parallelism int64
}

// ToParquet writes the corrected file src to dst as Parquet. Every column
// is an optional UTF-8 string named after the sanitized header; empty
// fields become nulls. The file is written under a temporary name and
// renamed on success. It returns the number of rows written.
func ToParquet(ctx context.Context, src, dst string, opts ParquetOptions) (n int64, err error) {
	if opts.Parallelism <= 0 {
		opts.Parallelism = 4
	}
	rc, err := file.NewLocal(src).Open(ctx)
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	r := linefile.NewReader(rc, nil, linefile.UTF8)
	first, err := r.Next()
	if errors.Is(err, io.EOF) {
		return 0, fmt.Errorf("parquet %s: empty file", src)
	}
	if err != nil {
		return 0, fmt.Errorf("parquet %s: %w", src, err)
	}
	columns := storage.SanitizeColumns(linefile.Split(first, opts.Delimiter))

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return 0, fmt.Errorf("create %s: %w", dst, err)
	}
	tmp := dst + ".partial"
	fw, err := local.NewLocalFileWriter(tmp)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", tmp, err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp)
		}
	}()

	pw, err := writer.NewCSVWriter(Schema(columns), fw, opts.Parallelism)
	if err != nil {
		fw.Close()
		return 0, fmt.Errorf("parquet writer %s: %w", dst, err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	rec := make([]*string, len(columns))
	for {
		if err := ctx.Err(); err != nil {
			fw.Close()
			return n, err
		}
		line, rerr := r.Next()
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			fw.Close()
			return n, fmt.Errorf("parquet %s: %w", src, rerr)
		}
		fields := linefile.Split(line, opts.Delimiter)
		if len(fields) != len(columns) {
			fw.Close()
			return n, fmt.Errorf("parquet %s: line %d has %d fields, want %d", src, r.Line(), len(fields), len(columns))
		}
		for i := range fields {
			if fields[i] == "" {
				rec[i] = nil
				continue
			}
			v := fields[i]
			rec[i] = &v
		}
		if err := pw.WriteString(rec); err != nil {
			fw.Close()
			return n, fmt.Errorf("parquet write %s: %w", dst, err)
		}
		n++
	}

	if err := pw.WriteStop(); err != nil {
		fw.Close()
		return n, fmt.Errorf("parquet stop %s: %w", dst, err)
	}
	if err := fw.Close(); err != nil {
		return n, fmt.Errorf("close %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		return n, fmt.Errorf("rename %s: %w", dst, err)
	}
	return n, nil
}

// Schema is the parquet-go CSV metadata for all-text columns.
func Schema(columns []string) []string {
	md := make([]string, len(columns))
	for i, c := range columns {
		md[i] = fmt.Sprintf("name=%s, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL", c)
	}
	return md
}
