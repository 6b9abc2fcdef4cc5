// Package file implements the local filesystem side of a repair run: opening
// sources, discovering them in a directory and naming their outputs.
package file

import (
	"context"
	"fmt"
	"io"
	"os"
)

// Local is a source file on the local disk.
type Local struct{ path string }

// NewLocal returns a Local bound to path.
func NewLocal(path string) *Local { return &Local{path: path} }

// Path returns the bound path.
func (l *Local) Path() string { return l.path }

// Open opens the file for reading. A context that is already done is
// reported without touching the filesystem. Errors keep the path and still
// satisfy errors.Is(err, os.ErrNotExist).
func (l *Local) Open(ctx context.Context) (io.ReadCloser, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	f, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", l.path, err)
	}
	return f, nil
}
