// Package storage loads corrected files into a database table. Backends
// register a factory and a CREATE TABLE builder under their kind; callers
// stay backend-agnostic by importing storage/all.
package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Repository is the bulk-load surface a backend provides.
type Repository interface {
	// CopyFrom inserts rows aligned to columns and returns how many were
	// inserted.
	CopyFrom(ctx context.Context, columns []string, rows [][]any) (int64, error)
	// Exec runs a single statement, typically DDL.
	Exec(ctx context.Context, sql string) error
	Close()
}

// Config selects and configures a backend.
type Config struct {
	Kind    string
	DSN     string
	Table   string
	Columns []string
}

// Factory opens a Repository for cfg.
type Factory func(ctx context.Context, cfg Config) (Repository, error)

// CreateTableFn renders a dialect-specific CREATE TABLE for an all-text
// table that is a no-op when the table exists.
type CreateTableFn func(table string, columns []string) (string, error)

type backend struct {
	open   Factory
	create CreateTableFn
}

var (
	mu       sync.RWMutex
	backends = map[string]backend{}
)

// Register makes a backend available under kind. It is called from backend
// init functions and replaces any earlier registration.
func Register(kind string, open Factory, create CreateTableFn) {
	mu.Lock()
	defer mu.Unlock()
	backends[kind] = backend{open: open, create: create}
}

// Kinds lists registered backends, sorted.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(backends))
	for k := range backends {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func lookup(kind string) (backend, error) {
	mu.RLock()
	b, ok := backends[kind]
	mu.RUnlock()
	if !ok {
		return backend{}, fmt.Errorf("storage: no backend registered for kind %q (known: %s)", kind, strings.Join(Kinds(), ", "))
	}
	return b, nil
}

// New opens the backend named by cfg.Kind.
func New(ctx context.Context, cfg Config) (Repository, error) {
	b, err := lookup(cfg.Kind)
	if err != nil {
		return nil, err
	}
	return b.open(ctx, cfg)
}

// EnsureTable creates table with the given text columns when it does not
// exist yet.
func EnsureTable(ctx context.Context, kind string, repo Repository, table string, columns []string) error {
	b, err := lookup(kind)
	if err != nil {
		return err
	}
	stmt, err := b.create(table, columns)
	if err != nil {
		return err
	}
	if err := repo.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("create table %s: %w", table, err)
	}
	return nil
}
