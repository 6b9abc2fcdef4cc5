// Package postgres implements storage.Repository on Postgres with pgx v5,
// loading each batch with COPY.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"linemend/internal/storage"
)

// Repository is a Postgres-backed storage.Repository.
type Repository struct {
	pool  *pgxpool.Pool
	table pgx.Identifier
}

var _ storage.Repository = (*Repository)(nil)

func init() {
	storage.Register("postgres", func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		return NewRepository(ctx, cfg.DSN, cfg.Table)
	}, CreateTableSQL)
}

// NewRepository opens a pool for dsn. The pool connects lazily.
func NewRepository(ctx context.Context, dsn, table string) (*Repository, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool: %w", err)
	}
	return &Repository{pool: pool, table: Identifier(table)}, nil
}

// CopyFrom loads rows with COPY FROM STDIN.
func (r *Repository) CopyFrom(ctx context.Context, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	n, err := r.pool.CopyFrom(ctx, r.table, columns, pgx.CopyFromRows(rows))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Detail != "" {
			return n, fmt.Errorf("copy into %s: %s (%s)", r.table.Sanitize(), pgErr.Detail, pgErr.SQLState())
		}
		return n, fmt.Errorf("copy into %s: %w", r.table.Sanitize(), err)
	}
	return n, nil
}

// Exec runs a single statement.
func (r *Repository) Exec(ctx context.Context, sql string) error {
	_, err := r.pool.Exec(ctx, sql)
	return err
}

// Close closes the pool.
func (r *Repository) Close() { r.pool.Close() }

// Identifier converts "schema.table" into a pgx.Identifier.
func Identifier(fqn string) pgx.Identifier {
	return pgx.Identifier(storage.SplitFQN(fqn))
}

// CreateTableSQL renders CREATE TABLE IF NOT EXISTS with TEXT columns.
func CreateTableSQL(table string, columns []string) (string, error) {
	id := Identifier(table)
	if len(id) == 0 {
		return "", fmt.Errorf("postgres ddl: table name must not be empty")
	}
	if len(columns) == 0 {
		return "", fmt.Errorf("postgres ddl: at least one column is required")
	}
	defs := make([]string, len(columns))
	for i, c := range columns {
		defs[i] = pgx.Identifier{c}.Sanitize() + " TEXT"
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n);", id.Sanitize(), strings.Join(defs, ",\n  ")), nil
}
