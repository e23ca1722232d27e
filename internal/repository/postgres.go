// Package repository provides the PostgreSQL implementation of the
// persistence gateway.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/atinyakov/GraphPaste/internal/service"
	"github.com/lib/pq"
)

// ErrConflict reports a unique constraint violation.
var ErrConflict = errors.New("unique constraint violation")

// uniqueViolation is the PostgreSQL SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Queries runs the gateway statements against a connection or a
// transaction.
type Queries struct {
	db DBTX
}

// PostgresStore implements service.Store on top of a PostgreSQL database.
type PostgresStore struct {
	*Queries
	// DB is the database handle for executing queries and transactions.
	DB *sql.DB
}

var (
	_ service.Store   = (*PostgresStore)(nil)
	_ service.Cleaner = (*PostgresStore)(nil)
)

// NewPostgresStore creates a new PostgresStore using the provided *sql.DB.
// db must be a valid connection to a PostgreSQL instance.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{Queries: &Queries{db: db}, DB: db}
}

// Atomic runs fn inside a transaction. The transaction is committed when fn
// returns nil and rolled back otherwise.
func (s *PostgresStore) Atomic(ctx context.Context, fn func(q service.Queries) error) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&Queries{db: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Ping runs a trivial query to check connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	var one int
	if err := s.DB.QueryRowContext(ctx, `SELECT 1`).Scan(&one); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// wrap annotates err with op and maps unique violations to ErrConflict.
func wrap(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("%s: %w: %s", op, ErrConflict, pqErr.Constraint)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// scanner is implemented by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// marshalJSON encodes m for a JSONB column. Empty maps are stored as NULL.
func marshalJSON[M ~map[string]V, V any](m M) ([]byte, error) {
	if len(m) == 0 {
		return nil, nil
	}
	return json.Marshal(m)
}
