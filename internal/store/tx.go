package store

import (
	"database/sql"
	"errors"
	"fmt"
)

// ErrVersionConflict is returned when an optimistic-concurrency update finds
// the row was modified by someone else since it was read.
var ErrVersionConflict = errors.New("row modified concurrently")

// Querier is satisfied by both *sql.DB and *sql.Tx, letting the
// reconciliation path run store operations inside its unit of work.
type Querier interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// WithTx runs fn inside a transaction, committing on success and rolling
// back on error or panic.
func WithTx(db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
