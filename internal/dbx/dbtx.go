// Package dbx carries the two small database helpers the journal layer
// is built on: DBTX, the subset of database/sql that *sql.DB and
// *sql.Tx both satisfy, and WithTx, which runs a function inside a
// transaction.
package dbx

import (
	"context"
	"database/sql"
)

// DBTX is accepted everywhere a query runs, so the same repository
// code works directly on the database and inside a transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// WithTx begins a transaction on db and runs fn with it: commit when
// fn returns nil, rollback when it returns an error or panics. A panic
// is rethrown after the rollback.
func WithTx(ctx context.Context, db *sql.DB, opts *sql.TxOptions, fn func(ctx context.Context, tx DBTX) error) (err error) {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	err = fn(ctx, tx)
	return err
}
