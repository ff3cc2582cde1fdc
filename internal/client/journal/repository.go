package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/virtbridge/vmcourier/internal/dbx"
	"github.com/virtbridge/vmcourier/internal/wire"
)

// Entry is one journaled operation.
type Entry struct {
	ID         string
	Verb       string
	Arguments  string
	Status     string
	ExitCode   int
	Bytes      int64
	StartedAt  time.Time
	FinishedAt time.Time
}

// Failed reports whether the operation ended with anything but OK.
func (e *Entry) Failed() bool {
	return e.Status != wire.StatusOK.String()
}

// Journal reads and writes operation records through a DBTX, so it
// works both directly on the database and inside a transaction.
type Journal struct {
	db dbx.DBTX
}

// New returns a Journal bound to the given DBTX.
func New(db dbx.DBTX) *Journal {
	return &Journal{db: db}
}

// Record inserts one finished operation.
func (j *Journal) Record(ctx context.Context, e *Entry) error {
	query := `INSERT INTO operations (id, verb, arguments, status, exit_code, bytes, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := j.db.ExecContext(ctx, query,
		e.ID, e.Verb, e.Arguments, e.Status, e.ExitCode, e.Bytes, e.StartedAt, e.FinishedAt)
	if err != nil {
		return fmt.Errorf("failed to record operation: %w", err)
	}
	return nil
}

// Recent returns up to limit operations, newest first. With failedOnly
// set, operations that ended OK are filtered out.
func (j *Journal) Recent(ctx context.Context, limit int, failedOnly bool) ([]Entry, error) {
	query := `SELECT id, verb, arguments, status, exit_code, bytes, started_at, finished_at
		FROM operations`
	if failedOnly {
		query += ` WHERE status != ?`
	}
	query += ` ORDER BY started_at DESC, id DESC LIMIT ?`

	args := []any{limit}
	if failedOnly {
		args = []any{wire.StatusOK.String(), limit}
	}

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select operations: %w", err)
	}
	defer rows.Close()

	var result []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Verb, &e.Arguments, &e.Status,
			&e.ExitCode, &e.Bytes, &e.StartedAt, &e.FinishedAt); err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

// Prune deletes all but the newest keep operations. The count check
// and the delete run in one transaction, so a Record landing in
// between cannot be swept out by a stale boundary.
func Prune(ctx context.Context, db *sql.DB, keep int) error {
	if keep <= 0 {
		return nil
	}
	return dbx.WithTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var n int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM operations`).Scan(&n); err != nil {
			return fmt.Errorf("failed to count operations: %w", err)
		}
		if n <= keep {
			return nil
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM operations WHERE id NOT IN (
			SELECT id FROM operations ORDER BY started_at DESC, id DESC LIMIT ?)`, keep)
		if err != nil {
			return fmt.Errorf("failed to prune operations: %w", err)
		}
		return nil
	})
}
