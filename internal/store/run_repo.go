package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/anthropics/triad/internal/domain"
)

// RunRepo handles persistence for RunRecord rows.
type RunRepo struct{}

// CreateTx inserts a new run within an existing transaction.
func (r *RunRepo) CreateTx(ctx context.Context, tx *sql.Tx, rec domain.RunRecord) error {
	const q = `INSERT INTO runs (run_id, request, status, iterations, state_version, last_event_seq, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := tx.ExecContext(ctx, q,
		rec.RunID,
		rec.Request,
		string(rec.Status),
		rec.Iterations,
		rec.StateVersion,
		rec.LastEventSeq,
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return domain.ErrDuplicateRun
		}
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

// UpdateStateTx updates a run within a transaction using optimistic locking.
// The update only succeeds if the current state_version matches the expected version.
func (r *RunRepo) UpdateStateTx(ctx context.Context, tx *sql.Tx, rec domain.RunRecord) error {
	const q = `UPDATE runs SET
		status = ?,
		iterations = ?,
		state_version = state_version + 1,
		last_event_seq = ?,
		updated_at = ?
	WHERE run_id = ? AND state_version = ?`

	res, err := tx.ExecContext(ctx, q,
		string(rec.Status),
		rec.Iterations,
		rec.LastEventSeq,
		rec.UpdatedAt,
		rec.RunID,
		rec.StateVersion,
	)
	if err != nil {
		return fmt.Errorf("update run state: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrOptimisticLock
	}
	return nil
}

// GetByID retrieves a run by its ID.
func (r *RunRepo) GetByID(ctx context.Context, db *sql.DB, runID string) (*domain.RunRecord, error) {
	const q = `SELECT run_id, request, status, iterations, state_version, last_event_seq, created_at, updated_at
FROM runs WHERE run_id = ?`

	row := db.QueryRowContext(ctx, q, runID)

	var rec domain.RunRecord
	var status string
	err := row.Scan(&rec.RunID, &rec.Request, &status, &rec.Iterations,
		&rec.StateVersion, &rec.LastEventSeq, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrRunNotFound
		}
		return nil, fmt.Errorf("get run: %w", err)
	}
	rec.Status = domain.RunState(status)
	return &rec, nil
}

// ListRecent returns up to limit runs ordered newest first.
func (r *RunRepo) ListRecent(ctx context.Context, db *sql.DB, limit int) ([]domain.RunRecord, error) {
	const q = `SELECT run_id, request, status, iterations, state_version, last_event_seq, created_at, updated_at
FROM runs
ORDER BY created_at DESC, run_id DESC
LIMIT ?`

	rows, err := db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var recs []domain.RunRecord
	for rows.Next() {
		var rec domain.RunRecord
		var status string
		if err := rows.Scan(&rec.RunID, &rec.Request, &status, &rec.Iterations,
			&rec.StateVersion, &rec.LastEventSeq, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		rec.Status = domain.RunState(status)
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}
