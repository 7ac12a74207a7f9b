package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/anthropics/triad/internal/domain"
)

// UsageRepo handles persistence for per-stage token usage deltas.
type UsageRepo struct{}

// Create inserts a new usage record.
func (r *UsageRepo) Create(ctx context.Context, db *sql.DB, rec domain.UsageRecord) error {
	const q = `INSERT INTO usage_records (run_id, stage, iteration, input_tokens, output_tokens, created_at)
VALUES (?, ?, ?, ?, ?, ?)`
	_, err := db.ExecContext(ctx, q,
		rec.RunID,
		string(rec.Stage),
		rec.Iteration,
		rec.InputTokens,
		rec.OutputTokens,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create usage record: %w", err)
	}
	return nil
}

// ListByRun returns all usage records for a run, ordered by insertion.
func (r *UsageRepo) ListByRun(ctx context.Context, db *sql.DB, runID string) ([]domain.UsageRecord, error) {
	const q = `SELECT id, run_id, stage, iteration, input_tokens, output_tokens, created_at
FROM usage_records
WHERE run_id = ?
ORDER BY id ASC`

	rows, err := db.QueryContext(ctx, q, runID)
	if err != nil {
		return nil, fmt.Errorf("list usage records: %w", err)
	}
	defer rows.Close()

	var recs []domain.UsageRecord
	for rows.Next() {
		var u domain.UsageRecord
		var stage string
		if err := rows.Scan(&u.ID, &u.RunID, &stage, &u.Iteration, &u.InputTokens, &u.OutputTokens, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan usage record: %w", err)
		}
		u.Stage = domain.StageRole(stage)
		recs = append(recs, u)
	}
	return recs, rows.Err()
}

// TotalsByRun sums the token usage recorded for a run.
func (r *UsageRepo) TotalsByRun(ctx context.Context, db *sql.DB, runID string) (inputTokens, outputTokens int64, err error) {
	const q = `SELECT COALESCE(SUM(input_tokens), 0), COALESCE(SUM(output_tokens), 0)
FROM usage_records
WHERE run_id = ?`

	row := db.QueryRowContext(ctx, q, runID)
	if err := row.Scan(&inputTokens, &outputTokens); err != nil {
		return 0, 0, fmt.Errorf("sum usage: %w", err)
	}
	return inputTokens, outputTokens, nil
}
