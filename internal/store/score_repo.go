package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/anthropics/triad/internal/domain"
)

// ScoreRepo handles persistence for per-file quality scores.
type ScoreRepo struct{}

// Create inserts a new score record.
func (r *ScoreRepo) Create(ctx context.Context, db *sql.DB, rec domain.ScoreRecord) error {
	const q = `INSERT INTO score_records (run_id, stage, iteration, path, score, syntax_valid, source, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := db.ExecContext(ctx, q,
		rec.RunID,
		string(rec.Stage),
		rec.Iteration,
		rec.Path,
		rec.Score,
		boolToInt(rec.SyntaxValid),
		rec.Source,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create score record: %w", err)
	}
	return nil
}

// ListByRun returns all score records for a run, ordered by insertion.
func (r *ScoreRepo) ListByRun(ctx context.Context, db *sql.DB, runID string) ([]domain.ScoreRecord, error) {
	const q = `SELECT id, run_id, stage, iteration, path, score, syntax_valid, source, created_at
FROM score_records
WHERE run_id = ?
ORDER BY id ASC`

	rows, err := db.QueryContext(ctx, q, runID)
	if err != nil {
		return nil, fmt.Errorf("list score records: %w", err)
	}
	defer rows.Close()

	var recs []domain.ScoreRecord
	for rows.Next() {
		var s domain.ScoreRecord
		var stage string
		var syntaxValid int
		if err := rows.Scan(&s.ID, &s.RunID, &stage, &s.Iteration, &s.Path, &s.Score, &syntaxValid, &s.Source, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan score record: %w", err)
		}
		s.Stage = domain.StageRole(stage)
		s.SyntaxValid = syntaxValid != 0
		recs = append(recs, s)
	}
	return recs, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
