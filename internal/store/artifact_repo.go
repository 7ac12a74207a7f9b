package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/anthropics/triad/internal/domain"
)

// ArtifactRepo handles persistence for stage output snapshots.
type ArtifactRepo struct{}

// SaveTx inserts an artifact within an existing transaction.
func (r *ArtifactRepo) SaveTx(ctx context.Context, tx *sql.Tx, art domain.Artifact) error {
	const q = `INSERT INTO artifacts (run_id, stage, kind, iteration, body_json, created_at)
VALUES (?, ?, ?, ?, ?, ?)`
	_, err := tx.ExecContext(ctx, q,
		art.RunID,
		string(art.Stage),
		art.Kind,
		art.Iteration,
		art.Body,
		art.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save artifact: %w", err)
	}
	return nil
}

// GetLatest returns the most recent artifact of a kind for a run.
// Returns nil if none exists.
func (r *ArtifactRepo) GetLatest(ctx context.Context, db *sql.DB, runID, kind string) (*domain.Artifact, error) {
	const q = `SELECT id, run_id, stage, kind, iteration, body_json, created_at
FROM artifacts
WHERE run_id = ? AND kind = ?
ORDER BY id DESC
LIMIT 1`

	row := db.QueryRowContext(ctx, q, runID, kind)

	var a domain.Artifact
	var stage string
	err := row.Scan(&a.ID, &a.RunID, &stage, &a.Kind, &a.Iteration, &a.Body, &a.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get latest artifact: %w", err)
	}
	a.Stage = domain.StageRole(stage)
	return &a, nil
}

// ListByRun returns all artifacts for a run in insertion order.
func (r *ArtifactRepo) ListByRun(ctx context.Context, db *sql.DB, runID string) ([]domain.Artifact, error) {
	const q = `SELECT id, run_id, stage, kind, iteration, body_json, created_at
FROM artifacts
WHERE run_id = ?
ORDER BY id ASC`

	rows, err := db.QueryContext(ctx, q, runID)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	defer rows.Close()

	var arts []domain.Artifact
	for rows.Next() {
		var a domain.Artifact
		var stage string
		if err := rows.Scan(&a.ID, &a.RunID, &stage, &a.Kind, &a.Iteration, &a.Body, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan artifact: %w", err)
		}
		a.Stage = domain.StageRole(stage)
		arts = append(arts, a)
	}
	return arts, rows.Err()
}
