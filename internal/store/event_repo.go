package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/anthropics/triad/internal/domain"
)

// EventRepo handles persistence for RunEvent records.
type EventRepo struct{}

// AppendTx inserts a run event within an existing transaction.
func (r *EventRepo) AppendTx(ctx context.Context, tx *sql.Tx, event domain.RunEvent) error {
	const q = `INSERT INTO run_events (run_id, seq_no, kind, stage, from_state, to_state, detail, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := tx.ExecContext(ctx, q,
		event.RunID,
		event.SeqNo,
		event.Kind,
		string(event.Stage),
		string(event.FromState),
		string(event.ToState),
		event.Detail,
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// ListByRun returns events for a run with sequence numbers greater than sinceSeq,
// ordered by sequence number ascending.
func (r *EventRepo) ListByRun(ctx context.Context, db *sql.DB, runID string, sinceSeq int64) ([]domain.RunEvent, error) {
	const q = `SELECT id, run_id, seq_no, kind, stage, from_state, to_state, detail, created_at
FROM run_events
WHERE run_id = ? AND seq_no > ?
ORDER BY seq_no ASC`

	rows, err := db.QueryContext(ctx, q, runID, sinceSeq)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []domain.RunEvent
	for rows.Next() {
		var e domain.RunEvent
		var stage, from, to string
		if err := rows.Scan(&e.ID, &e.RunID, &e.SeqNo, &e.Kind, &stage, &from, &to, &e.Detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Stage = domain.StageRole(stage)
		e.FromState = domain.RunState(from)
		e.ToState = domain.RunState(to)
		events = append(events, e)
	}
	return events, rows.Err()
}
