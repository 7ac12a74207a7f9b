package store

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/anthropics/triad/internal/domain"
)

// AuditRepo handles persistence for tool boundary AuditRecord entries.
type AuditRepo struct{}

// Record inserts an audit record.
func (r *AuditRepo) Record(ctx context.Context, db *sql.DB, rec domain.AuditRecord) error {
	const q = `INSERT INTO audit_records (run_id, stage, tool, decision, reason, created_at)
VALUES (?, ?, ?, ?, ?, ?)`
	_, err := db.ExecContext(ctx, q,
		rec.RunID,
		string(rec.Stage),
		rec.Tool,
		rec.Decision,
		rec.Reason,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record audit: %w", err)
	}
	return nil
}

// ListByRun returns all audit records for a run, ordered by insertion.
func (r *AuditRepo) ListByRun(ctx context.Context, db *sql.DB, runID string) ([]domain.AuditRecord, error) {
	const q = `SELECT id, run_id, stage, tool, decision, reason, created_at
FROM audit_records
WHERE run_id = ?
ORDER BY id ASC`

	rows, err := db.QueryContext(ctx, q, runID)
	if err != nil {
		return nil, fmt.Errorf("list audit records: %w", err)
	}
	defer rows.Close()

	var records []domain.AuditRecord
	for rows.Next() {
		var a domain.AuditRecord
		var stage string
		if err := rows.Scan(&a.ID, &a.RunID, &stage, &a.Tool, &a.Decision, &a.Reason, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		a.Stage = domain.StageRole(stage)
		records = append(records, a)
	}
	return records, rows.Err()
}

// DenialLog adapts the audit table to the tool broker's sink. Inserts are
// best effort: a failure is logged and never surfaced to the caller.
type DenialLog struct {
	DB   *sql.DB
	Repo AuditRepo
}

// RecordDenial persists one capability denial.
func (d *DenialLog) RecordDenial(ctx context.Context, runID string, stage domain.StageRole, tool, reason string) {
	rec := domain.AuditRecord{
		RunID:     runID,
		Stage:     stage,
		Tool:      tool,
		Decision:  "denied",
		Reason:    reason,
		CreatedAt: time.Now().Unix(),
	}
	if err := d.Repo.Record(ctx, d.DB, rec); err != nil {
		log.Printf("audit: record denial for %s/%s: %v", stage, tool, err)
	}
}
