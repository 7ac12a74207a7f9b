package orchestrator

import (
	"context"
	"database/sql"
	"time"

	"github.com/anthropics/triad/internal/domain"
	"github.com/anthropics/triad/internal/llm"
	"github.com/anthropics/triad/internal/store"
)

// UsageMeter records per-stage token consumption and watches the run total
// against an advisory ceiling. Crossing the ceiling warns; it never halts a
// run, since token counts from fallback estimation are too coarse to gate on.
type UsageMeter struct {
	DB    *sql.DB
	Usage *store.UsageRepo

	// WarnTokens is the combined token total above which Record reports a
	// warning. Zero disables the check.
	WarnTokens int64
}

// NewUsageMeter creates a meter with the given advisory ceiling.
func NewUsageMeter(db *sql.DB, warnTokens int64) *UsageMeter {
	return &UsageMeter{
		DB:         db,
		Usage:      &store.UsageRepo{},
		WarnTokens: warnTokens,
	}
}

// Record persists one stage's usage delta and reports whether the run total
// has crossed the warning ceiling.
func (m *UsageMeter) Record(ctx context.Context, runID string, stage domain.StageRole, iteration int, u llm.Usage) (warn bool, err error) {
	rec := domain.UsageRecord{
		RunID:        runID,
		Stage:        stage,
		Iteration:    iteration,
		InputTokens:  int64(u.InputTokens),
		OutputTokens: int64(u.OutputTokens),
		CreatedAt:    time.Now().Unix(),
	}
	if err := m.Usage.Create(ctx, m.DB, rec); err != nil {
		return false, err
	}

	if m.WarnTokens <= 0 {
		return false, nil
	}
	in, out, err := m.Usage.TotalsByRun(ctx, m.DB, runID)
	if err != nil {
		return false, err
	}
	return in+out >= m.WarnTokens, nil
}
