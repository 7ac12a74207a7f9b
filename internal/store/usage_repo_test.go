package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/anthropics/triad/internal/domain"
)

func TestUsageRepo_CreateAndTotals(t *testing.T) {
	dir := t.TempDir()
	db, err := NewDB(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	repo := &UsageRepo{}
	now := time.Now().Unix()

	recs := []domain.UsageRecord{
		{RunID: "run-1", Stage: domain.RolePlanner, Iteration: 0, InputTokens: 1200, OutputTokens: 300, CreatedAt: now},
		{RunID: "run-1", Stage: domain.RoleImplementer, Iteration: 0, InputTokens: 4000, OutputTokens: 900, CreatedAt: now + 1},
		{RunID: "run-1", Stage: domain.RoleValidator, Iteration: 1, InputTokens: 2500, OutputTokens: 400, CreatedAt: now + 2},
		{RunID: "run-other", Stage: domain.RolePlanner, Iteration: 0, InputTokens: 99, OutputTokens: 99, CreatedAt: now},
	}
	for _, rec := range recs {
		if err := repo.Create(ctx, db, rec); err != nil {
			t.Fatalf("Create %s: %v", rec.Stage, err)
		}
	}

	in, out, err := repo.TotalsByRun(ctx, db, "run-1")
	if err != nil {
		t.Fatalf("TotalsByRun: %v", err)
	}
	if in != 7700 {
		t.Errorf("input total = %d, want 7700", in)
	}
	if out != 1600 {
		t.Errorf("output total = %d, want 1600", out)
	}

	got, err := repo.ListByRun(ctx, db, "run-1")
	if err != nil {
		t.Fatalf("ListByRun: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 records, got %d", len(got))
	}
	if got[2].Stage != domain.RoleValidator || got[2].Iteration != 1 {
		t.Errorf("third record = %+v", got[2])
	}
}

func TestUsageRepo_TotalsByRun_Empty(t *testing.T) {
	dir := t.TempDir()
	db, err := NewDB(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	defer db.Close()

	in, out, err := (&UsageRepo{}).TotalsByRun(context.Background(), db, "run-none")
	if err != nil {
		t.Fatalf("TotalsByRun: %v", err)
	}
	if in != 0 || out != 0 {
		t.Errorf("totals = %d/%d, want 0/0", in, out)
	}
}
