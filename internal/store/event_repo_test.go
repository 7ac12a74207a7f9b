package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/anthropics/triad/internal/domain"
)

func TestEventRepo_AppendAndList(t *testing.T) {
	dir := t.TempDir()
	db, err := NewDB(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	repo := &EventRepo{}
	now := time.Now().Unix()

	events := []domain.RunEvent{
		{RunID: "run-1", SeqNo: 1, Kind: "run_started", CreatedAt: now},
		{RunID: "run-1", SeqNo: 2, Kind: "transition", Stage: domain.RolePlanner, FromState: domain.StatePlanning, ToState: domain.StateImplementing, CreatedAt: now + 1},
		{RunID: "run-1", SeqNo: 3, Kind: "transition", Stage: domain.RoleImplementer, FromState: domain.StateImplementing, ToState: domain.StateValidating, CreatedAt: now + 2},
	}

	for _, e := range events {
		tx, err := db.Begin()
		if err != nil {
			t.Fatalf("begin: %v", err)
		}
		if err := repo.AppendTx(ctx, tx, e); err != nil {
			t.Fatalf("AppendTx seq=%d: %v", e.SeqNo, err)
		}
		tx.Commit()
	}

	// List all events since seq 0.
	got, err := repo.ListByRun(ctx, db, "run-1", 0)
	if err != nil {
		t.Fatalf("ListByRun: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 events, got %d", len(got))
	}

	// List events since seq 1 (should return seq 2, 3).
	got, err = repo.ListByRun(ctx, db, "run-1", 1)
	if err != nil {
		t.Fatalf("ListByRun sinceSeq=1: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if got[0].SeqNo != 2 {
		t.Errorf("first event SeqNo = %d, want 2", got[0].SeqNo)
	}
	if got[0].FromState != domain.StatePlanning || got[0].ToState != domain.StateImplementing {
		t.Errorf("transition = %q -> %q", got[0].FromState, got[0].ToState)
	}
}

func TestEventRepo_DuplicateSeqNo(t *testing.T) {
	dir := t.TempDir()
	db, err := NewDB(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	repo := &EventRepo{}
	now := time.Now().Unix()

	event := domain.RunEvent{RunID: "run-dup", SeqNo: 1, Kind: "run_started", CreatedAt: now}

	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := repo.AppendTx(ctx, tx, event); err != nil {
		t.Fatalf("first AppendTx: %v", err)
	}
	tx.Commit()

	tx2, err := db.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	err = repo.AppendTx(ctx, tx2, event)
	tx2.Rollback()

	if err == nil {
		t.Error("expected error on duplicate seq_no, got nil")
	}
}

func TestEventRepo_IsolatesRuns(t *testing.T) {
	dir := t.TempDir()
	db, err := NewDB(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	repo := &EventRepo{}
	now := time.Now().Unix()

	for _, e := range []domain.RunEvent{
		{RunID: "run-x", SeqNo: 1, Kind: "run_started", CreatedAt: now},
		{RunID: "run-y", SeqNo: 1, Kind: "run_started", CreatedAt: now},
	} {
		tx, err := db.Begin()
		if err != nil {
			t.Fatalf("begin: %v", err)
		}
		if err := repo.AppendTx(ctx, tx, e); err != nil {
			t.Fatalf("AppendTx %s: %v", e.RunID, err)
		}
		tx.Commit()
	}

	got, err := repo.ListByRun(ctx, db, "run-x", 0)
	if err != nil {
		t.Fatalf("ListByRun: %v", err)
	}
	if len(got) != 1 || got[0].RunID != "run-x" {
		t.Errorf("got %d events for run-x", len(got))
	}
}
