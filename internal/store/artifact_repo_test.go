package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/anthropics/triad/internal/domain"
)

func TestArtifactRepo_SaveAndGetLatest(t *testing.T) {
	dir := t.TempDir()
	db, err := NewDB(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	repo := &ArtifactRepo{}
	now := time.Now().Unix()

	arts := []domain.Artifact{
		{RunID: "run-1", Stage: domain.RoleValidator, Kind: "validation_report", Iteration: 0, Body: `{"approval":false}`, CreatedAt: now},
		{RunID: "run-1", Stage: domain.RoleValidator, Kind: "validation_report", Iteration: 1, Body: `{"approval":true}`, CreatedAt: now},
	}
	for _, a := range arts {
		tx, err := db.Begin()
		if err != nil {
			t.Fatalf("begin: %v", err)
		}
		if err := repo.SaveTx(ctx, tx, a); err != nil {
			t.Fatalf("SaveTx iteration=%d: %v", a.Iteration, err)
		}
		tx.Commit()
	}

	got, err := repo.GetLatest(ctx, db, "run-1", "validation_report")
	if err != nil {
		t.Fatalf("GetLatest: %v", err)
	}
	if got == nil {
		t.Fatal("GetLatest returned nil")
	}
	if got.Iteration != 1 {
		t.Errorf("Iteration = %d, want the newest", got.Iteration)
	}
	if got.Body != `{"approval":true}` {
		t.Errorf("Body = %q", got.Body)
	}
	if got.Stage != domain.RoleValidator {
		t.Errorf("Stage = %q", got.Stage)
	}
}

func TestArtifactRepo_GetLatest_Missing(t *testing.T) {
	dir := t.TempDir()
	db, err := NewDB(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	repo := &ArtifactRepo{}

	got, err := repo.GetLatest(ctx, db, "run-none", "plan")
	if err != nil {
		t.Fatalf("GetLatest: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for missing artifact, got %+v", got)
	}
}

func TestArtifactRepo_ListByRun(t *testing.T) {
	dir := t.TempDir()
	db, err := NewDB(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	repo := &ArtifactRepo{}
	now := time.Now().Unix()

	kinds := []string{"plan", "implementation_report", "validation_report"}
	for _, kind := range kinds {
		tx, err := db.Begin()
		if err != nil {
			t.Fatalf("begin: %v", err)
		}
		art := domain.Artifact{RunID: "run-2", Stage: domain.RolePlanner, Kind: kind, Body: "{}", CreatedAt: now}
		if err := repo.SaveTx(ctx, tx, art); err != nil {
			t.Fatalf("SaveTx %s: %v", kind, err)
		}
		tx.Commit()
	}

	got, err := repo.ListByRun(ctx, db, "run-2")
	if err != nil {
		t.Fatalf("ListByRun: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 artifacts, got %d", len(got))
	}
	for i, kind := range kinds {
		if got[i].Kind != kind {
			t.Errorf("artifact %d kind = %q, want %q", i, got[i].Kind, kind)
		}
	}
}
