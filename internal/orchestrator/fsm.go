// Package orchestrator drives the plan, implement, validate pipeline and its
// fix loop over the persistent run log.
package orchestrator

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/anthropics/triad/internal/domain"
	"github.com/anthropics/triad/internal/store"
)

// validTransitions defines the legal run state transitions.
// Each key is a source state, and the value is the set of valid target states.
var validTransitions = map[domain.RunState]map[domain.RunState]bool{
	domain.StatePlanning:     {domain.StateImplementing: true, domain.StateNeedsReview: true},
	domain.StateImplementing: {domain.StateValidating: true},
	domain.StateValidating:   {domain.StateApproved: true, domain.StateFixing: true, domain.StateNeedsReview: true},
	domain.StateFixing:       {domain.StateImplementing: true},
}

// IsValidTransition checks if a run state transition is legal.
func IsValidTransition(from, to domain.RunState) bool {
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// IsTerminal reports whether a run state has no outgoing transitions.
func IsTerminal(s domain.RunState) bool {
	return s == domain.StateApproved || s == domain.StateNeedsReview
}

// Transition carries the metadata recorded with one state change.
type Transition struct {
	Stage      domain.StageRole
	Detail     string
	Iterations int
	Artifact   *domain.Artifact
}

// Engine is the FSM that manages run state transitions.
type Engine struct {
	DB        *sql.DB
	Runs      *store.RunRepo
	Events    *store.EventRepo
	Artifacts *store.ArtifactRepo
}

// NewEngine creates a new FSM engine with all dependencies.
func NewEngine(db *sql.DB) *Engine {
	return &Engine{
		DB:        db,
		Runs:      &store.RunRepo{},
		Events:    &store.EventRepo{},
		Artifacts: &store.ArtifactRepo{},
	}
}

// StartRun creates a new run in the planning state.
func (e *Engine) StartRun(ctx context.Context, runID, request string) error {
	now := time.Now().Unix()
	rec := domain.RunRecord{
		RunID:        runID,
		Request:      request,
		Status:       domain.StatePlanning,
		StateVersion: 1,
		LastEventSeq: 1, // The initial run_started event uses seq 1.
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := e.Runs.CreateTx(ctx, tx, rec); err != nil {
		return err
	}

	event := domain.RunEvent{
		RunID:     runID,
		SeqNo:     1,
		Kind:      "run_started",
		ToState:   domain.StatePlanning,
		Detail:    request,
		CreatedAt: now,
	}
	if err := e.Events.AppendTx(ctx, tx, event); err != nil {
		return fmt.Errorf("append start event: %w", err)
	}

	return tx.Commit()
}

// Advance moves a run to the target state. The transition event, the stage
// artifact (when present) and the state update are committed in a single
// transaction with optimistic locking.
func (e *Engine) Advance(ctx context.Context, runID string, to domain.RunState, t Transition) error {
	run, err := e.Runs.GetByID(ctx, e.DB, runID)
	if err != nil {
		return err
	}

	if IsTerminal(run.Status) {
		return domain.ErrRunFinished
	}
	if !IsValidTransition(run.Status, to) {
		return domain.NewAgentError(
			domain.ErrInvalidTransition.Code,
			fmt.Sprintf("illegal transition %s -> %s", run.Status, to),
		)
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	newSeq := run.LastEventSeq + 1

	event := domain.RunEvent{
		RunID:     runID,
		SeqNo:     newSeq,
		Kind:      "state_transition",
		Stage:     t.Stage,
		FromState: run.Status,
		ToState:   to,
		Detail:    t.Detail,
		CreatedAt: now,
	}
	if err := e.Events.AppendTx(ctx, tx, event); err != nil {
		return fmt.Errorf("append transition event: %w", err)
	}

	if t.Artifact != nil {
		art := *t.Artifact
		art.RunID = runID
		art.CreatedAt = now
		if err := e.Artifacts.SaveTx(ctx, tx, art); err != nil {
			return err
		}
	}

	updated := *run
	updated.Status = to
	updated.Iterations = t.Iterations
	updated.LastEventSeq = newSeq
	updated.UpdatedAt = now

	if err := e.Runs.UpdateStateTx(ctx, tx, updated); err != nil {
		return err
	}

	return tx.Commit()
}

// CancelRun finalizes a canceled run as needs_review with a run_canceled
// event. Cancellation is administrative rather than a pipeline step, so it
// applies from any non-terminal state instead of going through the
// transition table. Canceling an already finished run is a no-op.
func (e *Engine) CancelRun(ctx context.Context, runID, detail string) error {
	run, err := e.Runs.GetByID(ctx, e.DB, runID)
	if err != nil {
		return err
	}
	if IsTerminal(run.Status) {
		return nil
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	newSeq := run.LastEventSeq + 1

	event := domain.RunEvent{
		RunID:     runID,
		SeqNo:     newSeq,
		Kind:      "run_canceled",
		FromState: run.Status,
		ToState:   domain.StateNeedsReview,
		Detail:    detail,
		CreatedAt: now,
	}
	if err := e.Events.AppendTx(ctx, tx, event); err != nil {
		return fmt.Errorf("append cancel event: %w", err)
	}

	updated := *run
	updated.Status = domain.StateNeedsReview
	updated.LastEventSeq = newSeq
	updated.UpdatedAt = now

	if err := e.Runs.UpdateStateTx(ctx, tx, updated); err != nil {
		return err
	}

	return tx.Commit()
}

// GetState returns the current state of a run.
func (e *Engine) GetState(ctx context.Context, runID string) (*domain.RunRecord, error) {
	return e.Runs.GetByID(ctx, e.DB, runID)
}
