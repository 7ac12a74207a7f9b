package orchestrator

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/anthropics/triad/internal/agent"
	"github.com/anthropics/triad/internal/domain"
	"github.com/anthropics/triad/internal/llm"
	"github.com/anthropics/triad/internal/memory"
	"github.com/anthropics/triad/internal/store"
	"github.com/anthropics/triad/internal/tool"
)

const pipelinePlanJSON = "```json\n" + `{
  "analysis": "Add a greeting helper module.",
  "files_to_create": [{"path": "greet.py", "purpose": "Greeting helper"}],
  "files_to_modify": [],
  "steps": [{"sequence": 1, "description": "Write greet.py", "file": "greet.py", "action": "create"}]
}` + "\n```"

const pipelineImplJSON = "```json\n" + `{
  "status": "success",
  "files_created": ["greet.py"],
  "files_modified": [],
  "linting_results": {"greet.py": {"score": 9.1, "syntax_valid": true}},
  "summary": "Added greet.py with a greet() function."
}` + "\n```"

const pipelineApprovedJSON = "```json\n" + `{
  "status": "approved",
  "changes_summary": "One new helper module, clean.",
  "files_reviewed": ["greet.py"],
  "quality_assessment": {"greet.py": {"score": 9.0, "syntax_valid": true}},
  "overall_quality": "excellent",
  "issues": [],
  "approval": true
}` + "\n```"

const pipelineNeedsFixesJSON = "```json\n" + `{
  "status": "needs_fixes",
  "changes_summary": "Helper lacks error handling.",
  "files_reviewed": ["greet.py"],
  "overall_quality": "needs_improvement",
  "issues": [{"description": "greet() crashes on empty name", "fix_instruction": "Add error handling to greet()", "severity": "major"}],
  "approval": false
}` + "\n```"

// pipelineStep is one scripted model turn: either a response or an error.
type pipelineStep struct {
	resp *llm.Response
	err  error
}

func respStep(text string) pipelineStep {
	return pipelineStep{resp: &llm.Response{Text: text, Usage: llm.Usage{InputTokens: 10, OutputTokens: 5}}}
}

func errStep(err error) pipelineStep {
	return pipelineStep{err: err}
}

// seqClient replays scripted steps in global call order and records requests.
type seqClient struct {
	steps    []pipelineStep
	requests []llm.Request
	next     int
}

func (c *seqClient) Generate(ctx context.Context, req llm.Request) (*llm.Response, error) {
	c.requests = append(c.requests, req)
	if c.next >= len(c.steps) {
		return &llm.Response{Text: "unscripted"}, nil
	}
	s := c.steps[c.next]
	c.next++
	if s.err != nil {
		return nil, s.err
	}
	return s.resp, nil
}

// cancelOn cancels the run context when the scripted call at index is reached.
type cancelOn struct {
	inner  llm.Client
	at     int
	cancel context.CancelFunc
	calls  int
}

func (c *cancelOn) Generate(ctx context.Context, req llm.Request) (*llm.Response, error) {
	c.calls++
	if c.calls == c.at {
		c.cancel()
		return nil, context.Canceled
	}
	return c.inner.Generate(ctx, req)
}

func newTestPipeline(t *testing.T, client llm.Client, maxFix int) (*Orchestrator, *sql.DB) {
	t.Helper()
	db, err := store.NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	sb, err := tool.NewSandbox(t.TempDir())
	if err != nil {
		t.Fatalf("NewSandbox: %v", err)
	}
	reg := tool.DefaultRegistry(sb, time.Second)
	stages := agent.NewStageSet(client, reg, memory.NewStore(), &store.DenialLog{DB: db}, agent.Options{})
	return New(db, stages, Options{MaxFixIterations: maxFix}), db
}

func serverError(msg string) error {
	return &llm.ServerError{ProviderError: llm.ProviderError{
		ClientError: llm.ClientError{Message: msg},
		Provider:    "anthropic",
		StatusCode:  500,
	}}
}

func TestRun_ApprovedFirstPass(t *testing.T) {
	client := &seqClient{steps: []pipelineStep{
		respStep(pipelinePlanJSON),
		respStep(pipelineImplJSON),
		respStep(pipelineApprovedJSON),
	}}
	orch, db := newTestPipeline(t, client, 3)
	ctx := context.Background()

	result, err := orch.Run(ctx, "add a greeting helper")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Status != domain.ResultApproved {
		t.Errorf("Status = %q, want approved", result.Status)
	}
	if result.Iterations != 0 {
		t.Errorf("Iterations = %d, want 0", result.Iterations)
	}
	// First-pass approval means exactly one call per stage.
	if len(client.requests) != 3 {
		t.Fatalf("expected 3 model calls, got %d", len(client.requests))
	}
	if result.Plan == nil || result.Implementation == nil || result.Validation == nil {
		t.Fatalf("missing artifacts: %+v", result)
	}
	if !result.Validation.Approval {
		t.Error("validation approval lost")
	}

	run, err := orch.Engine.GetState(ctx, result.RunID)
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if run.Status != domain.StateApproved {
		t.Errorf("run row status = %q", run.Status)
	}
	if run.LastEventSeq != 4 {
		t.Errorf("LastEventSeq = %d, want run_started + 3 transitions", run.LastEventSeq)
	}

	arts, err := orch.Engine.Artifacts.ListByRun(ctx, db, result.RunID)
	if err != nil {
		t.Fatalf("ListByRun: %v", err)
	}
	kinds := make(map[string]int)
	for _, a := range arts {
		kinds[a.Kind]++
	}
	if kinds["plan"] != 1 || kinds["implementation_report"] != 1 || kinds["validation_report"] != 1 {
		t.Errorf("artifact kinds = %v", kinds)
	}

	usage, err := orch.Meter.Usage.ListByRun(ctx, db, result.RunID)
	if err != nil {
		t.Fatalf("usage ListByRun: %v", err)
	}
	if len(usage) != 3 {
		t.Errorf("expected 3 usage rows, got %d", len(usage))
	}

	scores, err := orch.Scores.ListByRun(ctx, db, result.RunID)
	if err != nil {
		t.Fatalf("scores ListByRun: %v", err)
	}
	if len(scores) != 2 {
		t.Errorf("expected lint + review score rows, got %d", len(scores))
	}
}

func TestRun_FixLoopApprovedSecondPass(t *testing.T) {
	client := &seqClient{steps: []pipelineStep{
		respStep(pipelinePlanJSON),
		respStep(pipelineImplJSON),
		respStep(pipelineNeedsFixesJSON),
		respStep(pipelineImplJSON),
		respStep(pipelineApprovedJSON),
	}}
	orch, _ := newTestPipeline(t, client, 3)
	ctx := context.Background()

	result, err := orch.Run(ctx, "add a greeting helper")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Status != domain.ResultApproved {
		t.Errorf("Status = %q, want approved", result.Status)
	}
	if result.Iterations != 1 {
		t.Errorf("Iterations = %d, want 1", result.Iterations)
	}
	if len(client.requests) != 5 {
		t.Fatalf("expected 5 model calls, got %d", len(client.requests))
	}

	// The fix-cycle implementer must receive the rendered fix instructions.
	fixReq := client.requests[3].Messages
	fixMsg := fixReq[len(fixReq)-1].Content
	if !strings.HasPrefix(fixMsg, "Fix these issues:") {
		t.Errorf("fix input = %q", fixMsg)
	}
	if !strings.Contains(fixMsg, "- Add error handling to greet()") {
		t.Errorf("fix instruction missing: %q", fixMsg)
	}

	// Validation after a fix cycle uses the re-validation framing.
	revalReq := client.requests[4].Messages
	revalMsg := revalReq[len(revalReq)-1].Content
	if !strings.HasPrefix(revalMsg, "Re-validate the updated implementation:") {
		t.Errorf("revalidation input = %q", revalMsg)
	}

	run, err := orch.Engine.GetState(ctx, result.RunID)
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if run.Iterations != 1 {
		t.Errorf("run row iterations = %d", run.Iterations)
	}
}

func TestRun_ExhaustsFixBudget(t *testing.T) {
	cases := []struct {
		name      string
		maxFix    int
		wantCalls int
	}{
		{"single fix iteration", 1, 5},
		{"default budget of three", 3, 9},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			steps := []pipelineStep{respStep(pipelinePlanJSON)}
			for i := 0; i <= tc.maxFix; i++ {
				steps = append(steps, respStep(pipelineImplJSON), respStep(pipelineNeedsFixesJSON))
			}
			client := &seqClient{steps: steps}
			orch, _ := newTestPipeline(t, client, tc.maxFix)
			ctx := context.Background()

			result, err := orch.Run(ctx, "add a greeting helper")
			if err != nil {
				t.Fatalf("needs_review must not be an error, got %v", err)
			}
			if result.Status != domain.ResultNeedsReview {
				t.Errorf("Status = %q, want needs_review", result.Status)
			}
			if result.Iterations != tc.maxFix {
				t.Errorf("Iterations = %d, want %d", result.Iterations, tc.maxFix)
			}
			// The initial pass plus one implement+validate pair per fix
			// iteration; no call past the budget.
			if client.next != tc.wantCalls {
				t.Errorf("model calls = %d, want %d", client.next, tc.wantCalls)
			}

			run, err := orch.Engine.GetState(ctx, result.RunID)
			if err != nil {
				t.Fatalf("GetState: %v", err)
			}
			if run.Status != domain.StateNeedsReview {
				t.Errorf("run row status = %q", run.Status)
			}
		})
	}
}

func TestRun_PlanningFailureParksRun(t *testing.T) {
	client := &seqClient{steps: []pipelineStep{
		errStep(serverError("model exploded")),
	}}
	orch, db := newTestPipeline(t, client, 3)
	ctx := context.Background()

	result, err := orch.Run(ctx, "add a greeting helper")
	if err != nil {
		t.Fatalf("planning failure must degrade, got %v", err)
	}
	if result.Status != domain.ResultNeedsReview {
		t.Errorf("Status = %q, want needs_review", result.Status)
	}
	if result.Plan != nil {
		t.Error("no plan should survive a planning failure")
	}

	run, err := orch.Engine.GetState(ctx, result.RunID)
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if run.Status != domain.StateNeedsReview {
		t.Errorf("run row status = %q", run.Status)
	}

	events, err := orch.Engine.Events.ListByRun(ctx, db, result.RunID, 1)
	if err != nil {
		t.Fatalf("ListByRun: %v", err)
	}
	if len(events) != 1 || !strings.Contains(events[0].Detail, "planning failed") {
		t.Errorf("events = %+v", events)
	}
}

func TestRun_PlanFallbackKeepsPipelineAlive(t *testing.T) {
	client := &seqClient{steps: []pipelineStep{
		respStep("I would maybe add a file somewhere."),
		respStep("still no structured output"),
		respStep(pipelineImplJSON),
		respStep(pipelineApprovedJSON),
	}}
	orch, _ := newTestPipeline(t, client, 3)

	result, err := orch.Run(context.Background(), "add a greeting helper")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Status != domain.ResultApproved {
		t.Errorf("Status = %q, want approved", result.Status)
	}
	if !strings.Contains(result.Plan.Analysis, "structured plan") {
		t.Errorf("expected fallback plan, got %q", result.Plan.Analysis)
	}
}

func TestRun_ImplementStageFailureConsumesIteration(t *testing.T) {
	client := &seqClient{steps: []pipelineStep{
		respStep(pipelinePlanJSON),
		errStep(serverError("model exploded")),
	}}
	orch, _ := newTestPipeline(t, client, 0)
	ctx := context.Background()

	result, err := orch.Run(ctx, "add a greeting helper")
	if err != nil {
		t.Fatalf("stage failure must degrade, got %v", err)
	}
	if result.Status != domain.ResultNeedsReview {
		t.Errorf("Status = %q, want needs_review", result.Status)
	}
	if result.Validation == nil {
		t.Fatal("synthesized verdict missing")
	}
	if result.Validation.Approval {
		t.Error("synthesized verdict must not approve")
	}
	if len(result.Validation.Issues) == 0 || !strings.Contains(result.Validation.Issues[0].Description, "implementer stage failed") {
		t.Errorf("issues = %+v", result.Validation.Issues)
	}

	run, err := orch.Engine.GetState(ctx, result.RunID)
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if run.Status != domain.StateNeedsReview {
		t.Errorf("run row status = %q", run.Status)
	}
}

func TestRun_CanceledMidRun(t *testing.T) {
	inner := &seqClient{steps: []pipelineStep{
		respStep(pipelinePlanJSON),
		respStep(pipelineImplJSON),
	}}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	client := &cancelOn{inner: inner, at: 2, cancel: cancel}
	orch, db := newTestPipeline(t, client, 3)

	result, err := orch.Run(ctx, "add a greeting helper")
	if domain.ErrorCode(err) != domain.ErrRunCanceled.Code {
		t.Fatalf("error = %v, want run canceled", err)
	}
	if result == nil || result.Plan == nil {
		t.Fatal("partial result must carry the plan")
	}
	if result.Validation != nil {
		t.Error("canceled run should not have a verdict")
	}
	if result.Status != domain.ResultNeedsReview {
		t.Errorf("result status = %q, want needs_review", result.Status)
	}

	// The row must not stay frozen mid-pipeline: cancel finalizes it as
	// needs_review with a run_canceled event.
	run, gerr := orch.Engine.GetState(context.Background(), result.RunID)
	if gerr != nil {
		t.Fatalf("GetState: %v", gerr)
	}
	if run.Status != domain.StateNeedsReview {
		t.Errorf("run row status = %q, want needs_review", run.Status)
	}

	events, eerr := (&store.EventRepo{}).ListByRun(context.Background(), db, result.RunID, 0)
	if eerr != nil {
		t.Fatalf("ListByRun: %v", eerr)
	}
	last := events[len(events)-1]
	if last.Kind != "run_canceled" {
		t.Errorf("last event kind = %q, want run_canceled", last.Kind)
	}
	if last.ToState != domain.StateNeedsReview {
		t.Errorf("cancel event to_state = %q, want needs_review", last.ToState)
	}
}
