package orchestrator

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/anthropics/triad/internal/agent"
	"github.com/anthropics/triad/internal/contract"
	"github.com/anthropics/triad/internal/domain"
	"github.com/anthropics/triad/internal/llm"
	"github.com/anthropics/triad/internal/store"
)

// Options configures a pipeline orchestrator.
type Options struct {
	// MaxFixIterations bounds the fix loop. Zero means the first needs_fixes
	// verdict parks the run for review.
	MaxFixIterations int
	// UsageWarnTokens is the advisory run-wide token ceiling.
	UsageWarnTokens int64
}

// Orchestrator drives one request through planning, implementation and
// validation, looping through fix cycles until the validator approves or the
// iteration budget runs out.
type Orchestrator struct {
	DB     *sql.DB
	Stages *agent.StageSet
	Engine *Engine
	Gate   *ApprovalGate
	Meter  *UsageMeter
	Scores *store.ScoreRepo

	MaxFixIterations int
}

// New creates an orchestrator over the given run log and stage set.
func New(db *sql.DB, stages *agent.StageSet, opts Options) *Orchestrator {
	return &Orchestrator{
		DB:               db,
		Stages:           stages,
		Engine:           NewEngine(db),
		Gate:             &ApprovalGate{},
		Meter:            NewUsageMeter(db, opts.UsageWarnTokens),
		Scores:           &store.ScoreRepo{},
		MaxFixIterations: opts.MaxFixIterations,
	}
}

// Run executes the full pipeline for one request. A run that ends in
// needs_review is a completed run, not a failure; the returned error is
// non-nil only for cancellation, missing credentials, or a broken run log.
func (o *Orchestrator) Run(ctx context.Context, request string) (*domain.Result, error) {
	runID := uuid.NewString()
	result := &domain.Result{
		RunID:   runID,
		Request: request,
		Status:  domain.ResultNeedsReview,
	}

	if err := o.Engine.StartRun(ctx, runID, request); err != nil {
		return nil, err
	}
	log.Printf("[orchestrator] run %s started", runID)

	warned := false

	plan, usage, err := o.Stages.Plan(ctx, runID, PlanningInput(request))
	o.recordUsage(ctx, runID, domain.RolePlanner, 0, usage, &warned)
	if err != nil {
		if fatal := runFatal(err); fatal != nil {
			if domain.ErrorCode(fatal) == domain.ErrRunCanceled.Code {
				return o.finishCanceled(runID, result, fatal)
			}
			return result, fatal
		}
		// No plan means nothing to implement: park the run for a human.
		detail := fmt.Sprintf("planning failed: %v", err)
		if aerr := o.Engine.Advance(ctx, runID, domain.StateNeedsReview, Transition{
			Stage:  domain.RolePlanner,
			Detail: detail,
		}); aerr != nil {
			return result, aerr
		}
		log.Printf("[orchestrator] run %s needs review: %s", runID, detail)
		return result, nil
	}
	result.Plan = plan

	if err := o.Engine.Advance(ctx, runID, domain.StateImplementing, Transition{
		Stage:    domain.RolePlanner,
		Detail:   fmt.Sprintf("plan accepted with %d steps", len(plan.Steps)),
		Artifact: artifactFor(domain.RolePlanner, "plan", 0, plan),
	}); err != nil {
		return result, err
	}

	iterations := 0
	implInput := ImplementationInput(plan)

	for {
		// Cancellation takes effect between stages, never mid-write.
		if ctx.Err() != nil {
			return o.finishCanceled(runID, result,
				domain.WrapAgentError(domain.ErrRunCanceled.Code, "run canceled between stages", ctx.Err()))
		}

		verdict, err := o.implementAndValidate(ctx, runID, iterations, implInput, result, &warned)
		if err != nil {
			if domain.ErrorCode(err) == domain.ErrRunCanceled.Code {
				return o.finishCanceled(runID, result, err)
			}
			return result, err
		}

		decision := o.Gate.Evaluate(verdict)
		if decision.Allow {
			if err := o.Engine.Advance(ctx, runID, domain.StateApproved, Transition{
				Stage:      domain.RoleValidator,
				Detail:     "validator approved the implementation",
				Iterations: iterations,
				Artifact:   artifactFor(domain.RoleValidator, "validation_report", iterations, verdict),
			}); err != nil {
				return result, err
			}
			result.Status = domain.ResultApproved
			result.Iterations = iterations
			log.Printf("[orchestrator] run %s approved after %d fix iterations", runID, iterations)
			return result, nil
		}

		if iterations >= o.MaxFixIterations {
			detail := fmt.Sprintf("fix budget exhausted after %d iterations; blockers: %s",
				iterations, strings.Join(decision.Blockers, "; "))
			if err := o.Engine.Advance(ctx, runID, domain.StateNeedsReview, Transition{
				Stage:      domain.RoleValidator,
				Detail:     detail,
				Iterations: iterations,
				Artifact:   artifactFor(domain.RoleValidator, "validation_report", iterations, verdict),
			}); err != nil {
				return result, err
			}
			result.Status = domain.ResultNeedsReview
			result.Iterations = iterations
			log.Printf("[orchestrator] run %s needs review: %s", runID, detail)
			return result, nil
		}

		iterations++
		result.Iterations = iterations
		if err := o.Engine.Advance(ctx, runID, domain.StateFixing, Transition{
			Stage:      domain.RoleValidator,
			Detail:     strings.Join(decision.Blockers, "; "),
			Iterations: iterations,
			Artifact:   artifactFor(domain.RoleValidator, "validation_report", iterations-1, verdict),
		}); err != nil {
			return result, err
		}
		implInput = FixInput(verdict)
		if err := o.Engine.Advance(ctx, runID, domain.StateImplementing, Transition{
			Stage:      domain.RoleImplementer,
			Detail:     fmt.Sprintf("fix iteration %d of %d", iterations, o.MaxFixIterations),
			Iterations: iterations,
		}); err != nil {
			return result, err
		}
		log.Printf("[orchestrator] run %s fix iteration %d", runID, iterations)
	}
}

// finishCanceled parks a canceled run as needs_review so the row does not
// stay frozen in a mid-pipeline state. The run context is already dead, so
// finalization gets its own short deadline. The partial result is returned
// alongside the cancellation error.
func (o *Orchestrator) finishCanceled(runID string, result *domain.Result, cause error) (*domain.Result, error) {
	fctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.Engine.CancelRun(fctx, runID, fmt.Sprintf("%v", cause)); err != nil {
		log.Printf("[orchestrator] finalize canceled run %s: %v", runID, err)
	}
	result.Status = domain.ResultNeedsReview
	log.Printf("[orchestrator] run %s canceled", runID)
	return result, cause
}

// implementAndValidate runs one implementation pass and its validation,
// returning the verdict that decides the next transition. A stage failure
// that is not run-fatal degrades into a synthesized needs_fixes verdict so
// the fix loop keeps control of the iteration budget.
func (o *Orchestrator) implementAndValidate(ctx context.Context, runID string, iteration int, implInput string, result *domain.Result, warned *bool) (*domain.ValidationReport, error) {
	impl, usage, err := o.Stages.Implement(ctx, runID, implInput)
	o.recordUsage(ctx, runID, domain.RoleImplementer, iteration, usage, warned)
	if err != nil {
		if fatal := runFatal(err); fatal != nil {
			return nil, fatal
		}
		if aerr := o.Engine.Advance(ctx, runID, domain.StateValidating, Transition{
			Stage:      domain.RoleImplementer,
			Detail:     fmt.Sprintf("implementation stage failed: %v", err),
			Iterations: iteration,
		}); aerr != nil {
			return nil, aerr
		}
		verdict := synthesizedVerdict(domain.RoleImplementer, err)
		result.Validation = verdict
		return verdict, nil
	}
	result.Implementation = impl
	o.recordImplScores(ctx, runID, iteration, impl)

	if err := o.Engine.Advance(ctx, runID, domain.StateValidating, Transition{
		Stage:      domain.RoleImplementer,
		Detail:     fmt.Sprintf("implementation reported %s", impl.Status),
		Iterations: iteration,
		Artifact:   artifactFor(domain.RoleImplementer, "implementation_report", iteration, impl),
	}); err != nil {
		return nil, err
	}

	valInput := ValidationInput(impl)
	if iteration > 0 {
		valInput = RevalidationInput(impl)
	}
	verdict, vusage, err := o.Stages.Validate(ctx, runID, valInput)
	o.recordUsage(ctx, runID, domain.RoleValidator, iteration, vusage, warned)
	if err != nil {
		if fatal := runFatal(err); fatal != nil {
			return nil, fatal
		}
		verdict = synthesizedVerdict(domain.RoleValidator, err)
	}
	result.Validation = verdict
	o.recordReviewScores(ctx, runID, iteration, verdict)
	return verdict, nil
}

// runFatal returns the error when it must stop the run instead of degrading
// into the fix loop.
func runFatal(err error) error {
	switch domain.ErrorCode(err) {
	case domain.ErrRunCanceled.Code, domain.ErrMissingCredentials.Code:
		return err
	}
	return nil
}

// synthesizedVerdict stands in for a validation report when a stage died
// before producing one. It always demands fixes, so the failure consumes an
// iteration instead of ending the run.
func synthesizedVerdict(stage domain.StageRole, cause error) *domain.ValidationReport {
	report := &domain.ValidationReport{
		Status:         domain.ValidationNeedsFixes,
		ChangesSummary: fmt.Sprintf("The %s stage failed before producing output", stage),
		Issues: []domain.ValidationIssue{{
			Description: fmt.Sprintf("%s stage failed: %v", stage, cause),
			Severity:    domain.SeverityMajor,
		}},
		OverallQuality: domain.QualityNeedsImprovement,
		QualityScore:   -1,
	}
	contract.NormalizeValidationReport(report)
	return report
}

func (o *Orchestrator) recordUsage(ctx context.Context, runID string, stage domain.StageRole, iteration int, u llm.Usage, warned *bool) {
	if u.InputTokens == 0 && u.OutputTokens == 0 {
		return
	}
	warn, err := o.Meter.Record(ctx, runID, stage, iteration, u)
	if err != nil {
		log.Printf("[orchestrator] record usage for %s: %v", stage, err)
		return
	}
	if warn && !*warned {
		*warned = true
		log.Printf("[orchestrator] run %s crossed the token warning ceiling", runID)
	}
}

func (o *Orchestrator) recordImplScores(ctx context.Context, runID string, iteration int, report *domain.ImplementationReport) {
	for path, lint := range report.LintResults {
		rec := domain.ScoreRecord{
			RunID:       runID,
			Stage:       domain.RoleImplementer,
			Iteration:   iteration,
			Path:        path,
			Score:       lint.Score,
			SyntaxValid: lint.SyntaxValid,
			Source:      "lint",
		}
		rec.CreatedAt = time.Now().Unix()
		if err := o.Scores.Create(ctx, o.DB, rec); err != nil {
			log.Printf("[orchestrator] record lint score for %s: %v", path, err)
		}
	}
}

func (o *Orchestrator) recordReviewScores(ctx context.Context, runID string, iteration int, report *domain.ValidationReport) {
	for path, q := range report.QualityAssessment {
		rec := domain.ScoreRecord{
			RunID:       runID,
			Stage:       domain.RoleValidator,
			Iteration:   iteration,
			Path:        path,
			Score:       q.Score,
			SyntaxValid: q.SyntaxValid,
			Source:      "review",
		}
		rec.CreatedAt = time.Now().Unix()
		if err := o.Scores.Create(ctx, o.DB, rec); err != nil {
			log.Printf("[orchestrator] record review score for %s: %v", path, err)
		}
	}
}

func artifactFor(stage domain.StageRole, kind string, iteration int, v interface{}) *domain.Artifact {
	return &domain.Artifact{
		Stage:     stage,
		Kind:      kind,
		Iteration: iteration,
		Body:      marshalArtifact(v),
	}
}
