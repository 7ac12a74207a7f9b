package agent

import (
	"context"
	"log"
	"time"

	"github.com/anthropics/triad/internal/contract"
	"github.com/anthropics/triad/internal/domain"
	"github.com/anthropics/triad/internal/llm"
	"github.com/anthropics/triad/internal/memory"
	"github.com/anthropics/triad/internal/tool"
)

// Thread ids for the per-stage conversation histories.
const (
	PlanningThread       = "planning_session"
	ImplementationThread = "implementation_session"
	ValidationThread     = "validation_session"
	SharedThread         = "shared_session"
	AssistantThread      = "assistant_session"
)

const (
	defaultMaxTurns  = 50
	defaultTimeout   = 300 * time.Second
	defaultCompactAt = 40
	defaultThreshold = 8.0
)

// Options configure stage construction.
type Options struct {
	MaxTurns      int
	StageTimeout  time.Duration
	CompactAt     int
	LintThreshold float64
	// SharedMemory puts all stages on one thread so each sees the others'
	// exploration. Off by default: a stage only receives digests.
	SharedMemory bool
}

func (o Options) withDefaults() Options {
	if o.MaxTurns <= 0 {
		o.MaxTurns = defaultMaxTurns
	}
	if o.StageTimeout <= 0 {
		o.StageTimeout = defaultTimeout
	}
	if o.CompactAt <= 0 {
		o.CompactAt = defaultCompactAt
	}
	if o.LintThreshold <= 0 {
		o.LintThreshold = defaultThreshold
	}
	return o
}

// StageSet is the three pipeline stages sharing one client, registry and
// session memory. Each typed operation runs its stage, coerces the output,
// retries once with a corrective note on a schema violation, and degrades to
// the fallback artifact rather than failing the run on unparseable text.
type StageSet struct {
	Planner     *Stage
	Implementer *Stage
	Validator   *Stage
	Memory      *memory.Store

	lintThreshold float64
}

// NewStageSet wires the three stages with their capability-scoped brokers.
func NewStageSet(client llm.Client, reg *tool.Registry, mem *memory.Store, audit tool.AuditSink, opts Options) *StageSet {
	opts = opts.withDefaults()

	planThread, implThread, validThread := PlanningThread, ImplementationThread, ValidationThread
	if opts.SharedMemory {
		planThread, implThread, validThread = SharedThread, SharedThread, SharedThread
	}

	newStage := func(role domain.StageRole, thread, system string, capability domain.Capability) *Stage {
		return &Stage{
			Role:      role,
			ThreadID:  thread,
			System:    system,
			Client:    client,
			Broker:    tool.NewBroker(reg, role, capability, audit),
			Memory:    mem,
			MaxTurns:  opts.MaxTurns,
			Timeout:   opts.StageTimeout,
			CompactAt: opts.CompactAt,
		}
	}

	return &StageSet{
		Planner:       newStage(domain.RolePlanner, planThread, PlannerPrompt, domain.CapReadOnly),
		Implementer:   newStage(domain.RoleImplementer, implThread, ImplementerPrompt, domain.CapReadWrite),
		Validator:     newStage(domain.RoleValidator, validThread, ValidatorPrompt, domain.CapValidation),
		Memory:        mem,
		lintThreshold: opts.LintThreshold,
	}
}

// NewAssistant builds the single-agent chat stage with read/write tools.
func NewAssistant(client llm.Client, reg *tool.Registry, mem *memory.Store, audit tool.AuditSink, opts Options) *Stage {
	opts = opts.withDefaults()
	return &Stage{
		Role:      domain.RoleAssistant,
		ThreadID:  AssistantThread,
		System:    AssistantPrompt,
		Client:    client,
		Broker:    tool.NewBroker(reg, domain.RoleAssistant, domain.CapReadWrite, audit),
		Memory:    mem,
		MaxTurns:  opts.MaxTurns,
		Timeout:   opts.StageTimeout,
		CompactAt: opts.CompactAt,
	}
}

// budgetExhausted reports whether the stage ended by running out of turns,
// in which case its last text is still worth coercing.
func budgetExhausted(err error) bool {
	return domain.ErrorCode(err) == domain.ErrTurnBudgetExceeded.Code
}

// Plan runs the planning stage and coerces its output.
func (s *StageSet) Plan(ctx context.Context, runID, input string) (*domain.Plan, llm.Usage, error) {
	res, err := s.Planner.Run(ctx, runID, input)
	usage := res.Usage
	if err != nil && !budgetExhausted(err) {
		return nil, usage, err
	}
	if plan, cerr := contract.CoercePlan(res.Text); cerr == nil {
		return plan, usage, nil
	}

	retry, err := s.Planner.Run(ctx, runID, correctivePlanNote)
	usage = addUsage(usage, retry.Usage)
	if err != nil && !budgetExhausted(err) {
		return nil, usage, err
	}
	if plan, cerr := contract.CoercePlan(retry.Text); cerr == nil {
		return plan, usage, nil
	}

	log.Printf("[%s] output not coercible after retry, using fallback plan", domain.RolePlanner)
	return contract.FallbackPlan(lastText(res, retry)), usage, nil
}

// Implement runs the implementation stage and coerces its report.
func (s *StageSet) Implement(ctx context.Context, runID, input string) (*domain.ImplementationReport, llm.Usage, error) {
	res, err := s.Implementer.Run(ctx, runID, input)
	usage := res.Usage
	if err != nil && !budgetExhausted(err) {
		return nil, usage, err
	}
	if report, cerr := contract.CoerceImplementationReport(res.Text, s.lintThreshold); cerr == nil {
		return report, usage, nil
	}

	retry, err := s.Implementer.Run(ctx, runID, correctiveImplNote)
	usage = addUsage(usage, retry.Usage)
	if err != nil && !budgetExhausted(err) {
		return nil, usage, err
	}
	if report, cerr := contract.CoerceImplementationReport(retry.Text, s.lintThreshold); cerr == nil {
		return report, usage, nil
	}

	log.Printf("[%s] output not coercible after retry, using fallback report", domain.RoleImplementer)
	return contract.FallbackImplementationReport(lastText(res, retry)), usage, nil
}

// Validate runs the validation stage and coerces its report.
func (s *StageSet) Validate(ctx context.Context, runID, input string) (*domain.ValidationReport, llm.Usage, error) {
	res, err := s.Validator.Run(ctx, runID, input)
	usage := res.Usage
	if err != nil && !budgetExhausted(err) {
		return nil, usage, err
	}
	if report, cerr := contract.CoerceValidationReport(res.Text); cerr == nil {
		return report, usage, nil
	}

	retry, err := s.Validator.Run(ctx, runID, correctiveValidationNote)
	usage = addUsage(usage, retry.Usage)
	if err != nil && !budgetExhausted(err) {
		return nil, usage, err
	}
	if report, cerr := contract.CoerceValidationReport(retry.Text); cerr == nil {
		return report, usage, nil
	}

	log.Printf("[%s] output not coercible after retry, using fallback report", domain.RoleValidator)
	return contract.FallbackValidationReport(lastText(res, retry)), usage, nil
}

func addUsage(a, b llm.Usage) llm.Usage {
	return llm.Usage{
		InputTokens:  a.InputTokens + b.InputTokens,
		OutputTokens: a.OutputTokens + b.OutputTokens,
	}
}

func lastText(first, second *StageResult) string {
	if second.Text != "" {
		return second.Text
	}
	return first.Text
}
