// Package domain defines the core types for the triad agent pipeline.
package domain

// StageRole identifies one agent role in the pipeline.
type StageRole string

const (
	RolePlanner     StageRole = "planner"
	RoleImplementer StageRole = "implementer"
	RoleValidator   StageRole = "validator"
	RoleAssistant   StageRole = "assistant"
)

// Capability names the tool capability set granted to a stage.
type Capability string

const (
	CapReadOnly   Capability = "read_only"
	CapReadWrite  Capability = "read_write"
	CapValidation Capability = "validation"
)

// RunState represents the orchestrator state machine states.
type RunState string

const (
	StatePlanning     RunState = "planning"
	StateImplementing RunState = "implementing"
	StateValidating   RunState = "validating"
	StateFixing       RunState = "fixing"
	StateApproved     RunState = "approved"
	StateNeedsReview  RunState = "needs_review"
)

// ResultStatus is the terminal status of a pipeline run.
type ResultStatus string

const (
	ResultApproved    ResultStatus = "approved"
	ResultNeedsReview ResultStatus = "needs_review"
)

// PlanAction is the kind of file operation a plan step performs.
type PlanAction string

const (
	ActionCreate PlanAction = "create"
	ActionModify PlanAction = "modify"
)

// FileIntent declares a file the plan intends to create or modify.
type FileIntent struct {
	Path    string `json:"path"`
	Purpose string `json:"purpose"`
}

// PlanStep is one ordered unit of work in a Plan.
type PlanStep struct {
	Sequence    int        `json:"sequence"`
	Action      PlanAction `json:"action"`
	File        string     `json:"file"`
	Description string     `json:"description"`
}

// Plan is the structured output of the planning stage.
type Plan struct {
	Analysis       string       `json:"analysis"`
	Context        string       `json:"context,omitempty"`
	FilesToCreate  []FileIntent `json:"files_to_create"`
	FilesToModify  []FileIntent `json:"files_to_modify"`
	Steps          []PlanStep   `json:"steps"`
	Considerations []string     `json:"considerations"`
}

// ImplStatus is the outcome reported by the implementation stage.
type ImplStatus string

const (
	ImplSuccess ImplStatus = "success"
	ImplPartial ImplStatus = "partial"
	ImplFailed  ImplStatus = "failed"
)

// LintResult is the lint outcome for a single file.
type LintResult struct {
	Score       float64  `json:"score"`
	SyntaxValid bool     `json:"syntax_valid"`
	Issues      []string `json:"issues"`
}

// ImplementationReport is the structured output of the implementation stage.
type ImplementationReport struct {
	Status            ImplStatus            `json:"status"`
	FilesCreated      []string              `json:"files_created"`
	FilesModified     []string              `json:"files_modified"`
	LintResults       map[string]LintResult `json:"linting_results"`
	Summary           string                `json:"summary"`
	IssuesEncountered []string              `json:"issues_encountered"`
}

// ValidationStatus is the verdict of the validation stage.
type ValidationStatus string

const (
	ValidationApproved   ValidationStatus = "approved"
	ValidationNeedsFixes ValidationStatus = "needs_fixes"
)

// Severity classifies a validation issue. Critical and major block approval.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityMajor    Severity = "major"
	SeverityMinor    Severity = "minor"
	SeverityInfo     Severity = "info"
)

// Quality is the banded overall quality of a reviewed change.
type Quality string

const (
	QualityExcellent        Quality = "excellent"
	QualityGood             Quality = "good"
	QualityNeedsImprovement Quality = "needs_improvement"
)

// ValidationIssue is one problem found by the validator.
type ValidationIssue struct {
	Description    string   `json:"description"`
	FixInstruction string   `json:"fix_instruction,omitempty"`
	Severity       Severity `json:"severity,omitempty"`
}

// FileQuality is the validator's per-file assessment.
type FileQuality struct {
	Score       float64  `json:"score"`
	SyntaxValid bool     `json:"syntax_valid"`
	Issues      []string `json:"issues"`
}

// ValidationReport is the structured output of the validation stage.
type ValidationReport struct {
	Status            ValidationStatus       `json:"status"`
	ChangesSummary    string                 `json:"changes_summary"`
	FilesReviewed     []string               `json:"files_reviewed"`
	QualityAssessment map[string]FileQuality `json:"quality_assessment"`
	QualityScore      float64                `json:"quality_score"`
	OverallQuality    Quality                `json:"overall_quality"`
	Issues            []ValidationIssue      `json:"issues"`
	Approval          bool                   `json:"approval"`
}

// Result aggregates everything a pipeline run produced. Artifact pointers are
// nil when the run ended before the owning stage emitted output.
type Result struct {
	RunID          string                `json:"run_id"`
	Request        string                `json:"request"`
	Plan           *Plan                 `json:"plan,omitempty"`
	Implementation *ImplementationReport `json:"implementation,omitempty"`
	Validation     *ValidationReport     `json:"validation,omitempty"`
	Status         ResultStatus          `json:"status"`
	Iterations     int                   `json:"iterations"`
}

// RunRecord is a pipeline run row in the run log.
type RunRecord struct {
	RunID        string
	Request      string
	Status       RunState
	Iterations   int
	StateVersion int64
	LastEventSeq int64
	CreatedAt    int64
	UpdatedAt    int64
}

// RunEvent is an entry in the append-only run event log.
type RunEvent struct {
	ID        int64
	RunID     string
	SeqNo     int64
	Kind      string
	Stage     StageRole
	FromState RunState
	ToState   RunState
	Detail    string
	CreatedAt int64
}

// Artifact is a JSON snapshot of a stage output stored in the run log.
type Artifact struct {
	ID        int64
	RunID     string
	Stage     StageRole
	Kind      string
	Iteration int
	Body      string
	CreatedAt int64
}

// AuditRecord logs a tool boundary decision, currently capability denials.
type AuditRecord struct {
	ID        int64
	RunID     string
	Stage     StageRole
	Tool      string
	Decision  string
	Reason    string
	CreatedAt int64
}

// UsageRecord is a per-stage token usage delta.
type UsageRecord struct {
	ID           int64
	RunID        string
	Stage        StageRole
	Iteration    int
	InputTokens  int64
	OutputTokens int64
	CreatedAt    int64
}

// ScoreRecord is a per-file quality score observed during a run.
type ScoreRecord struct {
	ID          int64
	RunID       string
	Stage       StageRole
	Iteration   int
	Path        string
	Score       float64
	SyntaxValid bool
	Source      string
	CreatedAt   int64
}
