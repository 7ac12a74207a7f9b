package contract

import (
	"fmt"
	"strings"

	"github.com/anthropics/triad/internal/domain"
)

// ReportValidator checks coerced artifacts against their contract
// invariants. Coercion should leave nothing for it to find; a violation here
// means the normalization rules have a gap.
type ReportValidator struct {
	LintThreshold float64
}

// NewReportValidator creates a validator enforcing the given lint threshold.
func NewReportValidator(lintThreshold float64) *ReportValidator {
	return &ReportValidator{LintThreshold: lintThreshold}
}

var validImplStatuses = map[domain.ImplStatus]bool{
	domain.ImplSuccess: true,
	domain.ImplPartial: true,
	domain.ImplFailed:  true,
}

var validValidationStatuses = map[domain.ValidationStatus]bool{
	domain.ValidationApproved:   true,
	domain.ValidationNeedsFixes: true,
}

var validSeverities = map[domain.Severity]bool{
	domain.SeverityCritical: true,
	domain.SeverityMajor:    true,
	domain.SeverityMinor:    true,
	domain.SeverityInfo:     true,
}

var validQualities = map[domain.Quality]bool{
	domain.QualityExcellent:        true,
	domain.QualityGood:             true,
	domain.QualityNeedsImprovement: true,
}

// ValidatePlan checks the plan invariants.
func (v *ReportValidator) ValidatePlan(plan *domain.Plan) error {
	var violations []string
	if plan == nil {
		return domain.NewAgentError(domain.ErrSchemaViolation.Code, "plan is nil")
	}

	known := make(map[string]bool)
	for _, f := range plan.FilesToCreate {
		if f.Path == "" {
			violations = append(violations, "files_to_create entry has empty path")
		}
		known[f.Path] = true
	}
	for _, f := range plan.FilesToModify {
		if f.Path == "" {
			violations = append(violations, "files_to_modify entry has empty path")
		}
		known[f.Path] = true
	}

	last := 0
	for i, step := range plan.Steps {
		if step.Sequence <= last {
			violations = append(violations, fmt.Sprintf("step %d sequence %d is not increasing", i, step.Sequence))
		}
		last = step.Sequence
		if step.Action != domain.ActionCreate && step.Action != domain.ActionModify {
			violations = append(violations, fmt.Sprintf("step %d has unrecognized action %q", i, step.Action))
		}
		if step.File != "" && !known[step.File] {
			violations = append(violations, fmt.Sprintf("step %d file %q is in no intent list", i, step.File))
		}
	}

	if len(violations) > 0 {
		return domain.NewAgentError(domain.ErrSchemaViolation.Code, "plan: "+strings.Join(violations, "; "))
	}
	return nil
}

// ValidateImplementationReport checks the report invariants, including the
// success status against the lint threshold.
func (v *ReportValidator) ValidateImplementationReport(report *domain.ImplementationReport) error {
	var violations []string
	if report == nil {
		return domain.NewAgentError(domain.ErrSchemaViolation.Code, "implementation report is nil")
	}

	if !validImplStatuses[report.Status] {
		violations = append(violations, fmt.Sprintf("status %q is not recognized", report.Status))
	}
	for path, lr := range report.LintResults {
		if lr.Score < 0 || lr.Score > 10 {
			violations = append(violations, fmt.Sprintf("lint score %.1f for %s is out of range", lr.Score, path))
		}
		if report.Status == domain.ImplSuccess {
			if lr.Score < v.LintThreshold {
				violations = append(violations, fmt.Sprintf("status success but %s scored %.1f, below %.1f", path, lr.Score, v.LintThreshold))
			}
			if !lr.SyntaxValid {
				violations = append(violations, fmt.Sprintf("status success but %s failed syntax checking", path))
			}
		}
	}

	if len(violations) > 0 {
		return domain.NewAgentError(domain.ErrSchemaViolation.Code, "implementation report: "+strings.Join(violations, "; "))
	}
	return nil
}

// ValidateValidationReport checks the approval invariant chain.
func (v *ReportValidator) ValidateValidationReport(report *domain.ValidationReport) error {
	var violations []string
	if report == nil {
		return domain.NewAgentError(domain.ErrSchemaViolation.Code, "validation report is nil")
	}

	if !validValidationStatuses[report.Status] {
		violations = append(violations, fmt.Sprintf("status %q is not recognized", report.Status))
	}
	if report.Approval != (report.Status == domain.ValidationApproved) {
		violations = append(violations, fmt.Sprintf("approval %t contradicts status %q", report.Approval, report.Status))
	}
	if report.QualityScore < 0 || report.QualityScore > 10 {
		violations = append(violations, fmt.Sprintf("quality score %.1f is out of range", report.QualityScore))
	}
	if !validQualities[report.OverallQuality] {
		violations = append(violations, fmt.Sprintf("overall quality %q is not recognized", report.OverallQuality))
	}
	for i, issue := range report.Issues {
		if !validSeverities[issue.Severity] {
			violations = append(violations, fmt.Sprintf("issue %d has unrecognized severity %q", i, issue.Severity))
		}
		if report.Approval && IsBlocking(issue.Severity) {
			violations = append(violations, fmt.Sprintf("approved report carries blocking issue %d: %s", i, issue.Description))
		}
	}

	if len(violations) > 0 {
		return domain.NewAgentError(domain.ErrSchemaViolation.Code, "validation report: "+strings.Join(violations, "; "))
	}
	return nil
}
