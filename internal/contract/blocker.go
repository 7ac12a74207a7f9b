package contract

import (
	"fmt"

	"github.com/anthropics/triad/internal/domain"
)

// IsBlocking reports whether an issue of the given severity withholds
// approval. Minor and informational findings never block.
func IsBlocking(severity domain.Severity) bool {
	return severity == domain.SeverityCritical || severity == domain.SeverityMajor
}

// BlockerChecker inspects a validation report for findings that must keep a
// run in the fix loop.
type BlockerChecker struct{}

// NewBlockerChecker creates a blocker checker.
func NewBlockerChecker() *BlockerChecker {
	return &BlockerChecker{}
}

// Check returns whether the report carries blocking findings and the reasons.
func (c *BlockerChecker) Check(report *domain.ValidationReport) (bool, []string) {
	var reasons []string
	if report == nil {
		return true, []string{"no validation report produced"}
	}
	for _, issue := range report.Issues {
		if IsBlocking(issue.Severity) {
			reasons = append(reasons, fmt.Sprintf("%s issue: %s", issue.Severity, issue.Description))
		}
	}
	return len(reasons) > 0, reasons
}
