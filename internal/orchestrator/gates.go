package orchestrator

import (
	"fmt"

	"github.com/anthropics/triad/internal/contract"
	"github.com/anthropics/triad/internal/domain"
)

// Decision is the outcome of evaluating a gate.
type Decision struct {
	Allow    bool
	Blockers []string
}

// ApprovalGate decides whether a validation verdict lets the run exit the
// validating state as approved. The approval flag carries the decision;
// blocking issues are collected so a refusal can explain itself.
type ApprovalGate struct {
	Checker contract.BlockerChecker
}

// Evaluate checks the validator's verdict against the blocker rules.
func (g *ApprovalGate) Evaluate(report *domain.ValidationReport) Decision {
	decision := Decision{Allow: true}

	if report == nil {
		decision.Allow = false
		decision.Blockers = append(decision.Blockers, "no validation report was produced")
		return decision
	}

	if !report.Approval {
		decision.Allow = false
	}
	if blocking, reasons := g.Checker.Check(report); blocking {
		decision.Allow = false
		decision.Blockers = append(decision.Blockers, reasons...)
	}
	if !decision.Allow && len(decision.Blockers) == 0 {
		decision.Blockers = append(decision.Blockers, fmt.Sprintf("validator verdict is %s", report.Status))
	}

	return decision
}
