package orchestrator

import (
	"encoding/json"
	"strings"

	"github.com/anthropics/triad/internal/domain"
)

// Stage inputs are rendered once per transition, so each stage sees the
// upstream artifact inline rather than digging through shared history.

// PlanningInput renders the user request for the planning stage.
func PlanningInput(request string) string {
	return "Create a detailed execution plan for this request:\n\n" + request
}

// ImplementationInput renders the approved plan for the implementation stage.
func ImplementationInput(plan *domain.Plan) string {
	return "Execute this plan:\n\n" + marshalArtifact(plan)
}

// ValidationInput renders the implementation report for the first validation
// pass.
func ValidationInput(report *domain.ImplementationReport) string {
	return "Validate this implementation:\n\n" + marshalArtifact(report) +
		"\n\nUse git_diff and git_status to review changes, then validate code quality."
}

// FixInput renders the validator's findings as an instruction list for the
// implementation stage.
func FixInput(report *domain.ValidationReport) string {
	var lines []string
	for _, instr := range FixInstructions(report) {
		lines = append(lines, "- "+instr)
	}
	return "Fix these issues:\n\n" + strings.Join(lines, "\n") +
		"\n\nAfter fixing, provide an updated implementation report."
}

// RevalidationInput renders the updated implementation report for validation
// passes after a fix cycle.
func RevalidationInput(report *domain.ImplementationReport) string {
	return "Re-validate the updated implementation:\n\n" + marshalArtifact(report) +
		"\n\nCheck if the fixes resolved the issues."
}

// FixInstructions extracts actionable instructions from a validation report.
// Explicit fix instructions win; bare issue descriptions are the fallback;
// a generic instruction covers reports that carry neither.
func FixInstructions(report *domain.ValidationReport) []string {
	if report == nil {
		return []string{"Address the validation issues"}
	}

	var instructions []string
	for _, issue := range report.Issues {
		if issue.FixInstruction != "" {
			instructions = append(instructions, issue.FixInstruction)
		}
	}
	if len(instructions) > 0 {
		return instructions
	}

	for _, issue := range report.Issues {
		if issue.Description != "" {
			instructions = append(instructions, issue.Description)
		}
	}
	if len(instructions) > 0 {
		return instructions
	}

	return []string{"Address the validation issues"}
}

func marshalArtifact(v interface{}) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(b)
}
