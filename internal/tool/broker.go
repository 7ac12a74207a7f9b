package tool

import (
	"context"
	"fmt"

	"github.com/anthropics/triad/internal/domain"
	"github.com/anthropics/triad/internal/llm"
)

// capabilityGrants maps each capability set to the tools it admits.
var capabilityGrants = map[domain.Capability][]string{
	domain.CapReadOnly:   {"read_file", "grep_search", "run_command"},
	domain.CapReadWrite:  {"read_file", "write_file", "lint_file", "run_command"},
	domain.CapValidation: {"read_file", "lint_file", "git_diff", "git_status"},
}

// GrantFor returns the tool names admitted by a capability set.
func GrantFor(c domain.Capability) []string {
	grant := capabilityGrants[c]
	out := make([]string, len(grant))
	copy(out, grant)
	return out
}

// AuditSink records tool boundary denials. Implementations must never fail
// the caller.
type AuditSink interface {
	RecordDenial(ctx context.Context, runID string, stage domain.StageRole, tool, reason string)
}

// Broker fronts the registry for one stage. Every invocation is checked
// against the stage's capability set before any executor runs; a call outside
// the set produces no side effects and is stage-fatal.
type Broker struct {
	registry   *Registry
	stage      domain.StageRole
	capability domain.Capability
	allowed    map[string]bool
	audit      AuditSink
}

// NewBroker creates a broker granting stage the given capability set.
func NewBroker(reg *Registry, stage domain.StageRole, capability domain.Capability, audit AuditSink) *Broker {
	allowed := make(map[string]bool)
	for _, name := range capabilityGrants[capability] {
		allowed[name] = true
	}
	return &Broker{
		registry:   reg,
		stage:      stage,
		capability: capability,
		allowed:    allowed,
		audit:      audit,
	}
}

// Stage returns the role this broker serves.
func (b *Broker) Stage() domain.StageRole {
	return b.stage
}

// Definitions returns the tool definitions visible to this stage.
func (b *Broker) Definitions() []llm.ToolDef {
	return b.registry.Definitions(capabilityGrants[b.capability])
}

// Dispatch executes one tool call. Expected tool failures come back in the
// observation string with a nil error so the caller can feed them to the
// model. A non-nil error means the call itself crossed the boundary
// (capability violation or unregistered tool) or the context ended, and the
// stage must stop.
func (b *Broker) Dispatch(ctx context.Context, runID string, call llm.ToolCall) (string, error) {
	if !b.allowed[call.Name] {
		reason := fmt.Sprintf("tool %q is outside the %s capability set", call.Name, b.capability)
		if b.audit != nil {
			b.audit.RecordDenial(ctx, runID, b.stage, call.Name, reason)
		}
		return "", domain.NewAgentError(domain.ErrCapabilityViolation.Code, reason)
	}
	t := b.registry.Get(call.Name)
	if t == nil {
		return "", domain.NewAgentError(domain.ErrUnknownTool.Code,
			fmt.Sprintf("tool %q is granted but not registered", call.Name))
	}
	out, err := t.Exec(ctx, call.Arguments)
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	if err != nil {
		return "Error: " + err.Error(), nil
	}
	return out, nil
}
