// Package tool is the invocation boundary between agent stages and the
// workspace. Tools execute against a sandbox rooted at the working directory;
// the broker enforces per-stage capability sets and audits denials.
package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/anthropics/triad/internal/domain"
	"github.com/anthropics/triad/internal/llm"
)

// Executor runs a tool invocation. Expected failures (missing files, blocked
// commands) are reported in the returned string so the model can react;
// a non-nil error means the arguments themselves were unusable.
type Executor func(ctx context.Context, args json.RawMessage) (string, error)

// Tool pairs a definition handed to the model with its executor.
type Tool struct {
	Def  llm.ToolDef
	Exec Executor
}

// Registry holds the registered tools.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Tool
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Tool)}
}

// Register adds or replaces a tool.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Def.Name] = &t
}

// Get returns a tool by name, or nil.
func (r *Registry) Get(name string) *Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// Names returns all registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions returns the named tool definitions in the given order,
// skipping names that are not registered.
func (r *Registry) Definitions(names []string) []llm.ToolDef {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]llm.ToolDef, 0, len(names))
	for _, name := range names {
		if t, ok := r.tools[name]; ok {
			defs = append(defs, t.Def)
		}
	}
	return defs
}

// DefaultRegistry builds a registry with every pipeline tool installed.
func DefaultRegistry(sb *Sandbox, commandTimeout time.Duration) *Registry {
	reg := NewRegistry()
	RegisterFileTools(reg, sb)
	RegisterExecTools(reg, sb, commandTimeout)
	RegisterSearchTools(reg, sb)
	RegisterLintTools(reg, sb, commandTimeout)
	RegisterGitTools(reg, sb, commandTimeout)
	return reg
}

func parseArgs(raw json.RawMessage) (map[string]interface{}, error) {
	if len(raw) == 0 {
		return map[string]interface{}{}, nil
	}
	var args map[string]interface{}
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("invalid tool arguments: %w", err)
	}
	return args, nil
}

func stringArg(args map[string]interface{}, key string) (string, bool) {
	v, ok := args[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func intArg(args map[string]interface{}, key string) (int, bool) {
	v, ok := args[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	default:
		return 0, false
	}
}

func boolArg(args map[string]interface{}, key string) (bool, bool) {
	v, ok := args[key]
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// truncateOutput caps tool output, noting what was cut.
func truncateOutput(s string, max int, what string) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + fmt.Sprintf("\n\n... (%s truncated, showing first %d characters)", what, max)
}

// pathError renders a sandbox or filesystem failure as a model-facing
// observation.
func pathError(err error, path string) string {
	switch domain.ErrorCode(err) {
	case domain.ErrOutOfSandbox.Code:
		return fmt.Sprintf("Error: Path '%s' is outside the working directory", path)
	case domain.ErrPermissionDenied.Code:
		return fmt.Sprintf("Error: Permission denied for '%s'", path)
	case domain.ErrFileNotFound.Code:
		return fmt.Sprintf("Error: File '%s' not found", path)
	default:
		return fmt.Sprintf("Error: %v", err)
	}
}
