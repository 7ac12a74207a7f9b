package domain

import (
	"errors"
	"fmt"
)

// AgentError is the unified error type for the pipeline.
// Each error has a numeric code and human-readable message.
type AgentError struct {
	Code    int
	Message string
}

// Error implements the error interface.
func (e *AgentError) Error() string {
	return fmt.Sprintf("agent error %d: %s", e.Code, e.Message)
}

// NewAgentError creates a new AgentError.
func NewAgentError(code int, msg string) *AgentError {
	return &AgentError{Code: code, Message: msg}
}

// WrapAgentError creates an AgentError that includes a cause.
func WrapAgentError(code int, msg string, cause error) *AgentError {
	return &AgentError{Code: code, Message: fmt.Sprintf("%s: %v", msg, cause)}
}

// ErrorCode returns the AgentError code carried by err, or 0 when err is not
// an AgentError.
func ErrorCode(err error) int {
	var ae *AgentError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return 0
}

// ---- Config / setup errors (-32000 to -32009) ----

var (
	ErrConfigInvalid      = &AgentError{Code: -32000, Message: "invalid configuration"}
	ErrMissingCredentials = &AgentError{Code: -32001, Message: "missing API credentials"}
	ErrRootDirInvalid     = &AgentError{Code: -32002, Message: "root directory is not usable"}
)

// ---- Orchestrator / run errors (-32010 to -32019) ----

var (
	ErrInvalidTransition = &AgentError{Code: -32010, Message: "invalid pipeline state transition"}
	ErrRunNotFound       = &AgentError{Code: -32011, Message: "run not found"}
	ErrRunFinished       = &AgentError{Code: -32012, Message: "run already reached a terminal state"}
	ErrRunCanceled       = &AgentError{Code: -32013, Message: "run canceled"}
	ErrOptimisticLock    = &AgentError{Code: -32014, Message: "optimistic lock conflict: run state was modified concurrently"}
	ErrDuplicateRun      = &AgentError{Code: -32015, Message: "run already exists"}
)

// ---- Stage errors (-32020 to -32029) ----

var (
	ErrStageTimeout       = &AgentError{Code: -32020, Message: "stage exceeded its deadline"}
	ErrModelFailure       = &AgentError{Code: -32021, Message: "model invocation failed"}
	ErrRateLimited        = &AgentError{Code: -32022, Message: "model provider rate limited the request"}
	ErrTurnBudgetExceeded = &AgentError{Code: -32023, Message: "reasoning loop exceeded its turn budget"}
	ErrMalformedOutput    = &AgentError{Code: -32024, Message: "stage output could not be coerced"}
)

// ---- Contract errors (-32030 to -32039) ----

var (
	ErrSchemaViolation = &AgentError{Code: -32030, Message: "stage output violates its contract schema"}
)

// ---- Tool boundary errors (-32040 to -32049) ----

var (
	ErrCapabilityViolation = &AgentError{Code: -32040, Message: "tool is outside the stage capability set"}
	ErrUnknownTool         = &AgentError{Code: -32041, Message: "tool is not registered"}
)

// ---- Tool errors (-32050 to -32059) ----

var (
	ErrOutOfSandbox     = &AgentError{Code: -32050, Message: "path resolves outside the sandbox root"}
	ErrFileNotFound     = &AgentError{Code: -32051, Message: "file not found"}
	ErrPermissionDenied = &AgentError{Code: -32052, Message: "permission denied"}
	ErrInvalidRange     = &AgentError{Code: -32053, Message: "invalid line range"}
	ErrNotPython        = &AgentError{Code: -32054, Message: "not a Python file"}
	ErrLintParse        = &AgentError{Code: -32055, Message: "linter output could not be parsed"}
	ErrNotARepo         = &AgentError{Code: -32056, Message: "not a git repository"}
	ErrCommandBlocked   = &AgentError{Code: -32057, Message: "command blocked for safety"}
)

// ---- Store errors (-32060 to -32069) ----

var (
	ErrStoreInit       = &AgentError{Code: -32060, Message: "failed to initialize store"}
	ErrStoreQuery      = &AgentError{Code: -32061, Message: "store query failed"}
	ErrStoreWrite      = &AgentError{Code: -32062, Message: "store write failed"}
	ErrSchemaMigration = &AgentError{Code: -32063, Message: "schema migration failed"}
)
