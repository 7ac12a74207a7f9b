package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/anthropics/triad/internal/llm"
)

// blockedPatterns are command substrings that are never executed. The list
// targets deletion, privilege escalation, redirection and permission changes;
// writes go through write_file where the sandbox can see them.
var blockedPatterns = []string{
	"rm ", "rm\t", "rm\n",
	"sudo", "su ",
	"> ", ">>",
	"mkfs", "dd ",
	"chmod", "chown",
	"&& rm", "| rm",
}

const maxCommandOutput = 5000

// RegisterExecTools registers run_command with the given per-command timeout.
func RegisterExecTools(reg *Registry, sb *Sandbox, timeout time.Duration) {
	reg.Register(Tool{
		Def: llm.ToolDef{
			Name:        "run_command",
			Description: "Run a shell command in the working directory for read-only exploration: listing files, searching, file info, git log.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"command": map[string]interface{}{
						"type":        "string",
						"description": "The shell command to execute.",
					},
				},
				"required": []string{"command"},
			},
		},
		Exec: func(ctx context.Context, args json.RawMessage) (string, error) {
			parsed, err := parseArgs(args)
			if err != nil {
				return "", err
			}
			command, ok := stringArg(parsed, "command")
			if !ok || command == "" {
				return "", fmt.Errorf("command is required")
			}
			if pattern, blocked := blockedPattern(command); blocked {
				return fmt.Sprintf("Error: Command blocked for safety reasons. Pattern '%s' is not allowed.", pattern), nil
			}
			return runCommand(ctx, sb.Root(), command, timeout), nil
		},
	})
}

// blockedPattern reports the first blocked pattern the command contains.
func blockedPattern(command string) (string, bool) {
	lower := strings.ToLower(command)
	for _, pattern := range blockedPatterns {
		if strings.Contains(lower, pattern) {
			return pattern, true
		}
	}
	return "", false
}

func runCommand(ctx context.Context, dir, command string, timeout time.Duration) string {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, "sh", "-c", command)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if cctx.Err() == context.DeadlineExceeded {
		return fmt.Sprintf("Error: Command timed out after %d seconds", int(timeout.Seconds()))
	}

	output := stdout.String()
	if stderr.Len() > 0 {
		output += "\n[stderr]:\n" + stderr.String()
	}
	output = truncateOutput(output, maxCommandOutput, "output")

	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			output += fmt.Sprintf("\n\n[Exit code: %d]", exitErr.ExitCode())
		} else {
			return fmt.Sprintf("Error executing command: %v", runErr)
		}
	}

	if strings.TrimSpace(output) == "" {
		return "[No output]"
	}
	return output
}
