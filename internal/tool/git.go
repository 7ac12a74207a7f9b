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

const maxDiffOutput = 10000

// RegisterGitTools registers git_diff and git_status against the sandbox.
func RegisterGitTools(reg *Registry, sb *Sandbox, timeout time.Duration) {
	reg.Register(Tool{
		Def: llm.ToolDef{
			Name:        "git_diff",
			Description: "Show uncommitted changes in the working directory, optionally for a single file.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"file_path": map[string]interface{}{
						"type":        "string",
						"description": "Optional file to diff; empty diffs everything.",
					},
				},
			},
		},
		Exec: func(ctx context.Context, args json.RawMessage) (string, error) {
			parsed, err := parseArgs(args)
			if err != nil {
				return "", err
			}
			filePath, _ := stringArg(parsed, "file_path")
			return gitDiff(ctx, sb.Root(), filePath, timeout), nil
		},
	})

	reg.Register(Tool{
		Def: llm.ToolDef{
			Name:        "git_status",
			Description: "Show which files are modified, added, deleted or untracked in the working directory.",
			Parameters: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
		Exec: func(ctx context.Context, args json.RawMessage) (string, error) {
			return gitStatus(ctx, sb.Root(), timeout), nil
		},
	})
}

func runGit(ctx context.Context, dir string, timeout time.Duration, args ...string) (string, string, error) {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, "git", args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	if cctx.Err() == context.DeadlineExceeded {
		return "", "", fmt.Errorf("git %s timed out after %d seconds", args[0], int(timeout.Seconds()))
	}
	return stdout.String(), stderr.String(), err
}

func gitDiff(ctx context.Context, dir, filePath string, timeout time.Duration) string {
	args := []string{"diff"}
	if filePath != "" {
		args = append(args, filePath)
	}
	stdout, stderr, err := runGit(ctx, dir, timeout, args...)
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return "Error: Git is not installed or not in PATH"
		}
		if strings.Contains(strings.ToLower(stderr), "not a git repository") {
			return "Error: Not a git repository. Initialize git with 'git init' first."
		}
		return fmt.Sprintf("Error running git diff: %s", strings.TrimSpace(stderr))
	}
	if strings.TrimSpace(stdout) == "" {
		return "No changes detected (working directory is clean)"
	}
	return truncateOutput(stdout, maxDiffOutput, "diff")
}

func gitStatus(ctx context.Context, dir string, timeout time.Duration) string {
	stdout, stderr, err := runGit(ctx, dir, timeout, "status", "--short")
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return "Error: Git is not installed or not in PATH"
		}
		if strings.Contains(strings.ToLower(stderr), "not a git repository") {
			return "Error: Not a git repository. Initialize git with 'git init' first."
		}
		return fmt.Sprintf("Error running git status: %s", strings.TrimSpace(stderr))
	}
	if strings.TrimSpace(stdout) == "" {
		return "Working directory is clean (no changes)"
	}

	var modified, added, deleted, untracked []string
	for _, line := range strings.Split(strings.TrimSpace(stdout), "\n") {
		if len(line) < 3 {
			continue
		}
		status := line[:2]
		name := strings.TrimSpace(line[3:])
		switch {
		case strings.Contains(status, "??"):
			untracked = append(untracked, name)
		case strings.Contains(status, "M"):
			modified = append(modified, name)
		case strings.Contains(status, "A"):
			added = append(added, name)
		case strings.Contains(status, "D"):
			deleted = append(deleted, name)
		}
	}

	var b strings.Builder
	b.WriteString("Git Status:")
	appendStatusBucket(&b, "Modified", "M", modified)
	appendStatusBucket(&b, "Added", "A", added)
	appendStatusBucket(&b, "Deleted", "D", deleted)
	appendStatusBucket(&b, "Untracked", "??", untracked)
	return b.String()
}

func appendStatusBucket(b *strings.Builder, label, marker string, files []string) {
	if len(files) == 0 {
		return
	}
	fmt.Fprintf(b, "\n\n%s (%d):", label, len(files))
	for _, f := range files {
		fmt.Fprintf(b, "\n  %s %s", marker, f)
	}
}
