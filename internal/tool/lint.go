package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/anthropics/triad/internal/llm"
)

// RegisterLintTools registers lint_file against the sandbox.
func RegisterLintTools(reg *Registry, sb *Sandbox, timeout time.Duration) {
	reg.Register(Tool{
		Def: llm.ToolDef{
			Name:        "lint_file",
			Description: "Run pylint on a Python file after a syntax check. Returns the score and categorized findings.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"file_path": map[string]interface{}{
						"type":        "string",
						"description": "Path to the Python file to lint.",
					},
				},
				"required": []string{"file_path"},
			},
		},
		Exec: func(ctx context.Context, args json.RawMessage) (string, error) {
			parsed, err := parseArgs(args)
			if err != nil {
				return "", err
			}
			filePath, ok := stringArg(parsed, "file_path")
			if !ok || filePath == "" {
				return "", fmt.Errorf("file_path is required")
			}
			return lintFile(ctx, sb, filePath, timeout), nil
		},
	})
}

func lintFile(ctx context.Context, sb *Sandbox, filePath string, timeout time.Duration) string {
	resolved, err := sb.CheckPath(filePath)
	if err != nil {
		return pathError(err, filePath)
	}
	if _, err := os.Stat(resolved); err != nil {
		return readError(err, filePath)
	}
	if !strings.HasSuffix(resolved, ".py") {
		return fmt.Sprintf("Error: File '%s' is not a Python file", filePath)
	}

	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// Syntax first; pylint noise is useless on a file that does not parse.
	syntax := exec.CommandContext(cctx, "python3", "-m", "py_compile", resolved)
	var syntaxErr bytes.Buffer
	syntax.Stderr = &syntaxErr
	if err := syntax.Run(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return "Error: Python is not installed or not in PATH"
		}
		return fmt.Sprintf("SYNTAX ERROR in '%s':\n\n%s\nFix this syntax error before running pylint.",
			filePath, strings.TrimSpace(syntaxErr.String()))
	}

	// pylint exits non-zero whenever it has findings; only a missing binary
	// is an execution failure.
	lint := exec.CommandContext(cctx, "pylint", resolved)
	lint.Dir = sb.Root()
	var out bytes.Buffer
	lint.Stdout = &out
	if err := lint.Run(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return "Error: pylint is not installed or not in PATH"
		}
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return fmt.Sprintf("Error running pylint: %v", err)
		}
	}
	return formatLintReport(filePath, resolved, out.String())
}

var ratingPattern = regexp.MustCompile(`rated at (-?\d+(?:\.\d+)?)/10`)

// parseLintScore extracts the numeric rating from pylint output.
func parseLintScore(output string) (float64, bool) {
	m := ratingPattern.FindStringSubmatch(output)
	if m == nil {
		return 0, false
	}
	var score float64
	if _, err := fmt.Sscanf(m[1], "%f", &score); err != nil {
		return 0, false
	}
	return score, true
}

// formatLintReport condenses raw pylint output into the rating plus
// categorized findings, capped per category.
func formatLintReport(filePath, resolved, output string) string {
	var scoreLine string
	var errorsFound, warnings, conventions, refactors []string

	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.Contains(line, "Your code has been rated at") {
			scoreLine = line
			continue
		}
		if !strings.HasPrefix(line, resolved) && !strings.HasPrefix(line, filePath) {
			continue
		}
		parts := strings.SplitN(line, ":", 4)
		if len(parts) < 4 {
			continue
		}
		lineNum := strings.TrimSpace(parts[1])
		msg := strings.TrimSpace(parts[3])
		entry := fmt.Sprintf("Line %s: %s", lineNum, msg)
		switch {
		case strings.HasPrefix(msg, "E"):
			errorsFound = append(errorsFound, entry)
		case strings.HasPrefix(msg, "W"):
			warnings = append(warnings, entry)
		case strings.HasPrefix(msg, "C"):
			conventions = append(conventions, entry)
		case strings.HasPrefix(msg, "R"):
			refactors = append(refactors, entry)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Pylint Results for '%s':\n", filePath)
	if scoreLine != "" {
		b.WriteString(scoreLine + "\n")
	}
	b.WriteString("\n")

	appendCategory(&b, "Errors", errorsFound, 10)
	appendCategory(&b, "Warnings", warnings, 10)
	appendCategory(&b, "Convention Issues", conventions, 5)

	if len(errorsFound)+len(warnings)+len(conventions)+len(refactors) == 0 {
		b.WriteString("No issues found!\n")
	}
	fmt.Fprintf(&b, "\nSummary: %d errors, %d warnings, %d conventions",
		len(errorsFound), len(warnings), len(conventions))
	return b.String()
}

func appendCategory(b *strings.Builder, label string, entries []string, limit int) {
	if len(entries) == 0 {
		return
	}
	fmt.Fprintf(b, "%s (%d):\n", label, len(entries))
	for i, e := range entries {
		if i == limit {
			fmt.Fprintf(b, "  ... and %d more\n", len(entries)-limit)
			break
		}
		fmt.Fprintf(b, "  %s\n", e)
	}
	b.WriteString("\n")
}
