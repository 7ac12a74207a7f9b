package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/anthropics/triad/internal/domain"
	"github.com/anthropics/triad/internal/llm"
)

// RegisterFileTools registers read_file and write_file against the sandbox.
func RegisterFileTools(reg *Registry, sb *Sandbox) {
	registerReadFile(reg, sb)
	registerWriteFile(reg, sb)
}

func registerReadFile(reg *Registry, sb *Sandbox) {
	reg.Register(Tool{
		Def: llm.ToolDef{
			Name:        "read_file",
			Description: "Read a file and return its content with line numbers. Paths are relative to the working directory.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"file_path": map[string]interface{}{
						"type":        "string",
						"description": "Path to the file to read.",
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
			resolved, err := sb.CheckPath(filePath)
			if err != nil {
				return pathError(err, filePath), nil
			}
			data, err := os.ReadFile(resolved)
			if err != nil {
				return readError(err, filePath), nil
			}
			var b strings.Builder
			for i, line := range splitKeepEnds(string(data)) {
				fmt.Fprintf(&b, "%d: %s", i+1, line)
			}
			return b.String(), nil
		},
	})
}

func registerWriteFile(reg *Registry, sb *Sandbox) {
	reg.Register(Tool{
		Def: llm.ToolDef{
			Name:        "write_file",
			Description: "Write content to a file at a line range. Defaults replace the whole file; parent directories are created as needed.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"file_path": map[string]interface{}{
						"type":        "string",
						"description": "Path to the file to write.",
					},
					"content": map[string]interface{}{
						"type":        "string",
						"description": "New content for the line range.",
					},
					"start_line": map[string]interface{}{
						"type":        "integer",
						"description": "1-indexed first line to replace. Default: 1.",
					},
					"end_line": map[string]interface{}{
						"type":        "integer",
						"description": "1-indexed last line to replace, -1 for end of file. Default: -1.",
					},
				},
				"required": []string{"file_path", "content"},
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
			content, ok := stringArg(parsed, "content")
			if !ok {
				return "", fmt.Errorf("content is required")
			}
			startLine, ok := intArg(parsed, "start_line")
			if !ok {
				startLine = 1
			}
			endLine, ok := intArg(parsed, "end_line")
			if !ok {
				endLine = -1
			}
			if startLine < 1 {
				return fmt.Sprintf("Error: start_line %d is invalid, line numbers start at 1", startLine), nil
			}

			resolved, err := sb.CheckPath(filePath)
			if err != nil {
				return pathError(err, filePath), nil
			}
			if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
				return readError(err, filePath), nil
			}

			var lines []string
			if data, err := os.ReadFile(resolved); err == nil {
				lines = splitKeepEnds(string(data))
			} else if !errors.Is(err, fs.ErrNotExist) {
				return readError(err, filePath), nil
			}

			startIdx := startLine - 1
			if startIdx > len(lines) {
				startIdx = len(lines)
			}
			endIdx := len(lines)
			if endLine != -1 {
				endIdx = endLine
			}
			if endIdx > len(lines) {
				endIdx = len(lines)
			}
			if endIdx < startIdx {
				endIdx = startIdx
			}

			newLines := splitKeepEnds(content)
			if n := len(newLines); n > 0 && !strings.HasSuffix(newLines[n-1], "\n") {
				newLines[n-1] += "\n"
			}

			out := make([]string, 0, len(lines)-(endIdx-startIdx)+len(newLines))
			out = append(out, lines[:startIdx]...)
			out = append(out, newLines...)
			out = append(out, lines[endIdx:]...)

			if err := os.WriteFile(resolved, []byte(strings.Join(out, "")), 0o644); err != nil {
				return readError(err, filePath), nil
			}
			return fmt.Sprintf("Successfully wrote to '%s' (lines %d-%d)", filePath, startLine, endIdx), nil
		},
	})
}

// splitKeepEnds splits s into lines preserving their terminators, with no
// trailing empty entry.
func splitKeepEnds(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.SplitAfter(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// readError renders a filesystem error as a model-facing observation.
func readError(err error, path string) string {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return pathError(domain.ErrFileNotFound, path)
	case errors.Is(err, fs.ErrPermission):
		return pathError(domain.ErrPermissionDenied, path)
	default:
		return fmt.Sprintf("Error: %v", err)
	}
}
