package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/anthropics/triad/internal/llm"
)

const (
	maxSearchOutput   = 8000
	perFileMatchLimit = 10
)

// RegisterSearchTools registers grep_search against the sandbox.
func RegisterSearchTools(reg *Registry, sb *Sandbox) {
	reg.Register(Tool{
		Def: llm.ToolDef{
			Name:        "grep_search",
			Description: "Search for a text or regex pattern across files in the working directory. Useful for finding definitions, usages and imports.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"pattern": map[string]interface{}{
						"type":        "string",
						"description": "Text or regex pattern to search for.",
					},
					"file_pattern": map[string]interface{}{
						"type":        "string",
						"description": "File glob to search in, e.g. \"*.py\" or \"**/*.py\". Default: \"*.py\".",
					},
					"case_sensitive": map[string]interface{}{
						"type":        "boolean",
						"description": "Whether the search is case-sensitive. Default: false.",
					},
				},
				"required": []string{"pattern"},
			},
		},
		Exec: func(ctx context.Context, args json.RawMessage) (string, error) {
			parsed, err := parseArgs(args)
			if err != nil {
				return "", err
			}
			pattern, ok := stringArg(parsed, "pattern")
			if !ok || pattern == "" {
				return "", fmt.Errorf("pattern is required")
			}
			filePattern, ok := stringArg(parsed, "file_pattern")
			if !ok || filePattern == "" {
				filePattern = "*.py"
			}
			caseSensitive, _ := boolArg(parsed, "case_sensitive")
			return grepSearch(ctx, sb.Root(), pattern, filePattern, caseSensitive), nil
		},
	})
}

type searchMatch struct {
	line    int
	content string
}

func grepSearch(ctx context.Context, root, pattern, filePattern string, caseSensitive bool) string {
	expr := pattern
	if !caseSensitive {
		expr = "(?i)" + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		// Not valid regex; search for the literal text.
		expr = regexp.QuoteMeta(pattern)
		if !caseSensitive {
			expr = "(?i)" + expr
		}
		re = regexp.MustCompile(expr)
	}

	files, err := candidateFiles(ctx, root, filePattern)
	if err != nil {
		return fmt.Sprintf("Error performing search: %v", err)
	}

	byFile := make(map[string][]searchMatch)
	for _, path := range files {
		if ctx.Err() != nil {
			return fmt.Sprintf("Error performing search: %v", ctx.Err())
		}
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			rel = path
		}
		for i, line := range strings.Split(string(data), "\n") {
			if re.MatchString(line) {
				byFile[rel] = append(byFile[rel], searchMatch{line: i + 1, content: strings.TrimSpace(line)})
			}
		}
	}

	if len(byFile) == 0 {
		return fmt.Sprintf("No matches found for pattern '%s' in files matching '%s'", pattern, filePattern)
	}

	names := make([]string, 0, len(byFile))
	for name := range byFile {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	fmt.Fprintf(&b, "Search results for '%s' in '%s':\n\n", pattern, filePattern)
	total := 0
	for _, name := range names {
		matches := byFile[name]
		fmt.Fprintf(&b, "%s (%d matches):\n", name, len(matches))
		for i, m := range matches {
			if i == perFileMatchLimit {
				fmt.Fprintf(&b, "  ... and %d more matches\n", len(matches)-perFileMatchLimit)
				break
			}
			fmt.Fprintf(&b, "  Line %d: %s\n", m.line, m.content)
			total++
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Total: %d matches in %d files", total, len(names))

	return truncateOutput(b.String(), maxSearchOutput, "results")
}

// candidateFiles expands the file glob. Patterns containing ** walk the whole
// tree matching base names; plain globs expand relative to the root.
func candidateFiles(ctx context.Context, root, filePattern string) ([]string, error) {
	if strings.Contains(filePattern, "**") {
		baseGlob := filepath.Base(strings.ReplaceAll(filePattern, "**/", ""))
		var files []string
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if d.IsDir() {
				if d.Name() == ".git" {
					return filepath.SkipDir
				}
				return nil
			}
			if ok, _ := filepath.Match(baseGlob, d.Name()); ok {
				files = append(files, path)
			}
			return nil
		})
		return files, err
	}

	matches, err := filepath.Glob(filepath.Join(root, filePattern))
	if err != nil {
		return nil, err
	}
	var files []string
	for _, m := range matches {
		if info, err := os.Stat(m); err == nil && info.Mode().IsRegular() {
			files = append(files, m)
		}
	}
	return files, nil
}
