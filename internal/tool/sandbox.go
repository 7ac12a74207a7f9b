package tool

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/anthropics/triad/internal/domain"
)

// deniedPatterns are file patterns no stage may touch regardless of its
// capability set.
var deniedPatterns = []string{".env", "*.key", ".git/*"}

// Sandbox confines tool file access to a root directory. All relative paths
// resolve against the root; resolved paths escaping it are rejected.
type Sandbox struct {
	root string
}

// NewSandbox creates a sandbox rooted at dir, which must exist.
func NewSandbox(dir string) (*Sandbox, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, domain.WrapAgentError(domain.ErrRootDirInvalid.Code, "resolve root "+dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, domain.WrapAgentError(domain.ErrRootDirInvalid.Code, "stat root "+abs, err)
	}
	if !info.IsDir() {
		return nil, domain.NewAgentError(domain.ErrRootDirInvalid.Code, abs+" is not a directory")
	}
	return &Sandbox{root: abs}, nil
}

// Root returns the absolute sandbox root.
func (s *Sandbox) Root() string {
	return s.root
}

// Resolve maps path into the sandbox, rejecting escapes.
func (s *Sandbox) Resolve(path string) (string, error) {
	p := path
	if !filepath.IsAbs(p) {
		p = filepath.Join(s.root, p)
	}
	p = filepath.Clean(p)
	if p != s.root && !strings.HasPrefix(p, s.root+string(filepath.Separator)) {
		return "", domain.NewAgentError(domain.ErrOutOfSandbox.Code,
			fmt.Sprintf("path %q resolves outside %s", path, s.root))
	}
	return p, nil
}

// CheckPath resolves path and applies the denied patterns.
func (s *Sandbox) CheckPath(path string) (string, error) {
	resolved, err := s.Resolve(path)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(s.root, resolved)
	if err != nil {
		rel = resolved
	}
	rel = filepath.ToSlash(rel)
	for _, pattern := range deniedPatterns {
		matched, err := matchPattern(pattern, rel)
		if err != nil {
			return "", domain.WrapAgentError(domain.ErrPermissionDenied.Code, "match pattern "+pattern, err)
		}
		if matched {
			return "", domain.NewAgentError(domain.ErrPermissionDenied.Code,
				fmt.Sprintf("path %q denied by pattern %q", path, pattern))
		}
	}
	return resolved, nil
}

// matchPattern checks a path against a denied pattern. Supports exact match,
// base name match, glob match on the full path, glob match on the base name,
// and directory prefix for patterns ending in /*.
func matchPattern(pattern, path string) (bool, error) {
	if path == pattern {
		return true, nil
	}
	base := filepath.Base(path)
	if base == pattern {
		return true, nil
	}
	if dir, ok := strings.CutSuffix(pattern, "/*"); ok {
		if path == dir || strings.HasPrefix(path, dir+"/") {
			return true, nil
		}
	}
	matched, err := filepath.Match(pattern, path)
	if err != nil {
		return false, err
	}
	if matched {
		return true, nil
	}
	return filepath.Match(pattern, base)
}
