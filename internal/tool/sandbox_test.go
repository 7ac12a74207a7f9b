package tool

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/anthropics/triad/internal/domain"
)

func newTestSandbox(t *testing.T) *Sandbox {
	t.Helper()
	sb, err := NewSandbox(t.TempDir())
	if err != nil {
		t.Fatalf("NewSandbox() error = %v", err)
	}
	return sb
}

func TestSandboxResolve(t *testing.T) {
	sb := newTestSandbox(t)

	got, err := sb.Resolve("src/main.py")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	want := filepath.Join(sb.Root(), "src", "main.py")
	if got != want {
		t.Errorf("Resolve() = %q, want %q", got, want)
	}

	if _, err := sb.Resolve("."); err != nil {
		t.Errorf("Resolve(root) error = %v", err)
	}

	abs := filepath.Join(sb.Root(), "inner.py")
	if _, err := sb.Resolve(abs); err != nil {
		t.Errorf("Resolve(absolute inside) error = %v", err)
	}
}

func TestSandboxResolveEscape(t *testing.T) {
	sb := newTestSandbox(t)

	for _, path := range []string{"../outside.py", "a/../../etc/passwd", "/etc/passwd"} {
		_, err := sb.Resolve(path)
		if err == nil {
			t.Errorf("Resolve(%q) expected error", path)
			continue
		}
		if domain.ErrorCode(err) != domain.ErrOutOfSandbox.Code {
			t.Errorf("Resolve(%q) code = %d, want %d", path, domain.ErrorCode(err), domain.ErrOutOfSandbox.Code)
		}
	}
}

func TestSandboxDeniedPatterns(t *testing.T) {
	sb := newTestSandbox(t)

	tests := []struct {
		path   string
		denied bool
	}{
		{".env", true},
		{"config/.env", true},
		{"secrets/api.key", true},
		{".git/config", true},
		{".git/hooks/pre-commit", true},
		{"main.py", false},
		{"src/envy.py", false},
	}
	for _, tt := range tests {
		_, err := sb.CheckPath(tt.path)
		if tt.denied {
			if err == nil {
				t.Errorf("CheckPath(%q) expected denial", tt.path)
			} else if domain.ErrorCode(err) != domain.ErrPermissionDenied.Code {
				t.Errorf("CheckPath(%q) code = %d, want %d", tt.path, domain.ErrorCode(err), domain.ErrPermissionDenied.Code)
			}
		} else if err != nil {
			t.Errorf("CheckPath(%q) error = %v", tt.path, err)
		}
	}
}

func TestNewSandboxRejectsMissingRoot(t *testing.T) {
	if _, err := NewSandbox(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatal("NewSandbox() expected error for missing dir")
	}
}

func TestMatchPattern(t *testing.T) {
	tests := []struct {
		pattern string
		path    string
		want    bool
	}{
		{".env", ".env", true},
		{".env", "deep/nested/.env", true},
		{"*.key", "certs/server.key", true},
		{".git/*", ".git/config", true},
		{".git/*", "src/.gitignore", false},
		{"*.key", "keys.py", false},
	}
	for _, tt := range tests {
		got, err := matchPattern(tt.pattern, tt.path)
		if err != nil {
			t.Fatalf("matchPattern(%q, %q) error = %v", tt.pattern, tt.path, err)
		}
		if got != tt.want {
			t.Errorf("matchPattern(%q, %q) = %t, want %t", tt.pattern, tt.path, got, tt.want)
		}
	}
}

func TestSandboxRootIsAbsolute(t *testing.T) {
	sb := newTestSandbox(t)
	if !strings.HasPrefix(sb.Root(), string(filepath.Separator)) {
		t.Errorf("Root() = %q, want absolute", sb.Root())
	}
}
