package tool

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"
)

func TestParseLintScore(t *testing.T) {
	tests := []struct {
		output string
		want   float64
		ok     bool
	}{
		{"Your code has been rated at 7.50/10 (previous run: 6.00/10, +1.50)", 7.50, true},
		{"Your code has been rated at 10.00/10", 10.00, true},
		{"Your code has been rated at -2.50/10", -2.50, true},
		{"no rating here", 0, false},
	}
	for _, tt := range tests {
		got, ok := parseLintScore(tt.output)
		if ok != tt.ok || got != tt.want {
			t.Errorf("parseLintScore(%q) = %.2f, %t; want %.2f, %t", tt.output, got, ok, tt.want, tt.ok)
		}
	}
}

func TestFormatLintReport(t *testing.T) {
	output := strings.Join([]string{
		"************* Module calc",
		"/work/calc.py:1:0: C0114: Missing module docstring (missing-module-docstring)",
		"/work/calc.py:4:0: W0612: Unused variable 'tmp' (unused-variable)",
		"/work/calc.py:9:4: E0602: Undefined variable 'z' (undefined-variable)",
		"",
		"------------------------------------------------------------------",
		"Your code has been rated at 5.00/10 (previous run: 5.00/10, +0.00)",
	}, "\n")

	report := formatLintReport("calc.py", "/work/calc.py", output)

	if !strings.Contains(report, "Pylint Results for 'calc.py':") {
		t.Errorf("missing header: %q", report)
	}
	if !strings.Contains(report, "rated at 5.00/10") {
		t.Errorf("missing rating: %q", report)
	}
	if !strings.Contains(report, "Errors (1):") || !strings.Contains(report, "Line 9: E0602") {
		t.Errorf("errors not categorized: %q", report)
	}
	if !strings.Contains(report, "Warnings (1):") {
		t.Errorf("warnings not categorized: %q", report)
	}
	if !strings.Contains(report, "Convention Issues (1):") {
		t.Errorf("conventions not categorized: %q", report)
	}
	if !strings.Contains(report, "Summary: 1 errors, 1 warnings, 1 conventions") {
		t.Errorf("summary wrong: %q", report)
	}
}

func TestFormatLintReportClean(t *testing.T) {
	output := "Your code has been rated at 10.00/10"
	report := formatLintReport("ok.py", "/work/ok.py", output)
	if !strings.Contains(report, "No issues found!") {
		t.Errorf("clean report = %q", report)
	}
}

func TestFormatLintReportCapsCategories(t *testing.T) {
	var lines []string
	for i := 1; i <= 15; i++ {
		lines = append(lines, "/work/big.py:"+strconv.Itoa(i)+":0: W0612: Unused variable (unused-variable)")
	}
	report := formatLintReport("big.py", "/work/big.py", strings.Join(lines, "\n"))
	if !strings.Contains(report, "Warnings (15):") {
		t.Errorf("count wrong: %q", report)
	}
	if !strings.Contains(report, "... and 5 more") {
		t.Errorf("cap note missing: %q", report)
	}
}

func TestLintFileRejectsNonPython(t *testing.T) {
	sb := newTestSandbox(t)
	path := filepath.Join(sb.Root(), "readme.txt")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}

	out := lintFile(context.Background(), sb, "readme.txt", time.Second)
	if !strings.Contains(out, "is not a Python file") {
		t.Errorf("lintFile = %q", out)
	}
}

func TestLintFileMissing(t *testing.T) {
	sb := newTestSandbox(t)
	out := lintFile(context.Background(), sb, "ghost.py", time.Second)
	if !strings.Contains(out, "not found") {
		t.Errorf("lintFile = %q", out)
	}
}

func TestLintFileOutsideSandbox(t *testing.T) {
	sb := newTestSandbox(t)
	out := lintFile(context.Background(), sb, "../outside.py", time.Second)
	if !strings.Contains(out, "outside the working directory") {
		t.Errorf("lintFile = %q", out)
	}
}
