package agent

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/anthropics/triad/internal/domain"
	"github.com/anthropics/triad/internal/llm"
	"github.com/anthropics/triad/internal/memory"
	"github.com/anthropics/triad/internal/tool"
)

// scriptedClient replays canned responses and records the requests it saw.
type scriptedClient struct {
	responses []*llm.Response
	requests  []llm.Request
	err       error
	delay     time.Duration
	next      int
}

func (c *scriptedClient) Generate(ctx context.Context, req llm.Request) (*llm.Response, error) {
	c.requests = append(c.requests, req)
	if c.delay > 0 {
		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if c.err != nil {
		return nil, c.err
	}
	if c.next >= len(c.responses) {
		return &llm.Response{Text: "done"}, nil
	}
	r := c.responses[c.next]
	c.next++
	return r, nil
}

func textResponse(text string) *llm.Response {
	return &llm.Response{Text: text, Usage: llm.Usage{InputTokens: 10, OutputTokens: 5}}
}

func toolResponse(name string, args string) *llm.Response {
	return &llm.Response{
		ToolCalls: []llm.ToolCall{{ID: "call_t1", Name: name, Arguments: json.RawMessage(args)}},
		Usage:     llm.Usage{InputTokens: 10, OutputTokens: 5},
	}
}

func newTestStage(t *testing.T, client llm.Client, capability domain.Capability) (*Stage, *tool.Sandbox, *memory.Store) {
	t.Helper()
	sb, err := tool.NewSandbox(t.TempDir())
	if err != nil {
		t.Fatalf("NewSandbox() error = %v", err)
	}
	reg := tool.DefaultRegistry(sb, time.Second)
	mem := memory.NewStore()
	stage := &Stage{
		Role:     domain.RoleValidator,
		ThreadID: "test_session",
		System:   "test system",
		Client:   client,
		Broker:   tool.NewBroker(reg, domain.RoleValidator, capability, nil),
		Memory:   mem,
		MaxTurns: 10,
		Timeout:  5 * time.Second,
	}
	return stage, sb, mem
}

func TestStageRunDirectAnswer(t *testing.T) {
	client := &scriptedClient{responses: []*llm.Response{textResponse("final answer")}}
	stage, _, mem := newTestStage(t, client, domain.CapValidation)

	res, err := stage.Run(context.Background(), "run-1", "do the thing")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Text != "final answer" {
		t.Errorf("Text = %q", res.Text)
	}
	if res.Turns != 0 {
		t.Errorf("Turns = %d, want 0", res.Turns)
	}

	history := mem.History("test_session")
	if len(history) != 2 {
		t.Fatalf("history length = %d, want user+assistant", len(history))
	}
	if history[0].Role != llm.RoleUser || history[1].Role != llm.RoleAssistant {
		t.Errorf("history roles = %q, %q", history[0].Role, history[1].Role)
	}
	if len(client.requests) != 1 || client.requests[0].System != "test system" {
		t.Errorf("request system not forwarded")
	}
}

func TestStageRunsTools(t *testing.T) {
	client := &scriptedClient{responses: []*llm.Response{
		toolResponse("read_file", `{"file_path": "a.py"}`),
		textResponse("read it"),
	}}
	stage, sb, mem := newTestStage(t, client, domain.CapValidation)

	if err := os.WriteFile(filepath.Join(sb.Root(), "a.py"), []byte("x = 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	res, err := stage.Run(context.Background(), "run-1", "inspect a.py")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Text != "read it" || res.Turns != 1 {
		t.Errorf("res = %+v", res)
	}
	if res.Usage.InputTokens != 20 || res.Usage.OutputTokens != 10 {
		t.Errorf("usage not accumulated: %+v", res.Usage)
	}

	var toolMsg *llm.Message
	for _, m := range mem.History("test_session") {
		if m.Role == llm.RoleTool {
			msg := m
			toolMsg = &msg
			break
		}
	}
	if toolMsg == nil {
		t.Fatal("no tool message recorded")
	}
	if toolMsg.Name != "read_file" || toolMsg.ToolCallID != "call_t1" {
		t.Errorf("tool message = %+v", toolMsg)
	}
	if !strings.Contains(toolMsg.Content, "1: x = 1") {
		t.Errorf("tool output = %q", toolMsg.Content)
	}
}

func TestStageCapabilityViolationStopsRun(t *testing.T) {
	client := &scriptedClient{responses: []*llm.Response{
		toolResponse("write_file", `{"file_path": "a.py", "content": "x"}`),
		textResponse("should never happen"),
	}}
	stage, sb, _ := newTestStage(t, client, domain.CapValidation)

	_, err := stage.Run(context.Background(), "run-1", "try to write")
	if err == nil {
		t.Fatal("Run() expected capability violation")
	}
	if domain.ErrorCode(err) != domain.ErrCapabilityViolation.Code {
		t.Errorf("code = %d, want %d", domain.ErrorCode(err), domain.ErrCapabilityViolation.Code)
	}
	if len(client.requests) != 1 {
		t.Errorf("stage kept running after violation: %d requests", len(client.requests))
	}
	if _, err := os.Stat(filepath.Join(sb.Root(), "a.py")); err == nil {
		t.Error("side effect leaked through violation")
	}
}

func TestStageTurnBudget(t *testing.T) {
	client := &scriptedClient{responses: []*llm.Response{
		toolResponse("git_status", `{}`),
		toolResponse("git_status", `{}`),
		toolResponse("git_status", `{}`),
	}}
	stage, _, _ := newTestStage(t, client, domain.CapValidation)
	stage.MaxTurns = 2

	res, err := stage.Run(context.Background(), "run-1", "loop forever")
	if domain.ErrorCode(err) != domain.ErrTurnBudgetExceeded.Code {
		t.Fatalf("error = %v, want turn budget", err)
	}
	if res.Turns != 2 {
		t.Errorf("Turns = %d, want 2", res.Turns)
	}
}

func TestStageTimeout(t *testing.T) {
	client := &scriptedClient{delay: 200 * time.Millisecond, responses: []*llm.Response{textResponse("late")}}
	stage, _, _ := newTestStage(t, client, domain.CapValidation)
	stage.Timeout = 20 * time.Millisecond

	_, err := stage.Run(context.Background(), "run-1", "slow")
	if domain.ErrorCode(err) != domain.ErrStageTimeout.Code {
		t.Fatalf("error = %v, want stage timeout", err)
	}
}

func TestStageCanceled(t *testing.T) {
	client := &scriptedClient{delay: 200 * time.Millisecond, responses: []*llm.Response{textResponse("late")}}
	stage, _, _ := newTestStage(t, client, domain.CapValidation)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := stage.Run(ctx, "run-1", "will be canceled")
	if domain.ErrorCode(err) != domain.ErrRunCanceled.Code {
		t.Fatalf("error = %v, want run canceled", err)
	}
}

func TestStageModelErrorMapping(t *testing.T) {
	provider := func(msg string) llm.ProviderError {
		return llm.ProviderError{ClientError: llm.ClientError{Message: msg}, Provider: "anthropic"}
	}
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"auth", &llm.AuthError{ProviderError: provider("bad key")}, domain.ErrMissingCredentials.Code},
		{"rate limit", &llm.RateLimitError{ProviderError: provider("slow down")}, domain.ErrRateLimited.Code},
		{"server", &llm.ServerError{ProviderError: provider("boom")}, domain.ErrModelFailure.Code},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &scriptedClient{err: tt.err}
			stage, _, _ := newTestStage(t, client, domain.CapValidation)
			_, err := stage.Run(context.Background(), "run-1", "x")
			if domain.ErrorCode(err) != tt.want {
				t.Errorf("code = %d, want %d", domain.ErrorCode(err), tt.want)
			}
		})
	}
}

func TestStageCompaction(t *testing.T) {
	var responses []*llm.Response
	for i := 0; i < 6; i++ {
		responses = append(responses, toolResponse("git_status", `{}`))
	}
	responses = append(responses, textResponse("done"))

	client := &scriptedClient{responses: responses}
	stage, _, mem := newTestStage(t, client, domain.CapValidation)
	stage.CompactAt = 6

	if _, err := stage.Run(context.Background(), "run-1", "explore"); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if n := mem.Len("test_session"); n > 12 {
		t.Errorf("history length = %d, compaction never ran", n)
	}
	found := false
	for _, m := range mem.History("test_session") {
		if strings.Contains(m.Content, "compacted") {
			found = true
			break
		}
	}
	if !found {
		t.Error("compaction marker missing from history")
	}
}
