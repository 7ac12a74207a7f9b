package agent

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/anthropics/triad/internal/domain"
	"github.com/anthropics/triad/internal/llm"
	"github.com/anthropics/triad/internal/memory"
	"github.com/anthropics/triad/internal/tool"
)

// Stage is one agent role bound to its conversation thread, tool broker and
// budgets. Run drives the loop: model call, tool execution, repeat, until the
// model answers without tool calls or a budget ends the stage.
type Stage struct {
	Role     domain.StageRole
	ThreadID string
	System   string
	Client   llm.Client
	Broker   *tool.Broker
	Memory   *memory.Store

	MaxTurns  int
	Timeout   time.Duration
	CompactAt int
}

// StageResult is the outcome of one stage invocation. Text is the last
// assistant message, also populated when Run returns a turn budget error.
type StageResult struct {
	Text  string
	Usage llm.Usage
	Turns int
}

// Run appends input to the stage thread and loops until final text. The
// returned StageResult is never nil; its usage covers every model call made.
func (s *Stage) Run(ctx context.Context, runID, input string) (*StageResult, error) {
	res := &StageResult{}
	start := time.Now()

	cctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	s.Memory.Append(s.ThreadID, llm.Message{Role: llm.RoleUser, Content: input})

	warned := false
	for res.Turns < s.MaxTurns {
		if cctx.Err() != nil {
			return res, s.deadlineError(ctx, cctx.Err())
		}

		resp, err := s.Client.Generate(cctx, llm.Request{
			System:   s.System,
			Messages: s.Memory.History(s.ThreadID),
			Tools:    s.Broker.Definitions(),
		})
		if err != nil {
			return res, s.modelError(ctx, cctx, err)
		}

		res.Usage.InputTokens += resp.Usage.InputTokens
		res.Usage.OutputTokens += resp.Usage.OutputTokens
		res.Text = resp.Text

		s.Memory.Append(s.ThreadID, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   resp.Text,
			ToolCalls: resp.ToolCalls,
		})

		if len(resp.ToolCalls) == 0 {
			return res, nil
		}

		res.Turns++
		for _, call := range resp.ToolCalls {
			log.Printf("[%s] tool %s", s.Role, call.Name)
			out, err := s.Broker.Dispatch(cctx, runID, call)
			if err != nil {
				if cctx.Err() != nil {
					return res, s.deadlineError(ctx, cctx.Err())
				}
				return res, err
			}
			s.Memory.Append(s.ThreadID, llm.Message{
				Role:       llm.RoleTool,
				Content:    out,
				ToolCallID: call.ID,
				Name:       call.Name,
			})
		}

		if s.CompactAt > 0 && s.Memory.Len(s.ThreadID) > s.CompactAt {
			if dropped := s.Memory.Compact(s.ThreadID, s.CompactAt/2); dropped > 0 {
				log.Printf("[%s] compacted %d messages from %s", s.Role, dropped, s.ThreadID)
			}
		}

		if !warned && s.Timeout > 0 && time.Since(start) > s.Timeout*4/5 {
			log.Printf("[%s] nearing deadline, asking for a final answer", s.Role)
			s.Memory.Append(s.ThreadID, llm.Message{Role: llm.RoleUser, Content: finalAnswerNote})
			warned = true
		}
	}

	return res, domain.NewAgentError(domain.ErrTurnBudgetExceeded.Code,
		fmt.Sprintf("%s stage used all %d turns without a final answer", s.Role, s.MaxTurns))
}

// deadlineError distinguishes the stage deadline from an outside cancel.
func (s *Stage) deadlineError(parent context.Context, cause error) error {
	if parent.Err() != nil {
		return domain.WrapAgentError(domain.ErrRunCanceled.Code, string(s.Role)+" stage canceled", parent.Err())
	}
	return domain.WrapAgentError(domain.ErrStageTimeout.Code,
		fmt.Sprintf("%s stage exceeded its %s deadline", s.Role, s.Timeout), cause)
}

// modelError maps transport failures onto the stage error taxonomy.
func (s *Stage) modelError(parent, cctx context.Context, err error) error {
	if cctx.Err() == context.DeadlineExceeded && parent.Err() == nil {
		return domain.WrapAgentError(domain.ErrStageTimeout.Code,
			fmt.Sprintf("%s stage exceeded its %s deadline", s.Role, s.Timeout), err)
	}
	if parent.Err() != nil {
		return domain.WrapAgentError(domain.ErrRunCanceled.Code, string(s.Role)+" stage canceled", err)
	}

	var authErr *llm.AuthError
	if errors.As(err, &authErr) {
		return domain.WrapAgentError(domain.ErrMissingCredentials.Code, string(s.Role)+" stage rejected by provider", err)
	}
	var rateErr *llm.RateLimitError
	if errors.As(err, &rateErr) {
		return domain.WrapAgentError(domain.ErrRateLimited.Code, string(s.Role)+" stage rate limited", err)
	}
	var timeoutErr *llm.TimeoutError
	if errors.As(err, &timeoutErr) {
		return domain.WrapAgentError(domain.ErrStageTimeout.Code, string(s.Role)+" stage model call timed out", err)
	}
	return domain.WrapAgentError(domain.ErrModelFailure.Code, string(s.Role)+" stage model call failed", err)
}
