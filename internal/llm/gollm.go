package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/teilomillet/gollm"
)

// defaultModels maps providers to a sensible default model.
var defaultModels = map[string]string{
	"anthropic": "claude-sonnet-4-5-20250514",
	"openai":    "gpt-4o-mini",
	"gemini":    "gemini-2.5-pro",
	"groq":      "llama-3.3-70b-versatile",
	"ollama":    "llama3",
}

// GollmClient implements Client over the gollm library.
type GollmClient struct {
	provider string
	model    string
	llm      gollm.LLM
}

// NewGollmClient builds a gollm-backed client. When opts.APIKey is empty
// gollm falls back to its own environment lookup.
func NewGollmClient(opts Options) (*GollmClient, error) {
	model := opts.Model
	if model == "" {
		model = defaultModels[opts.Provider]
	}
	if model == "" {
		return nil, &ConfigError{ClientError: ClientError{Message: fmt.Sprintf("no model configured for provider %q", opts.Provider)}}
	}

	gollmOpts := []gollm.ConfigOption{
		gollm.SetProvider(opts.Provider),
		gollm.SetModel(model),
		gollm.SetTemperature(opts.Temperature),
		gollm.SetMaxRetries(0), // retries are handled by WithRetry
		gollm.SetLogLevel(gollm.LogLevelWarn),
	}
	if opts.MaxTokens > 0 {
		gollmOpts = append(gollmOpts, gollm.SetMaxTokens(opts.MaxTokens))
	}
	if opts.APIKey != "" {
		gollmOpts = append(gollmOpts, gollm.SetAPIKey(opts.APIKey))
	}

	inner, err := gollm.NewLLM(gollmOpts...)
	if err != nil {
		return nil, &ConfigError{ClientError: ClientError{Message: fmt.Sprintf("create %s client", opts.Provider), Cause: err}}
	}

	return &GollmClient{
		provider: opts.Provider,
		model:    model,
		llm:      inner,
	}, nil
}

// Generate sends one completion call and recovers any tool calls embedded in
// the reply text.
func (c *GollmClient) Generate(ctx context.Context, req Request) (*Response, error) {
	prompt := c.buildPrompt(req)

	text, err := c.llm.Generate(ctx, prompt)
	if err != nil {
		return nil, ClassifyError(c.provider, err)
	}

	calls, clean := ParseToolCalls(text)
	return &Response{
		Text:      clean,
		ToolCalls: calls,
		Model:     c.model,
		Provider:  c.provider,
		Usage: Usage{
			InputTokens:  estimateRequestTokens(req),
			OutputTokens: len(text) / 4,
		},
	}, nil
}

// buildPrompt flattens the conversation into a gollm prompt. gollm takes a
// single prompt string, so prior turns are replayed with role prefixes.
func (c *GollmClient) buildPrompt(req Request) *gollm.Prompt {
	system := strings.TrimSpace(req.System)
	var parts []string

	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleSystem:
			if system == "" {
				system = msg.Content
			} else {
				system += "\n" + msg.Content
			}
		case RoleUser:
			parts = append(parts, msg.Content)
		case RoleAssistant:
			if msg.Content != "" {
				parts = append(parts, "[Assistant]: "+msg.Content)
			}
			for _, call := range msg.ToolCalls {
				parts = append(parts, fmt.Sprintf("[Assistant called %s]: %s", call.Name, string(call.Arguments)))
			}
		case RoleTool:
			name := msg.Name
			if name == "" {
				name = "tool"
			}
			parts = append(parts, fmt.Sprintf("[%s result]: %s", name, msg.Content))
		}
	}

	promptText := strings.Join(parts, "\n\n")
	if promptText == "" {
		promptText = "Proceed."
	}

	promptOpts := []gollm.PromptOption{}
	if system != "" {
		promptOpts = append(promptOpts, gollm.WithSystemPrompt(system, gollm.CacheTypeEphemeral))
	}
	if len(req.Tools) > 0 {
		tools := make([]gollm.Tool, 0, len(req.Tools))
		for _, t := range req.Tools {
			tools = append(tools, gollm.Tool{
				Type: "function",
				Function: gollm.Function{
					Name:        t.Name,
					Description: t.Description,
					Parameters:  t.Parameters,
				},
			})
		}
		promptOpts = append(promptOpts, gollm.WithTools(tools))
	}

	return gollm.NewPrompt(promptText, promptOpts...)
}

// estimateRequestTokens approximates input tokens as chars/4; gollm does not
// expose provider-reported usage.
func estimateRequestTokens(req Request) int {
	total := len(req.System)
	for _, msg := range req.Messages {
		total += len(msg.Content)
		for _, call := range msg.ToolCalls {
			total += len(call.Name) + len(call.Arguments)
		}
	}
	n := total / 4
	if n == 0 {
		n = 1
	}
	return n
}
