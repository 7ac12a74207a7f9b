package llm

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"
)

// rawCall mirrors the JSON shape the system prompts instruct models to emit.
type rawCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ParseToolCalls recovers tool calls embedded in model reply text. Parsing is
// layered: a fenced ```tool_calls or ```json block, then an inline
// {"tool_calls": [...]} object, then a bare [{"name": ..., "arguments": ...}]
// array. The consumed block is stripped from the returned text. A fenced json
// block that is not tool-call shaped (a stage report, for instance) is left
// untouched.
func ParseToolCalls(text string) ([]ToolCall, string) {
	if calls, clean, ok := parseFencedCalls(text); ok {
		return calls, clean
	}

	if idx := strings.Index(text, `{"tool_calls"`); idx >= 0 {
		if raws, n := decodeCallWrapper(text[idx:]); len(raws) > 0 {
			return finishCalls(raws), stripSegment(text, idx, n)
		}
	}

	if idx := strings.Index(text, `[{"name"`); idx >= 0 {
		if raws, n := decodeCallArray(text[idx:]); len(raws) > 0 {
			return finishCalls(raws), stripSegment(text, idx, n)
		}
	}

	return nil, text
}

// parseFencedCalls scans fenced code blocks for tool-call payloads.
func parseFencedCalls(text string) ([]ToolCall, string, bool) {
	rest := text
	offset := 0
	for {
		open := strings.Index(rest, "```")
		if open < 0 {
			return nil, "", false
		}
		tagEnd := strings.IndexByte(rest[open:], '\n')
		if tagEnd < 0 {
			return nil, "", false
		}
		tag := strings.TrimSpace(rest[open+3 : open+tagEnd])
		bodyStart := open + tagEnd + 1
		closeRel := strings.Index(rest[bodyStart:], "```")
		if closeRel < 0 {
			return nil, "", false
		}
		body := rest[bodyStart : bodyStart+closeRel]
		blockEnd := bodyStart + closeRel + 3

		if tag == "tool_calls" || tag == "json" {
			var raws []rawCall
			if rs, _ := decodeCallWrapper(body); len(rs) > 0 {
				raws = rs
			} else if rs, _ := decodeCallArray(body); len(rs) > 0 {
				raws = rs
			}
			if len(raws) > 0 {
				clean := strings.TrimSpace(text[:offset+open] + text[offset+blockEnd:])
				return finishCalls(raws), clean, true
			}
		}

		offset += blockEnd
		rest = rest[blockEnd:]
	}
}

// decodeCallWrapper decodes a leading {"tool_calls": [...]} value and reports
// how many bytes it consumed.
func decodeCallWrapper(s string) ([]rawCall, int) {
	var wrapper struct {
		ToolCalls []rawCall `json:"tool_calls"`
	}
	dec := json.NewDecoder(strings.NewReader(s))
	if err := dec.Decode(&wrapper); err != nil {
		return nil, 0
	}
	if !validCalls(wrapper.ToolCalls) {
		return nil, 0
	}
	return wrapper.ToolCalls, int(dec.InputOffset())
}

// decodeCallArray decodes a leading [{"name": ...}, ...] value.
func decodeCallArray(s string) ([]rawCall, int) {
	var raws []rawCall
	dec := json.NewDecoder(strings.NewReader(s))
	if err := dec.Decode(&raws); err != nil {
		return nil, 0
	}
	if !validCalls(raws) {
		return nil, 0
	}
	return raws, int(dec.InputOffset())
}

func validCalls(raws []rawCall) bool {
	if len(raws) == 0 {
		return false
	}
	for _, rc := range raws {
		if rc.Name == "" {
			return false
		}
	}
	return true
}

func finishCalls(raws []rawCall) []ToolCall {
	calls := make([]ToolCall, 0, len(raws))
	for _, rc := range raws {
		args := rc.Arguments
		if len(args) == 0 {
			args = json.RawMessage("{}")
		}
		calls = append(calls, ToolCall{
			ID:        "call_" + uuid.New().String()[:8],
			Name:      rc.Name,
			Arguments: args,
		})
	}
	return calls
}

func stripSegment(text string, start, length int) string {
	return strings.TrimSpace(text[:start] + text[start+length:])
}
