// Package events parses the JSON-lines stream an agent subprocess writes to
// stdout and dispatches each event to a Handler. Parsing is schema-on-read:
// recognized event types get typed handler calls, everything else passes
// through raw so unknown or malformed lines are never lost.
package events

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Event types emitted by the agent.
const (
	TypeSystem            = "system"
	TypeAssistant         = "assistant"
	TypeUser              = "user"
	TypeResult            = "result"
	TypeContentBlockStart = "content_block_start"
	TypeContentBlockDelta = "content_block_delta"
	TypeContentBlockStop  = "content_block_stop"
)

// Delta kinds passed to HandleDelta. Block boundaries are reported with the
// event type as the kind.
const (
	DeltaText      = "text_delta"
	DeltaThinking  = "thinking_delta"
	DeltaInputJSON = "input_json_delta"
)

// SystemInfo is the payload of a system event, typically the session banner.
type SystemInfo struct {
	Subtype    string
	Model      string
	SessionID  string
	CWD        string
	Tools      []string
	MCPServers []string
}

// Usage carries token counts from the terminal result event.
type Usage struct {
	InputTokens              int64 `json:"input_tokens"`
	OutputTokens             int64 `json:"output_tokens"`
	CacheCreationInputTokens int64 `json:"cache_creation_input_tokens"`
	CacheReadInputTokens     int64 `json:"cache_read_input_tokens"`
}

// Result is the terminal summary event of a run.
type Result struct {
	Subtype      string
	Text         string
	IsError      bool
	NumTurns     int
	DurationMS   int64
	TotalCostUSD float64
	Usage        Usage
}

// Duration returns the agent-reported wall time.
func (r Result) Duration() time.Duration {
	return time.Duration(r.DurationMS) * time.Millisecond
}

// Handler receives parsed events. Exactly one method fires per input line.
type Handler interface {
	HandleSystem(info SystemInfo)
	HandleText(text string)
	HandleThinking(text string)
	HandleToolUse(name string, input string)
	HandleToolResult(content string, isError bool)
	HandleDelta(kind string, text string)
	HandleResult(res Result)
	HandleRaw(line string)
}

type contentBlock struct {
	Type     string          `json:"type"`
	Text     string          `json:"text"`
	Thinking string          `json:"thinking"`
	Name     string          `json:"name"`
	Input    json.RawMessage `json:"input"`
	Content  json.RawMessage `json:"content"`
	IsError  bool            `json:"is_error"`
}

type deltaPayload struct {
	Type        string `json:"type"`
	Text        string `json:"text"`
	Thinking    string `json:"thinking"`
	PartialJSON string `json:"partial_json"`
}

type mcpServerInfo struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

type event struct {
	Type    string `json:"type"`
	Subtype string `json:"subtype"`

	Message *struct {
		Content []contentBlock `json:"content"`
	} `json:"message"`

	ContentBlock *contentBlock `json:"content_block"`
	Delta        *deltaPayload `json:"delta"`

	// system init
	Model      string          `json:"model"`
	SessionID  string          `json:"session_id"`
	CWD        string          `json:"cwd"`
	Tools      []string        `json:"tools"`
	MCPServers []mcpServerInfo `json:"mcp_servers"`

	// result
	Result       string  `json:"result"`
	IsError      bool    `json:"is_error"`
	NumTurns     int     `json:"num_turns"`
	DurationMS   int64   `json:"duration_ms"`
	TotalCostUSD float64 `json:"total_cost_usd"`
	Usage        *Usage  `json:"usage"`
}

// Process classifies a single line and dispatches it to h. It reports whether
// the line was recognized; unrecognized lines go to HandleRaw. Blank lines are
// dropped without a handler call.
func Process(line string, h Handler) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return true
	}

	var ev event
	if err := json.Unmarshal([]byte(trimmed), &ev); err != nil {
		h.HandleRaw(line)
		return false
	}

	switch ev.Type {
	case TypeSystem:
		h.HandleSystem(systemInfo(ev))
	case TypeAssistant, TypeUser:
		if ev.Message == nil {
			h.HandleRaw(line)
			return false
		}
		for _, block := range ev.Message.Content {
			dispatchBlock(block, h)
		}
	case TypeContentBlockDelta:
		if ev.Delta == nil {
			h.HandleRaw(line)
			return false
		}
		switch ev.Delta.Type {
		case DeltaText:
			h.HandleDelta(DeltaText, ev.Delta.Text)
		case DeltaThinking:
			h.HandleDelta(DeltaThinking, ev.Delta.Thinking)
		case DeltaInputJSON:
			h.HandleDelta(DeltaInputJSON, ev.Delta.PartialJSON)
		default:
			h.HandleRaw(line)
			return false
		}
	case TypeContentBlockStart:
		blockType := ""
		if ev.ContentBlock != nil {
			blockType = ev.ContentBlock.Type
		}
		h.HandleDelta(TypeContentBlockStart, blockType)
	case TypeContentBlockStop:
		h.HandleDelta(TypeContentBlockStop, "")
	case TypeResult:
		h.HandleResult(resultOf(ev))
	default:
		h.HandleRaw(line)
		return false
	}
	return true
}

func dispatchBlock(block contentBlock, h Handler) {
	switch block.Type {
	case "text":
		h.HandleText(block.Text)
	case "thinking":
		h.HandleThinking(block.Thinking)
	case "tool_use":
		h.HandleToolUse(block.Name, compactJSON(block.Input))
	case "tool_result":
		h.HandleToolResult(flattenContent(block.Content), block.IsError)
	}
}

func systemInfo(ev event) SystemInfo {
	info := SystemInfo{
		Subtype:   ev.Subtype,
		Model:     ev.Model,
		SessionID: ev.SessionID,
		CWD:       ev.CWD,
		Tools:     ev.Tools,
	}
	for _, server := range ev.MCPServers {
		label := server.Name
		if server.Status != "" {
			label = fmt.Sprintf("%s (%s)", server.Name, server.Status)
		}
		info.MCPServers = append(info.MCPServers, label)
	}
	return info
}

func resultOf(ev event) Result {
	res := Result{
		Subtype:      ev.Subtype,
		Text:         ev.Result,
		IsError:      ev.IsError,
		NumTurns:     ev.NumTurns,
		DurationMS:   ev.DurationMS,
		TotalCostUSD: ev.TotalCostUSD,
	}
	if ev.Usage != nil {
		res.Usage = *ev.Usage
	}
	return res
}

// compactJSON renders raw JSON on a single line for display.
func compactJSON(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var buf strings.Builder
	if err := compactInto(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

func compactInto(buf *strings.Builder, raw json.RawMessage) error {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	out, err := json.Marshal(v)
	if err != nil {
		return err
	}
	buf.Write(out)
	return nil
}

// flattenContent extracts display text from a tool_result content value,
// which may be a bare string or a list of text blocks.
func flattenContent(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var blocks []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &blocks); err == nil {
		parts := make([]string, 0, len(blocks))
		for _, b := range blocks {
			if b.Text != "" {
				parts = append(parts, b.Text)
			}
		}
		if len(parts) > 0 {
			return strings.Join(parts, "\n")
		}
	}

	return compactJSON(raw)
}
