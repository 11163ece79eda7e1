package events

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
)

const previewLimit = 240

// ConsoleHandler renders events for a human watching the run. Partial deltas
// are skipped; the aggregated assistant and user events carry the same content
// and render once.
type ConsoleHandler struct {
	out   io.Writer
	quiet bool
}

// NewConsoleHandler creates a handler writing to out.
func NewConsoleHandler(out io.Writer) *ConsoleHandler {
	return &ConsoleHandler{out: out}
}

// SetQuiet suppresses everything except the final result.
func (h *ConsoleHandler) SetQuiet(quiet bool) {
	h.quiet = quiet
}

func (h *ConsoleHandler) HandleSystem(info SystemInfo) {
	if h.quiet {
		return
	}
	banner := color.New(color.Faint)
	banner.Fprintf(h.out, "◆ session %s | model: %s | tools: %d\n",
		info.SessionID, info.Model, len(info.Tools))
	if len(info.MCPServers) > 0 {
		banner.Fprintf(h.out, "◆ mcp servers: %v\n", info.MCPServers)
	}
}

func (h *ConsoleHandler) HandleText(text string) {
	if h.quiet || text == "" {
		return
	}
	fmt.Fprintf(h.out, "%s\n\n", text)
}

func (h *ConsoleHandler) HandleThinking(text string) {
	if h.quiet || text == "" {
		return
	}
	color.New(color.Faint).Fprintf(h.out, "💭 %s\n\n", truncate(text, previewLimit))
}

func (h *ConsoleHandler) HandleToolUse(name string, input string) {
	if h.quiet {
		return
	}
	color.New(color.FgCyan).Fprintf(h.out, "🔧 %s: %s\n", name, truncate(input, previewLimit))
}

func (h *ConsoleHandler) HandleToolResult(content string, isError bool) {
	if h.quiet {
		return
	}
	if isError {
		color.New(color.FgRed).Fprintf(h.out, "🔄 error: %s\n\n", truncate(content, previewLimit))
		return
	}
	color.New(color.Faint).Fprintf(h.out, "🔄 %s\n\n", truncate(content, previewLimit))
}

func (h *ConsoleHandler) HandleDelta(string, string) {
	// Aggregated events render the same content; printing deltas would double it.
}

func (h *ConsoleHandler) HandleResult(res Result) {
	if res.IsError {
		color.New(color.FgRed, color.Bold).Fprintf(h.out, "✗ agent finished (%s)\n", res.Subtype)
	} else {
		color.New(color.FgGreen, color.Bold).Fprintf(h.out, "✓ agent finished (%s)\n", res.Subtype)
	}
	if res.Text != "" {
		fmt.Fprintf(h.out, "%s\n", truncate(res.Text, 2000))
	}
	color.New(color.Faint).Fprintf(h.out, "turns: %d | duration: %s | cost: $%.4f\n",
		res.NumTurns, res.Duration().Round(100*time.Millisecond), res.TotalCostUSD)
}

func (h *ConsoleHandler) HandleRaw(line string) {
	if h.quiet {
		return
	}
	fmt.Fprintf(h.out, "%s\n", line)
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
