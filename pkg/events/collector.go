package events

import (
	"sort"

	"github.com/jingkaihe/evalet/pkg/presenter"
)

// ToolUse records one tool invocation seen in the stream.
type ToolUse struct {
	Name  string
	Input string
}

// Collector accumulates stream events for scoring and reporting.
type Collector struct {
	System      *SystemInfo
	Texts       []string
	ToolUses    []ToolUse
	ToolResults int
	ToolErrors  int
	Deltas      int
	RawLines    []string
	FinalResult *Result
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{}
}

func (c *Collector) HandleSystem(info SystemInfo) {
	c.System = &info
}

func (c *Collector) HandleText(text string) {
	c.Texts = append(c.Texts, text)
}

func (c *Collector) HandleThinking(string) {}

func (c *Collector) HandleToolUse(name string, input string) {
	c.ToolUses = append(c.ToolUses, ToolUse{Name: name, Input: input})
}

func (c *Collector) HandleToolResult(_ string, isError bool) {
	c.ToolResults++
	if isError {
		c.ToolErrors++
	}
}

func (c *Collector) HandleDelta(string, string) {
	c.Deltas++
}

func (c *Collector) HandleResult(res Result) {
	c.FinalResult = &res
}

func (c *Collector) HandleRaw(line string) {
	c.RawLines = append(c.RawLines, line)
}

// FinalText returns the agent's terminal summary, falling back to the last
// assistant text when no result event arrived.
func (c *Collector) FinalText() string {
	if c.FinalResult != nil && c.FinalResult.Text != "" {
		return c.FinalResult.Text
	}
	if len(c.Texts) > 0 {
		return c.Texts[len(c.Texts)-1]
	}
	return ""
}

// ToolNames returns the distinct tool names used, sorted.
func (c *Collector) ToolNames() []string {
	seen := map[string]struct{}{}
	for _, use := range c.ToolUses {
		seen[use.Name] = struct{}{}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RunStats converts the collected events into presenter statistics.
func (c *Collector) RunStats() *presenter.RunStats {
	stats := &presenter.RunStats{
		ToolsUsed: len(c.ToolUses),
	}
	if res := c.FinalResult; res != nil {
		stats.NumTurns = res.NumTurns
		stats.InputTokens = res.Usage.InputTokens
		stats.OutputTokens = res.Usage.OutputTokens
		stats.TotalCostUSD = res.TotalCostUSD
		stats.Duration = res.Duration()
	}
	return stats
}

// Multi fans each event out to every handler in order.
func Multi(handlers ...Handler) Handler {
	return multiHandler(handlers)
}

type multiHandler []Handler

func (m multiHandler) HandleSystem(info SystemInfo) {
	for _, h := range m {
		h.HandleSystem(info)
	}
}

func (m multiHandler) HandleText(text string) {
	for _, h := range m {
		h.HandleText(text)
	}
}

func (m multiHandler) HandleThinking(text string) {
	for _, h := range m {
		h.HandleThinking(text)
	}
}

func (m multiHandler) HandleToolUse(name string, input string) {
	for _, h := range m {
		h.HandleToolUse(name, input)
	}
}

func (m multiHandler) HandleToolResult(content string, isError bool) {
	for _, h := range m {
		h.HandleToolResult(content, isError)
	}
}

func (m multiHandler) HandleDelta(kind string, text string) {
	for _, h := range m {
		h.HandleDelta(kind, text)
	}
}

func (m multiHandler) HandleResult(res Result) {
	for _, h := range m {
		h.HandleResult(res)
	}
}

func (m multiHandler) HandleRaw(line string) {
	for _, h := range m {
		h.HandleRaw(line)
	}
}
