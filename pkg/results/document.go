// Package results defines the eval result document and its persistence:
// a JSON file per scenario/mode pair plus a SQLite index for listing.
package results

import (
	"fmt"
	"time"
)

// Run modes. Baseline runs the agent bare; with-plugin loads the plugin
// bundle so the two result documents can be compared.
const (
	ModeBaseline   = "baseline"
	ModeWithPlugin = "with-plugin"
)

// Modes lists the valid run modes.
var Modes = []string{ModeBaseline, ModeWithPlugin}

// ValidMode reports whether m is a known run mode.
func ValidMode(m string) bool {
	for _, mode := range Modes {
		if m == mode {
			return true
		}
	}
	return false
}

// CheckResult is one verification check's outcome. Fields beyond the
// common ones are populated per check kind and omitted elsewhere.
type CheckResult struct {
	Check       string `json:"check"`
	Description string `json:"description,omitempty"`
	Passed      bool   `json:"passed"`
	Skipped     bool   `json:"skipped,omitempty"`
	Reason      string `json:"reason,omitempty"`
	Error       string `json:"error,omitempty"`
	Warning     string `json:"warning,omitempty"`

	// file_contains
	File     string   `json:"file,omitempty"`
	Patterns []string `json:"patterns,omitempty"`
	Found    []string `json:"found,omitempty"`
	Missing  []string `json:"missing,omitempty"`

	// code_runs
	Command    string `json:"command,omitempty"`
	Stdout     string `json:"stdout,omitempty"`
	Stderr     string `json:"stderr,omitempty"`
	ReturnCode *int   `json:"return_code,omitempty"`

	// api_verify
	Method          string `json:"method,omitempty"`
	APIReachable    *bool  `json:"api_reachable,omitempty"`
	StatusCode      int    `json:"status_code,omitempty"`
	Since           string `json:"since,omitempty"`
	CompletionCount *int   `json:"completion_count,omitempty"`
	TotalReturned   *int   `json:"total_returned,omitempty"`
	PromptName      string `json:"prompt_name,omitempty"`
	TemplateCount   *int   `json:"template_count,omitempty"`
	HasPrompt       *bool  `json:"has_prompt,omitempty"`
	PromptTemplate  string `json:"prompt_template,omitempty"`
}

// Ok reports pass-or-skip, the criterion for a zero exit.
func (c CheckResult) Ok() bool {
	return c.Passed || c.Skipped
}

// CategoryResult is one scoring category's outcome. Passed is nil when
// the category's check was skipped; a skipped category keeps its
// max_points so an unverifiable category still costs its score.
type CategoryResult struct {
	Passed    *bool  `json:"passed"`
	Skipped   bool   `json:"skipped,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Points    int    `json:"points"`
	MaxPoints int    `json:"max_points"`
}

// Score aggregates category results.
type Score struct {
	Categories map[string]CategoryResult `json:"categories"`
	Total      int                       `json:"total"`
	MaxTotal   int                       `json:"max_total"`
	Percentage float64                   `json:"percentage"`
}

// Timing carries the run window the runner exported. Start and end are
// wall-clock strings in "2006-01-02 15:04:05" form and may be empty when
// verification runs standalone.
type Timing struct {
	StartTime       string `json:"start_time,omitempty"`
	EndTime         string `json:"end_time,omitempty"`
	DurationSeconds int    `json:"duration_seconds"`
}

// Stats summarizes the agent run that produced the workspace.
type Stats struct {
	NumTurns     int      `json:"num_turns"`
	InputTokens  int64    `json:"input_tokens,omitempty"`
	OutputTokens int64    `json:"output_tokens,omitempty"`
	TotalCostUSD float64  `json:"total_cost_usd"`
	ToolsUsed    []string `json:"tools_used,omitempty"`
}

// Document is the full result of one scenario run (or standalone
// verification, in which case the run fields stay zero).
type Document struct {
	RunID         string        `json:"run_id,omitempty"`
	Scenario      string        `json:"scenario"`
	Mode          string        `json:"mode"`
	Timestamp     string        `json:"timestamp"`
	ProjectDir    string        `json:"project_dir"`
	TimedOut      bool          `json:"timed_out,omitempty"`
	AgentExitCode *int          `json:"agent_exit_code,omitempty"`
	Checks        []CheckResult `json:"checks"`
	Score         Score         `json:"score"`
	Timing        Timing        `json:"timing"`
	Stats         *Stats        `json:"stats,omitempty"`
}

// AllPassed reports whether every non-skipped check passed.
func (d *Document) AllPassed() bool {
	for _, check := range d.Checks {
		if !check.Ok() {
			return false
		}
	}
	return true
}

// FileName returns the canonical result file name for this document.
func (d *Document) FileName() string {
	return fmt.Sprintf("%s-%s.json", d.Scenario, d.Mode)
}

// Timestamp renders t in the document timestamp format, UTC RFC 3339.
func Timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
