// Package presenter renders user-facing CLI output: status lines, section
// headers, and the end-of-run stats block. Log records go through pkg/logger;
// everything a user is meant to read goes through here.
package presenter

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
)

// Styles shared by all presenters. color.NoColor is consulted at print
// time, so flipping the mode later still takes effect.
var (
	errorStyle   = color.New(color.FgRed, color.Bold)
	successStyle = color.New(color.FgGreen, color.Bold)
	warningStyle = color.New(color.FgYellow, color.Bold)
	headerStyle  = color.New(color.Bold)
	statsStyle   = color.New(color.FgCyan, color.Bold)
	faintStyle   = color.New(color.Faint)
)

// RunStats summarizes an agent run for terminal display.
type RunStats struct {
	NumTurns     int
	ToolsUsed    int
	InputTokens  int64
	OutputTokens int64
	TotalCostUSD float64
	Duration     time.Duration
}

// ColorMode controls whether output is colorized.
type ColorMode int

const (
	ColorAuto ColorMode = iota
	ColorAlways
	ColorNever
)

// detectColorMode honors NO_COLOR and EVALET_COLOR before falling back to
// terminal auto-detection.
func detectColorMode() ColorMode {
	if os.Getenv("NO_COLOR") != "" {
		return ColorNever
	}
	switch os.Getenv("EVALET_COLOR") {
	case "always", "force":
		return ColorAlways
	case "never", "off":
		return ColorNever
	}
	return ColorAuto
}

// TerminalPresenter writes messages to a terminal. Quiet mode drops
// everything except errors.
type TerminalPresenter struct {
	output      io.Writer
	errorOutput io.Writer
	colorMode   ColorMode
	quiet       bool
}

// New returns a presenter on stdout/stderr with environment-detected color.
func New() *TerminalPresenter {
	return NewWithOptions(os.Stdout, os.Stderr, detectColorMode())
}

// NewWithOptions returns a presenter with explicit writers and color mode.
func NewWithOptions(output, errorOutput io.Writer, colorMode ColorMode) *TerminalPresenter {
	switch colorMode {
	case ColorAlways:
		color.NoColor = false
	case ColorNever:
		color.NoColor = true
	}
	return &TerminalPresenter{
		output:      output,
		errorOutput: errorOutput,
		colorMode:   colorMode,
	}
}

// Error reports err to stderr, prefixed with context when given. A nil err
// prints nothing, so callers can pass errors through unconditionally.
// Errors ignore quiet mode.
func (p *TerminalPresenter) Error(err error, context string) {
	if err == nil {
		return
	}
	if context != "" {
		errorStyle.Fprintf(p.errorOutput, "[ERROR] %s: %v\n", context, err)
		return
	}
	errorStyle.Fprintf(p.errorOutput, "[ERROR] %v\n", err)
}

func (p *TerminalPresenter) Success(message string) {
	if p.quiet {
		return
	}
	successStyle.Fprintf(p.output, "✓ %s\n", message)
}

func (p *TerminalPresenter) Warning(message string) {
	if p.quiet {
		return
	}
	warningStyle.Fprintf(p.output, "⚠ %s\n", message)
}

func (p *TerminalPresenter) Info(message string) {
	if p.quiet {
		return
	}
	fmt.Fprintf(p.output, "%s\n", message)
}

// Section prints a title underlined to its own width.
func (p *TerminalPresenter) Section(title string) {
	if p.quiet {
		return
	}
	headerStyle.Fprintf(p.output, "%s\n", title)
	headerStyle.Fprintf(p.output, "%s\n", strings.Repeat("-", len(title)))
}

// Stats prints the run summary block. The token line is omitted when the
// agent reported no token usage.
func (p *TerminalPresenter) Stats(stats *RunStats) {
	if p.quiet || stats == nil {
		return
	}

	statsStyle.Fprintf(p.output, "[Run Stats] Turns: %d | Tool calls: %d | Duration: %s\n",
		stats.NumTurns, stats.ToolsUsed, stats.Duration.Round(time.Second))

	if stats.InputTokens > 0 || stats.OutputTokens > 0 {
		statsStyle.Fprintf(p.output, "[Token Stats] Input: %d | Output: %d | Total: %d\n",
			stats.InputTokens, stats.OutputTokens, stats.InputTokens+stats.OutputTokens)
	}

	statsStyle.Fprintf(p.output, "[Cost Stats] Total: $%.4f\n", stats.TotalCostUSD)
}

func (p *TerminalPresenter) Separator() {
	if p.quiet {
		return
	}
	faintStyle.Fprintf(p.output, "%s\n", strings.Repeat("-", 60))
}

func (p *TerminalPresenter) SetQuiet(quiet bool) {
	p.quiet = quiet
}

func (p *TerminalPresenter) IsQuiet() bool {
	return p.quiet
}

var defaultPresenter = New()

// Package-level helpers write through a shared default presenter so commands
// do not have to thread one around.

func Error(err error, context string) {
	defaultPresenter.Error(err, context)
}

func Success(message string) {
	defaultPresenter.Success(message)
}

func Warning(message string) {
	defaultPresenter.Warning(message)
}

func Info(message string) {
	defaultPresenter.Info(message)
}

func Section(title string) {
	defaultPresenter.Section(title)
}

func Stats(stats *RunStats) {
	defaultPresenter.Stats(stats)
}

func Separator() {
	defaultPresenter.Separator()
}

func SetQuiet(quiet bool) {
	defaultPresenter.SetQuiet(quiet)
}

func IsQuiet() bool {
	return defaultPresenter.IsQuiet()
}
