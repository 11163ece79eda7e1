package compare

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

// Render writes the human-readable comparison report.
func Render(w io.Writer, report *Report) {
	banner := strings.Repeat("=", 60)
	summary := report.Summary

	fmt.Fprintln(w, banner)
	fmt.Fprintf(w, "EVALUATION COMPARISON: %s\n", report.Scenario)
	fmt.Fprintln(w, banner)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "OVERALL SCORES")
	fmt.Fprintln(w, strings.Repeat("-", 40))
	fmt.Fprintf(w, "%-25s %10s %10s %10s\n", "Metric", "Baseline", "Plugin", "Delta")
	fmt.Fprintf(w, "%-25s %10d %10d %10s\n", "Total Points",
		summary.BaselineTotal, summary.PluginTotal, fmt.Sprintf("%+d", summary.Delta))
	fmt.Fprintf(w, "%-25s %9.1f%% %9.1f%% %9s%%\n", "Percentage",
		summary.BaselinePercentage, summary.PluginPercentage, fmt.Sprintf("%+.1f", summary.PercentageDelta))

	if len(report.Improvements) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "%s IMPROVEMENTS (Plugin passed where baseline failed)\n", color.GreenString("✓"))
		for _, d := range report.Improvements {
			fmt.Fprintf(w, "  • %s: %d → %d (%+d)\n", d.Category, d.Baseline, d.WithPlugin, d.Delta)
		}
	}

	if len(report.Regressions) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "%s REGRESSIONS (Baseline passed where plugin failed)\n", color.RedString("✗"))
		for _, d := range report.Regressions {
			fmt.Fprintf(w, "  • %s: %d → %d (%+d)\n", d.Category, d.Baseline, d.WithPlugin, d.Delta)
		}
	}

	if len(report.Unchanged) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "= UNCHANGED")
		for _, entry := range report.Unchanged {
			if entry.Status == StatusSkipped {
				reason := entry.Reason
				if reason == "" {
					reason = "unknown reason"
				}
				fmt.Fprintf(w, "  %s %s: skipped (%s)\n", color.YellowString("⊘"), entry.Category, reason)
				continue
			}
			glyph := color.RedString("✗")
			if entry.Status == StatusPassed {
				glyph = color.GreenString("✓")
			}
			fmt.Fprintf(w, "  %s %s: %s\n", glyph, entry.Category, entry.Status)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, banner)
	switch {
	case summary.Delta > 0:
		fmt.Fprintf(w, "VERDICT: Plugin IMPROVED score by %d points (%+.1f%%)\n", summary.Delta, summary.PercentageDelta)
	case summary.Delta < 0:
		fmt.Fprintf(w, "VERDICT: Plugin REDUCED score by %d points (%.1f%%)\n", -summary.Delta, summary.PercentageDelta)
	default:
		fmt.Fprintln(w, "VERDICT: No change in score")
	}
	fmt.Fprintln(w, banner)
}
