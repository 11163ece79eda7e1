package verify

import (
	"fmt"
	"io"
	"sort"

	"github.com/fatih/color"

	"github.com/jingkaihe/evalet/pkg/results"
)

// Render writes the per-check outcomes and the score table for a human.
func Render(w io.Writer, doc *results.Document) {
	fmt.Fprintln(w, "=== Check Results ===")
	for _, check := range doc.Checks {
		label := check.Description
		if label == "" {
			label = check.Check
		}
		fmt.Fprintf(w, "%s %s\n", statusGlyph(check.Passed, check.Skipped), label)
		if check.Error != "" {
			fmt.Fprintf(w, "  Error: %s\n", check.Error)
		}
		if check.Warning != "" {
			fmt.Fprintf(w, "  Warning: %s\n", check.Warning)
		}
		if len(check.Missing) > 0 {
			fmt.Fprintf(w, "  Missing patterns: %v\n", check.Missing)
		}
		if check.Skipped {
			fmt.Fprintf(w, "  Skipped: %s\n", check.Reason)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== Score ===")
	for _, category := range sortedCategories(doc.Score.Categories) {
		data := doc.Score.Categories[category]
		passed := data.Passed != nil && *data.Passed
		fmt.Fprintf(w, "%s %s: %d/%d\n", statusGlyph(passed, data.Skipped), category, data.Points, data.MaxPoints)
	}

	fmt.Fprintf(w, "\nTotal: %d/%d (%s%%)\n", doc.Score.Total, doc.Score.MaxTotal, formatPercentage(doc.Score))

	if seconds := doc.Timing.DurationSeconds; seconds > 0 {
		minutes, rest := seconds/60, seconds%60
		if minutes > 0 {
			fmt.Fprintf(w, "Duration: %dm %ds\n", minutes, rest)
		} else {
			fmt.Fprintf(w, "Duration: %ds\n", rest)
		}
	}
}

func statusGlyph(passed, skipped bool) string {
	switch {
	case passed:
		return color.GreenString("✓")
	case skipped:
		return color.YellowString("⊘")
	default:
		return color.RedString("✗")
	}
}

func formatPercentage(score results.Score) string {
	if score.MaxTotal == 0 {
		return "0"
	}
	return fmt.Sprintf("%.1f", score.Percentage)
}

func sortedCategories(categories map[string]results.CategoryResult) []string {
	keys := make([]string, 0, len(categories))
	for key := range categories {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
