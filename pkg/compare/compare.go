// Package compare diffs a baseline result document against a with-plugin
// one, classifying each scoring category as an improvement, a regression,
// or unchanged.
package compare

import (
	"sort"

	"github.com/jingkaihe/evalet/pkg/results"
)

// Unchanged category statuses.
const (
	StatusPassed  = "passed"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// Verdicts derived from the total-points delta.
const (
	VerdictImproved  = "IMPROVED"
	VerdictReduced   = "REDUCED"
	VerdictUnchanged = "UNCHANGED"
)

// SideSummary is one run's identity and score inside a report.
type SideSummary struct {
	Mode      string        `json:"mode"`
	Timestamp string        `json:"timestamp"`
	Score     results.Score `json:"score"`
}

// CategoryDelta is a category whose outcome changed between the runs.
type CategoryDelta struct {
	Category   string `json:"category"`
	Baseline   int    `json:"baseline"`
	WithPlugin int    `json:"with_plugin"`
	Delta      int    `json:"delta"`
}

// UnchangedCategory is a category with the same outcome in both runs.
type UnchangedCategory struct {
	Category string `json:"category"`
	Status   string `json:"status"`
	Reason   string `json:"reason,omitempty"`
	Points   int    `json:"points"`
}

// Summary is the overall score comparison.
type Summary struct {
	BaselineTotal      int     `json:"baseline_total"`
	PluginTotal        int     `json:"plugin_total"`
	Delta              int     `json:"delta"`
	BaselinePercentage float64 `json:"baseline_percentage"`
	PluginPercentage   float64 `json:"plugin_percentage"`
	PercentageDelta    float64 `json:"percentage_delta"`
}

// Report is the full comparison document.
type Report struct {
	Scenario     string              `json:"scenario"`
	Baseline     SideSummary         `json:"baseline"`
	WithPlugin   SideSummary         `json:"with_plugin"`
	Improvements []CategoryDelta     `json:"improvements"`
	Regressions  []CategoryDelta     `json:"regressions"`
	Unchanged    []UnchangedCategory `json:"unchanged"`
	Summary      Summary             `json:"summary"`
}

// Verdict classifies the report by its points delta.
func (r *Report) Verdict() string {
	switch {
	case r.Summary.Delta > 0:
		return VerdictImproved
	case r.Summary.Delta < 0:
		return VerdictReduced
	default:
		return VerdictUnchanged
	}
}

// Compare diffs the two result documents category by category. A category
// missing on one side counts as failed with zero points there; a skipped
// category counts as not passed, so baseline-skipped to plugin-passed is
// an improvement and the reverse is a regression.
func Compare(baseline, plugin *results.Document) *Report {
	report := &Report{
		Scenario:   baseline.Scenario,
		Baseline:   SideSummary{Mode: baseline.Mode, Timestamp: baseline.Timestamp, Score: baseline.Score},
		WithPlugin: SideSummary{Mode: plugin.Mode, Timestamp: plugin.Timestamp, Score: plugin.Score},
	}

	for _, category := range unionCategories(baseline.Score.Categories, plugin.Score.Categories) {
		base := baseline.Score.Categories[category]
		with := plugin.Score.Categories[category]

		switch {
		case base.Skipped && with.Skipped:
			report.Unchanged = append(report.Unchanged, UnchangedCategory{
				Category: category,
				Status:   StatusSkipped,
				Reason:   with.Reason,
			})
		case !passed(base) && passed(with):
			report.Improvements = append(report.Improvements, delta(category, base, with))
		case passed(base) && !passed(with):
			report.Regressions = append(report.Regressions, delta(category, base, with))
		default:
			status := StatusFailed
			if passed(base) {
				status = StatusPassed
			}
			report.Unchanged = append(report.Unchanged, UnchangedCategory{
				Category: category,
				Status:   status,
				Points:   base.Points,
			})
		}
	}

	report.Summary = Summary{
		BaselineTotal:      baseline.Score.Total,
		PluginTotal:        plugin.Score.Total,
		Delta:              plugin.Score.Total - baseline.Score.Total,
		BaselinePercentage: baseline.Score.Percentage,
		PluginPercentage:   plugin.Score.Percentage,
		PercentageDelta:    plugin.Score.Percentage - baseline.Score.Percentage,
	}

	return report
}

func passed(category results.CategoryResult) bool {
	return category.Passed != nil && *category.Passed
}

func delta(category string, base, with results.CategoryResult) CategoryDelta {
	return CategoryDelta{
		Category:   category,
		Baseline:   base.Points,
		WithPlugin: with.Points,
		Delta:      with.Points - base.Points,
	}
}

func unionCategories(a, b map[string]results.CategoryResult) []string {
	seen := make(map[string]bool, len(a)+len(b))
	for category := range a {
		seen[category] = true
	}
	for category := range b {
		seen[category] = true
	}

	categories := make([]string, 0, len(seen))
	for category := range seen {
		categories = append(categories, category)
	}
	sort.Strings(categories)
	return categories
}
