package verify

import (
	"math"

	"github.com/jingkaihe/evalet/pkg/results"
	"github.com/jingkaihe/evalet/pkg/scenario"
)

// Scoring categories.
const (
	CategoryCodeModified        = "code_modified"
	CategoryCodeRuns            = "code_runs"
	CategoryCompletionLogged    = "completion_logged"
	CategoryPromptCreated       = "prompt_created"
	CategoryCompletionHasPrompt = "completion_has_prompt"
)

// categoryFor maps a check result to its scoring category, or "".
func categoryFor(check results.CheckResult) string {
	switch check.Check {
	case scenario.CheckFileContains:
		return CategoryCodeModified
	case scenario.CheckCodeRuns:
		return CategoryCodeRuns
	case scenario.CheckAPIVerify:
		switch check.Method {
		case scenario.MethodSearchCompletions:
			return CategoryCompletionLogged
		case scenario.MethodCheckPromptExists:
			return CategoryPromptCreated
		case scenario.MethodCheckCompletionHasPrompt:
			return CategoryCompletionHasPrompt
		}
	}
	return ""
}

// Score folds check results into the scenario's scoring table. A category
// appears iff the scenario scores it and a check of its kind ran; checks
// are folded in order, so the last check of a kind sets its category. A
// skipped check keeps the category's max_points in max_total: an
// unverifiable category still costs its score.
func Score(scn *scenario.Scenario, checks []results.CheckResult) results.Score {
	categories := make(map[string]results.CategoryResult)

	for _, check := range checks {
		category := categoryFor(check)
		if category == "" {
			continue
		}
		rubric, scored := scn.Scoring[category]
		if !scored {
			continue
		}

		if check.Skipped {
			categories[category] = results.CategoryResult{
				Skipped:   true,
				Reason:    check.Reason,
				MaxPoints: rubric.Points,
			}
			continue
		}

		passed := check.Passed
		earned := 0
		if passed {
			earned = rubric.Points
		}
		categories[category] = results.CategoryResult{
			Passed:    &passed,
			Points:    earned,
			MaxPoints: rubric.Points,
		}
	}

	total, maxTotal := 0, 0
	for _, category := range categories {
		total += category.Points
		maxTotal += category.MaxPoints
	}

	percentage := 0.0
	if maxTotal > 0 {
		percentage = math.Round(float64(total)/float64(maxTotal)*1000) / 10
	}

	return results.Score{
		Categories: categories,
		Total:      total,
		MaxTotal:   maxTotal,
		Percentage: percentage,
	}
}
