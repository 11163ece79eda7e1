package freeplay

import (
	"encoding/json"
	"os"
	"strings"
	"time"
)

// TimeLayout is the wall-clock format the API filters and the harness
// environment use.
const TimeLayout = "2006-01-02 15:04:05"

// DefaultWindow is how far back to look when EVAL_START_TIME is not set.
const DefaultWindow = 5 * time.Minute

// timestampFields are checked in order when locating a completion's time.
var timestampFields = []string{"start_time", "created_at", "timestamp", "end_time"}

// EvalWindowStart returns the start of the verification window: the
// EVAL_START_TIME environment value when parseable, otherwise now minus
// DefaultWindow. The runner exports EVAL_START_TIME so verification after a
// long run still covers the whole run.
func EvalWindowStart(now time.Time) time.Time {
	if value := os.Getenv("EVAL_START_TIME"); value != "" {
		if t, err := time.ParseInLocation(TimeLayout, value, time.Local); err == nil {
			return t
		}
	}
	return now.Add(-DefaultWindow)
}

// normalizeTimestamp parses the timestamp variants seen in API responses:
// RFC3339-ish values with Z suffixes, T separators, fractional seconds, and
// positive UTC offsets all reduce to the plain wall-clock layout.
func normalizeTimestamp(value string) (time.Time, bool) {
	v := strings.TrimSpace(value)
	v = strings.TrimSuffix(v, "Z")
	v = strings.Replace(v, "T", " ", 1)
	if i := strings.Index(v, "+"); i >= 0 {
		v = v[:i]
	}
	if i := strings.Index(v, "."); i >= 0 {
		v = v[:i]
	}
	v = strings.TrimSpace(v)

	t, err := time.Parse(TimeLayout, v)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Timestamp extracts the wall-clock time of a completion, checking the
// top-level record first and completion_metadata second.
func Timestamp(c Completion) (time.Time, bool) {
	if t, ok := timestampFrom(c); ok {
		return t, true
	}
	if meta, ok := c["completion_metadata"].(map[string]interface{}); ok {
		return timestampFrom(meta)
	}
	return time.Time{}, false
}

func timestampFrom(m map[string]interface{}) (time.Time, bool) {
	for _, field := range timestampFields {
		if s, ok := m[field].(string); ok && s != "" {
			if t, ok := normalizeTimestamp(s); ok {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

// filterSince keeps completions that verifiably fall inside the window. The
// comparison is wall-clock: API timestamps carry no reliable zone, so both
// sides are compared naively. Completions with no parseable timestamp cannot
// be placed and are dropped.
func filterSince(completions []Completion, since time.Time) []Completion {
	if since.IsZero() {
		return completions
	}
	sinceNaive := naive(since)

	var out []Completion
	for _, completion := range completions {
		ts, ok := Timestamp(completion)
		if ok && !ts.Before(sinceNaive) {
			out = append(out, completion)
		}
	}
	return out
}

// PromptTemplate returns the prompt template a completion is linked to via
// completion_metadata, rendered as a string, or "" when there is none.
func PromptTemplate(c Completion) string {
	meta, ok := c["completion_metadata"].(map[string]interface{})
	if !ok {
		return ""
	}
	value, ok := meta["prompt_template"]
	if !ok || value == nil {
		return ""
	}
	switch v := value.(type) {
	case string:
		return v
	case bool:
		if !v {
			return ""
		}
		return "true"
	case float64:
		if v == 0 {
			return ""
		}
		data, _ := json.Marshal(v)
		return string(data)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		s := string(data)
		if s == "{}" || s == "[]" {
			return ""
		}
		return s
	}
}

// HasPromptTemplate reports whether the completion is linked to a prompt
// template.
func HasPromptTemplate(c Completion) bool {
	return PromptTemplate(c) != ""
}

// naive strips the location from t, keeping its wall-clock reading.
func naive(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.UTC)
}
