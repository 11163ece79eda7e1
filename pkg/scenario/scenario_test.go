package scenario

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScenario(t *testing.T, root, name, meta string) string {
	t.Helper()
	dir := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "project"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "scenario.json"), []byte(meta), 0o644))
	return dir
}

func TestLoad(t *testing.T) {
	root := t.TempDir()
	dir := writeScenario(t, root, "integration-simple", `{
		"name": "integration-simple",
		"description": "Add observability to a small QA app",
		"prompt": "Instrument main.py so completions are recorded",
		"timeout_seconds": 240,
		"success_criteria": [
			{"type": "file_contains", "file": "main.py", "patterns": ["freeplay", "record"]},
			{"type": "code_runs", "command": "python main.py", "timeout": 30},
			{"type": "api_verify", "method": "search_completions"},
			{"type": "api_verify", "method": "check_prompt_exists", "prompt_name": "qa-assistant"}
		],
		"scoring": {
			"code_modified": {"points": 30},
			"code_runs": {"points": 20},
			"completion_logged": {"points": 30},
			"prompt_created": {"points": 10},
			"completion_has_prompt": {"points": 10}
		}
	}`)

	s, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "integration-simple", s.Name)
	assert.Equal(t, "Instrument main.py so completions are recorded", s.Prompt)
	assert.Equal(t, 240*time.Second, s.Timeout())
	assert.Equal(t, dir, s.Dir())
	assert.Equal(t, filepath.Join(dir, "project"), s.ProjectDir())

	require.Len(t, s.SuccessCriteria, 4)
	assert.Equal(t, CheckFileContains, s.SuccessCriteria[0].Type)
	assert.Equal(t, []string{"freeplay", "record"}, s.SuccessCriteria[0].Patterns)
	assert.Equal(t, 30, s.SuccessCriteria[1].TimeoutSeconds)
	assert.Equal(t, MethodCheckPromptExists, s.SuccessCriteria[3].Method)
	assert.Equal(t, "qa-assistant", s.SuccessCriteria[3].PromptName)

	require.Contains(t, s.Scoring, "code_modified")
	assert.Equal(t, 30, s.Scoring["code_modified"].Points)
}

func TestLoadDefaultTimeout(t *testing.T) {
	root := t.TempDir()
	dir := writeScenario(t, root, "basic", `{
		"name": "basic",
		"prompt": "do the thing",
		"success_criteria": []
	}`)

	s, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, DefaultTimeoutSeconds*time.Second, s.Timeout())
}

func TestLoadValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		meta    string
		wantErr string
	}{
		{
			name:    "malformed json",
			meta:    `{not json`,
			wantErr: "failed to parse",
		},
		{
			name:    "name mismatch",
			meta:    `{"name": "other", "prompt": "p", "success_criteria": []}`,
			wantErr: "does not match directory",
		},
		{
			name:    "missing prompt",
			meta:    `{"name": "bad", "success_criteria": []}`,
			wantErr: "prompt is required",
		},
		{
			name:    "unknown check type",
			meta:    `{"name": "bad", "prompt": "p", "success_criteria": [{"type": "file_glob"}]}`,
			wantErr: "unknown check type",
		},
		{
			name:    "file_contains without patterns",
			meta:    `{"name": "bad", "prompt": "p", "success_criteria": [{"type": "file_contains", "file": "main.py"}]}`,
			wantErr: "at least one pattern",
		},
		{
			name:    "code_runs without command",
			meta:    `{"name": "bad", "prompt": "p", "success_criteria": [{"type": "code_runs"}]}`,
			wantErr: "requires a command",
		},
		{
			name:    "api_verify without method",
			meta:    `{"name": "bad", "prompt": "p", "success_criteria": [{"type": "api_verify"}]}`,
			wantErr: "requires a method",
		},
		{
			name:    "api_verify unknown method",
			meta:    `{"name": "bad", "prompt": "p", "success_criteria": [{"type": "api_verify", "method": "count_traces"}]}`,
			wantErr: "unknown api_verify method",
		},
		{
			name:    "check_prompt_exists without prompt_name",
			meta:    `{"name": "bad", "prompt": "p", "success_criteria": [{"type": "api_verify", "method": "check_prompt_exists"}]}`,
			wantErr: "requires a prompt_name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			dir := writeScenario(t, root, "bad", tt.meta)

			_, err := Load(dir)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadMissingMetadata(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "empty")
	require.NoError(t, os.MkdirAll(dir, 0o755))

	_, err := Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read")
}

func TestLoadMissingProjectDir(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "noproj")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "scenario.json"),
		[]byte(`{"name": "noproj", "prompt": "p", "success_criteria": []}`), 0o644))

	_, err := Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "project directory not found")
}

func TestDiscover(t *testing.T) {
	root := t.TempDir()
	writeScenario(t, root, "banana", `{"name": "banana", "prompt": "p", "success_criteria": []}`)
	writeScenario(t, root, "apple", `{"name": "apple", "prompt": "p", "success_criteria": []}`)
	writeScenario(t, root, "cherry", `{"name": "cherry", "prompt": "p", "success_criteria": []}`)

	// A directory without scenario.json and a loose file are both ignored.
	require.NoError(t, os.MkdirAll(filepath.Join(root, "not-a-scenario"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "README.md"), []byte("hi"), 0o644))

	// A broken scenario is skipped, not fatal.
	writeScenario(t, root, "broken", `{"name": "mismatched", "prompt": "p", "success_criteria": []}`)

	scenarios, err := Discover(context.Background(), root)
	require.NoError(t, err)

	names := make([]string, len(scenarios))
	for i, s := range scenarios {
		names[i] = s.Name
	}
	assert.Equal(t, []string{"apple", "banana", "cherry"}, names)
}

func TestDiscoverMissingRoot(t *testing.T) {
	_, err := Discover(context.Background(), filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
}

func TestFind(t *testing.T) {
	root := t.TempDir()
	writeScenario(t, root, "target", `{"name": "target", "prompt": "p", "success_criteria": []}`)

	s, err := Find(root, "target")
	require.NoError(t, err)
	assert.Equal(t, "target", s.Name)

	_, err = Find(root, "missing")
	require.Error(t, err)
}

func TestScenarioRoundTripsJSON(t *testing.T) {
	s := Scenario{
		Name:   "rt",
		Prompt: "p",
		SuccessCriteria: []Check{
			{Type: CheckFileContains, File: "a.py", Patterns: []string{"x"}},
		},
		Scoring: map[string]Points{"code_modified": {Points: 10}},
	}

	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "command", "unset check fields stay omitted")

	var back Scenario
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, s.SuccessCriteria, back.SuccessCriteria)
}
