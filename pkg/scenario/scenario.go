// Package scenario loads and validates evaluation scenarios. A scenario is a
// directory containing a scenario.json (task prompt, success criteria, scoring
// table) and a project/ fixture tree the agent works against.
package scenario

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
)

// DefaultTimeoutSeconds bounds an agent run when scenario.json does not set one.
const DefaultTimeoutSeconds = 180

// DefaultCheckTimeoutSeconds bounds a code_runs command without a timeout.
const DefaultCheckTimeoutSeconds = 60

// Check types understood by the verification engine.
const (
	CheckFileContains = "file_contains"
	CheckCodeRuns     = "code_runs"
	CheckAPIVerify    = "api_verify"
)

// api_verify methods.
const (
	MethodSearchCompletions        = "search_completions"
	MethodCheckPromptExists        = "check_prompt_exists"
	MethodCheckCompletionHasPrompt = "check_completion_has_prompt"
)

// Check is a single success criterion. The populated fields depend on Type.
type Check struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`

	// file_contains
	File     string   `json:"file,omitempty"`
	Patterns []string `json:"patterns,omitempty"`

	// code_runs
	Command        string `json:"command,omitempty"`
	TimeoutSeconds int    `json:"timeout,omitempty"`

	// api_verify
	Method     string `json:"method,omitempty"`
	PromptName string `json:"prompt_name,omitempty"`
}

// Points is one row of the scoring table.
type Points struct {
	Points int `json:"points"`
}

// Scenario is the parsed form of a scenario directory.
type Scenario struct {
	Name            string            `json:"name"`
	Description     string            `json:"description,omitempty"`
	Prompt          string            `json:"prompt"`
	TimeoutSeconds  int               `json:"timeout_seconds,omitempty"`
	SuccessCriteria []Check           `json:"success_criteria"`
	Scoring         map[string]Points `json:"scoring,omitempty"`

	dir string
}

// Load reads and validates the scenario rooted at dir.
func Load(dir string) (*Scenario, error) {
	metaPath := filepath.Join(dir, "scenario.json")
	data, err := os.ReadFile(metaPath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", metaPath)
	}

	var s Scenario
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s", metaPath)
	}
	s.dir = dir

	if err := s.validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid scenario %s", dir)
	}
	return &s, nil
}

// Dir returns the directory the scenario was loaded from.
func (s *Scenario) Dir() string {
	return s.dir
}

// ProjectDir returns the fixture project directory.
func (s *Scenario) ProjectDir() string {
	return filepath.Join(s.dir, "project")
}

// Timeout returns the agent run timeout.
func (s *Scenario) Timeout() time.Duration {
	if s.TimeoutSeconds <= 0 {
		return DefaultTimeoutSeconds * time.Second
	}
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// Timeout returns the command timeout for a code_runs check.
func (c Check) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return DefaultCheckTimeoutSeconds * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (s *Scenario) validate() error {
	if s.Name == "" {
		return errors.New("name is required")
	}
	if base := filepath.Base(s.dir); s.Name != base {
		return errors.Errorf("name %q does not match directory %q", s.Name, base)
	}
	if s.Prompt == "" {
		return errors.New("prompt is required")
	}
	for i, check := range s.SuccessCriteria {
		if err := check.validate(); err != nil {
			return errors.Wrapf(err, "success_criteria[%d]", i)
		}
	}
	info, err := os.Stat(s.ProjectDir())
	if err != nil {
		return errors.Wrap(err, "project directory not found")
	}
	if !info.IsDir() {
		return errors.Errorf("%s is not a directory", s.ProjectDir())
	}
	return nil
}

func (c *Check) validate() error {
	switch c.Type {
	case CheckFileContains:
		if c.File == "" {
			return errors.New("file_contains requires a file")
		}
		if len(c.Patterns) == 0 {
			return errors.New("file_contains requires at least one pattern")
		}
	case CheckCodeRuns:
		if c.Command == "" {
			return errors.New("code_runs requires a command")
		}
	case CheckAPIVerify:
		switch c.Method {
		case MethodSearchCompletions, MethodCheckPromptExists, MethodCheckCompletionHasPrompt:
		case "":
			return errors.New("api_verify requires a method")
		default:
			return errors.Errorf("unknown api_verify method %q", c.Method)
		}
		if c.Method == MethodCheckPromptExists && c.PromptName == "" {
			return errors.New("check_prompt_exists requires a prompt_name")
		}
	case "":
		return errors.New("check type is required")
	default:
		return errors.Errorf("unknown check type %q", c.Type)
	}
	return nil
}
