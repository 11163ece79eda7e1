package plugin

import (
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/jingkaihe/evalet/pkg/plugin/skills"
)

// Level classifies a validation finding.
type Level string

const (
	LevelError   Level = "error"
	LevelWarning Level = "warning"
)

// Finding is one validation result.
type Finding struct {
	Level   Level  `json:"level"`
	Path    string `json:"path,omitempty"`
	Message string `json:"message"`
}

func (f Finding) String() string {
	if f.Path == "" {
		return fmt.Sprintf("%s: %s", f.Level, f.Message)
	}
	return fmt.Sprintf("%s: %s: %s", f.Level, f.Path, f.Message)
}

var versionPattern = regexp.MustCompile(`^v?\d+\.\d+\.\d+`)

// Validate checks the bundle and returns every problem found, load-time
// findings first. Error-level findings make the bundle unusable; warnings
// flag things worth fixing.
func (b *Bundle) Validate() []Finding {
	findings := append([]Finding{}, b.loadFindings...)
	findings = append(findings, b.validateManifest()...)
	findings = append(findings, b.validateSkills()...)
	findings = append(findings, b.validateCommands()...)
	findings = append(findings, b.validateServers()...)

	if len(b.Skills) == 0 && len(b.Commands) == 0 {
		findings = append(findings, Finding{
			Level:   LevelWarning,
			Message: "bundle defines no skills or commands",
		})
	}
	return findings
}

func (b *Bundle) validateManifest() []Finding {
	if b.Manifest == nil {
		return nil
	}

	var findings []Finding
	path := b.rel(b.ManifestPath)

	if b.Manifest.Name == "" {
		findings = append(findings, Finding{Level: LevelError, Path: path, Message: "manifest name is required"})
	}
	switch {
	case b.Manifest.Version == "":
		findings = append(findings, Finding{Level: LevelWarning, Path: path, Message: "manifest has no version"})
	case !versionPattern.MatchString(b.Manifest.Version):
		findings = append(findings, Finding{
			Level:   LevelError,
			Path:    path,
			Message: fmt.Sprintf("invalid version %q, want MAJOR.MINOR.PATCH", b.Manifest.Version),
		})
	}
	if b.Manifest.Description == "" {
		findings = append(findings, Finding{Level: LevelWarning, Path: path, Message: "manifest has no description"})
	}
	return findings
}

func (b *Bundle) validateSkills() []Finding {
	var findings []Finding
	seen := map[string]string{}

	for _, skill := range b.Skills {
		path := b.rel(filepath.Join(skill.Directory, skills.FileName))

		if skill.Name != skill.DirName() {
			findings = append(findings, Finding{
				Level:   LevelError,
				Path:    path,
				Message: fmt.Sprintf("skill name %q does not match directory %q", skill.Name, skill.DirName()),
			})
		}
		if strings.TrimSpace(skill.Body) == "" {
			findings = append(findings, Finding{Level: LevelWarning, Path: path, Message: "skill has no instructions"})
		}
		if prior, ok := seen[skill.Name]; ok {
			findings = append(findings, Finding{
				Level:   LevelError,
				Path:    path,
				Message: fmt.Sprintf("duplicate skill name %q, already defined in %s", skill.Name, prior),
			})
		} else {
			seen[skill.Name] = path
		}
	}
	return findings
}

func (b *Bundle) validateCommands() []Finding {
	var findings []Finding
	for _, command := range b.Commands {
		if strings.TrimSpace(command.Body) == "" {
			findings = append(findings, Finding{
				Level:   LevelWarning,
				Path:    b.rel(command.Path),
				Message: "command has no instructions",
			})
		}
	}
	return findings
}

func (b *Bundle) validateServers() []Finding {
	names := make([]string, 0, len(b.MCPServers))
	for name := range b.MCPServers {
		names = append(names, name)
	}
	sort.Strings(names)

	var findings []Finding
	for _, name := range names {
		if strings.TrimSpace(b.MCPServers[name].Command) == "" {
			findings = append(findings, Finding{
				Level:   LevelError,
				Message: fmt.Sprintf("mcp server %q has no command", name),
			})
		}
	}
	return findings
}

// HasErrors reports whether any finding is error level.
func HasErrors(findings []Finding) bool {
	for _, f := range findings {
		if f.Level == LevelError {
			return true
		}
	}
	return false
}

// Err folds error-level findings into one error, nil when the bundle is
// clean enough to use.
func Err(findings []Finding) error {
	var merged *multierror.Error
	for _, f := range findings {
		if f.Level == LevelError {
			merged = multierror.Append(merged, errors.New(f.String()))
		}
	}
	return merged.ErrorOrNil()
}
