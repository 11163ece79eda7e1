// Package skills loads agent skills from a plugin bundle. A skill is a
// directory holding a SKILL.md file whose YAML frontmatter names and
// describes it; the markdown body is the instruction text the agent reads.
package skills

import (
	"bytes"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/yuin/goldmark"
	meta "github.com/yuin/goldmark-meta"
	"github.com/yuin/goldmark/parser"
)

// FileName is the skill definition file inside a skill directory.
const FileName = "SKILL.md"

// Skill is one parsed skill.
type Skill struct {
	Name         string
	Description  string
	AllowedTools []string
	Directory    string
	Body         string
}

// DirName returns the base name of the skill's directory, which the skill
// name is expected to match.
func (s *Skill) DirName() string {
	return filepath.Base(s.Directory)
}

// Problem records a skill directory that could not be loaded.
type Problem struct {
	Path string
	Err  error
}

// Discover loads every skill directory under root, sorted by name.
// Unloadable directories are reported as problems rather than aborting the
// scan. A missing root yields nothing.
func Discover(root string) ([]*Skill, []Problem) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, nil
	}

	var found []*Skill
	var problems []Problem
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(root, entry.Name())
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err != nil {
			problems = append(problems, Problem{Path: dir, Err: errors.New("missing " + FileName)})
			continue
		}

		skill, err := Load(path)
		if err != nil {
			problems = append(problems, Problem{Path: path, Err: err})
			continue
		}
		found = append(found, skill)
	}

	sort.Slice(found, func(i, j int) bool { return found[i].Name < found[j].Name })
	return found, problems
}

// Load parses a single SKILL.md file.
func Load(path string) (*Skill, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read skill file")
	}

	md := goldmark.New(
		goldmark.WithExtensions(meta.Meta),
	)

	var buf bytes.Buffer
	pctx := parser.NewContext()
	if err := md.Convert(content, &buf, parser.WithContext(pctx)); err != nil {
		return nil, errors.Wrap(err, "failed to parse markdown")
	}

	metaData := meta.Get(pctx)
	if metaData == nil {
		return nil, errors.New("missing frontmatter")
	}

	name, _ := metaData["name"].(string)
	description, _ := metaData["description"].(string)

	if name == "" {
		return nil, errors.New("skill name is required in frontmatter")
	}
	if description == "" {
		return nil, errors.New("skill description is required in frontmatter")
	}

	return &Skill{
		Name:         name,
		Description:  description,
		AllowedTools: stringList(metaData["allowed-tools"]),
		Directory:    filepath.Dir(path),
		Body:         extractBody(string(content)),
	}, nil
}

// stringList accepts either a YAML list or a comma-separated string.
func stringList(value interface{}) []string {
	switch v := value.(type) {
	case string:
		var tools []string
		for _, part := range strings.Split(v, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				tools = append(tools, trimmed)
			}
		}
		return tools
	case []interface{}:
		var tools []string
		for _, item := range v {
			if s, ok := item.(string); ok {
				tools = append(tools, s)
			}
		}
		return tools
	}
	return nil
}

// extractBody removes YAML frontmatter and returns the body.
func extractBody(content string) string {
	if !strings.HasPrefix(content, "---") {
		return content
	}

	lines := strings.Split(content, "\n")
	frontmatterEnd := -1
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			frontmatterEnd = i
			break
		}
	}
	if frontmatterEnd == -1 {
		return content
	}

	return strings.TrimLeft(strings.Join(lines[frontmatterEnd+1:], "\n"), "\n")
}
