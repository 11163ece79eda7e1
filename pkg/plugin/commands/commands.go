// Package commands loads slash commands from a plugin bundle. A command is
// a markdown file whose YAML frontmatter describes it; the body is the
// instruction text substituted when the user invokes the command.
package commands

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Extension is the command file extension.
const Extension = ".md"

// Command is one parsed slash command. Name comes from the file name.
type Command struct {
	Name         string
	Description  string
	ArgumentHint string
	Path         string
	Body         string
}

// Problem records a command file that could not be loaded.
type Problem struct {
	Path string
	Err  error
}

type frontmatter struct {
	Description  string `yaml:"description"`
	ArgumentHint string `yaml:"argument-hint"`
}

// Discover loads every command file under root, sorted by name. Unloadable
// files are reported as problems rather than aborting the scan. A missing
// root yields nothing.
func Discover(root string) ([]*Command, []Problem) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, nil
	}

	var found []*Command
	var problems []Problem
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), Extension) {
			continue
		}
		path := filepath.Join(root, entry.Name())
		command, err := Load(path)
		if err != nil {
			problems = append(problems, Problem{Path: path, Err: err})
			continue
		}
		found = append(found, command)
	}

	sort.Slice(found, func(i, j int) bool { return found[i].Name < found[j].Name })
	return found, problems
}

// Load parses a single command file.
func Load(path string) (*Command, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read command file")
	}

	rawMeta, body, ok := splitFrontmatter(string(data))
	if !ok {
		return nil, errors.New("missing frontmatter")
	}

	var fm frontmatter
	if err := yaml.Unmarshal([]byte(rawMeta), &fm); err != nil {
		return nil, errors.Wrap(err, "malformed frontmatter")
	}
	if fm.Description == "" {
		return nil, errors.New("command description is required in frontmatter")
	}

	return &Command{
		Name:         strings.TrimSuffix(filepath.Base(path), Extension),
		Description:  fm.Description,
		ArgumentHint: fm.ArgumentHint,
		Path:         path,
		Body:         body,
	}, nil
}

// splitFrontmatter separates a leading --- fenced YAML block from the body.
func splitFrontmatter(content string) (string, string, bool) {
	if !strings.HasPrefix(content, "---") {
		return "", content, false
	}

	lines := strings.Split(content, "\n")
	end := -1
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			end = i
			break
		}
	}
	if end == -1 {
		return "", content, false
	}

	rawMeta := strings.Join(lines[1:end], "\n")
	body := strings.TrimLeft(strings.Join(lines[end+1:], "\n"), "\n")
	return rawMeta, body, true
}
