// Package plugin loads agent plugin bundles: a directory carrying a
// manifest, skills, slash commands, and optionally MCP server definitions.
// Loading is tolerant: structural problems inside the bundle are collected
// as findings for Validate instead of aborting, so `plugin validate` can
// report everything wrong at once.
package plugin

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/jingkaihe/evalet/pkg/mcp"
	"github.com/jingkaihe/evalet/pkg/plugin/commands"
	"github.com/jingkaihe/evalet/pkg/plugin/skills"
)

const (
	// ManifestDir is the metadata directory at the bundle root.
	ManifestDir = ".claude-plugin"
	// ManifestFileName is the manifest file inside ManifestDir. Older
	// bundles keep it at the bundle root instead.
	ManifestFileName = "plugin.json"
	// SkillsDirName holds one subdirectory per skill.
	SkillsDirName = "skills"
	// CommandsDirName holds one markdown file per slash command.
	CommandsDirName = "commands"
)

// Author identifies who wrote the plugin. Manifests may give it as a bare
// string or as an object with name, email, and url fields.
type Author struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	URL   string `json:"url,omitempty"`
}

func (a *Author) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var name string
		if err := json.Unmarshal(data, &name); err != nil {
			return err
		}
		a.Name = name
		return nil
	}

	type plain Author
	var obj plain
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*a = Author(obj)
	return nil
}

// Manifest is the parsed plugin.json.
type Manifest struct {
	Name        string                    `json:"name"`
	Version     string                    `json:"version,omitempty"`
	Description string                    `json:"description,omitempty"`
	Author      *Author                   `json:"author,omitempty"`
	MCPServers  map[string]mcp.ServerSpec `json:"mcpServers,omitempty"`
}

// Bundle is a loaded plugin directory. MCPServers merges the manifest's
// mcpServers block with the bundle's .mcp.json; the file wins on a clash.
type Bundle struct {
	Dir          string
	ManifestPath string
	Manifest     *Manifest
	Skills       []*skills.Skill
	Commands     []*commands.Command
	MCPServers   map[string]mcp.ServerSpec

	loadFindings []Finding
}

// Load reads the bundle at dir. Only a missing or non-directory path is a
// hard error; everything else surfaces through Validate.
func Load(dir string) (*Bundle, error) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, errors.Errorf("plugin directory not found at %s", dir)
	}

	b := &Bundle{Dir: dir}
	b.loadManifest()
	b.loadSkills()
	b.loadCommands()
	b.loadMCPServers()
	return b, nil
}

// Name returns the manifest name, falling back to the directory base when
// the manifest is absent or unnamed.
func (b *Bundle) Name() string {
	if b.Manifest != nil && b.Manifest.Name != "" {
		return b.Manifest.Name
	}
	return filepath.Base(b.Dir)
}

func (b *Bundle) loadManifest() {
	candidates := []string{
		filepath.Join(b.Dir, ManifestDir, ManifestFileName),
		filepath.Join(b.Dir, ManifestFileName),
	}

	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			b.fail(path, err.Error())
			return
		}

		var manifest Manifest
		if err := json.Unmarshal(data, &manifest); err != nil {
			b.fail(path, fmt.Sprintf("malformed manifest: %v", err))
			return
		}
		b.Manifest = &manifest
		b.ManifestPath = path
		return
	}

	b.fail(candidates[0], "manifest not found")
}

func (b *Bundle) loadSkills() {
	found, problems := skills.Discover(filepath.Join(b.Dir, SkillsDirName))
	b.Skills = found
	for _, p := range problems {
		b.fail(p.Path, p.Err.Error())
	}
}

func (b *Bundle) loadCommands() {
	found, problems := commands.Discover(filepath.Join(b.Dir, CommandsDirName))
	b.Commands = found
	for _, p := range problems {
		b.fail(p.Path, p.Err.Error())
	}
}

func (b *Bundle) loadMCPServers() {
	var fromManifest map[string]mcp.ServerSpec
	if b.Manifest != nil {
		fromManifest = b.Manifest.MCPServers
	}

	var fromFile map[string]mcp.ServerSpec
	path := filepath.Join(b.Dir, mcp.ConfigFileName)
	if data, err := os.ReadFile(path); err == nil {
		parsed, perr := mcp.ParseConfig(data)
		if perr != nil {
			b.fail(path, fmt.Sprintf("malformed %s: %v", mcp.ConfigFileName, perr))
		} else {
			fromFile = parsed
		}
	}

	b.MCPServers = mcp.Merge(fromManifest, fromFile)
}

// fail records a load-time problem as an error finding.
func (b *Bundle) fail(path, message string) {
	b.loadFindings = append(b.loadFindings, Finding{
		Level:   LevelError,
		Path:    b.rel(path),
		Message: message,
	})
}

// rel shortens path relative to the bundle root for display.
func (b *Bundle) rel(path string) string {
	if r, err := filepath.Rel(b.Dir, path); err == nil {
		return r
	}
	return path
}
