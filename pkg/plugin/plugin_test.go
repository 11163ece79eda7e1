package plugin

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// writeValidBundle lays out a complete bundle: manifest, one skill, one
// command, and an .mcp.json next to the manifest's own server block.
func writeValidBundle(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	writeFile(t, filepath.Join(dir, ManifestDir, ManifestFileName), `{
  "name": "freeplay-logging",
  "version": "1.2.0",
  "description": "Teach the agent to log completions to Freeplay",
  "author": {"name": "Freeplay", "email": "eng@freeplay.ai"},
  "mcpServers": {"freeplay": {"command": "npx", "args": ["-y", "@freeplay/mcp-server@latest"]}}
}`)
	writeFile(t, filepath.Join(dir, SkillsDirName, "logging-setup", "SKILL.md"),
		"---\nname: logging-setup\ndescription: Wire Freeplay logging into a project\n---\n\nUse the Freeplay SDK to record completions.\n")
	writeFile(t, filepath.Join(dir, CommandsDirName, "log-completion.md"),
		"---\ndescription: Log the last completion to Freeplay\n---\n\nFetch the most recent completion and record it.\n")
	writeFile(t, filepath.Join(dir, ".mcp.json"),
		`{"mcpServers": {"tracker": {"command": "python3", "args": ["server.py"]}}}`)

	return dir
}

func TestLoad(t *testing.T) {
	dir := writeValidBundle(t)

	b, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "freeplay-logging", b.Name())
	assert.Equal(t, filepath.Join(dir, ManifestDir, ManifestFileName), b.ManifestPath)
	require.NotNil(t, b.Manifest)
	assert.Equal(t, "1.2.0", b.Manifest.Version)
	require.NotNil(t, b.Manifest.Author)
	assert.Equal(t, "Freeplay", b.Manifest.Author.Name)
	assert.Equal(t, "eng@freeplay.ai", b.Manifest.Author.Email)

	require.Len(t, b.Skills, 1)
	assert.Equal(t, "logging-setup", b.Skills[0].Name)
	require.Len(t, b.Commands, 1)
	assert.Equal(t, "log-completion", b.Commands[0].Name)

	require.Contains(t, b.MCPServers, "freeplay")
	require.Contains(t, b.MCPServers, "tracker")
	assert.Equal(t, "python3", b.MCPServers["tracker"].Command)

	assert.Empty(t, b.Validate())
}

func TestLoadLegacyManifestLocation(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ManifestFileName), `{"name": "old-style", "version": "0.1.0", "description": "d"}`)

	b, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "old-style", b.Name())
	assert.Equal(t, filepath.Join(dir, ManifestFileName), b.ManifestPath)
}

func TestLoadMissingDir(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "plugin directory not found")
}

func TestLoadFileNotDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bundle")
	writeFile(t, path, "not a directory")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "plugin directory not found")
}

func TestLoadMissingManifest(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, SkillsDirName, "demo", "SKILL.md"),
		"---\nname: demo\ndescription: d\n---\n\nbody\n")

	b, err := Load(dir)
	require.NoError(t, err)
	assert.Nil(t, b.Manifest)
	require.Len(t, b.Skills, 1)
	assert.Equal(t, "demo", b.Skills[0].Name)
	assert.Equal(t, filepath.Base(dir), b.Name())

	findings := b.Validate()
	assert.True(t, hasFinding(findings, LevelError, "manifest not found"), "findings: %v", findings)
}

func TestLoadMalformedManifest(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ManifestDir, ManifestFileName), "{not json")

	b, err := Load(dir)
	require.NoError(t, err)
	assert.Nil(t, b.Manifest)

	findings := b.Validate()
	assert.True(t, hasFinding(findings, LevelError, "malformed manifest"), "findings: %v", findings)
}

func TestLoadMCPFileOverridesManifest(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ManifestDir, ManifestFileName),
		`{"name": "p", "mcpServers": {"freeplay": {"command": "npx"}}}`)
	writeFile(t, filepath.Join(dir, ".mcp.json"),
		`{"freeplay": {"command": "node", "args": ["local.js"]}}`)

	b, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "node", b.MCPServers["freeplay"].Command)
	assert.Equal(t, []string{"local.js"}, b.MCPServers["freeplay"].Args)
}

func TestLoadMalformedMCPFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ManifestDir, ManifestFileName), `{"name": "p"}`)
	writeFile(t, filepath.Join(dir, ".mcp.json"), "nope")

	b, err := Load(dir)
	require.NoError(t, err)

	findings := b.Validate()
	assert.True(t, hasFinding(findings, LevelError, "malformed .mcp.json"), "findings: %v", findings)
}

func TestAuthorUnmarshal(t *testing.T) {
	t.Run("bare string", func(t *testing.T) {
		var m Manifest
		require.NoError(t, json.Unmarshal([]byte(`{"name": "p", "author": "Jane Doe"}`), &m))
		require.NotNil(t, m.Author)
		assert.Equal(t, "Jane Doe", m.Author.Name)
		assert.Empty(t, m.Author.Email)
	})

	t.Run("object", func(t *testing.T) {
		var m Manifest
		require.NoError(t, json.Unmarshal([]byte(`{"name": "p", "author": {"name": "Jane", "url": "https://example.com"}}`), &m))
		require.NotNil(t, m.Author)
		assert.Equal(t, "Jane", m.Author.Name)
		assert.Equal(t, "https://example.com", m.Author.URL)
	})

	t.Run("invalid", func(t *testing.T) {
		var m Manifest
		require.Error(t, json.Unmarshal([]byte(`{"author": 42}`), &m))
	})
}
