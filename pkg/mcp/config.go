// Package mcp launches Model Context Protocol servers as stdio subprocesses
// and exposes their tools to the CLI. Server specs come from an explicit
// config file, a plugin bundle's .mcp.json, or application config; the
// bundled Freeplay server is always available as a fallback.
package mcp

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
)

// ConfigFileName is the MCP server config file inside a plugin bundle.
const ConfigFileName = ".mcp.json"

// DefaultServerName is the bundled Freeplay server.
const DefaultServerName = "freeplay"

// DevPathEnv points at a local server checkout. When set, the Freeplay
// server is launched with node from that path instead of the published
// package.
const DevPathEnv = "FREEPLAY_MCP_DEV_PATH"

const freeplayPackage = "@freeplay/mcp-server@latest"

// ServerSpec describes how to launch one stdio MCP server. Env entries are
// added on top of the inherited environment, so configured keys win.
type ServerSpec struct {
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	Enabled *bool             `json:"enabled,omitempty"`
}

// IsEnabled reports whether the server should be launched. Specs without an
// explicit enabled flag are on.
func (s ServerSpec) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// FreeplaySpec returns the launch spec for the bundled Freeplay server,
// honoring the DevPathEnv toggle.
func FreeplaySpec() ServerSpec {
	if path := os.Getenv(DevPathEnv); path != "" {
		return ServerSpec{Command: "node", Args: []string{path}}
	}
	return ServerSpec{Command: "npx", Args: []string{"-y", freeplayPackage}}
}

// LoadConfig reads server specs from an .mcp.json style file: either
// {"mcpServers": {name: spec}} or a bare name-to-spec map.
func LoadConfig(path string) (map[string]ServerSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", path)
	}
	specs, err := ParseConfig(data)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s", path)
	}
	return specs, nil
}

// ParseConfig decodes .mcp.json content.
func ParseConfig(data []byte) (map[string]ServerSpec, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, err
	}

	if raw, ok := probe["mcpServers"]; ok {
		var specs map[string]ServerSpec
		if err := json.Unmarshal(raw, &specs); err != nil {
			return nil, err
		}
		return specs, nil
	}

	var specs map[string]ServerSpec
	if err := json.Unmarshal(data, &specs); err != nil {
		return nil, err
	}
	return specs, nil
}

// Merge overlays spec maps left to right; later maps win on a name clash.
func Merge(maps ...map[string]ServerSpec) map[string]ServerSpec {
	merged := map[string]ServerSpec{}
	for _, m := range maps {
		for name, spec := range m {
			merged[name] = spec
		}
	}
	return merged
}

// WithDefaults ensures the bundled Freeplay server is present unless the
// given specs already define it.
func WithDefaults(specs map[string]ServerSpec) map[string]ServerSpec {
	merged := Merge(specs)
	if _, ok := merged[DefaultServerName]; !ok {
		merged[DefaultServerName] = FreeplaySpec()
	}
	return merged
}
