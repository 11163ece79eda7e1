package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/pkg/errors"

	"github.com/jingkaihe/evalet/pkg/logger"
	"github.com/jingkaihe/evalet/pkg/version"
)

// ToolInfo identifies one tool on one server.
type ToolInfo struct {
	Server      string `json:"server"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Manager holds stdio clients for a set of named MCP servers.
type Manager struct {
	clients map[string]*client.Client
}

// NewManager builds clients for every enabled spec. Servers are not started
// until Start is called.
func NewManager(specs map[string]ServerSpec) (*Manager, error) {
	clients := make(map[string]*client.Client, len(specs))
	for name, spec := range specs {
		if !spec.IsEnabled() {
			continue
		}
		if spec.Command == "" {
			return nil, errors.Errorf("mcp server %q has no command", name)
		}

		env := make([]string, 0, len(spec.Env))
		for key, value := range spec.Env {
			env = append(env, fmt.Sprintf("%s=%s", key, value))
		}
		sort.Strings(env)

		tp := transport.NewStdio(spec.Command, env, spec.Args...)
		clients[name] = client.NewClient(tp)
	}
	return newManager(clients), nil
}

func newManager(clients map[string]*client.Client) *Manager {
	return &Manager{clients: clients}
}

// Servers returns the managed server names, sorted.
func (m *Manager) Servers() []string {
	names := make([]string, 0, len(m.clients))
	for name := range m.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Start launches and initializes every server.
func (m *Manager) Start(ctx context.Context) error {
	for _, name := range m.Servers() {
		cli := m.clients[name]
		logger.G(ctx).WithField("server", name).Debug("starting mcp server")

		if err := cli.Start(ctx); err != nil {
			return errors.Wrapf(err, "failed to start mcp server %q", name)
		}

		initReq := mcp.InitializeRequest{}
		initReq.Params.ClientInfo = mcp.Implementation{
			Name:    "evalet",
			Version: version.Version,
		}
		initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
		if _, err := cli.Initialize(ctx, initReq); err != nil {
			return errors.Wrapf(err, "failed to initialize mcp server %q", name)
		}
	}
	return nil
}

// ListTools returns every tool across all servers, grouped by server name.
func (m *Manager) ListTools(ctx context.Context) ([]ToolInfo, error) {
	var tools []ToolInfo
	for _, name := range m.Servers() {
		result, err := m.clients[name].ListTools(ctx, mcp.ListToolsRequest{})
		if err != nil {
			return nil, errors.Wrapf(err, "failed to list tools on %q", name)
		}
		for _, tool := range result.Tools {
			tools = append(tools, ToolInfo{
				Server:      name,
				Name:        tool.GetName(),
				Description: tool.Description,
			})
		}
	}
	return tools, nil
}

// CallTool invokes a tool with JSON-encoded arguments and returns the text
// content of the result. A tool-level error result comes back as an error
// with the content attached.
func (m *Manager) CallTool(ctx context.Context, server, tool, argsJSON string) (string, error) {
	cli, ok := m.clients[server]
	if !ok {
		return "", errors.Errorf("unknown mcp server %q", server)
	}

	var args map[string]any
	if strings.TrimSpace(argsJSON) != "" {
		if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
			return "", errors.Wrap(err, "invalid tool arguments")
		}
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = tool
	req.Params.Arguments = args

	result, err := cli.CallTool(ctx, req)
	if err != nil {
		return "", errors.Wrapf(err, "failed to call %s.%s", server, tool)
	}

	content := flattenContent(result.Content)
	if result.IsError {
		return content, errors.Errorf("tool %s.%s failed: %s", server, tool, content)
	}
	return content, nil
}

// Close shuts every client down. Failures are logged, not returned, so one
// stuck server never blocks the rest.
func (m *Manager) Close(ctx context.Context) {
	for _, name := range m.Servers() {
		if err := m.clients[name].Close(); err != nil {
			logger.G(ctx).WithField("server", name).WithError(err).Warn("failed to close mcp server")
		}
	}
}

func flattenContent(content []mcp.Content) string {
	var parts []string
	for _, c := range content {
		if text, ok := c.(mcp.TextContent); ok {
			parts = append(parts, text.Text)
			continue
		}
		parts = append(parts, fmt.Sprintf("%v", c))
	}
	return strings.Join(parts, "\n")
}

// SplitTarget splits a "server.tool" reference at the first dot. Tool names
// may themselves contain dots.
func SplitTarget(target string) (string, string, error) {
	server, tool, found := strings.Cut(target, ".")
	if !found || server == "" || tool == "" {
		return "", "", errors.Errorf("invalid tool reference %q, want server.tool", target)
	}
	return server, tool, nil
}
