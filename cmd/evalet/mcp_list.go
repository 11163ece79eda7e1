package main

import (
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/jingkaihe/evalet/pkg/mcp"
	"github.com/jingkaihe/evalet/pkg/presenter"
)

var mcpListCmd = &cobra.Command{
	Use:   "list",
	Short: "List available MCP tools",
	Long: `Launch the configured MCP servers and list the tools they expose.

Use --server to restrict the listing to one server and --json for
machine-readable output.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		specs, err := resolveServerSpecs(cmd)
		if err != nil {
			return err
		}

		serverFilter, _ := cmd.Flags().GetString("server")
		if serverFilter != "" {
			spec, ok := specs[serverFilter]
			if !ok {
				return errors.Errorf("unknown mcp server %q", serverFilter)
			}
			specs = map[string]mcp.ServerSpec{serverFilter: spec}
		}

		manager, err := mcp.NewManager(specs)
		if err != nil {
			return errors.Wrap(err, "failed to create MCP manager")
		}
		defer closeManager(manager)

		if err := manager.Start(ctx); err != nil {
			return errors.Wrap(err, "failed to start MCP servers")
		}

		tools, err := manager.ListTools(ctx)
		if err != nil {
			return errors.Wrap(err, "failed to list MCP tools")
		}

		verbose, _ := cmd.Flags().GetBool("verbose")
		jsonOutput, _ := cmd.Flags().GetBool("json")

		if jsonOutput {
			output, err := json.MarshalIndent(tools, "", "  ")
			if err != nil {
				return errors.Wrap(err, "failed to marshal JSON output")
			}
			fmt.Println(string(output))
			return nil
		}

		presenter.Section(fmt.Sprintf("Available MCP Tools (%d)", len(tools)))

		byServer := make(map[string][]mcp.ToolInfo)
		for _, tool := range tools {
			byServer[tool.Server] = append(byServer[tool.Server], tool)
		}

		for _, server := range manager.Servers() {
			serverTools := byServer[server]
			if len(serverTools) == 0 {
				continue
			}
			fmt.Printf("\n%s (%d tools):\n", server, len(serverTools))
			for _, tool := range serverTools {
				fmt.Printf("  • %s.%s\n", server, tool.Name)
				if verbose && tool.Description != "" {
					fmt.Printf("    %s\n", tool.Description)
				}
			}
		}

		return nil
	},
}

func init() {
	mcpListCmd.Flags().String("server", "", "Filter by server name")
	mcpListCmd.Flags().BoolP("verbose", "v", false, "Show tool descriptions")
	mcpListCmd.Flags().Bool("json", false, "Output as JSON")
}
