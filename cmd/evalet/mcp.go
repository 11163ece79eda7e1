package main

import (
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jingkaihe/evalet/pkg/mcp"
	"github.com/jingkaihe/evalet/pkg/plugin"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Interact with MCP (Model Context Protocol) servers",
	Long: `Commands for working with the MCP servers a plugin bundle ships.

Server specs are merged from, lowest precedence first: the mcp.servers
config key, the plugin bundle (manifest mcpServers plus .mcp.json), and
an explicit --config file. The bundled freeplay server is added when
nothing else defines it.`,
}

var mcpEnvCmd = &cobra.Command{
	Use:   "env",
	Short: "Print the resolved MCP server launch specs",
	Long: `Print the merged server map the other mcp commands would launch.

The output is valid .mcp.json content.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		specs, err := resolveServerSpecs(cmd)
		if err != nil {
			return err
		}

		out, err := json.MarshalIndent(map[string]any{"mcpServers": specs}, "", "  ")
		if err != nil {
			return errors.Wrap(err, "failed to encode server specs")
		}
		fmt.Println(string(out))
		return nil
	},
}

// resolveServerSpecs merges MCP server specs from config, plugin bundle,
// and an explicit --config file, then fills in the bundled default.
func resolveServerSpecs(cmd *cobra.Command) (map[string]mcp.ServerSpec, error) {
	var base map[string]mcp.ServerSpec
	if err := viper.UnmarshalKey("mcp.servers", &base); err != nil {
		return nil, errors.Wrap(err, "invalid mcp.servers configuration")
	}

	var bundleSpecs map[string]mcp.ServerSpec
	pluginDir, _ := cmd.Flags().GetString("plugin-dir")
	if pluginDir == "" {
		pluginDir = viper.GetString("plugin_dir")
	}
	if pluginDir != "" {
		b, err := plugin.Load(pluginDir)
		if err != nil {
			return nil, errors.Wrap(err, "failed to load plugin bundle")
		}
		bundleSpecs = b.MCPServers
	}

	var fileSpecs map[string]mcp.ServerSpec
	if configPath, _ := cmd.Flags().GetString("config"); configPath != "" {
		specs, err := mcp.LoadConfig(configPath)
		if err != nil {
			return nil, err
		}
		fileSpecs = specs
	}

	return mcp.WithDefaults(mcp.Merge(base, bundleSpecs, fileSpecs)), nil
}

func init() {
	mcpCmd.PersistentFlags().String("config", "", "Path to an .mcp.json style config file")
	mcpCmd.PersistentFlags().String("plugin-dir", "", "Plugin bundle whose MCP servers to use")

	mcpCmd.AddCommand(mcpEnvCmd)
	mcpCmd.AddCommand(mcpListCmd)
	mcpCmd.AddCommand(mcpCallCmd)
	rootCmd.AddCommand(mcpCmd)
}
