package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jingkaihe/evalet/pkg/plugin"
	"github.com/jingkaihe/evalet/pkg/presenter"
)

var pluginCmd = &cobra.Command{
	Use:   "plugin",
	Short: "Inspect and validate plugin bundles",
	Long:  `Inspect a plugin bundle directory: its manifest, skills, slash commands, and MCP servers.`,
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Help()
	},
}

var pluginInfoCmd = &cobra.Command{
	Use:   "info [dir]",
	Short: "Summarize a plugin bundle",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := loadBundleArg(args)
		if err != nil {
			return err
		}

		jsonOutput, _ := cmd.Flags().GetBool("json")
		if jsonOutput {
			info := pluginInfo(b)
			out, err := json.MarshalIndent(info, "", "  ")
			if err != nil {
				return errors.Wrap(err, "failed to encode plugin info")
			}
			fmt.Println(string(out))
			return nil
		}

		fmt.Printf("Name:        %s\n", b.Name())
		if b.Manifest != nil {
			if b.Manifest.Version != "" {
				fmt.Printf("Version:     %s\n", b.Manifest.Version)
			}
			if b.Manifest.Description != "" {
				fmt.Printf("Description: %s\n", b.Manifest.Description)
			}
			if b.Manifest.Author != nil && b.Manifest.Author.Name != "" {
				fmt.Printf("Author:      %s\n", b.Manifest.Author.Name)
			}
		}
		fmt.Printf("Location:    %s\n", b.Dir)
		fmt.Printf("Skills:      %d\n", len(b.Skills))
		fmt.Printf("Commands:    %d\n", len(b.Commands))
		if len(b.MCPServers) > 0 {
			names := make([]string, 0, len(b.MCPServers))
			for name := range b.MCPServers {
				names = append(names, name)
			}
			sort.Strings(names)
			fmt.Printf("MCP servers: %s\n", strings.Join(names, ", "))
		}

		return nil
	},
}

var pluginValidateCmd = &cobra.Command{
	Use:   "validate [dir]",
	Short: "Validate a plugin bundle",
	Long: `Validate a plugin bundle and print every finding.

Warnings are informational. Any error-level finding makes the command
exit with status 1.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		b, err := loadBundleArg(args)
		if err != nil {
			presenter.Error(err, "failed to load plugin bundle")
			os.Exit(1)
		}

		findings := b.Validate()
		if len(findings) == 0 {
			presenter.Success(fmt.Sprintf("Plugin %s is valid (%d skills, %d commands)",
				b.Name(), len(b.Skills), len(b.Commands)))
			return
		}

		for _, finding := range findings {
			switch finding.Level {
			case plugin.LevelError:
				presenter.Error(errors.New(finding.String()), "")
			default:
				presenter.Warning(finding.String())
			}
		}

		if plugin.HasErrors(findings) {
			os.Exit(1)
		}
	},
}

var pluginSkillsCmd = &cobra.Command{
	Use:   "skills [dir]",
	Short: "List the skills in a plugin bundle",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := loadBundleArg(args)
		if err != nil {
			return err
		}
		if len(b.Skills) == 0 {
			presenter.Info("No skills in bundle")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tTOOLS\tDESCRIPTION")
		fmt.Fprintln(w, "----\t-----\t-----------")
		for _, skill := range b.Skills {
			tools := "all"
			if len(skill.AllowedTools) > 0 {
				tools = strings.Join(skill.AllowedTools, ", ")
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", skill.Name, tools, skill.Description)
		}
		return w.Flush()
	},
}

var pluginCommandsCmd = &cobra.Command{
	Use:   "commands [dir]",
	Short: "List the slash commands in a plugin bundle",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := loadBundleArg(args)
		if err != nil {
			return err
		}
		if len(b.Commands) == 0 {
			presenter.Info("No commands in bundle")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tARGUMENTS\tDESCRIPTION")
		fmt.Fprintln(w, "----\t---------\t-----------")
		for _, command := range b.Commands {
			fmt.Fprintf(w, "/%s\t%s\t%s\n", command.Name, command.ArgumentHint, command.Description)
		}
		return w.Flush()
	},
}

// loadBundleArg loads the bundle from the positional dir argument, falling
// back to the configured plugin_dir and then the working directory.
func loadBundleArg(args []string) (*plugin.Bundle, error) {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	} else if configured := viper.GetString("plugin_dir"); configured != "" {
		dir = configured
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to resolve %s", dir)
	}
	return plugin.Load(abs)
}

func pluginInfo(b *plugin.Bundle) map[string]interface{} {
	servers := make([]string, 0, len(b.MCPServers))
	for name := range b.MCPServers {
		servers = append(servers, name)
	}
	sort.Strings(servers)

	info := map[string]interface{}{
		"name":        b.Name(),
		"location":    b.Dir,
		"skills":      len(b.Skills),
		"commands":    len(b.Commands),
		"mcp_servers": servers,
	}
	if b.Manifest != nil {
		info["version"] = b.Manifest.Version
		info["description"] = b.Manifest.Description
	}
	return info
}

func init() {
	pluginInfoCmd.Flags().Bool("json", false, "Print plugin info as JSON")

	pluginCmd.AddCommand(pluginInfoCmd)
	pluginCmd.AddCommand(pluginValidateCmd)
	pluginCmd.AddCommand(pluginSkillsCmd)
	pluginCmd.AddCommand(pluginCommandsCmd)

	rootCmd.AddCommand(pluginCmd)
}
