package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/jingkaihe/evalet/pkg/mcp"
	"github.com/jingkaihe/evalet/pkg/presenter"
)

var mcpCallCmd = &cobra.Command{
	Use:   "call <server.tool>",
	Short: "Call an MCP tool directly from the CLI",
	Long: `Call an MCP tool with JSON arguments.

Tool reference format: server-name.tool-name
Example: freeplay.search_completions

Arguments are provided as JSON with the --args flag. Only the target
server is launched.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		server, tool, err := mcp.SplitTarget(args[0])
		if err != nil {
			return err
		}

		specs, err := resolveServerSpecs(cmd)
		if err != nil {
			return err
		}
		spec, ok := specs[server]
		if !ok {
			return errors.Errorf("unknown mcp server %q", server)
		}

		manager, err := mcp.NewManager(map[string]mcp.ServerSpec{server: spec})
		if err != nil {
			return errors.Wrap(err, "failed to create MCP manager")
		}
		defer closeManager(manager)

		if err := manager.Start(ctx); err != nil {
			return errors.Wrapf(err, "failed to start mcp server %q", server)
		}

		argsJSON, _ := cmd.Flags().GetString("args")
		jsonOutput, _ := cmd.Flags().GetBool("json")
		outputFile, _ := cmd.Flags().GetString("output")

		if !jsonOutput {
			presenter.Info(fmt.Sprintf("Calling %s.%s...", server, tool))
		}

		result, err := manager.CallTool(ctx, server, tool, argsJSON)
		if err != nil {
			return err
		}

		if outputFile != "" {
			if err := os.WriteFile(outputFile, []byte(result), 0o644); err != nil {
				return errors.Wrap(err, "failed to write output file")
			}
			presenter.Success(fmt.Sprintf("Output written to %s", outputFile))
		} else if jsonOutput {
			fmt.Println(result)
		} else {
			presenter.Section("Result")
			fmt.Println(result)
		}

		return nil
	},
}

// closeManager shuts the manager down with a bounded wait so a stuck
// server process never hangs the CLI.
func closeManager(manager *mcp.Manager) {
	cleanupCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		manager.Close(cleanupCtx)
		close(done)
	}()

	select {
	case <-done:
	case <-cleanupCtx.Done():
		presenter.Warning("MCP cleanup timed out, forcing exit")
		os.Exit(0)
	}
}

func init() {
	mcpCallCmd.Flags().String("args", "{}", "JSON arguments for the tool")
	mcpCallCmd.Flags().Bool("json", false, "Print the raw tool result only")
	mcpCallCmd.Flags().String("output", "", "Write the tool result to a file")
}
