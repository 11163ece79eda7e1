package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jingkaihe/evalet/pkg/presenter"
	"github.com/jingkaihe/evalet/pkg/results"
	"github.com/jingkaihe/evalet/pkg/scenario"
	"github.com/jingkaihe/evalet/pkg/verify"
)

var verifyCmd = &cobra.Command{
	Use:   "verify <scenario>",
	Short: "Score an existing workspace against a scenario's success criteria",
	Long: `Verify runs the scoring step standalone against a workspace directory,
without launching the agent. Use it to re-score a kept workspace or one
produced outside the harness.

The run window for API checks comes from EVAL_START_TIME when set.

Exits 1 when any check failed.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if code := verifyWorkspace(cmd, args); code != 0 {
			os.Exit(code)
		}
	},
}

func init() {
	verifyCmd.Flags().String("project-dir", "", "Workspace directory to verify (defaults to the scenario's fixture)")
	verifyCmd.Flags().String("mode", results.ModeBaseline, "Mode recorded in the result document")
	verifyCmd.Flags().Bool("no-api", false, "Skip Freeplay API verification checks")
	verifyCmd.Flags().String("output", "", "Write the result document to this path")
	verifyCmd.Flags().Bool("json", false, "Print the result document as JSON")

	rootCmd.AddCommand(verifyCmd)
}

func verifyWorkspace(cmd *cobra.Command, args []string) int {
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	projectDir, _ := cmd.Flags().GetString("project-dir")
	mode, _ := cmd.Flags().GetString("mode")
	noAPI, _ := cmd.Flags().GetBool("no-api")
	output, _ := cmd.Flags().GetString("output")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	if !results.ValidMode(mode) {
		presenter.Error(errors.Errorf("invalid mode %q", mode),
			fmt.Sprintf("use %s or %s", results.ModeBaseline, results.ModeWithPlugin))
		return 1
	}

	scn, err := scenario.Find(viper.GetString("scenarios_dir"), args[0])
	if err != nil {
		presenter.Error(err, "failed to load scenario")
		return 1
	}
	if projectDir == "" {
		projectDir = scn.ProjectDir()
	}

	verifier, err := verify.New(verify.Options{SkipAPI: noAPI})
	if err != nil {
		presenter.Error(err, "failed to configure verification")
		return 1
	}

	if !jsonOutput {
		fmt.Printf("Verifying scenario: %s\n", scn.Name)
		fmt.Printf("Project directory: %s\n", projectDir)
		fmt.Printf("Mode: %s\n", mode)
	}

	doc, err := verifier.Run(ctx, scn, projectDir, mode)
	if err != nil {
		presenter.Error(err, "verification failed")
		return 1
	}

	if jsonOutput {
		out, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			presenter.Error(err, "failed to encode result document")
			return 1
		}
		fmt.Println(string(out))
	} else {
		verify.Render(os.Stdout, doc)
	}

	if output != "" {
		if err := results.WriteDocument(doc, output); err != nil {
			presenter.Error(err, "failed to write result document")
			return 1
		}
		presenter.Info("Results saved to: " + output)
	}

	if !doc.AllPassed() {
		return 1
	}
	return 0
}
