package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/jingkaihe/evalet/pkg/compare"
	"github.com/jingkaihe/evalet/pkg/presenter"
	"github.com/jingkaihe/evalet/pkg/results"
)

var compareCmd = &cobra.Command{
	Use:   "compare <baseline.json> <with-plugin.json>",
	Short: "Compare a baseline result against a with-plugin result",
	Long: `Compare two result documents category by category and report
improvements, regressions, and the overall score delta.

A regression verdict is information, not an error: the command exits 0
whenever both documents load.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		baseline, err := results.LoadDocument(args[0])
		if err != nil {
			return errors.Wrap(err, "failed to load baseline result")
		}
		withPlugin, err := results.LoadDocument(args[1])
		if err != nil {
			return errors.Wrap(err, "failed to load with-plugin result")
		}

		if baseline.Scenario != withPlugin.Scenario {
			presenter.Warning(fmt.Sprintf("comparing results from different scenarios: %q vs %q",
				baseline.Scenario, withPlugin.Scenario))
		}

		report := compare.Compare(baseline, withPlugin)

		jsonOutput, _ := cmd.Flags().GetBool("json")
		if jsonOutput {
			out, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				return errors.Wrap(err, "failed to encode comparison report")
			}
			fmt.Println(string(out))
		} else {
			compare.Render(os.Stdout, report)
		}

		if output, _ := cmd.Flags().GetString("output"); output != "" {
			out, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				return errors.Wrap(err, "failed to encode comparison report")
			}
			if err := os.WriteFile(output, append(out, '\n'), 0o644); err != nil {
				return errors.Wrap(err, "failed to write comparison report")
			}
			presenter.Info("Comparison saved to: " + output)
		}

		return nil
	},
}

func init() {
	compareCmd.Flags().String("output", "", "Write the comparison report JSON to this path")
	compareCmd.Flags().Bool("json", false, "Print the comparison report as JSON")

	rootCmd.AddCommand(compareCmd)
}
