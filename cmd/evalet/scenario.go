package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jingkaihe/evalet/pkg/presenter"
	"github.com/jingkaihe/evalet/pkg/scenario"
)

var scenarioCmd = &cobra.Command{
	Use:   "scenario",
	Short: "Inspect eval scenarios",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

var scenarioListCmd = &cobra.Command{
	Use:   "list",
	Short: "List scenarios under the scenarios directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		root := viper.GetString("scenarios_dir")
		scenarios, err := scenario.Discover(cmd.Context(), root)
		if err != nil {
			return errors.Wrap(err, "failed to discover scenarios")
		}
		if len(scenarios) == 0 {
			presenter.Info(fmt.Sprintf("No scenarios found under %s", root))
			return nil
		}

		jsonOutput, _ := cmd.Flags().GetBool("json")
		if jsonOutput {
			out, err := json.MarshalIndent(scenarios, "", "  ")
			if err != nil {
				return errors.Wrap(err, "failed to encode scenarios")
			}
			fmt.Println(string(out))
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tTIMEOUT\tCHECKS\tDESCRIPTION")
		fmt.Fprintln(w, "----\t-------\t------\t-----------")
		for _, scn := range scenarios {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", scn.Name, scn.Timeout(), len(scn.SuccessCriteria), scn.Description)
		}
		return w.Flush()
	},
}

var scenarioShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show the full definition of one scenario",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		scn, err := scenario.Find(viper.GetString("scenarios_dir"), args[0])
		if err != nil {
			return errors.Wrap(err, "failed to load scenario")
		}

		jsonOutput, _ := cmd.Flags().GetBool("json")
		if jsonOutput {
			out, err := json.MarshalIndent(scn, "", "  ")
			if err != nil {
				return errors.Wrap(err, "failed to encode scenario")
			}
			fmt.Println(string(out))
			return nil
		}

		fmt.Printf("Name:        %s\n", scn.Name)
		if scn.Description != "" {
			fmt.Printf("Description: %s\n", scn.Description)
		}
		fmt.Printf("Timeout:     %s\n", scn.Timeout())
		fmt.Printf("Project:     %s\n", scn.ProjectDir())
		fmt.Printf("\nPrompt:\n%s\n", scn.Prompt)

		if len(scn.SuccessCriteria) > 0 {
			fmt.Printf("\nChecks:\n")
			for i, check := range scn.SuccessCriteria {
				fmt.Printf("  %d. %s: %s\n", i+1, check.Type, describeCheck(check))
			}
		}

		if len(scn.Scoring) > 0 {
			categories := make([]string, 0, len(scn.Scoring))
			total := 0
			for category, points := range scn.Scoring {
				categories = append(categories, category)
				total += points.Points
			}
			sort.Strings(categories)
			fmt.Printf("\nScoring (%d points total):\n", total)
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			for _, category := range categories {
				fmt.Fprintf(w, "  %s\t%d\n", category, scn.Scoring[category].Points)
			}
			w.Flush()
		}

		return nil
	},
}

// describeCheck renders the salient detail of a check for the show command.
func describeCheck(check scenario.Check) string {
	if check.Description != "" {
		return check.Description
	}
	switch check.Type {
	case scenario.CheckFileContains:
		return check.File
	case scenario.CheckCodeRuns:
		return check.Command
	case scenario.CheckAPIVerify:
		return check.Method
	}
	return ""
}

func init() {
	scenarioListCmd.Flags().Bool("json", false, "Print scenarios as JSON")
	scenarioShowCmd.Flags().Bool("json", false, "Print the scenario as JSON")

	scenarioCmd.AddCommand(scenarioListCmd)
	scenarioCmd.AddCommand(scenarioShowCmd)
	rootCmd.AddCommand(scenarioCmd)
}
