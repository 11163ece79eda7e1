package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jingkaihe/evalet/pkg/presenter"
	"github.com/jingkaihe/evalet/pkg/results"
	"github.com/jingkaihe/evalet/pkg/verify"
)

var resultsCmd = &cobra.Command{
	Use:   "results",
	Short: "Browse recorded eval results",
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Help()
	},
}

var resultsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List indexed runs, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		scenarioFilter, _ := cmd.Flags().GetString("scenario")
		modeFilter, _ := cmd.Flags().GetString("mode")
		if modeFilter != "" && !results.ValidMode(modeFilter) {
			return errors.Errorf("invalid mode %q, want %s or %s",
				modeFilter, results.ModeBaseline, results.ModeWithPlugin)
		}

		index, err := openResultsIndex(cmd)
		if err != nil {
			return err
		}
		defer index.Close()

		runs, err := index.List(ctx, results.ListOptions{
			Scenario: scenarioFilter,
			Mode:     modeFilter,
		})
		if err != nil {
			return errors.Wrap(err, "failed to list runs")
		}

		jsonOutput, _ := cmd.Flags().GetBool("json")
		if jsonOutput {
			out, err := json.MarshalIndent(runs, "", "  ")
			if err != nil {
				return errors.Wrap(err, "failed to encode runs")
			}
			fmt.Println(string(out))
			return nil
		}

		if len(runs) == 0 {
			presenter.Info("No runs recorded, try: evalet results index")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "RUN ID\tSCENARIO\tMODE\tSCORE\tDURATION\tTIMESTAMP")
		fmt.Fprintln(w, "------\t--------\t----\t-----\t--------\t---------")
		for _, run := range runs {
			score := fmt.Sprintf("%d/%d (%.1f%%)", run.Total, run.MaxTotal, run.Percentage)
			if run.TimedOut {
				score += " timed out"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%ds\t%s\n",
				run.RunID, run.Scenario, run.Mode, score, run.DurationSeconds, run.Timestamp)
		}
		return w.Flush()
	},
}

var resultsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show the full result document for a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		index, err := openResultsIndex(cmd)
		if err != nil {
			return err
		}
		defer index.Close()

		run, err := index.Get(cmd.Context(), args[0])
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return errors.Errorf("run %s not found, try: evalet results list", args[0])
			}
			return errors.Wrap(err, "failed to look up run")
		}

		doc, err := results.LoadDocument(run.Path)
		if err != nil {
			return errors.Wrap(err, "failed to load result document")
		}

		jsonOutput, _ := cmd.Flags().GetBool("json")
		if jsonOutput {
			out, err := json.MarshalIndent(doc, "", "  ")
			if err != nil {
				return errors.Wrap(err, "failed to encode result document")
			}
			fmt.Println(string(out))
			return nil
		}

		verify.Render(os.Stdout, doc)
		return nil
	},
}

var resultsIndexCmd = &cobra.Command{
	Use:   "index",
	Short: "Rebuild the run index from result documents on disk",
	Long: `Walk the results directory and upsert every result document into
the SQLite index. Use this after copying result files in from another
machine or when the index is out of date.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := viper.GetString("results_dir")

		index, err := openResultsIndex(cmd)
		if err != nil {
			return err
		}
		defer index.Close()

		count, err := index.Reindex(cmd.Context(), dir)
		if err != nil {
			return errors.Wrap(err, "failed to reindex results")
		}

		presenter.Success(fmt.Sprintf("Indexed %d runs from %s", count, dir))
		return nil
	},
}

func openResultsIndex(cmd *cobra.Command) (*results.Index, error) {
	dir := viper.GetString("results_dir")
	index, err := results.OpenIndex(cmd.Context(), filepath.Join(dir, results.IndexFileName))
	if err != nil {
		return nil, errors.Wrap(err, "failed to open results index")
	}
	return index, nil
}

func init() {
	resultsListCmd.Flags().String("scenario", "", "Only show runs of this scenario")
	resultsListCmd.Flags().String("mode", "", "Only show runs in this mode (baseline or with-plugin)")
	resultsListCmd.Flags().Bool("json", false, "Print runs as JSON")

	resultsShowCmd.Flags().Bool("json", false, "Print the result document as JSON")

	resultsCmd.AddCommand(resultsListCmd)
	resultsCmd.AddCommand(resultsShowCmd)
	resultsCmd.AddCommand(resultsIndexCmd)
	rootCmd.AddCommand(resultsCmd)
}
