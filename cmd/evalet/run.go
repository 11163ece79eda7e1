package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/AlecAivazis/survey/v2"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jingkaihe/evalet/pkg/events"
	"github.com/jingkaihe/evalet/pkg/logger"
	"github.com/jingkaihe/evalet/pkg/plugin"
	"github.com/jingkaihe/evalet/pkg/presenter"
	"github.com/jingkaihe/evalet/pkg/results"
	"github.com/jingkaihe/evalet/pkg/runner"
	"github.com/jingkaihe/evalet/pkg/scenario"
	"github.com/jingkaihe/evalet/pkg/verify"
)

// RunConfig holds configuration for the run command.
type RunConfig struct {
	Mode           string
	PluginDir      string
	TimeoutSeconds int
	KeepWorkspace  bool
	ResultsDir     string
	NoAPI          bool
	JSONOutput     bool
}

var runCmd = &cobra.Command{
	Use:   "run [scenario]",
	Short: "Run an eval scenario against the agent",
	Long: `Run an eval scenario: copy the fixture project into a fresh workspace,
launch the agent with the scenario prompt, stream its output, then score the
workspace against the scenario's success criteria and record the result.

With no scenario argument and an interactive terminal, a picker lists the
discovered scenarios.

Exit codes: 124 when the scenario timed out, 130 when interrupted, 1 on a
harness or configuration error, 0 otherwise (check failures lower the score
but do not fail the run).`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if code := runScenario(cmd, args); code != 0 {
			os.Exit(code)
		}
	},
}

func init() {
	runCmd.Flags().String("mode", results.ModeWithPlugin, "Run mode (baseline or with-plugin)")
	runCmd.Flags().String("plugin-dir", "", "Plugin bundle directory loaded in with-plugin mode")
	runCmd.Flags().Int("timeout", 0, "Override the scenario timeout in seconds")
	runCmd.Flags().Bool("keep-workspace", false, "Keep the run workspace instead of deleting it")
	runCmd.Flags().String("results-dir", "", "Directory for result documents and transcripts")
	runCmd.Flags().Bool("no-api", false, "Skip Freeplay API verification checks")
	runCmd.Flags().Bool("json", false, "Print the result document as JSON")

	rootCmd.AddCommand(withTracing(runCmd))
}

// getRunConfigFromFlags extracts run configuration from flags, falling back
// to viper for the directories.
func getRunConfigFromFlags(cmd *cobra.Command) *RunConfig {
	config := &RunConfig{}
	config.Mode, _ = cmd.Flags().GetString("mode")
	config.PluginDir, _ = cmd.Flags().GetString("plugin-dir")
	config.TimeoutSeconds, _ = cmd.Flags().GetInt("timeout")
	config.KeepWorkspace, _ = cmd.Flags().GetBool("keep-workspace")
	config.ResultsDir, _ = cmd.Flags().GetString("results-dir")
	config.NoAPI, _ = cmd.Flags().GetBool("no-api")
	config.JSONOutput, _ = cmd.Flags().GetBool("json")

	if config.PluginDir == "" {
		config.PluginDir = viper.GetString("plugin_dir")
	}
	if config.ResultsDir == "" {
		config.ResultsDir = viper.GetString("results_dir")
	}
	return config
}

// runScenario drives one run end to end and returns the process exit code.
func runScenario(cmd *cobra.Command, args []string) int {
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	config := getRunConfigFromFlags(cmd)
	if !results.ValidMode(config.Mode) {
		presenter.Error(errors.Errorf("invalid mode %q", config.Mode),
			fmt.Sprintf("use %s or %s", results.ModeBaseline, results.ModeWithPlugin))
		return 1
	}

	scenariosDir := viper.GetString("scenarios_dir")
	name, err := resolveScenarioName(ctx, args, scenariosDir)
	if err != nil {
		presenter.Error(err, "failed to choose a scenario")
		return 1
	}

	scn, err := scenario.Find(scenariosDir, name)
	if err != nil {
		presenter.Error(err, "failed to load scenario")
		return 1
	}
	if config.TimeoutSeconds > 0 {
		scn.TimeoutSeconds = config.TimeoutSeconds
	}

	var pluginDir string
	if config.Mode == results.ModeWithPlugin {
		pluginDir, err = loadPluginBundle(config.PluginDir)
		if err != nil {
			return 1
		}
	}

	if !config.NoAPI && (os.Getenv("FREEPLAY_API_KEY") == "" || os.Getenv("FREEPLAY_PROJECT_ID") == "") {
		presenter.Warning("FREEPLAY_API_KEY or FREEPLAY_PROJECT_ID not set, API verification checks will be skipped")
	}

	store, err := results.NewStore(config.ResultsDir)
	if err != nil {
		presenter.Error(err, "failed to prepare results directory")
		return 1
	}
	index, err := results.OpenIndex(ctx, filepath.Join(store.Dir(), results.IndexFileName))
	if err != nil {
		presenter.Error(err, "failed to open results index")
		return 1
	}
	defer index.Close()

	console := events.NewConsoleHandler(os.Stdout)
	console.SetQuiet(config.JSONOutput)

	presenter.Section(fmt.Sprintf("Running scenario %s (%s)", scn.Name, config.Mode))

	res, err := runner.Run(ctx, runner.Options{
		Scenario:  scn,
		Mode:      config.Mode,
		AgentCmd:  viper.GetString("agent.command"),
		AgentArgs: viper.GetStringSlice("agent.args"),
		PluginDir: pluginDir,
		Store:     store,
		Handler:   console,
	})
	switch {
	case errors.Is(err, runner.ErrInterrupted):
		presenter.Warning("Run interrupted, no result recorded")
		if res != nil {
			cleanupWorkspace(ctx, res.Workspace, config.KeepWorkspace)
		}
		return runner.InterruptExitCode
	case err != nil:
		presenter.Error(err, "agent run failed")
		return 1
	}
	defer cleanupWorkspace(ctx, res.Workspace, config.KeepWorkspace)

	if res.TimedOut {
		presenter.Warning(fmt.Sprintf("Scenario timed out after %s, scoring the partial workspace", scn.Timeout()))
	}

	timing := res.Timing()
	verifier, err := verify.New(verify.Options{
		SkipAPI: config.NoAPI,
		Since:   res.StartTime,
		Timing:  &timing,
	})
	if err != nil {
		presenter.Error(err, "failed to configure verification")
		return 1
	}

	doc, err := verifier.Run(ctx, scn, res.Workspace, config.Mode)
	if err != nil {
		presenter.Error(err, "verification failed")
		return 1
	}
	res.Annotate(doc)

	path, err := store.Save(doc)
	if err != nil {
		presenter.Error(err, "failed to save result document")
		return 1
	}
	if err := index.Upsert(ctx, doc, path); err != nil {
		logger.G(ctx).WithError(err).Warn("failed to index result document")
	}

	if config.JSONOutput {
		out, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			presenter.Error(err, "failed to encode result document")
			return 1
		}
		fmt.Println(string(out))
	} else {
		verify.Render(os.Stdout, doc)
		presenter.Stats(&presenter.RunStats{
			NumTurns:     doc.Stats.NumTurns,
			ToolsUsed:    len(doc.Stats.ToolsUsed),
			InputTokens:  doc.Stats.InputTokens,
			OutputTokens: doc.Stats.OutputTokens,
			TotalCostUSD: doc.Stats.TotalCostUSD,
			Duration:     res.Duration(),
		})
		presenter.Info("Results saved to: " + path)
	}

	if res.TimedOut {
		return runner.TimeoutExitCode
	}
	return 0
}

// loadPluginBundle validates the bundle and returns its absolute path.
func loadPluginBundle(dir string) (string, error) {
	if dir == "" {
		err := errors.New("with-plugin mode requires --plugin-dir")
		presenter.Error(err, "point it at a plugin bundle, or run with --mode baseline")
		return "", err
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		presenter.Error(err, "failed to resolve plugin directory")
		return "", err
	}

	bundle, err := plugin.Load(abs)
	if err != nil {
		presenter.Error(err, "failed to load plugin bundle")
		return "", err
	}

	findings := bundle.Validate()
	for _, finding := range findings {
		if finding.Level == plugin.LevelWarning {
			presenter.Warning(finding.String())
		}
	}
	if plugin.HasErrors(findings) {
		presenter.Error(plugin.Err(findings), "plugin bundle failed validation")
		return "", plugin.Err(findings)
	}

	presenter.Info(fmt.Sprintf("Loaded plugin %s (%d skills, %d commands)",
		bundle.Name(), len(bundle.Skills), len(bundle.Commands)))
	return abs, nil
}

// resolveScenarioName returns the scenario argument, or prompts with a
// picker when running interactively.
func resolveScenarioName(ctx context.Context, args []string, root string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}

	stat, _ := os.Stdin.Stat()
	if (stat.Mode() & os.ModeCharDevice) == 0 {
		return "", errors.New("no scenario given and stdin is not a terminal")
	}

	scenarios, err := scenario.Discover(ctx, root)
	if err != nil {
		return "", err
	}
	if len(scenarios) == 0 {
		return "", errors.Errorf("no scenarios found under %s", root)
	}

	choices := make([]string, 0, len(scenarios))
	byChoice := make(map[string]string, len(scenarios))
	for _, scn := range scenarios {
		choice := scn.Name
		if scn.Description != "" {
			choice = fmt.Sprintf("%s - %s", scn.Name, scn.Description)
		}
		choices = append(choices, choice)
		byChoice[choice] = scn.Name
	}

	var selected string
	prompt := &survey.Select{
		Message: "Choose a scenario to run:",
		Options: choices,
	}
	if err := survey.AskOne(prompt, &selected); err != nil {
		return "", err
	}
	return byChoice[selected], nil
}

func cleanupWorkspace(ctx context.Context, workspace string, keep bool) {
	if keep {
		presenter.Info("Workspace kept at: " + workspace)
		return
	}
	if err := os.RemoveAll(workspace); err != nil {
		logger.G(ctx).WithError(err).WithField("workspace", workspace).Warn("failed to remove workspace")
	}
}
