package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jingkaihe/evalet/pkg/logger"
	"github.com/jingkaihe/evalet/pkg/results"
	"github.com/jingkaihe/evalet/pkg/runner"
)

func init() {
	// Values in .env become part of the process environment, so the agent
	// subprocess and the Freeplay client both see them.
	_ = godotenv.Load()

	viper.SetEnvPrefix("EVALET")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetConfigName("evalet-config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("$HOME/.evalet")
	viper.AddConfigPath(".")
	_ = viper.ReadInConfig()

	viper.SetDefault("scenarios_dir", "evals/scenarios")
	viper.SetDefault("results_dir", results.DefaultDir)
	viper.SetDefault("agent.command", runner.DefaultAgentCommand)
	viper.SetDefault("agent.args", runner.DefaultAgentArgs())
}

var rootCmd = &cobra.Command{
	Use:   "evalet",
	Short: "Eval harness for AI coding agent plugins",
	Long: `Evalet runs coding-agent eval scenarios, scores the outcome against
declarative success criteria, and compares baseline runs against runs with a
plugin bundle loaded.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if level := viper.GetString("log_level"); level != "" {
			if err := logger.SetLogLevel(level); err != nil {
				fmt.Fprintf(os.Stderr, "invalid log level %q: %s\n", level, err)
			}
		}
		if format := viper.GetString("log_format"); format != "" {
			logger.SetLogFormat(format)
		}
	},
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func main() {
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "fmt", "Log format (fmt, json)")
	rootCmd.PersistentFlags().String("scenarios-dir", "", "Directory containing eval scenarios")

	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log_format", rootCmd.PersistentFlags().Lookup("log-format"))
	viper.BindPFlag("scenarios_dir", rootCmd.PersistentFlags().Lookup("scenarios-dir"))

	ctx := context.Background()
	shutdown, err := initTracing(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize tracing: %s\n", err)
	} else {
		defer shutdown(ctx)
	}

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
