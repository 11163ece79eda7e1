package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jingkaihe/evalet/pkg/dashboard"
	"github.com/jingkaihe/evalet/pkg/logger"
	"github.com/jingkaihe/evalet/pkg/presenter"
)

// ServeConfig holds configuration for the serve command
type ServeConfig struct {
	Host string
	Port int
}

// NewServeConfig creates a new ServeConfig with default values
func NewServeConfig() *ServeConfig {
	return &ServeConfig{
		Host: "127.0.0.1",
		Port: 8720,
	}
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the results dashboard server",
	Long: `Start a local HTTP server exposing recorded runs, scenarios, and
baseline-versus-plugin comparisons as a JSON API.

The server reads the same results directory the run command writes to,
so it can stay up while evals run.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		config := getServeConfigFromFlags(cmd)
		runServeCommand(ctx, config)
	},
}

func init() {
	defaults := NewServeConfig()
	serveCmd.Flags().String("host", defaults.Host, "Host to bind the dashboard server to")
	serveCmd.Flags().Int("port", defaults.Port, "Port to bind the dashboard server to")

	rootCmd.AddCommand(serveCmd)
}

// getServeConfigFromFlags extracts serve configuration from command flags
func getServeConfigFromFlags(cmd *cobra.Command) *ServeConfig {
	config := NewServeConfig()

	if host, err := cmd.Flags().GetString("host"); err == nil {
		config.Host = host
	}
	if port, err := cmd.Flags().GetInt("port"); err == nil {
		config.Port = port
	}

	return config
}

// runServeCommand starts the dashboard server and blocks until interrupted.
func runServeCommand(ctx context.Context, config *ServeConfig) {
	logger.G(ctx).WithFields(map[string]interface{}{
		"host": config.Host,
		"port": config.Port,
	}).Info("Starting dashboard server")

	serverConfig := &dashboard.ServerConfig{
		Host:         config.Host,
		Port:         config.Port,
		ScenariosDir: viper.GetString("scenarios_dir"),
		ResultsDir:   viper.GetString("results_dir"),
	}

	server, err := dashboard.NewServer(ctx, serverConfig)
	if err != nil {
		presenter.Error(err, "failed to create dashboard server")
		os.Exit(1)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			logger.G(ctx).WithError(closeErr).Error("failed to close dashboard server")
		}
	}()

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	presenter.Success(fmt.Sprintf("Dashboard server starting on http://%s:%d", config.Host, config.Port))
	presenter.Info("Press Ctrl+C to stop the server")

	if err := server.Start(ctx); err != nil {
		logger.G(ctx).WithError(err).Error("dashboard server error")
		presenter.Error(err, "dashboard server failed")
		os.Exit(1)
	}

	presenter.Info("Dashboard server stopped")
}
