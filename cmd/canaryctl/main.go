package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/systmms/canaryctl/cmd/canaryctl/commands"
	"github.com/systmms/canaryctl/internal/config"
	"github.com/systmms/canaryctl/internal/logging"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Global flags
	var (
		configFile string
		noColor    bool
		debug      bool
	)

	// Create config placeholder
	cfg := &config.Config{}

	rootCmd := &cobra.Command{
		Use:   "canaryctl",
		Short: "Canary rollout controller - progressive traffic shifting with automatic rollback",
		Long: `canaryctl shifts traffic to a new service version in weighted steps,
evaluates health metrics at each step, and promotes the canary or rolls
it back automatically when metrics regress.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Initialize logger with parsed flags
			logger := logging.New(debug, noColor)

			// Update config with parsed values
			cfg.Path = configFile
			cfg.Logger = logger
		},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "canaryctl.yaml", "Config file path")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	// Add commands
	rootCmd.AddCommand(
		commands.NewServeCommand(cfg),
		commands.NewStartCommand(cfg),
		commands.NewStatusCommand(cfg),
		commands.NewCancelCommand(cfg),
		commands.NewValidateCommand(cfg),
		commands.NewHistoryCommand(cfg),
	)

	return rootCmd.Execute()
}
