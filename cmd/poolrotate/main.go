package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/systmms/poolrotate/cmd/poolrotate/commands"
	"github.com/systmms/poolrotate/internal/config"
	dserrors "github.com/systmms/poolrotate/internal/errors"
	"github.com/systmms/poolrotate/internal/logging"
	"github.com/systmms/poolrotate/internal/secure"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	err := run()
	// os.Exit skips deferred calls, so wipe sealed credentials first.
	secure.Purge()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", dserrors.SimplifyError(err))
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
		Use:   "poolrotate",
		Short: "Rotate database pool credentials from mounted secret files",
		Long: `poolrotate watches the username and password files a secrets manager
mounts into the container and hands rotated credentials to every configured
database connection pool without restarting the process.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger := logging.New(debug, noColor)

			cfg.Path = configFile
			cfg.Debug = debug
			cfg.Logger = logger
		},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file path (defaults apply when empty)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(
		commands.NewRunCommand(cfg),
		commands.NewCheckCommand(cfg),
		commands.NewCompletionCommand(cfg),
	)

	return rootCmd.Execute()
}
