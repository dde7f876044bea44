package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/spboyer/arena/internal/utils"
	"github.com/spf13/cobra"
)

var version = "dev"

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "arena",
		Short: "Arena - run prompts through several models and score them",
		Long: `Arena sends every test case of a run to a set of generating models,
has a judge model score each output against a rubric and reports how the
models compare.`,
		Version:      version,
		SilenceUsage: true,
	}

	debugLogging := cmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	envFile := cmd.PersistentFlags().String("env-file", ".env", "Load environment variables from this file when it exists")
	cmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		utils.SetDebug(*debugLogging)
		loadEnvFile(*envFile)
	}

	// Add subcommands
	cmd.AddCommand(newRunCommand())
	cmd.AddCommand(newAssignCommand())
	cmd.AddCommand(newValidateCommand())
	cmd.AddCommand(newReportCommand())
	cmd.AddCommand(newSessionCommand())
	cmd.AddCommand(newCacheCommand())

	return cmd
}

// loadEnvFile reads gateway and storage secrets from a dotenv file. Variables
// already set in the environment win.
func loadEnvFile(path string) {
	if path == "" {
		return
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("Failed to load env file", "path", path, "error", err)
	}
}

func execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	rootCmd := newRootCommand()
	return rootCmd.ExecuteContext(ctx)
}
