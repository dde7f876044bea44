package main

import (
	"fmt"
	"path/filepath"

	"github.com/spboyer/arena/internal/cache"
	"github.com/spboyer/arena/internal/projectconfig"
	"github.com/spf13/cobra"
)

var clearCacheDir string

func newCacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the generation cache",
		Long: `Manage the generation cache.

With --cache, run stores the outputs of every generate call so the same test
cases can be re-scored with a different rubric without asking the models
again. Entries are keyed by engine, generating models and test case.`,
	}

	cmd.AddCommand(newCacheClearCommand())

	return cmd
}

func newCacheClearCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every cached generation",
		Args:  cobra.NoArgs,
		RunE:  cacheClearE,
	}

	cmd.Flags().StringVar(&clearCacheDir, "cache-dir", "", "Cache directory to clear (default from .arena.yaml)")

	return cmd
}

func cacheClearE(cmd *cobra.Command, args []string) error {
	dir := clearCacheDir
	if dir == "" {
		pc, err := projectconfig.Load(".")
		if err != nil {
			return err
		}
		dir = pc.Cache.Dir
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("resolving cache directory: %w", err)
	}

	c := cache.New(absDir)
	if err := c.Clear(); err != nil {
		return fmt.Errorf("clearing cache: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Cache cleared: %s\n", c.Dir())
	return nil
}
