package main

import (
	"encoding/json"
	"fmt"

	"github.com/spboyer/arena/internal/assignment"
	"github.com/spboyer/arena/internal/models"
	"github.com/spf13/cobra"
)

func newAssignCommand() *cobra.Command {
	var (
		strategy string
		seed     uint64
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "assign <run.yaml>",
		Short: "Print the models a run would use, without calling any",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := models.LoadRunSpec(args[0])
			if err != nil {
				return fmt.Errorf("failed to load run file: %w", err)
			}

			st := spec.Config.Strategy
			if cmd.Flags().Changed("strategy") {
				if st, err = models.ParseStrategy(strategy); err != nil {
					return err
				}
			}

			var opts []assignment.Option
			switch {
			case cmd.Flags().Changed("seed"):
				opts = append(opts, assignment.WithSeed(seed))
			case spec.Config.Seed != nil:
				opts = append(opts, assignment.WithSeed(*spec.Config.Seed))
			}

			selected, err := assignment.Assign(spec.Pool, st, opts...)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(selected)
			}

			fmt.Fprintf(out, "Strategy: %s\n\n", st)
			if len(selected) == 0 {
				fmt.Fprintln(out, "No slot has candidate models.")
				return nil
			}
			printAssignments(out, selected)
			return nil
		},
	}

	cmd.Flags().StringVar(&strategy, "strategy", "", "Assignment strategy: random_selection or unique_model")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "Seed for random_selection")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the assignment as JSON")

	return cmd
}
