package main

import (
	"errors"
	"fmt"

	"github.com/spboyer/arena/internal/models"
	"github.com/spboyer/arena/internal/validation"
	"github.com/spf13/cobra"
)

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <run.yaml>",
		Short: "Check a run file against the schema and load its test cases",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			out := cmd.OutOrStdout()

			schemaErrs, err := validation.ValidateRunFile(path)
			if err != nil {
				return err
			}
			if len(schemaErrs) > 0 {
				fmt.Fprintf(out, "✗ %s has %d problem(s):\n", path, len(schemaErrs))
				for _, e := range schemaErrs {
					fmt.Fprintf(out, "  - %s\n", e)
				}
				return errors.New("run file is invalid")
			}

			spec, err := models.LoadRunSpec(path)
			if err != nil {
				return fmt.Errorf("✗ %w", err)
			}

			testCases, err := loadTestCases(spec)
			if err != nil {
				return fmt.Errorf("✗ %w", err)
			}

			fmt.Fprintf(out, "✓ %s is valid (%d test case(s), %d criteria, %d slot(s))\n",
				path, len(testCases), len(spec.Criteria), len(spec.Pool.Slots))
			return nil
		},
	}
}
