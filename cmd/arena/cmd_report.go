package main

import (
	"fmt"
	"os"

	"github.com/spboyer/arena/internal/models"
	"github.com/spboyer/arena/internal/recommend"
	"github.com/spboyer/arena/internal/reporting"
	"github.com/spboyer/arena/internal/storage"
	"github.com/spf13/cobra"
)

func newReportCommand() *cobra.Command {
	var (
		reportFormat string
		from         string
		outFile      string
	)

	cmd := &cobra.Command{
		Use:   "report <outcome.json>",
		Short: "Render a saved run outcome",
		Long: `Render a run outcome saved by "arena run".

With --from the argument is the object name inside that storage target,
ex: arena report --from s3://results/nightly arena-<run-id>.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := reporting.ParseFormat(reportFormat)
			if err != nil {
				return err
			}

			var outcome *models.RunOutcome
			if from != "" {
				store, err := storage.Open(cmd.Context(), from)
				if err != nil {
					return fmt.Errorf("opening storage target: %w", err)
				}
				outcome, err = storage.LoadOutcome(cmd.Context(), store, args[0])
				if err != nil {
					return err
				}
			} else {
				outcome, err = storage.ReadOutcomeFile(args[0])
				if err != nil {
					return err
				}
			}

			if outcome.Recommendation == nil {
				outcome.Recommendation = recommend.NewEngine().Recommend(outcome)
			}

			if outFile == "" {
				return writeReport(cmd.OutOrStdout(), outcome, f)
			}

			data, err := reporting.Render(outcome, f)
			if err != nil {
				return err
			}
			if err := os.WriteFile(outFile, data, 0644); err != nil {
				return fmt.Errorf("writing report: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Report written to: %s\n", outFile)
			return nil
		},
	}

	cmd.Flags().StringVar(&reportFormat, "format", "default", "Report format: default, json, markdown, html or junit")
	cmd.Flags().StringVar(&from, "from", "", "Load the outcome from a storage target instead of a local file")
	cmd.Flags().StringVarP(&outFile, "output", "o", "", "Write the report to this file")

	return cmd
}
