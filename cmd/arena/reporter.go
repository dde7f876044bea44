package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/spboyer/arena/internal/models"
)

// formatDuration formats a duration in a consistent, human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return d.Round(time.Millisecond).String()
}

// padRight pads s with spaces to width terminal cells. Model names may hold
// wide characters, so byte-based %-*s padding would misalign the table.
func padRight(s string, width int) string {
	s = runewidth.Truncate(s, width, "…")
	return runewidth.FillRight(s, width)
}

func printSummary(w io.Writer, outcome *models.RunOutcome) {
	fmt.Fprintln(w, "="+strings.Repeat("=", 60))
	fmt.Fprintln(w, " RUN RESULTS")
	fmt.Fprintln(w, "="+strings.Repeat("=", 60))
	fmt.Fprintln(w)

	s := outcome.Summary
	duration := time.Duration(outcome.DurationMs) * time.Millisecond

	fmt.Fprintf(w, "Run:                 %s\n", outcome.RunID)
	fmt.Fprintf(w, "Test Cases:          %d\n", s.TotalTestCases)
	fmt.Fprintf(w, "Outputs Generated:   %d\n", s.Generated)
	fmt.Fprintf(w, "Outputs Scored:      %d\n", s.Scored)
	fmt.Fprintf(w, "Generation Failures: %d\n", s.GenerationFailures)
	fmt.Fprintf(w, "Evaluation Failures: %d\n", s.EvaluationFailures)
	fmt.Fprintf(w, "Duration:            %s\n", formatDuration(duration))
	fmt.Fprintln(w)

	if len(s.Models) > 0 {
		printModelTable(w, s.Models, outcome.Recommendation)
	}

	if len(outcome.Failures) > 0 {
		fmt.Fprintln(w, "Failed calls:")
		for _, f := range outcome.Failures {
			fmt.Fprintf(w, "  ✗ [%s] %s: %s\n", f.Phase, f.TestCaseID, f.Reason)
		}
		fmt.Fprintln(w)
	}
}

func printModelTable(w io.Writer, summaries []models.ModelSummary, rec *models.Recommendation) {
	const nameWidth = 28

	fmt.Fprintf(w, "%s %-8s %-8s %-8s %-8s %s\n", padRight("Model", nameWidth), "Avg", "Min", "Max", "Scored", "")
	fmt.Fprintln(w, "─"+strings.Repeat("─", 70))

	for _, m := range summaries {
		marker := ""
		if rec != nil && rec.RecommendedModel == m.ModelID {
			marker = "★"
		}
		name := m.ModelID
		if m.ModelName != "" && m.ModelName != m.ModelID {
			name = fmt.Sprintf("%s (%s)", m.ModelID, m.ModelName)
		}
		fmt.Fprintf(w, "%s %-8.2f %-8.2f %-8.2f %-8s %s\n",
			padRight(name, nameWidth), m.AverageScore, m.MinScore, m.MaxScore,
			fmt.Sprintf("%d/%d", m.Scored, m.Outputs), marker)
	}
	fmt.Fprintln(w)
}

func printAssignments(w io.Writer, selected []models.SelectedModel) {
	const idWidth = 24

	fmt.Fprintf(w, "%s %s %s %s\n", padRight("Assistant", idWidth), padRight("Type", 18), padRight("Model ID", idWidth), "Provider/Model")
	fmt.Fprintln(w, "─"+strings.Repeat("─", 90))
	for _, s := range selected {
		target := s.Model
		if s.Provider != "" {
			target = s.Provider + "/" + s.Model
		}
		fmt.Fprintf(w, "%s %s %s %s\n", padRight(s.AssistantID, idWidth), padRight(string(s.Type), 18), padRight(s.ModelID, idWidth), target)
	}
}
