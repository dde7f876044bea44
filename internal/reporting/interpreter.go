package reporting

import (
	"fmt"
	"strings"
	"time"

	"github.com/spboyer/arena/internal/models"
)

// InterpretScore returns a plain-language label for a rubric score (1-5).
func InterpretScore(score float64) string {
	switch {
	case score >= 4.5:
		return "Excellent (4.5-5)"
	case score >= 3.5:
		return "Good (3.5-4.5)"
	case score >= 2.5:
		return "Needs Work (2.5-3.5)"
	default:
		return "Poor (<2.5)"
	}
}

// InterpretCoverage explains how many of the generated outputs were scored.
func InterpretCoverage(scored, total int) string {
	if total == 0 {
		return "Nothing was generated"
	}
	pct := float64(scored) * 100 / float64(total)
	switch {
	case scored == total:
		return fmt.Sprintf("All outputs scored (%.0f%%)", pct)
	case pct >= 80:
		return fmt.Sprintf("Most outputs scored (%.0f%%)", pct)
	case pct >= 50:
		return fmt.Sprintf("About half the outputs scored (%.0f%%)", pct)
	default:
		return fmt.Sprintf("Few outputs scored (%.0f%%)", pct)
	}
}

// FormatSummaryReport produces a plain-language report of a run.
func FormatSummaryReport(outcome *models.RunOutcome) string {
	var b strings.Builder

	s := outcome.Summary
	duration := time.Duration(outcome.DurationMs) * time.Millisecond

	b.WriteString("=== Interpretation ===\n\n")
	fmt.Fprintf(&b, "Test Cases:    %d generated, %d fully scored out of %d total\n",
		s.Generated, s.Scored, s.TotalTestCases)
	if s.GenerationFailures+s.EvaluationFailures > 0 {
		fmt.Fprintf(&b, "Failed Calls:  %d generation, %d evaluation\n", s.GenerationFailures, s.EvaluationFailures)
	}
	fmt.Fprintf(&b, "Duration:      %v\n", duration)

	if len(s.Models) > 0 {
		b.WriteString("\nPer-Model Interpretation:\n")
		for _, m := range s.Models {
			fmt.Fprintf(&b, "  %s (%s)\n", m.ModelID, m.ModelName)
			if m.Scored > 0 {
				fmt.Fprintf(&b, "    Score: %.2f - %s\n", m.AverageScore, InterpretScore(m.AverageScore))
			}
			fmt.Fprintf(&b, "    %s\n", InterpretCoverage(m.Scored, m.Outputs))
		}
	}

	var weak []string
	for _, r := range outcome.Results {
		if r.Effectiveness != nil && r.Effectiveness.Level == models.EffectivenessLow {
			weak = append(weak, r.ID)
		}
	}
	if len(weak) > 0 {
		fmt.Fprintf(&b, "\nLow-effectiveness prompts: %s\n", strings.Join(weak, ", "))
	}

	if rec := outcome.Recommendation; rec != nil {
		fmt.Fprintf(&b, "\nRecommended: %s - %s\n", rec.RecommendedModel, rec.Reason)
		if !rec.Significant {
			b.WriteString("  The lead over the runner-up is within noise at 95% confidence.\n")
		}
	}

	return b.String()
}
