package reporting

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spboyer/arena/internal/models"
	"github.com/spboyer/arena/internal/statistics"
)

// intervalSeed keeps the reported intervals stable between renders of the same outcome.
const intervalSeed = 0

// RenderMarkdown renders the outcome as a Markdown document with GFM tables.
func RenderMarkdown(outcome *models.RunOutcome) string {
	var b strings.Builder

	title := outcome.Name
	if title == "" {
		title = "Arena run"
	}
	fmt.Fprintf(&b, "# %s\n\n", title)
	fmt.Fprintf(&b, "- **Run:** `%s`\n", outcome.RunID)
	fmt.Fprintf(&b, "- **Strategy:** %s\n", outcome.Strategy)
	if outcome.Engine != "" {
		fmt.Fprintf(&b, "- **Engine:** %s\n", outcome.Engine)
	}
	if !outcome.Timestamp.IsZero() {
		fmt.Fprintf(&b, "- **Started:** %s\n", outcome.Timestamp.Format(time.RFC3339))
	}
	fmt.Fprintf(&b, "- **Duration:** %v\n\n", time.Duration(outcome.DurationMs)*time.Millisecond)

	s := outcome.Summary
	b.WriteString("## Summary\n\n")
	b.WriteString("| Test cases | Generated | Fully scored | Generation failures | Evaluation failures |\n")
	b.WriteString("|---:|---:|---:|---:|---:|\n")
	fmt.Fprintf(&b, "| %d | %d | %d | %d | %d |\n\n",
		s.TotalTestCases, s.Generated, s.Scored, s.GenerationFailures, s.EvaluationFailures)

	if len(s.Models) > 0 {
		intervals := statistics.ModelIntervals(outcome.Results, 0.95, intervalSeed)

		b.WriteString("## Models\n\n")
		b.WriteString("| Model | Name | Outputs | Scored | Average | 95% CI | Min | Max |\n")
		b.WriteString("|---|---|---:|---:|---:|---|---:|---:|\n")
		for _, m := range s.Models {
			ci := "-"
			if iv, ok := intervals[m.ModelID]; ok && iv.NumBootstraps > 0 {
				ci = fmt.Sprintf("%.2f-%.2f", iv.Lower, iv.Upper)
			}
			fmt.Fprintf(&b, "| %s | %s | %d | %d | %.2f | %s | %.2f | %.2f |\n",
				escapeCell(m.ModelID), escapeCell(m.ModelName), m.Outputs, m.Scored,
				m.AverageScore, ci, m.MinScore, m.MaxScore)
		}
		b.WriteString("\n")
	}

	if rec := outcome.Recommendation; rec != nil {
		b.WriteString("## Recommendation\n\n")
		fmt.Fprintf(&b, "**%s** (weighted score %.1f, margin %.1f%%)\n\n", rec.RecommendedModel, rec.HeuristicScore, rec.WinnerMarginPct)
		fmt.Fprintf(&b, "%s\n\n", rec.Reason)
		if !rec.Significant {
			b.WriteString("_The lead over the runner-up is not significant at 95% confidence._\n\n")
		}
	}

	if len(outcome.Failures) > 0 {
		b.WriteString("## Failed calls\n\n")
		b.WriteString("| Phase | Test case | Reason |\n")
		b.WriteString("|---|---|---|\n")
		for _, f := range outcome.Failures {
			fmt.Fprintf(&b, "| %s | %s | %s |\n", f.Phase, escapeCell(f.TestCaseID), escapeCell(f.Reason))
		}
		b.WriteString("\n")
	}

	b.WriteString("## Test cases\n")
	for i := range outcome.Results {
		writeResult(&b, &outcome.Results[i], outcome.Criteria)
	}

	return b.String()
}

func writeResult(b *strings.Builder, r *models.TestCaseWithModelOutputs, criteria []models.Criterion) {
	fmt.Fprintf(b, "\n### %s\n\n", r.ID)
	if r.UseCase != "" || r.ScenarioCategory != "" {
		fmt.Fprintf(b, "_%s_\n\n", strings.Trim(r.UseCase+" / "+r.ScenarioCategory, " /"))
	}
	writeFenced(b, r.Input)
	if r.Context != "" {
		b.WriteString("Context:\n\n")
		writeFenced(b, r.Context)
	}

	if len(r.ModelOutputs) == 0 {
		b.WriteString("No outputs were generated.\n")
		return
	}

	if e := r.Effectiveness; e != nil {
		fmt.Fprintf(b, "Effectiveness: **%s** (average %.2f)\n\n", e.Level, e.AverageScore)
		for _, s := range e.Suggestions {
			fmt.Fprintf(b, "- %s\n", s)
		}
		if len(e.Suggestions) > 0 {
			b.WriteString("\n")
		}
	}

	ids := criterionIDs(criteria, r.ModelOutputs)
	b.WriteString("| Model |")
	for _, id := range ids {
		fmt.Fprintf(b, " %s |", escapeCell(criterionName(criteria, id)))
	}
	b.WriteString(" Average | Feedback |\n|---|")
	for range ids {
		b.WriteString("---:|")
	}
	b.WriteString("---:|---|\n")

	for _, o := range r.ModelOutputs {
		fmt.Fprintf(b, "| %s |", escapeCell(o.ModelID))
		for _, id := range ids {
			if v, ok := o.RubricScores[id]; ok {
				fmt.Fprintf(b, " %.1f |", v)
			} else {
				b.WriteString(" - |")
			}
		}
		avg := "-"
		if o.Scored() {
			avg = fmt.Sprintf("%.2f", o.AverageScore())
		}
		fmt.Fprintf(b, " %s | %s |\n", avg, escapeCell(o.Feedback))
	}

	for _, o := range r.ModelOutputs {
		fmt.Fprintf(b, "\n#### %s\n\n", o.ModelID)
		writeFenced(b, o.Output)
	}
}

// criterionIDs lists the configured criteria first, then any extra ids the
// judge returned, in first-seen order.
func criterionIDs(criteria []models.Criterion, outputs []models.ModelOutput) []string {
	seen := map[string]bool{}
	var ids []string
	for _, c := range criteria {
		if !seen[c.ID] {
			seen[c.ID] = true
			ids = append(ids, c.ID)
		}
	}
	var extra []string
	for _, o := range outputs {
		for id := range o.RubricScores {
			if !seen[id] {
				seen[id] = true
				extra = append(extra, id)
			}
		}
	}
	sort.Strings(extra)
	return append(ids, extra...)
}

func criterionName(criteria []models.Criterion, id string) string {
	for i := range criteria {
		if criteria[i].ID == id {
			return criteria[i].DisplayName()
		}
	}
	return id
}

// escapeCell keeps a value on one table row.
func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	s = strings.ReplaceAll(s, "\r\n", " ")
	return strings.ReplaceAll(s, "\n", " ")
}

// writeFenced writes s in a code fence longer than any backtick run inside it.
func writeFenced(b *strings.Builder, s string) {
	longest, run := 0, 0
	for _, r := range s {
		if r == '`' {
			run++
			longest = max(longest, run)
		} else {
			run = 0
		}
	}
	fence := strings.Repeat("`", max(3, longest+1))
	fmt.Fprintf(b, "%s\n%s\n%s\n\n", fence, strings.TrimRight(s, "\n"), fence)
}
