package execution

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/spboyer/arena/internal/models"
)

// BuildGenerationPrompt renders the prompt sent to each generating model.
func BuildGenerationPrompt(tc models.TestCase) string {
	if strings.TrimSpace(tc.Context) == "" {
		return tc.Input
	}

	var sb strings.Builder
	sb.WriteString("Use the following context when answering.\n\n")
	sb.WriteString("<context>\n")
	sb.WriteString(tc.Context)
	sb.WriteString("\n</context>\n\n")
	sb.WriteString(tc.Input)
	return sb.String()
}

// BuildEvaluationPrompt renders the judge prompt for one test case. When
// jsonReply is true the judge is told to answer with a JSON array instead of
// calling the submission tool.
func BuildEvaluationPrompt(tc models.TestCase, outputs []models.ModelOutput, criteria []models.Criterion, jsonReply bool) string {
	var sb strings.Builder

	sb.WriteString("You are an impartial judge. Score every response below against every criterion ")
	fmt.Fprintf(&sb, "on a scale of %d to %d.\n\n", models.MinScore, models.MaxScore)

	sb.WriteString("## Prompt\n\n")
	sb.WriteString(tc.Input)
	sb.WriteString("\n\n")

	if strings.TrimSpace(tc.Context) != "" {
		sb.WriteString("## Context\n\n")
		sb.WriteString(tc.Context)
		sb.WriteString("\n\n")
	}

	sb.WriteString("## Criteria\n\n")
	for _, c := range criteria {
		fmt.Fprintf(&sb, "- %s (id: %s, weight: %g)", c.DisplayName(), c.ID, c.EffectiveWeight())
		if c.Description != "" {
			fmt.Fprintf(&sb, ": %s", c.Description)
		}
		sb.WriteString("\n")

		scores := make([]int, 0, len(c.ScoreDescriptions))
		for s := range c.ScoreDescriptions {
			scores = append(scores, s)
		}
		sort.Ints(scores)
		for _, s := range scores {
			fmt.Fprintf(&sb, "  - %d: %s\n", s, c.ScoreDescriptions[s])
		}
	}
	sb.WriteString("\n## Responses\n\n")

	for _, o := range outputs {
		fmt.Fprintf(&sb, "### model_id: %s\n\n%s\n\n", o.ModelID, o.Output)
	}

	if jsonReply {
		sb.WriteString("Respond with ONLY a JSON array, one object per response, e.g.:\n")
		sb.WriteString(`[{"model_id": "...", "rubric_scores": {"<criterion id>": 4}, "feedback": "...", "suggestions": ["..."]}]`)
		sb.WriteString("\n")
	} else {
		fmt.Fprintf(&sb, "Call the %s tool once per response. Use the criterion ids as the keys of rubric_scores.\n", submitEvaluationToolName)
	}

	return sb.String()
}

// parseEvaluationReply decodes a judge reply that may be wrapped in a markdown code fence.
func parseEvaluationReply(content string) ([]models.Evaluation, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var evals []models.Evaluation
	if err := json.Unmarshal([]byte(content), &evals); err != nil {
		return nil, fmt.Errorf("parsing judge response: %w", err)
	}
	return evals, nil
}

// normalizeEvaluations drops evaluations for unknown models and unknown
// criteria, and clamps scores into the rubric range.
func normalizeEvaluations(evals []models.Evaluation, outputs []models.ModelOutput, criteria []models.Criterion) []models.Evaluation {
	knownModels := map[string]bool{}
	for _, o := range outputs {
		knownModels[o.ModelID] = true
	}
	knownCriteria := map[string]bool{}
	for _, c := range criteria {
		knownCriteria[c.ID] = true
	}

	normalized := make([]models.Evaluation, 0, len(evals))
	for _, e := range evals {
		if !knownModels[e.ModelID] {
			slog.Debug("Judge returned an evaluation for an unknown model", "modelID", e.ModelID)
			continue
		}

		scores := make(map[string]float64, len(e.RubricScores))
		for id, s := range e.RubricScores {
			if len(knownCriteria) > 0 && !knownCriteria[id] {
				slog.Debug("Judge scored an unknown criterion", "criterion", id, "modelID", e.ModelID)
				continue
			}
			scores[id] = clampScore(s)
		}
		e.RubricScores = scores
		normalized = append(normalized, e)
	}
	return normalized
}

func clampScore(s float64) float64 {
	switch {
	case s < models.MinScore:
		return models.MinScore
	case s > models.MaxScore:
		return models.MaxScore
	default:
		return s
	}
}
