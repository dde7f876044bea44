package reporting

import (
	"time"

	"github.com/spboyer/arena/internal/models"
)

func newTestOutcome() *models.RunOutcome {
	results := []models.TestCaseWithModelOutputs{
		{
			ID:      "tc-1",
			Input:   "Explain <script>alert(1)</script> in Go",
			UseCase: "docs",
			ModelOutputs: []models.ModelOutput{
				{
					ModelID:      "gpt-4o",
					ModelName:    "gpt-4o-2024",
					Output:       "Use this:\n```go\nfmt.Println()\n```",
					RubricScores: map[string]float64{"clarity": 5, "accuracy": 4},
					Feedback:     "Clear | concise",
				},
				{
					ModelID:      "llama-3.1",
					ModelName:    "llama-3.1-70b",
					Output:       "Print it.",
					RubricScores: map[string]float64{"clarity": 3},
				},
			},
			Effectiveness: &models.EffectivenessAnalysis{
				Level:        models.EffectivenessMedium,
				AverageScore: 4,
				Suggestions:  []string{"Ask for an example"},
			},
		},
		{ID: "tc-2", Input: "Summarize", ModelOutputs: []models.ModelOutput{}},
		{
			ID:    "tc-3",
			Input: "Translate",
			ModelOutputs: []models.ModelOutput{
				{ModelID: "gpt-4o", Output: "Hola", RubricScores: map[string]float64{"clarity": 2}},
				{ModelID: "llama-3.1", Output: "Bonjour"},
			},
			Effectiveness: &models.EffectivenessAnalysis{Level: models.EffectivenessLow, AverageScore: 2},
		},
	}
	failures := []models.CallFailure{
		{Phase: models.PhaseGenerating, Index: 1, TestCaseID: "tc-2", Reason: "timeout"},
		{Phase: models.PhaseEvaluating, Index: 2, TestCaseID: "tc-3", Reason: "judge error"},
	}

	return &models.RunOutcome{
		RunID:      "run-1",
		Name:       "nightly",
		Strategy:   models.StrategyUniqueModel,
		Engine:     "mock",
		Timestamp:  time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC),
		DurationMs: 3000,
		Criteria: []models.Criterion{
			{ID: "clarity", Name: "Clarity"},
			{ID: "accuracy"},
		},
		Results:  results,
		Failures: failures,
		Summary:  models.Summarize(results, failures),
		Recommendation: &models.Recommendation{
			RecommendedModel: "gpt-4o",
			HeuristicScore:   9.3,
			Reason:           "Highest average score: 3.25",
			WinnerMarginPct:  20,
		},
	}
}
