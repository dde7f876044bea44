package models

import (
	"sort"
	"time"
)

// EffectivenessLevel is the coarse rating of how well a prompt performed.
type EffectivenessLevel string

const (
	EffectivenessHigh   EffectivenessLevel = "high"
	EffectivenessMedium EffectivenessLevel = "medium"
	EffectivenessLow    EffectivenessLevel = "low"
)

// EffectivenessAnalysis summarizes the scores a test case received across all models.
type EffectivenessAnalysis struct {
	Level        EffectivenessLevel `json:"level"`
	AverageScore float64            `json:"average_score"`
	Suggestions  []string           `json:"suggestions,omitempty"`
}

// CallFailure records one generate or evaluate call that did not succeed.
type CallFailure struct {
	Phase      Phase  `json:"phase"`
	Index      int    `json:"index"`
	TestCaseID string `json:"test_case_id"`
	Reason     string `json:"reason"`
}

// RunOutcome is everything a pipeline run produced.
type RunOutcome struct {
	RunID       string                     `json:"run_id"`
	Name        string                     `json:"name,omitempty"`
	Strategy    Strategy                   `json:"strategy"`
	Engine      string                     `json:"engine,omitempty"`
	Timestamp   time.Time                  `json:"timestamp"`
	DurationMs  int64                      `json:"duration_ms"`
	Assignments []SelectedModel            `json:"assignments"`
	Criteria    []Criterion                `json:"criteria,omitempty"`
	Results     []TestCaseWithModelOutputs `json:"results"`
	Failures    []CallFailure              `json:"failures,omitempty"`
	Summary     RunSummary                 `json:"summary"`
	Metadata    map[string]any             `json:"metadata,omitempty"`

	Recommendation *Recommendation `json:"recommendation,omitempty"`
}

// RunSummary holds the aggregate counts of a run.
type RunSummary struct {
	TotalTestCases     int            `json:"total_test_cases"`
	Generated          int            `json:"generated"`
	Scored             int            `json:"scored"`
	GenerationFailures int            `json:"generation_failures"`
	EvaluationFailures int            `json:"evaluation_failures"`
	Models             []ModelSummary `json:"models,omitempty"`
}

// ModelSummary aggregates the scores of a single model across the run.
type ModelSummary struct {
	ModelID      string  `json:"model_id"`
	ModelName    string  `json:"model_name"`
	Outputs      int     `json:"outputs"`
	Scored       int     `json:"scored"`
	AverageScore float64 `json:"average_score"`
	MinScore     float64 `json:"min_score"`
	MaxScore     float64 `json:"max_score"`
}

// FailuresIn returns the failures recorded for the given phase.
func (o *RunOutcome) FailuresIn(phase Phase) []CallFailure {
	var out []CallFailure
	for _, f := range o.Failures {
		if f.Phase == phase {
			out = append(out, f)
		}
	}
	return out
}

// Summarize computes the run summary from the results and failures.
func Summarize(results []TestCaseWithModelOutputs, failures []CallFailure) RunSummary {
	summary := RunSummary{TotalTestCases: len(results)}

	for _, f := range failures {
		switch f.Phase {
		case PhaseGenerating:
			summary.GenerationFailures++
		case PhaseEvaluating:
			summary.EvaluationFailures++
		}
	}

	type accumulator struct {
		name   string
		total  int
		scored int
		sum    float64
		min    float64
		max    float64
	}

	byModel := map[string]*accumulator{}
	var order []string

	for _, r := range results {
		if len(r.ModelOutputs) > 0 {
			summary.Generated++
		}
		if r.FullyScored() {
			summary.Scored++
		}
		for _, o := range r.ModelOutputs {
			acc, ok := byModel[o.ModelID]
			if !ok {
				acc = &accumulator{name: o.ModelName}
				byModel[o.ModelID] = acc
				order = append(order, o.ModelID)
			}
			acc.total++
			if !o.Scored() {
				continue
			}
			avg := o.AverageScore()
			if acc.scored == 0 || avg < acc.min {
				acc.min = avg
			}
			if acc.scored == 0 || avg > acc.max {
				acc.max = avg
			}
			acc.scored++
			acc.sum += avg
		}
	}

	sort.Strings(order)
	for _, id := range order {
		acc := byModel[id]
		ms := ModelSummary{
			ModelID:   id,
			ModelName: acc.name,
			Outputs:   acc.total,
			Scored:    acc.scored,
			MinScore:  acc.min,
			MaxScore:  acc.max,
		}
		if acc.scored > 0 {
			ms.AverageScore = acc.sum / float64(acc.scored)
		}
		summary.Models = append(summary.Models, ms)
	}

	return summary
}
