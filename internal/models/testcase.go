package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// TestCase is a single prompt to fan out to the generating models.
type TestCase struct {
	ID               string `yaml:"id" json:"id"`
	Input            string `yaml:"input" json:"input"`
	Context          string `yaml:"context,omitempty" json:"context,omitempty"`
	ScenarioCategory string `yaml:"scenario_category,omitempty" json:"scenario_category,omitempty"`
	UseCase          string `yaml:"use_case,omitempty" json:"use_case,omitempty"`
}

// Validate checks the fields required before a test case can be sent to an engine.
func (tc *TestCase) Validate() error {
	if strings.TrimSpace(tc.ID) == "" {
		return errors.New("missing id")
	}
	if strings.TrimSpace(tc.Input) == "" {
		return fmt.Errorf("test case %q has an empty input", tc.ID)
	}
	return nil
}

// MinScore and MaxScore bound every rubric score.
const (
	MinScore = 1
	MaxScore = 5
)

// Criterion is one rubric dimension, scored on a 1-5 scale.
type Criterion struct {
	ID          string  `yaml:"id" json:"id"`
	Name        string  `yaml:"name" json:"name"`
	Description string  `yaml:"description,omitempty" json:"description,omitempty"`
	Weight      float64 `yaml:"weight,omitempty" json:"weight,omitempty"`

	// ScoreDescriptions explains what each score (1..5) means for this criterion.
	ScoreDescriptions map[int]string `yaml:"score_descriptions,omitempty" json:"score_descriptions,omitempty"`
}

// Validate checks the criterion id, weight and score description keys.
func (c *Criterion) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return errors.New("criterion is missing an id")
	}
	if c.Weight < 0 {
		return fmt.Errorf("criterion %q has a negative weight (%g)", c.ID, c.Weight)
	}
	for score := range c.ScoreDescriptions {
		if score < MinScore || score > MaxScore {
			return fmt.Errorf("criterion %q describes score %d, scores must be between %d and %d", c.ID, score, MinScore, MaxScore)
		}
	}
	return nil
}

// EffectiveWeight returns the weight, defaulting to 1.0 when unset.
func (c *Criterion) EffectiveWeight() float64 {
	if c.Weight <= 0 {
		return 1.0
	}
	return c.Weight
}

// DisplayName falls back to the id when the criterion has no name.
func (c *Criterion) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	return c.ID
}

// ModelOutput is the text one model produced for a test case, along with
// whatever the judge said about it.
type ModelOutput struct {
	ModelID      string             `json:"model_id"`
	ModelName    string             `json:"model_name"`
	Output       string             `json:"output"`
	RubricScores map[string]float64 `json:"rubric_scores"`
	Feedback     string             `json:"feedback,omitempty"`
	Suggestions  []string           `json:"suggestions,omitempty"`
	Timestamp    time.Time          `json:"timestamp"`
}

// Scored reports whether the judge attached at least one rubric score.
func (o *ModelOutput) Scored() bool {
	return len(o.RubricScores) > 0
}

// AverageScore is the unweighted mean of the rubric scores, or 0 when unscored.
func (o *ModelOutput) AverageScore() float64 {
	if len(o.RubricScores) == 0 {
		return 0
	}
	total := 0.0
	for _, s := range o.RubricScores {
		total += s
	}
	return total / float64(len(o.RubricScores))
}

// Evaluation is the judge's verdict on a single model output.
type Evaluation struct {
	ModelID      string             `json:"model_id" mapstructure:"model_id"`
	RubricScores map[string]float64 `json:"rubric_scores" mapstructure:"rubric_scores"`
	Feedback     string             `json:"feedback" mapstructure:"feedback"`
	Suggestions  []string           `json:"suggestions" mapstructure:"suggestions"`
}

// TestCaseWithModelOutputs is the per-test-case result of a run. It is the
// unit of partial failure: ModelOutputs is empty when generation failed, and
// the outputs carry no scores when evaluation failed.
type TestCaseWithModelOutputs struct {
	ID               string        `json:"id"`
	Input            string        `json:"input"`
	Context          string        `json:"context,omitempty"`
	ModelOutputs     []ModelOutput `json:"model_outputs"`
	UseCase          string        `json:"use_case,omitempty"`
	ScenarioCategory string        `json:"scenario_category,omitempty"`

	Effectiveness *EffectivenessAnalysis `json:"effectiveness,omitempty"`
}

// NewTestCaseWithModelOutputs copies the test case fields into an empty result.
func NewTestCaseWithModelOutputs(tc TestCase) TestCaseWithModelOutputs {
	return TestCaseWithModelOutputs{
		ID:               tc.ID,
		Input:            tc.Input,
		Context:          tc.Context,
		ModelOutputs:     []ModelOutput{},
		UseCase:          tc.UseCase,
		ScenarioCategory: tc.ScenarioCategory,
	}
}

// TestCase recovers the input test case.
func (r *TestCaseWithModelOutputs) TestCase() TestCase {
	return TestCase{
		ID:               r.ID,
		Input:            r.Input,
		Context:          r.Context,
		ScenarioCategory: r.ScenarioCategory,
		UseCase:          r.UseCase,
	}
}

// FullyScored is true when there is at least one output and every output is scored.
func (r *TestCaseWithModelOutputs) FullyScored() bool {
	if len(r.ModelOutputs) == 0 {
		return false
	}
	for i := range r.ModelOutputs {
		if !r.ModelOutputs[i].Scored() {
			return false
		}
	}
	return true
}
