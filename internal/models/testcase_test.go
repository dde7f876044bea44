package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTestCase_Validate(t *testing.T) {
	tests := []struct {
		name    string
		tc      TestCase
		wantErr string
	}{
		{name: "valid", tc: TestCase{ID: "tc-1", Input: "hello"}},
		{name: "blank id", tc: TestCase{ID: "  ", Input: "hello"}, wantErr: "missing id"},
		{name: "blank input", tc: TestCase{ID: "tc-1", Input: ""}, wantErr: "empty input"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.tc.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestCriterion_Validate(t *testing.T) {
	tests := []struct {
		name    string
		c       Criterion
		wantErr string
	}{
		{name: "valid", c: Criterion{ID: "clarity", ScoreDescriptions: map[int]string{1: "bad", 5: "great"}}},
		{name: "no id", c: Criterion{}, wantErr: "missing an id"},
		{name: "negative weight", c: Criterion{ID: "x", Weight: -1}, wantErr: "negative weight"},
		{name: "score too high", c: Criterion{ID: "x", ScoreDescriptions: map[int]string{6: "?"}}, wantErr: "describes score 6"},
		{name: "score zero", c: Criterion{ID: "x", ScoreDescriptions: map[int]string{0: "?"}}, wantErr: "describes score 0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.c.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestCriterion_Defaults(t *testing.T) {
	c := Criterion{ID: "tone"}
	assert.Equal(t, 1.0, c.EffectiveWeight())
	assert.Equal(t, "tone", c.DisplayName())

	c = Criterion{ID: "tone", Name: "Tone", Weight: 2.5}
	assert.Equal(t, 2.5, c.EffectiveWeight())
	assert.Equal(t, "Tone", c.DisplayName())
}

func TestModelOutput_AverageScore(t *testing.T) {
	o := ModelOutput{}
	assert.False(t, o.Scored())
	assert.Equal(t, 0.0, o.AverageScore())

	o.RubricScores = map[string]float64{"a": 4, "b": 5}
	assert.True(t, o.Scored())
	assert.InDelta(t, 4.5, o.AverageScore(), 1e-9)
}

func TestNewTestCaseWithModelOutputs(t *testing.T) {
	tc := TestCase{ID: "tc-7", Input: "in", Context: "ctx", ScenarioCategory: "billing", UseCase: "refunds"}

	r := NewTestCaseWithModelOutputs(tc)
	assert.Equal(t, "tc-7", r.ID)
	assert.Equal(t, "billing", r.ScenarioCategory)
	assert.NotNil(t, r.ModelOutputs)
	assert.Empty(t, r.ModelOutputs)
	assert.Nil(t, r.Effectiveness)
	assert.Equal(t, tc, r.TestCase())
}

func TestTestCaseWithModelOutputs_FullyScored(t *testing.T) {
	r := TestCaseWithModelOutputs{}
	assert.False(t, r.FullyScored(), "no outputs is never fully scored")

	r.ModelOutputs = []ModelOutput{
		{ModelID: "a", RubricScores: map[string]float64{"x": 3}},
		{ModelID: "b"},
	}
	assert.False(t, r.FullyScored())

	r.ModelOutputs[1].RubricScores = map[string]float64{"x": 4}
	assert.True(t, r.FullyScored())
}
