package models

import (
	"fmt"
	"strings"
)

// SlotType is the role an assistant slot plays in a run.
type SlotType string

const (
	SlotTypeOutputGeneration SlotType = "output_generation"
	SlotTypeEvaluation       SlotType = "evaluation"
)

// Valid reports whether t is a known slot type.
func (t SlotType) Valid() bool {
	return t == SlotTypeOutputGeneration || t == SlotTypeEvaluation
}

// Strategy selects how assistant slots are bound to concrete models.
type Strategy string

const (
	StrategyRandomSelection Strategy = "random_selection"
	StrategyUniqueModel     Strategy = "unique_model"
)

// ParseStrategy converts a flag value into a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case StrategyRandomSelection:
		return StrategyRandomSelection, nil
	case StrategyUniqueModel:
		return StrategyUniqueModel, nil
	default:
		return "", fmt.Errorf("invalid strategy %q: must be %s or %s", s, StrategyRandomSelection, StrategyUniqueModel)
	}
}

// AssistantSlot is a configured role that must be bound to one model per run.
type AssistantSlot struct {
	AssistantID       string   `yaml:"assistant_id" json:"assistant_id"`
	CandidateModelIDs []string `yaml:"candidate_model_ids" json:"candidate_model_ids"`
	Type              SlotType `yaml:"type" json:"type"`
	RequiredToShow    bool     `yaml:"required_to_show,omitempty" json:"required_to_show,omitempty"`
}

// ModelInfo describes where a candidate model lives.
type ModelInfo struct {
	Provider string `yaml:"provider" json:"provider"`
	Model    string `yaml:"model" json:"model"`
}

// ModelPool is the set of assistant slots and the models they may use.
type ModelPool struct {
	Slots  []AssistantSlot      `yaml:"slots" json:"slots"`
	Models map[string]ModelInfo `yaml:"models,omitempty" json:"models,omitempty"`
}

// Lookup returns the provider and model name for id. Ids that are not in the
// pool keep the id itself as the model name.
func (p *ModelPool) Lookup(id string) ModelInfo {
	if p != nil {
		if info, ok := p.Models[id]; ok {
			if info.Model == "" {
				info.Model = id
			}
			return info
		}
	}
	return ModelInfo{Model: id}
}

// Validate checks slot ids and types.
func (p *ModelPool) Validate() error {
	seen := map[string]bool{}
	for i, s := range p.Slots {
		if strings.TrimSpace(s.AssistantID) == "" {
			return fmt.Errorf("slot %d is missing an assistant_id", i)
		}
		if seen[s.AssistantID] {
			return fmt.Errorf("assistant %q is configured more than once", s.AssistantID)
		}
		seen[s.AssistantID] = true
		if !s.Type.Valid() {
			return fmt.Errorf("assistant %q has invalid type %q", s.AssistantID, s.Type)
		}
	}
	return nil
}

// SelectedModel binds one assistant slot to one concrete model for a run.
type SelectedModel struct {
	AssistantID string   `json:"assistant_id"`
	ModelID     string   `json:"model_id"`
	Provider    string   `json:"provider"`
	Model       string   `json:"model"`
	Type        SlotType `json:"type,omitempty"`
}

// Generators returns the selections that produce outputs.
func Generators(selected []SelectedModel) []SelectedModel {
	return filterByType(selected, SlotTypeOutputGeneration)
}

// Judges returns the selections that score outputs.
func Judges(selected []SelectedModel) []SelectedModel {
	return filterByType(selected, SlotTypeEvaluation)
}

func filterByType(selected []SelectedModel, t SlotType) []SelectedModel {
	var out []SelectedModel
	for _, s := range selected {
		if s.Type == t {
			out = append(out, s)
		}
	}
	return out
}
