// Package assignment binds assistant slots to concrete models for a single run.
package assignment

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"

	"github.com/spboyer/arena/internal/models"
)

// ErrUnknownStrategy is returned when the strategy is neither random_selection nor unique_model.
var ErrUnknownStrategy = errors.New("unknown assignment strategy")

// Option configures an Assigner.
type Option func(*Assigner)

// WithRand sets the random source used by random_selection.
func WithRand(r *rand.Rand) Option {
	return func(a *Assigner) {
		a.rng = r
	}
}

// WithSeed makes random_selection reproducible.
func WithSeed(seed uint64) Option {
	return func(a *Assigner) {
		a.rng = rand.New(rand.NewPCG(seed, seed))
	}
}

// Assigner turns assistant slots into selected models. It makes no remote calls.
// An Assigner is not safe for concurrent use when it holds its own random source.
type Assigner struct {
	rng *rand.Rand
}

// New creates an Assigner. Without options random_selection uses the global source.
func New(opts ...Option) *Assigner {
	a := &Assigner{}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Assign binds every slot that has candidates to one model. Provider and model
// names are resolved from models; ids missing from it keep the id as the model name.
func (a *Assigner) Assign(slots []models.AssistantSlot, pool map[string]models.ModelInfo, strategy models.Strategy) ([]models.SelectedModel, error) {
	lookup := &models.ModelPool{Models: pool}

	switch strategy {
	case models.StrategyRandomSelection:
		return a.randomSelection(slots, lookup), nil
	case models.StrategyUniqueModel:
		return uniqueModel(slots, lookup), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, strategy)
	}
}

// Assign binds the slots of pool using strategy.
func Assign(pool models.ModelPool, strategy models.Strategy, opts ...Option) ([]models.SelectedModel, error) {
	return New(opts...).Assign(pool.Slots, pool.Models, strategy)
}

// AssignModels is the standalone form used when only the assignment is needed.
// Provider is left empty since no model catalog is available.
func AssignModels(slots []models.AssistantSlot, strategy models.Strategy) ([]models.SelectedModel, error) {
	return New().Assign(slots, nil, strategy)
}

func (a *Assigner) randomSelection(slots []models.AssistantSlot, pool *models.ModelPool) []models.SelectedModel {
	selected := make([]models.SelectedModel, 0, len(slots))
	for _, slot := range slots {
		if len(slot.CandidateModelIDs) == 0 {
			continue
		}
		id := slot.CandidateModelIDs[a.intN(len(slot.CandidateModelIDs))]
		selected = append(selected, newSelection(slot, id, pool))
	}
	return selected
}

func (a *Assigner) intN(n int) int {
	if a.rng != nil {
		return a.rng.IntN(n)
	}
	return rand.IntN(n)
}

// uniqueModel hands out candidates in priority order so that required and
// generating slots get distinct models first. Results follow that order.
func uniqueModel(slots []models.AssistantSlot, pool *models.ModelPool) []models.SelectedModel {
	ordered := make([]models.AssistantSlot, len(slots))
	copy(ordered, slots)
	sort.SliceStable(ordered, func(i, j int) bool {
		return slotRank(ordered[i]) < slotRank(ordered[j])
	})

	claimed := map[string]bool{}
	selected := make([]models.SelectedModel, 0, len(ordered))

	for _, slot := range ordered {
		if len(slot.CandidateModelIDs) == 0 {
			continue
		}

		id := slot.CandidateModelIDs[0]
		for _, candidate := range slot.CandidateModelIDs {
			if !claimed[candidate] {
				id = candidate
				break
			}
		}

		claimed[id] = true
		selected = append(selected, newSelection(slot, id, pool))
	}
	return selected
}

// slotRank orders required before optional, then generation before evaluation.
func slotRank(s models.AssistantSlot) int {
	rank := 0
	if !s.RequiredToShow {
		rank += 2
	}
	if s.Type != models.SlotTypeOutputGeneration {
		rank++
	}
	return rank
}

func newSelection(slot models.AssistantSlot, id string, pool *models.ModelPool) models.SelectedModel {
	info := pool.Lookup(id)
	return models.SelectedModel{
		AssistantID: slot.AssistantID,
		ModelID:     id,
		Provider:    info.Provider,
		Model:       info.Model,
		Type:        slot.Type,
	}
}
