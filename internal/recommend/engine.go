// Package recommend ranks the generating models of a run.
package recommend

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/spboyer/arena/internal/models"
	"github.com/spboyer/arena/internal/statistics"
)

// Engine computes heuristic recommendations from a run outcome.
type Engine struct {
	weights models.RecommendationWeights
	seed    int64
}

// Option configures an Engine.
type Option func(*Engine)

// WithWeights overrides the default component weights.
func WithWeights(w models.RecommendationWeights) Option {
	return func(e *Engine) { e.weights = w }
}

// WithSeed makes the significance bootstrap reproducible.
func WithSeed(seed int64) Option {
	return func(e *Engine) { e.seed = seed }
}

// NewEngine creates a recommendation engine with default weights.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		weights: models.RecommendationWeights{
			AverageScore: 0.60,
			Coverage:     0.25,
			Consistency:  0.15,
		},
		seed: -1,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type candidate struct {
	id       string
	average  float64
	coverage float64
	stdDev   float64
	scores   []float64
}

// Recommend ranks the models in the outcome's summary.
// Returns nil if fewer than 2 models produced output.
func (e *Engine) Recommend(outcome *models.RunOutcome) *models.Recommendation {
	if outcome == nil {
		return nil
	}

	byModel := statistics.ScoresByModel(outcome.Results)

	var cands []candidate
	for _, ms := range outcome.Summary.Models {
		if ms.Outputs == 0 {
			continue
		}
		scores := byModel[ms.ModelID]
		cands = append(cands, candidate{
			id:       ms.ModelID,
			average:  ms.AverageScore,
			coverage: float64(ms.Scored) / float64(ms.Outputs) * 100,
			stdDev:   statistics.StdDev(scores),
			scores:   scores,
		})
	}
	if len(cands) < 2 {
		return nil
	}

	ranked := e.scoreModels(cands)
	winner, runnerUp := ranked[0], ranked[1]

	var margin float64
	if runnerUp.HeuristicScore > 0 {
		margin = ((winner.HeuristicScore - runnerUp.HeuristicScore) / runnerUp.HeuristicScore) * 100
	}

	byID := make(map[string]candidate, len(cands))
	for _, c := range cands {
		byID[c.id] = c
	}
	diff := statistics.DifferenceCI(byID[winner.ModelID].scores, byID[runnerUp.ModelID].scores, 0.95, e.seed)

	return &models.Recommendation{
		RecommendedModel: winner.ModelID,
		HeuristicScore:   round1(winner.HeuristicScore),
		Reason:           e.buildReason(winner, runnerUp, byID[winner.ModelID]),
		WinnerMarginPct:  round1(margin),
		Significant:      statistics.IsSignificant(diff),
		Weights:          e.weights,
		ModelScores:      ranked,
	}
}

func (e *Engine) scoreModels(cands []candidate) []models.ModelScore {
	var averages, coverages, spreads []float64
	for _, c := range cands {
		averages = append(averages, c.average)
		coverages = append(coverages, c.coverage)
		spreads = append(spreads, c.stdDev)
	}

	scores := make([]models.ModelScore, len(cands))
	for i, c := range cands {
		avg := normalizeHigherBetter(c.average, averages)
		cov := normalizeHigherBetter(c.coverage, coverages)
		con := normalizeLowerBetter(c.stdDev, spreads)

		scores[i] = models.ModelScore{
			ModelID: c.id,
			HeuristicScore: round1(avg*e.weights.AverageScore +
				cov*e.weights.Coverage +
				con*e.weights.Consistency),
			Scores: map[string]float64{
				"average_score_normalized": round1(avg),
				"coverage_normalized":      round1(cov),
				"consistency_normalized":   round1(con),
			},
		}
	}

	// Ties keep summary order, which is sorted by model id.
	sort.SliceStable(scores, func(a, b int) bool {
		return scores[a].HeuristicScore > scores[b].HeuristicScore
	})
	for i := range scores {
		scores[i].Rank = i + 1
	}
	return scores
}

// normalizeHigherBetter maps a value to 0-10 where higher raw values are better.
// When all values are equal every model receives 5.
func normalizeHigherBetter(value float64, all []float64) float64 {
	minVal, maxVal := minMax(all)
	if maxVal == minVal {
		return 5.0
	}
	return ((value - minVal) / (maxVal - minVal)) * 10
}

// normalizeLowerBetter maps a value to 0-10 where lower raw values are better.
func normalizeLowerBetter(value float64, all []float64) float64 {
	minVal, maxVal := minMax(all)
	if maxVal == minVal {
		return 5.0
	}
	return ((maxVal - value) / (maxVal - minVal)) * 10
}

func minMax(values []float64) (float64, float64) {
	mn, mx := values[0], values[0]
	for _, v := range values[1:] {
		mn = math.Min(mn, v)
		mx = math.Max(mx, v)
	}
	return mn, mx
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func (e *Engine) buildReason(winner, runnerUp models.ModelScore, raw candidate) string {
	if winner.HeuristicScore == runnerUp.HeuristicScore {
		return fmt.Sprintf("Tied with %s; first by model id selected", runnerUp.ModelID)
	}

	var parts []string
	if winner.Scores["average_score_normalized"] > runnerUp.Scores["average_score_normalized"] {
		parts = append(parts, fmt.Sprintf("Highest average score: %.2f", raw.average))
	}
	if winner.Scores["coverage_normalized"] > runnerUp.Scores["coverage_normalized"] {
		parts = append(parts, fmt.Sprintf("Scored outputs: %.0f%%", raw.coverage))
	}
	if len(parts) == 0 {
		parts = append(parts, "Highest weighted score across all components")
	}

	return fmt.Sprintf("%s (weighted score: %.1f vs %s: %.1f)",
		strings.Join(parts, "; "), winner.HeuristicScore, runnerUp.ModelID, runnerUp.HeuristicScore)
}
