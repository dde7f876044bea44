package scoring

import (
	"fmt"
	"strings"

	"github.com/spboyer/arena/internal/models"
)

const (
	HighThreshold   = 4.5
	MediumThreshold = 3.5

	// MaxModelSuggestions caps how many model-provided suggestions survive deduplication.
	MaxModelSuggestions = 5
)

const (
	SuggestionMoreContext      = "Add more context to the prompt: the models scored low on average, which usually means the input under-specifies the task."
	SuggestionFormatCompliance = "Make the required output format explicit: at least one model response is missing the expected format marker %q."
)

var levelRank = map[models.EffectivenessLevel]int{
	models.EffectivenessLow:    0,
	models.EffectivenessMedium: 1,
	models.EffectivenessHigh:   2,
}

// AtLeast returns true if level is at or above target.
func AtLeast(level, target models.EffectivenessLevel) bool {
	return levelRank[level] >= levelRank[target]
}

// ParseLevel converts a flag value to an EffectivenessLevel.
func ParseLevel(s string) (models.EffectivenessLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return models.EffectivenessLow, nil
	case "medium":
		return models.EffectivenessMedium, nil
	case "high":
		return models.EffectivenessHigh, nil
	default:
		return models.EffectivenessLow, fmt.Errorf("invalid effectiveness level %q: must be low, medium, or high", s)
	}
}

// Classify maps an average score to a level.
func Classify(avg float64) models.EffectivenessLevel {
	switch {
	case avg >= HighThreshold:
		return models.EffectivenessHigh
	case avg >= MediumThreshold:
		return models.EffectivenessMedium
	default:
		return models.EffectivenessLow
	}
}

// AverageScore averages every rubric score of every output. ok is false when
// nothing was scored.
func AverageScore(outputs []models.ModelOutput) (avg float64, ok bool) {
	total, n := 0.0, 0
	for _, o := range outputs {
		for _, s := range o.RubricScores {
			total += s
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return total / float64(n), true
}

// Analyzer computes the effectiveness of a scored test case.
type Analyzer struct {
	// FormatMarker, when set, must appear in every output.
	FormatMarker string
}

// Analyze returns nil when no output of the test case carries a score.
func (a Analyzer) Analyze(r *models.TestCaseWithModelOutputs) *models.EffectivenessAnalysis {
	avg, ok := AverageScore(r.ModelOutputs)
	if !ok {
		return nil
	}

	analysis := &models.EffectivenessAnalysis{
		Level:        Classify(avg),
		AverageScore: avg,
		Suggestions:  dedupeSuggestions(r.ModelOutputs, MaxModelSuggestions),
	}

	if analysis.Level == models.EffectivenessLow {
		analysis.Suggestions = append(analysis.Suggestions, SuggestionMoreContext)
	}
	if a.FormatMarker != "" && missingMarker(r.ModelOutputs, a.FormatMarker) {
		analysis.Suggestions = append(analysis.Suggestions, fmt.Sprintf(SuggestionFormatCompliance, a.FormatMarker))
	}

	return analysis
}

// AnalyzeAll sets Effectiveness on every result in place.
func (a Analyzer) AnalyzeAll(results []models.TestCaseWithModelOutputs) {
	for i := range results {
		results[i].Effectiveness = a.Analyze(&results[i])
	}
}

func dedupeSuggestions(outputs []models.ModelOutput, limit int) []string {
	seen := map[string]bool{}
	var out []string
	for _, o := range outputs {
		for _, s := range o.Suggestions {
			s = strings.TrimSpace(s)
			key := strings.ToLower(s)
			if s == "" || seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, s)
			if len(out) == limit {
				return out
			}
		}
	}
	return out
}

func missingMarker(outputs []models.ModelOutput, marker string) bool {
	for _, o := range outputs {
		if !strings.Contains(o.Output, marker) {
			return true
		}
	}
	return false
}
