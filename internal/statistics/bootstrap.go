// Package statistics computes score spreads and bootstrap confidence
// intervals over the rubric scores of a run.
package statistics

import (
	"math"
	"math/rand/v2"
	"sort"

	"github.com/spboyer/arena/internal/models"
)

// ConfidenceInterval holds the result of a bootstrap confidence interval computation.
type ConfidenceInterval struct {
	Lower           float64 `json:"lower"`
	Upper           float64 `json:"upper"`
	Mean            float64 `json:"mean"`
	ConfidenceLevel float64 `json:"confidence_level"`
	NumBootstraps   int     `json:"num_bootstraps"`
}

// DefaultBootstrapIterations is the number of bootstrap resamples.
const DefaultBootstrapIterations = 10000

// BootstrapCI computes a percentile bootstrap interval for the mean of scores.
// confidenceLevel should be in (0, 1), e.g. 0.95.
func BootstrapCI(scores []float64, confidenceLevel float64) ConfidenceInterval {
	return BootstrapCIWithSeed(scores, confidenceLevel, -1)
}

// BootstrapCIWithSeed is like BootstrapCI but accepts a seed for reproducibility.
// A negative seed uses a non-deterministic source.
func BootstrapCIWithSeed(scores []float64, confidenceLevel float64, seed int64) ConfidenceInterval {
	n := len(scores)
	m := Mean(scores)
	if n < 2 {
		return ConfidenceInterval{Lower: m, Upper: m, Mean: m, ConfidenceLevel: confidenceLevel}
	}

	rng := newRand(seed)
	sample := make([]float64, n)

	return percentiles(m, confidenceLevel, func() float64 {
		for j := range sample {
			sample[j] = scores[rng.IntN(n)]
		}
		return Mean(sample)
	})
}

// DifferenceCI bootstraps the difference between the means of a and b,
// resampling each side independently.
func DifferenceCI(a, b []float64, confidenceLevel float64, seed int64) ConfidenceInterval {
	diff := Mean(a) - Mean(b)
	if len(a) < 2 || len(b) < 2 {
		return ConfidenceInterval{Lower: diff, Upper: diff, Mean: diff, ConfidenceLevel: confidenceLevel}
	}

	rng := newRand(seed)
	sa := make([]float64, len(a))
	sb := make([]float64, len(b))

	return percentiles(diff, confidenceLevel, func() float64 {
		for j := range sa {
			sa[j] = a[rng.IntN(len(a))]
		}
		for j := range sb {
			sb[j] = b[rng.IntN(len(b))]
		}
		return Mean(sa) - Mean(sb)
	})
}

// IsSignificant returns true if the confidence interval does not contain zero.
func IsSignificant(ci ConfidenceInterval) bool {
	return ci.NumBootstraps > 0 && (ci.Lower > 0 || ci.Upper < 0)
}

func percentiles(m, confidenceLevel float64, resample func() float64) ConfidenceInterval {
	iters := DefaultBootstrapIterations
	boot := make([]float64, iters)
	for i := range boot {
		boot[i] = resample()
	}
	sort.Float64s(boot)

	alpha := 1.0 - confidenceLevel
	loIdx := int(math.Floor(alpha / 2.0 * float64(iters)))
	hiIdx := int(math.Floor((1.0 - alpha/2.0) * float64(iters)))
	if hiIdx >= iters {
		hiIdx = iters - 1
	}

	return ConfidenceInterval{
		Lower:           boot[loIdx],
		Upper:           boot[hiIdx],
		Mean:            m,
		ConfidenceLevel: confidenceLevel,
		NumBootstraps:   iters,
	}
}

func newRand(seed int64) *rand.Rand {
	if seed < 0 {
		return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return rand.New(rand.NewPCG(uint64(seed), 0))
}

// Mean returns the arithmetic mean, or 0 for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0.0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// StdDev returns the sample standard deviation, or 0 with fewer than 2 values.
func StdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := Mean(values)
	sum := 0.0
	for _, v := range values {
		d := v - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(values)-1))
}

// ScoresByModel collects the average rubric score of every scored output,
// keyed by model id. Unscored outputs are left out.
func ScoresByModel(results []models.TestCaseWithModelOutputs) map[string][]float64 {
	out := map[string][]float64{}
	for _, r := range results {
		for _, o := range r.ModelOutputs {
			if o.Scored() {
				out[o.ModelID] = append(out[o.ModelID], o.AverageScore())
			}
		}
	}
	return out
}

// ModelIntervals computes a bootstrap interval for every model's mean score.
func ModelIntervals(results []models.TestCaseWithModelOutputs, confidenceLevel float64, seed int64) map[string]ConfidenceInterval {
	byModel := ScoresByModel(results)
	out := make(map[string]ConfidenceInterval, len(byModel))
	for id, scores := range byModel {
		out[id] = BootstrapCIWithSeed(scores, confidenceLevel, seed)
	}
	return out
}
