package orchestration

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spboyer/arena/internal/cache"
	"github.com/spboyer/arena/internal/execution"
	"github.com/spboyer/arena/internal/models"
	"golang.org/x/sync/errgroup"
)

// generate asks the generators to answer every test case. The returned
// slice is aligned with testCases; a failed call leaves ModelOutputs empty.
func (p *Pipeline) generate(ctx context.Context, r *run, testCases []models.TestCase, generators []models.SelectedModel) ([]models.TestCaseWithModelOutputs, error) {
	if err := r.progress.Begin(models.PhaseGenerating, len(testCases)*len(generators)); err != nil {
		return nil, err
	}

	results := make([]models.TestCaseWithModelOutputs, len(testCases))
	for i, tc := range testCases {
		results[i] = models.NewTestCaseWithModelOutputs(tc)
	}

	var g errgroup.Group
	g.SetLimit(p.workers)

	for i, tc := range testCases {
		g.Go(func() error {
			outputs, cached, err := p.generateOne(ctx, tc, generators)
			if err != nil {
				r.fail(models.PhaseGenerating, i, tc.ID, err)
				r.progress.GenerationSettled(i, tc.ID, 0, true, false)
				return nil
			}

			results[i].ModelOutputs = outputs
			r.progress.GenerationSettled(i, tc.ID, len(outputs), false, cached)
			return nil
		})
	}

	// per-call errors are captured above, never returned
	_ = g.Wait()

	if failed := r.failuresIn(models.PhaseGenerating); len(failed) > 0 {
		slog.Warn("Some generation calls failed",
			"runID", r.id,
			"failed", len(failed),
			"total", len(testCases),
			"reasons", callFailed(failed))
	}

	r.progress.Finish(len(testCases) - 1)
	return results, nil
}

func (p *Pipeline) generateOne(ctx context.Context, tc models.TestCase, generators []models.SelectedModel) ([]models.ModelOutput, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	var key string
	if p.cache != nil {
		k, err := cache.GenerationKey(p.engineName, tc, generators)
		if err != nil {
			slog.Debug("Not caching generation", "testCase", tc.ID, "error", err)
		} else if outputs, found := p.cache.Get(k); found {
			return outputs, true, nil
		} else {
			key = k
		}
	}

	resp, err := p.engine.Generate(ctx, &execution.GenerateRequest{
		TestCase: tc,
		Models:   generators,
		Timeout:  p.callTimeout,
	})
	if err != nil {
		return nil, false, err
	}
	if resp == nil {
		return nil, false, fmt.Errorf("engine returned no response")
	}

	outputs := resp.Outputs
	if outputs == nil {
		outputs = []models.ModelOutput{}
	}

	if key != "" {
		if err := p.cache.Put(key, outputs); err != nil {
			slog.Warn("Failed to write generation cache", "testCase", tc.ID, "error", err)
		}
	}

	return outputs, false, nil
}
