package orchestration

import (
	"context"
	"errors"
	"log/slog"
	"slices"

	"github.com/spboyer/arena/internal/execution"
	"github.com/spboyer/arena/internal/models"
	"golang.org/x/sync/errgroup"
)

// evaluate scores the outputs of every test case that has any. Scores are
// merged into results in place; a failed call leaves the outputs unscored.
func (p *Pipeline) evaluate(ctx context.Context, r *run, results []models.TestCaseWithModelOutputs, criteria []models.Criterion, judge string) error {
	total := 0
	for i := range results {
		total += len(results[i].ModelOutputs)
	}

	if err := r.progress.Begin(models.PhaseEvaluating, total); err != nil {
		return err
	}

	var g errgroup.Group
	g.SetLimit(p.workers)

	for i := range results {
		if len(results[i].ModelOutputs) == 0 {
			slog.Warn("Skipping evaluation, test case has no outputs", "runID", r.id, "testCase", results[i].ID)
			continue
		}

		tc := results[i].TestCase()
		outputs := slices.Clone(results[i].ModelOutputs)

		g.Go(func() error {
			evals, err := p.evaluateOne(ctx, tc, outputs, criteria, judge)
			if err != nil {
				r.fail(models.PhaseEvaluating, i, tc.ID, err)
				r.progress.EvaluationSettled(i, tc.ID, len(outputs), true)
				return nil
			}

			results[i].ModelOutputs = mergeEvaluations(outputs, evals)
			r.progress.EvaluationSettled(i, tc.ID, len(outputs), false)
			return nil
		})
	}

	_ = g.Wait()

	if failed := r.failuresIn(models.PhaseEvaluating); len(failed) > 0 {
		slog.Warn("Some evaluation calls failed",
			"runID", r.id,
			"failed", len(failed),
			"reasons", callFailed(failed))
	}

	r.progress.Finish(len(results) - 1)
	return nil
}

func (p *Pipeline) evaluateOne(ctx context.Context, tc models.TestCase, outputs []models.ModelOutput, criteria []models.Criterion, judge string) ([]models.Evaluation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	resp, err := p.engine.Evaluate(ctx, &execution.EvaluateRequest{
		TestCase:   tc,
		Outputs:    outputs,
		Criteria:   criteria,
		JudgeModel: judge,
		Timeout:    p.callTimeout,
	})
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, errors.New("engine returned no response")
	}
	return resp.Evaluations, nil
}

// mergeEvaluations returns new outputs with the scores, feedback and
// suggestions of the matching evaluation. Output text is never changed and
// outputs without an evaluation are copied as they are.
func mergeEvaluations(outputs []models.ModelOutput, evals []models.Evaluation) []models.ModelOutput {
	byModel := make(map[string]models.Evaluation, len(evals))
	for _, e := range evals {
		byModel[e.ModelID] = e
	}

	merged := make([]models.ModelOutput, len(outputs))
	for i, o := range outputs {
		e, ok := byModel[o.ModelID]
		if !ok {
			merged[i] = o
			continue
		}

		scores := make(map[string]float64, len(e.RubricScores))
		for k, v := range e.RubricScores {
			scores[k] = v
		}

		o.RubricScores = scores
		o.Feedback = e.Feedback
		o.Suggestions = slices.Clone(e.Suggestions)
		merged[i] = o
	}
	return merged
}
