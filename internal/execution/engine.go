package execution

import (
	"context"
	"errors"
	"time"

	"github.com/spboyer/arena/internal/models"
)

// Engine makes the two remote calls a run needs: one generate call per test
// case and one evaluate call per test case that has outputs.
type Engine interface {
	// Initialize sets up the engine
	Initialize(ctx context.Context) error

	// Generate asks every generating model for an answer to one test case. A
	// call either returns one output per model or fails as a whole.
	Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error)

	// Evaluate asks the judge to score the outputs of one test case.
	Evaluate(ctx context.Context, req *EvaluateRequest) (*EvaluateResponse, error)

	// Shutdown cleans up resources
	Shutdown(ctx context.Context) error
}

// ErrNoModels is returned by Generate when the request names no generating models.
var ErrNoModels = errors.New("no generating models selected")

// GenerateRequest is a single generate call.
type GenerateRequest struct {
	TestCase models.TestCase
	Models   []models.SelectedModel
	Timeout  time.Duration
}

// GenerateResponse holds one output per generating model.
type GenerateResponse struct {
	Outputs    []models.ModelOutput
	DurationMs int64
}

// EvaluateRequest is a single evaluate call.
type EvaluateRequest struct {
	TestCase models.TestCase
	Outputs  []models.ModelOutput
	Criteria []models.Criterion

	// JudgeModel is the model that scores the outputs. Blank means the engine default.
	JudgeModel string
	Timeout    time.Duration
}

// EvaluateResponse holds the judge's verdict per model output.
type EvaluateResponse struct {
	Evaluations []models.Evaluation
	DurationMs  int64
}

func newOutput(sel models.SelectedModel, text string) models.ModelOutput {
	name := sel.Model
	if name == "" {
		name = sel.ModelID
	}
	return models.ModelOutput{
		ModelID:      sel.ModelID,
		ModelName:    name,
		Output:       text,
		RubricScores: map[string]float64{},
		Timestamp:    time.Now().UTC(),
	}
}

// modelName returns the name an engine should send to the provider.
func modelName(sel models.SelectedModel) string {
	if sel.Model != "" {
		return sel.Model
	}
	return sel.ModelID
}
