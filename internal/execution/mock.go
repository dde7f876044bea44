package execution

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/spboyer/arena/internal/models"
)

// MockEngine answers without calling any model. Outputs and scores are
// derived from the inputs, so repeated runs give identical results.
type MockEngine struct{}

// NewMockEngine creates a new mock engine
func NewMockEngine() *MockEngine {
	return &MockEngine{}
}

func (m *MockEngine) Initialize(ctx context.Context) error {
	return nil
}

func (m *MockEngine) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(req.Models) == 0 {
		return nil, ErrNoModels
	}

	start := time.Now()
	outputs := make([]models.ModelOutput, 0, len(req.Models))

	for _, sel := range req.Models {
		text := fmt.Sprintf("Mock response from %s for: %s", modelName(sel), req.TestCase.Input)
		if req.TestCase.Context != "" {
			text += "\nUsed the provided context"
		}
		outputs = append(outputs, newOutput(sel, text))
	}

	return &GenerateResponse{Outputs: outputs, DurationMs: time.Since(start).Milliseconds()}, nil
}

func (m *MockEngine) Evaluate(ctx context.Context, req *EvaluateRequest) (*EvaluateResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	evals := make([]models.Evaluation, 0, len(req.Outputs))

	for _, o := range req.Outputs {
		scores := make(map[string]float64, len(req.Criteria))
		for _, c := range req.Criteria {
			scores[c.ID] = mockScore(req.TestCase.ID, o.ModelID, c.ID)
		}
		evals = append(evals, models.Evaluation{
			ModelID:      o.ModelID,
			RubricScores: scores,
			Feedback:     fmt.Sprintf("Mock evaluation of %s", o.ModelName),
		})
	}

	return &EvaluateResponse{Evaluations: evals, DurationMs: time.Since(start).Milliseconds()}, nil
}

func (m *MockEngine) Shutdown(ctx context.Context) error {
	return nil
}

// mockScore returns a stable score between 3 and 5.
func mockScore(parts ...string) float64 {
	h := fnv.New32a()
	for _, p := range parts {
		_, _ = h.Write([]byte(p))
		_, _ = h.Write([]byte{0})
	}
	return float64(3 + h.Sum32()%3)
}
