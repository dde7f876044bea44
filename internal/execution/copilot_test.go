package execution

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	copilot "github.com/github/copilot-sdk/go"
	"github.com/spboyer/arena/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"golang.org/x/sync/errgroup"
)

var enableCopilotTests = os.Getenv("ENABLE_COPILOT_TESTS") == "true"

// scriptedSession is a session mock that replays reply as the assistant's
// message. beforeReply runs first and can call tool handlers.
func scriptedSession(ctrl *gomock.Controller, id, reply string, sendErr error, beforeReply func()) *MockcopilotSession {
	sessionMock := NewMockcopilotSession(ctrl)

	var mu sync.Mutex
	var handlers []copilot.SessionEventHandler

	sessionMock.EXPECT().On(gomock.Any()).Times(2).DoAndReturn(func(h copilot.SessionEventHandler) func() {
		mu.Lock()
		defer mu.Unlock()
		handlers = append(handlers, h)
		return func() {}
	})
	sessionMock.EXPECT().SessionID().Return(id).AnyTimes()
	sessionMock.EXPECT().SendAndWait(gomock.Any(), gomock.Any()).DoAndReturn(func(ctx context.Context, opts copilot.MessageOptions) (*copilot.SessionEvent, error) {
		if sendErr != nil {
			return nil, sendErr
		}
		if beforeReply != nil {
			beforeReply()
		}

		mu.Lock()
		defer mu.Unlock()
		for _, h := range handlers {
			h(copilot.SessionEvent{Type: copilot.AssistantMessage, Data: copilot.Data{Content: &reply}})
			h(copilot.SessionEvent{Type: copilot.SessionIdle})
		}
		return &copilot.SessionEvent{}, nil
	})

	return sessionMock
}

func newTestCopilotEngine(clientMock copilotClient, defaultModel string) *CopilotEngine {
	return NewCopilotEngineBuilder(defaultModel, &CopilotEngineBuilderOptions{
		NewCopilotClient: func(clientOptions *copilot.ClientOptions) copilotClient { return clientMock },
	}).Build()
}

var twoGenerators = []models.SelectedModel{
	{AssistantID: "writer-a", ModelID: "m-gpt", Model: "gpt-4o", Type: models.SlotTypeOutputGeneration},
	{AssistantID: "writer-b", ModelID: "m-claude", Model: "claude-sonnet-4.5", Type: models.SlotTypeOutputGeneration},
}

func TestCopilotGenerate_OneOutputPerModel(t *testing.T) {
	ctrl := gomock.NewController(t)
	clientMock := NewMockcopilotClient(ctrl)

	var mu sync.Mutex
	configs := map[string]*copilot.SessionConfig{}
	contextFiles := map[string]string{}

	clientMock.EXPECT().Start(gomock.Any())
	clientMock.EXPECT().CreateSession(gomock.Any(), gomock.Any()).Times(2).DoAndReturn(
		func(ctx context.Context, cfg *copilot.SessionConfig) (copilotSession, error) {
			data, err := os.ReadFile(filepath.Join(cfg.WorkingDirectory, contextFileName))
			assert.NoError(t, err)

			mu.Lock()
			configs[cfg.Model] = cfg
			contextFiles[cfg.Model] = string(data)
			mu.Unlock()

			return scriptedSession(ctrl, "session-"+cfg.Model, "answer from "+cfg.Model, nil, nil), nil
		})
	clientMock.EXPECT().Stop()

	engine := newTestCopilotEngine(clientMock, "gpt-4o-mini")
	defer func() {
		require.NoError(t, engine.Shutdown(context.Background()))
	}()

	require.NoError(t, engine.Initialize(context.Background()))

	resp, err := engine.Generate(context.Background(), &GenerateRequest{
		TestCase: models.TestCase{ID: "tc-1", Input: "How do I reset my password?", Context: "Users log in with SSO."},
		Models:   twoGenerators,
		Timeout:  time.Minute,
	})
	require.NoError(t, err)
	require.Len(t, resp.Outputs, 2)

	assert.Equal(t, "m-gpt", resp.Outputs[0].ModelID)
	assert.Equal(t, "gpt-4o", resp.Outputs[0].ModelName)
	assert.Equal(t, "answer from gpt-4o", resp.Outputs[0].Output)
	assert.Equal(t, "m-claude", resp.Outputs[1].ModelID)
	assert.Equal(t, "answer from claude-sonnet-4.5", resp.Outputs[1].Output)

	for _, o := range resp.Outputs {
		assert.NotNil(t, o.RubricScores)
		assert.Empty(t, o.RubricScores)
		assert.False(t, o.Timestamp.IsZero())
	}

	require.Len(t, configs, 2)
	for model, cfg := range configs {
		assert.Empty(t, cfg.Tools, "generation sessions get no tools")
		assert.NotEmpty(t, cfg.WorkingDirectory)
		assert.Equal(t, "Users log in with SSO.", contextFiles[model])
	}
}

func TestCopilotGenerate_AnyModelFailureFailsTheCall(t *testing.T) {
	ctrl := gomock.NewController(t)
	clientMock := NewMockcopilotClient(ctrl)

	clientMock.EXPECT().Start(gomock.Any())
	clientMock.EXPECT().CreateSession(gomock.Any(), gomock.Any()).Times(2).DoAndReturn(
		func(ctx context.Context, cfg *copilot.SessionConfig) (copilotSession, error) {
			if cfg.Model == "claude-sonnet-4.5" {
				return scriptedSession(ctrl, "s-fail", "", errors.New("rate limited"), nil), nil
			}
			return scriptedSession(ctrl, "s-ok", "fine", nil, nil), nil
		})
	clientMock.EXPECT().Stop()

	engine := newTestCopilotEngine(clientMock, "")
	defer func() { require.NoError(t, engine.Shutdown(context.Background())) }()

	resp, err := engine.Generate(context.Background(), &GenerateRequest{
		TestCase: models.TestCase{ID: "tc-1", Input: "hi"},
		Models:   twoGenerators,
		Timeout:  time.Minute,
	})
	require.ErrorContains(t, err, "model m-claude")
	require.ErrorContains(t, err, "rate limited")
	require.Nil(t, resp)
}

func TestCopilotGenerate_SessionErrorEvent(t *testing.T) {
	ctrl := gomock.NewController(t)
	clientMock := NewMockcopilotClient(ctrl)
	sessionMock := NewMockcopilotSession(ctrl)

	var handlers []copilot.SessionEventHandler
	sessionMock.EXPECT().On(gomock.Any()).Times(2).DoAndReturn(func(h copilot.SessionEventHandler) func() {
		handlers = append(handlers, h)
		return func() {}
	})
	sessionMock.EXPECT().SessionID().Return("session-1").AnyTimes()
	sessionMock.EXPECT().SendAndWait(gomock.Any(), gomock.Any()).DoAndReturn(func(ctx context.Context, opts copilot.MessageOptions) (*copilot.SessionEvent, error) {
		for _, h := range handlers {
			h(copilot.SessionEvent{Type: copilot.SessionError})
		}
		return &copilot.SessionEvent{}, nil
	})

	clientMock.EXPECT().Start(gomock.Any())
	clientMock.EXPECT().CreateSession(gomock.Any(), gomock.Any()).Return(sessionMock, nil)
	clientMock.EXPECT().Stop()

	engine := newTestCopilotEngine(clientMock, "")
	defer func() { require.NoError(t, engine.Shutdown(context.Background())) }()

	_, err := engine.Generate(context.Background(), &GenerateRequest{
		TestCase: models.TestCase{ID: "tc-1", Input: "hi"},
		Models:   twoGenerators[:1],
		Timeout:  time.Minute,
	})
	require.ErrorContains(t, err, sessionFailedUnknown)
}

func TestCopilotStartFailureIsSticky(t *testing.T) {
	ctrl := gomock.NewController(t)
	clientMock := NewMockcopilotClient(ctrl)

	clientMock.EXPECT().Start(gomock.Any()).Return(errors.New("cli not found"))
	clientMock.EXPECT().Stop()

	engine := newTestCopilotEngine(clientMock, "")
	defer func() { require.NoError(t, engine.Shutdown(context.Background())) }()

	req := &GenerateRequest{TestCase: models.TestCase{ID: "tc", Input: "x"}, Models: twoGenerators, Timeout: time.Minute}

	_, err := engine.Generate(context.Background(), req)
	require.ErrorContains(t, err, "copilot failed to start")

	_, err = engine.Evaluate(context.Background(), &EvaluateRequest{Timeout: time.Minute})
	require.ErrorContains(t, err, "cli not found")
}

func TestCopilotEvaluate_ToolSubmissions(t *testing.T) {
	ctrl := gomock.NewController(t)
	clientMock := NewMockcopilotClient(ctrl)

	clientMock.EXPECT().Start(gomock.Any())
	clientMock.EXPECT().CreateSession(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, cfg *copilot.SessionConfig) (copilotSession, error) {
			assert.Equal(t, "judge-model", cfg.Model)
			require.Len(t, cfg.Tools, 1)
			tool := cfg.Tools[0]
			assert.Equal(t, submitEvaluationToolName, tool.Name)

			submit := func(args map[string]any) {
				_, err := tool.Handler(copilot.ToolInvocation{Arguments: args})
				assert.NoError(t, err)
			}

			return scriptedSession(ctrl, "judge-session", "done", nil, func() {
				submit(map[string]any{
					"model_id":      "m-gpt",
					"rubric_scores": map[string]any{"accuracy": 4.0, "tone": "5", "made-up": 2.0},
					"feedback":      "solid",
					"suggestions":   []any{"Mention SSO"},
				})
				submit(map[string]any{
					"model_id":      "m-claude",
					"rubric_scores": map[string]any{"accuracy": 9.0, "tone": 0.0},
				})
				submit(map[string]any{"model_id": "not-in-run", "rubric_scores": map[string]any{"accuracy": 3.0}})
				submit(map[string]any{"rubric_scores": map[string]any{"accuracy": 3.0}})
			}), nil
		})
	clientMock.EXPECT().Stop()

	engine := newTestCopilotEngine(clientMock, "default-judge")
	defer func() { require.NoError(t, engine.Shutdown(context.Background())) }()

	resp, err := engine.Evaluate(context.Background(), &EvaluateRequest{
		TestCase: models.TestCase{ID: "tc-1", Input: "reset password"},
		Outputs: []models.ModelOutput{
			{ModelID: "m-gpt", Output: "a"},
			{ModelID: "m-claude", Output: "b"},
		},
		Criteria:   []models.Criterion{{ID: "accuracy"}, {ID: "tone"}},
		JudgeModel: "judge-model",
		Timeout:    time.Minute,
	})
	require.NoError(t, err)
	require.Len(t, resp.Evaluations, 2)

	gpt := resp.Evaluations[0]
	assert.Equal(t, "m-gpt", gpt.ModelID)
	assert.Equal(t, map[string]float64{"accuracy": 4, "tone": 5}, gpt.RubricScores)
	assert.Equal(t, "solid", gpt.Feedback)
	assert.Equal(t, []string{"Mention SSO"}, gpt.Suggestions)

	claude := resp.Evaluations[1]
	assert.Equal(t, map[string]float64{"accuracy": 5, "tone": 1}, claude.RubricScores, "scores are clamped to 1..5")
}

func TestCopilotEvaluate_FallsBackToJSONReply(t *testing.T) {
	ctrl := gomock.NewController(t)
	clientMock := NewMockcopilotClient(ctrl)

	reply := "```json\n[{\"model_id\": \"m-gpt\", \"rubric_scores\": {\"accuracy\": 3}, \"feedback\": \"ok\"}]\n```"

	clientMock.EXPECT().Start(gomock.Any())
	clientMock.EXPECT().CreateSession(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, cfg *copilot.SessionConfig) (copilotSession, error) {
			assert.Equal(t, "default-judge", cfg.Model)
			return scriptedSession(ctrl, "judge-session", reply, nil, nil), nil
		})
	clientMock.EXPECT().Stop()

	engine := newTestCopilotEngine(clientMock, "default-judge")
	defer func() { require.NoError(t, engine.Shutdown(context.Background())) }()

	resp, err := engine.Evaluate(context.Background(), &EvaluateRequest{
		TestCase: models.TestCase{ID: "tc-1", Input: "x"},
		Outputs:  []models.ModelOutput{{ModelID: "m-gpt", Output: "a"}},
		Criteria: []models.Criterion{{ID: "accuracy"}},
		Timeout:  time.Minute,
	})
	require.NoError(t, err)
	require.Len(t, resp.Evaluations, 1)
	assert.Equal(t, 3.0, resp.Evaluations[0].RubricScores["accuracy"])
}

func TestCopilotEvaluate_NoEvaluations(t *testing.T) {
	ctrl := gomock.NewController(t)
	clientMock := NewMockcopilotClient(ctrl)

	clientMock.EXPECT().Start(gomock.Any())
	clientMock.EXPECT().CreateSession(gomock.Any(), gomock.Any()).Return(
		scriptedSession(ctrl, "judge-session", "They both look great to me!", nil, nil), nil)
	clientMock.EXPECT().Stop()

	engine := newTestCopilotEngine(clientMock, "judge")
	defer func() { require.NoError(t, engine.Shutdown(context.Background())) }()

	_, err := engine.Evaluate(context.Background(), &EvaluateRequest{
		TestCase: models.TestCase{ID: "tc-1", Input: "x"},
		Outputs:  []models.ModelOutput{{ModelID: "m-gpt", Output: "a"}},
		Timeout:  time.Minute,
	})
	require.ErrorIs(t, err, ErrNoEvaluations)
}

func TestCopilot_RequiredFields(t *testing.T) {
	engine := NewCopilotEngineBuilder("gpt-4o-mini", nil).Build()

	_, err := engine.Generate(context.Background(), nil)
	require.ErrorContains(t, err, "nil req")

	_, err = engine.Generate(context.Background(), &GenerateRequest{Timeout: time.Minute})
	require.ErrorIs(t, err, ErrNoModels)

	_, err = engine.Generate(context.Background(), &GenerateRequest{Models: twoGenerators})
	require.ErrorContains(t, err, "positive Timeout is required")

	_, err = engine.Evaluate(context.Background(), &EvaluateRequest{})
	require.ErrorContains(t, err, "positive Timeout is required")
}

func TestDecodeEvaluation(t *testing.T) {
	eval, err := decodeEvaluation(map[string]any{
		"model_id":      "m1",
		"rubric_scores": map[string]any{"clarity": "4.5"},
		"suggestions":   []any{"shorter"},
	})
	require.NoError(t, err)
	assert.Equal(t, "m1", eval.ModelID)
	assert.Equal(t, 4.5, eval.RubricScores["clarity"])
	assert.Equal(t, []string{"shorter"}, eval.Suggestions)

	_, err = decodeEvaluation(map[string]any{"rubric_scores": map[string]any{}})
	require.ErrorContains(t, err, "missing model_id")

	_, err = decodeEvaluation(map[string]any{"model_id": "m1", "rubric_scores": "not a map"})
	require.Error(t, err)
}

func TestCopilotGenerateParallel(t *testing.T) {
	if !enableCopilotTests {
		t.Skip("ENABLE_COPILOT_TESTS must be set in order to run live copilot tests")
	}

	engine := NewCopilotEngineBuilder("gpt-4o-mini", nil).Build()
	defer func() { require.NoError(t, engine.Shutdown(context.Background())) }()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	eg := errgroup.Group{}

	for range 5 {
		eg.Go(func() error {
			_, err := engine.Generate(ctx, &GenerateRequest{
				TestCase: models.TestCase{ID: "live", Input: "Say hello in one word."},
				Models:   []models.SelectedModel{{ModelID: "gpt-4o-mini"}},
				Timeout:  time.Minute,
			})
			return err
		})
	}

	require.NoError(t, eg.Wait())
}
