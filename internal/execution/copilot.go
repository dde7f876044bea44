package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	copilot "github.com/github/copilot-sdk/go"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spboyer/arena/internal/models"
	"github.com/spboyer/arena/internal/utils"
	"golang.org/x/sync/errgroup"
)

const submitEvaluationToolName = "submit_evaluation"

// ErrNoEvaluations is returned when the judge finished without scoring anything.
var ErrNoEvaluations = errors.New("judge did not submit any evaluations")

// CopilotEngine generates and judges outputs through the GitHub Copilot SDK.
// Each model answer and each judgement runs in its own session.
type CopilotEngine struct {
	defaultModelID string

	client copilotClient

	startOnce sync.Once
	startErr  error

	workspacesMu sync.Mutex
	workspaces   []string // workspaces to clean up at Shutdown
}

// CopilotEngineBuilder builds a CopilotEngine with options
type CopilotEngineBuilder struct {
	engine *CopilotEngine
}

type CopilotEngineBuilderOptions struct {
	NewCopilotClient func(clientOptions *copilot.ClientOptions) copilotClient
}

// NewCopilotEngineBuilder creates a builder for CopilotEngine
//   - defaultModelID - the judge model when a request doesn't name one. Can be blank, which means
//     the copilot CLI will choose its own fallback model.
func NewCopilotEngineBuilder(defaultModelID string, options *CopilotEngineBuilderOptions) *CopilotEngineBuilder {
	var client copilotClient

	copilotOptions := &copilot.ClientOptions{
		// workspace is set at the session level, instead of at the client.
		LogLevel:        "error",
		AutoStart:       utils.Ptr(false),
		UseLoggedInUser: utils.Ptr(true),
	}

	if options == nil || options.NewCopilotClient == nil {
		client = newCopilotClient(copilotOptions)
	} else {
		client = options.NewCopilotClient(copilotOptions)
	}

	return &CopilotEngineBuilder{
		engine: &CopilotEngine{
			defaultModelID: defaultModelID,
			client:         client,
		},
	}
}

func (b *CopilotEngineBuilder) Build() *CopilotEngine {
	return b.engine
}

// Initialize implements [Engine]. The client is started lazily on first use.
func (e *CopilotEngine) Initialize(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

// Generate implements [Engine]. Every model is asked in parallel; if any of
// them fails the whole call fails.
func (e *CopilotEngine) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("nil req was passed to CopilotEngine.Generate")
	}
	if len(req.Models) == 0 {
		return nil, ErrNoModels
	}
	if req.Timeout <= 0 {
		return nil, fmt.Errorf("positive Timeout is required")
	}

	if err := e.start(ctx); err != nil {
		return nil, err
	}

	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, req.Timeout)
	defer cancel()

	prompt := BuildGenerationPrompt(req.TestCase)
	files := contextFiles(req.TestCase)
	outputs := make([]models.ModelOutput, len(req.Models))

	eg, egCtx := errgroup.WithContext(ctx)

	for i, sel := range req.Models {
		eg.Go(func() error {
			text, err := e.send(egCtx, modelName(sel), prompt, nil, files)
			if err != nil {
				return fmt.Errorf("model %s: %w", sel.ModelID, err)
			}
			outputs[i] = newOutput(sel, text)
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}

	return &GenerateResponse{
		Outputs:    outputs,
		DurationMs: time.Since(start).Milliseconds(),
	}, nil
}

// Evaluate implements [Engine]. The judge reports each verdict through the
// submit_evaluation tool; a JSON reply is accepted as a fallback.
func (e *CopilotEngine) Evaluate(ctx context.Context, req *EvaluateRequest) (*EvaluateResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("nil req was passed to CopilotEngine.Evaluate")
	}
	if req.Timeout <= 0 {
		return nil, fmt.Errorf("positive Timeout is required")
	}

	if err := e.start(ctx); err != nil {
		return nil, err
	}

	judge := req.JudgeModel
	if judge == "" {
		judge = e.defaultModelID
	}

	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, req.Timeout)
	defer cancel()

	tools := newEvaluationTools()
	prompt := BuildEvaluationPrompt(req.TestCase, req.Outputs, req.Criteria, false)

	text, err := e.send(ctx, judge, prompt, tools.Tools, nil)
	if err != nil {
		return nil, fmt.Errorf("judge %s: %w", judge, err)
	}

	evals := tools.Evaluations()
	if len(evals) == 0 {
		parsed, parseErr := parseEvaluationReply(text)
		if parseErr != nil {
			slog.Debug("Judge reply was not JSON either", "error", parseErr)
			return nil, ErrNoEvaluations
		}
		evals = parsed
	}

	evals = normalizeEvaluations(evals, req.Outputs, req.Criteria)
	if len(evals) == 0 {
		return nil, ErrNoEvaluations
	}

	return &EvaluateResponse{
		Evaluations: evals,
		DurationMs:  time.Since(start).Milliseconds(),
	}, nil
}

// Shutdown cleans up resources
func (e *CopilotEngine) Shutdown(ctx context.Context) error {
	if err := e.client.Stop(); err != nil {
		// Log but continue cleanup
		slog.Info("failed to stop client", "error", err)
	}

	// safe now that every session has finished
	workspaces := func() []string {
		e.workspacesMu.Lock()
		defer e.workspacesMu.Unlock()
		workspaces := e.workspaces
		e.workspaces = nil
		return workspaces
	}()

	for _, ws := range workspaces {
		if err := os.RemoveAll(ws); err != nil {
			slog.Warn("failed to cleanup stale workspace", "path", ws, "error", err)
		}
	}

	return nil
}

func (e *CopilotEngine) start(ctx context.Context) error {
	e.startOnce.Do(func() {
		// NOTE: copilot client has an 'autostart' feature, but it runs into issues
		// when it tries to autostart from separate goroutines.
		e.startErr = e.client.Start(ctx)
	})

	if e.startErr != nil {
		return fmt.Errorf("copilot failed to start: %w", e.startErr)
	}
	return nil
}

// send runs one prompt in a fresh session and returns the assistant's text.
func (e *CopilotEngine) send(ctx context.Context, model, prompt string, tools []copilot.Tool, files []WorkspaceFile) (string, error) {
	workspaceDir, err := e.setupWorkspace(files)
	if err != nil {
		return "", err
	}

	session, err := e.client.CreateSession(ctx, &copilot.SessionConfig{
		Model:               model,
		Tools:               tools,
		OnPermissionRequest: allowAllTools,
		WorkingDirectory:    workspaceDir,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}

	slog.Debug("Copilot session created", "sessionID", session.SessionID(), "model", model)

	eventsCollector := NewSessionEventsCollector()

	unsubscribe := session.On(eventsCollector.On)
	defer unsubscribe()

	unsubscribe = session.On(utils.SessionToSlog)
	defer unsubscribe()

	_, err = session.SendAndWait(ctx, copilot.MessageOptions{
		Prompt: prompt,
	})
	if err != nil {
		return "", err
	}

	if msg := eventsCollector.ErrorMessage(); msg != "" {
		return "", errors.New(msg)
	}

	return eventsCollector.Output(), nil
}

func (e *CopilotEngine) setupWorkspace(files []WorkspaceFile) (string, error) {
	workspaceDir, err := os.MkdirTemp("", "arena-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp workspace: %w", err)
	}

	e.workspacesMu.Lock()
	e.workspaces = append(e.workspaces, workspaceDir)
	e.workspacesMu.Unlock()

	if err := writeWorkspaceFiles(workspaceDir, files); err != nil {
		return "", fmt.Errorf("failed to setup workspace %s: %w", workspaceDir, err)
	}

	return workspaceDir, nil
}

func allowAllTools(request copilot.PermissionRequest, invocation copilot.PermissionInvocation) (copilot.PermissionRequestResult, error) {
	// value for 'Kind' came from the permissions_test.go in the Copilot SDK.
	return copilot.PermissionRequestResult{Kind: "approved"}, nil
}

type evaluationTools struct {
	Tools []copilot.Tool

	mu          sync.Mutex
	evaluations []models.Evaluation
}

// Evaluations returns what the judge submitted, in submission order.
func (t *evaluationTools) Evaluations() []models.Evaluation {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]models.Evaluation(nil), t.evaluations...)
}

func newEvaluationTools() *evaluationTools {
	t := &evaluationTools{}

	t.Tools = []copilot.Tool{
		{
			Name:        submitEvaluationToolName,
			Description: "Records the scores for one model response. Call it once for every response being judged.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"model_id": map[string]any{
						"type":        "string",
						"description": "The model_id of the response being scored",
					},
					"rubric_scores": map[string]any{
						"type":                 "object",
						"description":          fmt.Sprintf("Criterion id to score, each between %d and %d", models.MinScore, models.MaxScore),
						"additionalProperties": map[string]any{"type": "number"},
					},
					"feedback": map[string]any{
						"type":        "string",
						"description": "Short explanation of the scores",
					},
					"suggestions": map[string]any{
						"type":        "array",
						"items":       map[string]any{"type": "string"},
						"description": "Concrete ways the prompt could be improved",
					},
				},
				"required": []string{"model_id", "rubric_scores"},
			},
			Handler: func(invocation copilot.ToolInvocation) (copilot.ToolResult, error) {
				eval, err := decodeEvaluation(invocation.Arguments)
				if err != nil {
					// a malformed call shouldn't fail the session, the judge can retry.
					slog.Warn("Ignoring malformed evaluation", "error", err)
					return copilot.ToolResult{}, nil
				}

				t.mu.Lock()
				t.evaluations = append(t.evaluations, eval)
				t.mu.Unlock()
				return copilot.ToolResult{}, nil
			},
		},
	}

	return t
}

func decodeEvaluation(args any) (models.Evaluation, error) {
	var eval models.Evaluation

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &eval,
	})
	if err != nil {
		return eval, err
	}

	if err := decoder.Decode(args); err != nil {
		return eval, err
	}

	if eval.ModelID == "" {
		return eval, errors.New("missing model_id")
	}
	return eval, nil
}
