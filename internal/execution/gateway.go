package execution

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spboyer/arena/internal/models"
	"golang.org/x/sync/errgroup"
)

// GatewayOptions configures a GatewayEngine.
type GatewayOptions struct {
	// BaseURL of an OpenAI-compatible API, without the /v1 suffix.
	BaseURL string
	APIKey  string

	// JudgeModel is used when an evaluate request doesn't name one.
	JudgeModel string

	HTTPClient *http.Client
}

// GatewayEngine calls an OpenAI-compatible chat completions endpoint.
type GatewayEngine struct {
	baseURL    string
	apiKey     string
	judgeModel string
	client     *http.Client
}

// NewGatewayEngine creates a GatewayEngine.
func NewGatewayEngine(opts GatewayOptions) (*GatewayEngine, error) {
	if opts.BaseURL == "" {
		return nil, errors.New("gateway base URL is required")
	}

	client := opts.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	return &GatewayEngine{
		baseURL:    strings.TrimSuffix(opts.BaseURL, "/"),
		apiKey:     opts.APIKey,
		judgeModel: opts.JudgeModel,
		client:     client,
	}, nil
}

func (g *GatewayEngine) Initialize(ctx context.Context) error {
	return ctx.Err()
}

// Generate implements [Engine].
func (g *GatewayEngine) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("nil req was passed to GatewayEngine.Generate")
	}
	if len(req.Models) == 0 {
		return nil, ErrNoModels
	}

	start := time.Now()
	ctx, cancel := withOptionalTimeout(ctx, req.Timeout)
	defer cancel()

	prompt := BuildGenerationPrompt(req.TestCase)
	outputs := make([]models.ModelOutput, len(req.Models))

	eg, egCtx := errgroup.WithContext(ctx)
	for i, sel := range req.Models {
		eg.Go(func() error {
			text, err := g.complete(egCtx, modelName(sel), prompt, nil)
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

	return &GenerateResponse{Outputs: outputs, DurationMs: time.Since(start).Milliseconds()}, nil
}

// Evaluate implements [Engine].
func (g *GatewayEngine) Evaluate(ctx context.Context, req *EvaluateRequest) (*EvaluateResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("nil req was passed to GatewayEngine.Evaluate")
	}

	judge := req.JudgeModel
	if judge == "" {
		judge = g.judgeModel
	}
	if judge == "" {
		return nil, errors.New("no judge model configured")
	}

	start := time.Now()
	ctx, cancel := withOptionalTimeout(ctx, req.Timeout)
	defer cancel()

	prompt := BuildEvaluationPrompt(req.TestCase, req.Outputs, req.Criteria, true)

	zero := 0.0
	text, err := g.complete(ctx, judge, prompt, &zero)
	if err != nil {
		return nil, fmt.Errorf("judge %s: %w", judge, err)
	}

	evals, err := parseEvaluationReply(text)
	if err != nil {
		return nil, err
	}

	evals = normalizeEvaluations(evals, req.Outputs, req.Criteria)
	if len(evals) == 0 {
		return nil, ErrNoEvaluations
	}

	return &EvaluateResponse{Evaluations: evals, DurationMs: time.Since(start).Milliseconds()}, nil
}

func (g *GatewayEngine) Shutdown(ctx context.Context) error {
	g.client.CloseIdleConnections()
	return nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (g *GatewayEngine) complete(ctx context.Context, model, prompt string, temperature *float64) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:       model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: temperature,
	})
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("gateway returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var chat chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		return "", fmt.Errorf("decoding gateway response: %w", err)
	}
	if len(chat.Choices) == 0 {
		return "", errors.New("no choices in response")
	}

	return chat.Choices[0].Message.Content, nil
}

func withOptionalTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
