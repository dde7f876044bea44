package main

import (
	"fmt"
	"os"

	"github.com/spboyer/arena/internal/execution"
	"github.com/spboyer/arena/internal/projectconfig"
)

// Engine names accepted by --engine and the run file's config.engine.
const (
	engineMock    = "mock"
	engineCopilot = "copilot-sdk"
	engineGateway = "gateway"
)

// Environment variables read by the gateway engine.
const (
	envGatewayURL    = "ARENA_GATEWAY_URL"
	envGatewayAPIKey = "ARENA_GATEWAY_API_KEY"
)

// newEngine creates the engine named by engineType. judgeModel is the
// fallback judge when no evaluation slot was assigned.
func newEngine(engineType, judgeModel string, pc *projectconfig.ProjectConfig) (execution.Engine, error) {
	switch engineType {
	case engineMock:
		return execution.NewMockEngine(), nil
	case engineCopilot:
		return execution.NewCopilotEngineBuilder(judgeModel, nil).Build(), nil
	case engineGateway:
		baseURL := os.Getenv(envGatewayURL)
		if baseURL == "" && pc != nil {
			baseURL = pc.Gateway.BaseURL
		}
		if baseURL == "" {
			return nil, fmt.Errorf("gateway engine needs a base URL: set %s or gateway.base_url in %s", envGatewayURL, projectconfig.FileName)
		}
		engine, err := execution.NewGatewayEngine(execution.GatewayOptions{
			BaseURL:    baseURL,
			APIKey:     os.Getenv(envGatewayAPIKey),
			JudgeModel: judgeModel,
		})
		if err != nil {
			return nil, err
		}
		return engine, nil
	default:
		return nil, fmt.Errorf("unknown engine type: %s (supported: %s, %s, %s)", engineType, engineMock, engineCopilot, engineGateway)
	}
}
