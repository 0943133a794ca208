// pkg/llmclient/client.go

// Package llmclient provides the reasoning backends. Each backend accepts the
// rendered prompt document plus the annotated screenshot and returns the raw
// model reply; parsing that reply is pkg/action's job.
package llmclient

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/glimpse-cli/internal/config"
	"github.com/xkilldash9x/glimpse-cli/pkg/prompt"
)

// Client is the reasoning surface the agent loop depends on.
type Client interface {
	Complete(ctx context.Context, p prompt.PromptContext) (string, error)
}

// New selects a backend from the configuration.
func New(cfg config.LLMConfig, logger *zap.Logger) (Client, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		return NewOpenAIClient(cfg, logger)
	case config.ProviderGemini:
		return NewGeminiClient(cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %q", cfg.Provider)
	}
}
