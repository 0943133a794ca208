// pkg/llmclient/openai_client.go
package llmclient

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/xkilldash9x/glimpse-cli/internal/config"
	"github.com/xkilldash9x/glimpse-cli/pkg/prompt"
)

// OpenAIClient implements Client against any OpenAI-compatible chat API,
// including OpenRouter (the default base URL).
type OpenAIClient struct {
	client *openai.Client
	config config.LLMConfig
	logger *zap.Logger
}

// NewOpenAIClient initializes the client.
func NewOpenAIClient(cfg config.LLMConfig, logger *zap.Logger) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("LLM API key is required (set GLIMPSE_LLM_API_KEY)")
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	clientCfg.HTTPClient = &http.Client{Timeout: cfg.APITimeout}

	return &OpenAIClient{
		client: openai.NewClientWithConfig(clientCfg),
		config: cfg,
		logger: logger.Named("llm_client.openai"),
	}, nil
}

// Complete sends the prompt and screenshot and returns the model reply, with
// retries on transient API failures.
func (c *OpenAIClient) Complete(ctx context.Context, p prompt.PromptContext) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.config.Model,
		Temperature: c.config.Temperature,
		MaxTokens:   c.config.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: p.System},
			c.userMessage(p),
		},
	}

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = 2 * time.Minute
	policy.MaxInterval = 30 * time.Second

	var content string
	operation := func() error {
		start := time.Now()
		resp, err := c.client.CreateChatCompletion(ctx, req)
		if err != nil {
			return c.classifyError(err)
		}
		if len(resp.Choices) == 0 {
			return backoff.Permanent(fmt.Errorf("chat API returned no choices"))
		}

		c.logger.Info("LLM generation complete (OpenAI)",
			zap.Duration("duration", time.Since(start)),
			zap.Int("prompt_tokens", resp.Usage.PromptTokens),
			zap.Int("completion_tokens", resp.Usage.CompletionTokens),
			zap.Int("total_tokens", resp.Usage.TotalTokens),
		)

		content = resp.Choices[0].Message.Content
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		return "", err
	}
	return content, nil
}

func (c *OpenAIClient) userMessage(p prompt.PromptContext) openai.ChatCompletionMessage {
	if len(p.ImagePNG) == 0 {
		return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: p.User}
	}
	return openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleUser,
		MultiContent: []openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeText, Text: p.User},
			{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL:    "data:image/png;base64," + base64.StdEncoding.EncodeToString(p.ImagePNG),
					Detail: openai.ImageURLDetailAuto,
				},
			},
		},
	}
}

func (c *OpenAIClient) classifyError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusServiceUnavailable:
			c.logger.Warn("Transient chat API error, retrying...", zap.Int("status", apiErr.HTTPStatusCode), zap.Error(err))
			return err
		default:
			c.logger.Error("Chat API rejected request", zap.Int("status", apiErr.HTTPStatusCode), zap.Error(err))
			return backoff.Permanent(err)
		}
	}
	c.logger.Warn("Network error during LLM request, retrying...", zap.Error(err))
	return err
}
