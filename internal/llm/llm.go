package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const (
	maxAttempts = 3
	retryDelay  = time.Second
)

// Client wraps an OpenAI-compatible API client. It retries transport
// failures a bounded number of times. Content problems in a reply that
// did arrive are never retried here; the score package absorbs those.
type Client struct {
	api   *openai.Client
	model string
}

// New creates a new LLM client.
func New(baseURL, apiKey, modelName string) *Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Client{
		api:   openai.NewClientWithConfig(config),
		model: modelName,
	}
}

// Generate produces a free-form reply for the given prompt. Used for
// the author persona answers and report narratives.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	return c.complete(ctx, prompt, nil, 0.7)
}

// GenerateJSON produces a reply with JSON response format requested.
// Callers must still treat the result as untrusted text: not every
// endpoint honors the format hint.
func (c *Client) GenerateJSON(ctx context.Context, prompt string) (string, error) {
	format := &openai.ChatCompletionResponseFormat{
		Type: openai.ChatCompletionResponseFormatTypeJSONObject,
	}
	return c.complete(ctx, prompt, format, 0.3)
}

// Ping verifies the endpoint is reachable before serving traffic.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.api.ListModels(ctx)
	if err != nil {
		return fmt.Errorf("LLM endpoint unreachable: %w", err)
	}
	return nil
}

func (c *Client) complete(ctx context.Context, prompt string, format *openai.ChatCompletionResponseFormat, temperature float32) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: format,
		Temperature:    temperature,
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		resp, err := c.api.CreateChatCompletion(ctx, req)
		if err == nil {
			if len(resp.Choices) == 0 {
				lastErr = fmt.Errorf("LLM returned no choices")
			} else {
				return resp.Choices[0].Message.Content, nil
			}
		} else {
			lastErr = err
		}

		if attempt < maxAttempts {
			slog.Warn("LLM call failed, retrying", "attempt", attempt, "error", lastErr)
			select {
			case <-time.After(retryDelay):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
	}
	return "", fmt.Errorf("LLM API call after %d attempts: %w", maxAttempts, lastErr)
}
