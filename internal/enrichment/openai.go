package enrichment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/STRATINT/newsdesk/internal/config"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAIClient summarizes articles with the chat completions API.
type OpenAIClient struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	timeout     time.Duration
	maxRetries  int
	retryDelay  time.Duration
	logger      *slog.Logger
}

// NewOpenAIClient creates an enricher from cfg. BaseURL may point at any
// OpenAI-compatible endpoint.
func NewOpenAIClient(cfg config.EnrichmentConfig, logger *slog.Logger) *OpenAIClient {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout + 5*time.Second}

	if logger == nil {
		logger = slog.Default()
	}

	return &OpenAIClient{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		timeout:     cfg.Timeout,
		maxRetries:  3,
		retryDelay:  time.Second,
		logger:      logger,
	}
}

// Enrich asks the model for a summary and tags. Rate-limited calls are retried with
// exponential backoff.
func (c *OpenAIClient) Enrich(ctx context.Context, req EnrichRequest) (Enrichment, error) {
	request := c.buildRequest(buildUserPrompt(req))

	var (
		resp openai.ChatCompletionResponse
		err  error
	)
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		start := time.Now()
		apiCtx, cancel := context.WithTimeout(ctx, c.timeout)
		resp, err = c.client.CreateChatCompletion(apiCtx, request)
		cancel()

		c.logger.Debug("openai call complete",
			"url", req.Item.URL,
			"attempt", attempt+1,
			"duration_ms", time.Since(start).Milliseconds(),
			"success", err == nil)

		if err == nil || !isRateLimited(err) || attempt == c.maxRetries-1 {
			break
		}

		delay := c.retryDelay * time.Duration(1<<uint(attempt))
		c.logger.Warn("openai rate limit hit", "attempt", attempt+1, "retry_in", delay.String())
		select {
		case <-ctx.Done():
			return Enrichment{}, ctx.Err()
		case <-time.After(delay):
		}
	}
	if err != nil {
		return Enrichment{}, fmt.Errorf("openai chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return Enrichment{}, errors.New("openai returned no choices")
	}
	return parseEnrichment(resp.Choices[0].Message.Content)
}

// buildRequest uses JSON mode and a system message, except for reasoning models which
// accept neither.
func (c *OpenAIClient) buildRequest(prompt string) openai.ChatCompletionRequest {
	if isReasoningModel(c.model) {
		return openai.ChatCompletionRequest{
			Model:               c.model,
			MaxCompletionTokens: c.maxTokens,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleUser, Content: systemPrompt + "\n\n" + prompt},
			},
		}
	}

	return openai.ChatCompletionRequest{
		Model:               c.model,
		Temperature:         c.temperature,
		MaxCompletionTokens: c.maxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}
}

func isReasoningModel(model string) bool {
	m := strings.ToLower(model)
	return strings.HasPrefix(m, "o1") || strings.HasPrefix(m, "o3") || strings.HasPrefix(m, "o4") || strings.HasPrefix(m, "gpt-5")
}

func isRateLimited(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests
	}
	return false
}
