package theming

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/xaenox/concern-cloud/internal/apperr"
	"github.com/xaenox/concern-cloud/internal/models"
)

type OpenAIOptions struct {
	APIKey          string
	BaseURL         string
	Model           string
	MaxTokens       int
	Temperature     float64
	Timeout         time.Duration
	BreakerFailures uint32
	BreakerTimeout  time.Duration
	HTTPClient      *http.Client
}

// OpenAIThemer asks a chat completion model for a JSON theme grouping.
type OpenAIThemer struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float64
	timeout     time.Duration
	breaker     *gobreaker.CircuitBreaker
	logger      *zap.Logger
}

func NewOpenAIThemer(opts OpenAIOptions, logger *zap.Logger) *OpenAIThemer {
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	if opts.HTTPClient != nil {
		cfg.HTTPClient = opts.HTTPClient
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	failures := opts.BreakerFailures
	if failures == 0 {
		failures = 5
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "openai-theming",
		MaxRequests: 1,
		Timeout:     opts.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return &OpenAIThemer{
		client:      openai.NewClientWithConfig(cfg),
		model:       opts.Model,
		maxTokens:   opts.MaxTokens,
		temperature: opts.Temperature,
		timeout:     opts.Timeout,
		breaker:     breaker,
		logger:      logger,
	}
}

func (t *OpenAIThemer) Theme(ctx context.Context, concerns []models.ThemedConcern, sessionID string) (*models.ThemeSet, error) {
	prompt, err := BuildPrompt(concerns)
	if err != nil {
		return nil, apperr.Internalf(err, "failed to build theming prompt")
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model: t.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   t.maxTokens,
		Temperature: float32(t.temperature),
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		User: sessionID,
	}

	out, err := t.breaker.Execute(func() (interface{}, error) {
		return t.client.CreateChatCompletion(ctx, req)
	})
	if err != nil {
		t.logger.Error("Failed to get theming response",
			zap.Error(err),
			zap.String("session_id", sessionID),
			zap.Int("concerns", len(concerns)))
		return nil, upstreamError(err)
	}

	resp := out.(openai.ChatCompletionResponse)
	if len(resp.Choices) == 0 {
		return nil, apperr.Processing("theming response has no choices", nil)
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)

	set, err := ParseResponse(content, concerns)
	if err != nil {
		t.logger.Error("Failed to parse theming response",
			zap.Error(err),
			zap.String("session_id", sessionID),
			zap.String("finish_reason", string(resp.Choices[0].FinishReason)),
			zap.String("response", content))
		return nil, err
	}
	return set, nil
}

func upstreamError(err error) *apperr.Error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return apperr.Upstream("theming service temporarily unavailable", err).WithDetail("breaker", "open")
	}

	e := apperr.Upstream("Failed to process concerns", err).WithDetail("details", err.Error())

	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		e.WithDetail("status", apiErr.HTTPStatusCode)
	case errors.As(err, &reqErr):
		e.WithDetail("status", reqErr.HTTPStatusCode)
	case errors.Is(err, context.DeadlineExceeded):
		e.Message = "theming request timed out"
	}
	return e
}
