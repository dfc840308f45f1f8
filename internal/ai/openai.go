package ai

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

	"go.uber.org/zap"

	"contentplanner/pkg/circuitbreaker"
	"contentplanner/pkg/config"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "gpt-4o-mini"
	defaultTimeout = 30 * time.Second
	maxErrorBody   = 512
)

// OpenAIClient calls an OpenAI compatible chat completions endpoint in JSON
// mode. Calls go through a circuit breaker so a dead endpoint fails fast.
type OpenAIClient struct {
	baseURL string
	apiKey  string
	model   string
	http    *http.Client
	breaker *circuitbreaker.CircuitBreaker
	logger  *zap.Logger
}

func NewOpenAIClient(cfg config.AIConfig, logger *zap.Logger) *OpenAIClient {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	modelName := cfg.Model
	if modelName == "" {
		modelName = defaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	cbCfg := circuitbreaker.DefaultConfig()
	cbCfg.IsFailure = func(err error) bool {
		return !errors.Is(err, context.Canceled) && !errors.Is(err, ErrMalformedOutput)
	}
	cbCfg.OnStateChange = func(from, to circuitbreaker.State) {
		logger.Warn("AI circuit breaker state changed",
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
	}

	return &OpenAIClient{
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
		model:   modelName,
		http:    &http.Client{Timeout: timeout},
		breaker: circuitbreaker.NewCircuitBreaker(cbCfg),
		logger:  logger,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	ResponseFormat map[string]any `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (c *OpenAIClient) Invoke(ctx context.Context, prompt string, out any) error {
	err := c.breaker.Execute(func() error {
		return c.invoke(ctx, prompt, out)
	})
	if errors.Is(err, circuitbreaker.ErrCircuitBreakerOpen) {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return err
}

func (c *OpenAIClient) invoke(ctx context.Context, prompt string, out any) error {
	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		ResponseFormat: map[string]any{"type": "json_object"},
	})
	if err != nil {
		return fmt.Errorf("ai: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("ai: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var chat chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		return fmt.Errorf("%w: decode response: %w", ErrMalformedOutput, err)
	}
	if len(chat.Choices) == 0 {
		return fmt.Errorf("%w: no choices", ErrMalformedOutput)
	}
	if err := json.Unmarshal([]byte(chat.Choices[0].Message.Content), out); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedOutput, err)
	}
	return nil
}
