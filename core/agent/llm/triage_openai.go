package llm

import (
	"context"
	"errors"
	"net/http"
	"time"

	"triage_server/core/domain"
	"triage_server/core/port/out"
	"triage_server/pkg/apperr"
	"triage_server/pkg/httputil"
	"triage_server/pkg/metrics"
	"triage_server/pkg/resilience"

	openai "github.com/sashabaranov/go-openai"
)

const DefaultModel = "gpt-4o-mini"

type OpenAIConfig struct {
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
	// BaseURL overrides the API endpoint (proxies, tests).
	BaseURL string
}

// OpenAIClassifier asks a chat model for a JSON object.
type OpenAIClassifier struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
	breaker     *resilience.Breaker
}

func NewOpenAIClassifier(cfg OpenAIConfig) *OpenAIClassifier {
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1024
	}
	temperature := cfg.Temperature
	if temperature == 0 {
		temperature = 0.2
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.HTTPClient = httputil.NewOptimizedClient(httputil.LLMClientConfig(cfg.Timeout))
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &OpenAIClassifier{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       model,
		maxTokens:   maxTokens,
		temperature: float32(temperature),
		breaker:     resilience.NewBreaker(resilience.DefaultBreakerConfig("openai")),
	}
}

func (c *OpenAIClassifier) Name() string { return "openai" }

// Classify requests JSON-object output but returns the text as is.
func (c *OpenAIClassifier) Classify(ctx context.Context, prompt string) (*domain.RawResponse, error) {
	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	start := time.Now()
	var resp openai.ChatCompletionResponse
	err := c.breaker.Execute(func() error {
		var callErr error
		resp, callErr = c.client.CreateChatCompletion(ctx, req)
		return callErr
	}, func(err error) bool {
		return isClientStatus(openAIStatus(err))
	})
	if err != nil {
		metrics.RecordClassify(c.Name(), "error", time.Since(start))
		return nil, openAITransportError(err)
	}
	metrics.RecordClassify(c.Name(), "ok", time.Since(start))

	raw := &domain.RawResponse{Model: resp.Model}
	for _, choice := range resp.Choices {
		if choice.Message.Content == "" {
			continue
		}
		raw.Candidates = append(raw.Candidates, choice.Message.Content)
	}
	if len(resp.Choices) > 0 {
		raw.FinishReason = string(resp.Choices[0].FinishReason)
	}
	return raw, nil
}

func openAIStatus(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

func openAITransportError(err error) *apperr.AppError {
	if resilience.IsRejected(err) {
		return apperr.Transport("openai", 0, "circuit breaker open", err)
	}
	body := ""
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		body = apiErr.Message
	}
	return apperr.Transport("openai", openAIStatus(err), body, err)
}

// isClientStatus is true for 4xx responses other than timeouts and rate limits.
func isClientStatus(status int) bool {
	return status >= 400 && status < 500 &&
		status != http.StatusTooManyRequests && status != http.StatusRequestTimeout
}

var _ out.ClassificationService = (*OpenAIClassifier)(nil)
