package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	goopenai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/upb/sme-plug/services/providers"
)

// Known OpenAI-compatible endpoints
const (
	ProviderOpenAI = "openai"
	ProviderGroq   = "groq"
	ProviderGemini = "gemini"

	defaultOpenAIBaseURL = "https://api.openai.com/v1"
	defaultGroqBaseURL   = "https://api.groq.com/openai/v1"
	defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"

	defaultOpenAIModel = "gpt-4o-mini"
	defaultGroqModel   = "llama-3.3-70b-versatile"
	defaultGeminiModel = "gemini-2.0-flash"
)

// Adapter implements providers.Provider for any OpenAI-compatible API
type Adapter struct {
	name   string
	config providers.ProviderConfig
	client *goopenai.Client
	logger *zap.Logger
}

// NewAdapter creates an adapter. name selects the default base URL and model
// for "openai", "groq" and "gemini"; explicit config values always win.
func NewAdapter(name string, config providers.ProviderConfig, logger *zap.Logger) *Adapter {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL(name)
	}
	if config.Model == "" {
		config.Model = defaultModel(name)
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	return &Adapter{
		name:   name,
		config: config,
		client: newClient(config),
		logger: logger,
	}
}

func newClient(config providers.ProviderConfig) *goopenai.Client {
	clientConfig := goopenai.DefaultConfig(config.APIKey)
	clientConfig.BaseURL = config.BaseURL
	clientConfig.HTTPClient = &http.Client{Timeout: config.Timeout}
	return goopenai.NewClientWithConfig(clientConfig)
}

func defaultBaseURL(name string) string {
	switch name {
	case ProviderGroq:
		return defaultGroqBaseURL
	case ProviderGemini:
		return defaultGeminiBaseURL
	default:
		return defaultOpenAIBaseURL
	}
}

func defaultModel(name string) string {
	switch name {
	case ProviderGroq:
		return defaultGroqModel
	case ProviderGemini:
		return defaultGeminiModel
	default:
		return defaultOpenAIModel
	}
}

// Name returns the provider name
func (a *Adapter) Name() string {
	return a.name
}

// Model returns the model used when requests do not name one
func (a *Adapter) Model() string {
	return a.config.Model
}

// ChatCompletion performs a chat completion request, retrying retryable failures
// up to MaxRetries times with a linear backoff.
func (a *Adapter) ChatCompletion(ctx context.Context, req *providers.ChatRequest) (*providers.ChatResponse, error) {
	startTime := time.Now()
	openaiReq := a.buildRequest(req)

	var lastErr error
	for attempt := 0; attempt <= a.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(a.config.RetryDelay * time.Duration(attempt)):
			case <-ctx.Done():
				return nil, providers.NewProviderError(a.name, "CANCELLED", "request cancelled", 0, false, ctx.Err())
			}
			a.logger.Warn("retrying chat completion",
				zap.String("provider", a.name),
				zap.Int("attempt", attempt),
				zap.Error(lastErr),
			)
		}

		resp, err := a.client.CreateChatCompletion(ctx, openaiReq)
		if err == nil {
			if len(resp.Choices) == 0 {
				return nil, providers.NewProviderError(a.name, "EMPTY_RESPONSE", "provider returned no choices", http.StatusOK, false, nil)
			}
			return a.convertResponse(resp, time.Since(startTime)), nil
		}

		lastErr = a.convertError(ctx, err)
		if !providers.IsRetryable(lastErr) {
			return nil, lastErr
		}
	}

	return nil, lastErr
}

func (a *Adapter) buildRequest(req *providers.ChatRequest) goopenai.ChatCompletionRequest {
	model := req.Model
	if model == "" {
		model = a.config.Model
	}

	messages := make([]goopenai.ChatCompletionMessage, len(req.Messages))
	for i, msg := range req.Messages {
		messages[i] = goopenai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}

	return goopenai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
}

func (a *Adapter) convertResponse(resp goopenai.ChatCompletionResponse, latency time.Duration) *providers.ChatResponse {
	out := &providers.ChatResponse{
		ID:       resp.ID,
		Model:    resp.Model,
		Provider: a.name,
		Choices:  make([]providers.Choice, len(resp.Choices)),
		Usage: providers.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
		Latency: latency,
		Created: time.Unix(resp.Created, 0),
	}

	for i, choice := range resp.Choices {
		out.Choices[i] = providers.Choice{
			Index: choice.Index,
			Message: providers.Message{
				Role:    choice.Message.Role,
				Content: choice.Message.Content,
			},
			FinishReason: string(choice.FinishReason),
		}
	}
	return out
}

// convertError maps client errors to ProviderError. Rate limits, server errors
// and transport failures are retryable; cancellation is not.
func (a *Adapter) convertError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return providers.NewProviderError(a.name, "CANCELLED", "request cancelled", 0, false, err)
	}

	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.Type
		if apiErr.Code != nil {
			code = fmt.Sprint(apiErr.Code)
		}
		return providers.NewProviderError(a.name, code, apiErr.Message, apiErr.HTTPStatusCode,
			isRetryableStatus(apiErr.HTTPStatusCode), err)
	}

	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		return providers.NewProviderError(a.name, "HTTP_ERROR", "provider request failed", reqErr.HTTPStatusCode,
			isRetryableStatus(reqErr.HTTPStatusCode), err)
	}

	return providers.NewProviderError(a.name, "TRANSPORT_ERROR", "provider unreachable", 0, true, err)
}

func isRetryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}
