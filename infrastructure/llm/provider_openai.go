package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

// ProviderOpenAI serves any OpenAI-compatible chat completion endpoint,
// including self-hosted vLLM judges.
const ProviderOpenAI = "openai"

func init() {
	RegisterProviderFactory(ProviderOpenAI, newOpenAIProvider)
}

// openAIProvider sends a single user message per request and returns the
// first choice.
type openAIProvider struct {
	client     *openai.Client
	model      string
	classifier ErrorClassifier
}

func newOpenAIProvider(config ClientConfig) (CoreLLM, error) {
	if config.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		baseURL, err := ValidateBaseURL(OpenAIBaseURL(config.BaseURL))
		if err != nil {
			return nil, fmt.Errorf("invalid BaseURL: %w", err)
		}
		clientConfig.BaseURL = baseURL
	}
	if timeout := ValidateTimeout(config.Timeout); timeout > 0 {
		clientConfig.HTTPClient = &http.Client{Timeout: timeout}
	}

	return &openAIProvider{
		client:     openai.NewClientWithConfig(clientConfig),
		model:      config.Model,
		classifier: ErrorClassifier{Provider: ProviderOpenAI},
	}, nil
}

// Complete implements CoreLLM.
func (p *openAIProvider) Complete(ctx context.Context, req CompletionRequest) (Completion, error) {
	chat := openai.ChatCompletionRequest{
		Model:     p.model,
		Messages:  []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleUser, Content: req.Prompt}},
		MaxTokens: req.maxTokens(),
	}
	if req.Temperature != nil {
		chat.Temperature = openAITemperature(*req.Temperature)
	}
	if req.TopP != nil {
		chat.TopP = float32(ClampFloat64(*req.TopP, 0, MaxTopP))
	}

	resp, err := p.client.CreateChatCompletion(ctx, chat)
	if err != nil {
		return Completion{}, p.handleError(err)
	}
	if len(resp.Choices) == 0 {
		return Completion{}, ErrNoResponseChoice
	}

	text := resp.Choices[0].Message.Content
	return Completion{
		Text:      text,
		TokensIn:  tokensOr(int64(resp.Usage.PromptTokens), req.Prompt),
		TokensOut: tokensOr(int64(resp.Usage.CompletionTokens), text),
	}, nil
}

func (p *openAIProvider) handleError(err error) error {
	if isContextError(err) {
		return p.classifier.ClassifyContextError(err)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		message := apiErr.Message
		if message == "" {
			message = "unknown error"
		}
		return p.classifier.ClassifyHTTPError(apiErr.HTTPStatusCode, message, err)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return p.classifier.ClassifyHTTPError(reqErr.HTTPStatusCode, "request failed", err)
	}

	return NewProviderError(ProviderOpenAI, ErrorTypeNetwork, 0, "request failed", err)
}

// Model implements CoreLLM.
func (p *openAIProvider) Model() string { return p.model }

// Provider implements CoreLLM.
func (p *openAIProvider) Provider() string { return ProviderOpenAI }

// openAITemperature clamps t to the accepted range. go-openai omits a zero
// temperature from the payload, which lets the server apply its own default,
// so zero is sent as the smallest positive float32.
func openAITemperature(t float64) float32 {
	clamped := float32(ClampFloat64(t, 0, MaxTemperature))
	if clamped == 0 {
		return math.SmallestNonzeroFloat32
	}
	return clamped
}
