package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// ProviderAnthropic serves Anthropic's Messages API.
const ProviderAnthropic = "anthropic"

func init() {
	RegisterProviderFactory(ProviderAnthropic, newAnthropicProvider)
}

type anthropicProvider struct {
	client     anthropic.Client
	model      string
	classifier ErrorClassifier
}

func newAnthropicProvider(config ClientConfig) (CoreLLM, error) {
	if config.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}

	opts := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
		// Retries belong to the middleware chain.
		option.WithMaxRetries(0),
	}
	if config.BaseURL != "" {
		baseURL, err := ValidateBaseURL(config.BaseURL)
		if err != nil {
			return nil, err
		}
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if timeout := ValidateTimeout(config.Timeout); timeout > 0 {
		opts = append(opts, option.WithHTTPClient(&http.Client{Timeout: timeout}))
	}

	return &anthropicProvider{
		client:     anthropic.NewClient(opts...),
		model:      config.Model,
		classifier: ErrorClassifier{Provider: ProviderAnthropic},
	}, nil
}

// Complete implements CoreLLM.
func (p *anthropicProvider) Complete(ctx context.Context, req CompletionRequest) (Completion, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: int64(req.maxTokens()),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.Temperature != nil {
		// Anthropic accepts [0, 1].
		params.Temperature = anthropic.Float(ClampFloat64(*req.Temperature, 0, 1))
	}
	if req.TopP != nil {
		params.TopP = anthropic.Float(ClampFloat64(*req.TopP, 0, MaxTopP))
	}

	message, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return Completion{}, p.handleError(err)
	}

	var text strings.Builder
	for _, block := range message.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			text.WriteString(tb.Text)
		}
	}
	if text.Len() == 0 {
		return Completion{}, ErrEmptyResponse
	}

	reply := text.String()
	return Completion{
		Text:      reply,
		TokensIn:  tokensOr(message.Usage.InputTokens, req.Prompt),
		TokensOut: tokensOr(message.Usage.OutputTokens, reply),
	}, nil
}

func (p *anthropicProvider) handleError(err error) error {
	if isContextError(err) {
		return p.classifier.ClassifyContextError(err)
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return p.classifier.ClassifyHTTPError(apiErr.StatusCode, "messages request failed", err)
	}
	return NewProviderError(ProviderAnthropic, ErrorTypeNetwork, 0, "request failed", err)
}

// Model implements CoreLLM.
func (p *anthropicProvider) Model() string { return p.model }

// Provider implements CoreLLM.
func (p *anthropicProvider) Provider() string { return ProviderAnthropic }
