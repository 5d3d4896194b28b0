package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"

	"google.golang.org/api/googleapi"
	"google.golang.org/genai"
)

// ProviderGoogle serves the Gemini API.
const ProviderGoogle = "google"

func init() {
	RegisterProviderFactory(ProviderGoogle, newGoogleProvider)
}

type googleProvider struct {
	client     *genai.Client
	model      string
	classifier ErrorClassifier
}

func newGoogleProvider(config ClientConfig) (CoreLLM, error) {
	if config.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}

	clientConfig := &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if config.BaseURL != "" {
		baseURL, err := ValidateBaseURL(config.BaseURL)
		if err != nil {
			return nil, err
		}
		clientConfig.HTTPOptions.BaseURL = baseURL
	}
	if timeout := ValidateTimeout(config.Timeout); timeout > 0 {
		clientConfig.HTTPClient = &http.Client{Timeout: timeout}
	}

	client, err := genai.NewClient(context.Background(), clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Google client: %w", err)
	}

	return &googleProvider{
		client:     client,
		model:      config.Model,
		classifier: ErrorClassifier{Provider: ProviderGoogle},
	}, nil
}

// Complete implements CoreLLM.
func (p *googleProvider) Complete(ctx context.Context, req CompletionRequest) (Completion, error) {
	contents := []*genai.Content{genai.NewContentFromText(req.Prompt, genai.RoleUser)}

	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, generationConfig(req))
	if err != nil {
		return Completion{}, p.handleError(err)
	}

	text := resp.Text()
	if text == "" {
		return Completion{}, ErrEmptyResponse
	}

	var in, out int64
	if usage := resp.UsageMetadata; usage != nil {
		in, out = int64(usage.PromptTokenCount), int64(usage.CandidatesTokenCount)
	}
	return Completion{
		Text:      text,
		TokensIn:  tokensOr(in, req.Prompt),
		TokensOut: tokensOr(out, text),
	}, nil
}

func generationConfig(req CompletionRequest) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(min(req.maxTokens(), math.MaxInt32)),
	}
	if req.Temperature != nil {
		config.Temperature = genai.Ptr(float32(ClampFloat64(*req.Temperature, 0, MaxTemperature)))
	}
	if req.TopP != nil {
		config.TopP = genai.Ptr(float32(ClampFloat64(*req.TopP, 0, MaxTopP)))
	}
	return config
}

func (p *googleProvider) handleError(err error) error {
	if isContextError(err) {
		return p.classifier.ClassifyContextError(err)
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if isSafetyBlock(apiErr.Message) {
			return NewProviderError(ProviderGoogle, ErrorTypeContentPolicy, apiErr.Code,
				"request blocked by safety filters", err)
		}
		return p.classifier.ClassifyHTTPError(apiErr.Code, apiErr.Message, err)
	}

	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		message := gErr.Message
		if message == "" && len(gErr.Errors) > 0 {
			message = gErr.Errors[0].Message
		}
		if isSafetyBlock(message) {
			return NewProviderError(ProviderGoogle, ErrorTypeContentPolicy, gErr.Code,
				"request blocked by safety filters", err)
		}
		return p.classifier.ClassifyHTTPError(gErr.Code, message, err)
	}

	return NewProviderError(ProviderGoogle, ErrorTypeNetwork, 0, "request failed", err)
}

func isSafetyBlock(message string) bool {
	lower := strings.ToLower(message)
	return strings.Contains(lower, "safety") || strings.Contains(lower, "blocked")
}

// Model implements CoreLLM.
func (p *googleProvider) Model() string { return p.model }

// Provider implements CoreLLM.
func (p *googleProvider) Provider() string { return ProviderGoogle }
