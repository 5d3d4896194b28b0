package llm

// charsPerToken approximates English tokenization when a provider omits
// usage data.
const charsPerToken = 4.0

// estimateTokens approximates the token count of text.
func estimateTokens(text string) int {
	return int(float64(len(text)) / charsPerToken)
}

// tokensOr returns reported when the provider supplied a positive count and
// an estimate over text otherwise.
func tokensOr(reported int64, text string) int {
	if reported > 0 {
		return int(reported)
	}
	return estimateTokens(text)
}

// maxTokens returns the request's token cap or the default.
func (r CompletionRequest) maxTokens() int {
	if r.MaxTokens > 0 {
		return r.MaxTokens
	}
	return DefaultMaxTokens
}
