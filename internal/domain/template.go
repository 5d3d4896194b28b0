package domain

import (
	"fmt"
	"strings"
)

// Placeholders understood by remote judge prompt templates.
const (
	PlaceholderQuestion = "question"
	PlaceholderPredict  = "predict"
	PlaceholderLabel    = "label"
)

// JudgeTemplate is a prompt template in which only whitelisted {name}
// placeholders are substituted. Every other brace is literal, so stray format
// tokens in documentation examples or in substituted values cannot be
// expanded.
type JudgeTemplate struct {
	raw     string
	allowed []string
}

// NewJudgeTemplate checks that raw is non-blank and contains each required
// placeholder. allowed lists every placeholder that may be substituted; the
// required ones are added to it.
func NewJudgeTemplate(raw string, required []string, allowed ...string) (JudgeTemplate, error) {
	if strings.TrimSpace(raw) == "" {
		return JudgeTemplate{}, fmt.Errorf("judge template is empty: %w", ErrInvalidConfiguration)
	}
	var missing []string
	for _, name := range required {
		if !strings.Contains(raw, "{"+name+"}") {
			missing = append(missing, "{"+name+"}")
		}
	}
	if len(missing) > 0 {
		return JudgeTemplate{}, fmt.Errorf("judge template missing placeholders %s: %w",
			strings.Join(missing, ", "), ErrInvalidConfiguration)
	}

	seen := make(map[string]bool, len(required)+len(allowed))
	names := make([]string, 0, len(required)+len(allowed))
	for _, n := range append(append([]string{}, required...), allowed...) {
		if !seen[n] {
			seen[n] = true
			names = append(names, n)
		}
	}
	return JudgeTemplate{raw: raw, allowed: names}, nil
}

// Raw returns the unrendered template text.
func (t JudgeTemplate) Raw() string { return t.raw }

// IsZero reports whether the template was never configured.
func (t JudgeTemplate) IsZero() bool { return t.raw == "" }

// Render substitutes whitelisted placeholders in a single pass. Values are
// inserted verbatim and never re-scanned. Placeholders without a value render
// as the empty string.
func (t JudgeTemplate) Render(values map[string]string) string {
	pairs := make([]string, 0, 2*len(t.allowed))
	for _, name := range t.allowed {
		pairs = append(pairs, "{"+name+"}", values[name])
	}
	return strings.NewReplacer(pairs...).Replace(t.raw)
}
