package verifiers

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ahrav/go-reward/internal/domain"
	"github.com/ahrav/go-reward/internal/ports"
)

// Panel sends one rendered prompt to every configured judge endpoint in
// order and combines their replies. A Panel is immutable after construction.
type Panel struct {
	name      string
	judge     ports.RemoteJudge
	endpoints []ports.Endpoint
	template  domain.JudgeTemplate
	settings  JudgeSettings
	logger    *slog.Logger
}

// newPanel builds the fallback panel described by settings. It returns nil
// when the fallback is disabled or has no endpoints. A blank template yields a panel that
// always reports the judge as unavailable; a template missing a required
// placeholder is a configuration error.
func newPanel(name string, settings JudgeSettings, deps ports.VerifierDeps, required []string, allowed ...string) (*Panel, error) {
	if !settings.Enabled {
		return nil, nil
	}
	endpoints, err := settings.Endpoints()
	if err != nil || len(endpoints) == 0 {
		return nil, err
	}
	p := &Panel{
		name:      name,
		judge:     deps.Judge,
		endpoints: endpoints,
		settings:  settings,
		logger:    loggerOrDiscard(deps.Logger),
	}
	if settings.PromptTemplate == "" {
		return p, nil
	}
	tmpl, err := domain.NewJudgeTemplate(settings.PromptTemplate, required, allowed...)
	if err != nil {
		return nil, err
	}
	p.template = tmpl
	return p, nil
}

// Size returns the number of endpoints.
func (p *Panel) Size() int {
	if p == nil {
		return 0
	}
	return len(p.endpoints)
}

func (p *Panel) ready() error {
	switch {
	case p == nil:
		return fmt.Errorf("%w: fallback disabled", domain.ErrJudgeUnavailable)
	case len(p.endpoints) == 0:
		return fmt.Errorf("%w: no judge endpoints configured", domain.ErrJudgeUnavailable)
	case p.template.IsZero():
		return fmt.Errorf("%w: no judge prompt template configured", domain.ErrJudgeUnavailable)
	case p.judge == nil:
		return fmt.Errorf("%w: no judge client", domain.ErrJudgeUnavailable)
	}
	return nil
}

// poll queries every endpoint and returns the parsed votes. Failed
// endpoints are logged and contribute no vote.
func (p *Panel) poll(ctx context.Context, values map[string]string, parse replyParser) ([]float64, error) {
	if err := p.ready(); err != nil {
		return nil, err
	}
	prompt := p.template.Render(values)
	votes := make([]float64, 0, len(p.endpoints))
	for _, ep := range p.endpoints {
		reply, err := p.judge.Query(ctx, ports.JudgeRequest{
			Endpoint:    ep,
			Prompt:      prompt,
			MaxTokens:   p.settings.MaxTokens,
			Temperature: p.settings.Temperature,
			TopP:        p.settings.TopP,
		})
		if err != nil {
			p.logger.WarnContext(ctx, "remote judge call failed",
				"verifier", p.name, "model", ep.Model, "url", ep.URL, "error", err)
			continue
		}
		vote, ok := parse(reply)
		if !ok {
			p.logger.WarnContext(ctx, "remote judge reply not understood",
				"verifier", p.name, "model", ep.Model, "url", ep.URL, "reply", truncate(reply, 200))
			continue
		}
		votes = append(votes, vote)
	}
	if len(votes) == 0 {
		return nil, fmt.Errorf("%w: all %d endpoints failed", domain.ErrJudgeUnavailable, len(p.endpoints))
	}
	return votes, nil
}

// Majority returns 1 when the votes sum to more than half the configured
// endpoints and 0 otherwise. Failed endpoints count against the answer.
func (p *Panel) Majority(ctx context.Context, values map[string]string, parse replyParser) domain.Verdict {
	votes, err := p.poll(ctx, values, parse)
	if err != nil {
		return domain.Failed(err)
	}
	sum := 0.0
	for _, v := range votes {
		sum += v
	}
	if sum > float64(len(p.endpoints))/2 {
		return domain.Scored(1)
	}
	return domain.Scored(0)
}

// Mean averages the votes over every configured endpoint.
func (p *Panel) Mean(ctx context.Context, values map[string]string, parse replyParser) domain.Verdict {
	votes, err := p.poll(ctx, values, parse)
	if err != nil {
		return domain.Failed(err)
	}
	sum := 0.0
	for _, v := range votes {
		sum += v
	}
	return domain.Scored(sum / float64(len(p.endpoints)))
}

// judgeValues builds the standard placeholder set.
func judgeValues(question, predict, label string) map[string]string {
	return map[string]string{
		domain.PlaceholderQuestion: question,
		domain.PlaceholderPredict:  predict,
		domain.PlaceholderLabel:    label,
	}
}

var standardPlaceholders = []string{
	domain.PlaceholderQuestion, domain.PlaceholderPredict, domain.PlaceholderLabel,
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
