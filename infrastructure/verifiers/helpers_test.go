package verifiers

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-reward/infrastructure/algebra"
	"github.com/ahrav/go-reward/internal/domain"
	"github.com/ahrav/go-reward/internal/ports"
	"github.com/ahrav/go-reward/internal/testutils"
)

const binaryTemplate = "Question: {question}\nAnswer: {predict}\nReference: {label}\nReply 1.0 or 0.0."

func testDeps(judge *testutils.MockJudge) ports.VerifierDeps {
	deps := ports.VerifierDeps{Algebra: algebra.NewEvaluator()}
	if judge != nil {
		deps.Judge = judge
	}
	return deps
}

// judgeConfig returns a rule config with a fallback panel of n endpoints.
func judgeConfig(n int) RuleConfig {
	cfg := DefaultRuleConfig()
	cfg.URLs = testutils.URLs(n)
	cfg.APIKeys = StringList{"sk-test"}
	cfg.PromptTemplate = binaryTemplate
	return cfg
}

func newRule(t *testing.T, kind string, cfg RuleConfig, judge *testutils.MockJudge) *RuleVerifier {
	t.Helper()
	v, err := NewRuleVerifier("test-"+kind, kind, cfg, testDeps(judge))
	require.NoError(t, err)
	return v
}

func text(s string) domain.Answer { return domain.TextAnswer(s) }
