// Package ports defines the core interfaces that form the contract between
// the domain/application layers and the infrastructure layer.
// These interfaces enable dependency inversion and make the system testable.
package ports

import (
	"context"
	"log/slog"

	"github.com/ahrav/go-reward/internal/domain"
)

// Verifier extracts the answer payload from a free-form response and judges
// it against an extracted reference for one answer domain.
// Verifiers are built once per (datasource, kind) and shared by concurrent
// callers, so implementations must not mutate themselves after construction.
type Verifier interface {
	// Kind returns the verifier kind tag, e.g. "math" or "ocr".
	Kind() string

	// MinReward returns the floor reported for requests the verifier cannot
	// confidently judge. It may be negative infinity.
	MinReward() float64

	// ExtractAnswer pulls the answer payload out of response. A failed
	// extraction returns an absent answer and the reason.
	//
	// Extraction is a pure function of its inputs.
	ExtractAnswer(ctx context.Context, response, question string) (domain.Answer, error)

	// Judge scores extracted against reference. Failures are reported on the
	// returned Verdict rather than as errors; the orchestrator collapses them
	// to MinReward.
	Judge(ctx context.Context, extracted, reference domain.Answer, question, image string) domain.Verdict
}

// BatchVerifier is a Verifier that must see every request of a call at once,
// for example to score samples against each other.
type BatchVerifier interface {
	Verifier

	// JudgeBatch returns one verdict per request, index-aligned with reqs.
	// An error means the whole call failed and every request is floored.
	JudgeBatch(ctx context.Context, reqs []domain.Request) ([]domain.Verdict, error)
}

// VerifierDeps carries the shared collaborators handed to verifier factories.
type VerifierDeps struct {
	// Judge is the remote judging service. It may be nil when no configured
	// verifier enables a remote-judge fallback.
	Judge RemoteJudge

	// Algebra evaluates expressions for symbolic and numeric equivalence.
	Algebra AlgebraEvaluator

	// Logger receives soft-failure warnings. Nil discards them.
	Logger *slog.Logger
}

// VerifierFactory builds a verifier of one kind from its decoded parameter
// map. name identifies the instance in logs and spans.
type VerifierFactory func(name string, params map[string]any, deps VerifierDeps) (Verifier, error)

// VerifierRegistry resolves the verifier serving a datasource.
type VerifierRegistry interface {
	// Verifier returns the cached instance for (datasource, kind), building it
	// on first use. Configuration errors are returned unchanged on every call.
	Verifier(ctx context.Context, datasource string) (Verifier, error)

	// Kinds lists every supported verifier kind tag.
	Kinds() []string
}
