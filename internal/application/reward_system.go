package application

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/ahrav/go-reward/infrastructure/verifiers"
	"github.com/ahrav/go-reward/internal/domain"
	"github.com/ahrav/go-reward/internal/observability"
	"github.com/ahrav/go-reward/internal/ports"
)

// Per-request outcomes reported to metrics.
const (
	OutcomeScored       = "scored"
	OutcomeBadFormat    = "bad_format"
	OutcomeBadReference = "bad_reference"
	OutcomeLanguageMix  = "language_mix"
	OutcomeNoAnswer     = "no_answer"
	OutcomeJudgeError   = "judge_error"
	OutcomePanic        = "panic"
)

// ErrNilRegistry is returned when a RewardSystem is built without a registry.
var ErrNilRegistry = errors.New("verifier registry is required")

// RewardSystemDeps carries the collaborators of a RewardSystem. Only
// Registry is required.
type RewardSystemDeps struct {
	Registry *VerifierRegistry
	Audit    ports.AuditSink
	Metrics  ports.MetricsCollector
	Logger   *observability.Logger
}

// EvaluateOptions controls one orchestration call.
type EvaluateOptions struct {
	// Log appends the scored records to the audit sink.
	Log bool
	// Iteration is written to every audit record.
	Iteration int
}

// Result holds the rewards of one call, index-aligned with its requests,
// together with the extracted answers and references.
type Result struct {
	Rewards    []float64       `json:"rewards"`
	Extracted  []domain.Answer `json:"extracted_answers"`
	References []domain.Answer `json:"extracted_gt_answers"`
}

// itemResult is what one worker produces for one request.
type itemResult struct {
	reward    float64
	extracted domain.Answer
	reference domain.Answer
	outcome   string
}

// RewardSystem scores batches of model responses against references. It
// is safe for concurrent use.
type RewardSystem struct {
	maxWorkers int
	registry   *VerifierRegistry
	// mixGate vetoes responses that mix long paragraphs of two languages.
	// It is nil when the gate is disabled.
	mixGate ports.Verifier
	audit   ports.AuditSink
	metrics ports.MetricsCollector
	logger  *observability.Logger
	tracer  trace.Tracer
}

// NewRewardSystem creates an orchestrator over cfg.
func NewRewardSystem(cfg *RewardSystemConfig, deps RewardSystemDeps) (*RewardSystem, error) {
	if deps.Registry == nil {
		return nil, ErrNilRegistry
	}
	if cfg == nil {
		def := DefaultRewardSystemConfig()
		cfg = &def
	}
	logger := deps.Logger
	if logger == nil {
		logger = observability.Discard()
	}

	rs := &RewardSystem{
		maxWorkers: cfg.MaxWorkers,
		registry:   deps.Registry,
		audit:      deps.Audit,
		metrics:    deps.Metrics,
		logger:     logger,
		tracer:     otel.Tracer("reward-system"),
	}
	if rs.maxWorkers < 1 {
		rs.maxWorkers = DefaultMaxWorkers
	}
	if cfg.EnableMixVerifier {
		gate, err := deps.Registry.Build(verifiers.KindLanguageMix, verifiers.KindLanguageMix, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create language mix gate: %w", err)
		}
		rs.mixGate = gate
	}
	return rs, nil
}

// Evaluate scores every request of batch. Only batch-shape and
// configuration errors are returned; every other failure is scored at the
// verifier floor. Undefined scores are replaced before returning.
func (rs *RewardSystem) Evaluate(ctx context.Context, batch domain.Batch, opts EvaluateOptions) (*Result, error) {
	ctx, span := rs.tracer.Start(ctx, "RewardSystem.Evaluate",
		trace.WithAttributes(attribute.Int("reward.batch_size", batch.Len())))
	defer span.End()

	reqs, err := batch.Requests()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid batch")
		return nil, err
	}
	if len(reqs) == 0 {
		return &Result{Rewards: []float64{}, Extracted: []domain.Answer{}, References: []domain.Answer{}}, nil
	}

	datasource := reqs[0].Datasource
	span.SetAttributes(attribute.String("reward.datasource", datasource))
	verifier, err := rs.registry.Verifier(ctx, datasource)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "verifier lookup failed")
		return nil, err
	}
	span.SetAttributes(attribute.String("verifier.kind", verifier.Kind()))

	start := time.Now()
	logger := rs.logger.With("datasource", datasource, "verifier", verifier.Kind())

	var items []itemResult
	if bv, ok := verifier.(ports.BatchVerifier); ok {
		items = rs.scoreBatch(ctx, bv, reqs, logger)
	} else {
		items = rs.scoreItems(ctx, verifier, reqs, logger)
	}

	result := &Result{
		Rewards:    make([]float64, len(items)),
		Extracted:  make([]domain.Answer, len(items)),
		References: make([]domain.Answer, len(items)),
	}
	for i, it := range items {
		result.Rewards[i] = it.reward
		result.Extracted[i] = it.extracted
		result.References[i] = it.reference
	}
	domain.NormalizeSentinels(result.Rewards)

	rs.record(datasource, items, result.Rewards, time.Since(start))
	if opts.Log {
		rs.writeAudit(ctx, datasource, reqs, result.Rewards, opts.Iteration, logger)
	}
	span.SetAttributes(attribute.Float64("reward.sum", sum(result.Rewards)))
	return result, nil
}

// Rewards is Evaluate without the extracted values.
func (rs *RewardSystem) Rewards(ctx context.Context, batch domain.Batch, opts EvaluateOptions) ([]float64, error) {
	res, err := rs.Evaluate(ctx, batch, opts)
	if err != nil {
		return nil, err
	}
	return res.Rewards, nil
}

// scoreItems runs the per-item pipeline on a bounded worker pool. Results
// are index-aligned with reqs regardless of completion order.
func (rs *RewardSystem) scoreItems(
	ctx context.Context,
	v ports.Verifier,
	reqs []domain.Request,
	logger *observability.Logger,
) []itemResult {
	out := make([]itemResult, len(reqs))

	var g errgroup.Group
	g.SetLimit(min(rs.maxWorkers, len(reqs)))
	for i := range reqs {
		g.Go(func() error {
			defer func() {
				if p := recover(); p != nil {
					logger.Error("verifier panicked", "index", i, "panic", p, "stack", string(debug.Stack()))
					out[i] = itemResult{reward: v.MinReward(), outcome: OutcomePanic}
				}
			}()
			out[i] = rs.scoreItem(ctx, v, reqs[i], logger.With("index", i))
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// scoreItem is the per-request pipeline: format checks, language-mix gate,
// reference extraction, answer extraction, judge. Every early exit scores
// the verifier floor.
func (rs *RewardSystem) scoreItem(
	ctx context.Context,
	v ports.Verifier,
	req domain.Request,
	logger *observability.Logger,
) itemResult {
	floor := v.MinReward()

	if err := domain.ValidateFormat(req.Answer); err != nil {
		return itemResult{reward: floor, outcome: OutcomeBadFormat}
	}
	if err := domain.ValidateFormat(req.Reference); err != nil {
		logger.WarnContext(ctx, "reference answer has bad format, check the data", "gt_answer", req.Reference)
		return itemResult{reward: floor, outcome: OutcomeBadReference}
	}
	if rs.vetoedByMixGate(ctx, req) {
		return itemResult{reward: floor, outcome: OutcomeLanguageMix}
	}

	reference, err := v.ExtractAnswer(ctx, req.Reference, req.Prompt)
	if err != nil || reference.IsAbsent() {
		logger.WarnContext(ctx, "reference answer could not be extracted, check the data",
			"gt_answer", req.Reference, "error", err)
		return itemResult{reward: floor, outcome: OutcomeBadReference}
	}

	extracted, err := v.ExtractAnswer(ctx, req.Answer, req.Prompt)
	if err != nil || extracted.IsAbsent() {
		return itemResult{reward: floor, reference: reference, outcome: OutcomeNoAnswer}
	}

	verdict := v.Judge(ctx, extracted, reference, req.Prompt, req.ImageFile)
	outcome := OutcomeScored
	if !verdict.OK() {
		logger.WarnContext(ctx, "verifier judge failed", "error", verdict.Err)
		outcome = OutcomeJudgeError
	}
	return itemResult{
		reward:    verdict.Resolve(floor),
		extracted: extracted,
		reference: reference,
		outcome:   outcome,
	}
}

func (rs *RewardSystem) vetoedByMixGate(ctx context.Context, req domain.Request) bool {
	if rs.mixGate == nil {
		return false
	}
	answer, err := rs.mixGate.ExtractAnswer(ctx, req.Answer, req.Prompt)
	if err != nil {
		return true
	}
	verdict := rs.mixGate.Judge(ctx, answer, domain.Absent(), req.Prompt, req.ImageFile)
	return !verdict.OK() || verdict.Score <= 0
}

// scoreBatch hands the whole request list to a batch verifier, then
// extracts each answer and reference for the caller.
func (rs *RewardSystem) scoreBatch(
	ctx context.Context,
	v ports.BatchVerifier,
	reqs []domain.Request,
	logger *observability.Logger,
) []itemResult {
	floor := v.MinReward()
	out := make([]itemResult, len(reqs))

	verdicts, err := v.JudgeBatch(ctx, reqs)
	if err == nil && len(verdicts) != len(reqs) {
		err = fmt.Errorf("batch verifier returned %d verdicts for %d requests", len(verdicts), len(reqs))
	}
	if err != nil {
		logger.WarnContext(ctx, "batch judge failed", "error", err)
	}

	for i, req := range reqs {
		it := itemResult{reward: floor, outcome: OutcomeJudgeError}
		if err == nil {
			it.reward = verdicts[i].Resolve(floor)
			it.outcome = OutcomeScored
			if !verdicts[i].OK() {
				it.outcome = OutcomeJudgeError
			}
		}
		it.extracted, _ = v.ExtractAnswer(ctx, req.Answer, req.Prompt)
		it.reference, _ = v.ExtractAnswer(ctx, req.Reference, req.Prompt)
		out[i] = it
	}
	return out
}

func (rs *RewardSystem) record(datasource string, items []itemResult, rewards []float64, elapsed time.Duration) {
	if rs.metrics == nil {
		return
	}
	for i, it := range items {
		rs.metrics.RecordCounter("reward_requests_total", 1,
			map[string]string{"datasource": datasource, "outcome": it.outcome})
		rs.metrics.RecordHistogram("reward_value", rewards[i], map[string]string{"datasource": datasource})
	}
	rs.metrics.RecordLatency("reward_evaluate", elapsed, map[string]string{"datasource": datasource})
}

// writeAudit files the whole call under its pass partition and every
// record under its sign partition. Failures are logged, never returned.
func (rs *RewardSystem) writeAudit(
	ctx context.Context,
	datasource string,
	reqs []domain.Request,
	rewards []float64,
	iteration int,
	logger *observability.Logger,
) {
	if rs.audit == nil {
		return
	}
	for i := range reqs {
		if reqs[i].ID == "" {
			reqs[i].ID = uuid.NewString()
		}
	}
	records := domain.BuildRecords(reqs, rewards, iteration)

	if err := rs.audit.Append(ctx, datasource, domain.PassPartition(rewards), records); err != nil {
		logger.Error("failed to append audit records", "error", err)
	}

	bySign := map[string][]domain.RewardRecord{}
	for _, rec := range records {
		p := domain.SignPartition(rec.Reward)
		bySign[p] = append(bySign[p], rec)
	}
	for _, p := range []string{domain.PartitionCorrect, domain.PartitionIncorrect} {
		if len(bySign[p]) == 0 {
			continue
		}
		if err := rs.audit.Append(ctx, datasource, p, bySign[p]); err != nil {
			logger.Error("failed to append audit records", "partition", p, "error", err)
		}
	}
}

// ExtractAnswers runs the verifier extraction of each response under its
// own datasource. Failed extractions are absent answers.
func (rs *RewardSystem) ExtractAnswers(ctx context.Context, answers, datasources []string) ([]domain.Answer, error) {
	if len(answers) != len(datasources) {
		return nil, &domain.BatchError{Field: "datasources", Want: len(answers), Got: len(datasources)}
	}
	out := make([]domain.Answer, len(answers))
	for i, answer := range answers {
		v, err := rs.registry.Verifier(ctx, datasources[i])
		if err != nil {
			return nil, err
		}
		out[i], _ = v.ExtractAnswer(ctx, answer, "")
	}
	return out, nil
}

// Kinds lists the verifier kinds the system can build.
func (rs *RewardSystem) Kinds() []string { return rs.registry.Kinds() }

func sum(xs []float64) float64 {
	var s float64
	for _, x := range xs {
		s += x
	}
	return s
}
