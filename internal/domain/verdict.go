package domain

import (
	"math"
)

// Undefined is the sentinel score meaning "do not trust this score". It is
// replaced during batch normalization and never leaves the orchestrator.
var Undefined = math.Inf(-1)

// DefaultFloor is the floor used when a verifier does not declare one.
const DefaultFloor = 0.0

// Verdict is the outcome of judging one request: either a score or a failure
// reason. Failures are collapsed to the verifier floor only at the
// orchestrator boundary, so tests can inspect why a request was floored.
type Verdict struct {
	// Score is the judged value. It is meaningful only when Err is nil and
	// may be the Undefined sentinel.
	Score float64
	// Err carries the soft failure reason, if any.
	Err error
}

// Scored builds a successful verdict.
func Scored(score float64) Verdict { return Verdict{Score: score} }

// Failed builds a failed verdict carrying its reason.
func Failed(reason error) Verdict {
	if reason == nil {
		reason = ErrExtractionFailed
	}
	return Verdict{Score: Undefined, Err: reason}
}

// UndefinedVerdict builds a successful verdict whose score is the sentinel.
func UndefinedVerdict() Verdict { return Verdict{Score: Undefined} }

// OK reports whether the verdict carries a score rather than a failure.
func (v Verdict) OK() bool { return v.Err == nil }

// IsUndefined reports whether the verdict resolves to the sentinel.
func (v Verdict) IsUndefined() bool { return v.Err == nil && math.IsInf(v.Score, -1) }

// Resolve collapses the verdict to a reward in [floor, 1.0]. Failures resolve
// to the floor, which itself may be the Undefined sentinel. A sentinel score
// passes through untouched; NaN is treated as a failure.
func (v Verdict) Resolve(floor float64) float64 {
	if v.Err != nil || math.IsNaN(v.Score) {
		return floor
	}
	if math.IsInf(v.Score, -1) {
		return Undefined
	}
	return Clamp(v.Score, floor, 1.0)
}

// Clamp restricts score to [lo, hi]. An infinite lower bound leaves the
// lower side open.
func Clamp(score, lo, hi float64) float64 {
	if score > hi {
		return hi
	}
	if !math.IsInf(lo, -1) && score < lo {
		return lo
	}
	return score
}

// NormalizeSentinels replaces Undefined scores in place: with the minimum
// finite score of the slice when one exists, otherwise with 0.0.
func NormalizeSentinels(scores []float64) []float64 {
	lowest := math.Inf(1)
	found := false
	for _, s := range scores {
		if math.IsInf(s, -1) || math.IsNaN(s) {
			continue
		}
		if s < lowest {
			lowest = s
		}
		found = true
	}
	replacement := 0.0
	if found {
		replacement = lowest
	}
	for i, s := range scores {
		if math.IsInf(s, -1) || math.IsNaN(s) {
			scores[i] = replacement
		}
	}
	return scores
}
