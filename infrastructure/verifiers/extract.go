package verifiers

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/ahrav/go-reward/internal/domain"
)

var segmentTags = []string{"<think>", "</think>", "<answer>", "</answer>"}

// boxedExtractor pulls the single boxed span out of the answer segment.
// segment, when set, replaces the default reasoning/answer split: its first
// group is the reasoning and its second the answer.
type boxedExtractor struct {
	strict  bool
	segment *regexp.Regexp
}

func (e boxedExtractor) answerSegment(response string) (string, error) {
	if e.segment == nil {
		return domain.AnswerSegment(response)
	}
	m := e.segment.FindStringSubmatch(response)
	if m == nil || len(m) < 3 {
		return "", domain.ErrBadFormat
	}
	think := domain.Fold(strings.TrimSpace(m[1]))
	answer := strings.TrimSpace(m[2])
	folded := domain.Fold(answer)
	for _, tag := range segmentTags {
		if strings.Contains(think, tag) || strings.Contains(folded, tag) {
			return "", domain.ErrBadFormat
		}
	}
	if answer == "" {
		return "", domain.ErrExtractionFailed
	}
	return answer, nil
}

func (e boxedExtractor) extract(response string) (domain.Answer, error) {
	segment, err := e.answerSegment(response)
	if err != nil {
		return domain.Absent(), err
	}
	span, err := domain.SingleSpan(segment)
	switch {
	case err == nil:
		return domain.TextAnswer(span), nil
	case errors.Is(err, domain.ErrNoSpan) && !e.strict:
		return domain.TextAnswer(segment), nil
	default:
		return domain.Absent(), err
	}
}

// patternExtractor applies an optional user pattern to the raw response.
// The named group "answer" wins over the last capturing group. Without a
// pattern, or without a match, the trimmed response is the answer.
type patternExtractor struct {
	pattern *regexp.Regexp
}

// compileAnswerPattern compiles p with dot-all and case-insensitive flags.
func compileAnswerPattern(p string) (*regexp.Regexp, error) {
	if p == "" {
		return nil, nil
	}
	re, err := regexp.Compile("(?is)" + p)
	if err != nil {
		return nil, fmt.Errorf("invalid answer_extraction_regex: %w: %w", err, domain.ErrInvalidConfiguration)
	}
	return re, nil
}

func (e patternExtractor) extract(response string) (domain.Answer, error) {
	if e.pattern != nil {
		if m := e.pattern.FindStringSubmatch(response); m != nil {
			if idx := e.pattern.SubexpIndex("answer"); idx > 0 {
				return domain.TextAnswer(strings.TrimSpace(m[idx])), nil
			}
			return domain.TextAnswer(strings.TrimSpace(m[len(m)-1])), nil
		}
	}
	return domain.TextAnswer(strings.TrimSpace(response)), nil
}

// textPair returns both payloads when both answers are textual.
func textPair(extracted, reference domain.Answer) (string, string, error) {
	cand, ok1 := extracted.Text()
	ref, ok2 := reference.Text()
	if !ok1 || !ok2 {
		return "", "", fmt.Errorf("%w: got %s and %s, want text",
			domain.ErrTypeMismatch, extracted.Kind(), reference.Kind())
	}
	return cand, ref, nil
}
