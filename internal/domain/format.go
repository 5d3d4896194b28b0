package domain

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
)

var (
	structuredResponse = regexp.MustCompile(`(?is)^<think>(.*?)</think>\s*<answer>(.*?)</answer>$`)
	thinkThenRest      = regexp.MustCompile(`(?is)^<think>(.*?)</think>(.*)$`)
	answerWrapper      = regexp.MustCompile(`(?is)^<answer>(.*?)</answer>$`)

	segmentTags = []string{"<think>", "</think>", "<answer>", "</answer>"}
)

// Fold returns the Unicode case-folded form of s. A Caser is stateful, so a
// fresh one is built per call.
func Fold(s string) string { return cases.Fold().String(s) }

// ValidateFormat checks that response is exactly one reasoning block followed
// by one answer block. The answer block may hold at most one opening and one
// closing box token and no legacy \boxed{ span, and neither block may contain
// a nested segment tag.
func ValidateFormat(response string) error {
	m := structuredResponse.FindStringSubmatch(strings.TrimSpace(response))
	if m == nil {
		return ErrBadFormat
	}
	think := Fold(strings.TrimSpace(m[1]))
	answer := Fold(strings.TrimSpace(m[2]))

	if strings.Count(answer, BeginOfBox) > 1 ||
		strings.Count(answer, EndOfBox) > 1 ||
		strings.Contains(answer, LegacyBoxed) {
		return ErrBadFormat
	}
	for _, tag := range segmentTags {
		if strings.Contains(think, tag) || strings.Contains(answer, tag) {
			return ErrBadFormat
		}
	}
	return nil
}

// AnswerSegment returns the text after the reasoning block, with a wrapping
// <answer>...</answer> pair removed. It fails when the response has no
// reasoning block, the reasoning block nests another reasoning tag, or the
// remaining segment is empty.
func AnswerSegment(response string) (string, error) {
	m := thinkThenRest.FindStringSubmatch(response)
	if m == nil {
		return "", ErrBadFormat
	}
	think := Fold(m[1])
	if strings.Contains(think, "<think>") || strings.Contains(think, "</think>") {
		return "", ErrBadFormat
	}

	rest := strings.TrimSpace(m[2])
	if inner := answerWrapper.FindStringSubmatch(rest); inner != nil {
		rest = strings.TrimSpace(inner[1])
	}
	if rest == "" {
		return "", ErrExtractionFailed
	}
	return rest, nil
}
