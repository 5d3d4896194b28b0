package verifiers

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/ahrav/go-reward/internal/domain"
)

var firstMultilineBox = regexp.MustCompile(`(?s)<\|begin_of_box\|>(.*?)<\|end_of_box\|>`)

// webAction is one parsed browser action.
type webAction struct {
	name    string
	element string
	content string
}

// webGrammar is tried in order; the first pattern that matches wins.
var webGrammar = []struct {
	name    string
	pattern *regexp.Regexp
}{
	{"click", regexp.MustCompile(`(?s)Click \[?(\d+)\]?`)},
	{"type", regexp.MustCompile(`(?s)Type \[?(\d+)\]?[; ]+\[?(.[^\]]*)\]?`)},
	{"key", regexp.MustCompile(`(?s)Key[; ]+\[?(.[^\]]*)\]?`)},
	{"scroll", regexp.MustCompile(`(?s)Scroll \[?(\d+|WINDOW)\]?[; ]+\[?(up|down)\]?`)},
	{"wait", regexp.MustCompile(`(?s)^Wait`)},
	{"goback", regexp.MustCompile(`(?s)^GoBack`)},
	{"google", regexp.MustCompile(`(?s)^Google`)},
	{"bing", regexp.MustCompile(`(?s)^Bing`)},
	{"answer", regexp.MustCompile(`(?s)ANSWER[; ]+<content>(.*?)</content>`)},
}

func parseWebAction(text string) (webAction, bool) {
	for _, g := range webGrammar {
		m := g.pattern.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		a := webAction{name: g.name}
		switch g.name {
		case "click":
			a.element = m[1]
		case "type", "scroll":
			a.element, a.content = m[1], m[2]
		case "key", "answer":
			a.content = m[1]
		}
		return a, true
	}
	return webAction{}, false
}

// webVoyager scores browser actions such as "Click [12]" or
// "Type [3]; hello".
type webVoyager struct{}

func (webVoyager) Extract(_ context.Context, response, _ string) (domain.Answer, error) {
	m := firstMultilineBox.FindStringSubmatch(response)
	if m == nil {
		return domain.Absent(), domain.ErrNoSpan
	}
	return domain.TextAnswer(m[1]), nil
}

func (webVoyager) Judge(_ context.Context, extracted, reference domain.Answer, _, _ string) (float64, error) {
	cand, ref, err := textPair(extracted, reference)
	if err != nil {
		return 0, err
	}
	got, ok1 := parseWebAction(cand)
	want, ok2 := parseWebAction(ref)
	if !ok1 || !ok2 || got.name != want.name {
		return 0, nil
	}

	switch got.name {
	case "click":
		return boolScore(sameIndex(got.element, want.element)), nil
	case "type":
		if !sameIndex(got.element, want.element) {
			return 0, nil
		}
		return LCSRatio(got.content, want.content), nil
	case "key":
		return boolScore(strings.EqualFold(got.content, want.content)), nil
	case "scroll":
		return boolScore(got.element == want.element && got.content == want.content), nil
	case "wait", "goback", "google", "bing":
		return 1, nil
	case "answer":
		return LCSRatio(got.content, want.content), nil
	}
	return 0, fmt.Errorf("unhandled web action %q", got.name)
}

// sameIndex compares element labels numerically, so 07 matches 7.
func sameIndex(a, b string) bool {
	return strings.TrimLeft(a, "0") == strings.TrimLeft(b, "0")
}

func boolScore(ok bool) float64 {
	if ok {
		return 1
	}
	return 0
}
