package domain

import "strings"

// Box delimiters. The legacy form is LaTeX-style \boxed{...}.
const (
	BeginOfBox  = "<|begin_of_box|>"
	EndOfBox    = "<|end_of_box|>"
	LegacyBoxed = `\boxed{`
)

// ExtractSpans returns the ordered top-level boxed spans of text.
//
// Legacy \boxed{...} spans win when present: each is scanned with a brace
// depth counter so nested braces stay inside the span, and sibling spans are
// returned separately. Otherwise paired box tokens are matched with a stack of
// open positions and a span is emitted only when the stack empties, so nested
// pairs yield the outermost span. Unmatched closing tokens are skipped and an
// unclosed opening token yields nothing.
func ExtractSpans(text string) []string {
	if spans := extractLegacySpans(text); len(spans) > 0 {
		return spans
	}
	return extractTokenSpans(text, BeginOfBox, EndOfBox)
}

func extractLegacySpans(text string) []string {
	var spans []string
	for i := 0; i < len(text); {
		if !strings.HasPrefix(text[i:], LegacyBoxed) {
			i++
			continue
		}
		i += len(LegacyBoxed)
		start := i
		depth := 1
		for i < len(text) && depth > 0 {
			switch text[i] {
			case '{':
				depth++
			case '}':
				depth--
			}
			i++
		}
		end := i
		if depth == 0 {
			end = i - 1
		}
		spans = append(spans, text[start:end])
	}
	return spans
}

func extractTokenSpans(text, begin, end string) []string {
	var (
		spans []string
		stack []int
	)
	for i := 0; i < len(text); {
		b := strings.Index(text[i:], begin)
		e := strings.Index(text[i:], end)
		if b < 0 && e < 0 {
			break
		}
		if b >= 0 {
			b += i
		}
		if e >= 0 {
			e += i
		}

		if b < 0 || (e >= 0 && e < b) {
			if len(stack) > 0 {
				open := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				if len(stack) == 0 {
					spans = append(spans, strings.TrimSpace(text[open+len(begin):e]))
				}
			}
			i = e + len(end)
			continue
		}
		stack = append(stack, b)
		i = b + len(begin)
	}
	return spans
}

// SingleSpan returns the only boxed span of text, trimmed. Zero spans fail
// with ErrNoSpan and more than one with ErrMultipleSpans.
func SingleSpan(text string) (string, error) {
	spans := ExtractSpans(text)
	switch len(spans) {
	case 0:
		return "", ErrNoSpan
	case 1:
		return strings.TrimSpace(spans[0]), nil
	default:
		return "", ErrMultipleSpans
	}
}

// WellFormed reports whether quotes are closed and square/curly brackets are
// balanced in span. Brackets inside quoted strings are ignored and a
// backslash escapes the next character inside a quote. Truncated structured
// generations fail this check.
func WellFormed(span string) bool {
	var (
		stack []byte
		quote byte
	)
	for i := 0; i < len(span); i++ {
		c := span[i]
		if quote != 0 {
			switch c {
			case '\\':
				i++
			case quote:
				quote = 0
			}
			continue
		}
		switch c {
		case '\'', '"':
			quote = c
		case '[', '{':
			stack = append(stack, c)
		case ']', '}':
			want := byte('[')
			if c == '}' {
				want = '{'
			}
			if len(stack) == 0 || stack[len(stack)-1] != want {
				return false
			}
			stack = stack[:len(stack)-1]
		}
	}
	return quote == 0 && len(stack) == 0
}

// CallClosed reports whether a desktop action call has an even number of
// unescaped single quotes and balanced square brackets. Unlike WellFormed it
// ignores double quotes and braces, and it counts brackets inside quoted
// arguments, so type(content='[') is rejected while a lone " in typed text
// is accepted.
func CallClosed(span string) bool {
	quotes, depth := 0, 0
	for i := 0; i < len(span); i++ {
		switch span[i] {
		case '\'':
			if i > 0 && span[i-1] == '\\' {
				continue
			}
			quotes++
		case '[':
			depth++
		case ']':
			if depth == 0 {
				return false
			}
			depth--
		}
	}
	return quotes%2 == 0 && depth == 0
}
