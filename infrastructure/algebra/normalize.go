package algebra

import (
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/Knetic/govaluate"
)

// latexReplacer rewrites LaTeX and Unicode notation into engine syntax.
// Longer commands come first so \leq is not consumed as \le.
var latexReplacer = strings.NewReplacer(
	`\left`, "", `\right`, "",
	`\!`, "", `\,`, "", `\;`, "", `\:`, "", "$", "",
	`\cdot`, "*", `\times`, "*", `×`, "*", `·`, "*",
	`\div`, "/", `÷`, "/",
	`\leq`, "<=", `\geq`, ">=", `\neq`, "!=", `\le`, "<=", `\ge`, ">=",
	`≤`, "<=", `≥`, ">=", `≠`, "!=",
	`\pi`, "pi", `π`, "pi",
	`\infty`, "inf",
	`−`, "-",
)

var fracCommands = []string{`\dfrac`, `\tfrac`, `\frac`}

// Normalize converts a math answer into govaluate syntax: fractions and
// square roots become calls or divisions, braces become parentheses, ^ becomes
// exponentiation, a bare = becomes ==, and implicit multiplication is made
// explicit.
func Normalize(s string) string {
	s = strings.TrimSpace(s)
	s = rewriteFractions(s)
	s = rewriteCommand(s, `\sqrt`, "sqrt")
	s = latexReplacer.Replace(s)
	s = strings.NewReplacer("{", "(", "}", ")", "[", "(", "]", ")", "^", "**").Replace(s)
	s = normalizeEquals(s)
	s = strings.Join(strings.Fields(s), "")
	return insertImplicitProducts(s)
}

// rewriteFractions turns \frac{a}{b} into ((a)/(b)), innermost arguments
// included. Single-character arguments like \frac12 are accepted.
func rewriteFractions(s string) string {
	for {
		idx, cmd := -1, ""
		for _, c := range fracCommands {
			if i := strings.Index(s, c); i >= 0 && (idx < 0 || i < idx) {
				idx, cmd = i, c
			}
		}
		if idx < 0 {
			return s
		}
		rest := s[idx+len(cmd):]
		num, rest, ok1 := latexArgument(rest)
		den, rest, ok2 := latexArgument(rest)
		if !ok1 || !ok2 {
			// Leave malformed input for the parser to reject.
			return s[:idx] + "frac" + s[idx+len(cmd):]
		}
		s = s[:idx] + "((" + num + ")/(" + den + "))" + rest
	}
}

// rewriteCommand turns cmd{x} into name(x).
func rewriteCommand(s, cmd, name string) string {
	for {
		idx := strings.Index(s, cmd)
		if idx < 0 {
			return s
		}
		arg, rest, ok := latexArgument(s[idx+len(cmd):])
		if !ok {
			return s[:idx] + name + s[idx+len(cmd):]
		}
		s = s[:idx] + name + "(" + arg + ")" + rest
	}
}

// latexArgument reads one braced group or a single character.
func latexArgument(s string) (arg, rest string, ok bool) {
	s = strings.TrimLeft(s, " ")
	if s == "" {
		return "", s, false
	}
	if s[0] != '{' {
		return s[:1], s[1:], true
	}
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[1:i], s[i+1:], true
			}
		}
	}
	return "", s, false
}

// normalizeEquals rewrites a lone = into ==.
func normalizeEquals(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '=' {
			b.WriteByte(c)
			continue
		}
		prev := byte(0)
		if i > 0 {
			prev = s[i-1]
		}
		next := byte(0)
		if i+1 < len(s) {
			next = s[i+1]
		}
		if next == '=' {
			b.WriteString("==")
			i++
			continue
		}
		if prev == '<' || prev == '>' || prev == '!' {
			b.WriteByte(c)
			continue
		}
		b.WriteString("==")
	}
	return b.String()
}

// insertImplicitProducts adds * between juxtaposed factors: 2x, 2(, )(, )x.
// A letter directly followed by ( is a function call and is left alone, as is
// the exponent marker of scientific notation.
func insertImplicitProducts(s string) string {
	r := []rune(s)
	var b strings.Builder
	for i, c := range r {
		if i > 0 && needsProduct(r, i) {
			b.WriteByte('*')
		}
		b.WriteRune(c)
	}
	return b.String()
}

func needsProduct(r []rune, i int) bool {
	prev, cur := r[i-1], r[i]
	switch {
	case unicode.IsDigit(prev) || prev == '.':
		if cur == '(' {
			return true
		}
		if unicode.IsLetter(cur) {
			return !isExponentMarker(r, i)
		}
	case prev == ')':
		return cur == '(' || unicode.IsLetter(cur) || unicode.IsDigit(cur)
	}
	return false
}

// isExponentMarker reports whether r[i] is the e of a literal like 1e-5.
func isExponentMarker(r []rune, i int) bool {
	if r[i] != 'e' && r[i] != 'E' {
		return false
	}
	j := i + 1
	if j < len(r) && (r[j] == '+' || r[j] == '-') {
		j++
	}
	return j < len(r) && unicode.IsDigit(r[j])
}

func mathFunctions() map[string]govaluate.ExpressionFunction {
	unary := func(name string, f func(float64) float64) govaluate.ExpressionFunction {
		return func(args ...any) (any, error) {
			if len(args) != 1 {
				return nil, fmt.Errorf("%s requires exactly 1 argument", name)
			}
			v, ok := args[0].(float64)
			if !ok {
				return nil, fmt.Errorf("%s: cannot convert %T to float64", name, args[0])
			}
			return f(v), nil
		}
	}
	return map[string]govaluate.ExpressionFunction{
		"sqrt": unary("sqrt", math.Sqrt),
		"sin":  unary("sin", math.Sin),
		"cos":  unary("cos", math.Cos),
		"tan":  unary("tan", math.Tan),
		"log":  unary("log", math.Log),
		"ln":   unary("ln", math.Log),
		"exp":  unary("exp", math.Exp),
		"abs":  unary("abs", math.Abs),
	}
}
