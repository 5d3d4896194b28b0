// Package algebra implements ports.AlgebraEvaluator on top of the govaluate
// expression engine. Symbolic equivalence is decided numerically by sampling
// free variables at fixed points.
package algebra

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"strings"

	"github.com/Knetic/govaluate"

	"github.com/ahrav/go-reward/internal/ports"
)

var _ ports.AlgebraEvaluator = (*Evaluator)(nil)

// ErrUnsupported is returned for input the expression engine cannot parse.
var ErrUnsupported = errors.New("unsupported expression")

// Sampling parameters for symbolic comparison.
const (
	samplePoints    = 24
	minValidSamples = 3
	sampleTolerance = 1e-8
)

// comparators ordered so longer operators match first.
var comparators = []string{"==", "!=", "<=", ">=", "<", ">"}

// mirrored maps an inequality to its form with sides swapped.
var mirrored = map[string]string{
	"==": "==", "!=": "!=", "<": ">", ">": "<", "<=": ">=", ">=": "<=",
}

var constants = map[string]float64{"pi": math.Pi, "e": math.E}

// Evaluator parses math answers into govaluate expressions.
// It is stateless and safe for concurrent use.
type Evaluator struct {
	functions map[string]govaluate.ExpressionFunction
	seed      uint64
}

// NewEvaluator returns an evaluator with the standard function table.
func NewEvaluator() *Evaluator {
	return &Evaluator{functions: mathFunctions(), seed: 0x5eed}
}

// expression is a parsed answer: either a plain expression or a relation
// stored as lhs - rhs with its operator.
type expression struct {
	src  string
	op   string
	expr *govaluate.EvaluableExpression
	vars []string
}

func (e *expression) String() string   { return e.src }
func (e *expression) IsRelation() bool { return e.op != "" }

func (e *expression) Value() (float64, bool) {
	if e.op != "" || len(e.vars) > 0 {
		return 0, false
	}
	v, err := evaluate(e.expr, nil)
	if err != nil || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

// Parse normalizes LaTeX-style notation and compiles s.
func (ev *Evaluator) Parse(s string) (ports.Expr, error) {
	src := Normalize(s)
	if src == "" {
		return nil, fmt.Errorf("%w: empty input", ErrUnsupported)
	}

	op, lhs, rhs, err := splitRelation(src)
	if err != nil {
		return nil, err
	}
	body := lhs
	if op != "" {
		body = "(" + lhs + ") - (" + rhs + ")"
	}

	compiled, err := govaluate.NewEvaluableExpressionWithFunctions(body, ev.functions)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrUnsupported, s, err)
	}
	for _, tok := range compiled.Tokens() {
		if tok.Kind == govaluate.COMPARATOR || tok.Kind == govaluate.LOGICALOP || tok.Kind == govaluate.TERNARY {
			return nil, fmt.Errorf("%w: %q: nested relation", ErrUnsupported, s)
		}
	}

	var vars []string
	for _, v := range compiled.Vars() {
		if _, ok := constants[v]; ok || slices.Contains(vars, v) {
			continue
		}
		vars = append(vars, v)
	}
	slices.Sort(vars)

	return &expression{src: src, op: op, expr: compiled, vars: vars}, nil
}

// Equivalent reports whether a and b are mathematically equal. Plain
// expressions must agree at every sample point. Relations must use the same
// operator (up to swapping sides) and have proportional sides: equalities up
// to any nonzero factor, inequalities up to a positive one.
func (ev *Evaluator) Equivalent(a, b ports.Expr) (bool, error) {
	x, ok1 := a.(*expression)
	y, ok2 := b.(*expression)
	if !ok1 || !ok2 {
		return false, fmt.Errorf("%w: foreign expression type", ErrUnsupported)
	}
	if x.IsRelation() != y.IsRelation() {
		return false, nil
	}

	if !x.IsRelation() {
		return ev.sampleEqual(x, y, func(p, q float64) bool { return closeTo(p, q) })
	}

	switch {
	case x.op == y.op && (x.op == "==" || x.op == "!="):
		return ev.proportional(x, y, func(k float64) bool { return k != 0 })
	case x.op == y.op:
		return ev.proportional(x, y, func(k float64) bool { return k > 0 })
	case mirrored[x.op] == y.op:
		return ev.proportional(x, y, func(k float64) bool { return k < 0 })
	default:
		return false, nil
	}
}

// proportional checks that x = k*y for a single constant k accepted by keep.
func (ev *Evaluator) proportional(x, y *expression, keep func(float64) bool) (bool, error) {
	ratio := math.NaN()
	consistent := true
	ok, err := ev.sampleEqual(x, y, func(p, q float64) bool {
		switch {
		case p == 0 && q == 0:
			return true
		case q == 0 || p == 0:
			consistent = false
			return false
		}
		k := p / q
		if math.IsNaN(ratio) {
			ratio = k
			return true
		}
		if !closeTo(k, ratio) {
			consistent = false
			return false
		}
		return true
	})
	if err != nil || !ok || !consistent {
		return false, err
	}
	if math.IsNaN(ratio) {
		// Both sides vanish everywhere sampled.
		return true, nil
	}
	return keep(ratio), nil
}

// sampleEqual evaluates both expressions at shared sample points drawn from
// [-3, 3] and applies match at every point where both are finite. The range
// crosses zero so expressions that only agree on positive reals, such as
// abs(x) and x, are told apart.
func (ev *Evaluator) sampleEqual(x, y *expression, match func(p, q float64) bool) (bool, error) {
	vars := mergeVars(x.vars, y.vars)
	if len(vars) == 0 {
		p, err := evaluate(x.expr, nil)
		if err != nil {
			return false, err
		}
		q, err := evaluate(y.expr, nil)
		if err != nil {
			return false, err
		}
		if !finite(p) || !finite(q) {
			return false, nil
		}
		return match(p, q), nil
	}

	rng := rand.New(rand.NewPCG(ev.seed, uint64(len(vars))))
	valid := 0
	for range samplePoints {
		point := make(map[string]any, len(vars))
		for _, v := range vars {
			point[v] = -3 + 6*rng.Float64()
		}
		p, err1 := evaluate(x.expr, point)
		q, err2 := evaluate(y.expr, point)
		if err1 != nil || err2 != nil || !finite(p) || !finite(q) {
			continue
		}
		valid++
		if !match(p, q) {
			return false, nil
		}
	}
	if valid < minValidSamples {
		return false, fmt.Errorf("%w: too few evaluable sample points", ErrUnsupported)
	}
	return true, nil
}

func evaluate(expr *govaluate.EvaluableExpression, point map[string]any) (float64, error) {
	params := make(map[string]any, len(point)+len(constants))
	for k, v := range constants {
		params[k] = v
	}
	for k, v := range point {
		params[k] = v
	}
	out, err := expr.Evaluate(params)
	if err != nil {
		return 0, err
	}
	f, ok := out.(float64)
	if !ok {
		return 0, fmt.Errorf("%w: non-numeric result %T", ErrUnsupported, out)
	}
	return f, nil
}

// splitRelation splits src on its single top-level comparator.
func splitRelation(src string) (op, lhs, rhs string, err error) {
	depth := 0
	found := -1
	for i := 0; i < len(src); i++ {
		switch src[i] {
		case '(':
			depth++
			continue
		case ')':
			depth--
			continue
		}
		if depth != 0 {
			continue
		}
		for _, c := range comparators {
			if strings.HasPrefix(src[i:], c) {
				if found >= 0 {
					return "", "", "", fmt.Errorf("%w: chained relation %q", ErrUnsupported, src)
				}
				found, op = i, c
				i += len(c) - 1
				break
			}
		}
	}
	if found < 0 {
		return "", src, "", nil
	}
	lhs = strings.TrimSpace(src[:found])
	rhs = strings.TrimSpace(src[found+len(op):])
	if lhs == "" || rhs == "" {
		return "", "", "", fmt.Errorf("%w: incomplete relation %q", ErrUnsupported, src)
	}
	return op, lhs, rhs, nil
}

func mergeVars(a, b []string) []string {
	out := append([]string(nil), a...)
	for _, v := range b {
		if !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	slices.Sort(out)
	return out
}

func closeTo(p, q float64) bool {
	return math.Abs(p-q) <= sampleTolerance*math.Max(1, math.Max(math.Abs(p), math.Abs(q)))
}

func finite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }
