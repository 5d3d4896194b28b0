package verifiers

import (
	"context"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"unicode"

	"github.com/ahrav/go-reward/internal/domain"
	"github.com/ahrav/go-reward/internal/ports"
)

// textCase is what every text stage sees. Normalizing stages rewrite it in
// place for the stages that follow.
type textCase struct {
	candidate string
	reference string
	question  string
	image     string
	usedJudge bool
}

// stage is one step of the judging skeleton. decided=false hands the case
// to the next stage.
type stage func(ctx context.Context, c *textCase) (v domain.Verdict, decided bool)

// runStages stops at the first decisive stage. A case no stage decides
// scores reject.
func runStages(ctx context.Context, c *textCase, stages []stage, reject domain.Verdict) domain.Verdict {
	for _, s := range stages {
		if v, ok := s(ctx, c); ok {
			return v
		}
	}
	return reject
}

func pass() (domain.Verdict, bool) { return domain.Verdict{}, false }

// normalizeQuantities drops degree signs and turns a trailing percent into a
// fraction.
func normalizeQuantities() stage {
	norm := func(s string) string {
		s = strings.TrimSpace(strings.ReplaceAll(s, "°", ""))
		if rest, ok := strings.CutSuffix(s, "%"); ok {
			if f, err := strconv.ParseFloat(strings.TrimSpace(rest), 64); err == nil {
				return strconv.FormatFloat(f/100, 'f', -1, 64)
			}
		}
		return s
	}
	return func(_ context.Context, c *textCase) (domain.Verdict, bool) {
		c.candidate = norm(c.candidate)
		c.reference = norm(c.reference)
		return pass()
	}
}

// exactMatch scores 1 when both sides agree after norm.
func exactMatch(norm func(string) string) stage {
	return func(_ context.Context, c *textCase) (domain.Verdict, bool) {
		if norm(c.candidate) == norm(c.reference) {
			return domain.Scored(1), true
		}
		return pass()
	}
}

func identity(s string) string { return s }

func foldTrim(s string) string { return domain.Fold(strings.TrimSpace(s)) }

// withinTolerance applies relative error, or absolute error when the
// reference is within tol of zero.
func withinTolerance(got, want, tol float64) bool {
	diff := math.Abs(got - want)
	denom := math.Abs(want)
	if denom < tol {
		return diff < tol
	}
	return diff/(denom+tol) < tol
}

// symbolicMatch compares both sides through the algebra evaluator: relations
// by equivalence, numbers by tolerance, and other expressions symbolically.
// Input the evaluator rejects is passed on; a parsed mismatch scores reject.
func symbolicMatch(alg ports.AlgebraEvaluator, tol float64, reject domain.Verdict) stage {
	return func(_ context.Context, c *textCase) (domain.Verdict, bool) {
		cand, err1 := alg.Parse(c.candidate)
		ref, err2 := alg.Parse(c.reference)
		if err1 != nil || err2 != nil {
			return pass()
		}

		if cand.IsRelation() && ref.IsRelation() {
			if ok, err := alg.Equivalent(cand, ref); err == nil && ok {
				return domain.Scored(1), true
			}
			return reject, true
		}
		x, ok1 := cand.Value()
		y, ok2 := ref.Value()
		if ok1 && ok2 {
			if withinTolerance(x, y, tol) {
				return domain.Scored(1), true
			}
			return reject, true
		}
		if ok, err := alg.Equivalent(cand, ref); err == nil && ok {
			return domain.Scored(1), true
		}
		return reject, true
	}
}

// realNumberMatch compares answers that both evaluate to real numbers by
// relative error. A mismatch scores reject when decisive and is passed on
// otherwise. With years set, integral answers in [1000, 3000] must match
// exactly.
func realNumberMatch(alg ports.AlgebraEvaluator, tol float64, decisive, years bool, reject domain.Verdict) stage {
	const eps = 1e-6
	return func(_ context.Context, c *textCase) (domain.Verdict, bool) {
		x, ok1 := realValue(alg, c.candidate)
		y, ok2 := realValue(alg, c.reference)
		if !ok1 || !ok2 {
			return pass()
		}
		if years && isYear(x) && isYear(y) {
			if x == y {
				return domain.Scored(1), true
			}
			return domain.Scored(0), true
		}
		if math.Abs(x-y)/(math.Abs(y)+eps) < tol {
			return domain.Scored(1), true
		}
		if decisive {
			return reject, true
		}
		return pass()
	}
}

func realValue(alg ports.AlgebraEvaluator, s string) (float64, bool) {
	expr, err := alg.Parse(s)
	if err != nil {
		return 0, false
	}
	return expr.Value()
}

func isYear(f float64) bool {
	a := math.Abs(f)
	return f == math.Trunc(f) && a >= 1000 && a <= 3000
}

var listDelimiters = regexp.MustCompile(`[,;\s、，；]`)

// listMatch compares answers as unordered sets of delimited items.
func listMatch() stage {
	return func(_ context.Context, c *textCase) (domain.Verdict, bool) {
		a, b := itemSet(c.candidate), itemSet(c.reference)
		if len(a) > 0 && len(b) > 0 && slices.Equal(a, b) {
			return domain.Scored(1), true
		}
		return pass()
	}
}

func itemSet(s string) []string {
	var items []string
	for _, it := range listDelimiters.Split(s, -1) {
		if it = strings.TrimSpace(it); it != "" {
			items = append(items, it)
		}
	}
	slices.Sort(items)
	return slices.Compact(items)
}

// integerMatch scores 1 when both sides are digit strings of equal value.
func integerMatch() stage {
	return func(_ context.Context, c *textCase) (domain.Verdict, bool) {
		if !isDigits(c.candidate) || !isDigits(c.reference) {
			return pass()
		}
		if strings.TrimLeft(c.candidate, "0") == strings.TrimLeft(c.reference, "0") {
			return domain.Scored(1), true
		}
		return pass()
	}
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

var genotypeChars = regexp.MustCompile(`^[A-Za-z\s]*$`)

// normalizeGenotype sorts alleles within each gene pair and then the pairs,
// so bBAa and AaBb agree. Strings that are not paired genotypes yield "".
func normalizeGenotype(s string) string {
	s = strings.TrimSpace(s)
	if !genotypeChars.MatchString(s) {
		return ""
	}
	letters := strings.Join(strings.Fields(s), "")
	if letters == "" || len(letters)%2 != 0 {
		return ""
	}
	pairs := make([]string, 0, len(letters)/2)
	for i := 0; i < len(letters); i += 2 {
		p := []byte(letters[i : i+2])
		slices.Sort(p)
		pairs = append(pairs, string(p))
	}
	slices.Sort(pairs)
	return strings.Join(pairs, "")
}

// genotypeMatch compares paired genotype notation.
func genotypeMatch() stage {
	return func(_ context.Context, c *textCase) (domain.Verdict, bool) {
		a, b := normalizeGenotype(c.candidate), normalizeGenotype(c.reference)
		if a != "" && a == b {
			return domain.Scored(1), true
		}
		return pass()
	}
}

// unitRouting hands answers carrying a unit marker straight to next.
func unitRouting(units []string, next stage) stage {
	has := func(s string) bool {
		return slices.ContainsFunc(units, func(u string) bool { return strings.Contains(s, u) })
	}
	return func(ctx context.Context, c *textCase) (domain.Verdict, bool) {
		if has(c.candidate) || has(c.reference) {
			return next(ctx, c)
		}
		return pass()
	}
}

// remoteFallback asks the judge panel for a majority verdict. A disabled
// panel passes the case on.
func remoteFallback(panel *Panel) stage {
	return func(ctx context.Context, c *textCase) (domain.Verdict, bool) {
		if panel == nil {
			return pass()
		}
		c.usedJudge = true
		return panel.Majority(ctx, judgeValues(c.question, c.candidate, c.reference), parseBinaryReply), true
	}
}

var physicsUnits = []string{
	"kg", "g", "m", "cm", "mm", "km", "s", "ms", "h", "J", "N", "Pa", "W", "V", "A",
	"Ω", "℃", "K", "mol", "L", "ml", "％", "%",
	"米", "千克", "焦耳", "牛", "摄氏度", "安", "伏", "欧姆",
}

var chemistryUnits = []string{
	"mol", "L", "ml", "M", "N", "g/mol", "mol/L", "N_A", "atm", "kPa", "mmHg",
	"pH", "pOH", "K_w", "K_a", "K_b", "K_sp", "K_c", "K_p", "ΔH", "ΔS", "ΔG", "E°",
	"cal", "kcal", "kJ", "eV", "ppm", "ppb",
	"摩尔", "升", "毫升", "标准大气压", "氢离子浓度", "平衡常数", "摩尔浓度", "阿伏伽德罗常数",
}
