package verifiers

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"github.com/ahrav/go-reward/internal/domain"
)

// Fields of an AndroidWorld action with partial credit.
const (
	fieldText  = "text"
	fieldBox2D = "box_2d"
)

var paddedBox = regexp.MustCompile(`\[\[\s*(\d+)\s*,\s*(\d+)\s*,\s*(\d+)\s*,\s*(\d+)\s*\]\]`)

// androidWorld scores mobile actions given as a record, e.g.
// {"action_type": "click", "box_2d": [[503, 580, 718, 702]]}. The key sets
// must agree; each differing field then scores on its own and the scores
// multiply.
type androidWorld struct{}

func (androidWorld) Extract(_ context.Context, response, _ string) (domain.Answer, error) {
	_, rest, ok := strings.Cut(response, domain.BeginOfBox)
	if !ok {
		return domain.Absent(), domain.ErrNoSpan
	}
	content, _, ok := strings.Cut(rest, domain.EndOfBox)
	if !ok {
		return domain.Absent(), domain.ErrNoSpan
	}
	content = strings.TrimSpace(content)
	if !domain.WellFormed(content) {
		return domain.Absent(), domain.ErrMalformedSpan
	}

	// Strip leading zeros so [[010, ...]] decodes as JSON.
	if m := paddedBox.FindStringSubmatch(content); m != nil {
		nums := make([]string, 4)
		for i := range nums {
			n, _ := strconv.Atoi(m[i+1])
			nums[i] = strconv.Itoa(n)
		}
		content = strings.ReplaceAll(content, m[0], "[["+strings.Join(nums, ",")+"]]")
	}

	value, err := decodeLiteral(content)
	if err != nil {
		return domain.Absent(), err
	}
	ans := domain.AnswerFromValue(value)
	if ans.IsAbsent() {
		return ans, domain.ErrExtractionFailed
	}
	return ans, nil
}

// decodeLiteral decodes JSON, repairing Python-style literals first when
// plain decoding fails.
func decodeLiteral(s string) (any, error) {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err == nil {
		return v, nil
	}
	repaired, err := jsonrepair.JSONRepair(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedSpan, err)
	}
	if err := json.Unmarshal([]byte(repaired), &v); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedSpan, err)
	}
	return v, nil
}

func (androidWorld) Judge(_ context.Context, extracted, reference domain.Answer, _, _ string) (float64, error) {
	want, ok := reference.Record()
	if !ok {
		return 0, fmt.Errorf("%w: reference action is %s", domain.ErrBadReference, reference.Kind())
	}
	got, ok := extracted.Record()
	if !ok {
		return 0, nil
	}
	if !sameKeys(got, want) {
		return 0, nil
	}

	score := 1.0
	for key, w := range want {
		g := got[key]
		if reflect.DeepEqual(g, w) {
			continue
		}
		switch key {
		case fieldText:
			gs, ok1 := g.(string)
			ws, ok2 := w.(string)
			if !ok1 || !ok2 {
				return 0, nil
			}
			score *= LCSRatio(ws, gs)
		case fieldBox2D:
			wb, ok := firstBox(w)
			if !ok || !ValidBox(wb) {
				return 0, fmt.Errorf("%w: invalid reference box %v", domain.ErrBadReference, w)
			}
			gb, ok := firstBox(g)
			if !ok || !ValidBox(gb) {
				return 0, nil
			}
			score *= IoU(wb, gb)
		default:
			// Enumerated fields must match exactly.
			return 0, nil
		}
	}
	return score, nil
}

func sameKeys(a, b map[string]any) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range b {
		if _, ok := a[k]; !ok {
			return false
		}
	}
	return true
}

// firstBox reads the first row of a [[x0, y0, x1, y1], ...] value.
func firstBox(v any) ([]float64, bool) {
	if rows, ok := v.([][]float64); ok && len(rows) > 0 {
		return slices.Clone(rows[0]), true
	}
	rows, ok := domain.NumericMatrix(v)
	if !ok {
		return nil, false
	}
	return rows[0], true
}
