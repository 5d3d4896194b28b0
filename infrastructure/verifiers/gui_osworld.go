package verifiers

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/ahrav/go-reward/internal/domain"
)

// Default scroll step assumed when a candidate omits one.
const defaultScrollStep = 5

var (
	firstInlineBox = regexp.MustCompile(`<\|begin_of_box\|>(.*?)<\|end_of_box\|>`)
	actionName     = regexp.MustCompile(`^(\w+)\(`)
	actionParams   = regexp.MustCompile(`\((.*)\)$`)
	elementInfo    = regexp.MustCompile(`element_info='(.*?)'`)
	scrollDir      = regexp.MustCompile(`direction='(\w+)'`)
	scrollStep     = regexp.MustCompile(`step=(\d+)`)
	typedContent   = regexp.MustCompile(`content='(.*?)'`)
	keyNames       = regexp.MustCompile(`keys='(.*?)'`)

	pointParams = map[string]*regexp.Regexp{
		"start_box": regexp.MustCompile(`start_box='\[(\d+),\s*(\d+)\]'`),
		"end_box":   regexp.MustCompile(`end_box='\[(\d+),\s*(\d+)\]'`),
	}

	pointerActions  = []string{"left_click", "left_double_click", "right_click", "middle_click", "hover"}
	terminalActions = []string{"wait", "done", "fail", "finished"}
)

// osWorld scores desktop actions written as calls, e.g.
// left_click(start_box='[120, 340]').
type osWorld struct{}

func (osWorld) Extract(_ context.Context, response, _ string) (domain.Answer, error) {
	m := firstInlineBox.FindStringSubmatch(response)
	if m == nil {
		return domain.Absent(), domain.ErrNoSpan
	}
	content := strings.TrimSpace(m[1])
	if !domain.CallClosed(content) {
		return domain.Absent(), domain.ErrMalformedSpan
	}
	action := parseDesktopAction(content)
	if action == nil {
		return domain.Absent(), domain.ErrExtractionFailed
	}
	return domain.RecordAnswer(action), nil
}

// parseDesktopAction turns an action call into a record keyed by
// action_type plus the parameters that action uses.
func parseDesktopAction(text string) map[string]any {
	name := actionName.FindStringSubmatch(text)
	if name == nil {
		return nil
	}
	actionType := name[1]
	params := ""
	if m := actionParams.FindStringSubmatch(text); m != nil {
		params = m[1]
	}

	out := map[string]any{"action_type": actionType}
	if m := elementInfo.FindStringSubmatch(params); m != nil {
		out["element_info"] = m[1]
	}

	switch {
	case slices.Contains(pointerActions, actionType):
		if p, ok := point(params, "start_box"); ok {
			out["coordinates"] = p
		}
	case actionType == "left_drag":
		start, ok1 := point(params, "start_box")
		end, ok2 := point(params, "end_box")
		if ok1 && ok2 {
			out["start_coordinates"] = start
			out["end_coordinates"] = end
		}
	case actionType == "scroll":
		p, ok := point(params, "start_box")
		dir := scrollDir.FindStringSubmatch(params)
		if ok && dir != nil {
			out["coordinates"] = p
			out["direction"] = dir[1]
			if step := scrollStep.FindStringSubmatch(params); step != nil {
				n, _ := strconv.Atoi(step[1])
				out["step"] = n
			}
		}
	case actionType == "type":
		if m := typedContent.FindStringSubmatch(params); m != nil {
			out["content"] = m[1]
		}
	case actionType == "key" || actionType == "hotkey":
		if m := keyNames.FindStringSubmatch(params); m != nil {
			out["keys"] = m[1]
		}
	}
	return out
}

func point(params, name string) ([]float64, bool) {
	m := pointParams[name].FindStringSubmatch(params)
	if m == nil {
		return nil, false
	}
	x, _ := strconv.Atoi(m[1])
	y, _ := strconv.Atoi(m[2])
	return []float64{float64(x), float64(y)}, true
}

func (osWorld) Judge(_ context.Context, extracted, reference domain.Answer, _, _ string) (float64, error) {
	got, ok1 := extracted.Record()
	want, ok2 := reference.Record()
	if !ok1 || !ok2 {
		return 0, nil
	}
	actionType, _ := got["action_type"].(string)
	if wantType, _ := want["action_type"].(string); actionType != wantType {
		return 0, nil
	}

	switch {
	case slices.Contains(pointerActions, actionType):
		a, b, ok := pair(got, want, "coordinates", vectorOf)
		if !ok {
			return 0, nil
		}
		return CoordinateSimilarity(a, b, CoordinateTolerance), nil

	case actionType == "left_drag":
		s1, s2, ok1 := pair(got, want, "start_coordinates", vectorOf)
		e1, e2, ok2 := pair(got, want, "end_coordinates", vectorOf)
		if !ok1 || !ok2 {
			return 0, nil
		}
		start := CoordinateSimilarity(s1, s2, CoordinateTolerance)
		end := CoordinateSimilarity(e1, e2, CoordinateTolerance)
		return math.Sqrt(start * end), nil

	case actionType == "scroll":
		a, b, ok := pair(got, want, "coordinates", vectorOf)
		d1, d2, ok2 := pair(got, want, "direction", stringOf)
		if !ok || !ok2 {
			return 0, nil
		}
		score := CoordinateSimilarity(a, b, CoordinateTolerance)
		if d1 != d2 {
			return 0, nil
		}
		if ws, ok := want["step"]; ok {
			wantStep, ok := domain.ToFloat(ws)
			if !ok || wantStep == 0 {
				return 0, fmt.Errorf("%w: scroll step %v", domain.ErrBadReference, ws)
			}
			gotStep := float64(defaultScrollStep)
			if gs, ok := domain.ToFloat(got["step"]); ok {
				gotStep = gs
			}
			score *= math.Max(0, 1-math.Abs(gotStep-wantStep)/(wantStep*2))
		}
		return score, nil

	case actionType == "type":
		a, b, ok := pair(got, want, "content", stringOf)
		if !ok {
			return 0, nil
		}
		return TextSimilarity(a, b), nil

	case actionType == "key" || actionType == "hotkey":
		a, b, ok := pair(got, want, "keys", stringOf)
		if !ok || !strings.EqualFold(a, b) {
			return 0, nil
		}
		return 1, nil

	case slices.Contains(terminalActions, strings.ToLower(actionType)):
		return 1, nil
	}
	return 0, nil
}

// pair reads key from both records through conv.
func pair[T any](got, want map[string]any, key string, conv func(any) (T, bool)) (T, T, bool) {
	var zero T
	a, ok1 := conv(got[key])
	b, ok2 := conv(want[key])
	if !ok1 || !ok2 {
		return zero, zero, false
	}
	return a, b, true
}

func vectorOf(v any) ([]float64, bool) {
	if v == nil {
		return nil, false
	}
	return domain.NumericVector(v)
}

func stringOf(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}
