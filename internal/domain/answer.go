// Package domain contains the dependency-free models of the reward engine:
// extracted answers, verdicts, audit records and the text checks that gate
// scoring.
package domain

import (
	"encoding/json"
	"fmt"
	"maps"
)

// AnswerKind discriminates the shapes an extracted answer can take.
type AnswerKind uint8

// Supported answer shapes.
const (
	// AnswerAbsent marks a failed extraction.
	AnswerAbsent AnswerKind = iota
	// AnswerText is a plain string payload.
	AnswerText
	// AnswerRecord is a key/value record, used for structured GUI actions.
	AnswerRecord
	// AnswerBoxes is a nested numeric array, used for geometric boxes.
	AnswerBoxes
)

// String returns the lowercase name of the kind.
func (k AnswerKind) String() string {
	switch k {
	case AnswerText:
		return "text"
	case AnswerRecord:
		return "record"
	case AnswerBoxes:
		return "boxes"
	default:
		return "absent"
	}
}

// Answer is the result of extraction: the value a judge consumes.
// The zero value is an absent answer. Answers are immutable once built;
// accessors return copies of the underlying collections.
type Answer struct {
	kind   AnswerKind
	text   string
	record map[string]any
	boxes  [][]float64
}

// Absent returns an answer representing a failed extraction.
func Absent() Answer { return Answer{} }

// TextAnswer wraps a plain string payload.
func TextAnswer(s string) Answer { return Answer{kind: AnswerText, text: s} }

// RecordAnswer wraps a key/value payload. A nil map yields an absent answer.
func RecordAnswer(m map[string]any) Answer {
	if m == nil {
		return Absent()
	}
	return Answer{kind: AnswerRecord, record: maps.Clone(m)}
}

// BoxesAnswer wraps a nested numeric array. An empty slice yields an absent answer.
func BoxesAnswer(b [][]float64) Answer {
	if len(b) == 0 {
		return Absent()
	}
	cp := make([][]float64, len(b))
	for i := range b {
		cp[i] = append([]float64(nil), b[i]...)
	}
	return Answer{kind: AnswerBoxes, boxes: cp}
}

// Kind reports the answer shape.
func (a Answer) Kind() AnswerKind { return a.kind }

// IsAbsent reports whether extraction failed.
func (a Answer) IsAbsent() bool { return a.kind == AnswerAbsent }

// Text returns the string payload when the answer is textual.
func (a Answer) Text() (string, bool) {
	if a.kind != AnswerText {
		return "", false
	}
	return a.text, true
}

// Record returns a copy of the key/value payload when the answer is a record.
func (a Answer) Record() (map[string]any, bool) {
	if a.kind != AnswerRecord {
		return nil, false
	}
	return maps.Clone(a.record), true
}

// Boxes returns a copy of the numeric payload when the answer holds boxes.
func (a Answer) Boxes() ([][]float64, bool) {
	if a.kind != AnswerBoxes {
		return nil, false
	}
	cp := make([][]float64, len(a.boxes))
	for i := range a.boxes {
		cp[i] = append([]float64(nil), a.boxes[i]...)
	}
	return cp, true
}

// Value returns the payload as a plain Go value: nil, string,
// map[string]any, or [][]float64.
func (a Answer) Value() any {
	switch a.kind {
	case AnswerText:
		return a.text
	case AnswerRecord:
		return maps.Clone(a.record)
	case AnswerBoxes:
		b, _ := a.Boxes()
		return b
	default:
		return nil
	}
}

// String renders the payload for logs.
func (a Answer) String() string {
	switch a.kind {
	case AnswerText:
		return a.text
	case AnswerAbsent:
		return "<absent>"
	default:
		data, err := json.Marshal(a.Value())
		if err != nil {
			return fmt.Sprintf("%v", a.Value())
		}
		return string(data)
	}
}

// MarshalJSON encodes the payload, with null for absent answers.
func (a Answer) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.Value())
}

// AnswerFromValue converts a decoded JSON value into an Answer. Strings become
// text, objects become records, and arrays of numeric arrays become boxes.
// Anything else is absent.
func AnswerFromValue(v any) Answer {
	switch t := v.(type) {
	case string:
		return TextAnswer(t)
	case map[string]any:
		return RecordAnswer(t)
	case []any:
		boxes, ok := NumericMatrix(t)
		if !ok {
			return Absent()
		}
		return BoxesAnswer(boxes)
	default:
		return Absent()
	}
}

// NumericMatrix converts a decoded [[n, n, ...], ...] value into a float matrix.
func NumericMatrix(v any) ([][]float64, bool) {
	rows, ok := v.([]any)
	if !ok || len(rows) == 0 {
		return nil, false
	}
	out := make([][]float64, 0, len(rows))
	for _, r := range rows {
		row, ok := NumericVector(r)
		if !ok {
			return nil, false
		}
		out = append(out, row)
	}
	return out, true
}

// NumericVector converts a decoded [n, n, ...] value into a float slice.
func NumericVector(v any) ([]float64, bool) {
	switch t := v.(type) {
	case []float64:
		return append([]float64(nil), t...), true
	case []int:
		out := make([]float64, len(t))
		for i, n := range t {
			out[i] = float64(n)
		}
		return out, true
	case []any:
		out := make([]float64, 0, len(t))
		for _, item := range t {
			f, ok := ToFloat(item)
			if !ok {
				return nil, false
			}
			out = append(out, f)
		}
		return out, true
	default:
		return nil, false
	}
}

// ToFloat converts JSON and YAML numeric representations to float64.
func ToFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
