package verifiers

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"github.com/ahrav/go-reward/internal/domain"
)

// replyParser turns a judge reply into a vote. ok=false marks a failed
// endpoint.
type replyParser func(reply string) (vote float64, ok bool)

// ScoreHurdle is the pass mark applied to scores recovered from malformed
// JSON replies.
const ScoreHurdle = 0.7

var (
	reasoningBlock = regexp.MustCompile(`(?is)<think>.*?</think>\s*`)
	binaryToken    = regexp.MustCompile(`\b(?:1\.0|0\.0)\b`)
	firstObject    = regexp.MustCompile(`(?s)\{.*?\}`)
	looseScore     = regexp.MustCompile(`"score":\s*(.*?),`)
)

// stripReasoning removes reasoning blocks emitted by reasoning judges.
func stripReasoning(reply string) string {
	return strings.TrimSpace(reasoningBlock.ReplaceAllString(reply, ""))
}

// parseBinaryReply takes the last explicit 1.0 or 0.0 token, else a reply
// that is a bare number.
func parseBinaryReply(reply string) (float64, bool) {
	content := stripReasoning(reply)
	if content == "" {
		return 0, false
	}
	if tokens := binaryToken.FindAllString(content, -1); len(tokens) > 0 {
		f, err := strconv.ParseFloat(tokens[len(tokens)-1], 64)
		return f, err == nil
	}
	f, err := strconv.ParseFloat(content, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// parseVerdictReply reads a boxed Correct or Incorrect verdict.
func parseVerdictReply(reply string) (float64, bool) {
	for _, span := range domain.ExtractSpans(stripReasoning(reply)) {
		switch strings.TrimSpace(span) {
		case "Correct":
			return 1, true
		case "Incorrect":
			return 0, true
		}
	}
	return 0, false
}

// parseScoreReply reads {"score": x} from the first JSON object in the
// reply. Objects that do not decode fall back to a loose field match with a
// pass mark. A reply with no score at all votes zero.
func parseScoreReply(reply string) (float64, bool) {
	content := stripReasoning(reply)
	if content == "" {
		return 0, false
	}
	if obj := firstObject.FindString(content); obj != "" {
		if f, ok := decodeScore(obj); ok {
			return f, true
		}
	}
	if m := looseScore.FindStringSubmatch(content); m != nil {
		f, err := strconv.ParseFloat(strings.Trim(strings.TrimSpace(m[1]), `"`), 64)
		if err == nil {
			if f > ScoreHurdle {
				return 1, true
			}
			return 0, true
		}
	}
	return 0, true
}

func decodeScore(obj string) (float64, bool) {
	repaired, err := jsonrepair.JSONRepair(obj)
	if err != nil {
		return 0, false
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(repaired), &m); err != nil {
		return 0, false
	}
	switch v := m["score"].(type) {
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	default:
		return domain.ToFloat(v)
	}
}
