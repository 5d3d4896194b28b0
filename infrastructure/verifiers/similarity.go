package verifiers

import (
	"math"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/ahrav/go-reward/internal/domain"
)

// Text similarity weights and penalties.
const (
	editWeight        = 0.6
	bigramWeight      = 0.4
	minLengthRatio    = 0.3
	repetitionPenalty = 0.3
)

// Coordinate similarity parameters, in screen pixels.
const (
	CoordinateTolerance = 20.0
	coordinateFalloff   = 50.0
	nearMissPenalty     = 0.2
)

// Normalized box coordinate range, inclusive.
const (
	boxCoordMin = 0
	boxCoordMax = 999
)

// LCSRatio returns the longest common subsequence length of a and b over
// the longer length, in runes. Two empty strings are identical.
func LCSRatio(a, b string) float64 {
	x, y := []rune(a), []rune(b)
	longest := max(len(x), len(y))
	if longest == 0 {
		return 1
	}
	prev := make([]int, len(y)+1)
	cur := make([]int, len(y)+1)
	for i := 1; i <= len(x); i++ {
		for j := 1; j <= len(y); j++ {
			if x[i-1] == y[j-1] {
				cur[j] = prev[j-1] + 1
			} else {
				cur[j] = max(prev[j], cur[j-1])
			}
		}
		prev, cur = cur, prev
	}
	return float64(prev[len(y)]) / float64(longest)
}

// ValidBox reports whether b is [xmin, ymin, xmax, ymax] with integral
// coordinates in the normalized range and non-inverted corners.
func ValidBox(b []float64) bool {
	if len(b) != 4 {
		return false
	}
	for _, v := range b {
		if v != math.Trunc(v) || v < boxCoordMin || v > boxCoordMax {
			return false
		}
	}
	return b[0] <= b[2] && b[1] <= b[3]
}

// IoU returns the intersection over union of two axis-aligned boxes.
// Boxes with no area union score zero.
func IoU(a, b []float64) float64 {
	iw := math.Max(math.Min(a[2], b[2])-math.Max(a[0], b[0]), 0)
	ih := math.Max(math.Min(a[3], b[3])-math.Max(a[1], b[1]), 0)
	inter := iw * ih
	union := (a[2]-a[0])*(a[3]-a[1]) + (b[2]-b[0])*(b[3]-b[1]) - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// CoordinateSimilarity scores two screen points. Points within tolerance lose
// at most a fifth of the score; beyond it the score decays linearly to zero.
func CoordinateSimilarity(a, b []float64, tolerance float64) float64 {
	if len(a) != 2 || len(b) != 2 {
		return 0
	}
	d := math.Hypot(a[0]-b[0], a[1]-b[1])
	if d <= tolerance {
		return 1 - (d/tolerance)*nearMissPenalty
	}
	return math.Max(0, 1-d/coordinateFalloff)
}

// TextSimilarity blends normalized edit distance and bigram Jaccard overlap
// on lowercased, trimmed input, then applies a length-ratio penalty and a
// repetition penalty. The result lies in [0, 1].
func TextSimilarity(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	la, lb := len([]rune(a)), len([]rune(b))
	if la == 0 || lb == 0 {
		return 0
	}

	lengthPenalty := 1.0
	if ratio := float64(min(la, lb)) / float64(max(la, lb)); ratio < minLengthRatio {
		lengthPenalty = ratio
	}
	repeat := 1.0
	if domain.HasExcessiveRepetition(a, domain.RepetitionThreshold) ||
		domain.HasExcessiveRepetition(b, domain.RepetitionThreshold) {
		repeat = repetitionPenalty
	}

	combined := editWeight*EditSimilarity(a, b) + bigramWeight*bigramJaccard(a, b)
	return domain.Clamp(combined*lengthPenalty*repeat, 0, 1)
}

// EditSimilarity returns 1 - levenshtein(a, b) / max length, in runes.
func EditSimilarity(a, b string) float64 {
	longest := max(len([]rune(a)), len([]rune(b)))
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}

func bigramJaccard(a, b string) float64 {
	x, y := bigrams(a), bigrams(b)
	if len(x) == 0 && len(y) == 0 {
		return 1
	}
	inter := 0
	for g := range x {
		if _, ok := y[g]; ok {
			inter++
		}
	}
	union := len(x) + len(y) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func bigrams(s string) map[string]struct{} {
	r := []rune(s)
	out := make(map[string]struct{}, len(r))
	for i := 0; i+1 < len(r); i++ {
		out[string(r[i:i+2])] = struct{}{}
	}
	return out
}
