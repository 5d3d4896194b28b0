package domain

// RepetitionThreshold is the coverage above which a string counts as
// dominated by one repeated character or short substring.
const RepetitionThreshold = 0.7

// minRepetitionLength is the shortest string the repetition check considers.
const minRepetitionLength = 10

// HasExcessiveRepetition reports whether a single character, or a single
// substring of length two to four, covers more than threshold of s.
// Strings shorter than ten characters are never flagged.
func HasExcessiveRepetition(s string, threshold float64) bool {
	runes := []rune(s)
	n := len(runes)
	if n < minRepetitionLength {
		return false
	}

	chars := make(map[rune]int)
	most := 0
	for _, r := range runes {
		chars[r]++
		if chars[r] > most {
			most = chars[r]
		}
	}
	if float64(most)/float64(n) > threshold {
		return true
	}

	for size := 2; size <= 4; size++ {
		counts := make(map[string]int)
		most = 0
		for i := 0; i+size <= n; i++ {
			k := string(runes[i : i+size])
			counts[k]++
			if counts[k] > most {
				most = counts[k]
			}
		}
		if float64(most*size)/float64(n) > threshold {
			return true
		}
	}
	return false
}
