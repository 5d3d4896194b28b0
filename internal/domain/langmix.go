package domain

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Thresholds for the long-paragraph language-mix detector.
const (
	MinChineseChars     = 50
	MinEnglishWords     = 200
	chineseParagraphMin = 0.8
	englishParagraphMin = 0.7
)

var paragraphBreak = regexp.MustCompile(`\n{2,}`)

// ParagraphLanguage classifies a paragraph as long-form Chinese, long-form
// English, or neither.
type ParagraphLanguage uint8

// Paragraph classifications.
const (
	LanguageOther ParagraphLanguage = iota
	LanguageChinese
	LanguageEnglish
)

// ClassifyParagraph reports which long-form language dominates p. A paragraph
// is Chinese when it holds at least minChinese CJK ideographs making up more
// than 80% of its characters, and English when it holds at least minEnglish
// Latin words making up more than 70% of its whitespace-separated tokens.
func ClassifyParagraph(p string, minChinese, minEnglish int) ParagraphLanguage {
	total := utf8.RuneCountInString(p)
	if total == 0 {
		return LanguageOther
	}

	var han int
	for _, r := range p {
		if r >= 0x4e00 && r <= 0x9fff {
			han++
		}
	}
	if han >= minChinese && float64(han)/float64(total) > chineseParagraphMin {
		return LanguageChinese
	}

	words := countEnglishWords(p)
	tokens := len(strings.Fields(p))
	if words >= minEnglish && float64(words)/(float64(tokens)+1e-5) > englishParagraphMin {
		return LanguageEnglish
	}
	return LanguageOther
}

// countEnglishWords counts runs of word characters made only of two or more
// ASCII letters. Word characters are Unicode letters, numbers and
// underscore, so Latin glued to CJK (中文abc中文) is not an English word.
func countEnglishWords(p string) int {
	isWord := func(r rune) bool {
		return r == '_' || unicode.IsLetter(r) || unicode.IsNumber(r)
	}
	n := 0
	for _, run := range strings.FieldsFunc(p, func(r rune) bool { return !isWord(r) }) {
		if len(run) >= 2 && strings.IndexFunc(run, func(r rune) bool {
			return (r < 'a' || r > 'z') && (r < 'A' || r > 'Z')
		}) < 0 {
			n++
		}
	}
	return n
}

// HasLongParagraphMixing reports whether text contains both a long Chinese
// paragraph and a long English paragraph. Paragraphs are separated by blank
// lines.
func HasLongParagraphMixing(text string, minChinese, minEnglish int) bool {
	var zh, en bool
	for _, p := range paragraphBreak.Split(text, -1) {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		switch ClassifyParagraph(p, minChinese, minEnglish) {
		case LanguageChinese:
			zh = true
		case LanguageEnglish:
			en = true
		}
		if zh && en {
			return true
		}
	}
	return false
}
