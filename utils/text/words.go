// Package text turns raw transcript text into candidate gloss words.
package text

import (
	"regexp"
	"strings"
)

// MinWordLength is the shortest token ExtractWords keeps.
const MinWordLength = 2

var (
	nonWordOrSpace = regexp.MustCompile(`[^a-z0-9\s]+`)
	nonWord        = regexp.MustCompile(`[^a-z0-9]+`)
)

type IExtractor interface {
	ExtractWords(text string) []string
}

// Extractor is the default IExtractor.
type Extractor struct{}

func (Extractor) ExtractWords(text string) []string {
	return ExtractWords(text)
}

// ExtractWords lowercases text, drops everything outside [a-z0-9] and
// whitespace, splits on whitespace runs and discards tokens shorter than
// MinWordLength. Order follows the source text.
func ExtractWords(text string) []string {
	cleaned := nonWordOrSpace.ReplaceAllString(strings.ToLower(text), "")
	fields := strings.Fields(cleaned)
	words := make([]string, 0, len(fields))
	for _, w := range fields {
		if len(w) < MinWordLength {
			continue
		}
		words = append(words, w)
	}
	return words
}

// NormalizeWord applies the per-token part of ExtractWords to a single
// word: lowercase, then drop everything outside [a-z0-9]. Already
// normalized input is returned unchanged.
func NormalizeWord(word string) string {
	return nonWord.ReplaceAllString(strings.ToLower(word), "")
}
