package search

import (
	"strings"
	"unicode/utf8"

	"github.com/lysyi3m/linksift/app/content"
)

// DefaultRange is how many characters a snippet keeps on each side of the
// matched word.
const DefaultRange = 30

// QueryWords returns the set of lowercased, space-separated words of query.
func QueryWords(query string) map[string]struct{} {
	words := make(map[string]struct{})
	for _, w := range strings.Split(query, " ") {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" {
			words[w] = struct{}{}
		}
	}
	return words
}

// Snippet returns the text around the first word of text that is one of
// words, reaching rng characters to each side. ok is false when no word of
// the query appears in text.
func Snippet(words map[string]struct{}, text string, rng int) (snippet string, ok bool) {
	if len(words) == 0 || text == "" {
		return "", false
	}

	for w := range content.Words(text) {
		if _, match := words[strings.ToLower(strings.TrimSpace(w.Text))]; !match {
			continue
		}

		runes := []rune(text)
		start := max(0, w.Start-rng)
		end := min(len(runes), w.Start+utf8.RuneCountInString(w.Text)+rng+1)

		return string(runes[start:end]), true
	}

	return "", false
}
