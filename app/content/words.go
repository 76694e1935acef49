package content

import (
	"iter"
	"unicode"
)

// Word is a whitespace-delimited token and its rune offset in the source text.
type Word struct {
	Text  string
	Start int
}

// Words returns an iterator over the whitespace-delimited words of text.
// The sequence is finite and can be ranged over any number of times.
func Words(text string) iter.Seq[Word] {
	return func(yield func(Word) bool) {
		runes := []rune(text)
		start := -1

		for i, r := range runes {
			if !unicode.IsSpace(r) {
				if start < 0 {
					start = i
				}
				continue
			}
			if start >= 0 {
				if !yield(Word{Text: string(runes[start:i]), Start: start}) {
					return
				}
				start = -1
			}
		}

		if start >= 0 {
			yield(Word{Text: string(runes[start:]), Start: start})
		}
	}
}
