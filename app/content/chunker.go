package content

import (
	"regexp"
	"unicode/utf8"
)

// ParagraphSeparator joins paragraphs that share a chunk.
const ParagraphSeparator = "\n\n"

var paragraphBreak = regexp.MustCompile(`\n\n+`)

// Chunk splits content into segments of at most maxLen characters (runes),
// breaking at blank-line paragraph boundaries. Paragraphs are packed greedily.
// A paragraph that does not fit next to the buffered ones is emitted on its
// own, hard-split into maxLen slices when it is longer than maxLen.
//
// Content that already fits is returned unmodified as a single chunk. A
// non-positive maxLen disables splitting.
func Chunk(content string, maxLen int) []string {
	if maxLen <= 0 || utf8.RuneCountInString(content) <= maxLen {
		return []string{content}
	}

	var chunks []string
	buffer := ""

	for _, para := range paragraphBreak.Split(content, -1) {
		candidate := para
		if buffer != "" {
			candidate = buffer + ParagraphSeparator + para
		}

		if utf8.RuneCountInString(candidate) <= maxLen {
			buffer = candidate
			continue
		}

		if buffer != "" {
			chunks = append(chunks, buffer)
		}
		chunks = append(chunks, hardSplit(para, maxLen)...)
		buffer = ""
	}

	if buffer != "" {
		chunks = append(chunks, buffer)
	}

	return chunks
}

func hardSplit(s string, size int) []string {
	runes := []rune(s)
	out := make([]string, 0, (len(runes)+size-1)/size)
	for i := 0; i < len(runes); i += size {
		end := min(i+size, len(runes))
		out = append(out, string(runes[i:end]))
	}
	return out
}
