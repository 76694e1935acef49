package content

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	trailingSpace    = regexp.MustCompile(`[ \t\f\v]+\n`)
	excessBlankLines = regexp.MustCompile(`\n{3,}`)
)

// Normalize prepares extracted page text for storage and chunking: Unicode
// NFC, LF line endings, no trailing spaces before a newline and at most one
// blank line between paragraphs.
func Normalize(text string) string {
	text = norm.NFC.String(text)
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = trailingSpace.ReplaceAllString(text, "\n")
	text = excessBlankLines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// Hash returns the hex encoded SHA-256 digest of text.
func Hash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
