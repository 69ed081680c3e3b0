package ingestion

import (
	"strings"
	"unicode"
)

// Sanitize removes control, format and private-use characters from text,
// keeping newlines, tabs and carriage returns. Uploaded files often carry
// BOMs, zero-width spaces or stray NULs that would otherwise end up in
// embeddings and prompts.
func Sanitize(text string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '\n', '\t', '\r':
			return r
		}
		if unicode.Is(unicode.C, r) {
			return -1
		}
		return r
	}, text)
}
