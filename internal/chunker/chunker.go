// Package chunker splits document text into bounded, overlapping windows
// suitable for embedding.
//
// Sizes are measured in Unicode code points (runes), never bytes, so a
// multi-byte character is never split. Every chunk is an exact substring of
// the input: nothing is trimmed or inserted, and the input can be rebuilt
// from the chunks and their spans.
package chunker

import (
	"fmt"
	"unicode"
)

// Defaults used by the ingestion pipeline when no override is configured.
const (
	DefaultSize    = 1000
	DefaultOverlap = 100
)

// separators lists the preferred cut points, strongest first. A cut is
// placed immediately after the separator. Entries on the same level are
// treated as equals and the rightmost eligible one wins.
var separators = [][]string{
	{"\n\n"},
	{"\n"},
	{". ", "! ", "? "},
	{" ", "\t"},
}

// Span is one chunk together with its rune offsets into the source text.
type Span struct {
	// Start is the rune offset of the first character (inclusive).
	Start int
	// End is the rune offset one past the last character (exclusive).
	End int
	// Text is the chunk content, equal to the source runes [Start, End).
	Text string
}

// Splitter cuts text into windows of at most Size runes. Consecutive
// windows overlap by at most Overlap runes. A Splitter is immutable and
// safe for concurrent use.
type Splitter struct {
	size    int
	overlap int
}

// New returns a Splitter. size must be positive and overlap must satisfy
// 0 <= overlap < size.
func New(size, overlap int) (*Splitter, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunker: size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("chunker: overlap must be in [0, %d), got %d", size, overlap)
	}
	return &Splitter{size: size, overlap: overlap}, nil
}

// Size returns the maximum chunk length in runes.
func (s *Splitter) Size() int { return s.size }

// Overlap returns the maximum overlap between consecutive chunks in runes.
func (s *Splitter) Overlap() int { return s.overlap }

// Split returns the chunk texts of text in order. Empty input yields no
// chunks.
func (s *Splitter) Split(text string) []string {
	spans := s.Spans(text)
	out := make([]string, len(spans))
	for i, sp := range spans {
		out[i] = sp.Text
	}
	return out
}

// Spans returns the chunks of text with their offsets. For consecutive
// spans a and b, b.Start <= a.End and a.End-b.Start <= Overlap(). Each span
// after the first contributes at least one rune not covered by the previous
// span.
func (s *Splitter) Spans(text string) []Span {
	r := []rune(text)
	n := len(r)
	if n == 0 {
		return nil
	}

	var spans []Span
	start := 0
	for {
		if n-start <= s.size {
			spans = append(spans, Span{Start: start, End: n, Text: string(r[start:n])})
			return spans
		}

		end := s.cut(r, start)
		spans = append(spans, Span{Start: start, End: end, Text: string(r[start:end])})

		// end > start+overlap, so next always advances.
		start = wordStart(r, end-s.overlap, end)
	}
}

// cut picks the end of the window starting at start. Eligible positions lie
// in (start+overlap, start+size] so the following window makes progress.
func (s *Splitter) cut(r []rune, start int) int {
	lo := start + s.overlap
	hi := start + s.size
	for _, level := range separators {
		best := -1
		for _, sep := range level {
			if p := lastAfter(r, sep, lo, hi); p > best {
				best = p
			}
		}
		if best > 0 {
			return best
		}
	}
	return hi
}

// lastAfter returns the largest p in (lo, hi] such that r[p-len(sep):p]
// equals sep, or -1.
func lastAfter(r []rune, sep string, lo, hi int) int {
	sr := []rune(sep)
	for p := hi; p > lo; p-- {
		if p-len(sr) < 0 {
			break
		}
		if equalRunes(r[p-len(sr):p], sr) {
			return p
		}
	}
	return -1
}

func equalRunes(a, b []rune) bool {
	for i := range b {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// wordStart moves from toward limit until it sits at the first rune of a
// word. It returns from unchanged when from is already a word start or no
// word starts in (from, limit].
func wordStart(r []rune, from, limit int) int {
	if isWordStart(r, from) {
		return from
	}
	for p := from + 1; p <= limit && p < len(r); p++ {
		if isWordStart(r, p) {
			return p
		}
	}
	return from
}

func isWordStart(r []rune, p int) bool {
	if p == 0 {
		return true
	}
	return unicode.IsSpace(r[p-1]) && !unicode.IsSpace(r[p])
}
