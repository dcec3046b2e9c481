package summary

import (
	"context"
	"strings"
	"unicode"
)

const Ellipsis = "..."

// Truncator keeps the leading words of a text. It never fails.
type Truncator struct{}

func NewTruncator() *Truncator {
	return &Truncator{}
}

func (t *Truncator) Name() string {
	return "truncation"
}

func (t *Truncator) Summarize(ctx context.Context, text string, targetLength int) (string, error) {
	return LeadingWords(Normalize(text), targetLength), nil
}

// LeadingWords returns the longest prefix of whole words that fits in maxChars.
// A first word longer than maxChars is cut hard.
func LeadingWords(text string, maxChars int) string {
	if maxChars <= 0 {
		return ""
	}
	runes := []rune(text)
	if len(runes) <= maxChars {
		return text
	}

	cut := runes[:maxChars]
	if !unicode.IsSpace(runes[maxChars]) {
		if i := lastSpace(cut); i > 0 {
			cut = cut[:i]
		}
	}
	return strings.TrimRightFunc(string(cut), unicode.IsSpace)
}

// Truncate cuts text on a word boundary and marks the cut with an ellipsis.
// The result is never longer than maxChars.
func Truncate(text string, maxChars int) string {
	if maxChars <= 0 {
		return ""
	}
	text = Normalize(text)
	runes := []rune(text)
	if len(runes) <= maxChars {
		return text
	}

	ellipsis := []rune(Ellipsis)
	if maxChars <= len(ellipsis) {
		return string(runes[:maxChars])
	}

	head := LeadingWords(text, maxChars-len(ellipsis))
	head = strings.TrimRightFunc(head, func(r rune) bool {
		return unicode.IsSpace(r) || r == ',' || r == ';' || r == ':' || r == '-'
	})
	return head + Ellipsis
}

func lastSpace(runes []rune) int {
	for i := len(runes) - 1; i >= 0; i-- {
		if unicode.IsSpace(runes[i]) {
			return i
		}
	}
	return -1
}
