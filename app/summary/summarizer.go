package summary

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// ErrUnavailable reports that a summarization capability cannot serve requests.
var ErrUnavailable = errors.New("summarizer unavailable")

type Summarizer interface {
	Name() string
	Summarize(ctx context.Context, text string, targetLength int) (string, error)
}

// Len counts characters the way budgets are measured: code points of the NFC form.
func Len(s string) int {
	return utf8.RuneCountInString(norm.NFC.String(s))
}

// Normalize returns the NFC form of s with runs of whitespace collapsed to one space.
func Normalize(s string) string {
	return strings.Join(strings.Fields(norm.NFC.String(s)), " ")
}
