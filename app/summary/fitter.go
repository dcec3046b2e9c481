package summary

import (
	"context"
	"log/slog"
)

const (
	DefaultFitAttempts = 3
	headroomPercent    = 90
	shrinkPercent      = 75
)

// Fitter squeezes free text into a character budget, preferring the summarizer
// and falling back to word-boundary truncation with an ellipsis. A Truncator
// is not a compressor, so it goes straight to the fallback.
type Fitter struct {
	summarizer Summarizer
	attempts   int
}

func NewFitter(summarizer Summarizer) *Fitter {
	if _, ok := summarizer.(*Truncator); ok {
		summarizer = nil
	}
	return &Fitter{summarizer: summarizer, attempts: DefaultFitAttempts}
}

func (f *Fitter) Fit(ctx context.Context, text string, maxChars int) string {
	if maxChars <= 0 || text == "" {
		return ""
	}
	if Len(text) <= maxChars {
		return text
	}

	if f.summarizer != nil {
		target := maxChars * headroomPercent / 100
		for attempt := 1; attempt <= f.attempts && target > 0; attempt++ {
			summary, err := f.summarizer.Summarize(ctx, text, target)
			if err != nil {
				slog.Warn("Summarizer degraded for item, truncating", "summarizer", f.summarizer.Name(), "error", err)
				break
			}
			if summary != "" && Len(summary) <= maxChars {
				return summary
			}
			slog.Debug("Summary over budget, retrying shorter",
				"attempt", attempt,
				"target", target,
				"length", Len(summary),
				"max_chars", maxChars)
			target = target * shrinkPercent / 100
		}
	}

	return Truncate(text, maxChars)
}
