package summary

import (
	"context"
	"log/slog"
)

// Prober is a summarizer whose availability is checked once per run.
type Prober interface {
	Summarizer
	Probe(ctx context.Context) error
}

// Select probes the preferred summarizer once and returns it when available,
// otherwise the Truncator. Probe failures are logged and never returned.
// Per-call failures of the selected summarizer are handled by Fitter.
func Select(ctx context.Context, preferred Prober) Summarizer {
	fallback := NewTruncator()
	if preferred == nil {
		slog.Info("Summarizer selected", "name", fallback.Name())
		return fallback
	}

	if err := preferred.Probe(ctx); err != nil {
		slog.Warn("Preferred summarizer unavailable, falling back", "preferred", preferred.Name(), "fallback", fallback.Name(), "error", err)
		return fallback
	}

	slog.Info("Summarizer selected", "name", preferred.Name())
	return preferred
}
