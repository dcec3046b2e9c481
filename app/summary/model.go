package summary

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

const probeText = "The film follows a family over one long summer. It is quiet, patient and often very funny, " +
	"and the final scene lands with real weight."

// ModelSummarizer calls a hosted abstractive summarization model using the
// Hugging Face inference request shape.
type ModelSummarizer struct {
	endpoint string
	token    string
	timeout  time.Duration
	client   *http.Client
	limiter  *rate.Limiter
	disabled atomic.Bool
}

type modelRequest struct {
	Inputs     string          `json:"inputs"`
	Parameters modelParameters `json:"parameters"`
}

type modelParameters struct {
	MaxLength int  `json:"max_length"`
	MinLength int  `json:"min_length"`
	DoSample  bool `json:"do_sample"`
}

type modelResponse struct {
	SummaryText string `json:"summary_text"`
}

func NewModelSummarizer(endpoint, token string, timeout time.Duration) *ModelSummarizer {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &ModelSummarizer{
		endpoint: endpoint,
		token:    token,
		timeout:  timeout,
		client:   &http.Client{},
		limiter:  rate.NewLimiter(rate.Every(time.Second), 2),
	}
}

func (m *ModelSummarizer) Name() string {
	return "model"
}

// Available reports whether an endpoint is configured and no load failure was seen.
func (m *ModelSummarizer) Available() bool {
	return m.endpoint != "" && !m.disabled.Load()
}

// Probe runs one small request to confirm the model answers.
func (m *ModelSummarizer) Probe(ctx context.Context) error {
	if m.endpoint == "" {
		return fmt.Errorf("%w: no endpoint configured", ErrUnavailable)
	}
	summary, err := m.Summarize(ctx, probeText, 80)
	if err != nil {
		return err
	}
	if summary == "" {
		return fmt.Errorf("%w: empty probe summary", ErrUnavailable)
	}
	return nil
}

func (m *ModelSummarizer) Summarize(ctx context.Context, text string, targetLength int) (string, error) {
	if !m.Available() {
		return "", ErrUnavailable
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	if err := m.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("failed to wait for rate limiter: %w", err)
	}

	body, err := json.Marshal(modelRequest{
		Inputs: text,
		Parameters: modelParameters{
			MaxLength: tokenBudget(targetLength),
			MinLength: tokenBudget(targetLength) / 4,
			DoSample:  false,
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if m.token != "" {
		req.Header.Set("Authorization", "Bearer "+m.token)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call summarizer: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusServiceUnavailable {
		// Model still loading or out of capacity; not worth retrying in this run.
		m.disabled.Store(true)
		slog.Warn("Summarization model unavailable, disabling for this run", "endpoint", m.endpoint)
		return "", fmt.Errorf("%w: HTTP %d", ErrUnavailable, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("HTTP error: %d %s: %s", resp.StatusCode, resp.Status, bytes.TrimSpace(snippet))
	}

	var out []modelResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if len(out) == 0 {
		return "", fmt.Errorf("summarizer returned no results")
	}

	return Normalize(out[0].SummaryText), nil
}

// tokenBudget converts a character budget to a rough token count (~4 chars per token).
func tokenBudget(chars int) int {
	return max(chars/4, 8)
}
