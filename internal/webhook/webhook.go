// Package webhook delivers one-shot result callbacks for async jobs.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Sender posts JSON payloads to caller-supplied callback URLs. Delivery is
// a single attempt: a dead or slow endpoint costs one timeout and the
// outcome is logged, never retried and never queued.
type Sender struct {
	client *http.Client
	logger *slog.Logger
}

// NewSender creates a sender whose deliveries are bounded by timeout.
func NewSender(timeout time.Duration, logger *slog.Logger) *Sender {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sender{
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// Send posts payload as JSON to url. A non-2xx response is an error; the
// caller decides whether that matters (async dispatch just logs it).
func (s *Sender) Send(ctx context.Context, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Warn("webhook delivery failed", "url", url, "error", err)
		return fmt.Errorf("deliver webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		s.logger.Warn("webhook rejected", "url", url, "status", resp.StatusCode)
		return fmt.Errorf("webhook endpoint returned status %d", resp.StatusCode)
	}
	s.logger.Debug("webhook delivered", "url", url, "status", resp.StatusCode, "took", time.Since(start))
	return nil
}
