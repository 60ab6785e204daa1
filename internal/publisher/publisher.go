// Package publisher sends event drafts to the central Maestro bus with
// bounded retry. Draft validation failures are surfaced immediately and never
// retried; transport failures and non-2xx responses are retried with linearly
// increasing backoff, and the last error is raised once attempts run out.
package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dma-digital/automation-agent/internal/rules"
	"go.uber.org/zap"
)

const publishPath = "/events/publish"

// defaultBackoff is the base delay; attempt N sleeps N x defaultBackoff.
const defaultBackoff = 800 * time.Millisecond

// Publisher posts validated drafts to the bus.
type Publisher struct {
	baseURL string
	rules   rules.Ruleset
	client  *http.Client
	retries int
	backoff time.Duration
	logger  *zap.Logger
}

// Option tweaks publisher behavior.
type Option func(*Publisher)

// WithRetries sets how many additional attempts follow the first failure.
func WithRetries(n int) Option {
	return func(p *Publisher) { p.retries = n }
}

// WithBackoff sets the base backoff delay.
func WithBackoff(d time.Duration) Option {
	return func(p *Publisher) { p.backoff = d }
}

// WithTimeout sets the per-request transport timeout.
func WithTimeout(d time.Duration) Option {
	return func(p *Publisher) { p.client.Timeout = d }
}

func New(baseURL string, ruleset rules.Ruleset, logger *zap.Logger, opts ...Option) *Publisher {
	p := &Publisher{
		baseURL: strings.TrimRight(baseURL, "/"),
		rules:   ruleset,
		client:  &http.Client{Timeout: 8 * time.Second},
		retries: 2,
		backoff: defaultBackoff,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish validates the draft and POSTs it to the bus. On success a non-empty
// response body is returned parsed; an empty body returns nil. After the
// retry budget is exhausted the last error is returned.
func (p *Publisher) Publish(ctx context.Context, draft rules.EventDraft) (map[string]any, error) {
	if err := p.rules.ValidateDraft(draft); err != nil {
		return nil, err
	}

	body, err := json.Marshal(draft)
	if err != nil {
		return nil, fmt.Errorf("%w: encode draft: %v", rules.ErrValidation, err)
	}

	url := p.baseURL + publishPath
	var lastErr error
	for attempt := 0; attempt <= p.retries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(attempt) * p.backoff
			p.logger.Warn("publish retrying",
				zap.String("event", draft.Name),
				zap.Int("attempt", attempt),
				zap.Duration("backoff", delay),
				zap.Error(lastErr),
			)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		result, err := p.post(ctx, url, body)
		if err == nil {
			return result, nil
		}
		lastErr = err
	}

	return nil, fmt.Errorf("publish %s after %d attempts: %w", draft.Name, p.retries+1, lastErr)
}

func (p *Publisher) post(ctx context.Context, url string, body []byte) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("bus returned %d: %s", resp.StatusCode, truncate(raw, 500))
	}
	if len(raw) == 0 {
		return nil, nil
	}

	var parsed map[string]any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parse bus response: %w", err)
	}
	return parsed, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n])
}
