// Package notify delivers failed-run alerts.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/jdziat/simple-report-runs/pkg/core"
)

// DefaultTimeout bounds one webhook delivery.
const DefaultTimeout = 10 * time.Second

// ErrNoURL is returned by NewWebhook for an empty endpoint.
var ErrNoURL = errors.New("notify: webhook url is empty")

// maxErrorBody caps how much of a rejected response ends up in the error.
const maxErrorBody = 512

// Webhook posts alerts as JSON to a fixed URL. One attempt per alert.
type Webhook struct {
	url     string
	client  *http.Client
	timeout time.Duration
	headers map[string]string
	log     zerolog.Logger
}

var _ core.Alerter = (*Webhook)(nil)

// Option configures a Webhook.
type Option interface {
	apply(*Webhook)
}

type optionFunc func(*Webhook)

func (f optionFunc) apply(w *Webhook) { f(w) }

// WithTimeout bounds each delivery.
func WithTimeout(d time.Duration) Option {
	return optionFunc(func(w *Webhook) {
		if d > 0 {
			w.timeout = d
		}
	})
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return optionFunc(func(w *Webhook) {
		if c != nil {
			w.client = c
		}
	})
}

// WithHeader adds a header to every request, e.g. an auth token.
func WithHeader(key, value string) Option {
	return optionFunc(func(w *Webhook) {
		w.headers[key] = value
	})
}

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return optionFunc(func(w *Webhook) {
		w.log = log.With().Str("component", "notify").Logger()
	})
}

// NewWebhook returns a webhook alerter for url.
func NewWebhook(url string, opts ...Option) (*Webhook, error) {
	if url == "" {
		return nil, ErrNoURL
	}
	w := &Webhook{
		url:     url,
		client:  &http.Client{},
		timeout: DefaultTimeout,
		headers: map[string]string{},
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt.apply(w)
	}
	return w, nil
}

// Alert implements core.Alerter.
func (w *Webhook) Alert(ctx context.Context, a core.Alert) error {
	body, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("notify: marshal alert: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range w.headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: post alert: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("notify: webhook returned %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	w.log.Info().
		Str("run_id", a.RunID).
		Str("job_type", string(a.JobType)).
		Str("scheduled_date", a.ScheduledDate).
		Msg("alert delivered")
	return nil
}

// Nop discards alerts.
type Nop struct{}

// Alert implements core.Alerter.
func (Nop) Alert(context.Context, core.Alert) error { return nil }

// Log writes alerts to a logger instead of sending them anywhere.
type Log struct {
	Logger zerolog.Logger
}

// Alert implements core.Alerter.
func (l Log) Alert(_ context.Context, a core.Alert) error {
	l.Logger.Error().
		Str("run_id", a.RunID).
		Str("job_type", string(a.JobType)).
		Str("scheduled_date", a.ScheduledDate).
		Str("trigger_source", a.TriggerSource).
		Str("error_summary", a.Summary).
		Msg("run failed")
	return nil
}
