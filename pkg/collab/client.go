// Package collab implements the executor collaborators: HTTP JSON clients
// for market data, news, analysis models and side-channel feeds, plus a
// GORM-backed report sink.
package collab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/jdziat/simple-report-runs/pkg/jobctx"
)

// RunIDHeader carries the run ID on every outbound request.
const RunIDHeader = "X-Run-ID"

const maxErrorBody = 512

// StatusError is a non-2xx response from a collaborator.
type StatusError struct {
	Service string
	Code    int
	Body    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.Service, e.Code, e.Body)
}

// Client is a JSON-over-HTTP client for one collaborator service.
type Client struct {
	service string
	baseURL string
	http    *http.Client
	headers map[string]string
	log     zerolog.Logger
}

// ClientOption configures a Client.
type ClientOption interface {
	apply(*Client)
}

type clientOptionFunc func(*Client)

func (f clientOptionFunc) apply(c *Client) { f(c) }

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return clientOptionFunc(func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	})
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) ClientOption {
	return clientOptionFunc(func(c *Client) {
		if d > 0 {
			c.http = &http.Client{Timeout: d}
		}
	})
}

// WithHeader adds a header to every request, e.g. an API key.
func WithHeader(key, value string) ClientOption {
	return clientOptionFunc(func(c *Client) {
		c.headers[key] = value
	})
}

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) ClientOption {
	return clientOptionFunc(func(c *Client) {
		c.log = log
	})
}

// NewClient returns a client for the service at baseURL.
func NewClient(service, baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		service: service,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		headers: map[string]string{},
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt.apply(c)
	}
	c.log = c.log.With().Str("component", service+"_client").Logger()
	return c
}

// Service returns the service name used in logs and errors.
func (c *Client) Service() string {
	return c.service
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	return c.do(ctx, http.MethodGet, path, query, nil, out)
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	return c.do(ctx, http.MethodPost, path, nil, in, out)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: marshal request: %w", c.service, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("%s: create request: %w", c.service, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if runID := jobctx.RunIDFromContext(ctx); runID != "" {
		req.Header.Set(RunIDHeader, runID)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %s %s: %w", c.service, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Service: c.service, Code: resp.StatusCode, Body: string(bytes.TrimSpace(msg))}
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%s: decode response: %w", c.service, err)
		}
	}

	c.log.Debug().
		Str("run_id", jobctx.RunIDFromContext(ctx)).
		Str("method", method).
		Str("path", path).
		Dur("elapsed", time.Since(start)).
		Msg("collaborator call")
	return nil
}
