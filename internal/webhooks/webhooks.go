// Package webhooks notifies configured endpoints when an import run ends.
package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	defaultTimeout     = 2 * time.Second
	defaultConcurrency = 4
)

// Payload is the body posted after an import run.
type Payload struct {
	RunID    string         `json:"run_id"`
	Source   string         `json:"source"`
	Records  int            `json:"records"`
	Counts   map[string]int `json:"counts"`
	Partial  int            `json:"partial"`
	Failed   int            `json:"failed"`
	Finished time.Time      `json:"finished_at"`
}

// Dispatcher posts payloads to a fixed set of targets.
type Dispatcher struct {
	urls    []string
	client  *http.Client
	logger  *slog.Logger
	workers int
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithClient replaces the HTTP client.
func WithClient(c *http.Client) Option {
	return func(d *Dispatcher) { d.client = c }
}

// WithLogger sets the logger failed deliveries are reported to.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// New returns a dispatcher for the raw target list. Targets may contain the
// {run_id} placeholder; it is expanded per payload.
func New(urls []string, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		urls:    urls,
		client:  &http.Client{Timeout: defaultTimeout},
		logger:  slog.New(slog.DiscardHandler),
		workers: defaultConcurrency,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Empty reports whether there is nothing to notify.
func (d *Dispatcher) Empty() bool {
	return d == nil || len(d.urls) == 0
}

// Dispatch posts payload to every valid target and waits for all deliveries.
// It returns the number of targets that answered with a 2xx status.
// Delivery failures are logged, never returned.
func (d *Dispatcher) Dispatch(ctx context.Context, payload Payload) int {
	if d.Empty() {
		return 0
	}
	targets := Targets(d.urls, payload, d.logger)
	if len(targets) == 0 {
		return 0
	}

	body, err := json.Marshal(payload)
	if err != nil {
		d.logger.Error("webhooks: failed to encode payload", "error", err)
		return 0
	}

	var g errgroup.Group
	g.SetLimit(d.workers)
	var delivered atomic.Int64
	for _, endpoint := range targets {
		g.Go(func() error {
			if d.send(ctx, endpoint, body) {
				delivered.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()
	return int(delivered.Load())
}

func (d *Dispatcher) send(ctx context.Context, endpoint string, body []byte) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		d.logger.Warn("webhooks: build request failed", "url", endpoint, "error", err)
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		d.logger.Warn("webhooks: request failed", "url", endpoint, "error", err)
		return false
	}
	_ = resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		d.logger.Warn("webhooks: endpoint rejected payload", "url", endpoint, "status", resp.StatusCode)
		return false
	}
	return true
}

// Targets templates, normalizes and de-dupes the raw target list.
func Targets(urls []string, payload Payload, logger *slog.Logger) []string {
	if len(urls) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(urls))
	var normalized []string

	for _, raw := range urls {
		templated := strings.TrimSpace(applyTemplate(strings.TrimSpace(raw), payload))
		templated = strings.TrimRight(templated, "/")
		if templated == "" {
			continue
		}
		if !isValidWebhookURL(templated) {
			if logger != nil {
				logger.Warn("webhooks: skipping invalid url", "url", templated)
			}
			continue
		}
		if _, ok := seen[templated]; ok {
			continue
		}
		seen[templated] = struct{}{}
		normalized = append(normalized, templated)
	}

	return normalized
}

func applyTemplate(raw string, payload Payload) string {
	return strings.ReplaceAll(raw, "{run_id}", url.PathEscape(payload.RunID))
}

func isValidWebhookURL(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return false
	}
	return parsed.Host != ""
}
