// Package trafikverket talks to the Trafikverket open data API.
package trafikverket

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"trafikkarta/core-go/internal/metrics"
	"trafikkarta/core-go/internal/traffic"
)

const DefaultURL = "https://api.trafikinfo.trafikverket.se/v2/data.json"

// ErrMissingAPIKey is returned when no authentication key is configured.
var ErrMissingAPIKey = errors.New("trafikverket: api key not configured")

// ErrUnavailable wraps failures to obtain a usable upstream response,
// including an open circuit.
var ErrUnavailable = errors.New("trafikverket: upstream unavailable")

const maxResponseBytes = 64 << 20

type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// BreakerSettings tunes the circuit around upstream calls.
type BreakerSettings struct {
	FailureThreshold uint32
	OpenTimeout      time.Duration
	HalfOpenRequests uint32
}

func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{FailureThreshold: 5, OpenTimeout: 30 * time.Second, HalfOpenRequests: 1}
}

type Client struct {
	log     zerolog.Logger
	client  Doer
	url     string
	apiKey  string
	breaker *gobreaker.CircuitBreaker[[]byte]
	metrics *metrics.Metrics
}

func NewClient(log zerolog.Logger, client Doer, url, apiKey string, bs BreakerSettings, m *metrics.Metrics) *Client {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if url == "" {
		url = DefaultURL
	}
	if bs.FailureThreshold == 0 {
		bs = DefaultBreakerSettings()
	}

	c := &Client{log: log, client: client, url: url, apiKey: apiKey, metrics: m}
	c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "trafikverket",
		MaxRequests: bs.HalfOpenRequests,
		Timeout:     bs.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= bs.FailureThreshold
		},
		// A caller giving up says nothing about upstream health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
			m.SetBreakerState(name, int(to))
		},
	})
	return c
}

// Configured reports whether an API key is present.
func (c *Client) Configured() bool { return c.apiKey != "" }

// BreakerState is the current circuit state name.
func (c *Client) BreakerState() string { return c.breaker.State().String() }

// Fetch runs q and returns the raw JSON response body.
func (c *Client) Fetch(ctx context.Context, q Query) ([]byte, error) {
	if c.apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	body, err := BuildRequest(c.apiKey, q)
	if err != nil {
		return nil, fmt.Errorf("build trafikverket request: %w", err)
	}

	start := time.Now()
	raw, err := c.breaker.Execute(func() ([]byte, error) {
		return c.post(ctx, body)
	})
	switch {
	case err == nil:
		c.metrics.ObserveUpstream("ok", time.Since(start))
		return raw, nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		c.metrics.ObserveUpstream("rejected", time.Since(start))
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	default:
		c.metrics.ObserveUpstream("error", time.Since(start))
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
}

// FetchEnvelope is Fetch followed by decoding.
func (c *Client) FetchEnvelope(ctx context.Context, q Query) (*traffic.Envelope, error) {
	raw, err := c.Fetch(ctx, q)
	if err != nil {
		return nil, err
	}
	env, err := traffic.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("decode trafikverket response: %w", err)
	}
	return env, nil
}

func (c *Client) post(ctx context.Context, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "text/xml")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.log.Error().
			Int("status", resp.StatusCode).
			Str("body", truncate(string(data), 500)).
			Msg("trafikverket returned an error")
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	return data, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
