// Package fetcher retrieves traffic envelopes from the aggregation endpoint.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"trafikkarta/core-go/internal/traffic"
)

const (
	MessageOK     = "Data hämtad."
	MessageFailed = "Kunde inte hämta trafikinformation från servern."
)

// maxBodyBytes bounds the envelope read from the endpoint.
const maxBodyBytes = 32 << 20

// Result never carries an error; failures are reported through Success and
// Message.
type Result struct {
	Success bool
	Data    *traffic.Envelope
	Message string
}

// Doer is satisfied by *http.Client.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Fetcher struct {
	log     zerolog.Logger
	client  Doer
	baseURL string
}

func New(log zerolog.Logger, client Doer, baseURL string) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &Fetcher{log: log, client: client, baseURL: baseURL}
}

// URL builds the request URL for a region value. The all-regions value omits
// the county parameter.
func (f *Fetcher) URL(regionValue string) string {
	var sb strings.Builder
	sb.WriteString(f.baseURL)
	if strings.Contains(f.baseURL, "?") {
		sb.WriteString("&")
	} else {
		sb.WriteString("?")
	}
	if regionValue != "" {
		sb.WriteString("county=")
		sb.WriteString(url.QueryEscape(regionValue))
		sb.WriteString("&")
	}
	sb.WriteString("messageTypeValue=")
	sb.WriteString(traffic.RequestedMessageTypesParam())
	return sb.String()
}

// Fetch issues one GET for the region. It never retries.
func (f *Fetcher) Fetch(ctx context.Context, regionValue string) Result {
	target := f.URL(regionValue)
	log := f.log.With().Str("county", regionValue).Logger()

	env, err := f.fetch(ctx, target)
	if err != nil {
		log.Error().Err(err).Str("url", target).Msg("traffic fetch failed")
		return Result{Success: false, Message: MessageFailed}
	}
	log.Debug().Int("deviations", len(env.Deviations())).Int("cameras", len(env.Cameras())).Msg("traffic fetched")
	return Result{Success: true, Data: env, Message: MessageOK}
}

func (f *Fetcher) fetch(ctx context.Context, target string) (*traffic.Envelope, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("http status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}
	return traffic.Decode(body)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
