package geolocate

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"trafikkarta/core-go/internal/geometry"
)

const (
	DefaultNominatimURL = "https://nominatim.openstreetmap.org/reverse"
	DefaultUserAgent    = "trafikkarta/1.0"
	DefaultLanguage     = "sv"
)

// Doer is the subset of *http.Client the geocoder needs.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Nominatim is a reverse geocoder backed by the OpenStreetMap Nominatim API.
type Nominatim struct {
	log       zerolog.Logger
	client    Doer
	baseURL   string
	userAgent string
	language  string
}

type NominatimOption func(*Nominatim)

func WithUserAgent(ua string) NominatimOption {
	return func(n *Nominatim) {
		if ua != "" {
			n.userAgent = ua
		}
	}
}

func WithLanguage(lang string) NominatimOption {
	return func(n *Nominatim) {
		if lang != "" {
			n.language = lang
		}
	}
}

func NewNominatim(log zerolog.Logger, client Doer, baseURL string, opts ...NominatimOption) *Nominatim {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if baseURL == "" {
		baseURL = DefaultNominatimURL
	}
	n := &Nominatim{
		log:       log,
		client:    client,
		baseURL:   baseURL,
		userAgent: DefaultUserAgent,
		language:  DefaultLanguage,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

type nominatimResponse struct {
	DisplayName string   `json:"display_name"`
	Address     *Address `json:"address"`
	Error       string   `json:"error"`
}

// URL builds the reverse lookup request for pos.
func (n *Nominatim) URL(pos geometry.LatLon) string {
	q := url.Values{}
	q.Set("format", "jsonv2")
	q.Set("lat", strconv.FormatFloat(pos.Lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(pos.Lon, 'f', -1, 64))
	q.Set("accept-language", n.language)
	q.Set("addressdetails", "1")
	return n.baseURL + "?" + q.Encode()
}

func (n *Nominatim) Reverse(ctx context.Context, pos geometry.LatLon) (Address, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.URL(pos), nil)
	if err != nil {
		return Address{}, err
	}
	// Nominatim's usage policy rejects requests without an identifying agent.
	req.Header.Set("User-Agent", n.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return Address{}, fmt.Errorf("nominatim request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return Address{}, fmt.Errorf("nominatim status %d", resp.StatusCode)
	}

	var body nominatimResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err != nil {
		return Address{}, fmt.Errorf("decode nominatim response: %w", err)
	}
	if body.Error != "" || body.Address == nil {
		n.log.Debug().
			Float64("lat", pos.Lat).
			Float64("lon", pos.Lon).
			Str("error", body.Error).
			Msg("nominatim returned no address")
		return Address{}, ErrNoAddress
	}
	if body.Address.RegionName() == "" {
		return Address{}, ErrNoAddress
	}
	return *body.Address, nil
}
