package trafikverket

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"trafikkarta/core-go/internal/metrics"
)

func intPtr(n int) *int { return &n }

func TestBuildRequest_countyAndTypes(t *testing.T) {
	body, err := BuildRequest("secret", Query{CountyNo: intPtr(1), MessageTypes: []string{"Accident", "Roadwork"}})
	if err != nil {
		t.Fatalf("BuildRequest: %v", err)
	}
	got := string(body)
	for _, want := range []string{
		`<LOGIN authenticationkey="secret"></LOGIN>`,
		`objecttype="Situation" namespace="Road.TrafficInfo" schemaversion="1.5" orderby="Deviation.CreationTime DESC"`,
		`<EXISTS name="Deviation" value="true"></EXISTS>`,
		`<EQ name="Deviation.CountyNo" value="1"></EQ>`,
		`<IN name="Deviation.MessageTypeValue" value="Accident,Roadwork"></IN>`,
		`<INCLUDE>Deviation.Geometry.Point.WGS84</INCLUDE>`,
		`objecttype="TrafficSafetyCamera" namespace="Road.Infrastructure" schemaversion="1"`,
		`<EQ name="CountyNo" value="1"></EQ>`,
		`<INCLUDE>Bearing</INCLUDE>`,
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("expected %q in request:\n%s", want, got)
		}
	}
}

func TestBuildRequest_wholeCountryUsesDefaults(t *testing.T) {
	body, err := BuildRequest("k", Query{})
	if err != nil {
		t.Fatalf("BuildRequest: %v", err)
	}
	got := string(body)
	if strings.Contains(got, "CountyNo\" value") {
		t.Fatalf("expected no county filter:\n%s", got)
	}
	if !strings.Contains(got, `value="Accident,Roadwork"`) {
		t.Fatalf("expected default message types:\n%s", got)
	}
}

func TestParseMessageTypes(t *testing.T) {
	got := ParseMessageTypes(" Accident, ,Roadwork,")
	if len(got) != 2 || got[0] != "Accident" || got[1] != "Roadwork" {
		t.Fatalf("unexpected types: %v", got)
	}
}

func TestClient_missingAPIKey(t *testing.T) {
	c := NewClient(zerolog.New(io.Discard), nil, "", "", BreakerSettings{}, nil)
	if c.Configured() {
		t.Fatalf("expected unconfigured client")
	}
	if _, err := c.Fetch(context.Background(), Query{}); !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
}

func TestClient_FetchEnvelope(t *testing.T) {
	var gotType, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotType = r.Header.Get("Content-Type")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		_, _ = w.Write([]byte(`{"RESPONSE":{"RESULT":[{"Situation":[{"Deviation":[{"Id":"d1","MessageTypeValue":"Accident"}]}]}]}}`))
	}))
	defer srv.Close()

	c := NewClient(zerolog.New(io.Discard), srv.Client(), srv.URL, "key", BreakerSettings{}, metrics.New())
	env, err := c.FetchEnvelope(context.Background(), Query{CountyNo: intPtr(3)})
	if err != nil {
		t.Fatalf("FetchEnvelope: %v", err)
	}
	if devs := env.Deviations(); len(devs) != 1 || devs[0].ID != "d1" {
		t.Fatalf("unexpected deviations: %+v", devs)
	}
	if gotType != "text/xml" {
		t.Fatalf("expected text/xml, got %q", gotType)
	}
	if !strings.Contains(gotBody, `value="3"`) {
		t.Fatalf("expected county filter in body: %s", gotBody)
	}
}

func TestClient_breakerOpensAfterFailures(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	bs := BreakerSettings{FailureThreshold: 2, OpenTimeout: time.Minute, HalfOpenRequests: 1}
	c := NewClient(zerolog.New(io.Discard), srv.Client(), srv.URL, "key", bs, nil)

	for i := 0; i < 3; i++ {
		_, err := c.Fetch(context.Background(), Query{})
		if !errors.Is(err, ErrUnavailable) {
			t.Fatalf("attempt %d: expected ErrUnavailable, got %v", i, err)
		}
	}
	if calls != 2 {
		t.Fatalf("expected the open breaker to short-circuit, got %d upstream calls", calls)
	}
	if c.BreakerState() != "open" {
		t.Fatalf("expected open breaker, got %q", c.BreakerState())
	}
}
