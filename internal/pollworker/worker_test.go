package pollworker

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"trafikkarta/core-go/internal/region"
	"trafikkarta/core-go/internal/sqlcgen"
	"trafikkarta/core-go/internal/traffic"
	"trafikkarta/core-go/internal/trafikverket"
)

type fakeQueries struct {
	upsertFn func(ctx context.Context, arg sqlcgen.UpsertDeviationSightingParams) error
	insertFn func(ctx context.Context, arg sqlcgen.InsertPollRunParams) (sqlcgen.PollRun, error)
	upserts  []sqlcgen.UpsertDeviationSightingParams
	pollRuns []sqlcgen.InsertPollRunParams
}

func (f *fakeQueries) UpsertDeviationSighting(ctx context.Context, arg sqlcgen.UpsertDeviationSightingParams) error {
	f.upserts = append(f.upserts, arg)
	if f.upsertFn == nil {
		return nil
	}
	return f.upsertFn(ctx, arg)
}

func (f *fakeQueries) InsertPollRun(ctx context.Context, arg sqlcgen.InsertPollRunParams) (sqlcgen.PollRun, error) {
	f.pollRuns = append(f.pollRuns, arg)
	if f.insertFn == nil {
		return sqlcgen.PollRun{ID: "run-1"}, nil
	}
	return f.insertFn(ctx, arg)
}

type sourceFunc func(ctx context.Context, q trafikverket.Query) (*traffic.Envelope, error)

func (f sourceFunc) FetchEnvelope(ctx context.Context, q trafikverket.Query) (*traffic.Envelope, error) {
	return f(ctx, q)
}

func twoCounties() *region.Catalog {
	all := region.Sweden().All()
	var picked []region.Region
	for _, r := range all {
		if r.Code == nil || *r.Code == 1 || *r.Code == 3 {
			picked = append(picked, r)
		}
	}
	return region.NewCatalog(picked)
}

func decode(t *testing.T, body string) *traffic.Envelope {
	t.Helper()
	env, err := traffic.Decode([]byte(body))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return env
}

func TestBackoffDuration(t *testing.T) {
	base := 10 * time.Minute
	cases := []struct {
		failures int
		want     time.Duration
	}{
		{0, base},
		{1, 20 * time.Minute},
		{2, 40 * time.Minute},
		{3, time.Hour},
		{50, time.Hour},
	}
	for _, tc := range cases {
		if got := backoffDuration(base, tc.failures); got != tc.want {
			t.Fatalf("backoffDuration(%v, %d) = %v, want %v", base, tc.failures, got, tc.want)
		}
	}
	if got := backoffDuration(0, 0); got != 10*time.Minute {
		t.Fatalf("expected default base, got %v", got)
	}
}

func TestRunOnce_recordsDeviationsPerCounty(t *testing.T) {
	stockholm := decode(t, `{"RESPONSE":{"RESULT":[{"Situation":[{"Deviation":[
		{"Id":"a1","MessageTypeValue":"Accident","Header":"Olycka"},
		{"Id":"r1","MessageTypeValue":"RoadResurfacing"},
		{"Id":"f1","MessageTypeValue":"FerryReplacement"},
		{"MessageTypeValue":"Accident"}
	]}]}]}}`)
	empty := decode(t, `{"RESPONSE":{"RESULT":[]}}`)

	var asked []int
	src := sourceFunc(func(ctx context.Context, q trafikverket.Query) (*traffic.Envelope, error) {
		asked = append(asked, *q.CountyNo)
		if *q.CountyNo == 1 {
			return stockholm, nil
		}
		return empty, nil
	})
	q := &fakeQueries{}
	w := New(zerolog.New(io.Discard), q, src, twoCounties(), Options{}, nil)

	rep, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if rep.CountiesPolled != 2 || rep.CountiesFailed != 0 || rep.DeviationsSeen != 2 {
		t.Fatalf("unexpected report: %+v", rep)
	}
	if len(asked) != 2 {
		t.Fatalf("expected two counties polled, got %v", asked)
	}
	if len(q.upserts) != 2 {
		t.Fatalf("expected two sightings, got %+v", q.upserts)
	}
	if q.upserts[0].DeviationID != "a1" || q.upserts[0].Category != "accident" || *q.upserts[0].Header != "Olycka" {
		t.Fatalf("unexpected first sighting: %+v", q.upserts[0])
	}
	if q.upserts[1].Category != "roadwork" || q.upserts[1].Header != nil || q.upserts[1].CountyNo != 1 {
		t.Fatalf("unexpected second sighting: %+v", q.upserts[1])
	}
	if len(q.pollRuns) != 1 || q.pollRuns[0].DeviationsSeen != 2 {
		t.Fatalf("expected poll run to be recorded, got %+v", q.pollRuns)
	}
}

func TestRunOnce_allCountiesFailing(t *testing.T) {
	src := sourceFunc(func(ctx context.Context, q trafikverket.Query) (*traffic.Envelope, error) {
		return nil, trafikverket.ErrUnavailable
	})
	q := &fakeQueries{}
	w := New(zerolog.New(io.Discard), q, src, twoCounties(), Options{}, nil)

	rep, err := w.RunOnce(context.Background())
	if !errors.Is(err, ErrAllCountiesFailed) {
		t.Fatalf("expected ErrAllCountiesFailed, got %v", err)
	}
	if rep.CountiesFailed != 2 {
		t.Fatalf("unexpected report: %+v", rep)
	}
	if len(q.pollRuns) != 1 || q.pollRuns[0].CountiesFailed != 2 {
		t.Fatalf("expected failed run to be recorded, got %+v", q.pollRuns)
	}
}

func TestRunOnce_storeErrorFailsCounty(t *testing.T) {
	env := decode(t, `{"RESPONSE":{"RESULT":[{"Situation":[{"Deviation":[{"Id":"a1","MessageTypeValue":"Accident"}]}]}]}}`)
	src := sourceFunc(func(ctx context.Context, q trafikverket.Query) (*traffic.Envelope, error) {
		return env, nil
	})
	q := &fakeQueries{upsertFn: func(ctx context.Context, arg sqlcgen.UpsertDeviationSightingParams) error {
		if arg.CountyNo == 3 {
			return errors.New("disk full")
		}
		return nil
	}}
	w := New(zerolog.New(io.Discard), q, src, twoCounties(), Options{}, nil)

	rep, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if rep.CountiesPolled != 1 || rep.CountiesFailed != 1 {
		t.Fatalf("unexpected report: %+v", rep)
	}
}

func TestRun_stopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := make(chan struct{}, 4)
	src := sourceFunc(func(c context.Context, q trafikverket.Query) (*traffic.Envelope, error) {
		select {
		case calls <- struct{}{}:
		default:
		}
		return &traffic.Envelope{}, nil
	})
	w := New(zerolog.New(io.Discard), &fakeQueries{}, src, twoCounties(), Options{Interval: time.Hour}, nil)

	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	select {
	case <-calls:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected an immediate first poll")
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not stop after cancel")
	}
}
