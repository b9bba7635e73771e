// Package pollworker periodically polls every county upstream and records
// which deviations were seen, feeding the usage statistics endpoint.
package pollworker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"trafikkarta/core-go/internal/metrics"
	"trafikkarta/core-go/internal/region"
	"trafikkarta/core-go/internal/sqlcgen"
	"trafikkarta/core-go/internal/traffic"
	"trafikkarta/core-go/internal/trafikverket"
)

// Queries is the minimal DB interface the poller needs.
//
// *sqlcgen.Queries satisfies this.
type Queries interface {
	UpsertDeviationSighting(ctx context.Context, arg sqlcgen.UpsertDeviationSightingParams) error
	InsertPollRun(ctx context.Context, arg sqlcgen.InsertPollRunParams) (sqlcgen.PollRun, error)
}

// Source fetches one county's deviations.
//
// *trafikverket.Client satisfies this.
type Source interface {
	FetchEnvelope(ctx context.Context, q trafikverket.Query) (*traffic.Envelope, error)
}

// ErrAllCountiesFailed is returned when no county could be polled.
var ErrAllCountiesFailed = errors.New("pollworker: every county failed")

const maxBackoff = time.Hour

type Worker struct {
	log           zerolog.Logger
	q             Queries
	src           Source
	regions       *region.Catalog
	interval      time.Duration
	countyTimeout time.Duration
	messageTypes  []string
	metrics       *metrics.Metrics
	now           func() time.Time
}

type Options struct {
	Interval      time.Duration
	CountyTimeout time.Duration
	MessageTypes  []string
}

// Report summarises one pass over all counties.
type Report struct {
	CountiesPolled int
	CountiesFailed int
	DeviationsSeen int
}

func New(log zerolog.Logger, q Queries, src Source, regions *region.Catalog, opts Options, m *metrics.Metrics) *Worker {
	interval := opts.Interval
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	countyTimeout := opts.CountyTimeout
	if countyTimeout <= 0 {
		countyTimeout = 30 * time.Second
	}
	types := opts.MessageTypes
	if len(types) == 0 {
		types = []string{
			traffic.TypeAccident,
			traffic.TypeRoadwork,
			traffic.TypeMaintenanceWorks,
			traffic.TypeConstructionWork,
			traffic.TypeRoadResurfacing,
		}
	}
	if regions == nil {
		regions = region.Sweden()
	}

	return &Worker{
		log:           log,
		q:             q,
		src:           src,
		regions:       regions,
		interval:      interval,
		countyTimeout: countyTimeout,
		messageTypes:  types,
		metrics:       m,
		now:           time.Now,
	}
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.q == nil || w.src == nil {
		return
	}

	timer := time.NewTimer(0)
	defer timer.Stop()

	var consecutiveFailures int
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		if _, err := w.RunOnce(ctx); err != nil {
			consecutiveFailures++
			w.log.Error().Err(err).Int("failures", consecutiveFailures).Msg("poll run failed")
		} else {
			consecutiveFailures = 0
		}

		timer.Reset(backoffDuration(w.interval, consecutiveFailures))
	}
}

func backoffDuration(base time.Duration, failures int) time.Duration {
	if base <= 0 {
		base = 10 * time.Minute
	}
	if failures <= 0 {
		return base
	}

	// Exponential-ish backoff: base * 2^failures, capped.
	if failures > 6 {
		failures = 6
	}
	d := base * time.Duration(1<<failures)
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

// RunOnce polls every county once and records what it saw.
func (w *Worker) RunOnce(ctx context.Context) (Report, error) {
	w.metrics.IncPollRun()
	start := w.now()
	defer func() {
		w.metrics.ObservePollRunDuration(w.now().Sub(start))
	}()

	var rep Report
	for _, r := range w.regions.All() {
		if r.Code == nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			return rep, err
		}

		seen, err := w.pollCounty(ctx, *r.Code)
		if err != nil {
			rep.CountiesFailed++
			w.log.Warn().Err(err).Int("county", *r.Code).Msg("county poll failed")
			continue
		}
		rep.CountiesPolled++
		rep.DeviationsSeen += seen
	}

	if _, err := w.q.InsertPollRun(ctx, sqlcgen.InsertPollRunParams{
		StartedAt:      start,
		FinishedAt:     w.now(),
		CountiesPolled: int32(rep.CountiesPolled),
		CountiesFailed: int32(rep.CountiesFailed),
		DeviationsSeen: int32(rep.DeviationsSeen),
	}); err != nil {
		w.log.Warn().Err(err).Msg("failed to record poll run")
	}

	w.log.Info().
		Int("counties_polled", rep.CountiesPolled).
		Int("counties_failed", rep.CountiesFailed).
		Int("deviations_seen", rep.DeviationsSeen).
		Msg("poll run complete")

	if rep.CountiesPolled == 0 && rep.CountiesFailed > 0 {
		return rep, ErrAllCountiesFailed
	}
	return rep, nil
}

func (w *Worker) pollCounty(ctx context.Context, countyNo int) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, w.countyTimeout)
	defer cancel()

	env, err := w.src.FetchEnvelope(ctx, trafikverket.Query{CountyNo: &countyNo, MessageTypes: w.messageTypes})
	if err != nil {
		return 0, err
	}

	seenAt := w.now()
	seen := 0
	for _, d := range env.Deviations() {
		if d.ID == "" {
			continue
		}
		cat := traffic.Classify(d.MessageTypeValue)
		if cat == traffic.CategoryOther {
			continue
		}
		var header *string
		if d.Header != "" {
			h := d.Header
			header = &h
		}
		if err := w.q.UpsertDeviationSighting(ctx, sqlcgen.UpsertDeviationSightingParams{
			DeviationID:      d.ID,
			CountyNo:         int32(countyNo),
			MessageTypeValue: d.MessageTypeValue,
			Category:         cat.String(),
			Header:           header,
			SeenAt:           seenAt,
		}); err != nil {
			return seen, fmt.Errorf("record deviation %s: %w", d.ID, err)
		}
		seen++
	}
	return seen, nil
}
