package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"trafikkarta/core-go/internal/sqlcgen"
	"trafikkarta/core-go/internal/trafikverket"
)

// Aggregation endpoint bodies are flat {"error": "..."} objects; the embedded
// map only checks for the key.
const (
	msgServerConfig   = "Server configuration error"
	msgUpstreamFailed = "Failed to fetch traffic data from Trafikverket API."
)

func (h *Handler) handleTrafficInfo(w http.ResponseWriter, r *http.Request) {
	if h.upstream == nil || !h.upstream.Configured() {
		h.log.Error().Msg("trafikverket api key is not configured")
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": msgServerConfig})
		return
	}

	q := trafikverket.Query{
		MessageTypes: trafikverket.ParseMessageTypes(r.URL.Query().Get("messageTypeValue")),
	}
	if county := strings.TrimSpace(r.URL.Query().Get("county")); county != "" {
		if n, ok := h.regions.CodeForName(county); ok {
			q.CountyNo = &n
		} else {
			h.log.Warn().Str("county", county).Msg("unknown county, querying whole country")
		}
	}

	body, err := h.upstream.Fetch(r.Context(), q)
	if err != nil {
		h.log.Error().Err(err).Msg("trafikverket fetch failed")
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": msgUpstreamFailed})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (h *Handler) handleListRegions(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{"regions": h.regions.All()})
}

type deviationStat struct {
	CountyNo   int32     `json:"county_no"`
	County     string    `json:"county"`
	Category   string    `json:"category"`
	Deviations int64     `json:"deviations"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

type pollRunView struct {
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
	CountiesPolled int32     `json:"counties_polled"`
	CountiesFailed int32     `json:"counties_failed"`
	DeviationsSeen int32     `json:"deviations_seen"`
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	if h.stats == nil {
		h.writeError(w, http.StatusServiceUnavailable, "db_unavailable", "statistics require a database", nil)
		return
	}

	since := 24 * time.Hour
	if raw := strings.TrimSpace(r.URL.Query().Get("since")); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			h.writeError(w, http.StatusBadRequest, "validation_failed", "invalid since", map[string]any{"since": raw})
			return
		}
		since = d
	}

	params := sqlcgen.ListDeviationStatsParams{Since: time.Now().Add(-since)}
	if raw := strings.TrimSpace(r.URL.Query().Get("county")); raw != "" {
		n, ok := h.parseCounty(raw)
		if !ok {
			h.writeError(w, http.StatusBadRequest, "validation_failed", "unknown county", map[string]any{"county": raw})
			return
		}
		c := int32(n)
		params.CountyNo = &c
	}

	rows, err := h.stats.ListDeviationStats(r.Context(), params)
	if err != nil {
		h.log.Error().Err(err).Msg("list deviation stats failed")
		h.writeError(w, http.StatusInternalServerError, "internal_error", "failed to load statistics", nil)
		return
	}

	out := make([]deviationStat, 0, len(rows))
	for _, row := range rows {
		out = append(out, deviationStat{
			CountyNo:   row.CountyNo,
			County:     h.regions.NameForCode(int(row.CountyNo)),
			Category:   row.Category,
			Deviations: row.Deviations,
			LastSeenAt: row.LastSeenAt,
		})
	}

	resp := map[string]any{
		"since": params.Since.UTC(),
		"stats": out,
	}

	run, err := h.stats.GetLatestPollRun(r.Context())
	switch {
	case err == nil:
		resp["last_poll"] = pollRunView{
			StartedAt:      run.StartedAt,
			FinishedAt:     run.FinishedAt,
			CountiesPolled: run.CountiesPolled,
			CountiesFailed: run.CountiesFailed,
			DeviationsSeen: run.DeviationsSeen,
		}
	case errors.Is(err, pgx.ErrNoRows):
		resp["last_poll"] = nil
	default:
		h.log.Error().Err(err).Msg("get latest poll run failed")
		h.writeError(w, http.StatusInternalServerError, "internal_error", "failed to load statistics", nil)
		return
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// parseCounty accepts a county number or a county name.
func (h *Handler) parseCounty(raw string) (int, bool) {
	if n, err := strconv.Atoi(raw); err == nil {
		_, ok := h.regions.ByCode(n)
		return n, ok
	}
	return h.regions.CodeForName(raw)
}
