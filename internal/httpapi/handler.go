package httpapi

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"trafikkarta/core-go/internal/metrics"
	"trafikkarta/core-go/internal/region"
	"trafikkarta/core-go/internal/sqlcgen"
	"trafikkarta/core-go/internal/trafikverket"
	"trafikkarta/core-go/internal/view"
)

// Upstream serves the aggregation endpoint.
//
// *trafikverket.Client satisfies this.
type Upstream interface {
	Configured() bool
	Fetch(ctx context.Context, q trafikverket.Query) ([]byte, error)
}

// StatsQueries is the read side of the sighting store.
//
// *sqlcgen.Queries satisfies this.
type StatsQueries interface {
	ListDeviationStats(ctx context.Context, arg sqlcgen.ListDeviationStatsParams) ([]sqlcgen.DeviationStat, error)
	GetLatestPollRun(ctx context.Context) (sqlcgen.PollRun, error)
}

// Pinger reports database readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Options struct {
	Regions           *region.Catalog
	Sessions          *view.Registry
	Upstream          Upstream
	Stats             StatsQueries
	DB                Pinger
	Metrics           *metrics.Metrics
	CORSOrigins       []string
	RateLimitRequests int
	RateLimitWindow   time.Duration
	RequestTimeout    time.Duration
}

type Handler struct {
	log      zerolog.Logger
	regions  *region.Catalog
	sessions *view.Registry
	upstream Upstream
	stats    StatsQueries
	db       Pinger
	metrics  *metrics.Metrics
	opts     Options
	validate *validator.Validate
	upgrader websocket.Upgrader
}

func NewHandler(log zerolog.Logger, opts Options) *Handler {
	regions := opts.Regions
	if regions == nil {
		regions = region.Sweden()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 15 * time.Second
	}
	if opts.RateLimitWindow <= 0 {
		opts.RateLimitWindow = time.Minute
	}

	h := &Handler{
		log:      log,
		regions:  regions,
		sessions: opts.Sessions,
		upstream: opts.Upstream,
		stats:    opts.Stats,
		db:       opts.DB,
		metrics:  opts.Metrics,
		opts:     opts,
		validate: validator.New(),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(requestIDHeader)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(h.accessLog)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: h.allowedOrigins(),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	// Health
	r.Get("/healthz", h.handleHealthz)
	r.Get("/readyz", h.handleReadyZ)
	r.Get("/metrics", h.metrics.Handler().ServeHTTP)

	// API
	r.Route("/api", func(r chi.Router) {
		// The in-process traffic fetcher calls this route over loopback, so it
		// stays outside the per-client limiter.
		r.With(middleware.Timeout(h.opts.RequestTimeout)).Get("/traffic-info", h.handleTrafficInfo)

		r.Route("/v1", func(r chi.Router) {
			if h.opts.RateLimitRequests > 0 {
				r.Use(httprate.Limit(h.opts.RateLimitRequests, h.opts.RateLimitWindow, httprate.WithKeyFuncs(httprate.KeyByIP)))
			}
			timeout := middleware.Timeout(h.opts.RequestTimeout)

			r.With(timeout).Get("/regions", h.handleListRegions)
			r.With(timeout).Get("/stats", h.handleStats)

			r.Route("/sessions", func(r chi.Router) {
				r.With(timeout).Post("/", h.handleCreateSession)
				r.Route("/{id}", func(r chi.Router) {
					// WebSocket connections outlive any request timeout.
					r.Get("/ws", h.handleSessionSocket)

					r.Group(func(r chi.Router) {
						r.Use(timeout)
						r.Get("/", h.handleGetSession)
						r.Delete("/", h.handleDeleteSession)
						r.Put("/region", h.handleSelectRegion)
						r.Put("/filters", h.handleSetFilters)
						r.Post("/refresh", h.handleRefresh)
						r.Post("/filter-panel/toggle", h.handleToggleFilterPanel)
						r.Get("/markers", h.handleListMarkers)
						r.Get("/markers/{markerId}/popup", h.handleMarkerPopup)
						r.Post("/host-messages", h.handleHostMessage)
						r.Post("/actions/{action}", h.handleAction)
					})
				})
			})
		})
	})

	return r
}

func (h *Handler) allowedOrigins() []string {
	if len(h.opts.CORSOrigins) == 0 {
		return []string{"*"}
	}
	return h.opts.CORSOrigins
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range h.allowedOrigins() {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

func (h *Handler) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				route = p
			}
		}
		h.metrics.ObserveHTTPRequest(r.Method, route, ww.Status(), time.Since(start))

		h.log.Info().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Int64("duration_ms", time.Since(start).Milliseconds()).
			Msg("http_request")
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, msg string, details map[string]any) {
	resp := map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": msg,
		},
	}
	if details != nil {
		resp["error"].(map[string]any)["details"] = details
	}
	h.writeJSON(w, status, resp)
}

func decodeJSONStrict(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return errors.New("unexpected extra data after JSON body")
		}
		return err
	}
	return nil
}

// decodeAndValidate decodes a strict JSON body and runs struct validation,
// writing the 400 response itself on failure.
func (h *Handler) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := decodeJSONStrict(r, dst); err != nil {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "invalid json body", map[string]any{"error": err.Error()})
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "invalid request", map[string]any{"error": err.Error()})
		return false
	}
	return true
}

// requestIDHeader echoes the request id assigned by middleware.RequestID.
func requestIDHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := middleware.GetReqID(r.Context()); id != "" {
			w.Header().Set(middleware.RequestIDHeader, id)
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP is the caller address after RealIP has run.
func clientIP(r *http.Request) net.IP {
	host := r.RemoteAddr
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return net.ParseIP(host)
}

func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) handleReadyZ(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if h.upstream == nil || !h.upstream.Configured() {
		h.writeError(w, http.StatusServiceUnavailable, "upstream_unconfigured", "trafikverket api key not configured", nil)
		return
	}

	if h.db != nil {
		if err := h.db.Ping(ctx); err != nil {
			h.writeError(w, http.StatusServiceUnavailable, "db_unavailable", "database not ready", map[string]any{"error": err.Error()})
			return
		}
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"ready": true})
}
