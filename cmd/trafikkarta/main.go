package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"trafikkarta/core-go/internal/config"
	"trafikkarta/core-go/internal/db"
	"trafikkarta/core-go/internal/fetcher"
	"trafikkarta/core-go/internal/geolocate"
	"trafikkarta/core-go/internal/hostframe"
	"trafikkarta/core-go/internal/httpapi"
	"trafikkarta/core-go/internal/metrics"
	"trafikkarta/core-go/internal/pollworker"
	"trafikkarta/core-go/internal/region"
	"trafikkarta/core-go/internal/trafikverket"
	"trafikkarta/core-go/internal/view"
)

func main() {
	// A missing .env is normal outside local development.
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		bootLog := httpapi.NewLogger("info", "json")
		bootLog.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger := httpapi.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	if envErr != nil && !errors.Is(envErr, os.ErrNotExist) {
		logger.Warn().Err(envErr).Msg("failed to read .env file")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	regions := region.Sweden()

	var pool *db.Pool
	if cfg.StatsEnabled() {
		p, err := db.Open(ctx, cfg.Database.URL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer p.Close()
		if err := p.Migrate(ctx); err != nil {
			logger.Fatal().Err(err).Msg("failed to apply schema")
		}
		pool = p
	}

	upstream := trafikverket.NewClient(
		logger,
		&http.Client{Timeout: cfg.Trafikverket.Timeout},
		cfg.Trafikverket.URL,
		cfg.Trafikverket.APIKey,
		trafikverket.BreakerSettings{
			FailureThreshold: cfg.Trafikverket.BreakerFailures,
			OpenTimeout:      cfg.Trafikverket.BreakerTimeout,
			HalfOpenRequests: 1,
		},
		m,
	)
	if !upstream.Configured() {
		logger.Warn().Msg("TRAFIKVERKET_API_KEY is not set; /api/traffic-info will fail")
	}

	deps := view.Deps{
		Log:         logger,
		Regions:     regions,
		Fetcher:     fetcher.New(logger, &http.Client{Timeout: cfg.Traffic.Timeout}, cfg.Traffic.InfoURL),
		Metrics:     m,
		InitialMode: hostframe.Mode(cfg.Sessions.InitialMode),
	}

	if cfg.Geolocation.Enabled {
		cache, locator := setupGeolocation(logger, cfg, m, &deps)
		if cache != nil {
			defer cache.Close()
		}
		if locator != nil {
			defer locator.Close()
		}
	}

	sessions := view.NewRegistry(deps, cfg.Sessions.IdleTimeout)
	defer sessions.CloseAll()
	go func() {
		if err := sessions.Run(ctx, cfg.Sessions.SweepInterval); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("session sweeper stopped")
		}
	}()

	opts := httpapi.Options{
		Regions:           regions,
		Sessions:          sessions,
		Upstream:          upstream,
		Metrics:           m,
		CORSOrigins:       cfg.Server.CORSOrigins,
		RateLimitRequests: cfg.Server.RateLimitRequests,
		RateLimitWindow:   cfg.Server.RateLimitWindow,
		RequestTimeout:    cfg.Server.RequestTimeout,
	}

	if pool != nil {
		opts.Stats = pool.Queries()
		opts.DB = pool

		if cfg.Poller.Enabled {
			worker := pollworker.New(logger, pool.Queries(), upstream, regions, pollworker.Options{Interval: cfg.Poller.Interval}, m)
			go worker.Run(ctx)
		}
	} else if cfg.Poller.Enabled {
		logger.Warn().Msg("poller enabled without DATABASE_URL; not starting")
	}

	h := httpapi.NewHandler(logger, opts)
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           h.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.Server.Addr).Msg("trafikkarta listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server error")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown incomplete")
	}
	logger.Info().Msg("shutdown complete")
}

// setupGeolocation wires reverse geocoding behind the badger cache and, when
// a GeoIP database is configured, the IP locator. It fills deps in place and
// returns what the caller must close.
func setupGeolocation(logger zerolog.Logger, cfg *config.Config, m *metrics.Metrics, deps *view.Deps) (*badger.DB, *geolocate.IPLocator) {
	g := cfg.Geolocation

	var geocoder geolocate.ReverseGeocoder = geolocate.NewNominatim(
		logger,
		&http.Client{Timeout: view.GeolocateTimeout},
		g.NominatimURL,
		geolocate.WithUserAgent(g.UserAgent),
		geolocate.WithLanguage(g.Language),
	)

	cache, err := geolocate.OpenCache(g.CacheDir)
	if err != nil {
		logger.Warn().Err(err).Str("dir", g.CacheDir).Msg("geocode cache unavailable; geocoding uncached")
		cache = nil
	} else {
		geocoder = geolocate.NewCachedGeocoder(logger, cache, geocoder, g.CacheTTL, m)
	}
	deps.Geocoder = geocoder

	if g.GeoIPPath == "" {
		logger.Info().Msg("no GeoIP database configured; sessions start on the default region")
		return cache, nil
	}
	locator, err := geolocate.OpenIPLocator(g.GeoIPPath)
	if err != nil {
		logger.Warn().Err(err).Str("path", g.GeoIPPath).Msg("failed to open GeoIP database")
		return cache, nil
	}
	deps.Locator = locator
	return cache, locator
}
