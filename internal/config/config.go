// Package config loads service settings from defaults, an optional YAML
// file and the environment, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths are searched in order; the first existing file wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/trafikkarta/config.yaml",
}

// ConfigPathEnvVar overrides the config file location.
const ConfigPathEnvVar = "CONFIG_PATH"

type Config struct {
	Server       ServerConfig       `koanf:"server"`
	Logging      LoggingConfig      `koanf:"logging"`
	Database     DatabaseConfig     `koanf:"database"`
	Trafikverket TrafikverketConfig `koanf:"trafikverket"`
	Traffic      TrafficConfig      `koanf:"traffic"`
	Geolocation  GeolocationConfig  `koanf:"geolocation"`
	Sessions     SessionsConfig     `koanf:"sessions"`
	Poller       PollerConfig       `koanf:"poller"`
}

type ServerConfig struct {
	Addr              string        `koanf:"addr" validate:"required"`
	RequestTimeout    time.Duration `koanf:"request_timeout" validate:"gt=0"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitRequests int           `koanf:"rate_limit_requests" validate:"gte=0"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window" validate:"gt=0"`
}

type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error fatal panic disabled"`
	Format string `koanf:"format" validate:"oneof=json console"`
}

// DatabaseConfig is optional; without a URL statistics are disabled.
type DatabaseConfig struct {
	URL string `koanf:"url"`
}

type TrafikverketConfig struct {
	APIKey          string        `koanf:"api_key"`
	URL             string        `koanf:"url" validate:"required,url"`
	Timeout         time.Duration `koanf:"timeout" validate:"gt=0"`
	BreakerFailures uint32        `koanf:"breaker_failures" validate:"gte=1"`
	BreakerTimeout  time.Duration `koanf:"breaker_timeout" validate:"gt=0"`
}

// TrafficConfig points views at the aggregation endpoint they fetch from.
type TrafficConfig struct {
	InfoURL string        `koanf:"info_url" validate:"required,url"`
	Timeout time.Duration `koanf:"timeout" validate:"gt=0"`
}

type GeolocationConfig struct {
	Enabled      bool          `koanf:"enabled"`
	NominatimURL string        `koanf:"nominatim_url" validate:"required,url"`
	UserAgent    string        `koanf:"user_agent" validate:"required"`
	Language     string        `koanf:"language" validate:"required"`
	CacheDir     string        `koanf:"cache_dir"`
	CacheTTL     time.Duration `koanf:"cache_ttl" validate:"gt=0"`
	GeoIPPath    string        `koanf:"geoip_path"`
}

type SessionsConfig struct {
	IdleTimeout   time.Duration `koanf:"idle_timeout" validate:"gt=0"`
	SweepInterval time.Duration `koanf:"sweep_interval" validate:"gt=0"`
	InitialMode   string        `koanf:"initial_mode" validate:"oneof=banner expanded"`
}

type PollerConfig struct {
	Enabled  bool          `koanf:"enabled"`
	Interval time.Duration `koanf:"interval" validate:"gt=0"`
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:              ":8081",
			RequestTimeout:    15 * time.Second,
			ShutdownTimeout:   10 * time.Second,
			CORSOrigins:       []string{"*"},
			RateLimitRequests: 120,
			RateLimitWindow:   time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Trafikverket: TrafikverketConfig{
			URL:             "https://api.trafikinfo.trafikverket.se/v2/data.json",
			Timeout:         30 * time.Second,
			BreakerFailures: 5,
			BreakerTimeout:  30 * time.Second,
		},
		Traffic: TrafficConfig{
			InfoURL: "http://127.0.0.1:8081/api/traffic-info",
			Timeout: 20 * time.Second,
		},
		Geolocation: GeolocationConfig{
			Enabled:      true,
			NominatimURL: "https://nominatim.openstreetmap.org/reverse",
			UserAgent:    "trafikkarta/1.0",
			Language:     "sv",
			CacheTTL:     7 * 24 * time.Hour,
		},
		Sessions: SessionsConfig{
			IdleTimeout:   30 * time.Minute,
			SweepInterval: time.Minute,
			InitialMode:   "banner",
		},
		Poller: PollerConfig{
			Enabled:  false,
			Interval: 10 * time.Minute,
		},
	}
}

// Load builds the configuration: defaults, then the config file if one is
// found, then environment variables.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	if err := splitCSV(k, "server.cors_origins"); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

var validate = validator.New()

func (c *Config) Validate() error {
	return validate.Struct(c)
}

// StatsEnabled reports whether a database is configured.
func (c *Config) StatsEnabled() bool { return c.Database.URL != "" }

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// splitCSV turns a comma separated env value into a list.
func splitCSV(k *koanf.Koanf, path string) error {
	s, ok := k.Get(path).(string)
	if !ok {
		return nil
	}
	var parts []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if err := k.Set(path, parts); err != nil {
		return fmt.Errorf("set %s: %w", path, err)
	}
	return nil
}

var envMappings = map[string]string{
	"http_addr":              "server.addr",
	"http_request_timeout":   "server.request_timeout",
	"http_shutdown_timeout":  "server.shutdown_timeout",
	"cors_origins":           "server.cors_origins",
	"rate_limit_requests":    "server.rate_limit_requests",
	"rate_limit_window":      "server.rate_limit_window",
	"log_level":              "logging.level",
	"log_format":             "logging.format",
	"database_url":           "database.url",
	"trafikverket_api_key":   "trafikverket.api_key",
	"trafikverket_url":       "trafikverket.url",
	"trafikverket_timeout":   "trafikverket.timeout",
	"breaker_failures":       "trafikverket.breaker_failures",
	"breaker_timeout":        "trafikverket.breaker_timeout",
	"traffic_info_url":       "traffic.info_url",
	"traffic_info_timeout":   "traffic.timeout",
	"geolocation_enabled":    "geolocation.enabled",
	"nominatim_url":          "geolocation.nominatim_url",
	"nominatim_user_agent":   "geolocation.user_agent",
	"nominatim_language":     "geolocation.language",
	"geocode_cache_dir":      "geolocation.cache_dir",
	"geocode_cache_ttl":      "geolocation.cache_ttl",
	"geoip_db_path":          "geolocation.geoip_path",
	"session_idle_timeout":   "sessions.idle_timeout",
	"session_sweep_interval": "sessions.sweep_interval",
	"session_initial_mode":   "sessions.initial_mode",
	"poller_enabled":         "poller.enabled",
	"poller_interval":        "poller.interval",
}

// envTransformFunc maps known environment variables to config paths and
// drops everything else.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
