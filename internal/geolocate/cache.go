package geolocate

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"trafikkarta/core-go/internal/geometry"
	"trafikkarta/core-go/internal/metrics"
)

// DefaultCacheTTL bounds how long a reverse lookup is reused.
const DefaultCacheTTL = 7 * 24 * time.Hour

// cachePrecision rounds coordinates to roughly one kilometre.
const cachePrecision = 100.0

// CachedGeocoder memoises reverse lookups in a badger store.
type CachedGeocoder struct {
	log     zerolog.Logger
	db      *badger.DB
	next    ReverseGeocoder
	ttl     time.Duration
	metrics *metrics.Metrics
}

// OpenCache opens (or creates) a badger store at dir. An empty dir keeps the
// store in memory.
func OpenCache(dir string) (*badger.DB, error) {
	var opts badger.Options
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(dir)
	}
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open geocode cache: %w", err)
	}
	return db, nil
}

func NewCachedGeocoder(log zerolog.Logger, db *badger.DB, next ReverseGeocoder, ttl time.Duration, m *metrics.Metrics) *CachedGeocoder {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedGeocoder{log: log, db: db, next: next, ttl: ttl, metrics: m}
}

func cacheKey(pos geometry.LatLon) []byte {
	lat := math.Round(pos.Lat*cachePrecision) / cachePrecision
	lon := math.Round(pos.Lon*cachePrecision) / cachePrecision
	return []byte(fmt.Sprintf("geocode:%.2f:%.2f", lat, lon))
}

func (c *CachedGeocoder) Reverse(ctx context.Context, pos geometry.LatLon) (Address, error) {
	key := cacheKey(pos)

	var addr Address
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &addr)
		})
	})
	switch {
	case err == nil:
		c.metrics.IncGeocodeCache("hit")
		return addr, nil
	case errors.Is(err, badger.ErrKeyNotFound):
		c.metrics.IncGeocodeCache("miss")
	default:
		c.metrics.IncGeocodeCache("error")
		c.log.Warn().Err(err).Msg("geocode cache read failed")
	}

	addr, err = c.next.Reverse(ctx, pos)
	if err != nil {
		return Address{}, err
	}

	val, err := json.Marshal(addr)
	if err != nil {
		return addr, nil
	}
	if err := c.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry(key, val).WithTTL(c.ttl))
	}); err != nil {
		c.log.Warn().Err(err).Msg("geocode cache write failed")
	}
	return addr, nil
}
