package geolocate

import (
	"context"
	"fmt"
	"sync"

	"github.com/oschwald/maxminddb-golang"

	"trafikkarta/core-go/internal/geometry"
)

// IPLocator places the viewer using a MaxMind City database and the client
// address attached to the context by WithClientIP.
type IPLocator struct {
	mu     sync.RWMutex
	reader *maxminddb.Reader
}

type cityRecord struct {
	Location struct {
		Latitude       float64 `maxminddb:"latitude"`
		Longitude      float64 `maxminddb:"longitude"`
		AccuracyRadius uint16  `maxminddb:"accuracy_radius"`
	} `maxminddb:"location"`
}

func OpenIPLocator(path string) (*IPLocator, error) {
	r, err := maxminddb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open geoip database: %w", err)
	}
	return &IPLocator{reader: r}, nil
}

func NewIPLocatorFromBytes(b []byte) (*IPLocator, error) {
	r, err := maxminddb.FromBytes(b)
	if err != nil {
		return nil, fmt.Errorf("load geoip database: %w", err)
	}
	return &IPLocator{reader: r}, nil
}

func (l *IPLocator) Locate(ctx context.Context) (geometry.LatLon, error) {
	ip, ok := ClientIP(ctx)
	if !ok {
		return geometry.LatLon{}, ErrNoPosition
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.reader == nil {
		return geometry.LatLon{}, ErrNoPosition
	}

	var rec cityRecord
	if err := l.reader.Lookup(ip, &rec); err != nil {
		return geometry.LatLon{}, fmt.Errorf("geoip lookup: %w", err)
	}
	pos := geometry.LatLon{Lat: rec.Location.Latitude, Lon: rec.Location.Longitude}
	if pos == (geometry.LatLon{}) {
		return geometry.LatLon{}, ErrNoPosition
	}
	return pos, nil
}

func (l *IPLocator) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.reader == nil {
		return nil
	}
	err := l.reader.Close()
	l.reader = nil
	return err
}
