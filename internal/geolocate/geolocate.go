// Package geolocate finds the viewer's position and turns it into a
// region name.
package geolocate

import (
	"context"
	"errors"
	"net"

	"trafikkarta/core-go/internal/geometry"
)

// ErrNoAddress is returned when reverse geocoding produced no usable address.
var ErrNoAddress = errors.New("geolocate: no address for position")

// ErrNoPosition is returned by locators that cannot place the viewer.
var ErrNoPosition = errors.New("geolocate: position unavailable")

// Locator yields the viewer's current position.
type Locator interface {
	Locate(ctx context.Context) (geometry.LatLon, error)
}

// ReverseGeocoder resolves a position to an address.
type ReverseGeocoder interface {
	Reverse(ctx context.Context, pos geometry.LatLon) (Address, error)
}

// Address holds the administrative fields used for region matching.
type Address struct {
	State  string `json:"state,omitempty"`
	County string `json:"county,omitempty"`
	Region string `json:"region,omitempty"`
}

// RegionName is the first non-empty of state, county and region.
func (a Address) RegionName() string {
	switch {
	case a.State != "":
		return a.State
	case a.County != "":
		return a.County
	default:
		return a.Region
	}
}

// StaticLocator always reports the same position.
type StaticLocator struct {
	Position geometry.LatLon
}

func (s StaticLocator) Locate(context.Context) (geometry.LatLon, error) {
	if s.Position == (geometry.LatLon{}) || !s.Position.Valid() {
		return geometry.LatLon{}, ErrNoPosition
	}
	return s.Position, nil
}

type clientIPKey struct{}

// WithClientIP attaches the viewer's address for IP based locators.
func WithClientIP(ctx context.Context, ip net.IP) context.Context {
	if ip == nil {
		return ctx
	}
	return context.WithValue(ctx, clientIPKey{}, ip)
}

// ClientIP returns the address stored by WithClientIP.
func ClientIP(ctx context.Context) (net.IP, bool) {
	ip, ok := ctx.Value(clientIPKey{}).(net.IP)
	return ip, ok && ip != nil
}
