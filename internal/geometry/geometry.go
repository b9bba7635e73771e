// Package geometry parses the WGS84 WKT fragments carried by traffic events.
package geometry

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/rs/zerolog"
)

// LatLon is a WGS84 position in (latitude, longitude) order.
type LatLon struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Valid reports whether both components are inside the WGS84 ranges.
func (p LatLon) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

// Point converts to an orb point, which is (lon, lat).
func (p LatLon) Point() orb.Point {
	return orb.Point{p.Lon, p.Lat}
}

// FromPoint converts an orb point back to a LatLon.
func FromPoint(pt orb.Point) LatLon {
	return LatLon{Lat: pt.Lat(), Lon: pt.Lon()}
}

var (
	pointRe      = regexp.MustCompile(`(?i)POINT\s*\(\s*(-?\d+\.?\d*)\s+(-?\d+\.?\d*)\s*\)`)
	lineStringRe = regexp.MustCompile(`(?i)LINESTRING\s*\((.*)\)`)
)

// Parser logs rejected geometries against the id of the event that carried them.
type Parser struct {
	log zerolog.Logger
}

func NewParser(log zerolog.Logger) *Parser {
	return &Parser{log: log}
}

// ParsePoint parses "POINT (lon lat)". The text is lon-first, the result is
// lat-first.
func (p *Parser) ParsePoint(wkt, id string) (LatLon, bool) {
	if strings.TrimSpace(wkt) == "" {
		return LatLon{}, false
	}
	m := pointRe.FindStringSubmatch(wkt)
	if m == nil {
		p.log.Warn().Str("id", id).Str("wkt", wkt).Msg("unrecognised point geometry")
		return LatLon{}, false
	}
	lon, errLon := strconv.ParseFloat(m[1], 64)
	lat, errLat := strconv.ParseFloat(m[2], 64)
	if errLon != nil || errLat != nil {
		p.log.Warn().Str("id", id).Str("wkt", wkt).Msg("non-numeric point coordinates")
		return LatLon{}, false
	}
	pos := LatLon{Lat: lat, Lon: lon}
	if !pos.Valid() {
		p.log.Warn().Str("id", id).Float64("lat", lat).Float64("lon", lon).Msg("point coordinates out of range")
		return LatLon{}, false
	}
	return pos, true
}

// ParseLineString parses "LINESTRING (lon lat, lon lat, ...)". A single bad
// pair rejects the whole line.
func (p *Parser) ParseLineString(wkt, id string) ([]LatLon, bool) {
	if strings.TrimSpace(wkt) == "" {
		return nil, false
	}
	m := lineStringRe.FindStringSubmatch(wkt)
	if m == nil {
		p.log.Warn().Str("id", id).Str("wkt", wkt).Msg("unrecognised linestring geometry")
		return nil, false
	}

	pairs := strings.Split(m[1], ",")
	out := make([]LatLon, 0, len(pairs))
	for i, pair := range pairs {
		fields := strings.Fields(pair)
		if len(fields) != 2 {
			p.log.Warn().Str("id", id).Int("index", i).Str("pair", pair).Msg("malformed linestring pair")
			return nil, false
		}
		lon, errLon := strconv.ParseFloat(fields[0], 64)
		lat, errLat := strconv.ParseFloat(fields[1], 64)
		if errLon != nil || errLat != nil {
			p.log.Warn().Str("id", id).Int("index", i).Str("pair", pair).Msg("non-numeric linestring pair")
			return nil, false
		}
		pos := LatLon{Lat: lat, Lon: lon}
		if !pos.Valid() {
			p.log.Warn().Str("id", id).Int("index", i).Float64("lat", lat).Float64("lon", lon).Msg("linestring pair out of range")
			return nil, false
		}
		out = append(out, pos)
	}
	if len(out) == 0 {
		return nil, false
	}
	return out, true
}

// LineString converts parsed coordinates to an orb line.
func LineString(coords []LatLon) orb.LineString {
	ls := make(orb.LineString, 0, len(coords))
	for _, c := range coords {
		ls = append(ls, c.Point())
	}
	return ls
}
