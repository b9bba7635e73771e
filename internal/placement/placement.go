// Package placement assigns an approximate position to events that carry no
// usable geometry, spreading them deterministically around their county
// centroid.
package placement

import (
	"math"
	"unicode/utf16"

	"trafikkarta/core-go/internal/geometry"
	"trafikkarta/core-go/internal/region"
)

// Spread is the maximum offset, in degrees, from the county centroid.
const Spread = 0.025

// Hash is the 31-multiplier string hash over UTF-16 code units with 32-bit
// wraparound, returned as a non-negative value.
func Hash(s string) int64 {
	var h int32
	for _, c := range utf16.Encode([]rune(s)) {
		h = h*31 + int32(c)
	}
	v := int64(h)
	if v < 0 {
		v = -v
	}
	return v
}

// Offset maps a hash to a (dLat, dLon) pair in [-Spread, Spread).
func Offset(hash int64) (dLat, dLon float64) {
	dLon = (float64(hash%1000)/1000 - 0.5) * 2 * Spread
	dLat = (math.Mod(float64(hash)/1000, 1000)/1000 - 0.5) * 2 * Spread
	return dLat, dLon
}

// Descriptor picks the text that seeds the hash: location descriptor, then
// header, then id.
func Descriptor(locationDescriptor, header, id string) string {
	if locationDescriptor != "" {
		return locationDescriptor
	}
	if header != "" {
		return header
	}
	return id
}

// Resolver looks county centroids up in a catalog.
type Resolver struct {
	regions *region.Catalog
}

func NewResolver(regions *region.Catalog) *Resolver {
	return &Resolver{regions: regions}
}

// Resolve returns the approximate position for descriptor inside the county
// with the given number. ok is false when the county is unknown.
func (r *Resolver) Resolve(descriptor string, countyNo int) (geometry.LatLon, bool) {
	reg, ok := r.regions.ByCode(countyNo)
	if !ok {
		return geometry.LatLon{}, false
	}
	dLat, dLon := Offset(Hash(descriptor))
	return geometry.LatLon{
		Lat: reg.Centroid.Lat + dLat,
		Lon: reg.Centroid.Lon + dLon,
	}, true
}

// ResolveFirst resolves against the first county of a list.
func (r *Resolver) ResolveFirst(descriptor string, countyNos []int) (geometry.LatLon, bool) {
	if len(countyNos) == 0 {
		return geometry.LatLon{}, false
	}
	return r.Resolve(descriptor, countyNos[0])
}
