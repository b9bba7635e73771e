package mapview

import (
	"math"

	"github.com/paulmach/orb"

	"trafikkarta/core-go/internal/geometry"
)

const (
	tileSize    = 256.0
	maxLatitude = 85.0511287798
)

// project maps a WGS84 point to Web-Mercator pixels at zoom 0.
func project(p orb.Point) (x, y float64) {
	lat := math.Max(-maxLatitude, math.Min(maxLatitude, p.Lat()))
	sin := math.Sin(lat * math.Pi / 180)
	x = (p.Lon() + 180) / 360 * tileSize
	y = (0.5 - math.Log((1+sin)/(1-sin))/(4*math.Pi)) * tileSize
	return x, y
}

func unproject(x, y float64) geometry.LatLon {
	lon := x/tileSize*360 - 180
	n := math.Pi - 2*math.Pi*y/tileSize
	lat := 180 / math.Pi * math.Atan(math.Sinh(n))
	return geometry.LatLon{Lat: lat, Lon: lon}
}

// BoundsView computes the center and the largest integer zoom, capped at
// maxZoom, at which bound fits inside a width x height canvas with padding
// pixels kept free on every side.
func BoundsView(bound orb.Bound, width, height, padding, maxZoom int) (geometry.LatLon, int) {
	minX, maxY := project(bound.Min)
	maxX, minY := project(bound.Max)

	center := unproject((minX+maxX)/2, (minY+maxY)/2)

	availW := float64(width - 2*padding)
	availH := float64(height - 2*padding)
	spanX := maxX - minX
	spanY := maxY - minY

	if maxZoom > MaxZoom {
		maxZoom = MaxZoom
	}
	if spanX <= 0 && spanY <= 0 {
		return center, maxZoom
	}
	if availW <= 0 || availH <= 0 {
		return center, 0
	}

	scale := math.Inf(1)
	if spanX > 0 {
		scale = availW / spanX
	}
	if spanY > 0 {
		scale = math.Min(scale, availH/spanY)
	}

	zoom := int(math.Floor(math.Log2(scale)))
	if zoom > maxZoom {
		zoom = maxZoom
	}
	if zoom < 0 {
		zoom = 0
	}
	return center, zoom
}

func validBound(b orb.Bound) bool {
	for _, v := range []float64{b.Min[0], b.Min[1], b.Max[0], b.Max[1]} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return b.Min[0] <= b.Max[0] && b.Min[1] <= b.Max[1]
}
