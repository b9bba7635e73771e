// Package mapview owns the server-side map: its viewport, the marker layer
// and the fit/center operations applied to them.
package mapview

import (
	"sync"

	"trafikkarta/core-go/internal/geometry"
)

const (
	// MaxZoom is the highest zoom the tile layer serves.
	MaxZoom = 19

	defaultWidth  = 800
	defaultHeight = 600
)

// Map is the raw map handle: a viewport over a pixel canvas.
type Map struct {
	mu            sync.RWMutex
	center        geometry.LatLon
	zoom          int
	width, height int
	invalidations int
}

func newMap(center geometry.LatLon, zoom int) *Map {
	return &Map{center: center, zoom: zoom, width: defaultWidth, height: defaultHeight}
}

// SetView moves the viewport.
func (m *Map) SetView(center geometry.LatLon, zoom int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.center = center
	m.zoom = clampZoom(zoom)
}

// View returns the current center and zoom.
func (m *Map) View() (geometry.LatLon, int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.center, m.zoom
}

// SetSize records the canvas size in pixels. Non-positive values are ignored.
func (m *Map) SetSize(width, height int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if width > 0 {
		m.width = width
	}
	if height > 0 {
		m.height = height
	}
}

func (m *Map) Size() (width, height int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.width, m.height
}

// InvalidateSize marks the layout as changed after the container was resized.
func (m *Map) InvalidateSize() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invalidations++
}

// Invalidations counts InvalidateSize calls.
func (m *Map) Invalidations() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.invalidations
}

func clampZoom(z int) int {
	if z < 0 {
		return 0
	}
	if z > MaxZoom {
		return MaxZoom
	}
	return z
}
