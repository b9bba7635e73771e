package mapview

import (
	"sync"
	"time"

	"github.com/paulmach/orb"
	"github.com/rs/zerolog"

	"trafikkarta/core-go/internal/geometry"
	"trafikkarta/core-go/internal/region"
)

// Fit parameters applied after a render.
const (
	FitDelay   = 150 * time.Millisecond
	FitPadding = 40
	FitMaxZoom = 15
)

// Kind is what a marker represents.
type Kind string

const (
	KindAccident Kind = "accident"
	KindRoadwork Kind = "roadwork"
	KindCamera   Kind = "camera"
)

// Icon describes how a marker is drawn.
type Icon struct {
	URL         string `json:"url"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	AnchorX     int    `json:"anchor_x"`
	AnchorY     int    `json:"anchor_y"`
	PopupAnchor [2]int `json:"popup_anchor"`
}

// Marker is one entry of the marker layer. Popup is evaluated when the popup
// is opened, never when the marker is created.
type Marker struct {
	ID        string
	Kind      Kind
	Position  geometry.LatLon
	Icon      Icon
	Imprecise bool
	Popup     func() string
}

// Timer is the handle returned by a Scheduler.
type Timer interface {
	Stop() bool
}

// Scheduler runs f once after d.
type Scheduler func(d time.Duration, f func()) Timer

func realScheduler(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Controller owns the map handle and its marker layer.
type Controller struct {
	log      zerolog.Logger
	regions  *region.Catalog
	schedule Scheduler

	mu         sync.Mutex
	m          *Map
	markers    []Marker
	pendingFit Timer
}

type Option func(*Controller)

// WithScheduler replaces time.AfterFunc for deferred fits.
func WithScheduler(s Scheduler) Option {
	return func(c *Controller) { c.schedule = s }
}

func NewController(log zerolog.Logger, regions *region.Catalog, opts ...Option) *Controller {
	c := &Controller{log: log, regions: regions, schedule: realScheduler}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Init creates the map at the whole-country view. It returns false when the
// map already exists.
func (c *Controller) Init() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.m != nil {
		c.log.Debug().Msg("map already initialised")
		return false
	}
	c.m = newMap(region.DefaultCenter, region.DefaultZoom)
	c.log.Debug().Msg("map initialised")
	return true
}

// Map returns the raw handle, or nil before Init.
func (c *Controller) Map() *Map {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.m
}

// CenterOnRegion moves the view to the region's centroid and zoom, falling
// back to the all-regions entry and then the hardcoded country view.
func (c *Controller) CenterOnRegion(value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.centerOnRegionLocked(value)
}

func (c *Controller) centerOnRegionLocked(value string) {
	if c.m == nil {
		return
	}
	if r, ok := c.regions.ByValue(value); ok {
		c.m.SetView(r.Centroid, r.Zoom)
		return
	}
	if all, ok := c.regions.AllRegions(); ok {
		c.m.SetView(all.Centroid, all.Zoom)
		return
	}
	c.m.SetView(region.DefaultCenter, region.DefaultZoom)
}

// SetDefaultView shows the whole country.
func (c *Controller) SetDefaultView() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.m != nil {
		c.m.SetView(region.DefaultCenter, region.DefaultZoom)
	}
}

// ClearMarkers empties the layer and cancels a pending fit.
func (c *Controller) ClearMarkers() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.markers = nil
	if c.pendingFit != nil {
		c.pendingFit.Stop()
		c.pendingFit = nil
	}
}

func (c *Controller) AddMarker(m Marker) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.markers = append(c.markers, m)
}

// Markers returns a copy of the layer in insertion order.
func (c *Controller) Markers() []Marker {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Marker(nil), c.markers...)
}

// Marker finds a marker by id.
func (c *Controller) Marker(id string) (Marker, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range c.markers {
		if m.ID == id {
			return m, true
		}
	}
	return Marker{}, false
}

// Bounds is the bounding box of every marker. ok is false for an empty layer
// or a degenerate box.
func (c *Controller) Bounds() (orb.Bound, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.boundsLocked()
}

func (c *Controller) boundsLocked() (orb.Bound, bool) {
	if len(c.markers) == 0 {
		return orb.Bound{}, false
	}
	b := c.markers[0].Position.Point().Bound()
	for _, m := range c.markers[1:] {
		b = b.Extend(m.Position.Point())
	}
	return b, validBound(b)
}

// FitBounds sets the view to contain bound with the given padding, never
// zooming past maxZoom.
func (c *Controller) FitBounds(bound orb.Bound, padding, maxZoom int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fitBoundsLocked(bound, padding, maxZoom)
}

func (c *Controller) fitBoundsLocked(bound orb.Bound, padding, maxZoom int) {
	if c.m == nil {
		return
	}
	w, h := c.m.Size()
	center, zoom := BoundsView(bound, w, h, padding, maxZoom)
	c.m.SetView(center, zoom)
}

// ScheduleFit fits the view to the markers after FitDelay. When the markers
// have no usable bounds it centers on selected, or the country view when
// nothing is selected.
func (c *Controller) ScheduleFit(selected string) {
	c.mu.Lock()
	prev := c.pendingFit
	c.pendingFit = nil
	c.mu.Unlock()
	if prev != nil {
		prev.Stop()
	}

	t := c.schedule(FitDelay, func() { c.runFit(selected) })

	c.mu.Lock()
	c.pendingFit = t
	c.mu.Unlock()
}

func (c *Controller) runFit(selected string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pendingFit = nil
	if c.m == nil || len(c.markers) == 0 {
		return
	}
	if b, ok := c.boundsLocked(); ok {
		c.fitBoundsLocked(b, FitPadding, FitMaxZoom)
		return
	}
	if selected != "" {
		c.centerOnRegionLocked(selected)
		return
	}
	c.m.SetView(region.DefaultCenter, region.DefaultZoom)
}
