// Package view is the per-session composition root: it owns the selected
// region, the filters and the cached envelope, and drives fetching, rendering
// and the host-frame conversation for one embedded map.
package view

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog"

	"trafikkarta/core-go/internal/fetcher"
	"trafikkarta/core-go/internal/geolocate"
	"trafikkarta/core-go/internal/hostframe"
	"trafikkarta/core-go/internal/mapview"
	"trafikkarta/core-go/internal/metrics"
	"trafikkarta/core-go/internal/region"
	"trafikkarta/core-go/internal/render"
	"trafikkarta/core-go/internal/traffic"
)

const (
	StatusLoadingMap = "Laddar karta..."
	StatusFetching   = "Hämtar trafikinformation..."
	StatusFetchError = "Kunde inte hämta trafikinformation."
)

// GeolocateTimeout bounds locating plus reverse geocoding on mount.
const GeolocateTimeout = 10 * time.Second

var (
	ErrUnknownRegion = errors.New("view: unknown region")
	ErrUnknownAction = errors.New("view: unknown action")
)

// Fetcher loads the envelope for a region value.
type Fetcher interface {
	Fetch(ctx context.Context, regionValue string) fetcher.Result
}

// Action is a user action that needs the expanded frame.
type Action string

const (
	ActionLogin   Action = "login"
	ActionSignup  Action = "signup"
	ActionAccount Action = "account"
)

func ParseAction(s string) (Action, error) {
	switch Action(s) {
	case ActionLogin, ActionSignup, ActionAccount:
		return Action(s), nil
	default:
		return "", ErrUnknownAction
	}
}

// Deps are the collaborators shared by every view.
type Deps struct {
	Log         zerolog.Logger
	Regions     *region.Catalog
	Fetcher     Fetcher
	Locator     geolocate.Locator
	Geocoder    geolocate.ReverseGeocoder
	Metrics     *metrics.Metrics
	InitialMode hostframe.Mode
	MapOptions  []mapview.Option
	Now         func() time.Time
}

// Snapshot is a read-only copy of a view's state.
type Snapshot struct {
	ID              string          `json:"id"`
	Region          string          `json:"region"`
	RegionName      string          `json:"region_name"`
	Filters         render.Filters  `json:"filters"`
	Mode            hostframe.Mode  `json:"mode"`
	FilterPanelOpen bool            `json:"filter_panel_open"`
	Status          string          `json:"status"`
	Loading         bool            `json:"loading"`
	HasData         bool            `json:"has_data"`
	Summary         *render.Summary `json:"summary,omitempty"`
	Markers         int             `json:"markers"`
}

type View struct {
	id       string
	log      zerolog.Logger
	regions  *region.Catalog
	fetcher  Fetcher
	locator  geolocate.Locator
	geocoder geolocate.ReverseGeocoder
	ctrl     *mapview.Controller
	renderer *render.Renderer
	mode     *hostframe.Cell
	now      func() time.Time

	mu         sync.Mutex
	mounted    bool
	selected   string
	filters    render.Filters
	last       *traffic.Envelope
	lastRegion string
	panelOpen  bool
	status     string
	summary    *render.Summary
	seq        uint64
	loading    bool
	lastSeen   time.Time
	port       hostframe.Port
}

func New(id string, d Deps) *View {
	regions := d.Regions
	if regions == nil {
		regions = region.Sweden()
	}
	now := d.Now
	if now == nil {
		now = time.Now
	}
	log := d.Log.With().Str("session", id).Logger()
	mode := hostframe.NewCell(d.InitialMode)
	ctrl := mapview.NewController(log, regions, d.MapOptions...)

	// The frame size changes with the display mode.
	mode.Subscribe(func(m hostframe.Mode) {
		if mp := ctrl.Map(); mp != nil {
			mp.InvalidateSize()
		}
		log.Debug().Str("mode", string(m)).Msg("display mode changed")
	})

	return &View{
		id:       id,
		log:      log,
		regions:  regions,
		fetcher:  d.Fetcher,
		locator:  d.Locator,
		geocoder: d.Geocoder,
		ctrl:     ctrl,
		renderer: render.New(log, regions, ctrl, mode, d.Metrics),
		mode:     mode,
		now:      now,
		selected: region.AllRegionsValue,
		filters:  render.AllFilters(),
		status:   StatusLoadingMap,
		lastSeen: now(),
	}
}

func (v *View) ID() string { return v.id }

// Controller exposes the map controller for marker export and layout calls.
func (v *View) Controller() *mapview.Controller { return v.ctrl }

func (v *View) Mode() hostframe.Mode { return v.mode.Get() }

func (v *View) LastSeen() time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.lastSeen
}

func (v *View) touchLocked() { v.lastSeen = v.now() }

// Snapshot returns the current state.
func (v *View) Snapshot() Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.snapshotLocked()
}

func (v *View) snapshotLocked() Snapshot {
	s := Snapshot{
		ID:              v.id,
		Region:          v.selected,
		RegionName:      v.regions.DisplayName(v.selected),
		Filters:         v.filters,
		Mode:            v.mode.Get(),
		FilterPanelOpen: v.panelOpen,
		Status:          v.status,
		Loading:         v.loading,
		HasData:         v.last != nil,
		Markers:         len(v.ctrl.Markers()),
	}
	if v.summary != nil {
		sum := *v.summary
		s.Summary = &sum
	}
	return s
}

// Mount initialises the map and picks the starting region from the viewer's
// position. Any geolocation failure falls back to the current selection. A
// second call only returns the current state.
func (v *View) Mount(ctx context.Context) Snapshot {
	v.mu.Lock()
	if v.mounted {
		v.touchLocked()
		s := v.snapshotLocked()
		v.mu.Unlock()
		return s
	}
	v.mounted = true
	v.ctrl.Init()
	v.touchLocked()
	v.mu.Unlock()

	if value, ok := v.locateRegion(ctx); ok {
		v.mu.Lock()
		changed := v.selected != value
		hasData := v.last != nil
		if changed {
			v.selected = value
		}
		v.mu.Unlock()

		if changed || !hasData {
			return v.load(ctx, value)
		}
		return v.Snapshot()
	}

	v.mu.Lock()
	current := v.selected
	v.mu.Unlock()
	return v.load(ctx, current)
}

// locateRegion runs locate then reverse geocode then catalog match.
func (v *View) locateRegion(ctx context.Context) (string, bool) {
	if v.locator == nil || v.geocoder == nil {
		v.log.Debug().Msg("geolocation unavailable")
		return "", false
	}

	ctx, cancel := context.WithTimeout(ctx, GeolocateTimeout)
	defer cancel()

	pos, err := v.locator.Locate(ctx)
	if err != nil {
		v.log.Debug().Err(err).Msg("geolocation failed")
		return "", false
	}
	addr, err := v.geocoder.Reverse(ctx, pos)
	if err != nil {
		v.log.Debug().Err(err).Msg("reverse geocoding failed")
		return "", false
	}
	name := addr.RegionName()
	r, ok := v.regions.Match(name)
	if !ok {
		v.log.Warn().Str("place", name).Msg("reverse geocoded place matches no region")
		return "", false
	}
	return r.Value, true
}

// SelectRegion switches region and refetches. Selecting the current region
// does nothing.
func (v *View) SelectRegion(ctx context.Context, value string) (Snapshot, error) {
	if _, ok := v.regions.ByValue(value); !ok {
		return Snapshot{}, ErrUnknownRegion
	}

	v.mu.Lock()
	v.touchLocked()
	if v.selected == value {
		s := v.snapshotLocked()
		v.mu.Unlock()
		return s, nil
	}
	v.selected = value
	v.mu.Unlock()

	return v.load(ctx, value), nil
}

// SetFilters re-renders from the cached envelope. Without one it fetches the
// current region.
func (v *View) SetFilters(ctx context.Context, f render.Filters) Snapshot {
	v.mu.Lock()
	v.touchLocked()
	if v.filters == f {
		s := v.snapshotLocked()
		v.mu.Unlock()
		return s
	}
	v.filters = f
	if v.last != nil {
		sum := v.renderer.Render(v.last, v.filters, v.lastRegion)
		v.status = sum.Message
		v.summary = &sum
		s := v.snapshotLocked()
		v.mu.Unlock()
		return s
	}
	current := v.selected
	v.mu.Unlock()

	return v.load(ctx, current)
}

// Refresh refetches the current region.
func (v *View) Refresh(ctx context.Context) Snapshot {
	v.mu.Lock()
	v.touchLocked()
	current := v.selected
	v.mu.Unlock()
	return v.load(ctx, current)
}

// load fetches value and renders it unless a newer load has started since.
func (v *View) load(ctx context.Context, value string) Snapshot {
	v.mu.Lock()
	v.seq++
	seq := v.seq
	v.loading = true
	v.status = StatusFetching
	v.mu.Unlock()

	var res fetcher.Result
	if v.fetcher != nil {
		res = v.fetcher.Fetch(ctx, value)
	} else {
		res = fetcher.Result{Message: fetcher.MessageFailed}
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if seq != v.seq {
		v.log.Debug().
			Str("county", value).
			Uint64("seq", seq).
			Uint64("latest", v.seq).
			Msg("discarding superseded fetch")
		return v.snapshotLocked()
	}
	v.loading = false

	if res.Success && res.Data != nil {
		v.last = res.Data
		v.lastRegion = value
		sum := v.renderer.Render(res.Data, v.filters, value)
		v.status = sum.Message
		v.summary = &sum
		return v.snapshotLocked()
	}

	v.last = nil
	v.lastRegion = ""
	v.summary = nil
	v.status = res.Message
	if v.status == "" {
		v.status = StatusFetchError
	}
	v.ctrl.ClearMarkers()
	v.ctrl.CenterOnRegion(value)
	return v.snapshotLocked()
}

// ToggleFilterPanel flips the filter panel and returns the new visibility.
func (v *View) ToggleFilterPanel() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.touchLocked()
	v.panelOpen = !v.panelOpen
	return v.panelOpen
}

// CloseFilterPanel hides the panel, as a click outside it would.
func (v *View) CloseFilterPanel() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.touchLocked()
	v.panelOpen = false
}

// HandleHostMessage applies a message from the embedding page. A mode change
// forces the map to recompute its layout.
func (v *View) HandleHostMessage(msg hostframe.Message) bool {
	v.mu.Lock()
	v.touchLocked()
	v.mu.Unlock()

	if msg.Action != hostframe.ActionSetViewMode {
		v.log.Debug().Str("action", msg.Action).Msg("ignoring host message")
		return false
	}
	if _, err := hostframe.ParseMode(string(msg.Mode)); err != nil {
		v.log.Warn().Err(err).Msg("rejecting host message")
		return false
	}
	return v.mode.Set(msg.Mode)
}

// RequestExpansionIfNeeded asks the host to expand the frame when in banner
// mode. It reports whether a request was produced; the request is also sent
// on the attached port, if any.
func (v *View) RequestExpansionIfNeeded(ctx context.Context) (hostframe.Message, bool, error) {
	if v.mode.Get() != hostframe.ModeBanner {
		return hostframe.Message{}, false, nil
	}
	msg := hostframe.RequestExpand()

	v.mu.Lock()
	port := v.port
	v.mu.Unlock()

	if port != nil {
		if err := port.Send(ctx, msg); err != nil {
			return msg, true, err
		}
	}
	return msg, true, nil
}

// HandleAction runs a login, signup or account action.
func (v *View) HandleAction(ctx context.Context, a Action) (hostframe.Message, bool, error) {
	if _, err := ParseAction(string(a)); err != nil {
		return hostframe.Message{}, false, err
	}
	v.mu.Lock()
	v.touchLocked()
	v.mu.Unlock()
	return v.RequestExpansionIfNeeded(ctx)
}

// ServePort attaches port and applies its inbound messages until it closes or
// ctx is done.
func (v *View) ServePort(ctx context.Context, port hostframe.Port) error {
	v.mu.Lock()
	v.port = port
	v.mu.Unlock()

	defer func() {
		v.mu.Lock()
		if v.port == port {
			v.port = nil
		}
		v.mu.Unlock()
	}()

	for {
		msg, err := port.Receive(ctx)
		if err != nil {
			if errors.Is(err, hostframe.ErrPortClosed) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		v.HandleHostMessage(msg)
	}
}

// MarkerFeatures exports the current markers; zoom < 0 disables clustering.
func (v *View) MarkerFeatures(zoom int) *geojson.FeatureCollection {
	v.mu.Lock()
	v.touchLocked()
	v.mu.Unlock()
	return v.ctrl.FeatureCollection(zoom)
}

// Popup renders the popup for a marker in the current display mode.
func (v *View) Popup(markerID string) (string, bool) {
	v.mu.Lock()
	v.touchLocked()
	v.mu.Unlock()

	m, ok := v.ctrl.Marker(markerID)
	if !ok || m.Popup == nil {
		return "", false
	}
	return m.Popup(), true
}

// Close releases the attached port and stops any pending fit.
func (v *View) Close() error {
	v.mu.Lock()
	port := v.port
	v.port = nil
	v.mu.Unlock()

	v.ctrl.ClearMarkers()
	if port != nil {
		return port.Close()
	}
	return nil
}
