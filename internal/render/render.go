// Package render turns a traffic envelope into map markers and a status
// message for one view.
package render

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"trafikkarta/core-go/internal/geometry"
	"trafikkarta/core-go/internal/hostframe"
	"trafikkarta/core-go/internal/mapview"
	"trafikkarta/core-go/internal/metrics"
	"trafikkarta/core-go/internal/placement"
	"trafikkarta/core-go/internal/region"
	"trafikkarta/core-go/internal/traffic"
)

const iconBaseURL = "https://api.trafikinfo.trafikverket.se/v2/icons/"

var (
	defaultDeviationIcon = mapview.Icon{
		URL:         "https://unpkg.com/leaflet@1.9.4/dist/images/marker-icon.png",
		Width:       25,
		Height:      41,
		AnchorX:     12,
		AnchorY:     41,
		PopupAnchor: [2]int{1, -34},
	}
	defaultCameraIcon = mapview.Icon{
		URL:         "https://cdnjs.cloudflare.com/ajax/libs/leaflet/1.7.1/images/marker-icon-2x-red.png",
		Width:       25,
		Height:      41,
		AnchorX:     12,
		AnchorY:     41,
		PopupAnchor: [2]int{1, -34},
	}
)

// ProviderIcon is the Trafikverket-hosted icon for an IconId.
func ProviderIcon(iconID string) mapview.Icon {
	return mapview.Icon{
		URL:         iconBaseURL + iconID + "?type=svg",
		Width:       30,
		Height:      30,
		AnchorX:     15,
		AnchorY:     30,
		PopupAnchor: [2]int{0, -30},
	}
}

// Filters selects which categories are drawn.
type Filters struct {
	Accidents bool `json:"accidents"`
	Roadworks bool `json:"roadworks"`
	Cameras   bool `json:"cameras"`
}

// AllFilters shows everything.
func AllFilters() Filters {
	return Filters{Accidents: true, Roadworks: true, Cameras: true}
}

// Counts is a per-category tally. Other is only used in totals: those
// deviations are counted but never drawn.
type Counts struct {
	Accidents int `json:"accidents"`
	Roadworks int `json:"roadworks"`
	Cameras   int `json:"cameras"`
	Other     int `json:"other,omitempty"`
}

// Shown splits drawn deviations by precision.
type Shown struct {
	PreciseAccidents   int `json:"precise_accidents"`
	ImpreciseAccidents int `json:"imprecise_accidents"`
	PreciseRoadworks   int `json:"precise_roadworks"`
	ImpreciseRoadworks int `json:"imprecise_roadworks"`
	Cameras            int `json:"cameras"`
}

func (s Shown) Accidents() int { return s.PreciseAccidents + s.ImpreciseAccidents }
func (s Shown) Roadworks() int { return s.PreciseRoadworks + s.ImpreciseRoadworks }

// Summary is the outcome of one render pass.
type Summary struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	MarkersAdded int    `json:"markers_added"`
	Totals       Counts `json:"totals"`
	Shown        Shown  `json:"shown"`
	Hidden       Counts `json:"hidden"`
	Dropped      int    `json:"dropped"`
}

// Layer is the part of the map controller a render pass drives.
type Layer interface {
	ClearMarkers()
	AddMarker(m mapview.Marker)
	ScheduleFit(selected string)
	CenterOnRegion(value string)
	SetDefaultView()
}

// Renderer is bound to one view: its layer and its display mode cell.
type Renderer struct {
	log      zerolog.Logger
	parser   *geometry.Parser
	resolver *placement.Resolver
	regions  *region.Catalog
	mode     *hostframe.Cell
	layer    Layer
	loc      *time.Location
	metrics  *metrics.Metrics
	newID    func() string
}

func New(log zerolog.Logger, regions *region.Catalog, layer Layer, mode *hostframe.Cell, m *metrics.Metrics) *Renderer {
	loc, err := time.LoadLocation("Europe/Stockholm")
	if err != nil {
		loc = time.Local
	}
	return &Renderer{
		log:      log,
		parser:   geometry.NewParser(log),
		resolver: placement.NewResolver(regions),
		regions:  regions,
		mode:     mode,
		layer:    layer,
		loc:      loc,
		metrics:  m,
		newID:    func() string { return uuid.NewString()[:8] },
	}
}

// Render rebuilds the layer from env. selected is the region value the view
// is showing and drives the status message and the fallback viewport.
func (r *Renderer) Render(env *traffic.Envelope, f Filters, selected string) Summary {
	if env == nil || r.layer == nil {
		r.log.Warn().Msg("render prerequisites not met")
		return Summary{Success: false, Message: MessageNotReady}
	}
	r.layer.ClearMarkers()

	var s Summary
	seen := make(map[string]struct{})

	for _, d := range env.Deviations() {
		id := d.ID
		if id == "" {
			id = "UnknownDev_" + r.newID()
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		cat := traffic.Classify(d.MessageTypeValue)
		switch cat {
		case traffic.CategoryAccident:
			s.Totals.Accidents++
			if !f.Accidents {
				s.Hidden.Accidents++
				continue
			}
		case traffic.CategoryRoadwork:
			s.Totals.Roadworks++
			if !f.Roadworks {
				s.Hidden.Roadworks++
				continue
			}
		default:
			s.Totals.Other++
			continue
		}

		pos, imprecise, ok := r.position(d, id)
		if !ok {
			s.Dropped++
			r.metrics.IncRenderDropped()
			continue
		}

		icon := defaultDeviationIcon
		if d.IconID != "" {
			icon = ProviderIcon(d.IconID)
		}

		kind := mapview.KindAccident
		if cat == traffic.CategoryRoadwork {
			kind = mapview.KindRoadwork
		}

		counties := r.regions.JoinNames(d.CountyNo)
		r.layer.AddMarker(mapview.Marker{
			ID:        id,
			Kind:      kind,
			Position:  pos,
			Icon:      icon,
			Imprecise: imprecise,
			Popup: func() string {
				return DeviationPopup(d, counties, imprecise, r.mode.Get(), r.loc)
			},
		})
		s.MarkersAdded++
		r.metrics.IncRenderedMarker(string(kind), imprecise)

		switch {
		case cat == traffic.CategoryAccident && imprecise:
			s.Shown.ImpreciseAccidents++
		case cat == traffic.CategoryAccident:
			s.Shown.PreciseAccidents++
		case imprecise:
			s.Shown.ImpreciseRoadworks++
		default:
			s.Shown.PreciseRoadworks++
		}
	}

	cameras := env.Cameras()
	s.Totals.Cameras = len(cameras)
	if !f.Cameras {
		s.Hidden.Cameras = len(cameras)
	} else {
		seenCams := make(map[string]struct{})
		for _, c := range cameras {
			id := c.ID
			if id == "" {
				id = "UnknownCam_" + r.newID()
			}
			if _, dup := seenCams[id]; dup {
				continue
			}
			seenCams[id] = struct{}{}
			pos, ok := r.parser.ParsePoint(c.PointWKT(), id)
			if !ok {
				s.Dropped++
				continue
			}

			icon := defaultCameraIcon
			if c.IconID != "" {
				icon = ProviderIcon(c.IconID)
			}

			counties := r.regions.JoinNames(c.CountyNo)
			r.layer.AddMarker(mapview.Marker{
				ID:       id,
				Kind:     mapview.KindCamera,
				Position: pos,
				Icon:     icon,
				Popup: func() string {
					return CameraPopup(c, counties, r.mode.Get())
				},
			})
			s.MarkersAdded++
			s.Shown.Cameras++
			r.metrics.IncRenderedMarker(string(mapview.KindCamera), false)
		}
	}

	place := r.regions.DisplayName(selected)
	s.Success = s.MarkersAdded > 0
	if s.Success {
		s.Message = shownMessage(s, place)
		r.layer.ScheduleFit(selected)
	} else {
		if selected != "" {
			r.layer.CenterOnRegion(selected)
		} else {
			r.layer.SetDefaultView()
		}
		s.Message = emptyMessage(s, place)
	}

	r.log.Debug().
		Str("county", selected).
		Int("markers", s.MarkersAdded).
		Int("dropped", s.Dropped).
		Msg("render complete")
	return s
}

// position resolves point, then first line vertex, then the county estimate.
func (r *Renderer) position(d traffic.Deviation, id string) (geometry.LatLon, bool, bool) {
	if wkt := d.PointWKT(); wkt != "" {
		if p, ok := r.parser.ParsePoint(wkt, id); ok {
			return p, false, true
		}
	}
	if wkt := d.LineWKT(); wkt != "" {
		if line, ok := r.parser.ParseLineString(wkt, id); ok {
			return line[0], false, true
		}
	}
	descriptor := placement.Descriptor(d.LocationDescriptor, d.Header, id)
	p, ok := r.resolver.ResolveFirst(descriptor, d.CountyNo)
	if !ok {
		return geometry.LatLon{}, false, false
	}
	return p, true, true
}
