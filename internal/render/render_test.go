package render

import (
	"io"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"trafikkarta/core-go/internal/hostframe"
	"trafikkarta/core-go/internal/mapview"
	"trafikkarta/core-go/internal/region"
	"trafikkarta/core-go/internal/traffic"
)

type fakeLayer struct {
	cleared  int
	markers  []mapview.Marker
	fits     []string
	centered []string
	defaults int
}

func (f *fakeLayer) ClearMarkers() {
	f.cleared++
	f.markers = nil
}

func (f *fakeLayer) AddMarker(m mapview.Marker) {
	f.markers = append(f.markers, m)
}

func (f *fakeLayer) ScheduleFit(selected string) {
	f.fits = append(f.fits, selected)
}

func (f *fakeLayer) CenterOnRegion(value string) {
	f.centered = append(f.centered, value)
}

func (f *fakeLayer) SetDefaultView() {
	f.defaults++
}

func (f *fakeLayer) byID(id string) (mapview.Marker, bool) {
	for _, m := range f.markers {
		if m.ID == id {
			return m, true
		}
	}
	return mapview.Marker{}, false
}

func newTestRenderer(layer Layer, mode *hostframe.Cell) *Renderer {
	return New(zerolog.New(io.Discard), region.Sweden(), layer, mode, nil)
}

const mixedEnvelope = `{"RESPONSE":{"RESULT":[
	{"Situation":[{"Deviation":[
		{"Id":"acc-1","MessageTypeValue":"Accident","Header":"Olycka","CountyNo":[1],
		 "Geometry":{"Point":{"WGS84":"POINT (18.07 59.33)"}}},
		{"Id":"acc-1","MessageTypeValue":"Accident","Header":"Olycka igen","CountyNo":[1],
		 "Geometry":{"Point":{"WGS84":"POINT (18.00 59.00)"}}},
		{"Id":"rw-line","MessageTypeValue":"Roadwork","CountyNo":[1],
		 "Geometry":{"Point":{"WGS84":"POINT (999 999)"},"Line":{"WGS84":"LINESTRING (18.1 59.4, 18.2 59.5)"}}},
		{"Id":"rw-county","MessageTypeValue":"MaintenanceWorks","LocationDescriptor":"Väg 73","CountyNo":[1]},
		{"Id":"rw-lost","MessageTypeValue":"ConstructionWork"},
		{"Id":"ferry","MessageTypeValue":"FerryReplacement","CountyNo":[1],
		 "Geometry":{"Point":{"WGS84":"POINT (18 59)"}}}
	]}]},
	{"TrafficSafetyCamera":[
		{"Id":"cam-1","Name":"E4","SpeedLimit":80,"Bearing":0,"CountyNo":1,
		 "Geometry":{"WGS84":"POINT (17.9 59.5)"}},
		{"Id":"cam-2","Name":"No geometry","CountyNo":1}
	]}
]}}`

func decodeEnvelope(t *testing.T, body string) *traffic.Envelope {
	t.Helper()
	env, err := traffic.Decode([]byte(body))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return env
}

func TestRender_mixedEnvelope(t *testing.T) {
	layer := &fakeLayer{}
	r := newTestRenderer(layer, hostframe.NewCell(hostframe.ModeExpanded))

	s := r.Render(decodeEnvelope(t, mixedEnvelope), AllFilters(), "Stockholm")

	if !s.Success || s.MarkersAdded != 4 {
		t.Fatalf("expected 4 markers, got %+v", s)
	}
	if s.Totals.Accidents != 1 || s.Totals.Roadworks != 3 || s.Totals.Cameras != 2 || s.Totals.Other != 1 {
		t.Fatalf("unexpected totals %+v", s.Totals)
	}
	if s.Shown.PreciseAccidents != 1 || s.Shown.PreciseRoadworks != 1 || s.Shown.ImpreciseRoadworks != 1 || s.Shown.Cameras != 1 {
		t.Fatalf("unexpected shown counts %+v", s.Shown)
	}
	if s.Dropped != 2 {
		t.Fatalf("expected 2 dropped events, got %d", s.Dropped)
	}
	want := "Visar 1 olycka och 2 vägarbeten och 1 fartkamera för Stockholms län."
	if s.Message != want {
		t.Fatalf("unexpected message\n got %q\nwant %q", s.Message, want)
	}
	if layer.cleared != 1 || len(layer.fits) != 1 || layer.fits[0] != "Stockholm" {
		t.Fatalf("expected one clear and one scheduled fit, got %+v", layer)
	}

	acc, _ := layer.byID("acc-1")
	if acc.Position.Lat != 59.33 || acc.Imprecise {
		t.Fatalf("expected first acc-1 to win with exact position, got %+v", acc)
	}
	line, _ := layer.byID("rw-line")
	if line.Position.Lat != 59.4 || line.Position.Lon != 18.1 {
		t.Fatalf("expected first line vertex, got %+v", line.Position)
	}
	approx, _ := layer.byID("rw-county")
	if !approx.Imprecise || approx.Kind != mapview.KindRoadwork {
		t.Fatalf("expected imprecise roadwork, got %+v", approx)
	}
	cam, _ := layer.byID("cam-1")
	if cam.Kind != mapview.KindCamera || !strings.Contains(cam.Icon.URL, "marker-icon-2x-red.png") {
		t.Fatalf("expected default camera icon, got %+v", cam)
	}
	if html := acc.Popup(); !strings.Contains(html, "<strong>Län:</strong> Stockholms<br>") {
		t.Fatalf("expected short county name in popup, got %s", html)
	}
	if acc.Icon.URL != defaultDeviationIcon.URL {
		t.Fatalf("expected default deviation icon, got %q", acc.Icon.URL)
	}
}

func TestRender_rerenderStartsFresh(t *testing.T) {
	layer := &fakeLayer{}
	r := newTestRenderer(layer, hostframe.NewCell(hostframe.ModeExpanded))
	env := decodeEnvelope(t, mixedEnvelope)

	first := r.Render(env, AllFilters(), "Stockholm")
	second := r.Render(env, AllFilters(), "Stockholm")
	if first.MarkersAdded != second.MarkersAdded || len(layer.markers) != second.MarkersAdded {
		t.Fatalf("expected identical passes, got %d then %d (layer %d)", first.MarkersAdded, second.MarkersAdded, len(layer.markers))
	}
}

func TestRender_filtersHideEverything(t *testing.T) {
	layer := &fakeLayer{}
	r := newTestRenderer(layer, hostframe.NewCell(hostframe.ModeExpanded))

	s := r.Render(decodeEnvelope(t, mixedEnvelope), Filters{}, "Stockholm")

	if s.Success || s.MarkersAdded != 0 {
		t.Fatalf("expected nothing rendered, got %+v", s)
	}
	// the duplicate acc-1 is counted once
	want := "1 olyckor dolda. 3 vägarbeten dolda. 2 fartkameror dolda."
	if s.Message != want {
		t.Fatalf("unexpected message\n got %q\nwant %q", s.Message, want)
	}
	if len(layer.centered) != 1 || layer.centered[0] != "Stockholm" {
		t.Fatalf("expected view centred on Stockholm, got %v", layer.centered)
	}
	if len(layer.fits) != 0 {
		t.Fatalf("expected no fit when nothing rendered")
	}
}

func TestRender_totalsIndependentOfFilters(t *testing.T) {
	r := newTestRenderer(&fakeLayer{}, hostframe.NewCell(hostframe.ModeExpanded))
	env := decodeEnvelope(t, mixedEnvelope)

	all := r.Render(env, AllFilters(), "Stockholm")
	none := r.Render(env, Filters{}, "Stockholm")
	if all.Totals != none.Totals {
		t.Fatalf("totals changed with filters: %+v vs %+v", all.Totals, none.Totals)
	}
	if none.Hidden.Accidents != 1 {
		t.Fatalf("expected the duplicated accident to be hidden once, got %d", none.Hidden.Accidents)
	}
}

func TestRender_countsOtherCategoryWithoutDrawing(t *testing.T) {
	layer := &fakeLayer{}
	r := newTestRenderer(layer, hostframe.NewCell(hostframe.ModeExpanded))

	body := `{"RESPONSE":{"RESULT":[{"Situation":{"Deviation":[
		{"Id":"f1","MessageTypeValue":"FerryReplacement","CountyNo":[1],"Geometry":{"Point":{"WGS84":"POINT (18 59)"}}},
		{"Id":"f2","MessageTypeValue":"RoadClosed","CountyNo":[1],"Geometry":{"Point":{"WGS84":"POINT (18.1 59.1)"}}},
		{"Id":"f2","MessageTypeValue":"RoadClosed","CountyNo":[1]}
	]}}]}}`
	s := r.Render(decodeEnvelope(t, body), AllFilters(), "Stockholm")

	if s.Totals.Other != 2 {
		t.Fatalf("expected 2 other deviations, got %+v", s.Totals)
	}
	if s.MarkersAdded != 0 || len(layer.markers) != 0 || s.Success {
		t.Fatalf("expected nothing drawn, got %+v", s)
	}
	want := "Inga aktiva händelser eller valda filter matchar i Stockholms län just nu."
	if s.Message != want {
		t.Fatalf("unexpected message\n got %q\nwant %q", s.Message, want)
	}
}

func TestRender_accidentsFilteredOut(t *testing.T) {
	layer := &fakeLayer{}
	r := newTestRenderer(layer, hostframe.NewCell(hostframe.ModeExpanded))

	body := `{"RESPONSE":{"RESULT":[{"Situation":{"Deviation":[
		{"Id":"a1","MessageTypeValue":"Accident","CountyNo":[1],"Geometry":{"Point":{"WGS84":"POINT (18.01 59.31)"}}},
		{"Id":"a2","MessageTypeValue":"Accident","CountyNo":[1],"Geometry":{"Point":{"WGS84":"POINT (18.02 59.32)"}}},
		{"Id":"a3","MessageTypeValue":"Accident","CountyNo":[1],"Geometry":{"Point":{"WGS84":"POINT (18.03 59.33)"}}},
		{"Id":"r1","MessageTypeValue":"Roadwork","CountyNo":[1],"Geometry":{"Point":{"WGS84":"POINT (18.04 59.34)"}}},
		{"Id":"r2","MessageTypeValue":"RoadResurfacing","CountyNo":[1],"Geometry":{"Point":{"WGS84":"POINT (18.05 59.35)"}}}
	]}}]}}`
	s := r.Render(decodeEnvelope(t, body), Filters{Accidents: false, Roadworks: true, Cameras: true}, "Stockholm")

	if s.MarkersAdded != 2 || len(layer.markers) != 2 {
		t.Fatalf("expected 2 markers, got %d (layer %d)", s.MarkersAdded, len(layer.markers))
	}
	for _, m := range layer.markers {
		if m.Kind != mapview.KindRoadwork {
			t.Fatalf("expected only roadworks, got %+v", m)
		}
	}
	if s.Hidden.Accidents != 3 || s.Totals.Accidents != 3 || s.Totals.Roadworks != 2 {
		t.Fatalf("unexpected counts totals=%+v hidden=%+v", s.Totals, s.Hidden)
	}
	want := "Visar 2 vägarbeten för Stockholms län."
	if s.Message != want {
		t.Fatalf("unexpected message\n got %q\nwant %q", s.Message, want)
	}
}

func TestRender_onlyCamerasHidden(t *testing.T) {
	layer := &fakeLayer{}
	r := newTestRenderer(layer, hostframe.NewCell(hostframe.ModeExpanded))

	body := `{"RESPONSE":{"RESULT":[{"TrafficSafetyCamera":{"Id":"c","Geometry":{"WGS84":"POINT (18 59)"}}}]}}`
	s := r.Render(decodeEnvelope(t, body), Filters{Accidents: true, Roadworks: true}, "")
	if s.Message != "1 fartkameror dolda." {
		t.Fatalf("unexpected message %q", s.Message)
	}
	if layer.defaults != 1 {
		t.Fatalf("expected default view for all regions")
	}
}

func TestRender_emptyEnvelope(t *testing.T) {
	layer := &fakeLayer{}
	r := newTestRenderer(layer, hostframe.NewCell(hostframe.ModeExpanded))

	s := r.Render(decodeEnvelope(t, `{"RESPONSE":{"RESULT":[]}}`), AllFilters(), "")
	want := "Inga aktiva händelser eller valda filter matchar i hela Sverige just nu."
	if s.Success || s.Message != want {
		t.Fatalf("unexpected summary %+v", s)
	}
	if layer.defaults != 1 {
		t.Fatalf("expected default view")
	}
}

func TestRender_nilEnvelope(t *testing.T) {
	layer := &fakeLayer{}
	r := newTestRenderer(layer, hostframe.NewCell(hostframe.ModeExpanded))

	s := r.Render(nil, AllFilters(), "")
	if s.Success || s.Message != MessageNotReady {
		t.Fatalf("unexpected summary %+v", s)
	}
	if layer.cleared != 0 {
		t.Fatalf("expected layer untouched")
	}
}

func TestRender_missingIDsGetPlaceholders(t *testing.T) {
	layer := &fakeLayer{}
	r := newTestRenderer(layer, hostframe.NewCell(hostframe.ModeExpanded))

	body := `{"RESPONSE":{"RESULT":[{"Situation":{"Deviation":[
		{"MessageTypeValue":"Accident","Geometry":{"Point":{"WGS84":"POINT (18 59)"}}},
		{"MessageTypeValue":"Accident","Geometry":{"Point":{"WGS84":"POINT (18 59)"}}}
	]}}]}}`
	s := r.Render(decodeEnvelope(t, body), AllFilters(), "")
	if s.MarkersAdded != 2 {
		t.Fatalf("expected both id-less events rendered, got %d", s.MarkersAdded)
	}
	if !strings.HasPrefix(layer.markers[0].ID, "UnknownDev_") || layer.markers[0].ID == layer.markers[1].ID {
		t.Fatalf("unexpected placeholder ids %q %q", layer.markers[0].ID, layer.markers[1].ID)
	}
}

func TestRender_providerIcon(t *testing.T) {
	layer := &fakeLayer{}
	r := newTestRenderer(layer, hostframe.NewCell(hostframe.ModeExpanded))

	body := `{"RESPONSE":{"RESULT":[{"Situation":{"Deviation":{"Id":"x","IconId":"roadAccident","MessageTypeValue":"Accident","Geometry":{"Point":{"WGS84":"POINT (18 59)"}}}}}]}}`
	r.Render(decodeEnvelope(t, body), AllFilters(), "")
	want := "https://api.trafikinfo.trafikverket.se/v2/icons/roadAccident?type=svg"
	if got := layer.markers[0].Icon.URL; got != want {
		t.Fatalf("unexpected icon %q", got)
	}
}

func TestRender_popupFollowsModeAtOpenTime(t *testing.T) {
	layer := &fakeLayer{}
	mode := hostframe.NewCell(hostframe.ModeExpanded)
	r := newTestRenderer(layer, mode)

	r.Render(decodeEnvelope(t, mixedEnvelope), AllFilters(), "Stockholm")
	acc, _ := layer.byID("acc-1")

	mode.Set(hostframe.ModeBanner)
	html := acc.Popup()
	if !strings.Contains(html, "Utöka Kartan") {
		t.Fatalf("expected banner hint after mode switch, got %s", html)
	}

	mode.Set(hostframe.ModeExpanded)
	if html := acc.Popup(); strings.Contains(html, "Utöka Kartan") {
		t.Fatalf("expected no banner hint in expanded mode, got %s", html)
	}
}

func TestDeviationPopup(t *testing.T) {
	loc, _ := time.LoadLocation("Europe/Stockholm")
	d := traffic.Deviation{
		ID:                      "x",
		MessageTypeValue:        "Roadwork",
		Message:                 "Körfält avstängt",
		SeverityText:            "Liten påverkan",
		RoadNumber:              "E4",
		RoadName:                "Essingeleden",
		LocationDescriptor:      "Vid Fredhäll",
		AffectedDirection:       &traffic.Direction{Description: "Norrgående"},
		StartTime:               "2024-01-15T08:00:00Z",
		ValidUntilFurtherNotice: true,
		WebLink:                 "https://www.trafikverket.se/x",
		VersionTime:             "2024-05-01T10:00:00.000+02:00",
	}

	html := DeviationPopup(d, "Stockholms", true, hostframe.ModeExpanded, loc)
	for _, want := range []string{
		"<h3>Händelse</h3>",
		"<strong>Typ:</strong> Roadwork<br>",
		"Position är ungefärlig (länsnivå)",
		"<strong>Info:</strong> Körfält avstängt",
		"<strong>Allvarlighetsgrad:</strong> Liten påverkan",
		"<strong>Väg:</strong> E4 (Essingeleden)",
		"<strong>Plats:</strong> Vid Fredhäll",
		"<strong>Riktning:</strong> Norrgående",
		"<strong>Start:</strong> 2024-01-15 09:00:00",
		"<strong>Gäller:</strong> Tills vidare",
		`href="https://www.trafikverket.se/x"`,
		"<strong>Län:</strong> Stockholms<br>",
		"<small>Uppdaterad: 2024-05-01 10:00:00</small>",
	} {
		if !strings.Contains(html, want) {
			t.Fatalf("expected %q in popup:\n%s", want, html)
		}
	}

	d.EndTime = "2024-01-20T16:00:00+01:00"
	html = DeviationPopup(d, "Stockholms", false, hostframe.ModeExpanded, loc)
	if !strings.Contains(html, "<strong>Slut (beräknad):</strong> 2024-01-20 16:00:00") || strings.Contains(html, "Tills vidare") {
		t.Fatalf("expected end time to replace until-further-notice:\n%s", html)
	}

	banner := DeviationPopup(d, "Stockholms", false, hostframe.ModeBanner, loc)
	for _, absent := range []string{"Info:", "Väg:", "Uppdaterad", "Mer information"} {
		if strings.Contains(banner, absent) {
			t.Fatalf("did not expect %q in banner popup:\n%s", absent, banner)
		}
	}
	if !strings.Contains(banner, "Län:") {
		t.Fatalf("expected counties in banner popup")
	}
}

func TestDeviationPopup_escapesContent(t *testing.T) {
	d := traffic.Deviation{Header: "<script>alert(1)</script>"}
	html := DeviationPopup(d, "", false, hostframe.ModeExpanded, time.UTC)
	if strings.Contains(html, "<script>") {
		t.Fatalf("expected header to be escaped:\n%s", html)
	}
}

func TestCameraPopup(t *testing.T) {
	bearing := 0.0
	speed := 70
	c := traffic.SafetyCamera{Name: "Väg 40", Bearing: &bearing, SpeedLimit: &speed}

	expanded := CameraPopup(c, "Jönköpings", hostframe.ModeExpanded)
	for _, want := range []string{"<h3>Fartkamera</h3>", "<strong>Namn:</strong> Väg 40", "<strong>Riktning:</strong> 0°", "<strong>Hastighet:</strong> 70 km/h", "<strong>Län:</strong> Jönköpings"} {
		if !strings.Contains(expanded, want) {
			t.Fatalf("expected %q in camera popup:\n%s", want, expanded)
		}
	}

	banner := CameraPopup(c, "Jönköpings", hostframe.ModeBanner)
	if strings.Contains(banner, "Riktning") {
		t.Fatalf("did not expect bearing in banner popup:\n%s", banner)
	}
	if !strings.Contains(banner, "70 km/h") || !strings.Contains(banner, "Utöka Kartan (⬈) för fler detaljer.") {
		t.Fatalf("expected speed and hint in banner popup:\n%s", banner)
	}
}
