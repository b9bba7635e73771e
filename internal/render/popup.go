package render

import (
	"bytes"
	"html/template"
	"strconv"
	"time"
	_ "time/tzdata"

	"trafikkarta/core-go/internal/hostframe"
	"trafikkarta/core-go/internal/traffic"
)

const displayTimeLayout = "2006-01-02 15:04:05"

var deviationPopupTmpl = template.Must(template.New("deviation").Parse(
	`<h3>{{.Header}}</h3>` +
		`<strong>Typ:</strong> {{.Type}}<br>` +
		`{{if .Imprecise}}<strong style="color: orange;">Position är ungefärlig (länsnivå)</strong><br>{{end}}` +
		`{{if .Banner}}<p style="font-style: italic; color: #333; margin-top: 5px;">Utöka Kartan (⬈) för att se specifik information om trafikhändelse.</p>` +
		`{{else}}` +
		`{{with .Message}}<strong>Info:</strong> {{.}}<br>{{end}}` +
		`{{with .Severity}}<strong>Allvarlighetsgrad:</strong> {{.}}<br>{{end}}` +
		`{{with .Road}}<strong>Väg:</strong> {{.}}<br>{{end}}` +
		`{{with .Location}}<strong>Plats:</strong> {{.}}<br>{{end}}` +
		`{{with .Direction}}<strong>Riktning:</strong> {{.}}<br>{{end}}` +
		`{{with .Start}}<strong>Start:</strong> {{.}}<br>{{end}}` +
		`{{if .End}}<strong>Slut (beräknad):</strong> {{.End}}<br>{{else if .UntilFurtherNotice}}<strong>Gäller:</strong> Tills vidare<br>{{end}}` +
		`{{with .WebLink}}<a href="{{.}}" target="_blank" rel="noopener noreferrer">Mer information (Trafikverket)</a><br>{{end}}` +
		`{{end}}` +
		`<strong>Län:</strong> {{.Counties}}<br>` +
		`{{if and (not .Banner) .Updated}}<small>Uppdaterad: {{.Updated}}</small><br>{{end}}`,
))

var cameraPopupTmpl = template.Must(template.New("camera").Parse(
	`<h3>Fartkamera</h3>` +
		`{{with .Name}}<strong>Namn:</strong> {{.}}<br>{{end}}` +
		`{{if .Banner}}` +
		`{{with .Speed}}<strong>Hastighet:</strong> {{.}} km/h<br>{{end}}` +
		`<p style="font-style: italic; color: #333; margin-top: 5px;">Utöka Kartan (⬈) för fler detaljer.</p>` +
		`{{else}}` +
		`{{with .Bearing}}<strong>Riktning:</strong> {{.}}°<br>{{end}}` +
		`{{with .Speed}}<strong>Hastighet:</strong> {{.}} km/h<br>{{end}}` +
		`{{end}}` +
		`<strong>Län:</strong> {{.Counties}}`,
))

type deviationPopup struct {
	Header             string
	Type               string
	Imprecise          bool
	Banner             bool
	Message            string
	Severity           string
	Road               string
	Location           string
	Direction          string
	Start              string
	End                string
	UntilFurtherNotice bool
	WebLink            string
	Counties           string
	Updated            string
}

type cameraPopup struct {
	Name     string
	Banner   bool
	Bearing  string
	Speed    string
	Counties string
}

// DeviationPopup renders the popup HTML for a deviation in the given mode.
func DeviationPopup(d traffic.Deviation, counties string, imprecise bool, mode hostframe.Mode, loc *time.Location) string {
	data := deviationPopup{
		Header:             firstNonEmpty(d.Header, "Händelse"),
		Type:               firstNonEmpty(d.MessageType, d.MessageTypeValue, "Okänd"),
		Imprecise:          imprecise,
		Banner:             mode == hostframe.ModeBanner,
		Message:            d.Message,
		Severity:           d.SeverityText,
		Road:               roadLabel(d.RoadNumber, d.RoadName),
		Location:           d.LocationDescriptor,
		Direction:          d.AffectedDirection.String(),
		Start:              formatTime(d.StartTime, loc),
		End:                formatTime(d.EndTime, loc),
		UntilFurtherNotice: d.ValidUntilFurtherNotice,
		WebLink:            d.WebLink,
		Counties:           counties,
		Updated:            formatTime(d.VersionTime, loc),
	}
	return execute(deviationPopupTmpl, data)
}

// CameraPopup renders the popup HTML for a safety camera in the given mode.
func CameraPopup(c traffic.SafetyCamera, counties string, mode hostframe.Mode) string {
	data := cameraPopup{
		Name:     c.Name,
		Banner:   mode == hostframe.ModeBanner,
		Counties: counties,
	}
	if c.Bearing != nil {
		data.Bearing = strconv.FormatFloat(*c.Bearing, 'f', -1, 64)
	}
	if c.SpeedLimit != nil && *c.SpeedLimit != 0 {
		data.Speed = strconv.Itoa(*c.SpeedLimit)
	}
	return execute(cameraPopupTmpl, data)
}

func execute(t *template.Template, data any) string {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return ""
	}
	return buf.String()
}

func roadLabel(number, name string) string {
	switch {
	case number != "" && name != "":
		return number + " (" + name + ")"
	case number != "":
		return number
	default:
		return name
	}
}

// formatTime renders an API timestamp in Swedish local time. Unparseable
// values are shown as sent.
func formatTime(raw string, loc *time.Location) string {
	if raw == "" {
		return ""
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return raw
	}
	return t.In(loc).Format(displayTimeLayout)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
