package trafikverket

import (
	"encoding/xml"
	"strconv"
	"strings"
)

// DefaultMessageTypes is used when a caller does not name any.
var DefaultMessageTypes = []string{"Accident", "Roadwork"}

var deviationFields = []string{
	"Id", "Header", "CreationTime", "CountyNo",
	"Geometry.Point.WGS84", "Geometry.Point.SWEREF99TM",
	"Geometry.Line.WGS84", "Geometry.Line.SWEREF99TM",
	"LocationDescriptor", "RoadNumber", "RoadName", "PositionalDescription",
	"MessageType", "MessageTypeValue", "IconId", "StartTime", "EndTime",
	"Message", "AffectedDirection", "SeverityText", "TemporaryLimit",
	"ValidUntilFurtherNotice", "WebLink", "NumberOfLanesRestricted",
	"TrafficRestrictionType", "VersionTime",
}

var cameraFields = []string{
	"Id", "Name", "Geometry.WGS84", "Geometry.SWEREF99TM", "CountyNo", "IconId", "Bearing",
}

// Query narrows an upstream request. A nil CountyNo asks for the whole
// country.
type Query struct {
	CountyNo     *int
	MessageTypes []string
}

// ParseMessageTypes splits a comma separated list, dropping blanks.
func ParseMessageTypes(csv string) []string {
	var out []string
	for _, mt := range strings.Split(csv, ",") {
		if mt = strings.TrimSpace(mt); mt != "" {
			out = append(out, mt)
		}
	}
	return out
}

type xmlRequest struct {
	XMLName xml.Name   `xml:"REQUEST"`
	Login   xmlLogin   `xml:"LOGIN"`
	Queries []xmlQuery `xml:"QUERY"`
}

type xmlLogin struct {
	AuthenticationKey string `xml:"authenticationkey,attr"`
}

type xmlQuery struct {
	ObjectType    string    `xml:"objecttype,attr"`
	Namespace     string    `xml:"namespace,attr,omitempty"`
	SchemaVersion string    `xml:"schemaversion,attr"`
	OrderBy       string    `xml:"orderby,attr,omitempty"`
	Filter        xmlFilter `xml:"FILTER"`
	Include       []string  `xml:"INCLUDE"`
}

type xmlFilter struct {
	And *xmlAnd   `xml:"AND,omitempty"`
	EQ  []xmlCond `xml:"EQ"`
}

type xmlAnd struct {
	Exists []xmlCond `xml:"EXISTS"`
	EQ     []xmlCond `xml:"EQ"`
	IN     []xmlCond `xml:"IN"`
}

type xmlCond struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

func prefixed(prefix string, fields []string) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = prefix + f
	}
	return out
}

// BuildRequest renders the XML body holding the situation and safety camera
// queries.
func BuildRequest(apiKey string, q Query) ([]byte, error) {
	types := q.MessageTypes
	if len(types) == 0 {
		types = DefaultMessageTypes
	}

	situation := &xmlAnd{
		Exists: []xmlCond{{Name: "Deviation", Value: "true"}},
		IN:     []xmlCond{{Name: "Deviation.MessageTypeValue", Value: strings.Join(types, ",")}},
	}
	var cameraFilter xmlFilter
	if q.CountyNo != nil {
		county := strconv.Itoa(*q.CountyNo)
		situation.EQ = []xmlCond{{Name: "Deviation.CountyNo", Value: county}}
		cameraFilter.EQ = []xmlCond{{Name: "CountyNo", Value: county}}
	}

	req := xmlRequest{
		Login: xmlLogin{AuthenticationKey: apiKey},
		Queries: []xmlQuery{
			{
				ObjectType:    "Situation",
				Namespace:     "Road.TrafficInfo",
				SchemaVersion: "1.5",
				OrderBy:       "Deviation.CreationTime DESC",
				Filter:        xmlFilter{And: situation},
				Include:       prefixed("Deviation.", deviationFields),
			},
			{
				ObjectType:    "TrafficSafetyCamera",
				Namespace:     "Road.Infrastructure",
				SchemaVersion: "1",
				Filter:        cameraFilter,
				Include:       cameraFields,
			},
		},
	}
	return xml.MarshalIndent(req, "", "  ")
}
