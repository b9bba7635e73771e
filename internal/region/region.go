// Package region holds the static catalog of Swedish counties (län).
package region

import (
	"strconv"
	"strings"

	"trafikkarta/core-go/internal/geometry"
)

// Region is a selectable county. The "all regions" entry has an empty Value
// and a nil Code.
type Region struct {
	Name     string          `json:"name"`
	Value    string          `json:"value"`
	Code     *int            `json:"code,omitempty"`
	Centroid geometry.LatLon `json:"centroid"`
	Zoom     int             `json:"zoom"`
}

// AllRegionsValue is the Value of the whole-country entry.
const AllRegionsValue = ""

var (
	DefaultCenter = geometry.LatLon{Lat: 62.0, Lon: 15.0}
	DefaultZoom   = 5
)

func code(n int) *int { return &n }

var counties = []Region{
	{Name: "Alla län", Value: AllRegionsValue, Centroid: DefaultCenter, Zoom: DefaultZoom},
	{Name: "Blekinge län", Value: "Blekinge", Code: code(10), Centroid: geometry.LatLon{Lat: 56.16, Lon: 15.0}, Zoom: 9},
	{Name: "Dalarnas län", Value: "Dalarna", Code: code(20), Centroid: geometry.LatLon{Lat: 60.8, Lon: 14.6}, Zoom: 7},
	{Name: "Gotlands län", Value: "Gotland", Code: code(9), Centroid: geometry.LatLon{Lat: 57.5, Lon: 18.55}, Zoom: 8},
	{Name: "Gävleborgs län", Value: "Gävleborg", Code: code(21), Centroid: geometry.LatLon{Lat: 61.0, Lon: 16.5}, Zoom: 7},
	{Name: "Hallands län", Value: "Halland", Code: code(13), Centroid: geometry.LatLon{Lat: 56.9, Lon: 13.0}, Zoom: 8},
	{Name: "Jämtlands län", Value: "Jämtland", Code: code(23), Centroid: geometry.LatLon{Lat: 63.3, Lon: 14.5}, Zoom: 6},
	{Name: "Jönköpings län", Value: "Jönköping", Code: code(6), Centroid: geometry.LatLon{Lat: 57.6, Lon: 14.3}, Zoom: 8},
	{Name: "Kalmar län", Value: "Kalmar", Code: code(8), Centroid: geometry.LatLon{Lat: 57.0, Lon: 16.2}, Zoom: 7},
	{Name: "Kronobergs län", Value: "Kronoberg", Code: code(7), Centroid: geometry.LatLon{Lat: 56.8, Lon: 14.55}, Zoom: 8},
	{Name: "Norrbottens län", Value: "Norrbotten", Code: code(25), Centroid: geometry.LatLon{Lat: 67.0, Lon: 20.0}, Zoom: 5},
	{Name: "Skåne län", Value: "Skåne", Code: code(12), Centroid: geometry.LatLon{Lat: 55.85, Lon: 13.5}, Zoom: 8},
	{Name: "Stockholms län", Value: "Stockholm", Code: code(1), Centroid: geometry.LatLon{Lat: 59.33, Lon: 18.07}, Zoom: 8},
	{Name: "Södermanlands län", Value: "Södermanland", Code: code(4), Centroid: geometry.LatLon{Lat: 59.1, Lon: 16.8}, Zoom: 8},
	{Name: "Uppsala län", Value: "Uppsala", Code: code(3), Centroid: geometry.LatLon{Lat: 59.9, Lon: 17.7}, Zoom: 8},
	{Name: "Värmlands län", Value: "Värmland", Code: code(17), Centroid: geometry.LatLon{Lat: 59.7, Lon: 13.2}, Zoom: 7},
	{Name: "Västerbottens län", Value: "Västerbotten", Code: code(24), Centroid: geometry.LatLon{Lat: 64.8, Lon: 18.0}, Zoom: 6},
	{Name: "Västernorrlands län", Value: "Västernorrland", Code: code(22), Centroid: geometry.LatLon{Lat: 63.0, Lon: 17.8}, Zoom: 7},
	{Name: "Västmanlands län", Value: "Västmanland", Code: code(19), Centroid: geometry.LatLon{Lat: 59.65, Lon: 16.4}, Zoom: 8},
	{Name: "Västra Götalands län", Value: "Västra Götaland", Code: code(14), Centroid: geometry.LatLon{Lat: 58.2, Lon: 12.0}, Zoom: 7},
	{Name: "Örebro län", Value: "Örebro", Code: code(18), Centroid: geometry.LatLon{Lat: 59.35, Lon: 15.2}, Zoom: 8},
	{Name: "Östergötlands län", Value: "Östergötland", Code: code(5), Centroid: geometry.LatLon{Lat: 58.4, Lon: 15.7}, Zoom: 8},
}

// Catalog indexes a list of regions by value and by county number.
type Catalog struct {
	regions []Region
	byValue map[string]Region
	byCode  map[int]Region
}

// Sweden returns the catalog of the 21 Swedish counties plus "Alla län".
func Sweden() *Catalog {
	return NewCatalog(counties)
}

func NewCatalog(regions []Region) *Catalog {
	c := &Catalog{
		regions: append([]Region(nil), regions...),
		byValue: make(map[string]Region, len(regions)),
		byCode:  make(map[int]Region, len(regions)),
	}
	for _, r := range c.regions {
		c.byValue[r.Value] = r
		if r.Code != nil {
			c.byCode[*r.Code] = r
		}
	}
	return c
}

// All returns the regions in catalog order.
func (c *Catalog) All() []Region {
	return append([]Region(nil), c.regions...)
}

func (c *Catalog) ByValue(value string) (Region, bool) {
	r, ok := c.byValue[value]
	return r, ok
}

func (c *Catalog) ByCode(n int) (Region, bool) {
	r, ok := c.byCode[n]
	return r, ok
}

// AllRegions returns the entry without a county number.
func (c *Catalog) AllRegions() (Region, bool) {
	for _, r := range c.regions {
		if r.Code == nil {
			return r, true
		}
	}
	return Region{}, false
}

// NameForCode returns the county name, or "Län N" for unknown numbers.
func (c *Catalog) NameForCode(n int) string {
	if r, ok := c.byCode[n]; ok {
		return r.Name
	}
	return "Län " + strconv.Itoa(n)
}

// ShortNameForCode is the county name without its " län" suffix, or "Län N"
// for unknown numbers.
func (c *Catalog) ShortNameForCode(n int) string {
	if r, ok := c.byCode[n]; ok {
		return strings.TrimSuffix(r.Name, " län")
	}
	return "Län " + strconv.Itoa(n)
}

// JoinNames renders county numbers as a comma separated list of short names.
func (c *Catalog) JoinNames(codes []int) string {
	names := make([]string, 0, len(codes))
	for _, n := range codes {
		names = append(names, c.ShortNameForCode(n))
	}
	return strings.Join(names, ", ")
}

// CodeForName resolves a county by value or full name, ignoring case and a
// trailing " län".
func (c *Catalog) CodeForName(name string) (int, bool) {
	r, ok := c.Match(name)
	if !ok || r.Code == nil {
		return 0, false
	}
	return *r.Code, true
}

// Match finds the region whose name or value matches a free-form place name
// such as "Stockholms län" or "skåne".
func (c *Catalog) Match(name string) (Region, bool) {
	needle := normalize(name)
	if needle == "" {
		return Region{}, false
	}
	for _, r := range c.regions {
		if r.Code == nil {
			continue
		}
		if normalize(r.Name) == needle || normalize(r.Value) == needle {
			return r, true
		}
	}
	return Region{}, false
}

// DisplayName is the place used in status messages.
func (c *Catalog) DisplayName(value string) string {
	if value == AllRegionsValue {
		return "hela Sverige"
	}
	if r, ok := c.byValue[value]; ok {
		return r.Name
	}
	return value
}

func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimSuffix(s, " län")
	return strings.TrimSpace(s)
}
