package mapview

import (
	"github.com/paulmach/orb/geojson"
)

// FeatureCollection exports the marker layer as GeoJSON. With zoom >= 0 the
// markers are clustered first; a cluster of one is emitted as its marker.
func (c *Controller) FeatureCollection(zoom int) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	markers := c.Markers()

	byID := make(map[string]Marker, len(markers))
	for _, m := range markers {
		byID[m.ID] = m
	}

	if zoom < 0 {
		for _, m := range markers {
			fc.Append(markerFeature(m))
		}
		return fc
	}

	for _, cl := range c.Clusters(zoom) {
		if len(cl.MarkerIDs) == 1 {
			fc.Append(markerFeature(byID[cl.MarkerIDs[0]]))
			continue
		}
		f := geojson.NewFeature(cl.Center.Point())
		f.ID = cl.ID
		f.Properties = geojson.Properties{
			"cluster":    true,
			"count":      len(cl.MarkerIDs),
			"marker_ids": cl.MarkerIDs,
		}
		fc.Append(f)
	}
	return fc
}

func markerFeature(m Marker) *geojson.Feature {
	f := geojson.NewFeature(m.Position.Point())
	f.ID = m.ID
	f.Properties = geojson.Properties{
		"cluster":   false,
		"kind":      string(m.Kind),
		"icon":      m.Icon,
		"imprecise": m.Imprecise,
	}
	return f
}
