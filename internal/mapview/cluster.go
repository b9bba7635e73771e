package mapview

import (
	"sort"

	"github.com/golang/geo/s2"

	"trafikkarta/core-go/internal/geometry"
)

// Cluster groups markers that share an S2 cell at the current zoom.
type Cluster struct {
	ID        string
	Center    geometry.LatLon
	MarkerIDs []string
}

// clusterLevel picks an S2 level whose cells are roughly one cluster radius
// wide on screen at zoom.
func clusterLevel(zoom int) int {
	level := zoom + 1
	if level < 0 {
		return 0
	}
	if level > 30 {
		return 30
	}
	return level
}

// Clusters groups the layer for display at zoom. At MaxZoom every marker is
// its own cluster.
func (c *Controller) Clusters(zoom int) []Cluster {
	markers := c.Markers()
	if len(markers) == 0 {
		return nil
	}

	if zoom >= MaxZoom {
		out := make([]Cluster, 0, len(markers))
		for _, m := range markers {
			out = append(out, Cluster{ID: m.ID, Center: m.Position, MarkerIDs: []string{m.ID}})
		}
		return out
	}

	level := clusterLevel(zoom)
	type acc struct {
		latSum, lonSum float64
		ids            []string
	}
	groups := make(map[s2.CellID]*acc)
	for _, m := range markers {
		cell := s2.CellIDFromLatLng(s2.LatLngFromDegrees(m.Position.Lat, m.Position.Lon)).Parent(level)
		a, ok := groups[cell]
		if !ok {
			a = &acc{}
			groups[cell] = a
		}
		a.latSum += m.Position.Lat
		a.lonSum += m.Position.Lon
		a.ids = append(a.ids, m.ID)
	}

	out := make([]Cluster, 0, len(groups))
	for cell, a := range groups {
		n := float64(len(a.ids))
		id := cell.ToToken()
		if len(a.ids) == 1 {
			id = a.ids[0]
		}
		out = append(out, Cluster{
			ID:        id,
			Center:    geometry.LatLon{Lat: a.latSum / n, Lon: a.lonSum / n},
			MarkerIDs: a.ids,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
