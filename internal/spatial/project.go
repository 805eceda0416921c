package spatial

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

// ToMercator projects a WGS84 lon/lat point to Web Mercator meters.
func ToMercator(lon, lat float64) orb.Point {
	return project.Point(orb.Point{lon, lat}, project.WGS84.ToMercator)
}

// MercatorRadius converts a ground distance in meters to Web Mercator units
// at the given latitude. Mercator stretches distances by 1/cos(lat).
func MercatorRadius(meters, lat float64) float64 {
	return meters / math.Cos(lat*math.Pi/180)
}

// ProjectPolygon projects a WGS84 polygon to Web Mercator.
func ProjectPolygon(p orb.Polygon) orb.Polygon {
	return project.Polygon(p.Clone(), project.WGS84.ToMercator)
}
