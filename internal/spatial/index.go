// Package spatial estimates building density around sample points from
// footprint polygons.
package spatial

import (
	"math"

	"github.com/dhconnelly/rtreego"
	"github.com/paulmach/orb"
)

const (
	dimensions  = 2
	minChildren = 25
	maxChildren = 50

	// minExtent keeps degenerate footprints and zero-size queries valid
	// rectangles for the R-tree.
	minExtent = 1e-9
)

// footprint is a projected polygon stored in the R-tree.
type footprint struct {
	poly orb.Polygon
	rect *rtreego.Rect
}

func (f *footprint) Bounds() *rtreego.Rect {
	return f.rect
}

// Index is an R-tree of building footprints in Web Mercator. It is read-only
// after construction and safe for concurrent queries.
type Index struct {
	tree  *rtreego.Rtree
	count int
}

// NewIndex projects WGS84 footprints and indexes them by bounding box.
// Polygons without an outer ring are skipped.
func NewIndex(polygons []orb.Polygon) *Index {
	idx := &Index{tree: rtreego.NewTree(dimensions, minChildren, maxChildren)}
	for _, p := range polygons {
		if len(p) == 0 || len(p[0]) < 3 {
			continue
		}
		proj := ProjectPolygon(p)
		rect, err := boundRect(proj.Bound())
		if err != nil {
			continue
		}
		idx.tree.Insert(&footprint{poly: proj, rect: rect})
		idx.count++
	}
	return idx
}

// Len returns the number of indexed footprints.
func (x *Index) Len() int {
	if x == nil {
		return 0
	}
	return x.count
}

// Candidates returns projected footprints whose bounding boxes intersect b.
func (x *Index) Candidates(b orb.Bound) []orb.Polygon {
	if x.Len() == 0 {
		return nil
	}
	rect, err := boundRect(b)
	if err != nil {
		return nil
	}
	hits := x.tree.SearchIntersect(rect)
	out := make([]orb.Polygon, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.(*footprint).poly)
	}
	return out
}

// Density returns the share of a disc of radiusM ground meters around
// (lon, lat) covered by footprints, clamped to [0,1]. An empty or nil index
// yields 0.
func (x *Index) Density(lon, lat, radiusM float64) float64 {
	if x.Len() == 0 || radiusM <= 0 {
		return 0
	}
	center := ToMercator(lon, lat)
	r := MercatorRadius(radiusM, lat)
	query := orb.Bound{
		Min: orb.Point{center[0] - r, center[1] - r},
		Max: orb.Point{center[0] + r, center[1] + r},
	}

	var covered float64
	for _, p := range x.Candidates(query) {
		covered += DiscPolygonArea(center, r, p)
	}
	return math.Max(0, math.Min(1, covered/(math.Pi*r*r)))
}

func boundRect(b orb.Bound) (*rtreego.Rect, error) {
	w := math.Max(b.Max[0]-b.Min[0], minExtent)
	h := math.Max(b.Max[1]-b.Min[1], minExtent)
	return rtreego.NewRect(rtreego.Point{b.Min[0], b.Min[1]}, []float64{w, h})
}
