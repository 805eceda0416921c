package spatial

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
)

// ErrFootprintsMissing is returned when the configured footprint file does
// not exist.
var ErrFootprintsMissing = errors.New("footprint shapefile not found")

// Footprint is one building outline with its source identifier.
type Footprint struct {
	ID      int64
	Polygon orb.Polygon
}

// LoadFootprints reads every polygon record of a shapefile in WGS84.
// Shapefile rings are split into polygons by winding: clockwise rings start
// a new polygon, counter-clockwise rings are holes of the preceding one.
func LoadFootprints(path string) ([]orb.Polygon, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrFootprintsMissing, path)
		}
		return nil, fmt.Errorf("stat footprints: %w", err)
	}

	reader, err := shp.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open shapefile %s: %w", path, err)
	}
	defer func() { _ = reader.Close() }()

	var out []orb.Polygon
	for reader.Next() {
		_, shape := reader.Shape()
		p, ok := shape.(*shp.Polygon)
		if !ok || p == nil {
			continue
		}
		out = append(out, shapePolygons(p)...)
	}
	return out, nil
}

func shapePolygons(p *shp.Polygon) []orb.Polygon {
	if p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}
	var out []orb.Polygon
	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		end := int32(len(p.Points))
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		}
		if start < 0 || end > int32(len(p.Points)) || end-start < 3 {
			continue
		}
		ring := make(orb.Ring, 0, end-start)
		for j := start; j < end; j++ {
			ring = append(ring, orb.Point{p.Points[j].X, p.Points[j].Y})
		}
		if ring.Orientation() == orb.CCW && len(out) > 0 {
			last := len(out) - 1
			out[last] = append(out[last], ring)
			continue
		}
		out = append(out, orb.Polygon{ring})
	}
	return out
}

// WriteFootprints writes footprints as a polygon shapefile with an OSM_ID
// attribute. Outer rings are written clockwise and holes counter-clockwise.
func WriteFootprints(path string, footprints []Footprint) error {
	w, err := shp.Create(path, shp.POLYGON)
	if err != nil {
		return fmt.Errorf("create shapefile %s: %w", path, err)
	}
	if err := w.SetFields([]shp.Field{shp.StringField("OSM_ID", 20)}); err != nil {
		w.Close()
		return fmt.Errorf("set shapefile fields: %w", err)
	}

	for _, fp := range footprints {
		if len(fp.Polygon) == 0 {
			continue
		}
		parts := make([][]shp.Point, 0, len(fp.Polygon))
		for i, ring := range fp.Polygon {
			want := orb.CW
			if i > 0 {
				want = orb.CCW
			}
			ring = closed(ring)
			if ring.Orientation() != want {
				ring = reversed(ring)
			}
			pts := make([]shp.Point, len(ring))
			for k, pt := range ring {
				pts[k] = shp.Point{X: pt[0], Y: pt[1]}
			}
			parts = append(parts, pts)
		}
		poly := shp.Polygon(*shp.NewPolyLine(parts))
		row := w.Write(&poly)
		if err := w.WriteAttribute(int(row), 0, strconv.FormatInt(fp.ID, 10)); err != nil {
			w.Close()
			return fmt.Errorf("write footprint %d: %w", fp.ID, err)
		}
	}
	w.Close()
	return nil
}

func closed(r orb.Ring) orb.Ring {
	if len(r) > 0 && r[0] != r[len(r)-1] {
		return append(r.Clone(), r[0])
	}
	return r
}

func reversed(r orb.Ring) orb.Ring {
	out := make(orb.Ring, len(r))
	for i, p := range r {
		out[len(r)-1-i] = p
	}
	return out
}
