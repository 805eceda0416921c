// Package raster reads single-band GeoTIFF layers into memory and samples
// them at geographic coordinates.
package raster

import (
	"errors"
	"fmt"
	"math"
)

// ErrNoData is returned when the sampled pixel holds the nodata sentinel or NaN.
var ErrNoData = errors.New("pixel is nodata")

// OutOfBoundsError reports a coordinate outside the raster extent.
type OutOfBoundsError struct {
	X, Y     float64
	Col, Row int
}

func (e *OutOfBoundsError) Error() string {
	return fmt.Sprintf("coordinate (%.6f, %.6f) outside raster (pixel %d,%d)", e.X, e.Y, e.Col, e.Row)
}

// Grid is a decoded raster band. Transform uses GDAL ordering:
//
//	x = T[0] + col*T[1] + row*T[2]
//	y = T[3] + col*T[4] + row*T[5]
//
// with (col, row) the top-left corner of a pixel.
type Grid struct {
	Width     int
	Height    int
	Transform [6]float64
	NoData    float64
	HasNoData bool
	Values    []float64 // row-major, Width*Height
}

// NewGrid validates dimensions and transform.
func NewGrid(width, height int, transform [6]float64, values []float64) (*Grid, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid raster size %dx%d", width, height)
	}
	if len(values) != width*height {
		return nil, fmt.Errorf("raster has %d values, want %d", len(values), width*height)
	}
	g := &Grid{Width: width, Height: height, Transform: transform, Values: values}
	if g.det() == 0 {
		return nil, errors.New("raster transform is singular")
	}
	return g, nil
}

// WithNoData sets the nodata sentinel and returns the grid.
func (g *Grid) WithNoData(v float64) *Grid {
	g.NoData = v
	g.HasNoData = true
	return g
}

func (g *Grid) det() float64 {
	t := g.Transform
	return t[1]*t[5] - t[2]*t[4]
}

// Pixel returns the (col, row) of the pixel containing (x, y). The result
// may lie outside the grid.
func (g *Grid) Pixel(x, y float64) (col, row int) {
	t := g.Transform
	dx, dy := x-t[0], y-t[3]
	det := g.det()
	fc := (dx*t[5] - dy*t[2]) / det
	fr := (dy*t[1] - dx*t[4]) / det
	return int(math.Floor(fc)), int(math.Floor(fr))
}

// At returns the raw value at a pixel without nodata checks.
func (g *Grid) At(col, row int) float64 {
	return g.Values[row*g.Width+col]
}

// Sample returns the value of the pixel containing (x, y) in the raster's
// coordinate system. It fails with *OutOfBoundsError outside the extent and
// with ErrNoData on the nodata sentinel or NaN.
func (g *Grid) Sample(x, y float64) (float64, error) {
	col, row := g.Pixel(x, y)
	if col < 0 || row < 0 || col >= g.Width || row >= g.Height {
		return 0, &OutOfBoundsError{X: x, Y: y, Col: col, Row: row}
	}
	v := g.At(col, row)
	if math.IsNaN(v) || (g.HasNoData && v == g.NoData) {
		return 0, ErrNoData
	}
	return v, nil
}

// Bounds returns the axis-aligned extent of the raster.
func (g *Grid) Bounds() (minX, minY, maxX, maxY float64) {
	t := g.Transform
	w, h := float64(g.Width), float64(g.Height)
	xs := [4]float64{t[0], t[0] + w*t[1], t[0] + h*t[2], t[0] + w*t[1] + h*t[2]}
	ys := [4]float64{t[3], t[3] + w*t[4], t[3] + h*t[5], t[3] + w*t[4] + h*t[5]}
	minX, maxX = xs[0], xs[0]
	minY, maxY = ys[0], ys[0]
	for i := 1; i < 4; i++ {
		minX, maxX = min(minX, xs[i]), max(maxX, xs[i])
		minY, maxY = min(minY, ys[i]), max(maxY, ys[i])
	}
	return minX, minY, maxX, maxY
}

// SameGeometry reports whether two grids share size and transform, i.e. are
// co-registered.
func SameGeometry(a, b *Grid) bool {
	return a.Width == b.Width && a.Height == b.Height && a.Transform == b.Transform
}
