//go:build gdal

package raster

import (
	"fmt"
	"sync"

	"github.com/airbusgeo/godal"
)

var registerDrivers sync.Once

// Open reads the first band of any raster GDAL can decode, including
// BigTIFF, JPEG-compressed and multi-band files the built-in decoder
// rejects.
func Open(path string) (*Grid, error) {
	registerDrivers.Do(godal.RegisterAll)

	ds, err := godal.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open raster %s: %w", path, err)
	}
	defer ds.Close()

	st := ds.Structure()
	if st.NBands < 1 {
		return nil, fmt.Errorf("%s: raster has no bands", path)
	}
	transform, err := ds.GeoTransform()
	if err != nil {
		return nil, fmt.Errorf("%s: read geotransform: %w", path, err)
	}

	band := ds.Bands()[0]
	values := make([]float64, st.SizeX*st.SizeY)
	if err := band.Read(0, 0, values, st.SizeX, st.SizeY); err != nil {
		return nil, fmt.Errorf("%s: read band 1: %w", path, err)
	}

	g, err := NewGrid(st.SizeX, st.SizeY, transform, values)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if nd, ok := band.NoData(); ok {
		g.WithNoData(nd)
	}
	return g, nil
}
