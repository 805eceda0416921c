//go:build !gdal

package raster

// Open reads a single-band raster from disk. Builds without the gdal tag
// accept classic GeoTIFF only.
func Open(path string) (*Grid, error) {
	return ReadFile(path)
}
