// Package geojson persists point feature collections as GeoJSON files.
package geojson

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/paulmach/orb"
	orbjson "github.com/paulmach/orb/geojson"

	"github.com/couchcryptid/heat-vulnerability/internal/domain"
)

// ErrDataNotFound is returned when the collection file does not exist.
var ErrDataNotFound = domain.ErrDataNotFound

// Encode converts a collection to a GeoJSON FeatureCollection with Point
// geometries in lon/lat order.
func Encode(c domain.Collection) *orbjson.FeatureCollection {
	fc := orbjson.NewFeatureCollection()
	for _, f := range c {
		fc.Append(EncodeFeature(f))
	}
	return fc
}

// EncodeFeature converts one feature.
func EncodeFeature(f domain.Feature) *orbjson.Feature {
	gf := orbjson.NewFeature(orb.Point{f.Lon(), f.Lat()})
	for k, v := range f.Properties() {
		gf.Properties[k] = v
	}
	return gf
}

// Decode converts a FeatureCollection back into a collection. Only Point
// geometries are accepted and every feature must carry the three raw
// inputs; other non-numeric properties are ignored.
func Decode(fc *orbjson.FeatureCollection) (domain.Collection, error) {
	out := make(domain.Collection, 0, len(fc.Features))
	for i, gf := range fc.Features {
		pt, ok := gf.Geometry.(orb.Point)
		if !ok {
			return nil, fmt.Errorf("feature %d: want Point geometry, got %T", i, gf.Geometry)
		}
		f := domain.NewFeature(pt.Lon(), pt.Lat())
		for k, v := range gf.Properties {
			if n, ok := v.(float64); ok {
				f.Set(k, n)
			}
		}
		if err := f.CheckInputs(); err != nil {
			return nil, fmt.Errorf("feature %d: %w", i, err)
		}
		out = append(out, f)
	}
	return out, nil
}

// Marshal encodes a collection as GeoJSON bytes.
func Marshal(c domain.Collection) ([]byte, error) {
	data, err := Encode(c).MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("marshal feature collection: %w", err)
	}
	return data, nil
}

// Unmarshal parses GeoJSON bytes into a collection.
func Unmarshal(data []byte) (domain.Collection, error) {
	fc, err := orbjson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("parse feature collection: %w", err)
	}
	return Decode(fc)
}

// Store reads and writes one collection file.
type Store struct {
	path string
}

// NewStore creates a store for the file at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

// Read loads the collection. A missing file returns ErrDataNotFound.
func (s *Store) Read() (domain.Collection, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrDataNotFound, s.path)
		}
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}
	return Unmarshal(data)
}

// ModTime reports the file's modification time. A missing file returns
// ErrDataNotFound.
func (s *Store) ModTime() (time.Time, error) {
	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return time.Time{}, fmt.Errorf("%w: %s", ErrDataNotFound, s.path)
		}
		return time.Time{}, fmt.Errorf("stat %s: %w", s.path, err)
	}
	return info.ModTime(), nil
}

// Write replaces the file with the collection. The new content is written
// to a sibling temp file first so readers never see a partial file.
func (s *Store) Write(c domain.Collection) error {
	data, err := Marshal(c)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".tmp-*.geojson")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace %s: %w", s.path, err)
	}
	return nil
}
