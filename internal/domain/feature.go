package domain

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrDataNotFound is returned when a persisted collection does not exist yet.
	ErrDataNotFound = errors.New("feature collection not found")
	// ErrMissingInput is returned when a feature lacks a finite raw input.
	ErrMissingInput = errors.New("feature missing input")
)

// Property names carried by point features. They double as GeoJSON property
// keys, so renaming one changes the served payload.
const (
	PropTemp          = "temp"
	PropNDVI          = "ndvi"
	PropDensity       = "bldDensity"
	PropVulnerability = "vulnerability"
	PropAQI           = "aqi"
	PropPopulation    = "pop"
	PropHealthRisk    = "health_risk"
	PropPlantPriority = "plantPriority"
)

// InputProps are the raw inputs every sampled point carries.
var InputProps = [...]string{PropTemp, PropNDVI, PropDensity}

// Feature is a sampled location with its accumulated numeric properties.
// Geometry is fixed at construction; properties are only ever set or
// overwritten.
type Feature struct {
	lon, lat float64
	props    map[string]float64
}

// NewFeature creates a feature at the given WGS84 coordinate.
func NewFeature(lon, lat float64) Feature {
	return Feature{lon: lon, lat: lat, props: make(map[string]float64, 8)}
}

func (f Feature) Lon() float64 { return f.lon }
func (f Feature) Lat() float64 { return f.lat }

// Get returns the named property and whether it was present.
func (f Feature) Get(name string) (float64, bool) {
	v, ok := f.props[name]
	return v, ok
}

// Value returns the named property, or 0 if absent.
func (f Feature) Value(name string) float64 {
	return f.props[name]
}

// Set writes a property. The feature shares its property map with copies,
// so callers that need isolation should Clone first.
func (f Feature) Set(name string, v float64) {
	f.props[name] = v
}

// Properties returns a copy of the property map.
func (f Feature) Properties() map[string]float64 {
	out := make(map[string]float64, len(f.props))
	for k, v := range f.props {
		out[k] = v
	}
	return out
}

// CheckInputs returns ErrMissingInput naming the first of InputProps that f
// lacks or holds as NaN or Inf.
func (f Feature) CheckInputs() error {
	for _, name := range InputProps {
		v, ok := f.Get(name)
		if !ok || !finite(v) {
			return fmt.Errorf("%w: %s", ErrMissingInput, name)
		}
	}
	return nil
}

// Clone returns a feature at the same location with a private property map.
func (f Feature) Clone() Feature {
	return Feature{lon: f.lon, lat: f.lat, props: f.Properties()}
}

// Collection is an ordered set of point features. Index i of any slice
// derived from a collection refers to feature i.
type Collection []Feature

// Clone deep-copies the collection so request-time enrichment never touches
// the cached source.
func (c Collection) Clone() Collection {
	out := make(Collection, len(c))
	for i, f := range c {
		out[i] = f.Clone()
	}
	return out
}

// Column extracts one property across the collection in order. Missing
// properties read as 0.
func (c Collection) Column(name string) []float64 {
	out := make([]float64, len(c))
	for i, f := range c {
		out[i] = f.Value(name)
	}
	return out
}

// HasAll reports whether every feature carries the named property.
func (c Collection) HasAll(name string) bool {
	for _, f := range c {
		if _, ok := f.Get(name); !ok {
			return false
		}
	}
	return true
}

// Matrix builds the aligned [temp, ndvi, density] feature matrix, carrying
// any stored vulnerability for pass-through scoring.
func (c Collection) Matrix() FeatureMatrix {
	m := FeatureMatrix{
		Temp:    c.Column(PropTemp),
		NDVI:    c.Column(PropNDVI),
		Density: c.Column(PropDensity),
	}
	if c.HasAll(PropVulnerability) {
		m.Vulnerability = c.Column(PropVulnerability)
	}
	return m
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
