package pipeline

import (
	"bytes"
	"context"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/heat-vulnerability/internal/adapter/geojson"
	"github.com/couchcryptid/heat-vulnerability/internal/domain"
	"github.com/couchcryptid/heat-vulnerability/internal/observability"
)

func TestRunPriorities(t *testing.T) {
	src := &memoryStore{c: storedPoints()}
	dst := &memoryStore{}

	c, err := RunPriorities(src, dst, domain.DefaultWeights, 0.2, discardLogger())
	require.NoError(t, err)
	require.Len(t, dst.c, 3)
	assert.True(t, dst.c.HasAll(domain.PropPlantPriority))
	// Stored vulnerability 0.9 at temp 40, ndvi 0.1, density 0.7 is the
	// baseline; greening by 0.2 lowers the formula by w2*0.2.
	last := c[2]
	assert.InDelta(t, 0.9-(0.6*1-0.2*0.2+0.2*1), last.Value(domain.PropPlantPriority), 1e-9)
}

func TestRunPriorities_NoStoredScore(t *testing.T) {
	var bare domain.Collection
	for _, f := range storedPoints() {
		g := domain.NewFeature(f.Lon(), f.Lat())
		g.Set(domain.PropTemp, f.Value(domain.PropTemp))
		g.Set(domain.PropNDVI, f.Value(domain.PropNDVI))
		g.Set(domain.PropDensity, f.Value(domain.PropDensity))
		bare = append(bare, g)
	}

	c, err := RunPriorities(&memoryStore{c: bare}, &memoryStore{}, domain.DefaultWeights, 0.2, discardLogger())
	require.NoError(t, err)
	for _, f := range c {
		assert.GreaterOrEqual(t, f.Value(domain.PropPlantPriority), 0.0)
	}
}

func TestRunPriorities_MissingSource(t *testing.T) {
	dst := &memoryStore{}
	_, err := RunPriorities(&memoryStore{}, dst, domain.DefaultWeights, 0.2, discardLogger())
	require.ErrorIs(t, err, domain.ErrDataNotFound)
	assert.Zero(t, dst.writes)
}

func TestValidate(t *testing.T) {
	good := storedPoints()
	phases := Validate(good, [4]float64{77, 28, 78, 29}, false)
	require.Len(t, phases, 3)
	for _, p := range phases {
		assert.True(t, p.Passed(), "%s: %v", p.Name, p.Errors)
	}

	bad := storedPoints()
	bad = append(bad, domain.NewFeature(80, 28.5))
	bad[0].Set(domain.PropVulnerability, math.NaN())
	bad[1].Set(domain.PropDensity, 1.5)
	phases = Validate(bad, [4]float64{77, 28, 78, 29}, true)
	require.Len(t, phases, 4)
	for _, p := range phases {
		assert.False(t, p.Passed(), p.Name)
	}

	var buf bytes.Buffer
	assert.False(t, Report(&buf, phases, len(bad)))
	assert.Contains(t, buf.String(), "Validation FAILED.")
	assert.Contains(t, buf.String(), "outside bbox")
	assert.Contains(t, buf.String(), "Points: 4")
}

func TestValidate_Empty(t *testing.T) {
	phases := Validate(nil, unitBBox, false)
	assert.False(t, phases[0].Passed())
}

func TestReport_AllPassed(t *testing.T) {
	var buf bytes.Buffer
	assert.True(t, Report(&buf, []*Phase{{Name: "ok"}}, 1))
	assert.Contains(t, buf.String(), "All validations passed.")
}

// Generation, priority computation and serving over real files.
func TestEndToEnd_FileBacked(t *testing.T) {
	dir := t.TempDir()
	points := geojson.NewStore(filepath.Join(dir, "vulnerability_points.geojson"))
	prio := geojson.NewStore(filepath.Join(dir, "tree_priority.geojson"))
	w := domain.Weights{W1: 1}

	lst := quadrantGrid(t, 20, 30, 40, 50)
	ndvi := quadrantGrid(t, 0.4, 0.3, 0.2, 0.1)
	g := NewGenerator(lst, ndvi, constDensity(0), formulaChain(w), points, nil,
		GenerateOptions{BBox: unitBBox, Points: 100, Seed: 9, RadiusM: 100},
		observability.NewMetricsForTesting(), discardLogger())
	_, err := g.Run(context.Background())
	require.NoError(t, err)

	_, err = RunPriorities(points, prio, w, 0.2, discardLogger())
	require.NoError(t, err)

	e := NewEnricher(points, prio, EnrichOptions{Chain: domain.ScorerChain(nil, &w), Seed: 42},
		observability.NewMetricsForTesting(), discardLogger())
	require.NoError(t, e.CheckReadiness(context.Background()))

	served, err := e.VulnerabilityPoints(context.Background())
	require.NoError(t, err)
	require.Len(t, served, 100)

	var hottest domain.Feature
	best := math.Inf(-1)
	for _, f := range served {
		if v := f.Value(domain.PropVulnerability); v > best {
			best, hottest = v, f
		}
	}
	assert.Equal(t, 50.0, hottest.Value(domain.PropTemp))
	assert.GreaterOrEqual(t, hottest.Lon(), 1.0)
	assert.Less(t, hottest.Lat(), 1.0)

	priorities, err := e.TreePriority(context.Background())
	require.NoError(t, err)
	assert.True(t, priorities.HasAll(domain.PropPlantPriority))

	stored, err := points.Read()
	require.NoError(t, err)
	for _, p := range Validate(stored, unitBBox, false) {
		assert.True(t, p.Passed(), "%s: %v", p.Name, p.Errors)
	}
}
