package domain

import (
	"math"
	"math/rand/v2"
)

// Derived-metric bounds and thresholds.
const (
	AQIMin = 20
	AQIMax = 500

	HealthRiskMin = 0.1
	HealthRiskMax = 1.0

	// HighAQIThreshold is the AQI above which health risk is pinned to the top tier.
	HighAQIThreshold = 300
	// HighAQIRiskFloor is the minimum health risk for points above HighAQIThreshold.
	HighAQIRiskFloor = 0.9

	aqiNoise          = 15
	aqiDensityGain    = 100.0
	aqiVegetationGain = 80.0

	zoningDensity     = 0.3
	commercialShare   = 0.3
	minPopulation     = 500
	riskDensity       = 0.4
	riskVulnerability = 0.6
	outbreakChance    = 0.05
	blendCap          = 0.69
)

// Synthesizer derives AQI, population, and health risk from scored points.
// Every Apply call starts a fresh generator from the same seed, so the same
// collection always yields the same values.
type Synthesizer struct {
	seed uint64
}

// NewSynthesizer creates a synthesizer with a fixed seed.
func NewSynthesizer(seed uint64) *Synthesizer {
	return &Synthesizer{seed: seed}
}

// Apply sets aqi, pop and health_risk on every feature in order. baseAQI is
// the city-wide starting value, usually from BaseAQI.
func (s *Synthesizer) Apply(c Collection, baseAQI float64) {
	rng := rand.New(rand.NewPCG(s.seed, 0))
	for _, f := range c {
		density := f.Value(PropDensity)
		ndvi := f.Value(PropNDVI)
		vuln := f.Value(PropVulnerability)

		aqi := airQuality(rng, baseAQI, density, ndvi)
		f.Set(PropAQI, aqi)
		f.Set(PropPopulation, population(rng, density))
		f.Set(PropHealthRisk, healthRisk(rng, aqi, density, vuln))
	}
}

func airQuality(rng *rand.Rand, base, density, ndvi float64) float64 {
	noise := float64(rng.IntN(2*aqiNoise+1) - aqiNoise)
	v := base + aqiDensityGain*density - aqiVegetationGain*ndvi + noise
	return clamp(math.Round(v), AQIMin, AQIMax)
}

func population(rng *rand.Rand, density float64) float64 {
	var pop float64
	if density > zoningDensity {
		if rng.Float64() < commercialShare {
			pop = 2000 + float64(rng.IntN(3001))
		} else {
			pop = 15000 + 40000*density + float64(rng.IntN(10001))
		}
	} else {
		pop = 5000 + float64(rng.IntN(5001))
	}
	return math.Max(minPopulation, math.Round(pop))
}

func healthRisk(rng *rand.Rand, aqi, density, vuln float64) float64 {
	var risk float64
	switch {
	case aqi > HighAQIThreshold:
		risk = HighAQIRiskFloor + 0.1*rng.Float64()
	case density > riskDensity && vuln > riskVulnerability:
		risk = 0.7 + 0.2*rng.Float64()
	case rng.Float64() < outbreakChance:
		risk = 0.75 + 0.1*rng.Float64()
	default:
		risk = math.Min(blendCap, 0.5*aqi/AQIMax+0.5*clamp(vuln, 0, 1))
	}
	return clamp(risk, HealthRiskMin, HealthRiskMax)
}
