// Package domain models heat-vulnerability points and the pure functions that
// score them.
//
// # Inputs
//
// Each point is sampled from two co-registered rasters and one vector layer:
//
//	temp        land-surface temperature in degrees Celsius (Landsat LST)
//	ndvi        normalized difference vegetation index, [-1, 1]
//	bldDensity  share of a 100 m ground-radius disc covered by building
//	            footprints, [0, 1]
//
// Values outside [-100, 100] C or [-1, 1] are sensor or nodata artifacts and
// the point is dropped rather than clamped. See [CheckTemperature] and
// [CheckNDVI].
//
// # Scoring
//
// Every metric is min-max normalized over the whole collection on its own
// ([Normalize]); constant columns become 0.5. The formula is
//
//	vulnerability = w1*temp - w2*ndvi + w3*bldDensity
//
// over normalized inputs, with default weights (0.6, 0.2, 0.2). Weights need
// not sum to 1, so scores may leave [0, 1]; nothing here clamps them.
// A trained [Regressor] replaces the formula when one is loaded and is called
// once per collection, never per point. [ScorerChain] fixes the fallback
// order: model, formula, stored score.
//
// # Derived metrics
//
// AQI, population, and health risk are visual heuristics, not measurements.
// They are recomputed on every request from a generator seeded with a fixed
// value so the map renders identically on every load:
//
//	aqi          base + 100*bldDensity - 80*ndvi + U{-15..15}, clamped [20, 500]
//	pop          commercial/residential split above density 0.3, floor 500
//	health_risk  tiers: aqi > 300 | dense and vulnerable | 5% outbreak | blend
//	             clamped [0.1, 1.0]
//
// The base AQI comes from the next 24 hourly forecast samples, mapping
// category 1..5 to 40, 80, 130, 180, 250. Without a forecast it is 200.
//
// # Planting priority
//
// plantPriority = vulnerability - score with normalized ndvi raised by a
// fixed delta (default 0.2, capped at 1). Larger values mark places where
// trees would lower the score most. See [ComputePriorities].
package domain
