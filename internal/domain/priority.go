package domain

// ComputePriorities sets plantPriority on every feature: the stored
// vulnerability minus the formula score recomputed with normalized NDVI
// raised by delta (capped at 1). Normalization spans the whole collection.
// A feature without a stored vulnerability is compared against the formula
// score at its current NDVI.
func ComputePriorities(c Collection, w Weights, delta float64) {
	nT := Normalize(c.Column(PropTemp))
	nN := Normalize(c.Column(PropNDVI))
	nB := Normalize(c.Column(PropDensity))

	for i, f := range c {
		v0, ok := f.Get(PropVulnerability)
		if !ok {
			v0 = w.Apply(nT[i], nN[i], nB[i])
		}
		greener := min(nN[i]+delta, 1)
		v1 := w.Apply(nT[i], greener, nB[i])
		f.Set(PropPlantPriority, v0-v1)
	}
}
