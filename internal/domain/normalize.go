package domain

// Normalize min-max scales values onto [0,1], preserving length and order.
// A constant input (including empty and single-element slices) maps every
// value to 0.5. Apply it per metric, never across metrics.
func Normalize(values []float64) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}

	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		lo = min(lo, v)
		hi = max(hi, v)
	}

	span := hi - lo
	if span == 0 || !finite(span) {
		for i := range out {
			out[i] = 0.5
		}
		return out
	}

	for i, v := range values {
		out[i] = (v - lo) / span
	}
	return out
}
