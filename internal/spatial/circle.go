package spatial

import (
	"math"

	"github.com/paulmach/orb"
)

// DiscPolygonArea returns the area of the intersection between the disc
// (center, r) and polygon p, in the squared units of the inputs. Holes are
// subtracted; ring winding does not matter.
func DiscPolygonArea(center orb.Point, r float64, p orb.Polygon) float64 {
	if len(p) == 0 || r <= 0 {
		return 0
	}
	area := math.Abs(discRingArea(center, r, p[0]))
	for _, hole := range p[1:] {
		area -= math.Abs(discRingArea(center, r, hole))
	}
	return math.Max(area, 0)
}

// discRingArea is the signed area of disc ∩ ring, summed edge by edge as
// the signed area of disc ∩ triangle(center, a, b).
func discRingArea(center orb.Point, r float64, ring orb.Ring) float64 {
	n := len(ring)
	if n < 3 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		a := ring[i]
		b := ring[(i+1)%n]
		if a == b {
			continue
		}
		sum += edgeArea(
			orb.Point{a[0] - center[0], a[1] - center[1]},
			orb.Point{b[0] - center[0], b[1] - center[1]},
			r,
		)
	}
	return sum
}

// edgeArea is the signed area of the disc of radius r at the origin
// intersected with triangle(origin, a, b).
func edgeArea(a, b orb.Point, r float64) float64 {
	dx, dy := b[0]-a[0], b[1]-a[1]
	qa := dx*dx + dy*dy
	qb := a[0]*dx + a[1]*dy
	qc := a[0]*a[0] + a[1]*a[1] - r*r

	disc := qb*qb - qa*qc
	if disc <= 0 {
		return sector(a, b, r)
	}
	s := math.Sqrt(disc)
	t1 := (-qb - s) / qa
	t2 := (-qb + s) / qa
	if t1 >= 1 || t2 <= 0 {
		return sector(a, b, r)
	}
	t1 = math.Max(t1, 0)
	t2 = math.Min(t2, 1)
	p1 := orb.Point{a[0] + t1*dx, a[1] + t1*dy}
	p2 := orb.Point{a[0] + t2*dx, a[1] + t2*dy}
	return sector(a, p1, r) + cross(p1, p2)/2 + sector(p2, b, r)
}

// sector is the signed area of the circular sector between rays u and v.
func sector(u, v orb.Point, r float64) float64 {
	return r * r / 2 * math.Atan2(cross(u, v), u[0]*v[0]+u[1]*v[1])
}

func cross(u, v orb.Point) float64 {
	return u[0]*v[1] - u[1]*v[0]
}
