package geometry

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

type Sphere struct {
	Center  r3.Vec
	Radius2 float64
}

func (s Sphere) Radius() float64 {
	if s.Radius2 <= 0 {
		return 0
	}
	return math.Sqrt(s.Radius2)
}

// IsDegenerate is true for spheres that can not be used as a range query:
// zero or negative radius, or any non finite value.
func (s Sphere) IsDegenerate() bool {
	if math.IsNaN(s.Radius2) || math.IsInf(s.Radius2, 0) || s.Radius2 <= 0 {
		return true
	}
	for _, x := range []float64{s.Center.X, s.Center.Y, s.Center.Z} {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return true
		}
	}
	return false
}

func (s Sphere) ContainsPoint(pt r3.Vec) bool {
	return r3.Norm2(r3.Sub(pt, s.Center)) <= s.Radius2
}

func (s Sphere) IntersectsBox(box Box) bool {
	if box.IsEmpty() {
		return false
	}
	return box.Distance2ToPoint(s.Center) <= s.Radius2
}

func (s Sphere) Bounds() Box {
	r := s.Radius()
	d := r3.Vec{X: r, Y: r, Z: r}
	return Box{Min: r3.Sub(s.Center, d), Max: r3.Add(s.Center, d)}
}
