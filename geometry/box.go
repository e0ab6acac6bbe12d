package geometry

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"
)

// Box is an axis aligned bounding box. A Box with Min > Max on any axis is
// empty and intersects nothing.
type Box struct {
	Min r3.Vec
	Max r3.Vec
}

func EmptyBox() Box {
	return Box{
		Min: r3.Vec{X: math.Inf(1), Y: math.Inf(1), Z: math.Inf(1)},
		Max: r3.Vec{X: math.Inf(-1), Y: math.Inf(-1), Z: math.Inf(-1)},
	}
}

func NewBoundingBox(points []r3.Vec) (box Box) {
	box = EmptyBox()
	for _, pt := range points {
		box.AddPoint(pt)
	}
	return
}

func (b Box) IsEmpty() bool {
	return b.Min.X > b.Max.X || b.Min.Y > b.Max.Y || b.Min.Z > b.Max.Z
}

func (b *Box) AddPoint(pt r3.Vec) {
	b.Min.X, b.Max.X = math.Min(b.Min.X, pt.X), math.Max(b.Max.X, pt.X)
	b.Min.Y, b.Max.Y = math.Min(b.Min.Y, pt.Y), math.Max(b.Max.Y, pt.Y)
	b.Min.Z, b.Max.Z = math.Min(b.Min.Z, pt.Z), math.Max(b.Max.Z, pt.Z)
}

func (b *Box) Grow(other Box) {
	if other.IsEmpty() {
		return
	}
	b.AddPoint(other.Min)
	b.AddPoint(other.Max)
}

// Inflate moves every face of the box outward by delta, a negative delta
// shrinks it. An axis shrunk past zero width collapses to its midpoint.
func (b Box) Inflate(delta float64) (out Box) {
	out = b
	for i := 0; i < 3; i++ {
		lo, hi := Axis(b.Min, i)-delta, Axis(b.Max, i)+delta
		if lo > hi {
			mid := 0.5 * (Axis(b.Min, i) + Axis(b.Max, i))
			lo, hi = mid, mid
		}
		SetAxis(&out.Min, i, lo)
		SetAxis(&out.Max, i, hi)
	}
	return
}

func (b Box) Center() r3.Vec {
	return r3.Scale(0.5, r3.Add(b.Min, b.Max))
}

func (b Box) Size() r3.Vec {
	return r3.Sub(b.Max, b.Min)
}

func (b Box) DiagonalLength() float64 {
	if b.IsEmpty() {
		return 0
	}
	return r3.Norm(b.Size())
}

// Intersects is inclusive: boxes sharing only a face intersect.
func (b Box) Intersects(other Box) bool {
	if b.IsEmpty() || other.IsEmpty() {
		return false
	}
	return b.Min.X <= other.Max.X && other.Min.X <= b.Max.X &&
		b.Min.Y <= other.Max.Y && other.Min.Y <= b.Max.Y &&
		b.Min.Z <= other.Max.Z && other.Min.Z <= b.Max.Z
}

func (b Box) ContainsPoint(pt r3.Vec) (within bool) {
	for i := 0; i < 3; i++ {
		if Axis(pt, i) > Axis(b.Max, i) || Axis(pt, i) < Axis(b.Min, i) {
			return false
		}
	}
	return true
}

// Distance2ToPoint is zero for points inside the box.
func (b Box) Distance2ToPoint(pt r3.Vec) (dist2 float64) {
	var d float64
	for i := 0; i < 3; i++ {
		x := Axis(pt, i)
		switch {
		case x < Axis(b.Min, i):
			d = Axis(b.Min, i) - x
		case x > Axis(b.Max, i):
			d = x - Axis(b.Max, i)
		default:
			d = 0
		}
		dist2 += d * d
	}
	return
}

// MaxMagnitude is the largest absolute coordinate value of the box corners.
func (b Box) MaxMagnitude() float64 {
	if b.IsEmpty() {
		return 0
	}
	return math.Max(
		floats.Max([]float64{math.Abs(b.Min.X), math.Abs(b.Min.Y), math.Abs(b.Min.Z)}),
		floats.Max([]float64{math.Abs(b.Max.X), math.Abs(b.Max.Y), math.Abs(b.Max.Z)}))
}

func Axis(v r3.Vec, i int) float64 {
	switch i {
	case 0:
		return v.X
	case 1:
		return v.Y
	case 2:
		return v.Z
	}
	panic("axis index out of range")
}

func SetAxis(v *r3.Vec, i int, val float64) {
	switch i {
	case 0:
		v.X = val
	case 1:
		v.Y = val
	case 2:
		v.Z = val
	default:
		panic("axis index out of range")
	}
}
