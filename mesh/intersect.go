package mesh

import (
	"math"

	"github.com/notargets/meshoverlap/geometry"
	"gonum.org/v1/gonum/spatial/r3"
)

// IntersectWithCell reports whether the two convex cells share at least one
// point once each is offset by its Inflate amount. selfBox and otherBox are
// the bounds of c and other, as GetBounds gives them. Cells that only touch
// count as intersecting, callers shrink both cells first when contact should
// not count.
func (c *Cell) IntersectWithCell(other *Cell, selfBox, otherBox geometry.Box) bool {
	if !selfBox.Intersects(otherBox) {
		return false
	}
	for _, axis := range separatingAxes(c, other) {
		minA, maxA := project(c.Points, axis)
		minB, maxB := project(other.Points, axis)
		minA, maxA = offsetInterval(minA, maxA, c.offset)
		minB, maxB = offsetInterval(minB, maxB, other.offset)
		if maxA < minB || maxB < minA {
			return false
		}
	}
	return true
}

// offsetInterval widens a projected interval by delta at both ends. A
// negative delta past half the width collapses it to its midpoint.
func offsetInterval(lo, hi, delta float64) (float64, float64) {
	if hi-lo < -2*delta {
		mid := 0.5 * (lo + hi)
		return mid, mid
	}
	return lo - delta, hi + delta
}

func project(points []r3.Vec, axis r3.Vec) (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, pt := range points {
		d := r3.Dot(pt, axis)
		lo, hi = math.Min(lo, d), math.Max(hi, d)
	}
	return
}

// separatingAxes lists the facet normals of the Minkowski difference of a and
// b. Flat and lower dimensional cells need in-plane and point-to-line axes on
// top of the face normals and edge cross products.
func separatingAxes(a, b *Cell) (axes []r3.Vec) {
	var (
		nA, nB     = a.FaceNormals(), b.FaceNormals()
		eA, eB     = a.EdgeVectors(), b.EdgeVectors()
		dimA, dimB = a.Shape().Dimension, b.Shape().Dimension
		normals    []r3.Vec
	)
	add := func(v r3.Vec) {
		n := r3.Norm(v)
		if n > 0 && !math.IsInf(n, 0) && !math.IsNaN(n) {
			axes = append(axes, r3.Scale(1/n, v))
		}
	}
	normals = append(normals, nA...)
	normals = append(normals, nB...)
	for _, ea := range eA {
		for _, eb := range eB {
			normals = append(normals, r3.Cross(ea, eb))
		}
	}
	for _, n := range normals {
		add(n)
	}
	if dimA == 3 && dimB == 3 {
		return
	}
	edges := append(append([]r3.Vec{}, eA...), eB...)
	for _, n := range normals {
		for _, e := range edges {
			add(r3.Cross(n, e))
		}
	}
	if dimA > 1 && dimB > 1 {
		return
	}
	for _, e := range edges {
		add(e)
	}
	addPointLine := func(p, q *Cell) {
		for i, e := range p.EdgeVectors() {
			base := p.Points[p.Shape().Edges[i][0]]
			for _, pt := range q.Points {
				add(r3.Cross(e, r3.Cross(e, r3.Sub(pt, base))))
			}
		}
	}
	addPointLine(a, b)
	addPointLine(b, a)
	if dimA == 0 || dimB == 0 {
		for _, pa := range a.Points {
			for _, pb := range b.Points {
				add(r3.Sub(pb, pa))
			}
		}
	}
	return
}
