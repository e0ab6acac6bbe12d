package geometry

import (
	"math"
)

const (
	MachineEpsilon = 2.220446049250313e-16
	MinNormal      = 2.2250738585072014e-308
)

// RelativeEpsilon scales the comparison tolerance to the magnitude of the
// coordinates inside box.
func RelativeEpsilon(box Box) (eps float64) {
	eps = 100 * math.Max(math.Sqrt(MinNormal), MachineEpsilon*box.MaxMagnitude())
	return
}

// PadBounds pads every axis by padding, and opens any axis of zero width so
// a uniform subdivision produces buckets of positive size. Only the first
// dims axes are considered.
func PadBounds(box Box, padding float64, dims int) (out Box) {
	var (
		maxLen float64
		size   = box.Size()
	)
	out = box
	for i := 0; i < dims; i++ {
		maxLen = math.Max(maxLen, Axis(size, i))
	}
	for i := 0; i < dims; i++ {
		lo, hi := Axis(box.Min, i)-padding, Axis(box.Max, i)+padding
		if hi <= lo {
			delta := 0.5
			if maxLen > 0 {
				delta = 0.005 * maxLen
			}
			mid := 0.5 * (lo + hi)
			lo, hi = mid-delta, mid+delta
		}
		SetAxis(&out.Min, i, lo)
		SetAxis(&out.Max, i, hi)
	}
	return
}

// ComputeDivisions sizes a uniform grid over box so that each bucket holds
// about pointsPerBucket of numPoints, with at most maxBuckets buckets. Axes
// beyond dims get a single division.
func ComputeDivisions(box Box, dims, numPoints, pointsPerBucket, maxBuckets int) (divs [3]int) {
	var (
		numBuckets float64
		volume     = 1.0
		size       = box.Size()
	)
	divs = [3]int{1, 1, 1}
	if pointsPerBucket < 1 {
		pointsPerBucket = 1
	}
	numBuckets = math.Ceil(float64(numPoints) / float64(pointsPerBucket))
	if maxBuckets > 0 {
		numBuckets = math.Min(numBuckets, float64(maxBuckets))
	}
	numBuckets = math.Max(numBuckets, 1)
	for i := 0; i < dims; i++ {
		volume *= Axis(size, i)
	}
	if volume <= 0 {
		return
	}
	f := math.Pow(numBuckets/volume, 1/float64(dims))
	for i := 0; i < dims; i++ {
		divs[i] = int(Axis(size, i) * f)
		if divs[i] < 1 {
			divs[i] = 1
		}
	}
	return
}
