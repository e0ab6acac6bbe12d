package locator

import (
	"cmp"
	"math"
	"runtime"
	"slices"

	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/notargets/meshoverlap/geometry"
	"github.com/notargets/meshoverlap/utils"
	"gonum.org/v1/gonum/spatial/r3"
)

const (
	DefaultPointsPerBucket = 5
	DefaultDivisions       = 50
)

type locatorTuple struct {
	PtID   int
	Bucket int
}

// BucketGrid is a static point locator over a uniform grid of buckets. The
// points are borrowed, not copied: they must not change while the locator is
// in use. A 2D grid ignores z for bucketing and distances.
type BucketGrid struct {
	NumberOfPointsPerBucket int    // target occupancy when Automatic
	MaxNumberOfBuckets      int    // cap on the total bucket count
	Automatic               bool   // size divisions from the point count
	Divisions               [3]int // used when Automatic is false
	ParallelDegree          int    // worker goroutines for the build

	dims       int
	points     []r3.Vec
	padding    float64
	bounds     geometry.Box
	divs       [3]int
	h          [3]float64
	fX         [3]float64
	numBuckets int
	tuples     []locatorTuple // sorted by bucket, then point id
	offsets    []int          // offsets[b]..offsets[b+1] is bucket b in tuples
	built      bool
}

func newBucketGrid(dims int) *BucketGrid {
	return &BucketGrid{
		NumberOfPointsPerBucket: DefaultPointsPerBucket,
		MaxNumberOfBuckets:      math.MaxInt32,
		Automatic:               true,
		Divisions:               [3]int{DefaultDivisions, DefaultDivisions, DefaultDivisions},
		ParallelDegree:          runtime.GOMAXPROCS(0),
		dims:                    dims,
	}
}

func NewBucketGrid2D() *BucketGrid { return newBucketGrid(2) }
func NewBucketGrid3D() *BucketGrid { return newBucketGrid(3) }

func (bg *BucketGrid) Dimension() int { return bg.dims }

// Build indexes points, padding their bounds by boundsPadding on every axis.
func (bg *BucketGrid) Build(points []r3.Vec, boundsPadding float64) {
	bg.points = points
	bg.padding = boundsPadding
	bg.BuildLocator()
}

// Initialize drops the search structure, the borrowed points are kept so
// BuildLocator can rebuild it.
func (bg *BucketGrid) Initialize() {
	bg.tuples = nil
	bg.offsets = nil
	bg.numBuckets = 0
	bg.built = false
}

func (bg *BucketGrid) BuildLocator() {
	bg.Initialize()
	var (
		n = len(bg.points)
	)
	if n == 0 {
		return
	}
	bg.bounds = geometry.PadBounds(geometry.NewBoundingBox(bg.points), bg.padding, bg.dims)
	if bg.Automatic {
		bg.divs = geometry.ComputeDivisions(bg.bounds, bg.dims, n,
			bg.NumberOfPointsPerBucket, bg.MaxNumberOfBuckets)
	} else {
		bg.divs = [3]int{1, 1, 1}
		for i := 0; i < bg.dims; i++ {
			bg.divs[i] = max(1, bg.Divisions[i])
		}
		bg.capDivisions()
	}
	bg.numBuckets = 1
	for i := 0; i < 3; i++ {
		bg.h[i] = geometry.Axis(bg.bounds.Size(), i) / float64(bg.divs[i])
		bg.fX[i] = 0
		if bg.h[i] > 0 {
			bg.fX[i] = 1 / bg.h[i]
		}
		bg.numBuckets *= bg.divs[i]
	}

	// Map points to buckets, each worker owns a contiguous run of tuples
	bg.tuples = make([]locatorTuple, n)
	pm := utils.NewPartitionMap(bg.ParallelDegree, n)
	pm.ParallelRange(func(_, kMin, kMax int) {
		for k := kMin; k < kMax; k++ {
			bg.tuples[k] = locatorTuple{PtID: k, Bucket: bg.GetBucketIndex(bg.points[k])}
		}
	})
	slices.SortFunc(bg.tuples, func(a, b locatorTuple) int {
		if c := cmp.Compare(a.Bucket, b.Bucket); c != 0 {
			return c
		}
		return cmp.Compare(a.PtID, b.PtID)
	})

	bg.offsets = make([]int, bg.numBuckets+1)
	for _, t := range bg.tuples {
		bg.offsets[t.Bucket+1]++
	}
	for b := 0; b < bg.numBuckets; b++ {
		bg.offsets[b+1] += bg.offsets[b]
	}
	bg.built = true

	logs.WithTag("points", n).
		WithTag("dims", bg.dims).
		WithTag("divisions", bg.divs).
		WithTag("buckets", bg.numBuckets).
		Debug("bucket grid built")
}

func (bg *BucketGrid) capDivisions() {
	if bg.MaxNumberOfBuckets <= 0 {
		return
	}
	for bg.divs[0]*bg.divs[1]*bg.divs[2] > bg.MaxNumberOfBuckets {
		largest := 0
		for i := 1; i < 3; i++ {
			if bg.divs[i] > bg.divs[largest] {
				largest = i
			}
		}
		if bg.divs[largest] == 1 {
			return
		}
		bg.divs[largest] = (bg.divs[largest] + 1) / 2
	}
}

func (bg *BucketGrid) IsBuilt() bool { return bg.built }

func (bg *BucketGrid) NumberOfBuckets() int { return bg.numBuckets }

func (bg *BucketGrid) Bounds() geometry.Box { return bg.bounds }

func (bg *BucketGrid) GetDivisions() [3]int { return bg.divs }

// Spacing is the width of a bucket along each axis.
func (bg *BucketGrid) Spacing() r3.Vec {
	return r3.Vec{X: bg.h[0], Y: bg.h[1], Z: bg.h[2]}
}

// GetBucketIndices clamps x into the grid, points outside the bounds map to
// the nearest boundary bucket.
func (bg *BucketGrid) GetBucketIndices(x r3.Vec) (ij [3]int) {
	for i := 0; i < bg.dims; i++ {
		v := (geometry.Axis(x, i) - geometry.Axis(bg.bounds.Min, i)) * bg.fX[i]
		switch {
		case math.IsNaN(v) || v < 0:
			ij[i] = 0
		case v >= float64(bg.divs[i]):
			ij[i] = bg.divs[i] - 1
		default:
			ij[i] = int(v)
		}
	}
	return
}

func (bg *BucketGrid) GetBucketIndex(x r3.Vec) int {
	return bg.bucketID(bg.GetBucketIndices(x))
}

func (bg *BucketGrid) bucketID(ij [3]int) int {
	return ij[0] + bg.divs[0]*(ij[1]+bg.divs[1]*ij[2])
}

func (bg *BucketGrid) GetNumberOfPointsInBucket(bucket int) int {
	if !bg.built || bucket < 0 || bucket >= bg.numBuckets {
		return 0
	}
	return bg.offsets[bucket+1] - bg.offsets[bucket]
}

// GetBucketIDs returns a copy of the point ids in bucket, in ascending order.
func (bg *BucketGrid) GetBucketIDs(bucket int) (ids []int) {
	if bg.GetNumberOfPointsInBucket(bucket) == 0 {
		return
	}
	for _, t := range bg.tuples[bg.offsets[bucket]:bg.offsets[bucket+1]] {
		ids = append(ids, t.PtID)
	}
	return
}

func (bg *BucketGrid) bucketTuples(bucket int) []locatorTuple {
	return bg.tuples[bg.offsets[bucket]:bg.offsets[bucket+1]]
}

func (bg *BucketGrid) distance2(a, b r3.Vec) float64 {
	dx, dy := a.X-b.X, a.Y-b.Y
	if bg.dims == 2 {
		return dx*dx + dy*dy
	}
	dz := a.Z - b.Z
	return dx*dx + dy*dy + dz*dz
}

// Distance2ToBucket is the squared distance from x to the closest point of
// the bucket at ij, zero inside it.
func (bg *BucketGrid) Distance2ToBucket(x r3.Vec, ij [3]int) (dist2 float64) {
	for i := 0; i < bg.dims; i++ {
		var (
			lo = geometry.Axis(bg.bounds.Min, i) + float64(ij[i])*bg.h[i]
			hi = lo + bg.h[i]
			xi = geometry.Axis(x, i)
			d  float64
		)
		switch {
		case xi < lo:
			d = lo - xi
		case xi > hi:
			d = xi - hi
		}
		dist2 += d * d
	}
	return
}

func (bg *BucketGrid) chebyshev(a, b [3]int) (level int) {
	for i := 0; i < bg.dims; i++ {
		d := a[i] - b[i]
		if d < 0 {
			d = -d
		}
		level = max(level, d)
	}
	return
}

// maxLevel is the ring level beyond which no bucket exists around ij.
func (bg *BucketGrid) maxLevel(ij [3]int) (level int) {
	for i := 0; i < bg.dims; i++ {
		level = max(level, ij[i], bg.divs[i]-1-ij[i])
	}
	return
}

// forEachRingBucket visits the buckets whose index differs from ij by exactly
// level along at least one axis.
func (bg *BucketGrid) forEachRingBucket(ij [3]int, level int, fn func(ijk [3]int)) {
	if level == 0 {
		fn(ij)
		return
	}
	var lo, hi [3]int
	for i := 0; i < 3; i++ {
		if i < bg.dims {
			lo[i], hi[i] = ij[i]-level, ij[i]+level
		}
	}
	inGrid := func(i, v int) bool { return v >= 0 && v < bg.divs[i] }
	for k := lo[2]; k <= hi[2]; k++ {
		if !inGrid(2, k) {
			continue
		}
		kEdge := bg.dims == 3 && (k == lo[2] || k == hi[2])
		for j := lo[1]; j <= hi[1]; j++ {
			if !inGrid(1, j) {
				continue
			}
			if kEdge || j == lo[1] || j == hi[1] {
				for i := max(lo[0], 0); i <= min(hi[0], bg.divs[0]-1); i++ {
					fn([3]int{i, j, k})
				}
				continue
			}
			for _, i := range [2]int{lo[0], hi[0]} {
				if inGrid(0, i) {
					fn([3]int{i, j, k})
				}
			}
		}
	}
}

// forEachBucketInRange visits the buckets overlapping the box of half width
// dist around x.
func (bg *BucketGrid) forEachBucketInRange(x r3.Vec, dist float64, fn func(ijk [3]int)) {
	var (
		d      = r3.Vec{X: dist, Y: dist, Z: dist}
		lo, hi = bg.GetBucketIndices(r3.Sub(x, d)), bg.GetBucketIndices(r3.Add(x, d))
	)
	for k := lo[2]; k <= hi[2]; k++ {
		for j := lo[1]; j <= hi[1]; j++ {
			for i := lo[0]; i <= hi[0]; i++ {
				fn([3]int{i, j, k})
			}
		}
	}
}
