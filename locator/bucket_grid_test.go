package locator

import (
	"math"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/kdtree"
	"gonum.org/v1/gonum/spatial/r3"
)

func randomPoints(rng *rand.Rand, n int, flat bool) (pts []r3.Vec) {
	for i := 0; i < n; i++ {
		pt := r3.Vec{X: rng.Float64()*10 - 5, Y: rng.Float64() * 3, Z: rng.Float64() * 7}
		if flat {
			pt.Z = 0
		}
		pts = append(pts, pt)
	}
	return
}

type bruteForce struct {
	dims   int
	points []r3.Vec
}

func (bf bruteForce) dist2(a, b r3.Vec) float64 {
	d := r3.Sub(a, b)
	if bf.dims == 2 {
		d.Z = 0
	}
	return r3.Norm2(d)
}

func (bf bruteForce) sorted(x r3.Vec) (nbs []neighbor) {
	for id, pt := range bf.points {
		nbs = append(nbs, neighbor{id: id, dist2: bf.dist2(x, pt)})
	}
	sort.Slice(nbs, func(i, j int) bool { return compareNeighbors(nbs[i], nbs[j]) < 0 })
	return
}

func (bf bruteForce) within(r float64, x r3.Vec) (ids []int) {
	for id, pt := range bf.points {
		if bf.dist2(x, pt) <= r*r {
			ids = append(ids, id)
		}
	}
	return
}

func TestBucketGridBuild(t *testing.T) {
	var (
		rng = rand.New(rand.NewSource(1))
		pts = randomPoints(rng, 1000, false)
	)
	for _, bg := range []*BucketGrid{NewBucketGrid2D(), NewBucketGrid3D()} {
		bg.Build(pts, 0)
		require.True(t, bg.IsBuilt())
		var total int
		for b := 0; b < bg.NumberOfBuckets(); b++ {
			ids := bg.GetBucketIDs(b)
			assert.Len(t, ids, bg.GetNumberOfPointsInBucket(b))
			assert.True(t, sort.IntsAreSorted(ids))
			for _, id := range ids {
				assert.Equal(t, b, bg.GetBucketIndex(pts[id]))
			}
			total += len(ids)
		}
		assert.Equal(t, len(pts), total)
		// Target occupancy sets the bucket count
		assert.LessOrEqual(t, bg.NumberOfBuckets(), 200)
		assert.Greater(t, bg.NumberOfBuckets(), 50)
		divs, h, size := bg.GetDivisions(), bg.Spacing(), bg.Bounds().Size()
		assert.InDelta(t, size.X, float64(divs[0])*h.X, 1e-12)
		assert.InDelta(t, size.Y, float64(divs[1])*h.Y, 1e-12)
		assert.Equal(t, 0, bg.GetNumberOfPointsInBucket(-1))
		assert.Equal(t, 0, bg.GetNumberOfPointsInBucket(bg.NumberOfBuckets()))

		bg.Initialize()
		assert.False(t, bg.IsBuilt())
		assert.Equal(t, -1, bg.FindClosestPoint(pts[0]))
		bg.BuildLocator()
		assert.True(t, bg.IsBuilt())
		assert.Equal(t, 0, bg.FindClosestPoint(pts[0]))
	}
	assert.Equal(t, 2, NewBucketGrid2D().Dimension())
	{ // Worker count does not change the index
		serial, parallel := NewBucketGrid3D(), NewBucketGrid3D()
		serial.ParallelDegree = 1
		parallel.ParallelDegree = 13
		serial.Build(pts, 0.1)
		parallel.Build(pts, 0.1)
		require.Equal(t, serial.NumberOfBuckets(), parallel.NumberOfBuckets())
		for b := 0; b < serial.NumberOfBuckets(); b++ {
			assert.Equal(t, serial.GetBucketIDs(b), parallel.GetBucketIDs(b))
		}
	}
	{ // Manual divisions are clamped to at least one
		bg := NewBucketGrid2D()
		bg.Automatic = false
		bg.Divisions = [3]int{0, 3, 7}
		bg.Build(pts, 0)
		assert.Equal(t, [3]int{1, 3, 1}, bg.GetDivisions())
		assert.Equal(t, 3, bg.NumberOfBuckets())
		bg.Divisions = [3]int{100, 100, 100}
		bg.MaxNumberOfBuckets = 50
		bg.BuildLocator()
		assert.LessOrEqual(t, bg.NumberOfBuckets(), 50)
	}
	{ // Indices clamp into the grid
		bg := NewBucketGrid3D()
		bg.Build(pts, 0)
		divs := bg.GetDivisions()
		assert.Equal(t, [3]int{0, 0, 0}, bg.GetBucketIndices(r3.Vec{X: -100, Y: -100, Z: -100}))
		assert.Equal(t, [3]int{divs[0] - 1, divs[1] - 1, divs[2] - 1}, bg.GetBucketIndices(r3.Vec{X: 100, Y: 100, Z: 100}))
		assert.Equal(t, [3]int{0, 0, 0}, bg.GetBucketIndices(r3.Vec{X: math.NaN()}))
	}
	{ // Empty and degenerate inputs
		bg := NewBucketGrid2D()
		bg.Build(nil, 0)
		assert.False(t, bg.IsBuilt())
		assert.Equal(t, -1, bg.FindClosestPoint(r3.Vec{}))
		id, d2 := bg.FindClosestPointWithinRadius(1, r3.Vec{})
		assert.Equal(t, -1, id)
		assert.Equal(t, -1., d2)
		assert.Nil(t, bg.FindClosestNPoints(3, r3.Vec{}))
		assert.Nil(t, bg.MergePoints(0))
		assert.Empty(t, bg.FindPointsWithinRadius(1, r3.Vec{}, nil))

		same := []r3.Vec{{X: 1, Y: 1}, {X: 1, Y: 1}, {X: 1, Y: 1}}
		bg.Build(same, 0)
		require.True(t, bg.IsBuilt())
		assert.Equal(t, 0, bg.FindClosestPoint(r3.Vec{X: 7}))
		assert.Equal(t, []int{0, 1}, bg.FindClosestNPoints(2, r3.Vec{}))
	}
}

func TestBucketGridQueries(t *testing.T) {
	var (
		rng = rand.New(rand.NewSource(7))
	)
	for _, dims := range []int{2, 3} {
		var (
			pts = randomPoints(rng, 700, false)
			bf  = bruteForce{dims: dims, points: pts}
			bg  = newBucketGrid(dims)
			buf []int
		)
		bg.Build(pts, 0.01)
		for q := 0; q < 300; q++ {
			// Queries reach past the bounds on every side
			x := r3.Vec{X: rng.Float64()*14 - 7, Y: rng.Float64()*5 - 1, Z: rng.Float64()*9 - 1}
			ref := bf.sorted(x)

			closest := bg.FindClosestPoint(x)
			assert.Equal(t, ref[0].id, closest, "dims %d query %v", dims, x)

			r := rng.Float64() * 0.6
			id, d2 := bg.FindClosestPointWithinRadius(r, x)
			if ref[0].dist2 <= r*r {
				assert.Equal(t, ref[0].id, id)
				assert.Equal(t, ref[0].dist2, d2)
			} else {
				assert.Equal(t, -1, id)
				assert.Equal(t, -1., d2)
			}

			buf = bg.FindPointsWithinRadius(r, x, buf)
			got := append([]int(nil), buf...)
			sort.Ints(got)
			assert.Equal(t, bf.within(r, x), nilIfEmpty(got))

			n := 1 + rng.Intn(20)
			var want []int
			for _, nb := range ref[:n] {
				want = append(want, nb.id)
			}
			assert.Equal(t, want, bg.FindClosestNPoints(n, x))
		}
		assert.Len(t, bg.FindClosestNPoints(5000, r3.Vec{}), len(pts))
		assert.Nil(t, bg.FindClosestNPoints(0, r3.Vec{}))
	}
}

func nilIfEmpty(ids []int) []int {
	if len(ids) == 0 {
		return nil
	}
	return ids
}

func TestBucketGridKDTreeOracle(t *testing.T) {
	var (
		rng  = rand.New(rand.NewSource(3))
		pts  = randomPoints(rng, 2000, false)
		kpts = make(kdtree.Points, len(pts))
		bg   = NewBucketGrid3D()
	)
	for i, pt := range pts {
		kpts[i] = kdtree.Point{pt.X, pt.Y, pt.Z}
	}
	tree := kdtree.New(kpts, false)
	bg.Build(pts, 0)
	for q := 0; q < 500; q++ {
		x := r3.Vec{X: rng.Float64()*12 - 6, Y: rng.Float64()*4 - 0.5, Z: rng.Float64()*8 - 0.5}
		_, kd2 := tree.Nearest(kdtree.Point{x.X, x.Y, x.Z})
		id := bg.FindClosestPoint(x)
		require.NotEqual(t, -1, id)
		assert.InDelta(t, kd2, r3.Norm2(r3.Sub(x, pts[id])), 1e-12)
	}
}

func TestBucketGrid2DIgnoresZ(t *testing.T) {
	var (
		pts = []r3.Vec{{X: 0, Y: 0, Z: 50}, {X: 1, Y: 0, Z: 0}, {X: 0, Y: 1, Z: -50}}
		bg  = NewBucketGrid2D()
	)
	bg.Build(pts, 0)
	assert.Equal(t, 0, bg.FindClosestPoint(r3.Vec{X: 0.1, Z: -1000}))
	id, d2 := bg.FindClosestPointWithinRadius(0.5, r3.Vec{Y: 1, Z: 1000})
	assert.Equal(t, 2, id)
	assert.Equal(t, 0., d2)
	assert.Equal(t, 1, bg.GetDivisions()[2])
	// Points differing only in z coincide
	dup := NewBucketGrid2D()
	dup.Build([]r3.Vec{{Z: 1}, {Z: 2}, {X: 1}}, 0)
	assert.Equal(t, []int{0, 0, 2}, dup.MergePoints(0))
}

func TestFindCloseNBoundedPoints(t *testing.T) {
	var (
		pts []r3.Vec
		bg  = NewBucketGrid2D()
	)
	for j := 0; j < 5; j++ {
		for i := 0; i < 5; i++ {
			pts = append(pts, r3.Vec{X: float64(i), Y: float64(j)})
		}
	}
	bg.Build(pts, 0)
	center := 12 // (2,2)
	{
		ids, radius := bg.FindCloseNBoundedPoints(2, pts[center])
		assert.Equal(t, []int{center, 7, 11, 13, 17}, ids)
		assert.Equal(t, 1., radius)
	}
	{
		ids, radius := bg.FindCloseNBoundedPoints(1, pts[center])
		assert.Equal(t, []int{center}, ids)
		assert.Equal(t, 0., radius)
	}
	{ // Only the first n of a tie come back from the plain query
		assert.Equal(t, []int{center, 7, 11}, bg.FindClosestNPoints(3, pts[center]))
	}
	{
		ids, radius := bg.FindCloseNBoundedPoints(0, pts[center])
		assert.Nil(t, ids)
		assert.Equal(t, 0., radius)
	}
}

func TestMergePoints(t *testing.T) {
	{ // Exact duplicates map to the smallest id
		pts := []r3.Vec{
			{X: 1, Y: 2, Z: 3}, {X: 4, Y: 5, Z: 6}, {X: 1, Y: 2, Z: 3},
			{X: 4, Y: 5, Z: 6}, {X: 1, Y: 2, Z: 3.0000001}, {X: 4, Y: 5, Z: 6},
		}
		bg := NewBucketGrid3D()
		bg.Build(pts, 0)
		assert.Equal(t, []int{0, 1, 0, 1, 4, 1}, bg.MergePoints(0))
		assert.Equal(t, []int{0, 1, 0, 1, 4, 1}, bg.MergePoints(-1))
		assert.Equal(t, []int{0, 1, 0, 1, 0, 1}, bg.MergePoints(1e-3))
	}
	{ // Separated clusters collapse onto their smallest id
		var (
			rng      = rand.New(rand.NewSource(11))
			pts      []r3.Vec
			expected []int
			first    = make(map[int]int)
		)
		for i := 0; i < 400; i++ {
			c := rng.Intn(20)
			base := r3.Vec{X: float64(c%5) * 10, Y: float64(c/5) * 10}
			jitter := r3.Vec{X: rng.Float64() * 1e-3, Y: rng.Float64() * 1e-3, Z: rng.Float64() * 1e-3}
			pts = append(pts, r3.Add(base, jitter))
			if _, ok := first[c]; !ok {
				first[c] = i
			}
			expected = append(expected, first[c])
		}
		bg := NewBucketGrid3D()
		bg.Build(pts, 0)
		mm := bg.MergePoints(0.01)
		assert.Equal(t, expected, mm)
		for id, to := range mm {
			assert.LessOrEqual(t, to, id)
		}
	}
}
