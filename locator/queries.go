package locator

import (
	"cmp"
	"math"
	"slices"

	"gonum.org/v1/gonum/spatial/r3"
)

type neighbor struct {
	id    int
	dist2 float64
}

func compareNeighbors(a, b neighbor) int {
	if c := cmp.Compare(a.dist2, b.dist2); c != 0 {
		return c
	}
	return cmp.Compare(a.id, b.id)
}

// FindClosestPoint returns the id of the point closest to x, the smaller id
// on ties, or -1 when there is nothing to search.
func (bg *BucketGrid) FindClosestPoint(x r3.Vec) (closest int) {
	closest = -1
	if !bg.built {
		return
	}
	var (
		ij       = bg.GetBucketIndices(x)
		minDist2 = math.Inf(1)
		maxLevel = bg.maxLevel(ij)
		level    int
	)
	visit := func(ijk [3]int) {
		for _, t := range bg.bucketTuples(bg.bucketID(ijk)) {
			d2 := bg.distance2(x, bg.points[t.PtID])
			if d2 < minDist2 || (d2 == minDist2 && t.PtID < closest) {
				minDist2, closest = d2, t.PtID
			}
		}
	}
	// Walk rings outward until something is found
	for ; closest == -1 && level <= maxLevel; level++ {
		bg.forEachRingBucket(ij, level, visit)
	}
	if closest == -1 {
		return
	}
	// Points in outer rings can still be closer than the first hit
	bg.forEachBucketInRange(x, math.Sqrt(minDist2), func(ijk [3]int) {
		if bg.chebyshev(ij, ijk) < level || bg.Distance2ToBucket(x, ijk) > minDist2 {
			return
		}
		visit(ijk)
	})
	return
}

// FindClosestPointWithinRadius returns the closest point within radius of x
// and its squared distance, or (-1, -1) when there is none.
func (bg *BucketGrid) FindClosestPointWithinRadius(radius float64, x r3.Vec) (closest int, dist2 float64) {
	closest, dist2 = -1, -1
	if !bg.built || radius < 0 || math.IsNaN(radius) {
		return
	}
	var (
		r2       = radius * radius
		minDist2 = math.Inf(1)
	)
	bg.forEachBucketInRange(x, radius, func(ijk [3]int) {
		if bg.Distance2ToBucket(x, ijk) > r2 {
			return
		}
		for _, t := range bg.bucketTuples(bg.bucketID(ijk)) {
			d2 := bg.distance2(x, bg.points[t.PtID])
			if d2 > r2 {
				continue
			}
			if d2 < minDist2 || (d2 == minDist2 && t.PtID < closest) {
				minDist2, closest = d2, t.PtID
			}
		}
	})
	if closest != -1 {
		dist2 = minDist2
	}
	return
}

// FindPointsWithinRadius appends to buf[:0] the ids of every point within
// radius of x, in no particular order.
func (bg *BucketGrid) FindPointsWithinRadius(radius float64, x r3.Vec, buf []int) (ids []int) {
	ids = buf[:0]
	if !bg.built || radius < 0 || math.IsNaN(radius) {
		return
	}
	r2 := radius * radius
	bg.forEachBucketInRange(x, radius, func(ijk [3]int) {
		if bg.Distance2ToBucket(x, ijk) > r2 {
			return
		}
		for _, t := range bg.bucketTuples(bg.bucketID(ijk)) {
			if bg.distance2(x, bg.points[t.PtID]) <= r2 {
				ids = append(ids, t.PtID)
			}
		}
	})
	return
}

// closestN gathers at least n candidates ring by ring, then completes the set
// with every point no farther than the n-th candidate.
func (bg *BucketGrid) closestN(n int, x r3.Vec) (found []neighbor) {
	if !bg.built || n < 1 {
		return
	}
	n = min(n, len(bg.points))
	var (
		ij       = bg.GetBucketIndices(x)
		maxLevel = bg.maxLevel(ij)
		level    int
	)
	visit := func(ijk [3]int) {
		for _, t := range bg.bucketTuples(bg.bucketID(ijk)) {
			found = append(found, neighbor{id: t.PtID, dist2: bg.distance2(x, bg.points[t.PtID])})
		}
	}
	for ; len(found) < n && level <= maxLevel; level++ {
		bg.forEachRingBucket(ij, level, visit)
	}
	slices.SortFunc(found, compareNeighbors)
	maxDist2 := found[n-1].dist2
	bg.forEachBucketInRange(x, math.Sqrt(maxDist2), func(ijk [3]int) {
		if bg.chebyshev(ij, ijk) < level || bg.Distance2ToBucket(x, ijk) > maxDist2 {
			return
		}
		for _, t := range bg.bucketTuples(bg.bucketID(ijk)) {
			if d2 := bg.distance2(x, bg.points[t.PtID]); d2 <= maxDist2 {
				found = append(found, neighbor{id: t.PtID, dist2: d2})
			}
		}
	})
	slices.SortFunc(found, compareNeighbors)
	// Keep the n closest plus anything tied with the n-th
	cut := n
	for cut < len(found) && found[cut].dist2 <= maxDist2 {
		cut++
	}
	found = found[:cut]
	return
}

// FindClosestNPoints returns the n points closest to x, closest first with
// ties broken by id. Fewer are returned when the locator holds fewer points.
func (bg *BucketGrid) FindClosestNPoints(n int, x r3.Vec) (ids []int) {
	found := bg.closestN(n, x)
	n = min(n, len(found))
	for _, nb := range found[:max(n, 0)] {
		ids = append(ids, nb.id)
	}
	return
}

// FindCloseNBoundedPoints returns the n closest points plus every point tied
// with the n-th one, and the distance to the farthest returned point.
func (bg *BucketGrid) FindCloseNBoundedPoints(n int, x r3.Vec) (ids []int, radius float64) {
	found := bg.closestN(n, x)
	if len(found) == 0 {
		return
	}
	for _, nb := range found {
		ids = append(ids, nb.id)
	}
	radius = math.Sqrt(found[len(found)-1].dist2)
	return
}

// MergePoints maps every point onto the point it duplicates. With tol <= 0
// only exactly coincident points merge, otherwise each unmerged point in id
// order absorbs the unmerged points within tol that come after it. The
// result maps each id to itself or to a smaller id.
func (bg *BucketGrid) MergePoints(tol float64) (mergeMap []int) {
	if !bg.built {
		return
	}
	mergeMap = make([]int, len(bg.points))
	for i := range mergeMap {
		mergeMap[i] = -1
	}
	if tol <= 0 {
		for b := 0; b < bg.numBuckets; b++ {
			tuples := bg.bucketTuples(b)
			for i, ti := range tuples {
				if mergeMap[ti.PtID] >= 0 {
					continue
				}
				mergeMap[ti.PtID] = ti.PtID
				for _, tj := range tuples[i+1:] {
					if mergeMap[tj.PtID] < 0 && bg.distance2(bg.points[tj.PtID], bg.points[ti.PtID]) == 0 {
						mergeMap[tj.PtID] = ti.PtID
					}
				}
			}
		}
		return
	}
	var buf []int
	for id := range bg.points {
		if mergeMap[id] >= 0 {
			continue
		}
		mergeMap[id] = id
		buf = bg.FindPointsWithinRadius(tol, bg.points[id], buf)
		for _, nb := range buf {
			if nb > id && mergeMap[nb] < 0 {
				mergeMap[nb] = id
			}
		}
	}
	return
}
