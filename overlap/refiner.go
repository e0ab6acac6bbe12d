package overlap

import (
	"fmt"
	"math"
	"slices"

	"github.com/notargets/meshoverlap/geometry"
	"github.com/notargets/meshoverlap/locator"
	"github.com/notargets/meshoverlap/mesh"
	"github.com/notargets/meshoverlap/types"
	"github.com/notargets/meshoverlap/utils"
	"gonum.org/v1/gonum/spatial/r3"
)

// OverlapRefiner runs the exact test between query cells and the cells of a
// local target block. The faces of both cells of a pair move inward first,
// so cells sharing a face, edge or point do not count as overlapping and
// overlaps thinner than Tolerance are ignored.
type OverlapRefiner struct {
	Tolerance               float64
	NumberOfPointsPerBucket int
	ParallelDegree          int
}

type RefineStats struct {
	ExactTests     int
	ConfirmedPairs int
	Degenerate     int // query spheres that fell back to a point query
}

func (rs *RefineStats) Add(other RefineStats) {
	rs.ExactTests += other.ExactTests
	rs.ConfirmedPairs += other.ConfirmedPairs
	rs.Degenerate += other.Degenerate
}

// RefineTarget is a block indexed for refinement: a 3D grid over its sphere
// centers and a shrunk copy of every valid cell.
type RefineTarget struct {
	block   *Block
	grid    *locator.BucketGrid
	cellIDs []int // grid point id to cell id
	shrunk  []*mesh.Cell
	boxes   []geometry.Box
}

func (r *OverlapRefiner) NewTarget(b *Block) (t *RefineTarget) {
	var (
		bv = b.volumes
		nc = b.Mesh.NumberOfCells()
	)
	t = &RefineTarget{
		block:  b,
		shrunk: make([]*mesh.Cell, nc),
		boxes:  make([]geometry.Box, nc),
	}
	if b.IsEmpty() {
		return
	}
	var centers []r3.Vec
	centers, t.cellIDs = bv.Centers()
	t.grid = locator.NewBucketGrid3D()
	t.grid.NumberOfPointsPerBucket = r.NumberOfPointsPerBucket
	t.grid.ParallelDegree = r.ParallelDegree
	t.grid.Build(centers, 0)

	pm := utils.NewPartitionMap(r.ParallelDegree, nc)
	pm.ParallelRange(func(bn, kMin, kMax int) {
		for k := kMin; k < kMax; k++ {
			if !bv.Valid[k] {
				continue
			}
			t.shrunk[k] = b.Mesh.GetCell(k)
			t.boxes[k] = r.shrink(t.shrunk[k], bv.Boxes[k])
		}
	})
	return
}

// shrink moves every face of c inward, box holds the bounds of c before the
// shrink. It returns the shrunk bounds.
func (r *OverlapRefiner) shrink(c *mesh.Cell, box geometry.Box) geometry.Box {
	c.Inflate(-math.Max(geometry.RelativeEpsilon(box), r.Tolerance/2))
	return c.GetBounds()
}

// Refine tests every query cell against the target block. queryKeys names
// the query cells in collision records.
//
// On a hit the target cell records the query cell, unless the query cell is
// a ghost, and the query side gets the target cell: in the self pass the
// query is the target block itself and is recorded directly, otherwise the
// target cells are returned in hits for the origin block. Ghost target
// cells are never tested.
func (r *OverlapRefiner) Refine(query *mesh.Mesh, queryKeys []types.CellKey, t *RefineTarget, selfPass bool) (hits [][]int, stats RefineStats) {
	var (
		nq     = query.NumberOfCells()
		record = t.block.record
		target = t.block.Mesh
		qbv    *BoundingVolumes
	)
	if len(queryKeys) != nq {
		panic(fmt.Errorf("%d query keys for %d query cells", len(queryKeys), nq))
	}
	if selfPass && query != target {
		panic(fmt.Errorf("self pass of block %d on a foreign mesh", t.block.ID))
	}
	hits = make([][]int, nq)
	if nq == 0 || t.grid == nil {
		return
	}
	if selfPass {
		qbv = t.block.volumes
	} else {
		qbv = NewBoundingVolumeExtractor(r.ParallelDegree).Extract(query)
	}

	pm := utils.NewPartitionMap(r.ParallelDegree, nq)
	partStats := make([]RefineStats, pm.ParallelDegree)
	pm.ParallelRange(func(bn, kMin, kMax int) {
		var (
			buf []int
			st  = &partStats[bn]
		)
		for q := kMin; q < kMax; q++ {
			if !qbv.Valid[q] {
				continue
			}
			qs := qbv.Spheres[q]
			if qs.IsDegenerate() {
				st.Degenerate++
			}
			if buf = t.candidates(qs, buf); len(buf) == 0 {
				continue
			}
			var (
				qCell  *mesh.Cell
				qBox   geometry.Box
				qGhost = query.IsGhost(q)
			)
			if selfPass {
				qCell, qBox = t.shrunk[q], t.boxes[q]
			} else {
				qCell = query.GetCell(q)
				qBox = r.shrink(qCell, qbv.Boxes[q])
			}
			for _, tc := range buf {
				if target.IsGhost(tc) {
					continue
				}
				if selfPass && (tc == q || (tc < q && !qGhost && t.reaches(tc, qs))) {
					continue
				}
				st.ExactTests++
				if qCell.IntersectWithCell(t.shrunk[tc], qBox, t.boxes[tc]) {
					hits[q] = append(hits[q], tc)
				}
			}
			slices.Sort(hits[q])
		}
	})
	for _, st := range partStats {
		stats.Add(st)
	}

	for q, tcs := range hits {
		for _, tc := range tcs {
			stats.ConfirmedPairs++
			if !query.IsGhost(q) {
				record.Add(tc, queryKeys[q])
			}
			if selfPass {
				record.Add(q, types.NewCellKey(t.block.ID, tc))
			}
		}
	}
	return
}

// candidates returns the target cells whose sphere center lies within twice
// the query radius. A degenerate query sphere is reduced to its center,
// matched against every target sphere that contains it.
func (t *RefineTarget) candidates(qs geometry.Sphere, buf []int) []int {
	bv := t.block.volumes
	if !qs.IsDegenerate() {
		buf = t.grid.FindPointsWithinRadius(2*qs.Radius(), qs.Center, buf)
		for i, idx := range buf {
			buf[i] = t.cellIDs[idx]
		}
		return buf
	}
	buf = t.grid.FindPointsWithinRadius(bv.MaxRadius, qs.Center, buf)
	kept := buf[:0]
	for _, idx := range buf {
		if tc := t.cellIDs[idx]; bv.Spheres[tc].ContainsPoint(qs.Center) {
			kept = append(kept, tc)
		}
	}
	return kept
}

// reaches reports whether target cell tc, queried in the same self pass,
// surely finds the cell with sphere qs among its own candidates. Pairs near
// the edge of the search radius, and degenerate spheres, are tested from
// both sides.
func (t *RefineTarget) reaches(tc int, qs geometry.Sphere) bool {
	ts := t.block.volumes.Spheres[tc]
	if ts.IsDegenerate() {
		return false
	}
	R := 2 * ts.Radius()
	return distance2(ts.Center, qs.Center) <= R*R*(1-1e-9)
}

func distance2(a, b r3.Vec) float64 {
	dx, dy, dz := a.X-b.X, a.Y-b.Y, a.Z-b.Z
	return dx*dx + dy*dy + dz*dz
}

// cellKeys names the cells of block, in order.
func cellKeys(block int, cellIDs []int) (keys []types.CellKey) {
	keys = make([]types.CellKey, len(cellIDs))
	for i, id := range cellIDs {
		keys[i] = types.NewCellKey(block, id)
	}
	return
}
