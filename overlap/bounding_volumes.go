package overlap

import (
	"math"

	"github.com/notargets/meshoverlap/geometry"
	"github.com/notargets/meshoverlap/mesh"
	"github.com/notargets/meshoverlap/utils"
	"gonum.org/v1/gonum/spatial/r3"
)

// BoundingVolumes holds one bounding sphere and box per cell of a mesh.
// Cells with non finite coordinates are marked invalid and take no part in
// the search.
type BoundingVolumes struct {
	Spheres    []geometry.Sphere
	Boxes      []geometry.Box
	Valid      []bool
	Bounds     geometry.Box // union of the valid cell boxes
	MaxRadius  float64
	NumValid   int
	Degenerate int // valid cells whose sphere can not be used for a range query
}

// Centers returns the sphere centers of the valid cells with the cell id of
// each entry.
func (bv *BoundingVolumes) Centers() (centers []r3.Vec, cellIDs []int) {
	centers = make([]r3.Vec, 0, bv.NumValid)
	cellIDs = make([]int, 0, bv.NumValid)
	for i, ok := range bv.Valid {
		if ok {
			centers = append(centers, bv.Spheres[i].Center)
			cellIDs = append(cellIDs, i)
		}
	}
	return
}

type BoundingVolumeExtractor struct {
	ParallelDegree int
}

func NewBoundingVolumeExtractor(parallelDegree int) *BoundingVolumeExtractor {
	return &BoundingVolumeExtractor{ParallelDegree: parallelDegree}
}

// Extract computes the volumes of every cell of m, the cells are split over
// ParallelDegree goroutines.
func (bve *BoundingVolumeExtractor) Extract(m *mesh.Mesh) (bv *BoundingVolumes) {
	var (
		nc = m.NumberOfCells()
	)
	bv = &BoundingVolumes{
		Spheres: make([]geometry.Sphere, nc),
		Boxes:   make([]geometry.Box, nc),
		Valid:   make([]bool, nc),
		Bounds:  geometry.EmptyBox(),
	}
	if nc == 0 {
		return
	}
	pm := utils.NewPartitionMap(bve.ParallelDegree, nc)
	pm.ParallelRange(func(bn, kMin, kMax int) {
		for k := kMin; k < kMax; k++ {
			cell := m.GetCell(k)
			if !finitePoints(cell.Points) {
				bv.Boxes[k] = geometry.EmptyBox()
				continue
			}
			bv.Spheres[k] = cell.ComputeBoundingSphere()
			bv.Boxes[k] = cell.GetBounds()
			bv.Valid[k] = true
		}
	})
	for k := 0; k < nc; k++ {
		if !bv.Valid[k] {
			continue
		}
		bv.NumValid++
		bv.Bounds.Grow(bv.Boxes[k])
		if bv.Spheres[k].IsDegenerate() {
			bv.Degenerate++
			continue
		}
		bv.MaxRadius = math.Max(bv.MaxRadius, bv.Spheres[k].Radius())
	}
	return
}

func finitePoints(pts []r3.Vec) bool {
	for _, pt := range pts {
		for _, x := range [3]float64{pt.X, pt.Y, pt.Z} {
			if math.IsNaN(x) || math.IsInf(x, 0) {
				return false
			}
		}
	}
	return true
}
