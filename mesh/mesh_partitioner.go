package mesh

import (
	"math"
	"sort"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/notargets/meshoverlap/geometry"
	"gonum.org/v1/gonum/spatial/r3"
)

// PartitionConfig holds configuration for mesh partitioning
type PartitionConfig struct {
	NumPartitions    int32
	UseVertexWeights bool // weight cells by their compute cost instead of one each
}

// DefaultPartitionConfig returns default partitioning configuration
func DefaultPartitionConfig(nparts int32) *PartitionConfig {
	return &PartitionConfig{
		NumPartitions:    nparts,
		UseVertexWeights: true,
	}
}

// MeshPartitioner splits a mesh into spatially compact blocks by recursive
// coordinate bisection of the cell centroids.
type MeshPartitioner struct {
	mesh   *Mesh
	config *PartitionConfig

	// Cost models
	computeCostModel func(elemType ElementType, numVertices int) int32
	commCostModel    func(faceVertices int, isBoundary bool) int32
}

// NewMeshPartitioner creates a new partitioner for the given mesh
func NewMeshPartitioner(mesh *Mesh, config *PartitionConfig) *MeshPartitioner {
	mp := &MeshPartitioner{
		mesh:   mesh,
		config: config,
	}

	// Default compute cost model, intersection work grows with the number of
	// faces and edges of a cell
	mp.computeCostModel = func(elemType ElementType, numVertices int) int32 {
		baseCost := map[ElementType]int32{
			Vertex:   1,
			Line:     1,
			Triangle: 2,
			Quad:     2,
			Tet:      4,
			Hex:      8,
			Prism:    6,
			Pyramid:  5,
		}
		if cost, ok := baseCost[elemType]; ok {
			return cost
		}
		return int32(numVertices)
	}

	// Default communication cost model
	mp.commCostModel = func(faceVertices int, isBoundary bool) int32 {
		if isBoundary {
			return 0 // No communication across boundaries
		}
		return int32(faceVertices)
	}

	return mp
}

// Partition assigns every cell to a partition in mesh.EToP
func (mp *MeshPartitioner) Partition() error {
	var (
		ne     = mp.mesh.NumberOfCells()
		nparts = int(mp.config.NumPartitions)
	)
	if nparts < 1 {
		return errors.New("number of partitions must be positive").
			WithType(ErrTypeInvalidMesh).
			WithTag("partitions", nparts)
	}
	logs.WithTag("elements", ne).
		WithTag("partitions", nparts).
		Debug("partitioning mesh")

	centroids := make([]r3.Vec, ne)
	weights := make([]int32, ne)
	ids := make([]int, ne)
	for i := 0; i < ne; i++ {
		ids[i] = i
		centroids[i] = mp.mesh.GetCell(i).Centroid()
		weights[i] = 1
		if mp.config.UseVertexWeights {
			weights[i] = mp.computeCostModel(mp.mesh.ElementTypes[i], len(mp.mesh.Elements[i]))
		}
	}
	mp.mesh.EToP = make([]int, ne)
	mp.bisect(ids, centroids, weights, 0, nparts)

	mp.analyzePartition()
	return nil
}

// Assign installs an explicit cell to partition map
func (mp *MeshPartitioner) Assign(parts []int) error {
	if len(parts) != mp.mesh.NumberOfCells() {
		return errors.New("partition map does not cover every cell").
			WithType(ErrTypeInvalidMesh).
			WithTag("parts", len(parts)).
			WithTag("elements", mp.mesh.NumberOfCells())
	}
	for i, p := range parts {
		if p < 0 || p >= int(mp.config.NumPartitions) {
			return errors.New("cell assigned to a missing partition").
				WithType(ErrTypeInvalidMesh).
				WithTag("cell", i).
				WithTag("partition", p)
		}
	}
	mp.mesh.EToP = append([]int(nil), parts...)
	mp.analyzePartition()
	return nil
}

func (mp *MeshPartitioner) bisect(ids []int, centroids []r3.Vec, weights []int32, firstPart, nparts int) {
	if nparts == 1 {
		for _, id := range ids {
			mp.mesh.EToP[id] = firstPart
		}
		return
	}
	var (
		leftParts = nparts / 2
		box       = geometry.EmptyBox()
		axis      int
		total     int64
		split     int
	)
	for _, id := range ids {
		box.AddPoint(centroids[id])
		total += int64(weights[id])
	}
	if len(ids) > 0 {
		size := box.Size()
		for i := 1; i < 3; i++ {
			if geometry.Axis(size, i) > geometry.Axis(size, axis) {
				axis = i
			}
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		ci, cj := geometry.Axis(centroids[ids[i]], axis), geometry.Axis(centroids[ids[j]], axis)
		if ci != cj {
			return ci < cj
		}
		return ids[i] < ids[j]
	})
	var acc int64
	for split < len(ids) && acc*int64(nparts) < total*int64(leftParts) {
		acc += int64(weights[ids[split]])
		split++
	}
	mp.bisect(ids[:split], centroids, weights, firstPart, leftParts)
	mp.bisect(ids[split:], centroids, weights, firstPart+leftParts, nparts-leftParts)
}

// Split copies each partition into its own block. cellMaps[p][i] is the id in
// the partitioned mesh of cell i of block p.
func (mp *MeshPartitioner) Split() (blocks *PartitionedMesh, cellMaps [][]int) {
	blocks = NewPartitionedMesh()
	for p := 0; p < int(mp.config.NumPartitions); p++ {
		sm := ExtractCells(mp.mesh, mp.GetPartitionElements(p), p)
		blocks.Blocks = append(blocks.Blocks, sm.Mesh)
		cellMaps = append(cellMaps, sm.OriginCellIDs)
	}
	return
}

// analyzePartition computes and reports partition quality metrics
func (mp *MeshPartitioner) analyzePartition() (partStats []PartitionStats) {
	nparts := int(mp.config.NumPartitions)
	if mp.mesh.EToE == nil {
		mp.mesh.BuildConnectivity()
	}

	// Initialize partition statistics
	partStats = make([]PartitionStats, nparts)
	for i := range partStats {
		partStats[i].ID = i
		partStats[i].ElementTypes = make(map[ElementType]int)
		partStats[i].NumNeighbors = make(map[int]int)
	}

	// Gather element statistics
	for elem := 0; elem < mp.mesh.NumElements; elem++ {
		part := mp.mesh.EToP[elem]
		stats := &partStats[part]

		stats.NumElements++
		stats.ElementTypes[mp.mesh.ElementTypes[elem]]++

		cost := mp.computeCostModel(
			mp.mesh.ElementTypes[elem],
			len(mp.mesh.Elements[elem]),
		)
		stats.ComputeLoad += int64(cost)
	}

	// Analyze communication
	cutEdges := 0
	commVolume := int64(0)
	interfaceFaces := make(map[[2]int][]int) // [part1,part2] -> face IDs

	for elem := 0; elem < mp.mesh.NumElements; elem++ {
		elemPart := mp.mesh.EToP[elem]

		for faceIdx, neighbor := range mp.mesh.EToE[elem] {
			if neighbor >= 0 && neighbor > elem { // Count each edge once
				neighborPart := mp.mesh.EToP[neighbor]

				if elemPart != neighborPart {
					cutEdges++

					p1, p2 := elemPart, neighborPart
					if p1 > p2 {
						p1, p2 = p2, p1
					}
					faceID := mp.mesh.EToF[elem][faceIdx]
					interfaceFaces[[2]int{p1, p2}] = append(
						interfaceFaces[[2]int{p1, p2}], faceID)

					face := mp.mesh.Faces[faceID]
					commVolume += int64(mp.commCostModel(len(face.Vertices), false))

					partStats[elemPart].NumNeighbors[neighborPart]++
					partStats[neighborPart].NumNeighbors[elemPart]++
				}
			}
		}
	}

	// Compute load imbalance
	avgLoad := float64(0)
	maxLoad := int64(0)
	minLoad := int64(math.MaxInt64)

	for _, stats := range partStats {
		avgLoad += float64(stats.ComputeLoad)
		if stats.ComputeLoad > maxLoad {
			maxLoad = stats.ComputeLoad
		}
		if stats.ComputeLoad < minLoad {
			minLoad = stats.ComputeLoad
		}
	}
	avgLoad /= float64(nparts)

	imbalance := 0.
	if avgLoad > 0 {
		imbalance = float64(maxLoad)/avgLoad - 1.0
	}

	logs.WithTag("cut_faces", cutEdges).
		WithTag("comm_volume", commVolume).
		WithTag("imbalance_pct", math.Round(imbalance*10000)/100).
		WithTag("min_load", minLoad).
		WithTag("max_load", maxLoad).
		WithTag("interfaces", len(interfaceFaces)).
		Debug("partition analysis")
	for _, stats := range partStats {
		logs.WithTag("partition", stats.ID).
			WithTag("elements", stats.NumElements).
			WithTag("compute_load", stats.ComputeLoad).
			WithTag("neighbors", len(stats.NumNeighbors)).
			Debug("partition statistics")
	}
	return
}

// PartitionStats holds statistics for a single partition
type PartitionStats struct {
	ID           int
	NumElements  int
	ComputeLoad  int64
	ElementTypes map[ElementType]int
	NumNeighbors map[int]int // neighbor partition -> shared faces
}

// GetPartitionBoundaryFaces returns all faces on partition boundaries
func (mp *MeshPartitioner) GetPartitionBoundaryFaces() map[int][]int {
	boundaryFaces := make(map[int][]int) // partition -> face IDs
	if mp.mesh.EToE == nil {
		mp.mesh.BuildConnectivity()
	}

	for elem := 0; elem < mp.mesh.NumElements; elem++ {
		elemPart := mp.mesh.EToP[elem]

		for faceIdx, neighbor := range mp.mesh.EToE[elem] {
			if neighbor < 0 || mp.mesh.EToP[neighbor] != elemPart {
				faceID := mp.mesh.EToF[elem][faceIdx]
				boundaryFaces[elemPart] = append(boundaryFaces[elemPart], faceID)
			}
		}
	}

	return boundaryFaces
}

// GetPartitionElements returns all elements in a given partition
func (mp *MeshPartitioner) GetPartitionElements(partID int) []int {
	elements := []int{}
	for elem := 0; elem < mp.mesh.NumberOfCells(); elem++ {
		if mp.mesh.EToP[elem] == partID {
			elements = append(elements, elem)
		}
	}
	return elements
}
