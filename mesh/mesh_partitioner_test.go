package mesh

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestNewMeshPartitioner(t *testing.T) {
	tm := GetStandardTestMeshes()
	mesh := tm.TwoTetMesh.ConvertToMesh()

	config := DefaultPartitionConfig(2)
	mp := NewMeshPartitioner(mesh, config)

	assert.Same(t, mesh, mp.mesh)
	assert.Same(t, config, mp.config)
	assert.Equal(t, int32(8), mp.computeCostModel(Hex, 8))
	assert.Equal(t, int32(0), mp.commCostModel(4, true))
}

func TestCoordinateBisection(t *testing.T) {
	{ // A row of cubes splits into contiguous runs
		mesh := NewStructuredHexMesh(r3.Vec{}, 1, 4, 1, 1)
		mp := NewMeshPartitioner(mesh, DefaultPartitionConfig(2))
		require.NoError(t, mp.Partition())
		assert.Equal(t, []int{0, 0, 1, 1}, mesh.EToP)
		assert.Equal(t, []int{2, 3}, mp.GetPartitionElements(1))

		boundary := mp.GetPartitionBoundaryFaces()
		assert.Len(t, boundary[0], 10)
		assert.Len(t, boundary[1], 10)

		stats := mp.analyzePartition()
		assert.Equal(t, 2, stats[0].NumElements)
		assert.Equal(t, int64(16), stats[1].ComputeLoad)
		assert.Equal(t, 1, stats[0].NumNeighbors[1])
	}
	{ // One part per cell, bisected along the longest axis
		mesh := NewStructuredHexMesh(r3.Vec{}, 1, 1, 4, 1)
		mp := NewMeshPartitioner(mesh, DefaultPartitionConfig(4))
		require.NoError(t, mp.Partition())
		assert.Equal(t, []int{0, 1, 2, 3}, mesh.EToP)
	}
	{ // More parts than cells leaves some parts empty
		mesh := NewStructuredHexMesh(r3.Vec{}, 1, 2, 2, 1)
		mp := NewMeshPartitioner(mesh, DefaultPartitionConfig(8))
		require.NoError(t, mp.Partition())
		blocks, cellMaps := mp.Split()
		require.Equal(t, 8, blocks.NumberOfBlocks())
		var total, empty int
		for p := 0; p < 8; p++ {
			total += blocks.GetBlock(p).NumberOfCells()
			if blocks.GetBlock(p).NumberOfCells() == 0 {
				empty++
			}
			assert.Len(t, cellMaps[p], blocks.GetBlock(p).NumberOfCells())
		}
		assert.Equal(t, 4, total)
		assert.Equal(t, 4, empty)
	}
	{ // Bad configurations
		mesh := NewStructuredHexMesh(r3.Vec{}, 1, 2, 1, 1)
		assert.Error(t, NewMeshPartitioner(mesh, DefaultPartitionConfig(0)).Partition())
	}
}

func TestAssignPartitions(t *testing.T) {
	mesh := NewStructuredHexMesh(r3.Vec{}, 1, 3, 1, 1)
	mp := NewMeshPartitioner(mesh, DefaultPartitionConfig(2))
	require.NoError(t, mp.Assign([]int{1, 0, 1}))
	blocks, cellMaps := mp.Split()
	assert.Equal(t, []int{1}, cellMaps[0])
	assert.Equal(t, []int{0, 2}, cellMaps[1])
	assert.Equal(t, 2, blocks.GetBlock(1).NumberOfCells())
	// Block meshes only carry the points they use
	assert.Equal(t, 16, blocks.GetBlock(1).NumberOfPoints())

	assert.Error(t, mp.Assign([]int{0, 1}))
	assert.Error(t, mp.Assign([]int{0, 1, 2}))
}
