package mesh

import (
	"testing"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestExtractCells(t *testing.T) {
	tm := GetStandardTestMeshes()
	m := tm.MixedMesh.ConvertToMesh()
	m.SetGhost(4, true)

	sm := ExtractCells(m, []int{1, 4}, 7)
	require.NoError(t, sm.Mesh.Validate())
	assert.Equal(t, 7, sm.OriginBlock)
	assert.Equal(t, []int{1, 4}, sm.OriginCellIDs)
	assert.Equal(t, 2, sm.NumberOfCells())
	// Tet {x, xy, y, center} and Pyramid {origin, x, xy, y, center} use 5 points
	assert.Equal(t, 5, sm.Mesh.NumberOfPoints())
	assert.Equal(t, []int{0, 1, 2, 3}, sm.Mesh.Elements[0])
	assert.Equal(t, []int{4, 0, 1, 2, 3}, sm.Mesh.Elements[1])
	assert.False(t, sm.Mesh.IsGhost(0))
	assert.True(t, sm.Mesh.IsGhost(1))
	for i := 0; i < 2; i++ {
		assert.NoError(t, ValidateNodeCoordinates(sm.Mesh.GetCell(i).Points, m.GetCell(sm.OriginCellIDs[i]).Points, 0))
	}

	// The copy shares nothing with the source
	sm.Mesh.Vertices[0] = r3.Vec{X: -1}
	assert.Equal(t, r3.Vec{X: 1}, m.Vertices[1])

	empty := ExtractCells(m, nil, 0)
	assert.Equal(t, 0, empty.NumberOfCells())
	assert.Nil(t, empty.Mesh.GhostCells)
	assert.Equal(t, 0, (&SubMesh{}).NumberOfCells())
}

func TestLeaves(t *testing.T) {
	tm := GetStandardTestMeshes()
	a, b := tm.TwoTetMesh.ConvertToMesh(), tm.MixedMesh.ConvertToMesh()
	{
		blocks, err := Leaves(a)
		require.NoError(t, err)
		assert.Equal(t, []*Mesh{a}, blocks)
	}
	{
		blocks, err := Leaves(NewPartitionedMesh(a, b, NewMesh()))
		require.NoError(t, err)
		assert.Len(t, blocks, 3)
	}
	{ // Empty partitioned mesh is valid and has no blocks
		blocks, err := Leaves(NewPartitionedMesh())
		require.NoError(t, err)
		assert.Empty(t, blocks)
	}
	{ // Malformed inputs
		var nilMesh *Mesh
		var nilPart *PartitionedMesh
		for _, in := range []DataObject{nil, nilMesh, nilPart, NewPartitionedMesh(a, nil)} {
			_, err := Leaves(in)
			require.Error(t, err)
			assert.Equal(t, ErrTypeInvalidMesh, errors.Type(err))
		}
		bad := tm.TwoTetMesh.ConvertToMesh()
		bad.Elements[0] = bad.Elements[0][:2]
		_, err := Leaves(NewPartitionedMesh(a, bad))
		assert.Error(t, err)
	}
}
