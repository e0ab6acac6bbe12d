package overlap

import (
	"math"
	"testing"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/notargets/meshoverlap/comm"
	"github.com/notargets/meshoverlap/geometry"
	"github.com/notargets/meshoverlap/locator"
	"github.com/notargets/meshoverlap/mesh"
	"github.com/notargets/meshoverlap/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func boxEnvelope(t *testing.T, from, to int, box geometry.Box) comm.Envelope {
	payload, err := comm.Encode(newBoxPayload(box))
	require.NoError(t, err)
	return comm.Envelope{From: from, To: to, Phase: comm.PhaseBoxes, Payload: payload}
}

func TestBoundingVolumeExtractor(t *testing.T) {
	tm := mesh.GetStandardTestMeshes()
	m := tm.MixedMesh.ConvertToMesh()
	for _, pd := range []int{1, 2, 7} {
		bv := NewBoundingVolumeExtractor(pd).Extract(m)
		assert.Equal(t, 5, bv.NumValid)
		assert.Zero(t, bv.Degenerate)
		assert.Equal(t, geometry.Box{Max: r3.Vec{X: 1, Y: 1, Z: 1}}, bv.Bounds)
		var maxRadius float64
		for k := 0; k < m.NumberOfCells(); k++ {
			maxRadius = math.Max(maxRadius, m.GetCell(k).ComputeBoundingSphere().Radius())
		}
		assert.InDelta(t, maxRadius, bv.MaxRadius, 1e-12)
		assert.Greater(t, bv.MaxRadius, math.Sqrt(0.75))
		assert.Equal(t, r3.Vec{X: 0.5, Y: 0.5, Z: 0.5}, bv.Spheres[2].Center)
		for k := range bv.Boxes {
			assert.Equal(t, m.GetCell(k).GetBounds(), bv.Boxes[k])
		}
	}
	{ // Non finite and degenerate cells
		m := mesh.NewBoxMesh(cube(0, 0, 0, 1), cube(2, 0, 0, 1))
		m.Vertices[8] = r3.Vec{Z: math.Inf(1)}
		m.AddElement(mesh.Vertex, []int{m.AddVertex(r3.Vec{X: 3})})
		bv := NewBoundingVolumeExtractor(2).Extract(m)
		assert.Equal(t, []bool{true, false, true}, bv.Valid)
		assert.Equal(t, 2, bv.NumValid)
		assert.Equal(t, 1, bv.Degenerate)
		assert.True(t, bv.Boxes[1].IsEmpty())
		assert.Equal(t, geometry.Box{Max: r3.Vec{X: 3, Y: 1, Z: 1}}, bv.Bounds)
		centers, ids := bv.Centers()
		assert.Equal(t, []int{0, 2}, ids)
		assert.Equal(t, r3.Vec{X: 3}, centers[1])
	}
	{
		bv := NewBoundingVolumeExtractor(4).Extract(mesh.NewMesh())
		assert.True(t, bv.Bounds.IsEmpty())
		assert.Zero(t, bv.NumValid)
	}
}

func TestLinkEstablisher(t *testing.T) {
	var (
		bve = NewBoundingVolumeExtractor(2)
		b   = newBlock(0, mesh.NewBoxMesh(cube(0, 0, 0, 1)), bve)
		le  = NewLinkEstablisher(b, 4)
	)
	assert.Equal(t, Unlinked, le.State())
	assert.Equal(t, locator.DefaultPointsPerBucket, le.NumberOfPointsPerBucket)
	assert.Equal(t, locator.DefaultPointsPerBucket, NewDetector(nil).NumberOfPointsPerBucket)

	out, err := le.Advance(nil)
	require.NoError(t, err)
	assert.Equal(t, BoxesShared, le.State())
	require.Len(t, out, 3)
	for i, env := range out {
		assert.Equal(t, 0, env.From)
		assert.Equal(t, i+1, env.To)
		assert.Equal(t, comm.PhaseBoxes, env.Phase)
		var bp boxPayload
		require.NoError(t, comm.Decode(env.Payload, &bp))
		assert.Equal(t, b.Bounds, bp.Box())
	}

	out, err = le.Advance([]comm.Envelope{
		boxEnvelope(t, 1, 0, cube(0.9, 0, 0, 1)),  // overlaps
		boxEnvelope(t, 2, 0, cube(10, 10, 10, 1)), // far away
		boxEnvelope(t, 3, 0, cube(1.2, 0, 0, 1)),  // meets the sphere, not the cube
	})
	require.NoError(t, err)
	assert.Equal(t, CandidatesProposed, le.State())
	assert.Equal(t, []int{1, 3}, le.Proposed())
	require.Len(t, out, 2)
	assert.Equal(t, comm.PhaseProposals, out[0].Phase)
	assert.Equal(t, 1, out[0].To)
	assert.Equal(t, 3, out[1].To)
	_, ok := le.RemoteBox(2)
	assert.True(t, ok)

	// Block 2 proposes without being proposed to, block 3 stays silent
	_, err = le.Advance([]comm.Envelope{
		{From: 1, To: 0, Phase: comm.PhaseProposals},
		{From: 2, To: 0, Phase: comm.PhaseProposals},
	})
	require.NoError(t, err)
	assert.Equal(t, Symmetrized, le.State())
	assert.Equal(t, 2, le.Pruned())
	assert.Nil(t, b.Neighbors)

	_, err = le.Advance(nil)
	require.NoError(t, err)
	assert.Equal(t, Linked, le.State())
	assert.Equal(t, []int{1}, b.Neighbors)
	assert.True(t, b.isNeighbor(1))
	assert.False(t, b.isNeighbor(3))

	assert.Panics(t, func() { le.Advance(nil) })
	assert.Equal(t, "Linked", Linked.String())
	assert.Equal(t, "LinkState(9)", LinkState(9).String())

	{ // Envelopes of the wrong phase are rejected
		le := NewLinkEstablisher(newBlock(1, mesh.NewBoxMesh(cube(0, 0, 0, 1)), bve), 2)
		_, err := le.Advance(nil)
		require.NoError(t, err)
		_, err = le.Advance([]comm.Envelope{{From: 0, To: 1, Phase: comm.PhaseCandidates}})
		require.Error(t, err)
		assert.Equal(t, ErrTypeCommunication, errors.Type(err))
		assert.Equal(t, BoxesShared, le.State())
	}
	{ // A block without cells shares an empty box and proposes nothing
		empty := newBlock(0, mesh.NewMesh(), bve)
		le := NewLinkEstablisher(empty, 2)
		out, err := le.Advance(nil)
		require.NoError(t, err)
		var bp boxPayload
		require.NoError(t, comm.Decode(out[0].Payload, &bp))
		assert.True(t, bp.Empty)
		assert.True(t, bp.Box().IsEmpty())
		out, err = le.Advance([]comm.Envelope{boxEnvelope(t, 1, 0, cube(0, 0, 0, 1))})
		require.NoError(t, err)
		assert.Empty(t, out)
	}
}

func TestCandidateExchanger(t *testing.T) {
	var (
		bve = NewBoundingVolumeExtractor(1)
		m   = mesh.NewStructuredHexMesh(r3.Vec{}, 1, 3, 1, 1)
		b   = newBlock(4, m, bve)
		ce  = NewCandidateExchanger(b)
	)
	m.SetGhost(2, true)
	{
		sm := ce.Extract(cube(2.2, 0, 0, 1))
		require.NotNil(t, sm)
		// The middle cell reaches the box with its sphere only
		assert.Equal(t, []int{2}, sm.OriginCellIDs)
		assert.Equal(t, 4, sm.OriginBlock)
		assert.True(t, sm.Mesh.IsGhost(0))
	}
	{ // Touching counts, sphere and bounds both meet the box
		sm := ce.Extract(cube(2, 0, 0, 1))
		require.NotNil(t, sm)
		assert.Equal(t, []int{1, 2}, sm.OriginCellIDs)
		assert.Equal(t, 12, sm.Mesh.NumberOfPoints())
	}
	assert.Nil(t, ce.Extract(cube(10, 0, 0, 1)))
	assert.Nil(t, ce.Extract(geometry.EmptyBox()))

	le := NewLinkEstablisher(b, 6)
	assert.Panics(t, func() { ce.Envelopes(le) })
	_, err := le.Advance(nil)
	require.NoError(t, err)
	_, err = le.Advance([]comm.Envelope{
		boxEnvelope(t, 0, 4, cube(2, 0, 0, 1)),
		boxEnvelope(t, 5, 4, cube(-0.5, 0, 0, 0.5)),
	})
	require.NoError(t, err)
	_, err = le.Advance([]comm.Envelope{
		{From: 0, To: 4, Phase: comm.PhaseProposals},
		{From: 5, To: 4, Phase: comm.PhaseProposals},
	})
	require.NoError(t, err)
	_, err = le.Advance(nil)
	require.NoError(t, err)
	require.Equal(t, []int{0, 5}, b.Neighbors)

	out, err := ce.Envelopes(le)
	require.NoError(t, err)
	require.Len(t, out, 2)
	for _, env := range out {
		assert.Equal(t, comm.PhaseCandidates, env.Phase)
		sm, err := DecodeCandidates(env)
		require.NoError(t, err)
		assert.Equal(t, 4, sm.OriginBlock)
		require.NoError(t, sm.Mesh.Validate())
	}
	sm, err := DecodeCandidates(out[0])
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, sm.OriginCellIDs)
	sm, err = DecodeCandidates(out[1])
	require.NoError(t, err)
	assert.Equal(t, []int{0}, sm.OriginCellIDs)

	{ // Malformed payloads
		forged := out[0]
		forged.From = 3
		_, err := DecodeCandidates(forged)
		assert.Equal(t, ErrTypeCommunication, errors.Type(err))

		_, err = DecodeCandidates(comm.Envelope{From: 4, Payload: []byte("{")})
		assert.Equal(t, ErrTypeCommunication, errors.Type(err))

		payload, err := comm.Encode(mesh.SubMesh{OriginBlock: 4, Mesh: mesh.NewMesh(), OriginCellIDs: []int{0}})
		require.NoError(t, err)
		_, err = DecodeCandidates(comm.Envelope{From: 4, Payload: payload})
		assert.Equal(t, ErrTypeCommunication, errors.Type(err))

		_, err = DecodeCandidates(comm.Envelope{From: 4, Payload: []byte(`{"origin_block":4}`)})
		assert.Equal(t, ErrTypeCommunication, errors.Type(err))
	}
}

func TestOverlapRefiner(t *testing.T) {
	var (
		bve     = NewBoundingVolumeExtractor(2)
		refiner = &OverlapRefiner{NumberOfPointsPerBucket: 2, ParallelDegree: 3}
	)
	{ // Remote pass
		target := newBlock(1, mesh.NewStructuredHexMesh(r3.Vec{}, 1, 3, 1, 1), bve)
		query := mesh.ExtractCells(mesh.NewBoxMesh(cube(10, 0, 0, 1), cube(0.5, 0, 0, 1), cube(2, 0, 0, 1)), []int{0, 1, 2}, 0)
		hits, st := refiner.Refine(query.Mesh, cellKeys(0, query.OriginCellIDs), refiner.NewTarget(target), false)
		// Cube at 0.5 straddles cells 0 and 1, the cube at 2 coincides with cell 2
		assert.Equal(t, [][]int{nil, {0, 1}, {2}}, hits)
		assert.Equal(t, 3, st.ConfirmedPairs)
		assert.GreaterOrEqual(t, st.ExactTests, 3)
		assert.Equal(t, []types.CellKey{types.NewCellKey(0, 1)}, target.record.Partners(0))
		assert.Equal(t, []types.CellKey{types.NewCellKey(0, 1)}, target.record.Partners(1))
		assert.Equal(t, []types.CellKey{types.NewCellKey(0, 2)}, target.record.Partners(2))

		// Running the same query again leaves the counts unchanged
		refiner.Refine(query.Mesh, cellKeys(0, query.OriginCellIDs), refiner.NewTarget(target), false)
		assert.Equal(t, []int{1, 1, 1}, target.record.Counts())
	}
	{ // Self pass records both sides, ghost queries do not increment
		m := mesh.NewBoxMesh(cube(0, 0, 0, 1), cube(0.5, 0, 0, 1), cube(0.25, 0.25, 0.25, 0.5))
		m.SetGhost(2, true)
		b := newBlock(3, m, bve)
		_, st := refiner.Refine(m, selfKeys(b), refiner.NewTarget(b), true)
		assert.Equal(t, []types.CellKey{types.NewCellKey(3, 1)}, b.record.Partners(0))
		assert.Equal(t, []types.CellKey{types.NewCellKey(3, 0)}, b.record.Partners(1))
		assert.Equal(t, []types.CellKey{types.NewCellKey(3, 0), types.NewCellKey(3, 1)}, b.record.Partners(2))
		assert.Equal(t, 3, st.ConfirmedPairs)
	}
	{ // Tolerance moves faces in by half of it on each side
		target := newBlock(1, mesh.NewBoxMesh(cube(0, 0, 0, 1)), bve)
		query := mesh.ExtractCells(mesh.NewBoxMesh(cube(0.5, 0, 0, 1)), []int{0}, 0)
		keys := cellKeys(0, query.OriginCellIDs)
		deep := &OverlapRefiner{Tolerance: 0.6, NumberOfPointsPerBucket: 2, ParallelDegree: 2}
		hits, st := deep.Refine(query.Mesh, keys, deep.NewTarget(target), false)
		assert.Equal(t, [][]int{nil}, hits)
		assert.Equal(t, 1, st.ExactTests)
		assert.Zero(t, st.ConfirmedPairs)

		shallow := &OverlapRefiner{Tolerance: 0.4, NumberOfPointsPerBucket: 2, ParallelDegree: 2}
		hits, _ = shallow.Refine(query.Mesh, keys, shallow.NewTarget(target), false)
		assert.Equal(t, [][]int{{0}}, hits)
	}
	{ // Misuse panics
		b := newBlock(0, mesh.NewBoxMesh(cube(0, 0, 0, 1)), bve)
		target := refiner.NewTarget(b)
		assert.Panics(t, func() { refiner.Refine(b.Mesh, nil, target, true) })
		other := mesh.NewBoxMesh(cube(0, 0, 0, 1))
		assert.Panics(t, func() { refiner.Refine(other, selfKeys(b), target, true) })
	}
	{ // Empty target
		b := newBlock(0, mesh.NewMesh(), bve)
		query := mesh.NewBoxMesh(cube(0, 0, 0, 1))
		hits, st := refiner.Refine(query, cellKeys(1, []int{0}), refiner.NewTarget(b), false)
		assert.Equal(t, [][]int{nil}, hits)
		assert.Zero(t, st.ExactTests)
	}
}

func TestCollisionRecord(t *testing.T) {
	cr := NewCollisionRecord(3)
	assert.Equal(t, 3, cr.NumberOfCells())
	a, b := types.NewCellKey(1, 7), types.NewCellKey(0, 9)
	assert.True(t, cr.Add(0, a))
	assert.False(t, cr.Add(0, a))
	assert.True(t, cr.Add(0, b))
	assert.True(t, cr.Add(2, a))
	assert.True(t, cr.Contains(0, b))
	assert.False(t, cr.Contains(1, b))
	assert.Equal(t, []int{2, 0, 1}, cr.Counts())
	assert.Equal(t, []types.CellKey{b, a}, cr.Partners(0))
	assert.Empty(t, cr.Partners(1))
	cr.Reset()
	assert.Equal(t, []int{0, 0, 0}, cr.Counts())
}
