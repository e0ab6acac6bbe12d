package types

import (
	"fmt"
	"math"
)

/*
EdgeKey is an always positive number that stores an edge's vertices as indices in a way that can be compared
An edge between vertices [4] and [0] will always be stored as [0,4], in the ascending order of the index values
*/
type EdgeKey uint64

func NewEdgeKey(verts [2]int) (packed EdgeKey) {
	// This packs two index coordinates into two 32 bit unsigned integers to act as a hash and an indirect access method
	var (
		limit = math.MaxUint32
	)
	for _, vert := range verts {
		if vert < 0 || vert > limit {
			panic(fmt.Errorf("unable to pack two ints into a uint64, have %d and %d as inputs",
				verts[0], verts[1]))
		}
	}
	var i1, i2 int
	if verts[0] <= verts[1] {
		i1, i2 = verts[0], verts[1]
	} else {
		i1, i2 = verts[1], verts[0]
	}
	packed = EdgeKey(i1 + i2<<32)
	return
}

func (ek EdgeKey) GetVertices(rev bool) (verts [2]int) {
	var (
		enTmp EdgeKey
	)
	enTmp = ek >> 32
	verts[1] = int(enTmp)
	verts[0] = int(ek - enTmp*(1<<32))
	if rev {
		verts[0], verts[1] = verts[1], verts[0]
	}
	return
}

/*
CellKey identifies a cell across the whole decomposition: the global block id is stored in the upper 32 bits and the
block local cell id in the lower 32 bits. Unlike EdgeKey the order of the two parts is significant, so keys sort by
block first and then by cell.
*/
type CellKey uint64

func NewCellKey(block, cell int) (packed CellKey) {
	var (
		limit = math.MaxUint32
	)
	if block < 0 || block > limit || cell < 0 || cell > limit {
		panic(fmt.Errorf("unable to pack block %d, cell %d into a uint64", block, cell))
	}
	packed = CellKey(uint64(cell) | uint64(block)<<32)
	return
}

func (ck CellKey) Block() int {
	return int(ck >> 32)
}

func (ck CellKey) Cell() int {
	return int(ck & math.MaxUint32)
}

func (ck CellKey) String() string {
	return fmt.Sprintf("%d:%d", ck.Block(), ck.Cell())
}
