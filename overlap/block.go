package overlap

import (
	"slices"

	"github.com/notargets/meshoverlap/geometry"
	"github.com/notargets/meshoverlap/mesh"
)

// Block is one partition of the distributed mesh as seen by its owning rank.
type Block struct {
	ID        int // global block id
	Mesh      *mesh.Mesh
	Bounds    geometry.Box
	Neighbors []int // linked block ids, sorted

	volumes *BoundingVolumes
	record  *CollisionRecord
}

func newBlock(id int, m *mesh.Mesh, bve *BoundingVolumeExtractor) (b *Block) {
	b = &Block{
		ID:     id,
		Mesh:   m,
		record: NewCollisionRecord(m.NumberOfCells()),
	}
	b.volumes = bve.Extract(m)
	b.Bounds = b.volumes.Bounds
	return
}

func (b *Block) IsEmpty() bool {
	return b.volumes.NumValid == 0
}

func (b *Block) isNeighbor(id int) bool {
	_, found := slices.BinarySearch(b.Neighbors, id)
	return found
}
