package mesh

import (
	"github.com/aukilabs/go-tooling/pkg/errors"
)

// DataObject is what a rank hands to the overlap detector: a single mesh or
// a collection of blocks.
type DataObject interface {
	NumberOfBlocks() int
	GetBlock(i int) *Mesh
}

// NumberOfBlocks lets a lone mesh act as a single block.
func (m *Mesh) NumberOfBlocks() int { return 1 }
func (m *Mesh) GetBlock(i int) *Mesh {
	if i != 0 {
		return nil
	}
	return m
}

// PartitionedMesh is a flat list of blocks owned by one rank.
type PartitionedMesh struct {
	Blocks []*Mesh
}

func NewPartitionedMesh(blocks ...*Mesh) *PartitionedMesh {
	return &PartitionedMesh{Blocks: blocks}
}

func (pm *PartitionedMesh) NumberOfBlocks() int { return len(pm.Blocks) }
func (pm *PartitionedMesh) GetBlock(i int) *Mesh {
	if i < 0 || i >= len(pm.Blocks) {
		return nil
	}
	return pm.Blocks[i]
}

// Leaves returns the blocks of a data object after checking every leaf is a
// valid mesh.
func Leaves(input DataObject) (blocks []*Mesh, err error) {
	switch in := input.(type) {
	case nil:
		return nil, errors.New("no input data object").WithType(ErrTypeInvalidMesh)
	case *Mesh:
		if in == nil {
			return nil, errors.New("nil mesh").WithType(ErrTypeInvalidMesh)
		}
	case *PartitionedMesh:
		if in == nil {
			return nil, errors.New("nil partitioned mesh").WithType(ErrTypeInvalidMesh)
		}
	default:
		return nil, errors.Newf("unsupported data object %T", input).WithType(ErrTypeInvalidMesh)
	}
	for i := 0; i < input.NumberOfBlocks(); i++ {
		block := input.GetBlock(i)
		if block == nil {
			return nil, errors.New("block is not a mesh").
				WithType(ErrTypeInvalidMesh).
				WithTag("block", i)
		}
		if err = block.Validate(); err != nil {
			return nil, errors.New("invalid block").
				WithType(ErrTypeInvalidMesh).
				WithTag("block", i).
				Wrap(err)
		}
		blocks = append(blocks, block)
	}
	return
}
