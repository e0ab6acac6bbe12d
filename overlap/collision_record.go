package overlap

import (
	"slices"

	"github.com/notargets/meshoverlap/types"
)

// CollisionRecord keeps, for every local cell, the set of cells it was found
// to overlap. A partner reached along several paths is stored once, so the
// count of a cell is the size of its set.
type CollisionRecord struct {
	partners []map[types.CellKey]struct{}
}

func NewCollisionRecord(numCells int) *CollisionRecord {
	return &CollisionRecord{partners: make([]map[types.CellKey]struct{}, numCells)}
}

func (cr *CollisionRecord) NumberOfCells() int { return len(cr.partners) }

// Add records partner against cell and reports whether it was new.
func (cr *CollisionRecord) Add(cell int, partner types.CellKey) bool {
	set := cr.partners[cell]
	if set == nil {
		set = make(map[types.CellKey]struct{})
		cr.partners[cell] = set
	}
	if _, ok := set[partner]; ok {
		return false
	}
	set[partner] = struct{}{}
	return true
}

func (cr *CollisionRecord) Contains(cell int, partner types.CellKey) bool {
	_, ok := cr.partners[cell][partner]
	return ok
}

func (cr *CollisionRecord) Count(cell int) int {
	return len(cr.partners[cell])
}

// Partners returns the recorded partners of cell in ascending key order.
func (cr *CollisionRecord) Partners(cell int) (keys []types.CellKey) {
	keys = make([]types.CellKey, 0, len(cr.partners[cell]))
	for k := range cr.partners[cell] {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return
}

// Counts returns the per cell counters in cell order.
func (cr *CollisionRecord) Counts() (counts []int) {
	counts = make([]int, len(cr.partners))
	for i, set := range cr.partners {
		counts[i] = len(set)
	}
	return
}

func (cr *CollisionRecord) Reset() {
	clear(cr.partners)
}
