package overlap

import (
	"github.com/notargets/meshoverlap/geometry"
	"gonum.org/v1/gonum/spatial/r3"
)

type structurePayload struct {
	OK        bool `json:"ok"`
	NumBlocks int  `json:"num_blocks"`
}

// boxPayload carries a block box. Empty boxes have infinite corners, which
// the codec can not represent, so they travel as a flag.
type boxPayload struct {
	Empty bool   `json:"empty,omitempty"`
	Min   r3.Vec `json:"min"`
	Max   r3.Vec `json:"max"`
}

func newBoxPayload(box geometry.Box) boxPayload {
	if box.IsEmpty() {
		return boxPayload{Empty: true}
	}
	return boxPayload{Min: box.Min, Max: box.Max}
}

func (bp boxPayload) Box() geometry.Box {
	if bp.Empty {
		return geometry.EmptyBox()
	}
	return geometry.Box{Min: bp.Min, Max: bp.Max}
}

// collisionHit lists the cells of the replying block that overlap one cell
// shipped by the receiver.
type collisionHit struct {
	Cell     int   `json:"cell"`
	Partners []int `json:"partners"`
}

type collisionPayload struct {
	Hits []collisionHit `json:"hits"`
}
