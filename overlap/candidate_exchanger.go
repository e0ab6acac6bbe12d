package overlap

import (
	"fmt"
	"math"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/notargets/meshoverlap/comm"
	"github.com/notargets/meshoverlap/geometry"
	"github.com/notargets/meshoverlap/mesh"
	"github.com/notargets/meshoverlap/utils"
)

// CandidateExchanger ships to every linked block the cells that could
// overlap it.
type CandidateExchanger struct {
	block   *Block
	cellIDs *utils.DynBuffer[int] // reused across neighbors
}

func NewCandidateExchanger(block *Block) *CandidateExchanger {
	return &CandidateExchanger{
		block:   block,
		cellIDs: utils.NewDynBuffer[int](block.Mesh.NumberOfCells()),
	}
}

// Extract copies the cells whose sphere and bounds both meet box. It returns
// nil when no cell qualifies.
func (ce *CandidateExchanger) Extract(box geometry.Box) (sm *mesh.SubMesh) {
	bv := ce.block.volumes
	if box.IsEmpty() {
		return
	}
	ce.cellIDs.Reset()
	for k, ok := range bv.Valid {
		if ok && bv.Spheres[k].IntersectsBox(box) && bv.Boxes[k].Intersects(box) {
			ce.cellIDs.Add(k)
		}
	}
	if ce.cellIDs.Len() == 0 {
		return
	}
	return mesh.ExtractCells(ce.block.Mesh, ce.cellIDs.Cells(), ce.block.ID)
}

// Envelopes builds one candidate message per linked block that has at least
// one qualifying cell. The establisher must be Linked.
func (ce *CandidateExchanger) Envelopes(le *LinkEstablisher) (outgoing []comm.Envelope, err error) {
	if le.State() != Linked {
		panic(fmt.Errorf("candidate exchange for block %d before linking, state %s", ce.block.ID, le.State()))
	}
	for _, nbr := range ce.block.Neighbors {
		box, ok := le.RemoteBox(nbr)
		if !ok {
			continue
		}
		sm := ce.Extract(box)
		if sm == nil {
			continue
		}
		var payload []byte
		if payload, err = comm.Encode(sm); err != nil {
			return nil, err
		}
		outgoing = append(outgoing, comm.Envelope{
			From:    ce.block.ID,
			To:      nbr,
			Phase:   comm.PhaseCandidates,
			Payload: payload,
		})
	}
	return
}

// DecodeCandidates unpacks a candidate envelope and checks the sub mesh is
// consistent with its sender.
func DecodeCandidates(env comm.Envelope) (sm *mesh.SubMesh, err error) {
	sm = &mesh.SubMesh{}
	if err = comm.Decode(env.Payload, sm); err != nil {
		return nil, err
	}
	malformed := func(reason string) error {
		return errors.New("malformed candidate payload").
			WithType(ErrTypeCommunication).
			WithTag("from", env.From).
			WithTag("to", env.To).
			WithTag("reason", reason)
	}
	switch {
	case sm.Mesh == nil:
		return nil, malformed("no mesh")
	case sm.OriginBlock != env.From:
		return nil, malformed("origin block does not match sender")
	case len(sm.OriginCellIDs) != sm.Mesh.NumberOfCells():
		return nil, malformed("origin id count does not match cell count")
	}
	for _, id := range sm.OriginCellIDs {
		if id < 0 || id > math.MaxUint32 {
			return nil, malformed("origin cell id out of range")
		}
	}
	if err = sm.Mesh.Validate(); err != nil {
		return nil, errors.New("malformed candidate payload").
			WithType(ErrTypeCommunication).
			WithTag("from", env.From).
			Wrap(err)
	}
	return
}
