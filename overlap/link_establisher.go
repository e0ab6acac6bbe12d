package overlap

import (
	"fmt"
	"slices"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/notargets/meshoverlap/comm"
	"github.com/notargets/meshoverlap/geometry"
	"github.com/notargets/meshoverlap/locator"
	"gonum.org/v1/gonum/spatial/r3"
)

type LinkState int

const (
	Unlinked LinkState = iota
	BoxesShared
	CandidatesProposed
	Symmetrized
	Linked
)

func (s LinkState) String() string {
	if s < Unlinked || s > Linked {
		return fmt.Sprintf("LinkState(%d)", int(s))
	}
	return [...]string{"Unlinked", "BoxesShared", "CandidatesProposed", "Symmetrized", "Linked"}[s]
}

// LinkEstablisher discovers which blocks lie close enough to one block to
// hold overlapping cells. Each call to Advance consumes the envelopes of the
// previous round and moves one state forward:
//
//	Unlinked           -> BoxesShared         send own box to every block
//	BoxesShared        -> CandidatesProposed  propose to blocks whose box meets a local sphere
//	CandidatesProposed -> Symmetrized         keep mutual proposals only
//	Symmetrized        -> Linked              install the neighbor list on the block
type LinkEstablisher struct {
	NumberOfPointsPerBucket int

	block       *Block
	numBlocks   int
	state       LinkState
	remoteBoxes map[int]geometry.Box
	proposed    []int
	neighbors   []int
	pruned      int
}

func NewLinkEstablisher(block *Block, numBlocks int) *LinkEstablisher {
	return &LinkEstablisher{
		NumberOfPointsPerBucket: locator.DefaultPointsPerBucket,
		block:                   block,
		numBlocks:               numBlocks,
		remoteBoxes:             make(map[int]geometry.Box),
	}
}

func (le *LinkEstablisher) State() LinkState { return le.state }

// Proposed returns the blocks this block proposed a link to, sorted.
func (le *LinkEstablisher) Proposed() []int { return le.proposed }

// Pruned is the number of proposals that were not matched by the other side.
func (le *LinkEstablisher) Pruned() int { return le.pruned }

// RemoteBox returns the box another block announced, false if it was empty
// or never received.
func (le *LinkEstablisher) RemoteBox(blockID int) (box geometry.Box, ok bool) {
	box, ok = le.remoteBoxes[blockID]
	return
}

func (le *LinkEstablisher) Advance(incoming []comm.Envelope) (outgoing []comm.Envelope, err error) {
	switch le.state {
	case Unlinked:
		outgoing, err = le.shareBox()
	case BoxesShared:
		outgoing, err = le.propose(incoming)
	case CandidatesProposed:
		err = le.symmetrize(incoming)
	case Symmetrized:
		le.block.Neighbors = le.neighbors
	default:
		panic(fmt.Errorf("block %d advanced past %s", le.block.ID, le.state))
	}
	if err != nil {
		return nil, err
	}
	le.state++
	return
}

func (le *LinkEstablisher) shareBox() (outgoing []comm.Envelope, err error) {
	var payload []byte
	if payload, err = comm.Encode(newBoxPayload(le.block.Bounds)); err != nil {
		return
	}
	for id := 0; id < le.numBlocks; id++ {
		if id == le.block.ID {
			continue
		}
		outgoing = append(outgoing, comm.Envelope{
			From:    le.block.ID,
			To:      id,
			Phase:   comm.PhaseBoxes,
			Payload: payload,
		})
	}
	return
}

func (le *LinkEstablisher) propose(incoming []comm.Envelope) (outgoing []comm.Envelope, err error) {
	if err = le.checkIncoming(incoming, comm.PhaseBoxes); err != nil {
		return
	}
	for _, env := range incoming {
		var bp boxPayload
		if err = comm.Decode(env.Payload, &bp); err != nil {
			return nil, err
		}
		if !bp.Empty {
			le.remoteBoxes[env.From] = bp.Box()
		}
	}

	if le.block.IsEmpty() || len(le.remoteBoxes) == 0 {
		return
	}
	var (
		bv               = le.block.volumes
		centers, cellIDs = bv.Centers()
		grid             = locator.NewBucketGrid2D()
		buf              []int
	)
	grid.NumberOfPointsPerBucket = le.NumberOfPointsPerBucket
	grid.Build(centers, 0)
	for id := 0; id < le.numBlocks; id++ {
		box, ok := le.remoteBoxes[id]
		if !ok {
			continue
		}
		shrunk := box.Inflate(-geometry.RelativeEpsilon(box))
		radius := halfDiagonal2D(shrunk) + bv.MaxRadius
		buf = grid.FindPointsWithinRadius(radius, shrunk.Center(), buf)
		for _, idx := range buf {
			if bv.Spheres[cellIDs[idx]].IntersectsBox(shrunk) {
				le.proposed = append(le.proposed, id)
				break
			}
		}
	}
	for _, id := range le.proposed {
		outgoing = append(outgoing, comm.Envelope{
			From:  le.block.ID,
			To:    id,
			Phase: comm.PhaseProposals,
		})
	}
	logs.WithTag("block", le.block.ID).
		WithTag("boxes", len(le.remoteBoxes)).
		WithTag("proposed", len(le.proposed)).
		Debug("link proposals")
	return
}

func (le *LinkEstablisher) symmetrize(incoming []comm.Envelope) (err error) {
	if err = le.checkIncoming(incoming, comm.PhaseProposals); err != nil {
		return
	}
	received := make(map[int]bool, len(incoming))
	for _, env := range incoming {
		received[env.From] = true
	}
	for _, id := range le.proposed {
		if received[id] {
			le.neighbors = append(le.neighbors, id)
			delete(received, id)
			continue
		}
		le.pruned++
	}
	le.pruned += len(received)
	slices.Sort(le.neighbors)
	return
}

// checkIncoming rejects envelopes routed to the wrong block or phase, they
// can only come from a peer running a different protocol.
func (le *LinkEstablisher) checkIncoming(incoming []comm.Envelope, phase comm.Phase) error {
	for _, env := range incoming {
		if env.To != le.block.ID || env.Phase != phase || env.From < 0 || env.From >= le.numBlocks {
			return errors.New("unexpected envelope").
				WithType(ErrTypeCommunication).
				WithTag("block", le.block.ID).
				WithTag("from", env.From).
				WithTag("to", env.To).
				WithTag("phase", env.Phase.String()).
				WithTag("expected_phase", phase.String())
		}
	}
	return nil
}

func halfDiagonal2D(box geometry.Box) float64 {
	size := box.Size()
	return 0.5 * r3.Norm(r3.Vec{X: size.X, Y: size.Y})
}
