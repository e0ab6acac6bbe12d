package comm

import (
	"context"
	"fmt"
)

const ErrTypeCommunication = "communication_error"

// Phase tags the protocol round an envelope belongs to.
type Phase int

const (
	PhaseStructure Phase = iota
	PhaseBoxes
	PhaseProposals
	PhaseCandidates
	PhaseCollisions
)

func (p Phase) String() string {
	if p < PhaseStructure || p > PhaseCollisions {
		return fmt.Sprintf("Phase(%d)", int(p))
	}
	return [...]string{"structure", "boxes", "proposals", "candidates", "collisions"}[p]
}

// Envelope is a point to point message between two blocks. From and To are
// global block ids, Payload is already encoded.
type Envelope struct {
	From    int    `json:"from"`
	To      int    `json:"to"`
	Phase   Phase  `json:"phase"`
	Payload []byte `json:"payload"`
}

// Controller is the rank level transport. Barrier, AllToAll and Dequeue are
// collective: every rank must call them in the same order.
type Controller interface {
	Rank() int
	NumberOfProcesses() int
	Barrier(ctx context.Context) error
	// AllToAll sends send[r] to rank r and returns what every rank sent to
	// this one, indexed by source rank.
	AllToAll(ctx context.Context, send [][]byte) ([][]byte, error)
	// Enqueue buffers env for dstRank until the next Dequeue.
	Enqueue(dstRank int, env Envelope) error
	// Dequeue delivers everything enqueued since the last round and returns
	// the envelopes addressed to this rank.
	Dequeue(ctx context.Context) ([]Envelope, error)
}
