package comm

import (
	"cmp"
	"context"
	"slices"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/notargets/meshoverlap/utils"
)

// LocalCluster connects NP in-process ranks, one goroutine each.
type LocalCluster struct {
	NP      int
	mb      *utils.MailBox[Envelope]
	barrier *utils.Barrier
	slots   [][][]byte // slots[src][dst] for AllToAll
}

func NewLocalCluster(NP int) *LocalCluster {
	lc := &LocalCluster{
		NP:      NP,
		mb:      utils.NewMailBox[Envelope](NP),
		barrier: utils.NewBarrier(NP),
		slots:   make([][][]byte, NP),
	}
	for n := 0; n < NP; n++ {
		lc.slots[n] = make([][]byte, NP)
	}
	return lc
}

// Controller returns the endpoint of rank, it must only be used from that
// rank's goroutine.
func (lc *LocalCluster) Controller(rank int) *LocalController {
	return &LocalController{cluster: lc, rank: rank}
}

type LocalController struct {
	cluster *LocalCluster
	rank    int
}

func (c *LocalController) Rank() int              { return c.rank }
func (c *LocalController) NumberOfProcesses() int { return c.cluster.NP }

func (c *LocalController) Barrier(ctx context.Context) error {
	if err := c.cluster.barrier.Wait(ctx); err != nil {
		return errors.New("barrier interrupted").
			WithType(ErrTypeCommunication).
			WithTag("rank", c.rank).
			Wrap(err)
	}
	return nil
}

func (c *LocalController) AllToAll(ctx context.Context, send [][]byte) (recv [][]byte, err error) {
	if len(send) != c.cluster.NP {
		return nil, errors.Newf("all to all needs %d buffers, got %d", c.cluster.NP, len(send)).
			WithType(ErrTypeCommunication).
			WithTag("rank", c.rank)
	}
	for dst, buf := range send {
		c.cluster.slots[c.rank][dst] = buf
	}
	if err = c.Barrier(ctx); err != nil {
		return
	}
	recv = make([][]byte, c.cluster.NP)
	for src := range recv {
		recv[src] = c.cluster.slots[src][c.rank]
	}
	// Slots are reused by the next round
	err = c.Barrier(ctx)
	return
}

func (c *LocalController) Enqueue(dstRank int, env Envelope) error {
	if dstRank < 0 || dstRank >= c.cluster.NP {
		return errors.New("destination rank out of range").
			WithType(ErrTypeCommunication).
			WithTag("rank", c.rank).
			WithTag("dst_rank", dstRank)
	}
	c.cluster.mb.PostMessage(c.rank, dstRank, env)
	return nil
}

// Dequeue follows the mailbox round: deliver, barrier, receive, barrier.
// Envelopes come back ordered by sender then receiver block.
func (c *LocalController) Dequeue(ctx context.Context) (envs []Envelope, err error) {
	c.cluster.mb.DeliverMyMessages(c.rank)
	if err = c.Barrier(ctx); err != nil {
		return
	}
	envs = c.cluster.mb.ReceiveMyMessages(c.rank)
	c.cluster.mb.ClearMyMessages(c.rank)
	if err = c.Barrier(ctx); err != nil {
		return nil, err
	}
	slices.SortStableFunc(envs, func(a, b Envelope) int {
		if r := cmp.Compare(a.From, b.From); r != 0 {
			return r
		}
		return cmp.Compare(a.To, b.To)
	})
	return
}
