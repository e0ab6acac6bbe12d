package overlap

import (
	"context"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/google/uuid"
	"github.com/notargets/meshoverlap/comm"
	"github.com/notargets/meshoverlap/mesh"
	"github.com/notargets/meshoverlap/utils"
	"golang.org/x/sync/errgroup"
)

// RunLocal runs one detection with a rank per input, all in this process.
// The first failing rank cancels the others.
func RunLocal(ctx context.Context, inputs []mesh.DataObject, opts ...Option) (outputs []*Output, err error) {
	if len(inputs) == 0 {
		return nil, errors.New("no ranks to run").WithType(ErrTypeStructural)
	}
	var (
		cluster = comm.NewLocalCluster(len(inputs))
		g, gctx = errgroup.WithContext(ctx)
	)
	// Ranks share a run id unless the caller picked one
	opts = append([]Option{WithRunID(uuid.NewString())}, opts...)
	outputs = make([]*Output, len(inputs))
	for rank := range inputs {
		rank := rank
		g.Go(func() error {
			d := NewDetector(cluster.Controller(rank), opts...)
			out, err := d.Execute(gctx, inputs[rank])
			if err != nil {
				return err
			}
			outputs[rank] = out
			return nil
		})
	}
	if err = g.Wait(); err != nil {
		return nil, err
	}
	return
}

// LinkMatrix assembles the block links reported by every rank of a run.
// Each link appears once per side, so a complete run gives a symmetric
// matrix.
func LinkMatrix(outputs []*Output) *utils.LinkMatrix {
	var numBlocks int
	for _, out := range outputs {
		if out != nil {
			numBlocks = max(numBlocks, out.Stats.TotalBlocks)
		}
	}
	lm := utils.NewLinkMatrix(numBlocks, "block links")
	for _, out := range outputs {
		if out == nil {
			continue
		}
		for from, nbrs := range out.Links {
			for _, to := range nbrs {
				lm.AddLink(from, to)
			}
		}
	}
	return lm.Freeze()
}
