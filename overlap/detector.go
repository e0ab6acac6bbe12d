package overlap

import (
	"context"
	"math"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/notargets/meshoverlap/comm"
	"github.com/notargets/meshoverlap/mesh"
	"github.com/notargets/meshoverlap/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// NumberOfOverlapsArray is the cell array attached to every output block.
const NumberOfOverlapsArray = "NumberOfOverlaps"

var tracer = otel.Tracer("meshoverlap.overlap")

// Detector finds, for every cell of the blocks owned by one rank, how many
// cells of any block overlap it. All ranks of a controller run Execute
// together.
type Detector struct {
	Tolerance               float64
	NumberOfPointsPerBucket int
	ParallelDegree          int
	RunID                   string

	ctrl   comm.Controller
	owners []int // rank of every global block id
	offset int   // global id of the first local block
	blocks []*Block
	stats  RunStats
}

type RunStats struct {
	RunID             string                   `json:"run_id"`
	Rank              int                      `json:"rank"`
	Blocks            int                      `json:"blocks"`
	TotalBlocks       int                      `json:"total_blocks"`
	Messages          map[string]int           `json:"messages"` // sent, by phase
	Bytes             map[string]int           `json:"bytes"`
	Links             int                      `json:"links"`
	PrunedProposals   int                      `json:"pruned_proposals"`
	ExactTests        int                      `json:"exact_tests"`
	ConfirmedPairs    int                      `json:"confirmed_pairs"`
	DegenerateSpheres int                      `json:"degenerate_spheres"`
	Durations         map[string]time.Duration `json:"durations"`
}

// Output holds the local blocks of a run. Blocks are shallow copies of the
// input meshes carrying the NumberOfOverlaps cell array.
type Output struct {
	Blocks   []*mesh.Mesh
	BlockIDs []int
	Links    map[int][]int // global block id to linked block ids
	Stats    RunStats
}

// Counts returns the overlap counters of the i-th local block.
func (o *Output) Counts(i int) []int {
	return o.Blocks[i].CellData[NumberOfOverlapsArray]
}

func NewDetector(ctrl comm.Controller, opts ...Option) (d *Detector) {
	d = defaultDetector()
	d.ctrl = ctrl
	for _, opt := range opts {
		opt(d)
	}
	return
}

// Execute runs one detection over the blocks of input. Input that is not a
// mesh or a collection of meshes on any rank makes every rank return a
// structural error and no output.
func (d *Detector) Execute(ctx context.Context, input mesh.DataObject) (out *Output, err error) {
	ctx, span := tracer.Start(ctx, "Detector.Execute",
		trace.WithAttributes(
			attribute.String("run_id", d.RunID),
			attribute.Int("rank", d.ctrl.Rank()),
		),
	)
	defer span.End()
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, errors.Type(err))
		}
	}()

	d.reset()
	var (
		leaves   []*mesh.Mesh
		les      []*LinkEstablisher
		received [][]*mesh.SubMesh
		replies  []comm.Envelope
	)
	if leaves, err = d.exchangeStructure(ctx, input); err != nil {
		return nil, err
	}
	d.extractVolumes(ctx, leaves)
	if les, err = d.linkBlocks(ctx); err != nil {
		return nil, err
	}
	if received, err = d.exchangeCandidates(ctx, les); err != nil {
		return nil, err
	}
	if replies, err = d.refine(ctx, received); err != nil {
		return nil, err
	}
	if err = d.exchangeCollisions(ctx, replies); err != nil {
		return nil, err
	}
	out = d.output()

	logs.WithTag("run_id", d.RunID).
		WithTag("rank", d.stats.Rank).
		WithTag("blocks", d.stats.Blocks).
		WithTag("links", d.stats.Links).
		WithTag("pairs", d.stats.ConfirmedPairs).
		Info("overlap detection done")
	return
}

func (d *Detector) reset() {
	d.owners = nil
	d.offset = 0
	d.blocks = nil
	d.stats = RunStats{
		RunID:     d.RunID,
		Rank:      d.ctrl.Rank(),
		Messages:  make(map[string]int),
		Bytes:     make(map[string]int),
		Durations: make(map[string]time.Duration),
	}
}

func (d *Detector) timePhase(name string) func() {
	start := time.Now()
	return func() {
		elapsed := time.Since(start)
		d.stats.Durations[name] += elapsed
		overlapPhaseDuration.WithLabelValues(name).Observe(elapsed.Seconds())
	}
}

func (d *Detector) countSent(phase comm.Phase, numBytes int) {
	name := phase.String()
	d.stats.Messages[name]++
	d.stats.Bytes[name] += numBytes
	overlapSentMsgs.WithLabelValues(name).Inc()
	overlapSentBytes.WithLabelValues(name).Add(float64(numBytes))
}

// exchangeStructure checks the local input and agrees with every other rank
// on the number of blocks each one owns. Global block ids are assigned in
// rank order.
func (d *Detector) exchangeStructure(ctx context.Context, input mesh.DataObject) (leaves []*mesh.Mesh, err error) {
	ctx, span := tracer.Start(ctx, "Detector.exchangeStructure")
	defer span.End()
	defer d.timePhase(comm.PhaseStructure.String())()

	var (
		np      = d.ctrl.NumberOfProcesses()
		rank    = d.ctrl.Rank()
		leafErr error
		payload []byte
		recv    [][]byte
		bad     []int
	)
	leaves, leafErr = mesh.Leaves(input)
	if payload, err = comm.Encode(structurePayload{OK: leafErr == nil, NumBlocks: len(leaves)}); err != nil {
		return nil, err
	}
	send := make([][]byte, np)
	for r := range send {
		send[r] = payload
		if r != rank {
			d.countSent(comm.PhaseStructure, len(payload))
		}
	}
	if recv, err = d.ctrl.AllToAll(ctx, send); err != nil {
		return nil, err
	}
	for r, buf := range recv {
		var sp structurePayload
		if err = comm.Decode(buf, &sp); err != nil {
			return nil, err
		}
		if !sp.OK {
			bad = append(bad, r)
			continue
		}
		if r == rank {
			d.offset = len(d.owners)
		}
		for i := 0; i < sp.NumBlocks; i++ {
			d.owners = append(d.owners, r)
		}
	}
	if len(bad) > 0 {
		return nil, structuralError(rank, bad, leafErr)
	}
	d.stats.TotalBlocks = len(d.owners)
	logs.WithTag("rank", rank).
		WithTag("blocks", len(leaves)).
		WithTag("total_blocks", len(d.owners)).
		WithTag("offset", d.offset).
		Debug("structure agreed")
	return
}

func structuralError(rank int, badRanks []int, cause error) error {
	if cause != nil {
		return errors.New("input is not a mesh or a collection of meshes").
			WithType(ErrTypeStructural).
			WithTag("rank", rank).
			WithTag("bad_ranks", badRanks).
			Wrap(cause)
	}
	return errors.New("input of another rank is not a mesh or a collection of meshes").
		WithType(ErrTypeStructural).
		WithTag("rank", rank).
		WithTag("bad_ranks", badRanks)
}

func (d *Detector) extractVolumes(ctx context.Context, leaves []*mesh.Mesh) {
	_, span := tracer.Start(ctx, "Detector.extractVolumes")
	defer span.End()
	defer d.timePhase("volumes")()

	bve := NewBoundingVolumeExtractor(d.ParallelDegree)
	d.blocks = make([]*Block, len(leaves))
	for i, leaf := range leaves {
		b := newBlock(d.offset+i, leaf, bve)
		if b.volumes.Degenerate > 0 {
			logs.Warn(errors.New("degenerate bounding spheres, using point queries").
				WithTag("block", b.ID).
				WithTag("cells", b.volumes.Degenerate))
		}
		if invalid := b.Mesh.NumberOfCells() - b.volumes.NumValid; invalid > 0 {
			logs.Warn(errors.New("cells with non finite coordinates are skipped").
				WithTag("block", b.ID).
				WithTag("cells", invalid))
		}
		d.blocks[i] = b
	}
	d.stats.Blocks = len(d.blocks)
}

// exchange enqueues outgoing, closes the round and sorts what arrived by
// local block.
func (d *Detector) exchange(ctx context.Context, phase comm.Phase, outgoing []comm.Envelope) (incoming [][]comm.Envelope, err error) {
	for _, env := range outgoing {
		if err = d.ctrl.Enqueue(d.owners[env.To], env); err != nil {
			return nil, err
		}
		d.countSent(phase, len(env.Payload))
	}
	var envs []comm.Envelope
	if envs, err = d.ctrl.Dequeue(ctx); err != nil {
		return nil, err
	}
	incoming = make([][]comm.Envelope, len(d.blocks))
	for _, env := range envs {
		local := env.To - d.offset
		if local < 0 || local >= len(d.blocks) || env.Phase != phase {
			return nil, errors.New("envelope delivered to the wrong rank or phase").
				WithType(ErrTypeCommunication).
				WithTag("rank", d.ctrl.Rank()).
				WithTag("to", env.To).
				WithTag("phase", env.Phase.String()).
				WithTag("expected_phase", phase.String())
		}
		incoming[local] = append(incoming[local], env)
	}
	return
}

func (d *Detector) linkBlocks(ctx context.Context) (les []*LinkEstablisher, err error) {
	ctx, span := tracer.Start(ctx, "Detector.linkBlocks")
	defer span.End()
	defer d.timePhase("links")()

	les = make([]*LinkEstablisher, len(d.blocks))
	for i, b := range d.blocks {
		les[i] = NewLinkEstablisher(b, len(d.owners))
		les[i].NumberOfPointsPerBucket = d.NumberOfPointsPerBucket
	}
	incoming := make([][]comm.Envelope, len(d.blocks))
	for _, phase := range []comm.Phase{comm.PhaseBoxes, comm.PhaseProposals} {
		var outgoing []comm.Envelope
		for i, le := range les {
			out, err := le.Advance(incoming[i])
			if err != nil {
				return nil, err
			}
			outgoing = append(outgoing, out...)
		}
		if incoming, err = d.exchange(ctx, phase, outgoing); err != nil {
			return nil, err
		}
	}
	for i, le := range les {
		if _, err = le.Advance(incoming[i]); err != nil {
			return nil, err
		}
		if _, err = le.Advance(nil); err != nil {
			return nil, err
		}
		d.stats.Links += len(d.blocks[i].Neighbors)
		d.stats.PrunedProposals += le.Pruned()
		logs.WithTag("block", d.blocks[i].ID).
			WithTag("neighbors", d.blocks[i].Neighbors).
			WithTag("pruned", le.Pruned()).
			Debug("block linked")
	}
	overlapLinks.Add(float64(d.stats.Links))
	overlapPrunedProposals.Add(float64(d.stats.PrunedProposals))
	span.SetAttributes(attribute.Int("links", d.stats.Links))
	return
}

func (d *Detector) exchangeCandidates(ctx context.Context, les []*LinkEstablisher) (received [][]*mesh.SubMesh, err error) {
	ctx, span := tracer.Start(ctx, "Detector.exchangeCandidates")
	defer span.End()
	defer d.timePhase(comm.PhaseCandidates.String())()

	var outgoing []comm.Envelope
	for i, b := range d.blocks {
		out, err := NewCandidateExchanger(b).Envelopes(les[i])
		if err != nil {
			return nil, err
		}
		outgoing = append(outgoing, out...)
	}
	incoming, err := d.exchange(ctx, comm.PhaseCandidates, outgoing)
	if err != nil {
		return nil, err
	}
	received = make([][]*mesh.SubMesh, len(d.blocks))
	for i, envs := range incoming {
		for _, env := range envs {
			if !d.blocks[i].isNeighbor(env.From) {
				return nil, errors.New("candidates from a block that is not linked").
					WithType(ErrTypeCommunication).
					WithTag("block", d.blocks[i].ID).
					WithTag("from", env.From)
			}
			sm, err := DecodeCandidates(env)
			if err != nil {
				return nil, err
			}
			received[i] = append(received[i], sm)
		}
	}
	return
}

// refine runs the self pass of every local block, then the remote pass of
// every received sub mesh, and returns the replies for the origin blocks.
func (d *Detector) refine(ctx context.Context, received [][]*mesh.SubMesh) (replies []comm.Envelope, err error) {
	_, span := tracer.Start(ctx, "Detector.refine")
	defer span.End()
	defer d.timePhase("refine")()

	var (
		refiner = &OverlapRefiner{
			Tolerance:               d.Tolerance,
			NumberOfPointsPerBucket: d.NumberOfPointsPerBucket,
			ParallelDegree:          d.ParallelDegree,
		}
		selfStats, remoteStats RefineStats
	)
	for i, b := range d.blocks {
		target := refiner.NewTarget(b)
		_, st := refiner.Refine(b.Mesh, selfKeys(b), target, true)
		selfStats.Add(st)
		for _, sm := range received[i] {
			hits, st := refiner.Refine(sm.Mesh, cellKeys(sm.OriginBlock, sm.OriginCellIDs), target, false)
			remoteStats.Add(st)
			var reply collisionPayload
			for q, tcs := range hits {
				if len(tcs) > 0 {
					reply.Hits = append(reply.Hits, collisionHit{Cell: sm.OriginCellIDs[q], Partners: tcs})
				}
			}
			if len(reply.Hits) == 0 {
				continue
			}
			var payload []byte
			if payload, err = comm.Encode(reply); err != nil {
				return nil, err
			}
			replies = append(replies, comm.Envelope{
				From:    b.ID,
				To:      sm.OriginBlock,
				Phase:   comm.PhaseCollisions,
				Payload: payload,
			})
		}
		logs.WithTag("block", b.ID).
			WithTag("candidates", len(received[i])).
			Debug("block refined")
	}
	for pass, st := range map[string]RefineStats{passSelf: selfStats, passRemote: remoteStats} {
		overlapExactTests.WithLabelValues(pass).Add(float64(st.ExactTests))
		overlapConfirmedPairs.WithLabelValues(pass).Add(float64(st.ConfirmedPairs))
		overlapDegenerateSpheres.Add(float64(st.Degenerate))
		d.stats.ExactTests += st.ExactTests
		d.stats.ConfirmedPairs += st.ConfirmedPairs
		d.stats.DegenerateSpheres += st.Degenerate
	}
	return
}

// exchangeCollisions ships the remote pass results back to their origin,
// which folds them into its records.
func (d *Detector) exchangeCollisions(ctx context.Context, replies []comm.Envelope) (err error) {
	ctx, span := tracer.Start(ctx, "Detector.exchangeCollisions")
	defer span.End()
	defer d.timePhase(comm.PhaseCollisions.String())()

	incoming, err := d.exchange(ctx, comm.PhaseCollisions, replies)
	if err != nil {
		return err
	}
	for i, envs := range incoming {
		b := d.blocks[i]
		for _, env := range envs {
			var cp collisionPayload
			if err = comm.Decode(env.Payload, &cp); err != nil {
				return err
			}
			for _, hit := range cp.Hits {
				if hit.Cell < 0 || hit.Cell >= b.Mesh.NumberOfCells() {
					return errors.New("collision reply for an unknown cell").
						WithType(ErrTypeCommunication).
						WithTag("block", b.ID).
						WithTag("from", env.From).
						WithTag("cell", hit.Cell)
				}
				for _, p := range hit.Partners {
					if p < 0 || p > math.MaxUint32 {
						return errors.New("collision reply names an invalid partner").
							WithType(ErrTypeCommunication).
							WithTag("block", b.ID).
							WithTag("from", env.From).
							WithTag("partner", p)
					}
					b.record.Add(hit.Cell, types.NewCellKey(env.From, p))
				}
			}
		}
	}
	return
}

func (d *Detector) output() (out *Output) {
	out = &Output{
		Blocks:   make([]*mesh.Mesh, len(d.blocks)),
		BlockIDs: make([]int, len(d.blocks)),
		Links:    make(map[int][]int, len(d.blocks)),
		Stats:    d.stats,
	}
	for i, b := range d.blocks {
		m := b.Mesh.ShallowCopy()
		m.SetCellData(NumberOfOverlapsArray, b.record.Counts())
		out.Blocks[i] = m
		out.BlockIDs[i] = b.ID
		out.Links[b.ID] = b.Neighbors
	}
	return
}

func selfKeys(b *Block) []types.CellKey {
	ids := make([]int, b.Mesh.NumberOfCells())
	for i := range ids {
		ids[i] = i
	}
	return cellKeys(b.ID, ids)
}
