package comm

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runRanks(np int, fn func(c *LocalController)) {
	var (
		cluster = NewLocalCluster(np)
		wg      sync.WaitGroup
	)
	for r := 0; r < np; r++ {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			fn(cluster.Controller(rank))
		}(r)
	}
	wg.Wait()
}

func TestLocalControllerAllToAll(t *testing.T) {
	var (
		np   = 4
		recv = make([][][]byte, np)
	)
	runRanks(np, func(c *LocalController) {
		assert.Equal(t, np, c.NumberOfProcesses())
		for round := 0; round < 3; round++ {
			send := make([][]byte, np)
			for dst := range send {
				send[dst] = []byte(fmt.Sprintf("%d->%d@%d", c.Rank(), dst, round))
			}
			got, err := c.AllToAll(context.Background(), send)
			assert.NoError(t, err)
			recv[c.Rank()] = got
			assert.NoError(t, c.Barrier(context.Background()))
		}
	})
	for rank := 0; rank < np; rank++ {
		for src := 0; src < np; src++ {
			assert.Equal(t, fmt.Sprintf("%d->%d@2", src, rank), string(recv[rank][src]))
		}
	}
}

func TestLocalControllerEnvelopes(t *testing.T) {
	var (
		np  = 3
		got = make([][]Envelope, np)
	)
	runRanks(np, func(c *LocalController) {
		// Every rank sends one envelope to each higher rank, and two to itself
		for dst := c.Rank() + 1; dst < np; dst++ {
			assert.NoError(t, c.Enqueue(dst, Envelope{From: c.Rank(), To: dst, Phase: PhaseProposals}))
		}
		assert.NoError(t, c.Enqueue(c.Rank(), Envelope{From: c.Rank(), To: 10 + c.Rank(), Phase: PhaseCandidates}))
		assert.NoError(t, c.Enqueue(c.Rank(), Envelope{From: c.Rank(), To: c.Rank(), Phase: PhaseCandidates}))
		envs, err := c.Dequeue(context.Background())
		assert.NoError(t, err)
		got[c.Rank()] = envs
		// A quiet round delivers nothing
		envs, err = c.Dequeue(context.Background())
		assert.NoError(t, err)
		assert.Empty(t, envs)
	})
	require.Len(t, got[0], 2)
	assert.Equal(t, 0, got[0][0].To)
	assert.Equal(t, 10, got[0][1].To)
	require.Len(t, got[2], 4)
	assert.Equal(t, []int{0, 1, 2, 2}, []int{got[2][0].From, got[2][1].From, got[2][2].From, got[2][3].From})
	assert.Equal(t, PhaseProposals, got[2][0].Phase)

	c := NewLocalCluster(2).Controller(0)
	err := c.Enqueue(5, Envelope{})
	require.Error(t, err)
	assert.Equal(t, ErrTypeCommunication, errors.Type(err))
	_, err = c.AllToAll(context.Background(), [][]byte{nil})
	assert.Equal(t, ErrTypeCommunication, errors.Type(err))
}

func TestLocalControllerCancel(t *testing.T) {
	// Rank 1 never shows up, rank 0 is released by its context
	c := NewLocalCluster(2).Controller(0)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.Dequeue(ctx)
	require.Error(t, err)
	assert.Equal(t, ErrTypeCommunication, errors.Type(err))
}

func TestCodec(t *testing.T) {
	type payload struct {
		IDs  []int  `json:"ids"`
		Name string `json:"name"`
	}
	in := payload{IDs: []int{3, 1, 2}, Name: "block"}
	data, err := Encode(in)
	require.NoError(t, err)
	in.IDs[0] = 99

	var out payload
	require.NoError(t, Decode(data, &out))
	assert.Equal(t, []int{3, 1, 2}, out.IDs)
	assert.Equal(t, "block", out.Name)

	err = Decode([]byte("{not json"), &out)
	require.Error(t, err)
	assert.Equal(t, ErrTypeCommunication, errors.Type(err))

	_, err = Encode(func() {})
	assert.Error(t, err)
	assert.Equal(t, "candidates", PhaseCandidates.String())
	assert.Equal(t, "Phase(9)", Phase(9).String())
}
