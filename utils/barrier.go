package utils

import (
	"context"
	"sync"
)

// Barrier is a reusable rendezvous point for a fixed number of participants.
type Barrier struct {
	mu      sync.Mutex
	np      int
	count   int
	release chan struct{}
}

func NewBarrier(np int) *Barrier {
	return &Barrier{
		np:      np,
		release: make(chan struct{}),
	}
}

// Wait blocks until np participants have called Wait, or ctx is done. A
// participant that leaves on ctx leaves the barrier broken for the round.
func (b *Barrier) Wait(ctx context.Context) (err error) {
	b.mu.Lock()
	release := b.release
	b.count++
	if b.count == b.np {
		b.count = 0
		b.release = make(chan struct{})
		close(release)
		b.mu.Unlock()
		return
	}
	b.mu.Unlock()
	select {
	case <-release:
	case <-ctx.Done():
		err = ctx.Err()
	}
	return
}
