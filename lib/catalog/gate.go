package catalog

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Gate bounds concurrent calls to the catalog source across the whole
// process. A permit is held only for the duration of one outbound call,
// never across downstream processing.
type Gate struct {
	sem *semaphore.Weighted
}

func NewGate(permits int64) *Gate {
	return &Gate{sem: semaphore.NewWeighted(permits)}
}

func (g *Gate) Acquire(ctx context.Context) error {
	return g.sem.Acquire(ctx, 1)
}

func (g *Gate) Release() {
	g.sem.Release(1)
}
