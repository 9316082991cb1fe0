package orchestrator

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// pool is the bounded worker pool spec §4.6/§5 require: "the maximum
// parallel jobs must not exceed N... to cap RPC concurrency to external
// validators." Grounded on the semaphore.NewWeighted fan-out limiter in
// resultcollector.batchSaveVerdicts, generalized from a per-request
// semaphore acquired inside an errgroup to a long-lived pool that
// outlives any single SubmitJob call (jobs are fire-and-forget from the
// caller's perspective, per spec §4.6 "return it immediately").
type pool struct {
	sem *semaphore.Weighted
	ctx context.Context
}

// newPool builds a pool capping concurrent job execution at maxParallel.
func newPool(maxParallel int) *pool {
	if maxParallel <= 0 {
		maxParallel = 1
	}
	return &pool{sem: semaphore.NewWeighted(int64(maxParallel)), ctx: context.Background()}
}

// submit runs fn on its own goroutine once a pool slot is available.
// Scheduled runs (hourly, weekly) share this same pool with
// operator-submitted jobs (spec §4.6 "Scheduled runs").
func (p *pool) submit(fn func(ctx context.Context)) {
	go func() {
		if err := p.sem.Acquire(p.ctx, 1); err != nil {
			return
		}
		defer p.sem.Release(1)
		fn(p.ctx)
	}()
}
