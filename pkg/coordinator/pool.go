package coordinator

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// WorkerPool bounds how many CPU-heavy jobs (template matching, OCR) run at
// once so interactive callers are never starved by a burst of scans.
type WorkerPool struct {
	sem *semaphore.Weighted
}

func NewWorkerPool(size int) *WorkerPool {
	if size <= 0 {
		size = 2
	}
	return &WorkerPool{sem: semaphore.NewWeighted(int64(size))}
}

// Run blocks until a worker slot is free (or ctx is done), then executes fn
// on the calling goroutine. Callers that must not block dispatch Run from
// their own goroutine and await the result.
func (p *WorkerPool) Run(ctx context.Context, fn func() error) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sem.Release(1)
	return fn()
}
