package tgrender

import (
	"context"
	"runtime"
)

// Worker pool sizing constants.
const (
	// MinWorkers ensures at least one block renders at a time.
	MinWorkers = 1

	// MaxWorkers caps concurrent tool processes to limit memory; latex
	// and the browser behind mmdc are both heavyweight children.
	MaxWorkers = 8

	// cpuDivisor leaves headroom for the tools' own child processes.
	cpuDivisor = 2
)

// ResolveWorkers determines the render worker-pool size.
// Priority: explicit workers > GOMAXPROCS-based calculation.
func ResolveWorkers(workers int) int {
	if workers > 0 {
		return workers
	}

	// Auto-calculate from GOMAXPROCS (adjusted by automaxprocs in
	// containerized deployments).
	n := runtime.GOMAXPROCS(0) / cpuDivisor
	if n < MinWorkers {
		return MinWorkers
	}
	if n > MaxWorkers {
		return MaxWorkers
	}
	return n
}

// workerPool bounds concurrent block renders for one service. A slow
// block occupies one slot; unrelated blocks keep rendering in the others.
type workerPool struct {
	slots chan struct{}
}

func newWorkerPool(size int) *workerPool {
	return &workerPool{slots: make(chan struct{}, size)}
}

// Acquire claims a slot, honoring caller cancellation while waiting.
func (p *workerPool) Acquire(ctx context.Context) error {
	select {
	case p.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees a slot.
func (p *workerPool) Release() {
	<-p.slots
}
