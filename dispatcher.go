package tgrender

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

// DispatcherConfig wires the dispatcher's collaborators. Zero-value fields
// get defaults; Store and Logger are optional.
type DispatcherConfig struct {
	Cache     *MemoryCache
	Store     Store
	Renderers map[BlockKind]Renderer
	Timeout   time.Duration // per external tool invocation
	Logger    *slog.Logger
}

// Dispatcher is the render coordinator: a fingerprint-keyed two-tier cache
// guaranteeing at most one concurrent render per distinct fingerprint.
// Concurrent Resolve calls for the same fingerprint share a single build;
// all callers observe the same result.
type Dispatcher struct {
	cache     *MemoryCache
	store     Store
	renderers map[BlockKind]Renderer
	timeout   time.Duration
	log       *slog.Logger

	mu         sync.Mutex
	inflight   map[Fingerprint]*renderJob
	generation uint64
}

// renderJob tracks one in-flight render. It exists only while the render
// runs and is discarded once resolved into the cache.
type renderJob struct {
	done     chan struct{} // closed exactly once by the builder
	artifact []byte
	err      error

	waiters int                // guarded by Dispatcher.mu
	cancel  context.CancelFunc // cancels the build when waiters reach zero
}

// NewDispatcher creates a dispatcher. The renderer table is the closed set
// of block kinds this dispatcher can resolve.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.Cache == nil {
		cfg.Cache = NewMemoryCache(0, 0)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Dispatcher{
		cache:     cfg.Cache,
		store:     cfg.Store,
		renderers: cfg.Renderers,
		timeout:   cfg.Timeout,
		log:       cfg.Logger.With("component", "dispatcher"),
		inflight:  make(map[Fingerprint]*renderJob),
	}
}

// Resolve returns the rendered artifact for a block, from cache when
// possible. Safe for concurrent use; identical block+settings pairs are
// rendered at most once while any caller still waits for them. Failures
// are never cached: a later call retries from scratch.
func (d *Dispatcher) Resolve(ctx context.Context, block Block, settings Settings) ([]byte, error) {
	fp := FingerprintBlock(block, settings)

	// Fast path: resolved entries need no coordination.
	if artifact, ok := d.cache.Get(fp); ok {
		return artifact, nil
	}

	d.mu.Lock()
	if job, ok := d.inflight[fp]; ok {
		job.waiters++
		d.mu.Unlock()
		return d.wait(ctx, fp, job)
	}

	// Claim ownership: this caller is the builder. The build runs on its
	// own context so detaching waiters never kills a shared render; it is
	// cancelled only when the last waiter leaves.
	buildCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	job := &renderJob{done: make(chan struct{}), waiters: 1, cancel: cancel}
	d.inflight[fp] = job
	generation := d.generation
	d.mu.Unlock()

	go d.build(buildCtx, fp, block, settings, generation, job)
	return d.wait(ctx, fp, job)
}

// wait blocks until the job resolves or the caller's context ends. A
// detaching waiter decrements the refcount; the last one out cancels the
// build.
func (d *Dispatcher) wait(ctx context.Context, fp Fingerprint, job *renderJob) ([]byte, error) {
	select {
	case <-job.done:
		return job.artifact, job.err
	case <-ctx.Done():
		d.mu.Lock()
		job.waiters--
		if job.waiters == 0 {
			job.cancel()
		}
		d.mu.Unlock()
		return nil, ctx.Err()
	}
}

// build performs the render on behalf of the builder and all waiters:
// durable-tier lookup first, then the external tool with a bounded
// timeout. Results from a generation older than the current one are handed
// to waiters but never written back (clear wins over stale writes).
func (d *Dispatcher) build(ctx context.Context, fp Fingerprint, block Block, settings Settings, generation uint64, job *renderJob) {
	defer job.cancel()

	artifact, err := d.lookupOrRender(ctx, fp, block, settings)

	// The generation check and the memory-tier insert must be one atomic
	// step: a Clear landing between them would leave a pre-clear artifact
	// in the cache. The durable tier enforces this on its own via the
	// generation high-water mark.
	d.mu.Lock()
	delete(d.inflight, fp)
	fresh := err == nil && generation == d.generation
	if fresh {
		d.cache.Put(fp, artifact)
	}
	d.mu.Unlock()

	if fresh {
		// The artifact is valid even if every waiter has detached by now;
		// the durable write must not die with the build context.
		d.storePut(context.WithoutCancel(ctx), fp, artifact, generation)
	}

	job.artifact, job.err = artifact, err
	close(job.done)
}

func (d *Dispatcher) lookupOrRender(ctx context.Context, fp Fingerprint, block Block, settings Settings) ([]byte, error) {
	// Durable tier may hold a render from another process or a prior run.
	if d.store != nil {
		data, ok, err := d.store.Get(ctx, fp)
		switch {
		case err != nil:
			d.log.Warn("durable cache read failed, continuing without it",
				"fingerprint", string(fp)[:12], "error", err)
		case ok:
			return data, nil
		}
	}

	renderer, ok := d.renderers[block.Kind]
	if !ok {
		return nil, fmt.Errorf("no renderer for %s blocks", block.Kind)
	}

	rctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := time.Now()
	artifact, err := renderer.Render(rctx, block, settings)
	if err != nil {
		d.log.Warn("render failed", "kind", block.Kind.String(), "error", err)
		return nil, err
	}
	d.log.Debug("rendered block",
		"kind", block.Kind.String(),
		"bytes", len(artifact),
		"elapsed", time.Since(start))
	return artifact, nil
}

// storePut writes to the durable tier; unavailability degrades to
// memory-only caching and is only logged.
func (d *Dispatcher) storePut(ctx context.Context, fp Fingerprint, artifact []byte, generation uint64) {
	if d.store == nil {
		return
	}
	if err := d.store.Put(ctx, fp, artifact, generation); err != nil {
		d.log.Warn("durable cache write failed",
			"fingerprint", string(fp)[:12], "error", fmt.Errorf("%w: %v", ErrCacheTierUnavailable, err))
	}
}

// ClearResult reports the per-tier outcome of a cache clear.
type ClearResult struct {
	MemoryCleared  bool
	DurableCleared bool
	DurableErr     error // set when the durable purge failed (best effort)
}

// Clear removes all resolved entries from both tiers and bumps the cache
// generation so renders in flight when the clear started cannot repopulate
// either tier. In-flight jobs still complete and deliver their result to
// waiters. Idempotent; the durable purge is best effort.
func (d *Dispatcher) Clear(ctx context.Context) ClearResult {
	d.mu.Lock()
	d.generation++
	generation := d.generation
	d.mu.Unlock()

	d.cache.Clear()
	result := ClearResult{MemoryCleared: true}

	if d.store == nil {
		result.DurableCleared = true
		return result
	}
	if err := d.store.Clear(ctx, generation); err != nil {
		result.DurableErr = fmt.Errorf("%w: %v", ErrCacheTierUnavailable, err)
		d.log.Warn("durable cache purge failed", "error", result.DurableErr)
		return result
	}
	result.DurableCleared = true
	return result
}
