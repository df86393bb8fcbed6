package tgrender

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// Service orchestrates the document render pipeline: parse, sanitize,
// resolve artifacts through the cache, assemble.
type Service struct {
	cfg       serviceConfig
	conv      htmlConverter
	host      ImageHost
	cache     *MemoryCache
	store     Store
	renderers map[BlockKind]Renderer
	log       *slog.Logger

	dispatcher *Dispatcher
	pool       *workerPool
}

// New creates a Service with default configuration.
// Use options to customize behavior (e.g., WithTimeout, WithStore).
func New(opts ...Option) *Service {
	s := &Service{
		cfg:  serviceConfig{timeout: defaultTimeout},
		conv: newGoldmarkConverter(),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.log == nil {
		s.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if s.cache == nil {
		s.cache = NewMemoryCache(0, 0)
	}
	// Create the renderer table if not injected (e.g., by tests)
	if s.renderers == nil {
		s.renderers = DefaultRenderers(&ExecRunner{})
	}

	s.dispatcher = NewDispatcher(DispatcherConfig{
		Cache:     s.cache,
		Store:     s.store,
		Renderers: s.renderers,
		Timeout:   s.cfg.timeout,
		Logger:    s.log,
	})
	s.pool = newWorkerPool(ResolveWorkers(s.cfg.workers))

	return s
}

// Render runs the full pipeline and returns the assembled document.
// The context is used for cancellation and timeout.
//
// A failed block render degrades that block to a visible placeholder; it
// does not fail the document. Document-level errors (empty input, invalid
// settings, unsupported format, article publish failure) do.
func (s *Service) Render(ctx context.Context, req Request) (*AssembledDocument, error) {
	if err := s.validateRequest(&req); err != nil {
		return nil, err
	}

	// Raw never touches parsing or rendering.
	if req.Format == FormatRaw {
		return &AssembledDocument{
			Format: FormatRaw,
			Parts:  []Part{{Kind: PartText, Text: req.Document}},
		}, nil
	}

	blocks := ParseDocument(req.Document, req.Dialect)
	resolved, err := s.resolveBlocks(ctx, blocks, req.Settings)
	if err != nil {
		return nil, err
	}

	a := &assembler{conv: s.conv, host: s.host}
	doc, err := a.assemble(ctx, req, resolved)
	if err != nil {
		return nil, err
	}
	if doc.FailedCount() > 0 {
		s.log.Warn("document assembled with failed blocks",
			"failed", doc.FailedCount(), "total", len(blocks))
	}
	return doc, nil
}

// validateRequest checks the request and fills defaults in place.
func (s *Service) validateRequest(req *Request) error {
	if req.Document == "" {
		return ErrEmptyDocument
	}
	if req.Dialect == "" {
		req.Dialect = DialectMarkdown
	}
	if req.Dialect != DialectMarkdown {
		return fmt.Errorf("%w: dialect %q", ErrUnsupportedFormat, req.Dialect)
	}
	switch req.Format {
	case FormatTextImages, FormatHTML, FormatArticle, FormatRaw:
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, req.Format)
	}
	if (req.Settings == Settings{}) {
		req.Settings = DefaultSettings()
	}
	return req.Settings.Validate()
}

// resolveBlocks renders all renderable blocks concurrently, bounded by
// the worker pool. Math payloads are sanitized first; a sanitize failure
// marks the block failed without spending a render slot on it.
func (s *Service) resolveBlocks(ctx context.Context, blocks []Block, settings Settings) ([]resolvedBlock, error) {
	resolved := make([]resolvedBlock, len(blocks))

	var wg sync.WaitGroup
	for i, block := range blocks {
		resolved[i] = resolvedBlock{block: block}
		if !block.Kind.Renderable() {
			continue
		}

		if block.Kind == KindMath {
			fixed, err := SanitizeMath(block.Payload)
			if err != nil {
				resolved[i].err = err
				continue
			}
			resolved[i].block.Payload = fixed
		}

		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := s.pool.Acquire(ctx); err != nil {
				resolved[i].err = err
				return
			}
			defer s.pool.Release()
			resolved[i].artifact, resolved[i].err =
				s.dispatcher.Resolve(ctx, resolved[i].block, settings)
		}(i)
	}
	wg.Wait()

	// Caller cancellation is a document-level error, not a per-block one.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return resolved, nil
}

// ClearCache purges both cache tiers. Renders already in flight complete
// but cannot repopulate either tier.
func (s *Service) ClearCache(ctx context.Context) ClearResult {
	return s.dispatcher.Clear(ctx)
}

// Close releases renderer resources (headless browser, if launched).
func (s *Service) Close() error {
	var errs []error
	for _, r := range s.renderers {
		if c, ok := r.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
