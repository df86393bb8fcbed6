package tgrender

import (
	"fmt"
	"log/slog"
	"time"
)

// BlockKind identifies the type of a parsed document block.
type BlockKind int

// Block kinds produced by ParseDocument.
const (
	KindText BlockKind = iota
	KindMath
	KindDiagram
	KindCode
	KindRawImage
)

// String returns the lowercase kind name used in fingerprints and logs.
func (k BlockKind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindMath:
		return "math"
	case KindDiagram:
		return "diagram"
	case KindCode:
		return "code"
	case KindRawImage:
		return "rawimage"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Renderable reports whether blocks of this kind are resolved through the
// render cache. Text and code blocks pass through assembly untouched.
func (k BlockKind) Renderable() bool {
	return k == KindMath || k == KindDiagram
}

// Block is one typed segment of a parsed document. Blocks are immutable
// once parsed; Position preserves document order for reassembly.
type Block struct {
	Kind     BlockKind
	Payload  string
	Position int

	// Display is set for math blocks delimited by $$...$$.
	Display bool
}

// Dialect declares the source format of a document.
type Dialect string

// Supported source dialects.
const (
	// DialectMarkdown is GitHub-flavored Markdown with embedded $/$$ math
	// and mermaid-tagged fences.
	DialectMarkdown Dialect = "markdown"
)

// OutputFormat selects how resolved blocks are assembled.
type OutputFormat string

// Supported output formats.
const (
	FormatTextImages OutputFormat = "text+images"
	FormatHTML       OutputFormat = "html"
	FormatArticle    OutputFormat = "article"
	FormatRaw        OutputFormat = "raw"
)

// Quality bounds for render settings.
const (
	MinDPI     = 72
	MaxDPI     = 1200
	DefaultDPI = 300

	MinPadding     = 0.0
	MaxPadding     = 100.0
	DefaultPadding = 15.0
)

// Settings holds the quality knobs that participate in the cache
// fingerprint. Two renders with equal payload and equal settings are the
// same render.
type Settings struct {
	DPI     int     // raster density for math images
	Padding float64 // transparent margin around math images, pixels
}

// DefaultSettings returns the quality settings used when none are given.
func DefaultSettings() Settings {
	return Settings{DPI: DefaultDPI, Padding: DefaultPadding}
}

// Validate checks that settings are within supported bounds.
func (s Settings) Validate() error {
	if s.DPI < MinDPI || s.DPI > MaxDPI {
		return fmt.Errorf("%w: dpi %d (must be between %d and %d)", ErrInvalidSettings, s.DPI, MinDPI, MaxDPI)
	}
	if s.Padding < MinPadding || s.Padding > MaxPadding {
		return fmt.Errorf("%w: padding %.1f (must be between %.1f and %.1f)", ErrInvalidSettings, s.Padding, MinPadding, MaxPadding)
	}
	return nil
}

// Request describes one document render.
type Request struct {
	Document string       // raw document text (required)
	Dialect  Dialect      // source dialect (default: markdown)
	Format   OutputFormat // target output format (required)
	Settings Settings     // quality settings (zero value = defaults)
	Title    string       // document title, used by html and article outputs
}

// PartKind distinguishes assembled document parts.
type PartKind int

// Part kinds.
const (
	PartText PartKind = iota
	PartImage
)

// Part is one element of an assembled document: either a text segment or
// a rendered image artifact.
type Part struct {
	Kind  PartKind
	Text  string
	Image []byte

	// SourcePosition is the position of the block this part came from,
	// or the position of the first block for merged text segments.
	SourcePosition int
}

// AssembledDocument is the final pipeline output. It is cheap to rebuild
// from cached artifacts and therefore never cached itself.
type AssembledDocument struct {
	Format OutputFormat
	Parts  []Part

	// URL is set for the article format: the published article location.
	URL string

	// Failed lists the positions of blocks whose render failed and were
	// replaced with placeholders.
	Failed []int
}

// FailedCount returns the number of blocks rendered as failure placeholders.
func (d *AssembledDocument) FailedCount() int {
	return len(d.Failed)
}

// Option configures a Service.
type Option func(*Service)

// serviceConfig holds internal configuration for Service.
type serviceConfig struct {
	timeout time.Duration
	workers int
}

// defaultTimeout bounds a single external tool invocation, not the whole
// document.
const defaultTimeout = 30 * time.Second

// WithTimeout sets the per-tool-invocation timeout.
// Panics if d <= 0 (programmer error, similar to time.NewTicker).
func WithTimeout(d time.Duration) Option {
	if d <= 0 {
		panic("tgrender: WithTimeout duration must be positive")
	}
	return func(s *Service) {
		s.cfg.timeout = d
	}
}

// WithWorkers fixes the render worker-pool size instead of deriving it
// from GOMAXPROCS. Panics if n <= 0.
func WithWorkers(n int) Option {
	if n <= 0 {
		panic("tgrender: WithWorkers size must be positive")
	}
	return func(s *Service) {
		s.cfg.workers = n
	}
}

// WithCache replaces the in-memory artifact cache, e.g. to change its
// bounds via NewMemoryCache.
func WithCache(c *MemoryCache) Option {
	return func(s *Service) {
		s.cache = c
	}
}

// WithStore attaches a durable cache tier that survives restarts.
func WithStore(store Store) Option {
	return func(s *Service) {
		s.store = store
	}
}

// WithRenderer overrides the renderer for one block kind. Useful for
// tests and for swapping in alternative toolchains.
func WithRenderer(kind BlockKind, r Renderer) Option {
	return func(s *Service) {
		if s.renderers == nil {
			s.renderers = DefaultRenderers(&ExecRunner{})
		}
		s.renderers[kind] = r
	}
}

// WithImageHost sets the hosting collaborator required by the article
// output format.
func WithImageHost(host ImageHost) Option {
	return func(s *Service) {
		s.host = host
	}
}

// WithLogger sets the structured logger. Without it the service is silent.
func WithLogger(log *slog.Logger) Option {
	return func(s *Service) {
		s.log = log
	}
}

// WithPandocHTML converts Markdown through the external pandoc tool
// instead of the in-process goldmark pipeline.
func WithPandocHTML() Option {
	return func(s *Service) {
		s.conv = NewPandocConverter()
	}
}
