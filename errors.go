package tgrender

import (
	"errors"
	"fmt"
)

// Sentinel errors for library operations.
var (
	ErrEmptyDocument     = errors.New("document cannot be empty")
	ErrUnsupportedFormat = errors.New("unsupported output format")
	ErrInvalidSettings   = errors.New("invalid render settings")

	// Sanitizer errors: the math could not be made valid deterministically.
	ErrUnbalancedEnvironment = errors.New("unbalanced latex environment")

	// Render tool errors.
	ErrRenderTimeout     = errors.New("render tool timed out")
	ErrRenderExit        = errors.New("render tool exited with error")
	ErrToolUnavailable   = errors.New("render tool not found")
	ErrEmptyRenderOutput = errors.New("render tool produced no output")

	// Cache errors.
	ErrCacheTierUnavailable = errors.New("durable cache tier unavailable")

	// Assembly errors.
	ErrAssemblyOverflow = errors.New("content exceeds output format limits")

	// Article publishing errors.
	ErrImageUpload    = errors.New("image upload failed")
	ErrArticlePublish = errors.New("article publish failed")
)

// RenderError describes a failed external tool invocation. It wraps one of
// the render sentinel errors so callers can match with errors.Is.
type RenderError struct {
	Tool   string // binary name, e.g. "latex", "mmdc"
	Err    error  // ErrRenderTimeout, ErrRenderExit or ErrToolUnavailable
	Detail string // first log error line or trimmed stderr excerpt
}

// Error implements the error interface.
func (e *RenderError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: %v", e.Tool, e.Err)
	}
	return fmt.Sprintf("%s: %v: %s", e.Tool, e.Err, e.Detail)
}

// Unwrap returns the sentinel cause.
func (e *RenderError) Unwrap() error { return e.Err }
