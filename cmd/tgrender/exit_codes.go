package main

import (
	"errors"
	"os"

	tgrender "github.com/rmolchanov/go-tgrender"
	"github.com/rmolchanov/go-tgrender/internal/config"
)

// Exit codes for the tgrender CLI.
// Follows Unix conventions: 0=success, 1=general, 2=usage, and custom codes < 126.
const (
	ExitSuccess = 0 // Successful render
	ExitGeneral = 1 // General/unexpected error
	ExitUsage   = 2 // Invalid flags, config, or validation
	ExitIO      = 3 // File not found, permission denied
	ExitTool    = 4 // External render tool missing or failing
)

// exitCodeFor returns the appropriate exit code for an error.
// It uses errors.Is to check wrapped errors, so callers must use fmt.Errorf("%w", err).
func exitCodeFor(err error) int {
	if err == nil {
		return ExitSuccess
	}

	// External tool errors (exit 4)
	if errors.Is(err, tgrender.ErrToolUnavailable) ||
		errors.Is(err, tgrender.ErrRenderTimeout) ||
		errors.Is(err, tgrender.ErrRenderExit) ||
		errors.Is(err, tgrender.ErrEmptyRenderOutput) {
		return ExitTool
	}

	// I/O errors (exit 3)
	if errors.Is(err, os.ErrNotExist) ||
		errors.Is(err, os.ErrPermission) ||
		errors.Is(err, ErrReadInput) ||
		errors.Is(err, ErrWriteOutput) {
		return ExitIO
	}

	// Usage/config/validation errors (exit 2)
	if errors.Is(err, ErrInvalidArgs) ||
		errors.Is(err, config.ErrConfigNotFound) ||
		errors.Is(err, config.ErrConfigParse) ||
		errors.Is(err, tgrender.ErrEmptyDocument) ||
		errors.Is(err, tgrender.ErrUnsupportedFormat) ||
		errors.Is(err, tgrender.ErrInvalidSettings) {
		return ExitUsage
	}

	return ExitGeneral
}
