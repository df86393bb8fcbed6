package tgrender

import (
	"context"
	"fmt"
	"os/exec"
)

// Renderer is the uniform contract over external rendering engines. A
// renderer constructs the tool's input, enforces the caller's deadline by
// terminating the subprocess, and maps failures into typed errors. It
// never caches; that is the dispatcher's job.
type Renderer interface {
	Render(ctx context.Context, block Block, settings Settings) ([]byte, error)
}

// DefaultRenderers returns the renderer table for all renderable block
// kinds, shelling out to the standard toolchain.
func DefaultRenderers(runner CommandRunner) map[BlockKind]Renderer {
	if runner == nil {
		runner = &ExecRunner{}
	}
	return map[BlockKind]Renderer{
		KindMath:    newLatexRenderer(runner),
		KindDiagram: newMermaidRenderer(runner),
	}
}

// ToolStatus reports the availability of one external binary.
type ToolStatus struct {
	Name  string
	Path  string
	Found bool
}

// renderTools lists the binaries the default renderer table depends on.
// mmdc is optional (the go-rod fallback covers diagrams without it);
// pandoc is only needed when the pandoc HTML converter is selected.
var renderTools = []struct {
	name     string
	optional bool
}{
	{name: "latex"},
	{name: "dvipng"},
	{name: "mmdc", optional: true},
	{name: "pandoc", optional: true},
}

// CheckTools probes the external toolchain. The returned error is non-nil
// when a required tool is missing; this is a startup/health-check failure
// (ErrToolUnavailable), never a per-request one.
func CheckTools() ([]ToolStatus, error) {
	var statuses []ToolStatus
	var missing error
	for _, tool := range renderTools {
		path, err := exec.LookPath(tool.name)
		status := ToolStatus{Name: tool.name, Path: path, Found: err == nil}
		statuses = append(statuses, status)
		if !status.Found && !tool.optional && missing == nil {
			missing = fmt.Errorf("%w: %s", ErrToolUnavailable, tool.name)
		}
	}
	return statuses, missing
}
