package tgrender

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rmolchanov/go-tgrender/internal/process"
)

// killWaitDelay bounds how long Wait blocks on I/O after the process is
// killed on cancellation.
const killWaitDelay = 3 * time.Second

// CommandRunner abstracts external tool execution to enable testing
// without real subprocesses.
type CommandRunner interface {
	Run(ctx context.Context, dir, name string, args ...string) (stdout, stderr string, err error)
}

// ExecRunner implements CommandRunner using os/exec. Cancellation kills
// the whole process group so tool children (e.g. the browser mmdc spawns)
// do not outlive the render.
type ExecRunner struct{}

func (r *ExecRunner) Run(ctx context.Context, dir, name string, args ...string) (string, string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	cmd.Cancel = func() error {
		if cmd.Process != nil {
			process.KillProcessGroup(cmd.Process.Pid)
		}
		return cmd.Process.Kill()
	}
	cmd.WaitDelay = killWaitDelay

	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

// classifyRunError maps a raw subprocess failure into a typed RenderError.
// Context expiry wins over exit status: a killed tool reports a nonsense
// exit code.
func classifyRunError(ctx context.Context, tool, stderr string, err error) error {
	if err == nil {
		return nil
	}
	if ctx.Err() == context.DeadlineExceeded || errors.Is(err, context.DeadlineExceeded) {
		return &RenderError{Tool: tool, Err: ErrRenderTimeout}
	}
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
		return &RenderError{Tool: tool, Err: ErrToolUnavailable}
	}
	return &RenderError{Tool: tool, Err: ErrRenderExit, Detail: stderrExcerpt(stderr)}
}

// stderrExcerpt trims tool output to a single readable line for error
// messages; full output stays in logs only.
func stderrExcerpt(stderr string) string {
	stderr = strings.TrimSpace(stderr)
	if stderr == "" {
		return ""
	}
	if i := strings.IndexByte(stderr, '\n'); i >= 0 {
		stderr = stderr[:i]
	}
	const maxExcerpt = 200
	if len(stderr) > maxExcerpt {
		stderr = stderr[:maxExcerpt] + "..."
	}
	return stderr
}

// writeToolInput creates a temp working directory holding the tool's input
// file. The caller renders inside the directory and must call cleanup.
func writeToolInput(filename, content string) (dir string, cleanup func(), err error) {
	dir, err = os.MkdirTemp("", "tgrender-*")
	if err != nil {
		return "", nil, fmt.Errorf("creating temp dir: %w", err)
	}
	cleanup = func() { _ = os.RemoveAll(dir) }

	if err := os.WriteFile(filepath.Join(dir, filename), []byte(content), 0o600); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("writing tool input: %w", err)
	}
	return dir, cleanup, nil
}
