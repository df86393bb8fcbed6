package tgrender

import (
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
)

// puppeteerNoise strips node/puppeteer warning prefixes from mmdc stderr
// so failures read as mermaid errors, not browser chatter.
var puppeteerNoise = regexp.MustCompile(`\(node:\d+\) \[[^\]]+\] `)

// mermaidRenderer renders a Mermaid diagram to PNG via the Mermaid CLI
// (mmdc). When mmdc is not installed it falls back to headless Chrome.
type mermaidRenderer struct {
	runner          CommandRunner
	puppeteerConfig string // optional -p config path for containers
	fallback        Renderer
}

func newMermaidRenderer(runner CommandRunner) *mermaidRenderer {
	return &mermaidRenderer{
		runner:          runner,
		puppeteerConfig: os.Getenv("TGRENDER_PUPPETEER_CONFIG"),
		fallback:        newMermaidRodRenderer(),
	}
}

// Render writes the diagram source to a temp file and invokes mmdc with a
// transparent background. Settings do not affect diagram rendering; mmdc
// chooses its own dimensions.
func (r *mermaidRenderer) Render(ctx context.Context, block Block, settings Settings) ([]byte, error) {
	if _, err := exec.LookPath("mmdc"); err != nil && r.fallback != nil {
		return r.fallback.Render(ctx, block, settings)
	}

	dir, cleanup, err := writeToolInput("diagram.mmd", block.Payload)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	outPath := filepath.Join(dir, "diagram.png")
	args := []string{"-i", filepath.Join(dir, "diagram.mmd"), "-o", outPath, "-b", "transparent"}
	if r.puppeteerConfig != "" {
		args = append([]string{"-p", r.puppeteerConfig}, args...)
	}

	stdout, stderr, err := r.runner.Run(ctx, dir, "mmdc", args...)
	if err != nil {
		if stderr == "" {
			stderr = stdout
		}
		return nil, classifyRunError(ctx, "mmdc", puppeteerNoise.ReplaceAllString(stderr, ""), err)
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		return nil, &RenderError{Tool: "mmdc", Err: ErrEmptyRenderOutput}
	}
	return data, nil
}

// Close releases the fallback browser, if it was ever launched.
func (r *mermaidRenderer) Close() error {
	if c, ok := r.fallback.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
