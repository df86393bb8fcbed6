package tgrender

import (
	"context"
	"fmt"
	"html"
	"os"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// mermaidPage hosts the diagram for client-side rendering in headless
// Chrome. The transparent body matches mmdc's -b transparent output.
const mermaidPage = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<script src="https://cdn.jsdelivr.net/npm/mermaid@10/dist/mermaid.min.js"></script>
</head>
<body style="background: transparent; margin: 0;">
<pre class="mermaid">%s</pre>
<script>mermaid.initialize({ startOnLoad: true });</script>
</body>
</html>`

// mermaidRodRenderer renders Mermaid diagrams without the Mermaid CLI by
// loading mermaid.js in headless Chrome and screenshotting the produced
// SVG. Rod downloads a managed Chromium on first run if none is found.
type mermaidRodRenderer struct {
	mu      sync.Mutex
	browser *rod.Browser
}

func newMermaidRodRenderer() *mermaidRodRenderer {
	return &mermaidRodRenderer{}
}

// ensureBrowser lazily launches and connects to the browser.
func (r *mermaidRodRenderer) ensureBrowser() (*rod.Browser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.browser != nil {
		return r.browser, nil
	}

	l := launcher.New()
	if bin := os.Getenv("ROD_BROWSER_BIN"); bin != "" {
		l = l.Bin(bin)
	}
	// NoSandbox required for CI and containerized environments.
	if os.Getenv("CI") == "true" || os.Getenv("ROD_NO_SANDBOX") != "" {
		l = l.NoSandbox(true)
	}
	u, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("%w: mmdc missing and chrome launch failed: %v", ErrToolUnavailable, err)
	}

	browser := rod.New().ControlURL(u)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("%w: mmdc missing and chrome connect failed: %v", ErrToolUnavailable, err)
	}
	r.browser = browser
	return browser, nil
}

// Close releases browser resources.
func (r *mermaidRodRenderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.browser != nil {
		err := r.browser.Close()
		r.browser = nil
		return err
	}
	return nil
}

// Render loads the diagram page and screenshots the rendered SVG element.
func (r *mermaidRodRenderer) Render(ctx context.Context, block Block, settings Settings) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	browser, err := r.ensureBrowser()
	if err != nil {
		return nil, err
	}

	dir, cleanup, err := writeToolInput("diagram.html", fmt.Sprintf(mermaidPage, html.EscapeString(block.Payload)))
	if err != nil {
		return nil, err
	}
	defer cleanup()

	page, err := browser.Page(proto.TargetCreateTarget{URL: "file://" + dir + "/diagram.html"})
	if err != nil {
		return nil, &RenderError{Tool: "chrome", Err: ErrRenderExit, Detail: err.Error()}
	}
	defer page.Close()

	timeout := defaultTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
		if timeout <= 0 {
			return nil, context.DeadlineExceeded
		}
	}
	page = page.Timeout(timeout)

	if err := page.WaitLoad(); err != nil {
		return nil, classifyRodError(ctx, err)
	}
	// mermaid.js replaces the <pre> content with an <svg> once it parses.
	el, err := page.Element("svg")
	if err != nil {
		return nil, classifyRodError(ctx, err)
	}
	data, err := el.Screenshot(proto.PageCaptureScreenshotFormatPng, 0)
	if err != nil {
		return nil, classifyRodError(ctx, err)
	}
	return data, nil
}

func classifyRodError(ctx context.Context, err error) error {
	if ctx.Err() == context.DeadlineExceeded {
		return &RenderError{Tool: "chrome", Err: ErrRenderTimeout}
	}
	return &RenderError{Tool: "chrome", Err: ErrRenderExit, Detail: stderrExcerpt(err.Error())}
}
