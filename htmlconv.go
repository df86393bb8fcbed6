package tgrender

import (
	"bytes"
	"context"
	"fmt"

	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	highlighting "github.com/yuin/goldmark-highlighting/v2"
)

// htmlConverter abstracts Markdown to HTML conversion so the assembler can
// use either the in-process goldmark pipeline or the external pandoc tool.
type htmlConverter interface {
	ToHTML(ctx context.Context, content string) (string, error)
}

// goldmarkConverter converts Markdown to an HTML fragment using goldmark
// (pure Go), with GFM extensions and server-side syntax highlighting.
type goldmarkConverter struct {
	md goldmark.Markdown
}

func newGoldmarkConverter() *goldmarkConverter {
	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,      // tables, strikethrough, autolinks, task lists
			extension.Footnote, // [^1] footnotes
			highlighting.NewHighlighting(
				highlighting.WithStyle("github"),
				highlighting.WithFormatOptions(chromahtml.WithClasses(false)),
			),
		),
		goldmark.WithRendererOptions(
			html.WithXHTML(),
		),
	)
	return &goldmarkConverter{md: md}
}

// ToHTML converts Markdown content to an HTML fragment. Supports context
// cancellation via goroutine + select since goldmark has no context hook.
func (c *goldmarkConverter) ToHTML(ctx context.Context, content string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	type result struct {
		html string
		err  error
	}
	done := make(chan result, 1)

	go func() {
		var buf bytes.Buffer
		if err := c.md.Convert([]byte(content), &buf); err != nil {
			done <- result{err: fmt.Errorf("converting markdown: %w", err)}
			return
		}
		done <- result{html: buf.String()}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-done:
		return r.html, r.err
	}
}

// PandocConverter converts Markdown to HTML by invoking the pandoc CLI.
// It is the subprocess alternative to the goldmark pipeline, selectable
// via WithPandocHTML.
type PandocConverter struct {
	Runner CommandRunner
}

// NewPandocConverter creates a PandocConverter with a real command runner.
func NewPandocConverter() *PandocConverter {
	return &PandocConverter{Runner: &ExecRunner{}}
}

// ToHTML converts Markdown content to an HTML fragment using pandoc.
// Uses -f markdown-fancy_lists to keep letter markers (A), B), ...) as
// written instead of converting them to numbered lists.
func (c *PandocConverter) ToHTML(ctx context.Context, content string) (string, error) {
	dir, cleanup, err := writeToolInput("input.md", content)
	if err != nil {
		return "", err
	}
	defer cleanup()

	stdout, stderr, err := c.Runner.Run(ctx, dir, "pandoc",
		"input.md", "-f", "markdown-fancy_lists", "-t", "html5")
	if err != nil {
		return "", classifyRunError(ctx, "pandoc", stderr, err)
	}
	return stdout, nil
}
