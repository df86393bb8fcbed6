package tgrender

import (
	"context"
	"fmt"
	"html"
	"strings"
)

// htmlShell wraps the assembled body in a self-contained document. Math is
// left as $-delimited source for client-side KaTeX and diagrams keep their
// Mermaid source in <pre class="mermaid"> for interactive re-rendering, so
// the file needs no server round trips beyond the CDN assets.
const htmlShell = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>%s</title>
<link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/katex@0.16.9/dist/katex.min.css">
<script src="https://cdn.jsdelivr.net/npm/katex@0.16.9/dist/katex.min.js"></script>
<script defer src="https://cdn.jsdelivr.net/npm/katex@0.16.9/dist/contrib/auto-render.min.js"
  onload="renderMathInElement(document.body, { delimiters: [ {left: '$$', right: '$$', display: true}, {left: '$', right: '$', display: false} ], throwOnError: false });"></script>
<script src="https://cdn.jsdelivr.net/npm/mermaid@10/dist/mermaid.min.js"></script>
<style>
:root { --bg-color: #ffffff; --text-color: #24292e; --link-color: #0366d6;
        --border-color: #eaecef; --code-bg-color: #f6f8fa; }
body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, Helvetica, Arial, sans-serif;
       line-height: 1.6; margin: 0 auto; padding: 20px; max-width: 800px;
       background-color: var(--bg-color); color: var(--text-color); }
@media (prefers-color-scheme: dark) {
  :root { --bg-color: #0d1117; --text-color: #c9d1d9; --link-color: #58a6ff;
          --border-color: #30363d; --code-bg-color: #161b22; }
}
a { color: var(--link-color); }
pre { background-color: var(--code-bg-color); padding: 16px; overflow: auto;
      border-radius: 6px; border: 1px solid var(--border-color); }
code { font-family: "SFMono-Regular", Consolas, "Liberation Mono", Menlo, Courier, monospace; }
table { border-collapse: collapse; width: 100%%; margin: 1em 0; border: 1px solid var(--border-color); }
th, td { border: 1px solid var(--border-color); padding: 6px 13px; text-align: left; }
h1, h2, h3, h4, h5, h6 { border-bottom: 1px solid var(--border-color);
                         padding-bottom: .3em; margin-top: 24px; margin-bottom: 16px; }
.render-failed { color: #d73a49; font-style: italic; }
</style>
</head>
<body>
<main>%s</main>
<script>
document.addEventListener("DOMContentLoaded", function() {
  if (typeof mermaid !== 'undefined') mermaid.initialize({ startOnLoad: true });
});
</script>
</body>
</html>`

// assembleHTML builds the self-contained HTML document from resolved
// blocks. Renderable blocks keep their source for client-side rendering,
// so artifacts are not needed for this format.
func assembleHTML(ctx context.Context, conv htmlConverter, title string, blocks []resolvedBlock) (string, error) {
	var body strings.Builder
	for _, rb := range blocks {
		if rb.err != nil {
			fmt.Fprintf(&body, `<p class="render-failed">%s</p>`+"\n", html.EscapeString(failurePlaceholder(rb)))
			continue
		}
		switch rb.block.Kind {
		case KindMath:
			delim := "$"
			if rb.block.Display {
				delim = "$$"
			}
			fmt.Fprintf(&body, "<p>%s%s%s</p>\n", delim, html.EscapeString(rb.block.Payload), delim)
		case KindDiagram:
			fmt.Fprintf(&body, `<pre class="mermaid">%s</pre>`+"\n", html.EscapeString(rb.block.Payload))
		case KindRawImage:
			fmt.Fprintf(&body, `<img src="%s" />`+"\n", html.EscapeString(rb.block.Payload))
		default:
			fragment, err := conv.ToHTML(ctx, rb.block.Payload)
			if err != nil {
				return "", err
			}
			body.WriteString(fragment)
		}
	}
	title = html.EscapeString(title)
	if title == "" {
		title = "Document"
	}
	return fmt.Sprintf(htmlShell, title, body.String()), nil
}
