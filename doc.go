// Package tgrender renders mixed Markdown/LaTeX/Mermaid documents into
// Telegram-consumable outputs: inline text with images, a self-contained
// HTML file, a hosted article, or the raw source.
//
// # Quick Start
//
// Create a service, render a document, and close when done:
//
//	svc := tgrender.New()
//	defer svc.Close()
//
//	doc, err := svc.Render(ctx, tgrender.Request{
//	    Document: "Result: $$x^2$$",
//	    Format:   tgrender.FormatTextImages,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, part := range doc.Parts {
//	    // part.Text or part.Image
//	}
//
// # Pipeline
//
// Rendering follows these stages:
//
//  1. The document is split into typed blocks (text, math, diagram, code,
//     image reference).
//  2. Math blocks are sanitized so the external typesetter accepts them.
//  3. Each renderable block is resolved through a fingerprint-keyed cache;
//     at most one render runs per distinct (content, settings) fingerprint,
//     concurrent callers share the in-flight result.
//  4. Resolved blocks are assembled into the requested output format,
//     chunked to fit platform size limits.
//
// # External Tools
//
// Image rendering shells out to latex + dvipng for math and the Mermaid CLI
// (mmdc) for diagrams; Markdown-to-HTML conversion runs in process via
// goldmark, or through pandoc when WithPandocHTML is set. Each invocation
// has a bounded timeout. When mmdc is missing, diagrams fall back to headless
// Chrome via go-rod. Run the doctor command of cmd/tgrender to verify the
// toolchain.
//
// # Caching
//
// The cache has two tiers: a bounded in-memory LRU and an optional durable
// store (see internal/sqlitestore). Clearing the cache bumps a generation
// counter so renders already in flight cannot repopulate it.
package tgrender
