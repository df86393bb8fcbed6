package tgrender

import (
	"context"
	"fmt"
	"html"
	"strings"
)

// TelegramMessageLimit is the hard per-message character limit of the
// target platform. Text runs are chunked under it at block boundaries.
const TelegramMessageLimit = 4096

// resolvedBlock pairs a parsed block with its render outcome. Text and
// code blocks carry no artifact; renderable blocks carry either artifact
// bytes or the error that will become a placeholder.
type resolvedBlock struct {
	block    Block
	artifact []byte
	err      error
}

// failurePlaceholder is the visible stand-in for a block whose render
// failed. Partial success is preferred over total failure.
func failurePlaceholder(rb resolvedBlock) string {
	return fmt.Sprintf("[render failed: %v]", rb.err)
}

// assembler converts a resolved block sequence into one of the supported
// output formats.
type assembler struct {
	conv htmlConverter
	host ImageHost
}

// assemble dispatches on the output format. The format set is closed;
// unknown formats are a document-level error.
func (a *assembler) assemble(ctx context.Context, req Request, blocks []resolvedBlock) (*AssembledDocument, error) {
	switch req.Format {
	case FormatTextImages:
		return a.assembleTextImages(blocks)
	case FormatHTML:
		content, err := assembleHTML(ctx, a.conv, req.Title, blocks)
		if err != nil {
			return nil, err
		}
		doc := &AssembledDocument{
			Format: FormatHTML,
			Parts:  []Part{{Kind: PartText, Text: content}},
			Failed: failedPositions(blocks),
		}
		return doc, nil
	case FormatArticle:
		return a.assembleArticle(ctx, req.Title, blocks)
	case FormatRaw:
		// Raw bypasses the pipeline; callers get their input back.
		return &AssembledDocument{
			Format: FormatRaw,
			Parts:  []Part{{Kind: PartText, Text: req.Document}},
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, req.Format)
	}
}

// assembleTextImages emits alternating text segments and image parts.
// Consecutive text blocks are packed greedily into chunks under the
// message limit, always splitting at block boundaries, never inside one.
func (a *assembler) assembleTextImages(blocks []resolvedBlock) (*AssembledDocument, error) {
	doc := &AssembledDocument{Format: FormatTextImages}

	var pending []string
	pendingPos := -1

	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		chunks, err := chunkAtBoundaries(pending, TelegramMessageLimit)
		if err != nil {
			return err
		}
		for _, chunk := range chunks {
			doc.Parts = append(doc.Parts, Part{Kind: PartText, Text: chunk, SourcePosition: pendingPos})
		}
		pending = nil
		pendingPos = -1
		return nil
	}
	addText := func(pos int, text string) {
		if pendingPos < 0 {
			pendingPos = pos
		}
		pending = append(pending, text)
	}

	for _, rb := range blocks {
		if rb.err != nil {
			doc.Failed = append(doc.Failed, rb.block.Position)
			addText(rb.block.Position, failurePlaceholder(rb))
			continue
		}
		switch rb.block.Kind {
		case KindMath, KindDiagram:
			if err := flush(); err != nil {
				return nil, err
			}
			doc.Parts = append(doc.Parts, Part{
				Kind:           PartImage,
				Image:          rb.artifact,
				SourcePosition: rb.block.Position,
			})
		case KindRawImage:
			// Remote references stay textual; the platform previews URLs.
			addText(rb.block.Position, rb.block.Payload)
		default:
			addText(rb.block.Position, strings.TrimSpace(rb.block.Payload))
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return doc, nil
}

// chunkAtBoundaries packs block texts into chunks not exceeding limit,
// joined by blank lines. A single block that alone exceeds the limit
// cannot be split and is an overflow.
func chunkAtBoundaries(texts []string, limit int) ([]string, error) {
	const sep = "\n\n"

	var chunks []string
	var current strings.Builder
	for _, text := range texts {
		if len(text) > limit {
			return nil, fmt.Errorf("%w: block of %d characters exceeds the %d limit", ErrAssemblyOverflow, len(text), limit)
		}
		if current.Len() > 0 && current.Len()+len(sep)+len(text) > limit {
			chunks = append(chunks, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString(sep)
		}
		current.WriteString(text)
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks, nil
}

// assembleArticle uploads image artifacts to the hosting collaborator,
// substitutes the returned URLs into the composed markup and publishes it.
func (a *assembler) assembleArticle(ctx context.Context, title string, blocks []resolvedBlock) (*AssembledDocument, error) {
	if a.host == nil {
		return nil, fmt.Errorf("%w: article output requires an image host", ErrUnsupportedFormat)
	}

	var markup strings.Builder
	doc := &AssembledDocument{Format: FormatArticle}

	for _, rb := range blocks {
		if rb.err != nil {
			doc.Failed = append(doc.Failed, rb.block.Position)
			fmt.Fprintf(&markup, "<p><i>%s</i></p>", html.EscapeString(failurePlaceholder(rb)))
			continue
		}
		switch rb.block.Kind {
		case KindMath, KindDiagram:
			url, err := a.host.UploadImage(ctx, rb.artifact)
			if err != nil {
				// The artifact exists; losing the upload degrades this
				// block to a placeholder, not the whole article.
				doc.Failed = append(doc.Failed, rb.block.Position)
				fmt.Fprintf(&markup, "<p><i>[image upload failed]</i></p>")
				continue
			}
			fmt.Fprintf(&markup, `<img src="%s"/>`, html.EscapeString(url))
		case KindRawImage:
			fmt.Fprintf(&markup, `<img src="%s"/>`, html.EscapeString(rb.block.Payload))
		default:
			fragment, err := a.conv.ToHTML(ctx, rb.block.Payload)
			if err != nil {
				return nil, err
			}
			markup.WriteString(fragment)
		}
	}

	url, err := a.host.Publish(ctx, title, markup.String())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrArticlePublish, err)
	}
	doc.URL = url
	doc.Parts = []Part{{Kind: PartText, Text: url}}
	return doc, nil
}

func failedPositions(blocks []resolvedBlock) []int {
	var failed []int
	for _, rb := range blocks {
		if rb.err != nil {
			failed = append(failed, rb.block.Position)
		}
	}
	return failed
}
