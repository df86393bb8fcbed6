package tgrender

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
)

// fakeImageHost records uploads and published markup.
type fakeImageHost struct {
	mu        sync.Mutex
	uploads   [][]byte
	markup    string
	title     string
	uploadErr error
	pubErr    error
}

func (h *fakeImageHost) UploadImage(ctx context.Context, data []byte) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.uploadErr != nil {
		return "", h.uploadErr
	}
	h.uploads = append(h.uploads, data)
	return fmt.Sprintf("https://host.test/file/%d.png", len(h.uploads)), nil
}

func (h *fakeImageHost) Publish(ctx context.Context, title, markup string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.pubErr != nil {
		return "", h.pubErr
	}
	h.title = title
	h.markup = markup
	return "https://host.test/article", nil
}

func textBlock(pos int, payload string) resolvedBlock {
	return resolvedBlock{block: Block{Kind: KindText, Payload: payload, Position: pos}}
}

func imageBlock(pos int, artifact []byte) resolvedBlock {
	return resolvedBlock{
		block:    Block{Kind: KindMath, Payload: "x", Position: pos},
		artifact: artifact,
	}
}

func TestAssembleTextImages(t *testing.T) {
	t.Parallel()

	a := &assembler{conv: newGoldmarkConverter()}
	blocks := []resolvedBlock{
		textBlock(0, "intro"),
		imageBlock(1, []byte("png-1")),
		textBlock(2, "middle"),
		textBlock(3, "more"),
		imageBlock(4, []byte("png-2")),
	}

	doc, err := a.assemble(context.Background(), Request{Format: FormatTextImages}, blocks)
	if err != nil {
		t.Fatalf("assemble() error = %v", err)
	}

	wantKinds := []PartKind{PartText, PartImage, PartText, PartImage}
	if len(doc.Parts) != len(wantKinds) {
		t.Fatalf("got %d parts, want %d: %+v", len(doc.Parts), len(wantKinds), doc.Parts)
	}
	for i, k := range wantKinds {
		if doc.Parts[i].Kind != k {
			t.Errorf("part %d kind = %v, want %v", i, doc.Parts[i].Kind, k)
		}
	}
	if doc.Parts[2].Text != "middle\n\nmore" {
		t.Errorf("merged text = %q", doc.Parts[2].Text)
	}
	if string(doc.Parts[1].Image) != "png-1" || string(doc.Parts[3].Image) != "png-2" {
		t.Error("image artifacts out of order")
	}
	if doc.FailedCount() != 0 {
		t.Errorf("FailedCount = %d, want 0", doc.FailedCount())
	}
}

func TestAssembleTextImagesChunksLongRuns(t *testing.T) {
	t.Parallel()

	// Three blocks of 1500 chars cannot fit one message; they must split
	// at block boundaries into multiple parts, each under the limit.
	long := strings.Repeat("a", 1500)
	a := &assembler{}
	blocks := []resolvedBlock{textBlock(0, long), textBlock(1, long), textBlock(2, long)}

	doc, err := a.assemble(context.Background(), Request{Format: FormatTextImages}, blocks)
	if err != nil {
		t.Fatalf("assemble() error = %v", err)
	}
	if len(doc.Parts) < 2 {
		t.Fatalf("got %d parts, want at least 2", len(doc.Parts))
	}
	var total int
	for i, part := range doc.Parts {
		if len(part.Text) > TelegramMessageLimit {
			t.Errorf("part %d is %d chars, exceeds the limit", i, len(part.Text))
		}
		total += strings.Count(part.Text, long)
	}
	if total != 3 {
		t.Errorf("blocks across chunks = %d, want 3", total)
	}
}

func TestAssembleTextImagesOverflow(t *testing.T) {
	t.Parallel()

	a := &assembler{}
	blocks := []resolvedBlock{textBlock(0, strings.Repeat("x", TelegramMessageLimit+1))}

	_, err := a.assemble(context.Background(), Request{Format: FormatTextImages}, blocks)
	if !errors.Is(err, ErrAssemblyOverflow) {
		t.Errorf("assemble() error = %v, want ErrAssemblyOverflow", err)
	}
}

func TestAssembleTextImagesPartialFailure(t *testing.T) {
	t.Parallel()

	a := &assembler{}
	blocks := []resolvedBlock{
		imageBlock(0, []byte("ok-0")),
		{block: Block{Kind: KindMath, Payload: "bad", Position: 1}, err: errors.New("compile failed")},
		imageBlock(2, []byte("ok-2")),
	}

	doc, err := a.assemble(context.Background(), Request{Format: FormatTextImages}, blocks)
	if err != nil {
		t.Fatalf("assemble() error = %v", err)
	}

	if doc.FailedCount() != 1 {
		t.Fatalf("FailedCount = %d, want 1", doc.FailedCount())
	}
	if doc.Failed[0] != 1 {
		t.Errorf("Failed = %v, want [1]", doc.Failed)
	}

	images := 0
	placeholder := false
	for _, part := range doc.Parts {
		if part.Kind == PartImage {
			images++
		}
		if strings.Contains(part.Text, "[render failed:") {
			placeholder = true
		}
	}
	if images != 2 {
		t.Errorf("image parts = %d, want 2", images)
	}
	if !placeholder {
		t.Error("expected a visible failure placeholder")
	}
}

func TestAssembleTextImagesRawImageStaysTextual(t *testing.T) {
	t.Parallel()

	a := &assembler{}
	blocks := []resolvedBlock{
		{block: Block{Kind: KindRawImage, Payload: "https://e/p.png", Position: 0}},
	}

	doc, err := a.assemble(context.Background(), Request{Format: FormatTextImages}, blocks)
	if err != nil {
		t.Fatalf("assemble() error = %v", err)
	}
	if len(doc.Parts) != 1 || doc.Parts[0].Kind != PartText {
		t.Fatalf("parts = %+v, want one text part", doc.Parts)
	}
	if doc.Parts[0].Text != "https://e/p.png" {
		t.Errorf("text = %q, want the image URL", doc.Parts[0].Text)
	}
}

func TestAssembleRawPassthrough(t *testing.T) {
	t.Parallel()

	a := &assembler{}
	req := Request{Format: FormatRaw, Document: "# raw $x$ content"}

	doc, err := a.assemble(context.Background(), req, nil)
	if err != nil {
		t.Fatalf("assemble() error = %v", err)
	}
	if len(doc.Parts) != 1 || doc.Parts[0].Text != req.Document {
		t.Errorf("raw output = %+v, want the document unchanged", doc.Parts)
	}
}

func TestAssembleUnknownFormat(t *testing.T) {
	t.Parallel()

	a := &assembler{}
	_, err := a.assemble(context.Background(), Request{Format: "pdf"}, nil)
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("assemble() error = %v, want ErrUnsupportedFormat", err)
	}
}

func TestChunkAtBoundaries(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		texts    []string
		limit    int
		expected []string
		wantErr  bool
	}{
		{
			name:     "all fit in one chunk",
			texts:    []string{"a", "b"},
			limit:    100,
			expected: []string{"a\n\nb"},
		},
		{
			name:     "split at boundary",
			texts:    []string{"aaaa", "bbbb"},
			limit:    6,
			expected: []string{"aaaa", "bbbb"},
		},
		{
			name:     "greedy packing",
			texts:    []string{"aa", "bb", "cc"},
			limit:    6,
			expected: []string{"aa\n\nbb", "cc"},
		},
		{
			name:    "single block over limit",
			texts:   []string{"aaaaaaa"},
			limit:   6,
			wantErr: true,
		},
		{
			name:     "empty input",
			texts:    nil,
			limit:    10,
			expected: nil,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := chunkAtBoundaries(tt.texts, tt.limit)
			if tt.wantErr {
				if !errors.Is(err, ErrAssemblyOverflow) {
					t.Errorf("error = %v, want ErrAssemblyOverflow", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("chunkAtBoundaries() error = %v", err)
			}
			if len(got) != len(tt.expected) {
				t.Fatalf("chunks = %q, want %q", got, tt.expected)
			}
			for i := range got {
				if got[i] != tt.expected[i] {
					t.Errorf("chunk %d = %q, want %q", i, got[i], tt.expected[i])
				}
			}
		})
	}
}

func TestAssembleHTMLDocument(t *testing.T) {
	t.Parallel()

	a := &assembler{conv: newGoldmarkConverter()}
	blocks := []resolvedBlock{
		textBlock(0, "# Heading"),
		{block: Block{Kind: KindMath, Payload: `e^{i\pi}`, Position: 1}, artifact: []byte("unused")},
		{block: Block{Kind: KindDiagram, Payload: "graph TD", Position: 2}, artifact: []byte("unused")},
		{block: Block{Kind: KindMath, Payload: "bad", Position: 3}, err: errors.New("boom")},
	}

	doc, err := a.assemble(context.Background(), Request{Format: FormatHTML, Title: "My Doc"}, blocks)
	if err != nil {
		t.Fatalf("assemble() error = %v", err)
	}
	if len(doc.Parts) != 1 {
		t.Fatalf("parts = %d, want 1", len(doc.Parts))
	}
	html := doc.Parts[0].Text

	for _, want := range []string{
		"<!DOCTYPE html>",
		"<title>My Doc</title>",
		"katex",
		"mermaid",
		`<pre class="mermaid">graph TD</pre>`,
		`$e^{i\pi}$`,
		`class="render-failed"`,
		"<h1",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("html output missing %q", want)
		}
	}
	if doc.FailedCount() != 1 {
		t.Errorf("FailedCount = %d, want 1", doc.FailedCount())
	}
}

func TestAssembleArticle(t *testing.T) {
	t.Parallel()

	host := &fakeImageHost{}
	a := &assembler{conv: newGoldmarkConverter(), host: host}
	blocks := []resolvedBlock{
		textBlock(0, "intro paragraph"),
		imageBlock(1, []byte("png-1")),
	}

	doc, err := a.assemble(context.Background(), Request{Format: FormatArticle, Title: "T"}, blocks)
	if err != nil {
		t.Fatalf("assemble() error = %v", err)
	}
	if doc.URL != "https://host.test/article" {
		t.Errorf("URL = %q", doc.URL)
	}
	if len(host.uploads) != 1 {
		t.Errorf("uploads = %d, want 1", len(host.uploads))
	}
	if !strings.Contains(host.markup, "https://host.test/file/1.png") {
		t.Errorf("markup missing the uploaded image URL: %q", host.markup)
	}
	if host.title != "T" {
		t.Errorf("title = %q", host.title)
	}
}

func TestAssembleArticleUploadFailureDegrades(t *testing.T) {
	t.Parallel()

	host := &fakeImageHost{uploadErr: errors.New("413")}
	a := &assembler{conv: newGoldmarkConverter(), host: host}
	blocks := []resolvedBlock{imageBlock(0, []byte("png"))}

	doc, err := a.assemble(context.Background(), Request{Format: FormatArticle}, blocks)
	if err != nil {
		t.Fatalf("assemble() error = %v", err)
	}
	if doc.FailedCount() != 1 {
		t.Errorf("FailedCount = %d, want 1", doc.FailedCount())
	}
	if doc.URL == "" {
		t.Error("article should still publish with a placeholder")
	}
}

func TestAssembleArticlePublishFailure(t *testing.T) {
	t.Parallel()

	host := &fakeImageHost{pubErr: errors.New("flood wait")}
	a := &assembler{conv: newGoldmarkConverter(), host: host}

	_, err := a.assemble(context.Background(), Request{Format: FormatArticle}, []resolvedBlock{textBlock(0, "x")})
	if !errors.Is(err, ErrArticlePublish) {
		t.Errorf("assemble() error = %v, want ErrArticlePublish", err)
	}
}

func TestAssembleArticleRequiresHost(t *testing.T) {
	t.Parallel()

	a := &assembler{conv: newGoldmarkConverter()}
	_, err := a.assemble(context.Background(), Request{Format: FormatArticle}, nil)
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("assemble() error = %v, want ErrUnsupportedFormat", err)
	}
}
