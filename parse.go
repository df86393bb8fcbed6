package tgrender

import (
	"regexp"
	"strings"
)

// Fence and image detection patterns.
var (
	fenceOpen    = regexp.MustCompile("^(```|~~~)\\s*([a-zA-Z0-9_-]*)\\s*$")
	inlineImage  = regexp.MustCompile(`!\[[^\]]*\]\(([^)\s]+)\)`)
	mermaidFence = "mermaid"
)

// ParseDocument splits a raw document into an ordered sequence of typed
// blocks without rendering anything. Math delimited by $...$ (single line)
// or $$...$$, mermaid-tagged fences, other code fences and inline image
// references each become their own block; everything else is text.
//
// Malformed delimiters degrade to text blocks: a broken formula never
// fails the whole parse.
func ParseDocument(text string, dialect Dialect) []Block {
	_ = dialect // markdown is the only dialect today

	p := &docParser{}
	lines := strings.Split(text, "\n")

	for i := 0; i < len(lines); i++ {
		m := fenceOpen.FindStringSubmatch(lines[i])
		if m == nil {
			p.textLine(lines[i])
			continue
		}

		// Collect the fence body up to the matching closing marker.
		marker := m[1]
		lang := m[2]
		body, next, closed := collectFence(lines, i+1, marker)
		if !closed {
			// Unterminated fence: degrade to text.
			p.textLine(lines[i])
			continue
		}
		if strings.EqualFold(lang, mermaidFence) {
			p.flushText()
			p.add(KindDiagram, body, false)
		} else {
			// Code blocks pass through assembly verbatim, fence included.
			p.flushText()
			p.add(KindCode, strings.Join(lines[i:next+1], "\n"), false)
		}
		i = next
	}
	p.flushText()
	return p.blocks
}

// collectFence gathers lines until a closing fence marker. Returns the
// body, the closing line index and whether the fence was terminated.
func collectFence(lines []string, from int, marker string) (body string, closeIdx int, closed bool) {
	for i := from; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == marker {
			return strings.Join(lines[from:i], "\n"), i, true
		}
	}
	return "", 0, false
}

// docParser accumulates blocks while buffering consecutive text lines so
// math and image scanning sees whole text runs.
type docParser struct {
	blocks []Block
	text   []string
	pos    int
}

func (p *docParser) add(kind BlockKind, payload string, display bool) {
	p.blocks = append(p.blocks, Block{Kind: kind, Payload: payload, Position: p.pos, Display: display})
	p.pos++
}

func (p *docParser) textLine(line string) {
	p.text = append(p.text, line)
}

// flushText splits the buffered text run into text, math and image blocks.
func (p *docParser) flushText() {
	if len(p.text) == 0 {
		return
	}
	run := strings.Join(p.text, "\n")
	p.text = nil
	p.splitMath(run)
}

// splitMath scans a text run for $$...$$ and single-line $...$ spans.
// Delimiters that never close, or that enclose nothing, stay as text.
func (p *docParser) splitMath(run string) {
	for {
		i := strings.IndexByte(run, '$')
		if i < 0 {
			p.splitImages(run)
			return
		}

		if strings.HasPrefix(run[i:], "$$") {
			end := strings.Index(run[i+2:], "$$")
			if end < 0 {
				break // unterminated display math
			}
			payload := strings.TrimSpace(run[i+2 : i+2+end])
			if payload == "" {
				break // $$$$ is not a formula
			}
			p.splitImages(run[:i])
			p.add(KindMath, payload, true)
			run = run[i+2+end+2:]
			continue
		}

		// Inline math must close on the same line and be non-empty.
		line := run[i+1:]
		if nl := strings.IndexByte(line, '\n'); nl >= 0 {
			line = line[:nl]
		}
		end := strings.IndexByte(line, '$')
		if end <= 0 {
			break
		}
		payload := strings.TrimSpace(line[:end])
		if payload == "" {
			break
		}
		p.splitImages(run[:i])
		p.add(KindMath, payload, false)
		run = run[i+1+end+1:]
	}
	// Malformed remainder degrades to plain text.
	p.splitImages(run)
}

// splitImages extracts ![alt](url) references from a text segment and
// emits the interleaved text blocks.
func (p *docParser) splitImages(segment string) {
	for {
		loc := inlineImage.FindStringSubmatchIndex(segment)
		if loc == nil {
			p.emitText(segment)
			return
		}
		p.emitText(segment[:loc[0]])
		p.add(KindRawImage, segment[loc[2]:loc[3]], false)
		segment = segment[loc[1]:]
	}
}

func (p *docParser) emitText(s string) {
	if strings.TrimSpace(s) == "" {
		return
	}
	p.add(KindText, s, false)
}
