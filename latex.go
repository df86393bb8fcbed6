package tgrender

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// latexPreamble is the document wrapper for single-formula renders.
const latexPreamble = `\documentclass[12pt]{article}
\usepackage[utf8]{inputenc}
\usepackage{amsmath}
\usepackage{amssymb}
\usepackage{amsfonts}
\pagestyle{empty}
\begin{document}
`

const latexPostamble = `
\end{document}
`

// displayMinWidth centers display formulas on a uniform canvas so stacked
// Telegram photos line up.
const displayMinWidth = 600

// Environments that establish math mode on their own and must not be
// wrapped in $ or \[ delimiters.
var standaloneMathEnvs = map[string]bool{
	"equation": true, "equation*": true,
	"align": true, "align*": true,
	"gather": true, "gather*": true,
	"multline": true, "multline*": true,
	"alignat": true, "alignat*": true,
	"flalign": true, "flalign*": true,
	"displaymath": true, "math": true, "gathered": true,
}

var beginEnvName = regexp.MustCompile(`^\\begin\{([a-zA-Z*]+)\}`)

// latexRenderer renders a LaTeX math payload to a transparent PNG by
// running latex and dvipng in a temp directory.
type latexRenderer struct {
	runner CommandRunner
}

func newLatexRenderer(runner CommandRunner) *latexRenderer {
	return &latexRenderer{runner: runner}
}

// Render compiles the formula and rasterizes it at settings.DPI, then pads
// the image with a transparent margin of settings.Padding pixels. Inline
// formulas stay in inline math mode and skip the display canvas.
func (r *latexRenderer) Render(ctx context.Context, block Block, settings Settings) ([]byte, error) {
	display := block.Display
	doc := latexPreamble + wrapMath(strings.TrimSpace(block.Payload), display) + latexPostamble

	dir, cleanup, err := writeToolInput("formula.tex", doc)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	_, _, err = r.runner.Run(ctx, dir, "latex",
		"-interaction=nonstopmode", "-halt-on-error", "-output-directory", dir, "formula.tex")
	dviPath := filepath.Join(dir, "formula.dvi")
	if _, statErr := os.Stat(dviPath); err != nil || statErr != nil {
		return nil, r.compileError(ctx, dir, err)
	}

	pngPath := filepath.Join(dir, "formula.png")
	_, stderr, err := r.runner.Run(ctx, dir, "dvipng",
		"-D", strconv.Itoa(settings.DPI), "-T", "tight", "-bg", "Transparent",
		"-o", pngPath, dviPath)
	if err != nil {
		return nil, classifyRunError(ctx, "dvipng", stderr, err)
	}

	raw, err := os.ReadFile(pngPath)
	if err != nil {
		return nil, &RenderError{Tool: "dvipng", Err: ErrEmptyRenderOutput}
	}
	return padImage(raw, int(math.Round(settings.Padding)), display)
}

// compileError extracts the first "! " line from the latex log, the
// conventional marker for the fatal error.
func (r *latexRenderer) compileError(ctx context.Context, dir string, runErr error) error {
	detail := ""
	if log, err := os.ReadFile(filepath.Join(dir, "formula.log")); err == nil {
		for _, line := range strings.Split(string(log), "\n") {
			if strings.HasPrefix(line, "! ") {
				detail = strings.TrimSpace(line)
				break
			}
		}
	}
	if runErr == nil {
		runErr = fmt.Errorf("no dvi produced")
	}
	classified := classifyRunError(ctx, "latex", "", runErr)
	if re, ok := classified.(*RenderError); ok && detail != "" {
		re.Detail = detail
	}
	return classified
}

// wrapMath puts a bare formula into math mode. Payloads that already carry
// their own delimiters or a standalone environment pass through untouched.
func wrapMath(s string, display bool) string {
	if isMathDelimited(s) {
		return s
	}
	// \tag only works in display math.
	if strings.Contains(s, `\tag`) {
		return "\\begin{equation*}\n" + s + "\n\\end{equation*}"
	}
	if display {
		return `\[` + s + `\]`
	}
	return `$` + s + `$`
}

func isMathDelimited(s string) bool {
	if strings.HasPrefix(s, "$") && strings.HasSuffix(s, "$") {
		return true
	}
	if strings.HasPrefix(s, `\[`) && strings.HasSuffix(s, `\]`) {
		return true
	}
	if m := beginEnvName.FindStringSubmatch(s); m != nil && standaloneMathEnvs[m[1]] {
		return true
	}
	return false
}

// padImage adds a transparent margin around a PNG. Display formulas are
// centered on a canvas at least displayMinWidth wide.
func padImage(data []byte, padding int, display bool) ([]byte, error) {
	if padding <= 0 && !display {
		return data, nil
	}
	src, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding rendered image: %w", err)
	}

	b := src.Bounds()
	width := b.Dx() + 2*padding
	height := b.Dy() + 2*padding
	offsetX := padding
	if display && width < displayMinWidth {
		width = displayMinWidth
		offsetX = (width - b.Dx()) / 2
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	target := image.Rect(offsetX, padding, offsetX+b.Dx(), padding+b.Dy())
	draw.Draw(dst, target, src, b.Min, draw.Over)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("encoding padded image: %w", err)
	}
	return buf.Bytes(), nil
}
