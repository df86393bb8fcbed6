package tgrender

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestClassifyRunError(t *testing.T) {
	t.Parallel()

	t.Run("nil error passes through", func(t *testing.T) {
		t.Parallel()
		if err := classifyRunError(context.Background(), "latex", "", nil); err != nil {
			t.Errorf("classifyRunError(nil) = %v", err)
		}
	})

	t.Run("deadline maps to timeout", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
		defer cancel()
		<-ctx.Done()

		err := classifyRunError(ctx, "latex", "", errors.New("signal: killed"))
		if !errors.Is(err, ErrRenderTimeout) {
			t.Errorf("error = %v, want ErrRenderTimeout", err)
		}
	})

	t.Run("missing binary maps to unavailable", func(t *testing.T) {
		t.Parallel()
		err := classifyRunError(context.Background(), "mmdc", "", exec.ErrNotFound)
		if !errors.Is(err, ErrToolUnavailable) {
			t.Errorf("error = %v, want ErrToolUnavailable", err)
		}
	})

	t.Run("exit failure carries stderr excerpt", func(t *testing.T) {
		t.Parallel()
		err := classifyRunError(context.Background(), "dvipng", "fatal: bad dvi\nmore detail", errors.New("exit status 1"))
		if !errors.Is(err, ErrRenderExit) {
			t.Fatalf("error = %v, want ErrRenderExit", err)
		}
		var re *RenderError
		if !errors.As(err, &re) {
			t.Fatalf("not a *RenderError: %v", err)
		}
		if re.Detail != "fatal: bad dvi" {
			t.Errorf("Detail = %q, want first stderr line", re.Detail)
		}
	})
}

func TestStderrExcerpt(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "empty", input: "", expected: ""},
		{name: "whitespace only", input: "  \n ", expected: ""},
		{name: "single line", input: "boom", expected: "boom"},
		{name: "first line only", input: "boom\nsecond\nthird", expected: "boom"},
		{name: "long line truncated", input: strings.Repeat("x", 300), expected: strings.Repeat("x", 200) + "..."},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := stderrExcerpt(tt.input); got != tt.expected {
				t.Errorf("stderrExcerpt() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestWriteToolInput(t *testing.T) {
	t.Parallel()

	dir, cleanup, err := writeToolInput("formula.tex", "content")
	if err != nil {
		t.Fatalf("writeToolInput() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "formula.tex"))
	if err != nil {
		t.Fatalf("reading input file: %v", err)
	}
	if string(data) != "content" {
		t.Errorf("input file = %q", data)
	}

	cleanup()
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Error("cleanup left the temp directory behind")
	}
}

func TestExecRunner(t *testing.T) {
	t.Parallel()

	if _, err := exec.LookPath("true"); err != nil {
		t.Skip("no 'true' binary available")
	}

	r := &ExecRunner{}
	if _, _, err := r.Run(context.Background(), "", "true"); err != nil {
		t.Errorf("Run(true) error = %v", err)
	}

	if _, err := exec.LookPath("false"); err == nil {
		if _, _, err := r.Run(context.Background(), "", "false"); err == nil {
			t.Error("Run(false) expected an error")
		}
	}
}
