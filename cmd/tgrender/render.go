package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	tgrender "github.com/rmolchanov/go-tgrender"
	"github.com/rmolchanov/go-tgrender/internal/config"
	"github.com/rmolchanov/go-tgrender/internal/sqlitestore"
)

// Sentinel errors for CLI operations.
var (
	ErrInvalidArgs = errors.New("usage: tgrender render [flags] <input.md>")
	ErrReadInput   = errors.New("failed to read input")
	ErrWriteOutput = errors.New("failed to write output")
)

// runRenderCmd executes the render command and returns an exit code.
func runRenderCmd(args []string) int {
	flags, rest, err := parseRenderFlags(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitCodeFor(err)
	}
	log := newLogger(flags.common)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := renderDocument(ctx, flags, rest, log); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitCodeFor(err)
	}
	return ExitSuccess
}

func renderDocument(ctx context.Context, flags *renderFlags, rest []string, log *slog.Logger) error {
	document, err := readInput(rest)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(flags.common.config)
	if err != nil {
		return err
	}

	svc, cleanup, err := buildService(cfg, flags, log)
	if err != nil {
		return err
	}
	defer cleanup()

	req := tgrender.Request{
		Document: document,
		Format:   tgrender.OutputFormat(flags.format),
		Title:    flags.title,
		Settings: resolveSettings(cfg, flags),
	}

	doc, err := svc.Render(ctx, req)
	if err != nil {
		return err
	}
	return writeOutput(flags.output, doc)
}

// readInput reads the document from the positional file argument, or from
// stdin when the argument is "-" or absent with piped input.
func readInput(rest []string) (string, error) {
	if len(rest) == 0 || rest[0] == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrReadInput, err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(rest[0]) // #nosec G304 -- input path is user-provided
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrReadInput, err)
	}
	return string(data), nil
}

// loadConfig loads the named config, or defaults when none was given.
func loadConfig(nameOrPath string) (*config.Config, error) {
	if nameOrPath == "" {
		return config.DefaultConfig(), nil
	}
	return config.LoadConfig(nameOrPath)
}

// resolveSettings merges config-file settings with flag overrides.
func resolveSettings(cfg *config.Config, flags *renderFlags) tgrender.Settings {
	s := tgrender.DefaultSettings()
	if cfg.Render.DPI > 0 {
		s.DPI = cfg.Render.DPI
	}
	if cfg.Render.Padding > 0 {
		s.Padding = cfg.Render.Padding
	}
	if flags.dpi > 0 {
		s.DPI = flags.dpi
	}
	if flags.padding >= 0 {
		s.Padding = flags.padding
	}
	return s
}

// buildService assembles the render service from config and flags. The
// returned cleanup closes the service and the durable store, if any.
func buildService(cfg *config.Config, flags *renderFlags, log *slog.Logger) (*tgrender.Service, func(), error) {
	opts := []tgrender.Option{tgrender.WithLogger(log)}

	if flags.timeout > 0 {
		opts = append(opts, tgrender.WithTimeout(flags.timeout))
	} else if cfg.Render.Timeout > 0 {
		opts = append(opts, tgrender.WithTimeout(cfg.Render.Timeout))
	}
	if flags.workers > 0 {
		opts = append(opts, tgrender.WithWorkers(flags.workers))
	} else if cfg.Render.Workers > 0 {
		opts = append(opts, tgrender.WithWorkers(cfg.Render.Workers))
	}
	if cfg.Cache.MaxEntries > 0 || cfg.Cache.MaxBytes > 0 {
		opts = append(opts, tgrender.WithCache(
			tgrender.NewMemoryCache(cfg.Cache.MaxEntries, cfg.Cache.MaxBytes)))
	}

	var store *sqlitestore.Store
	cachePath := cfg.Cache.Path
	if flags.cache != "" {
		cachePath = flags.cache
	}
	if cachePath != "" {
		var err error
		store, err = sqlitestore.Open(cachePath)
		if err != nil {
			// The durable tier is an optimization; losing it degrades to
			// memory-only caching.
			log.Warn("durable cache unavailable", "path", cachePath, "error", err)
		} else {
			opts = append(opts, tgrender.WithStore(store))
		}
	}

	if flags.format == "article" {
		opts = append(opts, tgrender.WithImageHost(&tgrender.TelegraphHost{
			AccessToken: os.Getenv("TGRENDER_TELEGRAPH_TOKEN"),
		}))
	}

	if cfg.Render.PuppeteerConfig != "" {
		os.Setenv("TGRENDER_PUPPETEER_CONFIG", cfg.Render.PuppeteerConfig)
	}

	svc := tgrender.New(opts...)
	cleanup := func() {
		svc.Close()
		if store != nil {
			store.Close()
		}
	}
	return svc, cleanup, nil
}

// writeOutput writes the assembled document. Single-part outputs (html,
// raw, article URL) go to the output file or stdout; multi-part
// text+images output goes to numbered files in the output directory.
func writeOutput(output string, doc *tgrender.AssembledDocument) error {
	if len(doc.Parts) == 1 && doc.Parts[0].Kind == tgrender.PartText {
		if output == "" {
			fmt.Println(doc.Parts[0].Text)
			return nil
		}
		if err := os.WriteFile(output, []byte(doc.Parts[0].Text), 0o644); err != nil {
			return fmt.Errorf("%w: %v", ErrWriteOutput, err)
		}
		fmt.Printf("Created %s\n", output)
		return nil
	}

	dir := output
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrWriteOutput, err)
	}
	for i, part := range doc.Parts {
		var path string
		var data []byte
		switch part.Kind {
		case tgrender.PartImage:
			path = filepath.Join(dir, fmt.Sprintf("part-%03d.png", i+1))
			data = part.Image
		default:
			path = filepath.Join(dir, fmt.Sprintf("part-%03d.txt", i+1))
			data = []byte(part.Text)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("%w: %v", ErrWriteOutput, err)
		}
	}
	fmt.Printf("Created %d parts in %s\n", len(doc.Parts), dir)
	if n := doc.FailedCount(); n > 0 {
		fmt.Printf("Warning: %d block(s) failed to render and were replaced with placeholders\n", n)
	}
	return nil
}
