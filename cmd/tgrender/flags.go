package main

import (
	"fmt"
	"time"

	flag "github.com/spf13/pflag"
)

// commonFlags holds flags shared across commands.
type commonFlags struct {
	config  string
	quiet   bool
	verbose bool
}

// renderFlags holds all flags for the render command.
type renderFlags struct {
	common  commonFlags
	format  string
	output  string
	title   string
	dpi     int
	padding float64
	workers int
	timeout time.Duration
	cache   string
}

// serveFlags holds all flags for the serve command.
type serveFlags struct {
	common commonFlags
	addr   string
	token  string
	cache  string
}

// addCommonFlags adds common flags to a FlagSet.
func addCommonFlags(fs *flag.FlagSet, f *commonFlags) {
	fs.StringVarP(&f.config, "config", "c", "", "config file name or path")
	fs.BoolVarP(&f.quiet, "quiet", "q", false, "only show errors")
	fs.BoolVarP(&f.verbose, "verbose", "v", false, "show debug logging")
}

// parseRenderFlags parses flags for the render command. Returns the flags
// and the remaining positional arguments (the input file).
func parseRenderFlags(args []string) (*renderFlags, []string, error) {
	f := &renderFlags{}
	fs := flag.NewFlagSet("render", flag.ContinueOnError)
	addCommonFlags(fs, &f.common)
	fs.StringVarP(&f.format, "format", "f", "text+images", "output format: text+images, html, article, raw")
	fs.StringVarP(&f.output, "output", "o", "", "output file or directory (default: stdout/cwd)")
	fs.StringVar(&f.title, "title", "", "document title for html and article outputs")
	fs.IntVar(&f.dpi, "dpi", 0, "math image density (72-1200, 0 = default)")
	fs.Float64Var(&f.padding, "padding", -1, "math image margin in pixels (-1 = default)")
	fs.IntVarP(&f.workers, "workers", "w", 0, "render worker count (0 = auto)")
	fs.DurationVarP(&f.timeout, "timeout", "t", 0, "per-tool timeout (0 = default)")
	fs.StringVar(&f.cache, "cache", "", "SQLite cache file (empty = memory only)")

	if err := fs.Parse(args); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidArgs, err)
	}
	return f, fs.Args(), nil
}

// parseServeFlags parses flags for the serve command.
func parseServeFlags(args []string) (*serveFlags, error) {
	f := &serveFlags{}
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	addCommonFlags(fs, &f.common)
	fs.StringVar(&f.addr, "addr", "127.0.0.1:8090", "admin server listen address")
	fs.StringVar(&f.token, "token", "", "bearer token for mutating endpoints")
	fs.StringVar(&f.cache, "cache", "", "SQLite cache file (empty = memory only)")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgs, err)
	}
	return f, nil
}
