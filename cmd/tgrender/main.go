package main

import (
	"fmt"
	"log/slog"
	"os"

	"go.uber.org/automaxprocs/maxprocs"
)

// Version is set at build time via ldflags.
var Version = "dev"

const usage = `tgrender renders Markdown documents with LaTeX math and Mermaid
diagrams into chat-ready output.

Usage:
  tgrender render [flags] <input.md>   render a document
  tgrender serve  [flags]              run the admin/health server
  tgrender doctor [--json]             check the external toolchain
  tgrender version                     print version

Run "tgrender <command> --help" for command flags.`

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	// Error ignored: maxprocs.Set only fails if GOMAXPROCS env is invalid,
	// in which case Go runtime defaults apply and the program continues safely.
	_, _ = maxprocs.Set(maxprocs.Logger(func(string, ...interface{}) {}))

	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, usage)
		return ExitUsage
	}

	switch args[0] {
	case "render":
		return runRenderCmd(args[1:])
	case "serve":
		return runServeCmd(args[1:])
	case "doctor":
		return runDoctorCmd(args[1:])
	case "version":
		fmt.Println("tgrender", Version)
		return ExitSuccess
	case "-h", "--help", "help":
		fmt.Println(usage)
		return ExitSuccess
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s\n", args[0], usage)
		return ExitUsage
	}
}

// newLogger builds the CLI logger honoring --quiet and --verbose.
func newLogger(f commonFlags) *slog.Logger {
	level := slog.LevelInfo
	switch {
	case f.quiet:
		level = slog.LevelError
	case f.verbose:
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
