package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/go-rod/rod/lib/launcher"

	tgrender "github.com/rmolchanov/go-tgrender"
)

// doctorResult holds all diagnostic information.
type doctorResult struct {
	Status   string       `json:"status"` // "ready", "warnings", "errors"
	Tools    []toolResult `json:"tools"`
	Browser  browserInfo  `json:"browser"`
	Env      envInfo      `json:"environment"`
	Warnings []string     `json:"warnings,omitempty"`
	Errors   []string     `json:"errors,omitempty"`
}

// toolResult reports one external binary.
type toolResult struct {
	Name  string `json:"name"`
	Found bool   `json:"found"`
	Path  string `json:"path,omitempty"`
}

// browserInfo holds Chrome/Chromium detection results, relevant for the
// diagram fallback when mmdc is missing.
type browserInfo struct {
	Found bool   `json:"found"`
	Path  string `json:"path,omitempty"`
}

// envInfo holds environment detection results.
type envInfo struct {
	OS         string `json:"os"`
	Arch       string `json:"arch"`
	CI         bool   `json:"ci"`
	BrowserBin string `json:"rod_browser_bin,omitempty"`
}

// runDoctorCmd executes the doctor command and returns an exit code.
// Exit codes: 0 = OK (including warnings), 1 = errors found.
func runDoctorCmd(args []string) int {
	jsonOutput := false
	for _, arg := range args {
		if arg == "--json" {
			jsonOutput = true
		}
	}

	result := runDoctor()

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(result)
	} else {
		printDoctorResult(os.Stdout, result)
	}

	if result.Status == "errors" {
		return ExitGeneral
	}
	return ExitSuccess
}

// runDoctor performs all diagnostic checks.
func runDoctor() *doctorResult {
	result := &doctorResult{
		Status: "ready",
		Env: envInfo{
			OS:         runtime.GOOS,
			Arch:       runtime.GOARCH,
			CI:         os.Getenv("CI") != "",
			BrowserBin: os.Getenv("ROD_BROWSER_BIN"),
		},
	}

	statuses, err := tgrender.CheckTools()
	for _, st := range statuses {
		result.Tools = append(result.Tools, toolResult{Name: st.Name, Found: st.Found, Path: st.Path})
		if !st.Found {
			switch st.Name {
			case "mmdc":
				result.Warnings = append(result.Warnings,
					"mmdc not found: diagrams will render through the bundled headless browser")
			case "pandoc":
				result.Warnings = append(result.Warnings,
					"pandoc not found: HTML conversion uses the built-in pipeline only")
			}
		}
	}
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
	}

	// The browser matters when mmdc is absent.
	if path, has := launcher.LookPath(); has {
		result.Browser = browserInfo{Found: true, Path: path}
	} else {
		result.Warnings = append(result.Warnings,
			"no Chrome/Chromium found: the diagram fallback will download one on first use")
	}

	switch {
	case len(result.Errors) > 0:
		result.Status = "errors"
	case len(result.Warnings) > 0:
		result.Status = "warnings"
	}
	return result
}

// printDoctorResult writes a human-readable diagnostic report.
func printDoctorResult(w io.Writer, result *doctorResult) {
	fmt.Fprintf(w, "Status: %s\n\n", result.Status)

	fmt.Fprintln(w, "Tools:")
	for _, tool := range result.Tools {
		mark := "ok"
		if !tool.Found {
			mark = "missing"
		}
		fmt.Fprintf(w, "  %-8s %-8s %s\n", tool.Name, mark, tool.Path)
	}

	fmt.Fprintln(w, "\nBrowser:")
	if result.Browser.Found {
		fmt.Fprintf(w, "  found at %s\n", result.Browser.Path)
	} else {
		fmt.Fprintln(w, "  not found")
	}

	if len(result.Warnings) > 0 {
		fmt.Fprintln(w, "\nWarnings:")
		for _, warning := range result.Warnings {
			fmt.Fprintf(w, "  - %s\n", warning)
		}
	}
	if len(result.Errors) > 0 {
		fmt.Fprintln(w, "\nErrors:")
		for _, e := range result.Errors {
			fmt.Fprintf(w, "  - %s\n", e)
		}
	}
}
