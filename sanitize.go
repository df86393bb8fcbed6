package tgrender

import (
	"fmt"
	"regexp"
	"strings"
)

// matrixDelims maps matrix-like environments to the explicit delimiters
// used when the environment is rewritten as an array. These environments
// do not accept \hline; array does.
var matrixDelims = map[string][2]string{
	"pmatrix": {`\left(`, `\right)`},
	"bmatrix": {`\left[`, `\right]`},
	"Bmatrix": {`\left\{`, `\right\}`},
	"vmatrix": {`\left|`, `\right|`},
	"Vmatrix": {`\left\|`, `\right\|`},
}

// Precompiled patterns for the deterministic pre-fixes.
var (
	// \tag{...} placed after \end{env} belongs inside the environment.
	tagAfterEnv = regexp.MustCompile(`(?s)(\\end\{[a-zA-Z*]+\})(\s*\\tag\{.*?\})`)

	// \atop \text{...} after \end{env} becomes a new row inside it.
	atopAfterEnv = regexp.MustCompile(`(?s)(\\end\{[a-zA-Z*]+\})\s*\\atop\s*(\\text\{.*?\})`)

	// Starred environments reject \tag; capture name and body to de-star.
	starredEnv = regexp.MustCompile(`(?s)\\begin\{([a-zA-Z]+)\*\}(.*?)\\end\{([a-zA-Z]+)\*\}`)

	// \text{...} content is ignored when counting columns.
	textGroup = regexp.MustCompile(`(?s)\\text\{.*?\}`)
)

// SanitizeMath rewrites a raw LaTeX math string into an equivalent form the
// external typesetter accepts. Matrix-like environments containing \hline
// are rewritten as delimited arrays with an inferred column specification;
// a handful of common user errors around \tag and \atop are fixed in place.
//
// Sanitizing is idempotent: an already-sanitized string is returned
// unchanged. Returns ErrUnbalancedEnvironment when the environment
// structure cannot be resolved deterministically.
func SanitizeMath(input string) (string, error) {
	s := applyHeuristicFixes(input)
	return rewriteEnvironments(s)
}

// applyHeuristicFixes repairs common user errors that have a single
// deterministic correction. Order matters: tags are moved inside their
// environment before starred environments are inspected for \tag usage.
func applyHeuristicFixes(s string) string {
	s = tagAfterEnv.ReplaceAllString(s, "$2 $1")
	s = atopAfterEnv.ReplaceAllString(s, `\\ $2 $1`)
	s = starredEnv.ReplaceAllStringFunc(s, func(m string) string {
		parts := starredEnv.FindStringSubmatch(m)
		if parts[1] != parts[3] || !strings.Contains(parts[2], `\tag`) {
			return m
		}
		return fmt.Sprintf(`\begin{%s}%s\end{%s}`, parts[1], parts[2], parts[1])
	})
	return s
}

// rewriteEnvironments walks the string rewriting matrix environments that
// contain \hline. Environments are resolved innermost first so that outer
// delimiters can wrap already-rewritten inner matrices of a different type.
func rewriteEnvironments(s string) (string, error) {
	var out strings.Builder
	rest := s
	for {
		name, start, bodyStart, ok := nextBegin(rest)
		if !ok {
			out.WriteString(rest)
			return out.String(), nil
		}

		body, after, err := matchEnvironment(rest[bodyStart:], name)
		if err != nil {
			return "", err
		}

		// Inner environments first.
		body, err = rewriteEnvironments(body)
		if err != nil {
			return "", err
		}

		out.WriteString(rest[:start])
		out.WriteString(renderEnvironment(name, body))
		rest = after
	}
}

// nextBegin locates the next \begin{name} token. It returns the environment
// name, the token's start offset and the offset just past the closing brace.
func nextBegin(s string) (name string, start, bodyStart int, ok bool) {
	for i := 0; i < len(s); {
		idx := strings.Index(s[i:], `\begin{`)
		if idx < 0 {
			return "", 0, 0, false
		}
		start = i + idx
		nameStart := start + len(`\begin{`)
		end := strings.IndexByte(s[nameStart:], '}')
		if end < 0 {
			// Malformed token; skip past it and keep scanning.
			i = nameStart
			continue
		}
		return s[nameStart : nameStart+end], start, nameStart + end + 1, true
	}
	return "", 0, 0, false
}

// matchEnvironment scans s for the \end matching an already-consumed
// \begin{name}, tracking nesting depth across all environments. It returns
// the environment body and the remainder after the matching \end.
func matchEnvironment(s, name string) (body, after string, err error) {
	depth := 1
	for i := 0; i < len(s); {
		bi := strings.Index(s[i:], `\begin{`)
		ei := strings.Index(s[i:], `\end{`)
		if ei < 0 {
			return "", "", fmt.Errorf("%w: missing \\end{%s}", ErrUnbalancedEnvironment, name)
		}
		if bi >= 0 && bi < ei {
			depth++
			i += bi + len(`\begin{`)
			continue
		}
		depth--
		if depth > 0 {
			i += ei + len(`\end{`)
			continue
		}
		nameStart := i + ei + len(`\end{`)
		braceEnd := strings.IndexByte(s[nameStart:], '}')
		if braceEnd < 0 {
			return "", "", fmt.Errorf("%w: malformed \\end after \\begin{%s}", ErrUnbalancedEnvironment, name)
		}
		endName := s[nameStart : nameStart+braceEnd]
		if endName != name {
			return "", "", fmt.Errorf("%w: \\begin{%s} closed by \\end{%s}", ErrUnbalancedEnvironment, name, endName)
		}
		return s[:i+ei], s[nameStart+braceEnd+1:], nil
	}
	return "", "", fmt.Errorf("%w: missing \\end{%s}", ErrUnbalancedEnvironment, name)
}

// renderEnvironment reassembles one environment, rewriting matrix kinds
// whose body uses \hline into a delimited array.
func renderEnvironment(name, body string) string {
	delims, matrix := matrixDelims[name]
	if !matrix || !strings.Contains(body, `\hline`) {
		return fmt.Sprintf(`\begin{%s}%s\end{%s}`, name, body, name)
	}
	spec := strings.Repeat("c", inferColumns(body))
	return fmt.Sprintf(`%s\begin{array}{%s}%s\end{array}%s`, delims[0], spec, body, delims[1])
}

// inferColumns computes the column count of a matrix body: one more than
// the widest row's column-separator count. Rows containing \hline and the
// contents of \text{...} groups are ignored; the result is at least 1.
func inferColumns(body string) int {
	cols := 0
	for _, row := range strings.Split(body, `\\`) {
		if strings.Contains(row, `\hline`) {
			continue
		}
		row = textGroup.ReplaceAllString(row, "")
		if n := strings.Count(row, "&") + 1; n > cols {
			cols = n
		}
	}
	if cols < 1 {
		cols = 1
	}
	return cols
}
