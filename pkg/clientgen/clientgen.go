// Package clientgen renders a TypeScript API client from a capture file.
//
// The client is an axios wrapper with one async method per observed
// "<METHOD> <path>" endpoint, emitted in the order the capture stored them.
package clientgen

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/getmockd/apicap/pkg/capture"
	"github.com/getmockd/apicap/pkg/logging"
)

// DefaultClassName is the name of the generated client class.
const DefaultClassName = "AuraClient"

// ErrCaptureNotFound is returned when the input capture file does not exist.
var ErrCaptureNotFound = errors.New("capture file not found")

// ErrInvalidClassName is returned for a class name that is not a TypeScript identifier.
var ErrInvalidClassName = errors.New("invalid class name")

//go:embed templates/client.ts.tmpl
var clientTemplate string

var tmpl = template.Must(template.New("client.ts").
	Funcs(template.FuncMap{"tsString": escapeTSString}).
	Parse(clientTemplate))

var identifierRe = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

// Options configures generation.
type Options struct {
	// ClassName of the generated client (default AuraClient).
	ClassName string
	// Logger receives collision warnings (nil = no logging).
	Logger *slog.Logger
}

// Method is one generated client method.
type Method struct {
	Name     string
	Key      string
	Verb     string
	Path     string
	Category capture.Category
}

// Call renders the axios invocation for the method, without the trailing
// .then(). Query-style verbs send the parameter bag as query params, body
// verbs send it as the request body.
func (m Method) Call() string {
	path := "'" + escapeTSString(m.Path) + "'"
	switch m.Verb {
	case "GET", "DELETE", "HEAD", "OPTIONS":
		return fmt.Sprintf("%s(%s, { params })", strings.ToLower(m.Verb), path)
	case "POST", "PUT", "PATCH":
		return fmt.Sprintf("%s(%s, params)", strings.ToLower(m.Verb), path)
	default:
		return fmt.Sprintf("request({ method: '%s', url: %s, data: params })", escapeTSString(m.Verb), path)
	}
}

// Group is the set of methods for one category.
type Group struct {
	Category capture.Category
	Methods  []Method
}

// Title is the category comment heading.
func (g Group) Title() string {
	return strings.ToUpper(string(g.Category))
}

// MethodName derives a method name from an endpoint: the path with every
// "/" and "-" (and any other character not allowed in an identifier)
// replaced by "_", leading and trailing underscores stripped, prefixed by
// the lowercased HTTP method and "_".
func MethodName(method, path string) string {
	name := strings.Trim(sanitize(path), "_")
	return sanitize(strings.ToLower(method)) + "_" + name
}

func sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '$':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// AssignNames walks the capture in stored order and names every endpoint.
// When two endpoints derive the same name, later ones get a numeric suffix
// ("_2", "_3", ...) and a warning is logged.
func AssignNames(snap *capture.Snapshot, logger *slog.Logger) []Group {
	if logger == nil {
		logger = logging.Nop()
	}

	used := make(map[string]string)
	var groups []Group
	for _, cat := range snap.Endpoints.Categories() {
		eg := snap.Endpoints.Group(cat)
		group := Group{Category: cat}
		for _, key := range eg.Keys() {
			ep, _ := eg.Get(key)
			base := MethodName(ep.Method, ep.Path)
			name := base
			for n := 2; used[name] != ""; n++ {
				name = base + "_" + strconv.Itoa(n)
			}
			if name != base {
				logger.Warn("method name collision, renamed",
					"endpoint", key, "conflictsWith", used[base], "name", name)
			}
			used[name] = key
			group.Methods = append(group.Methods, Method{
				Name:     name,
				Key:      key,
				Verb:     strings.ToUpper(ep.Method),
				Path:     ep.Path,
				Category: cat,
			})
		}
		groups = append(groups, group)
	}
	return groups
}

// Generate renders the client source for snap.
func Generate(snap *capture.Snapshot, opts Options) ([]byte, error) {
	className := opts.ClassName
	if className == "" {
		className = DefaultClassName
	}
	if !identifierRe.MatchString(className) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidClassName, className)
	}

	data := struct {
		ClassName  string
		BaseURL    string
		CapturedAt string
		Groups     []Group
	}{
		ClassName:  className,
		BaseURL:    snap.BaseURL,
		CapturedAt: snap.CapturedAt.UTC().Format(time.RFC3339),
		Groups:     AssignNames(snap, opts.Logger),
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to render client: %w", err)
	}
	return buf.Bytes(), nil
}

// GenerateFile reads the capture at input and writes the client to output
// (OutputPath(input) when empty). It returns the path written. Nothing is
// written when the input cannot be loaded.
func GenerateFile(input, output string, opts Options) (string, error) {
	snap, err := capture.Load(input)
	if err != nil {
		if errors.Is(err, capture.ErrNotFound) {
			return "", fmt.Errorf("%w: %s (run a capture first)", ErrCaptureNotFound, input)
		}
		return "", err
	}

	src, err := Generate(snap, opts)
	if err != nil {
		return "", err
	}

	if output == "" {
		output = OutputPath(input)
	}
	if err := os.WriteFile(output, src, 0o644); err != nil {
		return "", fmt.Errorf("failed to write client: %w", err)
	}
	return output, nil
}

// OutputPath maps a capture path to its client path: a trailing ".json" is
// replaced by "_client.ts", otherwise "_client.ts" is appended.
func OutputPath(input string) string {
	return strings.TrimSuffix(input, ".json") + "_client.ts"
}

// escapeTSString escapes s for a single-quoted TypeScript string literal.
func escapeTSString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "'", `\'`)
	s = strings.ReplaceAll(s, "\n", `\n`)
	s = strings.ReplaceAll(s, "\r", `\r`)
	return s
}
