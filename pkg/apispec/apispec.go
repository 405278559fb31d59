// Package apispec exports a capture as an OpenAPI 3 document.
//
// Every observed endpoint becomes an operation whose operationId matches the
// generated client method name. Schemas are inferred from the last seen
// request and response examples, so they describe what was observed rather
// than what the API guarantees.
package apispec

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"gopkg.in/yaml.v3"

	"github.com/getmockd/apicap/pkg/capture"
	"github.com/getmockd/apicap/pkg/clientgen"
)

// Format is an output encoding for the document.
type Format string

// Supported formats.
const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat returns the format named by s.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported format %q (use json or yaml)", s)
	}
}

// Options configures Build.
type Options struct {
	// Title of the API (default "<ClassName> captured API").
	Title string
	// Version of the document (default "0.0.0").
	Version string
	// Logger receives operationId collision warnings.
	Logger *slog.Logger
}

const bearerSchemeName = "bearerAuth"

// supportedMethods are the verbs an OpenAPI path item can hold.
var supportedMethods = []string{
	http.MethodGet, http.MethodPut, http.MethodPost, http.MethodDelete,
	http.MethodOptions, http.MethodHead, http.MethodPatch, http.MethodTrace,
	http.MethodConnect,
}

// Build converts snap into a validated OpenAPI document. Endpoints whose
// method has no OpenAPI equivalent are skipped.
func Build(ctx context.Context, snap *capture.Snapshot, opts Options) (*openapi3.T, error) {
	title := opts.Title
	if title == "" {
		title = clientgen.DefaultClassName + " captured API"
	}
	version := opts.Version
	if version == "" {
		version = "0.0.0"
	}

	doc := &openapi3.T{
		OpenAPI: "3.0.3",
		Info: &openapi3.Info{
			Title:       title,
			Description: "Observed from traffic captured at " + snap.CapturedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
			Version:     version,
		},
		Paths: openapi3.NewPaths(),
	}
	if snap.BaseURL != "" {
		doc.Servers = openapi3.Servers{&openapi3.Server{URL: snap.BaseURL}}
	}

	for _, group := range clientgen.AssignNames(snap, opts.Logger) {
		added := false
		for _, m := range group.Methods {
			if !slices.Contains(supportedMethods, m.Verb) {
				continue
			}
			ep, ok := snap.Endpoints.Group(group.Category).Get(m.Key)
			if !ok {
				continue
			}

			path := specPath(ep.Path)
			item := doc.Paths.Value(path)
			if item == nil {
				item = &openapi3.PathItem{}
				doc.Paths.Set(path, item)
			}
			item.SetOperation(m.Verb, buildOperation(m, ep))
			added = true
		}
		if added {
			doc.Tags = append(doc.Tags, &openapi3.Tag{Name: string(group.Category)})
		}
	}

	if snap.Auth.Method != nil && *snap.Auth.Method == capture.AuthMethodBearer {
		doc.Components = &openapi3.Components{
			SecuritySchemes: openapi3.SecuritySchemes{
				bearerSchemeName: &openapi3.SecuritySchemeRef{
					Value: &openapi3.SecurityScheme{Type: "http", Scheme: "bearer"},
				},
			},
		}
		doc.Security = openapi3.SecurityRequirements{
			openapi3.NewSecurityRequirement().Authenticate(bearerSchemeName),
		}
	}

	if err := doc.Validate(ctx, openapi3.DisableExamplesValidation()); err != nil {
		return nil, fmt.Errorf("generated document is invalid: %w", err)
	}
	return doc, nil
}

func buildOperation(m clientgen.Method, ep capture.EndpointSummary) *openapi3.Operation {
	op := openapi3.NewOperation()
	op.OperationID = m.Name
	op.Summary = m.Key
	op.Tags = []string{string(m.Category)}

	names := make([]string, 0, len(ep.QueryParams))
	for name := range ep.QueryParams {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		p := openapi3.NewQueryParameter(name).WithSchema(openapi3.NewStringSchema())
		p.Example = ep.QueryParams[name]
		op.AddParameter(p)
	}

	if ep.RequestBodyExample != nil {
		op.RequestBody = &openapi3.RequestBodyRef{
			Value: openapi3.NewRequestBody().WithContent(exampleContent(ep.RequestBodyExample)),
		}
	}

	resp := openapi3.NewResponse()
	status := 0
	if ep.ResponseStatus != nil {
		status = *ep.ResponseStatus
		resp.WithDescription(statusDescription(status))
	} else {
		resp.WithDescription("No response observed")
	}
	if ep.ResponseBodyExample != nil {
		resp.WithContent(previewContent(*ep.ResponseBodyExample))
	}

	op.Responses = openapi3.NewResponsesWithCapacity(1)
	code := "default"
	if status >= 100 && status < 600 {
		code = strconv.Itoa(status)
	}
	op.Responses.Set(code, &openapi3.ResponseRef{Value: resp})
	return op
}

func statusDescription(status int) string {
	if text := http.StatusText(status); text != "" {
		return text
	}
	return "Status " + strconv.Itoa(status)
}

// exampleContent describes a decoded body: JSON media for structured values,
// text/plain for strings.
func exampleContent(v any) openapi3.Content {
	if s, ok := v.(string); ok {
		mt := openapi3.NewMediaType().WithSchema(openapi3.NewStringSchema())
		mt.Example = s
		return openapi3.Content{"text/plain": mt}
	}
	content := openapi3.NewContentWithJSONSchema(InferSchema(v))
	content["application/json"].Example = v
	return content
}

// previewContent describes a response preview. Previews are truncated, so
// only ones that still parse as JSON get an inferred schema.
func previewContent(preview string) openapi3.Content {
	dec := json.NewDecoder(strings.NewReader(preview))
	dec.UseNumber()
	var v any
	if json.Valid([]byte(preview)) && dec.Decode(&v) == nil && v != nil {
		if _, isString := v.(string); !isString {
			return exampleContent(v)
		}
	}
	return exampleContent(preview)
}

// InferSchema derives a schema from an example value decoded with
// json.Decoder.UseNumber.
func InferSchema(v any) *openapi3.Schema {
	switch val := v.(type) {
	case nil:
		return &openapi3.Schema{Nullable: true}
	case bool:
		return openapi3.NewBoolSchema()
	case json.Number:
		if _, err := val.Int64(); err == nil {
			return openapi3.NewIntegerSchema()
		}
		return openapi3.NewFloat64Schema()
	case float64:
		return openapi3.NewFloat64Schema()
	case string:
		return openapi3.NewStringSchema()
	case []any:
		items := &openapi3.Schema{}
		if len(val) > 0 {
			items = InferSchema(val[0])
		}
		return openapi3.NewArraySchema().WithItems(items)
	case map[string]any:
		s := openapi3.NewObjectSchema()
		for name, prop := range val {
			s.WithProperty(name, InferSchema(prop))
		}
		return s
	default:
		return &openapi3.Schema{}
	}
}

// specPath makes a captured path usable as an OpenAPI path key. Braces are
// escaped so they are not read as path templates.
func specPath(p string) string {
	if p == "" {
		p = "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	p = strings.ReplaceAll(p, "{", "%7B")
	return strings.ReplaceAll(p, "}", "%7D")
}

// Marshal encodes doc in the given format.
func Marshal(doc *openapi3.T, format Format) ([]byte, error) {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal OpenAPI document: %w", err)
	}
	if format != FormatYAML {
		return append(data, '\n'), nil
	}
	return jsonToYAML(data)
}

// jsonToYAML re-encodes a JSON document as block-style YAML, keeping key
// order and number spelling.
func jsonToYAML(data []byte) ([]byte, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("failed to convert to YAML: %w", err)
	}
	resetStyle(&node)

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&node); err != nil {
		return nil, fmt.Errorf("failed to encode YAML: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// resetStyle drops the flow and quoting styles a JSON source leaves on
// nodes. The encoder still quotes strings that would read back as another type.
func resetStyle(n *yaml.Node) {
	n.Style = 0
	for _, c := range n.Content {
		resetStyle(c)
	}
}
