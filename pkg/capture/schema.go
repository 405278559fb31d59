package capture

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema/capture.schema.json
var captureSchemaJSON []byte

const captureSchemaURL = "capture.schema.json"

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	errSchema      error
)

// Schema returns the JSON Schema describing the capture file format.
func Schema() []byte {
	return append([]byte(nil), captureSchemaJSON...)
}

// ValidateDocument checks raw capture file contents against the schema.
// Schema violations are reported as ErrInvalidCapture with every failing
// location listed.
func ValidateDocument(data []byte) error {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		if err := compiler.AddResource(captureSchemaURL, bytes.NewReader(captureSchemaJSON)); err != nil {
			errSchema = fmt.Errorf("failed to add schema resource: %w", err)
			return
		}
		compiledSchema, errSchema = compiler.Compile(captureSchemaURL)
	})
	if errSchema != nil {
		return errSchema
	}

	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCapture, err)
	}

	if err := compiledSchema.Validate(doc); err != nil {
		var verr *jsonschema.ValidationError
		if errors.As(err, &verr) {
			return fmt.Errorf("%w: %s", ErrInvalidCapture, strings.Join(schemaViolations(verr, nil), "; "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidCapture, err)
	}
	return nil
}

// schemaViolations flattens a validation error tree into "location: message"
// strings, leaves only.
func schemaViolations(err *jsonschema.ValidationError, out []string) []string {
	if len(err.Causes) == 0 {
		loc := err.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		return append(out, loc+": "+err.Message)
	}
	for _, cause := range err.Causes {
		out = schemaViolations(cause, out)
	}
	return out
}
