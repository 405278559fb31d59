// Package capture turns proxied exchanges into a categorized endpoint table.
//
// An Observer receives every exchange from the proxy engine, drops traffic
// that is not aimed at the target application, and records the rest in a
// Store that is written to disk after every update. The persisted file is the
// input to the client and OpenAPI generators, so its JSON shape is a stable
// contract: field names and nullability here must not change.
package capture

import (
	"errors"
	"fmt"
	"time"
)

// Category is a coarse label for what an endpoint appears to do.
type Category string

// Categories, in classification priority order.
const (
	CategoryAuth       Category = "auth"
	CategoryProjects   Category = "projects"
	CategoryGeneration Category = "generation"
	CategoryExport     Category = "export"
	CategoryAssets     Category = "assets"
	CategoryTemplates  Category = "templates"
	CategoryComponents Category = "components"
	CategoryUsers      Category = "users"
	CategoryOther      Category = "other"
)

// Auth methods recorded in AuthInfo.Method.
const (
	AuthMethodBearer  = "Bearer"
	AuthMethodUnknown = "Unknown"
)

// DefaultBaseURL is the base URL written into new capture files.
const DefaultBaseURL = "https://www.aura.build"

// Errors returned when reading capture files.
var (
	ErrNotFound       = errors.New("capture file not found")
	ErrInvalidCapture = errors.New("invalid capture file")
)

// Snapshot is the full persisted capture: the api_endpoints.json document.
type Snapshot struct {
	CapturedAt Timestamp       `json:"captured_at"`
	BaseURL    string          `json:"base_url"`
	Endpoints  CategoryIndex   `json:"endpoints"`
	Auth       AuthInfo        `json:"auth"`
	Requests   []RequestRecord `json:"requests"`
}

// NewSnapshot returns an empty snapshot stamped with capturedAt.
func NewSnapshot(baseURL string, capturedAt time.Time) *Snapshot {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Snapshot{
		CapturedAt: At(capturedAt),
		BaseURL:    baseURL,
		Requests:   make([]RequestRecord, 0),
	}
}

// EndpointCount returns the number of distinct endpoint keys across categories.
func (s *Snapshot) EndpointCount() int {
	n := 0
	for _, cat := range s.Endpoints.Categories() {
		n += s.Endpoints.Group(cat).Len()
	}
	return n
}

// AuthInfo records the authentication scheme seen most recently.
// All fields are null until an Authorization header is observed.
type AuthInfo struct {
	Method      *string `json:"method"`
	TokenHeader *string `json:"token_header"`
	SampleToken *string `json:"sample_token"`
}

// EndpointSummary is the latest example seen for one "<METHOD> <path>" key.
type EndpointSummary struct {
	Method              string            `json:"method"`
	Path                string            `json:"path"`
	QueryParams         map[string]string `json:"query_params"`
	RequestBodyExample  any               `json:"request_body_example"`
	ResponseStatus      *int              `json:"response_status"`
	ResponseBodyExample *string           `json:"response_body_example"`
	LastSeen            Timestamp         `json:"last_seen"`
}

// RequestRecord is an immutable snapshot of one exchange.
//
// RequestBody holds the decoded JSON value (objects as map[string]any,
// numbers as json.Number) or, when the body is not JSON, its text.
type RequestRecord struct {
	Method              string            `json:"method"`
	Path                string            `json:"path"`
	FullURL             string            `json:"full_url"`
	QueryParams         map[string]string `json:"query_params"`
	RequestHeaders      map[string]string `json:"request_headers"`
	RequestBody         any               `json:"request_body"`
	ResponseStatus      *int              `json:"response_status"`
	ResponseHeaders     map[string]string `json:"response_headers"`
	ResponseBodyPreview *string           `json:"response_body_preview"`
	Timestamp           Timestamp         `json:"timestamp"`
}

// Key returns the endpoint key "<METHOD> <path>".
func (r *RequestRecord) Key() string {
	return EndpointKey(r.Method, r.Path)
}

// Summary derives the endpoint summary stored under r.Key().
func (r *RequestRecord) Summary() EndpointSummary {
	return EndpointSummary{
		Method:              r.Method,
		Path:                r.Path,
		QueryParams:         r.QueryParams,
		RequestBodyExample:  r.RequestBody,
		ResponseStatus:      r.ResponseStatus,
		ResponseBodyExample: r.ResponseBodyPreview,
		LastSeen:            r.Timestamp,
	}
}

// EndpointKey builds the deduplication key for an endpoint.
func EndpointKey(method, path string) string {
	return method + " " + path
}

// PersistError reports a failed write of the capture file.
type PersistError struct {
	Path string
	Err  error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("save capture %s: %v", e.Path, e.Err)
}

func (e *PersistError) Unwrap() error {
	return e.Err
}
