package capture

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"

	"github.com/getmockd/apicap/pkg/proxy"
	"github.com/getmockd/apicap/pkg/util"
)

// PreviewLimit is the maximum length, in characters, of a response preview.
const PreviewLimit = 500

// SampleTokenLength is how many characters of a bearer token are kept.
const SampleTokenLength = 20

// Header names kept in records, lowercased.
var (
	keptRequestHeaders  = []string{"content-type", "authorization", "x-api-key", "accept"}
	keptResponseHeaders = []string{"content-type", "set-cookie"}
)

// Extract normalizes one exchange into a RequestRecord stamped with at.
// When auth is non-nil it is updated from the request's Authorization header.
func Extract(ex *proxy.Exchange, auth *AuthInfo, at time.Time) RequestRecord {
	rec := RequestRecord{
		Method:         ex.Method,
		Path:           ex.URL.EscapedPath(),
		FullURL:        ex.URL.String(),
		QueryParams:    firstValues(ex.URL.Query()),
		RequestHeaders: filterHeaders(ex.RequestHeader, keptRequestHeaders),
		RequestBody:    decodeBody(ex.RequestBody),
		Timestamp:      At(at),
	}

	if resp := ex.Response; resp != nil {
		status := resp.StatusCode
		rec.ResponseStatus = &status
		rec.ResponseHeaders = filterHeaders(resp.Header, keptResponseHeaders)
		rec.ResponseBodyPreview = previewBody(resp.Body)
	}

	if auth != nil {
		UpdateAuth(auth, ex.RequestHeader)
	}
	return rec
}

// UpdateAuth records the scheme of h's Authorization header in auth.
// A header mentioning "Bearer" stores a truncated sample of the token;
// any other value only downgrades the method to Unknown.
func UpdateAuth(auth *AuthInfo, h http.Header) {
	value := strings.Join(h.Values("Authorization"), ", ")
	if value == "" {
		return
	}

	if !strings.Contains(value, "Bearer") {
		auth.Method = ptr(AuthMethodUnknown)
		return
	}

	fields := strings.Split(value, " ")
	token := fields[len(fields)-1]
	auth.Method = ptr(AuthMethodBearer)
	auth.TokenHeader = ptr("Authorization")
	auth.SampleToken = ptr(util.Truncate(token, SampleTokenLength) + "...")
}

// decodeBody returns the body as a JSON value, its text when it is not JSON,
// or nil when it is empty. Numbers are kept as json.Number.
func decodeBody(body []byte) any {
	if len(body) == 0 {
		return nil
	}
	if v, ok := decodeJSON(body); ok {
		return v
	}
	return decodeText(body)
}

func decodeJSON(body []byte) (any, bool) {
	if !utf8.Valid(body) || !json.Valid(body) {
		return nil, false
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, false
	}
	return v, true
}

// decodeText decodes body as UTF-8, replacing invalid bytes with U+FFFD.
func decodeText(body []byte) string {
	out, err := unicode.UTF8.NewDecoder().Bytes(body)
	if err != nil {
		return strings.ToValidUTF8(string(body), "\uFFFD")
	}
	return string(out)
}

// previewBody renders the response body as text truncated to PreviewLimit
// characters. A JSON string is used as is and other JSON values as their
// compact text. Empty, null, false, zero and empty-container bodies have
// no preview.
func previewBody(body []byte) *string {
	v := decodeBody(body)
	if isFalsy(v) {
		return nil
	}

	var text string
	switch val := v.(type) {
	case string:
		text = val
	default:
		var buf bytes.Buffer
		if err := json.Compact(&buf, body); err != nil {
			return nil
		}
		text = buf.String()
	}

	text = util.Truncate(text, PreviewLimit)
	return &text
}

// isFalsy reports whether v is an empty or zero JSON value.
func isFalsy(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case bool:
		return !val
	case string:
		return val == ""
	case json.Number:
		f, err := val.Float64()
		return err == nil && f == 0
	case map[string]any:
		return len(val) == 0
	case []any:
		return len(val) == 0
	}
	return false
}

// filterHeaders keeps the named headers, joining repeated values with ", ".
// The result is never nil.
func filterHeaders(h http.Header, keep []string) map[string]string {
	out := make(map[string]string)
	for name, values := range h {
		lower := strings.ToLower(name)
		for _, k := range keep {
			if lower == k {
				out[name] = strings.Join(values, ", ")
				break
			}
		}
	}
	return out
}

// firstValues flattens a query to its first value per key.
func firstValues(q map[string][]string) map[string]string {
	out := make(map[string]string, len(q))
	for k, v := range q {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}

func ptr[T any](v T) *T {
	return &v
}
