package proxy

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// decodeContent undoes gzip and deflate content codings so handlers see the
// payload the application sent. Unknown codings and corrupt streams are
// returned untouched.
func decodeContent(encoding string, body []byte) []byte {
	if len(body) == 0 {
		return body
	}

	var r io.ReadCloser
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "gzip", "x-gzip":
		zr, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return body
		}
		r = zr
	case "deflate":
		r = flate.NewReader(bytes.NewReader(body))
	default:
		return body
	}
	defer func() { _ = r.Close() }()

	decoded, err := io.ReadAll(io.LimitReader(r, DefaultMaxBodySize))
	if err != nil {
		return body
	}
	return decoded
}

// decodableCodings are the content codings decodeContent understands.
var decodableCodings = map[string]bool{"gzip": true, "x-gzip": true, "deflate": true, "identity": true}

// limitAcceptEncoding drops codings from Accept-Encoding that decodeContent
// cannot undo (br, zstd), so upstream responses stay readable. The header is
// removed entirely when nothing decodable remains.
func limitAcceptEncoding(h http.Header) {
	values := h.Values("Accept-Encoding")
	if len(values) == 0 {
		return
	}
	var keep []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			coding, _, _ := strings.Cut(strings.TrimSpace(part), ";")
			if decodableCodings[strings.ToLower(strings.TrimSpace(coding))] {
				keep = append(keep, strings.TrimSpace(part))
			}
		}
	}
	if len(keep) == 0 {
		h.Del("Accept-Encoding")
		return
	}
	h.Set("Accept-Encoding", strings.Join(keep, ", "))
}

// absoluteURL returns the full URL of a proxied request. Requests sent to a
// forward proxy normally carry an absolute URL; requests read off a MITM'd
// TLS connection only carry the path.
func absoluteURL(r *http.Request, scheme string) *url.URL {
	u := *r.URL
	if u.Scheme == "" {
		u.Scheme = scheme
	}
	if u.Host == "" {
		u.Host = r.Host
	}
	return &u
}
