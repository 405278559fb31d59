package capture

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultTargetDomains are the hosts captured when none are configured.
var DefaultTargetDomains = []string{"aura.build", "api.aura.build"}

// staticAssetMarkers skip a request when found anywhere in its path.
// This is a substring test, not a suffix test: "/api/v1.jsonl" is skipped too.
var staticAssetMarkers = []string{".js", ".css", ".png", ".jpg", ".svg", ".woff"}

// TargetFilter decides which exchanges are worth recording.
// Precedence:
// 1. Host outside the target domains -> NOT recorded
// 2. Path contains a static-asset marker -> NOT recorded
// 3. Path matches any exclude glob -> NOT recorded
// 4. Otherwise -> recorded
type TargetFilter struct {
	domains      []string
	excludePaths []string
}

// NewTargetFilter creates a filter for domains (DefaultTargetDomains when
// empty) and optional doublestar exclude patterns such as "/api/health/**".
func NewTargetFilter(domains, excludePaths []string) (*TargetFilter, error) {
	if len(domains) == 0 {
		domains = DefaultTargetDomains
	}

	f := &TargetFilter{}
	for _, d := range domains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d == "" {
			continue
		}
		f.domains = append(f.domains, d)
	}
	for _, p := range excludePaths {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid exclude pattern %q", p)
		}
		f.excludePaths = append(f.excludePaths, p)
	}
	return f, nil
}

// Domains returns the configured target domains.
func (f *TargetFilter) Domains() []string {
	return append([]string(nil), f.domains...)
}

// IsTarget reports whether rawURL's host is a target domain or a subdomain
// of one. A bare host or host:port is accepted as well as a full URL.
func (f *TargetFilter) IsTarget(rawURL string) bool {
	host := rawURL
	if strings.Contains(rawURL, "://") {
		u, err := url.Parse(rawURL)
		if err != nil {
			return false
		}
		host = u.Host
	}
	return f.isTargetHost(host)
}

func (f *TargetFilter) isTargetHost(host string) bool {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	if host == "" {
		return false
	}
	for _, d := range f.domains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// IsStaticAsset reports whether path names a static asset.
func IsStaticAsset(path string) bool {
	for _, marker := range staticAssetMarkers {
		if strings.Contains(path, marker) {
			return true
		}
	}
	return false
}

// IsExcluded reports whether path matches a configured exclude pattern.
func (f *TargetFilter) IsExcluded(path string) bool {
	for _, pattern := range f.excludePaths {
		if ok, _ := doublestar.Match(pattern, path); ok {
			return true
		}
	}
	return false
}

// Allow applies the full precedence chain to one request. requestURI is the
// path plus query string as sent on the wire.
func (f *TargetFilter) Allow(host, requestURI string) bool {
	if !f.isTargetHost(host) {
		return false
	}
	if IsStaticAsset(requestURI) {
		return false
	}
	path, _, _ := strings.Cut(requestURI, "?")
	return !f.IsExcluded(path)
}
