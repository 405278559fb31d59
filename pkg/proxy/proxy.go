// Package proxy provides a MITM proxy server for intercepting HTTP/HTTPS traffic.
//
// The proxy streams every request and response through unchanged while
// keeping a bounded copy of each body, and hands the completed pair to an
// ExchangeHandler. Protocol upgrades such as WebSocket are relayed as raw
// bytes after the handshake is reported. The proxy has no notion of what is
// interesting; filtering and storage are the handler's job.
package proxy

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/getmockd/apicap/pkg/logging"
)

// Options configures proxy behavior.
type Options struct {
	// Handler receives completed exchanges (nil = forward only)
	Handler ExchangeHandler
	// CAManager handles certificate generation for HTTPS.
	// Without one, CONNECT requests are tunnelled and not observed.
	CAManager *CAManager
	// Logger for connection-level logging (nil = no logging)
	Logger *slog.Logger
	// MaxBodySize caps how much of each body is recorded (0 = DefaultMaxBodySize).
	// Bodies are always forwarded in full.
	MaxBodySize int64
	// Transport carries all upstream requests, plain and intercepted
	// (nil = a pooled transport using UpstreamTLS)
	Transport http.RoundTripper
	// UpstreamTLS is the client TLS config for HTTPS upstream connections
	// made by the default transport (nil = accept any certificate)
	UpstreamTLS *tls.Config
}

// Proxy is an HTTP/HTTPS MITM proxy server.
type Proxy struct {
	handler     ExchangeHandler
	ca          *CAManager
	logger      *slog.Logger
	maxBodySize int64
	client      *http.Client
}

// New creates a new Proxy with the given options.
func New(opts Options) *Proxy {
	handler := opts.Handler
	if handler == nil {
		handler = ExchangeHandlerFunc(func(_ context.Context, _ *Exchange) {})
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.Nop()
	}

	maxBody := opts.MaxBodySize
	if maxBody <= 0 {
		maxBody = DefaultMaxBodySize
	}

	upstreamTLS := opts.UpstreamTLS
	if upstreamTLS == nil {
		//nolint:gosec // G402: proxy intentionally accepts any upstream certificate
		upstreamTLS = &tls.Config{InsecureSkipVerify: true}
	}

	transport := opts.Transport
	if transport == nil {
		transport = &http.Transport{
			// Never chain through the proxy configured in our own environment.
			Proxy: nil,
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSClientConfig:       upstreamTLS,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: 60 * time.Second,
			IdleConnTimeout:       90 * time.Second,
			MaxIdleConnsPerHost:   8,
			// Responses reach the client encoded exactly as the upstream sent them.
			DisableCompression: true,
		}
	}

	return &Proxy{
		handler:     handler,
		ca:          opts.CAManager,
		logger:      logger,
		maxBodySize: maxBody,
		client: &http.Client{
			Transport: transport,
			// Redirects belong to the client, not the proxy.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// ServeHTTP implements http.Handler for the proxy.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodConnect {
		p.handleConnect(w, r)
	} else {
		p.handleHTTP(w, r)
	}
}

