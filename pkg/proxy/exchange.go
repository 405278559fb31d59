package proxy

import (
	"context"
	"net/http"
	"net/url"
	"time"
)

// Exchange is one completed request/response pair seen by the proxy.
// Bodies hold at most the proxy's MaxBodySize bytes of what was forwarded;
// the response body has its Content-Encoding removed when the encoding is one
// the proxy understands and the recorded bytes are complete.
type Exchange struct {
	Method        string
	URL           *url.URL
	RequestHeader http.Header
	RequestBody   []byte

	// Response is nil when the upstream never produced one.
	Response *ExchangeResponse

	StartTime time.Time
	Duration  time.Duration
}

// ExchangeResponse holds the response half of an Exchange.
type ExchangeResponse struct {
	StatusCode int
	Status     string
	Header     http.Header
	Body       []byte
}

// ExchangeHandler receives every completed exchange. It is the only point
// where the proxy calls into the rest of the program.
//
// The proxy serves each client connection on its own goroutine, so
// implementations must be safe for concurrent use.
type ExchangeHandler interface {
	HandleExchange(ctx context.Context, ex *Exchange)
}

// ExchangeHandlerFunc adapts a function to ExchangeHandler.
type ExchangeHandlerFunc func(ctx context.Context, ex *Exchange)

// HandleExchange calls f(ctx, ex).
func (f ExchangeHandlerFunc) HandleExchange(ctx context.Context, ex *Exchange) {
	f(ctx, ex)
}
