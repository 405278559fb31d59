package proxy

import (
	"context"
	"io"
	"net/http"
	"time"
)

const (
	// DefaultMaxBodySize is the default number of body bytes recorded per
	// direction (10MB). Larger bodies are forwarded in full.
	DefaultMaxBodySize = 10 * 1024 * 1024
)

// handleHTTP handles regular HTTP proxy requests. Bodies stream through in
// both directions; the exchange is reported once the response is complete.
func (p *Proxy) handleHTTP(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	p.logger.Debug("proxy request", "method", r.Method, "host", r.Host, "path", r.URL.Path)

	reqTap := newBodyTap(r.Body, p.maxBodySize)
	outReq, err := p.upstreamRequest(r.Context(), r, "http", reqTap)
	if err != nil {
		p.logger.Debug("error building upstream request", "host", r.Host, "error", err)
		http.Error(w, "Error forwarding request: "+err.Error(), http.StatusBadGateway)
		return
	}

	resp, err := p.client.Do(outReq)
	if err != nil {
		p.logger.Debug("error forwarding request", "host", r.Host, "error", err)
		http.Error(w, "Error forwarding request: "+err.Error(), http.StatusBadGateway)
		return
	}
	defer func() { _ = resp.Body.Close() }()

	ex := newExchange(r, nil, startTime)
	ex.URL = absoluteURL(r, "http")

	if resp.StatusCode == http.StatusSwitchingProtocols {
		ex.RequestBody = reqTap.Bytes()
		ex.attachResponse(resp, nil)
		p.handler.HandleExchange(r.Context(), ex)
		p.switchProtocols(w, resp)
		return
	}

	copyHeaders(w.Header(), resp.Header)
	removeHopByHopHeaders(w.Header())
	w.WriteHeader(resp.StatusCode)

	respTap := newBodyTap(resp.Body, p.maxBodySize)
	if _, err := io.Copy(clientWriter(w, resp), respTap); err != nil {
		p.logger.Debug("error relaying response body", "host", r.Host, "error", err)
	}

	ex.RequestBody = reqTap.Bytes()
	ex.attachResponse(resp, respTap.Bytes())
	p.handler.HandleExchange(r.Context(), ex)
}

// switchProtocols hands a plain HTTP connection over to the upstream after a
// 101 response, so WebSocket traffic flows through unobserved.
func (p *Proxy) switchProtocols(w http.ResponseWriter, resp *http.Response) {
	upstream, ok := resp.Body.(io.ReadWriteCloser)
	if !ok {
		http.Error(w, "Upstream switched protocols on an unusable connection", http.StatusBadGateway)
		return
	}

	clientConn, brw, err := http.NewResponseController(w).Hijack()
	if err != nil {
		p.logger.Debug("error hijacking connection", "error", err)
		return
	}
	_ = clientConn.SetDeadline(time.Time{})

	if err := writeSwitchingProtocols(clientConn, resp); err != nil {
		p.logger.Debug("error relaying protocol switch", "error", err)
		_ = clientConn.Close()
		return
	}
	splice(clientConn, brw.Reader, upstream)
}

// upstreamRequest builds the request sent to the target. body replaces the
// client's request body so it can be recorded while it streams.
func (p *Proxy) upstreamRequest(ctx context.Context, r *http.Request, scheme string, body *bodyTap) (*http.Request, error) {
	outReq, err := http.NewRequestWithContext(ctx, r.Method, absoluteURL(r, scheme).String(), nil)
	if err != nil {
		return nil, err
	}
	if r.ContentLength != 0 {
		// -1 (unknown) is sent chunked.
		outReq.Body = body
		outReq.ContentLength = r.ContentLength
	}

	copyHeaders(outReq.Header, r.Header)
	if isUpgrade(r.Header) {
		outReq.Header.Del("Proxy-Connection")
		outReq.Header.Del("Proxy-Authorization")
	} else {
		removeHopByHopHeaders(outReq.Header)
	}
	limitAcceptEncoding(outReq.Header)

	return outReq, nil
}

// clientWriter flushes after every write when the response has no declared
// length, so streamed responses reach the client as they arrive.
func clientWriter(w http.ResponseWriter, resp *http.Response) io.Writer {
	if resp.ContentLength >= 0 {
		return w
	}
	return &flushWriter{w: w, rc: http.NewResponseController(w)}
}

type flushWriter struct {
	w  io.Writer
	rc *http.ResponseController
}

func (f *flushWriter) Write(p []byte) (int, error) {
	n, err := f.w.Write(p)
	if err == nil {
		_ = f.rc.Flush()
	}
	return n, err
}

// newExchange starts an Exchange from the client request.
func newExchange(r *http.Request, body []byte, start time.Time) *Exchange {
	return &Exchange{
		Method:        r.Method,
		URL:           r.URL,
		RequestHeader: r.Header.Clone(),
		RequestBody:   body,
		StartTime:     start,
	}
}

// attachResponse fills in the response half and the elapsed time.
func (ex *Exchange) attachResponse(resp *http.Response, body []byte) {
	ex.Response = &ExchangeResponse{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Header:     resp.Header.Clone(),
		Body:       decodeContent(resp.Header.Get("Content-Encoding"), body),
	}
	ex.Duration = time.Since(ex.StartTime)
}

// copyHeaders copies headers from src to dst.
func copyHeaders(dst, src http.Header) {
	for key, values := range src {
		for _, value := range values {
			dst.Add(key, value)
		}
	}
}

// removeHopByHopHeaders removes headers that should not be forwarded.
func removeHopByHopHeaders(h http.Header) {
	hopByHopHeaders := []string{
		"Connection",
		"Keep-Alive",
		"Proxy-Authenticate",
		"Proxy-Authorization",
		"Proxy-Connection",
		"TE",
		"Trailers",
		"Transfer-Encoding",
		"Upgrade",
	}

	for _, header := range hopByHopHeaders {
		h.Del(header)
	}
}
