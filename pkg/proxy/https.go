package proxy

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// handleConnect handles HTTPS CONNECT requests for TLS interception.
func (p *Proxy) handleConnect(w http.ResponseWriter, r *http.Request) {
	host := r.Host
	if _, _, err := net.SplitHostPort(host); err != nil {
		host = net.JoinHostPort(host, "443")
	}

	// If no CA manager, we can't do MITM - just tunnel
	if p.ca == nil {
		p.logger.Debug("no CA configured, tunneling", "host", host)
		p.tunnelConnect(w, r, host)
		return
	}

	hostOnly, port, _ := net.SplitHostPort(host)
	certPair, err := p.ca.GenerateHostCert(hostOnly)
	if err != nil {
		p.logger.Warn("error generating host certificate", "host", hostOnly, "error", err)
		http.Error(w, "Error generating certificate", http.StatusInternalServerError)
		return
	}

	hijacker, ok := w.(http.Hijacker)
	if !ok {
		http.Error(w, "HTTP server does not support hijacking", http.StatusInternalServerError)
		return
	}

	clientConn, _, err := hijacker.Hijack()
	if err != nil {
		p.logger.Debug("error hijacking connection", "error", err)
		return
	}

	// The server's read/write deadlines still apply to a hijacked conn.
	_ = clientConn.SetDeadline(time.Time{})

	if _, err := clientConn.Write([]byte("HTTP/1.1 200 Connection Established\r\n\r\n")); err != nil {
		p.logger.Debug("error sending CONNECT response", "error", err)
		_ = clientConn.Close()
		return
	}

	//nolint:gosec // G402: TLS MinVersion not set because proxy needs to support various client TLS versions
	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{certPair.TLSCertificate()},
		NextProtos:   []string{"http/1.1"},
	}

	tlsClientConn := tls.Server(clientConn, tlsConfig)
	if err := tlsClientConn.Handshake(); err != nil {
		// Usually a client that does not trust our CA.
		p.logger.Debug("TLS handshake with client failed", "host", hostOnly, "error", err)
		_ = clientConn.Close()
		return
	}

	p.logger.Debug("CONNECT intercepted", "host", host)

	authority := hostOnly
	if port != "443" {
		authority = host
	}
	p.handleTLSConnection(r.Context(), tlsClientConn, authority)
}

// handleTLSConnection serves HTTP/1.1 requests read off a decrypted client
// connection until the client or the upstream ends it.
func (p *Proxy) handleTLSConnection(ctx context.Context, clientConn *tls.Conn, authority string) {
	defer func() { _ = clientConn.Close() }()

	reader := bufio.NewReader(clientConn)

	for {
		req, err := http.ReadRequest(reader)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				p.logger.Debug("error reading request from TLS connection", "error", err)
			}
			return
		}

		req.URL.Scheme = "https"
		req.URL.Host = authority
		req.Host = authority

		if !p.handleHTTPSRequest(ctx, clientConn, reader, req) {
			return
		}
	}
}

// handleHTTPSRequest forwards one decrypted request through the shared
// upstream client and relays the response as it streams. It reports whether
// the client connection can carry another request.
func (p *Proxy) handleHTTPSRequest(ctx context.Context, clientConn net.Conn, clientReader *bufio.Reader, r *http.Request) bool {
	startTime := time.Now()
	p.logger.Debug("proxy HTTPS request", "method", r.Method, "host", r.Host, "path", r.URL.Path)

	reqTap := newBodyTap(r.Body, p.maxBodySize)
	outReq, err := p.upstreamRequest(ctx, r, "https", reqTap)
	if err != nil {
		p.logger.Debug("error building upstream request", "host", r.Host, "error", err)
		writeHTTPError(clientConn, http.StatusBadGateway, "Error forwarding request")
		return false
	}

	resp, err := p.client.Do(outReq)
	if err != nil {
		p.logger.Debug("error forwarding request", "host", r.Host, "error", err)
		writeHTTPError(clientConn, http.StatusBadGateway, "Error forwarding request")
		return false
	}
	defer func() { _ = resp.Body.Close() }()

	ex := newExchange(r, nil, startTime)

	if resp.StatusCode == http.StatusSwitchingProtocols {
		ex.RequestBody = reqTap.Bytes()
		ex.attachResponse(resp, nil)
		p.handler.HandleExchange(ctx, ex)

		upstream, ok := resp.Body.(io.ReadWriteCloser)
		if !ok {
			writeHTTPError(clientConn, http.StatusBadGateway, "Upstream switched protocols on an unusable connection")
			return false
		}
		if err := writeSwitchingProtocols(clientConn, resp); err != nil {
			p.logger.Debug("error relaying protocol switch", "error", err)
			return false
		}
		splice(clientConn, clientReader, upstream)
		return false
	}

	removeHopByHopHeaders(resp.Header)
	respTap := newBodyTap(resp.Body, p.maxBodySize)
	resp.Body = respTap
	resp.Proto, resp.ProtoMajor, resp.ProtoMinor = "HTTP/1.1", 1, 1
	// Without a length or chunking the body can only end with the connection.
	resp.Close = r.Close ||
		(resp.ContentLength < 0 && len(resp.TransferEncoding) == 0 && r.Method != http.MethodHead)

	writeErr := resp.Write(clientConn)

	ex.RequestBody = reqTap.Bytes()
	ex.attachResponse(resp, respTap.Bytes())
	p.handler.HandleExchange(ctx, ex)

	if writeErr != nil {
		p.logger.Debug("error writing response", "error", writeErr)
		return false
	}
	// An unread request body would be parsed as the next request.
	return !resp.Close && (r.ContentLength == 0 || reqTap.Drained())
}

// tunnelConnect creates a direct TCP tunnel for HTTPS without MITM.
func (p *Proxy) tunnelConnect(w http.ResponseWriter, _ *http.Request, host string) {
	targetConn, err := net.DialTimeout("tcp", host, 30*time.Second)
	if err != nil {
		p.logger.Debug("error connecting to target", "host", host, "error", err)
		http.Error(w, "Error connecting to target", http.StatusBadGateway)
		return
	}

	hijacker, ok := w.(http.Hijacker)
	if !ok {
		_ = targetConn.Close()
		http.Error(w, "HTTP server does not support hijacking", http.StatusInternalServerError)
		return
	}

	clientConn, _, err := hijacker.Hijack()
	if err != nil {
		p.logger.Debug("error hijacking connection", "error", err)
		_ = targetConn.Close()
		return
	}

	// The server's read/write deadlines still apply to a hijacked conn.
	_ = clientConn.SetDeadline(time.Time{})

	if _, err := clientConn.Write([]byte("HTTP/1.1 200 Connection Established\r\n\r\n")); err != nil {
		_ = clientConn.Close()
		_ = targetConn.Close()
		return
	}

	splice(clientConn, clientConn, targetConn)
}

// writeHTTPError writes an HTTP error response to a raw connection.
//
//nolint:unparam // statusCode is always the same value but function is intentionally generic
func writeHTTPError(conn net.Conn, statusCode int, message string) {
	resp := &http.Response{
		StatusCode:    statusCode,
		Status:        http.StatusText(statusCode),
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        make(http.Header),
		Body:          io.NopCloser(strings.NewReader(message)),
		ContentLength: int64(len(message)),
		Close:         true,
	}
	resp.Header.Set("Content-Type", "text/plain")
	_ = resp.Write(conn)
}
