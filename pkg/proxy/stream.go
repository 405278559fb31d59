package proxy

import (
	"bufio"
	"bytes"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
)

// bodyTap passes a body through unchanged while keeping a copy of its first
// limit bytes for the Exchange.
type bodyTap struct {
	rc    io.ReadCloser
	limit int64

	mu      sync.Mutex
	buf     bytes.Buffer
	drained bool
}

func newBodyTap(rc io.ReadCloser, limit int64) *bodyTap {
	if rc == nil {
		rc = http.NoBody
	}
	return &bodyTap{rc: rc, limit: limit}
}

func (t *bodyTap) Read(p []byte) (int, error) {
	n, err := t.rc.Read(p)

	t.mu.Lock()
	if room := t.limit - int64(t.buf.Len()); room > 0 && n > 0 {
		t.buf.Write(p[:min(int64(n), room)])
	}
	if err == io.EOF {
		t.drained = true
	}
	t.mu.Unlock()

	return n, err
}

func (t *bodyTap) Close() error {
	return t.rc.Close()
}

// Bytes returns the captured prefix of the body. It may be called while the
// transport is still reading.
func (t *bodyTap) Bytes() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.buf.Len() == 0 {
		return nil
	}
	return bytes.Clone(t.buf.Bytes())
}

// Drained reports whether the body was read to EOF.
func (t *bodyTap) Drained() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.drained
}

// isUpgrade reports whether h asks to switch protocols, as a WebSocket
// handshake does.
func isUpgrade(h http.Header) bool {
	if h.Get("Upgrade") == "" {
		return false
	}
	for _, v := range h.Values("Connection") {
		for _, token := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(token), "upgrade") {
				return true
			}
		}
	}
	return false
}

// writeSwitchingProtocols relays a 101 response head to the client.
func writeSwitchingProtocols(w io.Writer, resp *http.Response) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString("HTTP/1.1 " + resp.Status + "\r\n"); err != nil {
		return err
	}
	if err := resp.Header.Write(bw); err != nil {
		return err
	}
	if _, err := bw.WriteString("\r\n"); err != nil {
		return err
	}
	return bw.Flush()
}

// splice relays bytes in both directions until either side closes. Reads
// from the client go through clientReader so bytes it already buffered are
// not lost.
func splice(clientConn net.Conn, clientReader io.Reader, upstream io.ReadWriteCloser) {
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		_, _ = io.Copy(upstream, clientReader)
		_ = upstream.Close()
	}()

	go func() {
		defer wg.Done()
		_, _ = io.Copy(clientConn, upstream)
		_ = clientConn.Close()
	}()

	wg.Wait()
}
