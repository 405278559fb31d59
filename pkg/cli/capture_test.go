package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getmockd/apicap/pkg/capture"
	"github.com/getmockd/apicap/pkg/cli/internal/ports"
	"github.com/getmockd/apicap/pkg/config"
)

// isolateEnv runs the test from an empty directory with config and data dirs
// of its own and no APICAP_* variables.
func isolateEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, ".config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(dir, ".data"))
	for _, name := range []string{
		config.EnvTargetDomains, config.EnvExcludePaths, config.EnvBaseURL,
		config.EnvMaxBodyBytes, config.EnvCADir, config.EnvLogLevel,
		config.EnvLogFormat, config.EnvLogFile, config.EnvClientName,
	} {
		t.Setenv(name, "")
		require.NoError(t, os.Unsetenv(name))
	}
	t.Chdir(dir)
	return dir
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func TestRunCapture_RecordsThroughProxy(t *testing.T) {
	dir := isolateEnv(t)
	t.Setenv(config.EnvTargetDomains, "127.0.0.1")

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"projects":[{"id":1}]}`)
	}))
	defer upstream.Close()

	port := freePort(t)
	outputPath := filepath.Join(dir, "api_endpoints.json")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cmd := &cobra.Command{}
	cmd.SetContext(ctx)
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)

	done := make(chan error, 1)
	go func() { done <- runCapture(cmd, port, outputPath) }()

	proxyURL, err := url.Parse(fmt.Sprintf("http://127.0.0.1:%d", port))
	require.NoError(t, err)
	client := &http.Client{
		Transport: &http.Transport{Proxy: http.ProxyURL(proxyURL)},
		Timeout:   5 * time.Second,
	}

	var resp *http.Response
	require.Eventually(t, func() bool {
		resp, err = client.Get(upstream.URL + "/api/projects?page=2")
		return err == nil
	}, 10*time.Second, 50*time.Millisecond, "proxy never came up")
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"projects":[{"id":1}]}`, string(body))

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("capture did not stop")
	}

	snap, err := capture.Load(outputPath)
	require.NoError(t, err)
	require.Len(t, snap.Requests, 1)
	assert.Equal(t, "/api/projects", snap.Requests[0].Path)
	assert.Equal(t, map[string]string{"page": "2"}, snap.Requests[0].QueryParams)
	_, ok := snap.Endpoints.Group(capture.CategoryProjects).Get("GET /api/projects")
	assert.True(t, ok)

	out := stdout.String()
	assert.Contains(t, out, fmt.Sprintf("Proxy running on: http://127.0.0.1:%d", port))
	assert.Contains(t, out, "Captured 1 requests to 1 endpoints")
	assert.Contains(t, stderr.String(), "[1] GET /api/projects -> 200")

	_, err = os.Stat(filepath.Join(dir, ".data", "apicap", "ca", "ca.crt"))
	assert.NoError(t, err, "the CA is created on first run")
}

func TestRunCapture_PortInUse(t *testing.T) {
	isolateEnv(t)

	l, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer l.Close()
	port := l.Addr().(*net.TCPAddr).Port

	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)

	err = runCapture(cmd, port, "api_endpoints.json")
	require.ErrorIs(t, err, ErrEngineUnavailable)
	assert.ErrorIs(t, err, ports.ErrInUse)
	assert.Contains(t, err.Error(), fmt.Sprintf("apicap --port %d", port+1))

	_, statErr := os.Stat("api_endpoints.json")
	assert.True(t, os.IsNotExist(statErr))
}

func TestRunCapture_CAFailure(t *testing.T) {
	dir := isolateEnv(t)
	blocker := filepath.Join(dir, "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))
	t.Setenv(config.EnvCADir, filepath.Join(blocker, "ca"))

	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)

	err := runCapture(cmd, freePort(t), "api_endpoints.json")
	require.ErrorIs(t, err, ErrEngineUnavailable)
	assert.Contains(t, err.Error(), "failed to initialize CA")
}

func TestFormatPortError(t *testing.T) {
	other := errors.New("boom")
	assert.Same(t, other, formatPortError(8080, other))

	err := formatPortError(8080, fmt.Errorf("%w: 8080", ports.ErrInUse))
	assert.ErrorIs(t, err, ports.ErrInUse)
	assert.Contains(t, err.Error(), "port already in use: 8080")
	assert.Contains(t, err.Error(), "apicap --port 8081")
}
