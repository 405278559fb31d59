package cli

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/getmockd/apicap/pkg/capture"
	"github.com/getmockd/apicap/pkg/cli/internal/output"
	"github.com/getmockd/apicap/pkg/cli/internal/ports"
	"github.com/getmockd/apicap/pkg/proxy"
)

// runCapture runs a capture session until SIGINT/SIGTERM or a persistence
// failure. The capture file is flushed once more on the way out.
func runCapture(cmd *cobra.Command, port int, outputPath string) error {
	cfg, logger, err := loadRuntime(cmd)
	if err != nil {
		return err
	}
	stdout := cmd.OutOrStdout()

	ca := proxy.NewCAManagerInDir(cfg.CADir)
	if err := ca.EnsureCA(); err != nil {
		return fmt.Errorf("%w: failed to initialize CA in %s: %w", ErrEngineUnavailable, cfg.CADir, err)
	}

	if err := ports.Check(port); err != nil {
		return fmt.Errorf("%w: %w", ErrEngineUnavailable, formatPortError(port, err))
	}

	filter, err := capture.NewTargetFilter(cfg.TargetDomains, cfg.ExcludePaths)
	if err != nil {
		return err
	}
	store := capture.NewStore(outputPath, capture.NewSnapshot(cfg.BaseURL, time.Now()))
	observer := capture.NewObserver(store, filter, capture.WithLogger(logger))

	p := proxy.New(proxy.Options{
		Handler:     observer,
		CAManager:   ca,
		Logger:      logger,
		MaxBodySize: cfg.MaxBodyBytes,
	})

	addr := fmt.Sprintf(":%d", port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("%w: failed to listen on %s: %w", ErrEngineUnavailable, addr, err)
	}

	server := &http.Server{
		Handler:           p,
		ReadHeaderTimeout: 30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	printBanner(stdout, port, outputPath, cfg.BaseURL, filter.Domains(), ca.CertPath())

	serveErr := make(chan error, 1)
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	var runErr error
	select {
	case <-sigChan:
	case <-cmd.Context().Done():
	case err := <-observer.Fatal():
		runErr = err
	case err := <-serveErr:
		runErr = fmt.Errorf("proxy server failed: %w", err)
	}

	fmt.Fprintln(stdout, "\nShutting down proxy...")
	if err := server.Close(); err != nil {
		output.Warn(cmd.ErrOrStderr(), "server shutdown error: %v", err)
	}

	if err := observer.Flush(); err != nil && runErr == nil {
		runErr = err
	}
	if runErr != nil {
		return runErr
	}

	snap := store.Snapshot()
	fmt.Fprintf(stdout, "Captured %d requests to %d endpoints in %s\n", observer.Count(), snap.EndpointCount(), outputPath)
	if observer.Count() > 0 {
		fmt.Fprintf(stdout, "Use 'apicap --output %s --generate-client' to generate a client\n", outputPath)
	}
	return nil
}

func printBanner(w io.Writer, port int, outputPath, baseURL string, domains []string, caCert string) {
	target := baseURL
	if target == "" {
		target = "https://" + domains[0]
	}
	output.Banner(w, "API Interceptor",
		fmt.Sprintf("Proxy running on: http://127.0.0.1:%d", port),
		"Output file: "+outputPath,
		"Capturing: "+strings.Join(domains, ", "),
		"",
		fmt.Sprintf("Configure your browser proxy to 127.0.0.1:%d", port),
		"Trust the CA certificate: "+caCert,
		"Then navigate to "+target,
		"",
		"Press Ctrl+C to stop and save captured endpoints",
	)
}
