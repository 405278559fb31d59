package cli

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/getmockd/apicap/pkg/cli/internal/output"
	"github.com/getmockd/apicap/pkg/proxy"
)

var caDirFlag string

var caCmd = &cobra.Command{
	Use:   "ca",
	Short: "Manage the CA certificate used for HTTPS interception",
	Long: `Manage the CA certificate used for HTTPS interception.

A capture session creates the CA on first run. Browsers only accept the
intercepted HTTPS traffic once this certificate is trusted.`,
}

// caManager returns the CA manager for --ca-dir, falling back to the
// configured caDir.
func caManager(cmd *cobra.Command) (*proxy.CAManager, error) {
	if caDirFlag != "" {
		return proxy.NewCAManagerInDir(caDirFlag), nil
	}
	cfg, _, err := loadRuntime(cmd)
	if err != nil {
		return nil, err
	}
	return proxy.NewCAManagerInDir(cfg.CADir), nil
}

var caGenerateForce bool

var caGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a new CA certificate",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ca, err := caManager(cmd)
		if err != nil {
			return err
		}
		if ca.Exists() && !caGenerateForce {
			return fmt.Errorf("CA already exists at %s (use --force to replace it)", ca.CertPath())
		}
		if err := ca.Generate(); err != nil {
			return fmt.Errorf("failed to generate CA: %w", err)
		}

		w := cmd.OutOrStdout()
		fmt.Fprintln(w, "CA certificate generated:")
		if err := printCAInfo(cmd, ca); err != nil {
			return err
		}
		fmt.Fprintln(w, "\nTo trust this CA on macOS:")
		fmt.Fprintf(w, "  sudo security add-trusted-cert -d -r trustRoot -k /Library/Keychains/System.keychain %s\n", ca.CertPath())
		fmt.Fprintln(w, "\nTo trust this CA on Linux (Ubuntu/Debian):")
		fmt.Fprintf(w, "  sudo cp %s /usr/local/share/ca-certificates/apicap-ca.crt\n", ca.CertPath())
		fmt.Fprintln(w, "  sudo update-ca-certificates")
		return nil
	},
}

var caExportOutput string

var caExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the CA certificate for trust installation",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ca, err := caManager(cmd)
		if err != nil {
			return err
		}
		if !ca.Exists() {
			return fmt.Errorf("no CA at %s (run 'apicap ca generate' or start a capture first)", ca.CertPath())
		}
		if err := ca.Load(); err != nil {
			return fmt.Errorf("failed to load CA: %w", err)
		}

		certPEM, err := ca.CACertPEM()
		if err != nil {
			return fmt.Errorf("failed to export CA certificate: %w", err)
		}

		if caExportOutput == "" {
			_, err := cmd.OutOrStdout().Write(certPEM)
			return err
		}
		if err := os.WriteFile(caExportOutput, certPEM, 0o644); err != nil {
			return fmt.Errorf("failed to write certificate: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "CA certificate exported to: %s\n", caExportOutput)
		return nil
	},
}

var caInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show the CA certificate location and fingerprint",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ca, err := caManager(cmd)
		if err != nil {
			return err
		}
		if err := ca.Load(); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("no CA at %s (run 'apicap ca generate' or start a capture first)", ca.CertPath())
			}
			return fmt.Errorf("failed to load CA: %w", err)
		}
		return printCAInfo(cmd, ca)
	},
}

func printCAInfo(cmd *cobra.Command, ca *proxy.CAManager) error {
	info, err := ca.CertInfo()
	if err != nil {
		return err
	}
	tw := output.Table(cmd.OutOrStdout())
	fmt.Fprintf(tw, "  Certificate:\t%s\n", ca.CertPath())
	fmt.Fprintf(tw, "  Private key:\t%s\n", ca.KeyPath())
	fmt.Fprintf(tw, "  Organization:\t%s\n", info.Organization)
	fmt.Fprintf(tw, "  Expires:\t%s\n", info.NotAfter.UTC().Format(time.DateOnly))
	fmt.Fprintf(tw, "  SHA-256:\t%s\n", info.Fingerprint)
	return tw.Flush()
}

func init() {
	rootCmd.AddCommand(caCmd)
	caCmd.PersistentFlags().StringVar(&caDirFlag, "ca-dir", "", "CA directory (default: caDir from config)")

	caCmd.AddCommand(caGenerateCmd)
	caGenerateCmd.Flags().BoolVar(&caGenerateForce, "force", false, "Replace an existing CA")

	caCmd.AddCommand(caExportCmd)
	caExportCmd.Flags().StringVarP(&caExportOutput, "output", "o", "", "Output file path (default: stdout)")

	caCmd.AddCommand(caInfoCmd)
}
