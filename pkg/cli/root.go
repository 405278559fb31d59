package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Defaults for the root command flags.
const (
	DefaultPort   = 8080
	DefaultOutput = "api_endpoints.json"
)

var (
	// Version is injected during build
	Version = "dev"
	// Commit is injected during build
	Commit = "none"
	// BuildDate is injected during build
	BuildDate = "unknown"
)

var (
	rootPort           int
	rootOutput         string
	rootGenerateClient bool
)

var rootCmd = &cobra.Command{
	Use:   "apicap",
	Short: "Capture web API traffic and generate a typed client from it",
	Long: `apicap runs an intercepting proxy that records the API calls a browser makes
to the target domains into a JSON capture file. Point the browser at the proxy,
trust the apicap CA (see 'apicap ca export'), and use the site as usual.

Run again with --generate-client to turn the capture into a TypeScript client.

Configuration is read from APICAP_* environment variables (and .env),
.apicaprc.yaml in the current directory and ~/.config/apicap/config.yaml.`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true, // Main prints errors
	RunE: func(cmd *cobra.Command, _ []string) error {
		if rootGenerateClient {
			return runGenerateClient(cmd, rootOutput)
		}
		return runCapture(cmd, rootPort, rootOutput)
	},
}

// Main runs the CLI and returns the process exit code.
func Main() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}

// Execute runs the CLI and exits the process. It is called by main.main().
func Execute() {
	os.Exit(Main())
}

func init() {
	rootCmd.Flags().IntVar(&rootPort, "port", DefaultPort, "Proxy port")
	rootCmd.Flags().StringVar(&rootOutput, "output", DefaultOutput, "Capture file")
	rootCmd.Flags().BoolVar(&rootGenerateClient, "generate-client", false, "Generate a TypeScript client from the capture file and exit")
}
