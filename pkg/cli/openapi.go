package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/getmockd/apicap/pkg/apispec"
	"github.com/getmockd/apicap/pkg/capture"
	"github.com/getmockd/apicap/pkg/clientgen"
)

var (
	openapiInput   string
	openapiFormat  string
	openapiTitle   string
	openapiVersion string
)

var openapiCmd = &cobra.Command{
	Use:   "openapi",
	Short: "Export a capture file as an OpenAPI 3 document",
	Long: `Export a capture file as an OpenAPI 3 document on stdout.

Each observed endpoint becomes an operation whose operationId matches the
generated client method name. Schemas are inferred from the last observed
request and response bodies.`,
	Example: `  apicap openapi > openapi.json
  apicap openapi --output session.json --format yaml > openapi.yaml`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		format, err := apispec.ParseFormat(openapiFormat)
		if err != nil {
			return err
		}

		cfg, logger, err := loadRuntime(cmd)
		if err != nil {
			return err
		}

		snap, err := capture.Load(openapiInput)
		if err != nil {
			if errors.Is(err, capture.ErrNotFound) {
				return fmt.Errorf("%w: %s (run a capture first)", clientgen.ErrCaptureNotFound, openapiInput)
			}
			return err
		}

		title := openapiTitle
		if title == "" {
			title = cfg.ClientName + " captured API"
		}
		doc, err := apispec.Build(cmd.Context(), snap, apispec.Options{
			Title:   title,
			Version: openapiVersion,
			Logger:  logger,
		})
		if err != nil {
			return err
		}

		data, err := apispec.Marshal(doc, format)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

func init() {
	rootCmd.AddCommand(openapiCmd)
	openapiCmd.Flags().StringVar(&openapiInput, "output", DefaultOutput, "Capture file to export")
	openapiCmd.Flags().StringVar(&openapiFormat, "format", "json", "Document format: json or yaml")
	openapiCmd.Flags().StringVar(&openapiTitle, "title", "", "API title (default: \"<clientName> captured API\")")
	openapiCmd.Flags().StringVar(&openapiVersion, "api-version", "", "API version (default: 0.0.0)")
}
