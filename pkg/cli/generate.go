package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/getmockd/apicap/pkg/clientgen"
)

// runGenerateClient renders the TypeScript client for the capture at input.
func runGenerateClient(cmd *cobra.Command, input string) error {
	cfg, logger, err := loadRuntime(cmd)
	if err != nil {
		return err
	}

	path, err := clientgen.GenerateFile(input, "", clientgen.Options{
		ClassName: cfg.ClientName,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Generated TypeScript client: %s\n", path)
	return nil
}
