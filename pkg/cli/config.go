package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/getmockd/apicap/pkg/cli/internal/output"
	"github.com/getmockd/apicap/pkg/config"
)

var configJSON bool

// configKeys lists settings in display order.
var configKeys = []string{
	"targetDomains", "excludePaths", "baseUrl", "maxBodyBytes",
	"caDir", "logLevel", "logFormat", "logFile", "clientName",
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration",
	Long: `Show the effective configuration after merging defaults, the global and
local config files and APICAP_* environment variables, followed by where each
value came from.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.LoadAll()
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()

		if configJSON {
			return output.JSON(w, struct {
				*config.Config
				Sources map[string]string `json:"sources"`
			}{cfg, cfg.Sources})
		}

		data, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("marshaling config: %w", err)
		}
		fmt.Fprintln(w, "# Effective apicap configuration")
		fmt.Fprint(w, string(data))

		fmt.Fprintln(w)
		tw := output.Table(w)
		fmt.Fprintln(tw, "# KEY\tSOURCE")
		for _, key := range configKeys {
			fmt.Fprintf(tw, "# %s\t%s\n", key, cfg.Source(key))
		}
		return tw.Flush()
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.Flags().BoolVar(&configJSON, "json", false, "Output in JSON format")
}
