package cli

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/getmockd/apicap/pkg/config"
	"github.com/getmockd/apicap/pkg/logging"
)

// loadRuntime loads the layered configuration and builds the logger every
// command shares. Logs go to the command's stderr.
func loadRuntime(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	cfg, err := config.LoadAll()
	if err != nil {
		return nil, nil, err
	}
	lc := cfg.LoggingConfig()
	lc.Output = cmd.ErrOrStderr()
	return cfg, logging.New(lc), nil
}
