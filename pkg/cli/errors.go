package cli

import (
	"errors"
	"fmt"

	"github.com/getmockd/apicap/pkg/cli/internal/ports"
)

// ErrEngineUnavailable is returned when the interception engine cannot
// start: the CA could not be initialized or the proxy port is unavailable.
var ErrEngineUnavailable = errors.New("interception engine unavailable")

// formatPortError explains a failed port check.
func formatPortError(port int, err error) error {
	if !errors.Is(err, ports.ErrInUse) {
		return err
	}
	return fmt.Errorf(`%w

Suggestions:
  - Use a different port: apicap --port %d
  - Check what's using the port: lsof -i :%d
  - Stop the other process and try again`, err, port+1, port)
}
